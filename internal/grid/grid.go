// Package grid plans the rectangle of tiles that covers a bounding box and
// the sub-pixel crop that cuts the box back out of the stitched tiles.
package grid

import (
	"fmt"
	"image"
	"math"

	"github.com/kiesman99/posterize/pkg/tile"
)

// Grid is an immutable tile grid plan.
type Grid struct {
	Origin tile.Coordinate
	Cols   int
	Rows   int

	// Crop corners in grid-local pixels, relative to Origin's top-left.
	CropMinX, CropMinY float64
	CropMaxX, CropMaxY float64
}

// Zoom returns the zoom level of the grid.
func (g Grid) Zoom() int {
	return int(g.Origin.Z)
}

// BottomRight returns the first tile past the grid on both axes.
func (g Grid) BottomRight() tile.Coordinate {
	return tile.NewCoordinate(g.Zoom(), int(g.Origin.X)+g.Cols, int(g.Origin.Y)+g.Rows)
}

// PixelSize returns the size of the stitched raw canvas.
func (g Grid) PixelSize() image.Point {
	return image.Pt(g.Cols*tile.Size, g.Rows*tile.Size)
}

// Len returns the number of tiles in the grid.
func (g Grid) Len() int {
	return g.Cols * g.Rows
}

// At returns the coordinate at a row and column of the grid.
func (g Grid) At(row, col int) tile.Coordinate {
	return tile.NewCoordinate(g.Zoom(), int(g.Origin.X)+col, int(g.Origin.Y)+row)
}

// Row returns the coordinates of one grid row from west to east.
func (g Grid) Row(row int) []tile.Coordinate {
	coords := make([]tile.Coordinate, g.Cols)
	for col := range coords {
		coords[col] = g.At(row, col)
	}
	return coords
}

// Coordinates returns every coordinate in row-major order.
func (g Grid) Coordinates() []tile.Coordinate {
	coords := make([]tile.Coordinate, 0, g.Len())
	for row := 0; row < g.Rows; row++ {
		coords = append(coords, g.Row(row)...)
	}
	return coords
}

// OriginPixel returns the global pixel position of the grid's top-left corner.
func (g Grid) OriginPixel() (float64, float64) {
	return tile.TileOrigin(g.Origin)
}

// Local converts a geographic point to grid-local pixels.
func (g Grid) Local(p tile.GeoPoint) (float64, float64) {
	x, y := tile.PointToPixel(p, g.Zoom())
	ox, oy := g.OriginPixel()
	return x - ox, y - oy
}

// CropRect returns the crop rectangle truncated to whole pixels.
func (g Grid) CropRect() image.Rectangle {
	return image.Rect(int(g.CropMinX), int(g.CropMinY), int(g.CropMaxX), int(g.CropMaxY))
}

func (g Grid) String() string {
	return fmt.Sprintf("%dx%d tiles from %d/%d/%d, raw %v px, crop %v",
		g.Cols, g.Rows, g.Origin.Z, g.Origin.X, g.Origin.Y, g.PixelSize(), g.CropRect())
}

// Span returns the tile counts between two corner tiles, inclusive, forced to
// a square by taking the larger of the two.
func Span(topLeft, bottomRight tile.Coordinate) (int, int) {
	dx := int(bottomRight.X) - int(topLeft.X) + 1
	dy := int(bottomRight.Y) - int(topLeft.Y) + 1
	n := max(dx, dy, 1)
	return n, n
}

// Plan computes the tile grid for box at zoom. aspect is the height/width
// ratio of the map area on the poster: rows are stretched to
// ceil(cols*aspect) and the crop's bottom edge is derived from its width so
// the crop has exactly that ratio. The box is assumed valid.
func Plan(box tile.BoundingBox, zoom int, aspect float64) Grid {
	tl := tile.PointToTile(box.TopLeft, zoom)
	br := tile.PointToTile(box.BottomRight, zoom)

	cols, _ := Span(tl, br)
	rows := max(int(math.Ceil(float64(cols)*aspect)), 1)

	g := Grid{Origin: tl, Cols: cols, Rows: rows}

	tlx, tly := tile.PointToPixel(box.TopLeft, zoom)
	brx, _ := tile.PointToPixel(box.BottomRight, zoom)
	bry := tly + (brx-tlx)*aspect

	ox, oy := g.OriginPixel()
	g.CropMinX, g.CropMinY = tlx-ox, tly-oy
	g.CropMaxX, g.CropMaxY = brx-ox, bry-oy

	// The top corner's offset inside the first row can push the crop past the
	// stretched row count; grow until it fits.
	for float64(g.Rows*tile.Size) < g.CropMaxY {
		g.Rows++
	}
	return g
}
