// Package render turns the tiles of a grid into a poster image: stitching,
// stylizing, marking, cropping and resizing.
package render

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/kiesman99/posterize/internal/grid"
	"github.com/kiesman99/posterize/pkg/tile"
)

// Compose pastes tiles onto a canvas of g.PixelSize() filled with bg. tiles is
// in row-major order; a nil entry is a hole and keeps the background.
func Compose(g grid.Grid, tiles []image.Image, bg color.Color) *image.RGBA {
	canvas := image.NewRGBA(image.Rectangle{Max: g.PixelSize()})
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	for i, img := range tiles {
		if img == nil || i >= g.Len() {
			continue
		}
		row, col := i/g.Cols, i%g.Cols
		at := image.Pt(col*tile.Size, row*tile.Size)
		r := image.Rectangle{Min: at, Max: at.Add(image.Pt(tile.Size, tile.Size))}
		draw.Draw(canvas, r, img, img.Bounds().Min, draw.Src)
	}
	return canvas
}
