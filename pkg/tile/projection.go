package tile

import (
	"fmt"
	"math"
)

// PointToTile converts lat/lon to the tile containing it at the given zoom.
// Indices are truncated toward zero, not floored.
// http://wiki.openstreetmap.org/wiki/Slippy_map_tilenames
func PointToTile(p GeoPoint, zoom int) Coordinate {
	latRad := p.Lat * math.Pi / 180
	n := math.Exp2(float64(zoom))

	x := int((p.Lon + 180) / 360 * n)
	y := int((1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n)

	return NewCoordinate(zoom, x, y)
}

// PointToPixel converts lat/lon to a continuous position in the global pixel
// space of 256 pixel tiles at the given zoom.
func PointToPixel(p GeoPoint, zoom int) (float64, float64) {
	c := Size / (2 * math.Pi) * math.Exp2(float64(zoom))
	lonRad := p.Lon * math.Pi / 180
	latRad := p.Lat * math.Pi / 180

	x := c * (lonRad + math.Pi)
	y := c * (math.Pi - math.Log(math.Tan(math.Pi/4+latRad/2)))
	return x, y
}

// PixelToPoint is the inverse of PointToPixel.
func PixelToPoint(x, y float64, zoom int) GeoPoint {
	c := Size / (2 * math.Pi) * math.Exp2(float64(zoom))
	lon := (x/c - math.Pi) * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(math.Pi-y/c)) - math.Pi/2) * 180 / math.Pi
	return GeoPoint{Lat: lat, Lon: lon}
}

// TileOrigin returns the global pixel position of a tile's top-left corner.
func TileOrigin(c Coordinate) (float64, float64) {
	return float64(c.X) * Size, float64(c.Y) * Size
}

// TileCenter returns the geographic position of the centre of a tile.
func TileCenter(c Coordinate) GeoPoint {
	x, y := TileOrigin(c)
	return PixelToPoint(x+Size/2, y+Size/2, int(c.Z))
}

// MMToPixels converts a physical length to pixels, truncating.
func MMToPixels(mm float64, dpi int) int {
	return int(mm / 25.4 * float64(dpi))
}

// FormatDMS renders a point as degrees, minutes and seconds, e.g. 48°8'52.3"N.
func FormatDMS(p GeoPoint) (string, string) {
	lat := dms(p.Lat, "N", "S")
	lon := dms(p.Lon, "E", "W")
	return lat, lon
}

func dms(deg float64, pos, neg string) string {
	hemi := pos
	if deg < 0 {
		hemi = neg
	}
	deg = math.Abs(deg)
	d := math.Trunc(deg)
	md := (deg - d) * 60
	m := math.Trunc(md)
	s := (md - m) * 60
	return fmt.Sprintf("%d°%d'%.1f\"%s", int(d), int(m), s, hemi)
}
