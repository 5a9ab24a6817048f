package render

import (
	"image"
	"image/draw"
)

// Crop copies r out of img into a new image whose origin is (0, 0). r is
// clipped to the bounds of img.
func Crop(img image.Image, r image.Rectangle) *image.RGBA {
	r = r.Intersect(img.Bounds())
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), img, r.Min, draw.Src)
	return out
}
