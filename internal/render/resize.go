package render

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

// Lanczos3 is a windowed sinc filter with a support of three pixels.
var Lanczos3 = &xdraw.Kernel{
	Support: 3,
	At: func(t float64) float64 {
		if t < 0 {
			t = -t
		}
		if t < 1e-9 {
			return 1
		}
		if t >= 3 {
			return 0
		}
		x := math.Pi * t
		return 3 * math.Sin(x) * math.Sin(x/3) / (x * x)
	},
}

// Resize scales img to size with Lanczos3.
func Resize(img image.Image, size image.Point) *image.RGBA {
	out := image.NewRGBA(image.Rectangle{Max: size})
	Lanczos3.Scale(out, out.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return out
}
