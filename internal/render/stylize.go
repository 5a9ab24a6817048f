package render

import (
	"image"
	"image/color"
	"math"
)

// DefaultContrastScale is the boost applied when a style does not set one.
const DefaultContrastScale = 12.0

// Style controls how a stitched map is recoloured.
type Style struct {
	Foreground    color.Color
	Background    color.Color
	BoostContrast bool
	ContrastScale float64
}

// ContrastBoost converts img to grayscale and pushes every intensity away
// from white: out = clamp(255 - (255-in)*scale, 0, 255). A scale of 1 is a
// plain grayscale conversion.
func ContrastBoost(img image.Image, scale float64) *image.Gray {
	var lut [256]uint8
	for i := range lut {
		v := 255 - (255-float64(i))*scale
		lut[i] = uint8(math.Round(math.Max(0, math.Min(255, v))))
	}
	return grayscale(img, &lut)
}

// Colorize maps black to dark and white to light, interpolating each channel
// linearly in between.
func Colorize(img *image.Gray, dark, light color.Color) *image.RGBA {
	d := color.NRGBAModel.Convert(dark).(color.NRGBA)
	l := color.NRGBAModel.Convert(light).(color.NRGBA)

	// rounded so both ramp directions are symmetric
	lerp := func(a, b uint8, i int) uint8 {
		return uint8((int(a)*(255-i) + int(b)*i + 127) / 255)
	}
	var lut [256]color.RGBA
	for i := range lut {
		c := color.NRGBA{
			R: lerp(d.R, l.R, i),
			G: lerp(d.G, l.G, i),
			B: lerp(d.B, l.B, i),
			A: lerp(d.A, l.A, i),
		}
		lut[i] = color.RGBAModel.Convert(c).(color.RGBA)
	}

	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		src := img.Pix[img.PixOffset(b.Min.X, y):]
		dst := out.Pix[out.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			c := lut[src[x]]
			dst[4*x], dst[4*x+1], dst[4*x+2], dst[4*x+3] = c.R, c.G, c.B, c.A
		}
	}
	return out
}

// Stylize applies the optional contrast boost and then colorizes.
func Stylize(img image.Image, s Style) *image.RGBA {
	scale := 1.0
	if s.BoostContrast {
		scale = s.ContrastScale
		if scale <= 0 {
			scale = DefaultContrastScale
		}
	}
	fg, bg := s.Foreground, s.Background
	if fg == nil {
		fg = color.White
	}
	if bg == nil {
		bg = color.Black
	}
	return Colorize(ContrastBoost(img, scale), bg, fg)
}

func grayscale(img image.Image, lut *[256]uint8) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(b)

	if rgba, ok := img.(*image.RGBA); ok {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			src := rgba.Pix[rgba.PixOffset(b.Min.X, y):]
			dst := out.Pix[out.PixOffset(b.Min.X, y):]
			for x := 0; x < b.Dx(); x++ {
				r := uint32(src[4*x]) * 0x101
				g := uint32(src[4*x+1]) * 0x101
				bl := uint32(src[4*x+2]) * 0x101
				// Same weights as color.GrayModel.
				dst[x] = lut[uint8((19595*r+38470*g+7471*bl+1<<15)>>24)]
			}
		}
		return out
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			out.Pix[out.PixOffset(x, y)] = lut[gray.Y]
		}
	}
	return out
}
