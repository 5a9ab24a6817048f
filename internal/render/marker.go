package render

import (
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	xdraw "golang.org/x/image/draw"

	"github.com/kiesman99/posterize/internal/grid"
	"github.com/kiesman99/posterize/pkg/tile"
)

// MarkerKind selects how a marker is drawn.
type MarkerKind string

const (
	MarkerNone   MarkerKind = "none"
	MarkerCircle MarkerKind = "circle"
	MarkerIcon   MarkerKind = "icon"
)

var (
	circleFill    = color.RGBA{R: 128, G: 0, B: 0, A: 128}
	circleOutline = color.RGBA{R: 255, G: 0, B: 0, A: 255}
)

// MarkerSpec describes a marker in raw canvas pixels.
type MarkerSpec struct {
	Kind MarkerKind
	// Size is the circle diameter or the icon width.
	Size    int
	Opacity float64
	// Icon replaces the built-in pin. Its aspect ratio is kept.
	Icon image.Image
}

// MarkerSize returns the marker size in raw canvas pixels such that, after the
// crop of cropPx is resized to outputPx, the marker measures sizeMM on paper.
func MarkerSize(sizeMM float64, dpi, cropPx, outputPx int) int {
	px := tile.MMToPixels(sizeMM, dpi)
	if cropPx <= 0 || outputPx <= 0 {
		return px
	}
	return int(float64(px) * float64(cropPx) / float64(outputPx))
}

// PlaceMarker draws m onto canvas at p. The canvas must be the composed grid
// g, before cropping.
func PlaceMarker(canvas *image.RGBA, p tile.GeoPoint, g grid.Grid, m MarkerSpec) {
	if m.Size <= 0 {
		return
	}
	x, y := g.Local(p)

	switch m.Kind {
	case MarkerCircle:
		dc := gg.NewContextForRGBA(canvas)
		dc.DrawCircle(x, y, float64(m.Size)/2)
		dc.SetColor(circleFill)
		dc.FillPreserve()
		dc.SetColor(circleOutline)
		dc.SetLineWidth(1)
		dc.Stroke()
	case MarkerIcon:
		icon := m.Icon
		if icon == nil {
			icon = DefaultPin()
		}
		drawPin(canvas, icon, x, y, m.Size, m.Opacity)
	}
}

// drawPin scales icon to width w and pastes it so that its bottom centre sits
// on (x, y).
func drawPin(canvas *image.RGBA, icon image.Image, x, y float64, w int, opacity float64) {
	ib := icon.Bounds()
	if ib.Empty() {
		return
	}
	h := int(float64(w) * float64(ib.Dy()) / float64(ib.Dx()))
	if h <= 0 {
		return
	}

	scaled := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), icon, ib, xdraw.Src, nil)

	opacity = math.Max(0, math.Min(1, opacity))
	mask := image.NewUniform(color.Alpha{A: uint8(math.Round(opacity * 255))})

	at := image.Pt(int(x)-w/2, int(y)-h)
	xdraw.DrawMask(canvas, scaled.Bounds().Add(at), scaled, image.Point{}, mask, image.Point{}, xdraw.Over)
}

// DefaultPin renders the built-in drop pin: a red head with a white dot and a
// point at the bottom centre.
func DefaultPin() image.Image {
	const w, h = 64, 96

	dc := gg.NewContext(w, h)
	dc.SetRGB255(200, 30, 30)
	dc.DrawCircle(w/2, 32, 28)
	dc.Fill()
	dc.MoveTo(7, 44)
	dc.LineTo(w-7, 44)
	dc.LineTo(w/2, h)
	dc.ClosePath()
	dc.Fill()

	dc.SetRGB(1, 1, 1)
	dc.DrawCircle(w/2, 32, 10)
	dc.Fill()
	return dc.Image()
}
