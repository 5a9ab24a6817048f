// Package poster runs the whole render: plan the grid, fill it, decode,
// compose, stylize, mark, crop and resize.
package poster

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/png"
	"log/slog"
	"os"
	"time"

	"github.com/kiesman99/posterize/internal/config"
	"github.com/kiesman99/posterize/internal/download"
	"github.com/kiesman99/posterize/internal/grid"
	"github.com/kiesman99/posterize/internal/render"
	"github.com/kiesman99/posterize/internal/tilecache"
	"github.com/kiesman99/posterize/pkg/tile"
)

// Background fills holes in the raw canvas before stylizing.
var Background = color.White

// Poster renders one configured map.
type Poster struct {
	cfg      config.Render
	provider tile.Provider
	grid     grid.Grid
	style    render.Style

	logger   *slog.Logger
	fetcher  download.Fetcher
	store    tilecache.Store
	progress func(done, total int)
	icon     image.Image
}

// Option customises a Poster.
type Option func(*Poster)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Poster) { p.logger = l }
}

// WithFetcher replaces the HTTP fetcher built from the fetch config.
func WithFetcher(f download.Fetcher) Option {
	return func(p *Poster) { p.fetcher = f }
}

// WithStore replaces the disk cache built from the cache config.
func WithStore(s tilecache.Store) Option {
	return func(p *Poster) { p.store = s }
}

// WithProgress reports every resolved tile.
func WithProgress(fn func(done, total int)) Option {
	return func(p *Poster) { p.progress = fn }
}

// WithIcon sets the marker icon instead of loading the configured file.
func WithIcon(img image.Image) Option {
	return func(p *Poster) { p.icon = img }
}

// Result is a finished render.
type Result struct {
	Image  *image.RGBA
	Size   image.Point
	Grid   grid.Grid
	Report *download.Report
}

// New validates cfg and plans the grid. It fails with tile.ErrCanvasTooLarge
// when either the raw canvas or the output image would exceed cfg.MaxPixels.
func New(cfg config.Render, opts ...Option) (*Poster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	provider, err := cfg.Provider()
	if err != nil {
		return nil, err
	}
	fg, _ := config.ParseColor(cfg.Style.Foreground)
	bg, _ := config.ParseColor(cfg.Style.Background)

	p := &Poster{
		cfg:      cfg,
		provider: provider,
		grid:     grid.Plan(cfg.Location.BoundingBox(), cfg.Location.Zoom, cfg.Canvas.Aspect()),
		style: render.Style{
			Foreground:    fg,
			Background:    bg,
			BoostContrast: cfg.Style.BoostContrast,
			ContrastScale: cfg.Style.ContrastScale,
		},
	}

	size := p.grid.PixelSize()
	if pixels := int64(size.X) * int64(size.Y); pixels > cfg.MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d raw pixels for %s exceeds %d",
			tile.ErrCanvasTooLarge, size.X, size.Y, p.grid, cfg.MaxPixels)
	}
	if out := cfg.Canvas.OutputSize(); int64(out.X)*int64(out.Y) > cfg.MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d output pixels at %d dpi exceeds %d",
			tile.ErrCanvasTooLarge, out.X, out.Y, cfg.Canvas.DPI, cfg.MaxPixels)
	}

	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.fetcher == nil {
		p.fetcher = tile.NewFetcher(
			tile.WithUserAgent(cfg.Fetch.UserAgent),
			tile.WithMaxAttempts(cfg.Fetch.Attempts),
			tile.WithTimeout(cfg.Fetch.Timeout),
			tile.WithBackoff(cfg.Fetch.Backoff),
		)
	}
	if p.store == nil {
		if cfg.Cache.Enabled {
			p.store = tilecache.NewDisk(cfg.Cache.Dir, provider.Name)
		} else {
			p.store = tilecache.Nop{}
		}
	}
	if p.icon == nil && cfg.Style.Marker.Kind == string(render.MarkerIcon) && cfg.Style.Marker.Icon != "" {
		if p.icon, err = loadIcon(cfg.Style.Marker.Icon); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Grid returns the planned tile grid.
func (p *Poster) Grid() grid.Grid {
	return p.grid
}

// Provider returns the tile provider in use.
func (p *Poster) Provider() tile.Provider {
	return p.provider
}

// Render produces the poster map. Missing or broken tiles do not fail the
// render; they are listed in Result.Report. Only cancellation of ctx does.
func (p *Poster) Render(ctx context.Context) (*Result, error) {
	start := time.Now()
	g := p.grid
	p.logger.Info("rendering map",
		"location", p.cfg.Location.Name, "provider", p.provider.Name, "grid", g.String(),
		"output", p.cfg.Canvas.OutputSize())

	d := &download.Downloader{
		Fetcher:  p.fetcher,
		Store:    p.store,
		Provider: p.provider,
		UseCache: p.cfg.Cache.Enabled,
		Logger:   p.logger,
		Progress: p.progress,
		Check:    tile.CheckHeader,
	}
	report := d.Fill(ctx, g)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tiles := make([]image.Image, len(report.Outcomes))
	for i, o := range report.Outcomes {
		if o.Hole() {
			continue
		}
		img, err := tile.Decode(o.Data)
		if err != nil {
			p.logger.Warn("tile hole", "url", o.URL, "error", err)
			report.MarkHole(i, err)
			continue
		}
		tiles[i] = img
	}

	canvas := render.Stylize(render.Compose(g, tiles, Background), p.style)

	crop := g.CropRect()
	out := p.cfg.Canvas.OutputSize()
	if pt, ok := p.cfg.Location.MarkerPoint(); ok {
		m := p.cfg.Style.Marker
		render.PlaceMarker(canvas, pt, g, render.MarkerSpec{
			Kind:    render.MarkerKind(m.Kind),
			Size:    render.MarkerSize(m.SizeMM, p.cfg.Canvas.DPI, crop.Dx(), out.X),
			Opacity: m.Opacity,
			Icon:    p.icon,
		})
	}

	img := render.Resize(render.Crop(canvas, crop), out)

	p.logger.Info("map rendered",
		"size", out, "holes", len(report.Holes()), "duration", time.Since(start))
	return &Result{Image: img, Size: out, Grid: g, Report: report}, nil
}

func loadIcon(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open marker icon: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode marker icon %s: %w", path, err)
	}
	return img, nil
}
