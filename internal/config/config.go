// Package config holds the typed configuration of a poster render and loads
// it from viper.
package config

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/spf13/viper"

	"github.com/kiesman99/posterize/pkg/tile"
)

// DefaultMaxPixels bounds the raw stitched canvas.
const DefaultMaxPixels = 933_120_000

// DPI limits accepted for the printed output.
const (
	MinDPI = 50
	MaxDPI = 600
)

// MarkerPolicy decides whether a render gets a marker.
type MarkerPolicy string

const (
	// MarkerAlways draws at the configured marker, or at the box centre when none is set.
	MarkerAlways MarkerPolicy = "always"
	// MarkerNever hides the marker even when one is configured.
	MarkerNever MarkerPolicy = "never"
	// MarkerIfPresent draws only a configured marker.
	MarkerIfPresent MarkerPolicy = "if-present"
)

// Location is the area to render.
type Location struct {
	Name         string         `mapstructure:"name" json:"name,omitempty"`
	TopLeft      tile.GeoPoint  `mapstructure:"top_left" json:"top_left"`
	BottomRight  tile.GeoPoint  `mapstructure:"bottom_right" json:"bottom_right"`
	Marker       *tile.GeoPoint `mapstructure:"marker" json:"marker,omitempty"`
	MarkerPolicy MarkerPolicy   `mapstructure:"marker_policy" json:"marker_policy,omitempty"`
	Zoom         int            `mapstructure:"zoom" json:"zoom"`
}

// BoundingBox returns the box spanned by the location corners.
func (l Location) BoundingBox() tile.BoundingBox {
	return tile.BoundingBox{TopLeft: l.TopLeft, BottomRight: l.BottomRight}
}

// MarkerPoint returns where the marker goes under the location's policy, and
// false when no marker should be drawn.
func (l Location) MarkerPoint() (tile.GeoPoint, bool) {
	switch l.MarkerPolicy {
	case MarkerNever:
		return tile.GeoPoint{}, false
	case MarkerAlways:
		if l.Marker != nil {
			return *l.Marker, true
		}
		return l.BoundingBox().Center(), true
	default:
		if l.Marker != nil {
			return *l.Marker, true
		}
		return tile.GeoPoint{}, false
	}
}

// Marker configures the marker look.
type Marker struct {
	Kind    string  `mapstructure:"kind" json:"kind"`
	SizeMM  float64 `mapstructure:"size_mm" json:"size_mm"`
	Opacity float64 `mapstructure:"opacity" json:"opacity"`
	// Icon is a PNG file used instead of the built-in pin.
	Icon string `mapstructure:"icon" json:"icon,omitempty"`
}

// Style is the look of the map.
type Style struct {
	Provider      string  `mapstructure:"provider" json:"provider"`
	Foreground    string  `mapstructure:"foreground" json:"foreground"`
	Background    string  `mapstructure:"background" json:"background"`
	BoostContrast bool    `mapstructure:"boost_contrast" json:"boost_contrast"`
	ContrastScale float64 `mapstructure:"contrast_scale" json:"contrast_scale"`
	Marker        Marker  `mapstructure:"marker" json:"marker"`
}

// SizeMM is a physical width and height.
type SizeMM struct {
	Width  float64 `mapstructure:"width" json:"width"`
	Height float64 `mapstructure:"height" json:"height"`
}

// Canvas is the printed sheet the map is placed on.
type Canvas struct {
	Size   SizeMM `mapstructure:"size_mm" json:"size_mm"`
	Border SizeMM `mapstructure:"border_mm" json:"border_mm"`
	DPI    int    `mapstructure:"dpi" json:"dpi"`
}

// ContentSizeMM is the sheet minus the border on every side.
func (c Canvas) ContentSizeMM() SizeMM {
	return SizeMM{
		Width:  c.Size.Width - 2*c.Border.Width,
		Height: c.Size.Height - 2*c.Border.Height,
	}
}

// OutputSize is the map size in pixels at the canvas DPI.
func (c Canvas) OutputSize() image.Point {
	content := c.ContentSizeMM()
	return image.Pt(tile.MMToPixels(content.Width, c.DPI), tile.MMToPixels(content.Height, c.DPI))
}

// Aspect returns height over width of the output.
func (c Canvas) Aspect() float64 {
	size := c.OutputSize()
	if size.X == 0 {
		return 0
	}
	return float64(size.Y) / float64(size.X)
}

// Cache configures the tile cache.
type Cache struct {
	Dir     string `mapstructure:"dir" json:"dir"`
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	// MemoryItems sizes the in-memory layer of long running servers.
	MemoryItems int64 `mapstructure:"memory_items" json:"memory_items"`
}

// Fetch configures tile downloads.
type Fetch struct {
	Attempts  int           `mapstructure:"attempts" json:"attempts"`
	Timeout   time.Duration `mapstructure:"timeout" json:"timeout"`
	Backoff   time.Duration `mapstructure:"backoff" json:"backoff"`
	UserAgent string        `mapstructure:"user_agent" json:"user_agent"`
}

// Log configures the application logger.
type Log struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// Render is the complete configuration of one poster render.
type Render struct {
	Location  Location                 `mapstructure:"location" json:"location"`
	Style     Style                    `mapstructure:"style" json:"style"`
	Canvas    Canvas                   `mapstructure:"canvas" json:"canvas"`
	Cache     Cache                    `mapstructure:"cache" json:"-"`
	Fetch     Fetch                    `mapstructure:"fetch" json:"-"`
	Log       Log                      `mapstructure:"log" json:"-"`
	Providers map[string]tile.Provider `mapstructure:"providers" json:"-"`
	MaxPixels int64                    `mapstructure:"max_pixels" json:"-"`
}

// Defaults returns a configuration with every optional value set: a 22.5x30cm
// sheet with a 2cm border at 300 DPI, white on dark grey toner tiles with
// boosted contrast, no marker and the disk cache in ./cache. The location is
// left empty.
func Defaults() Render {
	return Render{
		Location: Location{MarkerPolicy: MarkerIfPresent},
		Style: Style{
			Provider:      tile.Toner.Name,
			Foreground:    "#ffffff",
			Background:    "#3c3c3c",
			BoostContrast: true,
			ContrastScale: 12,
			Marker:        Marker{Kind: "none", SizeMM: 8, Opacity: 1},
		},
		Canvas: Canvas{
			Size:   SizeMM{Width: 225, Height: 300},
			Border: SizeMM{Width: 20, Height: 20},
			DPI:    300,
		},
		Cache: Cache{Dir: "cache", Enabled: true, MemoryItems: 1000},
		Fetch: Fetch{
			Attempts:  tile.DefaultMaxAttempts,
			Timeout:   tile.DefaultTimeout,
			UserAgent: tile.DefaultUserAgent,
		},
		Log:       Log{Level: "info", Format: "text"},
		MaxPixels: DefaultMaxPixels,
	}
}

// Decode decodes v on top of Defaults without validating. Servers use it for
// the base that requests are merged into.
func Decode(v *viper.Viper) (Render, error) {
	cfg := Defaults()
	if err := v.Unmarshal(&cfg); err != nil {
		return Render{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Load decodes v on top of Defaults and validates the result.
func Load(v *viper.Viper) (Render, error) {
	cfg, err := Decode(v)
	if err != nil {
		return Render{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Render{}, err
	}
	return cfg, nil
}

// Provider resolves the style's provider among the configured and built-in ones.
func (r Render) Provider() (tile.Provider, error) {
	name := r.Style.Provider
	if p, ok := r.Providers[name]; ok {
		if p.Name == "" {
			p.Name = name
		}
		return p, p.Validate()
	}
	if p, ok := tile.Providers[name]; ok {
		return p, nil
	}
	return tile.Provider{}, fmt.Errorf("unknown tile provider %q", name)
}

// Validate reports every problem with the configuration.
func (r Render) Validate() error {
	var errs []error

	provider, err := r.Provider()
	if err != nil {
		errs = append(errs, err)
	} else if err := provider.CheckZoom(r.Location.Zoom); err != nil {
		errs = append(errs, err)
	}
	if err := r.Location.BoundingBox().Validate(); err != nil {
		errs = append(errs, err)
	}
	if m := r.Location.Marker; m != nil && !m.Valid() {
		errs = append(errs, fmt.Errorf("marker %s outside web mercator range", m))
	}
	switch r.Location.MarkerPolicy {
	case MarkerAlways, MarkerNever, MarkerIfPresent:
	default:
		errs = append(errs, fmt.Errorf("unknown marker policy %q", r.Location.MarkerPolicy))
	}

	if _, err := ParseColor(r.Style.Foreground); err != nil {
		errs = append(errs, fmt.Errorf("foreground: %w", err))
	}
	if _, err := ParseColor(r.Style.Background); err != nil {
		errs = append(errs, fmt.Errorf("background: %w", err))
	}
	if r.Style.ContrastScale < 0 {
		errs = append(errs, fmt.Errorf("contrast scale must not be negative"))
	}
	switch r.Style.Marker.Kind {
	case "none", "circle", "icon":
	default:
		errs = append(errs, fmt.Errorf("unknown marker kind %q", r.Style.Marker.Kind))
	}
	if r.Style.Marker.Opacity < 0 || r.Style.Marker.Opacity > 1 {
		errs = append(errs, fmt.Errorf("marker opacity %.2f not in 0..1", r.Style.Marker.Opacity))
	}
	if r.Style.Marker.SizeMM < 0 {
		errs = append(errs, fmt.Errorf("marker size must not be negative"))
	}

	if r.Canvas.DPI < MinDPI || r.Canvas.DPI > MaxDPI {
		errs = append(errs, fmt.Errorf("dpi %d not in %d..%d", r.Canvas.DPI, MinDPI, MaxDPI))
	}
	if size := r.Canvas.OutputSize(); size.X <= 0 || size.Y <= 0 {
		errs = append(errs, fmt.Errorf("canvas content %vmm is empty", r.Canvas.ContentSizeMM()))
	}

	if r.Fetch.Attempts < 1 {
		errs = append(errs, fmt.Errorf("fetch attempts must be at least 1"))
	}
	if r.MaxPixels <= 0 {
		errs = append(errs, fmt.Errorf("max pixels must be positive"))
	}
	return errors.Join(errs...)
}
