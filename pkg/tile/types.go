package tile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb/maptile"
)

// Size is the edge length of a slippy map tile in pixels.
const Size = 256

// MaxLatitude is the northern limit of the Web Mercator projection.
const MaxLatitude = 85.0511287798

// Coordinate addresses one tile by zoom, column and row.
type Coordinate = maptile.Tile

// NewCoordinate builds a Coordinate from plain ints.
func NewCoordinate(zoom, x, y int) Coordinate {
	return maptile.New(uint32(x), uint32(y), maptile.Zoom(zoom))
}

// GeoPoint is a WGS84 position in degrees
type GeoPoint struct {
	Lat float64 `mapstructure:"lat" json:"lat"`
	Lon float64 `mapstructure:"lon" json:"lon"`
}

// Valid reports whether the point can be projected with Web Mercator.
func (p GeoPoint) Valid() bool {
	return p.Lat >= -MaxLatitude && p.Lat <= MaxLatitude && p.Lon >= -180 && p.Lon <= 180
}

func (p GeoPoint) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", p.Lat, p.Lon)
}

// BoundingBox represents geographic bounds by their north-west and south-east corners
type BoundingBox struct {
	TopLeft     GeoPoint `mapstructure:"top_left" json:"top_left"`
	BottomRight GeoPoint `mapstructure:"bottom_right" json:"bottom_right"`
}

// Center returns the midpoint of the box in degrees.
func (b BoundingBox) Center() GeoPoint {
	return GeoPoint{
		Lat: (b.TopLeft.Lat + b.BottomRight.Lat) / 2,
		Lon: (b.TopLeft.Lon + b.BottomRight.Lon) / 2,
	}
}

// Validate rejects boxes the planner cannot handle. A box crossing the
// antimeridian has its west edge east of its east edge and fails here.
func (b BoundingBox) Validate() error {
	if !b.TopLeft.Valid() {
		return fmt.Errorf("%w: top-left %s outside web mercator range", ErrInvalidBoundingBox, b.TopLeft)
	}
	if !b.BottomRight.Valid() {
		return fmt.Errorf("%w: bottom-right %s outside web mercator range", ErrInvalidBoundingBox, b.BottomRight)
	}
	if b.TopLeft.Lat <= b.BottomRight.Lat {
		return fmt.Errorf("%w: top-left latitude %.6f must be north of bottom-right latitude %.6f",
			ErrInvalidBoundingBox, b.TopLeft.Lat, b.BottomRight.Lat)
	}
	if b.TopLeft.Lon >= b.BottomRight.Lon {
		return fmt.Errorf("%w: top-left longitude %.6f must be west of bottom-right longitude %.6f",
			ErrInvalidBoundingBox, b.TopLeft.Lon, b.BottomRight.Lon)
	}
	return nil
}

// ParseBoundingBox parses "top-lat,left-lon,bottom-lat,right-lon".
func ParseBoundingBox(s string) (BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BoundingBox{}, fmt.Errorf("bbox must be in format 'top-lat,left-lon,bottom-lat,right-lon'")
	}
	var v [4]float64
	names := [4]string{"top-lat", "left-lon", "bottom-lat", "right-lon"}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BoundingBox{}, fmt.Errorf("invalid %s in bbox: %w", names[i], err)
		}
		v[i] = f
	}
	return BoundingBox{
		TopLeft:     GeoPoint{Lat: v[0], Lon: v[1]},
		BottomRight: GeoPoint{Lat: v[2], Lon: v[3]},
	}, nil
}

// Provider describes a raster tile source
type Provider struct {
	Name        string `mapstructure:"name" json:"name"`
	URL         string `mapstructure:"url" json:"url"`
	MinZoom     int    `mapstructure:"min_zoom" json:"min_zoom"`
	MaxZoom     int    `mapstructure:"max_zoom" json:"max_zoom"`
	Attribution string `mapstructure:"attribution" json:"attribution,omitempty"`
}

// Built-in providers. MinZoom/MaxZoom follow the range the poster layout was tuned for.
var (
	Toner = Provider{
		Name:        "toner",
		URL:         "https://tiles.stadiamaps.com/tiles/stamen_toner_background/{z}/{x}/{y}.png",
		MinZoom:     13,
		MaxZoom:     18,
		Attribution: "Map tiles by Stamen Design, under CC BY 4.0. Data by OpenStreetMap, under ODbL.",
	}
	OSM = Provider{
		Name:        "osm",
		URL:         "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
		MinZoom:     13,
		MaxZoom:     18,
		Attribution: "© OpenStreetMap contributors",
	}
)

// Providers lists the built-in providers by name.
var Providers = map[string]Provider{
	Toner.Name: Toner,
	OSM.Name:   OSM,
}

// Validate checks the provider name and template.
func (p Provider) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("provider name is required")
	}
	if strings.ContainsAny(p.Name, `/\`) || p.Name == "." || p.Name == ".." {
		return fmt.Errorf("provider name %q must be a single path element", p.Name)
	}
	if !strings.Contains(p.URL, "{z}") || !strings.Contains(p.URL, "{x}") || !strings.Contains(p.URL, "{y}") {
		return fmt.Errorf("provider url must contain {z}, {x}, and {y} placeholders")
	}
	if p.MinZoom < 0 || p.MaxZoom < p.MinZoom {
		return fmt.Errorf("provider zoom range %d..%d is invalid", p.MinZoom, p.MaxZoom)
	}
	return nil
}

// CheckZoom returns ErrUnsupportedZoom when zoom is outside the provider range.
func (p Provider) CheckZoom(zoom int) error {
	if zoom < p.MinZoom || zoom > p.MaxZoom {
		return fmt.Errorf("%w: %d not in %d..%d for provider %s", ErrUnsupportedZoom, zoom, p.MinZoom, p.MaxZoom, p.Name)
	}
	return nil
}

// TileURL expands the provider template for one coordinate.
func (p Provider) TileURL(c Coordinate) string {
	return BuildURL(p.URL, int(c.Z), c.X, c.Y)
}

// BuildURL replaces URL template tokens
func BuildURL(template string, zoom int, x, y uint32) string {
	url := template
	url = strings.ReplaceAll(url, "{z}", strconv.Itoa(zoom))
	url = strings.ReplaceAll(url, "{x}", strconv.FormatUint(uint64(x), 10))
	url = strings.ReplaceAll(url, "{y}", strconv.FormatUint(uint64(y), 10))
	// Handle {s} for subdomains (simple implementation)
	if strings.Contains(url, "{s}") {
		subdomain := string(rune('a' + (x+y)%3))
		url = strings.ReplaceAll(url, "{s}", subdomain)
	}
	return url
}
