package tile

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidBoundingBox marks a box outside Mercator range or crossing the antimeridian.
	ErrInvalidBoundingBox = errors.New("invalid bounding box")
	// ErrUnsupportedZoom marks a zoom outside the provider's range.
	ErrUnsupportedZoom = errors.New("unsupported zoom level")
	// ErrTileFetchExhausted is returned once every fetch attempt for a tile failed.
	ErrTileFetchExhausted = errors.New("tile fetch attempts exhausted")
	// ErrTileDecode marks tile bytes that are not a usable image.
	ErrTileDecode = errors.New("tile decode error")
	// ErrCacheIO wraps disk cache read and write failures.
	ErrCacheIO = errors.New("tile cache i/o error")
	// ErrCanvasTooLarge is returned when the raw canvas exceeds the pixel limit.
	ErrCanvasTooLarge = errors.New("requested canvas too large")
)

// FetchError describes a tile whose download attempts were all used up.
type FetchError struct {
	URL        string
	Attempts   int
	StatusCode int // last HTTP status, 0 if no response was received
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %d attempts failed: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrTileFetchExhausted, e.Err}
}

// CacheError represents a failed cache operation on a path.
type CacheError struct {
	Op   string
	Path string
	Err  error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *CacheError) Unwrap() []error {
	return []error{ErrCacheIO, e.Err}
}

// TileError summarises the tiles of a grid that ended up as holes
type TileError struct {
	Message         string
	FailedTiles     []FailedTile
	SuccessfulTiles int
	TotalTiles      int
}

func (e *TileError) Error() string {
	return e.Message
}

// FailedTile represents a single hole in the grid
type FailedTile struct {
	Coord Coordinate
	URL   string
	Error string
}
