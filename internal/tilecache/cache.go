// Package tilecache stores raw tile bytes keyed by provider and coordinate.
package tilecache

import (
	"errors"

	"github.com/kiesman99/posterize/pkg/tile"
)

// ErrMiss is returned by Get when a coordinate is not cached.
var ErrMiss = errors.New("tile not cached")

// Store is a key/value store for tile bytes. A coordinate from a given
// provider always maps to the same bytes, so Put is idempotent and
// implementations need no cross-key locking.
type Store interface {
	Has(c tile.Coordinate) bool
	Get(c tile.Coordinate) ([]byte, error)
	Put(c tile.Coordinate, data []byte) error
}

// Nop is a Store that never holds anything.
type Nop struct{}

func (Nop) Has(tile.Coordinate) bool            { return false }
func (Nop) Get(tile.Coordinate) ([]byte, error) { return nil, ErrMiss }
func (Nop) Put(tile.Coordinate, []byte) error   { return nil }
