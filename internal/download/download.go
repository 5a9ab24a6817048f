// Package download fills a planned tile grid from the cache and the tile
// provider, recording tiles that could not be obtained as holes.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/kiesman99/posterize/internal/grid"
	"github.com/kiesman99/posterize/internal/tilecache"
	"github.com/kiesman99/posterize/pkg/tile"
)

// Source tells where a tile's bytes came from.
type Source int

const (
	SourceNone Source = iota
	SourceCache
	SourceNetwork
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceNetwork:
		return "network"
	default:
		return "none"
	}
}

// Fetcher downloads the bytes behind a tile URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Outcome is the result for one grid position. Err is set for holes.
type Outcome struct {
	Coord  tile.Coordinate
	Row    int
	Col    int
	URL    string
	Data   []byte
	Source Source
	Err    error
}

// Hole reports whether the position has no usable bytes.
func (o Outcome) Hole() bool {
	return o.Err != nil || len(o.Data) == 0
}

// Downloader fills grids for a single provider.
type Downloader struct {
	Fetcher  Fetcher
	Store    tilecache.Store
	Provider tile.Provider
	UseCache bool
	Logger   *slog.Logger

	// Check, if set, vets fetched bytes before they are cached. Rejected
	// bytes become a hole and are not stored.
	Check func(data []byte) error

	// Progress, if set, is called after every resolved tile. It may be called
	// from several goroutines at once.
	Progress func(done, total int)
}

// Fill resolves every tile of g. Rows are processed in order; the tiles of a
// row are fetched concurrently and the whole row is joined before the next
// one starts, so at most g.Cols requests are in flight. Fill never fails on
// a per-tile error: the returned report lists the holes. Only cancellation
// of ctx stops it early, in which case unresolved tiles are holes carrying
// ctx.Err().
func (d *Downloader) Fill(ctx context.Context, g grid.Grid) *Report {
	logger := d.logger()
	store := d.Store
	if store == nil {
		store = tilecache.Nop{}
	}

	outcomes := make([]Outcome, g.Len())
	var done atomic.Int64

	for row := 0; row < g.Rows; row++ {
		eg := new(errgroup.Group)
		eg.SetLimit(g.Cols)

		for col, c := range g.Row(row) {
			o := &outcomes[row*g.Cols+col]
			*o = Outcome{Coord: c, Row: row, Col: col, URL: d.Provider.TileURL(c)}

			eg.Go(func() error {
				d.resolve(ctx, store, o)
				if o.Hole() {
					logger.Warn("tile hole", "coord", fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y), "error", o.Err)
				}
				if d.Progress != nil {
					d.Progress(int(done.Add(1)), len(outcomes))
				}
				return nil
			})
		}
		eg.Wait()
	}

	r := newReport(outcomes)
	logger.Info("grid filled",
		"tiles", len(outcomes), "network", r.Fetched, "cache", r.CacheHits, "holes", len(r.Holes()))
	return r
}

func (d *Downloader) resolve(ctx context.Context, store tilecache.Store, o *Outcome) {
	if err := ctx.Err(); err != nil {
		o.Err = err
		return
	}

	if d.UseCache && store.Has(o.Coord) {
		data, err := store.Get(o.Coord)
		if err == nil {
			o.Data, o.Source = data, SourceCache
			return
		}
		if !errors.Is(err, tilecache.ErrMiss) {
			o.Err = err
			return
		}
	}

	data, err := d.Fetcher.Fetch(ctx, o.URL)
	if err != nil {
		o.Err = err
		return
	}
	if len(data) == 0 {
		o.Err = fmt.Errorf("%w: empty response from %s", tile.ErrTileDecode, o.URL)
		return
	}
	if d.Check != nil {
		if err := d.Check(data); err != nil {
			o.Err = err
			return
		}
	}
	o.Data, o.Source = data, SourceNetwork

	if d.UseCache {
		if err := store.Put(o.Coord, data); err != nil {
			// The bytes are still good for this run.
			d.logger().Warn("cache write failed", "url", o.URL, "error", err)
		}
	}
}

func (d *Downloader) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
