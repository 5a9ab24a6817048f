package download

import (
	"fmt"

	"github.com/kiesman99/posterize/pkg/tile"
)

// Report describes the best-effort result of filling a grid.
type Report struct {
	Outcomes  []Outcome
	Fetched   int
	CacheHits int
}

func newReport(outcomes []Outcome) *Report {
	r := &Report{Outcomes: outcomes}
	for _, o := range outcomes {
		switch {
		case o.Hole():
		case o.Source == SourceCache:
			r.CacheHits++
		case o.Source == SourceNetwork:
			r.Fetched++
		}
	}
	return r
}

// Holes returns the positions without usable bytes.
func (r *Report) Holes() []Outcome {
	var holes []Outcome
	for _, o := range r.Outcomes {
		if o.Hole() {
			holes = append(holes, o)
		}
	}
	return holes
}

// MarkHole turns a position into a hole after the fact, e.g. when its bytes
// fail to decode.
func (r *Report) MarkHole(i int, err error) {
	o := &r.Outcomes[i]
	switch o.Source {
	case SourceCache:
		r.CacheHits--
	case SourceNetwork:
		r.Fetched--
	}
	o.Data, o.Source, o.Err = nil, SourceNone, err
}

// Err summarises the holes as a *tile.TileError, or returns nil when every
// tile is present.
func (r *Report) Err() error {
	holes := r.Holes()
	if len(holes) == 0 {
		return nil
	}

	failed := make([]tile.FailedTile, len(holes))
	for i, o := range holes {
		msg := "no data"
		if o.Err != nil {
			msg = o.Err.Error()
		}
		failed[i] = tile.FailedTile{Coord: o.Coord, URL: o.URL, Error: msg}
	}

	total := len(r.Outcomes)
	return &tile.TileError{
		Message:         fmt.Sprintf("%d/%d tiles missing", len(holes), total),
		FailedTiles:     failed,
		SuccessfulTiles: total - len(holes),
		TotalTiles:      total,
	}
}
