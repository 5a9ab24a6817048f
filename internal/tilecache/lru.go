package tilecache

import (
	"fmt"
	"time"

	"github.com/karlseguin/ccache/v3"

	"github.com/kiesman99/posterize/pkg/tile"
)

// LRU keeps recently used tiles in memory in front of another Store. Tile
// bytes never change for a coordinate, so entries only leave by eviction.
type LRU struct {
	next  Store
	cache *ccache.Cache[[]byte]
	ttl   time.Duration
}

// NewLRU wraps next with an in-memory cache holding up to maxItems tiles.
func NewLRU(next Store, maxItems int64) *LRU {
	return &LRU{
		next:  next,
		cache: ccache.New(ccache.Configure[[]byte]().MaxSize(maxItems).ItemsToPrune(uint32(max(maxItems/10, 1)))),
		ttl:   24 * time.Hour,
	}
}

func key(c tile.Coordinate) string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}

func (l *LRU) Has(c tile.Coordinate) bool {
	if item := l.cache.Get(key(c)); item != nil && !item.Expired() {
		return true
	}
	return l.next.Has(c)
}

func (l *LRU) Get(c tile.Coordinate) ([]byte, error) {
	k := key(c)
	if item := l.cache.Get(k); item != nil && !item.Expired() {
		return item.Value(), nil
	}
	data, err := l.next.Get(c)
	if err != nil {
		return nil, err
	}
	l.cache.Set(k, data, l.ttl)
	return data, nil
}

func (l *LRU) Put(c tile.Coordinate, data []byte) error {
	l.cache.Set(key(c), data, l.ttl)
	return l.next.Put(c, data)
}

// Len reports the number of tiles held in memory.
func (l *LRU) Len() int {
	return l.cache.ItemCount()
}

// Close stops the cache's background worker.
func (l *LRU) Close() {
	l.cache.Stop()
}
