package dashboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTileCache_PutGet(t *testing.T) {
	c := NewTileCache(10, time.Hour)

	assert.Nil(t, c.Get(6, 30, 29))

	c.Put(6, 30, 29, []byte("tile-a"))
	assert.Equal(t, []byte("tile-a"), c.Get(6, 30, 29))

	// Overwrite in place.
	c.Put(6, 30, 29, []byte("tile-b"))
	assert.Equal(t, []byte("tile-b"), c.Get(6, 30, 29))
}

func TestTileCache_TTLExpiry(t *testing.T) {
	c := NewTileCache(10, time.Nanosecond)
	c.Put(6, 30, 29, []byte("tile"))
	time.Sleep(time.Millisecond)
	assert.Nil(t, c.Get(6, 30, 29))
}

func TestTileCache_LRUEviction(t *testing.T) {
	c := NewTileCache(2, time.Hour)
	c.Put(1, 0, 0, []byte("a"))
	c.Put(2, 0, 0, []byte("b"))

	// Touch the first entry so the second becomes oldest.
	require.NotNil(t, c.Get(1, 0, 0))

	c.Put(3, 0, 0, []byte("c"))
	assert.NotNil(t, c.Get(1, 0, 0))
	assert.Nil(t, c.Get(2, 0, 0), "least recently used entry evicted")
	assert.NotNil(t, c.Get(3, 0, 0))
}

func TestTileCache_Stats(t *testing.T) {
	c := NewTileCache(5, time.Hour)
	c.Put(6, 1, 1, []byte("x"))

	c.Get(6, 1, 1) // hit
	c.Get(6, 2, 2) // miss
	c.Get(6, 1, 1) // hit

	stats := c.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 5, stats.MaxEntries)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 1e-9)
}
