package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harmattan-labs/cng-atlas/internal/store"
	"github.com/harmattan-labs/cng-atlas/pkg/geocode"
)

func TestStoreCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	t.Cleanup(func() { st.Close() })

	cache := &storeCache{store: st, ttl: 24 * time.Hour}

	got, err := cache.Get(ctx, "deadbeef")
	require.NoError(t, err)
	assert.Nil(t, got, "miss returns nil, nil")

	require.NoError(t, cache.Put(ctx, "deadbeef", &geocode.Result{
		Latitude: 6.6018, Longitude: 3.3515,
		Source: "nominatim", Quality: "rooftop", Matched: true,
	}))

	got, err = cache.Get(ctx, "deadbeef")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Matched)
	assert.InDelta(t, 6.6018, got.Latitude, 1e-9)
	assert.Equal(t, "nominatim", got.Source)

	// Non-matches are cached too.
	require.NoError(t, cache.Put(ctx, "cafebabe", &geocode.Result{Matched: false}))
	got, err = cache.Get(ctx, "cafebabe")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Matched)
}

func TestStoreCache_TTL(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	t.Cleanup(func() { st.Close() })

	cache := &storeCache{store: st, ttl: time.Nanosecond}
	require.NoError(t, cache.Put(ctx, "deadbeef", &geocode.Result{Matched: true}))
	time.Sleep(time.Millisecond)

	got, err := cache.Get(ctx, "deadbeef")
	require.NoError(t, err)
	assert.Nil(t, got, "expired entries read as misses")
}
