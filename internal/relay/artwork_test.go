package relay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArtworkCacheServesHitWithoutRefetch(t *testing.T) {
	c := NewArtworkCache()
	calls := 0
	fetch := func(ctx context.Context) ([]byte, error) {
		calls++
		return []byte("jpeg-bytes"), nil
	}

	data, err := c.Fetch(context.Background(), "dev-1", 300, 300, 0xAAAA, fetch)
	require.NoError(t, err)
	require.Equal(t, []byte("jpeg-bytes"), data)
	require.Equal(t, 1, calls)

	data, err = c.Fetch(context.Background(), "dev-1", 300, 300, 0xAAAA, fetch)
	require.NoError(t, err)
	require.Equal(t, []byte("jpeg-bytes"), data)
	require.Equal(t, 1, calls, "second fetch with the same hash must be served from cache")
}

func TestArtworkCacheRefetchesOnContentHashChange(t *testing.T) {
	c := NewArtworkCache()
	calls := 0
	fetch := func(ctx context.Context) ([]byte, error) {
		calls++
		return []byte{byte(calls)}, nil
	}

	_, err := c.Fetch(context.Background(), "dev-1", 300, 300, 0x1111, fetch)
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	data, err := c.Fetch(context.Background(), "dev-1", 300, 300, 0x2222, fetch)
	require.NoError(t, err)
	require.Equal(t, 2, calls, "a changed content hash must never serve the stale entry")
	require.Equal(t, []byte{2}, data)
}

// TestArtworkCacheWithoutIdentifierUsesSyntheticKey covers the §8
// boundary behavior: artwork requested for a device with no stable
// identifier still gets cached, under a shared synthetic key rather
// than bypassing the cache.
func TestArtworkCacheWithoutIdentifierUsesSyntheticKey(t *testing.T) {
	c := NewArtworkCache()
	calls := 0
	fetch := func(ctx context.Context) ([]byte, error) {
		calls++
		return []byte("anon-artwork"), nil
	}

	_, err := c.Fetch(context.Background(), "", 300, 300, 0x5555, fetch)
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	data, err := c.Fetch(context.Background(), "", 300, 300, 0x5555, fetch)
	require.NoError(t, err)
	require.Equal(t, 1, calls, "a second lookup under the synthetic key must hit")
	require.Equal(t, []byte("anon-artwork"), data)

	c.mu.Lock()
	_, ok := c.cache.Get(artworkKey{identifier: artworkSyntheticIdentifier, width: 300, height: 300})
	c.mu.Unlock()
	require.True(t, ok, "the synthetic key must be what the entry is actually stored under")
}

func TestArtworkCacheEvictsLeastRecentlyUsedPastCapacity(t *testing.T) {
	c := NewArtworkCache()
	fetch := func(b byte) func(ctx context.Context) ([]byte, error) {
		return func(ctx context.Context) ([]byte, error) { return []byte{b}, nil }
	}

	for i := 0; i < artworkCacheCapacity; i++ {
		_, err := c.Fetch(context.Background(), "dev", i, i, 1, fetch(byte(i)))
		require.NoError(t, err)
	}
	// One more distinct key pushes the cache past capacity four,
	// evicting the least recently used entry (identifier/width/height 0).
	_, err := c.Fetch(context.Background(), "dev", artworkCacheCapacity, artworkCacheCapacity, 1, fetch(99))
	require.NoError(t, err)

	calls := 0
	_, err = c.Fetch(context.Background(), "dev", 0, 0, 1, func(ctx context.Context) ([]byte, error) {
		calls++
		return []byte{0}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls, "the evicted entry must be refetched rather than served stale")
}

func TestCachingMetadataDelegatesArtworkThroughTheSharedCache(t *testing.T) {
	inner := &fakeMetadata{state: PlayingStateSnapshot{Hash: 0x9}, artwork: []byte("cover")}
	m := CachingMetadata{Identifier: "dev-cache-test", Inner: inner}

	data, err := m.Artwork(context.Background(), 100, 100)
	require.NoError(t, err)
	require.Equal(t, []byte("cover"), data)
	require.Equal(t, 1, inner.artworkCalls)

	_, err = m.Artwork(context.Background(), 100, 100)
	require.NoError(t, err)
	require.Equal(t, 1, inner.artworkCalls, "unchanged hash must be served from cache, not refetched")

	inner.state.Hash = 0xA
	_, err = m.Artwork(context.Background(), 100, 100)
	require.NoError(t, err)
	require.Equal(t, 2, inner.artworkCalls, "a changed hash must bypass the cache")
}

type fakeMetadata struct {
	state        PlayingStateSnapshot
	artwork      []byte
	artworkCalls int
}

func (f *fakeMetadata) PlayingState(ctx context.Context) (PlayingStateSnapshot, error) {
	return f.state, nil
}

func (f *fakeMetadata) Artwork(ctx context.Context, width, height int) ([]byte, error) {
	f.artworkCalls++
	return f.artwork, nil
}

var _ Metadata = (*fakeMetadata)(nil)
