package relay

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// artworkCacheCapacity matches §3's Artwork data model: a small LRU,
// capacity four, shared across every connected device.
const artworkCacheCapacity = 4

// artworkSyntheticIdentifier keys artwork fetched for a device with no
// stable identifier, so the boundary case still benefits from caching
// instead of bypassing it entirely.
const artworkSyntheticIdentifier = "unknown"

type artworkKey struct {
	identifier string
	width      int
	height     int
}

type artworkEntry struct {
	data []byte
	hash uint64
}

// ArtworkCache caches Metadata.Artwork fetches keyed by
// (identifier, width, height). A cached entry is only served when its
// stored content hash still matches the hash passed to Fetch; a
// mismatch is treated as a miss and the entry is refetched and
// replaced, so the cache never serves stale artwork once the playing
// item's content hash changes.
type ArtworkCache struct {
	mu    sync.Mutex
	cache *lru.Cache[artworkKey, artworkEntry]
}

// NewArtworkCache creates an empty cache at the fixed capacity.
func NewArtworkCache() *ArtworkCache {
	c, _ := lru.New[artworkKey, artworkEntry](artworkCacheCapacity)
	return &ArtworkCache{cache: c}
}

var (
	artworkCacheOnce   sync.Once
	sharedArtworkCache *ArtworkCache
)

// GetArtworkCache returns the process-global artwork cache, creating it
// on first use — mirrors GetMetrics's lazy singleton.
func GetArtworkCache() *ArtworkCache {
	artworkCacheOnce.Do(func() {
		sharedArtworkCache = NewArtworkCache()
	})
	return sharedArtworkCache
}

// Fetch returns identifier's cached artwork at (width, height) if its
// stored hash matches hash, otherwise calls fetch, caches, and returns
// the fresh result. An empty identifier is folded onto a synthetic key.
func (c *ArtworkCache) Fetch(ctx context.Context, identifier string, width, height int, hash uint64, fetch func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if identifier == "" {
		identifier = artworkSyntheticIdentifier
	}
	key := artworkKey{identifier: identifier, width: width, height: height}

	c.mu.Lock()
	entry, ok := c.cache.Get(key)
	c.mu.Unlock()
	if ok && entry.hash == hash {
		return entry.data, nil
	}

	data, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache.Add(key, artworkEntry{data: data, hash: hash})
	c.mu.Unlock()
	return data, nil
}

// CachingMetadata wraps a protocol's Metadata implementation with the
// artwork LRU: PlayingState passes straight through, Artwork is served
// from (or populated into) the shared cache using the PlayingState's
// own content hash as the staleness stamp.
type CachingMetadata struct {
	Identifier string
	Inner      Metadata
}

func (m CachingMetadata) PlayingState(ctx context.Context) (PlayingStateSnapshot, error) {
	return m.Inner.PlayingState(ctx)
}

func (m CachingMetadata) Artwork(ctx context.Context, width, height int) ([]byte, error) {
	state, err := m.Inner.PlayingState(ctx)
	if err != nil {
		return nil, err
	}
	return GetArtworkCache().Fetch(ctx, m.Identifier, width, height, state.Hash, func(ctx context.Context) ([]byte, error) {
		return m.Inner.Artwork(ctx, width, height)
	})
}

var _ Metadata = CachingMetadata{}
