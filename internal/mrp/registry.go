package mrp

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Registry tracks every player path an MRP connection has seen and
// elects one "active" player, per §3's Player invariant: exactly zero
// or one player is active at any time, and subscribers observe
// transitions through a single monotonic revision counter.
//
// Player paths are looked up through an xxhash-keyed bucket table
// rather than directly against the map's native string key, the same
// indexing approach the device registry this was modeled on uses for
// its MAC-link table.
type Registry struct {
	mu       sync.RWMutex
	byBucket map[uint64]*Player

	nowPlayingBundle string
	nowPlayingSetAt  time.Time

	activePath string
	revision   uint64
}

// NewRegistry creates an empty player registry.
func NewRegistry() *Registry {
	return &Registry{byBucket: make(map[uint64]*Player)}
}

func bucketKey(path string) uint64 {
	return xxhash.Sum64String(path)
}

// Upsert creates or updates the player at path, returning whether the
// active-player election changed as a result.
func (r *Registry) Upsert(path string, mutate func(p *Player)) (electionChanged bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := bucketKey(path)
	p, ok := r.byBucket[key]
	if !ok {
		p = &Player{Path: path}
		r.byBucket[key] = p
	}
	mutate(p)
	return r.electLocked()
}

// Remove drops the player at path.
func (r *Registry) Remove(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byBucket, bucketKey(path))
	r.electLocked()
}

// SetNowPlayingClient records the bundle identifier SetNowPlayingClient
// named as the most recently selected app, re-running election.
func (r *Registry) SetNowPlayingClient(bundleIdentifier string, at time.Time) (electionChanged bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nowPlayingBundle = bundleIdentifier
	r.nowPlayingSetAt = at
	return r.electLocked()
}

// Active returns the currently elected active player, or nil if none.
func (r *Registry) Active() *Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.activePath == "" {
		return nil
	}
	for _, p := range r.byBucket {
		if p.Path == r.activePath {
			return p
		}
	}
	return nil
}

// Revision returns the current monotonic election revision.
func (r *Registry) Revision() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.revision
}

// electLocked picks the player whose BundleIdentifier matches the most
// recent SetNowPlayingClient; ties (or the absence of a match) resolve
// to the most-recent playback-state timestamp. Must be called with mu
// held.
func (r *Registry) electLocked() bool {
	var winner *Player
	for _, p := range r.byBucket {
		if p.BundleIdentifier == "" {
			continue
		}
		if p.BundleIdentifier == r.nowPlayingBundle {
			if winner == nil || p.stateTimestamp.After(winner.stateTimestamp) {
				winner = p
			}
		}
	}
	if winner == nil {
		for _, p := range r.byBucket {
			if winner == nil || p.stateTimestamp.After(winner.stateTimestamp) {
				winner = p
			}
		}
	}

	newActive := ""
	if winner != nil {
		newActive = winner.Path
	}
	if newActive == r.activePath {
		return false
	}
	r.activePath = newActive
	r.revision++
	return true
}
