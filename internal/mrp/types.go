// Package mrp implements the Media Remote Protocol stack used by tvOS
// Apple TVs: a framed-protobuf connection, Pair-Verify handshake, a
// heartbeat loop, and a player registry feeding active-player election
// and push updates onto the event bus.
package mrp

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// DeviceState is the playback state a player reports.
type DeviceState int32

const (
	DeviceStateIdle DeviceState = iota
	DeviceStateLoading
	DeviceStateStopped
	DeviceStatePaused
	DeviceStatePlaying
	DeviceStateSeeking
	DeviceStateFastForward
	DeviceStateRewind
)

func (s DeviceState) String() string {
	switch s {
	case DeviceStateIdle:
		return "Idle"
	case DeviceStateLoading:
		return "Loading"
	case DeviceStateStopped:
		return "Stopped"
	case DeviceStatePaused:
		return "Paused"
	case DeviceStatePlaying:
		return "Playing"
	case DeviceStateSeeking:
		return "Seeking"
	case DeviceStateFastForward:
		return "FastForward"
	case DeviceStateRewind:
		return "Rewind"
	default:
		return "Unknown"
	}
}

// PlayingState is an immutable content snapshot for one player, built
// fresh on every SetStateMessage/UpdateContentItemMessage.
type PlayingState struct {
	MediaKind string
	State     DeviceState

	Position  time.Duration
	TotalTime time.Duration

	Title, Artist, Album, Genre string
	Season, Episode             int
	Series                      string

	Repeat, Shuffle int32

	// ContentHash is SHA-256 over title|artist|album|total_time and is
	// used to suppress redundant push updates of otherwise-identical
	// content.
	ContentHash [32]byte

	elapsedAt time.Time
	rate      float64
}

// newPlayingState builds a PlayingState snapshot, computing Position per
// §4.8: elapsed + (now-timestamp)*rate while Playing, elapsed otherwise.
// A reported rate of 0.0 while the device claims Playing is treated as
// Paused — a known quirk of some third-party now-playing apps (Amazon
// Prime Video, BBC iPlayer) that never clear their own Playing flag.
func newPlayingState(state DeviceState, elapsed, total time.Duration, rate float64, timestamp time.Time, title, artist, album, genre string) *PlayingState {
	if state == DeviceStatePlaying && rate == 0.0 {
		state = DeviceStatePaused
	}
	ps := &PlayingState{
		MediaKind: "video",
		State:     state,
		Position:  elapsed,
		TotalTime: total,
		Title:     title,
		Artist:    artist,
		Album:     album,
		Genre:     genre,
		elapsedAt: timestamp,
		rate:      rate,
	}
	ps.ContentHash = sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", title, artist, album, total)))
	return ps
}

// PositionAt returns the computed playback position at instant now,
// applying the elapsed-time/rate extrapolation only while Playing.
func (p *PlayingState) PositionAt(now time.Time) time.Duration {
	if p.State != DeviceStatePlaying {
		return p.Position
	}
	return p.Position + time.Duration(float64(now.Sub(p.elapsedAt))*p.rate)
}

// Player is one app's now-playing session, keyed by its MRP player path.
type Player struct {
	Path             string
	BundleIdentifier string
	DisplayName      string

	NowPlaying        *PlayingState
	SupportedCommands []int32

	stateTimestamp time.Time
}
