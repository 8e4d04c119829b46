package relay

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/atvkit/atvkit/internal/atverrors"
	"github.com/atvkit/atvkit/internal/codec/dmaptlv"
	"github.com/atvkit/atvkit/internal/dmap"
)

func notSupported(format string, args ...any) error {
	return atverrors.NotSupported(format, args...)
}

// dmapDeviceStates maps DACP's "caps" playback-status codes onto the
// same state strings mrp.DeviceState.String() produces, so a
// PlayingStateSnapshot reads the same regardless of which stack
// produced it.
var dmapDeviceStates = map[int64]string{
	1: "Paused",
	2: "Stopped",
	3: "Playing",
	4: "Playing",
}

// DMAPRemoteControl adapts a dmap.Client onto RemoteControl via the
// DACP ctrl-int commands. DACP has no cursor-navigation concept, so
// Up/Down/Left/Right/Select/Menu/Home report unsupported — MRP or
// Companion are the expected providers whenever either is also paired.
type DMAPRemoteControl struct {
	Client *dmap.Client
}

func (a DMAPRemoteControl) Up(ctx context.Context) error {
	return notSupported("dmap: no cursor navigation over DACP")
}
func (a DMAPRemoteControl) Down(ctx context.Context) error {
	return notSupported("dmap: no cursor navigation over DACP")
}
func (a DMAPRemoteControl) Left(ctx context.Context) error {
	return notSupported("dmap: no cursor navigation over DACP")
}
func (a DMAPRemoteControl) Right(ctx context.Context) error {
	return notSupported("dmap: no cursor navigation over DACP")
}
func (a DMAPRemoteControl) Select(ctx context.Context) error {
	return notSupported("dmap: no cursor navigation over DACP")
}
func (a DMAPRemoteControl) Menu(ctx context.Context) error {
	return notSupported("dmap: no cursor navigation over DACP")
}
func (a DMAPRemoteControl) Home(ctx context.Context) error {
	return notSupported("dmap: no cursor navigation over DACP")
}

func (a DMAPRemoteControl) Play(ctx context.Context) error {
	_, err := a.Client.Control("play")
	return err
}
func (a DMAPRemoteControl) Pause(ctx context.Context) error {
	_, err := a.Client.Control("pause")
	return err
}
func (a DMAPRemoteControl) Next(ctx context.Context) error {
	_, err := a.Client.Control("nextitem")
	return err
}
func (a DMAPRemoteControl) Previous(ctx context.Context) error {
	_, err := a.Client.Control("previtem")
	return err
}

var _ RemoteControl = DMAPRemoteControl{}

// DMAPMetadata adapts a dmap.Client onto Metadata by reading the
// current playstatusupdate snapshot on demand rather than tracking the
// long-poll stream itself — PushUpdater is what drives the live feed.
type DMAPMetadata struct {
	Client *dmap.Client
}

func (a DMAPMetadata) PlayingState(ctx context.Context) (PlayingStateSnapshot, error) {
	revision, nodes, err := a.Client.PlayStatus(0)
	if err != nil {
		return PlayingStateSnapshot{}, err
	}
	snap := PlayingStateSnapshot{State: "Idle"}
	if title, ok := dmaptlv.Find(nodes, "cann"); ok {
		snap.Title, _ = title.Value.(string)
	}
	if artist, ok := dmaptlv.Find(nodes, "cana"); ok {
		snap.Artist, _ = artist.Value.(string)
	}
	if album, ok := dmaptlv.Find(nodes, "canl"); ok {
		snap.Album, _ = album.Value.(string)
	}
	if state, ok := dmaptlv.Find(nodes, "caps"); ok {
		if code, ok := state.Value.(int64); ok {
			if s, known := dmapDeviceStates[code]; known {
				snap.State = s
			}
		}
	}
	// DACP carries no SHA-256 content hash the way MRP does; the
	// playstatusupdate revision number (catg) already changes exactly
	// when the now-playing item does, so it stands in as the content
	// hash for artwork cache staleness.
	snap.Hash = xxhash.Sum64String(fmt.Sprintf("%s\x00%s\x00%s\x00%d", snap.Title, snap.Artist, snap.Album, revision))
	return snap, nil
}

// Artwork fetches the current now-playing artwork over DACP's
// nowplayingartwork endpoint. Callers needing cache/staleness handling
// go through CachingMetadata rather than calling this directly.
func (a DMAPMetadata) Artwork(ctx context.Context, width, height int) ([]byte, error) {
	return a.Client.Artwork(width, height)
}

var _ Metadata = DMAPMetadata{}
