package relay

import (
	"context"

	"github.com/atvkit/atvkit/internal/atverrors"
	"github.com/atvkit/atvkit/internal/mrp"
	"github.com/atvkit/atvkit/internal/xclock"
)

// MRPRemoteControl adapts an mrp.Client onto the facade's RemoteControl
// capability: every method is a single-tap SendCommand against
// whichever player is active at call time.
type MRPRemoteControl struct {
	Client *mrp.Client
}

func (a MRPRemoteControl) send(ctx context.Context, cmd mrp.Command) error {
	return a.Client.SendCommand(ctx, cmd, mrp.InputActionSingleTap, "")
}

func (a MRPRemoteControl) Up(ctx context.Context) error       { return a.send(ctx, mrp.CommandUp) }
func (a MRPRemoteControl) Down(ctx context.Context) error     { return a.send(ctx, mrp.CommandDown) }
func (a MRPRemoteControl) Left(ctx context.Context) error     { return a.send(ctx, mrp.CommandLeft) }
func (a MRPRemoteControl) Right(ctx context.Context) error    { return a.send(ctx, mrp.CommandRight) }
func (a MRPRemoteControl) Select(ctx context.Context) error   { return a.send(ctx, mrp.CommandSelect) }
func (a MRPRemoteControl) Menu(ctx context.Context) error     { return a.send(ctx, mrp.CommandMenu) }
func (a MRPRemoteControl) Home(ctx context.Context) error     { return a.send(ctx, mrp.CommandHome) }
func (a MRPRemoteControl) Play(ctx context.Context) error     { return a.send(ctx, mrp.CommandPlay) }
func (a MRPRemoteControl) Pause(ctx context.Context) error    { return a.send(ctx, mrp.CommandPause) }
func (a MRPRemoteControl) Next(ctx context.Context) error     { return a.send(ctx, mrp.CommandNextTrack) }
func (a MRPRemoteControl) Previous(ctx context.Context) error {
	return a.send(ctx, mrp.CommandPreviousTrack)
}

var _ RemoteControl = MRPRemoteControl{}

// MRPMetadata adapts an mrp.Client onto the facade's Metadata
// capability. MRP has no dedicated artwork fetch of its own; Artwork
// always reports unsupported. The facade resolves Metadata to a single
// provider, so while MRP is that provider no artwork is fetched through
// another protocol.
type MRPMetadata struct {
	Client *mrp.Client
}

func (a MRPMetadata) PlayingState(ctx context.Context) (PlayingStateSnapshot, error) {
	player := a.Client.Active()
	if player == nil || player.NowPlaying == nil {
		return PlayingStateSnapshot{}, nil
	}
	ps := player.NowPlaying
	return PlayingStateSnapshot{
		Title:    ps.Title,
		Artist:   ps.Artist,
		Album:    ps.Album,
		Position: ps.PositionAt(xclock.Now()),
		Total:    ps.TotalTime,
		State:    ps.State.String(),
		Hash:     mrpContentHashUint64(ps.ContentHash),
	}, nil
}

func (a MRPMetadata) Artwork(ctx context.Context, width, height int) ([]byte, error) {
	return nil, atverrors.NotSupported("mrp: artwork fetch is not part of the Media Remote Protocol")
}

var _ Metadata = MRPMetadata{}

func mrpContentHashUint64(h [32]byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(h[i])
	}
	return v
}
