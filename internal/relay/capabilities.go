// Package relay implements the facade and capability relayer (§4.11):
// it merges the partial, overlapping capability implementations each
// protocol stack (DMAP, MRP, Companion, RAOP) registers into one
// priority-ranked device handle.
package relay

import (
	"context"
	"time"
)

// Capability names the nine interfaces a protocol stack can register
// operations against.
type Capability string

const (
	CapabilityRemoteControl Capability = "remote_control"
	CapabilityMetadata      Capability = "metadata"
	CapabilityPower         Capability = "power"
	CapabilityAudio         Capability = "audio"
	CapabilityApps          Capability = "apps"
	CapabilityKeyboard      Capability = "keyboard"
	CapabilityFeatures      Capability = "features"
	CapabilityStream        Capability = "stream"
	CapabilityPushUpdater   Capability = "push_updater"
)

// Protocol names one of the five wire protocols that can back a
// capability.
type Protocol string

const (
	ProtocolMRP       Protocol = "mrp"
	ProtocolDMAP      Protocol = "dmap"
	ProtocolCompanion Protocol = "companion"
	ProtocolAirPlay   Protocol = "airplay"
	ProtocolRAOP      Protocol = "raop"
)

// RemoteControl issues HID-style navigation and playback commands.
type RemoteControl interface {
	Up(ctx context.Context) error
	Down(ctx context.Context) error
	Left(ctx context.Context) error
	Right(ctx context.Context) error
	Select(ctx context.Context) error
	Menu(ctx context.Context) error
	Home(ctx context.Context) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
}

// Metadata reports now-playing state.
type Metadata interface {
	PlayingState(ctx context.Context) (PlayingStateSnapshot, error)
	Artwork(ctx context.Context, width, height int) ([]byte, error)
}

// PlayingStateSnapshot is the facade's protocol-agnostic view of
// now-playing state, independent of which stack produced it.
type PlayingStateSnapshot struct {
	Title    string
	Artist   string
	Album    string
	Position time.Duration
	Total    time.Duration
	State    string
	Hash     uint64
}

// Power controls device power state.
type Power interface {
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
}

// Audio controls output volume.
type Audio interface {
	SetVolume(ctx context.Context, level float64) error
	Volume(ctx context.Context) (float64, error)
}

// Apps manages installed applications.
type Apps interface {
	AppList(ctx context.Context) (map[string]string, error)
	LaunchApp(ctx context.Context, bundleIDOrURL string) error
}

// Keyboard reads and writes remote text-entry fields.
type Keyboard interface {
	TextFocusState(ctx context.Context) (string, error)
	SetText(ctx context.Context, text string) error
}

// Features reports whether an operation is available from any
// registered protocol, independent of calling it.
type Features interface {
	IsAvailable(cap Capability, op string) bool
}

// Stream starts playback of a URL or a local media byte source.
type Stream interface {
	PlayURL(ctx context.Context, url string) error
}

// PushUpdater delivers unsolicited state-change notifications. It is a
// marker capability: its registration is what lets a protocol "take
// over" push updates from another, per §4.11's migration rule; the
// actual events flow through the facade's eventbus.Aggregator, not a
// method call on this interface.
type PushUpdater interface {
	Active() bool
}
