package atv

import (
	"context"
	"sync"

	"github.com/atvkit/atvkit/internal/eventbus"
	"github.com/atvkit/atvkit/internal/relay"
)

// Device is a connected Apple TV, HomePod, or AirPort Express: one
// relay.Device merging whatever capabilities each dialed protocol
// registered, plus the underlying connections Close tears down.
type Device struct {
	registry *relay.Device
	closers  []func() error
	stop     chan struct{}
	stopOnce sync.Once
}

// RemoteControl returns the highest-priority remote-control provider.
func (d *Device) RemoteControl() (relay.RemoteControl, error) { return d.registry.RemoteControl() }

// Metadata returns the highest-priority now-playing metadata provider.
func (d *Device) Metadata() (relay.Metadata, error) { return d.registry.Metadata() }

// Power returns the highest-priority power-control provider.
func (d *Device) Power() (relay.Power, error) { return d.registry.Power() }

// Apps returns the highest-priority app-list/launch provider.
func (d *Device) Apps() (relay.Apps, error) { return d.registry.Apps() }

// Keyboard returns the highest-priority text-entry provider.
func (d *Device) Keyboard() (relay.Keyboard, error) { return d.registry.Keyboard() }

// Stream returns the highest-priority playback provider.
func (d *Device) Stream() (relay.Stream, error) { return d.registry.Stream() }

// SetVolume relays to the Audio provider, validating against [0, 100].
func (d *Device) SetVolume(ctx context.Context, level float64) error {
	return d.registry.SetVolume(ctx, level)
}

// Volume relays to the Audio provider.
func (d *Device) Volume(ctx context.Context) (float64, error) {
	return d.registry.Volume(ctx)
}

// IsAvailable reports whether any connected protocol backs cap at all.
func (d *Device) IsAvailable(cap relay.Capability) bool {
	return d.registry.IsAvailable(cap)
}

// Events returns the consolidated push-update stream across every
// connected protocol.
func (d *Device) Events() *eventbus.StateProducer {
	return d.registry.Events()
}

// Close disconnects every underlying protocol client, stops any
// in-flight reconnect watchers, and detaches the facade's event
// sources. The first error encountered, if any, is returned after
// every closer has still been attempted.
func (d *Device) Close() error {
	if d.stop != nil {
		d.stopOnce.Do(func() { close(d.stop) })
	}
	d.registry.Close()
	var firstErr error
	for _, closeFn := range d.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
