package relay

import (
	"context"

	"github.com/atvkit/atvkit/internal/atverrors"
	"github.com/atvkit/atvkit/internal/eventbus"
)

// Device is the unified handle §4.11 describes: one Registry of
// per-capability protocol implementations plus one eventbus.Aggregator
// consolidating every backing protocol stack's push updates into a
// single producer.
type Device struct {
	registry   *Registry
	aggregator *eventbus.Aggregator
	metrics    *Metrics
}

// NewDevice creates an empty facade. Protocol stacks register their
// capability implementations and attach their event producers after
// connecting.
func NewDevice() *Device {
	metrics := GetMetrics()
	aggregator := eventbus.NewAggregator(0)
	aggregator.Producer().SetHooks(eventbusHooks{metrics: metrics})
	return &Device{
		registry:   NewRegistry(),
		aggregator: aggregator,
		metrics:    metrics,
	}
}

// Register attaches proto's implementation of cap.
func (d *Device) Register(cap Capability, proto Protocol, impl any) {
	d.registry.Register(cap, proto, impl)
}

// Unregister removes proto's implementation of cap, e.g. on connection
// loss for that stack.
func (d *Device) Unregister(cap Capability, proto Protocol) {
	d.registry.Unregister(cap, proto)
}

// Takeover lets proto claim cap at runtime ahead of the static priority
// vector, per §4.11's PushUpdater migration example.
func (d *Device) Takeover(cap Capability, proto Protocol) {
	d.registry.Takeover(cap, proto)
}

// Release cancels a prior Takeover.
func (d *Device) Release(cap Capability) {
	d.registry.Release(cap)
}

// AttachEvents wires a protocol stack's own producer into the facade's
// aggregator; all its events are re-emitted on Events().
func (d *Device) AttachEvents(proto Protocol, producer *eventbus.StateProducer) {
	d.aggregator.AddSource(string(proto), producer)
}

// DetachEvents removes a previously attached producer, e.g. after Close.
func (d *Device) DetachEvents(proto Protocol) {
	d.aggregator.RemoveSource(string(proto))
}

// Events returns the facade's consolidated producer.
func (d *Device) Events() *eventbus.StateProducer {
	return d.aggregator.Producer()
}

// Close detaches every event source.
func (d *Device) Close() {
	d.aggregator.Close()
}

func resolveAs[T any](d *Device, cap Capability) (T, Protocol, error) {
	var zero T
	impl, proto, err := d.registry.Resolve(cap)
	if err != nil {
		return zero, "", err
	}
	typed, ok := impl.(T)
	if !ok {
		return zero, "", atverrors.NotSupported("relay: provider for %q does not satisfy the expected interface", cap)
	}
	return typed, proto, nil
}

// RemoteControl resolves the highest-priority RemoteControl provider,
// wrapped so every issued command records a relay metric.
func (d *Device) RemoteControl() (RemoteControl, error) {
	impl, proto, err := resolveAs[RemoteControl](d, CapabilityRemoteControl)
	if err != nil {
		return nil, err
	}
	return instrumentedRemoteControl{inner: impl, proto: proto, metrics: d.metrics}, nil
}

// Metadata resolves the highest-priority Metadata provider, wrapped so
// every PlayingState/Artwork call records a relay metric.
func (d *Device) Metadata() (Metadata, error) {
	impl, proto, err := resolveAs[Metadata](d, CapabilityMetadata)
	if err != nil {
		return nil, err
	}
	return instrumentedMetadata{inner: impl, proto: proto, metrics: d.metrics}, nil
}

// Power resolves the highest-priority Power provider, wrapped so every
// TurnOn/TurnOff call records a relay metric.
func (d *Device) Power() (Power, error) {
	impl, proto, err := resolveAs[Power](d, CapabilityPower)
	if err != nil {
		return nil, err
	}
	return instrumentedPower{inner: impl, proto: proto, metrics: d.metrics}, nil
}

// Apps resolves the highest-priority Apps provider, wrapped so every
// call records a relay metric.
func (d *Device) Apps() (Apps, error) {
	impl, proto, err := resolveAs[Apps](d, CapabilityApps)
	if err != nil {
		return nil, err
	}
	return instrumentedApps{inner: impl, proto: proto, metrics: d.metrics}, nil
}

// Keyboard resolves the highest-priority Keyboard provider, wrapped so
// every call records a relay metric.
func (d *Device) Keyboard() (Keyboard, error) {
	impl, proto, err := resolveAs[Keyboard](d, CapabilityKeyboard)
	if err != nil {
		return nil, err
	}
	return instrumentedKeyboard{inner: impl, proto: proto, metrics: d.metrics}, nil
}

// Stream resolves the highest-priority Stream provider, wrapped so
// every call records a relay metric.
func (d *Device) Stream() (Stream, error) {
	impl, proto, err := resolveAs[Stream](d, CapabilityStream)
	if err != nil {
		return nil, err
	}
	return instrumentedStream{inner: impl, proto: proto, metrics: d.metrics}, nil
}

// IsAvailable reports whether any protocol has registered cap at all;
// it backs the Features capability without requiring a full interface
// resolution.
func (d *Device) IsAvailable(cap Capability) bool {
	_, _, err := d.registry.Resolve(cap)
	return err == nil
}

// SetVolume validates level against [0.0, 100.0] at the facade boundary
// (§4.11 point 4) before relaying to the Audio provider.
func (d *Device) SetVolume(ctx context.Context, level float64) error {
	if level < 0.0 || level > 100.0 {
		return atverrors.InvalidArgument("relay: volume %.1f out of range [0.0, 100.0]", level)
	}
	impl, proto, err := resolveAs[Audio](d, CapabilityAudio)
	if err != nil {
		return err
	}
	err = impl.SetVolume(ctx, level)
	d.metrics.RecordCall(CapabilityAudio, proto, err)
	return err
}

// Volume relays to the Audio provider.
func (d *Device) Volume(ctx context.Context) (float64, error) {
	impl, proto, err := resolveAs[Audio](d, CapabilityAudio)
	if err != nil {
		return 0, err
	}
	level, err := impl.Volume(ctx)
	d.metrics.RecordCall(CapabilityAudio, proto, err)
	return level, err
}
