package relay

import "context"

// instrumented wraps a resolved capability implementation so that every
// method call — not just Audio's SetVolume/Volume — records a
// RelayedCalls/RelayErrors observation. Device.RemoteControl,
// Device.Metadata, Device.Power, Device.Apps, Device.Keyboard, and
// Device.Stream all hand callers one of these wrappers rather than the
// bare resolved implementation, since the facade itself never calls
// through these interfaces — the caller does, after resolving it.

type instrumentedRemoteControl struct {
	inner   RemoteControl
	proto   Protocol
	metrics *Metrics
}

func (i instrumentedRemoteControl) record(err error) error {
	i.metrics.RecordCall(CapabilityRemoteControl, i.proto, err)
	return err
}

func (i instrumentedRemoteControl) Up(ctx context.Context) error       { return i.record(i.inner.Up(ctx)) }
func (i instrumentedRemoteControl) Down(ctx context.Context) error     { return i.record(i.inner.Down(ctx)) }
func (i instrumentedRemoteControl) Left(ctx context.Context) error     { return i.record(i.inner.Left(ctx)) }
func (i instrumentedRemoteControl) Right(ctx context.Context) error    { return i.record(i.inner.Right(ctx)) }
func (i instrumentedRemoteControl) Select(ctx context.Context) error   { return i.record(i.inner.Select(ctx)) }
func (i instrumentedRemoteControl) Menu(ctx context.Context) error     { return i.record(i.inner.Menu(ctx)) }
func (i instrumentedRemoteControl) Home(ctx context.Context) error     { return i.record(i.inner.Home(ctx)) }
func (i instrumentedRemoteControl) Play(ctx context.Context) error     { return i.record(i.inner.Play(ctx)) }
func (i instrumentedRemoteControl) Pause(ctx context.Context) error    { return i.record(i.inner.Pause(ctx)) }
func (i instrumentedRemoteControl) Next(ctx context.Context) error     { return i.record(i.inner.Next(ctx)) }
func (i instrumentedRemoteControl) Previous(ctx context.Context) error { return i.record(i.inner.Previous(ctx)) }

var _ RemoteControl = instrumentedRemoteControl{}

type instrumentedMetadata struct {
	inner   Metadata
	proto   Protocol
	metrics *Metrics
}

func (i instrumentedMetadata) PlayingState(ctx context.Context) (PlayingStateSnapshot, error) {
	snap, err := i.inner.PlayingState(ctx)
	i.metrics.RecordCall(CapabilityMetadata, i.proto, err)
	return snap, err
}

func (i instrumentedMetadata) Artwork(ctx context.Context, width, height int) ([]byte, error) {
	data, err := i.inner.Artwork(ctx, width, height)
	i.metrics.RecordCall(CapabilityMetadata, i.proto, err)
	return data, err
}

var _ Metadata = instrumentedMetadata{}

type instrumentedPower struct {
	inner   Power
	proto   Protocol
	metrics *Metrics
}

func (i instrumentedPower) TurnOn(ctx context.Context) error {
	err := i.inner.TurnOn(ctx)
	i.metrics.RecordCall(CapabilityPower, i.proto, err)
	return err
}

func (i instrumentedPower) TurnOff(ctx context.Context) error {
	err := i.inner.TurnOff(ctx)
	i.metrics.RecordCall(CapabilityPower, i.proto, err)
	return err
}

var _ Power = instrumentedPower{}

type instrumentedApps struct {
	inner   Apps
	proto   Protocol
	metrics *Metrics
}

func (i instrumentedApps) AppList(ctx context.Context) (map[string]string, error) {
	apps, err := i.inner.AppList(ctx)
	i.metrics.RecordCall(CapabilityApps, i.proto, err)
	return apps, err
}

func (i instrumentedApps) LaunchApp(ctx context.Context, bundleIDOrURL string) error {
	err := i.inner.LaunchApp(ctx, bundleIDOrURL)
	i.metrics.RecordCall(CapabilityApps, i.proto, err)
	return err
}

var _ Apps = instrumentedApps{}

type instrumentedKeyboard struct {
	inner   Keyboard
	proto   Protocol
	metrics *Metrics
}

func (i instrumentedKeyboard) TextFocusState(ctx context.Context) (string, error) {
	state, err := i.inner.TextFocusState(ctx)
	i.metrics.RecordCall(CapabilityKeyboard, i.proto, err)
	return state, err
}

func (i instrumentedKeyboard) SetText(ctx context.Context, text string) error {
	err := i.inner.SetText(ctx, text)
	i.metrics.RecordCall(CapabilityKeyboard, i.proto, err)
	return err
}

var _ Keyboard = instrumentedKeyboard{}

type instrumentedStream struct {
	inner   Stream
	proto   Protocol
	metrics *Metrics
}

func (i instrumentedStream) PlayURL(ctx context.Context, url string) error {
	err := i.inner.PlayURL(ctx, url)
	i.metrics.RecordCall(CapabilityStream, i.proto, err)
	return err
}

var _ Stream = instrumentedStream{}
