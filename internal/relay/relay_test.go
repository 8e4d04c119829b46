package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/atvkit/atvkit/internal/atverrors"
	"github.com/atvkit/atvkit/internal/eventbus"
)

type fakeRemoteControl struct{ proto Protocol }

func (f *fakeRemoteControl) Up(ctx context.Context) error       { return nil }
func (f *fakeRemoteControl) Down(ctx context.Context) error     { return nil }
func (f *fakeRemoteControl) Left(ctx context.Context) error     { return nil }
func (f *fakeRemoteControl) Right(ctx context.Context) error    { return nil }
func (f *fakeRemoteControl) Select(ctx context.Context) error   { return nil }
func (f *fakeRemoteControl) Menu(ctx context.Context) error     { return nil }
func (f *fakeRemoteControl) Home(ctx context.Context) error     { return nil }
func (f *fakeRemoteControl) Play(ctx context.Context) error     { return nil }
func (f *fakeRemoteControl) Pause(ctx context.Context) error    { return nil }
func (f *fakeRemoteControl) Next(ctx context.Context) error     { return nil }
func (f *fakeRemoteControl) Previous(ctx context.Context) error { return nil }

type fakeAudio struct {
	proto Protocol
	level float64
}

func (f *fakeAudio) SetVolume(ctx context.Context, level float64) error {
	f.level = level
	return nil
}
func (f *fakeAudio) Volume(ctx context.Context) (float64, error) { return f.level, nil }

func TestRegistryResolveDefaultPriorityPrefersMRP(t *testing.T) {
	r := NewRegistry()
	r.Register(CapabilityRemoteControl, ProtocolDMAP, &fakeRemoteControl{proto: ProtocolDMAP})
	r.Register(CapabilityRemoteControl, ProtocolMRP, &fakeRemoteControl{proto: ProtocolMRP})

	impl, proto, err := r.Resolve(CapabilityRemoteControl)
	require.NoError(t, err)
	require.Equal(t, ProtocolMRP, proto)
	require.Equal(t, ProtocolMRP, impl.(*fakeRemoteControl).proto)
}

func TestRegistryResolveAudioPriorityPrefersRAOPOverMRP(t *testing.T) {
	r := NewRegistry()
	r.Register(CapabilityAudio, ProtocolMRP, &fakeAudio{proto: ProtocolMRP})
	r.Register(CapabilityAudio, ProtocolRAOP, &fakeAudio{proto: ProtocolRAOP})

	_, proto, err := r.Resolve(CapabilityAudio)
	require.NoError(t, err)
	require.Equal(t, ProtocolRAOP, proto)
}

func TestRegistryResolvePowerPriorityPrefersCompanionOverMRP(t *testing.T) {
	r := NewRegistry()
	r.Register(CapabilityPower, ProtocolMRP, &fakeAudio{})
	r.Register(CapabilityPower, ProtocolCompanion, &fakeAudio{})

	_, proto, err := r.Resolve(CapabilityPower)
	require.NoError(t, err)
	require.Equal(t, ProtocolCompanion, proto)
}

func TestRegistryResolveWithNoCandidateReturnsNotSupported(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.Resolve(CapabilityStream)
	require.Error(t, err)
	require.True(t, errors.Is(err, atverrors.KindNotSupported))
}

func TestTakeoverOverridesStaticPriority(t *testing.T) {
	r := NewRegistry()
	r.Register(CapabilityPushUpdater, ProtocolDMAP, &fakeAudio{})
	r.Register(CapabilityPushUpdater, ProtocolMRP, &fakeAudio{})

	_, proto, err := r.Resolve(CapabilityPushUpdater)
	require.NoError(t, err)
	require.Equal(t, ProtocolMRP, proto)

	r.Takeover(CapabilityPushUpdater, ProtocolDMAP)
	_, proto, err = r.Resolve(CapabilityPushUpdater)
	require.NoError(t, err)
	require.Equal(t, ProtocolDMAP, proto)

	r.Release(CapabilityPushUpdater)
	_, proto, err = r.Resolve(CapabilityPushUpdater)
	require.NoError(t, err)
	require.Equal(t, ProtocolMRP, proto)
}

func TestDeviceSetVolumeValidatesRangeAtFacadeBoundary(t *testing.T) {
	d := NewDevice()
	d.Register(CapabilityAudio, ProtocolRAOP, &fakeAudio{})

	err := d.SetVolume(context.Background(), 150.0)
	require.Error(t, err)
	require.True(t, errors.Is(err, atverrors.KindInvalidArgument))

	err = d.SetVolume(context.Background(), 42.0)
	require.NoError(t, err)
}

func TestDeviceAggregatesEventsFromMultipleSources(t *testing.T) {
	d := NewDevice()
	mrpProducer := eventbus.NewStateProducer(0)
	companionProducer := eventbus.NewStateProducer(0)
	d.AttachEvents(ProtocolMRP, mrpProducer)
	d.AttachEvents(ProtocolCompanion, companionProducer)

	h, ok := d.Events().Listen()
	require.True(t, ok)

	companionProducer.Emit(eventbus.Event{Type: eventbus.EventVolumeUpdate, Data: eventbus.VolumeUpdateData{Level: 10}})
	mrpProducer.Emit(eventbus.Event{Type: eventbus.EventKeyboardUpdate})

	seen := map[eventbus.EventType]bool{}
	for i := 0; i < 2; i++ {
		select {
		case e := <-h.C():
			seen[e.Type] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for aggregated event")
		}
	}
	require.True(t, seen[eventbus.EventVolumeUpdate])
	require.True(t, seen[eventbus.EventKeyboardUpdate])
}

type fakePower struct{ fail bool }

func (f *fakePower) TurnOn(ctx context.Context) error {
	if f.fail {
		return errors.New("boom")
	}
	return nil
}
func (f *fakePower) TurnOff(ctx context.Context) error { return nil }

type fakeApps struct{}

func (f *fakeApps) AppList(ctx context.Context) (map[string]string, error) { return nil, nil }
func (f *fakeApps) LaunchApp(ctx context.Context, bundleIDOrURL string) error { return nil }

type fakeKeyboard struct{}

func (f *fakeKeyboard) TextFocusState(ctx context.Context) (string, error) { return "", nil }
func (f *fakeKeyboard) SetText(ctx context.Context, text string) error     { return nil }

type fakeStream struct{}

func (f *fakeStream) PlayURL(ctx context.Context, url string) error { return nil }

// TestEveryResolvedCapabilityRecordsRelayMetrics covers the
// RecordCall-on-every-call invariant for six resolved capabilities
// (RemoteControl, Power, Apps, Keyboard, Stream, Metadata), not just
// Audio's SetVolume/Volume.
func TestEveryResolvedCapabilityRecordsRelayMetrics(t *testing.T) {
	d := NewDevice()
	d.Register(CapabilityRemoteControl, ProtocolMRP, &fakeRemoteControl{proto: ProtocolMRP})
	d.Register(CapabilityPower, ProtocolCompanion, &fakePower{fail: true})
	d.Register(CapabilityApps, ProtocolCompanion, &fakeApps{})
	d.Register(CapabilityKeyboard, ProtocolCompanion, &fakeKeyboard{})
	d.Register(CapabilityStream, ProtocolRAOP, &fakeStream{})
	d.Register(CapabilityMetadata, ProtocolMRP, &fakeMetadata{})

	rc, err := d.RemoteControl()
	require.NoError(t, err)
	before := testutil.ToFloat64(d.metrics.RelayedCalls.WithLabelValues(string(CapabilityRemoteControl), string(ProtocolMRP)))
	require.NoError(t, rc.Up(context.Background()))
	require.Equal(t, before+1, testutil.ToFloat64(d.metrics.RelayedCalls.WithLabelValues(string(CapabilityRemoteControl), string(ProtocolMRP))))

	power, err := d.Power()
	require.NoError(t, err)
	errBefore := testutil.ToFloat64(d.metrics.RelayErrors.WithLabelValues(string(CapabilityPower), string(ProtocolCompanion)))
	require.Error(t, power.TurnOn(context.Background()))
	require.Equal(t, errBefore+1, testutil.ToFloat64(d.metrics.RelayErrors.WithLabelValues(string(CapabilityPower), string(ProtocolCompanion))))

	apps, err := d.Apps()
	require.NoError(t, err)
	before = testutil.ToFloat64(d.metrics.RelayedCalls.WithLabelValues(string(CapabilityApps), string(ProtocolCompanion)))
	_, err = apps.AppList(context.Background())
	require.NoError(t, err)
	require.Equal(t, before+1, testutil.ToFloat64(d.metrics.RelayedCalls.WithLabelValues(string(CapabilityApps), string(ProtocolCompanion))))

	kb, err := d.Keyboard()
	require.NoError(t, err)
	before = testutil.ToFloat64(d.metrics.RelayedCalls.WithLabelValues(string(CapabilityKeyboard), string(ProtocolCompanion)))
	require.NoError(t, kb.SetText(context.Background(), "hi"))
	require.Equal(t, before+1, testutil.ToFloat64(d.metrics.RelayedCalls.WithLabelValues(string(CapabilityKeyboard), string(ProtocolCompanion))))

	stream, err := d.Stream()
	require.NoError(t, err)
	before = testutil.ToFloat64(d.metrics.RelayedCalls.WithLabelValues(string(CapabilityStream), string(ProtocolRAOP)))
	require.NoError(t, stream.PlayURL(context.Background(), "http://example.invalid/a.mp3"))
	require.Equal(t, before+1, testutil.ToFloat64(d.metrics.RelayedCalls.WithLabelValues(string(CapabilityStream), string(ProtocolRAOP))))

	md, err := d.Metadata()
	require.NoError(t, err)
	before = testutil.ToFloat64(d.metrics.RelayedCalls.WithLabelValues(string(CapabilityMetadata), string(ProtocolMRP)))
	_, err = md.PlayingState(context.Background())
	require.NoError(t, err)
	require.Equal(t, before+1, testutil.ToFloat64(d.metrics.RelayedCalls.WithLabelValues(string(CapabilityMetadata), string(ProtocolMRP))))
}

func TestShouldUseAirPlayTunnelOnlyWhenNoMRPServiceAndCredentialsPresent(t *testing.T) {
	require.True(t, ShouldUseAirPlayTunnel(false, true))
	require.False(t, ShouldUseAirPlayTunnel(true, true))
	require.False(t, ShouldUseAirPlayTunnel(false, false))
}
