package atv

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/atvkit/atvkit/internal/eventbus"
	"github.com/atvkit/atvkit/internal/pairing"
	"github.com/atvkit/atvkit/internal/relay"
	"github.com/atvkit/atvkit/internal/storage"
)

func TestApplyStoredSettingsOverridesScannedNameAndAddress(t *testing.T) {
	store := storage.NewMemoryStorage()
	store.UpdateSettings("mrp-1", storage.DeviceSettings{
		Identifier: "mrp-1",
		Name:       "Bedroom Apple TV",
		Address:    "10.0.0.9",
	})

	dev := &DeviceConfiguration{
		Name:       "Living Room Apple TV",
		Address:    net.ParseIP("192.168.1.5"),
		Identifier: DeviceIdentifier{MRPUniqueIdentifier: "mrp-1"},
	}

	applyStoredSettings(store, dev)

	require.Equal(t, "Bedroom Apple TV", dev.Name)
	require.Equal(t, "10.0.0.9", dev.Address.String())
}

// TestResolvePasswordPrefersStoredPasswordOverScanned covers the §8
// scenario 6 settings-priority rule for RAOP passwords: a password
// already saved in the store wins over whatever the scan reported.
func TestResolvePasswordPrefersStoredPasswordOverScanned(t *testing.T) {
	store := storage.NewMemoryStorage()
	store.UpdateSettings("raop-1", storage.DeviceSettings{
		Identifier: "raop-1",
		Password:   "stored-secret",
	})

	dev := &DeviceConfiguration{
		Identifier: DeviceIdentifier{RAOPDeviceID: "raop-1"},
	}
	svc := Service{Protocol: ServiceRAOP, Password: "scanned-secret"}

	require.Equal(t, "stored-secret", resolvePassword(store, dev, svc))
}

func TestResolvePasswordFallsBackToScannedWhenStoreHasNone(t *testing.T) {
	store := storage.NewMemoryStorage()
	dev := &DeviceConfiguration{
		Identifier: DeviceIdentifier{RAOPDeviceID: "raop-2"},
	}
	svc := Service{Protocol: ServiceRAOP, Password: "scanned-secret"}

	require.Equal(t, "scanned-secret", resolvePassword(store, dev, svc))
}

func TestResolvePasswordWithNilStoreUsesScannedValue(t *testing.T) {
	dev := &DeviceConfiguration{
		Identifier: DeviceIdentifier{RAOPDeviceID: "raop-3"},
	}
	svc := Service{Protocol: ServiceRAOP, Password: "scanned-secret"}

	require.Equal(t, "scanned-secret", resolvePassword(nil, dev, svc))
}

var errDialTest = errors.New("dial failed")

// TestWatchForReconnectRetriesUntilDialSucceeds covers Reconnects'
// reachability: a ConnectionLost notification on a real StateProducer
// drives real retries, each one incrementing relay's Reconnects
// counter, until dial finally succeeds.
func TestWatchForReconnectRetriesUntilDialSucceeds(t *testing.T) {
	producer := eventbus.NewStateProducer(0)
	stop := make(chan struct{})
	defer close(stop)

	before := testutil.ToFloat64(relay.GetMetrics().Reconnects.WithLabelValues("test-source"))

	attempts := 0
	done := make(chan struct{})
	dial := func() (*eventbus.StateProducer, error) {
		attempts++
		if attempts < 3 {
			return nil, errDialTest
		}
		close(done)
		return eventbus.NewStateProducer(0), nil
	}

	watchForReconnect(stop, producer, "test-source", dial)

	// watchForReconnect subscribes asynchronously via Listen(); give it
	// a moment before emitting so the subscription is in place.
	time.Sleep(20 * time.Millisecond)
	producer.ConnectionLost(errDialTest)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dial never succeeded")
	}

	require.Equal(t, 3, attempts)
	require.Equal(t, before+3, testutil.ToFloat64(relay.GetMetrics().Reconnects.WithLabelValues("test-source")))
}

func TestWatchForReconnectWithNilDialIsANoOp(t *testing.T) {
	producer := eventbus.NewStateProducer(0)
	stop := make(chan struct{})
	defer close(stop)

	// Must not panic or block; nil dial means "no redial support".
	watchForReconnect(stop, producer, "test-source-noop", nil)
}

func TestApplyStoredSettingsWithNoRecordLeavesDeviceUntouched(t *testing.T) {
	store := storage.NewMemoryStorage()
	dev := &DeviceConfiguration{
		Name:       "Living Room Apple TV",
		Address:    net.ParseIP("192.168.1.5"),
		Identifier: DeviceIdentifier{MRPUniqueIdentifier: "mrp-1"},
	}

	applyStoredSettings(store, dev)

	require.Equal(t, "Living Room Apple TV", dev.Name)
	require.Equal(t, "192.168.1.5", dev.Address.String())
}

func TestApplyStoredSettingsWithNilStoreIsANoOp(t *testing.T) {
	dev := &DeviceConfiguration{Name: "Living Room Apple TV"}
	applyStoredSettings(nil, dev)
	require.Equal(t, "Living Room Apple TV", dev.Name)
}

func TestPrimaryIdentifierPrefersMRPOverOtherIdentifiers(t *testing.T) {
	dev := &DeviceConfiguration{Identifier: DeviceIdentifier{
		MRPUniqueIdentifier: "mrp-1",
		DMAPHG:              "dmap-1",
		MACAddress:          "aa:bb:cc:dd:ee:ff",
	}}
	require.Equal(t, "mrp-1", primaryIdentifier(dev))
}

func TestPrimaryIdentifierFallsBackToMACAddress(t *testing.T) {
	dev := &DeviceConfiguration{Identifier: DeviceIdentifier{MACAddress: "aa:bb:cc:dd:ee:ff"}}
	require.Equal(t, "aa:bb:cc:dd:ee:ff", primaryIdentifier(dev))
}

// TestSaveCredentialsRoundTripsClientIDForPairVerify exercises the
// MRP/Companion branch of SaveCredentials and confirms storedIdentity
// reads back the same ClientID a later Pair-Verify must replay.
func TestSaveCredentialsRoundTripsClientIDForPairVerify(t *testing.T) {
	store := storage.NewMemoryStorage()
	dev := &DeviceConfiguration{
		Name:       "Living Room Apple TV",
		Identifier: DeviceIdentifier{MRPUniqueIdentifier: "mrp-1"},
	}
	creds := pairing.Credentials{
		Identity:      []byte("0123456789012345678901234567890123456789012345678901234567890a"),
		PeerPublicKey: []byte("peer-public-key"),
		ClientID:      "11111111-2222-3333-4444-555555555555",
	}

	require.NoError(t, SaveCredentials(store, dev, ServiceMRP, creds))

	_, _, clientID, ok := storedIdentity(store, dev, protocolKey(ServiceMRP))
	require.True(t, ok)
	require.Equal(t, creds.ClientID, clientID)
}

func TestSaveCredentialsDMAPStoresOnlyPairingGUID(t *testing.T) {
	store := storage.NewMemoryStorage()
	dev := &DeviceConfiguration{
		Name:       "Kitchen HomePod",
		Identifier: DeviceIdentifier{DMAPHG: "dmap-1"},
	}
	creds := pairing.Credentials{PairingGUID: "0x1A2B3C4D5E6F7081"}

	require.NoError(t, SaveCredentials(store, dev, ServiceDMAP, creds))

	settings, ok := store.GetSettings("dmap-1")
	require.True(t, ok)
	require.Equal(t, "0x1A2B3C4D5E6F7081", settings.Credentials[protocolKey(ServiceDMAP)].PairingGUID)
	require.Empty(t, settings.Credentials[protocolKey(ServiceDMAP)].Identity)
}

func TestSaveCredentialsWithoutStableIdentifierFails(t *testing.T) {
	store := storage.NewMemoryStorage()
	dev := &DeviceConfiguration{Name: "Unknown Device"}
	err := SaveCredentials(store, dev, ServiceMRP, pairing.Credentials{ClientID: "x"})
	require.Error(t, err)
}

func TestStoredIdentityWithNoSavedCredentialsReportsNotFound(t *testing.T) {
	store := storage.NewMemoryStorage()
	dev := &DeviceConfiguration{Identifier: DeviceIdentifier{MRPUniqueIdentifier: "mrp-1"}}
	_, _, _, ok := storedIdentity(store, dev, protocolKey(ServiceMRP))
	require.False(t, ok)
}

func TestProtocolKeyIsStableAcrossAirPlayAndRAOP(t *testing.T) {
	require.Equal(t, protocolKey(ServiceAirPlay), protocolKey(ServiceRAOP))
	require.NotEmpty(t, protocolKey(ServiceMRP))
	require.NotEmpty(t, protocolKey(ServiceCompanion))
	require.NotEmpty(t, protocolKey(ServiceDMAP))
}

func TestFindServiceLocatesMatchingProtocol(t *testing.T) {
	dev := &DeviceConfiguration{Services: []Service{
		{Protocol: ServiceMRP, Port: 49152},
		{Protocol: ServiceRAOP, Port: 7000},
	}}
	svc, ok := findService(dev, ServiceRAOP)
	require.True(t, ok)
	require.EqualValues(t, 7000, svc.Port)

	_, ok = findService(dev, ServiceCompanion)
	require.False(t, ok)
}
