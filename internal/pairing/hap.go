package pairing

import (
	"context"

	"github.com/google/uuid"

	"github.com/atvkit/atvkit/internal/hap"
)

// Channel carries raw TLV8 messages for one pairing exchange. Each
// protocol adapts its own framing to this interface: MRP tunnels
// through a CryptoPairingMessage envelope, Companion and RAOP hand the
// bytes straight to their length-prefixed transport, DMAP has no
// HAP-based pairing at all and uses dmapOrchestrator instead.
type Channel interface {
	WriteTLV8(data []byte) error
	ReadTLV8() ([]byte, error)
	Close() error
}

// hapOrchestrator drives HAP Pair-Setup over a Channel. The device
// displays the PIN in this flow (DeviceProvidesPIN is always true for
// Pair-Setup), so Begin sends M1 immediately and PIN supplies the code
// the user read off the screen; hap.PairSetup needs the password at
// construction time, so construction is deferred from Begin to PIN.
type hapOrchestrator struct {
	channel  Channel
	clientID string

	setup  *hap.PairSetup
	m2     []byte
	result *hap.SetupResult
	paired bool
}

// NewHAPOrchestrator creates an orchestrator for the Pair-Setup flow
// that MRP, Companion, AirPlay 2, and RAOP all share.
func NewHAPOrchestrator(channel Channel) Orchestrator {
	return &hapOrchestrator{channel: channel, clientID: uuid.NewString()}
}

func (o *hapOrchestrator) Begin(ctx context.Context) error {
	// M1 carries no password, so a throwaway PairSetup drives it; the
	// real one, built once the PIN is known, replays from M2.
	probe := hap.NewPairSetup(o.clientID, nil, false)
	m1, err := probe.BuildM1()
	if err != nil {
		return err
	}
	if err := o.channel.WriteTLV8(m1); err != nil {
		return err
	}
	m2, err := o.channel.ReadTLV8()
	if err != nil {
		return err
	}
	o.m2 = m2
	return nil
}

func (o *hapOrchestrator) DeviceProvidesPIN() bool { return true }

func (o *hapOrchestrator) PIN(code string) error {
	if o.m2 == nil {
		return wrongOrderError("PIN")
	}
	o.setup = hap.NewPairSetup(o.clientID, []byte(code), false)
	// Replay M1 internally to advance the fresh PairSetup's state
	// machine to where the real exchange already is; the bytes were
	// already sent over the wire by the probe in Begin.
	if _, err := o.setup.BuildM1(); err != nil {
		return err
	}
	return nil
}

func (o *hapOrchestrator) Finish(ctx context.Context) error {
	if o.setup == nil {
		return wrongOrderError("Finish")
	}
	m3, err := o.setup.HandleM2BuildM3(o.m2)
	if err != nil {
		return err
	}
	if err := o.channel.WriteTLV8(m3); err != nil {
		return err
	}
	m4, err := o.channel.ReadTLV8()
	if err != nil {
		return err
	}
	m5, err := o.setup.HandleM4BuildM5(m4)
	if err != nil {
		return err
	}
	if err := o.channel.WriteTLV8(m5); err != nil {
		return err
	}
	m6, err := o.channel.ReadTLV8()
	if err != nil {
		return err
	}
	result, err := o.setup.HandleM6(m6)
	if err != nil {
		return err
	}
	o.result = result
	o.paired = true
	return nil
}

func (o *hapOrchestrator) HasPaired() bool { return o.paired }

func (o *hapOrchestrator) Credentials() Credentials {
	if o.result == nil {
		return Credentials{}
	}
	creds := Credentials{PeerID: o.result.PeerIdentifier, ClientID: o.clientID}
	if o.result.Identity != nil {
		creds.Identity = []byte(o.result.Identity.Private)
	}
	if o.result.PeerPublicKey != nil {
		creds.PeerPublicKey = []byte(o.result.PeerPublicKey)
	}
	return creds
}

func (o *hapOrchestrator) Close() error {
	return o.channel.Close()
}

var _ Orchestrator = (*hapOrchestrator)(nil)
