// Package pairing implements the protocol-agnostic pairing orchestrator
// (§4.14): a uniform begin/pin/finish contract layered over each
// protocol's actual auth flavor — HAP Pair-Setup for MRP/Companion/
// AirPlay 2/RAOP, DMAP's legacy GET-based pairing, and AirPlay's legacy
// AES-CTR/Ed25519 handshake.
package pairing

import (
	"context"

	"github.com/atvkit/atvkit/internal/atverrors"
)

// Credentials is the protocol-specific output of a successful pairing,
// handed to internal/storage for persistence.
type Credentials struct {
	// HAP pairing.
	Identity      []byte
	PeerPublicKey []byte
	PeerID        string
	// ClientID is the controller identifier this side signed into its
	// own Pair-Setup exchange (kTLVType_Identifier). The peer recorded
	// it against our long-term public key, so every later Pair-Verify
	// must present this same value or the peer's signature check fails.
	ClientID string

	// DMAP legacy pairing.
	PairingGUID string

	// AirPlay legacy pairing.
	AirPlayIdentifier string
	AirPlayPrivateKey []byte
}

// Orchestrator is the uniform contract over all three pairing flavors.
// Implementations are not safe for concurrent use: a device is paired
// from one sequential flow.
type Orchestrator interface {
	// Begin acquires whatever resources the flow needs before a PIN can
	// be collected — for DMAP legacy it opens the connection the /pair
	// request is sent on (no Bonjour service is published); for HAP and
	// AirPlay legacy it opens the underlying connection and sends the
	// first protocol message.
	Begin(ctx context.Context) error

	// DeviceProvidesPIN reports which direction the PIN flows: true
	// means the device displays it and the user types it into this
	// client; false means this client generates it and the user enters
	// it on the device.
	DeviceProvidesPIN() bool

	// PIN supplies the PIN code, in whichever direction
	// DeviceProvidesPIN indicates.
	PIN(code string) error

	// Finish completes the handshake. Call HasPaired afterward to check
	// the outcome. DMAP and AirPlay legacy report a rejected PIN from PIN
	// itself; their Finish only fails when PIN has not succeeded.
	Finish(ctx context.Context) error

	// HasPaired reports whether Finish succeeded.
	HasPaired() bool

	// Credentials returns the paired credentials; valid only once
	// HasPaired reports true.
	Credentials() Credentials

	// Close releases resources. Safe to call after a failed Finish to
	// retry from Begin, per §4.14's close()+retry recovery pattern.
	Close() error
}

// wrongOrderError is returned when a method is called outside the
// begin → pin → finish sequence its flow expects.
func wrongOrderError(step string) error {
	return atverrors.Pairing("pairing: %s called out of order", step)
}
