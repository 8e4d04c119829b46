package pairing

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net"

	"github.com/atvkit/atvkit/internal/atverrors"
	"github.com/atvkit/atvkit/internal/wire"
)

// airPlayLegacyDeviceID is the identifier older AirPlay 1 speakers
// expect a pairing client to present; it predates per-client identity
// and is fixed across every client that speaks this flow.
const airPlayLegacyDeviceID = "FF:FF:FF:FF:FF:FF"

// airplayLegacyOrchestrator implements AirPlay 1's proprietary pairing:
// an Ed25519 identity is generated locally, the PIN displayed on the
// receiver derives an AES-128-CTR key that wraps the public-key
// exchange, and the receiver's signed reply is verified against that
// exchange before the identity is accepted.
type airplayLegacyOrchestrator struct {
	addr string
	conn *wire.Conn
	host string

	pub  ed25519.PublicKey
	priv ed25519.PrivateKey

	paired bool
	creds  Credentials
}

// NewAirPlayLegacyOrchestrator creates an orchestrator for AirPlay 1
// pairing against addr (host:port).
func NewAirPlayLegacyOrchestrator(addr string) Orchestrator {
	return &airplayLegacyOrchestrator{addr: addr}
}

func (o *airplayLegacyOrchestrator) Begin(ctx context.Context) error {
	host, _, err := net.SplitHostPort(o.addr)
	if err != nil {
		return atverrors.Wrap(atverrors.KindConnection, err, "airplay legacy pairing: invalid address %q", o.addr)
	}
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", o.addr)
	if err != nil {
		return atverrors.Wrap(atverrors.KindConnection, err, "airplay legacy pairing: dialing %q", o.addr)
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return atverrors.Wrap(atverrors.KindPairing, err, "airplay legacy pairing: generating identity")
	}
	o.conn = wire.NewConn(nc)
	o.host = host
	o.pub, o.priv = pub, priv

	if err := o.conn.WriteRequest(wire.RequestLine{Method: "POST", Target: "/pair-pin-start", Proto: "HTTP/1.1"},
		map[string]string{"Host": o.host, "X-Apple-Client-Name": "atvkit"}, nil, false); err != nil {
		return atverrors.Wrap(atverrors.KindConnection, err, "airplay legacy pairing: sending /pair-pin-start")
	}
	status, _, _, err := o.conn.ReadResponse()
	if err != nil {
		return atverrors.Wrap(atverrors.KindConnection, err, "airplay legacy pairing: reading /pair-pin-start response")
	}
	if status.StatusCode >= 400 {
		return atverrors.Protocol("airplay legacy pairing: /pair-pin-start failed: %d %s", status.StatusCode, status.Reason)
	}
	return nil
}

func (o *airplayLegacyOrchestrator) DeviceProvidesPIN() bool { return true }

func (o *airplayLegacyOrchestrator) PIN(code string) error {
	if o.conn == nil {
		return wrongOrderError("PIN")
	}

	key := pinAESKey(code)
	block, err := aes.NewCipher(key)
	if err != nil {
		return atverrors.Wrap(atverrors.KindPairing, err, "airplay legacy pairing: building cipher")
	}

	iv := make([]byte, aes.BlockSize)
	encrypted := make([]byte, len(o.pub))
	cipher.NewCTR(block, iv).XORKeyStream(encrypted, o.pub)

	body := fmt.Appendf(nil, "%s\n%s", airPlayLegacyDeviceID, hex.EncodeToString(encrypted))
	if err := o.conn.WriteRequest(wire.RequestLine{Method: "POST", Target: "/pair-setup-pin", Proto: "HTTP/1.1"},
		map[string]string{"Host": o.host, "Content-Type": "application/octet-stream"}, body, false); err != nil {
		return atverrors.Wrap(atverrors.KindConnection, err, "airplay legacy pairing: sending /pair-setup-pin")
	}

	status, _, respBody, err := o.conn.ReadResponse()
	if err != nil {
		return atverrors.Wrap(atverrors.KindConnection, err, "airplay legacy pairing: reading /pair-setup-pin response")
	}
	if status.StatusCode == 470 {
		return atverrors.Pairing("airplay legacy pairing: PIN rejected")
	}
	if status.StatusCode >= 400 {
		return atverrors.Protocol("airplay legacy pairing: /pair-setup-pin failed: %d %s", status.StatusCode, status.Reason)
	}
	if len(respBody) < ed25519.PublicKeySize+ed25519.SignatureSize {
		return atverrors.Protocol("airplay legacy pairing: short /pair-setup-pin response")
	}

	decrypted := make([]byte, len(respBody))
	cipher.NewCTR(block, iv).XORKeyStream(decrypted, respBody)
	peerPublic := ed25519.PublicKey(decrypted[:ed25519.PublicKeySize])
	signature := decrypted[ed25519.PublicKeySize : ed25519.PublicKeySize+ed25519.SignatureSize]
	if !ed25519.Verify(peerPublic, o.pub, signature) {
		return atverrors.Pairing("airplay legacy pairing: receiver signature did not verify")
	}

	o.creds = Credentials{
		AirPlayIdentifier: hex.EncodeToString(o.pub),
		AirPlayPrivateKey: append([]byte(nil), o.priv...),
	}
	o.paired = true
	return nil
}

func (o *airplayLegacyOrchestrator) Finish(ctx context.Context) error {
	if !o.paired {
		return wrongOrderError("Finish")
	}
	return nil
}

func (o *airplayLegacyOrchestrator) HasPaired() bool { return o.paired }

func (o *airplayLegacyOrchestrator) Credentials() Credentials { return o.creds }

func (o *airplayLegacyOrchestrator) Close() error {
	if o.conn == nil {
		return nil
	}
	return o.conn.Close()
}

// pinAESKey derives the 16-byte AES-128 key the PIN exchange is
// encrypted under: the PIN's ASCII digits, SHA-512 hashed and
// truncated.
func pinAESKey(pin string) []byte {
	sum := sha512.Sum512([]byte(pin))
	return sum[:aes.BlockSize]
}

var _ Orchestrator = (*airplayLegacyOrchestrator)(nil)
