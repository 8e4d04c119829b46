package pairing

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"

	"github.com/atvkit/atvkit/internal/atverrors"
	"github.com/atvkit/atvkit/internal/codec/dmaptlv"
	"github.com/atvkit/atvkit/internal/wire"
)

// dmapPairingTagDict decodes the /pair response. It is a private,
// narrower dictionary than internal/dmap's own: pairing happens before
// a Client exists, over a bare connection opened just for this one
// request.
var dmapPairingTagDict = dmaptlv.TagDict{
	"cmpa": dmaptlv.KindContainer,
	"cmpg": dmaptlv.KindUint8,
	"cmnm": dmaptlv.KindString,
	"cmty": dmaptlv.KindString,
	"mstt": dmaptlv.KindUint4,
}

// dmapOrchestrator implements DMAP's legacy GET-based pairing: the
// client picks a pairing GUID, the user enters on the Apple TV the PIN
// this client passes to PIN, and pairingCode = md5 folded over the GUID and
// each PIN digit authenticates a single GET /pair request.
//
// The real flow also has this client publish a _touch-able._tcp
// Bonjour service so the Apple TV's Remote app can discover it before
// the user is prompted for a PIN; internal/mdns only implements the
// query side, so Begin skips the publish step and assumes the address
// is already known (e.g. from a prior scan).
type dmapOrchestrator struct {
	addr string
	conn *wire.Conn
	host string

	pairingGUID string
	servicename string

	paired bool
	creds  Credentials
}

// NewDMAPOrchestrator creates an orchestrator for DMAP legacy pairing
// against addr (host:port).
func NewDMAPOrchestrator(addr string) Orchestrator {
	return &dmapOrchestrator{addr: addr}
}

func (o *dmapOrchestrator) Begin(ctx context.Context) error {
	host, _, err := net.SplitHostPort(o.addr)
	if err != nil {
		return atverrors.Wrap(atverrors.KindConnection, err, "dmap pairing: invalid address %q", o.addr)
	}
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", o.addr)
	if err != nil {
		return atverrors.Wrap(atverrors.KindConnection, err, "dmap pairing: dialing %q", o.addr)
	}
	o.conn = wire.NewConn(nc)
	o.host = host
	o.pairingGUID = randomPairingGUID()
	o.servicename = "atvkit"
	return nil
}

func (o *dmapOrchestrator) DeviceProvidesPIN() bool { return false }

func (o *dmapOrchestrator) PIN(code string) error {
	if o.conn == nil {
		return wrongOrderError("PIN")
	}

	target := fmt.Sprintf("/pair?pairingcode=%s&servicename=%s", dmapPairingCode(o.pairingGUID, code), o.servicename)
	if err := o.conn.WriteRequest(wire.RequestLine{Method: "GET", Target: target, Proto: "HTTP/1.1"}, map[string]string{
		"Host":       o.host,
		"User-Agent": "atvkit",
	}, nil, false); err != nil {
		return atverrors.Wrap(atverrors.KindConnection, err, "dmap pairing: sending /pair request")
	}

	status, _, body, err := o.conn.ReadResponse()
	if err != nil {
		return atverrors.Wrap(atverrors.KindConnection, err, "dmap pairing: reading /pair response")
	}
	if status.StatusCode == 403 {
		return atverrors.Pairing("dmap pairing: PIN rejected")
	}
	if status.StatusCode >= 400 {
		return atverrors.Protocol("dmap pairing: /pair failed: %d %s", status.StatusCode, status.Reason)
	}

	nodes, err := dmaptlv.Decode(body, dmapPairingTagDict)
	if err != nil {
		return atverrors.Wrap(atverrors.KindProtocol, err, "dmap pairing: decoding /pair response")
	}
	if cmpa, ok := dmaptlv.Find(nodes, "cmpa"); ok {
		nodes = cmpa.Children
	}
	if _, ok := dmaptlv.Find(nodes, "cmpg"); !ok {
		return atverrors.Pairing("dmap pairing: response missing cmpg")
	}

	o.creds = Credentials{PairingGUID: o.pairingGUID}
	o.paired = true
	return nil
}

func (o *dmapOrchestrator) Finish(ctx context.Context) error {
	if !o.paired {
		return wrongOrderError("Finish")
	}
	return nil
}

func (o *dmapOrchestrator) HasPaired() bool { return o.paired }

func (o *dmapOrchestrator) Credentials() Credentials { return o.creds }

func (o *dmapOrchestrator) Close() error {
	if o.conn == nil {
		return nil
	}
	return o.conn.Close()
}

var _ Orchestrator = (*dmapOrchestrator)(nil)

// randomPairingGUID generates the 0xHHHHHHHHHHHHHHHH identifier DMAP
// logs a pairing record under.
func randomPairingGUID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return "0x" + hex.EncodeToString(b[:])
}

// dmapPairingCode folds the pairing GUID and each digit of the PIN
// through MD5, matching the scheme older iTunes-remote pairing clients
// use to authenticate a /pair request.
func dmapPairingCode(pairingGUID, pin string) string {
	sum := md5.Sum([]byte(pairingGUID))
	for _, digit := range pin {
		sum = md5.Sum(append(sum[:], byte(digit)))
	}
	return fmt.Sprintf("%0X", sum)
}
