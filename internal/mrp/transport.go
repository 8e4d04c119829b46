package mrp

import (
	"bufio"
	"io"
	"net"

	"github.com/atvkit/atvkit/internal/atverrors"
	"github.com/atvkit/atvkit/internal/codec/mrpproto"
	"github.com/atvkit/atvkit/internal/hap"
	"github.com/atvkit/atvkit/internal/wire"
)

// Transport carries varint-length-prefixed protobuf frames. The plain
// TCP connection used pre-tvOS-15 and the tvOS-15 MRP-over-AirPlay-2
// tunnel both satisfy it identically; framing and message content never
// change, only what carries the bytes.
type Transport interface {
	// SendFrame writes one frame body, applying session encryption if a
	// Session has been installed.
	SendFrame(body []byte) error
	// RecvFrame blocks for one complete frame body, undoing session
	// encryption if a Session has been installed.
	RecvFrame() ([]byte, error)
	// InstallSession switches the transport to an encrypted Session
	// once Pair-Verify completes. Frames before this call are sent and
	// read in the clear.
	InstallSession(s *hap.Session)
	Close() error
}

// streamTransport implements Transport over any io.ReadWriteCloser: a
// plain TCP socket pre-pairing, or the tvOS-15 AirPlay-2 tunnel stream
// the relay package selects in its place.
type streamTransport struct {
	rwc     io.ReadWriteCloser
	r       *bufio.Reader
	session *hap.Session

	// plainBuf holds received ciphertext that Session.Decrypt has not
	// yet consumed because it does not form a complete HAP frame.
	plainBuf []byte
}

// NewStreamTransport wraps rwc in a Transport. Used directly for a
// plain TCP dial and, by the relay package, for the AirPlay-2 tunnel's
// data stream.
func NewStreamTransport(rwc io.ReadWriteCloser) Transport {
	return &streamTransport{rwc: rwc, r: bufio.NewReader(rwc)}
}

// DialTCP opens a TCP connection to addr and wraps it in a Transport,
// applying the MRP keep-alive tuning from §5.
func DialTCP(addr string) (Transport, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindConnection, err, "mrp: dialing %q", addr)
	}
	_ = wire.EnableKeepAlive(nc, wire.DefaultKeepAliveConfig())
	return NewStreamTransport(nc), nil
}

func (t *streamTransport) InstallSession(s *hap.Session) {
	t.session = s
}

func (t *streamTransport) SendFrame(body []byte) error {
	if t.session == nil {
		return mrpproto.WriteFrame(t.rwc, body)
	}
	sealed, err := t.session.Encrypt(body)
	if err != nil {
		return err
	}
	return mrpproto.WriteFrame(t.rwc, sealed)
}

func (t *streamTransport) RecvFrame() ([]byte, error) {
	raw, err := mrpproto.ReadFrame(t.r)
	if err != nil {
		return nil, err
	}
	if t.session == nil {
		return raw, nil
	}

	t.plainBuf = append(t.plainBuf, raw...)
	for {
		plain, consumed, err := t.session.Decrypt(t.plainBuf)
		if err != nil {
			return nil, err
		}
		if consumed > 0 {
			t.plainBuf = t.plainBuf[consumed:]
			return plain, nil
		}
		// The encrypted MRP frame the outer varint length described
		// didn't contain a complete HAP frame (rare, but the two framing
		// layers are independent); pull one more outer frame and retry.
		more, err := mrpproto.ReadFrame(t.r)
		if err != nil {
			return nil, err
		}
		t.plainBuf = append(t.plainBuf, more...)
	}
}

func (t *streamTransport) Close() error {
	return t.rwc.Close()
}
