// Package companion implements the Companion protocol: HAP-pairing then
// an OPACK request/response/event RPC used for app launching, remote
// control, power, and keyboard operations (§4.9).
package companion

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/atvkit/atvkit/internal/atverrors"
	"github.com/atvkit/atvkit/internal/hap"
)

const maxFrameBody = 1 << 20

// frameKind disambiguates the three OPACK dict shapes the protocol
// carries over one connection: Request carries `_i`/`_x`/`_c`/`_t` plus
// arguments, Response carries `_x`/`_c`/a result, Event carries `_i`/
// `_c`/a body.
type frameKind string

const (
	frameRequest  frameKind = "request"
	frameResponse frameKind = "response"
	frameEvent    frameKind = "event"
)

// transport carries 4-byte-length-prefixed OPACK frames over one HAP
// session, the Companion-protocol analogue of internal/mrp.Transport.
type transport struct {
	rwc     io.ReadWriteCloser
	r       *bufio.Reader
	session *hap.Session

	plainBuf []byte
}

func newTransport(rwc io.ReadWriteCloser) *transport {
	return &transport{rwc: rwc, r: bufio.NewReader(rwc)}
}

func (t *transport) installSession(s *hap.Session) {
	t.session = s
}

func (t *transport) send(body []byte) error {
	if len(body) > maxFrameBody {
		return atverrors.Protocol("companion: frame body too large (%d bytes)", len(body))
	}
	if t.session != nil {
		sealed, err := t.session.Encrypt(body)
		if err != nil {
			return err
		}
		body = sealed
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := t.rwc.Write(hdr[:]); err != nil {
		return err
	}
	_, err := t.rwc.Write(body)
	return err
}

func (t *transport) recv() ([]byte, error) {
	raw, err := t.readOneFrame()
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
		more, err := t.readOneFrame()
		if err != nil {
			return nil, err
		}
		t.plainBuf = append(t.plainBuf, more...)
	}
}

func (t *transport) readOneFrame() ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(t.r, hdr[:]); err != nil {
		return nil, atverrors.Wrap(atverrors.KindConnection, err, "companion: reading frame header")
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameBody {
		return nil, atverrors.Protocol("companion: frame body too large (%d bytes)", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(t.r, body); err != nil {
		return nil, atverrors.Wrap(atverrors.KindConnection, err, "companion: reading frame body")
	}
	return body, nil
}

func (t *transport) Close() error {
	return t.rwc.Close()
}
