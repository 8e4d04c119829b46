package testutil

import (
	"net"
	"sync"
	"testing"

	"github.com/atvkit/atvkit/internal/codec/rtpframe"
)

// FakeRAOPReceiver is the receive side of a RAOP stream: a pair of
// loopback UDP sockets that record incoming audio packets and can
// drive a NACK/retransmit exchange, enough to exercise a streamer's
// retransmit ring without a real speaker.
type FakeRAOPReceiver struct {
	audio   *net.UDPConn
	control *net.UDPConn

	mu       sync.Mutex
	received map[uint16][]byte
	order    []uint16
}

// NewFakeRAOPReceiver opens the audio and control sockets and starts
// recording audio packets.
func NewFakeRAOPReceiver(t *testing.T) *FakeRAOPReceiver {
	t.Helper()
	r := &FakeRAOPReceiver{
		audio:    NewLoopbackUDP(t),
		control:  NewLoopbackUDP(t),
		received: make(map[uint16][]byte),
	}
	go r.readAudio()
	return r
}

// AudioAddr is the address a streamer should send RTP audio packets to.
func (r *FakeRAOPReceiver) AudioAddr() *net.UDPAddr { return r.audio.LocalAddr().(*net.UDPAddr) }

// ControlAddr is the address a streamer should send/receive RTCP
// control packets on (retransmit requests and responses).
func (r *FakeRAOPReceiver) ControlAddr() *net.UDPAddr { return r.control.LocalAddr().(*net.UDPAddr) }

func (r *FakeRAOPReceiver) readAudio() {
	buf := make([]byte, 2048)
	for {
		n, _, err := r.audio.ReadFromUDP(buf)
		if err != nil {
			return
		}
		hdr, payload, err := rtpframe.Decode(buf[:n])
		if err != nil {
			continue
		}
		r.mu.Lock()
		if _, seen := r.received[hdr.SequenceNumber]; !seen {
			r.order = append(r.order, hdr.SequenceNumber)
		}
		r.received[hdr.SequenceNumber] = append([]byte(nil), payload...)
		r.mu.Unlock()
	}
}

// ReceivedSequences returns the audio sequence numbers seen so far, in
// the order they arrived.
func (r *FakeRAOPReceiver) ReceivedSequences() []uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint16(nil), r.order...)
}

// RequestRetransmit sends a NACK for [first, first+count) to
// senderControl, the streamer's local control port.
func (r *FakeRAOPReceiver) RequestRetransmit(senderControl *net.UDPAddr, first, count uint16) error {
	req := rtpframe.EncodeRetransmitRequest(rtpframe.RetransmitRequest{FirstSequence: first, Count: count})
	_, err := r.control.WriteToUDP(req, senderControl)
	return err
}

// ReadRetransmit blocks for one retransmitted packet on the control
// socket and returns its original sequence number and payload.
func (r *FakeRAOPReceiver) ReadRetransmit() (uint16, []byte, error) {
	buf := make([]byte, 2048)
	n, _, err := r.control.ReadFromUDP(buf)
	if err != nil {
		return 0, nil, err
	}
	seq, original, err := rtpframe.DecodeRetransmit(buf[:n])
	if err != nil {
		return 0, nil, err
	}
	_, payload, err := rtpframe.Decode(original)
	if err != nil {
		return 0, nil, err
	}
	return seq, payload, nil
}

// Close releases both sockets.
func (r *FakeRAOPReceiver) Close() error {
	r.audio.Close()
	r.control.Close()
	return nil
}
