package raop

import (
	"net"
	"time"

	"github.com/atvkit/atvkit/internal/atvlog"
	"github.com/atvkit/atvkit/internal/codec/rtpframe"
)

// timingResponder answers the receiver's NTP-style timing requests on
// the timing UDP port, stamping each reply with the local receive and
// send times so the far side can compute clock offset and round-trip
// delay (§4.10).
type timingResponder struct {
	conn   *net.UDPConn
	logger *atvlog.Logger
	closed chan struct{}
}

func newTimingResponder(conn *net.UDPConn, logger *atvlog.Logger) *timingResponder {
	t := &timingResponder{conn: conn, logger: logger.WithComponent("raop-timing"), closed: make(chan struct{})}
	go t.loop()
	return t
}

func (t *timingResponder) loop() {
	buf := make([]byte, 256)
	for {
		_ = t.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, addr, err := t.conn.ReadFromUDP(buf)
		select {
		case <-t.closed:
			return
		default:
		}
		if err != nil {
			continue
		}
		received := time.Now()
		req, err := rtpframe.DecodeTimingPacket(buf[:n])
		if err != nil {
			continue
		}
		reply := rtpframe.TimingPacket{
			ReferenceTime: req.SendTime,
			ReceivedTime:  rtpframe.ToNTPTimestamp(received),
			SendTime:      rtpframe.ToNTPTimestamp(time.Now()),
		}
		out := rtpframe.EncodeTimingPacket(true, reply)
		if _, err := t.conn.WriteToUDP(out, addr); err != nil {
			t.logger.Warn("raop: timing reply failed", "error", err)
		}
	}
}

func (t *timingResponder) close() {
	select {
	case <-t.closed:
	default:
		close(t.closed)
	}
}
