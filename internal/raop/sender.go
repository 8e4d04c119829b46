package raop

import (
	"io"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/atvkit/atvkit/internal/atvlog"
	"github.com/atvkit/atvkit/internal/codec/rtpframe"
)

// retransmitRingSize is the number of recent packets kept for NACK
// answering, per §4.10's ~1024-packet ring buffer.
const retransmitRingSize = 1024

// prerollDuration is the silence fed before the first real audio frame,
// giving the receiver's buffer time to fill before playout starts.
const prerollDuration = 2 * time.Second

// sender packetizes PCM audio into RTP packets on an absolute-time
// schedule, answering retransmit requests from a ring buffer of
// recently-sent packets.
type sender struct {
	session    *Session
	audioConn  *net.UDPConn
	controlConn *net.UDPConn

	ssrc       uint32
	seq        uint16
	rtpTime    uint32
	startTime  time.Time

	mu   sync.Mutex
	ring [retransmitRingSize][]byte

	logger *atvlog.Logger
	closed chan struct{}
	once   sync.Once
}

func newSender(s *Session, localAudioPort int) *sender {
	sd := &sender{
		session:     s,
		audioConn:   s.udpAudio,
		controlConn: s.udpControl,
		ssrc:        rand.Uint32(),
		logger:      s.logger.WithComponent("raop-sender"),
		closed:      make(chan struct{}),
	}
	if s.serverControlAddr != nil {
		go sd.retransmitResponder()
	}
	return sd
}

// Stream encodes frames of raw 16-bit PCM read from r into RTP packets
// and sends them on an absolute-time schedule: after a silent preroll,
// each packet is transmitted at startTime + framesSent/sampleRate.
//
// r must support sequential reads only; RAOP's live-streaming model has
// no seek, so MP3 sources without external seek support (§9) work
// unmodified here.
func (s *sender) Stream(r io.Reader) error {
	frameBytes := s.session.cfg.FramesPerPacket * s.session.cfg.Channels * 2
	buf := make([]byte, frameBytes)

	s.startTime = time.Now().Add(prerollDuration)
	if err := s.sendSilence(); err != nil {
		return err
	}

	var framesSent uint32
	for {
		n, err := io.ReadFull(r, buf)
		if n == 0 {
			if err == io.EOF {
				return nil
			}
			return err
		}
		deadline := s.startTime.Add(time.Duration(framesSent) * time.Second / time.Duration(s.session.cfg.SampleRate))
		if d := time.Until(deadline); d > 0 {
			time.Sleep(d)
		}
		if err := s.sendPacket(buf[:n], false); err != nil {
			return err
		}
		framesSent += uint32(s.session.cfg.FramesPerPacket)
		if err == io.ErrUnexpectedEOF {
			return nil
		}
	}
}

func (s *sender) sendSilence() error {
	frameBytes := s.session.cfg.FramesPerPacket * s.session.cfg.Channels * 2
	silence := make([]byte, frameBytes)
	n := int(prerollDuration.Seconds()*float64(s.session.cfg.SampleRate)) / s.session.cfg.FramesPerPacket
	for i := 0; i < n; i++ {
		if err := s.sendPacket(silence, i == 0); err != nil {
			return err
		}
	}
	return nil
}

func (s *sender) sendPacket(payload []byte, marker bool) error {
	hdr := rtpframe.Header{
		Marker:         marker,
		PayloadType:    96,
		SequenceNumber: s.seq,
		Timestamp:      s.rtpTime,
		SSRC:           s.ssrc,
	}
	packet := hdr.Encode(payload)

	s.mu.Lock()
	s.ring[s.seq%retransmitRingSize] = packet
	s.mu.Unlock()

	s.seq++
	s.rtpTime += uint32(s.session.cfg.FramesPerPacket)

	_, err := s.audioConn.WriteToUDP(packet, s.session.serverAudioAddr)
	return err
}

// retransmitResponder answers NACKs on the control port from the ring
// buffer, silently dropping requests for packets already evicted.
func (s *sender) retransmitResponder() {
	buf := make([]byte, 2048)
	for {
		_ = s.controlConn.SetReadDeadline(time.Now().Add(time.Second))
		n, _, err := s.controlConn.ReadFromUDP(buf)
		select {
		case <-s.closed:
			return
		default:
		}
		if err != nil {
			continue
		}
		req, err := rtpframe.DecodeRetransmitRequest(buf[:n])
		if err != nil {
			continue
		}
		s.answerRetransmit(req)
	}
}

func (s *sender) answerRetransmit(req rtpframe.RetransmitRequest) {
	for i := uint16(0); i < req.Count; i++ {
		seq := req.FirstSequence + i
		s.mu.Lock()
		packet := s.ring[seq%retransmitRingSize]
		s.mu.Unlock()
		if packet == nil {
			continue
		}
		hdr, _, err := rtpframe.Decode(packet)
		if err != nil || hdr.SequenceNumber != seq {
			continue
		}
		out := rtpframe.EncodeRetransmit(seq, packet)
		if _, err := s.controlConn.WriteToUDP(out, s.session.serverControlAddr); err != nil {
			s.logger.Warn("raop: retransmit response failed", "seq", seq, "error", err)
		}
	}
}

func (s *sender) close() {
	s.once.Do(func() { close(s.closed) })
}
