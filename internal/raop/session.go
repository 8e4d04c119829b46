// Package raop implements the RAOP/AirPlay audio streamer: RTSP session
// bring-up, RTP packetization and absolute-time scheduling, NACK-driven
// retransmission, and the NTP-style timing exchange (§4.10).
package raop

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/atvkit/atvkit/internal/atverrors"
	"github.com/atvkit/atvkit/internal/atvlog"
	"github.com/atvkit/atvkit/internal/wire"
	"github.com/atvkit/atvkit/internal/xcrypto"
)

// Codec names the audio encoding declared in the ANNOUNCE SDP body.
type Codec string

const (
	CodecPCM    Codec = "pcm"
	CodecALAC   Codec = "alac"
	CodecAACELD Codec = "aac-eld"
)

// Config describes the stream a Session will negotiate.
type Config struct {
	SampleRate int
	Channels   int
	Codec      Codec

	// FramesPerPacket is the number of audio samples carried per RTP
	// packet: 352 for ALAC/AAC-ELD, 4096 for raw PCM is typical.
	FramesPerPacket int

	// Password authenticates against receivers (older AirPort Express
	// units, third-party RAOP servers) that challenge the RTSP session
	// with HTTP Digest instead of HAP pairing. Left empty for devices
	// that don't challenge at all.
	Password string
}

// Session is one RTSP-negotiated RAOP connection: the control channel
// plus the three UDP ports (audio, control, timing) SETUP negotiated.
type Session struct {
	conn   *wire.Conn
	host   string
	cseq   int
	cfg    Config
	logger *atvlog.Logger

	sessionID  string
	clientID   string
	udpAudio   *net.UDPConn
	udpControl *net.UDPConn
	udpTiming  *net.UDPConn

	serverAudioAddr   *net.UDPAddr
	serverControlAddr *net.UDPAddr

	digestRealm string
	digestNonce string

	sender *sender
	timing *timingResponder
}

// Dial opens the RTSP control connection and negotiates a session with
// OPTIONS, ANNOUNCE, SETUP and RECORD. It sends no initial volume; a
// SET_PARAMETER for volume goes out only when SetVolume is called.
func Dial(addr string, cfg Config) (*Session, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindConnection, err, "raop: invalid address %q", addr)
	}
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindConnection, err, "raop: dialing %q", addr)
	}
	_ = wire.EnableKeepAlive(nc, wire.DefaultKeepAliveConfig())

	s := &Session{
		conn:     wire.NewConn(nc),
		host:     host,
		cfg:      cfg,
		logger:   atvlog.WithComponent("raop"),
		clientID: randomClientID(),
	}

	go checkClockSkew(s.logger)

	if err := s.options(); err != nil {
		return nil, err
	}
	localAudioPort, localControlPort, localTimingPort, err := s.openUDPPorts()
	if err != nil {
		return nil, err
	}
	if err := s.announce(); err != nil {
		return nil, err
	}
	if err := s.setup(localControlPort, localTimingPort); err != nil {
		return nil, err
	}
	if err := s.record(); err != nil {
		return nil, err
	}

	s.sender = newSender(s, localAudioPort)
	s.timing = newTimingResponder(s.udpTiming, s.logger)
	return s, nil
}

func (s *Session) nextCSeq() int {
	s.cseq++
	return s.cseq
}

func (s *Session) baseHeaders() map[string]string {
	return map[string]string{
		"CSeq":            strconv.Itoa(s.nextCSeq()),
		"User-Agent":      "atvkit",
		"DACP-ID":         s.clientID,
		"Active-Remote":   s.clientID,
		"Client-Instance": s.clientID,
	}
}

func (s *Session) roundTrip(method, target string, headers map[string]string, body []byte) (map[string]string, []byte, error) {
	if s.digestNonce != "" {
		headers["Authorization"] = s.authorizationHeader(method, target)
	}

	status, respHeaders, respBody, err := s.send(method, target, headers, body)
	if err != nil {
		return nil, nil, err
	}

	if status.StatusCode == 401 {
		if s.cfg.Password == "" {
			return nil, nil, atverrors.Protocol("raop: %s %s requires a password", method, target)
		}
		realm, nonce, ok := parseDigestChallenge(headerLookup(respHeaders, "Www-Authenticate"))
		if !ok {
			return nil, nil, atverrors.Protocol("raop: unsupported auth challenge on %s %s", method, target)
		}
		s.digestRealm, s.digestNonce = realm, nonce
		headers["CSeq"] = strconv.Itoa(s.nextCSeq())
		headers["Authorization"] = s.authorizationHeader(method, target)
		status, respHeaders, respBody, err = s.send(method, target, headers, body)
		if err != nil {
			return nil, nil, err
		}
	}

	if status.StatusCode >= 300 {
		return nil, nil, atverrors.Protocol("raop: %s %s failed: %d %s", method, target, status.StatusCode, status.Reason)
	}
	if sid, ok := respHeaders["Session"]; ok {
		s.sessionID = sid
	}
	return respHeaders, respBody, nil
}

func (s *Session) send(method, target string, headers map[string]string, body []byte) (wire.StatusLine, map[string]string, []byte, error) {
	if err := s.conn.WriteRequest(wire.RequestLine{Method: method, Target: target, Proto: "RTSP/1.0"}, headers, body, false); err != nil {
		return wire.StatusLine{}, nil, nil, err
	}
	return s.conn.ReadResponse()
}

// authorizationHeader computes the Digest Authorization value for one
// request against the realm/nonce a prior 401 challenge supplied.
// RAOP's legacy password scheme has no concept of a client username.
func (s *Session) authorizationHeader(method, target string) string {
	response := xcrypto.DigestResponse("", s.digestRealm, s.cfg.Password, s.digestNonce, method, target)
	return fmt.Sprintf(`Digest username="", realm=%q, nonce=%q, uri=%q, response=%q`, s.digestRealm, s.digestNonce, target, response)
}

// parseDigestChallenge extracts realm and nonce from a WWW-Authenticate
// header of the form `Digest realm="...", nonce="..."`.
func parseDigestChallenge(header string) (realm, nonce string, ok bool) {
	for _, field := range strings.Split(header, ",") {
		field = strings.TrimSpace(field)
		switch {
		case strings.HasPrefix(field, "realm="):
			realm = strings.Trim(strings.TrimPrefix(field, "realm="), `"`)
		case strings.HasPrefix(field, "nonce="):
			nonce = strings.Trim(strings.TrimPrefix(field, "nonce="), `"`)
		case strings.HasPrefix(field, "Digest realm="):
			realm = strings.Trim(strings.TrimPrefix(field, "Digest realm="), `"`)
		}
	}
	return realm, nonce, realm != "" && nonce != ""
}

// headerLookup reads a header case-insensitively; wire.Conn preserves
// whatever casing the peer sent.
func headerLookup(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func (s *Session) target() string {
	return fmt.Sprintf("rtsp://%s/%s", s.host, s.clientID)
}

func (s *Session) options() error {
	headers := s.baseHeaders()
	_, _, err := s.roundTrip("OPTIONS", "*", headers, nil)
	return err
}

func (s *Session) announce() error {
	sdp := s.buildSDP()
	headers := s.baseHeaders()
	headers["Content-Type"] = "application/sdp"
	_, _, err := s.roundTrip("ANNOUNCE", s.target(), headers, []byte(sdp))
	return err
}

func (s *Session) buildSDP() string {
	var payloadType string
	switch s.cfg.Codec {
	case CodecALAC:
		payloadType = "96 AppleLossless"
	case CodecAACELD:
		payloadType = "96 mpeg4-generic/44100/2"
	default:
		payloadType = "96 L16"
	}
	return strings.Join([]string{
		"v=0",
		fmt.Sprintf("o=iTunes %s 0 IN IP4 0.0.0.0", s.clientID),
		"s=iTunes",
		"c=IN IP4 0.0.0.0",
		"t=0 0",
		"m=audio 0 RTP/AVP 96",
		fmt.Sprintf("a=rtpmap:%s", payloadType),
		fmt.Sprintf("a=fmtp:96 %d %d", s.cfg.FramesPerPacket, s.cfg.SampleRate),
		"",
	}, "\r\n")
}

func (s *Session) openUDPPorts() (audioPort, controlPort, timingPort int, err error) {
	audioConn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return 0, 0, 0, atverrors.Wrap(atverrors.KindConnection, err, "raop: opening audio UDP port")
	}
	controlConn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return 0, 0, 0, atverrors.Wrap(atverrors.KindConnection, err, "raop: opening control UDP port")
	}
	timingConn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return 0, 0, 0, atverrors.Wrap(atverrors.KindConnection, err, "raop: opening timing UDP port")
	}
	s.udpAudio, s.udpControl, s.udpTiming = audioConn, controlConn, timingConn
	return audioConn.LocalAddr().(*net.UDPAddr).Port,
		controlConn.LocalAddr().(*net.UDPAddr).Port,
		timingConn.LocalAddr().(*net.UDPAddr).Port, nil
}

func (s *Session) setup(localControlPort, localTimingPort int) error {
	headers := s.baseHeaders()
	headers["Transport"] = fmt.Sprintf(
		"RTP/AVP/UDP;unicast;interleaved=0-1;mode=record;control_port=%d;timing_port=%d",
		localControlPort, localTimingPort,
	)
	respHeaders, _, err := s.roundTrip("SETUP", s.target(), headers, nil)
	if err != nil {
		return err
	}
	transport := respHeaders["Transport"]
	audioPort := parseTransportPort(transport, "server_port")
	controlPort := parseTransportPort(transport, "control_port")
	if audioPort == 0 {
		return atverrors.Protocol("raop: SETUP response missing server_port")
	}
	s.serverAudioAddr = &net.UDPAddr{IP: net.ParseIP(s.host), Port: audioPort}
	if controlPort != 0 {
		s.serverControlAddr = &net.UDPAddr{IP: net.ParseIP(s.host), Port: controlPort}
	}
	return nil
}

func parseTransportPort(transport, key string) int {
	for _, field := range strings.Split(transport, ";") {
		if strings.HasPrefix(field, key+"=") {
			port, _ := strconv.Atoi(strings.TrimPrefix(field, key+"="))
			return port
		}
	}
	return 0
}

func (s *Session) record() error {
	headers := s.baseHeaders()
	headers["Range"] = "npt=0-"
	headers["RTP-Info"] = "seq=0;rtptime=0"
	if s.sessionID != "" {
		headers["Session"] = s.sessionID
	}
	_, _, err := s.roundTrip("RECORD", s.target(), headers, nil)
	return err
}

// Stream sends frames of raw 16-bit PCM read from r, scheduled in
// absolute time with a silent preroll. Blocks until r is exhausted or
// an error occurs; RAOP is live streaming, so r is read sequentially
// only — MP3 sources without seek support work here unmodified.
func (s *Session) Stream(r io.Reader) error {
	return s.sender.Stream(r)
}

// SetVolume sets output volume on a -30.0…0.0 dB scale; -144.0 mutes.
func (s *Session) SetVolume(db float64) error {
	if db != -144.0 && (db < -30.0 || db > 0.0) {
		return atverrors.InvalidArgument("raop: volume %.1f out of range [-30.0, 0.0] (or -144.0 to mute)", db)
	}
	headers := s.baseHeaders()
	headers["Content-Type"] = "text/parameters"
	if s.sessionID != "" {
		headers["Session"] = s.sessionID
	}
	body := fmt.Sprintf("volume: %.6f\r\n", db)
	_, _, err := s.roundTrip("SET_PARAMETER", s.target(), headers, []byte(body))
	return err
}

// Close tears down UDP ports and the RTSP connection.
func (s *Session) Close() error {
	if s.sender != nil {
		s.sender.close()
	}
	if s.timing != nil {
		s.timing.close()
	}
	if s.udpAudio != nil {
		_ = s.udpAudio.Close()
	}
	if s.udpControl != nil {
		_ = s.udpControl.Close()
	}
	if s.udpTiming != nil {
		_ = s.udpTiming.Close()
	}
	return s.conn.Close()
}

func randomClientID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return strings.ToUpper(base64.RawURLEncoding.EncodeToString(b))[:16]
}
