package rtpframe

import (
	"encoding/binary"
	"fmt"
	"time"
)

// RTCP payload types used on RAOP's timing and control ports.
const (
	PayloadTypeSync      = 0x54
	PayloadTypeTiming    = 0x53
	PayloadTypeRetransmitRequest = 0x55
)

// ntpEpochOffset is the number of seconds between the NTP epoch
// (1900-01-01) and the Unix epoch (1970-01-01).
const ntpEpochOffset = 2208988800

// NTPTimestamp is the 64-bit fixed-point (32.32) NTP timestamp format
// used in the timing exchange, matching the sec/frac fields of a
// standard NTP packet.
type NTPTimestamp struct {
	Seconds  uint32
	Fraction uint32
}

// ToNTPTimestamp converts a wall-clock time to its NTP fixed-point
// representation.
func ToNTPTimestamp(t time.Time) NTPTimestamp {
	sec := uint32(t.Unix() + ntpEpochOffset)
	frac := uint64(t.Nanosecond()) * (1 << 32) / 1e9
	return NTPTimestamp{Seconds: sec, Fraction: uint32(frac)}
}

// Time converts an NTP fixed-point timestamp back to a wall-clock time.
func (n NTPTimestamp) Time() time.Time {
	sec := int64(n.Seconds) - ntpEpochOffset
	nsec := int64(n.Fraction) * 1e9 / (1 << 32)
	return time.Unix(sec, nsec)
}

func (n NTPTimestamp) encode(b []byte) {
	binary.BigEndian.PutUint32(b[0:4], n.Seconds)
	binary.BigEndian.PutUint32(b[4:8], n.Fraction)
}

func decodeNTPTimestamp(b []byte) NTPTimestamp {
	return NTPTimestamp{
		Seconds:  binary.BigEndian.Uint32(b[0:4]),
		Fraction: binary.BigEndian.Uint32(b[4:8]),
	}
}

// TimingPacket is the four-timestamp NTP-style exchange RAOP uses to
// keep the receiver's clock locked to the sender's.
type TimingPacket struct {
	ReferenceTime NTPTimestamp
	ReceivedTime  NTPTimestamp
	SendTime      NTPTimestamp
}

// timingBodySize is 24 bytes: three 8-byte NTP timestamps.
const timingBodySize = 24

// EncodeTimingPacket serializes a TimingPacket behind its RTP header.
func EncodeTimingPacket(marker bool, p TimingPacket) []byte {
	body := make([]byte, timingBodySize)
	p.ReferenceTime.encode(body[0:8])
	p.ReceivedTime.encode(body[8:16])
	p.SendTime.encode(body[16:24])
	h := Header{Marker: marker, PayloadType: PayloadTypeTiming}
	return h.Encode(body)
}

// DecodeTimingPacket parses a timing-request or timing-reply packet.
func DecodeTimingPacket(data []byte) (TimingPacket, error) {
	h, body, err := Decode(data)
	if err != nil {
		return TimingPacket{}, err
	}
	if h.PayloadType != PayloadTypeTiming {
		return TimingPacket{}, fmt.Errorf("rtpframe: payload type %d is not a timing packet", h.PayloadType)
	}
	if len(body) < timingBodySize {
		return TimingPacket{}, fmt.Errorf("rtpframe: timing body of %d bytes too short", len(body))
	}
	return TimingPacket{
		ReferenceTime: decodeNTPTimestamp(body[0:8]),
		ReceivedTime:  decodeNTPTimestamp(body[8:16]),
		SendTime:      decodeNTPTimestamp(body[16:24]),
	}, nil
}

// SyncPacket announces the RTP timestamp corresponding to a known wall
// clock instant, letting the receiver align playout.
type SyncPacket struct {
	RTPTimestampLatency uint32
	CurrentTime         NTPTimestamp
	RTPTimestampNext     uint32
}

const syncBodySize = 16

// EncodeSyncPacket serializes a SyncPacket behind its RTP header.
func EncodeSyncPacket(p SyncPacket) []byte {
	body := make([]byte, syncBodySize)
	binary.BigEndian.PutUint32(body[0:4], p.RTPTimestampLatency)
	p.CurrentTime.encode(body[4:12])
	binary.BigEndian.PutUint32(body[12:16], p.RTPTimestampNext)
	h := Header{Marker: true, PayloadType: PayloadTypeSync}
	return h.Encode(body)
}

// DecodeSyncPacket parses a sync packet.
func DecodeSyncPacket(data []byte) (SyncPacket, error) {
	h, body, err := Decode(data)
	if err != nil {
		return SyncPacket{}, err
	}
	if h.PayloadType != PayloadTypeSync {
		return SyncPacket{}, fmt.Errorf("rtpframe: payload type %d is not a sync packet", h.PayloadType)
	}
	if len(body) < syncBodySize {
		return SyncPacket{}, fmt.Errorf("rtpframe: sync body of %d bytes too short", len(body))
	}
	return SyncPacket{
		RTPTimestampLatency: binary.BigEndian.Uint32(body[0:4]),
		CurrentTime:         decodeNTPTimestamp(body[4:12]),
		RTPTimestampNext:    binary.BigEndian.Uint32(body[12:16]),
	}, nil
}

// RetransmitRequest is a NACK: one contiguous range of sequence numbers
// the receiver is missing.
type RetransmitRequest struct {
	FirstSequence uint16
	Count         uint16
}

const retransmitRequestBodySize = 4

// EncodeRetransmitRequest serializes a single NACK range behind its
// RTP header.
func EncodeRetransmitRequest(r RetransmitRequest) []byte {
	body := make([]byte, retransmitRequestBodySize)
	binary.BigEndian.PutUint16(body[0:2], r.FirstSequence)
	binary.BigEndian.PutUint16(body[2:4], r.Count)
	h := Header{Marker: true, PayloadType: PayloadTypeRetransmitRequest}
	return h.Encode(body)
}

// DecodeRetransmitRequest parses a NACK range.
func DecodeRetransmitRequest(data []byte) (RetransmitRequest, error) {
	h, body, err := Decode(data)
	if err != nil {
		return RetransmitRequest{}, err
	}
	if h.PayloadType != PayloadTypeRetransmitRequest {
		return RetransmitRequest{}, fmt.Errorf("rtpframe: payload type %d is not a retransmit request", h.PayloadType)
	}
	if len(body) < retransmitRequestBodySize {
		return RetransmitRequest{}, fmt.Errorf("rtpframe: retransmit request body of %d bytes too short", len(body))
	}
	return RetransmitRequest{
		FirstSequence: binary.BigEndian.Uint16(body[0:2]),
		Count:         binary.BigEndian.Uint16(body[2:4]),
	}, nil
}
