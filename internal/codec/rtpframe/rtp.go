// Package rtpframe implements RAOP's RTP audio framing and the RTCP
// control messages (sync, timing, retransmit request/response) carried
// on separate UDP ports alongside it.
package rtpframe

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed size of an RTP header with no CSRC list.
const HeaderSize = 12

// Header is an RFC 3550 RTP header as RAOP uses it: version 2, no
// padding, no extension, no CSRC.
type Header struct {
	Marker         bool
	PayloadType    uint8
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
}

// Encode writes the 12-byte RTP header followed by payload.
func (h Header) Encode(payload []byte) []byte {
	out := make([]byte, HeaderSize+len(payload))
	out[0] = 0x80 // version 2, no padding, no extension, CC=0
	pt := h.PayloadType & 0x7F
	if h.Marker {
		pt |= 0x80
	}
	out[1] = pt
	binary.BigEndian.PutUint16(out[2:4], h.SequenceNumber)
	binary.BigEndian.PutUint32(out[4:8], h.Timestamp)
	binary.BigEndian.PutUint32(out[8:12], h.SSRC)
	copy(out[HeaderSize:], payload)
	return out
}

// Decode parses an RTP header and returns it along with the remaining
// payload bytes.
func Decode(data []byte) (Header, []byte, error) {
	if len(data) < HeaderSize {
		return Header{}, nil, fmt.Errorf("rtpframe: packet of %d bytes shorter than RTP header", len(data))
	}
	version := data[0] >> 6
	if version != 2 {
		return Header{}, nil, fmt.Errorf("rtpframe: unsupported RTP version %d", version)
	}
	h := Header{
		Marker:         data[1]&0x80 != 0,
		PayloadType:    data[1] & 0x7F,
		SequenceNumber: binary.BigEndian.Uint16(data[2:4]),
		Timestamp:      binary.BigEndian.Uint32(data[4:8]),
		SSRC:           binary.BigEndian.Uint32(data[8:12]),
	}
	return h, data[HeaderSize:], nil
}
