package rtpframe

import (
	"encoding/binary"
	"fmt"
)

// RetransmitPayloadType is the RTP payload type RAOP uses for packets
// resent on the control channel in answer to a NACK.
const RetransmitPayloadType = 0x56

// retransmitPrefixSize is the 4-byte original-sequence prefix prepended
// to the resent RTP packet, per RAOP's retransmit framing.
const retransmitPrefixSize = 4

// EncodeRetransmit wraps original (a fully encoded RTP audio packet,
// header included) with the retransmit header the receiver expects on
// the control port: an RTP header of its own (PayloadType
// RetransmitPayloadType) followed by a 4-byte prefix whose last two
// bytes carry the original sequence number, then the original packet.
func EncodeRetransmit(seq uint16, original []byte) []byte {
	prefix := make([]byte, retransmitPrefixSize)
	binary.BigEndian.PutUint16(prefix[2:4], seq)
	rtxHeader := Header{PayloadType: RetransmitPayloadType, SequenceNumber: seq}
	return rtxHeader.Encode(append(prefix, original...))
}

// DecodeRetransmit reverses EncodeRetransmit, returning the original
// sequence number and the wrapped RTP packet bytes.
func DecodeRetransmit(data []byte) (uint16, []byte, error) {
	h, payload, err := Decode(data)
	if err != nil {
		return 0, nil, err
	}
	if h.PayloadType != RetransmitPayloadType {
		return 0, nil, fmt.Errorf("rtpframe: payload type %d is not a retransmit", h.PayloadType)
	}
	if len(payload) < retransmitPrefixSize {
		return 0, nil, fmt.Errorf("rtpframe: retransmit payload too short for prefix")
	}
	origSeq := binary.BigEndian.Uint16(payload[2:4])
	return origSeq, payload[retransmitPrefixSize:], nil
}
