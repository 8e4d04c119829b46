package mrpproto

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Type identifies the inner message carried by a ProtocolMessage
// envelope.
type Type int32

const (
	TypeUnknown Type = iota
	TypeDeviceInfoMessage
	TypeSetConnectionStateMessage
	TypeClientUpdatesConfigMessage
	TypeSetStateMessage
	TypeUpdateClientMessage
	TypeUpdateContentItemMessage
	TypeUpdateOutputDeviceMessage
	TypeSendCommandMessage
	TypeCommandResultMessage
	TypeSetNowPlayingClientMessage
	TypeDeviceInfoUpdateMessage
	TypeCryptoPairingMessage
	TypeHeartbeatMessage
)

// payloadFieldNumbers maps each Type to the ProtocolMessage field its
// payload is embedded in — one field per message type, mirroring how
// Apple's real MRP .proto declares a dedicated optional submessage per
// ProtocolMessage_Type rather than a single oneof.
var payloadFieldNumbers = map[Type]protowire.Number{
	TypeDeviceInfoMessage:          10,
	TypeSetConnectionStateMessage:  11,
	TypeClientUpdatesConfigMessage: 12,
	TypeSetStateMessage:            13,
	TypeUpdateClientMessage:        14,
	TypeUpdateContentItemMessage:   15,
	TypeUpdateOutputDeviceMessage:  16,
	TypeSendCommandMessage:         17,
	TypeCommandResultMessage:       18,
	TypeSetNowPlayingClientMessage: 19,
	TypeDeviceInfoUpdateMessage:    20,
	TypeCryptoPairingMessage:       21,
	TypeHeartbeatMessage:           22,
}

// newMessage constructs a zero-value Message for decoding a given Type.
// This is the "enum-indexed jump table" the inner message dispatch is
// built around: extend it once to support a new message, and both
// Encode and Decode pick it up.
var newMessage = map[Type]func() Message{
	TypeDeviceInfoMessage:          func() Message { return &DeviceInfoMessage{} },
	TypeSetConnectionStateMessage:  func() Message { return &SetConnectionStateMessage{} },
	TypeClientUpdatesConfigMessage: func() Message { return &ClientUpdatesConfigMessage{} },
	TypeSetStateMessage:            func() Message { return &SetStateMessage{} },
	TypeUpdateClientMessage:        func() Message { return &UpdateClientMessage{} },
	TypeUpdateContentItemMessage:   func() Message { return &UpdateContentItemMessage{} },
	TypeUpdateOutputDeviceMessage:  func() Message { return &UpdateOutputDeviceMessage{} },
	TypeSendCommandMessage:         func() Message { return &SendCommandMessage{} },
	TypeCommandResultMessage:       func() Message { return &CommandResultMessage{} },
	TypeSetNowPlayingClientMessage: func() Message { return &SetNowPlayingClientMessage{} },
	TypeDeviceInfoUpdateMessage:    func() Message { return &DeviceInfoUpdateMessage{} },
	TypeCryptoPairingMessage:       func() Message { return &CryptoPairingMessage{} },
	TypeHeartbeatMessage:           func() Message { return &HeartbeatMessage{} },
}

// ProtocolMessage is the outer envelope every MRP frame carries.
type ProtocolMessage struct {
	Type       Type
	Identifier string
	Payload    Message
	Unknown    []byte
}

// Encode serializes the envelope, dispatching Payload into the field
// number registered for its Type.
func Encode(pm *ProtocolMessage) ([]byte, error) {
	var b []byte
	b = appendVarint(b, 1, uint64(pm.Type))
	b = appendString(b, 2, pm.Identifier)

	if pm.Payload != nil {
		fieldNum, ok := payloadFieldNumbers[pm.Type]
		if !ok {
			return nil, fmt.Errorf("mrpproto: no payload field registered for type %d", pm.Type)
		}
		b = protowire.AppendTag(b, fieldNum, protowire.BytesType)
		b = protowire.AppendBytes(b, pm.Payload.Marshal())
	}
	return append(b, pm.Unknown...), nil
}

// Decode parses a ProtocolMessage envelope and, via the jump table,
// the inner message matching its declared Type. An unrecognized Type
// still decodes successfully with a nil Payload; callers can inspect
// Unknown for the raw payload bytes.
func Decode(data []byte) (*ProtocolMessage, error) {
	pm := &ProtocolMessage{}
	var payloadBytes []byte
	var payloadRaw []byte
	var payloadField protowire.Number

	err := walkFields(data, func(num protowire.Number, typ protowire.Type, v fieldValue, raw []byte) error {
		switch {
		case num == 1 && typ == protowire.VarintType:
			pm.Type = Type(v.varint)
		case num == 2 && typ == protowire.BytesType:
			pm.Identifier = v.str
		case typ == protowire.BytesType:
			payloadField = num
			payloadBytes = []byte(v.str)
			payloadRaw = raw
		default:
			pm.Unknown = append(pm.Unknown, raw...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	expectedField, known := payloadFieldNumbers[pm.Type]
	if !known || payloadField != expectedField || payloadBytes == nil {
		pm.Unknown = append(pm.Unknown, payloadRaw...)
		return pm, nil
	}

	ctor, ok := newMessage[pm.Type]
	if !ok {
		pm.Unknown = append(pm.Unknown, payloadRaw...)
		return pm, nil
	}
	msg := ctor()
	if err := msg.Unmarshal(payloadBytes); err != nil {
		return nil, fmt.Errorf("mrpproto: decoding payload for type %d: %w", pm.Type, err)
	}
	pm.Payload = msg
	return pm, nil
}
