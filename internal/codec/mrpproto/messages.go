package mrpproto

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message is implemented by every MRP inner message.
type Message interface {
	Marshal() []byte
	Unmarshal([]byte) error
}

// DeviceInfoMessage announces this client's identity during the MRP
// handshake.
type DeviceInfoMessage struct {
	UniqueIdentifier            string
	Name                        string
	LocalizedModelName          string
	SystemBuildVersion          string
	ApplicationBundleIdentifier string
	ProtocolVersion             int32
	AllowsPairing               bool
	Unknown                     []byte
}

func (m *DeviceInfoMessage) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.UniqueIdentifier)
	b = appendString(b, 2, m.Name)
	b = appendString(b, 3, m.LocalizedModelName)
	b = appendString(b, 4, m.SystemBuildVersion)
	b = appendString(b, 5, m.ApplicationBundleIdentifier)
	b = appendVarint(b, 6, uint64(m.ProtocolVersion))
	b = appendBool(b, 7, m.AllowsPairing)
	return append(b, m.Unknown...)
}

func (m *DeviceInfoMessage) Unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v fieldValue, raw []byte) error {
		switch num {
		case 1:
			m.UniqueIdentifier = v.str
		case 2:
			m.Name = v.str
		case 3:
			m.LocalizedModelName = v.str
		case 4:
			m.SystemBuildVersion = v.str
		case 5:
			m.ApplicationBundleIdentifier = v.str
		case 6:
			m.ProtocolVersion = int32(v.varint)
		case 7:
			m.AllowsPairing = v.varint != 0
		default:
			m.Unknown = append(m.Unknown, raw...)
		}
		return nil
	})
}

// ConnectionState is SetConnectionStateMessage's state enum.
type ConnectionState int32

const (
	ConnectionStateDisconnected ConnectionState = 0
	ConnectionStateConnected    ConnectionState = 1
)

// SetConnectionStateMessage is sent right after DEVICE_INFO to mark the
// transport as logically connected.
type SetConnectionStateMessage struct {
	State   ConnectionState
	Unknown []byte
}

func (m *SetConnectionStateMessage) Marshal() []byte {
	b := appendVarint(nil, 1, uint64(m.State))
	return append(b, m.Unknown...)
}

func (m *SetConnectionStateMessage) Unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v fieldValue, raw []byte) error {
		if num == 1 {
			m.State = ConnectionState(v.varint)
		} else {
			m.Unknown = append(m.Unknown, raw...)
		}
		return nil
	})
}

// ClientUpdatesConfigMessage subscribes to push-update categories.
type ClientUpdatesConfigMessage struct {
	ArtworkUpdates      bool
	NowPlayingUpdates   bool
	VolumeUpdates       bool
	KeyboardUpdates     bool
	OutputDeviceUpdates bool
	Unknown             []byte
}

func (m *ClientUpdatesConfigMessage) Marshal() []byte {
	var b []byte
	b = appendBool(b, 1, m.ArtworkUpdates)
	b = appendBool(b, 2, m.NowPlayingUpdates)
	b = appendBool(b, 3, m.VolumeUpdates)
	b = appendBool(b, 4, m.KeyboardUpdates)
	b = appendBool(b, 5, m.OutputDeviceUpdates)
	return append(b, m.Unknown...)
}

func (m *ClientUpdatesConfigMessage) Unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v fieldValue, raw []byte) error {
		switch num {
		case 1:
			m.ArtworkUpdates = v.varint != 0
		case 2:
			m.NowPlayingUpdates = v.varint != 0
		case 3:
			m.VolumeUpdates = v.varint != 0
		case 4:
			m.KeyboardUpdates = v.varint != 0
		case 5:
			m.OutputDeviceUpdates = v.varint != 0
		default:
			m.Unknown = append(m.Unknown, raw...)
		}
		return nil
	})
}

// SetStateMessage carries a full now-playing snapshot for one player.
type SetStateMessage struct {
	PlayerPath        string
	BundleIdentifier  string
	PlaybackState     int32
	Title             string
	Artist            string
	Album             string
	ElapsedTimeSeconds float64
	TotalTimeSeconds   float64
	PlaybackRate       float64
	Shuffle            int32
	Repeat             int32
	TimestampUnixMillis int64
	Unknown            []byte
}

func (m *SetStateMessage) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.PlayerPath)
	b = appendString(b, 2, m.BundleIdentifier)
	b = appendVarint(b, 3, uint64(uint32(m.PlaybackState)))
	b = appendString(b, 4, m.Title)
	b = appendString(b, 5, m.Artist)
	b = appendString(b, 6, m.Album)
	b = appendDouble(b, 7, m.ElapsedTimeSeconds)
	b = appendDouble(b, 8, m.TotalTimeSeconds)
	b = appendDouble(b, 9, m.PlaybackRate)
	b = appendVarint(b, 10, uint64(uint32(m.Shuffle)))
	b = appendVarint(b, 11, uint64(uint32(m.Repeat)))
	b = appendVarint(b, 12, uint64(m.TimestampUnixMillis))
	return append(b, m.Unknown...)
}

func (m *SetStateMessage) Unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v fieldValue, raw []byte) error {
		switch num {
		case 1:
			m.PlayerPath = v.str
		case 2:
			m.BundleIdentifier = v.str
		case 3:
			m.PlaybackState = int32(v.varint)
		case 4:
			m.Title = v.str
		case 5:
			m.Artist = v.str
		case 6:
			m.Album = v.str
		case 7:
			m.ElapsedTimeSeconds = v.double
		case 8:
			m.TotalTimeSeconds = v.double
		case 9:
			m.PlaybackRate = v.double
		case 10:
			m.Shuffle = int32(v.varint)
		case 11:
			m.Repeat = int32(v.varint)
		case 12:
			m.TimestampUnixMillis = int64(v.varint)
		default:
			m.Unknown = append(m.Unknown, raw...)
		}
		return nil
	})
}

// UpdateClientMessage registers or updates a player's client identity.
type UpdateClientMessage struct {
	PlayerPath       string
	BundleIdentifier string
	DisplayName      string
	Unknown          []byte
}

func (m *UpdateClientMessage) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.PlayerPath)
	b = appendString(b, 2, m.BundleIdentifier)
	b = appendString(b, 3, m.DisplayName)
	return append(b, m.Unknown...)
}

func (m *UpdateClientMessage) Unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v fieldValue, raw []byte) error {
		switch num {
		case 1:
			m.PlayerPath = v.str
		case 2:
			m.BundleIdentifier = v.str
		case 3:
			m.DisplayName = v.str
		default:
			m.Unknown = append(m.Unknown, raw...)
		}
		return nil
	})
}

// UpdateContentItemMessage carries incremental now-playing metadata.
type UpdateContentItemMessage struct {
	PlayerPath         string
	Title              string
	Artist             string
	Album              string
	Genre              string
	ElapsedTimeSeconds float64
	TotalTimeSeconds   float64
	Unknown            []byte
}

func (m *UpdateContentItemMessage) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.PlayerPath)
	b = appendString(b, 2, m.Title)
	b = appendString(b, 3, m.Artist)
	b = appendString(b, 4, m.Album)
	b = appendString(b, 5, m.Genre)
	b = appendDouble(b, 6, m.ElapsedTimeSeconds)
	b = appendDouble(b, 7, m.TotalTimeSeconds)
	return append(b, m.Unknown...)
}

func (m *UpdateContentItemMessage) Unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v fieldValue, raw []byte) error {
		switch num {
		case 1:
			m.PlayerPath = v.str
		case 2:
			m.Title = v.str
		case 3:
			m.Artist = v.str
		case 4:
			m.Album = v.str
		case 5:
			m.Genre = v.str
		case 6:
			m.ElapsedTimeSeconds = v.double
		case 7:
			m.TotalTimeSeconds = v.double
		default:
			m.Unknown = append(m.Unknown, raw...)
		}
		return nil
	})
}

// UpdateOutputDeviceMessage reports the set of audio output devices.
type UpdateOutputDeviceMessage struct {
	DeviceUID string
	DeviceName string
	Unknown    []byte
}

func (m *UpdateOutputDeviceMessage) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.DeviceUID)
	b = appendString(b, 2, m.DeviceName)
	return append(b, m.Unknown...)
}

func (m *UpdateOutputDeviceMessage) Unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v fieldValue, raw []byte) error {
		switch num {
		case 1:
			m.DeviceUID = v.str
		case 2:
			m.DeviceName = v.str
		default:
			m.Unknown = append(m.Unknown, raw...)
		}
		return nil
	})
}

// InputAction is the modifier attached to a SendCommandMessage HID event.
type InputAction int32

const (
	InputActionSingleTap InputAction = 0
	InputActionDoubleTap InputAction = 1
	InputActionHold      InputAction = 2
)

// SendCommandMessage carries one remote-control command.
type SendCommandMessage struct {
	Command     int32
	PlayerPath  string
	InputAction InputAction
	RequestID   string
	Unknown     []byte
}

func (m *SendCommandMessage) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(uint32(m.Command)))
	b = appendString(b, 2, m.PlayerPath)
	b = appendVarint(b, 3, uint64(m.InputAction))
	b = appendString(b, 4, m.RequestID)
	return append(b, m.Unknown...)
}

func (m *SendCommandMessage) Unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v fieldValue, raw []byte) error {
		switch num {
		case 1:
			m.Command = int32(v.varint)
		case 2:
			m.PlayerPath = v.str
		case 3:
			m.InputAction = InputAction(v.varint)
		case 4:
			m.RequestID = v.str
		default:
			m.Unknown = append(m.Unknown, raw...)
		}
		return nil
	})
}

// CommandResultMessage answers a SendCommandMessage that required an ack.
type CommandResultMessage struct {
	RequestID           string
	SendError           int32
	HandlerReturnStatus int32
	Unknown             []byte
}

func (m *CommandResultMessage) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.RequestID)
	b = appendVarint(b, 2, uint64(uint32(m.SendError)))
	b = appendVarint(b, 3, uint64(uint32(m.HandlerReturnStatus)))
	return append(b, m.Unknown...)
}

func (m *CommandResultMessage) Unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v fieldValue, raw []byte) error {
		switch num {
		case 1:
			m.RequestID = v.str
		case 2:
			m.SendError = int32(v.varint)
		case 3:
			m.HandlerReturnStatus = int32(v.varint)
		default:
			m.Unknown = append(m.Unknown, raw...)
		}
		return nil
	})
}

// SetNowPlayingClientMessage elects the active player.
type SetNowPlayingClientMessage struct {
	PlayerPath       string
	BundleIdentifier string
	Unknown          []byte
}

func (m *SetNowPlayingClientMessage) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.PlayerPath)
	b = appendString(b, 2, m.BundleIdentifier)
	return append(b, m.Unknown...)
}

func (m *SetNowPlayingClientMessage) Unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v fieldValue, raw []byte) error {
		switch num {
		case 1:
			m.PlayerPath = v.str
		case 2:
			m.BundleIdentifier = v.str
		default:
			m.Unknown = append(m.Unknown, raw...)
		}
		return nil
	})
}

// DeviceInfoUpdateMessage carries a partial update to the peer's
// DeviceInfoMessage fields (name change, build version bump).
type DeviceInfoUpdateMessage struct {
	Name               string
	SystemBuildVersion string
	Unknown            []byte
}

func (m *DeviceInfoUpdateMessage) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.Name)
	b = appendString(b, 2, m.SystemBuildVersion)
	return append(b, m.Unknown...)
}

func (m *DeviceInfoUpdateMessage) Unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v fieldValue, raw []byte) error {
		switch num {
		case 1:
			m.Name = v.str
		case 2:
			m.SystemBuildVersion = v.str
		default:
			m.Unknown = append(m.Unknown, raw...)
		}
		return nil
	})
}

// CryptoPairingMessage carries one Pair-Verify TLV8 message tunneled
// through the protobuf envelope during connection setup, before any
// frame encryption is in effect.
type CryptoPairingMessage struct {
	Data    []byte
	Unknown []byte
}

func (m *CryptoPairingMessage) Marshal() []byte {
	var b []byte
	if len(m.Data) > 0 {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Data)
	}
	return append(b, m.Unknown...)
}

func (m *CryptoPairingMessage) Unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v fieldValue, raw []byte) error {
		if num == 1 {
			m.Data = []byte(v.str)
		} else {
			m.Unknown = append(m.Unknown, raw...)
		}
		return nil
	})
}

// HeartbeatMessage is an empty-bodied keep-alive ping; either side's mere
// receipt of one is the acknowledgement.
type HeartbeatMessage struct {
	Unknown []byte
}

func (m *HeartbeatMessage) Marshal() []byte {
	return append([]byte{}, m.Unknown...)
}

func (m *HeartbeatMessage) Unmarshal(data []byte) error {
	m.Unknown = append([]byte{}, data...)
	return nil
}

type fieldValue struct {
	varint uint64
	str    string
	double float64
}

// walkFields iterates the top-level fields of a protobuf message,
// invoking fn with the decoded scalar form of varint/length-delimited/
// fixed64 fields and the raw encoded bytes of the field (tag+value) for
// fields fn chooses to preserve as unknown.
func walkFields(data []byte, fn func(num protowire.Number, typ protowire.Type, v fieldValue, raw []byte) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("mrpproto: malformed tag: %w", protowire.ParseError(n))
		}
		start := 0
		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(data[n:])
			if m < 0 {
				return fmt.Errorf("mrpproto: malformed varint field %d: %w", num, protowire.ParseError(m))
			}
			if err := fn(num, typ, fieldValue{varint: v}, data[start:n+m]); err != nil {
				return err
			}
			data = data[n+m:]
		case protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(data[n:])
			if m < 0 {
				return fmt.Errorf("mrpproto: malformed fixed64 field %d: %w", num, protowire.ParseError(m))
			}
			if err := fn(num, typ, fieldValue{double: math.Float64frombits(v)}, data[start:n+m]); err != nil {
				return err
			}
			data = data[n+m:]
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(data[n:])
			if m < 0 {
				return fmt.Errorf("mrpproto: malformed bytes field %d: %w", num, protowire.ParseError(m))
			}
			if err := fn(num, typ, fieldValue{str: string(v)}, data[start:n+m]); err != nil {
				return err
			}
			data = data[n+m:]
		case protowire.Fixed32Type:
			_, m := protowire.ConsumeFixed32(data[n:])
			if m < 0 {
				return fmt.Errorf("mrpproto: malformed fixed32 field %d: %w", num, protowire.ParseError(m))
			}
			if err := fn(num, typ, fieldValue{}, data[start:n+m]); err != nil {
				return err
			}
			data = data[n+m:]
		default:
			return fmt.Errorf("mrpproto: unsupported wire type %d for field %d", typ, num)
		}
	}
	return nil
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarint(b, num, 1)
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}
