// Package eventbus implements the producer/consumer plumbing that carries
// state-change notifications from a protocol stack (or the facade that
// consolidates several of them) out to application listeners: connection
// loss, playback state, keyboard focus, volume, power, and output-device
// changes.
package eventbus

import "time"

// EventType identifies the category of a delivered event.
type EventType string

const (
	EventConnectionLost      EventType = "connection_lost"
	EventConnectionClosed    EventType = "connection_closed"
	EventPlaystatusUpdate    EventType = "playstatus_update"
	EventPlaystatusError     EventType = "playstatus_error"
	EventKeyboardUpdate      EventType = "keyboard_update"
	EventVolumeUpdate        EventType = "volume_update"
	EventPowerStateChanged   EventType = "power_state_changed"
	EventOutputDevicesUpdate EventType = "outputdevices_update"
)

// Event is the message carried from a StateProducer to its listeners.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Source    string // component that emitted it: "dmap", "mrp", "companion", "raop", "relay"
	Data      any
}

// PlaystatusUpdateData carries a playback-state snapshot. Hash is an
// equality fingerprint of the playing state used to suppress redundant
// updates: a new event is only emitted when Hash differs from the last
// one the same producer delivered for the same Source.
type PlaystatusUpdateData struct {
	Playing any
	Hash    uint64
}

// PlaystatusErrorData carries a push-update failure.
type PlaystatusErrorData struct {
	Err error
}

// ConnectionLostData carries the error that caused a transport to drop.
type ConnectionLostData struct {
	Err error
}

// VolumeUpdateData carries a new output volume level, in [0.0, 100.0].
type VolumeUpdateData struct {
	Level float64
}

// PowerStateChangedData carries a device power-state transition.
type PowerStateChangedData struct {
	State string // "on", "off", "standby"
}

// OutputDevicesUpdateData carries the current set of audio output devices.
type OutputDevicesUpdateData struct {
	Devices []string
}
