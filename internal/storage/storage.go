// Package storage implements the settings/credentials store (§4.12):
// an in-memory backend and a JSON-file backend, both satisfying the
// same Storage interface and the scanner's StorageSink so freshly
// discovered devices populate persisted records automatically.
package storage

import (
	"sync"

	"github.com/atvkit/atvkit/internal/scanner"
)

// Credentials holds one protocol's pairing output for a device.
type Credentials struct {
	Identity    []byte // long-term Ed25519 private key
	PeerPublic  []byte // paired device's long-term public key
	ClientID    string // controller identifier signed into Pair-Setup; Pair-Verify must replay it
	PairingGUID string // DMAP legacy pairing identifier
}

// DeviceSettings is the persisted record for one device: identity,
// per-protocol credentials, and a remembered AirPlay/RAOP password.
type DeviceSettings struct {
	Identifier  string
	Name        string
	Address     string
	Credentials map[string]Credentials // keyed by protocol name
	Password    string
}

// isZero reports whether s carries no data worth persisting, per
// §4.12's "serialization MUST omit default-valued fields" invariant:
// an all-defaults record shouldn't linger in a saved file just because
// a device was scanned once.
func (s DeviceSettings) isZero() bool {
	return s.Name == "" && s.Address == "" && s.Password == "" && len(s.Credentials) == 0
}

// Storage is the settings/credentials store interface §4.12 names:
// load/save against a backend, get/update against an in-memory
// working copy, and a changed flag so callers can skip redundant
// writes.
type Storage interface {
	Load() error
	Save() error
	GetSettings(identifier string) (DeviceSettings, bool)
	UpdateSettings(identifier string, settings DeviceSettings)
	Changed() bool
	MarkAsSaved()
}

// base implements the in-memory bookkeeping both backends share:
// record map, dirty flag, and scanner.StorageSink.
type base struct {
	mu       sync.RWMutex
	records  map[string]DeviceSettings
	dirty    bool
}

func newBase() base {
	return base{records: make(map[string]DeviceSettings)}
}

// GetSettings returns the stored record for identifier, if any.
func (b *base) GetSettings(identifier string) (DeviceSettings, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.records[identifier]
	return s, ok
}

// UpdateSettings replaces the record for identifier and marks the
// store dirty, unless the new record is zero-valued in which case the
// record is removed entirely (§4.12's default-omission invariant
// applied symmetrically to in-memory state, not just serialization).
func (b *base) UpdateSettings(identifier string, settings DeviceSettings) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if settings.isZero() {
		delete(b.records, identifier)
	} else {
		b.records[identifier] = settings
	}
	b.dirty = true
}

// Changed reports whether any record has been updated since the last
// MarkAsSaved or Load.
func (b *base) Changed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dirty
}

// MarkAsSaved clears the dirty flag.
func (b *base) MarkAsSaved() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dirty = false
}

// SaveDiscovered implements scanner.StorageSink: every freshly
// discovered device gets (or keeps) a settings record keyed by its
// best available stable identifier, carrying forward name/address so
// a later connect() has them even before any credentials exist.
func (b *base) SaveDiscovered(dev *scanner.DeviceConfiguration) error {
	id := primaryIdentifier(dev)
	if id == "" {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	existing, ok := b.records[id]
	if !ok {
		existing = DeviceSettings{Identifier: id}
	}
	existing.Name = dev.Name
	if dev.Address != nil {
		existing.Address = dev.Address.String()
	}
	b.records[id] = existing
	b.dirty = true
	return nil
}

func primaryIdentifier(dev *scanner.DeviceConfiguration) string {
	switch {
	case dev.Identifier.MRPUniqueIdentifier != "":
		return dev.Identifier.MRPUniqueIdentifier
	case dev.Identifier.DMAPHG != "":
		return dev.Identifier.DMAPHG
	case dev.Identifier.AirPlayDeviceID != "":
		return dev.Identifier.AirPlayDeviceID
	case dev.Identifier.RAOPDeviceID != "":
		return dev.Identifier.RAOPDeviceID
	default:
		return dev.Identifier.MACAddress
	}
}

var _ scanner.StorageSink = (*base)(nil)
