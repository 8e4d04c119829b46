// Package atv is atvkit's public surface: scan for devices, pair with
// them, connect, and drive remote control, metadata, power, volume,
// apps, keyboard, and streaming through whichever protocol stack the
// device actually speaks.
package atv

import (
	"github.com/atvkit/atvkit/internal/scanner"
)

// The discovery data model is re-exported unchanged from internal/scanner:
// a scan and a stored configuration describe the same device whether
// they originate from this package or from internal code, so there is
// no separate public struct to keep in sync.
type (
	ServiceKind         = scanner.ServiceKind
	PairingRequirement  = scanner.PairingRequirement
	Service             = scanner.Service
	DeviceIdentifier    = scanner.DeviceIdentifier
	DeviceInfo          = scanner.DeviceInfo
	DeviceConfiguration = scanner.DeviceConfiguration
)

const (
	ServiceUnknown   = scanner.ServiceUnknown
	ServiceDMAP      = scanner.ServiceDMAP
	ServiceMRP       = scanner.ServiceMRP
	ServiceAirPlay   = scanner.ServiceAirPlay
	ServiceCompanion = scanner.ServiceCompanion
	ServiceRAOP      = scanner.ServiceRAOP
)

const (
	PairingUnsupported = scanner.PairingUnsupported
	PairingDisabled    = scanner.PairingDisabled
	PairingNotNeeded   = scanner.PairingNotNeeded
	PairingOptional    = scanner.PairingOptional
	PairingMandatory   = scanner.PairingMandatory
)
