// Package scanner turns raw mDNS service instances into fused
// DeviceConfigurations: one entry per physical device, its services
// deduplicated by shared identifier across protocols.
package scanner

import "net"

// ServiceKind names one of the five protocol endpoints a device can
// expose.
type ServiceKind int

const (
	ServiceUnknown ServiceKind = iota
	ServiceDMAP
	ServiceMRP
	ServiceAirPlay
	ServiceCompanion
	ServiceRAOP
)

func (k ServiceKind) String() string {
	switch k {
	case ServiceDMAP:
		return "DMAP"
	case ServiceMRP:
		return "MRP"
	case ServiceAirPlay:
		return "AirPlay"
	case ServiceCompanion:
		return "Companion"
	case ServiceRAOP:
		return "RAOP"
	default:
		return "Unknown"
	}
}

// PairingRequirement describes whether and how a Service needs pairing.
type PairingRequirement int

const (
	PairingUnsupported PairingRequirement = iota
	PairingDisabled
	PairingNotNeeded
	PairingOptional
	PairingMandatory
)

func (p PairingRequirement) String() string {
	switch p {
	case PairingDisabled:
		return "Disabled"
	case PairingNotNeeded:
		return "NotNeeded"
	case PairingOptional:
		return "Optional"
	case PairingMandatory:
		return "Mandatory"
	default:
		return "Unsupported"
	}
}

// Service is one protocol endpoint discovered on a device.
type Service struct {
	Protocol    ServiceKind
	Port        uint16
	Properties  map[string]string // raw zeroconf TXT records
	Identifier  string            // protocol-specific unique id, e.g. MRP UniqueIdentifier
	Credentials []byte
	Password    string
	Pairing     PairingRequirement
}

// DeviceIdentifier ranks the stable identifiers a device may present,
// most to least preferred. Two services belong to the same device when
// they share any one of these.
type DeviceIdentifier struct {
	MRPUniqueIdentifier string
	DMAPHG              string
	AirPlayDeviceID     string
	RAOPDeviceID        string
	MACAddress          string
}

// any returns every non-empty identifier value, in preference order.
func (d DeviceIdentifier) any() []string {
	var out []string
	for _, v := range []string{d.MRPUniqueIdentifier, d.DMAPHG, d.AirPlayDeviceID, d.RAOPDeviceID, d.MACAddress} {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// DeviceInfo is the device-info bundle fused from the
// _device-info._tcp.local. pseudo-record.
type DeviceInfo struct {
	Model    string
	OSName   string
	OSVer    string
	MAC      string
	BuildNum string
}

// DeviceConfiguration is the identity of one physical device: its
// display name, primary address, device-info bundle, deep-sleep flag,
// and ordered set of services.
type DeviceConfiguration struct {
	Name       string
	Address    net.IP
	Info       DeviceInfo
	Identifier DeviceIdentifier
	DeepSleep  bool
	Services   []Service
}

// HasIdentifier reports whether any of the device's stable identifiers
// matches one in the given set.
func (d *DeviceConfiguration) HasIdentifier(wanted map[string]struct{}) bool {
	for _, id := range d.Identifier.any() {
		if _, ok := wanted[id]; ok {
			return true
		}
	}
	return false
}

// hasControlProtocol reports whether the device exposes anything other
// than bare AirPlay — pure-AirPlay devices with no DMAP/MRP/Companion
// and no RAOP are suppressed from scan results (§4.5).
func (d *DeviceConfiguration) hasControlProtocol() bool {
	for _, svc := range d.Services {
		switch svc.Protocol {
		case ServiceDMAP, ServiceMRP, ServiceCompanion, ServiceRAOP:
			return true
		}
	}
	return false
}
