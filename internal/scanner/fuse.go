package scanner

import (
	"strings"

	"github.com/atvkit/atvkit/internal/mdns"
)

// serviceTypeKind maps an mDNS service type to the protocol it
// represents. TXT record key names below are not specified by any
// public standard for several of these protocols; the choices here
// are a fixed, internally-consistent convention documented as an Open
// Question resolution in DESIGN.md.
var serviceTypeKind = map[string]ServiceKind{
	"_touch-able._tcp":     ServiceDMAP,
	"_mediaremotetv._tcp":  ServiceMRP,
	"_companion-link._tcp": ServiceCompanion,
	"_airplay._tcp":        ServiceAirPlay,
	"_raop._tcp":           ServiceRAOP,
}

const deviceInfoServiceType = "_device-info._tcp"
const sleepProxyServiceType = "_sleep-proxy._udp"

// identifierKey names the TXT field each protocol uses as its unique
// service identifier (§3 DeviceIdentifier).
var identifierKey = map[ServiceKind]string{
	ServiceDMAP:      "hG",
	ServiceMRP:       "UniqueIdentifier",
	ServiceCompanion: "glAuID",
	ServiceAirPlay:   "deviceid",
	ServiceRAOP:      "deviceid",
}

// fuseDevices merges a mDNS scan's per-service-type instance lists into
// DeviceConfigurations, one per physical device, keyed by shared stable
// identifier (§3 DeviceIdentifier, §4.4 service fusion).
func fuseDevices(byType map[string][]mdns.Instance) []*DeviceConfiguration {
	byHost := make(map[string]*DeviceConfiguration)
	order := make([]string, 0)

	hostKey := func(inst mdns.Instance) string {
		if inst.Host != "" {
			return inst.Host
		}
		return inst.InstanceName
	}

	for svcType, instances := range byType {
		if svcType == deviceInfoServiceType || svcType == sleepProxyServiceType {
			continue
		}
		kind, ok := serviceTypeKind[svcType]
		if !ok {
			continue
		}
		for _, inst := range instances {
			if inst.Removed {
				continue
			}
			key := hostKey(inst)
			dev, exists := byHost[key]
			if !exists {
				dev = &DeviceConfiguration{Name: displayName(inst.InstanceName), DeepSleep: inst.DeepSleep}
				if len(inst.Addrs) > 0 {
					dev.Address = inst.Addrs[0]
				}
				byHost[key] = dev
				order = append(order, key)
			} else if inst.DeepSleep {
				dev.DeepSleep = true
			}

			ident := inst.TXT[identifierKey[kind]]
			svc := Service{
				Protocol:   kind,
				Port:       inst.Port,
				Properties: inst.TXT,
				Identifier: ident,
				Pairing:    defaultPairing(kind),
			}
			dev.Services = append(dev.Services, svc)
			assignIdentifier(&dev.Identifier, kind, ident)
		}
	}

	if infos, ok := byType[deviceInfoServiceType]; ok {
		for _, inst := range infos {
			key := hostKey(inst)
			if dev, ok := byHost[key]; ok {
				dev.Info = DeviceInfo{
					Model:    inst.TXT["model"],
					OSName:   inst.TXT["osvers"],
					OSVer:    inst.TXT["osvers"],
					MAC:      inst.TXT["deviceid"],
					BuildNum: inst.TXT["build"],
				}
				if dev.Info.MAC != "" {
					dev.Identifier.MACAddress = dev.Info.MAC
				}
			}
		}
	}

	out := make([]*DeviceConfiguration, 0, len(order))
	for _, key := range order {
		out = append(out, byHost[key])
	}
	return mergeByIdentifier(out)
}

func displayName(instanceName string) string {
	if idx := strings.Index(instanceName, "."); idx >= 0 {
		return instanceName[:idx]
	}
	return instanceName
}

func defaultPairing(kind ServiceKind) PairingRequirement {
	switch kind {
	case ServiceDMAP:
		return PairingOptional
	case ServiceMRP, ServiceCompanion:
		return PairingMandatory
	case ServiceRAOP:
		return PairingOptional
	default:
		return PairingNotNeeded
	}
}

func assignIdentifier(id *DeviceIdentifier, kind ServiceKind, value string) {
	if value == "" {
		return
	}
	switch kind {
	case ServiceMRP:
		id.MRPUniqueIdentifier = value
	case ServiceDMAP:
		id.DMAPHG = value
	case ServiceAirPlay:
		id.AirPlayDeviceID = value
	case ServiceRAOP:
		id.RAOPDeviceID = value
	}
}

// mergeByIdentifier collapses devices discovered under different host
// keys (e.g. IPv4 vs IPv6 advertisement) that nonetheless share a
// stable identifier, per the §3 "same device" rule.
func mergeByIdentifier(devices []*DeviceConfiguration) []*DeviceConfiguration {
	seen := make(map[string]*DeviceConfiguration)
	out := make([]*DeviceConfiguration, 0, len(devices))
	for _, dev := range devices {
		var canonical *DeviceConfiguration
		for _, id := range dev.Identifier.any() {
			if existing, ok := seen[id]; ok {
				canonical = existing
				break
			}
		}
		if canonical == nil {
			out = append(out, dev)
			for _, id := range dev.Identifier.any() {
				seen[id] = dev
			}
			continue
		}
		canonical.Services = append(canonical.Services, dev.Services...)
		if canonical.Address == nil {
			canonical.Address = dev.Address
		}
		mergeIdentifiers(&canonical.Identifier, dev.Identifier)
		for _, id := range dev.Identifier.any() {
			seen[id] = canonical
		}
	}
	return out
}

func mergeIdentifiers(dst *DeviceIdentifier, src DeviceIdentifier) {
	if dst.MRPUniqueIdentifier == "" {
		dst.MRPUniqueIdentifier = src.MRPUniqueIdentifier
	}
	if dst.DMAPHG == "" {
		dst.DMAPHG = src.DMAPHG
	}
	if dst.AirPlayDeviceID == "" {
		dst.AirPlayDeviceID = src.AirPlayDeviceID
	}
	if dst.RAOPDeviceID == "" {
		dst.RAOPDeviceID = src.RAOPDeviceID
	}
	if dst.MACAddress == "" {
		dst.MACAddress = src.MACAddress
	}
}
