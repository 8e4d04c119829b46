// Package mdns implements a from-scratch DNS-SD client over multicast and
// unicast UDP. golang.org/x/net/dns/dnsmessage supplies wire-format parsing
// and building; the bundling, quiescence-timer aggregation, unicast wake
// knock, and sleep-proxy detection around it are hand-written because no
// off-the-shelf DNS-SD library can combine multiple question records into
// one request, target a specific host, or surface the
// _device-info._tcp.local. pseudo-record used for model fingerprinting.
package mdns

import (
	"fmt"

	"golang.org/x/net/dns/dnsmessage"
)

// MaxPacketSize bounds a single UDP datagram used for mDNS traffic.
const MaxPacketSize = 4096

// DeviceInfoService is the pseudo-service queried alongside real service
// types to recover model/OS fingerprinting TXT records.
const DeviceInfoService = "_device-info._tcp.local."

// BuildQuery constructs one or more DNS query packets bundling a PTR
// question for every requested service type plus the device-info
// pseudo-record. If the questions don't fit a single packet, the request
// is split across multiple packets; every split packet is independently
// valid and complete.
func BuildQuery(id uint16, serviceTypes []string) ([][]byte, error) {
	names := make([]string, 0, len(serviceTypes)+1)
	for _, s := range serviceTypes {
		names = append(names, dnsName(s))
	}
	names = append(names, DeviceInfoService)

	var packets [][]byte
	var current []string
	for _, name := range names {
		trial := append(append([]string{}, current...), name)
		buf, err := buildQueryPacket(id, trial)
		if err != nil {
			return nil, err
		}
		if len(buf) > MaxPacketSize && len(current) > 0 {
			packet, err := buildQueryPacket(id, current)
			if err != nil {
				return nil, err
			}
			packets = append(packets, packet)
			current = []string{name}
			continue
		}
		current = trial
	}
	if len(current) > 0 {
		packet, err := buildQueryPacket(id, current)
		if err != nil {
			return nil, err
		}
		packets = append(packets, packet)
	}
	return packets, nil
}

func buildQueryPacket(id uint16, names []string) ([]byte, error) {
	b := dnsmessage.NewBuilder(nil, dnsmessage.Header{ID: id, RCode: dnsmessage.RCodeSuccess})
	if err := b.StartQuestions(); err != nil {
		return nil, err
	}
	for _, name := range names {
		n, err := dnsmessage.NewName(name)
		if err != nil {
			return nil, fmt.Errorf("invalid name %q: %w", name, err)
		}
		q := dnsmessage.Question{
			Name:  n,
			Type:  dnsmessage.TypePTR,
			Class: dnsmessage.ClassINET,
		}
		if err := b.Question(q); err != nil {
			return nil, err
		}
	}
	return b.Finish()
}

func dnsName(serviceType string) string {
	if len(serviceType) == 0 {
		return serviceType
	}
	if serviceType[len(serviceType)-1] == '.' {
		return serviceType
	}
	return serviceType + ".local."
}
