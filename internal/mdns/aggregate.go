package mdns

import (
	"net"
	"strings"
)

// Instance is one discovered service instance, fused from PTR/SRV/TXT/A
// records that may have arrived in separate packets.
type Instance struct {
	ServiceType string
	InstanceName string
	Host        string
	Addrs       []net.IP
	Port        uint16
	TXT         map[string]string
	DeepSleep   bool
	Removed     bool // a TTL-0 goodbye withdrew this instance
}

// Aggregator incrementally merges Records from one or more response
// packets belonging to the same scan into a set of Instances, keyed by
// (service type, instance name). Callers feed it records as packets
// arrive and call Snapshot once the quiescence timer expires or the scan
// is aborted.
type Aggregator struct {
	instances map[string]*Instance
	hostAddrs map[string][]net.IP
	sleepProxyHosts map[string]bool
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		instances:       make(map[string]*Instance),
		hostAddrs:       make(map[string][]net.IP),
		sleepProxyHosts: make(map[string]bool),
	}
}

// Feed merges one batch of records (typically: everything parsed out of a
// single response packet) into the aggregator's running state.
func (a *Aggregator) Feed(records []Record) {
	for _, r := range records {
		switch {
		case r.PTR != "":
			a.feedPTR(r)
		case r.Target != "" || r.Port != 0:
			a.feedSRV(r)
		case r.Addr != nil:
			a.feedAddr(r)
		case r.TXT != nil:
			a.feedTXT(r)
		}
	}
	// Second pass: now that hosts are known, attach resolved addresses and
	// sleep-proxy flags to instances whose SRV target matches.
	for _, inst := range a.instances {
		if inst.Host == "" {
			continue
		}
		if addrs, ok := a.hostAddrs[inst.Host]; ok {
			inst.Addrs = addrs
		}
		if a.sleepProxyHosts[inst.Host] {
			inst.DeepSleep = true
		}
	}
}

func (a *Aggregator) feedPTR(r Record) {
	svc := r.Name
	if isSleepProxyService(svc) {
		host := strings.TrimSuffix(r.PTR, ".")
		a.sleepProxyHosts[host] = true
		return
	}

	key := svc + "|" + r.PTR
	inst, ok := a.instances[key]
	if !ok {
		inst = &Instance{ServiceType: svc, InstanceName: r.PTR, TXT: make(map[string]string)}
		a.instances[key] = inst
	}
	if r.IsGoodbye {
		inst.Removed = true
	}
}

func (a *Aggregator) feedSRV(r Record) {
	for _, inst := range a.instances {
		if inst.InstanceName == r.Name {
			inst.Host = r.Target
			inst.Port = r.Port
			if r.IsGoodbye {
				inst.Removed = true
			}
		}
	}
}

func (a *Aggregator) feedAddr(r Record) {
	host := r.Name
	if r.IsGoodbye && r.TTL == 0 {
		// TTL-0 A/AAAA record: sender is announcing it is a sleep proxy for
		// this host, or that the address is withdrawn.
		a.sleepProxyHosts[host] = true
		return
	}
	a.hostAddrs[host] = append(a.hostAddrs[host], r.Addr)
}

func (a *Aggregator) feedTXT(r Record) {
	for _, inst := range a.instances {
		if inst.InstanceName == r.Name {
			for k, v := range r.TXT {
				inst.TXT[k] = v
			}
		}
	}
}

// Snapshot returns every non-removed instance accumulated so far, keyed by
// service type.
func (a *Aggregator) Snapshot() map[string][]Instance {
	out := make(map[string][]Instance)
	for _, inst := range a.instances {
		if inst.Removed {
			continue
		}
		out[inst.ServiceType] = append(out[inst.ServiceType], *inst)
	}
	return out
}

func isSleepProxyService(name string) bool {
	return strings.Contains(name, "_sleep-proxy._udp")
}
