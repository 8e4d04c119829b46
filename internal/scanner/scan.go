package scanner

import (
	"context"
	"time"

	"github.com/atvkit/atvkit/internal/atvlog"
	"github.com/atvkit/atvkit/internal/mdns"
)

// allServiceTypes is queried whenever no protocol filter narrows the
// request.
var allServiceTypes = []string{
	"_touch-able._tcp",
	"_mediaremotetv._tcp",
	"_companion-link._tcp",
	"_airplay._tcp",
	"_raop._tcp",
	deviceInfoServiceType,
	sleepProxyServiceType,
}

// StorageSink receives every newly discovered device so the scanner can
// populate persisted settings automatically (§4.5).
type StorageSink interface {
	SaveDiscovered(dev *DeviceConfiguration) error
}

// Options configures one scan pass.
type Options struct {
	// Hosts, if non-empty, switches to unicast scanning against each host.
	Hosts []string
	// Identifiers, if non-empty, causes the scan to return as soon as a
	// device matching any of these stable identifiers is found.
	Identifiers []string
	// Protocols, if non-empty, restricts which service types are queried.
	Protocols []ServiceKind
	// Timeout bounds the whole scan pass. Default 3s per §4.5.
	Timeout time.Duration
	// Store, if set, is notified of every newly discovered device.
	Store StorageSink
}

// Scanner discovers devices via mDNS and fuses their services into
// DeviceConfigurations.
type Scanner struct {
	engine *mdns.Engine
	logger *atvlog.Logger
}

// New creates a Scanner.
func New() *Scanner {
	return &Scanner{engine: mdns.NewEngine(), logger: atvlog.WithComponent("scanner")}
}

// Scan runs one discovery pass and returns the fused device list.
func (s *Scanner) Scan(ctx context.Context, opts Options) ([]*DeviceConfiguration, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	serviceTypes := allServiceTypes
	if len(opts.Protocols) > 0 {
		serviceTypes = filterServiceTypes(opts.Protocols)
	}

	wanted := make(map[string]struct{}, len(opts.Identifiers))
	for _, id := range opts.Identifiers {
		wanted[id] = struct{}{}
	}

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	byType, err := s.engine.Scan(scanCtx, mdns.ScanOptions{
		Hosts:        opts.Hosts,
		ServiceTypes: serviceTypes,
		Timeout:      timeout,
	})
	if err != nil {
		return nil, err
	}

	devices := fuseDevices(byType)

	result := make([]*DeviceConfiguration, 0, len(devices))
	for _, dev := range devices {
		if !dev.hasControlProtocol() {
			s.logger.Debug("suppressing AirPlay-only device", "name", dev.Name)
			continue
		}
		result = append(result, dev)

		if opts.Store != nil {
			if err := opts.Store.SaveDiscovered(dev); err != nil {
				s.logger.Warn("failed to persist discovered device", "name", dev.Name, "error", err)
			}
		}

		// Best-effort early exit: mdns.Engine currently aggregates a full
		// scan pass rather than streaming instances as they arrive, so
		// this stops building the result set at the first identifier
		// match within that pass rather than aborting the network wait.
		if len(wanted) > 0 && dev.HasIdentifier(wanted) {
			return result, nil
		}
	}

	return result, nil
}

func filterServiceTypes(kinds []ServiceKind) []string {
	want := make(map[ServiceKind]struct{}, len(kinds))
	for _, k := range kinds {
		want[k] = struct{}{}
	}
	out := []string{deviceInfoServiceType, sleepProxyServiceType}
	for svcType, kind := range serviceTypeKind {
		if _, ok := want[kind]; ok {
			out = append(out, svcType)
		}
	}
	return out
}
