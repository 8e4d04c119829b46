package atv

import (
	"context"

	"github.com/atvkit/atvkit/internal/scanner"
)

// ScanOptions narrows a Scan call beyond what Config already fixes.
type ScanOptions struct {
	Hosts       []string
	Identifiers []string
	Protocols   []ServiceKind
}

// Scan runs one mDNS discovery pass and returns the fused device list,
// persisting every newly seen device to the configured store.
func Scan(ctx context.Context, scanOpts ScanOptions, opts ...Option) ([]*DeviceConfiguration, error) {
	cfg := resolveConfig(opts)
	s := scanner.New()
	return s.Scan(ctx, scanner.Options{
		Hosts:       scanOpts.Hosts,
		Identifiers: scanOpts.Identifiers,
		Protocols:   scanOpts.Protocols,
		Timeout:     cfg.ScanTimeout,
		Store:       storageSink(cfg.Store),
	})
}

// storageSink adapts a storage.Storage to scanner.StorageSink: every
// concrete backing store (file, memory) embeds SaveDiscovered, but
// storage.Storage's own interface doesn't name it, so the assertion
// lives here rather than widening that interface just for this caller.
func storageSink(s any) scanner.StorageSink {
	sink, _ := s.(scanner.StorageSink)
	return sink
}
