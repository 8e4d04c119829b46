package relay

import (
	"sync"

	"github.com/atvkit/atvkit/internal/atverrors"
)

// defaultPriority is the priority vector used for every capability
// except the two §4.11 calls out by name.
var defaultPriority = []Protocol{ProtocolMRP, ProtocolDMAP, ProtocolCompanion, ProtocolAirPlay, ProtocolRAOP}

var powerPriority = []Protocol{ProtocolCompanion, ProtocolMRP, ProtocolDMAP, ProtocolAirPlay, ProtocolRAOP}

var audioPriority = []Protocol{ProtocolRAOP, ProtocolMRP, ProtocolCompanion, ProtocolDMAP, ProtocolAirPlay}

func priorityFor(cap Capability) []Protocol {
	switch cap {
	case CapabilityPower:
		return powerPriority
	case CapabilityAudio:
		return audioPriority
	default:
		return defaultPriority
	}
}

// Registry holds each protocol stack's capability implementations and
// resolves a capability to the highest-priority registered provider,
// per §4.11. Registration is per-capability rather than per-operation:
// a protocol stack either implements a capability interface in full or
// does not register it, which keeps dispatch a plain priority-ordered
// lookup instead of reflection over individual methods.
type Registry struct {
	mu sync.RWMutex
	// impls[capability][protocol] = the registered implementation.
	impls map[Capability]map[Protocol]any
	// takeover, if set for a capability, is tried before the static
	// priority vector.
	takeover map[Capability]Protocol
}

// NewRegistry creates an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{
		impls:    make(map[Capability]map[Protocol]any),
		takeover: make(map[Capability]Protocol),
	}
}

// Register attaches protocol's implementation of capability. impl
// should satisfy the corresponding interface in capabilities.go; a nil
// impl is equivalent to not registering at all.
func (r *Registry) Register(cap Capability, proto Protocol, impl any) {
	if impl == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.impls[cap] == nil {
		r.impls[cap] = make(map[Protocol]any)
	}
	r.impls[cap][proto] = impl
}

// Unregister removes proto's implementation of cap, e.g. on connection
// loss for that stack.
func (r *Registry) Unregister(cap Capability, proto Protocol) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.impls[cap], proto)
	if r.takeover[cap] == proto {
		delete(r.takeover, cap)
	}
}

// Takeover inserts proto at the head of cap's priority vector until
// Release is called, per §4.11's PushUpdater migration rule (polling →
// streaming or similar runtime handoffs on other capabilities).
func (r *Registry) Takeover(cap Capability, proto Protocol) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.takeover[cap] = proto
}

// Release cancels a prior Takeover for cap, reverting to the static
// priority vector.
func (r *Registry) Release(cap Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.takeover, cap)
}

// Resolve returns the highest-priority registered implementation of
// cap, or a NotSupportedError if no protocol has registered one.
func (r *Registry) Resolve(cap Capability) (any, Protocol, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := r.impls[cap]
	if len(candidates) == 0 {
		return nil, "", atverrors.NotSupported("relay: no provider registered for capability %q", cap)
	}

	if head, ok := r.takeover[cap]; ok {
		if impl, ok := candidates[head]; ok {
			return impl, head, nil
		}
	}

	for _, proto := range priorityFor(cap) {
		if impl, ok := candidates[proto]; ok {
			return impl, proto, nil
		}
	}
	return nil, "", atverrors.NotSupported("relay: no provider registered for capability %q", cap)
}
