package eventbus

import "sync"

// Aggregator consolidates events from several underlying StateProducers
// (one per protocol stack backing a device) and re-emits them through its
// own producer, the shape the facade presents to application listeners.
type Aggregator struct {
	out     *StateProducer
	mu      sync.Mutex
	sources map[string]*Handle
}

// NewAggregator creates an aggregator whose own producer fans out to up to
// maxFanout application listeners.
func NewAggregator(maxFanout int) *Aggregator {
	return &Aggregator{
		out:     NewStateProducer(maxFanout),
		sources: make(map[string]*Handle),
	}
}

// Producer returns the aggregator's own producer, for application Listen
// calls.
func (a *Aggregator) Producer() *StateProducer {
	return a.out
}

// AddSource attaches to a protocol stack's producer and relays every event
// it emits onto the aggregator's own producer. Re-adding the same name
// detaches the prior source first.
func (a *Aggregator) AddSource(name string, src *StateProducer) {
	a.mu.Lock()
	if h, ok := a.sources[name]; ok {
		h.Detach()
	}
	h, ok := src.Listen()
	if !ok {
		a.mu.Unlock()
		return
	}
	a.sources[name] = h
	a.mu.Unlock()

	go func() {
		for e := range h.C() {
			if e.Source == "" {
				e.Source = name
			}
			a.out.Emit(e)
		}
	}()
}

// RemoveSource detaches a previously added source.
func (a *Aggregator) RemoveSource(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if h, ok := a.sources[name]; ok {
		h.Detach()
		delete(a.sources, name)
	}
}

// Close detaches every source and closes the aggregator's own producer.
func (a *Aggregator) Close() {
	a.mu.Lock()
	for name, h := range a.sources {
		h.Detach()
		delete(a.sources, name)
	}
	a.mu.Unlock()
	a.out.Close()
}
