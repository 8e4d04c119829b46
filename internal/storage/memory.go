package storage

// MemoryStorage is the default backend: records live only for the
// process lifetime. Load and Save are no-ops so callers can use it
// interchangeably with FileStorage without special-casing.
type MemoryStorage struct {
	base
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{base: newBase()}
}

// Load is a no-op; there is nothing to load from.
func (m *MemoryStorage) Load() error { return nil }

// Save is a no-op; it clears the dirty flag so callers see consistent
// Changed() behavior regardless of backend.
func (m *MemoryStorage) Save() error {
	m.MarkAsSaved()
	return nil
}

var _ Storage = (*MemoryStorage)(nil)
