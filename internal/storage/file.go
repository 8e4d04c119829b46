package storage

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/atvkit/atvkit/internal/atverrors"
)

// FileStorage persists records as a single JSON document, written
// atomically (temp file + rename) the way the teacher's config backend
// writes its own on-disk state, adapted from an HCL document to a
// small JSON blob since credentials/settings are an opaque key-value
// store rather than a structured configuration file.
type FileStorage struct {
	base
	path string
}

// fileDocument is the on-disk shape: a flat map keyed by device
// identifier. Zero-valued records are never written, satisfying
// §4.12's default-omission invariant directly in the marshaled form.
type fileDocument struct {
	Devices map[string]DeviceSettings `json:"devices"`
}

// NewFileStorage creates a store backed by path. Load must be called
// before use to populate records from an existing file; a missing file
// is not an error, matching first-run behavior.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{base: newBase(), path: path}
}

// Load reads and parses path into memory, replacing any in-memory
// records. A missing file leaves the store empty.
func (f *FileStorage) Load() error {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		f.mu.Lock()
		f.records = make(map[string]DeviceSettings)
		f.dirty = false
		f.mu.Unlock()
		return nil
	}
	if err != nil {
		return atverrors.Wrap(atverrors.KindConnection, err, "storage: reading %q", f.path)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return atverrors.Wrap(atverrors.KindConnection, err, "storage: parsing %q", f.path)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if doc.Devices == nil {
		doc.Devices = make(map[string]DeviceSettings)
	}
	f.records = doc.Devices
	f.dirty = false
	return nil
}

// Save writes the current records to path atomically: a sibling temp
// file is written and fsynced, then renamed over the destination, so a
// crash mid-write never leaves a truncated or partially-written file.
func (f *FileStorage) Save() error {
	f.mu.RLock()
	doc := fileDocument{Devices: make(map[string]DeviceSettings, len(f.records))}
	for id, s := range f.records {
		if !s.isZero() {
			doc.Devices[id] = s
		}
	}
	f.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return atverrors.Wrap(atverrors.KindConnection, err, "storage: encoding records")
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".atvkit-storage-*.tmp")
	if err != nil {
		return atverrors.Wrap(atverrors.KindConnection, err, "storage: creating temp file in %q", dir)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return atverrors.Wrap(atverrors.KindConnection, err, "storage: writing temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return atverrors.Wrap(atverrors.KindConnection, err, "storage: syncing temp file")
	}
	if err := tmp.Close(); err != nil {
		return atverrors.Wrap(atverrors.KindConnection, err, "storage: closing temp file")
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return atverrors.Wrap(atverrors.KindConnection, err, "storage: renaming into place at %q", f.path)
	}

	f.MarkAsSaved()
	return nil
}

var _ Storage = (*FileStorage)(nil)
