// Package persist provides Persister implementations: durable snapshot
// storage for the in-memory session store.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Nocena/app.nocena-sub001/internal/ingest"
)

// FileStore persists the session snapshot as a single JSON file. Writes go
// through a temp file and rename so a crash mid-write never leaves a
// truncated snapshot behind.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to path. The parent directory must
// exist or be creatable.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save implements ingest.Persister.
func (f *FileStore) Save(snap ingest.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Load implements ingest.Persister. A missing file is a normal cold start
// and yields an empty snapshot; a corrupt file returns an error the caller
// treats the same way.
func (f *FileStore) Load() (ingest.Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ingest.Snapshot{}, nil
		}
		return ingest.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	var snap ingest.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return ingest.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}
