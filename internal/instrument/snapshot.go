package instrument

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rickgao/rofex-data/internal/model"
)

// SnapshotFileName is the document name used by FileStore.
const SnapshotFileName = "instruments_cache.json"

// Snapshot is the durable form of one cache generation.
type Snapshot struct {
	Timestamp   time.Time          `json:"timestamp"`
	TTLMinutes  int                `json:"ttl_minutes"`
	Instruments []model.Instrument `json:"instruments"`
	Count       int                `json:"count"`
	Metadata    map[string]string  `json:"metadata,omitempty"`
}

// Valid reports whether the snapshot is within ttl of now.
func (s *Snapshot) Valid(now time.Time, ttl time.Duration) bool {
	if s == nil || s.Timestamp.IsZero() {
		return false
	}
	return now.Sub(s.Timestamp) <= ttl
}

// SnapshotStore persists the latest snapshot. Load returns (nil, nil) when no
// snapshot exists.
type SnapshotStore interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	Delete(ctx context.Context) error
}

func decodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Count == 0 {
		snap.Count = len(snap.Instruments)
	}
	return &snap, nil
}

// FileStore keeps the snapshot as a JSON document in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Path returns the snapshot file path.
func (f *FileStore) Path() string {
	return filepath.Join(f.dir, SnapshotFileName)
}

// Load reads the snapshot from disk.
func (f *FileStore) Load(ctx context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(f.Path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

// Save writes the snapshot atomically: the temp file is synced to disk
// before it is renamed over the previous snapshot.
func (f *FileStore) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(f.dir, SnapshotFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path()); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Delete removes the snapshot file. A missing file is not an error.
func (f *FileStore) Delete(ctx context.Context) error {
	if err := os.Remove(f.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
