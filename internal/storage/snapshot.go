package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oneiroslab/oneiros/backend/internal/journal"
	"go.uber.org/zap"
)

// snapshotSchemaVersion tags the on-disk layout. The field did not exist in
// the layout this store replaces; it is written so a future shape change has
// a migration hook instead of silently corrupting old journals.
const snapshotSchemaVersion = 1

// SnapshotStore keeps the whole dream collection in one JSON slot file.
// Every save rewrites the slot atomically; a missing or corrupt slot loads
// as an empty collection.
type SnapshotStore struct {
	path   string
	logger *zap.Logger
}

type snapshotEnvelope struct {
	SchemaVersion int                   `json:"schema_version"`
	Records       []journal.DreamRecord `json:"records"`
}

// NewSnapshotStore constructs a slot store at the given file path.
func NewSnapshotStore(path string, logger *zap.Logger) (*SnapshotStore, error) {
	if path == "" {
		return nil, fmt.Errorf("storage: snapshot path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotStore{path: path, logger: logger}, nil
}

// Load reads the slot. Corrupt data is treated as absent, never as an error.
func (s *SnapshotStore) Load(ctx context.Context) ([]journal.DreamRecord, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []journal.DreamRecord{}, nil
	}
	if err != nil {
		s.logger.Warn("snapshot read failed, starting empty",
			zap.String("path", s.path), zap.Error(err))
		return []journal.DreamRecord{}, nil
	}

	var envelope snapshotEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		s.logger.Warn("snapshot parse failed, starting empty",
			zap.String("path", s.path), zap.Error(err))
		return []journal.DreamRecord{}, nil
	}
	if envelope.Records == nil {
		return []journal.DreamRecord{}, nil
	}
	return envelope.Records, nil
}

// Save serializes the full collection and replaces the slot. The write goes
// through a temp file and rename so a crash never leaves a half-written slot.
func (s *SnapshotStore) Save(ctx context.Context, records []journal.DreamRecord) error {
	envelope := snapshotEnvelope{
		SchemaVersion: snapshotSchemaVersion,
		Records:       records,
	}
	encoded, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("storage: encode snapshot: %w", err)
	}

	directory := filepath.Dir(s.path)
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("storage: create snapshot directory: %w", err)
	}

	temp, err := os.CreateTemp(directory, ".oneiros-snapshot-*")
	if err != nil {
		return fmt.Errorf("storage: create temp snapshot: %w", err)
	}
	tempPath := temp.Name()
	if _, err := temp.Write(encoded); err != nil {
		temp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("storage: write temp snapshot: %w", err)
	}
	if err := temp.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("storage: close temp snapshot: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("storage: replace snapshot: %w", err)
	}
	return nil
}
