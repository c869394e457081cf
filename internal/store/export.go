package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ldi/tempo/pkg/models"
)

// EnableAutoExport sets up a hook that writes a snapshot file after every
// successful store write. Export errors are swallowed: the hook is
// best-effort and must not fail the original write.
func (s *Store) EnableAutoExport(path string) {
	s.SetOnChange(func(ctx context.Context) {
		_ = s.ExportSnapshot(ctx, path)
	})
}

// ExportSnapshot writes the persisted board snapshot to the given path
// atomically using a temporary file.
func (s *Store) ExportSnapshot(ctx context.Context, path string) error {
	snap, err := s.LoadSnapshot(ctx)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, "snapshot-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempFile.Name())
		}
	}()

	enc := json.NewEncoder(tempFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	filename := tempFile.Name()
	tempFile = nil // Prevent defer from removing it

	if err := os.Rename(filename, path); err != nil {
		os.Remove(filename)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// ImportSnapshot reads a snapshot file and replaces the persisted board
// state with it. The caller reloads its board afterwards.
func (s *Store) ImportSnapshot(ctx context.Context, path string) (*models.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot file: %w", err)
	}

	snap := &models.Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot file: %w", err)
	}

	if err := s.SaveSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}
