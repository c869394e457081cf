package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ldi/tempo/pkg/models"
)

func TestExportImportSnapshot(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "snapshot.json")

	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	created := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	snap := &models.Snapshot{
		Timestamp: created,
		Tasks: []*models.Task{
			{
				ID: "t1", WorkspaceID: "ws1", Title: "Exported",
				Status: models.TaskStatusNew, CreatedAt: created, UpdatedAt: created,
				History: []models.HistoryEntry{{Status: models.TaskStatusNew, EnteredAt: created}},
			},
		},
	}
	if err := s.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}

	if err := s.ExportSnapshot(ctx, path); err != nil {
		t.Fatalf("Failed to export: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Expected snapshot file: %v", err)
	}

	// No leftover temp files from the atomic write.
	entries, _ := os.ReadDir(tmpDir)
	if len(entries) != 1 {
		t.Errorf("Expected only the snapshot file, got %d entries", len(entries))
	}

	// Import into a fresh store.
	other, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open second store: %v", err)
	}
	defer other.Close()

	imported, err := other.ImportSnapshot(ctx, path)
	if err != nil {
		t.Fatalf("Failed to import: %v", err)
	}
	if len(imported.Tasks) != 1 || imported.Tasks[0].Title != "Exported" {
		t.Errorf("Import lost data: %+v", imported)
	}

	loaded, err := other.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("Failed to load after import: %v", err)
	}
	if len(loaded.Tasks) != 1 {
		t.Errorf("Expected imported snapshot persisted")
	}
}

func TestImportSnapshotMissingFile(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	if _, err := s.ImportSnapshot(context.Background(), filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Errorf("Expected error for missing snapshot file")
	}
}

func TestAutoExport(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "auto.json")

	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	s.EnableAutoExport(path)

	ctx := context.Background()
	if err := s.SaveSnapshot(ctx, &models.Snapshot{Timestamp: time.Now()}); err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected auto-exported snapshot file: %v", err)
	}
}
