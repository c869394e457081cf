package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ldi/tempo/pkg/models"
)

// Collection names. The engine treats the store as one opaque blob per
// logical collection; whole-blob read/replace is all the concurrency
// control a single-user tool needs.
const (
	collectionBoard      = "board"
	collectionSettings   = "settings"
	collectionLastActive = "last_active"
)

// Store persists JSON collection blobs in SQLite. A Put that returns nil is
// durable before the next Put begins (single connection, WAL).
type Store struct {
	db *sql.DB

	onChangeMu sync.RWMutex
	onChange   func(ctx context.Context)
}

// Open opens (and migrates) the store at the given path. ":memory:" is
// supported for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		name       TEXT PRIMARY KEY,
		data       TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SetOnChange registers a hook fired after every committed write. Hooks are
// best-effort consumers (auto-export, cross-process transports); they must
// not write back into the store synchronously.
func (s *Store) SetOnChange(fn func(ctx context.Context)) {
	s.onChangeMu.Lock()
	defer s.onChangeMu.Unlock()
	s.onChange = fn
}

func (s *Store) triggerChange(ctx context.Context) {
	s.onChangeMu.RLock()
	fn := s.onChange
	s.onChangeMu.RUnlock()
	if fn != nil {
		fn(ctx)
	}
}

// Put upserts a collection blob.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	query := `
		INSERT INTO collections (name, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, name, string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to write collection %s: %w", name, err)
	}
	s.triggerChange(ctx)
	return nil
}

// Get reads a collection blob. A missing collection returns (nil, nil).
func (s *Store) Get(ctx context.Context, name string) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM collections WHERE name = ?`, name).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read collection %s: %w", name, err)
	}
	return []byte(data), nil
}

// SaveSnapshot persists the whole-board snapshot. This is the Persister
// implementation the engine commits through.
func (s *Store) SaveSnapshot(ctx context.Context, snap *models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return s.Put(ctx, collectionBoard, data)
}

// LoadSnapshot reads the persisted board snapshot. An empty store yields an
// empty snapshot, not an error.
func (s *Store) LoadSnapshot(ctx context.Context) (*models.Snapshot, error) {
	data, err := s.Get(ctx, collectionBoard)
	if err != nil {
		return nil, err
	}
	snap := &models.Snapshot{}
	if data == nil {
		return snap, nil
	}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// SaveSettings persists the user settings blob.
func (s *Store) SaveSettings(ctx context.Context, settings models.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	return s.Put(ctx, collectionSettings, data)
}

// LoadSettings reads the settings, filling zero-valued thresholds with
// defaults so a partially written blob never disables auto-pause.
func (s *Store) LoadSettings(ctx context.Context) (models.Settings, error) {
	defaults := models.DefaultSettings()
	data, err := s.Get(ctx, collectionSettings)
	if err != nil {
		return defaults, err
	}
	if data == nil {
		return defaults, nil
	}
	var settings models.Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return defaults, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	if settings.AutoPauseAfterMinutes <= 0 {
		settings.AutoPauseAfterMinutes = defaults.AutoPauseAfterMinutes
	}
	if settings.NotifyAfterMinutes <= 0 {
		settings.NotifyAfterMinutes = defaults.NotifyAfterMinutes
	}
	if settings.EndOfDayHour <= 0 {
		settings.EndOfDayHour = defaults.EndOfDayHour
	}
	return settings, nil
}

// SaveLastActive shares the last observed activity with other contexts.
func (s *Store) SaveLastActive(ctx context.Context, at time.Time) error {
	data, err := json.Marshal(at)
	if err != nil {
		return fmt.Errorf("failed to marshal last-active: %w", err)
	}
	return s.Put(ctx, collectionLastActive, data)
}

// LoadLastActive reads the shared last-active timestamp. A zero time means
// no activity has been recorded yet.
func (s *Store) LoadLastActive(ctx context.Context) (time.Time, error) {
	data, err := s.Get(ctx, collectionLastActive)
	if err != nil || data == nil {
		return time.Time{}, err
	}
	var at time.Time
	if err := json.Unmarshal(data, &at); err != nil {
		return time.Time{}, fmt.Errorf("failed to unmarshal last-active: %w", err)
	}
	return at, nil
}
