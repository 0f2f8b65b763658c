// Package store persists HIGH-risk sightings and the feedback audit log in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"plantguard/internal/logging"
	"plantguard/internal/types"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

const schema = `
CREATE TABLE IF NOT EXISTS plant_data (
	key TEXT PRIMARY KEY,
	entry TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS feedback_events (
	id TEXT PRIMARY KEY,
	signal TEXT NOT NULL,
	score INTEGER NOT NULL,
	threshold REAL NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feedback_created ON feedback_events(created_at);
`

// SightingStore is a key-value sighting log keyed by timestamp millis.
// Entries are "species,lat,lon,time"; a later write with the same key
// replaces the earlier one.
type SightingStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	path   string
	closed bool
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*SightingStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	logging.Store("Opening sighting store at %s", path)

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.StoreError("Failed to create directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.StoreError("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.StoreDebug("%s failed: %v", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		logging.StoreError("Failed to initialize schema: %v", err)
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SightingStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SightingStore) Path() string { return s.path }

// Record writes one sighting.
func (s *SightingStore) Record(ctx context.Context, sighting types.Sighting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	key, entry := sighting.Key(), sighting.Entry()
	if _, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO plant_data (key, entry) VALUES (?, ?)", key, entry); err != nil {
		logging.StoreError("Failed to record sighting %s: %v", key, err)
		return fmt.Errorf("failed to record sighting: %w", err)
	}
	logging.StoreDebug("Recorded sighting %s => %s", key, entry)
	return nil
}

// List returns all sightings, oldest first. Unparseable entries are skipped.
func (s *SightingStore) List(ctx context.Context) ([]types.Sighting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, "SELECT key, entry FROM plant_data ORDER BY CAST(key AS INTEGER)")
	if err != nil {
		return nil, fmt.Errorf("failed to list sightings: %w", err)
	}
	defer rows.Close()

	var out []types.Sighting
	for rows.Next() {
		var key, entry string
		if err := rows.Scan(&key, &entry); err != nil {
			return nil, fmt.Errorf("failed to scan sighting: %w", err)
		}
		sighting, err := types.ParseSightingEntry(entry)
		if err != nil {
			logging.StoreDebug("Skipping sighting %s: %v", key, err)
			continue
		}
		out = append(out, sighting)
	}
	return out, rows.Err()
}

// Count returns the number of stored sightings.
func (s *SightingStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM plant_data").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sightings: %w", err)
	}
	return n, nil
}

// RecordFeedback appends one feedback event to the audit log.
func (s *SightingStore) RecordFeedback(ctx context.Context, ev types.FeedbackEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO feedback_events (id, signal, score, threshold, created_at) VALUES (?, ?, ?, ?, ?)",
		ev.ID, ev.Signal, ev.Score, ev.Threshold, ev.Time.UnixMilli()); err != nil {
		logging.StoreError("Failed to record feedback %s: %v", ev.ID, err)
		return fmt.Errorf("failed to record feedback: %w", err)
	}
	return nil
}

// FeedbackEvents returns the feedback log, oldest first.
func (s *SightingStore) FeedbackEvents(ctx context.Context) ([]types.FeedbackEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, signal, score, threshold, created_at FROM feedback_events ORDER BY created_at, rowid")
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	var out []types.FeedbackEvent
	for rows.Next() {
		var ev types.FeedbackEvent
		var ms int64
		if err := rows.Scan(&ev.ID, &ev.Signal, &ev.Score, &ev.Threshold, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		ev.Time = time.UnixMilli(ms)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Close closes the database. It is safe to call more than once.
func (s *SightingStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	logging.StoreDebug("Closing sighting store %s", s.path)
	return s.db.Close()
}
