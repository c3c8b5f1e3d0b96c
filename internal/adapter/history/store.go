// Package history persists the rolling window of gauge readings.
//
// The store keeps the whole window as one schema-versioned JSON snapshot in a
// single key-value slot, so reads and writes are atomic at the slot level.
// Persistence is best-effort: every storage failure is logged and converted
// to a safe default, never surfaced to the caller.
package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/pegelwacht/pegel-monitor/internal/config"
	"github.com/pegelwacht/pegel-monitor/internal/domain"
	"github.com/pegelwacht/pegel-monitor/internal/observability"
)

// SchemaVersion guards the slot format. A loaded snapshot with any other
// version is discarded and reinitialized empty; no migration is attempted.
const SchemaVersion = 1

const slotKey = "water_level_history"

// snapshot is the serialized slot value. Readings are ordered newest first.
type snapshot struct {
	Version     int              `json:"version"`
	Readings    []domain.Reading `json:"readings"`
	LastUpdated time.Time        `json:"last_updated"`
}

// Store is a bounded history of readings backed by a SQLite key-value slot.
// Entries are evicted by count (maxEntries, newest kept) and by age (maxAge).
type Store struct {
	db         *sql.DB
	maxEntries int
	maxAge     time.Duration
	logger     *slog.Logger
	metrics    *observability.Metrics
	clock      clockwork.Clock

	// persistFn writes a snapshot to the slot. Tests swap it to fault the
	// storage layer.
	persistFn func(snapshot) error

	mu sync.Mutex
}

// Open opens (creating if needed) the SQLite database and bootstraps the
// slots table.
func Open(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*Store, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &domain.StorageError{Op: "create database directory", Err: err}
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, &domain.StorageError{Op: "open database", Err: err}
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS slots (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, &domain.StorageError{Op: "create slots table", Err: err}
	}

	logger.Info("history store opened", "path", cfg.DBPath,
		"max_entries", cfg.HistoryMaxEntries, "max_age", cfg.HistoryMaxAge)

	s := &Store{
		db:         db,
		maxEntries: cfg.HistoryMaxEntries,
		maxAge:     cfg.HistoryMaxAge,
		logger:     logger,
		metrics:    metrics,
		clock:      clockwork.NewRealClock(),
	}
	s.persistFn = s.writeSlot
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveReading appends r to the window and persists it. Entries stay sorted
// newest first and are truncated to maxEntries. On a storage-capacity failure
// the older half of the window is discarded and the write retried once. After
// a successful save, entries older than maxAge are evicted. Returns false
// when persistence ultimately failed; the reading is then lost.
func (s *Store) SaveReading(r domain.Reading) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.load()
	snap.Readings = append(snap.Readings, r)
	sortNewestFirst(snap.Readings)
	if len(snap.Readings) > s.maxEntries {
		snap.Readings = snap.Readings[:s.maxEntries]
	}
	snap.LastUpdated = s.clock.Now()

	err := s.persistFn(snap)
	if err != nil && isCapacityError(err) && len(snap.Readings) > 1 {
		keep := (len(snap.Readings) + 1) / 2
		s.logger.Warn("storage capacity reached, discarding older half of history",
			"kept", keep, "dropped", len(snap.Readings)-keep)
		snap.Readings = snap.Readings[:keep]
		err = s.persistFn(snap)
	}
	if err != nil {
		s.metrics.StorageErrors.Inc()
		s.logger.Error("failed to persist reading",
			"error", &domain.StorageError{Op: "save reading", Err: err})
		return false
	}

	s.metrics.ReadingsSaved.Inc()
	s.evictExpired(&snap)
	s.metrics.HistorySize.Set(float64(len(snap.Readings)))
	return true
}

// HistoricalData returns the readings of the last N hours ascending by
// timestamp, oldest first. Non-positive hours defaults to 24.
func (s *Store) HistoricalData(hours int) []domain.Reading {
	if hours <= 0 {
		hours = 24
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.load()
	cutoff := s.clock.Now().Add(-time.Duration(hours) * time.Hour)

	var out []domain.Reading
	// Stored newest first; walk backwards for chronological order.
	for i := len(snap.Readings) - 1; i >= 0; i-- {
		if !snap.Readings[i].Timestamp.Before(cutoff) {
			out = append(out, snap.Readings[i])
		}
	}
	return out
}

// LatestReading returns a copy of the newest entry, or nil if the window is
// empty.
func (s *Store) LatestReading() *domain.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.load()
	if len(snap.Readings) == 0 {
		return nil
	}
	r := snap.Readings[0]
	return &r
}

// CleanOldData evicts entries older than maxAge and persists the result.
func (s *Store) CleanOldData() {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.load()
	s.evictExpired(&snap)
	s.metrics.HistorySize.Set(float64(len(snap.Readings)))
}

// ClearAll removes the persisted slot entirely.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM slots WHERE key = ?`, slotKey); err != nil {
		s.metrics.StorageErrors.Inc()
		s.logger.Error("failed to clear history",
			"error", &domain.StorageError{Op: "clear", Err: err})
		return
	}
	s.metrics.HistorySize.Set(0)
}

// load reads the slot and returns its snapshot. A missing, corrupt, or
// version-mismatched slot yields a fresh empty snapshot.
func (s *Store) load() snapshot {
	empty := snapshot{Version: SchemaVersion}

	var raw string
	err := s.db.QueryRow(`SELECT value FROM slots WHERE key = ?`, slotKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return empty
	}
	if err != nil {
		s.metrics.StorageErrors.Inc()
		s.logger.Error("failed to load history slot",
			"error", &domain.StorageError{Op: "load", Err: err})
		return empty
	}

	var snap snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		s.logger.Warn("history slot is corrupt, reinitializing", "error", err)
		return empty
	}
	if snap.Version != SchemaVersion {
		s.logger.Warn("history slot has unknown schema version, reinitializing",
			"found", snap.Version, "want", SchemaVersion)
		return empty
	}
	return snap
}

func (s *Store) writeSlot(snap snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO slots (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, slotKey, string(raw))
	return err
}

// evictExpired drops entries older than maxAge from snap and persists the
// result when anything changed. Persistence failures are logged only; the
// expired entries will be evicted again on the next pass.
func (s *Store) evictExpired(snap *snapshot) {
	cutoff := s.clock.Now().Add(-s.maxAge)

	kept := snap.Readings[:0]
	for _, r := range snap.Readings {
		if !r.Timestamp.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(snap.Readings) {
		return
	}

	dropped := len(snap.Readings) - len(kept)
	snap.Readings = kept
	snap.LastUpdated = s.clock.Now()
	if err := s.persistFn(*snap); err != nil {
		s.metrics.StorageErrors.Inc()
		s.logger.Error("failed to persist history cleanup",
			"error", &domain.StorageError{Op: "clean", Err: err})
		return
	}
	s.logger.Debug("evicted expired readings", "dropped", dropped, "kept", len(kept))
}

func sortNewestFirst(readings []domain.Reading) {
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].Timestamp.After(readings[j].Timestamp)
	})
}

// isCapacityError reports whether err is the database refusing the write for
// lack of space.
func isCapacityError(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.Code == sqlite3.ErrFull
}
