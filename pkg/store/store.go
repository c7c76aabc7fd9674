// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package store implements the Persistent Store (spec.md §4.2): the
// project's symbols.db, its schema, migrations, FTS5 search index, and
// batch write operations, on top of modernc.org/sqlite — a pure-Go
// database/sql driver, so the store carries no cgo dependency even though
// the extractor (libclang) does.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Sentinel errors matching the store error kinds of spec.md §7.
var (
	ErrSchemaTooNew = errors.New("store: schema too new")
	ErrStoreCorrupt = errors.New("store: corrupt")
	ErrStoreBusy    = errors.New("store: busy")
)

// ConstraintViolationError wraps a row-level constraint failure that should
// not abort the rest of a batch.
type ConstraintViolationError struct {
	Err error
}

func (e *ConstraintViolationError) Error() string { return "store: constraint violation: " + e.Err.Error() }
func (e *ConstraintViolationError) Unwrap() error  { return e.Err }

// maxBusyRetries bounds the insert_symbols_batch retry-on-lock policy of
// spec.md §4.2 ("re-executes with backoff on lock contention up to 3
// attempts").
const maxBusyRetries = 3

// busyBackoffCap bounds a single busy-handler wait, per spec.md §4.2
// ("exponential backoff up to ~1s per attempt").
const busyBackoffCap = time.Second

// Store is one process's connection to a project's symbols.db.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens (creating if absent) the SQLite database at path in WAL mode
// with a bounded busy timeout, then migrates it to CurrentSchemaVersion.
// Each process that calls Open owns its own *sql.DB; closing one Store's
// connection never affects another process's or another subsystem's
// connection (spec.md §5 "subsystem connection lifetimes must not be
// coupled").
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(1000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // writer serialization; modernc.org/sqlite connections are not safe to fan out per-process

	if err := migrate(db, func() int64 { return time.Now().Unix() }); err != nil {
		db.Close()
		if errors.Is(err, ErrSchemaTooNew) {
			return nil, ErrSchemaTooNew
		}
		return nil, err
	}

	s := &Store{db: db, path: path, logger: logger}
	logger.Info("store.open", "path", path)
	return s, nil
}

// Close closes this Store's connection only.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the on-disk database path this Store was opened with.
func (s *Store) Path() string {
	return s.path
}

// withRetry runs fn up to maxBusyRetries times in all, with exponential
// backoff (capped at busyBackoffCap) when fn reports SQLITE_BUSY. Persistent
// contention surfaces as ErrStoreBusy.
func (s *Store) withRetry(fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxBusyRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !isBusyError(err) {
			return err
		}
		lastErr = err
		backoff := time.Duration(math.Pow(2, float64(attempt))) * 50 * time.Millisecond
		if backoff > busyBackoffCap {
			backoff = busyBackoffCap
		}
		time.Sleep(backoff)
	}
	s.logger.Warn("store.busy.exhausted", "path", s.path, "attempts", maxBusyRetries)
	return fmt.Errorf("%w: %v", ErrStoreBusy, lastErr)
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// IntegrityCheck runs SQLite's built-in consistency check and reports
// corruption findings (spec.md §4.2 integrity_check).
func (s *Store) IntegrityCheck() ([]string, error) {
	rows, err := s.db.Query(`PRAGMA integrity_check`)
	if err != nil {
		return nil, fmt.Errorf("store: integrity_check: %w", err)
	}
	defer rows.Close()

	var findings []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, err
		}
		if line != "ok" {
			findings = append(findings, line)
		}
	}
	return findings, rows.Err()
}

// Vacuum rebuilds the database file to reclaim space, recording the
// maintenance timestamp in engine_meta.
func (s *Store) Vacuum() error {
	if _, err := s.db.Exec(`VACUUM`); err != nil {
		return fmt.Errorf("store: vacuum: %w", err)
	}
	return s.touchMaintenance()
}

// Analyze refreshes SQLite's query planner statistics.
func (s *Store) Analyze() error {
	if _, err := s.db.Exec(`ANALYZE`); err != nil {
		return fmt.Errorf("store: analyze: %w", err)
	}
	return s.touchMaintenance()
}

func (s *Store) touchMaintenance() error {
	return s.SetMeta("last_maintenance_at", fmt.Sprintf("%d", time.Now().Unix()))
}

// GetMeta reads a single key from engine_meta; ok is false if absent.
func (s *Store) GetMeta(key string) (value string, ok bool, err error) {
	row := s.db.QueryRow(`SELECT value FROM engine_meta WHERE key = ?`, key)
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

// SetMeta upserts a single key in engine_meta.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO engine_meta(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}
