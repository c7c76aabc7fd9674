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

// Package engine implements the Engine State Machine (spec.md §4.8): the
// single owner of a project's Persistent Store, Header Tracker, worker pool
// and caches, exposing the non-blocking control surface (set_project_directory,
// refresh_project, wait_for_indexing, get_indexing_status, get_server_status)
// and delegating queries to pkg/query.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kraklabs/cie/internal/errors"
	"github.com/kraklabs/cie/pkg/builddb"
	"github.com/kraklabs/cie/pkg/coordinator"
	"github.com/kraklabs/cie/pkg/headertracker"
	"github.com/kraklabs/cie/pkg/query"
	"github.com/kraklabs/cie/pkg/refresh"
	"github.com/kraklabs/cie/pkg/scanner"
	"github.com/kraklabs/cie/pkg/store"
)

// State is one of the four Engine State Machine states of spec.md §4.8.
type State string

const (
	StateIdle       State = "idle"
	StateIndexing   State = "indexing"
	StateReady      State = "ready"
	StateRefreshing State = "refreshing"
)

// Status is the get_indexing_status / get_server_status response shape.
type Status struct {
	State       State
	ProjectRoot string
	OperationID string
	Progress    *coordinator.Progress // nil => progress=none sentinel
}

// ServerStatus is get_server_status's response (spec.md §4.8).
type ServerStatus struct {
	ParsedFiles     int
	ProjectFiles    int
	SymbolCount     int
	CacheSizeBytes  int64
	State           State
}

// Config configures a new Engine. WorkerPath is the cie-worker executable
// the coordinator spawns; CacheRoot is the parent directory under which
// per-project cache directories are created (defaults to ~/.cie/projects).
type Config struct {
	WorkerPath string
	CacheRoot  string
	PoolSize   int
	Logger     *slog.Logger
}

// Engine is the single state-machine instance the transport layer drives.
// It commits state transitions before spawning any background work, per
// spec.md §4.8's explicit ordering requirement.
type Engine struct {
	cfg Config

	mu          sync.RWMutex
	state       State
	projectRoot string
	operationID string
	progress    *coordinator.Progress

	store      *store.Store
	tracker    *headertracker.Tracker
	buildDB    *builddb.DB
	coord      *coordinator.Coordinator
	refreshEng *refresh.Engine
	queryEng   *query.Engine
	cache      scanner.HashCache
	buildDBVer string

	waiters []chan struct{}
}

// New constructs an idle Engine. Call SetProjectDirectory before any other
// operation.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CacheRoot == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.CacheRoot = filepath.Join(home, ".cie", "projects")
		} else {
			cfg.CacheRoot = filepath.Join(os.TempDir(), "cie-projects")
		}
	}
	return &Engine{cfg: cfg, state: StateIdle}
}

// cacheDir derives the deterministic per-project cache directory from the
// absolute project root (spec.md §6.1: "so multiple projects do not share
// state").
func (e *Engine) cacheDir(projectRoot string) string {
	sum := sha256.Sum256([]byte(projectRoot))
	return filepath.Join(e.cfg.CacheRoot, hex.EncodeToString(sum[:])[:16])
}

// SetProjectDirectory opens (or recreates) the project's store, loads the
// in-memory hash cache, and — if indexing is required — commits the
// Indexing state before spawning the coordinator run on a background
// goroutine. The new state is visible to any call that returns after this
// one returns, even if indexing has not started yet (spec.md §4.8).
func (e *Engine) SetProjectDirectory(projectRoot string) (string, error) {
	absRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return "", errors.NewConfigErrorKind(errors.KindInvalidProjectRoot,
			"invalid project root", err.Error(), "pass an existing directory path", err)
	}
	if fi, statErr := os.Stat(absRoot); statErr != nil || !fi.IsDir() {
		return "", errors.NewConfigErrorKind(errors.KindInvalidProjectRoot,
			"project root does not exist", absRoot, "create the directory or check the path", statErr)
	}

	dir := e.cacheDir(absRoot)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.NewStoreError(errors.KindStoreCorrupt, "cannot create cache directory", err.Error(), "", err)
	}

	db, err := builddb.Load(absRoot)
	if err != nil {
		return "", errors.NewConfigErrorKind(errors.KindBuildDatabaseMissing,
			"compile_commands.json not found or unreadable", err.Error(),
			"generate a compilation database (e.g. CMAKE_EXPORT_COMPILE_COMMANDS=ON)", err)
	}
	buildDBVersion := db.Version()

	st, identityChanged, err := e.openStoreForIdentity(dir, absRoot, buildDBVersion)
	if err != nil {
		db.Close()
		return "", err
	}

	tracker := headertracker.New()
	trackerPath := filepath.Join(dir, "header_tracker.json")
	if !identityChanged {
		_ = tracker.Restore(trackerPath, buildDBVersion)
	} else {
		_ = st.ClearHeaderOwnership()
	}

	coord := coordinator.New(coordinator.Config{
		WorkerPath:           e.cfg.WorkerPath,
		PoolSize:             e.cfg.PoolSize,
		ProjectRoot:          absRoot,
		BuildDatabaseVersion: buildDBVersion,
	}, tracker, st, e.cfg.Logger)

	cache := make(scanner.HashCache)
	refreshEng := refresh.New(coord, tracker, st, e.cfg.Logger)
	queryEng := query.New(st)

	opID := uuid.NewString()

	e.mu.Lock()
	if e.store != nil {
		_ = e.persistHeaderTracker()
		e.store.Close()
	}
	if e.buildDB != nil {
		e.buildDB.Close()
	}
	e.projectRoot = absRoot
	e.store = st
	e.tracker = tracker
	e.buildDB = db
	e.coord = coord
	e.refreshEng = refreshEng
	e.queryEng = queryEng
	e.cache = cache
	e.buildDBVer = buildDBVersion
	e.operationID = opID

	needsIndex := identityChanged
	if needsIndex {
		p := coordinator.Progress{}
		e.progress = &p
		e.state = StateIndexing
	} else {
		e.state = StateReady
		e.progress = nil
	}
	e.mu.Unlock()

	if needsIndex {
		go e.runIndexing(opID, true)
	}

	return opID, nil
}

// openStoreForIdentity opens symbols.db, checking the stored cache identity
// (project root, build-database version, schema version) from spec.md
// §3.2/§6.2. Any mismatch forces recreation of the store file.
func (e *Engine) openStoreForIdentity(dir, projectRoot, buildDBVersion string) (*store.Store, bool, error) {
	dbPath := filepath.Join(dir, "symbols.db")

	st, err := store.Open(dbPath, e.cfg.Logger)
	switch {
	case err == nil:
		storedRoot, _, _ := st.GetMeta("project_root")
		storedVer, _, _ := st.GetMeta("build_database_version")
		if storedRoot == projectRoot && storedVer == buildDBVersion {
			return st, false, nil
		}
		st.Close()
	case err == store.ErrSchemaTooNew:
		return nil, false, errors.NewStoreError(errors.KindSchemaTooNew,
			"project cache was written by a newer version of this tool", "", "upgrade this tool", err)
	default:
		e.cfg.Logger.Warn("engine.store.open_failed.recreating", "path", dbPath, "err", err)
	}

	_ = os.Remove(dbPath)
	_ = os.Remove(dbPath + "-wal")
	_ = os.Remove(dbPath + "-shm")
	st, err = store.Open(dbPath, e.cfg.Logger)
	if err != nil {
		return nil, false, errors.NewStoreError(errors.KindStoreCorrupt, "cannot open project store", err.Error(), "", err)
	}
	if err := st.SetMeta("project_root", projectRoot); err != nil {
		st.Close()
		return nil, false, err
	}
	if err := st.SetMeta("build_database_version", buildDBVersion); err != nil {
		st.Close()
		return nil, false, err
	}
	return st, true, nil
}

// runIndexing dispatches every source file in the build database (full
// index) through the coordinator, then transitions back to Ready.
func (e *Engine) runIndexing(opID string, full bool) {
	e.mu.RLock()
	db, coord, cache, logger := e.buildDB, e.coord, e.cache, e.cfg.Logger
	e.mu.RUnlock()

	var tasks []coordinator.Task
	for _, path := range db.Files() {
		entry, ok := db.Lookup(path)
		if !ok {
			continue
		}
		tasks = append(tasks, coordinator.Task{Path: path, Args: entry.Args})
	}

	summary, err := coord.Run(context.Background(), tasks)
	if err != nil {
		logger.Error("engine.indexing.failed", "err", err)
	}
	_ = full

	e.finishOperation(opID, summary, cache)
}

func (e *Engine) finishOperation(opID string, summary coordinator.Summary, cache scanner.HashCache) {
	e.mu.Lock()
	if e.operationID == opID {
		e.state = StateReady
		e.progress = nil
	}
	_ = e.persistHeaderTracker()
	waiters := e.waiters
	e.waiters = nil
	e.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
	_ = summary
	_ = cache
}

// persistHeaderTracker writes header_tracker.json for the active project.
// Caller must hold e.mu.
func (e *Engine) persistHeaderTracker() error {
	if e.store == nil || e.tracker == nil {
		return nil
	}
	dir := e.cacheDir(e.projectRoot)
	return e.tracker.Persist(filepath.Join(dir, "header_tracker.json"), e.buildDBVer)
}

// RefreshProject triggers an incremental (or full) refresh. Only valid from
// Ready; transitions Ready -> Refreshing and back, returning immediately.
func (e *Engine) RefreshProject(incremental bool) (string, error) {
	e.mu.Lock()
	if e.state != StateReady {
		e.mu.Unlock()
		return "", errors.NewConfigErrorKind(errors.KindProjectNotSet,
			"no project is ready to refresh", fmt.Sprintf("current state is %q", e.state),
			"call set_project_directory and wait for Ready", nil)
	}
	opID := uuid.NewString()
	e.operationID = opID
	e.state = StateRefreshing
	p := coordinator.Progress{}
	e.progress = &p
	tracker, st, cache, buildDBVer := e.tracker, e.store, e.cache, e.buildDBVer
	refreshEng := e.refreshEng
	e.mu.Unlock()

	if !incremental {
		tracker.ClearAll()
		_ = st.ClearHeaderOwnership()
	}

	db, err := builddb.Load(e.projectRoot)
	if err != nil {
		e.finishOperation(opID, coordinator.Summary{}, cache)
		return "", errors.NewConfigErrorKind(errors.KindBuildDatabaseMissing,
			"compile_commands.json not found or unreadable", err.Error(), "", err)
	}
	newVersion := db.Version()
	versionChanged := newVersion != buildDBVer

	go func() {
		result, err := refreshEng.Run(context.Background(), db, cache, newVersion, versionChanged)
		if err != nil {
			e.cfg.Logger.Error("engine.refresh.failed", "err", err)
		}
		e.mu.Lock()
		e.buildDB = db
		e.buildDBVer = newVersion
		e.mu.Unlock()
		e.finishOperation(opID, result.Summary, cache)
	}()

	return opID, nil
}

// WaitForIndexing blocks until the current operation completes or timeout
// elapses, returning the final state. A timeout of zero or less waits with
// no time limit.
func (e *Engine) WaitForIndexing(timeout time.Duration) State {
	e.mu.Lock()
	if e.state != StateIndexing && e.state != StateRefreshing {
		state := e.state
		e.mu.Unlock()
		return state
	}
	ch := make(chan struct{})
	e.waiters = append(e.waiters, ch)
	e.mu.Unlock()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timeoutCh = time.After(timeout)
	}
	select {
	case <-ch:
	case <-timeoutCh:
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// GetIndexingStatus returns the current state and progress record, or a
// progress=none sentinel (nil Progress) when no operation is active.
func (e *Engine) GetIndexingStatus() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var prog *coordinator.Progress
	if e.progress != nil && e.coord != nil {
		p := e.coord.Progress()
		prog = &p
	}
	return Status{
		State:       e.state,
		ProjectRoot: e.projectRoot,
		OperationID: e.operationID,
		Progress:    prog,
	}
}

// GetServerStatus reports file counts from the in-memory file index, never
// from retired transient structures (spec.md §4.8).
func (e *Engine) GetServerStatus() (ServerStatus, error) {
	e.mu.RLock()
	st, db, state := e.store, e.buildDB, e.state
	e.mu.RUnlock()

	if st == nil {
		return ServerStatus{State: state}, nil
	}

	allMeta, err := st.AllFileMetadata()
	if err != nil {
		return ServerStatus{}, err
	}
	symbolCount := 0
	for _, fm := range allMeta {
		symbolCount += fm.SymbolCount
	}

	projectFiles := 0
	if db != nil {
		projectFiles = len(db.Files())
	}

	var cacheSize int64
	if fi, err := os.Stat(st.Path()); err == nil {
		cacheSize = fi.Size()
	}

	return ServerStatus{
		ParsedFiles:    len(allMeta),
		ProjectFiles:   projectFiles,
		SymbolCount:    symbolCount,
		CacheSizeBytes: cacheSize,
		State:          state,
	}, nil
}

// Query returns the query Engine for the active project, or ok=false if no
// project is set yet.
func (e *Engine) Query() (*query.Engine, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.queryEng, e.queryEng != nil
}

// MaintenanceReport is the result of IntegrityCheck/Vacuum/Analyze run
// against the active project's store (spec.md §4.2: vacuum, analyze,
// integrity_check).
type MaintenanceReport struct {
	IntegrityFindings []string
	Vacuumed          bool
	Analyzed          bool
}

// RunMaintenance executes SQLite maintenance against the active project's
// store. Only valid from Ready, mirroring RefreshProject's state guard —
// maintenance must not run concurrently with an in-flight index/refresh.
func (e *Engine) RunMaintenance(integrityCheck, vacuum, analyze bool) (MaintenanceReport, error) {
	e.mu.RLock()
	st, state := e.store, e.state
	e.mu.RUnlock()

	if st == nil {
		return MaintenanceReport{}, errors.NewConfigErrorKind(errors.KindProjectNotSet,
			"no project is set", "", "call set_project_directory first", nil)
	}
	if state != StateReady {
		return MaintenanceReport{}, errors.NewConfigErrorKind(errors.KindProjectNotSet,
			"project is not ready for maintenance", fmt.Sprintf("current state is %q", state),
			"wait for indexing/refresh to finish", nil)
	}

	var report MaintenanceReport
	if integrityCheck {
		findings, err := st.IntegrityCheck()
		if err != nil {
			return report, err
		}
		report.IntegrityFindings = findings
	}
	if vacuum {
		if err := st.Vacuum(); err != nil {
			return report, err
		}
		report.Vacuumed = true
	}
	if analyze {
		if err := st.Analyze(); err != nil {
			return report, err
		}
		report.Analyzed = true
	}
	return report, nil
}

// StartMaintenanceTicker launches a background goroutine that runs a light
// Analyze pass every interval while the Engine is Ready, stopping when ctx
// is cancelled. It skips silently when the Engine is not Ready, rather than
// contending with an in-flight index/refresh (spec.md §4.2: maintenance is
// a background concern, never user-blocking).
func (e *Engine) StartMaintenanceTicker(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := e.RunMaintenance(false, false, true); err != nil {
					e.mu.RLock()
					logger := e.cfg.Logger
					e.mu.RUnlock()
					logger.Debug("engine.maintenance.tick_skipped", "err", err)
				}
			}
		}
	}()
}

// Close releases the active project's store connection and persists header
// tracker state.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.store == nil {
		return nil
	}
	_ = e.persistHeaderTracker()
	if e.buildDB != nil {
		e.buildDB.Close()
	}
	err := e.store.Close()
	e.store = nil
	e.state = StateIdle
	return err
}
