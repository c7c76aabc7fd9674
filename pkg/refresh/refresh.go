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

// Package refresh implements the Incremental Refresh Engine (spec.md §4.6):
// it turns a scanner.Changeset into deletions, an impact set dispatched to
// the Parallel Indexing Coordinator, and the header-tracker/header-ownership
// resets a build-database version change requires.
package refresh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kraklabs/cie/pkg/builddb"
	"github.com/kraklabs/cie/pkg/coordinator"
	"github.com/kraklabs/cie/pkg/headertracker"
	"github.com/kraklabs/cie/pkg/model"
	"github.com/kraklabs/cie/pkg/scanner"
	"github.com/kraklabs/cie/pkg/store"
)

// Engine ties together the scanner, the store, the header tracker and the
// coordinator for one project.
type Engine struct {
	coord   *coordinator.Coordinator
	tracker *headertracker.Tracker
	store   *store.Store
	logger  *slog.Logger
}

// New builds a refresh Engine around an already-constructed Coordinator,
// Tracker and Store; these are the same instances internal/engine keeps
// alive for the project's entire Ready lifetime.
func New(coord *coordinator.Coordinator, tracker *headertracker.Tracker, st *store.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{coord: coord, tracker: tracker, store: st, logger: logger}
}

// Result summarizes one refresh pass.
type Result struct {
	Added, Modified, Deleted, Unchanged int
	HeadersInvalidated                  int
	coordinator.Summary
}

// Run executes one refresh cycle against db, using and updating cache. If
// buildDBVersionChanged is true, the Header Tracker and stored header
// ownership are cleared first (spec.md §4.6 step 3) so every header is
// re-claimable under the new build configuration.
func (e *Engine) Run(ctx context.Context, db *builddb.DB, cache scanner.HashCache, buildDBVersion string, buildDBVersionChanged bool) (Result, error) {
	if buildDBVersionChanged {
		e.tracker.ClearAll()
		if err := e.store.ClearHeaderOwnership(); err != nil {
			return Result{}, fmt.Errorf("refresh: clear header ownership: %w", err)
		}
	}

	cs, err := scanner.Scan(db, e.store, cache)
	if err != nil {
		return Result{}, fmt.Errorf("refresh: scan: %w", err)
	}

	for _, path := range cs.Deleted {
		if err := e.deleteSource(path); err != nil {
			return Result{}, fmt.Errorf("refresh: delete %s: %w", path, err)
		}
	}

	changedHeaders, err := e.changedHeaders()
	if err != nil {
		return Result{}, fmt.Errorf("refresh: detect changed headers: %w", err)
	}
	impacted, err := scanner.ImpactedByHeaders(e.store, changedHeaders)
	if err != nil {
		return Result{}, fmt.Errorf("refresh: header impact closure: %w", err)
	}

	impactSet := make(map[string]bool, len(cs.Added)+len(cs.Modified)+len(impacted))
	var tasks []coordinator.Task
	addTask := func(path string) {
		if impactSet[path] {
			return
		}
		impactSet[path] = true
		var args []string
		if entry, ok := db.Lookup(path); ok {
			args = entry.Args
		}
		tasks = append(tasks, coordinator.Task{Path: path, Args: args})
	}
	for _, p := range cs.Added {
		addTask(p)
	}
	for _, p := range cs.Modified {
		addTask(p)
	}
	for _, p := range impacted {
		addTask(p)
	}

	var summary coordinator.Summary
	if len(tasks) > 0 {
		summary, err = e.coord.Run(ctx, tasks)
		if err != nil {
			return Result{}, fmt.Errorf("refresh: coordinator run: %w", err)
		}
		now := time.Now().Unix()
		for _, t := range tasks {
			if hash, ok := cache[t.Path]; ok {
				_ = e.store.UpsertFileMetadata(model.FileMetadata{
					Path:            t.Path,
					ContentHash:     hash,
					CompileArgsHash: argsHash(t.Args),
					IndexedAt:       now,
				})
			}
		}
	}

	return Result{
		Added:              len(cs.Added),
		Modified:           len(cs.Modified),
		Deleted:            len(cs.Deleted),
		Unchanged:          len(cs.Unchanged),
		HeadersInvalidated: len(changedHeaders),
		Summary:            summary,
	}, nil
}

// deleteSource applies spec.md §4.6 step 1: drop the file's symbols, its
// FileMetadata row, and its outgoing HeaderDependency edges — but never
// touch headers it merely included.
func (e *Engine) deleteSource(path string) error {
	if err := e.store.DeleteSymbolsForFile(path); err != nil {
		return err
	}
	if err := e.store.DeleteFileMetadata(path); err != nil {
		return err
	}
	return e.store.DeleteHeaderDependenciesForSource(path)
}

// changedHeaders returns every header whose on-disk content hash no longer
// matches its recorded HeaderOwnership hash.
func (e *Engine) changedHeaders() ([]string, error) {
	owned, err := e.store.AllHeaderOwnership()
	if err != nil {
		return nil, err
	}
	var changed []string
	for _, ho := range owned {
		current, err := hashFile(ho.HeaderPath)
		if err != nil {
			// Missing header: its dependents will surface as broken
			// includes on their own next parse, not as a header change.
			continue
		}
		if current != ho.ContentHash {
			changed = append(changed, ho.HeaderPath)
		}
	}
	return changed, nil
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func argsHash(args []string) string {
	h := sha256.New()
	for _, a := range args {
		h.Write([]byte(a))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
