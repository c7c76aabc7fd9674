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

package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/cie/pkg/headertracker"
	"github.com/kraklabs/cie/pkg/model"
	"github.com/kraklabs/cie/pkg/store"
)

// Task is one file dispatched to the worker pool.
type Task struct {
	Path string
	Args []string
}

// Progress is the atomic record the Engine State Machine polls (spec.md
// §4.4: "never pushed synchronously to callers").
type Progress struct {
	IndexedFiles int
	TotalFiles   int
	FailedCount  int
	StartedAt    time.Time
	Elapsed      time.Duration
	ETA          time.Duration
}

// CompletionPercentage returns indexed/total as a percentage, 100 if there
// is nothing to do.
func (p Progress) CompletionPercentage() float64 {
	if p.TotalFiles == 0 {
		return 100
	}
	return float64(p.IndexedFiles) / float64(p.TotalFiles) * 100
}

// Config configures a Coordinator run.
type Config struct {
	WorkerPath           string // path to the cie-worker executable
	PoolSize             int    // 0 => runtime.NumCPU()
	ProjectRoot          string
	BuildDatabaseVersion string
}

// Summary is returned when Run completes or is cancelled.
type Summary struct {
	ParsedFiles int
	FailedFiles int
	Cancelled   bool
}

// Coordinator owns the OS-process worker pool (spec.md §4.4 and §5: "the
// pool must use separate OS processes, not merely threads").
type Coordinator struct {
	cfg     Config
	tracker *headertracker.Tracker
	store   *store.Store
	logger  *slog.Logger

	mu       sync.Mutex
	progress Progress
}

// New constructs a Coordinator. The Tracker and Store are owned by the
// caller (normally internal/engine) and outlive any single Run.
func New(cfg Config, tracker *headertracker.Tracker, st *store.Store, logger *slog.Logger) *Coordinator {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = runtime.NumCPU()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{cfg: cfg, tracker: tracker, store: st, logger: logger}
}

// Progress returns a snapshot of the current run's progress record.
func (c *Coordinator) Progress() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.progress
	p.Elapsed = time.Since(p.StartedAt)
	return p
}

func (c *Coordinator) resetProgress(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress = Progress{TotalFiles: total, StartedAt: time.Now()}
}

func (c *Coordinator) recordResult(failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress.IndexedFiles++
	if failed {
		c.progress.FailedCount++
	}
	elapsed := time.Since(c.progress.StartedAt)
	if c.progress.IndexedFiles > 0 {
		perFile := elapsed / time.Duration(c.progress.IndexedFiles)
		remaining := c.progress.TotalFiles - c.progress.IndexedFiles
		c.progress.ETA = perFile * time.Duration(remaining)
	}
}

// Run dispatches tasks to the worker pool and writes results to the store
// as they complete. Call sites stream per-file immediately; symbols batch
// across files up to symbolBatchSize before a flush (spec.md §2). Run
// returns early, with Summary.Cancelled true, if ctx is cancelled — workers
// finish their in-flight file and stop, per the cooperative-cancellation
// contract of spec.md §4.4/§5.
func (c *Coordinator) Run(ctx context.Context, tasks []Task) (Summary, error) {
	c.resetProgress(len(tasks))

	workers := make([]*workerConn, 0, c.cfg.PoolSize)
	for i := 0; i < c.cfg.PoolSize; i++ {
		w, err := spawnWorker(i, c.cfg.WorkerPath, c.cfg.ProjectRoot, c.cfg.BuildDatabaseVersion, c.tracker, c.logger)
		if err != nil {
			for _, existing := range workers {
				existing.kill()
			}
			return Summary{}, fmt.Errorf("coordinator: spawn pool: %w", err)
		}
		workers = append(workers, w)
	}
	defer func() {
		for _, w := range workers {
			_ = w.close()
		}
	}()

	taskCh := make(chan Task)
	var writeMu sync.Mutex
	var symbolBatch []model.Symbol
	const symbolBatchSize = 500

	flush := func() error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if len(symbolBatch) == 0 {
			return nil
		}
		err := c.store.InsertSymbolsBatch(symbolBatch)
		symbolBatch = symbolBatch[:0]
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	cancelled := false
	var cancelledMu sync.Mutex

	for _, w := range workers {
		w := w
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					cancelledMu.Lock()
					cancelled = true
					cancelledMu.Unlock()
					return nil
				case task, ok := <-taskCh:
					if !ok {
						return nil
					}
					if err := c.processTask(w, task, &writeMu, &symbolBatch, symbolBatchSize); err != nil {
						c.logger.Warn("coordinator.worker.crash", "worker", w.id, "file", task.Path, "err", err)
						c.recordParseError(task, err)
						if respawned, rerr := c.respawn(w); rerr == nil {
							*w = *respawned
						} else {
							return fmt.Errorf("coordinator: respawn worker %d: %w", w.id, rerr)
						}
					}
				}
			}
		})
	}

	g.Go(func() error {
		defer close(taskCh)
		for _, t := range tasks {
			select {
			case <-gctx.Done():
				return nil
			case taskCh <- t:
			}
		}
		return nil
	})

	runErr := g.Wait()
	if flushErr := flush(); flushErr != nil && runErr == nil {
		runErr = flushErr
	}

	p := c.Progress()
	return Summary{
		ParsedFiles: p.IndexedFiles - p.FailedCount,
		FailedFiles: p.FailedCount,
		Cancelled:   cancelled,
	}, runErr
}

func (c *Coordinator) processTask(w *workerConn, task Task, writeMu *sync.Mutex, symbolBatch *[]model.Symbol, batchSize int) error {
	result, err := w.runTask(task.Path, task.Args)
	if err != nil {
		return err
	}

	if result.ParseError != nil {
		if ierr := c.store.InsertParseError(*result.ParseError); ierr != nil {
			c.logger.Warn("coordinator.parse_error.persist_failed", "file", task.Path, "err", ierr)
		}
		c.recordResult(true)
		return nil
	}

	if err := c.store.DeleteSymbolsForFile(task.Path); err != nil {
		return fmt.Errorf("delete old symbols for %s: %w", task.Path, err)
	}

	writeMu.Lock()
	*symbolBatch = append(*symbolBatch, result.Symbols...)
	shouldFlush := len(*symbolBatch) >= batchSize
	var flushBatch []model.Symbol
	if shouldFlush {
		flushBatch = append([]model.Symbol(nil), *symbolBatch...)
		*symbolBatch = (*symbolBatch)[:0]
	}
	writeMu.Unlock()

	if shouldFlush {
		if err := c.store.InsertSymbolsBatch(flushBatch); err != nil {
			return fmt.Errorf("flush symbol batch: %w", err)
		}
	}

	if err := c.store.SaveCallSitesBatch(result.CallSites); err != nil {
		return fmt.Errorf("save call sites for %s: %w", task.Path, err)
	}
	if err := c.store.ReplaceHeaderDependencies(task.Path, result.Headers); err != nil {
		return fmt.Errorf("replace header deps for %s: %w", task.Path, err)
	}

	now := time.Now().Unix()
	for header, hash := range result.ClaimedHeaders {
		ho := model.HeaderOwnership{
			HeaderPath:           header,
			ContentHash:          hash,
			BuildDatabaseVersion: c.cfg.BuildDatabaseVersion,
			ProcessedAt:          now,
		}
		if err := c.store.UpsertHeaderOwnership(ho); err != nil {
			c.logger.Warn("coordinator.header_ownership.persist_failed", "header", header, "err", err)
		}
	}

	c.recordResult(false)
	return nil
}

func (c *Coordinator) recordParseError(task Task, cause error) {
	pe := model.ParseError{
		File:      task.Path,
		ErrorKind: model.ParseErrorCrash,
		Message:   cause.Error(),
		Timestamp: time.Now().Unix(),
	}
	if existing, err := c.store.ParseErrorsForFile(task.Path); err == nil {
		pe.RetryCount = len(existing)
	}
	if err := c.store.InsertParseError(pe); err != nil {
		c.logger.Warn("coordinator.crash_record_failed", "file", task.Path, "err", err)
	}
	c.recordResult(true)
}

func (c *Coordinator) respawn(dying *workerConn) (*workerConn, error) {
	dying.kill()
	return spawnWorker(dying.id, c.cfg.WorkerPath, c.cfg.ProjectRoot, c.cfg.BuildDatabaseVersion, c.tracker, c.logger)
}
