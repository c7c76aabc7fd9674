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

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"

	cieengine "github.com/kraklabs/cie/internal/engine"
)

// runIndex executes the 'index' CLI command: it points the Engine State
// Machine at the current repository and blocks until indexing (full or
// incremental) completes, reporting a live progress bar.
//
// Flags:
//   - --incremental: Run an incremental refresh instead of a full index (default: false)
//   - --metrics-addr: HTTP address for Prometheus metrics (default: disabled)
//   - --debug: Enable debug logging (default: false)
//
// Examples:
//
//	cie index                 Full index of the current repository
//	cie index --incremental   Incremental refresh against the last index
func runIndex(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	incremental := fs.Bool("incremental", false, "Run an incremental refresh instead of a full index")
	debug := fs.Bool("debug", false, "Enable debug logging")
	metricsAddr := fs.String("metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cie index [options]

Indexes the current repository using configuration from .cie/project.yaml
and the project's compile_commands.json build database. Data is stored
locally under ~/.cie/projects/<hash of repo path>/.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: *metricsAddr, Handler: mux}
			logger.Info("metrics.http.start", "addr", *metricsAddr, "path", "/metrics")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics.http.error", "err", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("shutdown.signal", "signal", sig.String())
		cancel()
	}()

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot get current directory: %v\n", err)
		os.Exit(1)
	}

	eng := cieengine.New(cieengine.Config{
		WorkerPath: cfg.Indexing.WorkerPath,
		PoolSize:   cfg.Indexing.PoolSize,
		Logger:     logger,
	})
	defer eng.Close()

	started := time.Now()
	if *incremental {
		if _, err := eng.SetProjectDirectory(cwd); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if _, err := eng.RefreshProject(true); err != nil {
			fmt.Fprintf(os.Stderr, "Error: refresh: %v\n", err)
			os.Exit(1)
		}
	} else if _, err := eng.SetProjectDirectory(cwd); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	watchIndexingProgress(ctx, eng, globals)

	finalState := eng.WaitForIndexing(0)
	_ = finalState
	printIndexResult(eng, time.Since(started))
}

// watchIndexingProgress polls GetIndexingStatus and renders a progressbar
// until the state machine leaves Indexing/Refreshing, mirroring the
// teacher's own progressbar.v3 wiring in progress.go.
func watchIndexingProgress(ctx context.Context, eng *cieengine.Engine, globals GlobalFlags) {
	if globals.Quiet || globals.JSON {
		eng.WaitForIndexing(0)
		return
	}

	var bar *progressbar.ProgressBar
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := eng.GetIndexingStatus()
			if status.State != cieengine.StateIndexing && status.State != cieengine.StateRefreshing {
				if bar != nil {
					bar.Finish()
				}
				return
			}
			if status.Progress == nil {
				continue
			}
			if bar == nil {
				bar = progressbar.NewOptions(status.Progress.TotalFiles,
					progressbar.OptionSetDescription("indexing"),
					progressbar.OptionEnableColorCodes(!globals.NoColor),
					progressbar.OptionSetWriter(os.Stderr),
				)
			}
			bar.ChangeMax(status.Progress.TotalFiles)
			_ = bar.Set(status.Progress.IndexedFiles)
		}
	}
}

// printIndexResult prints a summary once indexing settles.
func printIndexResult(eng *cieengine.Engine, elapsed time.Duration) {
	status, err := eng.GetServerStatus()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("=== Indexing Complete ===")
	fmt.Printf("State:            %s\n", status.State)
	fmt.Printf("Files Parsed:     %d / %d\n", status.ParsedFiles, status.ProjectFiles)
	fmt.Printf("Symbols:          %d\n", status.SymbolCount)
	fmt.Printf("Cache Size:       %d bytes\n", status.CacheSizeBytes)
	fmt.Printf("Elapsed:          %s\n", elapsed.Round(time.Millisecond))
	fmt.Println()
}
