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
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	cieengine "github.com/kraklabs/cie/internal/engine"
	"github.com/kraklabs/cie/internal/ui"
)

// runWatch executes the 'watch' CLI command: it indexes the repository once,
// then watches the tree for filesystem events and triggers a debounced
// incremental refresh_project each time C/C++ sources, headers or the build
// database change, until interrupted.
//
// Flags:
//   - --debounce: Quiet period after the last event before refreshing (default: 500ms)
func runWatch(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	debounce := fs.Duration("debounce", 500*time.Millisecond, "Quiet period after the last change before refreshing")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cie watch [options]

Watches the current repository and incrementally refreshes the index
whenever tracked source files, headers, or compile_commands.json change.
Runs until interrupted (Ctrl-C).

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	ui.InitColors(globals.NoColor)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot get current directory: %v\n", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if globals.Verbose > 0 {
		logLevel = slog.LevelDebug
	}
	if globals.Quiet {
		logLevel = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	eng := cieengine.New(cieengine.Config{
		WorkerPath: cfg.Indexing.WorkerPath,
		PoolSize:   cfg.Indexing.PoolSize,
		Logger:     logger,
	})
	defer eng.Close()

	if _, err := eng.SetProjectDirectory(cwd); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	eng.WaitForIndexing(0)
	logger.Info("watch.initial_index.done")

	maintCtx, stopMaint := context.WithCancel(context.Background())
	defer stopMaint()
	eng.StartMaintenanceTicker(maintCtx, 30*time.Minute)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot create filesystem watcher: %v\n", err)
		os.Exit(1)
	}
	defer watcher.Close()

	if err := addWatchDirs(watcher, cwd); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ui.Infof("Watching %s for changes (debounce %s). Press Ctrl-C to stop.", cwd, *debounce)

	var timer *time.Timer
	timerCh := func() <-chan time.Time {
		if timer == nil {
			return nil
		}
		return timer.C
	}

	for {
		select {
		case <-sigCh:
			fmt.Println()
			ui.Info("Stopping watch.")
			return
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("watch.fsnotify.error", "err", err)
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create) != 0 {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					_ = watcher.Add(ev.Name)
				}
			}
			if !isRelevantWatchEvent(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(*debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(*debounce)
			}
		case <-timerCh():
			timer = nil
			logger.Info("watch.refresh.triggered")
			if _, err := eng.RefreshProject(true); err != nil {
				logger.Warn("watch.refresh.failed", "err", err)
				continue
			}
			eng.WaitForIndexing(0)
			status, err := eng.GetServerStatus()
			if err == nil {
				ui.Successf("Refreshed: %d files, %d symbols", status.ParsedFiles, status.SymbolCount)
			}
		}
	}
}

// addWatchDirs recursively registers every non-hidden, non-build directory
// under root with the watcher. fsnotify watches are not recursive on their
// own, so new subdirectories are added lazily as Create events arrive.
func addWatchDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		name := filepath.Base(path)
		if name != "." && strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		switch name {
		case "build", "cmake-build-debug", "cmake-build-release", "node_modules":
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

var watchedExtensions = map[string]bool{
	".c": true, ".cc": true, ".cpp": true, ".cxx": true,
	".h": true, ".hh": true, ".hpp": true, ".hxx": true,
}

// isRelevantWatchEvent filters fsnotify events down to writes/creates/
// removes/renames of C/C++ sources, headers, or the build database itself.
func isRelevantWatchEvent(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	base := filepath.Base(ev.Name)
	if base == "compile_commands.json" {
		return true
	}
	return watchedExtensions[strings.ToLower(filepath.Ext(ev.Name))]
}
