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
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	cieengine "github.com/kraklabs/cie/internal/engine"
)

// runReset executes the 'reset' CLI command. By default it deletes the
// current project's cache directory (symbols.db, header_tracker.json,
// parse_errors.jsonl) so the next 'cie index' starts from a clean slate
// (spec.md §6.2). With --integrity-check/--vacuum/--analyze it instead runs
// store maintenance (spec.md §4.2) in place, leaving the cache intact.
func runReset(args []string, configPath string) {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	confirm := fs.Bool("yes", false, "Confirm the reset (required)")
	integrityCheck := fs.Bool("integrity-check", false, "Run SQLite integrity_check instead of resetting")
	vacuum := fs.Bool("vacuum", false, "Run SQLite VACUUM instead of resetting")
	analyze := fs.Bool("analyze", false, "Run SQLite ANALYZE instead of resetting")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cie reset [options]

Resets the local project data, clearing all indexed data.
This is useful before a full re-index to ensure a clean slate.

WARNING: Resetting is destructive and cannot be undone!

With --integrity-check, --vacuum, or --analyze, runs maintenance against
the existing store instead of deleting it.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *integrityCheck || *vacuum || *analyze {
		runMaintenance(configPath, *integrityCheck, *vacuum, *analyze)
		return
	}

	if !*confirm {
		fmt.Fprintf(os.Stderr, "Error: you must pass --yes to confirm the reset\n")
		fmt.Fprintf(os.Stderr, "This will delete all indexed data for the project.\n")
		os.Exit(1)
	}

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

	dataDir, err := projectCacheDir(cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "No local data found for project %s\n", cfg.ProjectID)
		os.Exit(0)
	}

	fmt.Printf("Resetting project %s (deleting %s)...\n", cfg.ProjectID, dataDir)

	if err := os.RemoveAll(dataDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to delete data: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Reset complete. All local indexed data has been deleted.")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  cie index    Reindex the project")
}

// runMaintenance opens the active project's store via internal/engine and
// runs the requested combination of integrity_check/vacuum/analyze.
func runMaintenance(configPath string, integrityCheck, vacuum, analyze bool) {
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

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
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

	report, err := eng.RunMaintenance(integrityCheck, vacuum, analyze)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if integrityCheck {
		if len(report.IntegrityFindings) == 0 {
			fmt.Println("Integrity check: ok")
		} else {
			fmt.Println("Integrity check found issues:")
			for _, f := range report.IntegrityFindings {
				fmt.Printf("  - %s\n", f)
			}
			os.Exit(1)
		}
	}
	if report.Vacuumed {
		fmt.Println("Vacuum complete.")
	}
	if report.Analyzed {
		fmt.Println("Analyze complete.")
	}
}

// projectCacheDir mirrors internal/engine's cacheDir derivation so 'reset'
// can find the project's cache directory without opening the store.
func projectCacheDir(projectRoot string) (string, error) {
	absRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return "", err
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(absRoot))
	return filepath.Join(home, ".cie", "projects", hex.EncodeToString(sum[:])[:16]), nil
}
