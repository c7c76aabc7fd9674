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
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	cieengine "github.com/kraklabs/cie/internal/engine"
	"github.com/kraklabs/cie/internal/output"
	"github.com/kraklabs/cie/internal/ui"
)

// StatusResult is the get_server_status response shape for CLI output.
type StatusResult struct {
	ProjectID      string    `json:"project_id"`
	State          string    `json:"state"`
	ParsedFiles    int       `json:"parsed_files"`
	ProjectFiles   int       `json:"project_files"`
	SymbolCount    int       `json:"symbol_count"`
	CacheSizeBytes int64     `json:"cache_size_bytes"`
	Error          string    `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// runStatus executes the 'status' CLI command, reporting get_server_status
// for the current repository (spec.md §4.8/§6.3).
//
// Flags:
//   - --json: Output results as JSON (default: false)
func runStatus(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	jsonOutput := fs.Bool("json", globals.JSON, "Output as JSON")
	ui.InitColors(globals.NoColor)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cie status [options]

Shows local project status.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		failStatus(&StatusResult{Error: err.Error(), Timestamp: time.Now()}, *jsonOutput)
	}

	cwd, err := os.Getwd()
	if err != nil {
		failStatus(&StatusResult{ProjectID: cfg.ProjectID, Error: err.Error(), Timestamp: time.Now()}, *jsonOutput)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	eng := cieengine.New(cieengine.Config{
		WorkerPath: cfg.Indexing.WorkerPath,
		PoolSize:   cfg.Indexing.PoolSize,
		Logger:     logger,
	})
	defer eng.Close()

	if _, err := eng.SetProjectDirectory(cwd); err != nil {
		result := &StatusResult{
			ProjectID: cfg.ProjectID,
			State:     string(cieengine.StateIdle),
			Error:     fmt.Sprintf("Project not indexed yet: %v. Run 'cie index' first.", err),
			Timestamp: time.Now(),
		}
		if *jsonOutput {
			outputStatusJSON(result)
		} else {
			fmt.Printf("Project '%s' not indexed yet.\n", cfg.ProjectID)
			fmt.Println("Run 'cie index' to index the repository.")
		}
		os.Exit(0)
	}

	srvStatus, err := eng.GetServerStatus()
	if err != nil {
		failStatus(&StatusResult{ProjectID: cfg.ProjectID, Error: err.Error(), Timestamp: time.Now()}, *jsonOutput)
	}

	result := &StatusResult{
		ProjectID:      cfg.ProjectID,
		State:          string(srvStatus.State),
		ParsedFiles:    srvStatus.ParsedFiles,
		ProjectFiles:   srvStatus.ProjectFiles,
		SymbolCount:    srvStatus.SymbolCount,
		CacheSizeBytes: srvStatus.CacheSizeBytes,
		Timestamp:      time.Now(),
	}

	if *jsonOutput {
		outputStatusJSON(result)
	} else {
		printLocalStatus(result)
	}
}

func failStatus(result *StatusResult, jsonOutput bool) {
	if jsonOutput {
		outputStatusJSON(result)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", result.Error)
	}
	os.Exit(1)
}

func outputStatusJSON(result *StatusResult) {
	_ = output.JSON(result)
}

// printLocalStatus prints the status result as formatted text to stdout.
func printLocalStatus(result *StatusResult) {
	ui.Header("CIE Project Status")
	fmt.Printf("%s %s\n", ui.Label("Project ID:"), result.ProjectID)
	fmt.Printf("%s %s\n", ui.Label("State:"), result.State)
	fmt.Println()

	ui.SubHeader("Files:")
	fmt.Printf("  Parsed:        %s / %d\n", ui.CountText(result.ParsedFiles), result.ProjectFiles)
	fmt.Printf("  Symbols:       %s\n", ui.CountText(result.SymbolCount))
	fmt.Printf("  Cache Size:    %s bytes\n", ui.CountText(int(result.CacheSizeBytes)))

	if result.Error != "" {
		ui.Warningf("%s", result.Error)
	}
}
