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

// Package main implements the CIE CLI for indexing C++ repositories and
// querying the Code Intelligence Engine.
//
// Usage:
//
//	cie init                      Create .cie/project.yaml configuration
//	cie index [--incremental]     Index the current repository
//	cie watch                     Watch the repository and refresh on change
//	cie status [--json]           Show project status
//	cie query <op> <args...>      Run a Query Engine operation
//	cie queue                     Show in-flight/pending indexing tasks
//	cie reset --yes               Delete the project's local cache
package main

import (
	"flag"
	"fmt"
	"os"
)

// Version information (set via ldflags during build)
var (
	version = "dev"     // Version string
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version and exit")
		configPath  = flag.String("config", "", "Path to .cie/project.yaml (default: ./.cie/project.yaml)")
		jsonOut     = flag.Bool("json", false, "Output as JSON where supported")
		quiet       = flag.Bool("quiet", false, "Suppress progress output")
		noColor     = flag.Bool("no-color", false, "Disable colored output")
		verbose     = flag.Int("verbose", 0, "Verbosity level")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `CIE - C++ Code Intelligence Engine CLI

Usage:
  cie <command> [options]

Commands:
  init          Create .cie/project.yaml configuration
  index         Index the current repository
  watch         Watch the repository and refresh incrementally on change
  status        Show project status
  query         Run a Query Engine operation (search, callers, hierarchy, ...)
  queue         Show in-flight and pending indexing tasks
  reset         Reset local project data (destructive!)
  install-hook  Install git post-commit hook for auto-indexing

Global Options:
  --config      Path to .cie/project.yaml
  --json        Output as JSON where supported
  --quiet       Suppress progress output
  --no-color    Disable colored output
  --version     Show version and exit

Examples:
  cie init
  cie index
  cie index --incremental
  cie watch
  cie status --json
  cie query search-functions 'ClassName::method'
  cie query callers NewPipeline

Data Storage:
  Data is stored locally under ~/.cie/projects/<hash of repo path>/

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("cie version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	globals := GlobalFlags{JSON: *jsonOut, Quiet: *quiet, NoColor: *noColor, Verbose: *verbose}

	switch command {
	case "init":
		runInit(cmdArgs)
	case "index":
		runIndex(cmdArgs, *configPath, globals)
	case "watch":
		runWatch(cmdArgs, *configPath, globals)
	case "status":
		runStatus(cmdArgs, *configPath, globals)
	case "query":
		runQuery(cmdArgs, *configPath)
	case "queue":
		runQueue(cmdArgs, *configPath)
	case "reset":
		runReset(cmdArgs, *configPath)
	case "install-hook":
		runInstallHook(cmdArgs, *configPath)
	case "start":
		runStart(cmdArgs, *configPath, globals)
	case "stop":
		runStop(cmdArgs, globals)
	case "completion":
		runCompletion(cmdArgs, *configPath)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
