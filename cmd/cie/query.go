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
	"text/tabwriter"

	cieengine "github.com/kraklabs/cie/internal/engine"
	"github.com/kraklabs/cie/internal/output"
	"github.com/kraklabs/cie/pkg/query"
)

// runQuery executes the 'query' CLI command: a thin dispatcher over the
// Query Engine operations of spec.md §6.3, one subcommand per operation.
func runQuery(args []string, configPath string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cie query [options] <operation> <args...>

Operations:
  search-classes <pattern>
  search-functions <pattern> [class]
  search-symbols <pattern>
  class-info <class>
  function-info <function>
  derived-classes <class>
  base-classes <class>
  hierarchy <class> [up|down|both]
  callers <function>
  callees <function>
  call-sites <function>
  call-path <from> <to>
  files-containing <symbol>
  find-in-file <path>

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(1)
	}

	op := fs.Arg(0)
	opArgs := fs.Args()[1:]

	cfg, err := LoadConfig(configPath)
	if err != nil {
		queryFail(err, *jsonOutput)
	}

	cwd, err := os.Getwd()
	if err != nil {
		queryFail(err, *jsonOutput)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	eng := cieengine.New(cieengine.Config{
		WorkerPath: cfg.Indexing.WorkerPath,
		PoolSize:   cfg.Indexing.PoolSize,
		Logger:     logger,
	})
	defer eng.Close()

	if _, err := eng.SetProjectDirectory(cwd); err != nil {
		queryFail(fmt.Errorf("project not indexed: %w. Run 'cie index' first", err), *jsonOutput)
	}
	eng.WaitForIndexing(0)

	qe, ok := eng.Query()
	if !ok {
		queryFail(fmt.Errorf("no active project"), *jsonOutput)
	}

	result, err := dispatchQuery(qe, op, opArgs)
	if err != nil {
		queryFail(err, *jsonOutput)
	}

	if *jsonOutput {
		_ = output.JSON(result)
		return
	}
	printQueryResult(op, result)
}

func dispatchQuery(qe *query.Engine, op string, args []string) (any, error) {
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}
	switch op {
	case "search-classes":
		return qe.SearchClasses(arg(0), false, "")
	case "search-functions":
		return qe.SearchFunctions(arg(0), false, arg(1), "")
	case "search-symbols":
		return qe.SearchSymbols(arg(0), nil, false)
	case "class-info":
		info, ok, err := qe.GetClassInfo(arg(0))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("class not found: %s", arg(0))
		}
		return info, nil
	case "function-info":
		return qe.GetFunctionInfo(arg(0))
	case "derived-classes":
		return qe.GetDerivedClasses(arg(0))
	case "base-classes":
		return qe.GetBaseClasses(arg(0))
	case "hierarchy":
		dir := query.HierarchyUp
		switch arg(1) {
		case "down":
			dir = query.HierarchyDown
		case "both":
			dir = query.HierarchyBoth
		}
		return qe.GetClassHierarchy(arg(0), dir, 32)
	case "callers":
		return qe.FindCallers(arg(0))
	case "callees":
		return qe.FindCallees(arg(0))
	case "call-sites":
		return qe.GetCallSites(arg(0))
	case "call-path":
		return qe.GetCallPath(arg(0), arg(1), 64)
	case "files-containing":
		return qe.GetFilesContainingSymbol(arg(0))
	case "find-in-file":
		return qe.FindInFile(arg(0))
	default:
		return nil, fmt.Errorf("unknown query operation: %s", op)
	}
}

func queryFail(err error, jsonOutput bool) {
	if jsonOutput {
		_ = output.JSONError(err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

// printQueryResult renders a result in a simple tab-separated table when it
// is a symbol-like slice, falling back to one value per line otherwise.
func printQueryResult(op string, result any) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	switch v := result.(type) {
	case []string:
		if len(v) == 0 {
			fmt.Println("No results")
			return
		}
		for _, s := range v {
			fmt.Fprintln(w, s)
		}
	default:
		fmt.Printf("%+v\n", v)
	}
}
