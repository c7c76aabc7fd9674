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

// Package extractor implements the Symbol Extractor (spec.md §4.3): a
// single-pass libclang cursor traversal over one translation unit that
// yields Symbol and CallSite records, the set of project headers observed,
// and coordinates first-win header extraction via the Header Tracker.
package extractor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-clang/clang-v14/clang"

	"github.com/kraklabs/cie/pkg/model"
)

// clangOptions mirrors the teacher-adjacent clang-server's default editing
// options plus TranslationUnit_KeepGoing, so a handful of recoverable
// parse errors in one header do not abort extraction of the whole unit.
var clangOptions = uint32(clang.TranslationUnit_DetailedPreprocessingRecord) |
	uint32(clang.TranslationUnit_KeepGoing)

// HeaderClaimer decides first-win header ownership (spec.md §4.9). An
// in-process caller wires *headertracker.Tracker directly; a cie-worker
// subprocess wires a protocol-backed claimer that round-trips each claim to
// the coordinator process, which owns the single shared Tracker.
type HeaderClaimer interface {
	TryClaim(headerPath, owner string) bool
	MarkCompleted(headerPath string)
}

// Extractor holds the persistent, per-worker-process resources spec.md §4.4
// mandates: one parser index, reused across every file the worker handles.
// It is never reconstructed per file — only Extract's per-file scratch state
// is cleared between calls.
type Extractor struct {
	index          clang.Index
	projectRoot    string
	buildDBVersion string
	tracker        HeaderClaimer
}

// New creates a worker-local Extractor. projectRoot determines is_project;
// buildDBVersion is compared against the Header Tracker's claims.
func New(projectRoot, buildDBVersion string, tracker HeaderClaimer) *Extractor {
	return &Extractor{
		index:          clang.NewIndex(0, 1),
		projectRoot:    projectRoot,
		buildDBVersion: buildDBVersion,
		tracker:        tracker,
	}
}

// Close disposes the libclang index. Call once per worker process, on exit.
func (e *Extractor) Close() {
	e.index.Dispose()
}

// Result is the output of extracting one translation unit.
type Result struct {
	Symbols   []model.Symbol
	CallSites []model.CallSite

	// Headers is every project header this translation unit observed, used
	// to build HeaderDependency edges regardless of claim ownership.
	Headers []string

	// ClaimedHeaders maps each header this call won first-win ownership of
	// (spec.md §4.9) to its content hash, so the coordinator can persist
	// HeaderOwnership rows once the result lands.
	ClaimedHeaders map[string]string

	ParseError *model.ParseError
}

// Extract parses path with args and walks its cursor tree once. Per-call
// scratch (the local "will-complete" header set and the USR index used for
// primary-template linkage) is allocated fresh and discarded on return; only
// the libclang index itself persists across calls.
func (e *Extractor) Extract(path string, args []string) Result {
	contentHash, err := hashFile(path)
	if err != nil {
		return Result{ParseError: &model.ParseError{
			File: path, ErrorKind: model.ParseErrorMissingHeader, Message: err.Error(),
		}}
	}

	var tu clang.TranslationUnit
	errCode := e.index.ParseTranslationUnit2(path, args, nil, clangOptions, &tu)
	if clang.ErrorCode(errCode) != clang.Error_Success {
		return Result{ParseError: &model.ParseError{
			File: path, ErrorKind: model.ParseErrorFatal,
			Message:     fmt.Sprintf("parse failed: error code %d", errCode),
			ContentHash: contentHash,
		}}
	}
	defer tu.Dispose()

	if fatal := firstFatalDiagnostic(tu); fatal != "" {
		return Result{ParseError: &model.ParseError{
			File: path, ErrorKind: model.ParseErrorFatal, Message: fatal, ContentHash: contentHash,
		}}
	}

	w := &walker{
		ext:          e,
		sourcePath:   path,
		willComplete: make(map[string]string),
		headersSeen:  make(map[string]bool),
		usrIndex:     make(map[string]model.Symbol),
	}

	cursor := tu.TranslationUnitCursor()
	cursor.Visit(w.visit)

	claimed := make(map[string]string, len(w.willComplete))
	for header, hash := range w.willComplete {
		e.tracker.MarkCompleted(header)
		claimed[header] = hash
	}

	headers := make([]string, 0, len(w.headersSeen))
	for h := range w.headersSeen {
		headers = append(headers, h)
	}

	return Result{
		Symbols:        w.symbols,
		CallSites:      w.callSites,
		Headers:        headers,
		ClaimedHeaders: claimed,
	}
}

func firstFatalDiagnostic(tu clang.TranslationUnit) string {
	n := tu.NumDiagnostics()
	for i := uint32(0); i < n; i++ {
		diag := tu.Diagnostic(i)
		if diag.Severity() == clang.Diagnostic_Fatal {
			msg := diag.Spelling()
			diag.Dispose()
			return msg
		}
		diag.Dispose()
	}
	return ""
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// isProjectFile reports whether absPath lies under the configured project
// root (spec.md §3.1 is_project).
func (e *Extractor) isProjectFile(absPath string) bool {
	rel, err := filepath.Rel(e.projectRoot, absPath)
	if err != nil {
		return false
	}
	return !strings.HasPrefix(rel, "..")
}
