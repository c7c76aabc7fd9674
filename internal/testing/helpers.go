// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package testing

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/kraklabs/cie/pkg/model"
	"github.com/kraklabs/cie/pkg/store"
)

// SetupTestStore creates a fresh on-disk SQLite-backed Store for testing.
// The store is automatically closed when the test finishes.
//
// Example:
//
//	func TestMyFeature(t *testing.T) {
//	    st := testing.SetupTestStore(t)
//	    testing.InsertTestSymbol(t, st, testing.TestClass("widget::Widget", "widget.h", 10))
//	}
func SetupTestStore(t *testing.T) *store.Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "symbols.db")
	logger := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := store.Open(dbPath, logger)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}

// TestClass builds a minimal model.Symbol of kind class, suitable for
// seeding store/query engine tests (spec.md §3.1 USR/QualifiedName
// invariants: USR is arbitrary but QualifiedName must end with Name).
func TestClass(qualifiedName, file string, line int) model.Symbol {
	namespace, name := splitQualifiedName(qualifiedName)
	return model.Symbol{
		USR:           "c:@" + qualifiedName,
		Name:          name,
		QualifiedName: qualifiedName,
		Namespace:     namespace,
		Kind:          model.KindClass,
		File:          file,
		Line:          line,
		IsProject:     true,
	}
}

// TestFunction builds a minimal model.Symbol of kind function.
func TestFunction(qualifiedName, signature, file string, line int) model.Symbol {
	namespace, name := splitQualifiedName(qualifiedName)
	return model.Symbol{
		USR:           "c:@F@" + qualifiedName + "#" + signature,
		Name:          name,
		QualifiedName: qualifiedName,
		Namespace:     namespace,
		Kind:          model.KindFunction,
		File:          file,
		Line:          line,
		Signature:     signature,
		IsProject:     true,
	}
}

// splitQualifiedName divides a "a::b::Name" string into its namespace
// ("a::b") and leaf name, satisfying model.Symbol.Validate's
// Namespace+"::"+Name == QualifiedName invariant.
func splitQualifiedName(qualifiedName string) (namespace, name string) {
	idx := lastIndexOf(qualifiedName, "::")
	if idx < 0 {
		return "", qualifiedName
	}
	return qualifiedName[:idx], qualifiedName[idx+2:]
}

func lastIndexOf(s, sep string) int {
	last := -1
	for i := 0; i+len(sep) <= len(s); i++ {
		if s[i:i+len(sep)] == sep {
			last = i
		}
	}
	return last
}

// InsertTestSymbol seeds a single symbol via the same batch-insert path the
// coordinator uses in production (pkg/store/write.go InsertSymbolsBatch),
// so tests exercise the real write path rather than a parallel fixture
// loader.
func InsertTestSymbol(t *testing.T, st *store.Store, sym model.Symbol) {
	t.Helper()
	if err := st.InsertSymbolsBatch([]model.Symbol{sym}); err != nil {
		t.Fatalf("failed to insert test symbol %s: %v", sym.QualifiedName, err)
	}
}

// InsertTestSymbols seeds multiple symbols in one batch.
func InsertTestSymbols(t *testing.T, st *store.Store, syms []model.Symbol) {
	t.Helper()
	if err := st.InsertSymbolsBatch(syms); err != nil {
		t.Fatalf("failed to insert test symbols: %v", err)
	}
}

// InsertTestCallSite seeds a single call site.
func InsertTestCallSite(t *testing.T, st *store.Store, cs model.CallSite) {
	t.Helper()
	if err := st.SaveCallSitesBatch([]model.CallSite{cs}); err != nil {
		t.Fatalf("failed to insert test call site %s->%s: %v", cs.CallerUSR, cs.CalleeName, err)
	}
}

// InsertTestFileMetadata seeds a file_metadata row, as the coordinator does
// once a file finishes parsing.
func InsertTestFileMetadata(t *testing.T, st *store.Store, fm model.FileMetadata) {
	t.Helper()
	if err := st.UpsertFileMetadata(fm); err != nil {
		t.Fatalf("failed to insert test file metadata for %s: %v", fm.Path, err)
	}
}
