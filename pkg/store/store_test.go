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

package store

import (
	"log/slog"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/cie/pkg/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "symbols.db")
	st, err := Open(path, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testSymbol(usr, name, qualifiedName string) model.Symbol {
	return model.Symbol{
		USR: usr, Name: name, QualifiedName: qualifiedName,
		Kind: model.KindClass, File: "widget.h", Line: 1, IsProject: true,
	}
}

func TestOpenCreatesSchema(t *testing.T) {
	st := openTestStore(t)
	syms, err := st.AllSymbols()
	require.NoError(t, err)
	assert.Empty(t, syms)
}

func TestOpenReopenPreservesData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symbols.db")
	st, err := Open(path, slog.Default())
	require.NoError(t, err)
	require.NoError(t, st.InsertSymbolsBatch([]model.Symbol{testSymbol("c:@Widget", "Widget", "Widget")}))
	require.NoError(t, st.Close())

	reopened, err := Open(path, slog.Default())
	require.NoError(t, err)
	defer reopened.Close()

	sym, ok, err := reopened.GetByUSR("c:@Widget")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Widget", sym.Name)
}

func TestInsertSymbolsBatchUpsertsByUSR(t *testing.T) {
	st := openTestStore(t)
	sym := testSymbol("c:@Widget", "Widget", "Widget")
	require.NoError(t, st.InsertSymbolsBatch([]model.Symbol{sym}))

	sym.Line = 42
	require.NoError(t, st.InsertSymbolsBatch([]model.Symbol{sym}))

	got, ok, err := st.GetByUSR("c:@Widget")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 42, got.Line)

	all, err := st.AllSymbols()
	require.NoError(t, err)
	assert.Len(t, all, 1, "re-inserting the same usr must update, not duplicate")
}

func TestInsertSymbolsBatchRejectsInvalidSymbol(t *testing.T) {
	st := openTestStore(t)
	bad := model.Symbol{USR: "c:@Bad", Name: "Bad", QualifiedName: "NotBad"}
	err := st.InsertSymbolsBatch([]model.Symbol{bad})
	require.Error(t, err)
	var violation *ConstraintViolationError
	assert.ErrorAs(t, err, &violation)
}

func TestInsertSymbolsBatchPersistsBaseClassesAndTemplateParams(t *testing.T) {
	st := openTestStore(t)
	sym := testSymbol("c:@Derived", "Derived", "Derived")
	sym.BaseClasses = []string{"Base1", "Base2"}
	sym.IsTemplate = true
	sym.TemplateKind = model.TemplateKindClassTemplate
	sym.TemplateParameters = []model.TemplateParameter{{Name: "T", Kind: model.TemplateParamType}}
	require.NoError(t, st.InsertSymbolsBatch([]model.Symbol{sym}))

	got, ok, err := st.GetByUSR("c:@Derived")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"Base1", "Base2"}, got.BaseClasses)
	require.Len(t, got.TemplateParameters, 1)
	assert.Equal(t, "T", got.TemplateParameters[0].Name)
}

func TestDeleteSymbolsForFile(t *testing.T) {
	st := openTestStore(t)
	a := testSymbol("c:@A", "A", "A")
	a.File = "a.cpp"
	b := testSymbol("c:@B", "B", "B")
	b.File = "b.cpp"
	require.NoError(t, st.InsertSymbolsBatch([]model.Symbol{a, b}))
	require.NoError(t, st.SaveCallSitesBatch([]model.CallSite{{CallerUSR: "c:@A", CalleeName: "B", File: "a.cpp", Line: 1}}))

	require.NoError(t, st.DeleteSymbolsForFile("a.cpp"))

	_, ok, err := st.GetByUSR("c:@A")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = st.GetByUSR("c:@B")
	require.NoError(t, err)
	assert.True(t, ok, "deleting one file's symbols must not affect another file's")

	sites, err := st.CallSitesByCaller("c:@A")
	require.NoError(t, err)
	assert.Empty(t, sites)
}

func TestFindByKindAndQualifiedName(t *testing.T) {
	st := openTestStore(t)
	cls := testSymbol("c:@Widget", "Widget", "Widget")
	fn := model.Symbol{USR: "c:@F@Widget::Render#void()", Name: "Render", QualifiedName: "Widget::Render", Namespace: "Widget", Kind: model.KindMethod, File: "widget.h", Line: 2}
	require.NoError(t, st.InsertSymbolsBatch([]model.Symbol{cls, fn}))

	classes, err := st.FindByKind(model.KindClass)
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, "Widget", classes[0].Name)

	byName, err := st.FindByQualifiedName("Widget::Render")
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, model.KindMethod, byName[0].Kind)
}

func TestSearchRegex(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, st.InsertSymbolsBatch([]model.Symbol{
		testSymbol("c:@WidgetFactory", "WidgetFactory", "WidgetFactory"),
		testSymbol("c:@Gadget", "Gadget", "Gadget"),
	}))

	re := regexp.MustCompile("^Widget.*$")
	matches, err := st.SearchRegex(re)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "WidgetFactory", matches[0].Name)
}

func TestCallSitesByCallerCalleeAndName(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, st.SaveCallSitesBatch([]model.CallSite{
		{CallerUSR: "c:@A", CalleeUSR: "c:@B", CalleeName: "B", File: "a.cpp", Line: 1},
		{CallerUSR: "c:@A", CalleeUSR: "", CalleeName: "Unresolved", File: "a.cpp", Line: 2},
	}))

	byCaller, err := st.CallSitesByCaller("c:@A")
	require.NoError(t, err)
	assert.Len(t, byCaller, 2)

	byCallee, err := st.CallSitesByCallee("c:@B")
	require.NoError(t, err)
	require.Len(t, byCallee, 1)

	byName, err := st.CallSitesByCalleeName("Unresolved")
	require.NoError(t, err)
	require.Len(t, byName, 1)

	all, err := st.AllCallSites()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFileMetadataRoundTrip(t *testing.T) {
	st := openTestStore(t)
	fm := model.FileMetadata{Path: "widget.h", ContentHash: "abc", CompileArgsHash: "def", IndexedAt: 100, SymbolCount: 3}
	require.NoError(t, st.UpsertFileMetadata(fm))

	got, ok, err := st.GetFileMetadata("widget.h")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fm, got)

	fm.SymbolCount = 5
	require.NoError(t, st.UpsertFileMetadata(fm))
	got, _, err = st.GetFileMetadata("widget.h")
	require.NoError(t, err)
	assert.Equal(t, 5, got.SymbolCount)

	all, err := st.AllFileMetadata()
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, st.DeleteFileMetadata("widget.h"))
	_, ok, err = st.GetFileMetadata("widget.h")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHeaderDependencies(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, st.ReplaceHeaderDependencies("main.cpp", []string{"widget.h", "gadget.h"}))

	dependents, err := st.DependentsOf("widget.h")
	require.NoError(t, err)
	assert.Equal(t, []string{"main.cpp"}, dependents)

	require.NoError(t, st.ReplaceHeaderDependencies("main.cpp", []string{"gadget.h"}))
	dependents, err = st.DependentsOf("widget.h")
	require.NoError(t, err)
	assert.Empty(t, dependents, "replace must wholesale drop stale edges")

	require.NoError(t, st.DeleteHeaderDependenciesForSource("main.cpp"))
	dependents, err = st.DependentsOf("gadget.h")
	require.NoError(t, err)
	assert.Empty(t, dependents)
}

func TestHeaderOwnership(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, st.UpsertHeaderOwnership(model.HeaderOwnership{HeaderPath: "widget.h", ContentHash: "h1", BuildDatabaseVersion: "v1", ProcessedAt: 1}))

	all, err := st.AllHeaderOwnership()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "widget.h", all[0].HeaderPath)

	require.NoError(t, st.ClearHeaderOwnership())
	all, err = st.AllHeaderOwnership()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestParseErrors(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, st.InsertParseError(model.ParseError{
		File: "broken.cpp", ErrorKind: model.ParseErrorFatal, Message: "syntax error", RetryCount: 0, Timestamp: 1,
	}))
	require.NoError(t, st.InsertParseError(model.ParseError{
		File: "broken.cpp", ErrorKind: model.ParseErrorFatal, Message: "still broken", RetryCount: 1, Timestamp: 2,
	}))

	errs, err := st.ParseErrorsForFile("broken.cpp")
	require.NoError(t, err)
	require.Len(t, errs, 2)
	assert.Equal(t, 1, errs[1].RetryCount)
}

func TestMetaRoundTrip(t *testing.T) {
	st := openTestStore(t)
	_, ok, err := st.GetMeta("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.SetMeta("index_version", "1"))
	val, ok, err := st.GetMeta("index_version")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", val)

	require.NoError(t, st.SetMeta("index_version", "2"))
	val, _, err = st.GetMeta("index_version")
	require.NoError(t, err)
	assert.Equal(t, "2", val)
}

func TestIntegrityCheckVacuumAnalyze(t *testing.T) {
	st := openTestStore(t)
	findings, err := st.IntegrityCheck()
	require.NoError(t, err)
	assert.Empty(t, findings)

	require.NoError(t, st.Vacuum())
	require.NoError(t, st.Analyze())

	val, ok, err := st.GetMeta("last_maintenance_at")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, val)
}
