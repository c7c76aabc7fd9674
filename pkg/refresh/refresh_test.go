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

package refresh

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cietest "github.com/kraklabs/cie/internal/testing"
	"github.com/kraklabs/cie/pkg/headertracker"
	"github.com/kraklabs/cie/pkg/model"
)

// Run itself dispatches through a *builddb.DB, which can only be constructed
// against a real compile_commands.json via libclang; that makes Run an
// integration surface. changedHeaders and deleteSource are pure store/disk
// operations and are covered directly here, in the same package, since they
// are unexported.

func TestChangedHeadersDetectsContentDrift(t *testing.T) {
	st := cietest.SetupTestStore(t)
	e := New(nil, headertracker.New(), st, nil)

	headerPath := filepath.Join(t.TempDir(), "widget.h")
	require.NoError(t, os.WriteFile(headerPath, []byte("original"), 0o644))

	original := sha256Hex(t, "original")
	require.NoError(t, st.UpsertHeaderOwnership(model.HeaderOwnership{
		HeaderPath: headerPath, ContentHash: original, BuildDatabaseVersion: "v1", ProcessedAt: 1,
	}))

	changed, err := e.changedHeaders()
	require.NoError(t, err)
	assert.Empty(t, changed, "content has not actually changed on disk yet")

	require.NoError(t, os.WriteFile(headerPath, []byte("modified"), 0o644))
	changed, err = e.changedHeaders()
	require.NoError(t, err)
	assert.Equal(t, []string{headerPath}, changed)
}

func TestChangedHeadersSkipsMissingFiles(t *testing.T) {
	st := cietest.SetupTestStore(t)
	e := New(nil, headertracker.New(), st, nil)

	missing := filepath.Join(t.TempDir(), "gone.h")
	require.NoError(t, st.UpsertHeaderOwnership(model.HeaderOwnership{
		HeaderPath: missing, ContentHash: "whatever", BuildDatabaseVersion: "v1", ProcessedAt: 1,
	}))

	changed, err := e.changedHeaders()
	require.NoError(t, err)
	assert.Empty(t, changed, "a header that disappeared is not reported as changed")
}

func TestDeleteSourceRemovesSymbolsMetadataAndHeaderEdgesOnly(t *testing.T) {
	st := cietest.SetupTestStore(t)
	e := New(nil, headertracker.New(), st, nil)

	sym := cietest.TestClass("widget::Widget", "widget.cpp", 1)
	cietest.InsertTestSymbol(t, st, sym)
	cietest.InsertTestFileMetadata(t, st, model.FileMetadata{Path: "widget.cpp", ContentHash: "h"})
	require.NoError(t, st.ReplaceHeaderDependencies("widget.cpp", []string{"widget.h"}))
	require.NoError(t, st.UpsertHeaderOwnership(model.HeaderOwnership{HeaderPath: "widget.h", ContentHash: "hh", BuildDatabaseVersion: "v1"}))

	require.NoError(t, e.deleteSource("widget.cpp"))

	_, ok, err := st.GetByUSR(sym.USR)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = st.GetFileMetadata("widget.cpp")
	require.NoError(t, err)
	assert.False(t, ok)

	dependents, err := st.DependentsOf("widget.h")
	require.NoError(t, err)
	assert.Empty(t, dependents)

	owned, err := st.AllHeaderOwnership()
	require.NoError(t, err)
	assert.Len(t, owned, 1, "deleting a source's own rows must never touch a header's ownership record")
}

func sha256Hex(t *testing.T, s string) string {
	t.Helper()
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
