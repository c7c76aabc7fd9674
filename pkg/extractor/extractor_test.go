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

package extractor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Extract itself drives a real libclang parse, which makes it an integration
// surface; isProjectFile and hashFile are pure path/disk helpers and are
// covered directly here. The Extractor is built as a struct literal rather
// than via New to avoid allocating a libclang index in a unit test.

func TestIsProjectFileUnderRoot(t *testing.T) {
	e := &Extractor{projectRoot: "/home/dev/widget"}
	assert.True(t, e.isProjectFile("/home/dev/widget/src/widget.cpp"))
	assert.True(t, e.isProjectFile("/home/dev/widget/widget.h"))
}

func TestIsProjectFileOutsideRoot(t *testing.T) {
	e := &Extractor{projectRoot: "/home/dev/widget"}
	assert.False(t, e.isProjectFile("/usr/include/c++/11/vector"))
	assert.False(t, e.isProjectFile("/home/dev/other/widget.h"))
}

func TestHashFileReadsContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widget.cpp")
	require.NoError(t, os.WriteFile(path, []byte("class Widget {};"), 0o644))

	hash, err := hashFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	again, err := hashFile(path)
	require.NoError(t, err)
	assert.Equal(t, hash, again, "hashing is deterministic for unchanged content")
}

func TestHashFileMissing(t *testing.T) {
	_, err := hashFile(filepath.Join(t.TempDir(), "gone.cpp"))
	assert.Error(t, err)
}
