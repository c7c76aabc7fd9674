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

package coordinator

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"

	cietest "github.com/kraklabs/cie/internal/testing"
)

// Run itself spawns real cie-worker OS processes over stdin/stdout, which
// makes it an integration surface exercised by the coordinator/engine
// wiring rather than a pure unit; the pieces tested here are the ones that
// do not require a live worker pool.

func TestProgressCompletionPercentage(t *testing.T) {
	assert.Equal(t, float64(100), Progress{TotalFiles: 0}.CompletionPercentage())
	assert.Equal(t, float64(50), Progress{TotalFiles: 10, IndexedFiles: 5}.CompletionPercentage())
	assert.Equal(t, float64(100), Progress{TotalFiles: 10, IndexedFiles: 10}.CompletionPercentage())
}

func TestNewDefaultsPoolSizeToNumCPU(t *testing.T) {
	st := cietest.SetupTestStore(t)
	c := New(Config{}, nil, st, nil)
	assert.Equal(t, runtime.NumCPU(), c.cfg.PoolSize)
}

func TestNewPreservesExplicitPoolSize(t *testing.T) {
	st := cietest.SetupTestStore(t)
	c := New(Config{PoolSize: 3}, nil, st, nil)
	assert.Equal(t, 3, c.cfg.PoolSize)
}

func TestCoordinatorProgressSnapshotBeforeRun(t *testing.T) {
	st := cietest.SetupTestStore(t)
	c := New(Config{PoolSize: 1}, nil, st, nil)
	p := c.Progress()
	assert.Zero(t, p.IndexedFiles)
	assert.Zero(t, p.TotalFiles)
}
