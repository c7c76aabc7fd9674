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

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A freshly constructed Engine never had SetProjectDirectory called on it, so
// every operation that requires an active store must guard on State rather
// than dereference a nil *store.Store. Exercising SetProjectDirectory itself
// requires a real compile_commands.json resolved through libclang's
// CompilationDatabase API, so that path is left to the coordinator/refresh
// integration surface; these tests cover the idle-state guard clauses.

func TestNewEngineStartsIdle(t *testing.T) {
	e := New(Config{})
	status := e.GetIndexingStatus()
	assert.Equal(t, StateIdle, status.State)
	assert.Nil(t, status.Progress)
}

func TestRefreshProjectRejectsWhenNotReady(t *testing.T) {
	e := New(Config{})
	_, err := e.RefreshProject(true)
	assert.Error(t, err)
}

func TestRunMaintenanceRejectsWithNoProject(t *testing.T) {
	e := New(Config{})
	_, err := e.RunMaintenance(true, false, false)
	assert.Error(t, err)
}

func TestQueryReturnsNotOkWithNoProject(t *testing.T) {
	e := New(Config{})
	_, ok := e.Query()
	assert.False(t, ok)
}

func TestGetServerStatusWithNoProject(t *testing.T) {
	e := New(Config{})
	status, err := e.GetServerStatus()
	require.NoError(t, err)
	assert.Equal(t, StateIdle, status.State)
	assert.Zero(t, status.ParsedFiles)
}

func TestWaitForIndexingReturnsImmediatelyWhenIdle(t *testing.T) {
	e := New(Config{})
	state := e.WaitForIndexing(50 * time.Millisecond)
	assert.Equal(t, StateIdle, state)
}

func TestCloseWithNoProjectIsNoop(t *testing.T) {
	e := New(Config{})
	assert.NoError(t, e.Close())
}

func TestStartMaintenanceTickerStopsOnContextCancel(t *testing.T) {
	e := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	e.StartMaintenanceTicker(ctx, 10*time.Millisecond)
	// The ticker skips silently while idle (no store); cancelling promptly
	// must not deadlock or panic even mid-tick.
	time.Sleep(25 * time.Millisecond)
	cancel()
	time.Sleep(25 * time.Millisecond)
}
