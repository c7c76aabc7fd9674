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

package main

import (
	"os"
	"testing"
	"time"
)

func newTestQueue(t *testing.T) *IndexQueue {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	q, err := NewIndexQueue("widget")
	if err != nil {
		t.Fatalf("NewIndexQueue() error = %v", err)
	}
	return q
}

func TestIndexQueueLockLifecycle(t *testing.T) {
	q := newTestQueue(t)

	ok, err := q.TryAcquireLock()
	if err != nil {
		t.Fatalf("TryAcquireLock() error = %v", err)
	}
	if !ok {
		t.Fatal("TryAcquireLock() should succeed on a fresh lock file")
	}

	info, err := q.GetLockInfo()
	if err != nil {
		t.Fatalf("GetLockInfo() error = %v", err)
	}
	if info == nil || info.PID != os.Getpid() {
		t.Fatalf("GetLockInfo() = %+v, want PID %d", info, os.Getpid())
	}

	q.ReleaseLock()

	// A second IndexQueue instance (simulating another process's handle)
	// can now acquire it.
	q2 := &IndexQueue{projectID: q.projectID, baseDir: q.baseDir, lockPath: q.lockPath, queuePath: q.queuePath}
	ok, err = q2.TryAcquireLock()
	if err != nil {
		t.Fatalf("TryAcquireLock() after release error = %v", err)
	}
	if !ok {
		t.Fatal("TryAcquireLock() should succeed once the prior holder released it")
	}
	q2.ReleaseLock()
}

func TestIndexQueueGetLockInfoNoLockFile(t *testing.T) {
	q := newTestQueue(t)
	info, err := q.GetLockInfo()
	if err != nil {
		t.Fatalf("GetLockInfo() error = %v", err)
	}
	if info != nil {
		t.Errorf("GetLockInfo() = %+v, want nil when no lock file exists", info)
	}
}

func TestIndexQueueIsLockStaleForDeadPID(t *testing.T) {
	q := newTestQueue(t)
	ok, err := q.TryAcquireLock()
	if err != nil || !ok {
		t.Fatalf("TryAcquireLock() = %v, %v", ok, err)
	}
	defer q.ReleaseLock()

	// Overwrite the lock file to claim a PID that (almost certainly) does
	// not exist, to exercise the stale-lock path.
	if err := os.WriteFile(q.lockPath, []byte("999999 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if !q.IsLockStale() {
		t.Error("IsLockStale() should report true for a PID that no longer exists")
	}
}

func TestIndexQueueAddDrainGetQueuedCommits(t *testing.T) {
	q := newTestQueue(t)

	for _, hash := range []string{"abc123", "def456", "  ", "ghi789"} {
		if err := q.AddToQueue(hash); err != nil {
			t.Fatalf("AddToQueue(%q) error = %v", hash, err)
		}
	}

	got, err := q.GetQueuedCommits()
	if err != nil {
		t.Fatalf("GetQueuedCommits() error = %v", err)
	}
	want := []string{"abc123", "def456", "ghi789"}
	if len(got) != len(want) {
		t.Fatalf("GetQueuedCommits() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("GetQueuedCommits()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	drained, err := q.DrainQueue()
	if err != nil {
		t.Fatalf("DrainQueue() error = %v", err)
	}
	if len(drained) != len(want) {
		t.Fatalf("DrainQueue() = %v, want %v", drained, want)
	}

	after, err := q.GetQueuedCommits()
	if err != nil {
		t.Fatalf("GetQueuedCommits() after drain error = %v", err)
	}
	if len(after) != 0 {
		t.Errorf("GetQueuedCommits() after drain = %v, want empty", after)
	}
}

func TestIndexQueueGetStatusCapsQueuedHashesAtFive(t *testing.T) {
	q := newTestQueue(t)
	for i := 0; i < 8; i++ {
		if err := q.AddToQueue("commit" + string(rune('a'+i))); err != nil {
			t.Fatal(err)
		}
	}

	status, err := q.GetStatus()
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if status.QueuedCount != 8 {
		t.Errorf("QueuedCount = %d, want 8", status.QueuedCount)
	}
	if len(status.QueuedHashes) != 5 {
		t.Errorf("QueuedHashes length = %d, want 5 (capped)", len(status.QueuedHashes))
	}
	if status.LockHeld {
		t.Error("LockHeld should be false with no lock acquired")
	}
}

func TestSplitLinesAndTrimSpace(t *testing.T) {
	lines := splitLines("a\nb\n\nc")
	want := []string{"a", "b", "", "c"}
	if len(lines) != len(want) {
		t.Fatalf("splitLines() = %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("splitLines()[%d] = %q, want %q", i, lines[i], want[i])
		}
	}

	if got := trimSpace("  \t hello \n"); got != "hello" {
		t.Errorf("trimSpace() = %q, want %q", got, "hello")
	}
	if got := trimSpace("   "); got != "" {
		t.Errorf("trimSpace() = %q, want empty", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 5*time.Minute, "2h 5m"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
