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
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
)

func TestIsRelevantWatchEvent(t *testing.T) {
	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"cpp write", fsnotify.Event{Name: "widget.cpp", Op: fsnotify.Write}, true},
		{"header create", fsnotify.Event{Name: "widget.h", Op: fsnotify.Create}, true},
		{"uppercase extension", fsnotify.Event{Name: "Widget.CPP", Op: fsnotify.Write}, true},
		{"compile commands write", fsnotify.Event{Name: "compile_commands.json", Op: fsnotify.Write}, true},
		{"unrelated extension", fsnotify.Event{Name: "README.md", Op: fsnotify.Write}, false},
		{"chmod-only op ignored", fsnotify.Event{Name: "widget.cpp", Op: fsnotify.Chmod}, false},
		{"remove is relevant", fsnotify.Event{Name: "widget.cpp", Op: fsnotify.Remove}, true},
		{"rename is relevant", fsnotify.Event{Name: "widget.h", Op: fsnotify.Rename}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRelevantWatchEvent(tt.ev); got != tt.want {
				t.Errorf("isRelevantWatchEvent(%+v) = %v, want %v", tt.ev, got, tt.want)
			}
		})
	}
}

func TestAddWatchDirsSkipsHiddenAndBuildDirs(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{
		"src",
		".git",
		"build",
		"cmake-build-debug",
		"node_modules",
		"src/nested",
	} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		t.Fatalf("fsnotify.NewWatcher() error = %v", err)
	}
	defer watcher.Close()

	if err := addWatchDirs(watcher, root); err != nil {
		t.Fatalf("addWatchDirs() error = %v", err)
	}

	watched := make(map[string]bool)
	for _, p := range watcher.WatchList() {
		watched[p] = true
	}

	if !watched[root] {
		t.Error("root directory should be watched")
	}
	if !watched[filepath.Join(root, "src")] {
		t.Error("src directory should be watched")
	}
	if !watched[filepath.Join(root, "src", "nested")] {
		t.Error("nested non-hidden directory should be watched")
	}
	for _, skipped := range []string{".git", "build", "cmake-build-debug", "node_modules"} {
		if watched[filepath.Join(root, skipped)] {
			t.Errorf("%s should not be watched", skipped)
		}
	}
}
