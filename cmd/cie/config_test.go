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
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("widget")
	if cfg.ProjectID != "widget" {
		t.Errorf("ProjectID = %q, want %q", cfg.ProjectID, "widget")
	}
	if cfg.Indexing.PoolSize != 4 {
		t.Errorf("PoolSize = %d, want 4", cfg.Indexing.PoolSize)
	}
	if cfg.Indexing.WorkerPath == "" {
		t.Error("WorkerPath should not be empty")
	}
}

func TestConfigDirAndPath(t *testing.T) {
	root := "/home/dev/widget"
	if got, want := ConfigDir(root), filepath.Join(root, ".cie"); got != want {
		t.Errorf("ConfigDir() = %q, want %q", got, want)
	}
	if got, want := ConfigPath(root), filepath.Join(root, ".cie", "project.yaml"); got != want {
		t.Errorf("ConfigPath() = %q, want %q", got, want)
	}
}

func TestResolveConfigPathExplicit(t *testing.T) {
	got, err := resolveConfigPath("/custom/project.yaml")
	if err != nil {
		t.Fatalf("resolveConfigPath() error = %v", err)
	}
	if got != "/custom/project.yaml" {
		t.Errorf("resolveConfigPath() = %q, want explicit path unchanged", got)
	}
}

func TestResolveConfigPathDefaultsUnderCwd(t *testing.T) {
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	got, err := resolveConfigPath("")
	if err != nil {
		t.Fatalf("resolveConfigPath() error = %v", err)
	}
	want := ConfigPath(cwd)
	if got != want {
		t.Errorf("resolveConfigPath(\"\") = %q, want %q", got, want)
	}
}

func TestSaveAndLoadConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.yaml")

	cfg := &Config{
		ProjectID: "widget",
		Indexing: IndexingConfig{
			Exclude:    []string{"build/", "third_party/"},
			PoolSize:   8,
			WorkerPath: "/usr/local/bin/cie-worker",
		},
	}
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if got.ProjectID != cfg.ProjectID {
		t.Errorf("ProjectID = %q, want %q", got.ProjectID, cfg.ProjectID)
	}
	if got.Indexing.PoolSize != cfg.Indexing.PoolSize {
		t.Errorf("PoolSize = %d, want %d", got.Indexing.PoolSize, cfg.Indexing.PoolSize)
	}
	if len(got.Indexing.Exclude) != 2 {
		t.Errorf("Exclude = %v, want 2 entries", got.Indexing.Exclude)
	}
}

func TestLoadConfigFillsDefaultsWhenOmitted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.yaml")
	if err := os.WriteFile(path, []byte("project_id: widget\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Indexing.PoolSize != 4 {
		t.Errorf("PoolSize default = %d, want 4", cfg.Indexing.PoolSize)
	}
	if cfg.Indexing.WorkerPath == "" {
		t.Error("WorkerPath default should not be empty")
	}
}

func TestLoadConfigRejectsNegativePoolSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.yaml")
	if err := os.WriteFile(path, []byte("project_id: widget\nindexing:\n  pool_size: -3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Indexing.PoolSize != 4 {
		t.Errorf("PoolSize should fall back to default for non-positive values, got %d", cfg.Indexing.PoolSize)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "gone.yaml"))
	if err == nil {
		t.Error("LoadConfig() should error on a missing file")
	}
}
