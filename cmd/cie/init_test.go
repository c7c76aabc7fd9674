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
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseInitFlagsDefaults(t *testing.T) {
	f := parseInitFlags(nil)
	if f.force || f.nonInteractive || f.noHook || f.withHook {
		t.Errorf("parseInitFlags(nil) = %+v, want all bools false", f)
	}
	if f.projectID != "" || f.workerPath != "" || f.poolSize != 0 {
		t.Errorf("parseInitFlags(nil) = %+v, want empty strings and zero pool size", f)
	}
}

func TestParseInitFlagsOverrides(t *testing.T) {
	f := parseInitFlags([]string{"-force", "-y", "-project-id", "widget", "-pool-size", "6", "-no-hook"})
	if !f.force || !f.nonInteractive || !f.noHook {
		t.Errorf("parseInitFlags() = %+v, want force/nonInteractive/noHook all true", f)
	}
	if f.projectID != "widget" {
		t.Errorf("projectID = %q, want %q", f.projectID, "widget")
	}
	if f.poolSize != 6 {
		t.Errorf("poolSize = %d, want 6", f.poolSize)
	}
}

func TestCreateInitConfigDefaultsProjectIDToDirName(t *testing.T) {
	cfg := createInitConfig("/home/dev/widget-engine", initFlags{})
	if cfg.ProjectID != "widget-engine" {
		t.Errorf("ProjectID = %q, want %q", cfg.ProjectID, "widget-engine")
	}
	if cfg.Indexing.PoolSize != 4 {
		t.Errorf("PoolSize = %d, want default 4", cfg.Indexing.PoolSize)
	}
}

func TestCreateInitConfigHonorsExplicitFlags(t *testing.T) {
	cfg := createInitConfig("/home/dev/widget-engine", initFlags{
		projectID:  "custom-id",
		workerPath: "/opt/cie-worker",
		poolSize:   12,
	})
	if cfg.ProjectID != "custom-id" {
		t.Errorf("ProjectID = %q, want %q", cfg.ProjectID, "custom-id")
	}
	if cfg.Indexing.WorkerPath != "/opt/cie-worker" {
		t.Errorf("WorkerPath = %q, want %q", cfg.Indexing.WorkerPath, "/opt/cie-worker")
	}
	if cfg.Indexing.PoolSize != 12 {
		t.Errorf("PoolSize = %d, want 12", cfg.Indexing.PoolSize)
	}
}

func TestPromptReturnsDefaultOnEmptyInput(t *testing.T) {
	reader := bufio.NewReader(strings.NewReader("\n"))
	got := prompt(reader, "Project ID", "widget")
	if got != "widget" {
		t.Errorf("prompt() = %q, want default %q", got, "widget")
	}
}

func TestPromptReturnsTypedInput(t *testing.T) {
	reader := bufio.NewReader(strings.NewReader("  custom-value  \n"))
	got := prompt(reader, "Project ID", "widget")
	if got != "custom-value" {
		t.Errorf("prompt() = %q, want %q", got, "custom-value")
	}
}

func TestAddToGitignoreAppendsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	gitignorePath := filepath.Join(dir, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte("build/\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	addToGitignore(dir)

	content, err := os.ReadFile(gitignorePath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), ".cie/") {
		t.Errorf("gitignore content = %q, want it to contain .cie/", content)
	}
	if !strings.Contains(string(content), "build/") {
		t.Error("addToGitignore should not remove existing entries")
	}
}

func TestAddToGitignoreSkipsWhenAlreadyPresent(t *testing.T) {
	dir := t.TempDir()
	gitignorePath := filepath.Join(dir, ".gitignore")
	original := "build/\n.cie/\n"
	if err := os.WriteFile(gitignorePath, []byte(original), 0o644); err != nil {
		t.Fatal(err)
	}

	addToGitignore(dir)

	content, err := os.ReadFile(gitignorePath)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != original {
		t.Errorf("gitignore content changed to %q, want unchanged %q", content, original)
	}
}

func TestAddToGitignoreNoopWithoutExistingFile(t *testing.T) {
	dir := t.TempDir()
	addToGitignore(dir)
	if _, err := os.Stat(filepath.Join(dir, ".gitignore")); !os.IsNotExist(err) {
		t.Error("addToGitignore should not create a .gitignore file that did not already exist")
	}
}
