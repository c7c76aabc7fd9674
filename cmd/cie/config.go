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

	"gopkg.in/yaml.v3"
)

// GlobalFlags carries the flags every subcommand accepts uniformly
// (--json, --quiet, --verbose, --no-color), threaded through from main.
type GlobalFlags struct {
	JSON    bool
	Quiet   bool
	NoColor bool
	Verbose int
}

// IndexingConfig holds the indexing-related knobs read from project.yaml.
type IndexingConfig struct {
	Exclude    []string `yaml:"exclude"`
	PoolSize   int      `yaml:"pool_size"`
	WorkerPath string   `yaml:"worker_path"`
}

// Config is the on-disk shape of .cie/project.yaml: the project identity and
// the indexing knobs that feed internal/engine.Config and the Build Database
// resolution. It replaces the teacher's embedding/LLM-server configuration
// with the fields the C++ engine actually needs (spec.md §6.1/§6.2).
type Config struct {
	ProjectID string         `yaml:"project_id"`
	Indexing  IndexingConfig `yaml:"indexing"`
}

// DefaultConfig returns a Config with the engine's defaults: a four-file
// worker pool, the sibling cie-worker binary next to the running cie
// executable, and no extra excludes beyond the build database's own entries.
func DefaultConfig(projectID string) *Config {
	return &Config{
		ProjectID: projectID,
		Indexing: IndexingConfig{
			PoolSize:   4,
			WorkerPath: defaultWorkerPath(),
		},
	}
}

// defaultWorkerPath looks for a cie-worker binary next to the running
// executable, falling back to expecting one on PATH.
func defaultWorkerPath() string {
	exe, err := os.Executable()
	if err != nil {
		return "cie-worker"
	}
	candidate := filepath.Join(filepath.Dir(exe), "cie-worker")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return "cie-worker"
}

// ConfigDir returns the project-local .cie directory under root.
func ConfigDir(root string) string {
	return filepath.Join(root, ".cie")
}

// ConfigPath returns the default project.yaml path under root.
func ConfigPath(root string) string {
	return filepath.Join(ConfigDir(root), "project.yaml")
}

// resolveConfigPath returns explicit if non-empty, otherwise the default
// project.yaml path under the current directory.
func resolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return ConfigPath(cwd), nil
}

// LoadConfig reads and parses project.yaml. An empty configPath resolves to
// ./.cie/project.yaml relative to the current directory.
func LoadConfig(configPath string) (*Config, error) {
	path, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: path built from cwd/explicit flag
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.Indexing.PoolSize <= 0 {
		cfg.Indexing.PoolSize = 4
	}
	if cfg.Indexing.WorkerPath == "" {
		cfg.Indexing.WorkerPath = defaultWorkerPath()
	}
	return cfg, nil
}

// SaveConfig writes cfg as YAML to path.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644) //nolint:gosec // G306: project.yaml is not secret
}
