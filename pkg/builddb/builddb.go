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

// Package builddb reads an external compilation database
// (compile_commands.json) via libclang's CompilationDatabase API — never by
// hand-splitting the "command" string — and exposes per-file argument
// vectors keyed by absolute path, plus a content hash that serves as the
// "build-database version" (spec.md §6.1).
package builddb

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-clang/clang-v14/clang"
)

// Entry is one compilation database record, resolved to an absolute file
// path with its directory and argument vector.
type Entry struct {
	File      string
	Directory string
	Args      []string
}

// DB is a loaded, disposed-on-Close compilation database.
type DB struct {
	dir     string
	version string
	byFile  map[string]Entry
	cdb     clang.CompilationDatabase
}

// Load opens the compile_commands.json in dir (parent directories are not
// searched; the version hash is read from dir/compile_commands.json) and
// builds the byFile index eagerly. The returned DB owns libclang resources and
// must be Close()'d.
func Load(dir string) (*DB, error) {
	errCode, cdb := clang.FromDirectory(dir)
	if errCode != clang.CompilationDatabase_NoError {
		return nil, fmt.Errorf("builddb: no compilation database found under %q", dir)
	}

	commands := cdb.AllCompileCommands()
	defer commands.Dispose()

	byFile := make(map[string]Entry, commands.Size())
	for i := uint32(0); i < commands.Size(); i++ {
		cmd := commands.Command(i)

		args := make([]string, 0, 8)
		for j := uint32(0); j < cmd.NumArgs(); j++ {
			args = append(args, cmd.Arg(j))
		}

		absFile := cmd.Filename()
		if !filepath.IsAbs(absFile) {
			absFile = filepath.Clean(filepath.Join(cmd.Directory(), absFile))
		}

		byFile[absFile] = Entry{
			File:      absFile,
			Directory: cmd.Directory(),
			Args:      args,
		}
	}

	version, err := hashCompileCommandsFile(dir)
	if err != nil {
		return nil, err
	}

	return &DB{dir: dir, version: version, byFile: byFile, cdb: cdb}, nil
}

// Close releases the underlying libclang compilation database.
func (d *DB) Close() {
	d.cdb.Dispose()
}

// Lookup returns the compile-args entry for an absolute source path.
func (d *DB) Lookup(absPath string) (Entry, bool) {
	e, ok := d.byFile[absPath]
	return e, ok
}

// Files returns every absolute source path the database knows about.
func (d *DB) Files() []string {
	files := make([]string, 0, len(d.byFile))
	for f := range d.byFile {
		files = append(files, f)
	}
	return files
}

// Version returns the build-database version: a content hash of the
// compile_commands.json file backing this DB. It changes whenever the file
// on disk changes, which is the signal spec.md §4.5/§4.9 use to decide
// whether the Header Tracker must be cleared and whether a structural
// rebuild is warranted.
func (d *DB) Version() string {
	return d.version
}

func hashCompileCommandsFile(dir string) (string, error) {
	path := filepath.Join(dir, "compile_commands.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("builddb: read %s: %w", path, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
