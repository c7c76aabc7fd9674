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

// Package scanner implements the File-Change Scanner (spec.md §4.5): given
// the current build database, the stored FileMetadata table and an
// in-memory content-hash cache, it classifies every top-level source path as
// Added, Modified, Deleted or Unchanged.
package scanner

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/kraklabs/cie/pkg/builddb"
	"github.com/kraklabs/cie/pkg/store"
)

// sourceExtensions are top-level compilation units; headers are excluded
// from the scan and tracked only via HeaderDependency edges (spec.md §4.5
// step 1).
var sourceExtensions = map[string]bool{
	".c": true, ".cc": true, ".cpp": true, ".cxx": true, ".m": true, ".mm": true,
}

// Changeset is the scanner's output.
type Changeset struct {
	Added     []string
	Modified  []string
	Deleted   []string
	Unchanged []string
}

// HashCache is the in-memory file-hash map the engine keeps warm across
// refreshes (spec.md §4.6's "cache-freshly-loaded case"). It maps absolute
// source path to last-known content hash.
type HashCache map[string]string

// Scan classifies every source entry in db against the store's FileMetadata
// table and cache. The compile-args hash is computed from each
// build-database entry's Args so a per-file compiler-flag change is detected
// independently of content (spec.md §4.5 step 4).
func Scan(db *builddb.DB, st *store.Store, cache HashCache) (Changeset, error) {
	var cs Changeset

	stored, err := st.AllFileMetadata()
	if err != nil {
		return Changeset{}, err
	}
	storedByPath := make(map[string]struct{ hash, argsHash string }, len(stored))
	for _, fm := range stored {
		storedByPath[fm.Path] = struct{ hash, argsHash string }{fm.ContentHash, fm.CompileArgsHash}
	}

	seen := make(map[string]bool, len(db.Files()))
	for _, path := range db.Files() {
		if !isSourceFile(path) {
			continue
		}
		seen[path] = true

		entry, ok := db.Lookup(path)
		if !ok {
			continue
		}
		argsHash := hashArgs(entry.Args)

		contentHash, hashErr := hashFile(path)
		if hashErr != nil {
			// Unreadable now but still present in the build database: treat
			// as Deleted so a subsequent restore re-adds it cleanly.
			cs.Deleted = append(cs.Deleted, path)
			continue
		}

		prior, hadRow := storedByPath[path]
		switch {
		case hadRow && prior.argsHash != "" && argsHash != prior.argsHash:
			cs.Modified = append(cs.Modified, path)
		case hadRow && prior.hash == contentHash:
			cs.Unchanged = append(cs.Unchanged, path)
		case hadRow:
			cs.Modified = append(cs.Modified, path)
		case cachedHash, inCache := cache[path]; inCache && cachedHash == contentHash:
			cs.Unchanged = append(cs.Unchanged, path)
		default:
			cs.Added = append(cs.Added, path)
		}

		cache[path] = contentHash
	}

	for _, fm := range stored {
		if !seen[fm.Path] {
			cs.Deleted = append(cs.Deleted, fm.Path)
			delete(cache, fm.Path)
		}
	}

	return cs, nil
}

// ImpactedByHeaders extends an impact set (normally Added ∪ Modified) with
// every source transitively depending on a header whose content changed,
// via the reverse HeaderDependency closure (spec.md §4.6 step 2).
func ImpactedByHeaders(st *store.Store, changedHeaders []string) ([]string, error) {
	visited := make(map[string]bool)
	var impacted []string

	queue := append([]string(nil), changedHeaders...)
	headerVisited := make(map[string]bool)
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if headerVisited[h] {
			continue
		}
		headerVisited[h] = true

		dependents, err := st.DependentsOf(h)
		if err != nil {
			return nil, err
		}
		for _, dep := range dependents {
			if !visited[dep] {
				visited[dep] = true
				impacted = append(impacted, dep)
				queue = append(queue, dep)
			}
		}
	}
	return impacted, nil
}

func isSourceFile(path string) bool {
	return sourceExtensions[strings.ToLower(filepath.Ext(path))]
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func hashArgs(args []string) string {
	h := sha256.New()
	for _, a := range args {
		h.Write([]byte(a))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
