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

package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kraklabs/cie/pkg/model"
)

// InsertSymbolsBatch atomically upserts symbols by usr, retrying on lock
// contention per the store's busy-retry policy.
func (s *Store) InsertSymbolsBatch(symbols []model.Symbol) error {
	if len(symbols) == 0 {
		return nil
	}
	return s.withRetry(func() error {
		return s.insertSymbolsBatchOnce(symbols)
	})
}

func (s *Store) insertSymbolsBatchOnce(symbols []model.Symbol) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO symbols (
			usr, name, qualified_name, namespace, kind, file, line, column,
			signature, is_project, access, parent_class, base_classes_json,
			brief, doc_comment, is_template, template_kind, template_params_json,
			primary_template_usr
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(usr) DO UPDATE SET
			name = excluded.name,
			qualified_name = excluded.qualified_name,
			namespace = excluded.namespace,
			kind = excluded.kind,
			file = excluded.file,
			line = excluded.line,
			column = excluded.column,
			signature = excluded.signature,
			is_project = excluded.is_project,
			access = excluded.access,
			parent_class = excluded.parent_class,
			base_classes_json = excluded.base_classes_json,
			brief = excluded.brief,
			doc_comment = excluded.doc_comment,
			is_template = excluded.is_template,
			template_kind = excluded.template_kind,
			template_params_json = excluded.template_params_json,
			primary_template_usr = excluded.primary_template_usr
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	var violation error
	for _, sym := range symbols {
		if err := sym.Validate(); err != nil {
			if violation == nil {
				violation = &ConstraintViolationError{Err: err}
			}
			continue
		}
		baseClasses, err := json.Marshal(sym.BaseClasses)
		if err != nil {
			return err
		}
		templateParams, err := json.Marshal(sym.TemplateParameters)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(
			sym.USR, sym.Name, sym.QualifiedName, sym.Namespace, string(sym.Kind),
			sym.File, sym.Line, sym.Column, sym.Signature, boolToInt(sym.IsProject),
			string(sym.Access), sym.ParentClass, string(baseClasses),
			sym.Brief, sym.DocComment, boolToInt(sym.IsTemplate), string(sym.TemplateKind),
			string(templateParams), sym.PrimaryTemplateUSR,
		); err != nil {
			return fmt.Errorf("insert symbol %s: %w", sym.USR, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return violation
}

// DeleteSymbolsForFile removes all symbols and call sites whose file equals
// path, as the first step of re-indexing that file (spec.md §3.2).
func (s *Store) DeleteSymbolsForFile(path string) error {
	return s.withRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`DELETE FROM symbols WHERE file = ?`, path); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM call_sites WHERE file = ?`, path); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// SaveCallSitesBatch atomically upserts call sites by
// (caller_usr, callee_usr|callee_name, file, line, column).
func (s *Store) SaveCallSitesBatch(sites []model.CallSite) error {
	if len(sites) == 0 {
		return nil
	}
	return s.withRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.Prepare(`
			INSERT INTO call_sites (caller_usr, callee_usr, callee_name, file, line, column, in_method_of)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(caller_usr, callee_usr, callee_name, file, line, column) DO UPDATE SET
				in_method_of = excluded.in_method_of
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, c := range sites {
			if _, err := stmt.Exec(c.CallerUSR, c.CalleeUSR, c.CalleeName, c.File, c.Line, c.Column, c.InMethodOf); err != nil {
				return fmt.Errorf("insert call site %s->%s: %w", c.CallerUSR, c.CalleeUSR, err)
			}
		}
		return tx.Commit()
	})
}

// UpsertFileMetadata creates or updates a FileMetadata row.
func (s *Store) UpsertFileMetadata(fm model.FileMetadata) error {
	return s.withRetry(func() error {
		_, err := s.db.Exec(`
			INSERT INTO file_metadata (path, content_hash, compile_args_hash, indexed_at, symbol_count)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET
				content_hash = excluded.content_hash,
				compile_args_hash = excluded.compile_args_hash,
				indexed_at = excluded.indexed_at,
				symbol_count = excluded.symbol_count
		`, fm.Path, fm.ContentHash, fm.CompileArgsHash, fm.IndexedAt, fm.SymbolCount)
		return err
	})
}

// DeleteFileMetadata removes a FileMetadata row, used when a source is
// observed Deleted.
func (s *Store) DeleteFileMetadata(path string) error {
	return s.withRetry(func() error {
		_, err := s.db.Exec(`DELETE FROM file_metadata WHERE path = ?`, path)
		return err
	})
}

// GetFileMetadata returns the stored metadata for path, or ok=false if none.
func (s *Store) GetFileMetadata(path string) (fm model.FileMetadata, ok bool, err error) {
	row := s.db.QueryRow(`SELECT path, content_hash, compile_args_hash, indexed_at, symbol_count
		FROM file_metadata WHERE path = ?`, path)
	if err := row.Scan(&fm.Path, &fm.ContentHash, &fm.CompileArgsHash, &fm.IndexedAt, &fm.SymbolCount); err != nil {
		if err == sql.ErrNoRows {
			return model.FileMetadata{}, false, nil
		}
		return model.FileMetadata{}, false, err
	}
	return fm, true, nil
}

// AllFileMetadata returns every FileMetadata row, used to seed the in-memory
// file-hash map on engine startup.
func (s *Store) AllFileMetadata() ([]model.FileMetadata, error) {
	rows, err := s.db.Query(`SELECT path, content_hash, compile_args_hash, indexed_at, symbol_count FROM file_metadata`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FileMetadata
	for rows.Next() {
		var fm model.FileMetadata
		if err := rows.Scan(&fm.Path, &fm.ContentHash, &fm.CompileArgsHash, &fm.IndexedAt, &fm.SymbolCount); err != nil {
			return nil, err
		}
		out = append(out, fm)
	}
	return out, rows.Err()
}

// ReplaceHeaderDependencies replaces all header-dependency edges for
// sourceFile wholesale, per spec.md §3.2.
func (s *Store) ReplaceHeaderDependencies(sourceFile string, headers []string) error {
	return s.withRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`DELETE FROM header_dependencies WHERE source_file = ?`, sourceFile); err != nil {
			return err
		}
		stmt, err := tx.Prepare(`INSERT INTO header_dependencies (source_file, header_path) VALUES (?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, h := range headers {
			if _, err := stmt.Exec(sourceFile, h); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// DeleteHeaderDependenciesForSource removes sourceFile's outgoing edges
// without touching any header's own rows (spec.md §4.6: "never mark a
// header as deleted merely because a source that included it was deleted").
func (s *Store) DeleteHeaderDependenciesForSource(sourceFile string) error {
	return s.withRetry(func() error {
		_, err := s.db.Exec(`DELETE FROM header_dependencies WHERE source_file = ?`, sourceFile)
		return err
	})
}

// DependentsOf returns every source file with a dependency edge to
// headerPath (the header's direct dependents; callers close the transitive
// set themselves).
func (s *Store) DependentsOf(headerPath string) ([]string, error) {
	rows, err := s.db.Query(`SELECT source_file FROM header_dependencies WHERE header_path = ?`, headerPath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpsertHeaderOwnership records the worker that first extracted a header
// under the current build-database version.
func (s *Store) UpsertHeaderOwnership(ho model.HeaderOwnership) error {
	return s.withRetry(func() error {
		_, err := s.db.Exec(`
			INSERT INTO header_ownership (header_path, content_hash, build_database_version_hash, processed_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(header_path) DO UPDATE SET
				content_hash = excluded.content_hash,
				build_database_version_hash = excluded.build_database_version_hash,
				processed_at = excluded.processed_at
		`, ho.HeaderPath, ho.ContentHash, ho.BuildDatabaseVersion, ho.ProcessedAt)
		return err
	})
}

// ClearHeaderOwnership deletes every header_ownership row, invoked when the
// build-database version hash changes (spec.md §3.2, §4.6 step 3).
func (s *Store) ClearHeaderOwnership() error {
	return s.withRetry(func() error {
		_, err := s.db.Exec(`DELETE FROM header_ownership`)
		return err
	})
}

// AllHeaderOwnership returns every recorded header_ownership row, used by
// the refresh engine to detect which headers changed content since they
// were last claimed (spec.md §4.6 step 2).
func (s *Store) AllHeaderOwnership() ([]model.HeaderOwnership, error) {
	rows, err := s.db.Query(`SELECT header_path, content_hash, build_database_version_hash, processed_at FROM header_ownership`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.HeaderOwnership
	for rows.Next() {
		var ho model.HeaderOwnership
		if err := rows.Scan(&ho.HeaderPath, &ho.ContentHash, &ho.BuildDatabaseVersion, &ho.ProcessedAt); err != nil {
			return nil, err
		}
		out = append(out, ho)
	}
	return out, rows.Err()
}

// InsertParseError appends a ParseError row.
func (s *Store) InsertParseError(pe model.ParseError) error {
	return s.withRetry(func() error {
		_, err := s.db.Exec(`
			INSERT INTO parse_errors (file, error_kind, message, stack_trace, content_hash, compile_args_hash, retry_count, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, pe.File, string(pe.ErrorKind), pe.Message, pe.StackTrace, pe.ContentHash, pe.CompileArgsHash, pe.RetryCount, pe.Timestamp)
		return err
	})
}

// ParseErrorsForFile returns every recorded parse attempt for path, most
// recent last, used to compute retry_count and fallback eligibility.
func (s *Store) ParseErrorsForFile(path string) ([]model.ParseError, error) {
	rows, err := s.db.Query(`
		SELECT file, error_kind, message, stack_trace, content_hash, compile_args_hash, retry_count, timestamp
		FROM parse_errors WHERE file = ? ORDER BY timestamp ASC
	`, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ParseError
	for rows.Next() {
		var pe model.ParseError
		var kind string
		if err := rows.Scan(&pe.File, &kind, &pe.Message, &pe.StackTrace, &pe.ContentHash, &pe.CompileArgsHash, &pe.RetryCount, &pe.Timestamp); err != nil {
			return nil, err
		}
		pe.ErrorKind = model.ParseErrorKind(kind)
		out = append(out, pe)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
