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
	"fmt"
)

// CurrentSchemaVersion is the compiled-in schema version. Bump it whenever a
// migration is appended to migrations below.
const CurrentSchemaVersion = 1

// migration is one forward-only schema step, applied inside a transaction.
type migration struct {
	version int
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS schema_meta (
				version    INTEGER NOT NULL,
				applied_at INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS engine_meta (
				key   TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS symbols (
				usr                   TEXT PRIMARY KEY,
				name                  TEXT NOT NULL,
				qualified_name        TEXT NOT NULL,
				namespace             TEXT NOT NULL DEFAULT '',
				kind                  TEXT NOT NULL,
				file                  TEXT NOT NULL,
				line                  INTEGER NOT NULL,
				column                INTEGER NOT NULL,
				signature             TEXT NOT NULL DEFAULT '',
				is_project            INTEGER NOT NULL DEFAULT 0,
				access                TEXT NOT NULL DEFAULT 'public',
				parent_class          TEXT NOT NULL DEFAULT '',
				base_classes_json     TEXT NOT NULL DEFAULT '[]',
				brief                 TEXT NOT NULL DEFAULT '',
				doc_comment           TEXT NOT NULL DEFAULT '',
				is_template           INTEGER NOT NULL DEFAULT 0,
				template_kind         TEXT NOT NULL DEFAULT '',
				template_params_json  TEXT NOT NULL DEFAULT '[]',
				primary_template_usr  TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name)`,
			`CREATE INDEX IF NOT EXISTS idx_symbols_qualified_name ON symbols(qualified_name)`,
			`CREATE INDEX IF NOT EXISTS idx_symbols_kind ON symbols(kind)`,
			`CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file)`,
			`CREATE INDEX IF NOT EXISTS idx_symbols_parent_class ON symbols(parent_class)`,
			`CREATE INDEX IF NOT EXISTS idx_symbols_is_template ON symbols(is_template)`,
			`CREATE INDEX IF NOT EXISTS idx_symbols_primary_template_usr ON symbols(primary_template_usr)`,
			`CREATE INDEX IF NOT EXISTS idx_symbols_composite ON symbols(name, kind, is_project)`,

			`CREATE VIRTUAL TABLE IF NOT EXISTS symbols_fts USING fts5(
				usr UNINDEXED,
				name,
				qualified_name,
				content='symbols',
				content_rowid='rowid'
			)`,
			`CREATE TRIGGER IF NOT EXISTS symbols_fts_ai AFTER INSERT ON symbols BEGIN
				INSERT INTO symbols_fts(rowid, usr, name, qualified_name)
				VALUES (new.rowid, new.usr, new.name, new.qualified_name);
			END`,
			`CREATE TRIGGER IF NOT EXISTS symbols_fts_ad AFTER DELETE ON symbols BEGIN
				INSERT INTO symbols_fts(symbols_fts, rowid, usr, name, qualified_name)
				VALUES ('delete', old.rowid, old.usr, old.name, old.qualified_name);
			END`,
			`CREATE TRIGGER IF NOT EXISTS symbols_fts_au AFTER UPDATE ON symbols BEGIN
				INSERT INTO symbols_fts(symbols_fts, rowid, usr, name, qualified_name)
				VALUES ('delete', old.rowid, old.usr, old.name, old.qualified_name);
				INSERT INTO symbols_fts(rowid, usr, name, qualified_name)
				VALUES (new.rowid, new.usr, new.name, new.qualified_name);
			END`,

			`CREATE TABLE IF NOT EXISTS call_sites (
				caller_usr    TEXT NOT NULL,
				callee_usr    TEXT NOT NULL DEFAULT '',
				callee_name   TEXT NOT NULL DEFAULT '',
				file          TEXT NOT NULL,
				line          INTEGER NOT NULL,
				column        INTEGER NOT NULL,
				in_method_of  TEXT NOT NULL DEFAULT '',
				PRIMARY KEY (caller_usr, callee_usr, callee_name, file, line, column)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_call_sites_caller ON call_sites(caller_usr)`,
			`CREATE INDEX IF NOT EXISTS idx_call_sites_callee ON call_sites(callee_usr)`,
			`CREATE INDEX IF NOT EXISTS idx_call_sites_callee_name ON call_sites(callee_name)`,
			`CREATE INDEX IF NOT EXISTS idx_call_sites_file ON call_sites(file)`,

			`CREATE TABLE IF NOT EXISTS file_metadata (
				path              TEXT PRIMARY KEY,
				content_hash      TEXT NOT NULL,
				compile_args_hash TEXT NOT NULL,
				indexed_at        INTEGER NOT NULL,
				symbol_count      INTEGER NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS header_ownership (
				header_path                 TEXT PRIMARY KEY,
				content_hash                 TEXT NOT NULL,
				build_database_version_hash  TEXT NOT NULL,
				processed_at                 INTEGER NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS header_dependencies (
				source_file  TEXT NOT NULL,
				header_path  TEXT NOT NULL,
				PRIMARY KEY (source_file, header_path)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_header_deps_header ON header_dependencies(header_path)`,

			`CREATE TABLE IF NOT EXISTS parse_errors (
				file              TEXT NOT NULL,
				error_kind        TEXT NOT NULL,
				message           TEXT NOT NULL,
				stack_trace       TEXT NOT NULL DEFAULT '',
				content_hash      TEXT NOT NULL DEFAULT '',
				compile_args_hash TEXT NOT NULL DEFAULT '',
				retry_count       INTEGER NOT NULL DEFAULT 0,
				timestamp         INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_parse_errors_file ON parse_errors(file)`,
		},
	},
}

// migrate applies every migration whose version is greater than the stored
// version, each inside its own transaction, recording version+timestamp on
// success. It returns ErrSchemaTooNew if the stored version exceeds
// CurrentSchemaVersion.
func migrate(db *sql.DB, nowUnix func() int64) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_meta (
		version INTEGER NOT NULL, applied_at INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("store: create schema_meta: %w", err)
	}

	stored, err := storedSchemaVersion(db)
	if err != nil {
		return err
	}
	if stored > CurrentSchemaVersion {
		return ErrSchemaTooNew
	}

	for _, m := range migrations {
		if m.version <= stored {
			continue
		}
		if err := applyMigration(db, m, nowUnix()); err != nil {
			return fmt.Errorf("store: migration %d: %w", m.version, err)
		}
	}
	return nil
}

func storedSchemaVersion(db *sql.DB) (int, error) {
	row := db.QueryRow(`SELECT version FROM schema_meta ORDER BY version DESC LIMIT 1`)
	var v int
	if err := row.Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("store: read schema version: %w", err)
	}
	return v, nil
}

func applyMigration(db *sql.DB, m migration, now int64) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range m.stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO schema_meta(version, applied_at) VALUES (?, ?)`, m.version, now); err != nil {
		return err
	}
	return tx.Commit()
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}
