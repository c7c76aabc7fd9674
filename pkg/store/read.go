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
	"regexp"

	"github.com/kraklabs/cie/pkg/model"
)

const symbolColumns = `usr, name, qualified_name, namespace, kind, file, line, column,
	signature, is_project, access, parent_class, base_classes_json,
	brief, doc_comment, is_template, template_kind, template_params_json,
	primary_template_usr`

func scanSymbol(row interface{ Scan(...any) error }) (model.Symbol, error) {
	var sym model.Symbol
	var isProject, isTemplate int
	var baseClasses, templateParams string
	var kind, access, templateKind string

	err := row.Scan(
		&sym.USR, &sym.Name, &sym.QualifiedName, &sym.Namespace, &kind, &sym.File, &sym.Line, &sym.Column,
		&sym.Signature, &isProject, &access, &sym.ParentClass, &baseClasses,
		&sym.Brief, &sym.DocComment, &isTemplate, &templateKind, &templateParams,
		&sym.PrimaryTemplateUSR,
	)
	if err != nil {
		return model.Symbol{}, err
	}

	sym.Kind = model.Kind(kind)
	sym.Access = model.Access(access)
	sym.TemplateKind = model.TemplateKind(templateKind)
	sym.IsProject = isProject != 0
	sym.IsTemplate = isTemplate != 0

	if baseClasses != "" {
		if err := json.Unmarshal([]byte(baseClasses), &sym.BaseClasses); err != nil {
			return model.Symbol{}, err
		}
	}
	if templateParams != "" {
		if err := json.Unmarshal([]byte(templateParams), &sym.TemplateParameters); err != nil {
			return model.Symbol{}, err
		}
	}
	return sym, nil
}

func (s *Store) scanSymbolRows(rows *sql.Rows) ([]model.Symbol, error) {
	defer rows.Close()
	var out []model.Symbol
	for rows.Next() {
		sym, err := scanSymbol(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// GetByUSR returns the symbol with the given usr, or ok=false if absent.
func (s *Store) GetByUSR(usr string) (model.Symbol, bool, error) {
	row := s.db.QueryRow(`SELECT `+symbolColumns+` FROM symbols WHERE usr = ?`, usr)
	sym, err := scanSymbol(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Symbol{}, false, nil
		}
		return model.Symbol{}, false, err
	}
	return sym, true, nil
}

// FindInFile returns every symbol whose file equals path.
func (s *Store) FindInFile(path string) ([]model.Symbol, error) {
	rows, err := s.db.Query(`SELECT `+symbolColumns+` FROM symbols WHERE file = ?`, path)
	if err != nil {
		return nil, err
	}
	return s.scanSymbolRows(rows)
}

// FindByKind returns every symbol with the given kind.
func (s *Store) FindByKind(kind model.Kind) ([]model.Symbol, error) {
	rows, err := s.db.Query(`SELECT `+symbolColumns+` FROM symbols WHERE kind = ?`, string(kind))
	if err != nil {
		return nil, err
	}
	return s.scanSymbolRows(rows)
}

// FindByQualifiedName returns every symbol whose qualified_name equals name
// exactly (used by absolute-mode pattern matching in the Query Engine).
func (s *Store) FindByQualifiedName(name string) ([]model.Symbol, error) {
	rows, err := s.db.Query(`SELECT `+symbolColumns+` FROM symbols WHERE qualified_name = ?`, name)
	if err != nil {
		return nil, err
	}
	return s.scanSymbolRows(rows)
}

// AllSymbols returns the full symbol table. The Query Engine uses this for
// qualified-suffix and regex pattern modes, which cannot be pushed into SQL
// without a per-row language-side comparison.
func (s *Store) AllSymbols() ([]model.Symbol, error) {
	rows, err := s.db.Query(`SELECT ` + symbolColumns + ` FROM symbols`)
	if err != nil {
		return nil, err
	}
	return s.scanSymbolRows(rows)
}

// SearchFTS matches pattern (an FTS5 query string) against both name and
// qualified_name via the symbols_fts virtual table.
func (s *Store) SearchFTS(pattern string) ([]model.Symbol, error) {
	rows, err := s.db.Query(`
		SELECT `+qualifyColumns("s")+`
		FROM symbols_fts
		JOIN symbols s ON s.rowid = symbols_fts.rowid
		WHERE symbols_fts MATCH ?
		ORDER BY rank
	`, pattern)
	if err != nil {
		return nil, err
	}
	return s.scanSymbolRows(rows)
}

// SearchRegex performs a full scan of the symbols table, applying re as a
// fullmatch against each candidate's name, in the language side — spec.md
// §4.2 explicitly calls this a "full scan with language-side regex
// fullmatch", not a pushed-down SQL operation.
func (s *Store) SearchRegex(re *regexp.Regexp) ([]model.Symbol, error) {
	all, err := s.AllSymbols()
	if err != nil {
		return nil, err
	}
	var out []model.Symbol
	for _, sym := range all {
		if re.MatchString(sym.Name) {
			out = append(out, sym)
		}
	}
	return out, nil
}

// CallSitesByCaller returns every call site whose caller_usr matches.
func (s *Store) CallSitesByCaller(usr string) ([]model.CallSite, error) {
	return s.queryCallSites(`SELECT caller_usr, callee_usr, callee_name, file, line, column, in_method_of
		FROM call_sites WHERE caller_usr = ?`, usr)
}

// CallSitesByCallee returns every call site whose callee_usr matches.
func (s *Store) CallSitesByCallee(usr string) ([]model.CallSite, error) {
	return s.queryCallSites(`SELECT caller_usr, callee_usr, callee_name, file, line, column, in_method_of
		FROM call_sites WHERE callee_usr = ?`, usr)
}

// CallSitesByCalleeName returns every call site whose callee_name matches,
// used for unresolved callees.
func (s *Store) CallSitesByCalleeName(name string) ([]model.CallSite, error) {
	return s.queryCallSites(`SELECT caller_usr, callee_usr, callee_name, file, line, column, in_method_of
		FROM call_sites WHERE callee_name = ?`, name)
}

// AllCallSites returns the full call_sites table, used by the Query
// Engine's BFS/DFS graph walks to build an in-memory adjacency view.
func (s *Store) AllCallSites() ([]model.CallSite, error) {
	return s.queryCallSites(`SELECT caller_usr, callee_usr, callee_name, file, line, column, in_method_of FROM call_sites`)
}

func (s *Store) queryCallSites(query string, args ...any) ([]model.CallSite, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CallSite
	for rows.Next() {
		var c model.CallSite
		if err := rows.Scan(&c.CallerUSR, &c.CalleeUSR, &c.CalleeName, &c.File, &c.Line, &c.Column, &c.InMethodOf); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func qualifyColumns(alias string) string {
	cols := []string{
		"usr", "name", "qualified_name", "namespace", "kind", "file", "line", "column",
		"signature", "is_project", "access", "parent_class", "base_classes_json",
		"brief", "doc_comment", "is_template", "template_kind", "template_params_json",
		"primary_template_usr",
	}
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += alias + "." + c
	}
	return out
}
