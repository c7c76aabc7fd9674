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

// Package model defines the entity types shared by every CIE package: the
// symbol and call-graph records the Symbol Extractor produces, the Persistent
// Store persists, and the Query Engine reads back.
package model

import "strings"

// Kind enumerates the C++ entity kinds a Symbol can represent.
type Kind string

const (
	KindClass                Kind = "class"
	KindStruct               Kind = "struct"
	KindFunction              Kind = "function"
	KindMethod               Kind = "method"
	KindClassTemplate         Kind = "class_template"
	KindFunctionTemplate      Kind = "function_template"
	KindPartialSpecialization Kind = "partial_specialization"
	KindFullSpecialization    Kind = "full_specialization"
	KindField                 Kind = "field"
	KindTypedef                Kind = "typedef"
	KindVariable               Kind = "variable"
	KindEnum                   Kind = "enum"
	KindEnumerator             Kind = "enumerator"
	KindNamespaceAlias         Kind = "namespace-alias"
	KindOther                  Kind = "other"
)

// TemplateKind narrows Kind for symbols with IsTemplate set.
type TemplateKind string

const (
	TemplateKindNone                  TemplateKind = ""
	TemplateKindClassTemplate         TemplateKind = "class_template"
	TemplateKindFunctionTemplate      TemplateKind = "function_template"
	TemplateKindPartialSpecialization TemplateKind = "partial_specialization"
	TemplateKindFullSpecialization    TemplateKind = "full_specialization"
)

// Access is a class member's access specifier.
type Access string

const (
	AccessPublic    Access = "public"
	AccessProtected Access = "protected"
	AccessPrivate   Access = "private"
)

// TemplateParamKind classifies a template parameter.
type TemplateParamKind string

const (
	TemplateParamType     TemplateParamKind = "type"
	TemplateParamNonType  TemplateParamKind = "non_type"
	TemplateParamTemplate TemplateParamKind = "template"
)

// TemplateParameter is one declared parameter of a template symbol.
type TemplateParameter struct {
	Name string
	Kind TemplateParamKind
	// TypeSpelling is the parser-reported type spelling, empty for template
	// template parameters and for unconstrained type parameters.
	TypeSpelling string
}

// Symbol is a single indexed C++ entity, identified by its parser-assigned
// USR. See spec.md §3.1 for the full set of invariants.
type Symbol struct {
	USR           string
	Name          string
	QualifiedName string
	Namespace     string
	Kind          Kind
	File          string
	Line          int
	Column        int
	Signature     string
	IsProject     bool
	Access        Access
	ParentClass   string
	BaseClasses   []string

	Brief      string
	DocComment string

	IsTemplate         bool
	TemplateKind       TemplateKind
	TemplateParameters []TemplateParameter
	PrimaryTemplateUSR string
}

// Validate checks the structural invariants from spec.md §3.1 and §8.
func (s *Symbol) Validate() error {
	if s.USR == "" {
		return errUSRRequired
	}
	if !strings.HasSuffix(s.QualifiedName, s.Name) {
		return errQualifiedNameSuffix
	}
	if s.Namespace != "" {
		expected := s.Namespace + "::" + s.Name
		if expected != s.QualifiedName {
			return errQualifiedNameComposition
		}
	} else if s.QualifiedName != s.Name {
		return errQualifiedNameComposition
	}
	return nil
}

// QualifiedComponents splits QualifiedName on "::" into its path components.
func (s *Symbol) QualifiedComponents() []string {
	return strings.Split(s.QualifiedName, "::")
}

// CallSite is a single directed call occurrence. See spec.md §3.1.
type CallSite struct {
	CallerUSR   string
	CalleeUSR   string // empty if unresolved
	CalleeName  string
	File        string
	Line        int
	Column      int
	InMethodOf  string // class USR, empty if caller is not a method
}

// FileMetadata is one row per indexed source file. See spec.md §3.1.
type FileMetadata struct {
	Path            string
	ContentHash     string
	CompileArgsHash string
	IndexedAt       int64 // unix seconds
	SymbolCount     int
}

// HeaderOwnership records the worker that first extracted a shared header.
type HeaderOwnership struct {
	HeaderPath             string
	ContentHash            string
	BuildDatabaseVersion   string
	ProcessedAt            int64
}

// HeaderDependency is a directed edge source_file -> header_path.
type HeaderDependency struct {
	SourceFile string
	HeaderPath string
}

// ParseErrorKind enumerates why a translation unit failed to extract.
type ParseErrorKind string

const (
	ParseErrorFatal          ParseErrorKind = "ParserDiagnosticFatal"
	ParseErrorCrash          ParseErrorKind = "ParserCrash"
	ParseErrorMissingHeader  ParseErrorKind = "ParserMissingHeader"
)

// ParseError is one row per failed parse attempt.
type ParseError struct {
	File            string
	ErrorKind       ParseErrorKind
	Message         string
	StackTrace      string
	ContentHash     string
	CompileArgsHash string
	RetryCount      int
	Timestamp       int64
}

// EngineMeta is the process-wide key/value metadata table.
type EngineMeta struct {
	SchemaVersion              int
	IndexVersion               string
	ProjectRoot                string
	BuildDatabaseVersionHash   string
	IndexIncludesDependencies  bool
	LastMaintenanceAt          int64
}

var (
	errUSRRequired              = modelError("symbol: usr is required")
	errQualifiedNameSuffix      = modelError("symbol: qualified_name must end with name")
	errQualifiedNameComposition = modelError("symbol: qualified_name must equal namespace + \"::\" + name")
)

type modelError string

func (e modelError) Error() string { return string(e) }
