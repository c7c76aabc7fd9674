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

package extractor

import (
	"strings"

	"github.com/go-clang/clang-v14/clang"

	"github.com/kraklabs/cie/pkg/model"
)

const (
	briefMaxLen = 200
	docMaxLen   = 4000
)

// walker carries one Extract call's scratch state. Everything here is
// discarded when Extract returns; nothing survives to the next file.
type walker struct {
	ext        *Extractor
	sourcePath string

	symbols   []model.Symbol
	callSites []model.CallSite

	// willComplete holds headers this call claimed and must mark_completed
	// on the shared Header Tracker once traversal finishes.
	willComplete map[string]string
	// headersSeen is every project header file observed, claimed or not —
	// the HeaderDependency edge set for this source.
	headersSeen map[string]bool
	// usrIndex supports primary-template linkage lookups within this unit.
	usrIndex map[string]model.Symbol
}

func (w *walker) visit(cursor, parent clang.Cursor) clang.ChildVisitResult {
	if cursor.IsNull() {
		return clang.ChildVisit_Continue
	}

	file, line, col := locationOf(cursor)
	if file == "" {
		return clang.ChildVisit_Recurse
	}

	if file != w.sourcePath {
		if !w.ext.isProjectFile(file) {
			return clang.ChildVisit_Continue
		}
		w.headersSeen[file] = true
		hash, err := hashFile(file)
		if err != nil {
			return clang.ChildVisit_Continue
		}
		if !w.ext.tracker.TryClaim(file, w.ext.buildDBVersion+":"+hash) {
			return clang.ChildVisit_Recurse
		}
		w.willComplete[file] = hash
	}

	if kind, tkind, ok := mapKind(cursor.Kind()); ok {
		kind, tkind = resolveFullSpecialization(cursor, kind, tkind)
		sym := w.buildSymbol(cursor, file, line, col, kind, tkind)
		w.symbols = append(w.symbols, sym)
		w.usrIndex[sym.USR] = sym
	}

	if isCallLike(cursor.Kind()) {
		w.emitCallSite(cursor, file, line, col)
	}

	return clang.ChildVisit_Recurse
}

func locationOf(cursor clang.Cursor) (file string, line, col int) {
	f, l, c, _ := cursor.Location().FileLocation()
	name := f.TryGetRealPathName()
	if name == "" {
		return "", 0, 0
	}
	return name, int(l), int(c)
}

func (w *walker) buildSymbol(cursor clang.Cursor, file string, line, col int, kind model.Kind, tkind model.TemplateKind) model.Symbol {
	qualifiedName, namespace := qualifiedNameOf(cursor)
	sym := model.Symbol{
		USR:           cursor.USR(),
		Name:          cursor.Spelling(),
		QualifiedName: qualifiedName,
		Namespace:     namespace,
		Kind:          kind,
		File:          file,
		Line:          line,
		Column:        col,
		IsProject:     w.ext.isProjectFile(file),
		Access:        accessOf(cursor),
		TemplateKind:  tkind,
		IsTemplate:    tkind != model.TemplateKindNone,
	}

	if parentClass, ok := enclosingClass(cursor); ok {
		sym.ParentClass = parentClass
	}

	if isCallableKind(cursor.Kind()) {
		sym.Signature = canonicalSignature(cursor)
	}

	if isClassKind(cursor.Kind()) {
		sym.BaseClasses = baseClassesOf(cursor)
	}

	if sym.IsTemplate {
		sym.TemplateParameters = templateParametersOf(cursor)
	}
	if isSpecializationKind(tkind) {
		sym.PrimaryTemplateUSR = primaryTemplateUSR(cursor.USR(), w.usrIndex)
	}

	sym.Brief, sym.DocComment = commentsOf(cursor)

	return sym
}

// qualifiedNameOf walks semantic_parent to the translation-unit root,
// joining spellings with "::". Anonymous namespaces keep the parser's
// "(anonymous namespace)" label verbatim, per spec.md §4.3.
func qualifiedNameOf(cursor clang.Cursor) (qualifiedName, namespace string) {
	var components []string
	cur := cursor
	for !cur.IsNull() && cur.Kind() != clang.Cursor_TranslationUnit {
		spelling := cur.Spelling()
		switch cur.Kind() {
		case clang.Cursor_Namespace:
			if spelling == "" {
				spelling = "(anonymous namespace)"
			}
		case clang.Cursor_ClassDecl, clang.Cursor_StructDecl, clang.Cursor_ClassTemplate,
			clang.Cursor_ClassTemplatePartialSpecialization, clang.Cursor_UnionDecl:
			if spelling == "" {
				spelling = "(anonymous)"
			}
		}
		if spelling != "" {
			components = append([]string{spelling}, components...)
		}
		cur = cur.SemanticParent()
	}

	if len(components) == 0 {
		return cursor.Spelling(), ""
	}
	qualifiedName = strings.Join(components, "::")
	namespace = strings.Join(components[:len(components)-1], "::")
	return qualifiedName, namespace
}

func enclosingClass(cursor clang.Cursor) (string, bool) {
	parent := cursor.SemanticParent()
	for !parent.IsNull() {
		switch parent.Kind() {
		case clang.Cursor_ClassDecl, clang.Cursor_StructDecl, clang.Cursor_ClassTemplate,
			clang.Cursor_ClassTemplatePartialSpecialization:
			qn, _ := qualifiedNameOf(parent)
			return qn, true
		case clang.Cursor_TranslationUnit:
			return "", false
		}
		parent = parent.SemanticParent()
	}
	return "", false
}

func accessOf(cursor clang.Cursor) model.Access {
	switch cursor.AccessSpecifier() {
	case clang.AccessSpecifier_Protected:
		return model.AccessProtected
	case clang.AccessSpecifier_Private:
		return model.AccessPrivate
	default:
		return model.AccessPublic
	}
}

func isCallableKind(kind clang.CursorKind) bool {
	switch kind {
	case clang.Cursor_FunctionDecl, clang.Cursor_CXXMethod, clang.Cursor_FunctionTemplate,
		clang.Cursor_Constructor, clang.Cursor_Destructor, clang.Cursor_ConversionFunction:
		return true
	}
	return false
}

func isClassKind(kind clang.CursorKind) bool {
	switch kind {
	case clang.Cursor_ClassDecl, clang.Cursor_StructDecl, clang.Cursor_ClassTemplate,
		clang.Cursor_ClassTemplatePartialSpecialization:
		return true
	}
	return false
}

func isCallLike(kind clang.CursorKind) bool {
	return kind == clang.Cursor_CallExpr
}

func isSpecializationKind(tk model.TemplateKind) bool {
	return tk == model.TemplateKindFullSpecialization || tk == model.TemplateKindPartialSpecialization
}

// mapKind maps a cursor kind to the (Kind, TemplateKind) pair of spec.md
// §3.1, reporting ok=false for cursor kinds the store does not model as
// symbols (expressions, statements, attributes, ...).
func mapKind(kind clang.CursorKind) (model.Kind, model.TemplateKind, bool) {
	switch kind {
	case clang.Cursor_ClassDecl:
		return model.KindClass, model.TemplateKindNone, true
	case clang.Cursor_StructDecl:
		return model.KindStruct, model.TemplateKindNone, true
	case clang.Cursor_ClassTemplate:
		return model.KindClassTemplate, model.TemplateKindClassTemplate, true
	case clang.Cursor_ClassTemplatePartialSpecialization:
		return model.KindPartialSpecialization, model.TemplateKindPartialSpecialization, true
	case clang.Cursor_FunctionDecl:
		return model.KindFunction, model.TemplateKindNone, true
	case clang.Cursor_CXXMethod, clang.Cursor_Constructor, clang.Cursor_Destructor, clang.Cursor_ConversionFunction:
		return model.KindMethod, model.TemplateKindNone, true
	case clang.Cursor_FunctionTemplate:
		return model.KindFunctionTemplate, model.TemplateKindFunctionTemplate, true
	case clang.Cursor_FieldDecl:
		return model.KindField, model.TemplateKindNone, true
	case clang.Cursor_TypedefDecl, clang.Cursor_TypeAliasDecl:
		return model.KindTypedef, model.TemplateKindNone, true
	case clang.Cursor_VarDecl:
		return model.KindVariable, model.TemplateKindNone, true
	case clang.Cursor_EnumDecl:
		return model.KindEnum, model.TemplateKindNone, true
	case clang.Cursor_EnumConstantDecl:
		return model.KindEnumerator, model.TemplateKindNone, true
	case clang.Cursor_NamespaceAlias:
		return model.KindNamespaceAlias, model.TemplateKindNone, true
	}
	return "", model.TemplateKindNone, false
}

// resolveFullSpecialization recognizes an explicit/full specialization of a
// class template: libclang surfaces it as a plain Cursor_ClassDecl or
// Cursor_StructDecl, distinguishable from a non-template class only by
// SpecializedCursorTemplate() pointing back at the primary template
// (spec.md §8 scenario S2 "template_kind: full_specialization").
func resolveFullSpecialization(cursor clang.Cursor, kind model.Kind, tkind model.TemplateKind) (model.Kind, model.TemplateKind) {
	if kind != model.KindClass && kind != model.KindStruct {
		return kind, tkind
	}
	if cursor.SpecializedCursorTemplate().IsNull() {
		return kind, tkind
	}
	return model.KindFullSpecialization, model.TemplateKindFullSpecialization
}

// canonicalSignature builds the callable's return-type + qualified
// parameter-type list, using the parser's canonical (alias-expanded) type
// spelling throughout.
func canonicalSignature(cursor clang.Cursor) string {
	resultType := cursor.ResultType()
	ret := resultType.CanonicalType().Spelling()

	var params []string
	n := cursor.NumArguments()
	for i := int32(0); i < n; i++ {
		arg := cursor.Argument(uint32(i))
		params = append(params, arg.Type().CanonicalType().Spelling())
	}

	return ret + "(" + strings.Join(params, ", ") + ")"
}

// baseClassesOf enumerates CXX_BASE_SPECIFIER children, capturing each
// base's canonical (alias-expanded, fully-qualified) type spelling.
func baseClassesOf(cursor clang.Cursor) []string {
	var bases []string
	cursor.Visit(func(c, _ clang.Cursor) clang.ChildVisitResult {
		if c.Kind() == clang.Cursor_CXXBaseSpecifier {
			bases = append(bases, c.Type().CanonicalType().Spelling())
		}
		return clang.ChildVisit_Continue
	})
	return bases
}

func templateParametersOf(cursor clang.Cursor) []model.TemplateParameter {
	var params []model.TemplateParameter
	cursor.Visit(func(c, _ clang.Cursor) clang.ChildVisitResult {
		switch c.Kind() {
		case clang.Cursor_TemplateTypeParameter:
			params = append(params, model.TemplateParameter{Name: c.Spelling(), Kind: model.TemplateParamType})
		case clang.Cursor_NonTypeTemplateParameter:
			params = append(params, model.TemplateParameter{
				Name: c.Spelling(), Kind: model.TemplateParamNonType, TypeSpelling: c.Type().CanonicalType().Spelling(),
			})
		case clang.Cursor_TemplateTemplateParameter:
			params = append(params, model.TemplateParameter{Name: c.Spelling(), Kind: model.TemplateParamTemplate})
		}
		return clang.ChildVisit_Continue
	})
	return params
}

// primaryTemplateUSR implements the USR-pattern analysis of spec.md §4.3:
// class-template patterns "ST>...@Name" / function-template "FT@>...Name";
// specialization patterns "S@Name>#..." / "F@Name<#...". Within a single
// translation unit the primary template, if present, shares the
// specialization's USR up to its first specialization marker.
func primaryTemplateUSR(specializationUSR string, usrIndex map[string]model.Symbol) string {
	base := specializationUSR
	for _, marker := range []string{"S@", "F@", ">#", "<#"} {
		if idx := strings.Index(base, marker); idx > 0 {
			base = base[:idx]
			break
		}
	}
	for usr, sym := range usrIndex {
		if usr == specializationUSR {
			continue
		}
		if (sym.TemplateKind == model.TemplateKindClassTemplate || sym.TemplateKind == model.TemplateKindFunctionTemplate) &&
			strings.HasPrefix(usr, base) {
			return usr
		}
	}
	return ""
}

// commentsOf extracts brief (first line, truncated to briefMaxLen) and the
// raw doc comment (truncated to docMaxLen with a "..." suffix on overflow).
func commentsOf(cursor clang.Cursor) (brief, doc string) {
	brief = cursor.BriefCommentText()
	raw := cursor.RawCommentText()

	if brief == "" && raw != "" {
		for _, line := range strings.Split(raw, "\n") {
			stripped := strings.TrimSpace(strings.TrimLeft(line, "/*! "))
			if stripped != "" {
				brief = stripped
				break
			}
		}
	}
	if len(brief) > briefMaxLen {
		brief = brief[:briefMaxLen]
	}
	if len(raw) > docMaxLen {
		raw = raw[:docMaxLen] + "..."
	}
	return brief, raw
}

func (w *walker) emitCallSite(cursor clang.Cursor, file string, line, col int) {
	enclosing := enclosingFunction(cursor)
	if enclosing.IsNull() {
		return
	}

	callerUSR := enclosing.USR()
	referenced := cursor.Referenced()

	site := model.CallSite{
		CallerUSR: callerUSR,
		File:      file,
		Line:      line,
		Column:    col,
	}
	if !referenced.IsNull() {
		site.CalleeUSR = referenced.USR()
		site.CalleeName = referenced.Spelling()
	} else {
		site.CalleeName = cursor.Spelling()
	}

	for p := enclosing.SemanticParent(); !p.IsNull() && p.Kind() != clang.Cursor_TranslationUnit; p = p.SemanticParent() {
		if isClassKind(p.Kind()) {
			site.InMethodOf = p.USR()
			break
		}
	}

	w.callSites = append(w.callSites, site)
}

func enclosingFunction(cursor clang.Cursor) clang.Cursor {
	cur := cursor.SemanticParent()
	for !cur.IsNull() {
		if isCallableKind(cur.Kind()) {
			return cur
		}
		if cur.Kind() == clang.Cursor_TranslationUnit {
			break
		}
		cur = cur.SemanticParent()
	}
	return clang.Cursor{}
}
