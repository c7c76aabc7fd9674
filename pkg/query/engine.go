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

package query

import (
	"strings"

	"github.com/kraklabs/cie/pkg/model"
	"github.com/kraklabs/cie/pkg/store"
)

// Engine answers read-only navigation queries against a Store. It holds no
// state of its own beyond the Store handle, so it tolerates concurrent
// indexing (spec.md §4.7: "every query must tolerate concurrent indexing") —
// each call simply observes whatever has been committed so far.
type Engine struct {
	store *store.Store
}

// New wraps st in a query Engine.
func New(st *store.Store) *Engine {
	return &Engine{store: st}
}

var classKinds = map[model.Kind]bool{
	model.KindClass:                true,
	model.KindStruct:               true,
	model.KindClassTemplate:        true,
	model.KindPartialSpecialization: true,
	model.KindFullSpecialization:    true,
}

var functionKinds = map[model.Kind]bool{
	model.KindFunction:         true,
	model.KindMethod:           true,
	model.KindFunctionTemplate: true,
}

// filterOpts bundles the optional filters most search operations share.
type filterOpts struct {
	ProjectOnly bool
	FileName    string // path suffix match
	ClassName   string // constrains search_functions to one enclosing class
}

func (e *Engine) candidates(kinds map[model.Kind]bool, p pattern, opts filterOpts) ([]model.Symbol, error) {
	all, err := e.store.AllSymbols()
	if err != nil {
		return nil, err
	}
	var out []model.Symbol
	for _, sym := range all {
		if kinds != nil && !kinds[sym.Kind] {
			continue
		}
		if opts.ProjectOnly && !sym.IsProject {
			continue
		}
		if opts.FileName != "" && !strings.HasSuffix(sym.File, opts.FileName) {
			continue
		}
		if opts.ClassName != "" && sym.ParentClass != opts.ClassName {
			continue
		}
		if !p.matches(sym) {
			continue
		}
		out = append(out, sym)
	}
	return out, nil
}

// SearchClasses filters over class-family kinds (spec.md §4.7).
func (e *Engine) SearchClasses(patternStr string, projectOnly bool, fileName string) ([]model.Symbol, error) {
	return e.candidates(classKinds, compilePattern(patternStr), filterOpts{ProjectOnly: projectOnly, FileName: fileName})
}

// SearchFunctions filters over function/method kinds, optionally constrained
// to one class's qualified name.
func (e *Engine) SearchFunctions(patternStr string, projectOnly bool, className, fileName string) ([]model.Symbol, error) {
	return e.candidates(functionKinds, compilePattern(patternStr), filterOpts{ProjectOnly: projectOnly, FileName: fileName, ClassName: className})
}

// SearchSymbols searches across any requested kinds, or every kind when
// kinds is empty.
func (e *Engine) SearchSymbols(patternStr string, kinds []model.Kind, projectOnly bool) ([]model.Symbol, error) {
	var kindSet map[model.Kind]bool
	if len(kinds) > 0 {
		kindSet = make(map[model.Kind]bool, len(kinds))
		for _, k := range kinds {
			kindSet[k] = true
		}
	}
	return e.candidates(kindSet, compilePattern(patternStr), filterOpts{ProjectOnly: projectOnly})
}

// ClassInfo is the aggregate get_class_info response.
type ClassInfo struct {
	Class   model.Symbol
	Methods []model.Symbol
	Fields  []model.Symbol
}

// GetClassInfo resolves className (absolute or qualified-suffix pattern) to
// exactly one class symbol plus its direct methods and fields.
func (e *Engine) GetClassInfo(className string) (ClassInfo, bool, error) {
	matches, err := e.candidates(classKinds, compilePattern(className), filterOpts{})
	if err != nil || len(matches) == 0 {
		return ClassInfo{}, false, err
	}
	cls := matches[0]

	all, err := e.store.AllSymbols()
	if err != nil {
		return ClassInfo{}, false, err
	}
	var methods, fields []model.Symbol
	for _, sym := range all {
		if sym.ParentClass != cls.QualifiedName {
			continue
		}
		if functionKinds[sym.Kind] {
			methods = append(methods, sym)
		} else if sym.Kind == model.KindField {
			fields = append(fields, sym)
		}
	}
	return ClassInfo{Class: cls, Methods: methods, Fields: fields}, true, nil
}

// FunctionInfo is one overload in a get_function_info response.
type FunctionInfo struct {
	Symbol                 model.Symbol
	IsTemplateSpecialization bool
}

// GetFunctionInfo returns every overload whose qualified name satisfies the
// pattern match (spec.md §4.7); the overload count is the length of the
// returned slice.
func (e *Engine) GetFunctionInfo(functionName string) ([]FunctionInfo, error) {
	matches, err := e.candidates(functionKinds, compilePattern(functionName), filterOpts{})
	if err != nil {
		return nil, err
	}
	out := make([]FunctionInfo, 0, len(matches))
	for _, sym := range matches {
		out = append(out, FunctionInfo{
			Symbol:                   sym,
			IsTemplateSpecialization: sym.TemplateKind == model.TemplateKindFullSpecialization || sym.TemplateKind == model.TemplateKindPartialSpecialization,
		})
	}
	return out, nil
}

// GetDerivedClasses returns every class whose base_classes list names
// className's qualified name. Transitive resolution through template
// parameters is not performed (spec.md §4.7).
func (e *Engine) GetDerivedClasses(className string) ([]model.Symbol, error) {
	base, ok, err := e.resolveOne(classKinds, className)
	if err != nil || !ok {
		return nil, err
	}
	all, err := e.store.AllSymbols()
	if err != nil {
		return nil, err
	}
	var out []model.Symbol
	for _, sym := range all {
		if !classKinds[sym.Kind] {
			continue
		}
		for _, b := range sym.BaseClasses {
			if b == base.QualifiedName {
				out = append(out, sym)
				break
			}
		}
	}
	return out, nil
}

// BaseClassResult is one entry of a get_base_classes response: resolved to
// an indexed Symbol when possible, otherwise just the recorded name.
type BaseClassResult struct {
	Symbol   model.Symbol
	Resolved bool
}

// GetBaseClasses returns className's recorded base classes, each resolved to
// a Symbol when indexed (spec.md §4.7).
func (e *Engine) GetBaseClasses(className string) ([]BaseClassResult, error) {
	cls, ok, err := e.resolveOne(classKinds, className)
	if err != nil || !ok {
		return nil, err
	}
	out := make([]BaseClassResult, 0, len(cls.BaseClasses))
	for _, name := range cls.BaseClasses {
		matches, err := e.store.FindByQualifiedName(name)
		if err != nil {
			return nil, err
		}
		if len(matches) > 0 {
			out = append(out, BaseClassResult{Symbol: matches[0], Resolved: true})
		} else {
			out = append(out, BaseClassResult{Symbol: model.Symbol{QualifiedName: name}, Resolved: false})
		}
	}
	return out, nil
}

func (e *Engine) resolveOne(kinds map[model.Kind]bool, name string) (model.Symbol, bool, error) {
	matches, err := e.candidates(kinds, compilePattern(name), filterOpts{})
	if err != nil || len(matches) == 0 {
		return model.Symbol{}, false, err
	}
	return matches[0], true, nil
}

// CallEdge groups distinct caller/callee endpoints for find_callers/callees.
type CallEdge struct {
	USR  string
	Name string
}

// FindCallers returns distinct callers of functionName, grouped by endpoint.
func (e *Engine) FindCallers(functionName string) ([]CallEdge, error) {
	fn, ok, err := e.resolveOne(functionKinds, functionName)
	if err != nil || !ok {
		return nil, err
	}
	sites, err := e.store.CallSitesByCallee(fn.USR)
	if err != nil {
		return nil, err
	}
	return dedupeEdgesByCaller(sites)
}

// FindCallees returns distinct callees of functionName, grouped by endpoint.
func (e *Engine) FindCallees(functionName string) ([]CallEdge, error) {
	fn, ok, err := e.resolveOne(functionKinds, functionName)
	if err != nil || !ok {
		return nil, err
	}
	sites, err := e.store.CallSitesByCaller(fn.USR)
	if err != nil {
		return nil, err
	}
	return dedupeEdgesByCallee(sites)
}

func dedupeEdgesByCaller(sites []model.CallSite) ([]CallEdge, error) {
	seen := make(map[string]bool)
	var out []CallEdge
	for _, s := range sites {
		if seen[s.CallerUSR] {
			continue
		}
		seen[s.CallerUSR] = true
		out = append(out, CallEdge{USR: s.CallerUSR})
	}
	return out, nil
}

func dedupeEdgesByCallee(sites []model.CallSite) ([]CallEdge, error) {
	seen := make(map[string]bool)
	var out []CallEdge
	for _, s := range sites {
		key := s.CalleeUSR
		if key == "" {
			key = "name:" + s.CalleeName
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, CallEdge{USR: s.CalleeUSR, Name: s.CalleeName})
	}
	return out, nil
}

// GetCallSites returns raw CallSite rows for functionName, line-level.
func (e *Engine) GetCallSites(functionName string) ([]model.CallSite, error) {
	fn, ok, err := e.resolveOne(functionKinds, functionName)
	if err != nil || !ok {
		return nil, err
	}
	return e.store.CallSitesByCaller(fn.USR)
}

// CallPathResult is the get_call_path response.
type CallPathResult struct {
	Path          []string // USRs, from -> to, inclusive
	DepthExceeded bool
}

// GetCallPath performs a bounded BFS over the directed call graph, returning
// one shortest path or an empty result with DepthExceeded set if maxDepth is
// hit before a path is found (spec.md §4.7).
func (e *Engine) GetCallPath(fromFunction, toFunction string, maxDepth int) (CallPathResult, error) {
	from, ok, err := e.resolveOne(functionKinds, fromFunction)
	if err != nil || !ok {
		return CallPathResult{}, err
	}
	to, ok, err := e.resolveOne(functionKinds, toFunction)
	if err != nil || !ok {
		return CallPathResult{}, err
	}

	adj, err := e.forwardAdjacency()
	if err != nil {
		return CallPathResult{}, err
	}

	type frame struct {
		usr   string
		depth int
	}
	visited := map[string]bool{from.USR: true}
	parent := map[string]string{}
	queue := []frame{{usr: from.USR, depth: 0}}
	depthHit := false

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.usr == to.USR {
			return CallPathResult{Path: reconstructPath(parent, from.USR, to.USR)}, nil
		}
		if cur.depth >= maxDepth {
			if len(adj[cur.usr]) > 0 {
				depthHit = true
			}
			continue
		}
		for _, next := range adj[cur.usr] {
			if visited[next] {
				continue
			}
			visited[next] = true
			parent[next] = cur.usr
			queue = append(queue, frame{usr: next, depth: cur.depth + 1})
		}
	}
	return CallPathResult{DepthExceeded: depthHit}, nil
}

func (e *Engine) forwardAdjacency() (map[string][]string, error) {
	sites, err := e.store.AllCallSites()
	if err != nil {
		return nil, err
	}
	adj := make(map[string][]string)
	for _, s := range sites {
		if s.CalleeUSR == "" {
			continue
		}
		adj[s.CallerUSR] = append(adj[s.CallerUSR], s.CalleeUSR)
	}
	return adj, nil
}

func reconstructPath(parent map[string]string, from, to string) []string {
	path := []string{to}
	cur := to
	for cur != from {
		p, ok := parent[cur]
		if !ok {
			break
		}
		path = append([]string{p}, path...)
		cur = p
	}
	return path
}

// GetFilesContainingSymbol returns distinct file values across every symbol
// and call site matching symbolName.
func (e *Engine) GetFilesContainingSymbol(symbolName string) ([]string, error) {
	p := compilePattern(symbolName)
	all, err := e.store.AllSymbols()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	usrs := make(map[string]bool)
	var out []string
	for _, sym := range all {
		if !p.matches(sym) {
			continue
		}
		usrs[sym.USR] = true
		if !seen[sym.File] {
			seen[sym.File] = true
			out = append(out, sym.File)
		}
	}
	sites, err := e.store.AllCallSites()
	if err != nil {
		return nil, err
	}
	for _, s := range sites {
		hit := usrs[s.CalleeUSR] || (s.CalleeUSR == "" && p.matches(model.Symbol{Name: s.CalleeName, QualifiedName: s.CalleeName}))
		if hit && !seen[s.File] {
			seen[s.File] = true
			out = append(out, s.File)
		}
	}
	return out, nil
}

// HierarchyDirection selects which edges get_class_hierarchy walks.
type HierarchyDirection int

const (
	HierarchyUp HierarchyDirection = iota
	HierarchyDown
	HierarchyBoth
)

// GetClassHierarchy performs a DFS with cycle detection up to maxDepth,
// following base-class edges (up), derived-class edges (down), or both.
func (e *Engine) GetClassHierarchy(className string, dir HierarchyDirection, maxDepth int) ([]model.Symbol, error) {
	root, ok, err := e.resolveOne(classKinds, className)
	if err != nil || !ok {
		return nil, err
	}
	all, err := e.store.AllSymbols()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]model.Symbol, len(all))
	for _, sym := range all {
		if classKinds[sym.Kind] {
			byName[sym.QualifiedName] = sym
		}
	}

	visited := map[string]bool{root.QualifiedName: true}
	var out []model.Symbol
	var walk func(sym model.Symbol, depth int)
	walk = func(sym model.Symbol, depth int) {
		if depth >= maxDepth {
			return
		}
		if dir == HierarchyUp || dir == HierarchyBoth {
			for _, baseName := range sym.BaseClasses {
				if base, found := byName[baseName]; found && !visited[base.QualifiedName] {
					visited[base.QualifiedName] = true
					out = append(out, base)
					walk(base, depth+1)
				}
			}
		}
		if dir == HierarchyDown || dir == HierarchyBoth {
			for _, candidate := range all {
				if !classKinds[candidate.Kind] || visited[candidate.QualifiedName] {
					continue
				}
				for _, b := range candidate.BaseClasses {
					if b == sym.QualifiedName {
						visited[candidate.QualifiedName] = true
						out = append(out, candidate)
						walk(candidate, depth+1)
						break
					}
				}
			}
		}
	}
	walk(root, 0)
	return out, nil
}

// FindInFile returns all symbols with file == filePath.
func (e *Engine) FindInFile(filePath string) ([]model.Symbol, error) {
	return e.store.FindInFile(filePath)
}
