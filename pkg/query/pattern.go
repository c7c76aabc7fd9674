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

// Package query implements the Query Engine (spec.md §4.7): pattern
// compilation over symbol names/qualified names, and the read-only
// navigation operations built on top of pkg/store.
package query

import (
	"regexp"
	"strings"

	"github.com/kraklabs/cie/internal/contract"
	"github.com/kraklabs/cie/pkg/model"
)

type patternMode int

const (
	modeAbsolute patternMode = iota
	modeQualifiedSuffix
	modeRegex
	modeUnqualifiedExact
)

const regexMetaChars = `.*+?[]{}()|^$\`

// pattern is a compiled match spec (spec.md §4.7 "Pattern compilation").
// Component boundaries are hard: "app::X" never matches "myapp::X".
type pattern struct {
	mode       patternMode
	components []string // absolute/qualified-suffix mode
	exact      string    // unqualified-exact mode
	re         *regexp.Regexp
}

func compilePattern(p string) pattern {
	if len(p) > contract.MaxQueryPatternBytes {
		// Oversized input matches nothing, same as an uncompilable regex
		// below — never silently truncated.
		return pattern{mode: modeRegex, re: nil}
	}
	switch {
	case strings.HasPrefix(p, "::"):
		return pattern{mode: modeAbsolute, components: strings.Split(p[2:], "::")}
	case strings.Contains(p, "::"):
		return pattern{mode: modeQualifiedSuffix, components: strings.Split(p, "::")}
	case strings.ContainsAny(p, regexMetaChars):
		re, err := regexp.Compile("^(?:" + p + ")$")
		if err != nil {
			// An uncompilable "regex-looking" pattern matches nothing,
			// never falls back to fuzzy matching (spec.md §4.7).
			return pattern{mode: modeRegex, re: nil}
		}
		return pattern{mode: modeRegex, re: re}
	default:
		return pattern{mode: modeUnqualifiedExact, exact: p}
	}
}

// matches reports whether sym satisfies the compiled pattern.
func (p pattern) matches(sym model.Symbol) bool {
	switch p.mode {
	case modeAbsolute:
		return strings.Join(p.components, "::") == sym.QualifiedName
	case modeQualifiedSuffix:
		candidate := sym.QualifiedComponents()
		if len(p.components) > len(candidate) {
			return false
		}
		offset := len(candidate) - len(p.components)
		for i, c := range p.components {
			if candidate[offset+i] != c {
				return false
			}
		}
		return true
	case modeRegex:
		return p.re != nil && p.re.MatchString(sym.Name)
	default:
		return sym.Name == p.exact
	}
}
