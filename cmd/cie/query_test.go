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
	"testing"

	cietest "github.com/kraklabs/cie/internal/testing"
	"github.com/kraklabs/cie/pkg/model"
	"github.com/kraklabs/cie/pkg/query"
)

func TestDispatchQuerySearchClasses(t *testing.T) {
	st := cietest.SetupTestStore(t)
	cietest.InsertTestSymbol(t, st, cietest.TestClass("Widget", "widget.h", 10))
	qe := query.New(st)

	result, err := dispatchQuery(qe, "search-classes", []string{"Widget"})
	if err != nil {
		t.Fatalf("dispatchQuery() error = %v", err)
	}
	classes, ok := result.([]model.Symbol)
	if !ok {
		t.Fatalf("result type = %T, want []model.Symbol", result)
	}
	if len(classes) != 1 || classes[0].QualifiedName != "Widget" {
		t.Errorf("dispatchQuery() = %+v, want a single Widget match", classes)
	}
}

func TestDispatchQueryClassInfoNotFound(t *testing.T) {
	st := cietest.SetupTestStore(t)
	qe := query.New(st)

	_, err := dispatchQuery(qe, "class-info", []string{"Nonexistent"})
	if err == nil {
		t.Error("dispatchQuery(class-info) should error when the class is not found")
	}
}

func TestDispatchQueryHierarchyDirectionDefaultsToUp(t *testing.T) {
	st := cietest.SetupTestStore(t)
	base := cietest.TestClass("Base", "base.h", 1)
	derived := cietest.TestClass("Derived", "derived.h", 1)
	derived.BaseClasses = []string{"Base"}
	cietest.InsertTestSymbols(t, st, []model.Symbol{base, derived})
	qe := query.New(st)

	result, err := dispatchQuery(qe, "hierarchy", []string{"Derived"})
	if err != nil {
		t.Fatalf("dispatchQuery() error = %v", err)
	}
	nodes, ok := result.([]model.Symbol)
	if !ok {
		t.Fatalf("result type = %T, want []model.Symbol", result)
	}
	if len(nodes) == 0 {
		t.Error("dispatchQuery(hierarchy) should return at least the root class")
	}
}

func TestDispatchQueryUnknownOperation(t *testing.T) {
	st := cietest.SetupTestStore(t)
	qe := query.New(st)

	_, err := dispatchQuery(qe, "not-a-real-op", nil)
	if err == nil {
		t.Error("dispatchQuery() should error on an unrecognized operation")
	}
}

func TestDispatchQueryMissingArgsTreatedAsEmptyString(t *testing.T) {
	st := cietest.SetupTestStore(t)
	qe := query.New(st)

	// search-classes with no pattern argument must not panic; arg(0) falls
	// back to "" rather than indexing out of range.
	result, err := dispatchQuery(qe, "search-classes", nil)
	if err != nil {
		t.Fatalf("dispatchQuery() error = %v", err)
	}
	if _, ok := result.([]model.Symbol); !ok {
		t.Errorf("result type = %T, want []model.Symbol", result)
	}
}
