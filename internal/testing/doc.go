// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package testing provides test helpers for CIE's persistence and query
// layers.
//
// SetupTestStore opens a fresh SQLite-backed Store under a temporary
// directory, closed automatically on test cleanup:
//
//	func TestMyFeature(t *testing.T) {
//	    st := testing.SetupTestStore(t)
//	    testing.InsertTestSymbol(t, st, testing.TestClass("widget::Widget", "widget.h", 10))
//	    // ... exercise pkg/store or pkg/query against st
//	}
//
// TestClass/TestFunction build minimal model.Symbol values satisfying
// spec.md §3.1's QualifiedName-suffix invariant. InsertTestSymbol(s),
// InsertTestCallSite and InsertTestFileMetadata seed data through the same
// Store methods the coordinator uses in production, so tests exercise the
// real write path rather than a parallel fixture loader.
package testing
