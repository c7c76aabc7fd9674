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

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSymbolValidate(t *testing.T) {
	tests := []struct {
		name    string
		sym     Symbol
		wantErr bool
	}{
		{
			name:    "missing usr",
			sym:     Symbol{Name: "Widget", QualifiedName: "Widget"},
			wantErr: true,
		},
		{
			name:    "qualified name must end with name",
			sym:     Symbol{USR: "c:@Widget", Name: "Widget", QualifiedName: "Gadget"},
			wantErr: true,
		},
		{
			name:    "top-level symbol with empty namespace",
			sym:     Symbol{USR: "c:@Widget", Name: "Widget", QualifiedName: "Widget"},
			wantErr: false,
		},
		{
			name:    "top-level symbol with mismatched qualified name",
			sym:     Symbol{USR: "c:@widget::Widget", Name: "Widget", QualifiedName: "widget::Widget"},
			wantErr: true, // Namespace is empty but QualifiedName != Name
		},
		{
			name:    "namespaced symbol composes correctly",
			sym:     Symbol{USR: "c:@widget::Widget", Name: "Widget", QualifiedName: "widget::Widget", Namespace: "widget"},
			wantErr: false,
		},
		{
			name:    "namespaced symbol with wrong composition",
			sym:     Symbol{USR: "c:@widget::Widget", Name: "Widget", QualifiedName: "gadget::Widget", Namespace: "widget"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sym.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSymbolQualifiedComponents(t *testing.T) {
	sym := Symbol{QualifiedName: "app::widget::Widget"}
	assert.Equal(t, []string{"app", "widget", "Widget"}, sym.QualifiedComponents())

	top := Symbol{QualifiedName: "Widget"}
	assert.Equal(t, []string{"Widget"}, top.QualifiedComponents())
}
