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

package coordinator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/cie/pkg/model"
)

func TestFrameTaskRequestRoundTrip(t *testing.T) {
	frame := Frame{
		Type:    MsgTaskRequest,
		TaskReq: &TaskRequestPayload{Path: "widget.cpp", Args: []string{"-I", "include"}},
	}
	data, err := json.Marshal(frame)
	require.NoError(t, err)

	var got Frame
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, MsgTaskRequest, got.Type)
	require.NotNil(t, got.TaskReq)
	assert.Equal(t, "widget.cpp", got.TaskReq.Path)
	assert.Nil(t, got.TaskResult)
}

func TestFrameTaskResultRoundTrip(t *testing.T) {
	frame := Frame{
		Type: MsgTaskResult,
		TaskResult: &TaskResultPayload{
			Symbols:        []model.Symbol{{USR: "c:@Widget", Name: "Widget", QualifiedName: "Widget"}},
			CallSites:      []model.CallSite{{CallerUSR: "c:@A", CalleeName: "B"}},
			Headers:        []string{"widget.h"},
			ClaimedHeaders: map[string]string{"widget.h": "hash1"},
		},
	}
	data, err := json.Marshal(frame)
	require.NoError(t, err)

	var got Frame
	require.NoError(t, json.Unmarshal(data, &got))
	require.NotNil(t, got.TaskResult)
	require.Len(t, got.TaskResult.Symbols, 1)
	assert.Equal(t, "Widget", got.TaskResult.Symbols[0].Name)
	assert.Equal(t, "hash1", got.TaskResult.ClaimedHeaders["widget.h"])
}

func TestFrameTaskResultWithParseErrorOmitsEmptyFields(t *testing.T) {
	frame := Frame{
		Type: MsgTaskResult,
		TaskResult: &TaskResultPayload{
			ParseError: &model.ParseError{File: "broken.cpp", ErrorKind: model.ParseErrorFatal, Message: "boom"},
		},
	}
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"symbols"`)
	assert.Contains(t, string(data), `"parse_error"`)

	var got Frame
	require.NoError(t, json.Unmarshal(data, &got))
	require.NotNil(t, got.TaskResult.ParseError)
	assert.Equal(t, model.ParseErrorFatal, got.TaskResult.ParseError.ErrorKind)
}

func TestFrameClaimRequestResponse(t *testing.T) {
	req := Frame{Type: MsgClaimRequest, ClaimReq: &ClaimRequestPayload{HeaderPath: "widget.h", Owner: "worker-1"}}
	data, err := json.Marshal(req)
	require.NoError(t, err)
	var gotReq Frame
	require.NoError(t, json.Unmarshal(data, &gotReq))
	assert.Equal(t, "worker-1", gotReq.ClaimReq.Owner)

	resp := Frame{Type: MsgClaimResponse, ClaimResp: &ClaimResponsePayload{Granted: true}}
	data, err = json.Marshal(resp)
	require.NoError(t, err)
	var gotResp Frame
	require.NoError(t, json.Unmarshal(data, &gotResp))
	assert.True(t, gotResp.ClaimResp.Granted)
}

func TestFrameMarkCompleted(t *testing.T) {
	frame := Frame{Type: MsgMarkCompleted, MarkCompleted: &MarkCompletedPayload{HeaderPath: "widget.h"}}
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	var got Frame
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "widget.h", got.MarkCompleted.HeaderPath)
}
