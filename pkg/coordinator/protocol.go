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

// Package coordinator implements the Parallel Indexing Coordinator
// (spec.md §4.4): a pool of worker OS processes, spawned from the
// cie-worker binary, speaking a line-delimited JSON protocol over
// stdin/stdout. Each worker holds a persistent per-process Extractor
// (parser index cleared between tasks, never reconstructed); the coordinator
// owns the single shared Header Tracker and the Persistent Store connection,
// and does every store write, so symbol batching and call-site streaming
// happen in one place (spec.md §2 data flow: "Persistent Store (batch writes
// via coordinator)").
package coordinator

import "github.com/kraklabs/cie/pkg/model"

// MessageType discriminates the line-delimited JSON frames exchanged on a
// worker's stdin/stdout pipes.
type MessageType string

const (
	MsgInit          MessageType = "init"
	MsgTaskRequest   MessageType = "task_request"
	MsgTaskResult    MessageType = "task_result"
	MsgClaimRequest  MessageType = "claim_request"
	MsgClaimResponse MessageType = "claim_response"
	MsgMarkCompleted MessageType = "mark_completed"
	MsgShutdown      MessageType = "shutdown"
)

// Frame is the envelope every line carries; exactly one of the payload
// fields is populated depending on Type.
type Frame struct {
	Type MessageType `json:"type"`

	Init          *InitPayload          `json:"init,omitempty"`
	TaskReq       *TaskRequestPayload   `json:"task_request,omitempty"`
	TaskResult    *TaskResultPayload    `json:"task_result,omitempty"`
	ClaimReq      *ClaimRequestPayload  `json:"claim_request,omitempty"`
	ClaimResp     *ClaimResponsePayload `json:"claim_response,omitempty"`
	MarkCompleted *MarkCompletedPayload `json:"mark_completed_payload,omitempty"`
}

// MarkCompletedPayload notifies the coordinator that a header claimed by
// this worker finished extraction; no response is expected.
type MarkCompletedPayload struct {
	HeaderPath string `json:"header_path"`
}

// InitPayload is sent once, coordinator -> worker, at process start.
type InitPayload struct {
	ProjectRoot          string `json:"project_root"`
	BuildDatabaseVersion string `json:"build_database_version"`
}

// TaskRequestPayload dispatches one file to a worker.
type TaskRequestPayload struct {
	Path string   `json:"path"`
	Args []string `json:"args"`
}

// TaskResultPayload is the worker's answer to a TaskRequestPayload.
type TaskResultPayload struct {
	Symbols        []model.Symbol    `json:"symbols,omitempty"`
	CallSites      []model.CallSite  `json:"call_sites,omitempty"`
	Headers        []string          `json:"headers,omitempty"`
	ClaimedHeaders map[string]string `json:"claimed_headers,omitempty"`
	ParseError     *model.ParseError `json:"parse_error,omitempty"`
}

// ClaimRequestPayload lets a worker ask the coordinator's shared Header
// Tracker for first-win ownership of a header mid-traversal.
type ClaimRequestPayload struct {
	HeaderPath string `json:"header_path"`
	Owner      string `json:"owner"`
}

type ClaimResponsePayload struct {
	Granted bool `json:"granted"`
}
