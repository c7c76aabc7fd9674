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
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/kraklabs/cie/pkg/headertracker"
)

// workerConn owns one cie-worker subprocess: its stdin/stdout pipes and the
// JSON framing on top of them. Per spec.md §4.4, this connection — and the
// process behind it — lives for the worker's entire lifetime, not per file.
type workerConn struct {
	id      int
	cmd     *exec.Cmd
	enc     *json.Encoder
	dec     *json.Decoder
	stdin   io.WriteCloser
	tracker *headertracker.Tracker
	logger  *slog.Logger
}

// spawnWorker launches workerPath as a subprocess and completes the init
// handshake.
func spawnWorker(id int, workerPath, projectRoot, buildDBVersion string, tracker *headertracker.Tracker, logger *slog.Logger) (*workerConn, error) {
	cmd := exec.Command(workerPath, "--worker-mode")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("coordinator: worker %d stdin pipe: %w", id, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("coordinator: worker %d stdout pipe: %w", id, err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("coordinator: worker %d start: %w", id, err)
	}

	w := &workerConn{
		id:      id,
		cmd:     cmd,
		enc:     json.NewEncoder(stdin),
		dec:     json.NewDecoder(stdout),
		stdin:   stdin,
		tracker: tracker,
		logger:  logger,
	}

	if err := w.enc.Encode(Frame{
		Type: MsgInit,
		Init: &InitPayload{ProjectRoot: projectRoot, BuildDatabaseVersion: buildDBVersion},
	}); err != nil {
		return nil, fmt.Errorf("coordinator: worker %d init handshake: %w", id, err)
	}

	return w, nil
}

// runTask dispatches path/args to the worker and blocks until the worker
// returns a task_result, servicing any claim_request frames that arrive in
// between by consulting the coordinator's shared Header Tracker.
func (w *workerConn) runTask(path string, args []string) (TaskResultPayload, error) {
	if err := w.enc.Encode(Frame{
		Type:    MsgTaskRequest,
		TaskReq: &TaskRequestPayload{Path: path, Args: args},
	}); err != nil {
		return TaskResultPayload{}, fmt.Errorf("worker %d: send task: %w", w.id, err)
	}

	for {
		var f Frame
		if err := w.dec.Decode(&f); err != nil {
			return TaskResultPayload{}, fmt.Errorf("worker %d: read response: %w", w.id, err)
		}

		switch f.Type {
		case MsgClaimRequest:
			granted := w.tracker.TryClaim(f.ClaimReq.HeaderPath, f.ClaimReq.Owner)
			if err := w.enc.Encode(Frame{Type: MsgClaimResponse, ClaimResp: &ClaimResponsePayload{Granted: granted}}); err != nil {
				return TaskResultPayload{}, fmt.Errorf("worker %d: send claim response: %w", w.id, err)
			}
		case MsgMarkCompleted:
			w.tracker.MarkCompleted(f.MarkCompleted.HeaderPath)
		case MsgTaskResult:
			return *f.TaskResult, nil
		default:
			return TaskResultPayload{}, fmt.Errorf("worker %d: unexpected frame type %q", w.id, f.Type)
		}
	}
}

// close asks the worker to exit cleanly and waits for it.
func (w *workerConn) close() error {
	_ = w.enc.Encode(Frame{Type: MsgShutdown})
	_ = w.stdin.Close()
	return w.cmd.Wait()
}

// kill forcibly terminates a misbehaving worker, used after a crash is
// detected so the coordinator can replace it.
func (w *workerConn) kill() {
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
	}
	_ = w.cmd.Wait()
}
