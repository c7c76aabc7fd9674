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

// cie-worker is the OS-process worker pool entrypoint (spec.md §4.4). The
// coordinator spawns one of these per pool slot with --worker-mode; it is
// never launched any other way. It holds one persistent Extractor for its
// entire lifetime and speaks the coordinator's line-delimited JSON protocol
// on stdin/stdout.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/kraklabs/cie/pkg/coordinator"
	"github.com/kraklabs/cie/pkg/extractor"
)

func main() {
	args := os.Args[1:]
	workerMode := false
	for _, a := range args {
		if a == "--worker-mode" {
			workerMode = true
		}
	}
	if !workerMode {
		fmt.Fprintln(os.Stderr, "cie-worker: must be launched with --worker-mode by the coordinator")
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	if err := run(logger); err != nil {
		logger.Error("worker.fatal", "err", err)
		os.Exit(1)
	}
}

// remoteClaimer implements extractor.HeaderClaimer by round-tripping every
// claim to the coordinator process over the shared stdio pipes, since a
// cie-worker subprocess has no direct access to the coordinator's in-memory
// Header Tracker (spec.md §4.4 vs. §4.9: workers are separate OS processes).
type remoteClaimer struct {
	enc *json.Encoder
	dec *bufio.Reader
}

func (r *remoteClaimer) TryClaim(headerPath, owner string) bool {
	if err := r.enc.Encode(coordinator.Frame{
		Type:     coordinator.MsgClaimRequest,
		ClaimReq: &coordinator.ClaimRequestPayload{HeaderPath: headerPath, Owner: owner},
	}); err != nil {
		return false
	}
	line, err := r.dec.ReadBytes('\n')
	if err != nil {
		return false
	}
	var f coordinator.Frame
	if err := json.Unmarshal(line, &f); err != nil || f.ClaimResp == nil {
		return false
	}
	return f.ClaimResp.Granted
}

func (r *remoteClaimer) MarkCompleted(headerPath string) {
	_ = r.enc.Encode(coordinator.Frame{
		Type:          coordinator.MsgMarkCompleted,
		MarkCompleted: &coordinator.MarkCompletedPayload{HeaderPath: headerPath},
	})
}

func run(logger *slog.Logger) error {
	stdinReader := bufio.NewReader(os.Stdin)
	enc := json.NewEncoder(os.Stdout)

	var initFrame coordinator.Frame
	if err := readFrame(stdinReader, &initFrame); err != nil {
		return fmt.Errorf("read init frame: %w", err)
	}
	if initFrame.Type != coordinator.MsgInit || initFrame.Init == nil {
		return fmt.Errorf("expected init frame, got %q", initFrame.Type)
	}

	claimer := &remoteClaimer{enc: enc, dec: stdinReader}
	ext := extractor.New(initFrame.Init.ProjectRoot, initFrame.Init.BuildDatabaseVersion, claimer)
	defer ext.Close()

	var tasksHandled int64

	for {
		var f coordinator.Frame
		if err := readFrame(stdinReader, &f); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}

		switch f.Type {
		case coordinator.MsgTaskRequest:
			if f.TaskReq == nil {
				return fmt.Errorf("task_request frame missing payload")
			}
			result := ext.Extract(f.TaskReq.Path, f.TaskReq.Args)
			atomic.AddInt64(&tasksHandled, 1)
			out := coordinator.Frame{
				Type: coordinator.MsgTaskResult,
				TaskResult: &coordinator.TaskResultPayload{
					Symbols:        result.Symbols,
					CallSites:      result.CallSites,
					Headers:        result.Headers,
					ClaimedHeaders: result.ClaimedHeaders,
					ParseError:     result.ParseError,
				},
			}
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("send task_result for %s: %w", f.TaskReq.Path, err)
			}
		case coordinator.MsgShutdown:
			logger.Info("worker.shutdown", "tasks_handled", atomic.LoadInt64(&tasksHandled), "pid", strconv.Itoa(os.Getpid()))
			return nil
		default:
			return fmt.Errorf("unexpected frame type %q from coordinator", f.Type)
		}
	}
}

// readFrame decodes exactly one newline-delimited JSON frame, distinct from
// json.Decoder.Decode so the same bufio.Reader can be shared by
// remoteClaimer's synchronous claim round-trips without double-buffering
// input out from under the main task loop.
func readFrame(r *bufio.Reader, f *coordinator.Frame) error {
	line, err := r.ReadBytes('\n')
	if err != nil {
		if len(line) == 0 {
			return err
		}
	}
	return json.Unmarshal(line, f)
}
