// Package command implements the acquisition daemon's control plane:
// pause/resume/retake/abort/proceed/status (spec.md §6 "Control-plane
// inputs"), dispatched over a line-delimited JSON transport on a Unix
// domain socket, grounded on the teacher's internal/command/uds_server.go
// and uds_client.go (which wrapped a JSON-RPC 2.0 envelope around the same
// kind of request/response pair; that envelope added nothing here since
// Command/Response already carry method, params, result and error, so the
// transport was thinned to send them directly).
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"firestige.xyz/acquisitiond/internal/acqtypes"
)

// WorkerControl is the subset of Worker capability the control plane
// drives. Defined here (not imported from internal/worker) to avoid a
// command <-> worker import cycle; internal/worker.Worker satisfies it.
type WorkerControl interface {
	Pause() bool
	Resume() bool
	Retake(fovs []acqtypes.FOVID) bool
	Abort()
	Proceed() bool
	Status() any
}

// Handler dispatches control-plane commands to a WorkerControl.
type Handler struct {
	worker WorkerControl
}

// NewHandler creates a Handler driving worker.
func NewHandler(worker WorkerControl) *Handler {
	return &Handler{worker: worker}
}

// Command represents a control plane command.
type Command struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     string          `json:"id"`
}

// Response represents a command response.
type Response struct {
	ID     string     `json:"id"`
	Result any        `json:"result,omitempty"`
	Error  *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo represents an error in the response.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error codes (JSON-RPC 2.0 reserved range).
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// RetakeParams is the payload for the "retake" method.
type RetakeParams struct {
	FOVs []acqtypes.FOVID `json:"fovs"`
}

// Handle processes a command and returns a response.
func (h *Handler) Handle(ctx context.Context, cmd Command) Response {
	slog.Info("handling control command", "method", cmd.Method, "id", cmd.ID)

	switch cmd.Method {
	case "pause":
		return h.respond(cmd, map[string]any{"accepted": h.worker.Pause()}, nil)
	case "resume":
		return h.respond(cmd, map[string]any{"accepted": h.worker.Resume()}, nil)
	case "retake":
		var p RetakeParams
		if len(cmd.Params) > 0 {
			if err := json.Unmarshal(cmd.Params, &p); err != nil {
				return h.respond(cmd, nil, &ErrorInfo{Code: ErrCodeInvalidParams, Message: err.Error()})
			}
		}
		return h.respond(cmd, map[string]any{"accepted": h.worker.Retake(p.FOVs)}, nil)
	case "abort":
		h.worker.Abort()
		return h.respond(cmd, map[string]any{"accepted": true}, nil)
	case "proceed":
		return h.respond(cmd, map[string]any{"accepted": h.worker.Proceed()}, nil)
	case "status":
		return h.respond(cmd, h.worker.Status(), nil)
	default:
		return h.respond(cmd, nil, &ErrorInfo{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("unknown method %q", cmd.Method)})
	}
}

func (h *Handler) respond(cmd Command, result any, errInfo *ErrorInfo) Response {
	return Response{ID: cmd.ID, Result: result, Error: errInfo}
}
