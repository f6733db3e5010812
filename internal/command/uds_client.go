// Package command implements command channels.
package command

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// UDSClient dials the acquisition daemon's control socket and speaks the
// same line-delimited Command/Response protocol UDSServer serves — no
// JSON-RPC 2.0 envelope, just one Command per request line and one
// Response per reply line.
type UDSClient struct {
	socketPath string
	timeout    time.Duration
}

var reqSeq int64

// NewUDSClient creates a new UDS client.
func NewUDSClient(socketPath string, timeout time.Duration) *UDSClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &UDSClient{
		socketPath: socketPath,
		timeout:    timeout,
	}
}

// Call sends a command and waits for its response.
func (c *UDSClient) Call(ctx context.Context, method string, params any) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("dial control socket %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	var paramsJSON json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		paramsJSON = data
	}

	reqID := fmt.Sprintf("req-%d", atomic.AddInt64(&reqSeq, 1))
	cmd := Command{Method: method, Params: paramsJSON, ID: reqID}

	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		return nil, fmt.Errorf("send command: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		return nil, fmt.Errorf("control socket closed without a response")
	}

	var resp Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	if resp.ID != reqID {
		return nil, fmt.Errorf("response ID mismatch: sent %s, got %s", reqID, resp.ID)
	}

	return &resp, nil
}

// Pause is a convenience method for the "pause" command.
func (c *UDSClient) Pause(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "pause", nil)
}

// Resume is a convenience method for the "resume" command.
func (c *UDSClient) Resume(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "resume", nil)
}

// Retake is a convenience method for the "retake" command.
func (c *UDSClient) Retake(ctx context.Context, params RetakeParams) (*Response, error) {
	return c.Call(ctx, "retake", params)
}

// Abort is a convenience method for the "abort" command.
func (c *UDSClient) Abort(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "abort", nil)
}

// Proceed is a convenience method for the "proceed" command.
func (c *UDSClient) Proceed(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "proceed", nil)
}

// Status is a convenience method for the "status" command.
func (c *UDSClient) Status(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "status", nil)
}

// Ping checks whether the daemon is alive, via the status command.
func (c *UDSClient) Ping(ctx context.Context) error {
	_, err := c.Status(ctx)
	return err
}
