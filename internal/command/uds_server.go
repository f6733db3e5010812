// Package command implements command channels.
package command

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
)

// UDSServer serves the acquisition control plane over a Unix domain
// socket: one Command per line in, one Response per line out. There is
// no JSON-RPC 2.0 envelope — Command/Response (handler.go) already carry
// everything a caller needs, so the wire format is just those structs,
// newline-delimited.
type UDSServer struct {
	socketPath string
	handler    *Handler
	listener   net.Listener

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	wg      sync.WaitGroup
	stopped bool
}

// NewUDSServer creates a new UDS server.
func NewUDSServer(socketPath string, handler *Handler) *UDSServer {
	return &UDSServer{
		socketPath: socketPath,
		handler:    handler,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Start starts the UDS server. Blocks until ctx is cancelled or an error
// occurs binding the socket.
func (s *UDSServer) Start(ctx context.Context) error {
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("remove existing control socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on control socket %s: %w", s.socketPath, err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("chmod control socket: %w", err)
	}

	slog.Info("control socket listening", "socket", s.socketPath)

	go s.acceptLoop(ctx)

	<-ctx.Done()
	slog.Info("control socket stopping", "reason", ctx.Err())

	return s.Stop()
}

func (s *UDSServer) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			stopped := s.stopped
			s.mu.Unlock()

			if stopped {
				return
			}

			slog.Error("accept control connection", "error", err)
			continue
		}

		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

// handleConnection serves one client connection: every line it sends is
// decoded as a Command and dispatched to the handler, which produces one
// Response line in return. The connection stays open across multiple
// commands until the client closes it or the server shuts down.
func (s *UDSServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	slog.Debug("control connection established", "remote", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		var cmd Command
		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
			encoder.Encode(Response{Error: &ErrorInfo{
				Code:    ErrCodeParseError,
				Message: fmt.Sprintf("parse error: %v", err),
			}})
			continue
		}

		resp := s.handler.Handle(ctx, cmd)

		if err := encoder.Encode(resp); err != nil {
			slog.Error("send control response", "error", err)
			return
		}
	}

	if err := scanner.Err(); err != nil {
		slog.Error("control connection error", "error", err)
	}

	slog.Debug("control connection closed", "remote", conn.RemoteAddr())
}

// Stop stops the UDS server. Idempotent.
func (s *UDSServer) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	os.RemoveAll(s.socketPath)

	slog.Info("control socket stopped")
	return nil
}
