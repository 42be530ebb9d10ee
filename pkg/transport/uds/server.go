package uds

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/activation"
)

// broadcastTimeout bounds how long one slow client can hold up an event.
const broadcastTimeout = 2 * time.Second

// HandlerFunc processes a request and returns a response data payload or error.
type HandlerFunc func(ctx context.Context, req Message) (any, error)

// Server listens on a Unix domain socket and dispatches NDJSON messages.
type Server struct {
	socketPath string
	listener   net.Listener
	activated  bool
	handlers   map[string]HandlerFunc
	clients    map[*clientConn]struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
}

// clientConn serializes writes from responses and broadcasts.
type clientConn struct {
	net.Conn
	wmu sync.Mutex
}

func (c *clientConn) writeLine(line []byte, deadline time.Duration) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if deadline > 0 {
		c.SetWriteDeadline(time.Now().Add(deadline))
		defer c.SetWriteDeadline(time.Time{})
	}
	_, err := c.Write(line)
	return err
}

// NewServer creates a new UDS server.
func NewServer(socketPath string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		socketPath: socketPath,
		handlers:   make(map[string]HandlerFunc),
		clients:    make(map[*clientConn]struct{}),
		logger:     logger,
	}
}

// Handle registers a handler for a method.
func (s *Server) Handle(method string, h HandlerFunc) {
	s.handlers[method] = h
}

// Start begins listening and serves until ctx is done. A socket passed by
// systemd socket activation is used when present; otherwise any stale
// socket file is removed and a new one is created.
func (s *Server) Start(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Listen returns the socket-activated listener if there is one, otherwise
// binds socketPath with mode 0600.
func (s *Server) Listen() (net.Listener, error) {
	listeners, err := activation.Listeners()
	if err != nil {
		s.logger.Warn("socket activation", "err", err)
	}
	for _, ln := range listeners {
		if ln != nil {
			s.mu.Lock()
			s.activated = true
			s.mu.Unlock()
			s.logger.Info("using activated socket", "addr", ln.Addr().String())
			return ln, nil
		}
	}

	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("chmod %s: %w", s.socketPath, err)
	}
	return ln, nil
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("server listening", "socket", ln.Addr().String())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil // shutting down
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept error", "err", err)
			continue
		}
		c := &clientConn{Conn: conn}
		s.mu.Lock()
		s.clients[c] = struct{}{}
		s.mu.Unlock()
		go s.handleConn(ctx, c)
	}
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Broadcast sends an event to all connected clients. A client that cannot
// take the event within broadcastTimeout is disconnected.
func (s *Server) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("broadcast marshal error", "err", err)
		return
	}
	line := append(data, '\n')

	s.mu.RLock()
	clients := make([]*clientConn, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		if err := c.writeLine(line, broadcastTimeout); err != nil {
			s.logger.Warn("dropping client", "err", err)
			c.Close()
		}
	}
}

// Shutdown cleanly stops the server.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	for c := range s.clients {
		c.Close()
	}
	activated := s.activated
	s.mu.Unlock()
	if !activated {
		os.Remove(s.socketPath)
	}
}

func (s *Server) handleConn(ctx context.Context, c *clientConn) {
	defer func() {
		c.Close()
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
	}()

	scanner := bufio.NewScanner(c)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024) // 1MB max line

	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			s.logger.Error("invalid message", "err", err)
			continue
		}

		if msg.Type != MsgTypeReq {
			continue
		}

		handler, ok := s.handlers[msg.Method]
		if !ok {
			resp := NewErrorResponse(msg.ID, msg.Method, fmt.Sprintf("unknown method: %s", msg.Method))
			s.writeMessage(c, resp)
			continue
		}

		result, err := handler(ctx, msg)
		var resp Message
		if err != nil {
			s.logger.Debug("request failed", "method", msg.Method, "err", err)
			resp = NewErrorResponse(msg.ID, msg.Method, err.Error())
		} else if resp, err = NewResponse(msg.ID, msg.Method, result); err != nil {
			resp = NewErrorResponse(msg.ID, msg.Method, fmt.Sprintf("encode response: %v", err))
		}
		s.writeMessage(c, resp)
	}
}

func (s *Server) writeMessage(c *clientConn, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("marshal response error", "err", err)
		return
	}
	data = append(data, '\n')
	if err := c.writeLine(data, 0); err != nil {
		s.logger.Error("write response error", "err", err)
	}
}
