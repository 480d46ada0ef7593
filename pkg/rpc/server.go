// Package rpc provides the lightweight JSON-over-TCP RPC framework the
// module serves its pipeline contract on.
//
// This is a custom implementation that avoids a full gRPC dependency while
// providing the core RPC patterns: service registration, method dispatch,
// request/response framing, and a simple client.
//
// Protocol: newline-delimited JSON over a persistent TCP connection.
//
// Example server:
//
//	s := rpc.NewServer(m)
//	s.Register("EchoService.Process", func(ctx context.Context, req json.RawMessage) (any, error) {
//	    var processReq proto.ProcessRequest
//	    json.Unmarshal(req, &processReq)
//	    // ... process ...
//	    return &proto.ProcessResponse{...}, nil
//	})
//	s.Listen(":9000")
//	s.Serve()
//
// Example client:
//
//	c, _ := rpc.Dial("localhost:9000")
//	var resp proto.ProcessResponse
//	c.Call(ctx, "EchoService.Process", &proto.ProcessRequest{...}, &resp)
package rpc

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/io-pipeline/module-echo/pkg/errors"
	"github.com/io-pipeline/module-echo/pkg/logger"
	"github.com/io-pipeline/module-echo/pkg/metrics"
	"github.com/io-pipeline/module-echo/pkg/tracing"
)

// HandlerFunc processes an RPC request and returns a response or error.
type HandlerFunc func(ctx context.Context, req json.RawMessage) (any, error)

// Request is the wire format for an RPC request.
type Request struct {
	Method string          `json:"method"`
	ID     string          `json:"id"`
	Params json.RawMessage `json:"params"`
}

// Response is the wire format for an RPC response.
type Response struct {
	ID    string `json:"id"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Server is a lightweight JSON-over-TCP RPC server.
type Server struct {
	handlers map[string]HandlerFunc
	listener net.Listener
	metrics  *metrics.Metrics
	logger   *slog.Logger
	mu       sync.RWMutex
	wg       sync.WaitGroup
	done     chan struct{}
}

// NewServer creates a new RPC server. The metrics argument may be nil, in
// which case no per-request metrics are recorded.
func NewServer(m *metrics.Metrics) *Server {
	return &Server{
		handlers: make(map[string]HandlerFunc),
		metrics:  m,
		logger:   logger.WithComponent("rpc-server"),
		done:     make(chan struct{}),
	}
}

// Register adds a handler for the given RPC method name.
// Method names follow the "Service.Method" convention.
func (s *Server) Register(method string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
	s.logger.Debug("method registered", "method", method)
}

// Listen binds the TCP listener without accepting connections yet, so
// callers can learn the bound address before serving.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound listener address, or "" before Listen.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve accepts connections on the bound listener. It blocks until Stop is
// called. Listen must have been called first.
func (s *Server) Serve() error {
	if s.listener == nil {
		return fmt.Errorf("rpc server: Serve called before Listen")
	}
	s.logger.Info("rpc server listening", "addr", s.Addr())

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
				s.logger.Error("accept error", "error", err)
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	for {
		var req Request
		if err := decoder.Decode(&req); err != nil {
			return // connection closed or read error
		}
		resp := s.dispatch(context.Background(), req)
		if err := encoder.Encode(resp); err != nil {
			s.logger.Error("write error", "method", req.Method, "error", err)
			return
		}
	}
}

// dispatch looks up the handler for req and invokes it with a
// request-scoped context carrying a request id and a trace span.
func (s *Server) dispatch(ctx context.Context, req Request) Response {
	resp := Response{ID: req.ID}

	s.mu.RLock()
	handler, exists := s.handlers[req.Method]
	s.mu.RUnlock()
	if !exists {
		resp.Error = fmt.Errorf("%w: %s", errors.ErrUnknownMethod, req.Method).Error()
		if s.metrics != nil {
			s.metrics.RPCRequestsTotal.WithLabelValues(req.Method, "unknown_method").Inc()
		}
		return resp
	}

	requestID := newRequestID()
	ctx = logger.WithRequestID(ctx, requestID)
	ctx, span := tracing.StartSpan(ctx, req.Method, requestID)
	span.SetAttr("rpc_id", req.ID)

	if s.metrics != nil {
		s.metrics.RPCRequestsInFlight.Inc()
	}
	start := time.Now()
	data, err := handler(ctx, req.Params)
	elapsed := time.Since(start)
	span.End()
	span.Log()

	status := "ok"
	if err != nil {
		status = "error"
		resp.Error = err.Error()
	} else {
		resp.Data = data
	}
	if s.metrics != nil {
		s.metrics.RPCRequestsInFlight.Dec()
		s.metrics.RPCRequestsTotal.WithLabelValues(req.Method, status).Inc()
		s.metrics.RPCRequestDuration.WithLabelValues(req.Method).Observe(elapsed.Seconds())
	}
	return resp
}

// MethodCount returns the number of registered methods.
func (s *Server) MethodCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() {
	close(s.done)
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	s.logger.Info("rpc server stopped")
}

func newRequestID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "0000000000000000"
	}
	return hex.EncodeToString(b[:])
}
