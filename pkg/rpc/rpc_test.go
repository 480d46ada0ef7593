package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type echoParams struct {
	Value string `json:"value"`
}

func startTestServer(t *testing.T, register func(*Server)) string {
	t.Helper()
	s := NewServer(nil)
	register(s)
	if err := s.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go s.Serve()
	t.Cleanup(s.Stop)
	return s.Addr()
}

func TestCallRoundTrip(t *testing.T) {
	addr := startTestServer(t, func(s *Server) {
		s.Register("Test.Echo", func(ctx context.Context, req json.RawMessage) (any, error) {
			var p echoParams
			if err := json.Unmarshal(req, &p); err != nil {
				return nil, err
			}
			return &echoParams{Value: p.Value + "!"}, nil
		})
	})

	client, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	var result echoParams
	if err := client.Call(context.Background(), "Test.Echo", &echoParams{Value: "hello"}, &result); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Value != "hello!" {
		t.Errorf("result = %q, want hello!", result.Value)
	}
}

func TestCallUnknownMethod(t *testing.T) {
	addr := startTestServer(t, func(s *Server) {})

	client, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	err = client.Call(context.Background(), "Test.Missing", nil, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "unknown method: Test.Missing") {
		t.Errorf("err = %v", err)
	}
}

func TestCallHandlerError(t *testing.T) {
	addr := startTestServer(t, func(s *Server) {
		s.Register("Test.Fail", func(ctx context.Context, req json.RawMessage) (any, error) {
			return nil, errors.New("handler exploded")
		})
	})

	client, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	err = client.Call(context.Background(), "Test.Fail", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "handler exploded") {
		t.Errorf("err = %v", err)
	}
}

func TestCallSequentialRequestsOnOneConnection(t *testing.T) {
	addr := startTestServer(t, func(s *Server) {
		s.Register("Test.Echo", func(ctx context.Context, req json.RawMessage) (any, error) {
			var p echoParams
			if err := json.Unmarshal(req, &p); err != nil {
				return nil, err
			}
			return &p, nil
		})
	})

	client, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var result echoParams
			if err := client.Call(context.Background(), "Test.Echo", &echoParams{Value: "v"}, &result); err != nil {
				t.Errorf("Call: %v", err)
				return
			}
			if result.Value != "v" {
				t.Errorf("result = %q", result.Value)
			}
		}()
	}
	wg.Wait()
}

func TestCallDeadline(t *testing.T) {
	addr := startTestServer(t, func(s *Server) {
		s.Register("Test.Slow", func(ctx context.Context, req json.RawMessage) (any, error) {
			time.Sleep(500 * time.Millisecond)
			return nil, nil
		})
	})

	client, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := client.Call(ctx, "Test.Slow", nil, nil); err == nil {
		t.Error("expected a deadline error")
	}
}

func TestServeBeforeListen(t *testing.T) {
	s := NewServer(nil)
	if err := s.Serve(); err == nil {
		t.Error("expected an error from Serve without Listen")
	}
}

func TestMethodCount(t *testing.T) {
	s := NewServer(nil)
	if got := s.MethodCount(); got != 0 {
		t.Errorf("MethodCount = %d, want 0", got)
	}
	s.Register("A.B", func(ctx context.Context, req json.RawMessage) (any, error) { return nil, nil })
	s.Register("A.C", func(ctx context.Context, req json.RawMessage) (any, error) { return nil, nil })
	if got := s.MethodCount(); got != 2 {
		t.Errorf("MethodCount = %d, want 2", got)
	}
}
