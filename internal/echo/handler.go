package echo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/io-pipeline/module-echo/pkg/errors"
	"github.com/io-pipeline/module-echo/pkg/proto"
	"github.com/io-pipeline/module-echo/pkg/rpc"
)

// RPC method names served by the module.
const (
	MethodProcess         = "EchoService.Process"
	MethodGetRegistration = "EchoService.GetRegistration"
	MethodTestProcess     = "EchoService.TestProcess"
)

var nullParams = []byte("null")

// RegisterRPC wires the module's three operations onto the RPC server.
// processor handles the Process route and is usually the service itself,
// optionally wrapped with the capture decorator at startup; registration
// and test processing always go to the service directly.
func RegisterRPC(server *rpc.Server, svc *Service, processor Processor) {
	server.Register(MethodProcess, func(ctx context.Context, raw json.RawMessage) (any, error) {
		req, err := decodeProcessRequest(raw)
		if err != nil {
			return nil, err
		}
		return processor.Process(ctx, req)
	})

	server.Register(MethodGetRegistration, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.RegistrationRequest
		if !absent(raw) {
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, fmt.Errorf("%w: decoding registration request: %v", errors.ErrInvalidInput, err)
			}
		}
		return svc.GetRegistration(ctx, &req)
	})

	server.Register(MethodTestProcess, func(ctx context.Context, raw json.RawMessage) (any, error) {
		// An absent request is valid here: TestProcess synthesizes its own.
		if absent(raw) {
			return svc.TestProcess(ctx, nil)
		}
		req, err := decodeProcessRequest(raw)
		if err != nil {
			return nil, err
		}
		return svc.TestProcess(ctx, req)
	})
}

func decodeProcessRequest(raw json.RawMessage) (*proto.ProcessRequest, error) {
	var req proto.ProcessRequest
	if absent(raw) {
		return &req, nil
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("%w: decoding process request: %v", errors.ErrInvalidInput, err)
	}
	return &req, nil
}

func absent(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, nullParams)
}
