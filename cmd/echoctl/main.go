// echoctl is a small client for poking a running echo module: it sends
// process, test-process, or registration calls over the RPC port and prints
// the response as indented JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/io-pipeline/module-echo/internal/echo"
	"github.com/io-pipeline/module-echo/pkg/proto"
	"github.com/io-pipeline/module-echo/pkg/rpc"
)

func main() {
	addr := flag.String("addr", "localhost:9000", "echo module RPC address")
	op := flag.String("op", "test", "operation: process | test | register")
	docPath := flag.String("doc", "", "path to a document JSON file ('-' for stdin)")
	stream := flag.String("stream", "", "stream id to send in service metadata")
	step := flag.String("step", "", "pipe step name to send in service metadata")
	pipeline := flag.String("pipeline", "", "pipeline name to send in service metadata")
	probe := flag.Bool("probe", false, "include a health-check probe in register calls")
	timeout := flag.Duration("timeout", 10*time.Second, "call timeout")
	flag.Parse()

	client, err := rpc.Dial(*addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var result any
	switch *op {
	case "process":
		req, err := buildProcessRequest(*docPath, *stream, *step, *pipeline)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		var resp proto.ProcessResponse
		if err := client.Call(ctx, echo.MethodProcess, req, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "process call failed: %v\n", err)
			os.Exit(1)
		}
		result = &resp
	case "test":
		var req *proto.ProcessRequest
		if *docPath != "" {
			req, err = buildProcessRequest(*docPath, *stream, *step, *pipeline)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
				os.Exit(1)
			}
		}
		var resp proto.ProcessResponse
		if err := client.Call(ctx, echo.MethodTestProcess, req, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "test process call failed: %v\n", err)
			os.Exit(1)
		}
		result = &resp
	case "register":
		req := &proto.RegistrationRequest{}
		if *probe {
			req.TestRequest = &proto.ProcessRequest{}
		}
		var resp proto.RegistrationMetadata
		if err := client.Call(ctx, echo.MethodGetRegistration, req, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "registration call failed: %v\n", err)
			os.Exit(1)
		}
		result = &resp
	default:
		fmt.Fprintf(os.Stderr, "unknown operation %q (want process, test, or register)\n", *op)
		os.Exit(2)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encoding response: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func buildProcessRequest(docPath, stream, step, pipeline string) (*proto.ProcessRequest, error) {
	req := &proto.ProcessRequest{}
	if docPath != "" {
		var data []byte
		var err error
		if docPath == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(docPath)
		}
		if err != nil {
			return nil, fmt.Errorf("reading document: %w", err)
		}
		var doc proto.Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing document JSON: %w", err)
		}
		req.Document = &doc
	}
	if stream != "" || step != "" || pipeline != "" {
		req.Metadata = &proto.ServiceMetadata{
			StreamID:     stream,
			PipeStepName: step,
			PipelineName: pipeline,
		}
	}
	return req, nil
}
