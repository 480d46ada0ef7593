// Package echo implements the pipeline module contract: it echoes documents
// back with added provenance metadata, answers platform registration and
// health-check requests, and supports test processing with synthetic data.
package echo

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/io-pipeline/module-echo/pkg/config"
	"github.com/io-pipeline/module-echo/pkg/logger"
	"github.com/io-pipeline/module-echo/pkg/metrics"
	"github.com/io-pipeline/module-echo/pkg/proto"
)

// Tag keys written by the module during processing.
const (
	TagProcessedBy   = "processed_by_echo"
	TagTimestamp     = "echo_timestamp"
	TagModuleVersion = "echo_module_version"
	TagStreamID      = "echo_stream_id"
	TagStepName      = "echo_step_name"
)

const (
	moduleVersion = "1.0.0"
	sdkVersion    = "1.0.0"

	// testDocumentSeed is the fixed generator seed used when TestProcess
	// has to synthesize its own document.
	testDocumentSeed = 10101
)

// Processor is the document-processing contract of a pipeline module.
type Processor interface {
	Process(ctx context.Context, req *proto.ProcessRequest) (*proto.ProcessResponse, error)
}

// DocumentGenerator produces synthetic documents for test processing.
type DocumentGenerator interface {
	GenerateDocument(seed int64) *proto.Document
}

// Service is the echo module handler. It is stateless across calls: every
// operation builds its response from its own input only.
type Service struct {
	moduleName  string
	displayName string
	description string
	owner       string
	generator   DocumentGenerator
	metrics     *metrics.Metrics
	logger      *slog.Logger

	// probe is the processor used by registration health checks. It is the
	// service itself by default and is only swapped out in tests.
	probe Processor
}

// New creates the echo service. The module name from cfg is used verbatim
// as the processed_by_echo tag value. The metrics argument may be nil.
func New(cfg config.ModuleConfig, generator DocumentGenerator, m *metrics.Metrics) *Service {
	s := &Service{
		moduleName:  cfg.Name,
		displayName: cfg.DisplayName,
		description: cfg.Description,
		owner:       cfg.Owner,
		generator:   generator,
		metrics:     m,
		logger:      logger.WithComponent("echo-service"),
	}
	s.probe = s
	return s
}

// Process echoes the request's document back with provenance tags merged
// into its search metadata. It never fails: requests without a document get
// a success response with no output document.
func (s *Service) Process(ctx context.Context, req *proto.ProcessRequest) (*proto.ProcessResponse, error) {
	log := logger.FromContext(ctx)
	if req == nil {
		req = &proto.ProcessRequest{}
	}

	docID := "no document"
	if req.Document != nil {
		docID = req.Document.ID
	}
	log.Debug("echo service received document", "doc_id", docID)

	resp := &proto.ProcessResponse{
		Success:       true,
		ProcessorLogs: []string{"Echo service successfully processed document"},
	}

	hasDocument := "false"
	if req.Document != nil {
		hasDocument = "true"
		out := cloneDocument(req.Document)

		md := out.SearchMetadata
		if md == nil {
			md = &proto.SearchMetadata{}
		}
		tags := md.Tags
		if tags == nil {
			tags = make(map[string]string)
		}

		tags[TagProcessedBy] = s.moduleName
		tags[TagTimestamp] = time.Now().UTC().Format(time.RFC3339Nano)
		tags[TagModuleVersion] = moduleVersion
		added := 3
		if req.Metadata != nil {
			if req.Metadata.StreamID != "" {
				tags[TagStreamID] = req.Metadata.StreamID
				added++
			}
			if req.Metadata.PipeStepName != "" {
				tags[TagStepName] = req.Metadata.PipeStepName
				added++
			}
		}

		md.Tags = tags
		out.SearchMetadata = md
		resp.OutputDocument = out
		resp.ProcessorLogs = append(resp.ProcessorLogs, "Echo service added metadata to document")

		if s.metrics != nil {
			s.metrics.TagsAddedTotal.Add(float64(added))
		}
	}

	if s.metrics != nil {
		s.metrics.DocumentsProcessedTotal.WithLabelValues("process", hasDocument).Inc()
	}
	log.Debug("echo service returning success", "doc_id", docID)
	return resp, nil
}

// GetRegistration describes the module to the platform registry. When the
// request carries a test process request, it is run through the processor
// as a health-check probe; a panic during the probe is recovered into a
// failed health check and never propagates to the caller.
func (s *Service) GetRegistration(ctx context.Context, req *proto.RegistrationRequest) (*proto.RegistrationMetadata, error) {
	logger.FromContext(ctx).Debug("echo service registration requested")

	md := &proto.RegistrationMetadata{
		ModuleName:  s.moduleName,
		Version:     moduleVersion,
		DisplayName: s.displayName,
		Description: s.description,
		Owner:       s.owner,
		Tags:        []string{"pipeline-module", "echo", "processor"},
		ServerInfo:  fmt.Sprintf("%s %s", runtime.GOOS, runtime.GOARCH),
		SDKVersion:  sdkVersion,
		Metadata: map[string]string{
			"implementation_language": "Go",
			"runtime_version":         runtime.Version(),
		},
		RegistrationTimestamp: time.Now().Unix(),
	}

	if req == nil || req.TestRequest == nil {
		md.HealthCheckPassed = true
		md.HealthCheckMessage = "Service is healthy"
		s.recordHealthCheck(true)
		return md, nil
	}

	s.runHealthCheck(ctx, req.TestRequest, md)
	s.recordHealthCheck(md.HealthCheckPassed)
	return md, nil
}

// runHealthCheck processes the probe request in-process and folds the
// outcome into md. The recover block converts a genuine runtime fault into
// a failed health check; Process itself has no failure path.
func (s *Service) runHealthCheck(ctx context.Context, probe *proto.ProcessRequest, md *proto.RegistrationMetadata) {
	defer func() {
		if r := recover(); r != nil {
			logger.FromContext(ctx).Error("health check panicked", "panic", r)
			md.HealthCheckPassed = false
			md.HealthCheckMessage = fmt.Sprintf("Health check failed with exception: %v", r)
		}
	}()

	resp, err := s.probe.Process(ctx, probe)
	if err != nil {
		md.HealthCheckPassed = false
		md.HealthCheckMessage = fmt.Sprintf("Health check failed with exception: %v", err)
		return
	}

	if resp.Success {
		md.HealthCheckPassed = true
		md.HealthCheckMessage = "Echo module is healthy and functioning correctly"
		return
	}

	detail := "Unknown error"
	if resp.ErrorDetails != nil {
		detail = resp.ErrorDetails.Message
	}
	md.HealthCheckPassed = false
	md.HealthCheckMessage = "Echo module health check failed: " + detail
}

// TestProcess runs Process in test mode: a synthetic document and metadata
// are generated when the request carries no document, and every processor
// log line is marked with a [TEST] prefix.
func (s *Service) TestProcess(ctx context.Context, req *proto.ProcessRequest) (*proto.ProcessResponse, error) {
	logger.FromContext(ctx).Debug("test process requested")

	if req == nil || req.Document == nil {
		req = &proto.ProcessRequest{
			Document: s.generator.GenerateDocument(testDocumentSeed),
			Metadata: &proto.ServiceMetadata{
				StreamID:     "test-stream",
				PipeStepName: "test-step",
				PipelineName: "test-pipeline",
			},
		}
	}

	resp, err := s.Process(ctx, req)
	if err != nil {
		return nil, err
	}

	for i := range resp.ProcessorLogs {
		resp.ProcessorLogs[i] = "[TEST] " + resp.ProcessorLogs[i]
	}
	resp.ProcessorLogs = append(resp.ProcessorLogs, "[TEST] Echo module test validation completed successfully")

	if s.metrics != nil {
		s.metrics.DocumentsProcessedTotal.WithLabelValues("test_process", "true").Inc()
	}
	return resp, nil
}

func (s *Service) recordHealthCheck(passed bool) {
	if s.metrics == nil {
		return
	}
	result := "passed"
	if !passed {
		result = "failed"
	}
	s.metrics.HealthChecksTotal.WithLabelValues(result).Inc()
}

// cloneDocument returns a copy of doc that shares no mutable structure with
// the input, so tag writes never touch the caller's document.
func cloneDocument(doc *proto.Document) *proto.Document {
	out := *doc
	if doc.Keywords != nil {
		out.Keywords = append([]string(nil), doc.Keywords...)
	}
	if doc.SearchMetadata != nil {
		md := &proto.SearchMetadata{}
		if doc.SearchMetadata.Tags != nil {
			md.Tags = make(map[string]string, len(doc.SearchMetadata.Tags))
			for k, v := range doc.SearchMetadata.Tags {
				md.Tags[k] = v
			}
		}
		if doc.SearchMetadata.CustomFields != nil {
			md.CustomFields = make(map[string]any, len(doc.SearchMetadata.CustomFields))
			for k, v := range doc.SearchMetadata.CustomFields {
				md.CustomFields[k] = v
			}
		}
		out.SearchMetadata = md
	}
	return &out
}
