// Package proto defines the shared message types of the pipeline module
// contract: the process request/response pair exchanged with the pipeline
// engine, the document schema the module passes through, and the
// registration metadata returned to the platform.
//
// These types mirror the platform's Protocol Buffer definitions and are
// hand-written for zero-dependency usage. They use JSON struct tags for
// serialization over the lightweight JSON-over-TCP RPC layer (see pkg/rpc).
package proto

// ---------- Document ----------

// Document is the structured unit of content flowing through the pipeline.
// The echo module treats it as opaque except for SearchMetadata.Tags; every
// other field, including CustomFields, is carried through unchanged.
type Document struct {
	ID             string          `json:"id"`
	Title          string          `json:"title,omitempty"`
	Body           string          `json:"body,omitempty"`
	SourceURI      string          `json:"source_uri,omitempty"`
	Keywords       []string        `json:"keywords,omitempty"`
	SearchMetadata *SearchMetadata `json:"search_metadata,omitempty"`
	CreatedAt      int64           `json:"created_at,omitempty"`
}

// SearchMetadata holds the search-facing annotations of a document: the
// string tag map used to record processing provenance and arbitrarily typed
// custom fields owned by upstream modules.
type SearchMetadata struct {
	Tags         map[string]string `json:"tags,omitempty"`
	CustomFields map[string]any    `json:"custom_fields,omitempty"`
}

// ---------- Process ----------

// ServiceMetadata describes the pipeline position of a process call.
type ServiceMetadata struct {
	PipelineName     string            `json:"pipeline_name,omitempty"`
	PipeStepName     string            `json:"pipe_step_name,omitempty"`
	StreamID         string            `json:"stream_id,omitempty"`
	CurrentHopNumber int32             `json:"current_hop_number,omitempty"`
	ContextParams    map[string]string `json:"context_params,omitempty"`
}

// ProcessConfiguration carries per-step configuration from the pipeline
// definition. The echo module accepts but does not interpret it.
type ProcessConfiguration struct {
	CustomConfig map[string]any    `json:"custom_config,omitempty"`
	ConfigParams map[string]string `json:"config_params,omitempty"`
}

// ProcessRequest is the input to the Process and TestProcess RPCs. Document
// and Metadata are independently optional.
type ProcessRequest struct {
	Document *Document             `json:"document,omitempty"`
	Metadata *ServiceMetadata      `json:"metadata,omitempty"`
	Config   *ProcessConfiguration `json:"config,omitempty"`
}

// ErrorDetails describes a processing failure.
type ErrorDetails struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ProcessResponse is the output of the Process and TestProcess RPCs.
// OutputDocument is present iff the request carried a Document.
type ProcessResponse struct {
	Success        bool          `json:"success"`
	OutputDocument *Document     `json:"output_document,omitempty"`
	ProcessorLogs  []string      `json:"processor_logs,omitempty"`
	ErrorDetails   *ErrorDetails `json:"error_details,omitempty"`
}

// ---------- Registration ----------

// RegistrationRequest is the input to the GetRegistration RPC. TestRequest,
// when present, is processed as a health-check probe.
type RegistrationRequest struct {
	TestRequest *ProcessRequest `json:"test_request,omitempty"`
}

// RegistrationMetadata describes the module to the platform registry and
// carries the outcome of the optional health-check probe.
type RegistrationMetadata struct {
	ModuleName            string            `json:"module_name"`
	Version               string            `json:"version"`
	DisplayName           string            `json:"display_name"`
	Description           string            `json:"description"`
	Owner                 string            `json:"owner"`
	Tags                  []string          `json:"tags"`
	ServerInfo            string            `json:"server_info,omitempty"`
	SDKVersion            string            `json:"sdk_version,omitempty"`
	Metadata              map[string]string `json:"metadata,omitempty"`
	RegistrationTimestamp int64             `json:"registration_timestamp"`
	HealthCheckPassed     bool              `json:"health_check_passed"`
	HealthCheckMessage    string            `json:"health_check_message,omitempty"`
}

// ---------- Capture ----------

// CapturedDocument is the event published to the capture topic when
// processing-buffer support is enabled. It records the processed document
// together with its pipeline position at capture time.
type CapturedDocument struct {
	Document   *Document `json:"document"`
	StreamID   string    `json:"stream_id,omitempty"`
	StepName   string    `json:"step_name,omitempty"`
	CapturedAt int64     `json:"captured_at"`
}
