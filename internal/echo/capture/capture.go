package capture

import (
	"context"
	"time"

	"github.com/io-pipeline/module-echo/internal/echo"
	"github.com/io-pipeline/module-echo/pkg/proto"
)

// Wrap composes capture around a processor. The returned processor forwards
// every call to inner and, when the response carries an output document,
// hands it to the collector. Processing results are never altered and a
// full capture buffer never blocks the call.
func Wrap(inner echo.Processor, collector *Collector) echo.Processor {
	return &capturingProcessor{inner: inner, collector: collector}
}

type capturingProcessor struct {
	inner     echo.Processor
	collector *Collector
}

func (p *capturingProcessor) Process(ctx context.Context, req *proto.ProcessRequest) (*proto.ProcessResponse, error) {
	resp, err := p.inner.Process(ctx, req)
	if err != nil || resp == nil || resp.OutputDocument == nil {
		return resp, err
	}

	captured := &proto.CapturedDocument{
		Document:   resp.OutputDocument,
		CapturedAt: time.Now().Unix(),
	}
	if req != nil && req.Metadata != nil {
		captured.StreamID = req.Metadata.StreamID
		captured.StepName = req.Metadata.PipeStepName
	}
	p.collector.Track(captured)
	return resp, err
}
