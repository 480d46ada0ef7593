// Package capture implements processing-buffer support: an optional
// decorator around the echo processor that records processed documents and
// publishes them to a Kafka topic for building test corpora from live
// traffic. Capture is composed around the handler at startup and is a
// no-op when disabled in configuration.
package capture

import (
	"context"
	"log/slog"

	"github.com/io-pipeline/module-echo/pkg/kafka"
	"github.com/io-pipeline/module-echo/pkg/logger"
	"github.com/io-pipeline/module-echo/pkg/metrics"
	"github.com/io-pipeline/module-echo/pkg/proto"
	"github.com/io-pipeline/module-echo/pkg/resilience"
)

// Publisher publishes capture events. *kafka.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Collector buffers captured documents on a channel and publishes them
// asynchronously so capture never blocks the processing path. Documents are
// dropped when the buffer is full, and the publisher is guarded by a
// circuit breaker so a broken broker does not back up the buffer.
type Collector struct {
	publisher Publisher
	breaker   *resilience.CircuitBreaker
	eventCh   chan *proto.CapturedDocument
	metrics   *metrics.Metrics
	logger    *slog.Logger
	done      chan struct{}
}

// NewCollector creates a Collector publishing to pub with the given buffer
// size. The metrics argument may be nil.
func NewCollector(pub Publisher, bufferSize int, m *metrics.Metrics) *Collector {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &Collector{
		publisher: pub,
		breaker:   resilience.NewCircuitBreaker("capture-publisher", resilience.CircuitBreakerConfig{}),
		eventCh:   make(chan *proto.CapturedDocument, bufferSize),
		metrics:   m,
		logger:    logger.WithComponent("capture-collector"),
		done:      make(chan struct{}),
	}
}

// Start launches the publish loop. It drains remaining buffered documents
// when ctx is cancelled.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case doc, ok := <-c.eventCh:
				if !ok {
					return
				}
				c.publish(ctx, doc)
			case <-ctx.Done():
				c.drainRemaining(ctx)
				return
			}
		}
	}()
	c.logger.Info("capture collector started", "buffer_size", cap(c.eventCh))
}

// Track enqueues a captured document without blocking. Documents are
// dropped when the buffer is full.
func (c *Collector) Track(doc *proto.CapturedDocument) {
	select {
	case c.eventCh <- doc:
		if c.metrics != nil {
			c.metrics.CaptureBufferedTotal.Inc()
		}
	default:
		if c.metrics != nil {
			c.metrics.CaptureDroppedTotal.Inc()
		}
		c.logger.Warn("captured document dropped (buffer full)")
	}
}

// BufferUsage returns the current and maximum buffer occupancy.
func (c *Collector) BufferUsage() (used, size int) {
	return len(c.eventCh), cap(c.eventCh)
}

// Close stops accepting documents and waits for the publish loop to finish.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

func (c *Collector) publish(ctx context.Context, doc *proto.CapturedDocument) {
	err := c.breaker.Execute(func() error {
		return c.publisher.Publish(ctx, kafka.Event{
			Key:   doc.Document.ID,
			Value: doc,
		})
	})
	if err != nil {
		if c.metrics != nil {
			c.metrics.CapturePublishedTotal.WithLabelValues("error").Inc()
		}
		c.logger.Error("failed to publish captured document", "doc_id", doc.Document.ID, "error", err)
		return
	}
	if c.metrics != nil {
		c.metrics.CapturePublishedTotal.WithLabelValues("ok").Inc()
	}
}

func (c *Collector) drainRemaining(ctx context.Context) {
	for {
		select {
		case doc, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.publish(ctx, doc)
		default:
			return
		}
	}
}
