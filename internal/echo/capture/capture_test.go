package capture

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/io-pipeline/module-echo/pkg/kafka"
	"github.com/io-pipeline/module-echo/pkg/proto"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []kafka.Event
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, event kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) published() []kafka.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]kafka.Event(nil), p.events...)
}

type fakeProcessor struct {
	resp *proto.ProcessResponse
	err  error
}

func (p *fakeProcessor) Process(ctx context.Context, req *proto.ProcessRequest) (*proto.ProcessResponse, error) {
	return p.resp, p.err
}

func TestCollectorPublishesTrackedDocuments(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 8, nil)
	c.Start(context.Background())

	c.Track(&proto.CapturedDocument{Document: &proto.Document{ID: "doc-1"}})
	c.Track(&proto.CapturedDocument{Document: &proto.Document{ID: "doc-2"}})
	c.Close()

	events := pub.published()
	if len(events) != 2 {
		t.Fatalf("published %d events, want 2", len(events))
	}
	if events[0].Key != "doc-1" || events[1].Key != "doc-2" {
		t.Errorf("event keys = %q, %q", events[0].Key, events[1].Key)
	}
}

func TestCollectorDropsWhenBufferFull(t *testing.T) {
	c := NewCollector(&fakePublisher{}, 1, nil)

	// Publish loop not started, so the buffer fills immediately. Track must
	// not block on the second call.
	c.Track(&proto.CapturedDocument{Document: &proto.Document{ID: "kept"}})
	c.Track(&proto.CapturedDocument{Document: &proto.Document{ID: "dropped"}})

	if got := len(c.eventCh); got != 1 {
		t.Errorf("buffered %d documents, want 1", got)
	}
}

func TestCollectorDrainsOnShutdown(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 8, nil)

	c.Track(&proto.CapturedDocument{Document: &proto.Document{ID: "queued-1"}})
	c.Track(&proto.CapturedDocument{Document: &proto.Document{ID: "queued-2"}})

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	cancel()
	<-c.done

	if got := len(pub.published()); got != 2 {
		t.Errorf("published %d events after shutdown, want 2", got)
	}
}

func TestCollectorSurvivesPublisherFailure(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	c := NewCollector(pub, 8, nil)
	c.Start(context.Background())

	c.Track(&proto.CapturedDocument{Document: &proto.Document{ID: "doc-1"}})
	c.Close()

	if got := len(pub.published()); got != 0 {
		t.Errorf("published %d events, want 0", got)
	}
}

func TestWrapCapturesOutputDocument(t *testing.T) {
	c := NewCollector(&fakePublisher{}, 4, nil)
	inner := &fakeProcessor{resp: &proto.ProcessResponse{
		Success:        true,
		OutputDocument: &proto.Document{ID: "doc-1"},
	}}
	p := Wrap(inner, c)

	resp, err := p.Process(context.Background(), &proto.ProcessRequest{
		Document: &proto.Document{ID: "doc-1"},
		Metadata: &proto.ServiceMetadata{StreamID: "stream-1", PipeStepName: "step-1"},
	})
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if resp != inner.resp {
		t.Error("capture must not replace the processing response")
	}

	select {
	case captured := <-c.eventCh:
		if captured.Document.ID != "doc-1" {
			t.Errorf("captured document id = %q", captured.Document.ID)
		}
		if captured.StreamID != "stream-1" || captured.StepName != "step-1" {
			t.Errorf("captured stream=%q step=%q", captured.StreamID, captured.StepName)
		}
		if captured.CapturedAt == 0 {
			t.Error("captured_at not set")
		}
	default:
		t.Fatal("expected a captured document in the buffer")
	}
}

func TestWrapSkipsResponsesWithoutDocument(t *testing.T) {
	c := NewCollector(&fakePublisher{}, 4, nil)
	inner := &fakeProcessor{resp: &proto.ProcessResponse{Success: true}}
	p := Wrap(inner, c)

	if _, err := p.Process(context.Background(), &proto.ProcessRequest{}); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if got := len(c.eventCh); got != 0 {
		t.Errorf("buffered %d documents, want 0", got)
	}
}

func TestWrapPropagatesProcessorError(t *testing.T) {
	c := NewCollector(&fakePublisher{}, 4, nil)
	wantErr := errors.New("processor failed")
	p := Wrap(&fakeProcessor{err: wantErr}, c)

	_, err := p.Process(context.Background(), &proto.ProcessRequest{})
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
	if got := len(c.eventCh); got != 0 {
		t.Errorf("buffered %d documents, want 0", got)
	}
}
