// Package capturestore persists captured documents from the Kafka capture
// topic into PostgreSQL, turning live pipeline traffic into a queryable
// corpus of test documents.
package capturestore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/io-pipeline/module-echo/pkg/kafka"
	"github.com/io-pipeline/module-echo/pkg/logger"
	"github.com/io-pipeline/module-echo/pkg/metrics"
	"github.com/io-pipeline/module-echo/pkg/postgres"
	"github.com/io-pipeline/module-echo/pkg/proto"
	"github.com/io-pipeline/module-echo/pkg/resilience"
)

const schema = `
CREATE TABLE IF NOT EXISTS captured_documents (
	id          BIGSERIAL PRIMARY KEY,
	doc_id      TEXT NOT NULL,
	stream_id   TEXT NOT NULL DEFAULT '',
	step_name   TEXT NOT NULL DEFAULT '',
	document    JSONB NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL,
	stored_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS captured_documents_doc_id_idx ON captured_documents (doc_id);
`

// Store writes captured documents to PostgreSQL.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewStore creates a Store on the given client.
func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: logger.WithComponent("capture-store"),
	}
}

// EnsureSchema creates the captured_documents table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating capture schema: %w", err)
	}
	return nil
}

// Insert stores one captured document.
func (s *Store) Insert(ctx context.Context, captured *proto.CapturedDocument) error {
	if captured == nil || captured.Document == nil {
		return fmt.Errorf("captured event has no document")
	}
	doc, err := json.Marshal(captured.Document)
	if err != nil {
		return fmt.Errorf("marshaling captured document: %w", err)
	}
	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO captured_documents (doc_id, stream_id, step_name, document, captured_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		captured.Document.ID,
		captured.StreamID,
		captured.StepName,
		doc,
		time.Unix(captured.CapturedAt, 0).UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting captured document %s: %w", captured.Document.ID, err)
	}
	s.logger.Debug("captured document stored", "doc_id", captured.Document.ID)
	return nil
}

// Count returns the number of stored documents, optionally filtered by
// stream id ("" matches all).
func (s *Store) Count(ctx context.Context, streamID string) (int64, error) {
	var count int64
	var err error
	if streamID == "" {
		err = s.db.DB.QueryRowContext(ctx,
			`SELECT count(*) FROM captured_documents`).Scan(&count)
	} else {
		err = s.db.DB.QueryRowContext(ctx,
			`SELECT count(*) FROM captured_documents WHERE stream_id = $1`, streamID).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("counting captured documents: %w", err)
	}
	return count, nil
}

// Inserter persists a single captured document. *Store implements it.
type Inserter interface {
	Insert(ctx context.Context, captured *proto.CapturedDocument) error
}

// Handler returns a Kafka message handler that decodes capture events and
// persists them, retrying transient store failures with backoff. The
// metrics argument may be nil.
func Handler(ins Inserter, m *metrics.Metrics) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		captured, err := kafka.DecodeJSON[*proto.CapturedDocument](value)
		if err != nil {
			if m != nil {
				m.CaptureStoredTotal.WithLabelValues("decode_error").Inc()
			}
			return err
		}

		err = resilience.Retry(ctx, "capture-insert", resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
		}, func() error {
			return ins.Insert(ctx, captured)
		})
		if err != nil {
			if m != nil {
				m.CaptureStoredTotal.WithLabelValues("error").Inc()
			}
			return err
		}
		if m != nil {
			m.CaptureStoredTotal.WithLabelValues("ok").Inc()
		}
		return nil
	}
}
