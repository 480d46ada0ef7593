// Package testdata synthesizes structurally rich pipeline documents for
// test processing and health probes. Output is deterministic for a given
// seed so repeated probes produce comparable documents.
package testdata

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/io-pipeline/module-echo/pkg/proto"
)

// baseTimestamp anchors generated created_at values so the same seed always
// yields the same document.
const baseTimestamp = 1700000000

var words = []string{
	"pipeline", "document", "stream", "index", "metadata", "processor",
	"shard", "segment", "token", "query", "analytics", "ingest",
	"registry", "module", "capture", "replica", "cluster", "topic",
	"schema", "payload", "offset", "partition", "checkpoint", "snapshot",
}

// Generator produces synthetic documents. The zero value is usable.
type Generator struct{}

// NewGenerator creates a Generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// GenerateDocument returns a complex document derived deterministically from
// seed: populated title, body, keywords, pre-existing tags, and typed custom
// fields, so downstream tag merging is exercised against realistic input.
func (g *Generator) GenerateDocument(seed int64) *proto.Document {
	rng := rand.New(rand.NewSource(seed))

	bodyWords := make([]string, 0, 48)
	for i := 0; i < 48; i++ {
		bodyWords = append(bodyWords, words[rng.Intn(len(words))])
	}
	keywords := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		keywords = append(keywords, words[rng.Intn(len(words))])
	}

	return &proto.Document{
		ID:        fmt.Sprintf("test-doc-%d", seed),
		Title:     fmt.Sprintf("Test Document %d", seed),
		Body:      strings.Join(bodyWords, " "),
		SourceURI: fmt.Sprintf("testdata://documents/%d", seed),
		Keywords:  keywords,
		CreatedAt: baseTimestamp + seed,
		SearchMetadata: &proto.SearchMetadata{
			Tags: map[string]string{
				"origin": "test-data-generator",
				"seed":   strconv.FormatInt(seed, 10),
			},
			// float64/bool values mirror what a JSON round-trip produces, so
			// generated documents look like documents off the wire.
			CustomFields: map[string]any{
				"word_count": float64(len(bodyWords)),
				"synthetic":  true,
				"language":   "en",
			},
		},
	}
}
