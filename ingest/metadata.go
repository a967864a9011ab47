package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"goa.design/clue/log"
	"golang.org/x/sync/semaphore"

	"github.com/relaydesk/relaydesk/model"
)

// enrichConcurrency bounds the number of in-flight metadata calls.
const enrichConcurrency = 5

const metadataPrompt = `You are preparing a knowledge base chunk for retrieval.
Given the chunk below, produce a strict JSON object with exactly two fields:
"summary" — a one-sentence summary of the chunk, and
"questions" — exactly three hypothetical customer questions this chunk answers.
Return ONLY the JSON object, no prose, no markdown fences.

Chunk:
%s`

// Enricher asks the language model for a summary and three hypothetical
// questions per chunk. Failures leave the chunk's metadata empty and never
// fail ingestion.
type Enricher struct {
	llm model.Client
}

// NewEnricher builds a metadata enricher.
func NewEnricher(llm model.Client) (*Enricher, error) {
	if llm == nil {
		return nil, errors.New("model client is required")
	}
	return &Enricher{llm: llm}, nil
}

// Enrich fills Summary and Questions on each chunk in place, with bounded
// concurrency across chunks.
func (e *Enricher) Enrich(ctx context.Context, chunks []Chunk) []Chunk {
	sem := semaphore.NewWeighted(enrichConcurrency)
	var wg sync.WaitGroup
	for i := range chunks {
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Warnf(ctx, "metadata enrichment aborted: %v", err)
			break
		}
		wg.Add(1)
		go func(c *Chunk) {
			defer wg.Done()
			defer sem.Release(1)
			if err := e.enrichOne(ctx, c); err != nil {
				log.Warnf(ctx, "metadata enrichment failed for chunk %s: %v", c.ID, err)
			}
		}(&chunks[i])
	}
	wg.Wait()
	return chunks
}

func (e *Enricher) enrichOne(ctx context.Context, c *Chunk) error {
	resp, err := e.llm.Generate(ctx, model.Request{
		Prompt:      fmt.Sprintf(metadataPrompt, c.Text),
		MaxTokens:   300,
		Temperature: 0.2,
	})
	if err != nil {
		return err
	}
	var meta struct {
		Summary   string   `json:"summary"`
		Questions []string `json:"questions"`
	}
	if err := json.Unmarshal([]byte(stripFences(resp.Text)), &meta); err != nil {
		return fmt.Errorf("parse metadata json: %w", err)
	}
	c.Summary = meta.Summary
	c.Questions = meta.Questions
	return nil
}

// stripFences removes a surrounding markdown code fence when the model adds
// one despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
