package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/relaydesk/relaydesk/domain"
	"github.com/relaydesk/relaydesk/kvstore"
	"github.com/relaydesk/relaydesk/model"
	"github.com/relaydesk/relaydesk/retrieval"
	"github.com/relaydesk/relaydesk/store"
	"github.com/relaydesk/relaydesk/vector"
)

// upsertBatchSize is the number of points written per vector-store call.
const upsertBatchSize = 100

type (
	// Options configures the pipeline.
	Options struct {
		Parser    Parser
		Codec     Codec
		Model     model.Client
		Index     vector.Index
		Documents store.Documents
		Cache     kvstore.Store
	}

	// Pipeline runs the full ingestion flow for one document.
	Pipeline struct {
		parser   Parser
		chunker  *Chunker
		enricher *Enricher
		llm      model.Client
		index    vector.Index
		docs     store.Documents
		cache    kvstore.Store
	}
)

// New builds an ingestion pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Parser == nil {
		return nil, errors.New("parser is required")
	}
	if opts.Model == nil {
		return nil, errors.New("model client is required")
	}
	if opts.Index == nil {
		return nil, errors.New("vector index is required")
	}
	if opts.Documents == nil {
		return nil, errors.New("document store is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("cache store is required")
	}
	chunker, err := NewChunker(opts.Codec)
	if err != nil {
		return nil, err
	}
	enricher, err := NewEnricher(opts.Model)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		parser:   opts.Parser,
		chunker:  chunker,
		enricher: enricher,
		llm:      opts.Model,
		index:    opts.Index,
		docs:     opts.Documents,
		cache:    opts.Cache,
	}, nil
}

// Ingest transforms the file at path into retrievable chunks. The document
// row must already exist with status=processing. On success the document is
// marked ready and the tenant's lexical cache invalidated; on failure it is
// marked failed with the error recorded. Returns the number of points
// written.
func (p *Pipeline) Ingest(ctx context.Context, documentID, tenantID uuid.UUID, path, filename string, version int) (int, error) {
	points, chunkCount, err := p.run(ctx, documentID, tenantID, path, filename, version)
	if err != nil {
		log.Error(ctx, err, log.KV{K: "document_id", V: documentID.String()})
		if serr := p.docs.SetStatus(ctx, documentID, domain.DocumentFailed, nil, err.Error()); serr != nil {
			log.Error(ctx, serr, log.KV{K: "document_id", V: documentID.String()})
		}
		return 0, err
	}
	if serr := p.docs.SetStatus(ctx, documentID, domain.DocumentReady, &chunkCount, ""); serr != nil {
		log.Error(ctx, serr, log.KV{K: "document_id", V: documentID.String()})
		return points, serr
	}
	if cerr := retrieval.InvalidateLexicalCache(ctx, p.cache, tenantID.String()); cerr != nil {
		log.Warnf(ctx, "lexical cache invalidation failed: %v", cerr)
	}
	return points, nil
}

func (p *Pipeline) run(ctx context.Context, documentID, tenantID uuid.UUID, path, filename string, version int) (int, int, error) {
	elements, err := p.parser.Parse(ctx, path)
	if err != nil {
		return 0, 0, fmt.Errorf("parse %s: %w", filename, err)
	}
	elements = NormalizeElements(elements)
	chunks := p.chunker.Chunk(elements)
	if len(chunks) == 0 {
		return 0, 0, fmt.Errorf("no chunks produced from %s", filename)
	}
	chunks = p.enricher.Enrich(ctx, chunks)

	tid := tenantID.String()
	if err := p.index.EnsureCollection(ctx, tid); err != nil {
		return 0, 0, err
	}
	if err := p.index.MarkDocumentStale(ctx, tid, documentID.String()); err != nil {
		return 0, 0, err
	}

	now := time.Now().UTC()
	var (
		batch []vector.Point
		total int
	)
	for _, c := range chunks {
		points, err := p.embedChunk(ctx, c, documentID, tenantID, filename, version, now)
		if err != nil {
			// Raw embedding failed: the chunk is skipped entirely.
			log.Error(ctx, err, log.KV{K: "chunk_id", V: c.ID})
			continue
		}
		batch = append(batch, points...)
		for len(batch) >= upsertBatchSize {
			if err := p.index.Upsert(ctx, tid, batch[:upsertBatchSize]); err != nil {
				return total, 0, err
			}
			total += upsertBatchSize
			batch = batch[upsertBatchSize:]
		}
	}
	if len(batch) > 0 {
		if err := p.index.Upsert(ctx, tid, batch); err != nil {
			return total, 0, err
		}
		total += len(batch)
	}
	return total, len(chunks), nil
}

// embedChunk requests up to three vectors for the chunk. The raw vector is
// mandatory; summary and hypothetical vectors are attempted only when
// enrichment produced the corresponding text, and their failures only log.
func (p *Pipeline) embedChunk(ctx context.Context, c Chunk, documentID, tenantID uuid.UUID, filename string, version int, now time.Time) ([]vector.Point, error) {
	payload := vector.Payload{
		ChunkID:               c.ID,
		DocumentID:            documentID.String(),
		TenantID:              tenantID.String(),
		Filename:              filename,
		DocumentVersion:       version,
		IsLatestVersion:       true,
		SectionHeading:        c.SectionHeading,
		ElementType:           string(c.ElementType),
		ChunkText:             c.Text,
		CharCount:             len(c.Text),
		TokenCount:            c.TokenCount,
		Summary:               c.Summary,
		HypotheticalQuestions: c.Questions,
		IngestedAt:            now,
	}

	raw, err := p.llm.Embed(ctx, c.Text)
	if err != nil {
		return nil, fmt.Errorf("raw embedding for chunk %s: %w", c.ID, err)
	}
	points := []vector.Point{newPoint(raw, payload, vector.TypeRaw)}

	if c.Summary != "" {
		if vec, err := p.llm.Embed(ctx, c.Summary); err != nil {
			log.Warnf(ctx, "summary embedding failed for chunk %s: %v", c.ID, err)
		} else {
			points = append(points, newPoint(vec, payload, vector.TypeSummary))
		}
	}
	if len(c.Questions) > 0 {
		joined := ""
		for i, q := range c.Questions {
			if i > 0 {
				joined += " "
			}
			joined += q
		}
		if vec, err := p.llm.Embed(ctx, joined); err != nil {
			log.Warnf(ctx, "hypothetical embedding failed for chunk %s: %v", c.ID, err)
		} else {
			points = append(points, newPoint(vec, payload, vector.TypeHypothetical))
		}
	}
	return points, nil
}

func newPoint(vec []float32, payload vector.Payload, vectorType string) vector.Point {
	payload.VectorType = vectorType
	return vector.Point{ID: uuid.NewString(), Vector: vec, Payload: payload}
}
