// Package qdrant implements the vector.Index port on the Qdrant gRPC client.
// Each tenant owns one collection named tenant_<id> with cosine distance.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/relaydesk/relaydesk/vector"
)

const scrollPageSize = 256

type (
	// Options configures the Qdrant driver.
	Options struct {
		Host   string
		Port   int
		APIKey string
		UseTLS bool
		// VectorSize is the embedding dimensionality used when creating
		// collections. Defaults to 1536.
		VectorSize uint64
	}

	// Index implements vector.Index via a Qdrant client.
	Index struct {
		client *qdrant.Client
		dim    uint64
	}
)

// New connects to Qdrant and returns the driver.
func New(opts Options) (*Index, error) {
	if opts.Host == "" {
		return nil, errors.New("qdrant host is required")
	}
	dim := opts.VectorSize
	if dim == 0 {
		dim = 1536
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   opts.Host,
		Port:   opts.Port,
		APIKey: opts.APIKey,
		UseTLS: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant client: %w", err)
	}
	return &Index{client: client, dim: dim}, nil
}

// EnsureCollection creates the tenant collection when it does not exist.
func (x *Index) EnsureCollection(ctx context.Context, tenantID string) error {
	name := vector.CollectionName(tenantID)
	exists, err := x.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("qdrant collection exists %s: %w", name, err)
	}
	if exists {
		return nil
	}
	err = x.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     x.dim,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection %s: %w", name, err)
	}
	return nil
}

// Count returns the number of points in the tenant collection, zero when the
// collection does not exist.
func (x *Index) Count(ctx context.Context, tenantID string) (uint64, error) {
	name := vector.CollectionName(tenantID)
	exists, err := x.client.CollectionExists(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("qdrant collection exists %s: %w", name, err)
	}
	if !exists {
		return 0, nil
	}
	n, err := x.client.Count(ctx, &qdrant.CountPoints{CollectionName: name})
	if err != nil {
		return 0, fmt.Errorf("qdrant count %s: %w", name, err)
	}
	return n, nil
}

// Search returns the nearest points to vec matching filter.
func (x *Index) Search(ctx context.Context, tenantID string, vec []float32, limit int, filter vector.Filter) ([]vector.Hit, error) {
	name := vector.CollectionName(tenantID)
	points, err := x.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vec...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		Filter:         toFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query %s: %w", name, err)
	}
	hits := make([]vector.Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, vector.Hit{
			ID:      p.GetId().GetUuid(),
			Score:   float64(p.GetScore()),
			Payload: fromPayload(p.GetPayload()),
		})
	}
	return hits, nil
}

// ScrollAll pages through every point matching filter.
func (x *Index) ScrollAll(ctx context.Context, tenantID string, filter vector.Filter) ([]vector.Hit, error) {
	name := vector.CollectionName(tenantID)
	var (
		hits   []vector.Hit
		offset *qdrant.PointId
	)
	for {
		resp, err := x.client.GetPointsClient().Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: name,
			Filter:         toFilter(filter),
			Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
			WithPayload:    qdrant.NewWithPayload(true),
			Offset:         offset,
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant scroll %s: %w", name, err)
		}
		for _, p := range resp.GetResult() {
			hits = append(hits, vector.Hit{
				ID:      p.GetId().GetUuid(),
				Payload: fromPayload(p.GetPayload()),
			})
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			return hits, nil
		}
	}
}

// Upsert writes points into the tenant collection.
func (x *Index) Upsert(ctx context.Context, tenantID string, points []vector.Point) error {
	if len(points) == 0 {
		return nil
	}
	name := vector.CollectionName(tenantID)
	upserts := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		upserts = append(upserts, &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: toPayload(p.Payload),
		})
	}
	_, err := x.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Points:         upserts,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert %s: %w", name, err)
	}
	return nil
}

// MarkDocumentStale clears is_latest_version on every point of the document.
func (x *Index) MarkDocumentStale(ctx context.Context, tenantID, documentID string) error {
	name := vector.CollectionName(tenantID)
	_, err := x.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: name,
		Payload:        qdrant.NewValueMap(map[string]any{"is_latest_version": false}),
		PointsSelector: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("document_id", documentID)},
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant set payload %s: %w", name, err)
	}
	return nil
}

// DeleteDocument removes every point belonging to the document.
func (x *Index) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	name := vector.CollectionName(tenantID)
	_, err := x.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: name,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("document_id", documentID)},
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant delete %s: %w", name, err)
	}
	return nil
}

func toFilter(f vector.Filter) *qdrant.Filter {
	var must []*qdrant.Condition
	if f.LatestOnly {
		must = append(must, qdrant.NewMatchBool("is_latest_version", true))
	}
	if f.VectorType != "" {
		must = append(must, qdrant.NewMatch("vector_type", f.VectorType))
	}
	if f.DocumentID != "" {
		must = append(must, qdrant.NewMatch("document_id", f.DocumentID))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

func toPayload(p vector.Payload) map[string]*qdrant.Value {
	questions := make([]any, len(p.HypotheticalQuestions))
	for i, q := range p.HypotheticalQuestions {
		questions[i] = q
	}
	return qdrant.NewValueMap(map[string]any{
		"chunk_id":               p.ChunkID,
		"document_id":            p.DocumentID,
		"tenant_id":              p.TenantID,
		"filename":               p.Filename,
		"document_version":       int64(p.DocumentVersion),
		"is_latest_version":      p.IsLatestVersion,
		"section_heading":        p.SectionHeading,
		"element_type":           p.ElementType,
		"chunk_text":             p.ChunkText,
		"char_count":             int64(p.CharCount),
		"token_count":            int64(p.TokenCount),
		"summary":                p.Summary,
		"hypothetical_questions": questions,
		"vector_type":            p.VectorType,
		"ingested_at":            p.IngestedAt.UTC().Format(time.RFC3339),
	})
}

func fromPayload(m map[string]*qdrant.Value) vector.Payload {
	p := vector.Payload{
		ChunkID:         m["chunk_id"].GetStringValue(),
		DocumentID:      m["document_id"].GetStringValue(),
		TenantID:        m["tenant_id"].GetStringValue(),
		Filename:        m["filename"].GetStringValue(),
		DocumentVersion: int(m["document_version"].GetIntegerValue()),
		IsLatestVersion: m["is_latest_version"].GetBoolValue(),
		SectionHeading:  m["section_heading"].GetStringValue(),
		ElementType:     m["element_type"].GetStringValue(),
		ChunkText:       m["chunk_text"].GetStringValue(),
		CharCount:       int(m["char_count"].GetIntegerValue()),
		TokenCount:      int(m["token_count"].GetIntegerValue()),
		Summary:         m["summary"].GetStringValue(),
		VectorType:      m["vector_type"].GetStringValue(),
	}
	for _, v := range m["hypothetical_questions"].GetListValue().GetValues() {
		p.HypotheticalQuestions = append(p.HypotheticalQuestions, v.GetStringValue())
	}
	if ts := m["ingested_at"].GetStringValue(); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			p.IngestedAt = t
		}
	}
	return p
}
