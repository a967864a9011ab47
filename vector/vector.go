// Package vector defines the vector index port. The production driver lives
// in features/vector/qdrant; tests use in-memory fakes.
package vector

import (
	"context"
	"time"
)

// Vector types stored per chunk. Every chunk carries a raw vector; summary
// and hypothetical vectors exist only when metadata enrichment produced the
// corresponding text.
const (
	TypeRaw          = "raw"
	TypeSummary      = "summary"
	TypeHypothetical = "hypothetical"
)

type (
	// Index is the tenant-scoped vector store surface. Every method operates
	// on the tenant's dedicated collection.
	Index interface {
		// EnsureCollection creates the tenant collection if it does not
		// exist. Idempotent.
		EnsureCollection(ctx context.Context, tenantID string) error
		// Count returns the number of points in the tenant collection,
		// zero when the collection does not exist.
		Count(ctx context.Context, tenantID string) (uint64, error)
		// Search returns the nearest points to vec matching filter, best
		// first.
		Search(ctx context.Context, tenantID string, vec []float32, limit int, filter Filter) ([]Hit, error)
		// ScrollAll pages through every point matching filter. Scores are
		// zero; only payloads are meaningful.
		ScrollAll(ctx context.Context, tenantID string, filter Filter) ([]Hit, error)
		// Upsert writes points into the tenant collection.
		Upsert(ctx context.Context, tenantID string, points []Point) error
		// MarkDocumentStale clears the latest-version flag on every point of
		// the given document. Called before a new version is written.
		MarkDocumentStale(ctx context.Context, tenantID, documentID string) error
		// DeleteDocument removes every point belonging to the document.
		DeleteDocument(ctx context.Context, tenantID, documentID string) error
	}

	// Filter narrows a search or scroll. Zero-valued fields do not filter.
	Filter struct {
		LatestOnly bool
		VectorType string
		DocumentID string
	}

	// Point is one stored vector with its payload.
	Point struct {
		ID      string
		Vector  []float32
		Payload Payload
	}

	// Hit is a search result.
	Hit struct {
		ID      string
		Score   float64
		Payload Payload
	}

	// Payload is the metadata stored with every vector. All three vectors of
	// a chunk share the same payload except for VectorType.
	Payload struct {
		ChunkID               string
		DocumentID            string
		TenantID              string
		Filename              string
		DocumentVersion       int
		IsLatestVersion       bool
		SectionHeading        string
		ElementType           string
		ChunkText             string
		CharCount             int
		TokenCount            int
		Summary               string
		HypotheticalQuestions []string
		VectorType            string
		IngestedAt            time.Time
	}
)

// CollectionName returns the per-tenant collection name.
func CollectionName(tenantID string) string { return "tenant_" + tenantID }
