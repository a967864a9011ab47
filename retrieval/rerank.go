package retrieval

import "context"

type (
	// Reranker scores (query, document) pairs with a cross-encoder and
	// returns the topN documents, best first, as indices into the input
	// slice with relevance scores in [0,1].
	Reranker interface {
		Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankHit, error)
	}

	// RerankHit is one reranked document.
	RerankHit struct {
		Index          int
		RelevanceScore float64
	}
)
