// Package retrieval implements hybrid retrieval over the tenant corpus:
// dense search across three vector views, sparse BM25 search over a cached
// lexical index, reciprocal rank fusion, cross-encoder reranking, and the
// confidence/escalation decision. Retrieve never fails; every downstream
// error degrades the result instead.
package retrieval

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"goa.design/clue/log"
	"golang.org/x/sync/errgroup"

	"github.com/relaydesk/relaydesk/kvstore"
	"github.com/relaydesk/relaydesk/model"
	"github.com/relaydesk/relaydesk/vector"
)

const (
	denseLimit    = 20
	sparseLimit   = 20
	fusedLimit    = 40
	finalLimit    = 8
	rerankTimeout = 10 * time.Second
)

type (
	// Options configures the retrieval service.
	Options struct {
		Model    model.Client
		Index    vector.Index
		Cache    kvstore.Store
		Reranker Reranker
	}

	// Service runs the retrieval stages.
	Service struct {
		llm      model.Client
		index    vector.Index
		cache    kvstore.Store
		reranker Reranker
	}

	// Params are the per-call escalation inputs.
	Params struct {
		EscalationThreshold float64
		MaxTurns            int
		TurnCount           int
	}

	// RankedResult is one grounding passage after reranking.
	RankedResult struct {
		ChunkID        string
		Text           string
		Payload        vector.Payload
		RelevanceScore float64
		Rank           int
	}

	// Output is the full retrieval outcome.
	Output struct {
		Results          []RankedResult
		Confidence       float64
		ShouldEscalate   bool
		EscalationReason string
		LatencyMS        int
	}
)

// New builds the retrieval service.
func New(opts Options) (*Service, error) {
	if opts.Model == nil {
		return nil, errors.New("model client is required")
	}
	if opts.Index == nil {
		return nil, errors.New("vector index is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("cache store is required")
	}
	if opts.Reranker == nil {
		return nil, errors.New("reranker is required")
	}
	return &Service{llm: opts.Model, index: opts.Index, cache: opts.Cache, reranker: opts.Reranker}, nil
}

// Retrieve returns the top grounding passages for query with a confidence
// and escalation decision. It never returns an error: an empty corpus
// fast-exits with confidence 0 and no escalation, and every downstream
// failure degrades to a smaller or empty result set.
func (s *Service) Retrieve(ctx context.Context, query, tenantID string, p Params) Output {
	start := time.Now()
	out := s.retrieve(ctx, query, tenantID, p)
	out.LatencyMS = int(time.Since(start).Milliseconds())
	return out
}

func (s *Service) retrieve(ctx context.Context, query, tenantID string, p Params) Output {
	count, err := s.index.Count(ctx, tenantID)
	if err != nil {
		log.Warnf(ctx, "vector count failed, treating corpus as empty: %v", err)
		return Output{}
	}
	if count == 0 {
		return Output{}
	}

	var dense, sparse []candidate
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dense = s.denseSearch(gctx, query, tenantID)
		return nil
	})
	g.Go(func() error {
		sparse = s.sparseSearch(gctx, query, tenantID)
		return nil
	})
	_ = g.Wait()

	fused := fuse(dense, sparse, fusedLimit)
	results := s.rerank(ctx, query, fused)
	confidence := ComputeConfidence(results)
	escalate, reason := ShouldEscalate(confidence, p.EscalationThreshold, p.TurnCount, p.MaxTurns)
	return Output{
		Results:          results,
		Confidence:       confidence,
		ShouldEscalate:   escalate,
		EscalationReason: reason,
	}
}

// denseSearch embeds the query once and fans out one search per vector type,
// merging hits by chunk id and keeping the maximum score per chunk.
func (s *Service) denseSearch(ctx context.Context, query, tenantID string) []candidate {
	vec, err := s.llm.Embed(ctx, query)
	if err != nil {
		log.Warnf(ctx, "query embedding failed, skipping dense retrieval: %v", err)
		return nil
	}

	var (
		mu     sync.Mutex
		merged = make(map[string]*candidate)
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, vt := range []string{vector.TypeRaw, vector.TypeSummary, vector.TypeHypothetical} {
		vt := vt
		g.Go(func() error {
			hits, err := s.index.Search(gctx, tenantID, vec, denseLimit, vector.Filter{
				LatestOnly: true,
				VectorType: vt,
			})
			if err != nil {
				log.Warnf(gctx, "dense search (%s) failed: %v", vt, err)
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for _, h := range hits {
				id := h.Payload.ChunkID
				if c, ok := merged[id]; !ok || h.Score > c.DenseScore {
					merged[id] = &candidate{
						ChunkID:    id,
						Text:       h.Payload.ChunkText,
						Payload:    h.Payload,
						DenseScore: h.Score,
					}
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]candidate, 0, len(merged))
	for _, c := range merged {
		out = append(out, *c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DenseScore > out[j].DenseScore })
	return out
}

// sparseSearch scores the query against the tenant's BM25 index, building
// and caching the index from the corpus on a cache miss.
func (s *Service) sparseSearch(ctx context.Context, query, tenantID string) []candidate {
	entry := s.loadLexical(ctx, tenantID)
	if entry == nil || entry.Index.CorpusSize == 0 {
		return nil
	}
	scores := entry.Index.scores(tokenize(query))
	var out []candidate
	for _, i := range topPositive(scores, sparseLimit) {
		out = append(out, candidate{
			ChunkID: entry.ChunkIDs[i],
			Text:    entry.Texts[i],
			Payload: entry.Payloads[i],
		})
	}
	return out
}

func (s *Service) loadLexical(ctx context.Context, tenantID string) *lexicalEntry {
	key := lexicalCacheKey(tenantID)
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Warnf(ctx, "lexical cache read failed: %v", err)
	} else if ok {
		if entry := decodeLexicalEntry(raw); entry != nil {
			return entry
		}
		log.Warnf(ctx, "lexical cache entry unreadable, rebuilding")
	}

	hits, err := s.index.ScrollAll(ctx, tenantID, vector.Filter{
		LatestOnly: true,
		VectorType: vector.TypeRaw,
	})
	if err != nil {
		log.Warnf(ctx, "corpus scroll failed, skipping sparse retrieval: %v", err)
		return nil
	}
	if len(hits) == 0 {
		return nil
	}

	entry := &lexicalEntry{
		ChunkIDs: make([]string, len(hits)),
		Texts:    make([]string, len(hits)),
		Payloads: make([]vector.Payload, len(hits)),
	}
	corpus := make([][]string, len(hits))
	for i, h := range hits {
		entry.ChunkIDs[i] = h.Payload.ChunkID
		entry.Texts[i] = h.Payload.ChunkText
		entry.Payloads[i] = h.Payload
		corpus[i] = tokenize(h.Payload.ChunkText)
	}
	entry.Index = newBM25(corpus)

	if encoded, err := encodeLexicalEntry(entry); err != nil {
		log.Warnf(ctx, "lexical cache encode failed: %v", err)
	} else if err := s.cache.Set(ctx, key, encoded, lexicalCacheTTL); err != nil {
		log.Warnf(ctx, "lexical cache write failed: %v", err)
	}
	return entry
}

// rerank submits the fused candidates to the cross-encoder and converts its
// order into ranked results. Any rerank failure falls back to the first
// candidates in fusion order, scored by their dense score clamped to >= 0.
func (s *Service) rerank(ctx context.Context, query string, fused []candidate) []RankedResult {
	if len(fused) == 0 {
		return nil
	}
	texts := make([]string, len(fused))
	for i, c := range fused {
		texts[i] = c.Text
	}

	rctx, cancel := context.WithTimeout(ctx, rerankTimeout)
	defer cancel()
	hits, err := s.reranker.Rerank(rctx, query, texts, finalLimit)
	if err != nil {
		log.Warnf(ctx, "rerank failed, using fusion order: %v", err)
		return fallbackResults(fused)
	}

	var out []RankedResult
	for _, h := range hits {
		if h.Index < 0 || h.Index >= len(fused) {
			continue
		}
		c := fused[h.Index]
		out = append(out, RankedResult{
			ChunkID:        c.ChunkID,
			Text:           c.Text,
			Payload:        c.Payload,
			RelevanceScore: h.RelevanceScore,
			Rank:           len(out) + 1,
		})
	}
	if len(out) == 0 {
		return fallbackResults(fused)
	}
	return out
}

func fallbackResults(fused []candidate) []RankedResult {
	n := len(fused)
	if n > finalLimit {
		n = finalLimit
	}
	out := make([]RankedResult, 0, n)
	for i := 0; i < n; i++ {
		score := fused[i].DenseScore
		if score < 0 {
			score = 0
		}
		out = append(out, RankedResult{
			ChunkID:        fused[i].ChunkID,
			Text:           fused[i].Text,
			Payload:        fused[i].Payload,
			RelevanceScore: score,
			Rank:           i + 1,
		})
	}
	return out
}
