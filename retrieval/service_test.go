package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/relaydesk/model"
	"github.com/relaydesk/relaydesk/vector"
)

type fakeKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeKV() *fakeKV { return &fakeKV{data: make(map[string][]byte)} }

func (f *fakeKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeKV) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeKV) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeKV) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	if v, ok := f.data[key]; ok {
		for _, c := range v {
			if c >= '0' && c <= '9' {
				n = n*10 + int64(c-'0')
			}
		}
	}
	n += delta
	f.data[key] = []byte(itoa(n))
	return n, nil
}

func (f *fakeKV) Expire(context.Context, string, time.Duration) error { return nil }

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

type fakeModel struct {
	embedErr error
}

func (f *fakeModel) Generate(context.Context, model.Request) (model.Response, error) {
	return model.Response{}, errors.New("not used")
}

func (f *fakeModel) Stream(context.Context, model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func (f *fakeModel) Embed(context.Context, string) ([]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return []float32{0.1, 0.2}, nil
}

type fakeIndex struct {
	count    uint64
	countErr error
	hits     map[string][]vector.Hit // keyed by vector type
	scroll   []vector.Hit
}

func (f *fakeIndex) EnsureCollection(context.Context, string) error { return nil }

func (f *fakeIndex) Count(context.Context, string) (uint64, error) {
	return f.count, f.countErr
}

func (f *fakeIndex) Search(_ context.Context, _ string, _ []float32, _ int, filter vector.Filter) ([]vector.Hit, error) {
	return f.hits[filter.VectorType], nil
}

func (f *fakeIndex) ScrollAll(context.Context, string, vector.Filter) ([]vector.Hit, error) {
	return f.scroll, nil
}

func (f *fakeIndex) Upsert(context.Context, string, []vector.Point) error { return nil }

func (f *fakeIndex) MarkDocumentStale(context.Context, string, string) error { return nil }

func (f *fakeIndex) DeleteDocument(context.Context, string, string) error { return nil }

type fakeReranker struct {
	hits []RerankHit
	err  error
}

func (f *fakeReranker) Rerank(context.Context, string, []string, int) ([]RerankHit, error) {
	return f.hits, f.err
}

func newService(t *testing.T, idx *fakeIndex, rr *fakeReranker) *Service {
	t.Helper()
	s, err := New(Options{Model: &fakeModel{}, Index: idx, Cache: newFakeKV(), Reranker: rr})
	require.NoError(t, err)
	return s
}

func hit(chunkID, text string, score float64) vector.Hit {
	return vector.Hit{
		ID:    chunkID,
		Score: score,
		Payload: vector.Payload{
			ChunkID:   chunkID,
			ChunkText: text,
			Filename:  "kb.pdf",
		},
	}
}

func TestRetrieveEmptyCorpus(t *testing.T) {
	s := newService(t, &fakeIndex{count: 0}, &fakeReranker{})
	out := s.Retrieve(context.Background(), "query", "t1", Params{EscalationThreshold: 0.5, MaxTurns: 10})
	assert.Empty(t, out.Results)
	assert.Zero(t, out.Confidence)
	assert.False(t, out.ShouldEscalate)
}

func TestRetrieveCountError(t *testing.T) {
	s := newService(t, &fakeIndex{countErr: errors.New("down")}, &fakeReranker{})
	out := s.Retrieve(context.Background(), "query", "t1", Params{EscalationThreshold: 0.5, MaxTurns: 10})
	assert.Empty(t, out.Results)
	assert.False(t, out.ShouldEscalate)
}

func TestRetrieveRanksAndDecides(t *testing.T) {
	idx := &fakeIndex{
		count: 3,
		hits: map[string][]vector.Hit{
			vector.TypeRaw: {
				hit("c1", "refund policy text", 0.9),
				hit("c2", "shipping text", 0.7),
			},
			vector.TypeSummary: {
				hit("c1", "refund policy text", 0.95),
			},
		},
		scroll: []vector.Hit{
			hit("c1", "refund policy text", 0),
			hit("c2", "shipping text", 0),
			hit("c3", "warranty text", 0),
		},
	}
	rr := &fakeReranker{hits: []RerankHit{
		{Index: 0, RelevanceScore: 0.92},
		{Index: 1, RelevanceScore: 0.55},
	}}
	s := newService(t, idx, rr)

	out := s.Retrieve(context.Background(), "refund policy", "t1", Params{EscalationThreshold: 0.5, MaxTurns: 10})
	require.Len(t, out.Results, 2)
	assert.Equal(t, 1, out.Results[0].Rank)
	assert.Equal(t, 0.92, out.Results[0].RelevanceScore)
	assert.InDelta(t, 0.92*0.85+0.2*0.15, out.Confidence, 1e-9)
	assert.False(t, out.ShouldEscalate)
	assert.GreaterOrEqual(t, out.LatencyMS, 0)
}

func TestRetrieveEscalatesOnLowConfidence(t *testing.T) {
	idx := &fakeIndex{
		count: 1,
		hits: map[string][]vector.Hit{
			vector.TypeRaw: {hit("c1", "vaguely related", 0.2)},
		},
	}
	rr := &fakeReranker{hits: []RerankHit{{Index: 0, RelevanceScore: 0.1}}}
	s := newService(t, idx, rr)

	out := s.Retrieve(context.Background(), "unrelated question", "t1", Params{EscalationThreshold: 0.5, MaxTurns: 10})
	require.True(t, out.ShouldEscalate)
	assert.Equal(t, "low_retrieval_confidence", out.EscalationReason)
}

func TestRerankFallback(t *testing.T) {
	t.Run("error falls back to fusion order with clamped dense score", func(t *testing.T) {
		s := newService(t, &fakeIndex{}, &fakeReranker{err: errors.New("rerank down")})
		fused := []candidate{
			{ChunkID: "a", Text: "ta", DenseScore: 0.8},
			{ChunkID: "b", Text: "tb", DenseScore: -0.2},
		}
		got := s.rerank(context.Background(), "q", fused)
		require.Len(t, got, 2)
		assert.Equal(t, 0.8, got[0].RelevanceScore)
		assert.Equal(t, 0.0, got[1].RelevanceScore)
		assert.Equal(t, 2, got[1].Rank)
	})

	t.Run("out-of-range hits are dropped, empty result falls back", func(t *testing.T) {
		s := newService(t, &fakeIndex{}, &fakeReranker{hits: []RerankHit{{Index: 7, RelevanceScore: 0.9}}})
		got := s.rerank(context.Background(), "q", cands("a"))
		require.Len(t, got, 1)
		assert.Equal(t, "a", got[0].ChunkID)
	})

	t.Run("fallback honors the final limit", func(t *testing.T) {
		s := newService(t, &fakeIndex{}, &fakeReranker{err: errors.New("down")})
		got := s.rerank(context.Background(), "q", cands("a", "b", "c", "d", "e", "f", "g", "h", "i", "j"))
		assert.Len(t, got, finalLimit)
	})

	t.Run("no candidates yields no results", func(t *testing.T) {
		s := newService(t, &fakeIndex{}, &fakeReranker{})
		assert.Empty(t, s.rerank(context.Background(), "q", nil))
	})
}

func TestSparseSearchBuildsAndCaches(t *testing.T) {
	idx := &fakeIndex{
		count: 2,
		scroll: []vector.Hit{
			hit("c1", "refund policy terms", 0),
			hit("c2", "shipping timelines", 0),
		},
	}
	s := newService(t, idx, &fakeReranker{})
	ctx := context.Background()

	got := s.sparseSearch(ctx, "refund", "t1")
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].ChunkID)

	// Second call hits the cache: results are identical even after the
	// corpus scroll would return nothing.
	idx.scroll = nil
	got = s.sparseSearch(ctx, "refund", "t1")
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].ChunkID)
}
