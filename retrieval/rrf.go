package retrieval

import (
	"sort"

	"github.com/relaydesk/relaydesk/vector"
)

// rrfK is the rank damping constant of reciprocal rank fusion.
const rrfK = 60

// candidate is a chunk flowing through the fusion and rerank stages.
type candidate struct {
	ChunkID    string
	Text       string
	Payload    vector.Payload
	DenseScore float64
	rrfScore   float64
}

// fuse combines the dense and sparse lists by reciprocal rank:
// score(chunk) = Σ_list 1/(k + rank). A chunk present in only one list still
// participates. Dense entries win payload conflicts since they carry the
// fresher score; sparse-only entries keep their own text and payload. The
// top n by fused score are returned, best first.
func fuse(dense, sparse []candidate, n int) []candidate {
	merged := make(map[string]*candidate, len(dense)+len(sparse))
	order := make([]string, 0, len(dense)+len(sparse))

	for rank, c := range dense {
		c := c
		c.rrfScore = 1 / float64(rrfK+rank+1)
		merged[c.ChunkID] = &c
		order = append(order, c.ChunkID)
	}
	for rank, c := range sparse {
		score := 1 / float64(rrfK+rank+1)
		if existing, ok := merged[c.ChunkID]; ok {
			existing.rrfScore += score
			continue
		}
		c := c
		c.rrfScore = score
		merged[c.ChunkID] = &c
		order = append(order, c.ChunkID)
	}

	out := make([]candidate, 0, len(order))
	for _, id := range order {
		out = append(out, *merged[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].rrfScore > out[j].rrfScore })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
