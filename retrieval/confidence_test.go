package retrieval

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/relaydesk/relaydesk/domain"
)

func ranked(scores ...float64) []RankedResult {
	out := make([]RankedResult, len(scores))
	for i, s := range scores {
		out[i] = RankedResult{ChunkID: string(rune('a' + i)), RelevanceScore: s, Rank: i + 1}
	}
	return out
}

func TestComputeConfidence(t *testing.T) {
	cases := []struct {
		name   string
		scores []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"single strong result", []float64{0.9}, 0.9*0.85 + 0.1*0.15},
		{"supporting results add", []float64{0.9, 0.8, 0.7}, 0.9*0.85 + 0.3*0.15},
		{"weak results do not support", []float64{0.9, 0.3, 0.1}, 0.9*0.85 + 0.1*0.15},
		{"floor is exclusive", []float64{0.9, 0.4}, 0.9*0.85 + 0.1*0.15},
		{"capped at one", []float64{1.5, 1.5, 1.5, 1.5, 1.5, 1.5, 1.5, 1.5, 1.5, 1.5}, 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, ComputeConfidence(ranked(tc.scores...)), 1e-9)
		})
	}
}

func TestComputeConfidenceBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("confidence stays within [0,1] for scores in [0,1]", prop.ForAll(
		func(scores []float64) bool {
			c := ComputeConfidence(ranked(scores...))
			return c >= 0 && c <= 1
		},
		gen.SliceOf(gen.Float64Range(0, 1)),
	))

	properties.Property("empty results always yield zero", prop.ForAll(
		func(_ int) bool {
			return ComputeConfidence(nil) == 0
		},
		gen.Int(),
	))

	properties.TestingRun(t)
}

func TestShouldEscalate(t *testing.T) {
	t.Run("below threshold escalates", func(t *testing.T) {
		esc, reason := ShouldEscalate(0.3, 0.5, 0, 10)
		assert.True(t, esc)
		assert.Equal(t, domain.EscalationLowConfidence, reason)
	})
	t.Run("at threshold does not escalate on confidence", func(t *testing.T) {
		esc, reason := ShouldEscalate(0.5, 0.5, 0, 10)
		assert.False(t, esc)
		assert.Empty(t, reason)
	})
	t.Run("turn limit escalates", func(t *testing.T) {
		esc, reason := ShouldEscalate(0.9, 0.5, 10, 10)
		assert.True(t, esc)
		assert.Equal(t, domain.EscalationMaxTurns, reason)
	})
	t.Run("low confidence wins over turn limit", func(t *testing.T) {
		esc, reason := ShouldEscalate(0.1, 0.5, 99, 10)
		assert.True(t, esc)
		assert.Equal(t, domain.EscalationLowConfidence, reason)
	})
}

func TestShouldEscalateProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("escalates exactly when a trigger holds", prop.ForAll(
		func(confidence, threshold float64, turns, maxTurns int) bool {
			esc, reason := ShouldEscalate(confidence, threshold, turns, maxTurns)
			want := confidence < threshold || turns >= maxTurns
			if esc != want {
				return false
			}
			return esc == (reason != "")
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.IntRange(0, 20),
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}
