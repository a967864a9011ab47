package retrieval

import "github.com/relaydesk/relaydesk/domain"

// supportingScoreFloor is the relevance above which a result counts as
// supporting evidence in the confidence blend.
const supportingScoreFloor = 0.4

// ComputeConfidence maps ranked results to a confidence in [0,1]. The blend
// of top relevance and supporting-result count is canonical: downstream
// escalation thresholds are calibrated against it.
func ComputeConfidence(results []RankedResult) float64 {
	if len(results) == 0 {
		return 0
	}
	top := results[0].RelevanceScore
	supporting := 0
	for _, r := range results {
		if r.RelevanceScore > supportingScoreFloor {
			supporting++
		}
	}
	confidence := top*0.85 + (float64(supporting)/10)*0.15
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

// ShouldEscalate decides whether the turn must hand off to a human. Low
// retrieval confidence takes precedence over the turn-count limit when both
// hold.
func ShouldEscalate(confidence, threshold float64, turnCount, maxTurns int) (bool, string) {
	if confidence < threshold {
		return true, domain.EscalationLowConfidence
	}
	if turnCount >= maxTurns {
		return true, domain.EscalationMaxTurns
	}
	return false, ""
}
