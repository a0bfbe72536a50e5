// Package classify derives the operator-facing severity tier from a report's
// status and match list. It owns no state; every consumer that needs a
// severity label goes through Classify so the thresholds live in one place.
package classify

import "github.com/sightlinehq/sightline/internal/models"

// Tier is the derived severity label shown to operators.
type Tier string

const (
	TierAnalyzing      Tier = "ANALYZING"
	TierAnalysisFailed Tier = "ANALYSIS_FAILED"
	TierClean          Tier = "CLEAN"
	TierLowProbability Tier = "LOW_PROBABILITY"
	TierPossibleMatch  Tier = "POSSIBLE_MATCH"
	TierSuspectFound   Tier = "SUSPECT_FOUND"
)

// Classify maps a report's status and candidate matches to a tier.
// Thresholds are strict: a max confidence of exactly 80 is POSSIBLE_MATCH
// and exactly 50 is LOW_PROBABILITY.
func Classify(status models.ReportStatus, matches []models.Match) Tier {
	if !status.Terminal() {
		return TierAnalyzing
	}
	if status == models.StatusFailed {
		return TierAnalysisFailed
	}
	if len(matches) == 0 {
		return TierClean
	}

	max := matches[0].Confidence
	for _, m := range matches[1:] {
		if m.Confidence > max {
			max = m.Confidence
		}
	}

	switch {
	case max > 80:
		return TierSuspectFound
	case max > 50:
		return TierPossibleMatch
	default:
		return TierLowProbability
	}
}
