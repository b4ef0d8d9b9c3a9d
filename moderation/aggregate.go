package moderation

import (
	"math"
	"time"
)

// Aggregate folds per-comment results into a Summary. Spam means a resolved
// classification whose recommended action is delete; unresolved comments are
// counted on their own and never as spam or clean.
func Aggregate(videoID string, dryRun bool, results []ProcessingResult, t Thresholds, errorsCount int, elapsed time.Duration) Summary {
	s := Summary{
		VideoID:        videoID,
		DryRun:         dryRun,
		TotalComments:  len(results),
		SpamCategories: make(map[SpamType]int),
		RiskLevels:     make(map[RiskLevel]int),
		ErrorsCount:    errorsCount,
		ProcessingTime: elapsed,
	}

	for _, r := range results {
		c := r.Classification
		if c.Unresolved() {
			s.Unclassifiable++
		} else {
			s.AnalyzedComments++
			if c.RecommendedAction == ActionDelete {
				s.SpamDetected++
				s.SpamCategories[c.SpamType]++
				s.RiskLevels[c.RiskLevel]++
				if c.Confidence >= t.HighRisk {
					s.HighConfidenceSpam++
				}
			} else {
				s.CleanComments++
			}
		}

		if r.DeletionStatus == nil {
			continue
		}
		switch r.DeletionStatus.State {
		case StateDeleted:
			s.DeletedCount++
		case StateFailed:
			s.FailedDeletions++
		case StateNotAttempted:
			s.NotAttempted++
		}
	}

	s.SpamRatePercent = percent(s.SpamDetected, s.TotalComments)
	s.DeletionRatePct = percent(s.DeletedCount, s.SpamDetected)
	return s
}

func percent(n, of int) float64 {
	if of == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(of)*10000) / 100
}
