package queue

import (
	"fmt"
	"sort"

	"decksage/internal/annotation"
	"decksage/internal/consensus"
	"decksage/internal/uncertainty"
)

// EscalateLowAgreement queues every result whose overall alpha falls
// below minAlpha. Priority scales with how bad the disagreement is:
// critical below 0.2, high below 0.3, medium otherwise. Returns the
// number of tasks queued.
func EscalateLowAgreement(q *Queue, results []*consensus.Result, domain string, minAlpha float64) (int, error) {
	queued := 0
	for _, result := range results {
		alpha := result.Metrics.OverallAlpha
		if alpha >= minAlpha {
			continue
		}

		priority := PriorityMedium
		switch {
		case alpha < 0.2:
			priority = PriorityCritical
		case alpha < 0.3:
			priority = PriorityHigh
		}

		metrics := result.Metrics
		_, err := q.Add(result.SubjectA, result.SubjectB, domain, priority,
			fmt.Sprintf("low inter-annotator agreement (alpha=%.3f)", alpha),
			&TaskContext{
				Annotations: annotationList(result.Annotations),
				Metrics:     &metrics,
			})
		if err != nil {
			return queued, err
		}
		queued++
	}
	return queued, nil
}

// EscalateUncertainPairs queues every pair whose combined uncertainty
// meets minUncertainty: critical at 0.9 or above, high otherwise.
// Returns the number of tasks queued.
func EscalateUncertainPairs(q *Queue, uncertainties []uncertainty.PairUncertainty, domain string, minUncertainty float64) (int, error) {
	queued := 0
	for _, u := range uncertainties {
		if u.CombinedScore < minUncertainty {
			continue
		}

		priority := PriorityHigh
		if u.CombinedScore >= 0.9 {
			priority = PriorityCritical
		}

		score := u.CombinedScore
		_, err := q.Add(u.SubjectA, u.SubjectB, domain, priority,
			fmt.Sprintf("high annotation uncertainty (score=%.3f, type=%s)", score, u.Type),
			&TaskContext{UncertaintyScore: &score})
		if err != nil {
			return queued, err
		}
		queued++
	}
	return queued, nil
}

func annotationList(byName map[string]annotation.Annotation) []annotation.Annotation {
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]annotation.Annotation, 0, len(names))
	for _, name := range names {
		out = append(out, byName[name])
	}
	return out
}
