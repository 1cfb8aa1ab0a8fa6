package consensus

import (
	"fmt"
	"sort"
	"strings"

	"decksage/internal/annotation"
)

const rationaleExcerptLen = 100

// buildConsensus synthesizes a single annotation from at least two
// successful judgments: median score (lower-middle element for even
// counts, keeping the result deterministic), majority label with ties
// broken by the lexicographically smallest label, strict boolean
// majority for the substitute flag, and a rationale citing every
// annotator. Reliability weights are deliberately not consulted here;
// see Orchestrator.UpdateWeights.
func buildConsensus(subjectA, subjectB string, annotations map[string]annotation.Annotation, m Metrics) *annotation.Annotation {
	names := sortedNames(annotations)

	scores := make([]float64, 0, len(names))
	for _, name := range names {
		scores = append(scores, annotations[name].Score)
	}
	sort.Float64s(scores)
	median := scores[(len(scores)-1)/2]

	labelCounts := make(map[string]int)
	for _, name := range names {
		labelCounts[annotations[name].Label]++
	}
	labels := make([]string, 0, len(labelCounts))
	for label := range labelCounts {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	consensusLabel := ""
	bestCount := 0
	for _, label := range labels {
		if labelCounts[label] > bestCount {
			consensusLabel = label
			bestCount = labelCounts[label]
		}
	}

	trues := 0
	for _, name := range names {
		if annotations[name].Substitute {
			trues++
		}
	}
	substitute := trues*2 > len(names)

	var b strings.Builder
	fmt.Fprintf(&b, "Consensus from %d annotators (alpha=%.2f). ", len(names), m.OverallAlpha)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, excerpt(annotations[name].Rationale)))
	}
	b.WriteString(strings.Join(parts, " | "))

	return &annotation.Annotation{
		SubjectA:    subjectA,
		SubjectB:    subjectB,
		Score:       median,
		Label:       consensusLabel,
		Substitute:  substitute,
		Rationale:   b.String(),
		AnnotatorID: "consensus",
		Backend:     "multi-annotator-consensus",
	}
}

func excerpt(s string) string {
	if len(s) <= rationaleExcerptLen {
		return s
	}
	return s[:rationaleExcerptLen]
}
