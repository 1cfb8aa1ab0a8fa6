package consensus

import (
	"math"
	"sort"

	"decksage/internal/agreement"
	"decksage/internal/annotation"
)

// Metrics summarizes per-field agreement across the successful
// annotators of one run. OverallAlpha is a fixed blend: 50% discretized
// score agreement, 30% label agreement, 20% substitute-flag agreement.
type Metrics struct {
	OverallAlpha            float64 `json:"overall_alpha"`
	ScoreAlpha              float64 `json:"score_alpha"`
	LabelAlpha              float64 `json:"label_alpha"`
	SubstituteAlpha         float64 `json:"substitute_alpha"`
	ScoreAgreementRate      float64 `json:"score_agreement_rate"`
	LabelAgreementRate      float64 `json:"label_agreement_rate"`
	SubstituteAgreementRate float64 `json:"substitute_agreement_rate"`
	NumAnnotators           int     `json:"num_annotators"`
	ScoreMin                float64 `json:"score_min"`
	ScoreMax                float64 `json:"score_max"`
	ScoreStd                float64 `json:"score_std"`
}

// scoreBin discretizes a continuous [0,1] score into five ordered bins:
// very_low, low, medium, high, very_high.
func scoreBin(score float64) float64 {
	switch {
	case score < 0.2:
		return 0
	case score < 0.4:
		return 1
	case score < 0.6:
		return 2
	case score < 0.8:
		return 3
	default:
		return 4
	}
}

// computeIAA measures agreement over one pair's annotations. With a
// single annotator there is nothing to disagree about, so the overall
// alpha short-circuits to 1.0.
func computeIAA(annotations map[string]annotation.Annotation) (Metrics, error) {
	names := sortedNames(annotations)

	if len(names) < 2 {
		m := Metrics{
			OverallAlpha:            1.0,
			ScoreAlpha:              1.0,
			LabelAlpha:              1.0,
			SubstituteAlpha:         1.0,
			ScoreAgreementRate:      1.0,
			LabelAgreementRate:      1.0,
			SubstituteAgreementRate: 1.0,
			NumAnnotators:           len(names),
		}
		if len(names) == 1 {
			score := annotations[names[0]].Score
			m.ScoreMin = score
			m.ScoreMax = score
		}
		return m, nil
	}

	// Assign each distinct label a stable numeric code for the nominal
	// alpha; any injective mapping works for an equality distance.
	labelCodes := make(map[string]float64)
	{
		var labels []string
		seen := make(map[string]struct{})
		for _, name := range names {
			label := annotations[name].Label
			if _, ok := seen[label]; !ok {
				seen[label] = struct{}{}
				labels = append(labels, label)
			}
		}
		sort.Strings(labels)
		for i, label := range labels {
			labelCodes[label] = float64(i)
		}
	}

	scoreRatings := make(map[string][]*float64, len(names))
	labelRatings := make(map[string][]*float64, len(names))
	subRatings := make(map[string][]*float64, len(names))
	for _, name := range names {
		ann := annotations[name]
		scoreRatings[name] = []*float64{agreement.Float(scoreBin(ann.Score))}
		labelRatings[name] = []*float64{agreement.Float(labelCodes[ann.Label])}
		sub := 0.0
		if ann.Substitute {
			sub = 1.0
		}
		subRatings[name] = []*float64{agreement.Float(sub)}
	}

	scoreResult, err := agreement.KrippendorffsAlpha(scoreRatings, agreement.MetricOrdinal)
	if err != nil {
		return Metrics{}, err
	}
	labelResult, err := agreement.KrippendorffsAlpha(labelRatings, agreement.MetricNominal)
	if err != nil {
		return Metrics{}, err
	}
	subResult, err := agreement.KrippendorffsAlpha(subRatings, agreement.MetricNominal)
	if err != nil {
		return Metrics{}, err
	}

	var scoreBins, labels, subs []float64
	var scores []float64
	for _, name := range names {
		ann := annotations[name]
		scoreBins = append(scoreBins, scoreBin(ann.Score))
		labels = append(labels, labelCodes[ann.Label])
		sub := 0.0
		if ann.Substitute {
			sub = 1.0
		}
		subs = append(subs, sub)
		scores = append(scores, ann.Score)
	}

	scoreMin, scoreMax, scoreStd := scoreStats(scores)

	return Metrics{
		OverallAlpha:            0.5*scoreResult.Alpha + 0.3*labelResult.Alpha + 0.2*subResult.Alpha,
		ScoreAlpha:              scoreResult.Alpha,
		LabelAlpha:              labelResult.Alpha,
		SubstituteAlpha:         subResult.Alpha,
		ScoreAgreementRate:      sharedRate(scoreBins),
		LabelAgreementRate:      sharedRate(labels),
		SubstituteAgreementRate: sharedRate(subs),
		NumAnnotators:           len(names),
		ScoreMin:                scoreMin,
		ScoreMax:                scoreMax,
		ScoreStd:                scoreStd,
	}, nil
}

// sharedRate is the fraction of annotators whose value matches at least
// one other annotator.
func sharedRate(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	counts := make(map[float64]int, len(values))
	for _, v := range values {
		counts[v]++
	}
	shared := 0
	for _, v := range values {
		if counts[v] > 1 {
			shared++
		}
	}
	return float64(shared) / float64(len(values))
}

func scoreStats(scores []float64) (min, max, std float64) {
	if len(scores) == 0 {
		return 0, 0, 0
	}
	min, max = scores[0], scores[0]
	sum := 0.0
	for _, s := range scores {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
		sum += s
	}
	mean := sum / float64(len(scores))
	variance := 0.0
	for _, s := range scores {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(scores))
	return min, max, math.Sqrt(variance)
}

func sortedNames(annotations map[string]annotation.Annotation) []string {
	names := make([]string, 0, len(annotations))
	for name := range annotations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
