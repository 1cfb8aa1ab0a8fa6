package agreement

import (
	"fmt"
	"sort"
)

// Metric selects the distance function used by Krippendorff's alpha.
type Metric string

const (
	MetricNominal  Metric = "nominal"
	MetricOrdinal  Metric = "ordinal"
	MetricInterval Metric = "interval"
	MetricRatio    Metric = "ratio"
)

// AlphaResult reports a Krippendorff's alpha measurement.
type AlphaResult struct {
	Alpha                float64 `json:"alpha"`
	ObservedDisagreement float64 `json:"observed_disagreement"`
	ExpectedDisagreement float64 `json:"expected_disagreement"`
	Interpretation       string  `json:"interpretation"`
	NItems               int     `json:"n_items"`
	NAnnotators          int     `json:"n_annotators"`
	NPairs               int     `json:"n_pairs"`
	Metric               Metric  `json:"metric"`
}

// KrippendorffsAlpha computes alpha = 1 - D_o/D_e over an item-by-rater
// matrix. Each rater's slice holds one rating per item; nil entries mark
// missing ratings, and short slices are padded with missing values.
//
// Items with fewer than two valid ratings are excluded from observed
// disagreement, but their non-missing values still contribute to the
// marginal distribution behind expected disagreement. When D_e is zero,
// alpha is 1 if D_o is also zero and 0 otherwise.
func KrippendorffsAlpha(ratings map[string][]*float64, metric Metric) (AlphaResult, error) {
	distance, err := distanceFunc(metric)
	if err != nil {
		return AlphaResult{}, err
	}

	if len(ratings) == 0 {
		return AlphaResult{Interpretation: "no_data", Metric: metric}, nil
	}

	raters := make([]string, 0, len(ratings))
	nItems := 0
	for name, values := range ratings {
		raters = append(raters, name)
		if len(values) > nItems {
			nItems = len(values)
		}
	}
	sort.Strings(raters)

	if nItems == 0 {
		return AlphaResult{
			Interpretation: "no_data",
			NAnnotators:    len(raters),
			Metric:         metric,
		}, nil
	}

	// Observed disagreement: average pairwise distance within each item
	// that has at least two valid ratings.
	dObserved := 0.0
	nPairs := 0
	for item := 0; item < nItems; item++ {
		var valid []float64
		for _, name := range raters {
			values := ratings[name]
			if item < len(values) && values[item] != nil {
				valid = append(valid, *values[item])
			}
		}
		if len(valid) < 2 {
			continue
		}
		for i := 0; i < len(valid); i++ {
			for j := i + 1; j < len(valid); j++ {
				dObserved += distance(valid[i], valid[j])
				nPairs++
			}
		}
	}
	if nPairs > 0 {
		dObserved /= float64(nPairs)
	}

	// Expected disagreement: expectation of the distance over ordered
	// value pairs drawn from the pooled marginal distribution.
	marginal := make(map[float64]int)
	total := 0
	for _, name := range raters {
		for _, value := range ratings[name] {
			if value != nil {
				marginal[*value]++
				total++
			}
		}
	}

	dExpected := 1.0
	if total > 0 {
		dExpected = 0.0
		for v1, c1 := range marginal {
			for v2, c2 := range marginal {
				p1 := float64(c1) / float64(total)
				p2 := float64(c2) / float64(total)
				dExpected += p1 * p2 * distance(v1, v2)
			}
		}
	}

	var alpha float64
	if dExpected == 0 {
		if dObserved == 0 {
			alpha = 1.0
		}
	} else {
		alpha = 1.0 - dObserved/dExpected
	}

	return AlphaResult{
		Alpha:                alpha,
		ObservedDisagreement: dObserved,
		ExpectedDisagreement: dExpected,
		Interpretation:       alphaInterpretation(alpha),
		NItems:               nItems,
		NAnnotators:          len(raters),
		NPairs:               nPairs,
		Metric:               metric,
	}, nil
}

func distanceFunc(metric Metric) (func(a, b float64) float64, error) {
	switch metric {
	case MetricNominal:
		return func(a, b float64) float64 {
			if a == b {
				return 0
			}
			return 1
		}, nil
	case MetricOrdinal, MetricInterval:
		return func(a, b float64) float64 {
			d := a - b
			return d * d
		}, nil
	case MetricRatio:
		return func(a, b float64) float64 {
			if a == 0 && b == 0 {
				return 0
			}
			if a == 0 || b == 0 {
				return 1
			}
			r := (a - b) / ((a + b) / 2)
			return r * r
		}, nil
	default:
		return nil, fmt.Errorf("unknown alpha metric: %q", metric)
	}
}

// alphaInterpretation buckets an alpha value per Krippendorff's
// reliability cutoffs.
func alphaInterpretation(alpha float64) string {
	switch {
	case alpha < 0:
		return "no_agreement"
	case alpha <= 0.67:
		return "unreliable"
	case alpha <= 0.80:
		return "tentative"
	default:
		return "reliable"
	}
}

// Float is a convenience constructor for a present rating value.
func Float(v float64) *float64 {
	return &v
}
