// Package agreement implements inter-rater reliability statistics:
// Cohen's kappa for two raters, Fleiss' kappa for many raters on
// categorical data, Krippendorff's alpha for any number of raters with
// missing data, and intra-rater stability over time.
//
// All functions are pure and hold no shared state.
package agreement

import (
	"errors"
	"fmt"
)

// ErrDimensionMismatch is returned when two rating sets that must cover
// the same items have different lengths.
var ErrDimensionMismatch = errors.New("rating sets must have the same length")

// KappaResult reports a chance-corrected two-rater agreement measurement.
type KappaResult struct {
	Kappa             float64 `json:"kappa"`
	ObservedAgreement float64 `json:"observed_agreement"`
	ExpectedAgreement float64 `json:"expected_agreement"`
	Interpretation    string  `json:"interpretation"`
	NItems            int     `json:"n_items"`
	NAgreements       int     `json:"n_agreements"`
}

// CohensKappa computes Cohen's kappa for two raters over the same items.
// Ratings outside [minRating, maxRating] do not contribute to expected
// agreement. Empty input yields a zeroed "no_data" result rather than an
// error; unequal lengths return ErrDimensionMismatch.
func CohensKappa(raterA, raterB []int, minRating, maxRating int) (KappaResult, error) {
	if len(raterA) != len(raterB) {
		return KappaResult{}, fmt.Errorf("cohens kappa: %d vs %d items: %w", len(raterA), len(raterB), ErrDimensionMismatch)
	}

	n := len(raterA)
	if n == 0 {
		return KappaResult{Interpretation: "no_data"}, nil
	}

	agreements := 0
	for i := range raterA {
		if raterA[i] == raterB[i] {
			agreements++
		}
	}
	pObserved := float64(agreements) / float64(n)

	countsA := make(map[int]int, maxRating-minRating+1)
	countsB := make(map[int]int, maxRating-minRating+1)
	for i := range raterA {
		countsA[raterA[i]]++
		countsB[raterB[i]]++
	}

	pExpected := 0.0
	for rating := minRating; rating <= maxRating; rating++ {
		freqA := float64(countsA[rating]) / float64(n)
		freqB := float64(countsB[rating]) / float64(n)
		pExpected += freqA * freqB
	}

	kappa := 0.0
	if pExpected < 1.0 {
		kappa = (pObserved - pExpected) / (1.0 - pExpected)
	}

	return KappaResult{
		Kappa:             kappa,
		ObservedAgreement: pObserved,
		ExpectedAgreement: pExpected,
		Interpretation:    kappaInterpretation(kappa),
		NItems:            n,
		NAgreements:       agreements,
	}, nil
}

// kappaInterpretation buckets a kappa value per Landis & Koch.
func kappaInterpretation(kappa float64) string {
	switch {
	case kappa < 0:
		return "no_agreement"
	case kappa <= 0.20:
		return "slight"
	case kappa <= 0.40:
		return "fair"
	case kappa <= 0.60:
		return "moderate"
	case kappa <= 0.80:
		return "substantial"
	default:
		return "almost_perfect"
	}
}
