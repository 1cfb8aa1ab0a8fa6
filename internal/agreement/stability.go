package agreement

// StabilityResult reports how consistent a single rater is with their own
// earlier ratings of the same items.
type StabilityResult struct {
	AnnotatorID        string  `json:"annotator_id"`
	Kappa              float64 `json:"kappa"`
	Interpretation     string  `json:"interpretation"`
	ExactAgreements    int     `json:"exact_agreements"`
	ExactAgreementRate float64 `json:"exact_agreement_rate"`
	WithinOne          int     `json:"within_one"`
	WithinOneRate      float64 `json:"within_one_rate"`
	NItems             int     `json:"n_items"`
	Stability          string  `json:"stability"`
}

// IntraAnnotatorAgreement measures one rater's stability between two
// rating passes over the same items, collected at different times. It
// reuses Cohen's kappa and adds exact-agreement and within-one-category
// rates. Stability buckets: high (kappa >= 0.80), moderate (>= 0.60),
// otherwise low.
func IntraAnnotatorAgreement(annotatorID string, first, second []int, minRating, maxRating int) (StabilityResult, error) {
	kappa, err := CohensKappa(first, second, minRating, maxRating)
	if err != nil {
		return StabilityResult{}, err
	}

	exact := 0
	withinOne := 0
	for i := range first {
		if first[i] == second[i] {
			exact++
		}
		diff := first[i] - second[i]
		if diff < 0 {
			diff = -diff
		}
		if diff <= 1 {
			withinOne++
		}
	}

	result := StabilityResult{
		AnnotatorID:     annotatorID,
		Kappa:           kappa.Kappa,
		Interpretation:  kappa.Interpretation,
		ExactAgreements: exact,
		WithinOne:       withinOne,
		NItems:          len(first),
	}
	if len(first) > 0 {
		result.ExactAgreementRate = float64(exact) / float64(len(first))
		result.WithinOneRate = float64(withinOne) / float64(len(first))
	}

	switch {
	case kappa.Kappa >= 0.80:
		result.Stability = "high"
	case kappa.Kappa >= 0.60:
		result.Stability = "moderate"
	default:
		result.Stability = "low"
	}

	return result, nil
}
