package agreement

// FleissResult reports a multi-rater categorical kappa measurement.
type FleissResult struct {
	Kappa          float64 `json:"kappa"`
	PBar           float64 `json:"p_bar"`
	PExpected      float64 `json:"p_e"`
	Interpretation string  `json:"interpretation"`
	NItems         int     `json:"n_items"`
	NAnnotators    int     `json:"n_annotators"`
	NCategories    int     `json:"n_categories"`
}

// FleissKappa computes Fleiss' kappa for multiple raters on categorical
// ratings in [minRating, maxRating]. Each rater's slice holds one rating
// per item; short slices and out-of-range ratings are treated as missing
// assignments. Empty input yields a "no_data" result.
func FleissKappa(ratings map[string][]int, minRating, maxRating int) (FleissResult, error) {
	if len(ratings) == 0 {
		return FleissResult{Interpretation: "no_data"}, nil
	}

	nItems := 0
	for _, values := range ratings {
		if len(values) > nItems {
			nItems = len(values)
		}
	}
	nAnnotators := len(ratings)
	nCategories := maxRating - minRating + 1

	if nItems == 0 {
		return FleissResult{
			Interpretation: "no_data",
			NAnnotators:    nAnnotators,
			NCategories:    nCategories,
		}, nil
	}

	// Per-item category counts.
	itemCounts := make([]map[int]int, nItems)
	for item := range itemCounts {
		counts := make(map[int]int)
		for _, values := range ratings {
			if item >= len(values) {
				continue
			}
			rating := values[item]
			if rating < minRating || rating > maxRating {
				continue
			}
			counts[rating]++
		}
		itemCounts[item] = counts
	}

	// Category marginals p_j over all assignments.
	totalAssignments := float64(nItems * nAnnotators)
	categoryTotals := make(map[int]int)
	for _, counts := range itemCounts {
		for category, count := range counts {
			categoryTotals[category] += count
		}
	}
	pExpected := 0.0
	for _, count := range categoryTotals {
		pj := float64(count) / totalAssignments
		pExpected += pj * pj
	}

	// Per-item agreement P_i = sum n_ic(n_ic-1) / (n(n-1)).
	pBar := 0.0
	for _, counts := range itemCounts {
		totalForItem := 0
		for _, count := range counts {
			totalForItem += count
		}
		if totalForItem <= 1 {
			continue
		}
		agreement := 0.0
		for _, count := range counts {
			agreement += float64(count*(count-1)) / float64(totalForItem*(totalForItem-1))
		}
		pBar += agreement
	}
	pBar /= float64(nItems)

	kappa := 0.0
	if pExpected < 1.0 {
		kappa = (pBar - pExpected) / (1.0 - pExpected)
	}

	return FleissResult{
		Kappa:          kappa,
		PBar:           pBar,
		PExpected:      pExpected,
		Interpretation: kappaInterpretation(kappa),
		NItems:         nItems,
		NAnnotators:    nAnnotators,
		NCategories:    nCategories,
	}, nil
}
