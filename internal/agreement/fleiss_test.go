package agreement

import "testing"

func TestFleissKappaPerfectAgreement(t *testing.T) {
	ratings := map[string][]int{
		"a": {0, 1, 2, 3},
		"b": {0, 1, 2, 3},
		"c": {0, 1, 2, 3},
	}
	result, err := FleissKappa(ratings, 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	if !almostEqual(result.PBar, 1.0) {
		t.Fatalf("p_bar = %v, want 1.0", result.PBar)
	}
	if !almostEqual(result.Kappa, 1.0) {
		t.Fatalf("kappa = %v, want 1.0", result.Kappa)
	}
	if result.NCategories != 5 {
		t.Fatalf("n_categories = %d, want 5", result.NCategories)
	}
}

func TestFleissKappaSingleCategory(t *testing.T) {
	// Everyone always picks the same category: p_e = 1, kappa defined 0.
	ratings := map[string][]int{
		"a": {1, 1},
		"b": {1, 1},
	}
	result, err := FleissKappa(ratings, 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	if result.Kappa != 0 {
		t.Fatalf("kappa = %v, want 0", result.Kappa)
	}
}

func TestFleissKappaMixedAgreement(t *testing.T) {
	ratings := map[string][]int{
		"a": {0, 1, 0},
		"b": {0, 1, 1},
		"c": {0, 1, 2},
	}
	result, err := FleissKappa(ratings, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	// Items 0 and 1 agree fully, item 2 not at all.
	if !almostEqual(result.PBar, 2.0/3.0) {
		t.Fatalf("p_bar = %v, want %v", result.PBar, 2.0/3.0)
	}
	if result.Kappa <= 0 || result.Kappa >= 1 {
		t.Fatalf("kappa = %v, want in (0, 1)", result.Kappa)
	}
}

func TestFleissKappaEmptyInput(t *testing.T) {
	result, err := FleissKappa(nil, 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	if result.Interpretation != "no_data" {
		t.Fatalf("interpretation = %q, want %q", result.Interpretation, "no_data")
	}
}

func TestIntraAnnotatorAgreementStable(t *testing.T) {
	first := []int{0, 1, 2, 3, 4, 0, 2}
	second := []int{0, 1, 2, 3, 4, 0, 2}
	result, err := IntraAnnotatorAgreement("rater-1", first, second, 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	if result.Stability != "high" {
		t.Fatalf("stability = %q, want %q", result.Stability, "high")
	}
	if !almostEqual(result.ExactAgreementRate, 1.0) {
		t.Fatalf("exact agreement rate = %v, want 1.0", result.ExactAgreementRate)
	}
}

func TestIntraAnnotatorAgreementDrift(t *testing.T) {
	first := []int{0, 1, 2, 3, 4, 0}
	second := []int{1, 2, 3, 4, 0, 1}
	result, err := IntraAnnotatorAgreement("rater-2", first, second, 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	if result.Stability != "low" {
		t.Fatalf("stability = %q, want %q", result.Stability, "low")
	}
	if result.ExactAgreements != 0 {
		t.Fatalf("exact agreements = %d, want 0", result.ExactAgreements)
	}
	// All shifts except 4->0 are within one category.
	if result.WithinOne != 5 {
		t.Fatalf("within one = %d, want 5", result.WithinOne)
	}
}

func TestIntraAnnotatorAgreementDimensionMismatch(t *testing.T) {
	if _, err := IntraAnnotatorAgreement("rater-3", []int{1}, []int{1, 2}, 0, 4); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}
