package consensus

import (
	"math"
	"testing"

	"decksage/internal/annotation"
)

func TestScoreBins(t *testing.T) {
	cases := []struct {
		score float64
		want  float64
	}{
		{0.0, 0}, {0.19, 0}, {0.2, 1}, {0.39, 1}, {0.4, 2}, {0.59, 2}, {0.6, 3}, {0.79, 3}, {0.8, 4}, {1.0, 4},
	}
	for _, tc := range cases {
		if got := scoreBin(tc.score); got != tc.want {
			t.Fatalf("scoreBin(%v) = %v, want %v", tc.score, got, tc.want)
		}
	}
}

func TestOverallAlphaBlend(t *testing.T) {
	// Same score bin and substitute flag, different labels: score and
	// substitute alphas are 1, label alpha for two raters split on one
	// item is -1 (D_o=1, D_e=0.5), so the 0.5/0.3/0.2 blend lands on 0.4.
	annotations := map[string]annotation.Annotation{
		"ann-1": {Score: 0.9, Label: "functional", Substitute: true},
		"ann-2": {Score: 0.85, Label: "synergy", Substitute: true},
	}
	m, err := computeIAA(annotations)
	if err != nil {
		t.Fatal(err)
	}
	if m.ScoreAlpha != 1.0 || m.SubstituteAlpha != 1.0 {
		t.Fatalf("score alpha = %v, substitute alpha = %v, want 1.0", m.ScoreAlpha, m.SubstituteAlpha)
	}
	if math.Abs(m.LabelAlpha-(-1.0)) > 1e-9 {
		t.Fatalf("label alpha = %v, want -1.0", m.LabelAlpha)
	}
	if math.Abs(m.OverallAlpha-0.4) > 1e-9 {
		t.Fatalf("overall alpha = %v, want 0.4", m.OverallAlpha)
	}
	if m.LabelAgreementRate != 0.0 || m.ScoreAgreementRate != 1.0 {
		t.Fatalf("agreement rates = %v / %v", m.LabelAgreementRate, m.ScoreAgreementRate)
	}
}

func TestScoreStats(t *testing.T) {
	annotations := map[string]annotation.Annotation{
		"ann-1": {Score: 0.2, Label: "synergy"},
		"ann-2": {Score: 0.8, Label: "synergy"},
	}
	m, err := computeIAA(annotations)
	if err != nil {
		t.Fatal(err)
	}
	if m.ScoreMin != 0.2 || m.ScoreMax != 0.8 {
		t.Fatalf("score range = [%v, %v], want [0.2, 0.8]", m.ScoreMin, m.ScoreMax)
	}
	if math.Abs(m.ScoreStd-0.3) > 1e-9 {
		t.Fatalf("score std = %v, want 0.3", m.ScoreStd)
	}
}
