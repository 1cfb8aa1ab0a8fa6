package consensus

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"decksage/internal/annotation"
)

type funcBackend struct {
	name string
	fn   func(ctx context.Context, cfg annotation.Config, req annotation.Request) (*annotation.Annotation, error)
}

func (b funcBackend) Name() string { return b.name }

func (b funcBackend) Annotate(ctx context.Context, cfg annotation.Config, req annotation.Request) (*annotation.Annotation, error) {
	return b.fn(ctx, cfg, req)
}

// fixed returns a backend that always produces the same judgment.
func fixed(score float64, label string, substitute bool) funcBackend {
	return funcBackend{
		name: "fixed",
		fn: func(_ context.Context, cfg annotation.Config, req annotation.Request) (*annotation.Annotation, error) {
			return &annotation.Annotation{
				SubjectA:    req.SubjectA,
				SubjectB:    req.SubjectB,
				Score:       score,
				Label:       label,
				Substitute:  substitute,
				Rationale:   fmt.Sprintf("%s judged %v", cfg.Name, score),
				AnnotatorID: cfg.Name,
			}, nil
		},
	}
}

func failing() funcBackend {
	return funcBackend{
		name: "failing",
		fn: func(context.Context, annotation.Config, annotation.Request) (*annotation.Annotation, error) {
			return nil, errors.New("backend timeout")
		},
	}
}

func newOrchestrator(t *testing.T, backends []annotation.Backend) *Orchestrator {
	t.Helper()
	annotators := make([]Annotator, len(backends))
	for i, backend := range backends {
		annotators[i] = Annotator{
			Config:  annotation.Config{Name: fmt.Sprintf("ann-%d", i+1)},
			Backend: backend,
		}
	}
	o, err := New(annotators, Options{})
	if err != nil {
		t.Fatal(err)
	}
	return o
}

func TestNewRequiresTwoAnnotators(t *testing.T) {
	_, err := New([]Annotator{{Config: annotation.Config{Name: "solo"}, Backend: fixed(0.5, "synergy", false)}}, Options{})
	if err == nil {
		t.Fatal("expected error for single annotator")
	}
}

func TestAnnotatePairPartialFailure(t *testing.T) {
	o := newOrchestrator(t, []annotation.Backend{
		fixed(0.9, "functional", true),
		fixed(0.85, "functional", true),
		failing(),
	})

	result, err := o.AnnotatePair(context.Background(), "Sol Ring", "Mana Crypt", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Annotations) != 2 {
		t.Fatalf("annotations = %d, want 2", len(result.Annotations))
	}
	if result.Consensus == nil {
		t.Fatal("consensus missing with 2 successful annotators")
	}
	if result.Metrics.NumAnnotators != 2 {
		t.Fatalf("num_annotators = %d, want 2", result.Metrics.NumAnnotators)
	}
}

func TestAnnotatePairAllFailed(t *testing.T) {
	o := newOrchestrator(t, []annotation.Backend{failing(), failing(), failing()})

	_, err := o.AnnotatePair(context.Background(), "a", "b", "")
	if !errors.Is(err, ErrAllAnnotatorsFailed) {
		t.Fatalf("err = %v, want ErrAllAnnotatorsFailed", err)
	}
}

func TestAnnotatePairDropsMalformed(t *testing.T) {
	o := newOrchestrator(t, []annotation.Backend{
		fixed(0.7, "synergy", false),
		fixed(1.5, "synergy", false), // out-of-range score must be dropped
	})

	result, err := o.AnnotatePair(context.Background(), "a", "b", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Annotations) != 1 {
		t.Fatalf("annotations = %d, want 1", len(result.Annotations))
	}
}

func TestSingleSuccessShortCircuits(t *testing.T) {
	o := newOrchestrator(t, []annotation.Backend{fixed(0.7, "synergy", false), failing()})

	result, err := o.AnnotatePair(context.Background(), "a", "b", "")
	if err != nil {
		t.Fatal(err)
	}
	if result.Metrics.OverallAlpha != 1.0 {
		t.Fatalf("overall alpha = %v, want 1.0 (trivial agreement)", result.Metrics.OverallAlpha)
	}
	if result.Consensus != nil {
		t.Fatal("consensus must require at least 2 annotations")
	}
	if result.AgreementLevel != LevelHigh {
		t.Fatalf("agreement level = %q, want %q", result.AgreementLevel, LevelHigh)
	}
}

func TestPerfectAgreement(t *testing.T) {
	o := newOrchestrator(t, []annotation.Backend{
		fixed(0.9, "functional", true),
		fixed(0.9, "functional", true),
		fixed(0.9, "functional", true),
	})

	result, err := o.AnnotatePair(context.Background(), "a", "b", "")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(result.Metrics.OverallAlpha-1.0) > 1e-9 {
		t.Fatalf("overall alpha = %v, want 1.0", result.Metrics.OverallAlpha)
	}
	if result.AgreementLevel != LevelHigh {
		t.Fatalf("agreement level = %q, want %q", result.AgreementLevel, LevelHigh)
	}
}

func TestConsensusMedianScore(t *testing.T) {
	o := newOrchestrator(t, []annotation.Backend{
		fixed(0.2, "synergy", false),
		fixed(0.9, "synergy", true),
		fixed(0.9, "synergy", true),
	})

	result, err := o.AnnotatePair(context.Background(), "a", "b", "")
	if err != nil {
		t.Fatal(err)
	}
	if result.Consensus == nil {
		t.Fatal("consensus missing")
	}
	if result.Consensus.Score != 0.9 {
		t.Fatalf("consensus score = %v, want 0.9", result.Consensus.Score)
	}
	if !result.Consensus.Substitute {
		t.Fatal("substitute = false, want true (2 of 3)")
	}
	if result.Consensus.AnnotatorID != "consensus" {
		t.Fatalf("annotator id = %q, want %q", result.Consensus.AnnotatorID, "consensus")
	}
}

func TestConsensusEvenCountUsesLowerMiddle(t *testing.T) {
	o := newOrchestrator(t, []annotation.Backend{
		fixed(0.4, "synergy", false),
		fixed(0.2, "synergy", false),
	})

	result, err := o.AnnotatePair(context.Background(), "a", "b", "")
	if err != nil {
		t.Fatal(err)
	}
	if result.Consensus.Score != 0.2 {
		t.Fatalf("consensus score = %v, want lower-middle 0.2", result.Consensus.Score)
	}
}

func TestConsensusLabelTieBreakLexicographic(t *testing.T) {
	o := newOrchestrator(t, []annotation.Backend{
		fixed(0.5, "synergy", false),
		fixed(0.5, "functional", false),
	})

	result, err := o.AnnotatePair(context.Background(), "a", "b", "")
	if err != nil {
		t.Fatal(err)
	}
	if result.Consensus.Label != "functional" {
		t.Fatalf("consensus label = %q, want %q (lexicographic tie-break)", result.Consensus.Label, "functional")
	}
}

func TestLevelForBuckets(t *testing.T) {
	cases := []struct {
		alpha float64
		want  Level
	}{
		{0.85, LevelHigh},
		{0.65, LevelMedium},
		{0.45, LevelLow},
		{0.1, LevelDisagreement},
	}
	for _, tc := range cases {
		if got := LevelFor(tc.alpha, 0.6); got != tc.want {
			t.Fatalf("LevelFor(%v, 0.6) = %q, want %q", tc.alpha, got, tc.want)
		}
	}
}

func TestFilterByIAA(t *testing.T) {
	o := newOrchestrator(t, []annotation.Backend{fixed(0.5, "synergy", false), fixed(0.5, "synergy", false)})

	results := []*Result{
		{Metrics: Metrics{OverallAlpha: 0.9}},
		{Metrics: Metrics{OverallAlpha: 0.3}},
		{Metrics: Metrics{OverallAlpha: 0.6}},
	}

	accepted, rejected := o.FilterByIAA(results, nil)
	if len(accepted) != 2 || len(rejected) != 1 {
		t.Fatalf("accepted = %d, rejected = %d, want 2 and 1", len(accepted), len(rejected))
	}

	strict := 0.95
	accepted, rejected = o.FilterByIAA(results, &strict)
	if len(accepted) != 0 || len(rejected) != 3 {
		t.Fatalf("accepted = %d, rejected = %d, want 0 and 3", len(accepted), len(rejected))
	}
}

func TestUpdateWeights(t *testing.T) {
	o := newOrchestrator(t, []annotation.Backend{
		fixed(0.5, "synergy", false),
		fixed(0.5, "synergy", false),
		fixed(0.5, "synergy", false),
	})

	weights := o.Weights()
	for name, weight := range weights {
		if math.Abs(weight-1.0/3.0) > 1e-9 {
			t.Fatalf("initial weight for %s = %v, want 1/3", name, weight)
		}
	}

	o.UpdateWeights(map[string]float64{"ann-1": 1.0, "ann-2": 0.0, "ann-3": 0.0})

	updated := o.Weights()
	want := 0.7*(1.0/3.0) + 0.3*1.0
	if math.Abs(updated["ann-1"]-want) > 1e-9 {
		t.Fatalf("ann-1 weight = %v, want %v", updated["ann-1"], want)
	}
	wantOther := 0.7 * (1.0 / 3.0)
	if math.Abs(updated["ann-2"]-wantOther) > 1e-9 {
		t.Fatalf("ann-2 weight = %v, want %v", updated["ann-2"], wantOther)
	}

	// Mutating the returned map must not touch orchestrator state.
	updated["ann-1"] = 99
	if o.Weights()["ann-1"] == 99 {
		t.Fatal("Weights must return a copy")
	}
}

func TestUpdateWeightsIgnoresZeroTotal(t *testing.T) {
	o := newOrchestrator(t, []annotation.Backend{fixed(0.5, "synergy", false), fixed(0.5, "synergy", false)})
	before := o.Weights()
	o.UpdateWeights(map[string]float64{"ann-1": 0, "ann-2": 0})
	after := o.Weights()
	for name := range before {
		if before[name] != after[name] {
			t.Fatalf("weight for %s changed on zero-total update", name)
		}
	}
}
