package annotation

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
)

// MockBackend is a deterministic, offline backend used for end-to-end
// testing of the pipeline. The judgment depends only on the subject pair,
// so repeated calls always agree.
type MockBackend struct{}

func (b *MockBackend) Name() string {
	return "mock"
}

func (b *MockBackend) Annotate(ctx context.Context, cfg Config, req Request) (*Annotation, error) {
	if req.SubjectA == "" || req.SubjectB == "" {
		return nil, errors.New("both subjects are required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	score := pairScore(req.SubjectA, req.SubjectB)

	label := "unrelated"
	switch {
	case score >= 0.8:
		label = "functional"
	case score >= 0.5:
		label = "synergy"
	}

	return &Annotation{
		SubjectA:    req.SubjectA,
		SubjectB:    req.SubjectB,
		Score:       score,
		Label:       label,
		Substitute:  score >= 0.8,
		Rationale:   fmt.Sprintf("mock judgment for %s / %s (no backend invoked)", req.SubjectA, req.SubjectB),
		AnnotatorID: cfg.Name,
		Backend:     "mock",
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}, nil
}

// pairScore hashes the pair into [0, 1), symmetric in its arguments.
func pairScore(a, b string) float64 {
	if a > b {
		a, b = b, a
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(a))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(b))
	return float64(h.Sum32()%1000) / 1000.0
}
