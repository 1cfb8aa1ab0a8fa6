// Package consensus dispatches one judgment request to several
// independently configured annotator backends in parallel, measures how
// well they agree, and synthesizes a single consensus annotation.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"decksage/internal/annotation"
	"decksage/internal/audit"
)

// ErrAllAnnotatorsFailed reports that every configured backend failed for
// a pair. Per-annotator failures are absorbed; this is the only error
// AnnotatePair returns for backend trouble.
var ErrAllAnnotatorsFailed = errors.New("all annotators failed")

const defaultMinIAAThreshold = 0.6

// Annotator pairs one config with the backend that executes it.
type Annotator struct {
	Config  annotation.Config
	Backend annotation.Backend
}

// Options configures an Orchestrator. Zero values select the defaults.
type Options struct {
	// MinIAAThreshold is the minimum overall alpha for "medium"
	// agreement; zero selects 0.6.
	MinIAAThreshold float64
	// DisableConsensus skips building consensus annotations.
	DisableConsensus bool
	// Audit receives best-effort pipeline events; nil disables auditing.
	Audit *audit.Logger
}

// Level classifies overall agreement for one result.
type Level string

const (
	LevelHigh         Level = "high"
	LevelMedium       Level = "medium"
	LevelLow          Level = "low"
	LevelDisagreement Level = "disagreement"
)

// LevelFor buckets an overall alpha. minThreshold is the floor for
// "medium"; below 0.4 is outright disagreement.
func LevelFor(alpha, minThreshold float64) Level {
	switch {
	case alpha >= 0.8:
		return LevelHigh
	case alpha >= minThreshold:
		return LevelMedium
	case alpha >= 0.4:
		return LevelLow
	default:
		return LevelDisagreement
	}
}

// Result is the outcome of one multi-annotator run over a subject pair.
type Result struct {
	SubjectA string `json:"subject_a"`
	SubjectB string `json:"subject_b"`
	// Annotations holds the successful judgments keyed by annotator name.
	// Always non-empty.
	Annotations map[string]annotation.Annotation `json:"annotations"`
	// Consensus is present iff consensus building is enabled and at
	// least two annotators succeeded.
	Consensus      *annotation.Annotation `json:"consensus,omitempty"`
	Metrics        Metrics                `json:"iaa_metrics"`
	AgreementLevel Level                  `json:"agreement_level"`
}

// Orchestrator fans one request out to every configured annotator and
// fans the completed set back in. Safe for concurrent use.
type Orchestrator struct {
	annotators   []Annotator
	minIAA       float64
	useConsensus bool
	auditLog     *audit.Logger

	mu      sync.Mutex
	weights map[string]float64
}

// New builds an Orchestrator over at least two annotators.
func New(annotators []Annotator, opts Options) (*Orchestrator, error) {
	if len(annotators) < 2 {
		return nil, fmt.Errorf("at least 2 annotators required, got %d", len(annotators))
	}
	seen := make(map[string]struct{}, len(annotators))
	for _, a := range annotators {
		if a.Config.Name == "" {
			return nil, fmt.Errorf("annotator name is required")
		}
		if a.Backend == nil {
			return nil, fmt.Errorf("annotator %s: backend is required", a.Config.Name)
		}
		if _, dup := seen[a.Config.Name]; dup {
			return nil, fmt.Errorf("duplicate annotator name %q", a.Config.Name)
		}
		seen[a.Config.Name] = struct{}{}
	}

	minIAA := opts.MinIAAThreshold
	if minIAA == 0 {
		minIAA = defaultMinIAAThreshold
	}

	weights := make(map[string]float64, len(annotators))
	for _, a := range annotators {
		weights[a.Config.Name] = 1.0 / float64(len(annotators))
	}

	return &Orchestrator{
		annotators:   annotators,
		minIAA:       minIAA,
		useConsensus: !opts.DisableConsensus,
		auditLog:     opts.Audit,
		weights:      weights,
	}, nil
}

// MinIAAThreshold reports the configured medium-agreement floor.
func (o *Orchestrator) MinIAAThreshold() float64 {
	return o.minIAA
}

// AnnotatePair runs every configured annotator concurrently over one
// subject pair and blocks until all have returned or failed. Failed or
// malformed responses are dropped and logged; if none succeed the call
// returns ErrAllAnnotatorsFailed. pairContext is optional extra evidence
// passed through to the backends.
func (o *Orchestrator) AnnotatePair(ctx context.Context, subjectA, subjectB, pairContext string) (*Result, error) {
	req := annotation.Request{
		SubjectA: subjectA,
		SubjectB: subjectB,
		Context:  pairContext,
	}

	type outcome struct {
		name string
		ann  *annotation.Annotation
		err  error
	}

	outcomes := make([]outcome, len(o.annotators))
	var wg sync.WaitGroup
	for i, a := range o.annotators {
		wg.Add(1)
		go func(i int, a Annotator) {
			defer wg.Done()
			ann, err := a.Backend.Annotate(ctx, a.Config, req)
			if err == nil {
				err = annotation.Validate(ann)
			}
			outcomes[i] = outcome{name: a.Config.Name, ann: ann, err: err}
		}(i, a)
	}
	wg.Wait()

	annotations := make(map[string]annotation.Annotation, len(outcomes))
	for _, oc := range outcomes {
		if oc.err != nil {
			fmt.Fprintf(os.Stderr, "annotator %s failed for %s / %s: %v\n", oc.name, subjectA, subjectB, oc.err)
			if o.auditLog != nil {
				_ = o.auditLog.LogEvent("orchestrator", audit.EventAnnotatorFailed, map[string]any{
					"annotator": oc.name,
					"subject_a": subjectA,
					"subject_b": subjectB,
					"error":     oc.err.Error(),
				})
			}
			continue
		}
		annotations[oc.name] = *oc.ann
	}

	if len(annotations) == 0 {
		return nil, fmt.Errorf("annotate %s / %s: %w", subjectA, subjectB, ErrAllAnnotatorsFailed)
	}

	metrics, err := computeIAA(annotations)
	if err != nil {
		return nil, fmt.Errorf("compute agreement for %s / %s: %w", subjectA, subjectB, err)
	}

	var cons *annotation.Annotation
	if o.useConsensus && len(annotations) >= 2 {
		cons = buildConsensus(subjectA, subjectB, annotations, metrics)
	}

	return &Result{
		SubjectA:       subjectA,
		SubjectB:       subjectB,
		Annotations:    annotations,
		Consensus:      cons,
		Metrics:        metrics,
		AgreementLevel: LevelFor(metrics.OverallAlpha, o.minIAA),
	}, nil
}

// FilterByIAA partitions results by overall alpha. A nil minAlpha uses
// the orchestrator's configured threshold.
func (o *Orchestrator) FilterByIAA(results []*Result, minAlpha *float64) (accepted, rejected []*Result) {
	floor := o.minIAA
	if minAlpha != nil {
		floor = *minAlpha
	}
	for _, result := range results {
		if result.Metrics.OverallAlpha >= floor {
			accepted = append(accepted, result)
		} else {
			rejected = append(rejected, result)
		}
	}
	return accepted, rejected
}
