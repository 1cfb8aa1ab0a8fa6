// Package uncertainty scores candidate subject pairs by how uncertain
// and informative a human annotation of them would be, so annotation
// budget goes to the pairs worth checking first.
package uncertainty

import (
	"fmt"
	"math"
	"os"
	"sort"
)

// Signal type tags, in descending reporting priority.
const (
	TypeModelDisagreement     = "model_disagreement"
	TypeAmbiguousRelationship = "ambiguous_relationship"
	TypeLowEvidence           = "low_evidence"
	TypeEdgeCase              = "edge_case"
	TypeColdStart             = "cold_start"
)

const (
	DefaultTopK           = 50
	DefaultMinUncertainty = 0.3
)

// Pair identifies an unordered candidate subject pair.
type Pair struct {
	A string `json:"subject_a"`
	B string `json:"subject_b"`
}

// SignalProvider supplies relationship evidence for a pair. Either
// return may be nil when the provider has nothing for the pair.
type SignalProvider interface {
	PairSignal(a, b string) (strength *float64, evidenceCount *int)
}

// Oracle scores a pair's similarity. ok is false when the oracle does
// not know both subjects.
type Oracle interface {
	Name() string
	Score(a, b string) (score float64, ok bool)
}

// PairUncertainty is the scored verdict for one candidate pair. It is
// recomputed on demand and only persisted if the pair is escalated.
type PairUncertainty struct {
	SubjectA             string             `json:"subject_a"`
	SubjectB             string             `json:"subject_b"`
	UncertaintyScore     float64            `json:"uncertainty_score"`
	InformativenessScore float64            `json:"informativeness_score"`
	CombinedScore        float64            `json:"combined_score"`
	Type                 string             `json:"uncertainty_type"`
	RelationshipStrength *float64           `json:"relationship_strength,omitempty"`
	EvidenceCount        *int               `json:"evidence_count,omitempty"`
	OracleScores         map[string]float64 `json:"oracle_scores,omitempty"`
	DiversityScore       *float64           `json:"diversity_score,omitempty"`
}

// Selector blends the available signals into uncertainty scores. Both
// collaborators are optional; a missing signal is simply excluded from
// the blend.
type Selector struct {
	signals SignalProvider
	oracles []Oracle
}

func NewSelector(signals SignalProvider, oracles ...Oracle) *Selector {
	return &Selector{signals: signals, oracles: oracles}
}

// ComputeUncertainty scores one pair. Signals that fire are combined as
// a weighted average: model disagreement 0.5, ambiguous relationship
// 0.3, everything else 0.1. With no signal at all the pair is a cold
// start and gets a fixed moderate score of 0.5.
func (s *Selector) ComputeUncertainty(a, b string) PairUncertainty {
	var magnitudes []float64
	var types []string

	var strength *float64
	var evidence *int
	if s.signals != nil {
		strength, evidence = s.signals.PairSignal(a, b)
	}

	if strength != nil && *strength >= 0.3 && *strength <= 0.7 {
		magnitudes = append(magnitudes, 1.0-math.Abs(*strength-0.5)/0.2)
		types = append(types, TypeAmbiguousRelationship)
	}

	oracleScores := make(map[string]float64)
	var predictions []float64
	for _, oracle := range s.oracles {
		score, ok := oracle.Score(a, b)
		if !ok {
			continue
		}
		oracleScores[oracle.Name()] = score
		predictions = append(predictions, score)
	}
	if len(predictions) >= 2 {
		magnitudes = append(magnitudes, math.Min(2*populationStd(predictions), 1.0))
		types = append(types, TypeModelDisagreement)
	}

	if evidence != nil && *evidence < 5 {
		magnitudes = append(magnitudes, (1.0-float64(*evidence)/5.0)*0.5)
		types = append(types, TypeLowEvidence)
	}

	edgeCase := strength != nil && (*strength < 0.1 || *strength > 0.9)
	if edgeCase {
		magnitudes = append(magnitudes, 0.3)
		types = append(types, TypeEdgeCase)
	}

	score := 0.5
	if len(magnitudes) > 0 {
		weighted := 0.0
		totalWeight := 0.0
		for i, t := range types {
			w := 0.1
			switch t {
			case TypeModelDisagreement:
				w = 0.5
			case TypeAmbiguousRelationship:
				w = 0.3
			}
			weighted += magnitudes[i] * w
			totalWeight += w
		}
		score = weighted / totalWeight
	}

	informativeness := score
	if edgeCase {
		informativeness = math.Min(informativeness+0.2, 1.0)
	}
	if evidence != nil && *evidence < 3 {
		informativeness = math.Min(informativeness+0.15, 1.0)
	}

	u := PairUncertainty{
		SubjectA:             a,
		SubjectB:             b,
		UncertaintyScore:     score,
		InformativenessScore: informativeness,
		CombinedScore:        0.7*score + 0.3*informativeness,
		Type:                 primaryType(types),
		RelationshipStrength: strength,
		EvidenceCount:        evidence,
	}
	if len(oracleScores) > 0 {
		u.OracleScores = oracleScores
	}
	return u
}

// primaryType picks the tag to report: model disagreement beats
// ambiguity, which beats the remaining signals in firing order.
func primaryType(types []string) string {
	if len(types) == 0 {
		return TypeColdStart
	}
	for _, t := range types {
		if t == TypeModelDisagreement {
			return t
		}
	}
	for _, t := range types {
		if t == TypeAmbiguousRelationship {
			return t
		}
	}
	return types[0]
}

// SelectUncertainPairs scores every candidate, drops those below
// minUncertainty, optionally re-blends in a diversity bonus for pairs
// touching subjects that existing pairs under-represent, and returns
// the topK highest combined scores. The minUncertainty cut is applied
// before the diversity re-blend.
func (s *Selector) SelectUncertainPairs(candidates []Pair, topK int, minUncertainty float64, useDiversity bool, existing []Pair) []PairUncertainty {
	var retained []PairUncertainty
	for _, pair := range candidates {
		u := s.ComputeUncertainty(pair.A, pair.B)
		if u.CombinedScore >= minUncertainty {
			retained = append(retained, u)
		}
	}

	if useDiversity && len(existing) > 0 {
		for i := range retained {
			shared := 0
			for _, ex := range existing {
				if retained[i].SubjectA == ex.A || retained[i].SubjectA == ex.B ||
					retained[i].SubjectB == ex.A || retained[i].SubjectB == ex.B {
					shared++
				}
			}
			diversity := 1.0 / (1.0 + 0.1*float64(shared))
			retained[i].DiversityScore = &diversity
			retained[i].CombinedScore = 0.9*retained[i].CombinedScore + 0.1*diversity
		}
	}

	sort.SliceStable(retained, func(i, j int) bool {
		return retained[i].CombinedScore > retained[j].CombinedScore
	})

	if topK >= 0 && len(retained) > topK {
		retained = retained[:topK]
	}

	fmt.Fprintf(os.Stderr, "selected %d of %d candidate pairs (min_uncertainty=%.2f, top_k=%d)\n",
		len(retained), len(candidates), minUncertainty, topK)
	return retained
}

func populationStd(values []float64) float64 {
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

// Float wraps a literal for optional signal values.
func Float(v float64) *float64 { return &v }

// Int wraps a literal for optional evidence counts.
func Int(v int) *int { return &v }
