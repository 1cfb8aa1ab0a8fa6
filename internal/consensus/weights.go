package consensus

import (
	"fmt"
	"os"

	"decksage/internal/audit"
)

// UpdateWeights folds a performance report into the per-annotator
// reliability weights with an exponential moving average:
// new = 0.7*old + 0.3*(perf/total). Unknown annotator names are ignored.
//
// The weights are advisory state tracked for future runs. The consensus
// builder does not apply them to its median or majority votes; tracking
// and application are intentionally kept separate.
func (o *Orchestrator) UpdateWeights(performance map[string]float64) {
	total := 0.0
	for _, perf := range performance {
		total += perf
	}
	if total <= 0 {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for name, perf := range performance {
		old, ok := o.weights[name]
		if !ok {
			continue
		}
		updated := 0.7*old + 0.3*(perf/total)
		o.weights[name] = updated
		fmt.Fprintf(os.Stderr, "annotator %s weight: %.3f -> %.3f\n", name, old, updated)
	}

	if o.auditLog != nil {
		_ = o.auditLog.LogEvent("orchestrator", audit.EventWeightsUpdated, o.weightsLocked())
	}
}

// Weights returns a copy of the current reliability weights.
func (o *Orchestrator) Weights() map[string]float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.weightsLocked()
}

func (o *Orchestrator) weightsLocked() map[string]float64 {
	out := make(map[string]float64, len(o.weights))
	for name, weight := range o.weights {
		out[name] = weight
	}
	return out
}
