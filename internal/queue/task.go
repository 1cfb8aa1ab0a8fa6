// Package queue is a durable, priority-ordered store of subject pairs
// escalated for human annotation, with an explicit task lifecycle state
// machine and crash-safe JSONL persistence.
package queue

import (
	"time"

	"decksage/internal/annotation"
	"decksage/internal/consensus"
)

// Status is a task's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusSubmitted  Status = "submitted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
	StatusFailed     Status = "failed"
)

// allowedTransitions is the closed set of legal status moves. Tasks
// start pending; completed and rejected are terminal.
var allowedTransitions = map[Status][]Status{
	StatusPending:    {StatusSubmitted, StatusFailed},
	StatusSubmitted:  {StatusInProgress, StatusCompleted, StatusFailed},
	StatusInProgress: {StatusCompleted, StatusRejected, StatusFailed},
}

// TransitionAllowed reports whether a task may move from one status to
// another.
func TransitionAllowed(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Priority orders tasks for human review, critical first.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 99
	}
}

// Task is the durable unit of human-escalation work.
type Task struct {
	ID       string   `json:"task_id"`
	SubjectA string   `json:"subject_a"`
	SubjectB string   `json:"subject_b"`
	Domain   string   `json:"domain"`
	Priority Priority `json:"priority"`
	Status   Status   `json:"status"`
	Reason   string   `json:"reason"`
	// Seq preserves insertion order across restarts; it tiebreaks
	// equal-priority tasks.
	Seq int `json:"seq"`

	// Snapshot of the machine state that triggered the escalation, kept
	// for reviewer context.
	Annotations      []annotation.Annotation `json:"annotations,omitempty"`
	Metrics          *consensus.Metrics      `json:"iaa_metrics,omitempty"`
	UncertaintyScore *float64                `json:"uncertainty_score,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	HumanAnnotation map[string]any `json:"human_annotation,omitempty"`
	ExternalTaskID  string         `json:"external_task_id,omitempty"`
	Cost            *float64       `json:"cost,omitempty"`
	AnnotatorID     string         `json:"annotator_id,omitempty"`
}
