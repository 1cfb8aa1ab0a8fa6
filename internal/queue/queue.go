package queue

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"decksage/internal/annotation"
	"decksage/internal/audit"
	"decksage/internal/consensus"
)

const maxTaskIDLen = 100

// Queue holds the task set in memory and re-persists the whole set on
// every mutation. Reads serve from memory. Safe for concurrent use
// within one process; cross-process writers need external serialization.
type Queue struct {
	store    Store
	auditLog *audit.Logger
	now      func() time.Time

	mu      sync.Mutex
	tasks   map[string]*Task
	nextSeq int
}

// Open loads the persisted task set from store. A nil auditLog disables
// audit events.
func Open(store Store, auditLog *audit.Logger) (*Queue, error) {
	tasks, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}

	q := &Queue{
		store:    store,
		auditLog: auditLog,
		now:      time.Now,
		tasks:    make(map[string]*Task, len(tasks)),
	}
	for i := range tasks {
		task := tasks[i]
		q.tasks[task.ID] = &task
		if task.Seq >= q.nextSeq {
			q.nextSeq = task.Seq + 1
		}
	}
	return q, nil
}

// TaskContext is the optional machine-state snapshot attached to a new
// task for reviewer context.
type TaskContext struct {
	Annotations      []annotation.Annotation
	Metrics          *consensus.Metrics
	UncertaintyScore *float64
}

// Add queues a subject pair for human annotation and persists the
// updated task set. The returned id is derived from domain, subjects
// and timestamp, sanitized and bounded. A persistence failure is
// returned but does not roll back the in-memory task.
func (q *Queue) Add(subjectA, subjectB, domain string, priority Priority, reason string, taskCtx *TaskContext) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	created := q.now()
	id := sanitizeID(fmt.Sprintf("%s_%s_%s_%s", domain, subjectA, subjectB, created.Format("20060102_150405")))
	if _, exists := q.tasks[id]; exists {
		suffix := fmt.Sprintf("_%d", q.nextSeq)
		if len(id)+len(suffix) > maxTaskIDLen {
			id = id[:maxTaskIDLen-len(suffix)]
		}
		id += suffix
	}

	task := &Task{
		ID:        id,
		SubjectA:  subjectA,
		SubjectB:  subjectB,
		Domain:    domain,
		Priority:  priority,
		Status:    StatusPending,
		Reason:    reason,
		Seq:       q.nextSeq,
		CreatedAt: created,
	}
	if taskCtx != nil {
		task.Annotations = taskCtx.Annotations
		task.Metrics = taskCtx.Metrics
		task.UncertaintyScore = taskCtx.UncertaintyScore
	}
	q.nextSeq++
	q.tasks[id] = task

	if q.auditLog != nil {
		_ = q.auditLog.LogEvent("queue", audit.EventTaskQueued, map[string]any{
			"task_id":  id,
			"priority": string(priority),
			"reason":   reason,
		})
	}
	fmt.Fprintf(os.Stderr, "queued %s / %s for human annotation (priority=%s)\n", subjectA, subjectB, priority)

	if err := q.persistLocked(); err != nil {
		return id, err
	}
	return id, nil
}

// PendingTasks lists pending tasks, optionally filtered by priority,
// ordered critical first with insertion order as tiebreak. limit <= 0
// means no limit.
func (q *Queue) PendingTasks(priority *Priority, limit int) []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	var pending []Task
	for _, task := range q.tasks {
		if task.Status != StatusPending {
			continue
		}
		if priority != nil && task.Priority != *priority {
			continue
		}
		pending = append(pending, *task)
	}

	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Priority.rank() != pending[j].Priority.rank() {
			return pending[i].Priority.rank() < pending[j].Priority.rank()
		}
		return pending[i].Seq < pending[j].Seq
	})

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending
}

// StatusUpdate carries the optional fields of an UpdateStatus call.
type StatusUpdate struct {
	HumanAnnotation map[string]any
	ExternalTaskID  string
	Cost            *float64
	AnnotatorID     string
}

// UpdateStatus moves a task through its lifecycle and re-persists the
// set. An unknown task id and an illegal transition are both logged
// and ignored rather than returned as errors; the queue is best-effort.
func (q *Queue) UpdateStatus(taskID string, status Status, update *StatusUpdate) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[taskID]
	if !ok {
		fmt.Fprintf(os.Stderr, "task %s not found in queue\n", taskID)
		if q.auditLog != nil {
			_ = q.auditLog.LogEvent("queue", audit.EventTaskUnknown, map[string]any{"task_id": taskID})
		}
		return nil
	}
	if !TransitionAllowed(task.Status, status) {
		fmt.Fprintf(os.Stderr, "task %s: transition %s -> %s rejected\n", taskID, task.Status, status)
		if q.auditLog != nil {
			_ = q.auditLog.LogEvent("queue", audit.EventTransitionRejected, map[string]any{
				"task_id": taskID,
				"from":    string(task.Status),
				"to":      string(status),
			})
		}
		return nil
	}

	task.Status = status
	now := q.now()
	if status == StatusSubmitted {
		task.SubmittedAt = &now
		if update != nil && update.ExternalTaskID != "" {
			task.ExternalTaskID = update.ExternalTaskID
		}
	}
	if status == StatusCompleted {
		task.CompletedAt = &now
		if update != nil {
			if update.HumanAnnotation != nil {
				task.HumanAnnotation = update.HumanAnnotation
			}
			if update.AnnotatorID != "" {
				task.AnnotatorID = update.AnnotatorID
			}
		}
	}
	if update != nil && update.Cost != nil {
		task.Cost = update.Cost
	}

	if q.auditLog != nil {
		_ = q.auditLog.LogEvent("queue", audit.EventTaskUpdated, map[string]any{
			"task_id": taskID,
			"status":  string(status),
		})
	}

	return q.persistLocked()
}

// Task returns a copy of one task by id.
func (q *Queue) Task(id string) (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	task, ok := q.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// Statistics is a single-pass aggregate over the whole task set.
type Statistics struct {
	Total      int              `json:"total"`
	ByStatus   map[Status]int   `json:"by_status"`
	ByPriority map[Priority]int `json:"by_priority"`
	ByDomain   map[string]int   `json:"by_domain"`
	TotalCost  float64          `json:"total_cost"`
}

func (q *Queue) Statistics() Statistics {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := Statistics{
		Total:      len(q.tasks),
		ByStatus:   make(map[Status]int),
		ByPriority: make(map[Priority]int),
		ByDomain:   make(map[string]int),
	}
	for _, task := range q.tasks {
		stats.ByStatus[task.Status]++
		stats.ByPriority[task.Priority]++
		stats.ByDomain[task.Domain]++
		if task.Cost != nil {
			stats.TotalCost += *task.Cost
		}
	}
	return stats
}

func (q *Queue) persistLocked() error {
	tasks := make([]Task, 0, len(q.tasks))
	for _, task := range q.tasks {
		tasks = append(tasks, *task)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Seq < tasks[j].Seq })

	if err := q.store.Save(tasks); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist queue: %v\n", err)
		if q.auditLog != nil {
			_ = q.auditLog.LogEvent("queue", audit.EventPersistenceFailed, map[string]any{"error": err.Error()})
		}
		return fmt.Errorf("persist queue: %w", err)
	}
	return nil
}

func sanitizeID(raw string) string {
	id := strings.NewReplacer(" ", "_", "/", "_").Replace(raw)
	if len(id) > maxTaskIDLen {
		id = id[:maxTaskIDLen]
	}
	return id
}
