package queue

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"decksage/internal/consensus"
	"decksage/internal/uncertainty"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(&MemStore{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return q
}

func TestAddAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.jsonl")
	q, err := Open(NewFileStore(path), nil)
	if err != nil {
		t.Fatal(err)
	}

	id1, err := q.Add("Sol Ring", "Mana Crypt", "mtg", PriorityHigh, "low agreement", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := q.Add("Lightning Bolt", "Shock", "mtg", PriorityMedium, "uncertain", nil); err != nil {
		t.Fatal(err)
	}

	reloaded, err := Open(NewFileStore(path), nil)
	if err != nil {
		t.Fatal(err)
	}
	pending := reloaded.PendingTasks(nil, 0)
	if len(pending) != 2 {
		t.Fatalf("pending after reload = %d, want 2", len(pending))
	}
	task, ok := reloaded.Task(id1)
	if !ok {
		t.Fatalf("task %s missing after reload", id1)
	}
	if task.SubjectA != "Sol Ring" || task.Priority != PriorityHigh || task.Status != StatusPending {
		t.Fatalf("reloaded task = %+v", task)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("temp file left behind after save")
	}
}

func TestTaskIDSanitized(t *testing.T) {
	q := newTestQueue(t)
	id, err := q.Add("Jace / Vryn's Prodigy", "Young Pyromancer", "mtg", PriorityLow, "manual", nil)
	if err != nil {
		t.Fatal(err)
	}
	if strings.ContainsAny(id, " /") {
		t.Fatalf("id %q contains unsanitized characters", id)
	}
	if len(id) > 100 {
		t.Fatalf("id length = %d, want <= 100", len(id))
	}
}

func TestDuplicateIDsGetSuffix(t *testing.T) {
	q := newTestQueue(t)
	fixed := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return fixed }

	id1, err := q.Add("a", "b", "mtg", PriorityLow, "first", nil)
	if err != nil {
		t.Fatal(err)
	}
	id2, err := q.Add("a", "b", "mtg", PriorityLow, "second", nil)
	if err != nil {
		t.Fatal(err)
	}
	if id1 == id2 {
		t.Fatalf("duplicate ids: %s", id1)
	}
	if len(q.PendingTasks(nil, 0)) != 2 {
		t.Fatal("both tasks must be stored")
	}
}

func TestPendingOrderingAndFilters(t *testing.T) {
	q := newTestQueue(t)
	idMedium, _ := q.Add("m1", "m2", "mtg", PriorityMedium, "", nil)
	idCritical, _ := q.Add("c1", "c2", "mtg", PriorityCritical, "", nil)
	idHigh1, _ := q.Add("h1", "h2", "mtg", PriorityHigh, "", nil)
	idHigh2, _ := q.Add("h3", "h4", "mtg", PriorityHigh, "", nil)
	idDone, _ := q.Add("d1", "d2", "mtg", PriorityCritical, "", nil)
	if err := q.UpdateStatus(idDone, StatusFailed, nil); err != nil {
		t.Fatal(err)
	}

	pending := q.PendingTasks(nil, 0)
	got := make([]string, len(pending))
	for i, task := range pending {
		got[i] = task.ID
	}
	want := []string{idCritical, idHigh1, idHigh2, idMedium}
	if len(got) != len(want) {
		t.Fatalf("pending = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pending[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	high := PriorityHigh
	filtered := q.PendingTasks(&high, 0)
	if len(filtered) != 2 || filtered[0].ID != idHigh1 {
		t.Fatalf("priority filter = %v", filtered)
	}

	limited := q.PendingTasks(nil, 2)
	if len(limited) != 2 || limited[0].ID != idCritical {
		t.Fatalf("limit = %v", limited)
	}
}

func TestUpdateStatusLifecycle(t *testing.T) {
	q := newTestQueue(t)
	id, err := q.Add("a", "b", "mtg", PriorityHigh, "low agreement", nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := q.UpdateStatus(id, StatusSubmitted, &StatusUpdate{ExternalTaskID: "mturk-42"}); err != nil {
		t.Fatal(err)
	}
	task, _ := q.Task(id)
	if task.Status != StatusSubmitted || task.SubmittedAt == nil || task.ExternalTaskID != "mturk-42" {
		t.Fatalf("after submit: %+v", task)
	}

	if err := q.UpdateStatus(id, StatusInProgress, nil); err != nil {
		t.Fatal(err)
	}

	cost := 0.25
	err = q.UpdateStatus(id, StatusCompleted, &StatusUpdate{
		HumanAnnotation: map[string]any{"score": 0.8, "label": "synergy"},
		Cost:            &cost,
		AnnotatorID:     "reviewer-7",
	})
	if err != nil {
		t.Fatal(err)
	}
	task, _ = q.Task(id)
	if task.Status != StatusCompleted || task.CompletedAt == nil {
		t.Fatalf("after complete: %+v", task)
	}
	if task.HumanAnnotation == nil || task.AnnotatorID != "reviewer-7" || task.Cost == nil || *task.Cost != 0.25 {
		t.Fatalf("completion payload not stored: %+v", task)
	}
}

func TestIllegalTransitionRejectedWithoutError(t *testing.T) {
	q := newTestQueue(t)
	id, _ := q.Add("a", "b", "mtg", PriorityHigh, "", nil)

	if err := q.UpdateStatus(id, StatusCompleted, nil); err != nil {
		t.Fatalf("illegal transition must be a logged no-op, got %v", err)
	}
	task, _ := q.Task(id)
	if task.Status != StatusPending {
		t.Fatalf("status = %s, want pending after rejected transition", task.Status)
	}
}

func TestUnknownTaskIsNoOp(t *testing.T) {
	q := newTestQueue(t)
	if err := q.UpdateStatus("no-such-task", StatusSubmitted, nil); err != nil {
		t.Fatalf("unknown task must be non-fatal, got %v", err)
	}
}

func TestTransitionTable(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusSubmitted},
		{StatusPending, StatusFailed},
		{StatusSubmitted, StatusInProgress},
		{StatusSubmitted, StatusCompleted},
		{StatusSubmitted, StatusFailed},
		{StatusInProgress, StatusCompleted},
		{StatusInProgress, StatusRejected},
		{StatusInProgress, StatusFailed},
	}
	for _, tr := range allowed {
		if !TransitionAllowed(tr.from, tr.to) {
			t.Fatalf("%s -> %s should be allowed", tr.from, tr.to)
		}
	}
	denied := []struct{ from, to Status }{
		{StatusPending, StatusCompleted},
		{StatusPending, StatusInProgress},
		{StatusCompleted, StatusPending},
		{StatusRejected, StatusInProgress},
		{StatusFailed, StatusSubmitted},
	}
	for _, tr := range denied {
		if TransitionAllowed(tr.from, tr.to) {
			t.Fatalf("%s -> %s should be rejected", tr.from, tr.to)
		}
	}
}

func TestStatistics(t *testing.T) {
	q := newTestQueue(t)
	id1, _ := q.Add("a", "b", "mtg", PriorityCritical, "", nil)
	q.Add("c", "d", "mtg", PriorityHigh, "", nil)
	q.Add("e", "f", "pokemon", PriorityHigh, "", nil)

	q.UpdateStatus(id1, StatusSubmitted, nil)
	cost := 1.5
	q.UpdateStatus(id1, StatusCompleted, &StatusUpdate{Cost: &cost})

	stats := q.Statistics()
	if stats.Total != 3 {
		t.Fatalf("total = %d, want 3", stats.Total)
	}
	if stats.ByStatus[StatusPending] != 2 || stats.ByStatus[StatusCompleted] != 1 {
		t.Fatalf("by_status = %v", stats.ByStatus)
	}
	if stats.ByPriority[PriorityHigh] != 2 {
		t.Fatalf("by_priority = %v", stats.ByPriority)
	}
	if stats.ByDomain["mtg"] != 2 || stats.ByDomain["pokemon"] != 1 {
		t.Fatalf("by_domain = %v", stats.ByDomain)
	}
	if stats.TotalCost != 1.5 {
		t.Fatalf("total_cost = %v, want 1.5", stats.TotalCost)
	}
}

func TestEscalateLowAgreement(t *testing.T) {
	q := newTestQueue(t)
	results := []*consensus.Result{
		{SubjectA: "a", SubjectB: "b", Metrics: consensus.Metrics{OverallAlpha: 0.1}},
		{SubjectA: "c", SubjectB: "d", Metrics: consensus.Metrics{OverallAlpha: 0.25}},
		{SubjectA: "e", SubjectB: "f", Metrics: consensus.Metrics{OverallAlpha: 0.35}},
		{SubjectA: "g", SubjectB: "h", Metrics: consensus.Metrics{OverallAlpha: 0.9}},
	}

	queued, err := EscalateLowAgreement(q, results, "mtg", 0.4)
	if err != nil {
		t.Fatal(err)
	}
	if queued != 3 {
		t.Fatalf("queued = %d, want 3", queued)
	}

	pending := q.PendingTasks(nil, 0)
	if pending[0].Priority != PriorityCritical || pending[0].SubjectA != "a" {
		t.Fatalf("first pending = %+v, want critical a/b", pending[0])
	}
	if pending[1].Priority != PriorityHigh || pending[2].Priority != PriorityMedium {
		t.Fatalf("priorities = %s, %s", pending[1].Priority, pending[2].Priority)
	}
	if !strings.Contains(pending[0].Reason, "0.100") {
		t.Fatalf("reason %q must embed the alpha", pending[0].Reason)
	}
	if pending[0].Metrics == nil || pending[0].Metrics.OverallAlpha != 0.1 {
		t.Fatal("metrics snapshot missing")
	}
}

func TestEscalateUncertainPairs(t *testing.T) {
	q := newTestQueue(t)
	uncertainties := []uncertainty.PairUncertainty{
		{SubjectA: "a", SubjectB: "b", CombinedScore: 0.95, Type: uncertainty.TypeModelDisagreement},
		{SubjectA: "c", SubjectB: "d", CombinedScore: 0.7, Type: uncertainty.TypeAmbiguousRelationship},
		{SubjectA: "e", SubjectB: "f", CombinedScore: 0.2, Type: uncertainty.TypeColdStart},
	}

	queued, err := EscalateUncertainPairs(q, uncertainties, "mtg", 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if queued != 2 {
		t.Fatalf("queued = %d, want 2", queued)
	}

	pending := q.PendingTasks(nil, 0)
	if pending[0].Priority != PriorityCritical || pending[1].Priority != PriorityHigh {
		t.Fatalf("priorities = %s, %s", pending[0].Priority, pending[1].Priority)
	}
	if pending[0].UncertaintyScore == nil || *pending[0].UncertaintyScore != 0.95 {
		t.Fatal("uncertainty snapshot missing")
	}
	if !strings.Contains(pending[0].Reason, "0.950") {
		t.Fatalf("reason %q must embed the score", pending[0].Reason)
	}
}
