package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"decksage/internal/annotation"
	"decksage/internal/archive"
	"decksage/internal/audit"
	"decksage/internal/config"
	"decksage/internal/consensus"
	"decksage/internal/dataset"
	"decksage/internal/notify"
	"decksage/internal/queue"
	"decksage/internal/runner"
	"decksage/internal/uncertainty"
	"decksage/internal/workspace"
)

const appName = "decksage"

func main() {
	flag.String("workspace", "", "Path to workspace root")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s: multi-annotator consensus and escalation pipeline\n\n", appName)
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [command] [flags]\n\n", appName)
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  init     Initialize a new workspace")
		fmt.Fprintln(os.Stderr, "  run      Annotate a batch of candidate pairs")
		fmt.Fprintln(os.Stderr, "  queue    Manage the human annotation queue")
		fmt.Fprintln(os.Stderr, "  dataset  Export consensus annotations to the dataset")
		fmt.Fprintln(os.Stderr, "  runs     List archived annotation runs")
		fmt.Fprintln(os.Stderr, "  help     Show this help")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
	}

	workspacePath, remaining, err := extractWorkspaceFlag(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	args := remaining
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		flag.Usage()
		return
	}

	switch args[0] {
	case "init":
		if err := runInit(args[1:], workspacePath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "run":
		if err := runRun(args[1:], workspacePath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "queue":
		if err := runQueue(args[1:], workspacePath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "dataset":
		if err := runDataset(args[1:], workspacePath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "runs":
		if err := runRuns(args[1:], workspacePath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		flag.Usage()
		os.Exit(1)
	}
}

func extractWorkspaceFlag(args []string) (string, []string, error) {
	var workspacePath string
	remaining := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--workspace" {
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("--workspace requires a value")
			}
			workspacePath = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--workspace=") {
			workspacePath = strings.TrimPrefix(arg, "--workspace=")
			continue
		}
		remaining = append(remaining, arg)
	}
	return workspacePath, remaining, nil
}

func resolveWorkspace(root string) (*workspace.Workspace, error) {
	if strings.TrimSpace(root) == "" {
		root = "."
	}
	ws, err := workspace.Resolve(root)
	if err != nil {
		return nil, err
	}
	os.Setenv("DECKSAGE_AUDIT_DB", ws.AuditDBPath)
	return ws, nil
}

func loadConfig(ws *workspace.Workspace, configPath string) (*config.Config, error) {
	if configPath == "" {
		candidate := filepath.Join(ws.Root, "pipeline.yml")
		if _, err := os.Stat(candidate); err != nil {
			return config.Default(), nil
		}
		configPath = candidate
	}
	return config.Load(configPath)
}

func buildOrchestrator(cfg *config.Config, auditLog *audit.Logger) (*consensus.Orchestrator, error) {
	backend := &annotation.MockBackend{}
	annotators := make([]consensus.Annotator, 0, len(cfg.Annotators))
	for _, ac := range cfg.Annotators {
		annotators = append(annotators, consensus.Annotator{Config: ac, Backend: backend})
	}
	minIAA := cfg.MinIAA()
	return consensus.New(annotators, consensus.Options{
		MinIAAThreshold: minIAA,
		Audit:           auditLog,
	})
}

func runInit(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	root, err := workspace.ResolveRoot(firstNonEmpty(workspacePath, "."))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create workspace root: %w", err)
	}
	ws, err := workspace.Resolve(root)
	if err != nil {
		return err
	}
	if err := ws.EnsureDirs(); err != nil {
		return err
	}

	configPath := filepath.Join(root, "pipeline.yml")
	if err := writeFileIfMissing(configPath, sampleConfig); err != nil {
		return err
	}
	candidatesPath := filepath.Join(ws.AnnotationsDir, "candidates.jsonl")
	if err := writeFileIfMissing(candidatesPath, sampleCandidates); err != nil {
		return err
	}

	fmt.Printf("Initialized workspace at %s\n", root)
	fmt.Printf("  config:     %s\n", configPath)
	fmt.Printf("  candidates: %s\n", candidatesPath)
	return nil
}

func runRun(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to pipeline config (default: <workspace>/pipeline.yml)")
	pairsPath := fs.String("pairs", "", "Path to candidate pairs JSONL (default: <workspace>/annotations/candidates.jsonl)")
	datasetPath := fs.String("dataset", "", "Dataset file to write accepted consensus annotations to")
	noSelect := fs.Bool("no-select", false, "Annotate all candidates instead of the most uncertain ones")
	dryRun := fs.Bool("dry-run", false, "Preview the dataset writeback without modifying it")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ws, err := resolveWorkspace(workspacePath)
	if err != nil {
		return err
	}
	if err := ws.EnsureDirs(); err != nil {
		return err
	}
	cfg, err := loadConfig(ws, *configPath)
	if err != nil {
		return err
	}

	if *pairsPath == "" {
		*pairsPath = filepath.Join(ws.AnnotationsDir, "candidates.jsonl")
	}
	pairs, err := loadPairs(*pairsPath)
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		return fmt.Errorf("no candidate pairs in %s", *pairsPath)
	}

	auditLog := audit.NewLogger(ws.AuditDBPath)
	orch, err := buildOrchestrator(cfg, auditLog)
	if err != nil {
		return err
	}
	q, err := queue.Open(queue.NewFileStore(ws.QueuePath), auditLog)
	if err != nil {
		return err
	}
	store, err := archive.Open(ws.ArchiveDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := runner.Options{
		Workspace:    ws,
		Config:       cfg,
		Orchestrator: orch,
		Queue:        q,
		Archive:      store,
		Audit:        auditLog,
		Notifier:     &notify.Notifier{Enabled: cfg.Notify},
		DatasetPath:  *datasetPath,
		DryRun:       *dryRun,
	}
	if !*noSelect {
		opts.Selector = uncertainty.NewSelector(nil)
	}

	summary, err := runner.Run(context.Background(), pairs, opts)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s finished\n", summary.RunID)
	fmt.Printf("  annotated: %d/%d (failed %d)\n", summary.PairsAnnotated, summary.PairsTotal, summary.PairsFailed)
	fmt.Printf("  accepted:  %d, rejected: %d\n", summary.Accepted, summary.Rejected)
	fmt.Printf("  escalated: %d\n", summary.Escalated)
	if *datasetPath != "" {
		fmt.Printf("  dataset:   %d added\n", summary.DatasetAdded)
	}
	fmt.Printf("  artifacts: %s\n", summary.RunDir)
	return nil
}

func runQueue(args []string, workspacePath string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s queue [add|list|update|stats]", appName)
	}
	switch args[0] {
	case "add":
		return runQueueAdd(args[1:], workspacePath)
	case "list":
		return runQueueList(args[1:], workspacePath)
	case "update":
		return runQueueUpdate(args[1:], workspacePath)
	case "stats":
		return runQueueStats(args[1:], workspacePath)
	default:
		return fmt.Errorf("unknown queue command: %s", args[0])
	}
}

func openQueue(workspacePath string) (*queue.Queue, *workspace.Workspace, error) {
	ws, err := resolveWorkspace(workspacePath)
	if err != nil {
		return nil, nil, err
	}
	auditLog := audit.NewLogger(ws.AuditDBPath)
	q, err := queue.Open(queue.NewFileStore(ws.QueuePath), auditLog)
	if err != nil {
		return nil, nil, err
	}
	return q, ws, nil
}

func runQueueAdd(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("queue add", flag.ContinueOnError)
	subjectA := fs.String("a", "", "First subject")
	subjectB := fs.String("b", "", "Second subject")
	domain := fs.String("domain", "mtg", "Domain tag")
	priority := fs.String("priority", "medium", "Priority (critical|high|medium|low)")
	reason := fs.String("reason", "manual review request", "Why this pair needs human annotation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subjectA == "" || *subjectB == "" {
		return fmt.Errorf("-a and -b are required")
	}

	q, _, err := openQueue(workspacePath)
	if err != nil {
		return err
	}
	id, err := q.Add(*subjectA, *subjectB, *domain, queue.Priority(*priority), *reason, nil)
	if err != nil {
		return err
	}
	fmt.Printf("Queued task %s\n", id)
	return nil
}

func runQueueList(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("queue list", flag.ContinueOnError)
	priorityFlag := fs.String("priority", "", "Filter by priority")
	limit := fs.Int("limit", 0, "Maximum number of tasks to show")
	asJSON := fs.Bool("json", false, "Output JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	q, _, err := openQueue(workspacePath)
	if err != nil {
		return err
	}

	var priority *queue.Priority
	if *priorityFlag != "" {
		p := queue.Priority(*priorityFlag)
		priority = &p
	}
	tasks := q.PendingTasks(priority, *limit)

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tasks)
	}

	if len(tasks) == 0 {
		fmt.Println("No pending tasks")
		return nil
	}
	for _, task := range tasks {
		fmt.Printf("%-10s %s  %s / %s\n", task.Priority, task.ID, task.SubjectA, task.SubjectB)
		if task.Reason != "" {
			fmt.Printf("           reason: %s\n", task.Reason)
		}
	}
	return nil
}

func runQueueUpdate(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("queue update", flag.ContinueOnError)
	taskID := fs.String("task", "", "Task id")
	status := fs.String("status", "", "New status (submitted|in_progress|completed|rejected|failed)")
	externalRef := fs.String("external-ref", "", "External service task id")
	annotatorID := fs.String("annotator", "", "Human annotator id")
	cost := fs.Float64("cost", -1, "Cost in USD")
	resultJSON := fs.String("result", "", "Human judgment as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *taskID == "" || *status == "" {
		return fmt.Errorf("-task and -status are required")
	}

	q, _, err := openQueue(workspacePath)
	if err != nil {
		return err
	}

	update := &queue.StatusUpdate{
		ExternalTaskID: *externalRef,
		AnnotatorID:    *annotatorID,
	}
	if *cost >= 0 {
		update.Cost = cost
	}
	if *resultJSON != "" {
		var payload map[string]any
		if err := json.Unmarshal([]byte(*resultJSON), &payload); err != nil {
			return fmt.Errorf("parse -result: %w", err)
		}
		update.HumanAnnotation = payload
	}

	if err := q.UpdateStatus(*taskID, queue.Status(*status), update); err != nil {
		return err
	}
	task, ok := q.Task(*taskID)
	if !ok {
		fmt.Printf("Task %s not found\n", *taskID)
		return nil
	}
	fmt.Printf("Task %s is now %s\n", task.ID, task.Status)
	return nil
}

func runQueueStats(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("queue stats", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "Output JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	q, _, err := openQueue(workspacePath)
	if err != nil {
		return err
	}
	stats := q.Statistics()

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Printf("Total tasks: %d\n", stats.Total)
	fmt.Println("By status:")
	for _, s := range []queue.Status{queue.StatusPending, queue.StatusSubmitted, queue.StatusInProgress, queue.StatusCompleted, queue.StatusRejected, queue.StatusFailed} {
		if n := stats.ByStatus[s]; n > 0 {
			fmt.Printf("  %-12s %d\n", s, n)
		}
	}
	fmt.Println("By priority:")
	for _, p := range []queue.Priority{queue.PriorityCritical, queue.PriorityHigh, queue.PriorityMedium, queue.PriorityLow} {
		if n := stats.ByPriority[p]; n > 0 {
			fmt.Printf("  %-12s %d\n", p, n)
		}
	}
	if stats.TotalCost > 0 {
		fmt.Printf("Total cost: $%.2f\n", stats.TotalCost)
	}
	return nil
}

func runDataset(args []string, workspacePath string) error {
	if len(args) == 0 || args[0] != "export" {
		return fmt.Errorf("usage: %s dataset export [flags]", appName)
	}
	fs := flag.NewFlagSet("dataset export", flag.ContinueOnError)
	resultsPath := fs.String("results", "", "Path to a run's results.jsonl")
	outPath := fs.String("out", "", "Dataset file to write")
	minAlpha := fs.Float64("min-alpha", 0.6, "Minimum overall alpha for inclusion")
	dryRun := fs.Bool("dry-run", false, "Preview the diff without writing")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if *resultsPath == "" || *outPath == "" {
		return fmt.Errorf("-results and -out are required")
	}

	results, err := loadResults(*resultsPath)
	if err != nil {
		return err
	}
	var accepted []*consensus.Result
	for _, result := range results {
		if result.Metrics.OverallAlpha >= *minAlpha {
			accepted = append(accepted, result)
		}
	}

	report, err := dataset.Export(*outPath, accepted, *dryRun)
	if err != nil {
		return err
	}
	if *dryRun {
		if report.Diff == "" {
			fmt.Println("No changes")
		} else {
			fmt.Print(report.Diff)
		}
		return nil
	}
	fmt.Printf("Dataset %s: %d added, %d updated, %d total\n", *outPath, report.Added, report.Updated, report.Total)
	return nil
}

func runRuns(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "Maximum number of runs to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ws, err := resolveWorkspace(workspacePath)
	if err != nil {
		return err
	}
	store, err := archive.Open(ws.ArchiveDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(*limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No archived runs")
		return nil
	}
	for _, run := range runs {
		finished := "running"
		if run.FinishedAt != nil {
			finished = run.FinishedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%s  %-10s started %s  finished %s\n",
			run.ID, run.Status, run.StartedAt.Format("2006-01-02 15:04:05"), finished)
	}
	return nil
}

func loadPairs(path string) ([]uncertainty.Pair, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pairs file: %w", err)
	}
	defer f.Close()

	var pairs []uncertainty.Pair
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var pair uncertainty.Pair
		if err := json.Unmarshal([]byte(text), &pair); err != nil {
			return nil, fmt.Errorf("parse pairs file line %d: %w", line, err)
		}
		if pair.A == "" || pair.B == "" {
			return nil, fmt.Errorf("pairs file line %d: both subjects are required", line)
		}
		pairs = append(pairs, pair)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read pairs file: %w", err)
	}
	return pairs, nil
}

func loadResults(path string) ([]*consensus.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open results file: %w", err)
	}
	defer f.Close()

	var results []*consensus.Result
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var result consensus.Result
		if err := json.Unmarshal([]byte(text), &result); err != nil {
			return nil, fmt.Errorf("parse results file line %d: %w", line, err)
		}
		results = append(results, &result)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read results file: %w", err)
	}
	return results, nil
}

func writeFileIfMissing(path, contents string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

const sampleConfig = `# DeckSage annotation pipeline configuration
workspace: .
domain: mtg

annotators:
  - name: gemini_3_flash
    backend: google/gemini-3-flash-preview
    temperature: 0.3
    max_tokens: 1500
  - name: claude_sonnet_4_5
    backend: anthropic/claude-sonnet-4.5
    temperature: 0.3
    max_tokens: 1500
  - name: gemini_2_5_flash
    backend: google/gemini-2.5-flash
    temperature: 0.4
    max_tokens: 1500

thresholds:
  min_iaa: 0.6
  escalation_alpha: 0.4
  escalation_uncertainty: 0.7

selection:
  top_k: 50
  min_uncertainty: 0.3
  use_diversity: true

notify: false
`

const sampleCandidates = `{"subject_a": "Sol Ring", "subject_b": "Mana Crypt"}
{"subject_a": "Lightning Bolt", "subject_b": "Shock"}
{"subject_a": "Counterspell", "subject_b": "Llanowar Elves"}
`
