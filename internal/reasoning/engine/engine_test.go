package engine_test

// Tests for the analysis orchestrator. Strategy: inject a fakeLLM with
// canned stage and synthesis responses so the full pipeline runs without
// a real provider; the snapshot builder, rule engine, scorer, and
// decision log builder are the real implementations.

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/plantops/plantops-ai/internal/config"
	"github.com/plantops/plantops-ai/internal/decisionlog"
	"github.com/plantops/plantops-ai/internal/llm/adapter"
	"github.com/plantops/plantops-ai/internal/llm/types"
	"github.com/plantops/plantops-ai/internal/models"
	"github.com/plantops/plantops-ai/internal/predict"
	"github.com/plantops/plantops-ai/internal/reasoning/engine"
	"github.com/plantops/plantops-ai/internal/reasoning/prompt"
	"github.com/plantops/plantops-ai/internal/rules"
	"github.com/plantops/plantops-ai/internal/snapshot"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeLLM struct {
	mu           sync.Mutex
	responses    []string // consumed front to back; the last one repeats
	calls        int
	failFirst    int // fail this many calls before succeeding
	err          error
	block        bool // block until the call context is cancelled
	delay        time.Duration
	unconfigured bool
}

func (f *fakeLLM) Complete(ctx context.Context, _ []types.Message) (string, *types.TokenUsage, error) {
	if f.block {
		<-ctx.Done()
		return "", nil, ctx.Err()
	}
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", nil, f.err
	}
	if f.calls <= f.failFirst {
		return "", nil, errors.New("transient provider error")
	}
	if len(f.responses) == 0 {
		return "", nil, errors.New("fake llm: no responses queued")
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, &types.TokenUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150}, nil
}

func (f *fakeLLM) Provider() adapter.ProviderType { return adapter.ProviderOllama }
func (f *fakeLLM) Model() string                  { return "fake-model" }
func (f *fakeLLM) Configured() bool               { return !f.unconfigured }

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────────────────────

// stageJSON is a valid subdomain stage response, code-fenced the way
// real providers tend to return it.
const stageJSON = "```json\n" + `{
  "analysis": "Line L2 mean uptime is 62%, well below the 75% floor.",
  "recommendations": [
    {"action": "Inspect the L2 conveyor drive", "reasoning": "uptime trend", "priority": 1, "estimated_kpi_impact": "", "estimated_time": ""}
  ]
}` + "\n```"

// synthesisJSON cites real rule IDs and score refs produced by the
// engineInput fixture, so grounding keeps both recommendations.
const synthesisJSON = `{
  "executive_summary": "L2 requires immediate maintenance; supplier exposure is low.",
  "recommendations": [
    {"action": "Dispatch maintenance crew to line L2", "priority": 1, "reasoning": "Mean uptime 62% is below the 75% threshold", "source_stage": "line_health", "estimated_time": "Immediate", "expected_kpi_impact": "Line Downtime: +2-8 hrs", "supporting_rules": ["low_machine_health"], "supporting_scores": ["breakdown-risk:L2"]},
    {"action": "Review supplier SUP1 contingency options", "priority": 2, "reasoning": "Supplier risk is low but L2 repairs may need expedited parts", "source_stage": "supply_chain", "estimated_time": "", "expected_kpi_impact": "", "supporting_rules": [], "supporting_scores": ["supplier-risk:SUP1"]}
  ],
  "decision_justification": "Maintenance first: it is the only fired rule and the highest risk score."
}`

// engineInput yields a run where exactly one rule fires: L2 uptime 62%
// trips low_machine_health at HIGH severity. With no trained models the
// scorer falls back, giving breakdown-risk:L2 = 0.76 (HIGH) and
// supplier-risk:SUP1 = 89 (LOW).
func engineInput() snapshot.Input {
	return snapshot.Input{
		Scenario: models.EventEquipmentFailure,
		Rows: []map[string]interface{}{
			{
				"line_id": "L1", "shift_id": "S1",
				"demand": 280.0, "output": 270.0,
				"uptime_pct": 90.0, "worker_availability_pct": 95.0,
				"defect_rate_pct": 1.2, "inventory_pct": 85.0,
				"energy_kwh": 1200.0, "component_availability": "OK",
			},
			{
				"line_id": "L2", "shift_id": "S1",
				"demand": 300.0, "output": 200.0,
				"uptime_pct": 62.0, "worker_availability_pct": 94.0,
				"defect_rate_pct": 2.1, "inventory_pct": 78.0,
				"energy_kwh": 1100.0, "component_availability": "OK",
			},
		},
		Reference: snapshot.ReferenceTables{
			Lines: []models.Line{
				{ID: "L1", DailyCapacity: 400, OEEPct: 82, MTTRHours: 3, MTBFHours: 90, UtilizationPct: 80},
				{ID: "L2", DailyCapacity: 380, OEEPct: 74, MTTRHours: 5, MTBFHours: 60, UtilizationPct: 78},
			},
			Shifts:    []models.Shift{{ID: "S1", Staffing: 40, OvertimeCeilingHours: 12}},
			Suppliers: []models.Supplier{{ID: "SUP1", Component: "brake assembly", LeadTimeDays: 4, ReliabilityPct: 95}},
			Inventory: []models.InventoryItem{{ID: "INV1", OnHand: 900, ReorderPoint: 400, SafetyStock: 200}},
		},
	}
}

func newTestEngine(llm adapter.LLMAdapter) engine.Engine {
	return engine.NewEngine(engine.Deps{
		Builder:     snapshot.NewBuilder(),
		Rules:       rules.NewEngine(config.RuleThresholds{}),
		Scorer:      predict.NewScorer(),
		Models:      predict.EmptyRegistry(),
		Prompts:     prompt.NewManager(),
		LLM:         llm,
		DecisionLog: decisionlog.NewBuilder(),
		Logger:      zap.NewNop(),
	}, engine.Options{
		StageTimeout: time.Second,
		MaxRetries:   2,
		BackoffBase:  time.Millisecond,
	})
}

// queueFor returns the response queue for a full run: five subdomain
// stages followed by synthesis.
func queueFor(stage, synthesis string) []string {
	return []string{stage, stage, stage, stage, stage, synthesis}
}

func waitForTerminal(t *testing.T, e engine.Engine, id string) *engine.Run {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		run, err := e.GetRun(context.Background(), id)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		switch run.State {
		case engine.StateConcluded, engine.StateFailed, engine.StateCancelled:
			return run
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("run %s did not reach a terminal state", id)
	return nil
}

func countDiagnostics(run *engine.Run, kind models.DiagnosticKind) int {
	n := 0
	for _, d := range run.Diagnostics {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestAnalyze_RejectsEmptyRows(t *testing.T) {
	eng := newTestEngine(&fakeLLM{unconfigured: true})
	in := engineInput()
	in.Rows = nil
	if _, err := eng.Analyze(context.Background(), in); err == nil {
		t.Fatal("expected error for empty rows")
	}
}

func TestGetRun_UnknownID(t *testing.T) {
	eng := newTestEngine(&fakeLLM{unconfigured: true})
	if _, err := eng.GetRun(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown run ID")
	}
}

func TestAnalyze_FullRunConcludes(t *testing.T) {
	llm := &fakeLLM{responses: queueFor(stageJSON, synthesisJSON)}
	eng := newTestEngine(llm)

	id, err := eng.Analyze(context.Background(), engineInput())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	run := waitForTerminal(t, eng, id)

	if run.State != engine.StateConcluded {
		t.Fatalf("state = %s, want CONCLUDED (error: %s)", run.State, run.Error)
	}
	if len(run.StageResults) != 5 {
		t.Fatalf("got %d stage results, want 5", len(run.StageResults))
	}
	for _, sr := range run.StageResults {
		if sr.Degraded {
			t.Errorf("stage %s degraded: %s", sr.Stage, sr.DegradedReason)
		}
	}
	if len(run.Recommendations) != 2 {
		t.Fatalf("got %d recommendations, want 2", len(run.Recommendations))
	}
	top := run.Recommendations[0]
	if top.Action != "Dispatch maintenance crew to line L2" {
		t.Errorf("top recommendation = %q", top.Action)
	}
	if top.Severity != models.SeverityHigh {
		t.Errorf("top severity = %s, want HIGH", top.Severity)
	}
	for _, r := range run.Recommendations {
		if !r.Grounded() {
			t.Errorf("recommendation %q is not grounded", r.Action)
		}
	}
	// The second recommendation omitted its KPI and time fields; the
	// engine fills supplier defaults.
	second := run.Recommendations[1]
	if second.ExpectedKPIImpact == "" || second.EstimatedTime == "" {
		t.Errorf("defaults not applied: kpi=%q time=%q", second.ExpectedKPIImpact, second.EstimatedTime)
	}
	if run.ExecutiveSummary == "" || run.Justification == "" {
		t.Error("summary or justification missing")
	}
	if len(run.Entries) != 2 {
		t.Fatalf("got %d decision log entries, want 2", len(run.Entries))
	}
	for _, entry := range run.Entries {
		if !strings.HasPrefix(entry.ID, "DEC-") {
			t.Errorf("entry ID %q lacks DEC- prefix", entry.ID)
		}
	}
	if want := 6 * 150; run.TokensUsed != want {
		t.Errorf("tokens used = %d, want %d", run.TokensUsed, want)
	}
}

func TestAnalyze_UnconfiguredProviderFallsBackToRules(t *testing.T) {
	llm := &fakeLLM{unconfigured: true}
	eng := newTestEngine(llm)

	id, err := eng.Analyze(context.Background(), engineInput())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	run := waitForTerminal(t, eng, id)

	if run.State != engine.StateConcluded {
		t.Fatalf("state = %s, want CONCLUDED", run.State)
	}
	if llm.callCount() != 0 {
		t.Errorf("LLM called %d times, want 0", llm.callCount())
	}
	if len(run.Recommendations) == 0 {
		t.Fatal("expected rule-engine-only recommendations")
	}
	for _, r := range run.Recommendations {
		if r.SourceStage != "rule_engine" {
			t.Errorf("source stage = %q, want rule_engine", r.SourceStage)
		}
		if !r.Grounded() {
			t.Errorf("recommendation %q is not grounded", r.Action)
		}
	}
	if countDiagnostics(run, models.DiagStageDegraded) == 0 {
		t.Error("expected a degraded diagnostic for the missing provider")
	}
}

func TestAnalyze_FailingLLMDegradesStagesNotRun(t *testing.T) {
	llm := &fakeLLM{err: errors.New("provider unreachable")}
	eng := newTestEngine(llm)

	id, err := eng.Analyze(context.Background(), engineInput())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	run := waitForTerminal(t, eng, id)

	if run.State != engine.StateConcluded {
		t.Fatalf("state = %s, want CONCLUDED", run.State)
	}
	if len(run.StageResults) != 5 {
		t.Fatalf("got %d stage results, want 5", len(run.StageResults))
	}
	for _, sr := range run.StageResults {
		if !sr.Degraded {
			t.Errorf("stage %s should have degraded", sr.Stage)
		}
	}
	// Five stages plus synthesis.
	if n := countDiagnostics(run, models.DiagStageDegraded); n < 6 {
		t.Errorf("got %d degraded diagnostics, want at least 6", n)
	}
	if len(run.Recommendations) == 0 {
		t.Fatal("expected rule-engine-only fallback recommendations")
	}
	if run.Recommendations[0].SourceStage != "rule_engine" {
		t.Errorf("source stage = %q, want rule_engine", run.Recommendations[0].SourceStage)
	}
}

func TestAnalyze_RetriesTransientFailures(t *testing.T) {
	llm := &fakeLLM{failFirst: 1, responses: queueFor(stageJSON, synthesisJSON)}
	eng := newTestEngine(llm)

	id, err := eng.Analyze(context.Background(), engineInput())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	run := waitForTerminal(t, eng, id)

	if run.State != engine.StateConcluded {
		t.Fatalf("state = %s, want CONCLUDED", run.State)
	}
	if run.StageResults[0].Degraded {
		t.Errorf("first stage degraded despite retry budget: %s", run.StageResults[0].DegradedReason)
	}
	// One failed attempt plus six successful calls.
	if llm.callCount() != 7 {
		t.Errorf("LLM called %d times, want 7", llm.callCount())
	}
}

func TestAnalyze_MalformedStagesStillSynthesize(t *testing.T) {
	responses := []string{
		"sorry, I cannot help with that",
		"sorry, I cannot help with that",
		"sorry, I cannot help with that",
		"sorry, I cannot help with that",
		"sorry, I cannot help with that",
		synthesisJSON,
	}
	eng := newTestEngine(&fakeLLM{responses: responses})

	id, err := eng.Analyze(context.Background(), engineInput())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	run := waitForTerminal(t, eng, id)

	if run.State != engine.StateConcluded {
		t.Fatalf("state = %s, want CONCLUDED", run.State)
	}
	for _, sr := range run.StageResults {
		if !sr.Degraded {
			t.Errorf("stage %s should have degraded on malformed output", sr.Stage)
		}
	}
	if len(run.Recommendations) != 2 {
		t.Fatalf("got %d recommendations, want 2 from synthesis", len(run.Recommendations))
	}
	if run.Recommendations[0].SourceStage != "line_health" {
		t.Errorf("source stage = %q, want line_health", run.Recommendations[0].SourceStage)
	}
}

func TestAnalyze_UngroundedRecommendationsDropped(t *testing.T) {
	synth := `{
  "executive_summary": "Mixed evidence quality.",
  "recommendations": [
    {"action": "Dispatch maintenance crew to line L2", "priority": 1, "reasoning": "uptime breach", "source_stage": "line_health", "supporting_rules": ["low_machine_health"], "supporting_scores": []},
    {"action": "Consult the oracle", "priority": 2, "reasoning": "vibes", "source_stage": "production", "supporting_rules": ["rule_that_does_not_exist"], "supporting_scores": ["breakdown-risk:L9"]}
  ],
  "decision_justification": "Only the first holds up."
}`
	eng := newTestEngine(&fakeLLM{responses: queueFor(stageJSON, synth)})

	id, err := eng.Analyze(context.Background(), engineInput())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	run := waitForTerminal(t, eng, id)

	if run.State != engine.StateConcluded {
		t.Fatalf("state = %s, want CONCLUDED", run.State)
	}
	if len(run.Recommendations) != 1 {
		t.Fatalf("got %d recommendations, want 1 after the drop", len(run.Recommendations))
	}
	if run.Recommendations[0].Action != "Dispatch maintenance crew to line L2" {
		t.Errorf("kept %q, want the grounded recommendation", run.Recommendations[0].Action)
	}
	if countDiagnostics(run, models.DiagUngroundedRecDropped) != 1 {
		t.Error("expected one ungrounded-drop diagnostic")
	}
}

func TestAnalyze_RankingBreaksPriorityTiesBySeverity(t *testing.T) {
	synth := `{
  "executive_summary": "Three actions.",
  "recommendations": [
    {"action": "Review supplier SUP1 contingency options", "priority": 2, "reasoning": "low exposure", "source_stage": "supply_chain", "supporting_scores": ["supplier-risk:SUP1"]},
    {"action": "Reallocate output from L2 to L1", "priority": 2, "reasoning": "cover the gap", "source_stage": "production", "supporting_rules": ["low_machine_health"]},
    {"action": "Dispatch maintenance crew to line L2", "priority": 1, "reasoning": "uptime breach", "source_stage": "line_health", "supporting_rules": ["low_machine_health"]}
  ],
  "decision_justification": "Ordered by urgency."
}`
	eng := newTestEngine(&fakeLLM{responses: queueFor(stageJSON, synth)})

	id, err := eng.Analyze(context.Background(), engineInput())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	run := waitForTerminal(t, eng, id)

	if len(run.Recommendations) != 3 {
		t.Fatalf("got %d recommendations, want 3", len(run.Recommendations))
	}
	// Priority 1 first, then the priority-2 tie broken by severity:
	// the rule-cited HIGH outranks the score-cited LOW.
	want := []string{
		"Dispatch maintenance crew to line L2",
		"Reallocate output from L2 to L1",
		"Review supplier SUP1 contingency options",
	}
	for i, w := range want {
		if run.Recommendations[i].Action != w {
			t.Errorf("rank %d = %q, want %q", i, run.Recommendations[i].Action, w)
		}
	}
}

func TestAnalyze_ContextErrorIsFatal(t *testing.T) {
	eng := newTestEngine(&fakeLLM{unconfigured: true})
	in := engineInput()
	in.Reference.Suppliers = nil

	id, err := eng.Analyze(context.Background(), in)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	run := waitForTerminal(t, eng, id)

	if run.State != engine.StateFailed {
		t.Fatalf("state = %s, want FAILED", run.State)
	}
	if !strings.Contains(run.Error, "context_builder") {
		t.Errorf("error %q does not identify the context builder", run.Error)
	}
	if len(run.Recommendations) != 0 {
		t.Error("failed run must carry no recommendations")
	}
}

func TestCancelRun_DiscardsPartialResults(t *testing.T) {
	eng := newTestEngine(&fakeLLM{block: true})

	id, err := eng.Analyze(context.Background(), engineInput())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	// Wait for the run to block inside the first stage call.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		run, err := eng.GetRun(context.Background(), id)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if run.State == engine.StateRunning {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := eng.CancelRun(context.Background(), id); err != nil {
		t.Fatalf("CancelRun: %v", err)
	}
	run := waitForTerminal(t, eng, id)

	if run.State != engine.StateCancelled {
		t.Fatalf("state = %s, want CANCELLED", run.State)
	}
	if len(run.StageResults) != 0 || len(run.Recommendations) != 0 || len(run.Entries) != 0 {
		t.Error("cancelled run must discard partial stage results and recommendations")
	}

	// A second cancel of a terminal run is an error.
	if err := eng.CancelRun(context.Background(), id); err == nil {
		t.Error("expected error cancelling a terminal run")
	}
}

func TestListRuns_NewestFirst(t *testing.T) {
	eng := newTestEngine(&fakeLLM{unconfigured: true})

	first, err := eng.Analyze(context.Background(), engineInput())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	waitForTerminal(t, eng, first)
	second, err := eng.Analyze(context.Background(), engineInput())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	waitForTerminal(t, eng, second)

	runs, err := eng.ListRuns(context.Background())
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].ID != second || runs[1].ID != first {
		t.Errorf("runs not ordered newest first: %s, %s", runs[0].ID, runs[1].ID)
	}
}

func TestSubscribe_StreamsEventsUntilDone(t *testing.T) {
	llm := &fakeLLM{responses: queueFor(stageJSON, synthesisJSON), delay: 20 * time.Millisecond}
	eng := newTestEngine(llm)

	id, err := eng.Analyze(context.Background(), engineInput())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	sub := eng.Subscribe(id)

	var stagesCompleted, recommendations int
	sawDone := false
	timeout := time.After(3 * time.Second)
	for !sawDone {
		select {
		case ev, ok := <-sub.Ch:
			if !ok {
				sawDone = true
				break
			}
			switch ev.Type {
			case "stage_completed":
				stagesCompleted++
			case "recommendation":
				recommendations++
			case "done":
				sawDone = true
			}
		case <-timeout:
			t.Fatal("no done event within deadline")
		}
	}
	if stagesCompleted == 0 {
		t.Error("no stage_completed events observed")
	}
	if recommendations == 0 {
		t.Error("no recommendation events observed")
	}
}

func TestSubscribe_TerminalRunClosesImmediately(t *testing.T) {
	llm := &fakeLLM{responses: queueFor(stageJSON, synthesisJSON)}
	eng := newTestEngine(llm)

	id, err := eng.Analyze(context.Background(), engineInput())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	run := waitForTerminal(t, eng, id)
	if run.State != engine.StateConcluded {
		t.Fatalf("state = %s, want CONCLUDED", run.State)
	}

	// Subscribing after the run has concluded must not hand back a
	// channel that never closes.
	sub := eng.Subscribe(id)
	timeout := time.After(time.Second)

	select {
	case ev, ok := <-sub.Ch:
		if !ok {
			t.Fatal("channel closed without a done event")
		}
		if ev.Type != "done" {
			t.Fatalf("event type = %s, want done", ev.Type)
		}
		if ev.State != engine.StateConcluded {
			t.Errorf("event state = %s, want CONCLUDED", ev.State)
		}
	case <-timeout:
		t.Fatal("no event delivered for a terminal run")
	}

	select {
	case _, ok := <-sub.Ch:
		if ok {
			t.Fatal("expected channel to close after the done event")
		}
	case <-timeout:
		t.Fatal("channel not closed for a terminal run")
	}
}
