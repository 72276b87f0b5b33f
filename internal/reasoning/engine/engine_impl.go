package engine

// Package engine — concrete Engine implementation.
//
// This implements the full analysis pipeline:
//   Build snapshot → Evaluate rules → Score risks →
//   Run subdomain stages → Synthesise → Record decisions
//
// Every lifecycle event (stage started/completed/degraded, conclusion)
// is forwarded to all registered subscribers so the frontend receives
// real-time progress updates via WebSocket.

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plantops/plantops-ai/internal/audit"
	"github.com/plantops/plantops-ai/internal/decisionlog"
	"github.com/plantops/plantops-ai/internal/history"
	"github.com/plantops/plantops-ai/internal/llm/adapter"
	"github.com/plantops/plantops-ai/internal/llm/types"
	"github.com/plantops/plantops-ai/internal/metrics"
	"github.com/plantops/plantops-ai/internal/models"
	"github.com/plantops/plantops-ai/internal/predict"
	"github.com/plantops/plantops-ai/internal/reasoning/prompt"
	"github.com/plantops/plantops-ai/internal/rules"
	"github.com/plantops/plantops-ai/internal/snapshot"
)

// RunState represents the lifecycle state of an analysis run.
type RunState string

const (
	StateCreated   RunState = "CREATED"
	StateRunning   RunState = "RUNNING"
	StateConcluded RunState = "CONCLUDED"
	StateFailed    RunState = "FAILED"
	StateCancelled RunState = "CANCELLED"
)

// Terminal reports whether the state is final for a run.
func (s RunState) Terminal() bool {
	return s == StateConcluded || s == StateFailed || s == StateCancelled
}

// StageRecommendation is one recommendation as emitted by a subdomain
// stage, before synthesis ranks and grounds the final list.
type StageRecommendation struct {
	Action             string `json:"action"`
	Reasoning          string `json:"reasoning"`
	Priority           int    `json:"priority"`
	EstimatedKPIImpact string `json:"estimated_kpi_impact"`
	EstimatedTime      string `json:"estimated_time"`
}

// StageResult records the outcome of one subdomain stage.
type StageResult struct {
	Stage           prompt.Stage          `json:"stage"`
	Analysis        string                `json:"analysis"`
	Recommendations []StageRecommendation `json:"recommendations"`
	Degraded        bool                  `json:"degraded"`
	DegradedReason  string                `json:"degraded_reason,omitempty"`
	DurationMs      int64                 `json:"duration_ms"`
}

// Run holds the full state of a single analysis run.
type Run struct {
	ID               string                    `json:"id"`
	Scenario         string                    `json:"scenario"`
	State            RunState                  `json:"state"`
	Snapshot         *models.Snapshot          `json:"-"`
	Findings         []models.RuleFinding      `json:"rule_findings"`
	Scores           []models.Score            `json:"scores"`
	OverallSeverity  models.Severity           `json:"overall_severity"`
	StageResults     []StageResult             `json:"stage_results"`
	Recommendations  []models.Recommendation   `json:"recommendations"`
	ExecutiveSummary string                    `json:"executive_summary"`
	Justification    string                    `json:"decision_justification"`
	Entries          []models.DecisionLogEntry `json:"decision_log"`
	Diagnostics      []models.Diagnostic       `json:"diagnostics"`
	TokensUsed       int                       `json:"tokens_used"`
	Error            string                    `json:"error,omitempty"`
	CreatedAt        time.Time                 `json:"created_at"`
	UpdatedAt        time.Time                 `json:"updated_at"`
	ConcludedAt      *time.Time                `json:"concluded_at,omitempty"`
}

// RunEvent is streamed to subscribers during an active run.
type RunEvent struct {
	RunID          string                 `json:"run_id"`
	Type           string                 `json:"type"` // "run_started" | "snapshot_built" | "rules_evaluated" | "scoring_completed" | "stage_started" | "stage_completed" | "stage_degraded" | "recommendation" | "conclusion" | "error" | "done"
	Stage          string                 `json:"stage,omitempty"`
	Message        string                 `json:"message,omitempty"`
	Recommendation *models.Recommendation `json:"recommendation,omitempty"`
	State          RunState               `json:"state"`
	Timestamp      time.Time              `json:"timestamp"`
}

// Subscriber receives run events in real-time.
type Subscriber struct {
	Ch chan RunEvent
}

// Options bounds the external text-generation calls.
type Options struct {
	StageTimeout time.Duration
	MaxRetries   int
	BackoffBase  time.Duration
}

// DefaultOptions returns the stock orchestrator limits.
func DefaultOptions() Options {
	return Options{
		StageTimeout: 60 * time.Second,
		MaxRetries:   2,
		BackoffBase:  500 * time.Millisecond,
	}
}

// Deps bundles the collaborators an engine needs.
type Deps struct {
	Builder     snapshot.Builder
	Rules       rules.Engine
	Scorer      predict.Scorer
	Models      *predict.Registry
	Prompts     prompt.Manager
	LLM         adapter.LLMAdapter
	DecisionLog decisionlog.Builder
	History     history.Store
	Audit       audit.Logger
	Logger      *zap.Logger
}

// engineImpl is the concrete Engine.
type engineImpl struct {
	deps Deps
	opts Options

	mu      sync.RWMutex
	runs    map[string]*Run
	cancels map[string]context.CancelFunc
	order   []string // run IDs in creation order

	subsMu      sync.Mutex
	subscribers map[string][]*Subscriber
}

// NewEngine creates a fully wired Engine.
func NewEngine(deps Deps, opts Options) Engine {
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = DefaultOptions().StageTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = DefaultOptions().MaxRetries
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultOptions().BackoffBase
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &engineImpl{
		deps:        deps,
		opts:        opts,
		runs:        make(map[string]*Run),
		cancels:     make(map[string]context.CancelFunc),
		subscribers: make(map[string][]*Subscriber),
	}
}

// ─── Pub/sub ──────────────────────────────────────────────────────────────────

// Subscribe registers a channel to receive real-time run events. A run
// already in a terminal state gets a channel that delivers one "done"
// event and closes immediately, so stream consumers never wait on a run
// that publishes nothing further.
func (e *engineImpl) Subscribe(runID string) *Subscriber {
	sub := &Subscriber{Ch: make(chan RunEvent, 64)}

	// Holding subsMu across the state check and the registration keeps
	// closeSubs from slipping in between them and orphaning the channel.
	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	e.mu.RLock()
	run, ok := e.runs[runID]
	var state RunState
	if ok {
		state = run.State
	}
	e.mu.RUnlock()

	if ok && state.Terminal() {
		sub.Ch <- RunEvent{RunID: runID, Type: "done", State: state, Timestamp: time.Now()}
		close(sub.Ch)
		return sub
	}

	e.subscribers[runID] = append(e.subscribers[runID], sub)
	return sub
}

// publish sends an event to all subscribers of the given run.
func (e *engineImpl) publish(id string, ev RunEvent) {
	e.subsMu.Lock()
	subs := e.subscribers[id]
	e.subsMu.Unlock()
	for _, s := range subs {
		select {
		case s.Ch <- ev:
		default:
		}
	}
}

// closeSubs closes all subscriber channels for a run.
func (e *engineImpl) closeSubs(id string) {
	e.subsMu.Lock()
	subs := e.subscribers[id]
	delete(e.subscribers, id)
	e.subsMu.Unlock()
	for _, s := range subs {
		close(s.Ch)
	}
}

// ─── Public interface ─────────────────────────────────────────────────────────

// Analyze starts a new analysis run and returns its ID.
func (e *engineImpl) Analyze(ctx context.Context, in snapshot.Input) (string, error) {
	if len(in.Rows) == 0 {
		return "", fmt.Errorf("analysis requires at least one scenario row")
	}
	if in.Scenario == "" {
		if in.Event != nil && in.Event.Kind != "" {
			in.Scenario = in.Event.Kind
		} else {
			in.Scenario = models.EventEquipmentFailure
		}
	}

	run := &Run{
		ID:        uuid.New().String(),
		Scenario:  in.Scenario,
		State:     StateCreated,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	// Detach from the request context so the run survives HTTP close.
	runCtx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.runs[run.ID] = run
	e.cancels[run.ID] = cancel
	e.order = append(e.order, run.ID)
	e.mu.Unlock()

	if e.deps.Audit != nil {
		_ = e.deps.Audit.LogAnalysisStarted(ctx, run.ID, run.Scenario)
	}

	go e.runAnalysis(runCtx, run, in)

	return run.ID, nil
}

// GetRun retrieves a run by ID. The returned value is a snapshot copy;
// slices reference the live run and must be treated as read-only.
func (e *engineImpl) GetRun(_ context.Context, id string) (*Run, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	run, ok := e.runs[id]
	if !ok {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	cp := *run
	return &cp, nil
}

// CancelRun cancels an in-progress run.
func (e *engineImpl) CancelRun(_ context.Context, id string) error {
	e.mu.Lock()
	run, ok := e.runs[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("run not found: %s", id)
	}
	if run.State.Terminal() {
		e.mu.Unlock()
		return fmt.Errorf("run %s is already in terminal state: %s", id, run.State)
	}
	cancel := e.cancels[id]
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// ListRuns returns all runs, newest first.
func (e *engineImpl) ListRuns(_ context.Context) ([]*Run, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Run, 0, len(e.order))
	for i := len(e.order) - 1; i >= 0; i-- {
		if run, ok := e.runs[e.order[i]]; ok {
			cp := *run
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ─── Core pipeline ────────────────────────────────────────────────────────────

func (e *engineImpl) runAnalysis(ctx context.Context, run *Run, in snapshot.Input) {
	start := time.Now()
	defer e.closeSubs(run.ID)
	defer e.releaseCancel(run.ID)

	e.transition(run, StateRunning)
	e.publish(run.ID, e.event(run, "run_started", "", "analysis started"))

	// Fatal phase: snapshot and rules.
	snap, err := e.deps.Builder.Build(ctx, in)
	if err != nil {
		e.fail(ctx, run, "context_builder", err)
		return
	}
	e.setSnapshot(run, snap)
	e.auditEvent(ctx, audit.NewEvent(audit.EventSnapshotBuilt).
		WithRunID(run.ID).WithScenario(run.Scenario).
		WithDescription(fmt.Sprintf("Snapshot built: %d observations, %d lines", len(snap.Observations), len(snap.Lines))).
		WithResult(audit.ResultSuccess))
	e.publish(run.ID, e.event(run, "snapshot_built", "", fmt.Sprintf("%d observations", len(snap.Observations))))

	ruleOut, err := e.deps.Rules.Evaluate(ctx, snap)
	if err != nil {
		e.fail(ctx, run, "rule_engine", err)
		return
	}
	e.mu.Lock()
	run.Findings = ruleOut.Findings
	run.OverallSeverity = ruleOut.OverallSeverity
	run.UpdatedAt = time.Now()
	e.mu.Unlock()
	e.auditEvent(ctx, audit.NewEvent(audit.EventRulesEvaluated).
		WithRunID(run.ID).WithScenario(run.Scenario).
		WithDescription(fmt.Sprintf("%d of %d rules fired, overall severity %s",
			len(ruleOut.Triggered), len(ruleOut.Findings), ruleOut.OverallSeverity)).
		WithResult(audit.ResultSuccess))
	e.publish(run.ID, e.event(run, "rules_evaluated", "", fmt.Sprintf("%d rules fired", len(ruleOut.Triggered))))

	// Degradable phase: scoring.
	scoreOut := e.deps.Scorer.Score(ctx, snap, e.deps.Models)
	e.mu.Lock()
	run.Scores = scoreOut.Scores
	run.Diagnostics = append(run.Diagnostics, scoreOut.Diagnostics...)
	run.UpdatedAt = time.Now()
	e.mu.Unlock()
	for _, d := range scoreOut.Diagnostics {
		if e.deps.Audit != nil {
			_ = e.deps.Audit.LogScoringFallback(ctx, run.ID, d.Component, d.Message)
		}
	}
	e.publish(run.ID, e.event(run, "scoring_completed", "", fmt.Sprintf("%d scores", len(scoreOut.Scores))))

	inputs := renderStageInputs(in.Scenario, snap, ruleOut, scoreOut.Scores)

	// Rule-engine-only mode when no LLM provider is configured.
	if e.deps.LLM == nil || !e.deps.LLM.Configured() {
		e.deps.Logger.Info("llm provider not configured, rule-engine-only analysis",
			zap.String("run_id", run.ID))
		e.addDiagnostic(run, models.Diagnostic{
			Kind:      models.DiagStageDegraded,
			Component: "orchestrator",
			Message:   "LLM provider not configured; rule-engine-only analysis",
			At:        time.Now(),
		})
		recs := ruleOnlyRecommendations(ruleOut)
		summary, justification := ruleOnlyNarrative(ruleOut, "no LLM provider configured")
		e.conclude(ctx, run, start, recs, summary, justification)
		return
	}

	// Sequential subdomain stages. Cancellation is observed here, at
	// stage boundaries only.
	for _, stage := range prompt.SubdomainStages {
		if ctx.Err() != nil {
			e.cancelRunState(ctx, run)
			return
		}
		res := e.runStage(ctx, run, stage, inputs)
		e.mu.Lock()
		run.StageResults = append(run.StageResults, res)
		run.UpdatedAt = time.Now()
		e.mu.Unlock()
		if !res.Degraded {
			inputs.PriorFindings += formatStageFindings(res)
		}
	}

	if ctx.Err() != nil {
		e.cancelRunState(ctx, run)
		return
	}

	// Synthesis.
	recs, summary, justification, err := e.runSynthesis(ctx, run, inputs, ruleOut, scoreOut.Scores)
	if err != nil {
		e.deps.Logger.Warn("synthesis failed, falling back to rule-engine-only recommendations",
			zap.String("run_id", run.ID), zap.Error(err))
		e.stageDegraded(ctx, run, prompt.StageSynthesis, err)
		recs = ruleOnlyRecommendations(ruleOut)
		summary, justification = ruleOnlyNarrative(ruleOut, fmt.Sprintf("synthesis unavailable: %v", err))
	}

	e.conclude(ctx, run, start, recs, summary, justification)
}

// runStage executes one subdomain stage: render, call, parse. Any
// failure degrades the stage and never the run.
func (e *engineImpl) runStage(ctx context.Context, run *Run, stage prompt.Stage, in prompt.StageInputs) StageResult {
	stageStart := time.Now()
	e.publish(run.ID, e.event(run, "stage_started", string(stage), stage.Label()))
	e.auditEvent(ctx, audit.NewEvent(audit.EventStageStarted).
		WithRunID(run.ID).WithStage(string(stage)).WithResult(audit.ResultPending))

	system, err := e.deps.Prompts.SystemPrompt(ctx, stage)
	if err != nil {
		return e.degradeStage(ctx, run, stage, stageStart, "render_failed", err)
	}
	user, err := e.deps.Prompts.RenderStagePrompt(ctx, stage, in)
	if err != nil {
		return e.degradeStage(ctx, run, stage, stageStart, "render_failed", err)
	}

	text, tokens, err := e.completeWithRetry(ctx, system, user)
	if err != nil {
		return e.degradeStage(ctx, run, stage, stageStart, classifyCallError(err), err)
	}
	e.mu.Lock()
	run.TokensUsed += tokens
	e.mu.Unlock()

	parsed, err := parseStageResponse(text)
	if err != nil {
		return e.degradeStage(ctx, run, stage, stageStart, "malformed_response", err)
	}

	duration := time.Since(stageStart)
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(duration.Seconds())
	if e.deps.Audit != nil {
		_ = e.deps.Audit.LogStageCompleted(ctx, run.ID, string(stage), duration)
	}
	e.publish(run.ID, e.event(run, "stage_completed", string(stage),
		fmt.Sprintf("%d recommendations", len(parsed.Recommendations))))

	return StageResult{
		Stage:           stage,
		Analysis:        parsed.Analysis,
		Recommendations: parsed.Recommendations,
		DurationMs:      duration.Milliseconds(),
	}
}

func (e *engineImpl) degradeStage(ctx context.Context, run *Run, stage prompt.Stage, stageStart time.Time, reason string, err error) StageResult {
	metrics.StageDegradedTotal.WithLabelValues(string(stage), reason).Inc()
	e.stageDegraded(ctx, run, stage, err)
	return StageResult{
		Stage:          stage,
		Degraded:       true,
		DegradedReason: err.Error(),
		DurationMs:     time.Since(stageStart).Milliseconds(),
	}
}

// stageDegraded records the diagnostic, audit entry, and event for a
// degraded stage. The stage's contribution stays empty.
func (e *engineImpl) stageDegraded(ctx context.Context, run *Run, stage prompt.Stage, err error) {
	e.addDiagnostic(run, models.Diagnostic{
		Kind:      models.DiagStageDegraded,
		Component: string(stage),
		Message:   err.Error(),
		At:        time.Now(),
	})
	if e.deps.Audit != nil {
		_ = e.deps.Audit.LogStageDegraded(ctx, run.ID, string(stage), err.Error())
	}
	e.deps.Logger.Warn("reasoning stage degraded",
		zap.String("run_id", run.ID), zap.String("stage", string(stage)), zap.Error(err))
	e.publish(run.ID, e.event(run, "stage_degraded", string(stage), err.Error()))
}

// completeWithRetry performs one LLM call with a per-call timeout and a
// bounded retry budget with exponential backoff.
func (e *engineImpl) completeWithRetry(ctx context.Context, system, user string) (string, int, error) {
	messages := []types.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}

	var lastErr error
	for attempt := 0; attempt <= e.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.LLMRetriesTotal.WithLabelValues(string(e.deps.LLM.Provider())).Inc()
			backoff := e.opts.BackoffBase * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return "", 0, ctx.Err()
			case <-time.After(backoff):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, e.opts.StageTimeout)
		text, usage, err := e.deps.LLM.Complete(callCtx, messages)
		cancel()
		if err == nil {
			tokens := 0
			if usage != nil {
				tokens = usage.TotalTokens
			}
			return text, tokens, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
	}
	return "", 0, fmt.Errorf("retry budget exhausted: %w", lastErr)
}

// ─── Terminal transitions ─────────────────────────────────────────────────────

func (e *engineImpl) conclude(ctx context.Context, run *Run, start time.Time, recs []models.Recommendation, summary, justification string) {
	entries, err := e.deps.DecisionLog.BuildEntries(run.ID, run.Scenario, time.Now(), recs, run.Findings, run.Scores)
	if err != nil {
		// Malformed recommendation input is a programming error, fatal.
		e.fail(ctx, run, "decision_log", err)
		return
	}

	e.mu.Lock()
	run.Recommendations = recs
	run.ExecutiveSummary = summary
	run.Justification = justification
	run.Entries = entries
	run.State = StateConcluded
	now := time.Now()
	run.ConcludedAt = &now
	run.UpdatedAt = now
	e.mu.Unlock()

	e.persistDecisions(ctx, run, entries)

	for i := range recs {
		metrics.RecommendationsEmitted.WithLabelValues(actionTagLabel(recs[i].Action)).Inc()
		e.publish(run.ID, RunEvent{
			RunID:          run.ID,
			Type:           "recommendation",
			Recommendation: &recs[i],
			State:          StateConcluded,
			Timestamp:      time.Now(),
		})
	}

	duration := time.Since(start)
	metrics.RunsTotal.WithLabelValues(run.Scenario, "concluded").Inc()
	metrics.RunDuration.WithLabelValues(run.Scenario).Observe(duration.Seconds())
	if e.deps.Audit != nil {
		_ = e.deps.Audit.LogAnalysisConcluded(ctx, run.ID, len(recs), duration)
	}
	e.deps.Logger.Info("analysis concluded",
		zap.String("run_id", run.ID),
		zap.String("scenario", run.Scenario),
		zap.Int("recommendations", len(recs)),
		zap.Int("diagnostics", len(run.Diagnostics)),
		zap.Duration("duration", duration))

	e.publish(run.ID, e.event(run, "conclusion", "", summary))
	e.publish(run.ID, e.event(run, "done", "", ""))
}

// persistDecisions writes each decision log entry to the history store.
func (e *engineImpl) persistDecisions(ctx context.Context, run *Run, entries []models.DecisionLogEntry) {
	if e.deps.History == nil {
		return
	}
	for _, entry := range entries {
		rec := history.DecisionRecord{
			RunID:      run.ID,
			DecisionID: entry.ID,
			Scenario:   entry.Scenario,
			Action:     entry.Recommendation.Action,
			Priority:   entry.Recommendation.Priority,
			Payload:    decisionlog.MarshalEntry(entry),
			RecordedAt: entry.Timestamp,
		}
		if err := e.deps.History.AppendDecision(ctx, &rec); err != nil {
			e.deps.Logger.Warn("failed to persist decision",
				zap.String("run_id", run.ID), zap.String("decision_id", entry.ID), zap.Error(err))
			continue
		}
		if e.deps.Audit != nil {
			_ = e.deps.Audit.LogDecisionRecorded(ctx, run.ID, entry.ID, entry.Recommendation.Action)
		}
	}
}

func (e *engineImpl) fail(ctx context.Context, run *Run, stage string, err error) {
	e.mu.Lock()
	run.State = StateFailed
	run.Error = fmt.Sprintf("%s: %v", stage, err)
	run.UpdatedAt = time.Now()
	e.mu.Unlock()

	metrics.RunsTotal.WithLabelValues(run.Scenario, "failed").Inc()
	if e.deps.Audit != nil {
		_ = e.deps.Audit.LogAnalysisFailed(ctx, run.ID, stage, err)
	}
	e.deps.Logger.Error("analysis failed",
		zap.String("run_id", run.ID), zap.String("stage", stage), zap.Error(err))

	e.publish(run.ID, e.event(run, "error", stage, err.Error()))
	e.publish(run.ID, e.event(run, "done", "", ""))
}

// cancelRunState marks a run cancelled. Partially completed stage
// outputs are discarded, not persisted.
func (e *engineImpl) cancelRunState(ctx context.Context, run *Run) {
	e.mu.Lock()
	run.State = StateCancelled
	run.StageResults = nil
	run.Recommendations = nil
	run.Entries = nil
	run.UpdatedAt = time.Now()
	e.mu.Unlock()

	metrics.RunsTotal.WithLabelValues(run.Scenario, "cancelled").Inc()
	if e.deps.Audit != nil {
		_ = e.deps.Audit.LogAnalysisFailed(ctx, run.ID, "cancelled", context.Canceled)
	}
	e.publish(run.ID, e.event(run, "done", "", "cancelled"))
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func (e *engineImpl) transition(run *Run, state RunState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	run.State = state
	run.UpdatedAt = time.Now()
}

func (e *engineImpl) setSnapshot(run *Run, snap *models.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	run.Snapshot = snap
	run.UpdatedAt = time.Now()
}

func (e *engineImpl) addDiagnostic(run *Run, d models.Diagnostic) {
	e.mu.Lock()
	defer e.mu.Unlock()
	run.Diagnostics = append(run.Diagnostics, d)
	run.UpdatedAt = time.Now()
}

func (e *engineImpl) releaseCancel(runID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cancel, ok := e.cancels[runID]; ok {
		cancel()
		delete(e.cancels, runID)
	}
}

func (e *engineImpl) event(run *Run, eventType, stage, message string) RunEvent {
	e.mu.RLock()
	state := run.State
	e.mu.RUnlock()
	return RunEvent{
		RunID:     run.ID,
		Type:      eventType,
		Stage:     stage,
		Message:   message,
		State:     state,
		Timestamp: time.Now(),
	}
}

func (e *engineImpl) auditEvent(ctx context.Context, ev *audit.Event) {
	if e.deps.Audit != nil {
		_ = e.deps.Audit.Log(ctx, ev)
	}
}
