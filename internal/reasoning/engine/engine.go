package engine

import (
	"context"

	"github.com/plantops/plantops-ai/internal/snapshot"
)

// Package engine provides the Reasoning Orchestrator — the decision core of plantops-ai.
//
// The orchestrator coordinates the entire analysis lifecycle:
//   Snapshot → Rule Battery → Risk Scoring → 5 Subdomain Stages →
//   Synthesis → Decision Log
//
// Responsibilities:
//   - Orchestrate the analysis workflow per run
//   - Manage the run state machine (Created → Running → Concluded / Failed / Cancelled)
//   - Build the snapshot and abort immediately on fatal context errors
//   - Evaluate the rule battery and collect the risk scores
//   - Execute the five subdomain reasoning stages strictly in sequence,
//     folding each stage's summary into the context of later stages
//   - Retry each LLM call with exponential backoff within a bounded budget;
//     exhausting the budget degrades the stage, never the run
//   - Run the synthesis stage: rank recommendations, enforce grounding,
//     cap the final list at five
//   - Fall back to rule-engine-only recommendations when no LLM provider
//     is configured or synthesis fails
//   - Build and persist decision log entries for every recommendation
//   - Stream run events to subscribers for the WebSocket layer
//
// Run Lifecycle:
//
//   1. Analyze is called with scenario rows, reference tables, and an
//      optional event descriptor. A run ID is returned immediately and
//      the pipeline continues detached from the request context.
//
//   2. Fatal phase: snapshot construction and rule evaluation. A
//      ContextError or RuleEvaluationError fails the whole run with the
//      originating stage identified.
//
//   3. Degradable phase: scoring and reasoning. Sub-scorer fallbacks and
//      stage failures accumulate as diagnostics on the run; analysis
//      always proceeds with the evidence that remains.
//
//   4. Synthesis: the final ranked list of at most five recommendations,
//      ordered by priority with severity-then-KPI-impact-magnitude
//      tie-break. Recommendations citing no rule finding and no score
//      are dropped before the decision log is built.
//
//   5. Conclusion: decision log entries are built, persisted, and the
//      run transitions to a terminal state.
//
// Concurrency:
//   - Multiple runs may execute in parallel; each has independent state
//   - Within a run the subdomain stages are strictly sequential
//   - Cancellation is cooperative and observed at stage boundaries
//
// Integration Points:
//   - Snapshot Builder: context assembly
//   - Rule Engine / Prediction Scorer: deterministic evidence
//   - Prompt Manager + LLM Adapter: one completion per stage
//   - Decision Log: evidence-linked entries per recommendation
//   - History Store: persisted decisions and run summaries
//   - Audit Logger: every lifecycle transition

// Engine defines the interface for analysis orchestration.
type Engine interface {
	// Analyze starts a new analysis run. Returns the run ID immediately;
	// the pipeline executes in the background.
	Analyze(ctx context.Context, in snapshot.Input) (string, error)

	// GetRun retrieves the current state of a run.
	GetRun(ctx context.Context, id string) (*Run, error)

	// CancelRun cancels an in-progress run. The pipeline observes the
	// cancellation at the next stage boundary.
	CancelRun(ctx context.Context, id string) error

	// ListRuns returns summaries of all runs held in memory, newest first.
	ListRuns(ctx context.Context) ([]*Run, error)

	// Subscribe registers for the run's event stream. The returned
	// subscriber channel is closed when the run reaches a terminal state.
	Subscribe(runID string) *Subscriber
}
