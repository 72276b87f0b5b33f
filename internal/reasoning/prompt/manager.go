package prompt

import "context"

// Package prompt provides role and scenario templates for reasoning stages.
//
// Responsibilities:
//   - Define the role system prompt for each subdomain stage
//   - Render scenario-shaped user prompts (demand_spike / supply_delay /
//     line_breakdown) from rule, score, and reference-data summaries
//   - Render the synthesis prompt that merges all stage findings
//   - Enforce the structured-JSON response contract in every prompt
//
// Stage Model:
//   Each "agent" is a role-tagged prompt pair, not an autonomous entity:
//   a system prompt fixing the role and output schema, plus a user prompt
//   projecting the evidence slice that subdomain needs. All stages are
//   dispatched through one generic execution path in the engine.
//
// Data Grounding:
//   Every prompt carries the grounding rule: use only numbers present in
//   the provided context, never estimate missing values. The synthesis
//   contract additionally requires each recommendation to cite the rule
//   IDs and score references that support it, which the engine verifies
//   before accepting the recommendation.
//
// Integration Points:
//   - Reasoning Engine: renders one prompt pair per stage call
//   - LLM Adapter: receives the rendered system + user messages

// Stage identifies one reasoning stage of the pipeline.
type Stage string

const (
	StageLineHealth  Stage = "line_health"
	StageProduction  Stage = "production"
	StageInventory   Stage = "inventory"
	StageWorkforce   Stage = "workforce"
	StageSupplyChain Stage = "supply_chain"
	StageSynthesis   Stage = "synthesis"
)

// SubdomainStages lists the specialist stages in execution order.
// Synthesis always runs last and is not part of this list.
var SubdomainStages = []Stage{
	StageLineHealth,
	StageProduction,
	StageInventory,
	StageWorkforce,
	StageSupplyChain,
}

// Label returns the human-readable role name for a stage.
func (s Stage) Label() string {
	switch s {
	case StageLineHealth:
		return "Line Health Analyst"
	case StageProduction:
		return "Production Planner"
	case StageInventory:
		return "Inventory Controller"
	case StageWorkforce:
		return "Workforce Coordinator"
	case StageSupplyChain:
		return "Supply Chain Monitor"
	case StageSynthesis:
		return "Decision Orchestrator"
	default:
		return string(s)
	}
}

// StageInputs carries the rendered evidence sections a stage prompt can
// reference. Sections irrelevant to a stage are simply not substituted.
type StageInputs struct {
	Scenario         string // demand_spike, supply_delay, or line_breakdown
	Event            string // disruption event descriptor, or "No event data"
	RuleSummary      string // rule engine findings, one line per rule
	BreakdownRisks   string // per-line breakdown probability and band
	DelayRisks       string // per-line delay risk and band
	SupplierRisks    string // per-supplier score and band
	LineMaster       string // line reference data slice
	ShiftMaster      string // shift reference data slice
	SupplierMaster   string // supplier reference data slice
	InventorySummary string // inventory reference data slice
	OrderBook        string // open orders slice
	PriorFindings    string // summarized output of earlier stages
}

// Manager defines the interface for prompt rendering.
type Manager interface {
	// SystemPrompt returns the role system prompt for a stage.
	SystemPrompt(ctx context.Context, stage Stage) (string, error)

	// RenderStagePrompt renders the user prompt for a subdomain stage,
	// shaped by the scenario label. Unknown scenarios fall back to the
	// line_breakdown templates.
	RenderStagePrompt(ctx context.Context, stage Stage, in StageInputs) (string, error)

	// RenderSynthesisPrompt renders the final synthesis prompt from the
	// accumulated stage findings.
	RenderSynthesisPrompt(ctx context.Context, in StageInputs) (string, error)
}
