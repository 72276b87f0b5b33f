package prompt

// Package prompt — concrete Manager implementation with role and scenario templates.

import (
	"context"
	"fmt"
	"strings"

	"github.com/plantops/plantops-ai/internal/models"
)

// managerImpl is the concrete implementation of Manager.
type managerImpl struct{}

// NewManager creates a new prompt manager.
func NewManager() Manager {
	return &managerImpl{}
}

// ─── System prompts ───────────────────────────────────────────────────────────

const dataGroundingRule = `DATA RULE: Use ONLY data from the provided context. Every number must trace to the rule findings, risk scores, or reference data above. If a value is not in the data, say "Not in data" and do NOT estimate.`

const stageJSONContract = `Respond ONLY with valid JSON with keys: analysis (string), recommendations (array of objects with keys action, reasoning, priority, estimated_kpi_impact, estimated_time). priority is an integer from 1 (highest) to 5. Do NOT ask follow-up questions or suggest additional analysis.`

var systemPrompts = map[Stage]string{
	StageLineHealth: `You are a senior maintenance engineer (Line Health Analyst) at a vehicle assembly plant. ` +
		`You monitor OEE, MTTR, MTBF, and uptime telemetry to detect equipment failures early. ` +
		`Provide structured analysis with specific numbers from the data. ` + stageJSONContract,

	StageProduction: `You are the head of production planning (Production Planner) at a vehicle assembly plant. ` +
		`You know every line's capacity and utilization and decide which lines pick up slack when another goes offline. ` +
		`Never suggest rates exceeding actual line capacities. ` + stageJSONContract,

	StageInventory: `You are the inventory controller at a vehicle assembly plant. ` +
		`You track stock levels, safety buffers, and component lead times. ` +
		`Provide specific stock-level recommendations. ` + stageJSONContract,

	StageWorkforce: `You are the HR operations lead (Workforce Coordinator) at a vehicle assembly plant. ` +
		`You manage workers across shifts and decide overtime, cross-training, and temporary staffing. ` +
		`Reference actual shift data and never exceed overtime ceilings. ` + stageJSONContract,

	StageSupplyChain: `You are the supply chain manager at a vehicle assembly plant. ` +
		`You track supplier lead times and reliability scores and maintain alternate supplier contacts. ` +
		`Provide specific supplier recommendations. ` + stageJSONContract,

	StageSynthesis: `You are the plant director (Decision Orchestrator) at a vehicle assembly plant. ` +
		`You synthesise findings from maintenance, production, inventory, workforce, and supply chain into an executive action plan. ` +
		`Always respond in valid JSON with keys: executive_summary, recommendations, decision_justification. ` +
		`Do NOT ask follow-up questions or suggest additional analysis.`,
}

// ─── Stage prompt templates ───────────────────────────────────────────────────
//
// Templates are keyed by scenario label, then stage. Unknown scenarios fall
// back to the line_breakdown set, matching the default disruption case.

var stageTemplates = map[string]map[Stage]string{
	models.EventDemandSpike: {
		StageLineHealth: `Assess line capacity for a DEMAND SPIKE scenario (NOT a breakdown). Do NOT discuss MTTR or outages.

EVENT: {{.Event}}

RULE ENGINE RESULTS:
{{.RuleSummary}}

BREAKDOWN RISK PER LINE:
{{.BreakdownRisks}}

LINE REFERENCE DATA:
{{.LineMaster}}

` + dataGroundingRule + `

Determine: can the plant absorb the extra demand with current line capacity and utilization?`,

		StageProduction: `Create a production plan for a DEMAND SPIKE. NOT a breakdown.

RULE ENGINE RESULTS:
{{.RuleSummary}}

LINE REFERENCE DATA:
{{.LineMaster}}

ORDER BOOK:
{{.OrderBook}}

EARLIER STAGE FINDINGS:
{{.PriorFindings}}

` + dataGroundingRule + `

Answer: 1) Can the extra demand be fulfilled? 2) Will existing orders still dispatch on schedule?`,

		StageInventory: `Check inventory for a DEMAND SPIKE scenario.

RULE ENGINE RESULTS:
{{.RuleSummary}}

DELAY RISK PER LINE:
{{.DelayRisks}}

INVENTORY REFERENCE DATA:
{{.InventorySummary}}

EARLIER STAGE FINDINGS:
{{.PriorFindings}}

` + dataGroundingRule + `

Determine whether stock levels can support the spike and which items need reordering.`,

		StageWorkforce: `Plan workforce for a DEMAND SPIKE. NOT a breakdown.

SHIFT REFERENCE DATA:
{{.ShiftMaster}}

RULE ENGINE RESULTS:
{{.RuleSummary}}

EARLIER STAGE FINDINGS:
{{.PriorFindings}}

` + dataGroundingRule + `

Determine: is overtime needed? Respect each shift's overtime ceiling.`,

		StageSupplyChain: `Assess supply chain readiness for a DEMAND SPIKE.

SUPPLIER REFERENCE DATA:
{{.SupplierMaster}}

SUPPLIER RISK SCORES:
{{.SupplierRisks}}

RULE ENGINE RESULTS:
{{.RuleSummary}}

` + dataGroundingRule + `

Determine whether component supply can sustain the higher rate.`,
	},

	models.EventSupplyDelay: {
		StageLineHealth: `Assess line status for a SUPPLY DELAY scenario. NOT a breakdown.

EVENT: {{.Event}}

RULE ENGINE RESULTS:
{{.RuleSummary}}

LINE REFERENCE DATA:
{{.LineMaster}}

` + dataGroundingRule + `

Determine the impact of the component delay on line capacity.`,

		StageProduction: `Plan production around a SUPPLY DELAY. NOT a breakdown.

EVENT: {{.Event}}

RULE ENGINE RESULTS:
{{.RuleSummary}}

LINE REFERENCE DATA:
{{.LineMaster}}

ORDER BOOK:
{{.OrderBook}}

EARLIER STAGE FINDINGS:
{{.PriorFindings}}

` + dataGroundingRule + `

Determine how to mitigate the delay: line reallocation, resequencing, alternate models.`,

		StageInventory: `Check inventory for a SUPPLY DELAY scenario.

RULE ENGINE RESULTS:
{{.RuleSummary}}

DELAY RISK PER LINE:
{{.DelayRisks}}

INVENTORY REFERENCE DATA:
{{.InventorySummary}}

` + dataGroundingRule + `

Determine reorder needs and whether safety buffers cover the delay window.`,

		StageWorkforce: `Plan workforce adjustments for a SUPPLY DELAY.

SHIFT REFERENCE DATA:
{{.ShiftMaster}}

RULE ENGINE RESULTS:
{{.RuleSummary}}

EARLIER STAGE FINDINGS:
{{.PriorFindings}}

` + dataGroundingRule,

		StageSupplyChain: `Assess the supply chain for a SUPPLY DELAY (primary scenario).

EVENT: {{.Event}}

SUPPLIER REFERENCE DATA:
{{.SupplierMaster}}

SUPPLIER RISK SCORES:
{{.SupplierRisks}}

RULE ENGINE RESULTS:
{{.RuleSummary}}

` + dataGroundingRule + `

Determine: switch supplier? Expedite? Reference supplier lead times and reliability scores.`,
	},

	models.EventEquipmentFailure: {
		StageLineHealth: `Assess the line breakdown.

EVENT: {{.Event}}

RULE ENGINE RESULTS:
{{.RuleSummary}}

BREAKDOWN RISK PER LINE:
{{.BreakdownRisks}}

LINE REFERENCE DATA (capacity, OEE, MTTR, MTBF, utilization):
{{.LineMaster}}

` + dataGroundingRule + `

Determine:
1. Severity of the outage from the data
2. Which lines can absorb lost output, using spare capacity (capacity x (1 - utilization/100)), NOT full capacity
3. Immediate maintenance actions`,

		StageProduction: `Create a production reallocation plan for the line breakdown.

EVENT: {{.Event}}

RULE ENGINE RESULTS:
{{.RuleSummary}}

LINE REFERENCE DATA:
{{.LineMaster}}

ORDER BOOK:
{{.OrderBook}}

EARLIER STAGE FINDINGS:
{{.PriorFindings}}

` + dataGroundingRule + `

Plan: 1) Redistribute output to remaining lines 2) Recovery timeline using spare capacity only (remaining lines already run at their utilization level) 3) Orders at risk.`,

		StageInventory: `Check inventory impact of the line breakdown.

RULE ENGINE RESULTS:
{{.RuleSummary}}

DELAY RISK PER LINE:
{{.DelayRisks}}

INVENTORY REFERENCE DATA:
{{.InventorySummary}}

EARLIER STAGE FINDINGS:
{{.PriorFindings}}

` + dataGroundingRule,

		StageWorkforce: `Plan workforce adjustments for the line breakdown.

SHIFT REFERENCE DATA (staffing, overtime ceiling):
{{.ShiftMaster}}

RULE ENGINE RESULTS:
{{.RuleSummary}}

EARLIER STAGE FINDINGS:
{{.PriorFindings}}

` + dataGroundingRule + `

Overtime: respect each shift's overtime ceiling. Do NOT invent a conversion from overtime hours to extra units.`,

		StageSupplyChain: `Assess supply chain impact of the line breakdown.

EVENT: {{.Event}}

SUPPLIER REFERENCE DATA:
{{.SupplierMaster}}

SUPPLIER RISK SCORES:
{{.SupplierRisks}}

DELAY RISK PER LINE:
{{.DelayRisks}}

` + dataGroundingRule + `

Reference supplier names, lead times, and reliability scores.`,
	},
}

// ─── Synthesis template ───────────────────────────────────────────────────────

const synthesisTemplate = `Generate the integrated action plan and decision log.

` + dataGroundingRule + `

Synthesise the findings from all specialist stages into:
1. EXECUTIVE SUMMARY (3-4 sentences, user-friendly): what happened, key impact numbers, whether recovery is feasible, top actions.
2. TOP 5 PRIORITISED RECOMMENDATIONS, each MUST include: action, priority (1=highest to 5), reasoning, source_stage (one of line_health, production, inventory, workforce, supply_chain), estimated_time, expected_kpi_impact (e.g. "On-time delivery: -5%"), supporting_rules (array of rule IDs from the rule engine results), supporting_scores (array of score references of the form kind:subject, e.g. "breakdown-risk:L2").
   PRIORITY LOGIC: 1 = immediate operational risk (line down, maintenance); 2 = production recovery (reallocate); 3 = supply chain (supplier, components); 4 = workforce (overtime, shifts); 5 = preventive (inspections, buffers).
   Every recommendation MUST cite at least one supporting rule or score; recommendations without supporting evidence will be discarded.
3. DECISION JUSTIFICATION: which rules triggered, what thresholds were breached, what the risk scores showed.

SPECIALIST STAGE FINDINGS:
{{.PriorFindings}}

RULE ENGINE RESULTS:
{{.RuleSummary}}

RISK SCORES:
{{.BreakdownRisks}}
{{.DelayRisks}}
{{.SupplierRisks}}

Respond ONLY with valid JSON with keys: executive_summary, recommendations (array of objects with action/priority/reasoning/source_stage/estimated_time/expected_kpi_impact/supporting_rules/supporting_scores), decision_justification.
Complete ALL recommendations fully, do NOT truncate any field.`

// ─── managerImpl methods ──────────────────────────────────────────────────────

func (m *managerImpl) SystemPrompt(_ context.Context, stage Stage) (string, error) {
	p, ok := systemPrompts[stage]
	if !ok {
		return "", fmt.Errorf("unknown stage: %s", stage)
	}
	return p, nil
}

func (m *managerImpl) RenderStagePrompt(_ context.Context, stage Stage, in StageInputs) (string, error) {
	scenarioSet, ok := stageTemplates[in.Scenario]
	if !ok {
		scenarioSet = stageTemplates[models.EventEquipmentFailure]
	}
	tmpl, ok := scenarioSet[stage]
	if !ok {
		return "", fmt.Errorf("no template for stage %s", stage)
	}
	return render(tmpl, in), nil
}

func (m *managerImpl) RenderSynthesisPrompt(_ context.Context, in StageInputs) (string, error) {
	return render(synthesisTemplate, in), nil
}

// render performs simple placeholder substitution. Empty sections render
// as "Not in data" so the model never sees a dangling header.
func render(tmpl string, in StageInputs) string {
	sub := func(s, key, val string) string {
		if val == "" {
			val = "Not in data."
		}
		return strings.ReplaceAll(s, key, val)
	}

	out := sub(tmpl, "{{.Event}}", in.Event)
	out = sub(out, "{{.RuleSummary}}", in.RuleSummary)
	out = sub(out, "{{.BreakdownRisks}}", in.BreakdownRisks)
	out = sub(out, "{{.DelayRisks}}", in.DelayRisks)
	out = sub(out, "{{.SupplierRisks}}", in.SupplierRisks)
	out = sub(out, "{{.LineMaster}}", in.LineMaster)
	out = sub(out, "{{.ShiftMaster}}", in.ShiftMaster)
	out = sub(out, "{{.SupplierMaster}}", in.SupplierMaster)
	out = sub(out, "{{.InventorySummary}}", in.InventorySummary)
	out = sub(out, "{{.OrderBook}}", in.OrderBook)
	out = sub(out, "{{.PriorFindings}}", in.PriorFindings)
	return out
}
