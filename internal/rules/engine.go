package rules

import (
	"context"

	"github.com/plantops/plantops-ai/internal/config"
	"github.com/plantops/plantops-ai/internal/models"
)

// Package rules evaluates the deterministic rule battery against a
// snapshot.
//
// The battery is a fixed, ordered set of seven independent checks:
//
//   1. low_machine_health    per-line mean uptime below threshold
//   2. line_breakdown        disruption event is an equipment failure
//   3. demand_spike          peak demand above mean + n*stddev
//   4. low_inventory         per-line inventory below threshold
//   5. component_shortage    shortage seen, or delayed share too high
//   6. line_overload         reference utilization above threshold
//   7. workforce_shortfall   per-shift availability below target
//
// Every check runs unconditionally and reports a finding whether or not
// it fired, so a run always carries exactly seven findings and the
// decision log can show what was checked rather than only what
// triggered. Checks are pure functions over the immutable snapshot and
// may be evaluated concurrently; output order is always the battery
// order above.
//
// The engine makes no external calls. The only failure mode is a
// malformed snapshot, which returns a fatal *models.RuleEvaluationError.

// Rule identifiers, in battery order.
const (
	RuleLowMachineHealth   = "low_machine_health"
	RuleLineBreakdown      = "line_breakdown"
	RuleDemandSpike        = "demand_spike"
	RuleLowInventory       = "low_inventory"
	RuleComponentShortage  = "component_shortage"
	RuleLineOverload       = "line_overload"
	RuleWorkforceShortfall = "workforce_shortfall"
)

// Output is the result of one full battery evaluation.
type Output struct {
	Findings        []models.RuleFinding
	Triggered       []models.RuleFinding
	Actions         []models.ActionTag
	OverallSeverity models.Severity
}

// Engine defines the interface for rule evaluation.
type Engine interface {
	// Evaluate runs the full battery against the snapshot. The returned
	// findings are always exactly the seven battery rules in order.
	Evaluate(ctx context.Context, snap *models.Snapshot) (*Output, error)
}

// NewEngine creates a rule engine with the given thresholds. Zero-value
// thresholds are replaced by defaults.
func NewEngine(thresholds config.RuleThresholds) Engine {
	defaults := config.DefaultConfig().Rules
	if thresholds.MachineUptimeCriticalPct == 0 {
		thresholds.MachineUptimeCriticalPct = defaults.MachineUptimeCriticalPct
	}
	if thresholds.InventoryCriticalPct == 0 {
		thresholds.InventoryCriticalPct = defaults.InventoryCriticalPct
	}
	if thresholds.WorkerAvailabilityPct == 0 {
		thresholds.WorkerAvailabilityPct = defaults.WorkerAvailabilityPct
	}
	if thresholds.DemandSpikeSigma == 0 {
		thresholds.DemandSpikeSigma = defaults.DemandSpikeSigma
	}
	if thresholds.UtilizationMaxPct == 0 {
		thresholds.UtilizationMaxPct = defaults.UtilizationMaxPct
	}
	if thresholds.ComponentDelayedShare == 0 {
		thresholds.ComponentDelayedShare = defaults.ComponentDelayedShare
	}
	return &engineImpl{thresholds: thresholds}
}
