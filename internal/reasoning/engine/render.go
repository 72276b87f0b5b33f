package engine

// Evidence rendering: turns the snapshot, rule findings, and scores into
// the plain-text sections stage prompts reference. Rule IDs and score
// references are rendered verbatim so synthesis can cite them.

import (
	"fmt"
	"strings"

	"github.com/plantops/plantops-ai/internal/models"
	"github.com/plantops/plantops-ai/internal/reasoning/prompt"
	"github.com/plantops/plantops-ai/internal/rules"
)

func renderStageInputs(scenario string, snap *models.Snapshot, ruleOut *rules.Output, scores []models.Score) prompt.StageInputs {
	return prompt.StageInputs{
		Scenario:         scenario,
		Event:            renderEvent(snap.Event),
		RuleSummary:      renderRuleSummary(ruleOut.Findings),
		BreakdownRisks:   renderScores(scores, models.ScoreBreakdownRisk),
		DelayRisks:       renderScores(scores, models.ScoreDelayRisk),
		SupplierRisks:    renderScores(scores, models.ScoreSupplierRisk),
		LineMaster:       renderLines(snap),
		ShiftMaster:      renderShifts(snap),
		SupplierMaster:   renderSuppliers(snap.Suppliers),
		InventorySummary: renderInventory(snap),
		OrderBook:        renderOrders(snap.Orders),
	}
}

func renderEvent(ev *models.DisruptionEvent) string {
	if ev == nil {
		return "No event data."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "kind=%s", ev.Kind)
	if ev.AffectedID != "" {
		fmt.Fprintf(&b, " affected=%s", ev.AffectedID)
	}
	if ev.Description != "" {
		fmt.Fprintf(&b, ": %s", ev.Description)
	}
	return b.String()
}

func renderRuleSummary(findings []models.RuleFinding) string {
	if len(findings) == 0 {
		return ""
	}
	var b strings.Builder
	for _, f := range findings {
		status := "ok"
		if f.Fired {
			status = "FIRED"
		}
		fmt.Fprintf(&b, "  %s [%s, %s]: %s\n", f.RuleID, status, f.Severity, f.Condition)
		if f.Fired && f.Detail != "" {
			fmt.Fprintf(&b, "    %s\n", f.Detail)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderScores renders one score kind as "ref = value (band)" lines.
func renderScores(scores []models.Score, kind models.ScoreKind) string {
	var b strings.Builder
	for _, s := range scores {
		if s.Kind != kind {
			continue
		}
		switch kind {
		case models.ScoreSupplierRisk:
			fmt.Fprintf(&b, "  %s = %.1f/100 (%s)", s.Ref(), s.Value, s.Band)
		default:
			fmt.Fprintf(&b, "  %s = %.2f%% (%s)", s.Ref(), s.Value*100, s.Band)
		}
		if s.Fallback {
			b.WriteString(" [heuristic]")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderLines(snap *models.Snapshot) string {
	var b strings.Builder
	for _, l := range snap.Lines {
		fmt.Fprintf(&b, "  %s: capacity=%.0f/day, OEE=%.1f%%, MTTR=%.1fh, MTBF=%.1fh, utilization=%.1f%%",
			l.ID, l.DailyCapacity, l.OEEPct, l.MTTRHours, l.MTBFHours, l.UtilizationPct)
		if agg, ok := snap.LineStats[l.ID]; ok {
			fmt.Fprintf(&b, "; observed mean uptime=%.1f%%, mean output=%.1f, mean inventory=%.1f%%",
				agg.MeanUptimePct, agg.MeanOutput, agg.MeanInventoryPct)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderShifts(snap *models.Snapshot) string {
	var b strings.Builder
	for _, s := range snap.Shifts {
		fmt.Fprintf(&b, "  %s: staffing=%d, overtime ceiling=%.1fh", s.ID, s.Staffing, s.OvertimeCeilingHours)
		if avail, ok := snap.ShiftAvail[s.ID]; ok {
			fmt.Fprintf(&b, ", mean worker availability=%.1f%%", avail)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderSuppliers(suppliers []models.Supplier) string {
	var b strings.Builder
	for _, s := range suppliers {
		fmt.Fprintf(&b, "  %s", s.ID)
		if s.Component != "" {
			fmt.Fprintf(&b, " (%s)", s.Component)
		}
		fmt.Fprintf(&b, ": lead time=%.1f days, reliability=%.1f%%\n", s.LeadTimeDays, s.ReliabilityPct)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderInventory(snap *models.Snapshot) string {
	var b strings.Builder
	for _, item := range snap.Inventory {
		fmt.Fprintf(&b, "  %s: on hand=%.0f, reorder point=%.0f, safety stock=%.0f\n",
			item.ID, item.OnHand, item.ReorderPoint, item.SafetyStock)
	}
	for _, l := range snap.Lines {
		agg, ok := snap.LineStats[l.ID]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "  line %s: mean inventory=%.1f%%, delayed component share=%.0f%%", l.ID, agg.MeanInventoryPct, agg.DelayedShare*100)
		if agg.ShortageSeen {
			b.WriteString(", SHORTAGE observed")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderOrders(orders []models.Order) string {
	if len(orders) == 0 {
		return ""
	}
	var b strings.Builder
	// First 10 only, the order book can be large.
	for i, o := range orders {
		if i >= 10 {
			fmt.Fprintf(&b, "  (%d more orders)\n", len(orders)-10)
			break
		}
		fmt.Fprintf(&b, "  %s: line=%s, qty=%.0f, due=%s\n", o.ID, o.LineID, o.Quantity, o.DueDate.Format("2006-01-02"))
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatStageFindings renders a completed stage's contribution for the
// accumulated context later stages and synthesis consume.
func formatStageFindings(res StageResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n--- %s ---\n", res.Stage.Label())
	if res.Analysis != "" {
		b.WriteString(res.Analysis)
		b.WriteString("\n")
	}
	for _, r := range res.Recommendations {
		fmt.Fprintf(&b, "  proposed: %s (priority %d", r.Action, r.Priority)
		if r.EstimatedKPIImpact != "" {
			fmt.Fprintf(&b, ", %s", r.EstimatedKPIImpact)
		}
		b.WriteString(")\n")
	}
	return b.String()
}
