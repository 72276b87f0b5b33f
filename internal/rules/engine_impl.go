package rules

// Package rules — concrete Engine implementation.

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/plantops/plantops-ai/internal/config"
	"github.com/plantops/plantops-ai/internal/metrics"
	"github.com/plantops/plantops-ai/internal/models"
)

// engineImpl is the concrete implementation of Engine.
type engineImpl struct {
	thresholds config.RuleThresholds
}

type ruleFunc func(snap *models.Snapshot, thr config.RuleThresholds) models.RuleFinding

// battery is the fixed rule order. Index position is the output position.
var battery = []struct {
	id   string
	eval ruleFunc
}{
	{RuleLowMachineHealth, checkMachineHealth},
	{RuleLineBreakdown, checkLineBreakdown},
	{RuleDemandSpike, checkDemandSpike},
	{RuleLowInventory, checkInventory},
	{RuleComponentShortage, checkComponentShortage},
	{RuleLineOverload, checkOverload},
	{RuleWorkforceShortfall, checkWorkforce},
}

// Evaluate runs the full battery against the snapshot.
func (e *engineImpl) Evaluate(ctx context.Context, snap *models.Snapshot) (*Output, error) {
	if err := validateSnapshot(snap); err != nil {
		return nil, err
	}

	// Checks are independent pure functions over the immutable snapshot,
	// so they run concurrently. Output order stays the battery order.
	findings := make([]models.RuleFinding, len(battery))
	var wg sync.WaitGroup
	for i, rule := range battery {
		wg.Add(1)
		go func(i int, id string, eval ruleFunc) {
			defer wg.Done()
			f := eval(snap, e.thresholds)
			f.RuleID = id
			findings[i] = f
		}(i, rule.id, rule.eval)
	}
	wg.Wait()

	out := &Output{
		Findings:        findings,
		OverallSeverity: models.SeverityLow,
	}
	seen := make(map[models.ActionTag]bool)
	for _, f := range findings {
		if !f.Fired {
			continue
		}
		out.Triggered = append(out.Triggered, f)
		out.OverallSeverity = models.MaxSeverity(out.OverallSeverity, f.Severity)
		for _, a := range f.Actions {
			if !seen[a] {
				seen[a] = true
				out.Actions = append(out.Actions, a)
			}
		}
		metrics.RuleFiringsTotal.WithLabelValues(f.RuleID, string(f.Severity)).Inc()
	}

	return out, nil
}

// validateSnapshot guards against malformed input reaching the battery.
// Unreachable when the snapshot builder's contract holds.
func validateSnapshot(snap *models.Snapshot) error {
	if snap == nil {
		return &models.RuleEvaluationError{Reason: "nil snapshot"}
	}
	if len(snap.Observations) == 0 {
		return &models.RuleEvaluationError{Reason: "snapshot has no observations"}
	}
	if len(snap.LineStats) == 0 {
		return &models.RuleEvaluationError{Reason: "snapshot has no derived line statistics"}
	}
	if len(snap.ShiftAvail) == 0 {
		return &models.RuleEvaluationError{Reason: "snapshot has no derived shift availability"}
	}
	return nil
}

// ─── Individual rules ───

func checkMachineHealth(snap *models.Snapshot, thr config.RuleThresholds) models.RuleFinding {
	worstLine, worstUptime := worstLineBy(snap, func(a models.LineAggregates) float64 {
		return a.MeanUptimePct
	})
	fired := worstUptime < thr.MachineUptimeCriticalPct
	return models.RuleFinding{
		Name:      "Low Machine Health",
		Fired:     fired,
		Subject:   worstLine,
		Metric:    "mean_uptime_pct",
		Threshold: thr.MachineUptimeCriticalPct,
		Observed:  worstUptime,
		Condition: fmt.Sprintf("Mean uptime for %s = %.1f%% %s %.0f%% threshold",
			worstLine, worstUptime, cmp(fired, "<", ">="), thr.MachineUptimeCriticalPct),
		Severity: severityIf(fired, models.SeverityHigh),
		Actions:  []models.ActionTag{models.ActionDispatchMaintenance},
		Detail:   fmt.Sprintf("Line %s uptime is %s maintenance threshold.", worstLine, belowAbove(fired)),
	}
}

func checkLineBreakdown(snap *models.Snapshot, thr config.RuleThresholds) models.RuleFinding {
	f := models.RuleFinding{
		Name:     "Line Breakdown Detected",
		Metric:   "event_kind",
		Severity: models.SeverityLow,
		Actions:  []models.ActionTag{models.ActionDispatchMaintenance, models.ActionReallocateLine},
	}

	ev := snap.Event
	if ev == nil {
		f.Condition = "No disruption event reported"
		return f
	}
	desc := strings.ToLower(ev.Description)
	isFailure := ev.Kind == models.EventEquipmentFailure ||
		strings.Contains(desc, "breakdown") ||
		strings.Contains(desc, "malfunction")
	if !isFailure {
		f.Condition = fmt.Sprintf("Event kind %q is not an equipment failure", ev.Kind)
		return f
	}

	f.Fired = true
	f.Severity = models.SeverityCritical
	f.Subject = ev.AffectedID

	repair := "unknown"
	if line, ok := snap.LineByID(ev.AffectedID); ok && line.MTTRHours > 0 {
		repair = fmt.Sprintf("%.0f hours (MTTR)", line.MTTRHours)
	}
	f.Condition = fmt.Sprintf("Equipment failure on %s, repair est. %s", ev.AffectedID, repair)
	f.Detail = fmt.Sprintf("Description: %s. Production must be redistributed while %s is repaired.",
		ev.Description, ev.AffectedID)
	return f
}

func checkDemandSpike(snap *models.Snapshot, thr config.RuleThresholds) models.RuleFinding {
	threshold := snap.DemandMean + thr.DemandSpikeSigma*snap.DemandStdDev
	fired := snap.DemandPeak > threshold
	return models.RuleFinding{
		Name:      "Demand Spike Detection",
		Fired:     fired,
		Metric:    "demand_peak",
		Threshold: threshold,
		Observed:  snap.DemandPeak,
		Condition: fmt.Sprintf("Peak demand (%.0f) %s threshold (%.0f = mean+%.0f*stddev)",
			snap.DemandPeak, cmp(fired, ">", "<="), threshold, thr.DemandSpikeSigma),
		Severity: severityIf(fired, models.SeverityHigh),
		Actions:  []models.ActionTag{models.ActionIncreaseShift},
		Detail:   fmt.Sprintf("Mean demand = %.0f, stddev = %.0f", snap.DemandMean, snap.DemandStdDev),
	}
}

func checkInventory(snap *models.Snapshot, thr config.RuleThresholds) models.RuleFinding {
	worstLine, worstLevel := worstLineBy(snap, func(a models.LineAggregates) float64 {
		return a.MeanInventoryPct
	})
	fired := worstLevel < thr.InventoryCriticalPct
	return models.RuleFinding{
		Name:      "Low Inventory",
		Fired:     fired,
		Subject:   worstLine,
		Metric:    "mean_inventory_pct",
		Threshold: thr.InventoryCriticalPct,
		Observed:  worstLevel,
		Condition: fmt.Sprintf("Inventory for %s = %.1f%% %s %.0f%% threshold",
			worstLine, worstLevel, cmp(fired, "<", ">="), thr.InventoryCriticalPct),
		Severity: severityIf(fired, models.SeverityHigh),
		Actions:  []models.ActionTag{models.ActionRaiseSupplyAlert},
		Detail:   fmt.Sprintf("Line %s may face stockout risk.", worstLine),
	}
}

func checkComponentShortage(snap *models.Snapshot, thr config.RuleThresholds) models.RuleFinding {
	// Iterate the reference lines in slice order so the subject is stable
	// across evaluations of the same snapshot; ties keep the first line.
	shortage := false
	maxDelayed := 0.0
	subject := ""
	for _, line := range snap.Lines {
		agg, ok := snap.LineStats[line.ID]
		if !ok {
			continue
		}
		if agg.ShortageSeen && !shortage {
			shortage = true
			subject = line.ID
		}
		if agg.DelayedShare > maxDelayed {
			maxDelayed = agg.DelayedShare
			if !shortage {
				subject = line.ID
			}
		}
	}
	fired := shortage || maxDelayed > thr.ComponentDelayedShare

	cond := fmt.Sprintf("Delayed components in %.0f%% of window (threshold %.0f%%)",
		maxDelayed*100, thr.ComponentDelayedShare*100)
	if shortage {
		cond = fmt.Sprintf("Component shortage reported for %s", subject)
	}
	return models.RuleFinding{
		Name:      "Component Supply Risk",
		Fired:     fired,
		Subject:   subject,
		Metric:    "component_delayed_share",
		Threshold: thr.ComponentDelayedShare,
		Observed:  maxDelayed,
		Condition: cond,
		Severity:  severityIf(fired, models.SeverityHigh),
		Actions:   []models.ActionTag{models.ActionSwitchSupplier},
		Detail:    fmt.Sprintf("Shortage seen: %t, max delayed share: %.2f", shortage, maxDelayed),
	}
}

func checkOverload(snap *models.Snapshot, thr config.RuleThresholds) models.RuleFinding {
	// The affected line from a breakdown event is down, not overloaded.
	affected := ""
	if snap.Event != nil && snap.Event.Kind == models.EventEquipmentFailure {
		affected = snap.Event.AffectedID
	}

	worst := models.Line{}
	worstUtil := 0.0
	for _, line := range snap.Lines {
		if line.ID == affected {
			continue
		}
		if line.UtilizationPct > worstUtil {
			worstUtil = line.UtilizationPct
			worst = line
		}
	}

	fired := worstUtil > thr.UtilizationMaxPct
	cond := "No eligible line to evaluate for overload"
	detail := ""
	if worst.ID != "" {
		cond = fmt.Sprintf("%s utilization = %.0f%% of %.0f units/day capacity",
			worst.ID, worstUtil, worst.DailyCapacity)
		detail = fmt.Sprintf("Daily capacity for %s: %.0f units/day, OEE: %.0f%%", worst.ID, worst.DailyCapacity, worst.OEEPct)
	}
	return models.RuleFinding{
		Name:      "Line Overload",
		Fired:     fired,
		Subject:   worst.ID,
		Metric:    "utilization_pct",
		Threshold: thr.UtilizationMaxPct,
		Observed:  worstUtil,
		Condition: cond,
		Severity:  severityIf(fired, models.SeverityHigh),
		Actions:   []models.ActionTag{models.ActionReallocateLine},
		Detail:    detail,
	}
}

func checkWorkforce(snap *models.Snapshot, thr config.RuleThresholds) models.RuleFinding {
	// Stable iteration over the reference shifts; ties keep the first.
	worstShift := ""
	worstAvail := 0.0
	first := true
	for _, shift := range snap.Shifts {
		avail, ok := snap.ShiftAvail[shift.ID]
		if !ok {
			continue
		}
		if first || avail < worstAvail {
			worstShift = shift.ID
			worstAvail = avail
			first = false
		}
	}

	fired := worstAvail < thr.WorkerAvailabilityPct
	gap := thr.WorkerAvailabilityPct - worstAvail
	return models.RuleFinding{
		Name:      "Workforce Below Target",
		Fired:     fired,
		Subject:   worstShift,
		Metric:    "mean_worker_availability_pct",
		Threshold: thr.WorkerAvailabilityPct,
		Observed:  worstAvail,
		Condition: fmt.Sprintf("Shift %s availability = %.1f%% %s target %.0f%% (gap %.1fpp)",
			worstShift, worstAvail, cmp(fired, "<", ">="), thr.WorkerAvailabilityPct, gap),
		Severity: severityIf(fired, models.SeverityMedium),
		Actions:  []models.ActionTag{models.ActionIncreaseShift},
		Detail:   fmt.Sprintf("Consider overtime or temporary staff for shift %s.", worstShift),
	}
}

// ─── Helpers ───

// worstLineBy returns the line with the lowest value of the given
// aggregate, iterating in stable order over the reference lines.
func worstLineBy(snap *models.Snapshot, metric func(models.LineAggregates) float64) (string, float64) {
	worstLine := ""
	worstValue := 0.0
	first := true
	for _, line := range snap.Lines {
		agg, ok := snap.LineStats[line.ID]
		if !ok {
			continue
		}
		v := metric(agg)
		if first || v < worstValue {
			worstLine = line.ID
			worstValue = v
			first = false
		}
	}
	return worstLine, worstValue
}

func severityIf(fired bool, sev models.Severity) models.Severity {
	if fired {
		return sev
	}
	return models.SeverityLow
}

func cmp(fired bool, yes, no string) string {
	if fired {
		return yes
	}
	return no
}

func belowAbove(fired bool) string {
	if fired {
		return "below"
	}
	return "above"
}
