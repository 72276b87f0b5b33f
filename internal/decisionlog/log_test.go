package decisionlog_test

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/plantops/plantops-ai/internal/decisionlog"
	"github.com/plantops/plantops-ai/internal/models"
)

var testAt = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func testFindings() []models.RuleFinding {
	return []models.RuleFinding{
		{
			RuleID: "low_machine_health", Name: "Low Machine Health", Fired: true,
			Subject: "L2", Metric: "mean_uptime_pct", Threshold: 75, Observed: 62,
			Condition: "Mean uptime for L2 = 62.0% < 75% threshold",
			Severity:  models.SeverityHigh,
			Actions:   []models.ActionTag{models.ActionDispatchMaintenance},
		},
		{
			RuleID: "demand_spike", Name: "Demand Spike Detection", Fired: false,
			Metric: "demand_peak", Threshold: 460, Observed: 300,
			Condition: "Peak demand (300) <= threshold (460 = mean+2*stddev)",
			Severity:  models.SeverityLow,
			Actions:   []models.ActionTag{models.ActionIncreaseShift},
		},
	}
}

func testScores() []models.Score {
	return []models.Score{
		{Subject: "L2", Kind: models.ScoreBreakdownRisk, Value: 0.76, Band: models.BandHigh, Fallback: true},
		{Subject: "SUP1", Kind: models.ScoreSupplierRisk, Value: 89, Band: models.BandLow},
	}
}

func testRecs() []models.Recommendation {
	return []models.Recommendation{
		{
			Action:            "Dispatch maintenance crew to line L2",
			Priority:          1,
			Reasoning:         "Uptime collapsed below the maintenance threshold",
			SourceStage:       "line_health",
			Severity:          models.SeverityHigh,
			ExpectedKPIImpact: "Line Downtime: +2-8 hrs; On-time Delivery: -5 to -15%",
			EstimatedTime:     "Immediate",
			SupportingRules:   []string{"low_machine_health"},
			SupportingScores:  []string{"breakdown-risk:L2"},
		},
		{
			Action:           "Raise supply alert for seat assemblies",
			Priority:         2,
			Reasoning:        "Supplier risk is acceptable but inventory is trending down",
			SourceStage:      "inventory",
			Severity:         models.SeverityMedium,
			SupportingScores: []string{"supplier-risk:SUP1"},
		},
	}
}

func TestBuildEntries_AssemblesEvidence(t *testing.T) {
	b := decisionlog.NewBuilder()
	entries, err := b.BuildEntries("9f2c41aa-run", "equipment_failure", testAt, testRecs(), testFindings(), testScores())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	first := entries[0]
	if first.ID != "DEC-9f2c41aa-01" {
		t.Errorf("unexpected entry ID %q", first.ID)
	}
	if first.Scenario != "equipment_failure" {
		t.Errorf("unexpected scenario %q", first.Scenario)
	}
	if len(first.RulesTriggered) != 1 || first.RulesTriggered[0].RuleID != "low_machine_health" {
		t.Errorf("expected the cited rule only, got %+v", first.RulesTriggered)
	}
	if len(first.Scores) != 1 || first.Scores[0].Ref() != "breakdown-risk:L2" {
		t.Errorf("expected the cited score only, got %+v", first.Scores)
	}

	wantBreach := "Low Machine Health: Mean uptime for L2 = 62.0% < 75% threshold"
	if len(first.ThresholdsBreached) != 1 || first.ThresholdsBreached[0] != wantBreach {
		t.Errorf("unexpected threshold strings %v", first.ThresholdsBreached)
	}

	if len(first.LogicTrace) != 2 {
		t.Fatalf("expected 2 logic trace lines, got %d", len(first.LogicTrace))
	}
	if !strings.Contains(first.LogicTrace[0], "actual=62.0, threshold=75.0") {
		t.Errorf("rule trace missing observed/threshold: %q", first.LogicTrace[0])
	}
	if !strings.Contains(first.LogicTrace[1], "Heuristic breakdown-risk for L2") {
		t.Errorf("score trace missing fallback marker: %q", first.LogicTrace[1])
	}
}

func TestBuildEntries_ScoreOnlyCitationFallsBackToWorstFiredRule(t *testing.T) {
	b := decisionlog.NewBuilder()
	entries, err := b.BuildEntries("9f2c41aa-run", "equipment_failure", testAt, testRecs(), testFindings(), testScores())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second := entries[1]
	if len(second.RulesTriggered) != 1 || second.RulesTriggered[0].RuleID != "low_machine_health" {
		t.Errorf("expected highest-severity fired rule as context, got %+v", second.RulesTriggered)
	}
	if second.ID != "DEC-9f2c41aa-02" {
		t.Errorf("unexpected entry ID %q", second.ID)
	}
}

func TestBuildEntries_RejectsMalformedRecommendation(t *testing.T) {
	b := decisionlog.NewBuilder()

	empty := testRecs()
	empty[0].Action = "  "
	if _, err := b.BuildEntries("run", "s", testAt, empty, testFindings(), testScores()); err == nil {
		t.Error("expected error for empty action")
	}

	ungrounded := testRecs()
	ungrounded[1].SupportingRules = nil
	ungrounded[1].SupportingScores = nil
	if _, err := b.BuildEntries("run", "s", testAt, ungrounded, testFindings(), testScores()); err == nil {
		t.Error("expected error for ungrounded recommendation")
	}
}

func TestExportFlat_JoinsListColumns(t *testing.T) {
	b := decisionlog.NewBuilder()
	entries, err := b.BuildEntries("9f2c41aa-run", "equipment_failure", testAt, testRecs(), testFindings(), testScores())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows := decisionlog.ExportFlat(entries)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	row := rows[0]
	if row.EntryID != "DEC-9f2c41aa-01" || row.Priority != 1 {
		t.Errorf("unexpected row header %+v", row)
	}
	if row.RulesTriggered != "Low Machine Health" {
		t.Errorf("unexpected rules column %q", row.RulesTriggered)
	}
	if !strings.Contains(row.ScoresUsed, "breakdown-risk:L2=0.76") {
		t.Errorf("unexpected scores column %q", row.ScoresUsed)
	}
	if row.Timestamp != "2026-03-14T09:30:00Z" {
		t.Errorf("unexpected timestamp %q", row.Timestamp)
	}
}

func TestNestedExport_RoundTrip(t *testing.T) {
	b := decisionlog.NewBuilder()
	entries, err := b.BuildEntries("9f2c41aa-run", "equipment_failure", testAt, testRecs(), testFindings(), testScores())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exported := decisionlog.ExportNested("9f2c41aa-run", "equipment_failure", testAt, entries)
	data, err := decisionlog.MarshalNested(exported)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	imported, err := decisionlog.ImportNested(data)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if imported.RunID != exported.RunID || imported.Scenario != exported.Scenario {
		t.Errorf("header changed in round trip: %+v", imported)
	}
	if !reflect.DeepEqual(imported.Entries, exported.Entries) {
		t.Error("entries changed in round trip")
	}
}

func TestImportNested_RejectsGarbage(t *testing.T) {
	if _, err := decisionlog.ImportNested([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := decisionlog.ImportNested([]byte("{}")); err == nil {
		t.Error("expected error for missing run_id")
	}
}
