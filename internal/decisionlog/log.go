// Package decisionlog assembles auditable decision records from the
// recommendations a run concludes with.
//
// Responsibilities:
//   - Build one DecisionLogEntry per final recommendation, attaching the
//     rule findings and scores the recommendation cites, human-readable
//     threshold-breach strings, and a logic trace.
//   - Export the entries of a run as flat tabular rows or as a nested
//     structure that imports back losslessly.
//
// The package is pure data assembly. It performs no I/O and cannot fail
// at runtime except on malformed input: a recommendation with an empty
// action or no supporting evidence is a programming error upstream and
// aborts the build.
//
// Integration points:
//   - internal/reasoning/engine calls BuildEntries when a run concludes
//     and persists each entry through internal/history.
//   - internal/server serves the flat and nested exports.
package decisionlog

import (
	"time"

	"github.com/plantops/plantops-ai/internal/models"
)

// FlatRow is one row of the tabular export. List-valued fields are
// joined with "; " so the row stays a single spreadsheet line.
type FlatRow struct {
	EntryID            string `json:"entry_id"`
	Timestamp          string `json:"timestamp"`
	Action             string `json:"action"`
	Priority           int    `json:"priority"`
	RulesTriggered     string `json:"rules_triggered"`
	ThresholdsBreached string `json:"thresholds_breached"`
	ScoresUsed         string `json:"scores_used"`
	KPIImpact          string `json:"kpi_impact"`
	Reasoning          string `json:"reasoning"`
}

// NestedLog is the structured export of one run's decision log. It is
// the round-trip form: ImportNested(MarshalNested(log)) reproduces the
// same entries.
type NestedLog struct {
	RunID       string                    `json:"run_id"`
	GeneratedAt time.Time                 `json:"generated_at"`
	Scenario    string                    `json:"scenario"`
	Entries     []models.DecisionLogEntry `json:"entries"`
}

// Builder assembles decision log entries from a concluded run's output.
type Builder interface {
	// BuildEntries creates one entry per recommendation, in
	// recommendation order. Findings and scores are the run's full
	// evidence sets; each entry carries only the subset its
	// recommendation cites. Returns an error only on malformed input.
	BuildEntries(runID, scenario string, at time.Time, recs []models.Recommendation, findings []models.RuleFinding, scores []models.Score) ([]models.DecisionLogEntry, error)
}

// NewBuilder returns the standard entry builder.
func NewBuilder() Builder {
	return &builderImpl{}
}
