package decisionlog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/plantops/plantops-ai/internal/models"
)

type builderImpl struct{}

// BuildEntries creates one DecisionLogEntry per recommendation. Entry
// IDs are DEC-<run prefix>-NN so they sort in recommendation order.
func (b *builderImpl) BuildEntries(runID, scenario string, at time.Time, recs []models.Recommendation, findings []models.RuleFinding, scores []models.Score) ([]models.DecisionLogEntry, error) {
	byRule := make(map[string]models.RuleFinding, len(findings))
	for _, f := range findings {
		byRule[f.RuleID] = f
	}
	byScore := make(map[string]models.Score, len(scores))
	for _, s := range scores {
		byScore[s.Ref()] = s
	}

	prefix := runID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}

	entries := make([]models.DecisionLogEntry, 0, len(recs))
	for i, rec := range recs {
		if strings.TrimSpace(rec.Action) == "" {
			return nil, fmt.Errorf("recommendation %d has an empty action", i)
		}
		if !rec.Grounded() {
			return nil, fmt.Errorf("recommendation %d (%q) cites no supporting evidence", i, rec.Action)
		}

		citedFindings := relevantFindings(rec, byRule, findings)
		citedScores := make([]models.Score, 0, len(rec.SupportingScores))
		for _, ref := range rec.SupportingScores {
			if s, ok := byScore[ref]; ok {
				citedScores = append(citedScores, s)
			}
		}

		entries = append(entries, models.DecisionLogEntry{
			ID:                   fmt.Sprintf("DEC-%s-%02d", prefix, i+1),
			Timestamp:            at,
			Scenario:             scenario,
			Recommendation:       rec,
			RulesTriggered:       citedFindings,
			ThresholdsBreached:   thresholdsBreached(citedFindings),
			Scores:               citedScores,
			Justification:        rec.Reasoning,
			SupportingIndicators: supportingIndicators(citedFindings, citedScores),
			LogicTrace:           logicTrace(citedFindings, citedScores),
		})
	}
	return entries, nil
}

// relevantFindings resolves the cited rules, falling back to the single
// highest-severity fired finding when the recommendation is grounded on
// scores alone. The fallback keeps the entry self-explanatory without
// widening the citation.
func relevantFindings(rec models.Recommendation, byRule map[string]models.RuleFinding, findings []models.RuleFinding) []models.RuleFinding {
	cited := make([]models.RuleFinding, 0, len(rec.SupportingRules))
	for _, id := range rec.SupportingRules {
		if f, ok := byRule[id]; ok {
			cited = append(cited, f)
		}
	}
	if len(cited) > 0 {
		return cited
	}
	var worst *models.RuleFinding
	for i := range findings {
		if !findings[i].Fired {
			continue
		}
		if worst == nil || findings[i].Severity.Rank() > worst.Severity.Rank() {
			worst = &findings[i]
		}
	}
	if worst != nil {
		return []models.RuleFinding{*worst}
	}
	return nil
}

func thresholdsBreached(findings []models.RuleFinding) []string {
	out := make([]string, 0, len(findings))
	for _, f := range findings {
		if f.Fired {
			out = append(out, fmt.Sprintf("%s: %s", f.Name, f.Condition))
		}
	}
	return out
}

func supportingIndicators(findings []models.RuleFinding, scores []models.Score) []string {
	var out []string
	for _, f := range findings {
		out = append(out, fmt.Sprintf("%s=%.1f", f.Metric, f.Observed))
	}
	for _, s := range scores {
		out = append(out, fmt.Sprintf("%s=%.2f", s.Ref(), s.Value))
	}
	return out
}

// logicTrace renders the causal chain for the entry: rule evaluations
// first, then model scores.
func logicTrace(findings []models.RuleFinding, scores []models.Score) []string {
	var out []string
	for _, f := range findings {
		out = append(out, fmt.Sprintf("Rule '%s': %s (actual=%.1f, threshold=%.1f)",
			f.Name, f.Condition, f.Observed, f.Threshold))
	}
	for _, s := range scores {
		source := "Model"
		if s.Fallback {
			source = "Heuristic"
		}
		out = append(out, fmt.Sprintf("%s %s for %s: %.2f (%s)",
			source, s.Kind, s.Subject, s.Value, s.Band))
	}
	return out
}

// ─── Exports ──────────────────────────────────────────────────────────────────

// ExportFlat renders entries as tabular rows, one per entry.
func ExportFlat(entries []models.DecisionLogEntry) []FlatRow {
	rows := make([]FlatRow, 0, len(entries))
	for _, e := range entries {
		ruleNames := make([]string, 0, len(e.RulesTriggered))
		for _, f := range e.RulesTriggered {
			ruleNames = append(ruleNames, f.Name)
		}
		scoreRefs := make([]string, 0, len(e.Scores))
		for _, s := range e.Scores {
			scoreRefs = append(scoreRefs, fmt.Sprintf("%s=%.2f", s.Ref(), s.Value))
		}
		rows = append(rows, FlatRow{
			EntryID:            e.ID,
			Timestamp:          e.Timestamp.UTC().Format(time.RFC3339),
			Action:             e.Recommendation.Action,
			Priority:           e.Recommendation.Priority,
			RulesTriggered:     strings.Join(ruleNames, "; "),
			ThresholdsBreached: strings.Join(e.ThresholdsBreached, "; "),
			ScoresUsed:         strings.Join(scoreRefs, "; "),
			KPIImpact:          e.Recommendation.ExpectedKPIImpact,
			Reasoning:          e.Recommendation.Reasoning,
		})
	}
	return rows
}

// ExportNested wraps entries in the round-trip structured form.
func ExportNested(runID, scenario string, at time.Time, entries []models.DecisionLogEntry) *NestedLog {
	return &NestedLog{
		RunID:       runID,
		GeneratedAt: at,
		Scenario:    scenario,
		Entries:     entries,
	}
}

// MarshalNested serializes a nested log for storage or transfer.
func MarshalNested(log *NestedLog) ([]byte, error) {
	return json.MarshalIndent(log, "", "  ")
}

// ImportNested parses a nested export back into the same entries.
func ImportNested(data []byte) (*NestedLog, error) {
	var log NestedLog
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("decision log import: %w", err)
	}
	if log.RunID == "" {
		return nil, fmt.Errorf("decision log import: missing run_id")
	}
	return &log, nil
}

// MarshalEntry serializes one entry as compact JSON. Used for the
// persisted payload column; a marshal failure yields an empty object
// rather than an error, entries contain no unmarshalable values.
func MarshalEntry(entry models.DecisionLogEntry) string {
	data, err := json.Marshal(entry)
	if err != nil {
		return "{}"
	}
	return string(data)
}
