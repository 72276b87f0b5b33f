package engine

// Synthesis: parse the structured stage and synthesis responses, enforce
// the grounding contract, rank the final list, and provide the
// rule-engine-only fallback used when no provider is available.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/plantops/plantops-ai/internal/metrics"
	"github.com/plantops/plantops-ai/internal/models"
	"github.com/plantops/plantops-ai/internal/reasoning/prompt"
	"github.com/plantops/plantops-ai/internal/rules"
	"go.uber.org/zap"
)

// maxRecommendations caps the final synthesis output.
const maxRecommendations = 5

// stageResponse is the structured contract every subdomain stage returns.
type stageResponse struct {
	Analysis        string                `json:"analysis"`
	Recommendations []StageRecommendation `json:"recommendations"`
}

// synthesisResponse is the structured contract of the synthesis stage.
type synthesisResponse struct {
	ExecutiveSummary      string     `json:"executive_summary"`
	Recommendations       []synthRec `json:"recommendations"`
	DecisionJustification string     `json:"decision_justification"`
}

type synthRec struct {
	Action            string   `json:"action"`
	Priority          int      `json:"priority"`
	Reasoning         string   `json:"reasoning"`
	SourceStage       string   `json:"source_stage"`
	EstimatedTime     string   `json:"estimated_time"`
	ExpectedKPIImpact string   `json:"expected_kpi_impact"`
	SupportingRules   []string `json:"supporting_rules"`
	SupportingScores  []string `json:"supporting_scores"`
}

// extractJSONBlock strips optional markdown fences and returns the
// outermost JSON object found in the LLM response. Handles:
//   - Bare JSON:       { ... }
//   - Code-fenced:     ```json\n{ ... }\n```  or  ```\n{ ... }\n```
func extractJSONBlock(response string) (string, bool) {
	stripped := response
	for _, fence := range []string{"```json", "```JSON", "```"} {
		if idx := strings.Index(stripped, fence); idx != -1 {
			stripped = stripped[idx+len(fence):]
			if end := strings.Index(stripped, "```"); end != -1 {
				stripped = stripped[:end]
			}
			break
		}
	}

	jsonStart := strings.Index(stripped, "{")
	jsonEnd := strings.LastIndex(stripped, "}")
	if jsonStart != -1 && jsonEnd != -1 && jsonEnd > jsonStart {
		return stripped[jsonStart : jsonEnd+1], true
	}
	return "", false
}

// parseStageResponse validates the subdomain stage contract. A malformed
// response is treated identically to a call failure by the caller.
func parseStageResponse(text string) (*stageResponse, error) {
	jsonStr, ok := extractJSONBlock(text)
	if !ok {
		return nil, errors.New("no JSON object in stage response")
	}
	var resp stageResponse
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		return nil, fmt.Errorf("stage response is not valid JSON: %w", err)
	}
	if resp.Analysis == "" && len(resp.Recommendations) == 0 {
		return nil, errors.New("stage response carries neither analysis nor recommendations")
	}
	return &resp, nil
}

// runSynthesis executes the synthesis stage and post-processes its
// output: grounding, defaults, ranking, and the five-entry cap.
func (e *engineImpl) runSynthesis(ctx context.Context, run *Run, in prompt.StageInputs, ruleOut *rules.Output, scores []models.Score) ([]models.Recommendation, string, string, error) {
	e.publish(run.ID, e.event(run, "stage_started", string(prompt.StageSynthesis), prompt.StageSynthesis.Label()))

	system, err := e.deps.Prompts.SystemPrompt(ctx, prompt.StageSynthesis)
	if err != nil {
		return nil, "", "", err
	}
	user, err := e.deps.Prompts.RenderSynthesisPrompt(ctx, in)
	if err != nil {
		return nil, "", "", err
	}

	text, tokens, err := e.completeWithRetry(ctx, system, user)
	if err != nil {
		return nil, "", "", err
	}
	e.mu.Lock()
	run.TokensUsed += tokens
	e.mu.Unlock()

	jsonStr, ok := extractJSONBlock(text)
	if !ok {
		return nil, "", "", errors.New("no JSON object in synthesis response")
	}
	var resp synthesisResponse
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		return nil, "", "", fmt.Errorf("synthesis response is not valid JSON: %w", err)
	}
	if len(resp.Recommendations) == 0 {
		return nil, "", "", errors.New("synthesis response carries no recommendations")
	}

	recs := e.groundRecommendations(ctx, run, resp.Recommendations, ruleOut.Findings, scores)
	if len(recs) == 0 {
		return nil, "", "", errors.New("all synthesis recommendations were ungrounded")
	}
	recs = rankRecommendations(recs)

	e.publish(run.ID, e.event(run, "stage_completed", string(prompt.StageSynthesis),
		fmt.Sprintf("%d recommendations", len(recs))))

	return recs, resp.ExecutiveSummary, resp.DecisionJustification, nil
}

// groundRecommendations enforces the evidence contract: each
// recommendation keeps only citations that resolve against the run's
// findings and scores, and is dropped when none remain.
func (e *engineImpl) groundRecommendations(ctx context.Context, run *Run, raw []synthRec, findings []models.RuleFinding, scores []models.Score) []models.Recommendation {
	knownRules := make(map[string]models.RuleFinding, len(findings))
	for _, f := range findings {
		knownRules[f.RuleID] = f
	}
	knownScores := make(map[string]models.Score, len(scores))
	for _, s := range scores {
		knownScores[s.Ref()] = s
	}

	out := make([]models.Recommendation, 0, len(raw))
	for _, r := range raw {
		var citedRules []string
		var citedFindings []models.RuleFinding
		for _, id := range r.SupportingRules {
			if f, ok := knownRules[id]; ok {
				citedRules = append(citedRules, id)
				citedFindings = append(citedFindings, f)
			}
		}
		var citedScores []string
		var citedScoreVals []models.Score
		for _, ref := range r.SupportingScores {
			if s, ok := knownScores[ref]; ok {
				citedScores = append(citedScores, ref)
				citedScoreVals = append(citedScoreVals, s)
			}
		}

		rec := models.Recommendation{
			Action:            strings.TrimSpace(r.Action),
			Priority:          clampPriority(r.Priority),
			Reasoning:         r.Reasoning,
			SourceStage:       r.SourceStage,
			Severity:          deriveSeverity(citedFindings, citedScoreVals),
			ExpectedKPIImpact: r.ExpectedKPIImpact,
			EstimatedTime:     r.EstimatedTime,
			SupportingRules:   citedRules,
			SupportingScores:  citedScores,
		}
		if rec.Action == "" || !rec.Grounded() {
			e.dropRecommendation(ctx, run, r.Action)
			continue
		}
		if rec.ExpectedKPIImpact == "" {
			rec.ExpectedKPIImpact = defaultKPIImpact(rec.Action)
		}
		if rec.EstimatedTime == "" {
			rec.EstimatedTime = defaultEstimatedTime(rec.Action, rec.Severity)
		}
		out = append(out, rec)
	}
	return out
}

// dropRecommendation records an ungrounded drop: diagnostic, metric,
// audit entry, and a warning. Never a user-facing error.
func (e *engineImpl) dropRecommendation(ctx context.Context, run *Run, action string) {
	metrics.RecommendationsDropped.Inc()
	e.addDiagnostic(run, models.Diagnostic{
		Kind:      models.DiagUngroundedRecDropped,
		Component: string(prompt.StageSynthesis),
		Message:   fmt.Sprintf("dropped ungrounded recommendation %q", action),
		At:        time.Now(),
	})
	if e.deps.Audit != nil {
		_ = e.deps.Audit.LogRecommendationDropped(ctx, run.ID, action)
	}
	e.deps.Logger.Warn("dropped ungrounded recommendation",
		zap.String("run_id", run.ID), zap.String("action", action))
}

// rankRecommendations orders by priority ascending, breaking ties by
// severity descending then KPI impact magnitude descending, and caps
// the list at five.
func rankRecommendations(recs []models.Recommendation) []models.Recommendation {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Priority != recs[j].Priority {
			return recs[i].Priority < recs[j].Priority
		}
		ri, rj := recs[i].Severity.Rank(), recs[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return kpiMagnitude(recs[i].ExpectedKPIImpact) > kpiMagnitude(recs[j].ExpectedKPIImpact)
	})
	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}
	return recs
}

// kpiMagnitude extracts the first numeric magnitude from an impact
// string like "On-time delivery: -5%" or "Line Downtime: +2-8 hrs".
func kpiMagnitude(impact string) float64 {
	num := ""
	for i := 0; i < len(impact); i++ {
		c := impact[i]
		if c >= '0' && c <= '9' || c == '.' {
			num += string(c)
			continue
		}
		if num != "" {
			break
		}
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	return v
}

// deriveSeverity takes the worst severity among cited findings, falling
// back to the worst cited score band.
func deriveSeverity(findings []models.RuleFinding, scores []models.Score) models.Severity {
	sev := models.SeverityLow
	for _, f := range findings {
		if f.Fired && f.Severity.Rank() > sev.Rank() {
			sev = f.Severity
		}
	}
	if sev != models.SeverityLow {
		return sev
	}
	for _, s := range scores {
		var bandSev models.Severity
		switch s.Band {
		case models.BandHigh:
			bandSev = models.SeverityHigh
		case models.BandMedium:
			bandSev = models.SeverityMedium
		default:
			bandSev = models.SeverityLow
		}
		if bandSev.Rank() > sev.Rank() {
			sev = bandSev
		}
	}
	return sev
}

func clampPriority(p int) int {
	if p < 1 {
		return 3
	}
	if p > 5 {
		return 5
	}
	return p
}

// ─── Action defaults ──────────────────────────────────────────────────────────

// actionKPIMap maps action tags to the KPI impact used when a stage
// omits the field.
var actionKPIMap = map[models.ActionTag]string{
	models.ActionDispatchMaintenance: "Line Downtime: +2-8 hrs; On-time Delivery: -5 to -15%",
	models.ActionReallocateLine:      "On-time Delivery: -3 to -10%; Production Efficiency: -15 to -25%",
	models.ActionSwitchSupplier:      "Lead Time: +2-5 days; Inventory Cost: +5 to +10%",
	models.ActionIncreaseShift:       "Overtime Cost: +12 to +18%; Worker Availability: +2 to +5%",
	models.ActionRaiseSupplyAlert:    "Inventory Risk: stockout within 2-4 days if not addressed",
}

// actionTagFor classifies a free-text action into the closest tag by
// keyword, or "" when nothing matches.
func actionTagFor(action string) models.ActionTag {
	lower := strings.ToLower(action)
	contains := func(kws ...string) bool {
		for _, kw := range kws {
			if strings.Contains(lower, kw) {
				return true
			}
		}
		return false
	}
	switch {
	case contains("maintenance", "repair", "breakdown"):
		return models.ActionDispatchMaintenance
	case contains("realloc", "redistribut", "production", "line"):
		return models.ActionReallocateLine
	case contains("supplier", "expedit"):
		return models.ActionSwitchSupplier
	case contains("overtime", "shift", "workforce", "worker", "staff"):
		return models.ActionIncreaseShift
	case contains("inventory", "reorder", "stock", "buffer"):
		return models.ActionRaiseSupplyAlert
	default:
		return ""
	}
}

// actionTagLabel is the bounded metric label for a free-text action.
func actionTagLabel(action string) string {
	if tag := actionTagFor(action); tag != "" {
		return string(tag)
	}
	return "other"
}

func defaultKPIImpact(action string) string {
	if impact, ok := actionKPIMap[actionTagFor(action)]; ok {
		return impact
	}
	return "Refer to KPI summary for projected impact"
}

func defaultEstimatedTime(action string, sev models.Severity) string {
	switch actionTagFor(action) {
	case models.ActionDispatchMaintenance, models.ActionRaiseSupplyAlert:
		return "Immediate"
	case models.ActionReallocateLine:
		return "2-6 hours"
	case models.ActionIncreaseShift:
		return "Next shift"
	case models.ActionSwitchSupplier:
		return "1-2 days"
	}
	if sev == models.SeverityCritical {
		return "Immediate"
	}
	return "1-4 hours"
}

// ─── Rule-engine-only fallback ────────────────────────────────────────────────

// ruleOnlyRecommendations derives recommendations directly from the
// triggered rules when no reasoning stages are available. Deterministic:
// triggered findings ordered by severity descending, battery order as
// tie-break.
func ruleOnlyRecommendations(ruleOut *rules.Output) []models.Recommendation {
	triggered := make([]models.RuleFinding, len(ruleOut.Triggered))
	copy(triggered, ruleOut.Triggered)
	sort.SliceStable(triggered, func(i, j int) bool {
		return triggered[i].Severity.Rank() > triggered[j].Severity.Rank()
	})

	var recs []models.Recommendation
	for i, f := range triggered {
		if i >= maxRecommendations {
			break
		}
		action := f.Detail
		if action == "" {
			action = f.Condition
		}
		if len(f.Actions) > 0 {
			action = fmt.Sprintf("%s: %s", actionTitle(f.Actions[0]), action)
		}
		estimated := "1-4 hours"
		if f.Severity == models.SeverityCritical {
			estimated = "Immediate"
		}
		kpi := "Refer to KPI summary for projected impact"
		if len(f.Actions) > 0 {
			if impact, ok := actionKPIMap[f.Actions[0]]; ok {
				kpi = impact
			}
		}
		recs = append(recs, models.Recommendation{
			Action:            action,
			Priority:          i + 1,
			Reasoning:         f.Condition,
			SourceStage:       "rule_engine",
			Severity:          f.Severity,
			ExpectedKPIImpact: kpi,
			EstimatedTime:     estimated,
			SupportingRules:   []string{f.RuleID},
		})
	}
	return recs
}

// ruleOnlyNarrative builds the summary and justification for a
// rule-engine-only result.
func ruleOnlyNarrative(ruleOut *rules.Output, reason string) (string, string) {
	actions := make([]string, 0, len(ruleOut.Actions))
	for _, a := range ruleOut.Actions {
		actions = append(actions, actionTitle(a))
	}
	summary := fmt.Sprintf(
		"Rule engine detected %d issues with overall severity %s. Reasoning stages were unavailable (%s). Actions: %s.",
		len(ruleOut.Triggered), ruleOut.OverallSeverity, reason, strings.Join(actions, ", "))

	var b strings.Builder
	b.WriteString("Rules triggered:\n")
	for _, f := range ruleOut.Triggered {
		fmt.Fprintf(&b, "  %s [%s]: %s\n", f.Name, f.Severity, f.Condition)
	}
	b.WriteString("\nNote: reasoning stages were unavailable. Recommendations are from the deterministic rule engine.")
	return summary, b.String()
}

// actionTitle renders an action tag as human-readable text, e.g.
// DISPATCH_MAINTENANCE -> "Dispatch Maintenance".
func actionTitle(tag models.ActionTag) string {
	words := strings.Split(strings.ToLower(string(tag)), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// classifyCallError buckets an LLM call failure into a bounded metric
// label.
func classifyCallError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "call_failed"
	}
}
