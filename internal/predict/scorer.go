package predict

import (
	"context"

	"github.com/plantops/plantops-ai/internal/models"
)

// Package predict computes the probabilistic risk scores for an
// analysis run.
//
// Three independently failable sub-scorers read the same immutable
// snapshot:
//
//   - breakdown risk: per line, classifier probability of a maintenance
//     alert; fallback (100 - uptime%) / 50 clamped to [0,1]
//   - delay risk: per line, regressor KPI-impact prediction converted
//     to 1 - impact/10 clamped to [0,1]; fallback base 0.2 plus
//     inventory and component-availability surcharges
//   - supplier risk: per supplier, the heuristic
//     clamp(reliability% - 1.5*lead_time_days, 0, 100); no model
//
// Prediction is best effort and never fatal. A sub-scorer that cannot
// use its trained model substitutes its fallback and records a
// ScoringDegraded diagnostic; the run always gets a full set of scores.

// Risk band cutoffs.
const (
	probBandHigh   = 0.6 // probability scores above this are HIGH
	probBandMedium = 0.3 // above this, MEDIUM; otherwise LOW

	supplierBandLow    = 80.0 // supplier scores at or above this are LOW risk
	supplierBandMedium = 60.0 // at or above this, MEDIUM; otherwise HIGH
)

// Output carries the scores and any degradation diagnostics for a run.
type Output struct {
	Scores      []models.Score
	Diagnostics []models.Diagnostic
}

// Scorer defines the interface for prediction scoring.
type Scorer interface {
	// Score computes all risk scores for the snapshot using the given
	// registry. Never returns an error: sub-scorer failures degrade to
	// fallbacks recorded in the output diagnostics.
	Score(ctx context.Context, snap *models.Snapshot, reg *Registry) *Output
}

// NewScorer creates a prediction scorer.
func NewScorer() Scorer {
	return &scorerImpl{}
}
