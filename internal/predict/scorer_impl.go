package predict

// Package predict — concrete Scorer implementation.

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/plantops/plantops-ai/internal/metrics"
	"github.com/plantops/plantops-ai/internal/models"
	"github.com/plantops/plantops-ai/internal/stats"
)

// scorerImpl is the concrete implementation of Scorer.
type scorerImpl struct{}

// Score computes all risk scores for the snapshot.
func (s *scorerImpl) Score(ctx context.Context, snap *models.Snapshot, reg *Registry) *Output {
	if reg == nil {
		reg = EmptyRegistry()
	}

	// Sub-scorers are independent pure reads of the snapshot and the
	// read-only registry, so they run concurrently.
	var (
		wg        sync.WaitGroup
		breakdown *Output
		delay     *Output
		supplier  *Output
	)
	wg.Add(3)
	go func() { defer wg.Done(); breakdown = runSubScorer("breakdown", func() *Output { return scoreBreakdown(snap, reg) }) }()
	go func() { defer wg.Done(); delay = runSubScorer("delay", func() *Output { return scoreDelay(snap, reg) }) }()
	go func() { defer wg.Done(); supplier = runSubScorer("supplier", func() *Output { return scoreSuppliers(snap) }) }()
	wg.Wait()

	out := &Output{}
	for _, part := range []*Output{breakdown, delay, supplier} {
		out.Scores = append(out.Scores, part.Scores...)
		out.Diagnostics = append(out.Diagnostics, part.Diagnostics...)
	}
	return out
}

// runSubScorer guards a sub-scorer against panics. A panicking scorer
// yields no scores but never aborts the run.
func runSubScorer(name string, fn func() *Output) (out *Output) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ScoringFallbacksTotal.WithLabelValues(name).Inc()
			out = &Output{
				Diagnostics: []models.Diagnostic{{
					Kind:      models.DiagScoringDegraded,
					Component: name,
					Message:   fmt.Sprintf("sub-scorer panicked: %v", r),
					At:        time.Now().UTC(),
				}},
			}
		}
	}()
	return fn()
}

// ─── Breakdown risk ───

func scoreBreakdown(snap *models.Snapshot, reg *Registry) *Output {
	out := &Output{}
	degraded := !reg.Breakdown.Fitted()

	for _, line := range snap.Lines {
		agg, ok := snap.LineStats[line.ID]
		if !ok {
			continue
		}

		var prob float64
		fallback := degraded
		if !degraded {
			p, err := reg.Breakdown.PredictProb([]float64{
				agg.MeanUptimePct,
				agg.MeanWorkerAvailabilityPct,
				agg.MeanDefectRatePct,
				agg.MeanEnergyKWh,
			})
			if err != nil {
				fallback = true
			} else {
				prob = stats.Clamp(p, 0, 1)
			}
		}
		if fallback {
			prob = breakdownFallback(agg.MeanUptimePct)
		}

		detail := "classifier probability"
		if fallback {
			detail = "uptime fallback formula"
			metrics.ScoringFallbacksTotal.WithLabelValues("breakdown").Inc()
		}

		out.Scores = append(out.Scores, models.Score{
			Subject:  line.ID,
			Kind:     models.ScoreBreakdownRisk,
			Value:    prob,
			Band:     probBand(prob),
			Fallback: fallback,
			Detail:   detail,
		})
	}

	if degraded {
		out.Diagnostics = append(out.Diagnostics, models.Diagnostic{
			Kind:      models.DiagScoringDegraded,
			Component: "breakdown",
			Message:   "no trained classifier, applied uptime fallback",
			At:        time.Now().UTC(),
		})
	}
	return out
}

// breakdownFallback is the deterministic substitute when no classifier
// is available. Always returns a value in [0,1].
func breakdownFallback(uptimePct float64) float64 {
	return stats.Clamp((100-uptimePct)/50, 0, 1)
}

// ─── Delay risk ───

func scoreDelay(snap *models.Snapshot, reg *Registry) *Output {
	out := &Output{}
	degraded := !reg.Delay.Fitted()

	for _, line := range snap.Lines {
		agg, ok := snap.LineStats[line.ID]
		if !ok {
			continue
		}

		var risk float64
		fallback := degraded
		if !degraded {
			impact, err := reg.Delay.Predict([]float64{
				agg.MeanInventoryPct,
				agg.MeanUptimePct,
				agg.MeanWorkerAvailabilityPct,
				agg.MeanDefectRatePct,
			})
			if err != nil {
				fallback = true
			} else {
				risk = stats.Clamp(1-impact/10, 0, 1)
			}
		}
		if fallback {
			risk = delayFallback(agg)
		}

		detail := "regressor KPI-impact conversion"
		if fallback {
			detail = "inventory and component-availability fallback"
			metrics.ScoringFallbacksTotal.WithLabelValues("delay").Inc()
		}

		out.Scores = append(out.Scores, models.Score{
			Subject:  line.ID,
			Kind:     models.ScoreDelayRisk,
			Value:    risk,
			Band:     probBand(risk),
			Fallback: fallback,
			Detail:   detail,
		})
	}

	if degraded {
		out.Diagnostics = append(out.Diagnostics, models.Diagnostic{
			Kind:      models.DiagScoringDegraded,
			Component: "delay",
			Message:   "no trained regressor, applied heuristic fallback",
			At:        time.Now().UTC(),
		})
	}
	return out
}

// delayFallback is the deterministic substitute when no regressor is
// available: base 0.2, +0.3 below 75% inventory, +0.3 for a shortage or
// +0.15 for delayed components. Always in [0,1].
func delayFallback(agg models.LineAggregates) float64 {
	risk := 0.2
	if agg.MeanInventoryPct < 75 {
		risk += 0.3
	}
	switch {
	case agg.ShortageSeen:
		risk += 0.3
	case agg.DelayedShare > 0:
		risk += 0.15
	}
	return stats.Clamp(risk, 0, 1)
}

// ─── Supplier risk ───

// scoreSuppliers is heuristic only; there is nothing to train.
func scoreSuppliers(snap *models.Snapshot) *Output {
	out := &Output{}
	for _, sup := range snap.Suppliers {
		score := stats.Clamp(sup.ReliabilityPct-1.5*sup.LeadTimeDays, 0, 100)
		out.Scores = append(out.Scores, models.Score{
			Subject: sup.ID,
			Kind:    models.ScoreSupplierRisk,
			Value:   score,
			Band:    supplierBand(score),
			Detail:  fmt.Sprintf("reliability %.0f%%, lead time %.1f days", sup.ReliabilityPct, sup.LeadTimeDays),
		})
	}
	return out
}

// ─── Banding ───

// probBand maps a [0,1] probability score to its risk band.
func probBand(v float64) models.RiskBand {
	switch {
	case v > probBandHigh:
		return models.BandHigh
	case v > probBandMedium:
		return models.BandMedium
	default:
		return models.BandLow
	}
}

// supplierBand maps a [0,100] supplier score to its risk band. Higher
// supplier scores mean healthier suppliers.
func supplierBand(v float64) models.RiskBand {
	switch {
	case v >= supplierBandLow:
		return models.BandLow
	case v >= supplierBandMedium:
		return models.BandMedium
	default:
		return models.BandHigh
	}
}
