package predict_test

import (
	"context"
	"testing"

	"github.com/plantops/plantops-ai/internal/models"
	"github.com/plantops/plantops-ai/internal/predict"
)

func scoringSnapshot() *models.Snapshot {
	return &models.Snapshot{
		Lines: []models.Line{
			{ID: "L1"},
			{ID: "L2"},
		},
		Suppliers: []models.Supplier{
			{ID: "SUP1", ReliabilityPct: 95, LeadTimeDays: 4},
			{ID: "SUP2", ReliabilityPct: 60, LeadTimeDays: 12},
		},
		LineStats: map[string]models.LineAggregates{
			"L1": {MeanUptimePct: 90, MeanInventoryPct: 85, MeanWorkerAvailabilityPct: 95},
			"L2": {MeanUptimePct: 62, MeanInventoryPct: 68, MeanWorkerAvailabilityPct: 88, DelayedShare: 0.4},
		},
		ShiftAvail: map[string]float64{"S1": 95},
	}
}

func TestScore_FallbackTotality(t *testing.T) {
	// An empty registry must still yield a full score set with no error
	// surface at all.
	scorer := predict.NewScorer()
	out := scorer.Score(context.Background(), scoringSnapshot(), predict.EmptyRegistry())

	// 2 breakdown + 2 delay + 2 supplier.
	if len(out.Scores) != 6 {
		t.Fatalf("expected 6 scores, got %d", len(out.Scores))
	}
	for _, s := range out.Scores {
		if s.Kind == models.ScoreSupplierRisk {
			continue
		}
		if !s.Fallback {
			t.Errorf("%s for %s: expected fallback with empty registry", s.Kind, s.Subject)
		}
	}
	if len(out.Diagnostics) == 0 {
		t.Error("expected ScoringDegraded diagnostics with empty registry")
	}
	for _, d := range out.Diagnostics {
		if d.Kind != models.DiagScoringDegraded {
			t.Errorf("expected ScoringDegraded diagnostic, got %s", d.Kind)
		}
	}
}

func TestScore_RangeInvariants(t *testing.T) {
	scorer := predict.NewScorer()
	out := scorer.Score(context.Background(), scoringSnapshot(), predict.EmptyRegistry())

	for _, s := range out.Scores {
		switch s.Kind {
		case models.ScoreBreakdownRisk, models.ScoreDelayRisk:
			if s.Value < 0 || s.Value > 1 {
				t.Errorf("%s for %s: value %.3f out of [0,1]", s.Kind, s.Subject, s.Value)
			}
		case models.ScoreSupplierRisk:
			if s.Value < 0 || s.Value > 100 {
				t.Errorf("supplier score for %s: value %.1f out of [0,100]", s.Subject, s.Value)
			}
		}
	}
}

func TestScore_SupplierHeuristic(t *testing.T) {
	// reliability 95, lead time 4: 95 - 1.5*4 = 89 -> LOW band.
	scorer := predict.NewScorer()
	out := scorer.Score(context.Background(), scoringSnapshot(), predict.EmptyRegistry())

	var sup1 *models.Score
	for i := range out.Scores {
		if out.Scores[i].Kind == models.ScoreSupplierRisk && out.Scores[i].Subject == "SUP1" {
			sup1 = &out.Scores[i]
		}
	}
	if sup1 == nil {
		t.Fatal("missing supplier score for SUP1")
	}
	if sup1.Value != 89 {
		t.Errorf("expected supplier score 89, got %.1f", sup1.Value)
	}
	if sup1.Band != models.BandLow {
		t.Errorf("expected LOW band at 89, got %s", sup1.Band)
	}
}

func TestScore_BreakdownFallbackFormula(t *testing.T) {
	// (100 - 62) / 50 = 0.76 -> HIGH band.
	scorer := predict.NewScorer()
	out := scorer.Score(context.Background(), scoringSnapshot(), predict.EmptyRegistry())

	for _, s := range out.Scores {
		if s.Kind != models.ScoreBreakdownRisk || s.Subject != "L2" {
			continue
		}
		if s.Value < 0.759 || s.Value > 0.761 {
			t.Errorf("expected breakdown fallback 0.76 for L2, got %.3f", s.Value)
		}
		if s.Band != models.BandHigh {
			t.Errorf("expected HIGH band, got %s", s.Band)
		}
		return
	}
	t.Fatal("missing breakdown score for L2")
}

func TestScore_NilRegistry(t *testing.T) {
	scorer := predict.NewScorer()
	out := scorer.Score(context.Background(), scoringSnapshot(), nil)
	if len(out.Scores) != 6 {
		t.Fatalf("nil registry must score like an empty one, got %d scores", len(out.Scores))
	}
}

func TestScore_Deterministic(t *testing.T) {
	scorer := predict.NewScorer()
	snap := scoringSnapshot()
	first := scorer.Score(context.Background(), snap, predict.EmptyRegistry())
	second := scorer.Score(context.Background(), snap, predict.EmptyRegistry())

	if len(first.Scores) != len(second.Scores) {
		t.Fatalf("score counts differ: %d vs %d", len(first.Scores), len(second.Scores))
	}
	byRef := make(map[string]models.Score)
	for _, s := range first.Scores {
		byRef[s.Ref()] = s
	}
	for _, s := range second.Scores {
		prev, ok := byRef[s.Ref()]
		if !ok {
			t.Errorf("score %s missing from first run", s.Ref())
			continue
		}
		if prev.Value != s.Value || prev.Band != s.Band {
			t.Errorf("score %s changed between identical runs", s.Ref())
		}
	}
}

func TestScore_RefFormat(t *testing.T) {
	s := models.Score{Subject: "L2", Kind: models.ScoreBreakdownRisk}
	if s.Ref() != "breakdown-risk:L2" {
		t.Errorf("unexpected ref %q", s.Ref())
	}
}
