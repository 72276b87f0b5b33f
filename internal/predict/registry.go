package predict

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/plantops/plantops-ai/internal/history"
	"github.com/plantops/plantops-ai/internal/metrics"
)

// Registry is the immutable bundle of trained models threaded through
// the prediction scorer. It is built once at startup from the history
// store, read-only afterwards, and replaced wholesale on reload. A
// registry with nil or unfitted models is valid: every sub-scorer has
// a deterministic fallback.
type Registry struct {
	Breakdown *BreakdownClassifier
	Delay     *DelayRegressor
	TrainedAt time.Time
	Samples   int
}

// EmptyRegistry returns a registry with no trained models. All scoring
// falls back to the heuristics.
func EmptyRegistry() *Registry {
	return &Registry{TrainedAt: time.Now().UTC()}
}

// classifierSeed fixes classifier weight initialization so training is
// reproducible.
const classifierSeed = 47

// minTrainingRows is the smallest usable training set. Below this the
// models stay unfitted and the fallbacks carry the run.
const minTrainingRows = 20

// Train builds a registry from the labeled observations in the history
// store. Training failures are logged and leave the affected model
// unfitted; Train itself only fails when the store cannot be read.
func Train(ctx context.Context, store history.Store, logger *zap.Logger) (*Registry, error) {
	rows, err := store.LoadTrainingSet(ctx, 0)
	if err != nil {
		return nil, err
	}

	reg := &Registry{
		TrainedAt: time.Now().UTC(),
		Samples:   len(rows),
	}

	if len(rows) < minTrainingRows {
		logger.Warn("training set too small, using fallback scoring",
			zap.Int("rows", len(rows)),
			zap.Int("required", minTrainingRows),
		)
		return reg, nil
	}

	clfFeatures := make([][]float64, len(rows))
	clfLabels := make([]bool, len(rows))
	regFeatures := make([][]float64, len(rows))
	regTargets := make([]float64, len(rows))
	for i, r := range rows {
		clfFeatures[i] = []float64{r.UptimePct, r.WorkerAvailabilityPct, r.DefectRatePct, r.EnergyKWh}
		clfLabels[i] = r.MaintenanceAlert
		regFeatures[i] = []float64{r.InventoryPct, r.UptimePct, r.WorkerAvailabilityPct, r.DefectRatePct}
		regTargets[i] = r.KPIImpactPct
	}

	clf := NewBreakdownClassifier(classifierSeed)
	if err := clf.Fit(clfFeatures, clfLabels); err != nil {
		logger.Warn("breakdown classifier training failed", zap.Error(err))
		metrics.ModelTrainingsTotal.WithLabelValues("breakdown", "failure").Inc()
	} else {
		reg.Breakdown = clf
		metrics.ModelTrainingsTotal.WithLabelValues("breakdown", "success").Inc()
	}

	regModel := NewDelayRegressor()
	if err := regModel.Fit(regFeatures, regTargets); err != nil {
		logger.Warn("delay regressor training failed", zap.Error(err))
		metrics.ModelTrainingsTotal.WithLabelValues("delay", "failure").Inc()
	} else {
		reg.Delay = regModel
		metrics.ModelTrainingsTotal.WithLabelValues("delay", "success").Inc()
	}

	logger.Info("model registry trained",
		zap.Int("samples", reg.Samples),
		zap.Bool("breakdown_fitted", reg.Breakdown.Fitted()),
		zap.Bool("delay_fitted", reg.Delay.Fitted()),
	)

	return reg, nil
}
