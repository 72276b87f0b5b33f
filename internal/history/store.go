package history

import (
	"context"
	"time"
)

// Package history persists historical plant observations and exported
// decision entries in a local SQLite database.
//
// The observation table is the training set for the prediction models:
// it is read once at startup (and again on explicit reload) to fit the
// breakdown classifier and delay regressor. Decision entries are
// appended after each run for later review and retraining; per-run
// pipeline state is never persisted here.

// TrainingRow is one labeled historical observation.
type TrainingRow struct {
	ID                    int64     `json:"id"`
	LineID                string    `json:"line_id"`
	UptimePct             float64   `json:"uptime_pct"`
	WorkerAvailabilityPct float64   `json:"worker_availability_pct"`
	DefectRatePct         float64   `json:"defect_rate_pct"`
	EnergyKWh             float64   `json:"energy_kwh"`
	InventoryPct          float64   `json:"inventory_pct"`
	MaintenanceAlert      bool      `json:"maintenance_alert"`
	KPIImpactPct          float64   `json:"kpi_impact_pct"`
	RecordedAt            time.Time `json:"recorded_at"`
}

// DecisionRecord is one exported decision log entry.
type DecisionRecord struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	DecisionID string    `json:"decision_id"`
	Scenario   string    `json:"scenario"`
	Action     string    `json:"action"`
	Priority   int       `json:"priority"`
	Payload    string    `json:"payload"` // nested entry as JSON
	RecordedAt time.Time `json:"recorded_at"`
}

// Store is the persistence interface for historical data.
type Store interface {
	// LoadTrainingSet returns up to limit labeled observations, newest
	// first. limit <= 0 returns everything.
	LoadTrainingSet(ctx context.Context, limit int) ([]*TrainingRow, error)

	// AppendTrainingRow writes one labeled observation.
	AppendTrainingRow(ctx context.Context, row *TrainingRow) error

	// AppendDecision writes one exported decision entry.
	AppendDecision(ctx context.Context, rec *DecisionRecord) error

	// QueryDecisions retrieves decision entries for a run, oldest first.
	QueryDecisions(ctx context.Context, runID string) ([]*DecisionRecord, error)

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}
