package snapshot_test

import (
	"context"
	"errors"
	"testing"

	"github.com/plantops/plantops-ai/internal/models"
	"github.com/plantops/plantops-ai/internal/snapshot"
)

func validInput() snapshot.Input {
	return snapshot.Input{
		Scenario: models.EventEquipmentFailure,
		Rows: []map[string]interface{}{
			{
				"line_id": "L1", "shift_id": "S1",
				"demand": 280.0, "output": 260.0,
				"uptime_pct": 90.0, "worker_availability_pct": 95.0,
				"defect_rate_pct": 1.2, "inventory_pct": 85.0,
				"energy_kwh": 120.0, "component_availability": "OK",
			},
			{
				"line_id": "L1", "shift_id": "S1",
				"demand": 320.0, "output": 300.0,
				"uptime_pct": 70.0, "worker_availability_pct": 91.0,
				"defect_rate_pct": 2.0, "inventory_pct": 75.0,
				"energy_kwh": 130.0, "component_availability": "Delayed",
			},
		},
		Reference: snapshot.ReferenceTables{
			Lines:     []models.Line{{ID: "L1", DailyCapacity: 400}},
			Shifts:    []models.Shift{{ID: "S1", Staffing: 40}},
			Suppliers: []models.Supplier{{ID: "SUP1", ReliabilityPct: 95, LeadTimeDays: 4}},
			Inventory: []models.InventoryItem{{ID: "ITM1", OnHand: 900, ReorderPoint: 400}},
		},
	}
}

func TestBuild_DerivesAggregates(t *testing.T) {
	b := snapshot.NewBuilder()
	snap, err := b.Build(context.Background(), validInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if snap.DemandMean != 300 {
		t.Errorf("expected demand mean 300, got %.1f", snap.DemandMean)
	}
	if snap.DemandPeak != 320 {
		t.Errorf("expected demand peak 320, got %.1f", snap.DemandPeak)
	}

	agg, ok := snap.LineStats["L1"]
	if !ok {
		t.Fatal("missing aggregates for L1")
	}
	if agg.MeanUptimePct != 80 {
		t.Errorf("expected mean uptime 80, got %.1f", agg.MeanUptimePct)
	}
	if agg.DelayedShare != 0.5 {
		t.Errorf("expected delayed share 0.5, got %.2f", agg.DelayedShare)
	}

	avail, ok := snap.ShiftAvail["S1"]
	if !ok {
		t.Fatal("missing shift availability for S1")
	}
	if avail != 93 {
		t.Errorf("expected shift availability 93, got %.1f", avail)
	}
}

func TestBuild_MissingReferenceTableIsFatal(t *testing.T) {
	b := snapshot.NewBuilder()
	in := validInput()
	in.Reference.Suppliers = nil

	_, err := b.Build(context.Background(), in)
	if err == nil {
		t.Fatal("expected error for missing supplier table")
	}
	var ctxErr *models.ContextError
	if !errors.As(err, &ctxErr) {
		t.Fatalf("expected ContextError, got %T", err)
	}
	if ctxErr.Table != "suppliers" {
		t.Errorf("expected table suppliers, got %q", ctxErr.Table)
	}
}

func TestBuild_UnknownLineIsFatal(t *testing.T) {
	b := snapshot.NewBuilder()
	in := validInput()
	in.Rows[1]["line_id"] = "L9"

	_, err := b.Build(context.Background(), in)
	var ctxErr *models.ContextError
	if !errors.As(err, &ctxErr) {
		t.Fatalf("expected ContextError for unknown line, got %v", err)
	}
	if ctxErr.Key != "L9" {
		t.Errorf("expected offending key L9, got %q", ctxErr.Key)
	}
}

func TestBuild_MalformedRowIsFatal(t *testing.T) {
	b := snapshot.NewBuilder()
	in := validInput()
	delete(in.Rows[0], "uptime_pct")

	_, err := b.Build(context.Background(), in)
	var ctxErr *models.ContextError
	if !errors.As(err, &ctxErr) {
		t.Fatalf("expected ContextError for missing field, got %v", err)
	}
}

func TestBuild_AcceptsNumericStrings(t *testing.T) {
	b := snapshot.NewBuilder()
	in := validInput()
	in.Rows[0]["demand"] = "280"

	snap, err := b.Build(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Observations[0].Demand != 280 {
		t.Errorf("expected demand 280, got %.1f", snap.Observations[0].Demand)
	}
}

func TestBuild_CarriesEventUnmodified(t *testing.T) {
	b := snapshot.NewBuilder()
	in := validInput()
	in.Event = &models.DisruptionEvent{Kind: models.EventSupplyDelay, AffectedID: "SUP1", Description: "customs hold"}

	snap, err := b.Build(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Event == nil || snap.Event.Kind != models.EventSupplyDelay || snap.Event.Description != "customs hold" {
		t.Errorf("event not carried through: %+v", snap.Event)
	}
}
