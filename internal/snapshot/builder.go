package snapshot

import (
	"context"

	"github.com/plantops/plantops-ai/internal/models"
)

// Package snapshot builds the immutable per-run view of plant state.
//
// Responsibilities:
//   - Align raw scenario rows to their line/shift keys
//   - Merge the static reference tables (lines, shifts, suppliers,
//     inventory items, open orders) into the snapshot
//   - Compute the derived aggregates downstream components read:
//     per-line mean uptime/inventory/defect/output, demand mean and
//     standard deviation, per-shift worker availability
//   - Attach the disruption event descriptor unmodified
//   - Reject incomplete input with a fatal ContextError: a missing
//     reference table or a row keyed to an unknown line/shift aborts
//     the run with no partial snapshot
//
// A snapshot is rebuilt for every analysis request and never mutated
// in place. The rule engine, prediction scorer, and reasoning stages
// all read the same snapshot value; nothing downstream writes to it.

// ReferenceTables holds the static reference data for one analysis run.
// Lines, Shifts, Suppliers, and Inventory are required; Orders are
// optional.
type ReferenceTables struct {
	Lines     []models.Line
	Shifts    []models.Shift
	Suppliers []models.Supplier
	Inventory []models.InventoryItem
	Orders    []models.Order
}

// Input bundles everything the builder needs for one run.
type Input struct {
	Scenario  string
	Rows      []map[string]interface{}
	Reference ReferenceTables
	Event     *models.DisruptionEvent
}

// Builder defines the interface for snapshot construction.
type Builder interface {
	// Build merges scenario rows and reference tables into one
	// snapshot. Returns a *models.ContextError on missing reference
	// tables or rows keyed to unknown entities.
	Build(ctx context.Context, in Input) (*models.Snapshot, error)
}

// NewBuilder creates a snapshot builder.
func NewBuilder() Builder {
	return &builderImpl{}
}
