package snapshot

// Package snapshot — concrete Builder implementation.

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/plantops/plantops-ai/internal/models"
	"github.com/plantops/plantops-ai/internal/stats"
)

// builderImpl is the concrete implementation of Builder.
type builderImpl struct{}

// Build merges scenario rows and reference tables into one snapshot.
func (b *builderImpl) Build(ctx context.Context, in Input) (*models.Snapshot, error) {
	if err := checkReference(in.Reference); err != nil {
		return nil, err
	}
	if len(in.Rows) == 0 {
		return nil, &models.ContextError{Reason: "no scenario rows provided"}
	}

	lineIDs := make(map[string]bool, len(in.Reference.Lines))
	for _, l := range in.Reference.Lines {
		lineIDs[l.ID] = true
	}
	shiftIDs := make(map[string]bool, len(in.Reference.Shifts))
	for _, s := range in.Reference.Shifts {
		shiftIDs[s.ID] = true
	}

	observations := make([]models.Observation, 0, len(in.Rows))
	for i, row := range in.Rows {
		obs, err := parseRow(row)
		if err != nil {
			return nil, &models.ContextError{Reason: fmt.Sprintf("scenario row %d: %v", i, err)}
		}
		if !lineIDs[obs.LineID] {
			return nil, &models.ContextError{
				Reason: fmt.Sprintf("scenario row %d references unknown line", i),
				Table:  "lines",
				Key:    obs.LineID,
			}
		}
		if !shiftIDs[obs.ShiftID] {
			return nil, &models.ContextError{
				Reason: fmt.Sprintf("scenario row %d references unknown shift", i),
				Table:  "shifts",
				Key:    obs.ShiftID,
			}
		}
		observations = append(observations, obs)
	}

	snap := &models.Snapshot{
		BuiltAt:      time.Now().UTC(),
		Scenario:     in.Scenario,
		Observations: observations,
		Lines:        in.Reference.Lines,
		Shifts:       in.Reference.Shifts,
		Suppliers:    in.Reference.Suppliers,
		Inventory:    in.Reference.Inventory,
		Orders:       in.Reference.Orders,
		Event:        in.Event,
	}

	deriveAggregates(snap)

	return snap, nil
}

// checkReference verifies the required reference tables are present.
func checkReference(ref ReferenceTables) error {
	required := []struct {
		name  string
		empty bool
	}{
		{"lines", len(ref.Lines) == 0},
		{"shifts", len(ref.Shifts) == 0},
		{"suppliers", len(ref.Suppliers) == 0},
		{"inventory", len(ref.Inventory) == 0},
	}
	for _, t := range required {
		if t.empty {
			return &models.ContextError{Reason: "required reference table is missing or empty", Table: t.name}
		}
	}
	return nil
}

// deriveAggregates fills the snapshot's computed statistics in place.
// Called exactly once, before the snapshot is handed out.
func deriveAggregates(snap *models.Snapshot) {
	demand := make([]float64, 0, len(snap.Observations))
	byLine := make(map[string][]models.Observation)
	byShift := make(map[string][]float64)

	for _, o := range snap.Observations {
		demand = append(demand, o.Demand)
		byLine[o.LineID] = append(byLine[o.LineID], o)
		byShift[o.ShiftID] = append(byShift[o.ShiftID], o.WorkerAvailabilityPct)
	}

	snap.DemandMean = stats.Mean(demand)
	snap.DemandStdDev = stats.StdDev(demand)
	snap.DemandPeak = stats.Max(demand)

	snap.LineStats = make(map[string]models.LineAggregates, len(byLine))
	for lineID, obs := range byLine {
		var uptime, inventory, defect, avail, output, energy []float64
		shortage := false
		for _, o := range obs {
			uptime = append(uptime, o.UptimePct)
			inventory = append(inventory, o.InventoryPct)
			defect = append(defect, o.DefectRatePct)
			avail = append(avail, o.WorkerAvailabilityPct)
			output = append(output, o.Output)
			energy = append(energy, o.EnergyKWh)
			if o.ComponentAvailability == models.ComponentShortage {
				shortage = true
			}
		}
		snap.LineStats[lineID] = models.LineAggregates{
			MeanUptimePct:             stats.Mean(uptime),
			MeanInventoryPct:          stats.Mean(inventory),
			MeanDefectRatePct:         stats.Mean(defect),
			MeanWorkerAvailabilityPct: stats.Mean(avail),
			MeanOutput:                stats.Mean(output),
			MeanEnergyKWh:             stats.Mean(energy),
			DelayedShare: stats.Share(obs, func(o models.Observation) bool {
				return o.ComponentAvailability == models.ComponentDelayed
			}),
			ShortageSeen: shortage,
		}
	}

	snap.ShiftAvail = make(map[string]float64, len(byShift))
	for shiftID, avail := range byShift {
		snap.ShiftAvail[shiftID] = stats.Mean(avail)
	}
}

// parseRow converts one flat key->value scenario record into an
// Observation. Field names follow the snapshot schema; numeric fields
// accept JSON numbers, Go numerics, and numeric strings.
func parseRow(row map[string]interface{}) (models.Observation, error) {
	obs := models.Observation{}

	lineID, err := asString(row, "line_id")
	if err != nil {
		return obs, err
	}
	shiftID, err := asString(row, "shift_id")
	if err != nil {
		return obs, err
	}
	obs.LineID = lineID
	obs.ShiftID = shiftID

	numeric := []struct {
		key string
		dst *float64
	}{
		{"demand", &obs.Demand},
		{"output", &obs.Output},
		{"uptime_pct", &obs.UptimePct},
		{"worker_availability_pct", &obs.WorkerAvailabilityPct},
		{"defect_rate_pct", &obs.DefectRatePct},
		{"inventory_pct", &obs.InventoryPct},
		{"energy_kwh", &obs.EnergyKWh},
	}
	for _, f := range numeric {
		v, err := asFloat(row, f.key)
		if err != nil {
			return obs, err
		}
		*f.dst = v
	}

	if raw, ok := row["component_availability"]; ok {
		if s, ok := raw.(string); ok {
			obs.ComponentAvailability = s
		}
	}
	if obs.ComponentAvailability == "" {
		obs.ComponentAvailability = models.ComponentOK
	}

	if raw, ok := row["alert_flag"]; ok {
		if s, ok := raw.(string); ok {
			obs.AlertFlag = s
		}
	}

	if raw, ok := row["timestamp"]; ok {
		switch v := raw.(type) {
		case time.Time:
			obs.Timestamp = v
		case string:
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				obs.Timestamp = t
			}
		}
	}

	return obs, nil
}

func asString(row map[string]interface{}, key string) (string, error) {
	raw, ok := row[key]
	if !ok {
		return "", fmt.Errorf("missing field %q", key)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("field %q must be a non-empty string", key)
	}
	return s, nil
}

func asFloat(row map[string]interface{}, key string) (float64, error) {
	raw, ok := row[key]
	if !ok {
		return 0, fmt.Errorf("missing field %q", key)
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("field %q is not numeric: %v", key, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("field %q has unsupported type %T", key, raw)
	}
}
