// Package contracts defines the wire types of the plantops-ai HTTP API.
//
// These types are the stable request/response surface consumed by the
// dashboard and by programmatic clients. Internal pipeline types that
// appear here verbatim (models.Line, models.Recommendation, ...) are
// part of that surface; changing their JSON shape is a breaking change.
package contracts

import (
	"time"

	"github.com/plantops/plantops-ai/internal/models"
)

// AnalyzeRequest starts one analysis run.
//
// Rows carry the scenario observation window as flat records; field
// names must match the observation schema (timestamp, line_id,
// shift_id, demand, output, uptime_pct, ...). Reference tables are
// required except Orders. Event is optional; when present its kind
// selects the scenario prompt set.
type AnalyzeRequest struct {
	Scenario  string                   `json:"scenario,omitempty"`
	Rows      []map[string]interface{} `json:"rows"`
	Reference ReferenceTables          `json:"reference"`
	Event     *models.DisruptionEvent  `json:"event,omitempty"`
}

// ReferenceTables is the static plant reference data for one run.
type ReferenceTables struct {
	Lines     []models.Line          `json:"lines"`
	Shifts    []models.Shift         `json:"shifts"`
	Suppliers []models.Supplier      `json:"suppliers"`
	Inventory []models.InventoryItem `json:"inventory"`
	Orders    []models.Order         `json:"orders,omitempty"`
}

// AnalyzeAccepted acknowledges a started run. The run itself completes
// asynchronously; progress streams at StreamURL and the final result is
// available at GET /api/v1/runs/{run_id}.
type AnalyzeAccepted struct {
	RunID     string `json:"run_id"`
	Scenario  string `json:"scenario"`
	State     string `json:"state"`
	StreamURL string `json:"stream_url"`
}

// RunSummary is the list-view projection of a run.
type RunSummary struct {
	ID              string    `json:"id"`
	Scenario        string    `json:"scenario"`
	State           string    `json:"state"`
	OverallSeverity string    `json:"overall_severity,omitempty"`
	Recommendations int       `json:"recommendations"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// RunsList is the response of GET /api/v1/runs.
type RunsList struct {
	Runs  []RunSummary `json:"runs"`
	Count int          `json:"count"`
}

// ImportResult acknowledges a decision log import.
type ImportResult struct {
	RunID   string `json:"run_id"`
	Entries int    `json:"entries"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}
