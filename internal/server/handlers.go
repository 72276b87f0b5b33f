package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/plantops/plantops-ai/internal/decisionlog"
	"github.com/plantops/plantops-ai/internal/history"
	"github.com/plantops/plantops-ai/internal/reasoning/engine"
	"github.com/plantops/plantops-ai/internal/snapshot"
	"github.com/plantops/plantops-ai/pkg/contracts"
)

// handleAnalyze starts an analysis run from scenario rows, reference
// tables, and an optional disruption event.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req contracts.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Rows) == 0 {
		writeError(w, http.StatusBadRequest, "rows are required")
		return
	}

	in := snapshot.Input{
		Scenario: req.Scenario,
		Rows:     req.Rows,
		Reference: snapshot.ReferenceTables{
			Lines:     req.Reference.Lines,
			Shifts:    req.Reference.Shifts,
			Suppliers: req.Reference.Suppliers,
			Inventory: req.Reference.Inventory,
			Orders:    req.Reference.Orders,
		},
		Event: req.Event,
	}

	id, err := s.engine.Analyze(r.Context(), in)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := s.engine.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("analysis run accepted",
		zap.String("run_id", id), zap.String("scenario", run.Scenario))

	writeJSON(w, http.StatusAccepted, contracts.AnalyzeAccepted{
		RunID:     id,
		Scenario:  run.Scenario,
		State:     string(run.State),
		StreamURL: "/ws/runs/" + id,
	})
}

// handleRuns lists all runs in creation order.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	runs, err := s.engine.ListRuns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	summaries := make([]contracts.RunSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, contracts.RunSummary{
			ID:              run.ID,
			Scenario:        run.Scenario,
			State:           string(run.State),
			OverallSeverity: string(run.OverallSeverity),
			Recommendations: len(run.Recommendations),
			CreatedAt:       run.CreatedAt,
			UpdatedAt:       run.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, contracts.RunsList{Runs: summaries, Count: len(summaries)})
}

// handleRunByID dispatches /api/v1/runs/{id} and its decision exports.
func (s *Server) handleRunByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
	rest = strings.TrimSuffix(rest, "/")
	if rest == "" {
		writeError(w, http.StatusBadRequest, "run ID required")
		return
	}

	parts := strings.SplitN(rest, "/", 3)
	id := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleGetRun(w, r, id)
		case http.MethodDelete:
			s.handleCancelRun(w, r, id)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	if len(parts) == 3 && parts[1] == "decisions" && r.Method == http.MethodGet {
		switch parts[2] {
		case "flat":
			s.handleDecisionsFlat(w, r, id)
			return
		case "nested":
			s.handleDecisionsNested(w, r, id)
			return
		}
	}
	writeError(w, http.StatusNotFound, "unknown resource")
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request, id string) {
	run, err := s.engine.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.engine.CancelRun(r.Context(), id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "state": string(engine.StateCancelled)})
}

// handleDecisionsFlat serves the tabular export of a concluded run.
func (s *Server) handleDecisionsFlat(w http.ResponseWriter, r *http.Request, id string) {
	run, err := s.engine.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	rows := decisionlog.ExportFlat(run.Entries)
	writeJSON(w, http.StatusOK, map[string]interface{}{"run_id": id, "rows": rows, "count": len(rows)})
}

// handleDecisionsNested serves the round-trip structured export.
func (s *Server) handleDecisionsNested(w http.ResponseWriter, r *http.Request, id string) {
	run, err := s.engine.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	at := run.UpdatedAt
	if run.ConcludedAt != nil {
		at = *run.ConcludedAt
	}
	writeJSON(w, http.StatusOK, decisionlog.ExportNested(run.ID, run.Scenario, at, run.Entries))
}

// handleDecisionImport re-ingests a nested export, persisting its
// entries to the history store.
func (s *Server) handleDecisionImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 4<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	log, err := decisionlog.ImportNested(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.store != nil {
		for _, entry := range log.Entries {
			rec := &history.DecisionRecord{
				RunID:      log.RunID,
				DecisionID: entry.ID,
				Scenario:   entry.Scenario,
				Action:     entry.Recommendation.Action,
				Priority:   entry.Recommendation.Priority,
				Payload:    decisionlog.MarshalEntry(entry),
				RecordedAt: entry.Timestamp,
			}
			if err := s.store.AppendDecision(r.Context(), rec); err != nil {
				writeError(w, http.StatusInternalServerError, "persist entry "+entry.ID+": "+err.Error())
				return
			}
		}
	}

	writeJSON(w, http.StatusOK, contracts.ImportResult{RunID: log.RunID, Entries: len(log.Entries)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady reports readiness: the server is up and the history store
// answers pings. A missing store still counts as ready, runs just skip
// persistence.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.IsRunning() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": "history store unreachable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, contracts.ErrorResponse{Error: msg})
}
