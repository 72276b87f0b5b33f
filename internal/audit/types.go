package audit

import "time"

// EventType represents the type of audit event
type EventType string

const (
	// Analysis run events
	EventAnalysisStarted   EventType = "analysis.started"
	EventAnalysisConcluded EventType = "analysis.concluded"
	EventAnalysisFailed    EventType = "analysis.failed"

	// Pipeline events
	EventSnapshotBuilt   EventType = "snapshot.built"
	EventRulesEvaluated  EventType = "rules.evaluated"
	EventScoringComplete EventType = "scoring.completed"
	EventScoringFallback EventType = "scoring.fallback"

	// Reasoning events
	EventStageStarted          EventType = "stage.started"
	EventStageCompleted        EventType = "stage.completed"
	EventStageDegraded         EventType = "stage.degraded"
	EventRecommendationDropped EventType = "recommendation.dropped"

	// Decision log events
	EventDecisionRecorded EventType = "decision.recorded"
	EventDecisionExported EventType = "decision.exported"

	// Configuration events
	EventConfigLoaded  EventType = "config.loaded"
	EventConfigChanged EventType = "config.changed"

	// Model events
	EventModelsTrained  EventType = "models.trained"
	EventModelsReloaded EventType = "models.reloaded"

	// System events
	EventServerStarted  EventType = "system.server_started"
	EventServerShutdown EventType = "system.server_shutdown"
)

// Result represents the outcome of an audited action
type Result string

const (
	ResultSuccess  Result = "success"
	ResultFailure  Result = "failure"
	ResultPending  Result = "pending"
	ResultDegraded Result = "degraded"
)

// Event represents a single audit event
type Event struct {
	// Core fields
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	EventType EventType `json:"event_type"`
	Result    Result    `json:"result"`

	// Pipeline stage information
	Stage    string `json:"stage,omitempty"`
	Scenario string `json:"scenario,omitempty"`

	// Subject information (line, shift, supplier)
	Subject     string `json:"subject,omitempty"`
	SubjectType string `json:"subject_type,omitempty"`

	// Action details
	Action      string                 `json:"action,omitempty"`
	Description string                 `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`

	// Error information
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`

	// Duration tracking
	DurationMs int64 `json:"duration_ms,omitempty"`
}

// NewEvent creates a new audit event with default values
func NewEvent(eventType EventType) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Result:    ResultPending,
		Metadata:  make(map[string]interface{}),
	}
}

// WithRunID sets the analysis run ID for event tracking
func (e *Event) WithRunID(id string) *Event {
	e.RunID = id
	return e
}

// WithStage sets the pipeline stage the event belongs to
func (e *Event) WithStage(stage string) *Event {
	e.Stage = stage
	return e
}

// WithScenario sets the scenario label of the run
func (e *Event) WithScenario(scenario string) *Event {
	e.Scenario = scenario
	return e
}

// WithSubject sets the entity being acted upon
func (e *Event) WithSubject(subject, subjectType string) *Event {
	e.Subject = subject
	e.SubjectType = subjectType
	return e
}

// WithAction sets the action being performed
func (e *Event) WithAction(action string) *Event {
	e.Action = action
	return e
}

// WithDescription sets a human-readable description
func (e *Event) WithDescription(desc string) *Event {
	e.Description = desc
	return e
}

// WithResult sets the result of the event
func (e *Event) WithResult(result Result) *Event {
	e.Result = result
	return e
}

// WithError sets error information
func (e *Event) WithError(err error, code string) *Event {
	if err != nil {
		e.Error = err.Error()
		e.ErrorCode = code
		e.Result = ResultFailure
	}
	return e
}

// WithDuration sets the duration in milliseconds
func (e *Event) WithDuration(duration time.Duration) *Event {
	e.DurationMs = duration.Milliseconds()
	return e
}

// WithMetadata adds metadata to the event
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	e.Metadata[key] = value
	return e
}
