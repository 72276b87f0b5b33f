package models

// Package models defines the core data types shared across the decision
// pipeline: snapshots, rule findings, risk scores, recommendations, and
// decision log entries.

import "time"

// Severity levels for rule findings and run results.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns the ordering weight of a severity. Unknown severities rank
// below LOW so malformed input never outranks real findings.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// MaxSeverity returns the higher of two severities.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Action tags a rule or reasoning stage can propose.
type ActionTag string

const (
	ActionDispatchMaintenance ActionTag = "DISPATCH_MAINTENANCE"
	ActionReallocateLine      ActionTag = "REALLOCATE_LINE"
	ActionIncreaseShift       ActionTag = "INCREASE_SHIFT"
	ActionRaiseSupplyAlert    ActionTag = "RAISE_SUPPLY_ALERT"
	ActionSwitchSupplier      ActionTag = "SWITCH_SUPPLIER"
)

// Disruption event kinds recognized by the pipeline.
const (
	EventEquipmentFailure = "equipment_failure"
	EventDemandSpike      = "demand_spike"
	EventSupplyDelay      = "supply_delay"
)

// Component availability states carried on observations.
const (
	ComponentOK       = "OK"
	ComponentDelayed  = "Delayed"
	ComponentShortage = "Shortage"
)

// Observation is one time-series record for a line/shift pair.
type Observation struct {
	Timestamp             time.Time `json:"timestamp"`
	LineID                string    `json:"line_id"`
	ShiftID               string    `json:"shift_id"`
	Demand                float64   `json:"demand"`
	Output                float64   `json:"output"`
	UptimePct             float64   `json:"uptime_pct"`
	WorkerAvailabilityPct float64   `json:"worker_availability_pct"`
	DefectRatePct         float64   `json:"defect_rate_pct"`
	InventoryPct          float64   `json:"inventory_pct"`
	EnergyKWh             float64   `json:"energy_kwh"`
	ComponentAvailability string    `json:"component_availability"`
	AlertFlag             string    `json:"alert_flag,omitempty"`
}

// Line is static reference data for one assembly line.
type Line struct {
	ID             string  `json:"id"`
	Name           string  `json:"name,omitempty"`
	DailyCapacity  float64 `json:"daily_capacity"`
	OEEPct         float64 `json:"oee_pct"`
	MTTRHours      float64 `json:"mttr_hours"`
	MTBFHours      float64 `json:"mtbf_hours"`
	UtilizationPct float64 `json:"utilization_pct"`
}

// Shift is static reference data for one shift.
type Shift struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name,omitempty"`
	Staffing             int     `json:"staffing"`
	OvertimeCeilingHours float64 `json:"overtime_ceiling_hours"`
}

// Supplier is static reference data for one component supplier.
type Supplier struct {
	ID             string  `json:"id"`
	Name           string  `json:"name,omitempty"`
	Component      string  `json:"component,omitempty"`
	LeadTimeDays   float64 `json:"lead_time_days"`
	ReliabilityPct float64 `json:"reliability_pct"`
}

// InventoryItem is static reference data for one stocked item.
type InventoryItem struct {
	ID           string  `json:"id"`
	Name         string  `json:"name,omitempty"`
	OnHand       float64 `json:"on_hand"`
	ReorderPoint float64 `json:"reorder_point"`
	SafetyStock  float64 `json:"safety_stock"`
}

// Order is one open production order.
type Order struct {
	ID       string    `json:"id"`
	LineID   string    `json:"line_id"`
	Quantity float64   `json:"quantity"`
	DueDate  time.Time `json:"due_date"`
}

// DisruptionEvent describes the triggering incident for an analysis run,
// if one is known.
type DisruptionEvent struct {
	Kind        string `json:"kind"`
	AffectedID  string `json:"affected_id,omitempty"`
	Description string `json:"description,omitempty"`
}

// LineAggregates holds the per-line derived statistics computed when a
// snapshot is built.
type LineAggregates struct {
	MeanUptimePct             float64 `json:"mean_uptime_pct"`
	MeanInventoryPct          float64 `json:"mean_inventory_pct"`
	MeanDefectRatePct         float64 `json:"mean_defect_rate_pct"`
	MeanWorkerAvailabilityPct float64 `json:"mean_worker_availability_pct"`
	MeanOutput                float64 `json:"mean_output"`
	MeanEnergyKWh             float64 `json:"mean_energy_kwh"`
	DelayedShare              float64 `json:"delayed_share"`
	ShortageSeen              bool    `json:"shortage_seen"`
}

// Snapshot is the immutable point-in-time view of one analysis run: the
// scenario observation window, the static reference tables, and the
// derived aggregates the downstream components read. Snapshots are built
// once per run and never mutated.
type Snapshot struct {
	BuiltAt      time.Time                 `json:"built_at"`
	Scenario     string                    `json:"scenario"`
	Observations []Observation             `json:"observations"`
	Lines        []Line                    `json:"lines"`
	Shifts       []Shift                   `json:"shifts"`
	Suppliers    []Supplier                `json:"suppliers"`
	Inventory    []InventoryItem           `json:"inventory"`
	Orders       []Order                   `json:"orders"`
	Event        *DisruptionEvent          `json:"event,omitempty"`
	DemandMean   float64                   `json:"demand_mean"`
	DemandStdDev float64                   `json:"demand_stddev"`
	DemandPeak   float64                   `json:"demand_peak"`
	LineStats    map[string]LineAggregates `json:"line_stats"`
	ShiftAvail   map[string]float64        `json:"shift_availability"`
}

// LineByID returns the reference line with the given ID, if present.
func (s *Snapshot) LineByID(id string) (Line, bool) {
	for _, l := range s.Lines {
		if l.ID == id {
			return l, true
		}
	}
	return Line{}, false
}

// RuleFinding is the result of evaluating one deterministic rule check.
// Every rule reports a finding whether or not it fired, so the decision
// log can show what was checked, not just what triggered.
type RuleFinding struct {
	RuleID    string      `json:"rule_id"`
	Name      string      `json:"name"`
	Fired     bool        `json:"fired"`
	Subject   string      `json:"subject,omitempty"`
	Metric    string      `json:"metric"`
	Threshold float64     `json:"threshold"`
	Observed  float64     `json:"observed"`
	Condition string      `json:"condition"`
	Severity  Severity    `json:"severity"`
	Actions   []ActionTag `json:"actions"`
	Detail    string      `json:"detail,omitempty"`
}

// Score kinds produced by the prediction scorer.
type ScoreKind string

const (
	ScoreBreakdownRisk ScoreKind = "breakdown-risk"
	ScoreDelayRisk     ScoreKind = "delay-risk"
	ScoreSupplierRisk  ScoreKind = "supplier-risk"
)

// Risk bands derived from score values by fixed cutoffs.
type RiskBand string

const (
	BandLow    RiskBand = "LOW"
	BandMedium RiskBand = "MEDIUM"
	BandHigh   RiskBand = "HIGH"
)

// Score is one probabilistic or heuristic risk estimate. Breakdown and
// delay risk values live in [0,1]; supplier risk lives in [0,100].
type Score struct {
	Subject  string    `json:"subject"`
	Kind     ScoreKind `json:"kind"`
	Value    float64   `json:"value"`
	Band     RiskBand  `json:"band"`
	Fallback bool      `json:"fallback"`
	Detail   string    `json:"detail,omitempty"`
}

// Ref returns the stable reference string used to cite this score from a
// recommendation.
func (s Score) Ref() string {
	return string(s.Kind) + ":" + s.Subject
}

// Recommendation is one ranked, justified corrective action. Created by
// the synthesis stage and never mutated afterwards; a new run replaces,
// never edits.
type Recommendation struct {
	Action            string   `json:"action"`
	Priority          int      `json:"priority"`
	Reasoning         string   `json:"reasoning"`
	SourceStage       string   `json:"source_stage"`
	Severity          Severity `json:"severity"`
	ExpectedKPIImpact string   `json:"expected_kpi_impact"`
	EstimatedTime     string   `json:"estimated_time"`
	SupportingRules   []string `json:"supporting_rules"`
	SupportingScores  []string `json:"supporting_scores"`
}

// Grounded reports whether the recommendation cites at least one rule
// finding or score. Ungrounded recommendations are dropped by synthesis.
func (r Recommendation) Grounded() bool {
	return len(r.SupportingRules) > 0 || len(r.SupportingScores) > 0
}

// DecisionLogEntry ties one recommendation to the evidence that
// justified it. Entries are append-only within a run.
type DecisionLogEntry struct {
	ID                   string         `json:"decision_id"`
	Timestamp            time.Time      `json:"timestamp"`
	Scenario             string         `json:"scenario"`
	Recommendation       Recommendation `json:"recommendation"`
	RulesTriggered       []RuleFinding  `json:"rules_triggered"`
	ThresholdsBreached   []string       `json:"thresholds_breached"`
	Scores               []Score        `json:"scores"`
	Justification        string         `json:"justification"`
	SupportingIndicators []string       `json:"supporting_indicators"`
	LogicTrace           []string       `json:"logic_trace"`
}
