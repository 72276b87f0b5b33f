package models

import (
	"fmt"
	"time"
)

// ContextError is the fatal error class for snapshot construction:
// missing reference tables or scenario rows keyed to unknown entities.
// No partial snapshot is produced when one is returned.
type ContextError struct {
	Reason string
	Table  string
	Key    string
}

func (e *ContextError) Error() string {
	switch {
	case e.Table != "" && e.Key != "":
		return fmt.Sprintf("context error: %s (table %q, key %q)", e.Reason, e.Table, e.Key)
	case e.Table != "":
		return fmt.Sprintf("context error: %s (table %q)", e.Reason, e.Table)
	default:
		return fmt.Sprintf("context error: %s", e.Reason)
	}
}

// RuleEvaluationError is the fatal error class for a malformed snapshot
// reaching the rule engine. Unreachable when the context builder's
// contract holds.
type RuleEvaluationError struct {
	Rule   string
	Reason string
}

func (e *RuleEvaluationError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("rule evaluation error in %s: %s", e.Rule, e.Reason)
	}
	return fmt.Sprintf("rule evaluation error: %s", e.Reason)
}

// DiagnosticKind classifies recoverable degradations accumulated over a
// run. These never abort an analysis; they are returned alongside the
// decision log so the caller can flag partial evidence.
type DiagnosticKind string

const (
	DiagScoringDegraded      DiagnosticKind = "ScoringDegraded"
	DiagStageDegraded        DiagnosticKind = "StageDegraded"
	DiagUngroundedRecDropped DiagnosticKind = "UngroundedRecommendationDropped"
)

// Diagnostic is one recoverable degradation recorded during a run.
type Diagnostic struct {
	Kind      DiagnosticKind `json:"kind"`
	Component string         `json:"component"`
	Message   string         `json:"message"`
	At        time.Time      `json:"at"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("[%s] %s: %s", d.Kind, d.Component, d.Message)
}
