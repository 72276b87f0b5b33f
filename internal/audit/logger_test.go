package audit

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLogger(t *testing.T) (Logger, *Config) {
	t.Helper()
	tmpDir := t.TempDir()
	config := &Config{
		AuditLogPath: filepath.Join(tmpDir, "decisions.log"),
		AppLogPath:   filepath.Join(tmpDir, "app.log"),
		MaxSize:      10,
		MaxBackups:   3,
		MaxAge:       7,
		LogLevel:     "info",
	}
	logger, err := NewLogger(config)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })
	return logger, config
}

func readAuditLog(t *testing.T, config *Config) string {
	t.Helper()
	content, err := os.ReadFile(config.AuditLogPath)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}
	return string(content)
}

func TestNewLogger(t *testing.T) {
	logger, _ := newTestLogger(t)
	if logger == nil {
		t.Fatal("Expected logger to be non-nil")
	}
}

func TestNewLoggerWithInvalidLevel(t *testing.T) {
	tmpDir := t.TempDir()

	config := &Config{
		AuditLogPath: filepath.Join(tmpDir, "decisions.log"),
		AppLogPath:   filepath.Join(tmpDir, "app.log"),
		LogLevel:     "invalid",
	}

	_, err := NewLogger(config)
	if err == nil {
		t.Fatal("Expected error for invalid log level")
	}
	if !strings.Contains(err.Error(), "invalid log level") {
		t.Errorf("Expected 'invalid log level' error, got: %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.AuditLogPath != "logs/decisions.log" {
		t.Errorf("Expected audit log path 'logs/decisions.log', got %s", config.AuditLogPath)
	}
	if config.AppLogPath != "logs/app.log" {
		t.Errorf("Expected app log path 'logs/app.log', got %s", config.AppLogPath)
	}
	if config.MaxSize != 50 {
		t.Errorf("Expected max size 50, got %d", config.MaxSize)
	}
	if config.MaxBackups != 5 {
		t.Errorf("Expected max backups 5, got %d", config.MaxBackups)
	}
	if config.LogLevel != "info" {
		t.Errorf("Expected log level 'info', got %s", config.LogLevel)
	}
}

func TestLogEvent(t *testing.T) {
	logger, config := newTestLogger(t)

	ctx := context.Background()
	event := NewEvent(EventAnalysisStarted).
		WithRunID("run-123").
		WithScenario("equipment_failure").
		WithResult(ResultSuccess)

	if err := logger.Log(ctx, event); err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	logContent := readAuditLog(t, config)
	if !strings.Contains(logContent, "run-123") {
		t.Error("Log does not contain run ID")
	}
	if !strings.Contains(logContent, "analysis.started") {
		t.Error("Log does not contain event type")
	}
	if !strings.Contains(logContent, "equipment_failure") {
		t.Error("Log does not contain scenario")
	}
}

func TestLogAnalysisLifecycle(t *testing.T) {
	logger, config := newTestLogger(t)

	ctx := context.Background()
	runID := "run-456"

	if err := logger.LogAnalysisStarted(ctx, runID, "demand_spike"); err != nil {
		t.Fatalf("LogAnalysisStarted failed: %v", err)
	}
	if err := logger.LogStageCompleted(ctx, runID, "line_health", 2*time.Second); err != nil {
		t.Fatalf("LogStageCompleted failed: %v", err)
	}
	if err := logger.LogAnalysisConcluded(ctx, runID, 3, 20*time.Second); err != nil {
		t.Fatalf("LogAnalysisConcluded failed: %v", err)
	}
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	logContent := readAuditLog(t, config)
	if !strings.Contains(logContent, runID) {
		t.Error("Log does not contain run ID")
	}
	if !strings.Contains(logContent, "analysis.started") {
		t.Error("Log does not contain started event")
	}
	if !strings.Contains(logContent, "stage.completed") {
		t.Error("Log does not contain stage event")
	}
	if !strings.Contains(logContent, "analysis.concluded") {
		t.Error("Log does not contain concluded event")
	}
}

func TestLogAnalysisFailed(t *testing.T) {
	logger, config := newTestLogger(t)

	ctx := context.Background()
	if err := logger.LogAnalysisFailed(ctx, "run-789", "context_builder", errors.New("missing reference table")); err != nil {
		t.Fatalf("LogAnalysisFailed failed: %v", err)
	}
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	logContent := readAuditLog(t, config)
	if !strings.Contains(logContent, "analysis.failed") {
		t.Error("Log does not contain failed event")
	}
	if !strings.Contains(logContent, "context_builder") {
		t.Error("Log does not contain failing stage")
	}
	if !strings.Contains(logContent, "missing reference table") {
		t.Error("Log does not contain the error")
	}
	if !strings.Contains(logContent, "failure") {
		t.Error("Log does not contain failure result")
	}
}

func TestLogDegradations(t *testing.T) {
	logger, config := newTestLogger(t)

	ctx := context.Background()
	if err := logger.LogStageDegraded(ctx, "run-1", "inventory", "timeout"); err != nil {
		t.Fatalf("LogStageDegraded failed: %v", err)
	}
	if err := logger.LogScoringFallback(ctx, "run-1", "breakdown-risk", "model not fitted"); err != nil {
		t.Fatalf("LogScoringFallback failed: %v", err)
	}
	if err := logger.LogRecommendationDropped(ctx, "run-1", "Consult the oracle"); err != nil {
		t.Fatalf("LogRecommendationDropped failed: %v", err)
	}
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	logContent := readAuditLog(t, config)
	if !strings.Contains(logContent, "stage.degraded") {
		t.Error("Log does not contain stage degradation")
	}
	if !strings.Contains(logContent, "scoring.fallback") {
		t.Error("Log does not contain scoring fallback")
	}
	if !strings.Contains(logContent, "recommendation.dropped") {
		t.Error("Log does not contain dropped recommendation")
	}
	if !strings.Contains(logContent, "degraded") {
		t.Error("Log does not contain degraded result")
	}
}

func TestLogDecisionRecorded(t *testing.T) {
	logger, config := newTestLogger(t)

	ctx := context.Background()
	if err := logger.LogDecisionRecorded(ctx, "run-1", "DEC-9f2c41aa-01", "Dispatch maintenance crew to line L2"); err != nil {
		t.Fatalf("LogDecisionRecorded failed: %v", err)
	}
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	logContent := readAuditLog(t, config)
	if !strings.Contains(logContent, "decision.recorded") {
		t.Error("Log does not contain decision event")
	}
	if !strings.Contains(logContent, "DEC-9f2c41aa-01") {
		t.Error("Log does not contain decision ID")
	}
}

func TestBufferAutoFlush(t *testing.T) {
	logger, config := newTestLogger(t)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		event := NewEvent(EventRulesEvaluated).
			WithRunID("run-flush").
			WithResult(ResultSuccess)
		if err := logger.Log(ctx, event); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	// Wait for auto-flush (1 second ticker).
	time.Sleep(1500 * time.Millisecond)

	content, err := os.ReadFile(config.AuditLogPath)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}
	if len(content) == 0 {
		t.Error("Audit log is empty after auto-flush")
	}
}

func TestBufferFullFlush(t *testing.T) {
	logger, config := newTestLogger(t)

	ctx := context.Background()
	for i := 0; i < 105; i++ {
		event := NewEvent(EventSnapshotBuilt).
			WithRunID("run-bulk").
			WithResult(ResultSuccess)
		if err := logger.Log(ctx, event); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	lines := strings.Split(readAuditLog(t, config), "\n")
	eventCount := 0
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			eventCount++
		}
	}
	if eventCount < 105 {
		t.Errorf("Expected at least 105 events, got %d", eventCount)
	}
}

func TestEventBuilderChain(t *testing.T) {
	event := NewEvent(EventStageDegraded).
		WithRunID("run-chain").
		WithStage("supply_chain").
		WithScenario("supply_delay").
		WithSubject("SUP1", "supplier").
		WithAction("SWITCH_SUPPLIER").
		WithDescription("Supply chain stage degraded").
		WithResult(ResultDegraded).
		WithDuration(3 * time.Second).
		WithMetadata("reason", "timeout")

	if event.RunID != "run-chain" {
		t.Errorf("Expected run ID 'run-chain', got %s", event.RunID)
	}
	if event.Stage != "supply_chain" {
		t.Errorf("Expected stage 'supply_chain', got %s", event.Stage)
	}
	if event.Scenario != "supply_delay" {
		t.Errorf("Expected scenario 'supply_delay', got %s", event.Scenario)
	}
	if event.Subject != "SUP1" || event.SubjectType != "supplier" {
		t.Errorf("Expected subject SUP1/supplier, got %s/%s", event.Subject, event.SubjectType)
	}
	if event.Action != "SWITCH_SUPPLIER" {
		t.Errorf("Expected action 'SWITCH_SUPPLIER', got %s", event.Action)
	}
	if event.Result != ResultDegraded {
		t.Errorf("Expected result 'degraded', got %s", event.Result)
	}
	if event.DurationMs != 3000 {
		t.Errorf("Expected duration 3000ms, got %d", event.DurationMs)
	}
	if reason, ok := event.Metadata["reason"].(string); !ok || reason != "timeout" {
		t.Errorf("Expected metadata reason 'timeout', got %v", event.Metadata["reason"])
	}
}

func TestWithErrorSetsFailureResult(t *testing.T) {
	event := NewEvent(EventAnalysisFailed).
		WithRunID("run-err").
		WithError(errors.New("rule battery rejected snapshot"), "rule_error")

	if event.Result != ResultFailure {
		t.Errorf("Expected result 'failure', got %s", event.Result)
	}
	if event.Error != "rule battery rejected snapshot" {
		t.Errorf("Unexpected error text: %s", event.Error)
	}
	if event.ErrorCode != "rule_error" {
		t.Errorf("Unexpected error code: %s", event.ErrorCode)
	}
}

func TestEventJSONSerialization(t *testing.T) {
	event := NewEvent(EventAnalysisStarted).
		WithRunID("run-json").
		WithScenario("demand_spike").
		WithResult(ResultSuccess)

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Failed to marshal event: %v", err)
	}

	var decoded Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal event: %v", err)
	}

	if decoded.RunID != "run-json" {
		t.Errorf("Expected run ID 'run-json', got %s", decoded.RunID)
	}
	if decoded.Scenario != "demand_spike" {
		t.Errorf("Expected scenario 'demand_spike', got %s", decoded.Scenario)
	}
	if decoded.EventType != EventAnalysisStarted {
		t.Errorf("Expected event type 'analysis.started', got %s", decoded.EventType)
	}
	if decoded.Result != ResultSuccess {
		t.Errorf("Expected result 'success', got %s", decoded.Result)
	}
}
