package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger defines the interface for the decision audit trail
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// LogAnalysis logs analysis run lifecycle events
	LogAnalysisStarted(ctx context.Context, runID, scenario string) error
	LogAnalysisConcluded(ctx context.Context, runID string, recommendations int, duration time.Duration) error
	LogAnalysisFailed(ctx context.Context, runID, stage string, err error) error

	// LogStage logs reasoning stage lifecycle events
	LogStageCompleted(ctx context.Context, runID, stage string, duration time.Duration) error
	LogStageDegraded(ctx context.Context, runID, stage, reason string) error

	// LogScoringFallback logs a sub-scorer falling back to its heuristic
	LogScoringFallback(ctx context.Context, runID, kind, reason string) error

	// LogRecommendationDropped logs synthesis discarding ungrounded output
	LogRecommendationDropped(ctx context.Context, runID, action string) error

	// LogDecisionRecorded logs one decision log entry being written
	LogDecisionRecorded(ctx context.Context, runID, decisionID, action string) error

	// Sync flushes buffered log entries
	Sync() error

	// Close closes the audit logger
	Close() error
}

// Config represents audit logger configuration
type Config struct {
	// AuditLogPath is the path to the append-only decision audit log
	AuditLogPath string

	// AppLogPath is the path to the application log file
	AppLogPath string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Compress determines if rotated files should be compressed
	Compress bool

	// LogLevel is the minimum log level (debug, info, warn, error)
	LogLevel string
}

// DefaultConfig returns default audit logger configuration
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath: "logs/decisions.log",
		AppLogPath:   "logs/app.log",
		MaxSize:      50, // megabytes
		MaxBackups:   5,
		MaxAge:       90, // days
		Compress:     true,
		LogLevel:     "info",
	}
}

// auditLogger implements the Logger interface
type auditLogger struct {
	appLogger   *zap.Logger
	auditLogger *zap.Logger
	config      *Config
	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
}

// NewLogger creates a new audit logger
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.LogLevel, err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	appRotator := &lumberjack.Logger{
		Filename:   config.AppLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	appCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(appRotator),
		level,
	)

	appLogger := zap.New(appCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	// Decision audit log: append-only, always INFO
	auditRotator := &lumberjack.Logger{
		Filename:   config.AuditLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	auditCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(auditRotator),
		zapcore.InfoLevel,
	)

	auditZapLogger := zap.New(auditCore)

	logger := &auditLogger{
		appLogger:   appLogger,
		auditLogger: auditZapLogger,
		config:      config,
		buffer:      make([]*Event, 0, 100),
		flushTicker: time.NewTicker(1 * time.Second),
		stopCh:      make(chan struct{}),
	}

	go logger.autoFlush()

	return logger, nil
}

// Log logs an audit event
func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer = append(l.buffer, event)

	if len(l.buffer) >= 100 {
		return l.flushLocked()
	}

	return nil
}

// flushLocked flushes the buffer (caller must hold lock)
func (l *auditLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}

	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			l.appLogger.Error("failed to marshal audit event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)),
			)
			continue
		}

		l.auditLogger.Info(string(eventJSON),
			zap.String("run_id", event.RunID),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}

	l.buffer = l.buffer[:0]

	return nil
}

// autoFlush periodically flushes the buffer
func (l *auditLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// LogAnalysisStarted logs when an analysis run starts
func (l *auditLogger) LogAnalysisStarted(ctx context.Context, runID, scenario string) error {
	event := NewEvent(EventAnalysisStarted).
		WithRunID(runID).
		WithScenario(scenario).
		WithResult(ResultSuccess).
		WithDescription(fmt.Sprintf("Analysis run %s started for scenario %s", runID, scenario))

	return l.Log(ctx, event)
}

// LogAnalysisConcluded logs when an analysis run concludes
func (l *auditLogger) LogAnalysisConcluded(ctx context.Context, runID string, recommendations int, duration time.Duration) error {
	event := NewEvent(EventAnalysisConcluded).
		WithRunID(runID).
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithMetadata("recommendations", recommendations).
		WithDescription(fmt.Sprintf("Analysis run %s concluded with %d recommendations", runID, recommendations))

	return l.Log(ctx, event)
}

// LogAnalysisFailed logs when an analysis run fails
func (l *auditLogger) LogAnalysisFailed(ctx context.Context, runID, stage string, err error) error {
	event := NewEvent(EventAnalysisFailed).
		WithRunID(runID).
		WithStage(stage).
		WithError(err, "analysis_error").
		WithDescription(fmt.Sprintf("Analysis run %s failed in %s", runID, stage))

	return l.Log(ctx, event)
}

// LogStageCompleted logs when a reasoning stage completes
func (l *auditLogger) LogStageCompleted(ctx context.Context, runID, stage string, duration time.Duration) error {
	event := NewEvent(EventStageCompleted).
		WithRunID(runID).
		WithStage(stage).
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithDescription(fmt.Sprintf("Stage %s completed", stage))

	return l.Log(ctx, event)
}

// LogStageDegraded logs when a reasoning stage degrades to empty output
func (l *auditLogger) LogStageDegraded(ctx context.Context, runID, stage, reason string) error {
	event := NewEvent(EventStageDegraded).
		WithRunID(runID).
		WithStage(stage).
		WithResult(ResultDegraded).
		WithMetadata("reason", reason).
		WithDescription(fmt.Sprintf("Stage %s degraded: %s", stage, reason))

	return l.Log(ctx, event)
}

// LogScoringFallback logs a sub-scorer substituting its heuristic fallback
func (l *auditLogger) LogScoringFallback(ctx context.Context, runID, kind, reason string) error {
	event := NewEvent(EventScoringFallback).
		WithRunID(runID).
		WithResult(ResultDegraded).
		WithMetadata("kind", kind).
		WithMetadata("reason", reason).
		WithDescription(fmt.Sprintf("Scorer %s fell back to heuristic: %s", kind, reason))

	return l.Log(ctx, event)
}

// LogRecommendationDropped logs synthesis discarding an ungrounded recommendation
func (l *auditLogger) LogRecommendationDropped(ctx context.Context, runID, action string) error {
	event := NewEvent(EventRecommendationDropped).
		WithRunID(runID).
		WithAction(action).
		WithResult(ResultDegraded).
		WithDescription(fmt.Sprintf("Recommendation %q dropped: no supporting evidence", action))

	return l.Log(ctx, event)
}

// LogDecisionRecorded logs one decision log entry being written
func (l *auditLogger) LogDecisionRecorded(ctx context.Context, runID, decisionID, action string) error {
	event := NewEvent(EventDecisionRecorded).
		WithRunID(runID).
		WithAction(action).
		WithResult(ResultSuccess).
		WithMetadata("decision_id", decisionID).
		WithDescription(fmt.Sprintf("Decision %s recorded for action %s", decisionID, action))

	return l.Log(ctx, event)
}

// Sync flushes buffered log entries
func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}

	if err := l.auditLogger.Sync(); err != nil {
		return err
	}

	return l.appLogger.Sync()
}

// Close closes the audit logger
func (l *auditLogger) Close() error {
	close(l.stopCh)
	l.flushTicker.Stop()

	if err := l.Sync(); err != nil {
		return err
	}

	return nil
}
