package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

// Schema versions are tracked in the schema_versions table.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS observations (
    id                       INTEGER PRIMARY KEY AUTOINCREMENT,
    line_id                  TEXT NOT NULL,
    uptime_pct               REAL NOT NULL DEFAULT 0.0,
    worker_availability_pct  REAL NOT NULL DEFAULT 0.0,
    defect_rate_pct          REAL NOT NULL DEFAULT 0.0,
    energy_kwh               REAL NOT NULL DEFAULT 0.0,
    inventory_pct            REAL NOT NULL DEFAULT 0.0,
    maintenance_alert        INTEGER NOT NULL DEFAULT 0,
    kpi_impact_pct           REAL NOT NULL DEFAULT 0.0,
    recorded_at              DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_observations_line        ON observations(line_id);
CREATE INDEX IF NOT EXISTS idx_observations_recorded_at ON observations(recorded_at DESC);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS decisions (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id       TEXT NOT NULL,
    decision_id  TEXT NOT NULL,
    scenario     TEXT NOT NULL DEFAULT '',
    action       TEXT NOT NULL,
    priority     INTEGER NOT NULL DEFAULT 0,
    payload      TEXT NOT NULL DEFAULT '{}',
    recorded_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_run         ON decisions(run_id);
CREATE INDEX IF NOT EXISTS idx_decisions_recorded_at ON decisions(recorded_at DESC);
`,
	},
}

// sqliteStore is the SQLite-backed implementation of Store.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path
// and runs all pending schema migrations. Pass ":memory:" for an
// in-memory store.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// WAL mode for better concurrency.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *sqliteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}

		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Observations ───

func (s *sqliteStore) LoadTrainingSet(ctx context.Context, limit int) ([]*TrainingRow, error) {
	query := `SELECT id, line_id, uptime_pct, worker_availability_pct, defect_rate_pct,
        energy_kwh, inventory_pct, maintenance_alert, kpi_impact_pct, recorded_at
        FROM observations ORDER BY recorded_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*TrainingRow
	for rows.Next() {
		row := &TrainingRow{}
		var alert int
		var ts string
		if err := rows.Scan(&row.ID, &row.LineID, &row.UptimePct, &row.WorkerAvailabilityPct,
			&row.DefectRatePct, &row.EnergyKWh, &row.InventoryPct, &alert, &row.KPIImpactPct, &ts); err != nil {
			return nil, err
		}
		row.MaintenanceAlert = alert != 0
		row.RecordedAt, _ = parseTime(ts)
		result = append(result, row)
	}
	return result, rows.Err()
}

func (s *sqliteStore) AppendTrainingRow(ctx context.Context, row *TrainingRow) error {
	alert := 0
	if row.MaintenanceAlert {
		alert = 1
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO observations(line_id, uptime_pct, worker_availability_pct, defect_rate_pct,
            energy_kwh, inventory_pct, maintenance_alert, kpi_impact_pct, recorded_at)
        VALUES(?,?,?,?,?,?,?,?,?)
    `,
		row.LineID, row.UptimePct, row.WorkerAvailabilityPct, row.DefectRatePct,
		row.EnergyKWh, row.InventoryPct, alert, row.KPIImpactPct, row.RecordedAt.UTC(),
	)
	return err
}

// ─── Decisions ───

func (s *sqliteStore) AppendDecision(ctx context.Context, rec *DecisionRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO decisions(run_id, decision_id, scenario, action, priority, payload, recorded_at)
        VALUES(?,?,?,?,?,?,?)
    `,
		rec.RunID, rec.DecisionID, rec.Scenario, rec.Action, rec.Priority, rec.Payload, rec.RecordedAt.UTC(),
	)
	return err
}

func (s *sqliteStore) QueryDecisions(ctx context.Context, runID string) ([]*DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, run_id, decision_id, scenario, action, priority, payload, recorded_at
        FROM decisions WHERE run_id = ? ORDER BY id ASC
    `, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*DecisionRecord
	for rows.Next() {
		rec := &DecisionRecord{}
		var ts string
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.DecisionID, &rec.Scenario,
			&rec.Action, &rec.Priority, &rec.Payload, &ts); err != nil {
			return nil, err
		}
		rec.RecordedAt, _ = parseTime(ts)
		result = append(result, rec)
	}
	return result, rows.Err()
}

// parseTime handles the timestamp formats SQLite hands back.
func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format %q", s)
}
