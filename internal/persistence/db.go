// Package persistence stores simulation runs and their monthly snapshots in
// SQLite.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/token-sim/internal/engine"
)

// ErrNotFound is returned when a run id does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps a SQLite connection for run storage.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		variant TEXT NOT NULL,
		scenario TEXT NOT NULL,
		seed INTEGER NOT NULL,
		years INTEGER NOT NULL,
		params_json TEXT NOT NULL,
		metrics_json TEXT NOT NULL,
		created_unix INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		month_index INTEGER NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		price REAL NOT NULL,
		circulating REAL NOT NULL,
		nodes REAL NOT NULL,
		staked REAL NOT NULL,
		burned REAL NOT NULL,
		emitted REAL NOT NULL,
		treasury REAL NOT NULL,
		state_json TEXT NOT NULL,
		PRIMARY KEY (run_id, month_index)
	);

	CREATE TABLE IF NOT EXISTS run_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_unix);
	CREATE INDEX IF NOT EXISTS idx_runs_variant ON runs(variant);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Run is one stored variant run.
type Run struct {
	ID          string          `db:"id" json:"id"`
	Variant     string          `db:"variant" json:"variant"`
	Scenario    string          `db:"scenario" json:"scenario"`
	Seed        int64           `db:"seed" json:"seed"`
	Years       int             `db:"years" json:"years"`
	ParamsJSON  string          `db:"params_json" json:"-"`
	MetricsJSON string          `db:"metrics_json" json:"-"`
	CreatedUnix int64           `db:"created_unix" json:"-"`
	Metrics     *engine.Metrics `db:"-" json:"metrics,omitempty"`
	CreatedAt   time.Time       `db:"-" json:"created_at"`
}

func (r *Run) decode() error {
	r.CreatedAt = time.Unix(0, r.CreatedUnix).UTC()
	if r.MetricsJSON == "" {
		return nil
	}
	var m engine.Metrics
	if err := json.Unmarshal([]byte(r.MetricsJSON), &m); err != nil {
		return fmt.Errorf("decode metrics of run %s: %w", r.ID, err)
	}
	r.Metrics = &m
	return nil
}

// Snapshot is one stored month of a run.
type Snapshot struct {
	RunID       string          `db:"run_id" json:"-"`
	MonthIndex  int             `db:"month_index" json:"month_index"`
	Year        int             `db:"year" json:"year"`
	Month       int             `db:"month" json:"month"`
	Price       float64         `db:"price" json:"price"`
	Circulating float64         `db:"circulating" json:"circulating"`
	Nodes       float64         `db:"nodes" json:"nodes"`
	Staked      float64         `db:"staked" json:"staked"`
	Burned      float64         `db:"burned" json:"burned"`
	Emitted     float64         `db:"emitted" json:"emitted"`
	Treasury    float64         `db:"treasury" json:"treasury"`
	StateJSON   string          `db:"state_json" json:"-"`
	State       json.RawMessage `db:"-" json:"state,omitempty"`
}

// RunInfo identifies a run being saved.
type RunInfo struct {
	ID       uuid.UUID
	Scenario string
	Seed     int64
	Years    int
	Params   any // the variant's parameter set, stored as JSON
}

// SaveRun writes a run and all of its snapshots in one transaction.
func (db *DB) SaveRun(ctx context.Context, info RunInfo, out engine.Outcome) error {
	if len(out.Snapshots) != len(out.Summaries) {
		return fmt.Errorf("save run %s: %d snapshots but %d summaries", info.ID, len(out.Snapshots), len(out.Summaries))
	}
	paramsJSON, err := json.Marshal(info.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	metricsJSON, err := json.Marshal(out.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO runs
		(id, variant, scenario, seed, years, params_json, metrics_json, created_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		info.ID.String(), string(out.Variant), info.Scenario, info.Seed, info.Years,
		string(paramsJSON), string(metricsJSON), time.Now().UnixNano(),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `INSERT INTO snapshots
		(run_id, month_index, year, month, price, circulating, nodes, staked,
		 burned, emitted, treasury, state_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, sum := range out.Summaries {
		stateJSON, err := json.Marshal(out.Snapshots[i])
		if err != nil {
			return fmt.Errorf("encode snapshot %d: %w", i+1, err)
		}
		if _, err := stmt.ExecContext(ctx,
			info.ID.String(), sum.Time.Abs, sum.Time.Year, sum.Time.Month,
			sum.Price, sum.Circulating, sum.Nodes, sum.Staked,
			sum.Burned, sum.Emitted, sum.Treasury, string(stateJSON),
		); err != nil {
			return fmt.Errorf("insert snapshot %d: %w", i+1, err)
		}
	}

	return tx.Commit()
}

// GetRun loads one run.
func (db *DB) GetRun(ctx context.Context, id string) (Run, error) {
	var r Run
	err := db.conn.GetContext(ctx, &r, "SELECT * FROM runs WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, err
	}
	return r, r.decode()
}

// ListRuns returns the most recent runs first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []Run
	if err := db.conn.SelectContext(ctx, &runs,
		"SELECT * FROM runs ORDER BY created_unix DESC, id LIMIT ?", limit); err != nil {
		return nil, err
	}
	for i := range runs {
		if err := runs[i].decode(); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// Snapshots returns a run's months in order. withState includes the full
// stored state of each month.
func (db *DB) Snapshots(ctx context.Context, runID string, withState bool) ([]Snapshot, error) {
	if _, err := db.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	var rows []Snapshot
	if err := db.conn.SelectContext(ctx, &rows,
		"SELECT * FROM snapshots WHERE run_id = ? ORDER BY month_index", runID); err != nil {
		return nil, err
	}
	for i := range rows {
		if withState {
			rows[i].State = json.RawMessage(rows[i].StateJSON)
		}
	}
	return rows, nil
}

// CountRuns returns how many runs are stored.
func (db *DB) CountRuns(ctx context.Context) (int, error) {
	var n int
	err := db.conn.GetContext(ctx, &n, "SELECT COUNT(*) FROM runs")
	return n, err
}

// SaveMeta stores a key/value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO run_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a value by key.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM run_meta WHERE key = ?", key)
	return value, err
}
