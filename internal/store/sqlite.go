package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure Go driver
)

// sortableTime keeps stored timestamps lexically ordered.
const sortableTime = "2006-01-02T15:04:05.000000000Z"

// SQLiteLedger stores run records in a SQLite database.
type SQLiteLedger struct {
	db *sql.DB
}

var _ Ledger = (*SQLiteLedger)(nil)

// OpenSQLite opens (creating if needed) the ledger at path.
func OpenSQLite(path string) (*SQLiteLedger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ledger dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}
	l := &SQLiteLedger{db: db}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return l, nil
}

func (l *SQLiteLedger) migrate() error {
	_, err := l.db.Exec(`
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		dir TEXT NOT NULL,
		source TEXT NOT NULL,
		mode TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		result TEXT NOT NULL,
		printed INTEGER NOT NULL DEFAULT 0,
		record TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_result ON runs(result);
	`)
	return err
}

func (l *SQLiteLedger) PutRun(ctx context.Context, run *Run) error {
	record, err := json.Marshal(run)
	if err != nil {
		return err
	}
	printed := 0
	if run.Printed {
		printed = 1
	}
	var finished sql.NullString
	if !run.FinishedAt.IsZero() {
		finished = sql.NullString{String: run.FinishedAt.UTC().Format(sortableTime), Valid: true}
	}
	_, err = l.db.ExecContext(ctx, `
	INSERT INTO runs (id, dir, source, mode, started_at, finished_at, result, printed, record)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		dir = excluded.dir,
		finished_at = excluded.finished_at,
		result = excluded.result,
		printed = excluded.printed,
		record = excluded.record
	`, run.ID, run.Dir, run.Source, run.Mode, run.StartedAt.UTC().Format(sortableTime),
		finished, run.Result, printed, string(record))
	return err
}

func (l *SQLiteLedger) GetRun(ctx context.Context, id string) (*Run, error) {
	var record string
	err := l.db.QueryRowContext(ctx, `SELECT record FROM runs WHERE id = ?`, id).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeRun(record)
}

func (l *SQLiteLedger) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `SELECT record FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		run, err := decodeRun(record)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Stats counts runs by result since the given time.
func (l *SQLiteLedger) Stats(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT result, COUNT(*) FROM runs WHERE started_at >= ? GROUP BY result`,
		since.UTC().Format(sortableTime))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int)
	for rows.Next() {
		var result string
		var n int
		if err := rows.Scan(&result, &n); err != nil {
			return nil, err
		}
		out[result] = n
	}
	return out, rows.Err()
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

func decodeRun(record string) (*Run, error) {
	var run Run
	if err := json.Unmarshal([]byte(record), &run); err != nil {
		return nil, fmt.Errorf("corrupt run record: %w", err)
	}
	return &run, nil
}
