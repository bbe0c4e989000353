// SPDX-License-Identifier: AGPL-3.0-or-later

package coredb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flowd-org/slicerwrap/internal/observability/tracing"
)

// ErrRunNotFound is returned by Runs.Get and Runs.Finish for an unknown id.
var ErrRunNotFound = errors.New("coredb: run not found")

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run is the persisted record of one module invocation.
type Run struct {
	ID         string            `json:"id"`
	Module     string            `json:"module"`
	Status     string            `json:"status"`
	Cmdline    string            `json:"cmdline"`
	ExitCode   *int              `json:"exit_code,omitempty"`
	Error      string            `json:"error,omitempty"`
	Outputs    map[string]string `json:"outputs,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

// Runs stores run records.
type Runs struct {
	db    *sql.DB
	nowFn func() time.Time
}

func NewRuns(db *DB) *Runs {
	if db == nil {
		return nil
	}
	return &Runs{db: db.sql, nowFn: func() time.Time { return time.Now().UTC() }}
}

// Start inserts a running record.
func (r *Runs) Start(ctx context.Context, id, module, cmdline string) (err error) {
	if r == nil {
		return nil
	}
	if id == "" {
		return fmt.Errorf("record run: id required")
	}
	ctx, span := tracing.Start(ctx, "coredb.runs.start", tracing.StoreOp("insert"), tracing.RunID(id), tracing.Module(module))
	defer tracing.End(span, &err)

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO core_runs (id, module, status, cmdline, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, module, RunStatusRunning, cmdline, r.nowFn().UnixMilli())
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Finish marks a run completed or failed. A non-empty errMsg marks it failed.
func (r *Runs) Finish(ctx context.Context, id string, exitCode int, errMsg string, outputs map[string]string) (err error) {
	if r == nil {
		return nil
	}
	ctx, span := tracing.Start(ctx, "coredb.runs.finish", tracing.StoreOp("update"), tracing.RunID(id))
	defer tracing.End(span, &err)

	status := RunStatusCompleted
	if errMsg != "" || exitCode != 0 {
		status = RunStatusFailed
	}
	var payload []byte
	if len(outputs) > 0 {
		if payload, err = json.Marshal(outputs); err != nil {
			return fmt.Errorf("encode outputs: %w", err)
		}
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE core_runs SET status = ?, exit_code = ?, error = ?, outputs = ?, finished_at = ? WHERE id = ?`,
		status, exitCode, nullString(errMsg), payload, r.nowFn().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// Get loads one run.
func (r *Runs) Get(ctx context.Context, id string) (Run, error) {
	if r == nil {
		return Run{}, ErrRunNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT id, module, status, cmdline, exit_code, error, outputs, started_at, finished_at FROM core_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return run, err
}

// List returns the most recent runs first. limit <= 0 returns all.
func (r *Runs) List(ctx context.Context, limit int) ([]Run, error) {
	if r == nil {
		return nil, nil
	}
	query := `SELECT id, module, status, cmdline, exit_code, error, outputs, started_at, finished_at FROM core_runs ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run      Run
		exitCode sql.NullInt64
		errMsg   sql.NullString
		outputs  []byte
		started  int64
		finished sql.NullInt64
	)
	if err := row.Scan(&run.ID, &run.Module, &run.Status, &run.Cmdline, &exitCode, &errMsg, &outputs, &started, &finished); err != nil {
		return Run{}, err
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		run.ExitCode = &code
	}
	run.Error = errMsg.String
	if len(outputs) > 0 {
		if err := json.Unmarshal(outputs, &run.Outputs); err != nil {
			return Run{}, fmt.Errorf("decode outputs for run %s: %w", run.ID, err)
		}
	}
	run.StartedAt = time.UnixMilli(started).UTC()
	if finished.Valid {
		ts := time.UnixMilli(finished.Int64).UTC()
		run.FinishedAt = &ts
	}
	return run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
