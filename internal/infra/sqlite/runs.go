package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tutu-network/riemann/internal/domain"
)

// ─── Run Repository ─────────────────────────────────────────────────────────

// BeginRun inserts a new run record. It implements domain.RunRecorder.
func (d *DB) BeginRun(run domain.Run) error {
	_, err := d.db.Exec(
		`INSERT INTO runs (id, range_start, range_end, step, status, tasks, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Start, run.End, run.Step, string(run.Status), run.Tasks, run.StartedAt.UnixMilli(),
	)
	return err
}

// RecordOutcomes appends one round of task outcomes in a single transaction.
func (d *DB) RecordOutcomes(runID string, outcomes []domain.TaskOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO task_outcomes (run_id, seq, round, peer, task_start, task_end, step, result, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, o := range outcomes {
		if _, err := stmt.Exec(runID, o.Seq, o.Round, o.Peer,
			o.Task.Start, o.Task.End, o.Task.Step, o.Result, nullStr(o.Error)); err != nil {
			return fmt.Errorf("insert outcome %d: %w", o.Seq, err)
		}
	}
	return tx.Commit()
}

// FinishRun stores the final status and totals of a run.
func (d *DB) FinishRun(run domain.Run) error {
	result, err := d.db.Exec(
		`UPDATE runs SET status = ?, total = ?, tasks = ?, dispatched = ?, failed = ?,
			rounds = ?, completed_at = ?, error = ?
		 WHERE id = ?`,
		string(run.Status), run.Total, run.Tasks, run.Dispatched, run.Failed,
		run.Rounds, nullableUnix(run.CompletedAt), nullStr(run.Error), run.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

// GetRun retrieves a run by ID.
func (d *DB) GetRun(id string) (*domain.Run, error) {
	row := d.db.QueryRow(
		`SELECT id, range_start, range_end, step, status, total, tasks, dispatched, failed,
			rounds, started_at, completed_at, error
		 FROM runs WHERE id = ?`, id,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRunNotFound
	}
	return run, err
}

// ListRuns returns the most recent runs, newest first.
func (d *DB) ListRuns(limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.Query(
		`SELECT id, range_start, range_end, step, status, total, tasks, dispatched, failed,
			rounds, started_at, completed_at, error
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// Outcomes returns every recorded outcome of a run in task order.
func (d *DB) Outcomes(runID string) ([]domain.TaskOutcome, error) {
	rows, err := d.db.Query(
		`SELECT seq, round, peer, task_start, task_end, step, result, error
		 FROM task_outcomes WHERE run_id = ? ORDER BY seq`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TaskOutcome
	for rows.Next() {
		var o domain.TaskOutcome
		var errText sql.NullString
		if err := rows.Scan(&o.Seq, &o.Round, &o.Peer,
			&o.Task.Start, &o.Task.End, &o.Task.Step, &o.Result, &errText); err != nil {
			return nil, err
		}
		o.Error = errText.String
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanRun(s scanner) (*domain.Run, error) {
	var r domain.Run
	var status string
	var startedAt int64
	var completedAt sql.NullInt64
	var errText sql.NullString

	err := s.Scan(&r.ID, &r.Start, &r.End, &r.Step, &status, &r.Total, &r.Tasks,
		&r.Dispatched, &r.Failed, &r.Rounds, &startedAt, &completedAt, &errText)
	if err != nil {
		return nil, err
	}

	r.Status = domain.RunStatus(status)
	r.StartedAt = time.UnixMilli(startedAt)
	if completedAt.Valid {
		r.CompletedAt = time.UnixMilli(completedAt.Int64)
	}
	r.Error = errText.String
	return &r, nil
}
