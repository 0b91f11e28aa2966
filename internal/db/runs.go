package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/agency-automator/internal/store"
)

// CreateRun inserts a workflow run.
func (db *DB) CreateRun(ctx context.Context, run *store.WorkflowRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	contextJSON, err := marshalJSON(run.Context)
	if err != nil {
		return err
	}
	err = db.pool.QueryRow(ctx,
		`INSERT INTO workflow_runs (id, workflow_name, status, current_step_id, trigger, context, error_message, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		run.ID, run.WorkflowName, run.Status, run.CurrentStepID, run.Trigger,
		contextJSON, run.ErrorMessage, run.StartedAt, run.CompletedAt,
	).Scan(&run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// UpdateRun rewrites a run's mutable fields.
func (db *DB) UpdateRun(ctx context.Context, run *store.WorkflowRun) error {
	contextJSON, err := marshalJSON(run.Context)
	if err != nil {
		return err
	}
	result, err := db.pool.Exec(ctx,
		`UPDATE workflow_runs
		 SET status = $1, current_step_id = $2, context = $3, error_message = $4, started_at = $5, completed_at = $6
		 WHERE id = $7`,
		run.Status, run.CurrentStepID, contextJSON, run.ErrorMessage,
		run.StartedAt, run.CompletedAt, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetRun retrieves a workflow run by ID.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (*store.WorkflowRun, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT id, workflow_name, status, current_step_id, trigger, context, error_message, started_at, completed_at, created_at
		 FROM workflow_runs WHERE id = $1`, id)
	return scanRun(row)
}

// ListRuns retrieves recent workflow runs, newest first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]*store.WorkflowRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, workflow_name, status, current_step_id, trigger, context, error_message, started_at, completed_at, created_at
		 FROM workflow_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*store.WorkflowRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(row pgx.Row) (*store.WorkflowRun, error) {
	var run store.WorkflowRun
	var contextJSON []byte
	err := row.Scan(&run.ID, &run.WorkflowName, &run.Status, &run.CurrentStepID, &run.Trigger,
		&contextJSON, &run.ErrorMessage, &run.StartedAt, &run.CompletedAt, &run.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	if run.Context, err = unmarshalJSON(contextJSON); err != nil {
		return nil, err
	}
	return &run, nil
}
