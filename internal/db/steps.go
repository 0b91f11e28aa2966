package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/agency-automator/internal/store"
)

const stepColumns = `id, run_id, step_id, agent_slug, action, status, input_data, output_data,
	cost_usd, duration_ms, retry_count, approval_id, error_message, started_at, completed_at`

// CreateStep inserts a workflow step.
func (db *DB) CreateStep(ctx context.Context, step *store.WorkflowStep) error {
	if step.ID == uuid.Nil {
		step.ID = uuid.New()
	}
	inputJSON, err := marshalJSON(step.InputData)
	if err != nil {
		return err
	}
	outputJSON, err := marshalJSON(step.OutputData)
	if err != nil {
		return err
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO workflow_steps (id, run_id, step_id, agent_slug, action, status, input_data, output_data,
		 cost_usd, duration_ms, retry_count, approval_id, error_message, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		step.ID, step.RunID, step.StepID, step.AgentSlug, step.Action, step.Status,
		inputJSON, outputJSON, step.CostUSD, step.DurationMS, step.RetryCount,
		step.ApprovalID, step.ErrorMessage, step.StartedAt, step.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create step %s: %w", step.StepID, err)
	}
	return nil
}

// UpdateStep rewrites a step's mutable fields.
func (db *DB) UpdateStep(ctx context.Context, step *store.WorkflowStep) error {
	inputJSON, err := marshalJSON(step.InputData)
	if err != nil {
		return err
	}
	outputJSON, err := marshalJSON(step.OutputData)
	if err != nil {
		return err
	}
	result, err := db.pool.Exec(ctx,
		`UPDATE workflow_steps
		 SET status = $1, input_data = $2, output_data = $3, cost_usd = $4, duration_ms = $5,
		     retry_count = $6, approval_id = $7, error_message = $8, started_at = $9, completed_at = $10
		 WHERE id = $11`,
		step.Status, inputJSON, outputJSON, step.CostUSD, step.DurationMS,
		step.RetryCount, step.ApprovalID, step.ErrorMessage, step.StartedAt, step.CompletedAt, step.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update step %s: %w", step.StepID, err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetStep retrieves a step by run and step id.
func (db *DB) GetStep(ctx context.Context, runID uuid.UUID, stepID string) (*store.WorkflowStep, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+stepColumns+` FROM workflow_steps WHERE run_id = $1 AND step_id = $2`,
		runID, stepID)
	return scanStep(row)
}

// GetStepByApproval retrieves the step linked to an approval request.
func (db *DB) GetStepByApproval(ctx context.Context, approvalID uuid.UUID) (*store.WorkflowStep, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+stepColumns+` FROM workflow_steps WHERE approval_id = $1`, approvalID)
	return scanStep(row)
}

// ListSteps retrieves all steps for a run in creation order.
func (db *DB) ListSteps(ctx context.Context, runID uuid.UUID) ([]*store.WorkflowStep, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+stepColumns+` FROM workflow_steps WHERE run_id = $1`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	var steps []*store.WorkflowStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func scanStep(row pgx.Row) (*store.WorkflowStep, error) {
	var step store.WorkflowStep
	var inputJSON, outputJSON []byte
	err := row.Scan(&step.ID, &step.RunID, &step.StepID, &step.AgentSlug, &step.Action, &step.Status,
		&inputJSON, &outputJSON, &step.CostUSD, &step.DurationMS, &step.RetryCount,
		&step.ApprovalID, &step.ErrorMessage, &step.StartedAt, &step.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan step: %w", err)
	}
	if step.InputData, err = unmarshalJSON(inputJSON); err != nil {
		return nil, err
	}
	if step.OutputData, err = unmarshalJSON(outputJSON); err != nil {
		return nil, err
	}
	return &step, nil
}
