package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/agency-automator/internal/store"
)

const approvalColumns = `id, agent_slug, action_name, payload, context, status, decided_by,
	decided_at, rejection_reason, modified_payload, created_at, expires_at`

// CreateApproval inserts an approval request.
func (db *DB) CreateApproval(ctx context.Context, req *store.ApprovalRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	payloadJSON, err := marshalJSON(req.Payload)
	if err != nil {
		return err
	}
	contextJSON, err := marshalJSON(req.Context)
	if err != nil {
		return err
	}
	modifiedJSON, err := marshalJSON(req.ModifiedPayload)
	if err != nil {
		return err
	}
	err = db.pool.QueryRow(ctx,
		`INSERT INTO approval_requests (id, agent_slug, action_name, payload, context, status, decided_by,
		 decided_at, rejection_reason, modified_payload, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at`,
		req.ID, req.AgentSlug, req.ActionName, payloadJSON, contextJSON, req.Status,
		req.DecidedBy, req.DecidedAt, req.RejectionReason, modifiedJSON, req.ExpiresAt,
	).Scan(&req.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create approval request: %w", err)
	}
	return nil
}

// UpdateApproval rewrites an approval request's mutable fields.
func (db *DB) UpdateApproval(ctx context.Context, req *store.ApprovalRequest) error {
	modifiedJSON, err := marshalJSON(req.ModifiedPayload)
	if err != nil {
		return err
	}
	result, err := db.pool.Exec(ctx,
		`UPDATE approval_requests
		 SET status = $1, decided_by = $2, decided_at = $3, rejection_reason = $4, modified_payload = $5
		 WHERE id = $6`,
		req.Status, req.DecidedBy, req.DecidedAt, req.RejectionReason, modifiedJSON, req.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update approval request: %w", err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetApproval retrieves an approval request by ID.
func (db *DB) GetApproval(ctx context.Context, id uuid.UUID) (*store.ApprovalRequest, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+approvalColumns+` FROM approval_requests WHERE id = $1`, id)
	return scanApproval(row)
}

// ListApprovals retrieves approval requests, newest first, optionally
// filtered by status.
func (db *DB) ListApprovals(ctx context.Context, status string, limit int) ([]*store.ApprovalRequest, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + approvalColumns + ` FROM approval_requests`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, status, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list approval requests: %w", err)
	}
	defer rows.Close()

	var reqs []*store.ApprovalRequest
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

func scanApproval(row pgx.Row) (*store.ApprovalRequest, error) {
	var req store.ApprovalRequest
	var payloadJSON, contextJSON, modifiedJSON []byte
	err := row.Scan(&req.ID, &req.AgentSlug, &req.ActionName, &payloadJSON, &contextJSON, &req.Status,
		&req.DecidedBy, &req.DecidedAt, &req.RejectionReason, &modifiedJSON, &req.CreatedAt, &req.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan approval request: %w", err)
	}
	if req.Payload, err = unmarshalJSON(payloadJSON); err != nil {
		return nil, err
	}
	if req.Context, err = unmarshalJSON(contextJSON); err != nil {
		return nil, err
	}
	if req.ModifiedPayload, err = unmarshalJSON(modifiedJSON); err != nil {
		return nil, err
	}
	return &req, nil
}

// GetActionMode retrieves the configured HITL mode for an (agent, action)
// pair. Absence is store.ErrNotFound, which callers treat as the default
// approve mode.
func (db *DB) GetActionMode(ctx context.Context, agentSlug, actionName string) (*store.ActionModeConfig, error) {
	var cfg store.ActionModeConfig
	err := db.pool.QueryRow(ctx,
		`SELECT agent_slug, action_name, mode, updated_at
		 FROM action_modes WHERE agent_slug = $1 AND action_name = $2`,
		agentSlug, actionName,
	).Scan(&cfg.AgentSlug, &cfg.ActionName, &cfg.Mode, &cfg.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get action mode: %w", err)
	}
	return &cfg, nil
}

// SetActionMode upserts the HITL mode for an (agent, action) pair.
func (db *DB) SetActionMode(ctx context.Context, cfg *store.ActionModeConfig) error {
	err := db.pool.QueryRow(ctx,
		`INSERT INTO action_modes (agent_slug, action_name, mode, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (agent_slug, action_name) DO UPDATE SET mode = $3, updated_at = NOW()
		 RETURNING updated_at`,
		cfg.AgentSlug, cfg.ActionName, cfg.Mode,
	).Scan(&cfg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to set action mode: %w", err)
	}
	return nil
}
