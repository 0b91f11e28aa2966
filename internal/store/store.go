package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a record does not exist. Callers that treat
// absence as a default (the action-mode lookup) check for it explicitly.
var ErrNotFound = errors.New("record not found")

// Store is the persistence boundary for the workflow engine, the approval
// gate, and the follow-up scheduler. Both the PostgreSQL store and the
// in-memory store implement it.
type Store interface {
	// Workflow runs
	CreateRun(ctx context.Context, run *WorkflowRun) error
	UpdateRun(ctx context.Context, run *WorkflowRun) error
	GetRun(ctx context.Context, id uuid.UUID) (*WorkflowRun, error)
	ListRuns(ctx context.Context, limit int) ([]*WorkflowRun, error)

	// Workflow steps
	CreateStep(ctx context.Context, step *WorkflowStep) error
	UpdateStep(ctx context.Context, step *WorkflowStep) error
	GetStep(ctx context.Context, runID uuid.UUID, stepID string) (*WorkflowStep, error)
	GetStepByApproval(ctx context.Context, approvalID uuid.UUID) (*WorkflowStep, error)
	ListSteps(ctx context.Context, runID uuid.UUID) ([]*WorkflowStep, error)

	// Approval requests
	CreateApproval(ctx context.Context, req *ApprovalRequest) error
	UpdateApproval(ctx context.Context, req *ApprovalRequest) error
	GetApproval(ctx context.Context, id uuid.UUID) (*ApprovalRequest, error)
	ListApprovals(ctx context.Context, status string, limit int) ([]*ApprovalRequest, error)

	// Action modes
	GetActionMode(ctx context.Context, agentSlug, actionName string) (*ActionModeConfig, error)
	SetActionMode(ctx context.Context, cfg *ActionModeConfig) error

	// Leads
	CreateLead(ctx context.Context, lead *Lead) error
	UpdateLead(ctx context.Context, lead *Lead) error
	GetLead(ctx context.Context, id uuid.UUID) (*Lead, error)
	GetLeadByBusinessName(ctx context.Context, name string) (*Lead, error)
	ListLeadsByStage(ctx context.Context, stages ...string) ([]*Lead, error)
}
