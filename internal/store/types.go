// Package store defines the persistent data model for workflow automation
// and the Store interface the engine, approval gate, and follow-up
// scheduler operate against.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Run status values. A run is terminal once it reaches completed, failed,
// or cancelled; paused_for_approval is the only non-terminal state that
// does not progress without an external trigger.
const (
	RunStatusPending           = "pending"
	RunStatusRunning           = "running"
	RunStatusPausedForApproval = "paused_for_approval"
	RunStatusCompleted         = "completed"
	RunStatusFailed            = "failed"
	RunStatusCancelled         = "cancelled"
)

// Step status values.
const (
	StepStatusPending          = "pending"
	StepStatusRunning          = "running"
	StepStatusCompleted        = "completed"
	StepStatusFailed           = "failed"
	StepStatusSkipped          = "skipped"
	StepStatusAwaitingApproval = "awaiting_approval"
)

// Approval request status values. Transitions only go from pending to one
// of the terminal values, exactly once.
const (
	ApprovalStatusPending  = "pending"
	ApprovalStatusApproved = "approved"
	ApprovalStatusRejected = "rejected"
	ApprovalStatusExpired  = "expired"
)

// Lead pipeline stages.
const (
	LeadStageProspect        = "prospect"
	LeadStageResearched      = "researched"
	LeadStageQualified       = "qualified"
	LeadStageOutreachDrafted = "outreach_drafted"
	LeadStageOutreachSent    = "outreach_sent"
	LeadStageResponded       = "responded"
	LeadStageWon             = "won"
	LeadStageLost            = "lost"
)

// WorkflowRun is one execution of a named pipeline definition. Runs are
// never deleted; they serve as the audit trail for everything the agents
// did on a given trigger.
type WorkflowRun struct {
	ID            uuid.UUID      `json:"id"`
	WorkflowName  string         `json:"workflow_name"`
	Status        string         `json:"status"`
	CurrentStepID string         `json:"current_step_id,omitempty"`
	Trigger       string         `json:"trigger"`
	Context       map[string]any `json:"context,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// WorkflowStep is one step instance belonging to a run. One row per
// defined step is created up front when the run starts.
type WorkflowStep struct {
	ID           uuid.UUID      `json:"id"`
	RunID        uuid.UUID      `json:"run_id"`
	StepID       string         `json:"step_id"`
	AgentSlug    string         `json:"agent_slug,omitempty"`
	Action       string         `json:"action"`
	Status       string         `json:"status"`
	InputData    map[string]any `json:"input_data,omitempty"`
	OutputData   map[string]any `json:"output_data,omitempty"`
	CostUSD      float64        `json:"cost_usd"`
	DurationMS   int64          `json:"duration_ms"`
	RetryCount   int            `json:"retry_count"`
	ApprovalID   *uuid.UUID     `json:"approval_id,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// ApprovalRequest is a pending or decided human decision about an agent
// action. ExpiresAt is informational; nothing in this system sweeps
// expired requests.
type ApprovalRequest struct {
	ID              uuid.UUID      `json:"id"`
	AgentSlug       string         `json:"agent_slug"`
	ActionName      string         `json:"action_name"`
	Payload         map[string]any `json:"payload,omitempty"`
	Context         map[string]any `json:"context,omitempty"`
	Status          string         `json:"status"`
	DecidedBy       string         `json:"decided_by,omitempty"`
	DecidedAt       *time.Time     `json:"decided_at,omitempty"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
	ModifiedPayload map[string]any `json:"modified_payload,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	ExpiresAt       time.Time      `json:"expires_at"`
}

// ActionModeConfig maps an (agent, action) pair to a HITL mode string.
// Absence of a row means the action requires approval.
type ActionModeConfig struct {
	AgentSlug  string    `json:"agent_slug"`
	ActionName string    `json:"action_name"`
	Mode       string    `json:"mode"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Lead is an external business contact moving through the outreach
// pipeline. FollowupCount and LastFollowupAt are owned by the follow-up
// scheduler; everything else is written by workflow steps.
type Lead struct {
	ID              uuid.UUID      `json:"id"`
	BusinessName    string         `json:"business_name"`
	ContactName     string         `json:"contact_name,omitempty"`
	Email           string         `json:"email,omitempty"`
	Phone           string         `json:"phone,omitempty"`
	Industry        string         `json:"industry,omitempty"`
	Location        string         `json:"location,omitempty"`
	Country         string         `json:"country,omitempty"`
	Language        string         `json:"language,omitempty"`
	Stage           string         `json:"stage"`
	Score           int            `json:"score"`
	Source          string         `json:"source,omitempty"`
	GoogleRating    *float64       `json:"google_rating,omitempty"`
	ReviewCount     *int           `json:"review_count,omitempty"`
	HasWebsite      *bool          `json:"has_website,omitempty"`
	HasSocial       *bool          `json:"has_social,omitempty"`
	OutreachDraft   string         `json:"outreach_draft,omitempty"`
	OutreachChannel string         `json:"outreach_channel,omitempty"`
	RecommendedTier string         `json:"recommended_tier,omitempty"`
	Research        map[string]any `json:"research,omitempty"`
	FollowupCount   int            `json:"followup_count"`
	LastFollowupAt  *time.Time     `json:"last_followup_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// RunIsTerminal reports whether a run status is terminal.
func RunIsTerminal(status string) bool {
	switch status {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// StepIsTerminal reports whether a step status is terminal.
func StepIsTerminal(status string) bool {
	switch status {
	case StepStatusCompleted, StepStatusFailed, StepStatusSkipped:
		return true
	}
	return false
}
