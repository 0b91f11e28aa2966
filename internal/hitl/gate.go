package hitl

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/jonathan/agency-automator/internal/bus"
	"github.com/jonathan/agency-automator/internal/store"
)

// ApprovalTTL is how long an approval request is considered fresh. The
// expiry is recorded on the request but nothing sweeps expired requests;
// enforcement, if wanted, belongs to an external process.
const ApprovalTTL = 24 * time.Hour

// payloadSummaryLimit caps the payload preview carried on the
// approval.requested event.
const payloadSummaryLimit = 200

// Reasons returned in Decision when an action does not proceed.
const (
	ReasonManualOnly       = "manual_only"
	ReasonAwaitingApproval = "awaiting_approval"
)

// ErrAlreadyDecided is returned when a decision is applied to a request
// that is no longer pending. The request is not mutated.
var ErrAlreadyDecided = errors.New("approval request already decided")

// Decision is the outcome of evaluating an action against its configured
// mode.
type Decision struct {
	Proceed    bool
	ApprovalID *uuid.UUID
	Reason     string
}

// Gate decides whether a proposed agent action may proceed, pause for a
// human, or is blocked outright.
type Gate struct {
	store  store.Store
	bus    *bus.Bus
	logger *log.Logger
}

// NewGate wires a gate to its store and event bus.
func NewGate(st store.Store, eventBus *bus.Bus, logger *log.Logger) *Gate {
	return &Gate{store: st, bus: eventBus, logger: logger}
}

// Evaluate consults the action-mode config for the (agent, action) pair
// and either approves immediately, blocks, or creates a pending approval
// request. Absence of a config row defaults to approve mode.
func (g *Gate) Evaluate(ctx context.Context, agentSlug, actionName string, payload, meta map[string]any) (Decision, error) {
	mode := ModeApprove
	cfg, err := g.store.GetActionMode(ctx, agentSlug, actionName)
	switch {
	case err == nil:
		parsed, perr := ParseMode(cfg.Mode)
		if perr != nil {
			g.logger.Warn("invalid action mode configured, treating as approve",
				"agent", agentSlug, "action", actionName, "mode", cfg.Mode)
		} else {
			mode = parsed
		}
	case errors.Is(err, store.ErrNotFound):
		// No row: fail safe to approve mode.
	default:
		return Decision{}, fmt.Errorf("looking up action mode: %w", err)
	}

	switch mode {
	case ModeAuto:
		return Decision{Proceed: true}, nil
	case ModeManual:
		return Decision{Proceed: false, Reason: ReasonManualOnly}, nil
	}

	now := time.Now().UTC()
	req := &store.ApprovalRequest{
		ID:         uuid.New(),
		AgentSlug:  agentSlug,
		ActionName: actionName,
		Payload:    payload,
		Context:    meta,
		Status:     store.ApprovalStatusPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ApprovalTTL),
	}
	if err := g.store.CreateApproval(ctx, req); err != nil {
		return Decision{}, fmt.Errorf("creating approval request: %w", err)
	}

	g.bus.Publish("approval.requested", map[string]any{
		"approval_id":     req.ID.String(),
		"agent_slug":      agentSlug,
		"action_name":     actionName,
		"payload_summary": summarize(payload),
	}, "hitl")

	g.logger.Info("approval requested",
		"agent", agentSlug, "action", actionName, "approval_id", req.ID)

	return Decision{Proceed: false, ApprovalID: &req.ID, Reason: ReasonAwaitingApproval}, nil
}

// Decide applies a human decision to a pending approval request. Deciding
// an already-decided or nonexistent request fails without mutating
// anything. On approval an optional modified payload replaces the
// proposed one downstream. The approval.decided event is published
// regardless of outcome.
func (g *Gate) Decide(ctx context.Context, id uuid.UUID, approved bool, modifiedPayload map[string]any, reason, decidedBy string) (*store.ApprovalRequest, error) {
	req, err := g.store.GetApproval(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != store.ApprovalStatusPending {
		return req, ErrAlreadyDecided
	}

	now := time.Now().UTC()
	req.DecidedBy = decidedBy
	req.DecidedAt = &now
	if approved {
		req.Status = store.ApprovalStatusApproved
		if modifiedPayload != nil {
			req.ModifiedPayload = modifiedPayload
		}
	} else {
		req.Status = store.ApprovalStatusRejected
		req.RejectionReason = reason
	}
	if err := g.store.UpdateApproval(ctx, req); err != nil {
		return nil, fmt.Errorf("updating approval request: %w", err)
	}

	g.bus.Publish("approval.decided", map[string]any{
		"approval_id": req.ID.String(),
		"agent_slug":  req.AgentSlug,
		"action_name": req.ActionName,
		"status":      req.Status,
		"decided_by":  decidedBy,
		"reason":      reason,
	}, "hitl")

	g.logger.Info("approval decided",
		"approval_id", req.ID, "status", req.Status, "decided_by", decidedBy)

	return req, nil
}

func summarize(payload map[string]any) string {
	s := fmt.Sprintf("%v", payload)
	if len(s) <= payloadSummaryLimit {
		return s
	}
	// Back off to a rune boundary so the preview stays valid UTF-8.
	cut := payloadSummaryLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
