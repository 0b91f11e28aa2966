package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/agency-automator/internal/hitl"
	"github.com/jonathan/agency-automator/internal/store"
)

// StartRunRequest represents the request body for starting a workflow run.
// Both fields are optional; an empty body starts the run with no initial
// context.
type StartRunRequest struct {
	Context map[string]any `json:"context,omitempty"`
	Trigger string         `json:"trigger,omitempty" validate:"omitempty,oneof=manual api scheduled"`
}

// ResumeRequest represents the request body for resuming a paused run.
type ResumeRequest struct {
	StepID   string `json:"step_id" validate:"required"`
	Approved bool   `json:"approved"`
}

// DecisionRequest represents the request body for approving or rejecting
// an approval request.
type DecisionRequest struct {
	DecidedBy       string         `json:"decided_by,omitempty"`
	Reason          string         `json:"reason,omitempty"`
	ModifiedPayload map[string]any `json:"modified_payload,omitempty"`
}

// ActionModeRequest represents the request body for configuring an action
// mode.
type ActionModeRequest struct {
	Mode string `json:"mode" validate:"required,oneof=auto approve manual"`
}

// WorkflowSummary is the list representation of a workflow definition.
type WorkflowSummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
	Schedule    string `json:"schedule,omitempty"`
	StepCount   int    `json:"step_count"`
}

// decodeBody decodes and validates a JSON request body. An empty body is
// allowed when allowEmpty is set.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, &ErrValidation{Field: name, Message: "must be a valid UUID"}
	}
	return id, nil
}

func limitParam(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// handleListWorkflows lists the loaded workflow definitions.
func (s *Server) handleListWorkflows(w http.ResponseWriter, _ *http.Request) {
	defs := s.engine.Definitions()
	out := make([]WorkflowSummary, 0, len(defs))
	for name, def := range defs {
		out = append(out, WorkflowSummary{
			Name:        name,
			Description: def.Description,
			Enabled:     def.Enabled,
			Schedule:    def.Schedule,
			StepCount:   len(def.Steps),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	s.jsonResponse(w, http.StatusOK, map[string]any{"workflows": out})
}

// handleStartRun starts a workflow run and executes it until it completes,
// fails, or pauses for approval.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req StartRunRequest
	if ok := s.decodeBody(w, r, &req, true); !ok {
		return
	}
	if req.Trigger == "" {
		req.Trigger = "api"
	}

	run, err := s.engine.Start(r.Context(), name, req.Context, req.Trigger)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, run)
}

// handleListRuns returns recent workflow runs, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context(), limitParam(r, 50))
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleGetRun returns one run by ID.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, run)
}

// handleListRunSteps returns the steps of a run in definition order.
func (s *Server) handleListRunSteps(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	if _, err := s.store.GetRun(r.Context(), id); err != nil {
		s.errorFrom(w, err)
		return
	}
	steps, err := s.store.ListSteps(r.Context(), id)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"steps": steps})
}

// handleResumeRun applies a human decision to a run paused on a step that
// required approval, then continues execution.
func (s *Server) handleResumeRun(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		s.errorFrom(w, err)
		return
	}

	var req ResumeRequest
	if ok := s.decodeBody(w, r, &req, false); !ok {
		return
	}

	run, err := s.engine.Resume(r.Context(), id, req.StepID, req.Approved)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, run)
}

// handleListApprovals returns approval requests, optionally filtered by
// status.
func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	approvals, err := s.store.ListApprovals(r.Context(), status, limitParam(r, 50))
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"approvals": approvals})
}

// handleGetApproval returns one approval request by ID.
func (s *Server) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	req, err := s.store.GetApproval(r.Context(), id)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, req)
}

// handleApprove approves a pending approval request and resumes the
// workflow run waiting on it, if any.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.decide(w, r, true)
}

// handleReject rejects a pending approval request. The run waiting on it,
// if any, is cancelled.
func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.decide(w, r, false)
}

func (s *Server) decide(w http.ResponseWriter, r *http.Request, approved bool) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		s.errorFrom(w, err)
		return
	}

	var req DecisionRequest
	if ok := s.decodeBody(w, r, &req, true); !ok {
		return
	}
	if req.DecidedBy == "" {
		req.DecidedBy = "api"
	}

	approval, err := s.gate.Decide(r.Context(), id, approved, req.ModifiedPayload, req.Reason, req.DecidedBy)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	if err := s.engine.ResumeFromApproval(r.Context(), id, approved); err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, approval)
}

// handleGetActionMode returns the configured mode for an (agent, action)
// pair. An unconfigured pair reports the approve default.
func (s *Server) handleGetActionMode(w http.ResponseWriter, r *http.Request) {
	agentSlug := r.PathValue("agent")
	actionName := r.PathValue("action")

	cfg, err := s.store.GetActionMode(r.Context(), agentSlug, actionName)
	if errors.Is(err, store.ErrNotFound) {
		s.jsonResponse(w, http.StatusOK, store.ActionModeConfig{
			AgentSlug:  agentSlug,
			ActionName: actionName,
			Mode:       hitl.ModeApprove.String(),
		})
		return
	}
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, cfg)
}

// handleSetActionMode configures the mode for an (agent, action) pair.
func (s *Server) handleSetActionMode(w http.ResponseWriter, r *http.Request) {
	var req ActionModeRequest
	if ok := s.decodeBody(w, r, &req, false); !ok {
		return
	}

	cfg := &store.ActionModeConfig{
		AgentSlug:  r.PathValue("agent"),
		ActionName: r.PathValue("action"),
		Mode:       req.Mode,
	}
	if err := s.store.SetActionMode(r.Context(), cfg); err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, cfg)
}

// handleListLeads returns leads, optionally filtered by pipeline stage via
// ?stage=a,b. Without a filter every stage is included.
func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	stages := []string{
		store.LeadStageProspect, store.LeadStageResearched,
		store.LeadStageQualified, store.LeadStageOutreachDrafted,
		store.LeadStageOutreachSent, store.LeadStageResponded,
		store.LeadStageWon, store.LeadStageLost,
	}
	if raw := r.URL.Query().Get("stage"); raw != "" {
		stages = strings.Split(raw, ",")
	}

	leads, err := s.store.ListLeadsByStage(r.Context(), stages...)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"leads": leads})
}

// handleGetLead returns one lead by ID.
func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	lead, err := s.store.GetLead(r.Context(), id)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, lead)
}

// handleLeadFollowups returns the follow-up sequence position for a lead.
func (s *Server) handleLeadFollowups(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	lead, err := s.store.GetLead(r.Context(), id)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, s.sequencer.History(lead))
}

// handlePendingFollowups returns the leads due for a follow-up touch
// today.
func (s *Server) handlePendingFollowups(w http.ResponseWriter, r *http.Request) {
	leads, err := s.sequencer.Pending(r.Context())
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"pending": leads})
}

// handleRunFollowups sweeps the lead pipeline and generates every due
// follow-up. ?dry_run=true previews the messages without advancing any
// lead.
func (s *Server) handleRunFollowups(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("dry_run") == "true" {
		s.runFollowupsDry(w, r)
		return
	}
	report, err := s.sequencer.RunDaily(r.Context())
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, report)
}

func (s *Server) runFollowupsDry(w http.ResponseWriter, r *http.Request) {
	leads, err := s.sequencer.Pending(r.Context())
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	out := make([]any, 0, len(leads))
	for _, lead := range leads {
		fu, err := s.sequencer.Generate(r.Context(), lead, true)
		if err != nil {
			s.logger.Warn("follow-up preview failed", "lead", lead.BusinessName, "error", err)
			continue
		}
		out = append(out, fu)
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"checked": len(leads), "generated": out})
}

// handleEventHistory returns the most recent bus events, newest last.
func (s *Server) handleEventHistory(w http.ResponseWriter, r *http.Request) {
	events := s.bus.History(limitParam(r, 100))
	s.jsonResponse(w, http.StatusOK, map[string]any{"events": events})
}
