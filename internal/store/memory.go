package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs tests and
// database-less runs of the CLI; the PostgreSQL store in internal/db is
// the production implementation.
type MemoryStore struct {
	mu          sync.RWMutex
	runs        map[uuid.UUID]*WorkflowRun
	steps       map[uuid.UUID][]*WorkflowStep
	approvals   map[uuid.UUID]*ApprovalRequest
	actionModes map[string]*ActionModeConfig
	leads       map[uuid.UUID]*Lead
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:        map[uuid.UUID]*WorkflowRun{},
		steps:       map[uuid.UUID][]*WorkflowStep{},
		approvals:   map[uuid.UUID]*ApprovalRequest{},
		actionModes: map[string]*ActionModeConfig{},
		leads:       map[uuid.UUID]*Lead{},
	}
}

func modeKey(agentSlug, actionName string) string {
	return agentSlug + "/" + actionName
}

// cloneMap deep-copies a JSON-shaped map. Stored records and returned
// records must never share mutable state with the caller: the engine
// mutates a live run's Context between persists, and a shared map would
// race with concurrent readers.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

func cloneRun(run *WorkflowRun) *WorkflowRun {
	cp := *run
	cp.Context = cloneMap(run.Context)
	return &cp
}

func cloneStep(step *WorkflowStep) *WorkflowStep {
	cp := *step
	cp.InputData = cloneMap(step.InputData)
	cp.OutputData = cloneMap(step.OutputData)
	if step.ApprovalID != nil {
		id := *step.ApprovalID
		cp.ApprovalID = &id
	}
	return &cp
}

func cloneApproval(req *ApprovalRequest) *ApprovalRequest {
	cp := *req
	cp.Payload = cloneMap(req.Payload)
	cp.Context = cloneMap(req.Context)
	cp.ModifiedPayload = cloneMap(req.ModifiedPayload)
	return &cp
}

func cloneLead(lead *Lead) *Lead {
	cp := *lead
	cp.Research = cloneMap(lead.Research)
	return &cp
}

func (s *MemoryStore) CreateRun(_ context.Context, run *WorkflowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) UpdateRun(_ context.Context, run *WorkflowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return ErrNotFound
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id uuid.UUID) (*WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRun(run), nil
}

func (s *MemoryStore) ListRuns(_ context.Context, limit int) ([]*WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*WorkflowRun, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, cloneRun(run))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CreateStep(_ context.Context, step *WorkflowStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if step.ID == uuid.Nil {
		step.ID = uuid.New()
	}
	s.steps[step.RunID] = append(s.steps[step.RunID], cloneStep(step))
	return nil
}

func (s *MemoryStore) UpdateStep(_ context.Context, step *WorkflowStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.steps[step.RunID] {
		if existing.ID == step.ID {
			s.steps[step.RunID][i] = cloneStep(step)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) GetStep(_ context.Context, runID uuid.UUID, stepID string) (*WorkflowStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, step := range s.steps[runID] {
		if step.StepID == stepID {
			return cloneStep(step), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetStepByApproval(_ context.Context, approvalID uuid.UUID) (*WorkflowStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, steps := range s.steps {
		for _, step := range steps {
			if step.ApprovalID != nil && *step.ApprovalID == approvalID {
				return cloneStep(step), nil
			}
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListSteps(_ context.Context, runID uuid.UUID) ([]*WorkflowStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*WorkflowStep, 0, len(s.steps[runID]))
	for _, step := range s.steps[runID] {
		out = append(out, cloneStep(step))
	}
	return out, nil
}

func (s *MemoryStore) CreateApproval(_ context.Context, req *ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	s.approvals[req.ID] = cloneApproval(req)
	return nil
}

func (s *MemoryStore) UpdateApproval(_ context.Context, req *ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.approvals[req.ID]; !ok {
		return ErrNotFound
	}
	s.approvals[req.ID] = cloneApproval(req)
	return nil
}

func (s *MemoryStore) GetApproval(_ context.Context, id uuid.UUID) (*ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.approvals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneApproval(req), nil
}

func (s *MemoryStore) ListApprovals(_ context.Context, status string, limit int) ([]*ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ApprovalRequest, 0, len(s.approvals))
	for _, req := range s.approvals {
		if status != "" && req.Status != status {
			continue
		}
		out = append(out, cloneApproval(req))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) GetActionMode(_ context.Context, agentSlug, actionName string) (*ActionModeConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.actionModes[modeKey(agentSlug, actionName)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *cfg
	return &cp, nil
}

func (s *MemoryStore) SetActionMode(_ context.Context, cfg *ActionModeConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg.UpdatedAt = time.Now().UTC()
	cp := *cfg
	s.actionModes[modeKey(cfg.AgentSlug, cfg.ActionName)] = &cp
	return nil
}

func (s *MemoryStore) CreateLead(_ context.Context, lead *Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	now := time.Now().UTC()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	lead.UpdatedAt = now
	s.leads[lead.ID] = cloneLead(lead)
	return nil
}

func (s *MemoryStore) UpdateLead(_ context.Context, lead *Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leads[lead.ID]; !ok {
		return ErrNotFound
	}
	lead.UpdatedAt = time.Now().UTC()
	s.leads[lead.ID] = cloneLead(lead)
	return nil
}

func (s *MemoryStore) GetLead(_ context.Context, id uuid.UUID) (*Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lead, ok := s.leads[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneLead(lead), nil
}

// GetLeadByBusinessName returns the most recently created lead with the
// given business name.
func (s *MemoryStore) GetLeadByBusinessName(_ context.Context, name string) (*Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *Lead
	for _, lead := range s.leads {
		if lead.BusinessName != name {
			continue
		}
		if latest == nil || lead.CreatedAt.After(latest.CreatedAt) {
			latest = lead
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return cloneLead(latest), nil
}

// ListLeadsByStage returns leads in any of the given stages, highest score
// first.
func (s *MemoryStore) ListLeadsByStage(_ context.Context, stages ...string) ([]*Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := map[string]bool{}
	for _, stage := range stages {
		wanted[stage] = true
	}
	var out []*Lead
	for _, lead := range s.leads {
		if wanted[lead.Stage] {
			out = append(out, cloneLead(lead))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}
