package workflow

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/agency-automator/internal/agent"
	"github.com/jonathan/agency-automator/internal/bus"
	"github.com/jonathan/agency-automator/internal/hitl"
	"github.com/jonathan/agency-automator/internal/store"
)

// scriptedAgent returns canned structured output per action, with call
// counting so tests can assert on revision loops.
type scriptedAgent struct {
	slug   string
	script map[string]func(call int) (map[string]any, error)
	calls  map[string]int
}

func newScriptedAgent(slug string) *scriptedAgent {
	return &scriptedAgent{slug: slug, script: map[string]func(int) (map[string]any, error){}, calls: map[string]int{}}
}

func (a *scriptedAgent) on(action string, fn func(call int) (map[string]any, error)) *scriptedAgent {
	a.script[action] = fn
	return a
}

func (a *scriptedAgent) returns(action string, output map[string]any) *scriptedAgent {
	return a.on(action, func(int) (map[string]any, error) { return output, nil })
}

func (a *scriptedAgent) Slug() string { return a.slug }

func (a *scriptedAgent) Execute(_ context.Context, action, _ string, _ map[string]any) (*agent.Result, error) {
	a.calls[action]++
	fn, ok := a.script[action]
	if !ok {
		return &agent.Result{Structured: map[string]any{"action": action}, CostUSD: 0.001, DurationMS: 5}, nil
	}
	out, err := fn(a.calls[action])
	if err != nil {
		return nil, err
	}
	return &agent.Result{Structured: out, CostUSD: 0.001, DurationMS: 5}, nil
}

type harness struct {
	engine   *Engine
	store    *store.MemoryStore
	bus      *bus.Bus
	gate     *hitl.Gate
	registry *agent.Registry
}

func newHarness(t *testing.T, defs Definitions, agents ...agent.Agent) *harness {
	t.Helper()
	logger := log.New(io.Discard)
	st := store.NewMemoryStore()
	eventBus := bus.New(logger)
	gate := hitl.NewGate(st, eventBus, logger)
	registry := agent.NewRegistry()
	for _, a := range agents {
		registry.Register(a)
	}
	return &harness{
		engine:   NewEngine(st, registry, gate, eventBus, defs, logger),
		store:    st,
		bus:      eventBus,
		gate:     gate,
		registry: registry,
	}
}

func eventNames(b *bus.Bus) []string {
	events := b.History(0)
	names := make([]string, len(events))
	for i, evt := range events {
		names[i] = evt.Name
	}
	return names
}

func linearDefs() Definitions {
	return Definitions{
		"prospecting": {
			Name: "prospecting",
			Steps: []StepDef{
				{ID: "scout", Agent: "scout", Action: "find_targets", Next: "summarize"},
				{ID: "summarize", Agent: "analyst", Action: "summarize_targets"},
			},
		},
	}
}

func TestStartUnknownWorkflow(t *testing.T) {
	h := newHarness(t, Definitions{})
	_, err := h.engine.Start(context.Background(), "nope", nil, "manual")

	var unknownErr *UnknownWorkflowError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "nope", unknownErr.Name)
}

func TestStartWorkflowWithoutSteps(t *testing.T) {
	h := newHarness(t, Definitions{"empty": {Name: "empty"}})
	_, err := h.engine.Start(context.Background(), "empty", nil, "manual")

	var noStepsErr *NoStepsError
	require.ErrorAs(t, err, &noStepsErr)
}

func TestLinearRunCompletes(t *testing.T) {
	ctx := context.Background()
	scout := newScriptedAgent("scout").returns("find_targets", map[string]any{"targets": []any{"a", "b"}})
	analyst := newScriptedAgent("analyst").returns("summarize_targets", map[string]any{"summary": "two targets"})
	h := newHarness(t, linearDefs(), scout, analyst)

	run, err := h.engine.Start(ctx, "prospecting", map[string]any{"location": "Oaxaca"}, "manual")
	require.NoError(t, err)

	stored, err := h.store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusCompleted, stored.Status)
	assert.Empty(t, stored.CurrentStepID)
	assert.NotNil(t, stored.CompletedAt)
	assert.Equal(t, "manual", stored.Trigger)

	// Context threads each step's output under its step id.
	require.Contains(t, run.Context, "scout")
	require.Contains(t, run.Context, "summarize")
	assert.Equal(t, "Oaxaca", run.Context["location"])

	steps, err := h.store.ListSteps(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	for _, step := range steps {
		assert.Equal(t, store.StepStatusCompleted, step.Status)
		assert.Equal(t, 0.001, step.CostUSD)
		assert.NotNil(t, step.StartedAt)
		assert.NotNil(t, step.CompletedAt)
	}

	names := eventNames(h.bus)
	assert.Contains(t, names, "workflow.prospecting.started")
	assert.Contains(t, names, "agent.scout.running")
	assert.Contains(t, names, "agent.scout.completed")
	assert.Contains(t, names, "workflow.prospecting.completed")
}

func TestUnregisteredAgentFailsRun(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, linearDefs()) // no agents registered

	run, err := h.engine.Start(ctx, "prospecting", nil, "manual")
	require.NoError(t, err)

	stored, err := h.store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "agent not registered")

	step, err := h.store.GetStep(ctx, run.ID, "scout")
	require.NoError(t, err)
	assert.Equal(t, store.StepStatusFailed, step.Status)
	assert.NotNil(t, step.CompletedAt)
}

func TestAgentErrorFailsRun(t *testing.T) {
	ctx := context.Background()
	scout := newScriptedAgent("scout").on("find_targets", func(int) (map[string]any, error) {
		return nil, errors.New("model overloaded")
	})
	h := newHarness(t, linearDefs(), scout, newScriptedAgent("analyst"))

	run, err := h.engine.Start(ctx, "prospecting", nil, "manual")
	require.NoError(t, err)

	stored, err := h.store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "model overloaded")

	// The second step never ran.
	step, err := h.store.GetStep(ctx, run.ID, "summarize")
	require.NoError(t, err)
	assert.Equal(t, store.StepStatusPending, step.Status)
}

func TestStepWithoutAgentCompletes(t *testing.T) {
	ctx := context.Background()
	defs := Definitions{
		"noop": {
			Name:  "noop",
			Steps: []StepDef{{ID: "wait", Action: "pause_for_effect"}},
		},
	}
	h := newHarness(t, defs)

	run, err := h.engine.Start(ctx, "noop", nil, "manual")
	require.NoError(t, err)

	stored, err := h.store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusCompleted, stored.Status)
	assert.Contains(t, eventNames(h.bus), "agent.system.running")
}

func gatedDefs() Definitions {
	return Definitions{
		"launch": {
			Name: "launch",
			Steps: []StepDef{
				{ID: "prepare", Agent: "scout", Action: "find_targets", Next: "confirm"},
				{ID: "confirm", RequiresHumanApproval: true, Next: "announce"},
				{ID: "announce", Agent: "scout", Action: "announce_launch"},
			},
		},
	}
}

func TestApprovalGatePausesRun(t *testing.T) {
	ctx := context.Background()
	scout := newScriptedAgent("scout")
	h := newHarness(t, gatedDefs(), scout)

	run, err := h.engine.Start(ctx, "launch", nil, "manual")
	require.NoError(t, err)

	stored, err := h.store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusPausedForApproval, stored.Status)
	assert.Equal(t, "confirm", stored.CurrentStepID)

	step, err := h.store.GetStep(ctx, run.ID, "confirm")
	require.NoError(t, err)
	assert.Equal(t, store.StepStatusAwaitingApproval, step.Status)

	assert.Contains(t, eventNames(h.bus), "workflow.approval_needed")
	assert.Equal(t, 0, scout.calls["announce_launch"])
}

func TestResumeApprovedContinuesRun(t *testing.T) {
	ctx := context.Background()
	scout := newScriptedAgent("scout")
	h := newHarness(t, gatedDefs(), scout)

	run, err := h.engine.Start(ctx, "launch", nil, "manual")
	require.NoError(t, err)

	resumed, err := h.engine.Resume(ctx, run.ID, "confirm", true)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusCompleted, resumed.Status)

	step, err := h.store.GetStep(ctx, run.ID, "confirm")
	require.NoError(t, err)
	assert.Equal(t, store.StepStatusCompleted, step.Status)
	assert.Equal(t, 1, scout.calls["announce_launch"])
}

func TestResumeRejectedCancelsRun(t *testing.T) {
	ctx := context.Background()
	scout := newScriptedAgent("scout")
	h := newHarness(t, gatedDefs(), scout)

	run, err := h.engine.Start(ctx, "launch", nil, "manual")
	require.NoError(t, err)

	resumed, err := h.engine.Resume(ctx, run.ID, "confirm", false)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusCancelled, resumed.Status)
	assert.NotNil(t, resumed.CompletedAt)

	step, err := h.store.GetStep(ctx, run.ID, "confirm")
	require.NoError(t, err)
	assert.Equal(t, store.StepStatusFailed, step.Status)
	assert.Equal(t, 0, scout.calls["announce_launch"])
}

func TestResumeValidation(t *testing.T) {
	ctx := context.Background()
	scout := newScriptedAgent("scout")
	analyst := newScriptedAgent("analyst")
	h := newHarness(t, linearDefs(), scout, analyst)

	run, err := h.engine.Start(ctx, "prospecting", nil, "manual")
	require.NoError(t, err)

	// Completed run cannot be resumed.
	_, err = h.engine.Resume(ctx, run.ID, "scout", true)
	assert.ErrorIs(t, err, ErrRunNotPaused)

	// Paused run, but the named step is not the one awaiting approval.
	h2 := newHarness(t, gatedDefs(), newScriptedAgent("scout"))
	paused, err := h2.engine.Start(ctx, "launch", nil, "manual")
	require.NoError(t, err)
	_, err = h2.engine.Resume(ctx, paused.ID, "prepare", true)
	assert.ErrorIs(t, err, ErrStepNotAwaiting)
}

func controlledDefs() Definitions {
	return Definitions{
		"outreach": {
			Name: "outreach",
			Steps: []StepDef{
				{ID: "draft", Agent: "writer", Action: "draft_outreach", Next: "wrap"},
				{ID: "wrap", Agent: "writer", Action: "wrap_up"},
			},
		},
	}
}

func TestControlledActionPausesWithApproval(t *testing.T) {
	ctx := context.Background()
	writer := newScriptedAgent("writer").returns("draft_outreach", map[string]any{"draft": "hola"})
	h := newHarness(t, controlledDefs(), writer)

	run, err := h.engine.Start(ctx, "outreach", nil, "manual")
	require.NoError(t, err)

	stored, err := h.store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusPausedForApproval, stored.Status)

	step, err := h.store.GetStep(ctx, run.ID, "draft")
	require.NoError(t, err)
	assert.Equal(t, store.StepStatusAwaitingApproval, step.Status)
	require.NotNil(t, step.ApprovalID)

	pending, err := h.store.ListApprovals(ctx, store.ApprovalStatusPending, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "writer", pending[0].AgentSlug)
	assert.Equal(t, "draft_outreach", pending[0].ActionName)
}

func TestResumeFromApprovalAppliesModifiedPayload(t *testing.T) {
	ctx := context.Background()
	writer := newScriptedAgent("writer").returns("draft_outreach", map[string]any{"draft": "hola"})
	h := newHarness(t, controlledDefs(), writer)

	run, err := h.engine.Start(ctx, "outreach", nil, "manual")
	require.NoError(t, err)

	step, err := h.store.GetStep(ctx, run.ID, "draft")
	require.NoError(t, err)
	require.NotNil(t, step.ApprovalID)

	modified := map[string]any{"draft": "hola, ajustado por un humano"}
	_, err = h.gate.Decide(ctx, *step.ApprovalID, true, modified, "", "admin")
	require.NoError(t, err)

	require.NoError(t, h.engine.ResumeFromApproval(ctx, *step.ApprovalID, true))

	stored, err := h.store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusCompleted, stored.Status)
	assert.Equal(t, modified, stored.Context["draft"])

	step, err = h.store.GetStep(ctx, run.ID, "draft")
	require.NoError(t, err)
	assert.Equal(t, store.StepStatusCompleted, step.Status)
	assert.Equal(t, modified, step.OutputData)
	assert.Equal(t, 1, writer.calls["wrap_up"])
}

func TestResumeFromApprovalRejectedCancelsRun(t *testing.T) {
	ctx := context.Background()
	writer := newScriptedAgent("writer").returns("draft_outreach", map[string]any{"draft": "hola"})
	h := newHarness(t, controlledDefs(), writer)

	run, err := h.engine.Start(ctx, "outreach", nil, "manual")
	require.NoError(t, err)

	step, err := h.store.GetStep(ctx, run.ID, "draft")
	require.NoError(t, err)
	require.NotNil(t, step.ApprovalID)

	_, err = h.gate.Decide(ctx, *step.ApprovalID, false, nil, "too salesy", "admin")
	require.NoError(t, err)
	require.NoError(t, h.engine.ResumeFromApproval(ctx, *step.ApprovalID, false))

	stored, err := h.store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusCancelled, stored.Status)
	assert.Equal(t, 0, writer.calls["wrap_up"])
}

func TestResumeFromApprovalWithoutLinkedStep(t *testing.T) {
	h := newHarness(t, Definitions{})
	assert.NoError(t, h.engine.ResumeFromApproval(context.Background(), uuid.New(), true))
}

func TestControlledActionAutoModeProceeds(t *testing.T) {
	ctx := context.Background()
	writer := newScriptedAgent("writer").returns("draft_outreach", map[string]any{"draft": "hola"})
	h := newHarness(t, controlledDefs(), writer)

	require.NoError(t, h.store.SetActionMode(ctx, &store.ActionModeConfig{
		AgentSlug: "writer", ActionName: "draft_outreach", Mode: "auto",
	}))

	run, err := h.engine.Start(ctx, "outreach", nil, "manual")
	require.NoError(t, err)

	stored, err := h.store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusCompleted, stored.Status)

	pending, err := h.store.ListApprovals(ctx, store.ApprovalStatusPending, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func revisionDefs(threshold float64, maxRevisions int) Definitions {
	return Definitions{
		"content": {
			Name: "content",
			Steps: []StepDef{
				{ID: "write", Agent: "writer", Action: "write_content", Next: "review"},
				{ID: "review", Agent: "editor", Action: "review_and_score",
					RetryOnLowScore: &RetryPolicy{Threshold: threshold, MaxRevisions: maxRevisions, RetryStep: "write"}},
			},
		},
	}
}

func TestRetryOnLowScoreIsBounded(t *testing.T) {
	ctx := context.Background()
	writer := newScriptedAgent("writer").returns("write_content", map[string]any{"content": "draft"})
	editor := newScriptedAgent("editor").returns("review_and_score", map[string]any{"overall_score": 4.0})
	h := newHarness(t, revisionDefs(7, 2), writer, editor)

	run, err := h.engine.Start(ctx, "content", nil, "manual")
	require.NoError(t, err)

	// Two revisions maximum: write and review each run three times, then
	// the low score is accepted and the run completes.
	assert.Equal(t, 3, writer.calls["write_content"])
	assert.Equal(t, 3, editor.calls["review_and_score"])

	stored, err := h.store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusCompleted, stored.Status)

	review, err := h.store.GetStep(ctx, run.ID, "review")
	require.NoError(t, err)
	assert.Equal(t, 2, review.RetryCount)
	assert.Equal(t, store.StepStatusCompleted, review.Status)
}

func TestHighScoreSkipsRevision(t *testing.T) {
	ctx := context.Background()
	writer := newScriptedAgent("writer").returns("write_content", map[string]any{"content": "draft"})
	editor := newScriptedAgent("editor").returns("review_and_score", map[string]any{"overall_score": 9.1})
	h := newHarness(t, revisionDefs(7, 2), writer, editor)

	run, err := h.engine.Start(ctx, "content", nil, "manual")
	require.NoError(t, err)

	assert.Equal(t, 1, writer.calls["write_content"])
	assert.Equal(t, 1, editor.calls["review_and_score"])

	review, err := h.store.GetStep(ctx, run.ID, "review")
	require.NoError(t, err)
	assert.Equal(t, 0, review.RetryCount)
}

func TestMissingScoreCountsAsPassing(t *testing.T) {
	ctx := context.Background()
	writer := newScriptedAgent("writer").returns("write_content", map[string]any{"content": "draft"})
	editor := newScriptedAgent("editor").returns("review_and_score", map[string]any{"decision": "approve"})
	h := newHarness(t, revisionDefs(7, 2), writer, editor)

	_, err := h.engine.Start(ctx, "content", nil, "manual")
	require.NoError(t, err)
	assert.Equal(t, 1, writer.calls["write_content"])
}
