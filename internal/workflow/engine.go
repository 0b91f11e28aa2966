package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/jonathan/agency-automator/internal/agent"
	"github.com/jonathan/agency-automator/internal/bus"
	"github.com/jonathan/agency-automator/internal/hitl"
	"github.com/jonathan/agency-automator/internal/store"
)

// DefaultControlledActions are the action names that pass through the
// approval gate after producing output. Anything else runs ungated.
var DefaultControlledActions = []string{
	"send_email", "post_tweet", "make_api_call", "update_lead",
	"draft_outreach", "format_and_publish", "send",
}

// defaultScore is assumed when a review step produced no overall_score.
// It sits above any sane threshold so a missing score never loops.
const defaultScore = 10

// Engine executes workflow definitions as state machines. A run advances
// step by step until it completes, fails, or suspends for a human
// decision; suspended runs are picked back up by Resume or
// ResumeFromApproval.
type Engine struct {
	store      store.Store
	registry   *agent.Registry
	gate       *hitl.Gate
	bus        *bus.Bus
	defs       Definitions
	controlled map[string]bool
	logger     *log.Logger
}

// NewEngine wires an engine to its collaborators. The controlled-action
// set defaults to DefaultControlledActions.
func NewEngine(st store.Store, registry *agent.Registry, gate *hitl.Gate, eventBus *bus.Bus, defs Definitions, logger *log.Logger) *Engine {
	controlled := make(map[string]bool, len(DefaultControlledActions))
	for _, a := range DefaultControlledActions {
		controlled[a] = true
	}
	return &Engine{
		store:      st,
		registry:   registry,
		gate:       gate,
		bus:        eventBus,
		defs:       defs,
		controlled: controlled,
		logger:     logger,
	}
}

// SetControlledActions replaces the set of gated action names.
func (e *Engine) SetControlledActions(actions []string) {
	controlled := make(map[string]bool, len(actions))
	for _, a := range actions {
		controlled[a] = true
	}
	e.controlled = controlled
}

// Definitions returns the loaded workflow definitions.
func (e *Engine) Definitions() Definitions {
	return e.defs
}

// Start creates a new run for the named workflow and executes it until it
// finishes or suspends. The returned run reflects its state at the moment
// Start returns; callers inspect Status to tell the difference.
func (e *Engine) Start(ctx context.Context, workflowName string, initialContext map[string]any, trigger string) (*store.WorkflowRun, error) {
	def, ok := e.defs[workflowName]
	if !ok {
		return nil, &UnknownWorkflowError{Name: workflowName}
	}
	if len(def.Steps) == 0 {
		return nil, &NoStepsError{Name: workflowName}
	}

	if initialContext == nil {
		initialContext = map[string]any{}
	}
	now := time.Now().UTC()
	run := &store.WorkflowRun{
		ID:            uuid.New(),
		WorkflowName:  workflowName,
		Status:        store.RunStatusRunning,
		CurrentStepID: def.Steps[0].ID,
		Trigger:       trigger,
		Context:       initialContext,
		StartedAt:     &now,
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("creating workflow run: %w", err)
	}

	for _, sd := range def.Steps {
		step := &store.WorkflowStep{
			RunID:     run.ID,
			StepID:    sd.ID,
			AgentSlug: sd.Agent,
			Action:    sd.Action,
			Status:    store.StepStatusPending,
		}
		if err := e.store.CreateStep(ctx, step); err != nil {
			return nil, fmt.Errorf("creating workflow step %s: %w", sd.ID, err)
		}
	}

	e.bus.Publish(fmt.Sprintf("workflow.%s.started", workflowName), map[string]any{
		"run_id": run.ID.String(),
	}, "workflow")
	e.logger.Info("workflow started", "workflow", workflowName, "run_id", run.ID, "trigger", trigger)

	if err := e.execute(ctx, run, def); err != nil {
		return run, err
	}
	return run, nil
}

// execute advances the run from its current step until the workflow ends
// or suspends. Agent failures are recorded on the run and end execution
// without an error; only storage failures surface as errors.
func (e *Engine) execute(ctx context.Context, run *store.WorkflowRun, def *Definition) error {
	for run.CurrentStepID != "" {
		sd := def.Step(run.CurrentStepID)
		if sd == nil {
			break
		}

		step, err := e.store.GetStep(ctx, run.ID, sd.ID)
		if err != nil {
			return fmt.Errorf("loading step %s: %w", sd.ID, err)
		}

		// Definition-level approval gate: suspend before executing.
		if sd.RequiresHumanApproval {
			step.Status = store.StepStatusAwaitingApproval
			run.Status = store.RunStatusPausedForApproval
			if err := e.suspend(ctx, run, step); err != nil {
				return err
			}
			e.bus.Publish("workflow.approval_needed", map[string]any{
				"run_id":   run.ID.String(),
				"step_id":  sd.ID,
				"workflow": run.WorkflowName,
			}, "workflow")
			return nil
		}

		startedAt := time.Now().UTC()
		step.Status = store.StepStatusRunning
		step.StartedAt = &startedAt
		if err := e.store.UpdateStep(ctx, step); err != nil {
			return fmt.Errorf("updating step %s: %w", sd.ID, err)
		}

		slug := sd.Agent
		if slug == "" {
			slug = "system"
		}
		e.bus.Publish(fmt.Sprintf("agent.%s.running", slug), map[string]any{
			"run_id":   run.ID.String(),
			"step_id":  sd.ID,
			"action":   sd.Action,
			"workflow": run.WorkflowName,
		}, "workflow")

		if sd.Agent != "" {
			ag, err := e.registry.Get(sd.Agent)
			if err != nil {
				return e.failRun(ctx, run, step, err)
			}

			prompt := BuildStepPrompt(sd.Action, sd.ID, run.Context)
			result, err := ag.Execute(ctx, sd.Action, prompt, run.Context)
			if err != nil {
				return e.failRun(ctx, run, step, err)
			}

			if result.Structured != nil {
				step.OutputData = result.Structured
			} else {
				step.OutputData = map[string]any{"raw": result.Content}
			}
			step.CostUSD = result.CostUSD
			step.DurationMS = result.DurationMS

			if run.Context == nil {
				run.Context = map[string]any{}
			}
			run.Context[sd.ID] = step.OutputData

			source := fmt.Sprintf("%s:%s", sd.Agent, sd.Action)
			e.persistLeadsFromStep(ctx, sd.Action, step.OutputData, source)

			if e.controlled[sd.Action] {
				decision, err := e.gate.Evaluate(ctx, sd.Agent, sd.Action, step.OutputData, map[string]any{
					"run_id":   run.ID.String(),
					"step_id":  sd.ID,
					"workflow": run.WorkflowName,
				})
				if err != nil {
					return fmt.Errorf("evaluating approval gate for %s: %w", sd.ID, err)
				}
				if !decision.Proceed {
					step.Status = store.StepStatusAwaitingApproval
					step.ApprovalID = decision.ApprovalID
					run.Status = store.RunStatusPausedForApproval
					if err := e.suspend(ctx, run, step); err != nil {
						return err
					}
					event := map[string]any{
						"run_id":   run.ID.String(),
						"step_id":  sd.ID,
						"workflow": run.WorkflowName,
						"reason":   decision.Reason,
					}
					if decision.ApprovalID != nil {
						event["approval_id"] = decision.ApprovalID.String()
					}
					e.bus.Publish("workflow.approval_needed", event, "workflow")
					e.logger.Info("workflow paused for approval",
						"run_id", run.ID, "step", sd.ID, "action", sd.Action, "reason", decision.Reason)
					return nil
				}
			}

			e.bus.Publish(fmt.Sprintf("agent.%s.completed", sd.Agent), map[string]any{
				"run_id":      run.ID.String(),
				"step_id":     sd.ID,
				"action":      sd.Action,
				"cost_usd":    step.CostUSD,
				"duration_ms": step.DurationMS,
			}, "workflow")
		}

		completedAt := time.Now().UTC()
		step.Status = store.StepStatusCompleted
		step.CompletedAt = &completedAt

		// Bounded revision loop: a low review score sends control back to
		// an earlier step instead of advancing.
		if sd.RetryOnLowScore != nil {
			score := overallScore(step.OutputData)
			if score < sd.RetryOnLowScore.Threshold && step.RetryCount < sd.RetryOnLowScore.MaxRevisions {
				step.RetryCount++
				if err := e.store.UpdateStep(ctx, step); err != nil {
					return fmt.Errorf("updating step %s: %w", sd.ID, err)
				}
				run.CurrentStepID = sd.RetryOnLowScore.RetryStep
				if err := e.store.UpdateRun(ctx, run); err != nil {
					return fmt.Errorf("updating run: %w", err)
				}
				e.logger.Info("revision requested",
					"run_id", run.ID, "step", sd.ID, "score", score,
					"retry_step", sd.RetryOnLowScore.RetryStep, "revision", step.RetryCount)
				continue
			}
		}

		if err := e.store.UpdateStep(ctx, step); err != nil {
			return fmt.Errorf("updating step %s: %w", sd.ID, err)
		}
		run.CurrentStepID = sd.Next
		if err := e.store.UpdateRun(ctx, run); err != nil {
			return fmt.Errorf("updating run: %w", err)
		}
	}

	return e.completeRun(ctx, run)
}

// Resume applies a human decision to a run paused on the named step, then
// continues or cancels the run. When the step carries a linked approval
// request with a modified payload, the modification replaces the step's
// output before execution continues.
func (e *Engine) Resume(ctx context.Context, runID uuid.UUID, stepID string, approved bool) (*store.WorkflowRun, error) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != store.RunStatusPausedForApproval {
		return nil, ErrRunNotPaused
	}

	step, err := e.store.GetStep(ctx, runID, stepID)
	if err != nil {
		return nil, err
	}
	if step.Status != store.StepStatusAwaitingApproval {
		return nil, ErrStepNotAwaiting
	}

	if err := e.applyDecision(ctx, run, step, approved); err != nil {
		return nil, err
	}
	return run, nil
}

// ResumeFromApproval resumes or cancels the run whose step is linked to
// the given approval request. Approvals with no linked step are a no-op;
// they gate actions outside any workflow.
func (e *Engine) ResumeFromApproval(ctx context.Context, approvalID uuid.UUID, approved bool) error {
	step, err := e.store.GetStepByApproval(ctx, approvalID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil
		}
		return err
	}

	run, err := e.store.GetRun(ctx, step.RunID)
	if err != nil {
		return err
	}
	if run.Status != store.RunStatusPausedForApproval {
		return nil
	}

	return e.applyDecision(ctx, run, step, approved)
}

func (e *Engine) applyDecision(ctx context.Context, run *store.WorkflowRun, step *store.WorkflowStep, approved bool) error {
	now := time.Now().UTC()

	if !approved {
		step.Status = store.StepStatusFailed
		step.CompletedAt = &now
		if err := e.store.UpdateStep(ctx, step); err != nil {
			return fmt.Errorf("updating step %s: %w", step.StepID, err)
		}
		run.Status = store.RunStatusCancelled
		run.CompletedAt = &now
		if err := e.store.UpdateRun(ctx, run); err != nil {
			return fmt.Errorf("updating run: %w", err)
		}
		e.logger.Info("workflow cancelled", "run_id", run.ID, "step", step.StepID)
		return nil
	}

	if step.ApprovalID != nil {
		approval, err := e.store.GetApproval(ctx, *step.ApprovalID)
		if err == nil && approval.ModifiedPayload != nil {
			step.OutputData = approval.ModifiedPayload
			if run.Context == nil {
				run.Context = map[string]any{}
			}
			run.Context[step.StepID] = approval.ModifiedPayload
		}
	}

	step.Status = store.StepStatusCompleted
	step.CompletedAt = &now
	if err := e.store.UpdateStep(ctx, step); err != nil {
		return fmt.Errorf("updating step %s: %w", step.StepID, err)
	}
	run.Status = store.RunStatusRunning
	if err := e.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	e.logger.Info("workflow resumed", "run_id", run.ID, "step", step.StepID)

	def, ok := e.defs[run.WorkflowName]
	if !ok {
		return e.completeRun(ctx, run)
	}
	sd := def.Step(step.StepID)
	if sd == nil || sd.Next == "" {
		return e.completeRun(ctx, run)
	}

	run.CurrentStepID = sd.Next
	if err := e.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	return e.execute(ctx, run, def)
}

func (e *Engine) suspend(ctx context.Context, run *store.WorkflowRun, step *store.WorkflowStep) error {
	if err := e.store.UpdateStep(ctx, step); err != nil {
		return fmt.Errorf("updating step %s: %w", step.StepID, err)
	}
	if err := e.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	return nil
}

func (e *Engine) completeRun(ctx context.Context, run *store.WorkflowRun) error {
	now := time.Now().UTC()
	run.Status = store.RunStatusCompleted
	run.CurrentStepID = ""
	run.CompletedAt = &now
	if err := e.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	e.bus.Publish(fmt.Sprintf("workflow.%s.completed", run.WorkflowName), map[string]any{
		"run_id": run.ID.String(),
	}, "workflow")
	e.logger.Info("workflow completed", "workflow", run.WorkflowName, "run_id", run.ID)
	return nil
}

// failRun records a step failure, marks the run failed, and stops
// execution. The error is recorded, not returned; callers see the failed
// run state.
func (e *Engine) failRun(ctx context.Context, run *store.WorkflowRun, step *store.WorkflowStep, cause error) error {
	now := time.Now().UTC()
	step.Status = store.StepStatusFailed
	step.ErrorMessage = cause.Error()
	step.CompletedAt = &now
	if err := e.store.UpdateStep(ctx, step); err != nil {
		return fmt.Errorf("updating step %s: %w", step.StepID, err)
	}
	run.Status = store.RunStatusFailed
	run.ErrorMessage = fmt.Sprintf("Step %s failed: %v", step.StepID, cause)
	run.CompletedAt = &now
	if err := e.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	e.logger.Error("workflow step failed", "run_id", run.ID, "step", step.StepID, "error", cause)
	return nil
}

// overallScore extracts the review score from step output. Missing or
// non-numeric values count as passing.
func overallScore(output map[string]any) float64 {
	if output == nil {
		return defaultScore
	}
	switch v := output["overall_score"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return defaultScore
}
