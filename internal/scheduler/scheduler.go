// Package scheduler runs cron-triggered work: workflow definitions with a
// schedule expression, and the daily follow-up sweep.
package scheduler

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"github.com/jonathan/agency-automator/internal/followup"
	"github.com/jonathan/agency-automator/internal/workflow"
)

// Scheduler owns the cron runner. Jobs are registered once at startup
// from the loaded workflow definitions.
type Scheduler struct {
	cron      *cron.Cron
	engine    *workflow.Engine
	sequencer *followup.Sequencer
	logger    *log.Logger
}

// New builds a scheduler around the engine and follow-up sequencer.
func New(engine *workflow.Engine, sequencer *followup.Sequencer, logger *log.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		engine:    engine,
		sequencer: sequencer,
		logger:    logger,
	}
}

// Setup registers cron jobs: one per enabled workflow definition with a
// schedule expression, plus the follow-up sweep when followupSpec is
// non-empty. Definitions with unparseable schedules are skipped with a
// warning; one bad expression must not block the rest.
func (s *Scheduler) Setup(followupSpec string) {
	for name, def := range s.engine.Definitions() {
		if !def.Enabled || def.Schedule == "" {
			continue
		}
		if _, err := cron.ParseStandard(def.Schedule); err != nil {
			s.logger.Warn("skipping workflow with invalid schedule",
				"workflow", name, "schedule", def.Schedule, "error", err)
			continue
		}
		workflowName := name
		if _, err := s.cron.AddFunc(def.Schedule, func() { s.runWorkflow(workflowName) }); err != nil {
			s.logger.Warn("failed to register workflow schedule", "workflow", name, "error", err)
			continue
		}
		s.logger.Info("scheduler registered", "workflow", name, "schedule", def.Schedule)
	}

	if followupSpec != "" {
		if _, err := s.cron.AddFunc(followupSpec, s.runFollowups); err != nil {
			s.logger.Warn("failed to register followup schedule", "schedule", followupSpec, "error", err)
		} else {
			s.logger.Info("scheduler registered", "job", "daily_followups", "schedule", followupSpec)
		}
	}
}

// Jobs returns how many cron jobs are registered.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// Start begins running registered jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", s.Jobs())
}

// Shutdown stops the cron runner and waits for in-flight jobs.
func (s *Scheduler) Shutdown(ctx context.Context) {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runWorkflow(name string) {
	run, err := s.engine.Start(context.Background(), name, nil, "scheduled")
	if err != nil {
		s.logger.Error("scheduled workflow failed", "workflow", name, "error", err)
		return
	}
	s.logger.Info("scheduled workflow triggered", "workflow", name, "run_id", run.ID, "status", run.Status)
}

func (s *Scheduler) runFollowups() {
	report, err := s.sequencer.RunDaily(context.Background())
	if err != nil {
		s.logger.Error("scheduled followups failed", "error", err)
		return
	}
	s.logger.Info("scheduled followups ran",
		"checked", report.Checked, "generated", len(report.Generated), "errors", len(report.Errors))
}
