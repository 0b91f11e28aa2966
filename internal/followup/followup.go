// Package followup drives the outreach cadence for leads: a fixed
// four-touch schedule per lead with templated bilingual messages, ending
// in the lead being marked lost if nothing came back.
package followup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/jonathan/agency-automator/internal/prompts"
	"github.com/jonathan/agency-automator/internal/store"
)

const templatesFile = "followups.json"

// ScheduleStep is one touch in the cadence. Day is the offset from the
// initial outreach, not from the previous touch.
type ScheduleStep struct {
	Day     int    `json:"day"`
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

// Schedule is the fixed outreach cadence. A lead's FollowupCount indexes
// into it: count touches completed, Schedule[count] is next.
var Schedule = []ScheduleStep{
	{Day: 0, Type: "initial", Channel: "email+whatsapp"},
	{Day: 3, Type: "followup_1", Channel: "email"},
	{Day: 7, Type: "followup_2", Channel: "whatsapp"},
	{Day: 14, Type: "final", Channel: "email"},
}

// ErrExhausted is returned by Generate once a lead has received every
// scheduled touch.
var ErrExhausted = errors.New("all follow-ups exhausted")

// Followup is one generated touch for a lead.
type Followup struct {
	LeadID       uuid.UUID         `json:"lead_id"`
	BusinessName string            `json:"business_name"`
	Type         string            `json:"type"`
	Number       int               `json:"followup_number"`
	Total        int               `json:"total_followups"`
	Channel      string            `json:"channel"`
	Language     string            `json:"language"`
	Messages     map[string]string `json:"messages"`
	DryRun       bool              `json:"dry_run"`
	NewStage     string            `json:"new_stage,omitempty"`
}

// SequenceEntry is one row of a lead's cadence history.
type SequenceEntry struct {
	Step        int    `json:"step"`
	Day         int    `json:"day"`
	Type        string `json:"type"`
	Channel     string `json:"channel"`
	Status      string `json:"status"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// History is the full cadence status for one lead.
type History struct {
	LeadID         uuid.UUID       `json:"lead_id"`
	BusinessName   string          `json:"business_name"`
	CurrentStage   string          `json:"current_stage"`
	FollowupCount  int             `json:"followup_count"`
	TotalSteps     int             `json:"total_steps"`
	LastFollowupAt string          `json:"last_followup_at,omitempty"`
	AllExhausted   bool            `json:"all_exhausted"`
	Sequence       []SequenceEntry `json:"sequence"`
}

// DailyReport summarizes one sweep of the cadence over all eligible leads.
type DailyReport struct {
	Checked   int         `json:"checked"`
	Generated []*Followup `json:"generated"`
	Errors    []string    `json:"errors"`
}

// Sequencer generates follow-up touches against the store.
type Sequencer struct {
	store  store.Store
	logger *log.Logger
	now    func() time.Time
}

// NewSequencer wires a sequencer to its store.
func NewSequencer(st store.Store, logger *log.Logger) *Sequencer {
	return &Sequencer{store: st, logger: logger, now: time.Now}
}

// Pending returns the leads due for their next touch, highest score
// first. A drafted lead with no touches yet is always due; later touches
// wait for the gap between schedule days to elapse.
func (s *Sequencer) Pending(ctx context.Context) ([]*store.Lead, error) {
	leads, err := s.store.ListLeadsByStage(ctx, store.LeadStageOutreachDrafted, store.LeadStageOutreachSent)
	if err != nil {
		return nil, fmt.Errorf("listing outreach leads: %w", err)
	}

	now := s.now().UTC()
	var pending []*store.Lead
	for _, lead := range leads {
		if lead.FollowupCount >= len(Schedule) {
			continue
		}
		if lead.FollowupCount == 0 {
			if lead.Stage == store.LeadStageOutreachDrafted {
				pending = append(pending, lead)
			}
			continue
		}
		if lead.LastFollowupAt == nil {
			continue
		}
		gap := Schedule[lead.FollowupCount].Day - Schedule[lead.FollowupCount-1].Day
		daysSince := int(now.Sub(*lead.LastFollowupAt).Hours() / 24)
		if daysSince >= gap {
			pending = append(pending, lead)
		}
	}
	return pending, nil
}

// Generate produces the lead's next touch. Unless dryRun is set, the
// lead's cadence counters advance, a drafted lead moves to outreach_sent,
// and a lead whose final touch was just generated moves to lost.
func (s *Sequencer) Generate(ctx context.Context, lead *store.Lead, dryRun bool) (*Followup, error) {
	if lead.FollowupCount >= len(Schedule) {
		return nil, fmt.Errorf("%w for lead %q", ErrExhausted, lead.BusinessName)
	}
	step := Schedule[lead.FollowupCount]

	lang := lead.Language
	if lang != "es" && lang != "pt" {
		lang = "es"
	}
	vars := personalization(lead, lang)

	messages := map[string]string{}
	if strings.Contains(step.Channel, "email") {
		subject, err := template(step.Type, "email_subject", lang)
		if err != nil {
			return nil, err
		}
		body, err := template(step.Type, "email_body", lang)
		if err != nil {
			return nil, err
		}
		messages["email_subject"] = prompts.Format(subject, vars)
		messages["email_body"] = prompts.Format(body, vars)
	}
	if strings.Contains(step.Channel, "whatsapp") {
		wa, err := template(step.Type, "whatsapp", lang)
		if err != nil {
			return nil, err
		}
		messages["whatsapp_message"] = prompts.Format(wa, vars)
	}

	result := &Followup{
		LeadID:       lead.ID,
		BusinessName: lead.BusinessName,
		Type:         step.Type,
		Number:       lead.FollowupCount + 1,
		Total:        len(Schedule),
		Channel:      step.Channel,
		Language:     lang,
		Messages:     messages,
		DryRun:       dryRun,
	}

	if !dryRun {
		now := s.now().UTC()
		lead.FollowupCount++
		lead.LastFollowupAt = &now
		if lead.Stage == store.LeadStageOutreachDrafted {
			lead.Stage = store.LeadStageOutreachSent
		}
		if lead.FollowupCount >= len(Schedule) {
			lead.Stage = store.LeadStageLost
			s.logger.Info("lead marked lost after follow-ups",
				"lead_id", lead.ID, "business", lead.BusinessName)
		}
		if err := s.store.UpdateLead(ctx, lead); err != nil {
			return nil, fmt.Errorf("updating lead: %w", err)
		}
		result.NewStage = lead.Stage
	}

	s.logger.Info("followup generated",
		"lead_id", lead.ID, "type", step.Type, "channel", step.Channel, "dry_run", dryRun)
	return result, nil
}

// History reports the full cadence sequence for a lead.
func (s *Sequencer) History(lead *store.Lead) *History {
	h := &History{
		LeadID:        lead.ID,
		BusinessName:  lead.BusinessName,
		CurrentStage:  lead.Stage,
		FollowupCount: lead.FollowupCount,
		TotalSteps:    len(Schedule),
		AllExhausted:  lead.FollowupCount >= len(Schedule),
	}
	if lead.LastFollowupAt != nil {
		h.LastFollowupAt = lead.LastFollowupAt.Format(time.RFC3339)
	}

	for i, step := range Schedule {
		status := "scheduled"
		switch {
		case i < lead.FollowupCount:
			status = "completed"
		case i == lead.FollowupCount:
			status = "pending"
		}
		if h.AllExhausted && lead.Stage == store.LeadStageLost && i >= lead.FollowupCount {
			status = "skipped"
		}
		entry := SequenceEntry{
			Step:    i + 1,
			Day:     step.Day,
			Type:    step.Type,
			Channel: step.Channel,
			Status:  status,
		}
		if status == "completed" && lead.LastFollowupAt != nil && i == lead.FollowupCount-1 {
			entry.CompletedAt = lead.LastFollowupAt.Format(time.RFC3339)
		}
		h.Sequence = append(h.Sequence, entry)
	}
	return h
}

// RunDaily sweeps all eligible leads and generates every due touch.
// Failures on individual leads are collected, not fatal.
func (s *Sequencer) RunDaily(ctx context.Context) (*DailyReport, error) {
	pending, err := s.Pending(ctx)
	if err != nil {
		return nil, err
	}

	report := &DailyReport{Checked: len(pending)}
	for _, lead := range pending {
		fu, err := s.Generate(ctx, lead, false)
		if err != nil {
			s.logger.Error("followup job error", "lead_id", lead.ID, "error", err)
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", lead.ID, err))
			continue
		}
		report.Generated = append(report.Generated, fu)
	}
	s.logger.Info("daily followups complete",
		"checked", report.Checked, "generated", len(report.Generated), "errors", len(report.Errors))
	return report, nil
}

// template resolves a cadence template by type, field, and language,
// falling back to Spanish.
func template(stepType, field, lang string) (string, error) {
	tpl, err := prompts.Get(templatesFile, fmt.Sprintf("%s.%s.%s", stepType, field, lang))
	if err == nil {
		return tpl, nil
	}
	return prompts.Get(templatesFile, fmt.Sprintf("%s.%s.es", stepType, field))
}
