// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/agency-automator/internal/followup"
	"github.com/jonathan/agency-automator/internal/store"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintRun outputs a human-readable summary of a workflow run and its
// steps.
func (p *Printer) PrintRun(run *store.WorkflowRun, steps []*store.WorkflowStep) {
	if run == nil {
		return
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Workflow: %s\n", run.WorkflowName))
	sb.WriteString(fmt.Sprintf("Run:      %s\n", run.ID))
	sb.WriteString(fmt.Sprintf("Status:   %s\n", run.Status))
	sb.WriteString(fmt.Sprintf("Trigger:  %s\n", run.Trigger))
	if run.ErrorMessage != "" {
		msg := run.ErrorMessage
		if len(msg) > 45 {
			msg = msg[:42] + "..."
		}
		sb.WriteString(fmt.Sprintf("Error:    %s\n", msg))
	}

	if len(steps) > 0 {
		sb.WriteString("\nSteps:\n")
		var totalCost float64
		for _, step := range steps {
			sb.WriteString(fmt.Sprintf("  %s %s (%s)\n", stepMark(step.Status), step.StepID, step.Status))
			totalCost += step.CostUSD
		}
		sb.WriteString(fmt.Sprintf("\nTotal cost: $%.4f", totalCost))
	}

	p.printBox("WORKFLOW RUN", strings.TrimSuffix(sb.String(), "\n"))
}

func stepMark(status string) string {
	switch status {
	case store.StepStatusCompleted:
		return "✓"
	case store.StepStatusFailed:
		return "✗"
	case store.StepStatusAwaitingApproval:
		return "⏸"
	case store.StepStatusRunning:
		return "▶"
	default:
		return "·"
	}
}

// PrintApprovals outputs pending approval requests.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintApprovals(approvals []*store.ApprovalRequest) {
	if len(approvals) == 0 {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "✅ NO PENDING APPROVALS")
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d pending:\n\n", len(approvals)))

	count := min(len(approvals), maxItemsToShow)
	for i := 0; i < count; i++ {
		req := approvals[i]
		sb.WriteString(fmt.Sprintf("⚠ %s / %s\n", req.AgentSlug, req.ActionName))
		sb.WriteString(fmt.Sprintf("  %s\n", req.ID))
		if i < count-1 {
			sb.WriteString("\n")
		}
	}

	if len(approvals) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more", len(approvals)-maxItemsToShow))
	}

	p.printBox("PENDING APPROVALS", sb.String())
}

// PrintLeads outputs the lead pipeline, highest score first.
func (p *Printer) PrintLeads(leads []*store.Lead) {
	if len(leads) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Total leads: %d\n\n", len(leads)))

	count := min(len(leads), maxItemsToShow)
	for i := 0; i < count; i++ {
		lead := leads[i]
		name := lead.BusinessName
		if len(name) > 35 {
			name = name[:32] + "..."
		}
		sb.WriteString(fmt.Sprintf("#%d  %s\n", i+1, name))
		sb.WriteString(fmt.Sprintf("    Stage: %s  Score: %d\n", lead.Stage, lead.Score))
		if i < count-1 {
			sb.WriteString("\n")
		}
	}

	if len(leads) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more leads", len(leads)-maxItemsToShow))
	}

	p.printBox("LEAD PIPELINE", sb.String())
}

// PrintDailyReport outputs the result of a follow-up sweep.
func (p *Printer) PrintDailyReport(report *followup.DailyReport) {
	if report == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Leads checked:   %d\n", report.Checked))
	sb.WriteString(fmt.Sprintf("Touches created: %d\n", len(report.Generated)))

	count := min(len(report.Generated), maxItemsToShow)
	if count > 0 {
		sb.WriteString("\n")
	}
	for i := 0; i < count; i++ {
		fu := report.Generated[i]
		sb.WriteString(fmt.Sprintf("• %s → %s (%s, %d/%d)\n",
			fu.BusinessName, fu.Type, fu.Channel, fu.Number, fu.Total))
	}
	if len(report.Generated) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("... and %d more", len(report.Generated)-maxItemsToShow))
	}

	if len(report.Errors) > 0 {
		sb.WriteString(fmt.Sprintf("\nErrors: %d\n", len(report.Errors)))
		for i, msg := range report.Errors {
			if i >= 3 {
				break
			}
			if len(msg) > 45 {
				msg = msg[:42] + "..."
			}
			sb.WriteString(fmt.Sprintf("⚠ %s\n", msg))
		}
	}

	p.printBox("FOLLOW-UP SWEEP", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintFollowup outputs one generated follow-up with its messages.
func (p *Printer) PrintFollowup(fu *followup.Followup) {
	if fu == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Business: %s\n", fu.BusinessName))
	sb.WriteString(fmt.Sprintf("Touch:    %s (%d/%d)\n", fu.Type, fu.Number, fu.Total))
	sb.WriteString(fmt.Sprintf("Channel:  %s\n", fu.Channel))
	sb.WriteString(fmt.Sprintf("Language: %s\n", fu.Language))

	if subject, ok := fu.Messages["email_subject"]; ok {
		if len(subject) > 45 {
			subject = subject[:42] + "..."
		}
		sb.WriteString(fmt.Sprintf("\nSubject:  %s\n", subject))
	}
	if fu.NewStage != "" {
		sb.WriteString(fmt.Sprintf("\nLead moved to: %s", fu.NewStage))
	}

	p.printBox("FOLLOW-UP DRAFT", strings.TrimSuffix(sb.String(), "\n"))
}
