package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/agency-automator/internal/followup"
	"github.com/jonathan/agency-automator/internal/observability"
)

var followupsDryRun bool

var followupsCmd = &cobra.Command{
	Use:   "followups",
	Short: "Sweep the lead pipeline and generate due follow-up touches",
	RunE:  runFollowupsCmd,
}

func init() {
	followupsCmd.Flags().BoolVar(&followupsDryRun, "dry-run", false, "Preview follow-ups without advancing any lead")
	rootCmd.AddCommand(followupsCmd)
}

func runFollowupsCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	app, err := buildApp(ctx, false)
	if err != nil {
		return err
	}
	defer app.Close()

	printer := observability.NewPrinter(os.Stdout)

	if followupsDryRun {
		leads, err := app.sequencer.Pending(ctx)
		if err != nil {
			return err
		}
		report := &followup.DailyReport{Checked: len(leads)}
		for _, lead := range leads {
			fu, err := app.sequencer.Generate(ctx, lead, true)
			if err != nil {
				report.Errors = append(report.Errors, lead.BusinessName+": "+err.Error())
				continue
			}
			report.Generated = append(report.Generated, fu)
			printer.PrintFollowup(fu)
		}
		printer.PrintDailyReport(report)
		return nil
	}

	report, err := app.sequencer.RunDaily(ctx)
	if err != nil {
		return err
	}
	printer.PrintDailyReport(report)
	return nil
}
