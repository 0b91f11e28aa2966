package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/agency-automator/internal/observability"
)

var (
	runContextJSON string
	runInMemory    bool
)

var runCmd = &cobra.Command{
	Use:   "run <workflow>",
	Short: "Run one workflow to completion or its first approval pause",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflow,
}

func init() {
	runCmd.Flags().StringVar(&runContextJSON, "context", "", "Initial context as a JSON object")
	runCmd.Flags().BoolVar(&runInMemory, "memory", false, "Use the in-memory store instead of the database")
	rootCmd.AddCommand(runCmd)
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var initialContext map[string]any
	if runContextJSON != "" {
		if err := json.Unmarshal([]byte(runContextJSON), &initialContext); err != nil {
			return fmt.Errorf("parsing --context: %w", err)
		}
	}

	app, err := buildApp(ctx, runInMemory)
	if err != nil {
		return err
	}
	defer app.Close()

	run, err := app.engine.Start(ctx, args[0], initialContext, "manual")
	if err != nil {
		return err
	}
	app.bus.Wait()

	steps, err := app.store.ListSteps(ctx, run.ID)
	if err != nil {
		return err
	}

	printer := observability.NewPrinter(os.Stdout)
	printer.PrintRun(run, steps)

	pending, err := app.store.ListApprovals(ctx, "pending", 50)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		printer.PrintApprovals(pending)
	}

	return nil
}
