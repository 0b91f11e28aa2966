package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/agency-automator/internal/scheduler"
	"github.com/jonathan/agency-automator/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server and the workflow scheduler",
	Long:  "Start an HTTP server that exposes workflow, approval, lead, and follow-up endpoints, plus the cron scheduler for enabled workflows and the daily follow-up sweep.",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, false)
	if err != nil {
		return err
	}
	defer app.Close()

	port := app.cfg.Port
	if servePort != 0 {
		port = servePort
	}

	srv := server.New(server.Config{
		Port:      port,
		Store:     app.store,
		Engine:    app.engine,
		Gate:      app.gate,
		Sequencer: app.sequencer,
		Bus:       app.bus,
		Logger:    app.logger,
	})

	sched := scheduler.New(app.engine, app.sequencer, app.logger)
	sched.Setup(app.cfg.FollowupSchedule)
	sched.Start()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		app.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		sched.Shutdown(shutdownCtx)
		app.bus.Wait()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
