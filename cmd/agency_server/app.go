package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/jonathan/agency-automator/internal/agent"
	"github.com/jonathan/agency-automator/internal/bus"
	"github.com/jonathan/agency-automator/internal/config"
	"github.com/jonathan/agency-automator/internal/db"
	"github.com/jonathan/agency-automator/internal/followup"
	"github.com/jonathan/agency-automator/internal/hitl"
	"github.com/jonathan/agency-automator/internal/llm"
	"github.com/jonathan/agency-automator/internal/store"
	"github.com/jonathan/agency-automator/internal/workflow"
)

// app holds the wired application graph shared by the subcommands.
type app struct {
	cfg       *config.Config
	logger    *log.Logger
	store     store.Store
	database  *db.DB // nil when running on the in-memory store
	bus       *bus.Bus
	gate      *hitl.Gate
	registry  *agent.Registry
	engine    *workflow.Engine
	sequencer *followup.Sequencer
	llmClient llm.Client
}

// buildApp wires config, logging, storage, the event bus, the approval
// gate, the agent roster, the workflow engine, and the follow-up
// sequencer. inMemory forces the in-memory store even when DATABASE_URL
// is set.
func buildApp(ctx context.Context, inMemory bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           level,
	})

	a := &app{cfg: cfg, logger: logger}

	if inMemory || cfg.DatabaseURL == "" {
		logger.Warn("no database configured, state will not survive restarts")
		a.store = store.NewMemoryStore()
	} else {
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		if err := database.Migrate(ctx); err != nil {
			database.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		a.database = database
		a.store = database
	}

	a.bus = bus.New(logger)
	a.gate = hitl.NewGate(a.store, a.bus, logger)
	a.registry = agent.NewRegistry()

	if cfg.GeminiAPIKey != "" {
		client, err := llm.NewClient(ctx, llm.DefaultConfig(), cfg.GeminiAPIKey)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("creating LLM client: %w", err)
		}
		a.llmClient = client
		registerAgents(a.registry, client, logger)
	} else {
		logger.Warn("GEMINI_API_KEY not set, no agents registered")
	}

	defs, err := workflow.LoadDefinitions(cfg.WorkflowsPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("loading workflow definitions: %w", err)
	}
	logger.Info("workflow definitions loaded", "path", cfg.WorkflowsPath, "count", len(defs))

	a.engine = workflow.NewEngine(a.store, a.registry, a.gate, a.bus, defs, logger)
	a.sequencer = followup.NewSequencer(a.store, logger)

	return a, nil
}

// Close releases database and LLM client resources.
func (a *app) Close() {
	if a.llmClient != nil {
		_ = a.llmClient.Close()
	}
	if a.database != nil {
		a.database.Close()
	}
}
