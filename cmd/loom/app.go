package main

import (
	"context"
	"fmt"
	"log"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/loom/internal/agent"
	"github.com/ShayCichocki/loom/internal/api"
	"github.com/ShayCichocki/loom/internal/config"
	"github.com/ShayCichocki/loom/internal/memory"
	"github.com/ShayCichocki/loom/internal/orchestrator"
	"github.com/ShayCichocki/loom/internal/planner"
	"github.com/ShayCichocki/loom/internal/platform"
	"github.com/ShayCichocki/loom/internal/state"
	"github.com/ShayCichocki/loom/pkg/models"
)

// sessionStore is a memory store that can drop expired sessions.
type sessionStore interface {
	memory.Store
	Sweep() int
	Close() error
}

// app holds everything a command needs to run sessions.
type app struct {
	cfg         *config.Config
	db          *state.DB
	store       sessionStore
	suspensions *state.SuspensionStore
	client      *api.Client
	platform    *platform.DryRunClient
	orch        *orchestrator.Orchestrator
	watcher     *config.Watcher
	logger      *orchestrator.DebugLogger
	stopJanitor context.CancelFunc
}

// openStorage opens the database and the session stores without building
// an orchestrator. Used by commands that only inspect state.
func openStorage(cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := state.OpenDriver(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	var store sessionStore
	switch cfg.Memory.Driver {
	case "sqlite":
		store = memory.NewSQLStore(db, memory.WithTTL(cfg.Memory.TTL))
	default:
		store = memory.NewInMemoryStore(memory.WithTTL(cfg.Memory.TTL))
	}

	return &app{
		cfg:         cfg,
		db:          db,
		store:       store,
		suspensions: state.NewSuspensionStore(db),
	}, nil
}

// newApp wires the orchestrator from cfg. graphFile, when set, replaces the
// model planner with one reading the task graph from disk.
func newApp(ctx context.Context, cfg *config.Config, graphFile string) (*app, error) {
	a, err := openStorage(cfg)
	if err != nil {
		return nil, err
	}

	var p planner.Planner
	switch {
	case cfg.Agents.Backend == "claude" || graphFile == "":
		client, err := newClaudeClient(cfg)
		if err != nil && cfg.Agents.Backend == "claude" {
			a.Close()
			return nil, err
		}
		a.client = client
		switch {
		case graphFile != "":
			p = planner.NewFilePlanner(graphFile)
		case err != nil:
			// Resuming a paused session needs no planner.
			p = unavailablePlanner{err: err}
		default:
			p = planner.NewClaudePlanner(client)
		}
	default:
		p = planner.NewFilePlanner(graphFile)
	}

	registry := newRegistry(cfg.Agents.Backend, a.client)
	registry.SetDisabled(cfg.Agents.DisabledKinds())

	if path := config.GetProjectConfigPath(); path != "" && configPath == "" {
		w, err := config.NewWatcher(path, registry.SetDisabled)
		if err != nil {
			log.Printf("[loom] WARNING: not watching %s: %v", path, err)
		} else {
			a.watcher = w
		}
	}

	logger, err := orchestrator.NewDebugLogger(cfg.Logging.DebugLog)
	if err != nil {
		log.Printf("[loom] WARNING: debug log disabled: %v", err)
		logger = orchestrator.NopLogger()
	}
	a.logger = logger

	if cfg.Memory.SweepInterval > 0 {
		janitorCtx, cancel := context.WithCancel(ctx)
		memory.StartJanitor(janitorCtx, cfg.Memory.SweepInterval, a.store.Sweep)
		a.stopJanitor = cancel
	}

	a.platform = platform.NewDryRunClient()
	a.orch = orchestrator.New(
		orchestrator.RequiredConfig{
			Planner:  p,
			Registry: registry,
			Store:    a.store,
			Platform: a.platform,
		},
		orchestrator.WithSuspensions(a.suspensions),
		orchestrator.WithMaxConcurrency(cfg.Orchestrator.MaxConcurrency),
		orchestrator.WithRetry(cfg.Orchestrator.RetryAttempts, cfg.Orchestrator.RetryDelay),
		orchestrator.WithEventBuffer(cfg.Orchestrator.EventBuffer),
		orchestrator.WithLogger(logger),
	)
	return a, nil
}

// unavailablePlanner fails every plan with the reason no planner could be built.
type unavailablePlanner struct {
	err error
}

func (u unavailablePlanner) Plan(ctx context.Context, message, sessionID string) (*models.Plan, error) {
	return nil, fmt.Errorf("no planner available (pass --graph or configure an API key): %w", u.err)
}

// newClaudeClient creates the Anthropic client from cfg.
func newClaudeClient(cfg *config.Config) (*api.Client, error) {
	key, _, err := config.ResolveAPIKey(cfg)
	if err != nil {
		return nil, err
	}
	client, err := api.NewClient(api.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        key,
		UseAWSBedrock: cfg.Anthropic.Bedrock.Enabled,
		AWSRegion:     cfg.Anthropic.Bedrock.Region,
		AWSProfile:    cfg.Anthropic.Bedrock.Profile,
	})
	if err != nil {
		return nil, fmt.Errorf("create API client: %w", err)
	}
	return client, nil
}

// newRegistry registers one agent per known kind for the given backend.
func newRegistry(backend string, completer api.Completer) *agent.Registry {
	registry := agent.NewRegistry()
	for _, kind := range models.AllKinds() {
		if backend == "claude" {
			registry.Register(kind, agent.NewClaudeAgent(kind, completer))
			continue
		}
		registry.Register(kind, agent.NewDeclarativeAgent(kind))
	}
	return registry
}

// Close releases everything the app opened.
func (a *app) Close() error {
	if a.stopJanitor != nil {
		a.stopJanitor()
	}
	if a.orch != nil {
		a.orch.Close()
	}
	if a.watcher != nil {
		a.watcher.Close()
	}
	if a.logger != nil {
		a.logger.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	return a.db.Close()
}
