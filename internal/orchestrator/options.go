package orchestrator

import (
	"time"

	"github.com/ShayCichocki/loom/internal/agent"
	"github.com/ShayCichocki/loom/internal/memory"
	"github.com/ShayCichocki/loom/internal/planner"
	"github.com/ShayCichocki/loom/internal/platform"
)

// RequiredConfig contains the minimal required configuration for an Orchestrator.
// All fields are required and have no defaults.
type RequiredConfig struct {
	// Planner turns messages into task graphs.
	Planner planner.Planner
	// Registry maps agent kinds to agents.
	Registry *agent.Registry
	// Store holds session contexts.
	Store memory.Store
	// Platform executes tool calls.
	Platform platform.Client
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

// orchestratorOptions holds all optional configuration.
type orchestratorOptions struct {
	suspensions    SuspensionStore
	summarizer     Summarizer
	maxConcurrency int
	retryAttempts  int
	retryDelay     time.Duration
	eventBuffer    int
	logger         *DebugLogger
	now            func() time.Time
}

// WithSuspensions sets where paused runs are kept. Defaults to MemorySuspensions.
func WithSuspensions(s SuspensionStore) Option {
	return func(o *orchestratorOptions) { o.suspensions = s }
}

// WithSummarizer sets the summarizer for finished runs. Defaults to TextSummarizer.
func WithSummarizer(s Summarizer) Option {
	return func(o *orchestratorOptions) { o.summarizer = s }
}

// WithMaxConcurrency bounds the tasks run at once within a wave. 0 means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(o *orchestratorOptions) { o.maxConcurrency = n }
}

// WithRetry sets the total attempts per tool call and the delay between them.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(o *orchestratorOptions) {
		o.retryAttempts = attempts
		o.retryDelay = delay
	}
}

// WithEventBuffer enables progress events with the given channel buffer size.
func WithEventBuffer(n int) Option {
	return func(o *orchestratorOptions) { o.eventBuffer = n }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithClock overrides the time source (mainly for testing).
func WithClock(now func() time.Time) Option {
	return func(o *orchestratorOptions) { o.now = now }
}
