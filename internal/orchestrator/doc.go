// Package orchestrator executes task graphs produced by a planner.
//
// The package provides:
//   - GraphExecutor: runs tasks in dependency waves, fanning each wave out
//     concurrently, and stops after a wave in which a task asked for
//     clarification
//   - Resumer: re-runs a paused task with the user's reply and continues the
//     remaining graph
//   - ActionExecutor: runs every produced tool call against the platform one
//     at a time, in order, with bounded retry
//   - Orchestrator: ties planning, execution, suspension and session
//     bookkeeping together for one user turn
//
// Task and tool call failures are captured into results. Only structural
// failures (a dependency cycle, an unknown resume target) are returned as
// errors.
//
// Example usage:
//
//	registry := agent.NewRegistry()
//	registry.Register(models.KindObject, agent.NewDeclarativeAgent(models.KindObject))
//	orch := orchestrator.New(orchestrator.RequiredConfig{
//		Planner:  planner.NewFilePlanner("graph.yaml"),
//		Registry: registry,
//		Store:    memory.NewInMemoryStore(),
//		Platform: platform.NewDryRunClient(),
//	})
//	turn, err := orch.Handle(ctx, "", "build an invoice tracker")
package orchestrator
