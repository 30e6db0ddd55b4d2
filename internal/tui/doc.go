// Package tui provides the terminal prompts loom shows while a run is paused.
//
// ClarificationPrompt renders a task's clarification request with a single
// input line. Enter submits a non-empty reply; Esc or Ctrl+C cancels.
//
// Usage:
//
//	reply, ok, err := tui.AskClarification(turn.Pending)
//	if err != nil || !ok {
//	    return err
//	}
//	turn, err = orch.Resume(ctx, turn.SessionID, reply)
package tui
