package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/ShayCichocki/loom/internal/orchestrator"
)

// watchEvents prints events until the channel closes. The returned channel
// is closed once every event has been printed.
func watchEvents(events <-chan orchestrator.Event) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if symbol, msg, attr, ok := describeEvent(ev); ok {
				printStatus(symbol, msg, attr)
			}
		}
	}()
	return done
}

// describeEvent renders an event as a status line. ok is false for events
// that are not shown.
func describeEvent(ev orchestrator.Event) (symbol, message string, attr color.Attribute, ok bool) {
	switch ev.Type {
	case orchestrator.EventWaveStarted:
		return "→", fmt.Sprintf("wave %d: %s", ev.Wave, ev.Message), color.FgCyan, true
	case orchestrator.EventTaskCompleted:
		return "✓", fmt.Sprintf("%s (%s): %s", ev.TaskID, ev.Agent, ev.Message), color.FgGreen, true
	case orchestrator.EventTaskFailed:
		return "✗", fmt.Sprintf("%s (%s): %s", ev.TaskID, ev.Agent, ev.Message), color.FgRed, true
	case orchestrator.EventTaskPaused:
		return "?", fmt.Sprintf("%s (%s) needs input", ev.TaskID, ev.Agent), color.FgYellow, true
	case orchestrator.EventTaskSkipped:
		return "-", fmt.Sprintf("%s (%s) skipped, kind disabled", ev.TaskID, ev.Agent), color.FgHiBlack, true
	case orchestrator.EventActionSucceeded:
		return "✓", fmt.Sprintf("%s %s", ev.FunctionName, attemptsNote(ev.Attempts)), color.FgGreen, true
	case orchestrator.EventActionFailed:
		return "✗", fmt.Sprintf("%s %s: %s", ev.FunctionName, attemptsNote(ev.Attempts), ev.Error), color.FgRed, true
	default:
		return "", "", 0, false
	}
}

func attemptsNote(n int) string {
	if n == 1 {
		return "(1 attempt)"
	}
	return fmt.Sprintf("(%d attempts)", n)
}

// printTurn prints the outcome of one turn.
func printTurn(turn *orchestrator.Turn) {
	fmt.Println()
	if turn.Paused {
		printStatus("?", fmt.Sprintf("Task %s needs input: %s", turn.Pending.TaskID, turn.Pending.Prompt), color.FgYellow)
		if len(turn.Pending.Missing) > 0 {
			fmt.Printf("  missing: %s\n", strings.Join(turn.Pending.Missing, ", "))
		}
		fmt.Printf("  answer with: loom resume %s \"<reply>\"\n", turn.SessionID)
		return
	}

	failed := 0
	for _, ex := range turn.Executions {
		if !ex.Success {
			failed++
		}
	}
	if failed > 0 {
		printStatus("⚠", fmt.Sprintf("%d of %d action(s) failed", failed, len(turn.Executions)), color.FgYellow)
	} else {
		printStatus("✓", fmt.Sprintf("%d action(s) executed", len(turn.Executions)), color.FgGreen)
	}
	fmt.Println(turn.Summary)
	fmt.Printf("session: %s\n", turn.SessionID)
}
