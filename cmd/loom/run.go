package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/loom/internal/orchestrator"
	"github.com/ShayCichocki/loom/internal/tui"
)

var (
	runSession     string
	runGraphFile   string
	runInteractive bool
)

var runCmd = &cobra.Command{
	Use:   "run <message>",
	Short: "Plan and run a message",
	Long: `Plan a message into a task graph and run it.

The graph comes from the configured model planner, or from a YAML/JSON file
with --graph. When a task needs clarification the run pauses; answer it with
'loom resume', or pass --interactive to be prompted inline.

Tool calls are executed against a dry-run platform client that records each
call and returns a generated id.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMessage(cmd.Context(), strings.Join(args, " "))
	},
}

func init() {
	runCmd.Flags().StringVarP(&runSession, "session", "s", "", "Session ID (default: new session)")
	runCmd.Flags().StringVarP(&runGraphFile, "graph", "g", "", "Read the task graph from a file instead of planning")
	runCmd.Flags().BoolVarP(&runInteractive, "interactive", "i", false, "Prompt for clarifications inline")
}

func runMessage(ctx context.Context, message string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, runGraphFile)
	if err != nil {
		return err
	}
	done := watchEvents(a.orch.Events())
	defer func() {
		a.Close()
		<-done
	}()

	turn, err := a.orch.Handle(ctx, runSession, message)
	if err != nil {
		return describeError(err)
	}

	if runInteractive {
		turn, err = answerInteractively(ctx, a.orch, turn)
		if err != nil {
			return describeError(err)
		}
	}

	printTurn(turn)
	return nil
}

// answerInteractively prompts for each clarification and resumes until the
// run finishes or the user cancels a prompt.
func answerInteractively(ctx context.Context, orch *orchestrator.Orchestrator, turn *orchestrator.Turn) (*orchestrator.Turn, error) {
	for turn.Paused {
		reply, ok, err := tui.AskClarification(turn.Pending)
		if err != nil {
			return nil, err
		}
		if !ok {
			return turn, nil
		}
		turn, err = orch.Resume(ctx, turn.SessionID, reply)
		if err != nil {
			return nil, err
		}
	}
	return turn, nil
}

// describeError marks structural failures so they read differently from
// ordinary errors.
func describeError(err error) error {
	if orchestrator.IsStructural(err) {
		printStatus("✗", "run aborted", color.FgRed)
		return fmt.Errorf("task graph: %w", err)
	}
	return err
}
