package main

import (
	"context"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
)

var resumeInteractive bool

var resumeCmd = &cobra.Command{
	Use:   "resume <session> <reply>",
	Short: "Answer a paused session's clarification",
	Long: `Answer the clarification a paused session is waiting on and continue
its run. The reply is handed to the task that asked; the run then goes on
with the remaining tasks.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resumeSession(cmd.Context(), args[0], strings.Join(args[1:], " "))
	},
}

func init() {
	resumeCmd.Flags().BoolVarP(&resumeInteractive, "interactive", "i", false, "Prompt for further clarifications inline")
	resumeCmd.Flags().StringVarP(&runGraphFile, "graph", "g", "", "Graph file the session was started with")
}

func resumeSession(ctx context.Context, sessionID, reply string) error {
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

	turn, err := a.orch.Resume(ctx, sessionID, reply)
	if err != nil {
		return describeError(err)
	}
	if resumeInteractive {
		turn, err = answerInteractively(ctx, a.orch, turn)
		if err != nil {
			return describeError(err)
		}
	}

	printTurn(turn)
	return nil
}
