package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and reset sessions",
	Long: `Inspect and reset session state.

Session contexts live in the configured memory store. The default sqlite
driver keeps them between runs; with memory.driver set to memory they only
exist for the life of one command.`,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session>",
	Short: "Print a session's context and pending clarification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		sc, err := a.store.Get(ctx, args[0])
		if err != nil {
			return err
		}
		sus, err := a.suspensions.Load(ctx, args[0])
		if err != nil {
			return err
		}

		view := map[string]any{"context": sc}
		if sus != nil {
			view["suspension"] = sus
		}
		return writeYAML(cmd.OutOrStdout(), view)
	},
}

var sessionResetCmd = &cobra.Command{
	Use:   "reset <session>",
	Short: "Clear a session's context and any paused run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if err := a.store.Reset(ctx, args[0]); err != nil {
			return err
		}
		if err := a.suspensions.Delete(ctx, args[0]); err != nil {
			return err
		}
		printStatus("✓", fmt.Sprintf("Session %s reset", args[0]), color.FgGreen)
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions waiting on a clarification",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ids, err := a.suspensions.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No paused sessions")
			return nil
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionResetCmd)
	sessionCmd.AddCommand(sessionListCmd)
}

// writeYAML renders v as YAML using its JSON field names.
func writeYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode session: %w", err)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return enc.Close()
}
