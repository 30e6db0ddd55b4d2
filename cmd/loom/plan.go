package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/loom/internal/graph"
	"github.com/ShayCichocki/loom/internal/planner"
	"github.com/ShayCichocki/loom/pkg/models"
)

var planFormat string

var planCmd = &cobra.Command{
	Use:   "plan <graph-file>",
	Short: "Show the waves a task graph would run in",
	Long: `Read a task graph from a YAML or JSON file and print the waves the
executor would run it in, assuming no task pauses. Tasks that can never
become ready are listed as blocked.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read graph file: %w", err)
		}
		plan, err := planner.ParsePlan(data)
		if err != nil {
			return err
		}
		preview, err := previewPlan(plan)
		if err != nil {
			return err
		}
		return writePreview(cmd.OutOrStdout(), preview, planFormat)
	},
}

func init() {
	planCmd.Flags().StringVarP(&planFormat, "format", "f", "text", "Output format: text or yaml")
}

// planPreview is the wave layout of a plan.
type planPreview struct {
	Summary string     `yaml:"summary,omitempty"`
	Waves   [][]string `yaml:"waves"`
	Blocked []string   `yaml:"blocked,omitempty"`
	Invalid string     `yaml:"invalid,omitempty"`
}

func previewPlan(plan *models.Plan) (*planPreview, error) {
	invalid := planner.Validate(plan)

	tasks := make([]*models.Task, 0, len(plan.Tasks))
	for _, t := range plan.Tasks {
		if t != nil {
			tasks = append(tasks, t)
		}
	}
	g := graph.New()
	if err := g.Build(tasks); err != nil {
		return nil, err
	}
	waves, blocked := g.Waves()

	preview := &planPreview{Summary: plan.Summary, Waves: waves, Blocked: blocked}
	if invalid != nil {
		preview.Invalid = invalid.Error()
	}
	return preview, nil
}

func writePreview(w io.Writer, p *planPreview, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("encode plan: %w", err)
		}
		return enc.Close()
	case "text":
		if p.Summary != "" {
			fmt.Fprintln(w, p.Summary)
		}
		for i, wave := range p.Waves {
			fmt.Fprintf(w, "wave %d: %s\n", i+1, strings.Join(wave, ", "))
		}
		if len(p.Blocked) > 0 {
			fmt.Fprintf(w, "%s blocked: %s\n", color.New(color.FgRed).Sprint("✗"), strings.Join(p.Blocked, ", "))
		}
		if p.Invalid != "" {
			fmt.Fprintf(w, "%s %s\n", color.New(color.FgYellow).Sprint("⚠"), p.Invalid)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text or yaml)", format)
	}
}
