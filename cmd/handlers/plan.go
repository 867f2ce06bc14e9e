package handlers

import (
	"fmt"

	"github.com/spf13/cobra"

	"postforge/internal/assembler"
	"postforge/internal/config"
	"postforge/internal/cost"
	"postforge/internal/pipeline"
	"postforge/internal/visual"
)

// NewPlanCmd creates the plan command
func NewPlanCmd() *cobra.Command {
	var maxPosts int
	var backend string
	var estimate bool

	cmd := &cobra.Command{
		Use:   "plan <niche>",
		Short: "Print the cluster plan and task list without writing posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()
			if cmd.Flags().Changed("max-posts") {
				cfg.Generation.MaxPosts = maxPosts
			}
			if backend != "" {
				cfg.Generation.Backend = backend
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			return runPlan(cmd, cfg, args[0], estimate)
		},
	}

	cmd.Flags().IntVar(&maxPosts, "max-posts", 0, "Maximum number of tasks (default from config)")
	cmd.Flags().StringVar(&backend, "backend", "", "Text backend: gemini or placeholder")
	cmd.Flags().BoolVar(&estimate, "estimate", true, "Print a cost estimate for the planned tasks")
	return cmd
}

func runPlan(cmd *cobra.Command, cfg *config.Config, niche string, estimate bool) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	builder, err := pipeline.FromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	p, err := builder.Build()
	if err != nil {
		return err
	}
	defer p.Close()

	plan, tasks, fallback, err := p.PlanTasks(ctx, niche)
	if err != nil {
		return err
	}

	fmt.Printf("🗺️  Plan for %q: %d clusters, %d tasks", niche, len(plan), len(tasks))
	if fallback {
		fmt.Print(" (fallback plan)")
	}
	fmt.Println()

	cluster := ""
	for _, t := range tasks {
		if t.Cluster != cluster {
			cluster = t.Cluster
			fmt.Printf("\n## %s\n", cluster)
		}
		fmt.Printf("%4d  %-50s %s\n", t.Index, t.Slug, t.Keyword)
	}

	if estimate {
		fmt.Println()
		fmt.Print(cost.EstimateRun(tasks, runShape(cfg)).FormatEstimate())
	}
	return nil
}

// runShape describes a generation run for cost estimation
func runShape(cfg *config.Config) cost.RunShape {
	parts := cfg.Generation.Parts
	if parts < 1 {
		parts = assembler.DefaultParts
	}
	shape := cost.RunShape{
		Model:         cfg.AI.Gemini.Model,
		Parts:         parts,
		ContextWindow: cfg.Generation.ContextWindow,
		// Cover, one outline illustration and one image between each pair of parts
		ImagesPerPost: 1 + 1 + (parts - 1),
		Concurrency:   cfg.Generation.Concurrency,
	}
	if cfg.Generation.ImageBackend == "openai" {
		shape.ImageModel = cfg.AI.OpenAI.Model
		if shape.ImageModel == "" {
			shape.ImageModel = visual.DefaultModel
		}
	}
	return shape
}
