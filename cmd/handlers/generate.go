package handlers

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"postforge/internal/config"
	"postforge/internal/logger"
	"postforge/internal/pipeline"
	"postforge/internal/render"
	"postforge/internal/store"
)

type generateFlags struct {
	resume       bool
	noPublish    bool
	quiet        bool
	maxPosts     int
	batchSize    int
	concurrency  int
	backend      string
	imageBackend string
	output       string
}

// NewGenerateCmd creates the generate command
func NewGenerateCmd() *cobra.Command {
	flags := &generateFlags{}

	cmd := &cobra.Command{
		Use:   "generate <niche>",
		Short: "Plan, write, link and publish posts for a niche",
		Long: `Generate runs the whole pipeline for one niche: it plans keyword clusters,
writes one post per keyword in batches under a shared concurrency limit,
builds the link graph once every batch has finished, publishes the tree and
writes report.md into the niche directory.

With --resume the stored plan is reused and posts already written by an
earlier run are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, args[0], flags)
		},
	}

	cmd.Flags().BoolVar(&flags.resume, "resume", false, "Reuse the stored plan and skip posts already written")
	cmd.Flags().BoolVar(&flags.noPublish, "no-publish", false, "Skip the publish step")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "Hide step progress")
	cmd.Flags().IntVar(&flags.maxPosts, "max-posts", 0, "Maximum number of posts (default from config)")
	cmd.Flags().IntVar(&flags.batchSize, "batch-size", 0, "Tasks per batch (default from config)")
	cmd.Flags().IntVarP(&flags.concurrency, "concurrency", "c", 0, "Maximum in-flight backend calls (default from config)")
	cmd.Flags().StringVar(&flags.backend, "backend", "", "Text backend: gemini or placeholder")
	cmd.Flags().StringVar(&flags.imageBackend, "image-backend", "", "Image backend: openai or placeholder")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Output directory (default from config)")

	return cmd
}

// applyOverrides copies explicitly set flags over the loaded configuration
func (f *generateFlags) applyOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("max-posts") {
		cfg.Generation.MaxPosts = f.maxPosts
	}
	if cmd.Flags().Changed("batch-size") {
		cfg.Generation.BatchSize = f.batchSize
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Generation.Concurrency = f.concurrency
	}
	if f.backend != "" {
		cfg.Generation.Backend = f.backend
	}
	if f.imageBackend != "" {
		cfg.Generation.ImageBackend = f.imageBackend
	}
	if f.output != "" {
		cfg.Output.Directory = f.output
	}
}

func runGenerate(cmd *cobra.Command, niche string, flags *generateFlags) error {
	cfg := config.Get()
	flags.applyOverrides(cmd, cfg)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	builder, err := pipeline.FromConfig(ctx, cfg)
	if err != nil {
		return err
	}

	ledger, err := store.NewStore(cfg.App.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open run ledger: %w", err)
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			logger.Error("Failed to close run ledger", err)
		}
	}()

	if !flags.quiet {
		builder = builder.WithProgress(os.Stdout)
	}
	p, err := builder.WithLedger(ledger).Build()
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Error("Failed to close backends", err)
		}
	}()

	logger.Info("Starting generation", "niche", niche, "backend", cfg.Generation.Backend,
		"image_backend", cfg.Generation.ImageBackend, "resume", flags.resume)

	result, err := p.Generate(ctx, pipeline.GenerateOptions{
		Niche:       niche,
		Resume:      flags.resume,
		SkipPublish: flags.noPublish,
	})
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}

	fmt.Println(render.TerminalSummary(result.Summary))
	fmt.Printf("\n✅ %d posts written to %s\n", result.Summary.Posts, result.Root)
	fmt.Printf("📄 Report: %s\n", result.ReportPath)
	return nil
}
