package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"postforge/internal/assembler"
	"postforge/internal/backend"
	"postforge/internal/core"
	"postforge/internal/executor"
	"postforge/internal/linkgraph"
	"postforge/internal/logger"
	"postforge/internal/planner"
	"postforge/internal/publish"
	"postforge/internal/render"
	"postforge/internal/store"
)

// Pipeline orchestrates niche generation: plan, batched assembly, linking,
// publishing and reporting
type Pipeline struct {
	// Core components
	generator backend.Generator
	images    backend.ImageGenerator
	executor  *executor.Executor
	linker    LinkBuilder
	publisher publish.Publisher
	ledger    Ledger // Optional

	// Configuration
	config   *Config
	progress io.Writer
}

// Config holds pipeline configuration
type Config struct {
	// Output settings
	OutputDir string

	// Planning settings
	Clusters           int
	KeywordsPerCluster int
	MaxPosts           int

	// Processing settings
	BatchSize     int
	Concurrency   int
	CallTimeout   time.Duration
	Parts         int
	ContextWindow int
	Failure       assembler.FailurePolicy

	// Now stamps post dates; tests pin it
	Now func() time.Time
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		OutputDir:          "sites",
		Clusters:           10,
		KeywordsPerCluster: 10,
		MaxPosts:           1000,
		BatchSize:          20,
		Concurrency:        4,
		CallTimeout:        2 * time.Minute,
		Parts:              assembler.DefaultParts,
		ContextWindow:      assembler.DefaultContextWindow,
		Failure:            assembler.DefaultFailurePolicy(),
		Now:                time.Now,
	}
}

// NewPipeline creates a new pipeline with all dependencies
func NewPipeline(
	generator backend.Generator,
	images backend.ImageGenerator,
	linker LinkBuilder,
	publisher publish.Publisher,
	ledger Ledger,
	config *Config,
) *Pipeline {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Pipeline{
		generator: generator,
		images:    images,
		executor:  executor.New(config.Concurrency, executor.WithCallTimeout(config.CallTimeout)),
		linker:    linker,
		publisher: publisher,
		ledger:    ledger,
		config:    config,
		progress:  io.Discard,
	}
}

// WithProgress sets where step-by-step progress is printed
func (p *Pipeline) WithProgress(w io.Writer) *Pipeline {
	if w == nil {
		w = io.Discard
	}
	p.progress = w
	return p
}

// Executor exposes the shared admission control, mainly for instrumentation
func (p *Pipeline) Executor() *executor.Executor {
	return p.executor
}

// Close releases backend resources
func (p *Pipeline) Close() error {
	var errs []error
	for _, c := range []any{p.generator, p.images} {
		if closer, ok := c.(interface{ Close() error }); ok {
			errs = append(errs, closer.Close())
		}
	}
	return errors.Join(errs...)
}

// GenerateOptions configures one generation run
type GenerateOptions struct {
	Niche       string
	Resume      bool // Reuse the stored plan and skip posts already written
	SkipPublish bool
}

// GenerateResult contains the output of a generation run
type GenerateResult struct {
	Root       string // Niche directory
	ReportPath string
	Posts      []string // Paths written in this run
	Summary    render.RunSummary
}

// NicheRoot is the directory of a niche under the output directory
func NicheRoot(outputDir, niche string) string {
	return filepath.Join(outputDir, core.Slugify(niche))
}

// PlanTasks produces the plan and its flattened task list without generating anything
func (p *Pipeline) PlanTasks(ctx context.Context, niche string) (core.Plan, []core.Task, bool, error) {
	if niche == "" {
		return nil, nil, false, fmt.Errorf("niche is required")
	}
	var plan core.Plan
	var fallback bool
	err := p.executor.Run(ctx, "plan", func(ctx context.Context) error {
		plan, fallback = planner.EnsurePlan(ctx, p.generator, niche, p.planOptions())
		return ctx.Err()
	})
	if err != nil {
		return nil, nil, false, err
	}
	return plan, planner.Flatten(plan, p.config.MaxPosts), fallback, nil
}

// Generate executes the full generation pipeline for one niche
func (p *Pipeline) Generate(ctx context.Context, opts GenerateOptions) (*GenerateResult, error) {
	if opts.Niche == "" {
		return nil, fmt.Errorf("niche is required")
	}

	startTime := time.Now()
	root := NicheRoot(p.config.OutputDir, opts.Niche)
	summary := render.RunSummary{
		Niche:        opts.Niche,
		Backend:      p.generator.Name(),
		ImageBackend: p.images.Name(),
		OutputDir:    root,
		StartedAt:    startTime,
	}

	var runID string
	if p.ledger != nil {
		run, err := p.ledger.StartRun(opts.Niche, summary.Backend, summary.ImageBackend)
		if err != nil {
			return nil, fmt.Errorf("failed to start run: %w", err)
		}
		runID = run.ID
		summary.RunID = runID
	}
	log := logger.Get().With("niche", opts.Niche, "run_id", runID)

	result, err := p.generate(ctx, opts, root, &summary, log)
	summary.Duration = time.Since(startTime)

	if p.ledger != nil {
		status := store.RunCompleted
		if err != nil {
			status = store.RunFailed
		}
		if ferr := p.ledger.FinishRun(runID, status, summary.Posts, len(summary.Skipped), err); ferr != nil {
			log.Warn("Failed to record run result", "error", ferr.Error())
		}
	}
	if err != nil {
		return nil, err
	}

	result.Summary = summary
	return result, nil
}

func (p *Pipeline) generate(ctx context.Context, opts GenerateOptions, root string, summary *render.RunSummary, log *slog.Logger) (*GenerateResult, error) {
	// Step 1: Plan
	fmt.Fprintf(p.progress, "🗺️  Step 1/5: Planning clusters for %q...\n", opts.Niche)
	plan, fallback, err := p.resolvePlan(ctx, opts)
	if err != nil {
		return nil, err
	}
	tasks := planner.Flatten(plan, p.config.MaxPosts)
	summary.FallbackPlan = fallback
	summary.Clusters = len(plan)
	summary.Planned = len(tasks)
	fmt.Fprintf(p.progress, "   ✓ %d clusters, %d tasks\n\n", len(plan), len(tasks))

	if opts.Resume {
		tasks, summary.Resumed, err = p.pendingTasks(opts.Niche, root, tasks)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(p.progress, "   • Resuming: %d already written, %d pending\n\n", summary.Resumed, len(tasks))
	}

	// Step 2: Assemble posts batch by batch
	fmt.Fprintf(p.progress, "✍️  Step 2/5: Generating posts...\n")
	asm := assembler.New(p.generator, p.images, p.executor, assembler.Options{
		Niche:         opts.Niche,
		Root:          root,
		Parts:         p.config.Parts,
		ContextWindow: p.config.ContextWindow,
		Failure:       p.config.Failure,
		Now:           p.config.Now,
	})

	result := &GenerateResult{Root: root}
	batches := planner.Batches(tasks, p.config.BatchSize)
	for i, batch := range batches {
		outcomes, err := p.runBatch(ctx, asm, batch, summary.RunID, opts.Niche)
		for _, out := range outcomes {
			switch out.Status {
			case assembler.StatusDone:
				summary.Posts++
				result.Posts = append(result.Posts, out.Path)
			case assembler.StatusSkipped:
				summary.Skipped = append(summary.Skipped, render.SkippedTask{Slug: out.Task.Slug, Stage: string(out.Stage), Reason: out.Reason})
			}
			summary.Images += out.Images
			summary.FallbackImages += out.FallbackImages
			summary.SkippedImages += out.SkippedImages
		}
		if err != nil {
			return nil, fmt.Errorf("batch %d/%d: %w", i+1, len(batches), err)
		}
		log.Info("Batch complete", "batch", i+1, "batches", len(batches), "posts", summary.Posts)
		fmt.Fprintf(p.progress, "   ✓ Batch %d/%d complete (%d posts so far)\n", i+1, len(batches), summary.Posts)
	}
	fmt.Fprintf(p.progress, "   ✓ %d posts written, %d skipped\n\n", summary.Posts, len(summary.Skipped))

	// Step 3: Link graph, only after every batch has finished
	fmt.Fprintf(p.progress, "🔗 Step 3/5: Building link graph...\n")
	if _, err := os.Stat(linkgraph.PostsDir(root)); os.IsNotExist(err) {
		fmt.Fprintf(p.progress, "   • No posts to link\n\n")
	} else {
		linkResult, err := p.linker.Build(ctx, root)
		if err != nil {
			return nil, fmt.Errorf("failed to build link graph: %w", err)
		}
		summary.Linked = linkResult.Linked
		summary.Unchanged = linkResult.Unchanged
		summary.LinkSkipped = linkResult.Skipped
		fmt.Fprintf(p.progress, "   ✓ %d linked, %d unchanged\n\n", linkResult.Linked, linkResult.Unchanged)
	}

	// Step 4: Report, written before publishing so the published tree carries it
	fmt.Fprintf(p.progress, "📊 Step 4/5: Writing report...\n")
	summary.Duration = time.Since(summary.StartedAt)
	reportPath, err := render.WriteReport(*summary, root)
	if err != nil {
		return nil, err
	}
	result.ReportPath = reportPath
	fmt.Fprintf(p.progress, "   ✓ %s\n\n", reportPath)

	// Step 5: Publish
	if opts.SkipPublish || p.publisher == nil {
		fmt.Fprintf(p.progress, "⏭️  Step 5/5: Skipping publish\n\n")
	} else {
		fmt.Fprintf(p.progress, "🚀 Step 5/5: Publishing with %s...\n", p.publisher.Name())
		url, err := p.publisher.Publish(ctx, core.Slugify(opts.Niche), root)
		if err != nil {
			return nil, fmt.Errorf("failed to publish: %w", err)
		}
		summary.PublishURL = url
		fmt.Fprintf(p.progress, "   ✓ %s\n\n", url)
	}

	return result, nil
}

func (p *Pipeline) planOptions() core.PlanOptions {
	return core.PlanOptions{Clusters: p.config.Clusters, KeywordsPerCluster: p.config.KeywordsPerCluster}
}

// resolvePlan reuses the stored plan when resuming, otherwise asks the generator
func (p *Pipeline) resolvePlan(ctx context.Context, opts GenerateOptions) (core.Plan, bool, error) {
	if opts.Resume && p.ledger != nil {
		plan, fallback, err := p.ledger.GetPlan(opts.Niche)
		if err != nil {
			return nil, false, err
		}
		if plan.Valid() {
			logger.Info("Reusing stored plan", "niche", opts.Niche, "clusters", len(plan))
			return plan, fallback, nil
		}
	}

	plan, _, fallback, err := p.PlanTasks(ctx, opts.Niche)
	if err != nil {
		return nil, false, err
	}
	if p.ledger != nil {
		if err := p.ledger.SavePlan(opts.Niche, plan, fallback); err != nil {
			return nil, false, fmt.Errorf("failed to save plan: %w", err)
		}
	}
	return plan, fallback, nil
}

// pendingTasks drops tasks recorded as done whose post still exists
func (p *Pipeline) pendingTasks(niche, root string, tasks []core.Task) ([]core.Task, int, error) {
	if p.ledger == nil {
		return tasks, 0, nil
	}
	done, err := p.ledger.CompletedSlugs(niche)
	if err != nil {
		return nil, 0, err
	}

	pending := make([]core.Task, 0, len(tasks))
	resumed := 0
	for _, t := range tasks {
		if done[t.Slug] {
			if _, err := os.Stat(assembler.PostPath(root, t.Slug)); err == nil {
				resumed++
				continue
			}
		}
		pending = append(pending, t)
	}
	return pending, resumed, nil
}

// runBatch fans the tasks of one batch out; backend calls stay bounded by the
// executor. A failing task does not cancel its siblings: the batch drains and
// the first error is returned afterwards.
func (p *Pipeline) runBatch(ctx context.Context, asm *assembler.Assembler, batch []core.Task, runID, niche string) ([]assembler.Outcome, error) {
	var g errgroup.Group

	var mu sync.Mutex
	outcomes := make([]assembler.Outcome, 0, len(batch))

	for _, task := range batch {
		g.Go(func() error {
			out, err := asm.Assemble(ctx, task)
			p.record(runID, niche, task, out, err)
			if err != nil {
				return err
			}
			mu.Lock()
			outcomes = append(outcomes, out)
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	return outcomes, err
}

func (p *Pipeline) record(runID, niche string, task core.Task, out assembler.Outcome, err error) {
	if p.ledger == nil {
		return
	}
	rec := store.TaskRecord{
		Niche:   niche,
		Slug:    task.Slug,
		RunID:   runID,
		Cluster: task.Cluster,
		Keyword: task.Keyword,
		Status:  store.TaskDone,
	}
	switch {
	case err != nil:
		rec.Status = store.TaskFailed
		rec.Reason = err.Error()
		var stageErr *assembler.StageError
		if errors.As(err, &stageErr) {
			rec.Stage = string(stageErr.Stage)
		}
	case out.Status == assembler.StatusSkipped:
		rec.Status = store.TaskSkipped
		rec.Stage = string(out.Stage)
		rec.Reason = out.Reason
	}
	if rerr := p.ledger.RecordTask(rec); rerr != nil {
		logger.Warn("Failed to record task", "slug", task.Slug, "error", rerr.Error())
	}
}
