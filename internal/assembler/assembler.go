// Package assembler turns one planned task into a finished post on disk.
//
// Every backend call goes through the shared executor. Content parts are
// produced strictly in order because each part sees the tail of the ones
// before it.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"postforge/internal/backend"
	"postforge/internal/core"
	"postforge/internal/document"
	"postforge/internal/executor"
	"postforge/internal/logger"
	"postforge/internal/placeholder"
)

const (
	// DefaultParts is the number of sequential content parts per post.
	DefaultParts = 3
	// DefaultContextWindow is the continuity context passed to later parts, in runes.
	DefaultContextWindow = 6000
	// DateFormat is the frontmatter date layout.
	DateFormat = "2006-01-02"

	partSeparator = "\n\n"
)

// Options configures an Assembler.
type Options struct {
	Niche         string
	Root          string // Niche directory holding content/ and static/
	Parts         int
	ContextWindow int
	Failure       FailurePolicy
	Now           func() time.Time
}

// Assembler builds posts for a single niche.
type Assembler struct {
	gen      backend.Generator
	img      backend.ImageGenerator
	fallback backend.ImageGenerator
	exec     *executor.Executor
	opts     Options
}

// New creates an Assembler. Zero-valued options take their defaults.
func New(gen backend.Generator, img backend.ImageGenerator, exec *executor.Executor, opts Options) *Assembler {
	if opts.Parts < 1 {
		opts.Parts = DefaultParts
	}
	if opts.ContextWindow < 1 {
		opts.ContextWindow = DefaultContextWindow
	}
	if opts.Failure == (FailurePolicy{}) {
		opts.Failure = DefaultFailurePolicy()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Assembler{
		gen:      gen,
		img:      img,
		fallback: placeholder.NewImageGenerator(0),
		exec:     exec,
		opts:     opts,
	}
}

// WithFallbackImages replaces the generator used when an image fails under
// the fallback policy.
func (a *Assembler) WithFallbackImages(img backend.ImageGenerator) *Assembler {
	a.fallback = img
	return a
}

// Status is the final state of one task.
type Status string

const (
	StatusDone    Status = "done"
	StatusSkipped Status = "skipped"
)

// Outcome describes what happened to one task.
type Outcome struct {
	Task           core.Task
	Status         Status
	Path           string
	Stage          Stage  // Failing stage for skipped tasks
	Reason         string // Failure message for skipped tasks
	Images         int    // Images referenced by the post, cover included
	FallbackImages int    // Images replaced by placeholders
	SkippedImages  int    // Images dropped under the skip policy
}

// Assemble produces and writes the post for task. A non-nil error means the
// run must abort; recoverable failures are reported through Outcome.
func (a *Assembler) Assemble(ctx context.Context, task core.Task) (Outcome, error) {
	out := Outcome{Task: task, Path: PostPath(a.opts.Root, task.Slug)}
	log := logger.Get().With("niche", a.opts.Niche, "slug", task.Slug)

	meta, err := a.metadata(ctx, task)
	if err != nil {
		return a.fail(out, StageMetadata, a.opts.Failure.Metadata, err)
	}

	outline, err := executor.Do(ctx, a.exec, "outline", func(ctx context.Context) (core.Outline, error) {
		return a.gen.ProduceOutline(ctx, a.opts.Niche, task.Keyword)
	})
	if err != nil {
		return a.fail(out, StageOutline, a.opts.Failure.Outline, err)
	}

	parts, err := a.contentParts(ctx, task, outline)
	if err != nil {
		return a.fail(out, StageContent, a.opts.Failure.Content, err)
	}

	body, cover, err := a.compose(ctx, task, meta.Title, outline, parts, &out)
	if err != nil {
		return a.fail(out, StageImage, a.opts.Failure.Image, err)
	}

	front := core.Frontmatter{
		Title:       meta.Title,
		Slug:        task.Slug,
		Date:        a.opts.Now().Format(DateFormat),
		Description: meta.Description,
		Keywords:    core.MergeKeywords([]string{task.Keyword, a.opts.Niche}, meta.RelatedTerms),
		CoverImage:  cover,
		Cluster:     task.Cluster,
	}

	doc, err := document.New(front, body)
	if err != nil {
		return out, fmt.Errorf("failed to build document %s: %w", task.Slug, err)
	}
	doc.Path = out.Path
	if err := doc.Save(); err != nil {
		return out, fmt.Errorf("failed to write %s: %w", task.Slug, err)
	}

	out.Status = StatusDone
	log.Debug("Post written", "path", out.Path, "images", out.Images, "fallback_images", out.FallbackImages)
	return out, nil
}

func (a *Assembler) metadata(ctx context.Context, task core.Task) (core.Metadata, error) {
	meta, err := executor.Do(ctx, a.exec, "metadata", func(ctx context.Context) (core.Metadata, error) {
		return a.gen.ProduceMetadata(ctx, a.opts.Niche, task.Keyword)
	})
	if err != nil {
		return core.Metadata{}, err
	}
	if strings.TrimSpace(meta.Title) == "" {
		return core.Metadata{}, fmt.Errorf("metadata for %q has no title: %w", task.Keyword, backend.ErrEmptyResponse)
	}
	meta.Description = backend.TruncateDescription(meta.Description)
	if meta.Description != "" {
		return meta, nil
	}

	desc, err := executor.Do(ctx, a.exec, "short description", func(ctx context.Context) (string, error) {
		return a.gen.ProduceShortDescription(ctx, meta.Title, a.opts.Niche, task.Keyword)
	})
	if err != nil {
		return core.Metadata{}, err
	}
	meta.Description = backend.TruncateDescription(desc)
	return meta, nil
}

func (a *Assembler) contentParts(ctx context.Context, task core.Task, outline core.Outline) ([]string, error) {
	parts := make([]string, 0, a.opts.Parts)
	for k := 1; k <= a.opts.Parts; k++ {
		req := backend.PartRequest{
			Niche:    a.opts.Niche,
			Keyword:  task.Keyword,
			Outline:  outline,
			Index:    k,
			Total:    a.opts.Parts,
			Previous: ContextWindow(parts, a.opts.ContextWindow),
		}
		part, err := executor.Do(ctx, a.exec, fmt.Sprintf("content part %d", k), func(ctx context.Context) (string, error) {
			return a.gen.ProduceContentPart(ctx, req)
		})
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(part) == "" {
			return nil, fmt.Errorf("content part %d: %w", k, backend.ErrEmptyResponse)
		}
		parts = append(parts, strings.TrimSpace(part))
	}
	return parts, nil
}

// image produces one image and reports whether a file now exists at path.
// Failures are resolved by the image policy; only abort returns an error.
func (a *Assembler) image(ctx context.Context, prompt, path string, out *Outcome) (bool, error) {
	err := a.exec.Run(ctx, "image", func(ctx context.Context) error {
		return a.img.ProduceImage(ctx, prompt, path)
	})
	if err == nil {
		out.Images++
		return true, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	switch a.opts.Failure.Image {
	case PolicySkip:
		logger.Warn("Image generation failed, omitting image", "slug", out.Task.Slug, "path", path, "error", err.Error())
		out.SkippedImages++
		return false, nil
	case PolicyAbort:
		return false, err
	}

	logger.Warn("Image generation failed, using placeholder", "slug", out.Task.Slug, "path", path, "error", err.Error())
	if ferr := a.fallback.ProduceImage(ctx, prompt, path); ferr != nil {
		return false, errors.Join(err, fmt.Errorf("placeholder image failed: %w", ferr))
	}
	out.Images++
	out.FallbackImages++
	return true, nil
}

func (a *Assembler) fail(out Outcome, stage Stage, policy Policy, err error) (Outcome, error) {
	if policy == PolicySkip && !errors.Is(err, context.Canceled) {
		out.Status = StatusSkipped
		out.Stage = stage
		out.Reason = err.Error()
		logger.Warn("Task skipped", "niche", a.opts.Niche, "slug", out.Task.Slug, "stage", string(stage), "error", err.Error())
		return out, nil
	}
	return out, &StageError{Slug: out.Task.Slug, Stage: stage, Err: err}
}

// ContextWindow joins parts with a blank line and keeps the last window runes.
func ContextWindow(parts []string, window int) string {
	if len(parts) == 0 {
		return ""
	}
	joined := strings.Join(parts, partSeparator)
	runes := []rune(joined)
	if window > 0 && len(runes) > window {
		return string(runes[len(runes)-window:])
	}
	return joined
}

// PostPath is the markdown file for slug under root.
func PostPath(root, slug string) string {
	return filepath.Join(root, "content", "posts", slug+".md")
}

// ImageFile is the on-disk path of the nth image of slug.
func ImageFile(root, slug string, n int) string {
	return filepath.Join(root, "static", "images", slug, fmt.Sprintf("%d.png", n))
}

// ImageRef is the site-relative reference of the nth image of slug.
func ImageRef(slug string, n int) string {
	return fmt.Sprintf("/images/%s/%d.png", slug, n)
}

// CoverFile is the on-disk path of the cover image of slug.
func CoverFile(root, slug string) string {
	return filepath.Join(root, "static", "images", slug, "cover.png")
}

// CoverRef is the site-relative reference of the cover image of slug.
func CoverRef(slug string) string {
	return fmt.Sprintf("/images/%s/cover.png", slug)
}
