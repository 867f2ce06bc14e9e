package assembler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postforge/internal/backend"
	"postforge/internal/config"
	"postforge/internal/core"
	"postforge/internal/document"
	"postforge/internal/executor"
	"postforge/internal/placeholder"
)

// recordingGenerator wraps the placeholder generator and records part requests.
type recordingGenerator struct {
	*placeholder.Generator
	mu          sync.Mutex
	requests    []backend.PartRequest
	parts       []string
	description string
	metaErr     error
	outlineErr  error
	shortCalls  int
}

func newRecordingGenerator() *recordingGenerator {
	return &recordingGenerator{Generator: placeholder.NewGenerator()}
}

func (g *recordingGenerator) ProduceMetadata(ctx context.Context, niche, keyword string) (core.Metadata, error) {
	if g.metaErr != nil {
		return core.Metadata{}, g.metaErr
	}
	meta, err := g.Generator.ProduceMetadata(ctx, niche, keyword)
	if g.description != "" {
		meta.Description = g.description
		if g.description == "-" {
			meta.Description = ""
		}
	}
	return meta, err
}

func (g *recordingGenerator) ProduceOutline(ctx context.Context, niche, keyword string) (core.Outline, error) {
	if g.outlineErr != nil {
		return core.Outline{}, g.outlineErr
	}
	return g.Generator.ProduceOutline(ctx, niche, keyword)
}

func (g *recordingGenerator) ProduceContentPart(ctx context.Context, req backend.PartRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if len(g.parts) >= req.Index {
		return g.parts[req.Index-1], nil
	}
	return g.Generator.ProduceContentPart(ctx, req)
}

func (g *recordingGenerator) ProduceShortDescription(ctx context.Context, title, niche, keyword string) (string, error) {
	g.shortCalls++
	return g.Generator.ProduceShortDescription(ctx, title, niche, keyword)
}

type failingImages struct{}

func (failingImages) Name() string { return "failing" }
func (failingImages) ProduceImage(ctx context.Context, prompt, outputPath string) error {
	return errors.New("image service unavailable")
}

var fixedNow = func() time.Time { return time.Date(2024, 5, 17, 9, 0, 0, 0, time.UTC) }

func newTestAssembler(t *testing.T, gen backend.Generator, img backend.ImageGenerator, failure FailurePolicy) (*Assembler, string) {
	t.Helper()
	root := t.TempDir()
	return New(gen, img, executor.New(2), Options{
		Niche:   "running",
		Root:    root,
		Failure: failure,
		Now:     fixedNow,
	}), root
}

func task() core.Task {
	return core.Task{Index: 0, Cluster: "Gear", Keyword: "trail shoes", Slug: "trail-shoes"}
}

func TestAssemble_WritesPost(t *testing.T) {
	a, root := newTestAssembler(t, newRecordingGenerator(), placeholder.NewImageGenerator(8), FailurePolicy{})

	out, err := a.Assemble(context.Background(), task())
	require.NoError(t, err)
	assert.Equal(t, StatusDone, out.Status)
	assert.Equal(t, filepath.Join(root, "content", "posts", "trail-shoes.md"), out.Path)

	doc, err := document.ReadFile(out.Path)
	require.NoError(t, err)
	assert.Equal(t, "trail-shoes", doc.Front.Slug)
	assert.Equal(t, "Gear", doc.Front.Cluster)
	assert.Equal(t, "2024-05-17", doc.Front.Date)
	assert.Equal(t, "/images/trail-shoes/cover.png", doc.Front.CoverImage)
	assert.Equal(t, "trail shoes", doc.Front.Keywords[0])
	assert.Contains(t, doc.Front.Keywords, "running")

	body := doc.Body.String()
	assert.Equal(t, 4, doc.Body.Headings())
	assert.Contains(t, body, "Part 1 of 3 on trail shoes.")
	assert.Contains(t, body, "Part 2 of 3 on trail shoes.")
	assert.Contains(t, body, "Part 3 of 3 on trail shoes.")

	// One outline image (section 2) and two inter-part images, numbered in order.
	assert.Equal(t, 4, out.Images)
	for n, ref := range []string{"/images/trail-shoes/1.png", "/images/trail-shoes/2.png", "/images/trail-shoes/3.png"} {
		assert.Contains(t, body, ref)
		assert.Contains(t, body, fmt.Sprintf("(image %d)", n+1))
		_, err := os.Stat(filepath.Join(root, "static", "images", "trail-shoes", filepath.Base(ref)))
		assert.NoError(t, err)
	}
	assert.NotContains(t, body, "/images/trail-shoes/4.png")
	assert.Less(t, strings.Index(body, "/1.png"), strings.Index(body, "Part 1 of 3"))
	assert.Less(t, strings.Index(body, "Part 1 of 3"), strings.Index(body, "/2.png"))
	assert.Less(t, strings.Index(body, "/2.png"), strings.Index(body, "Part 2 of 3"))
	assert.Less(t, strings.Index(body, "/3.png"), strings.Index(body, "Part 3 of 3"))
}

func TestAssemble_ContextWindowForLaterParts(t *testing.T) {
	gen := newRecordingGenerator()
	gen.parts = []string{strings.Repeat("a", 4000), strings.Repeat("b", 4000), "tail"}
	a, _ := newTestAssembler(t, gen, placeholder.NewImageGenerator(8), FailurePolicy{})

	_, err := a.Assemble(context.Background(), task())
	require.NoError(t, err)
	require.Len(t, gen.requests, 3)

	assert.Empty(t, gen.requests[0].Previous)
	assert.Equal(t, gen.parts[0], gen.requests[1].Previous)

	want := ContextWindow(gen.parts[:2], DefaultContextWindow)
	assert.Equal(t, want, gen.requests[2].Previous)
	assert.Len(t, []rune(gen.requests[2].Previous), DefaultContextWindow)
	assert.True(t, strings.HasSuffix(gen.requests[2].Previous, strings.Repeat("b", 4000)))
	assert.True(t, strings.HasPrefix(gen.requests[2].Previous, strings.Repeat("a", 6000-4000-2)+"\n\n"))
}

func TestContextWindow(t *testing.T) {
	assert.Equal(t, "", ContextWindow(nil, 10))
	assert.Equal(t, "ab\n\ncd", ContextWindow([]string{"ab", "cd"}, 10))
	assert.Equal(t, "\ncd", ContextWindow([]string{"ab", "cd"}, 3))
	assert.Equal(t, "éè", ContextWindow([]string{"aéè"}, 2))
}

func TestInterPartPrompt(t *testing.T) {
	outline := core.Outline{Sections: []core.Section{{Title: "One"}, {Title: "Two"}}}
	assert.Equal(t, "One", InterPartPrompt(outline, 1, "kw"))
	assert.Equal(t, "Two", InterPartPrompt(outline, 2, "kw"))
	assert.Equal(t, "Two", InterPartPrompt(outline, 5, "kw"))
	assert.Equal(t, "Illustration about kw", InterPartPrompt(core.Outline{}, 1, "kw"))
}

func TestAssemble_BlankDescriptionUsesShortDescription(t *testing.T) {
	gen := newRecordingGenerator()
	gen.description = "-"
	a, _ := newTestAssembler(t, gen, placeholder.NewImageGenerator(8), FailurePolicy{})

	out, err := a.Assemble(context.Background(), task())
	require.NoError(t, err)
	assert.Equal(t, 1, gen.shortCalls)

	doc, err := document.ReadFile(out.Path)
	require.NoError(t, err)
	assert.NotEmpty(t, doc.Front.Description)
}

func TestAssemble_ImageFallback(t *testing.T) {
	a, root := newTestAssembler(t, newRecordingGenerator(), failingImages{}, FailurePolicy{})

	out, err := a.Assemble(context.Background(), task())
	require.NoError(t, err)
	assert.Equal(t, StatusDone, out.Status)
	assert.Equal(t, 4, out.FallbackImages)

	_, err = os.Stat(filepath.Join(root, "static", "images", "trail-shoes", "cover.png"))
	assert.NoError(t, err, "placeholder cover should be written at the same path")
}

func TestAssemble_ImageSkip(t *testing.T) {
	policy := DefaultFailurePolicy()
	policy.Image = PolicySkip
	a, _ := newTestAssembler(t, newRecordingGenerator(), failingImages{}, policy)

	out, err := a.Assemble(context.Background(), task())
	require.NoError(t, err)
	assert.Equal(t, 0, out.Images)
	assert.Equal(t, 4, out.SkippedImages)

	doc, err := document.ReadFile(out.Path)
	require.NoError(t, err)
	assert.Empty(t, doc.Front.CoverImage)
	assert.NotContains(t, doc.Body.String(), "](/images/")
}

func TestAssemble_ImageAbort(t *testing.T) {
	policy := DefaultFailurePolicy()
	policy.Image = PolicyAbort
	gen := newRecordingGenerator()
	a, _ := newTestAssembler(t, gen, failingImages{}, policy)

	_, err := a.Assemble(context.Background(), task())
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageImage, stageErr.Stage)
	// The cover is requested only after outline and every content part.
	assert.Len(t, gen.requests, 3)
}

func TestAssemble_ClosesUnbalancedFences(t *testing.T) {
	gen := newRecordingGenerator()
	gen.parts = []string{"Part one.\n\n```go\nfmt.Println(1)", "Part two.", "Part three."}
	a, _ := newTestAssembler(t, gen, placeholder.NewImageGenerator(8), FailurePolicy{})

	out, err := a.Assemble(context.Background(), task())
	require.NoError(t, err)

	doc, err := document.ReadFile(out.Path)
	require.NoError(t, err)
	body := doc.Body.String()
	assert.Equal(t, 0, strings.Count(body, "```")%2, "fences must be balanced:\n%s", body)
	closed := strings.Index(body, "fmt.Println(1)\n```")
	require.GreaterOrEqual(t, closed, 0)
	assert.Greater(t, strings.Index(body, "(image 2)"), closed, "the image after part one stays outside the code block")
}

func TestCloseFences(t *testing.T) {
	assert.Equal(t, "a\n```\nx\n```", CloseFences("a\n```\nx\n```"))
	assert.Equal(t, "a\n```\nx\n```", CloseFences("a\n```\nx\n"))
	assert.Equal(t, "plain", CloseFences("plain"))
}

func TestAssemble_TextFailurePolicies(t *testing.T) {
	gen := newRecordingGenerator()
	gen.outlineErr = errors.New("quota exceeded")

	a, _ := newTestAssembler(t, gen, placeholder.NewImageGenerator(8), FailurePolicy{})
	_, err := a.Assemble(context.Background(), task())
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageOutline, stageErr.Stage)
	assert.Equal(t, "trail-shoes", stageErr.Slug)

	policy := DefaultFailurePolicy()
	policy.Outline = PolicySkip
	a, _ = newTestAssembler(t, gen, placeholder.NewImageGenerator(8), policy)
	out, err := a.Assemble(context.Background(), task())
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, out.Status)
	assert.Equal(t, StageOutline, out.Stage)
	assert.Contains(t, out.Reason, "quota exceeded")
	_, statErr := os.Stat(out.Path)
	assert.True(t, os.IsNotExist(statErr), "skipped task must not write a post")
}

func TestAssemble_MetadataSkip(t *testing.T) {
	gen := newRecordingGenerator()
	gen.metaErr = errors.New("bad json")
	policy := DefaultFailurePolicy()
	policy.Metadata = PolicySkip

	a, _ := newTestAssembler(t, gen, placeholder.NewImageGenerator(8), policy)
	out, err := a.Assemble(context.Background(), task())
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, out.Status)
	assert.Equal(t, StageMetadata, out.Stage)
	assert.Empty(t, gen.requests, "no content should be requested after metadata fails")
}

func TestAssemble_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := DefaultFailurePolicy()
	policy.Metadata = PolicySkip
	a, _ := newTestAssembler(t, newRecordingGenerator(), placeholder.NewImageGenerator(8), policy)
	_, err := a.Assemble(ctx, task())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(config.Failure{Metadata: "skip", Content: "abort", Image: "skip"})
	assert.Equal(t, PolicySkip, p.Metadata)
	assert.Equal(t, PolicyAbort, p.Outline)
	assert.Equal(t, PolicyAbort, p.Content)
	assert.Equal(t, PolicySkip, p.Image)
}
