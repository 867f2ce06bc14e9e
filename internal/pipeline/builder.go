package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"postforge/internal/assembler"
	"postforge/internal/backend"
	"postforge/internal/config"
	"postforge/internal/linkgraph"
	"postforge/internal/llm"
	"postforge/internal/placeholder"
	"postforge/internal/publish"
	"postforge/internal/visual"
)

// Builder helps construct a fully configured Pipeline
type Builder struct {
	generator backend.Generator
	images    backend.ImageGenerator
	linker    LinkBuilder
	publisher publish.Publisher
	ledger    Ledger
	config    *Config
	progress  io.Writer
}

// NewBuilder creates a new pipeline builder with default settings
func NewBuilder() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig sets the pipeline configuration
func (b *Builder) WithConfig(config *Config) *Builder {
	b.config = config
	return b
}

// WithGenerator sets the text backend
func (b *Builder) WithGenerator(gen backend.Generator) *Builder {
	b.generator = gen
	return b
}

// WithImageGenerator sets the image backend
func (b *Builder) WithImageGenerator(img backend.ImageGenerator) *Builder {
	b.images = img
	return b
}

// WithLedger enables run tracking and resume
func (b *Builder) WithLedger(ledger Ledger) *Builder {
	b.ledger = ledger
	return b
}

// WithPublisher sets the publisher
func (b *Builder) WithPublisher(p publish.Publisher) *Builder {
	b.publisher = p
	return b
}

// WithLinker sets the link graph builder
func (b *Builder) WithLinker(l LinkBuilder) *Builder {
	b.linker = l
	return b
}

// WithProgress sets where step progress is printed
func (b *Builder) WithProgress(w io.Writer) *Builder {
	b.progress = w
	return b
}

// Build constructs a fully configured Pipeline
func (b *Builder) Build() (*Pipeline, error) {
	// Validate required components
	if b.generator == nil {
		return nil, fmt.Errorf("text generator is required")
	}
	if b.images == nil {
		return nil, fmt.Errorf("image generator is required")
	}
	if b.linker == nil {
		b.linker = linkgraph.New(linkgraph.Options{})
	}

	p := NewPipeline(b.generator, b.images, b.linker, b.publisher, b.ledger, b.config)
	return p.WithProgress(b.progress), nil
}

// NewGenerator selects the text backend named in the configuration
func NewGenerator(ctx context.Context, cfg *config.Config) (backend.Generator, error) {
	switch cfg.Generation.Backend {
	case "gemini":
		client, err := llm.NewClient(ctx, cfg.AI.Gemini)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "placeholder", "":
		return placeholder.NewGenerator(), nil
	default:
		return nil, fmt.Errorf("%w: %s", backend.ErrUnknownBackend, cfg.Generation.Backend)
	}
}

// NewImageGenerator selects the image backend named in the configuration
func NewImageGenerator(cfg *config.Config) (backend.ImageGenerator, error) {
	switch cfg.Generation.ImageBackend {
	case "openai":
		client, err := visual.NewClient(cfg.AI.OpenAI)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "placeholder", "":
		return placeholder.NewImageGenerator(cfg.Generation.PlaceholderImageSize), nil
	default:
		return nil, fmt.Errorf("%w: %s", backend.ErrUnknownBackend, cfg.Generation.ImageBackend)
	}
}

// ConfigFrom maps application configuration onto pipeline configuration
func ConfigFrom(cfg *config.Config) *Config {
	pc := DefaultConfig()
	pc.OutputDir = cfg.Output.Directory
	pc.MaxPosts = cfg.Generation.MaxPosts
	pc.BatchSize = cfg.Generation.BatchSize
	pc.Concurrency = cfg.Generation.Concurrency
	pc.Parts = cfg.Generation.Parts
	pc.ContextWindow = cfg.Generation.ContextWindow
	pc.Clusters = cfg.Generation.Clusters
	pc.KeywordsPerCluster = cfg.Generation.KeywordsPerCluster
	pc.Failure = assembler.PolicyFromConfig(cfg.Failure)
	if d := cfg.CallTimeout(); d > 0 {
		pc.CallTimeout = d
	}
	pc.Now = time.Now
	return pc
}

// LinkOptions maps application configuration onto link graph options
func LinkOptions(cfg *config.Config) linkgraph.Options {
	return linkgraph.Options{
		Policy:         linkgraph.Policy(cfg.Linking.Policy),
		Seed:           cfg.Linking.Seed,
		AlwaysEndBlock: cfg.Linking.AlwaysEndBlock,
	}
}

// FromConfig builds a pipeline with backends, linker and publisher selected by
// the configuration. The ledger is left to the caller.
func FromConfig(ctx context.Context, cfg *config.Config) (*Builder, error) {
	gen, err := NewGenerator(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create text backend: %w", err)
	}
	img, err := NewImageGenerator(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create image backend: %w", err)
	}
	pub, err := publish.New(cfg.Publish)
	if err != nil {
		return nil, err
	}

	return NewBuilder().
		WithConfig(ConfigFrom(cfg)).
		WithGenerator(gen).
		WithImageGenerator(img).
		WithLinker(linkgraph.New(LinkOptions(cfg))).
		WithPublisher(pub), nil
}
