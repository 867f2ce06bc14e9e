// Package llm implements backend.Generator on top of Google Gemini.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"postforge/internal/backend"
	"postforge/internal/config"
	"postforge/internal/core"
)

const (
	// DefaultModel is the Gemini model used when none is configured.
	DefaultModel = "gemini-1.5-flash"
	// DefaultMaxTokens bounds each response when the config leaves it unset.
	DefaultMaxTokens = int32(8192)
)

// Client generates post material with Gemini.
type Client struct {
	apiKey      string
	modelName   string
	temperature float32
	maxTokens   int32
	timeout     time.Duration
	gClient     *genai.Client
}

// NewClient creates a Gemini-backed generator from configuration.
func NewClient(ctx context.Context, cfg config.GeminiConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required. Set GEMINI_API_KEY environment variable or ai.gemini.api_key in config file")
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	timeout, _ := time.ParseDuration(cfg.Timeout)

	gClient, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		apiKey:      cfg.APIKey,
		modelName:   modelName,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		timeout:     timeout,
		gClient:     gClient,
	}, nil
}

// Name implements backend.Generator.
func (c *Client) Name() string { return "gemini" }

// Close releases the underlying client.
func (c *Client) Close() error {
	if c.gClient == nil {
		return nil
	}
	return c.gClient.Close()
}

// ProducePlan asks Gemini for keyword clusters.
func (c *Client) ProducePlan(ctx context.Context, niche string, opts core.PlanOptions) (core.Plan, error) {
	text, err := c.generate(ctx, buildPlanPrompt(niche, opts), planSchema())
	if err != nil {
		return nil, fmt.Errorf("failed to generate plan: %w", err)
	}
	return parsePlanResponse(text)
}

// ProduceMetadata asks Gemini for the title, description and related terms.
func (c *Client) ProduceMetadata(ctx context.Context, niche, keyword string) (core.Metadata, error) {
	text, err := c.generate(ctx, buildMetadataPrompt(niche, keyword), metadataSchema())
	if err != nil {
		return core.Metadata{}, fmt.Errorf("failed to generate metadata: %w", err)
	}
	return parseMetadataResponse(text)
}

// ProduceOutline asks Gemini for the section structure of a post.
func (c *Client) ProduceOutline(ctx context.Context, niche, keyword string) (core.Outline, error) {
	text, err := c.generate(ctx, buildOutlinePrompt(niche, keyword), outlineSchema())
	if err != nil {
		return core.Outline{}, fmt.Errorf("failed to generate outline: %w", err)
	}
	return parseOutlineResponse(text)
}

// ProduceContentPart asks Gemini for one sequential part of the body.
func (c *Client) ProduceContentPart(ctx context.Context, req backend.PartRequest) (string, error) {
	text, err := c.generate(ctx, buildContentPartPrompt(req), nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate content part %d: %w", req.Index, err)
	}
	return cleanMarkdownOutput(text), nil
}

// ProduceShortDescription asks Gemini for a one-sentence description.
func (c *Client) ProduceShortDescription(ctx context.Context, title, niche, keyword string) (string, error) {
	text, err := c.generate(ctx, buildShortDescriptionPrompt(title, niche, keyword), nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate description: %w", err)
	}
	desc := backend.TruncateDescription(strings.Trim(strings.TrimSpace(text), `"`))
	if desc == "" {
		return "", backend.ErrEmptyResponse
	}
	return desc, nil
}

// generate runs a single prompt. A non-nil schema switches the model to JSON output.
func (c *Client) generate(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	model := c.gClient.GenerativeModel(c.modelName)
	model.SetMaxOutputTokens(c.maxTokens)
	if c.temperature > 0 {
		model.SetTemperature(c.temperature)
	}
	if schema != nil {
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = schema
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", backend.ErrEmptyResponse
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", backend.ErrEmptyResponse
	}
	return b.String(), nil
}

type planResponse struct {
	Clusters []core.Cluster `json:"clusters"`
}

func parsePlanResponse(text string) (core.Plan, error) {
	var resp planResponse
	if err := json.Unmarshal([]byte(cleanJSONOutput(text)), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse plan response: %w", err)
	}
	plan := core.Plan(resp.Clusters)
	if !plan.Valid() {
		return nil, fmt.Errorf("plan response has no usable cluster")
	}
	return plan, nil
}

func parseMetadataResponse(text string) (core.Metadata, error) {
	var meta core.Metadata
	if err := json.Unmarshal([]byte(cleanJSONOutput(text)), &meta); err != nil {
		return core.Metadata{}, fmt.Errorf("failed to parse metadata response: %w", err)
	}
	meta.Title = strings.TrimSpace(meta.Title)
	if meta.Title == "" {
		return core.Metadata{}, fmt.Errorf("metadata response has no title")
	}
	meta.Description = backend.TruncateDescription(meta.Description)
	meta.RelatedTerms = core.MergeKeywords(meta.RelatedTerms)
	return meta, nil
}

func parseOutlineResponse(text string) (core.Outline, error) {
	var outline core.Outline
	if err := json.Unmarshal([]byte(cleanJSONOutput(text)), &outline); err != nil {
		return core.Outline{}, fmt.Errorf("failed to parse outline response: %w", err)
	}
	sections := outline.Sections[:0]
	for _, s := range outline.Sections {
		s.Title = strings.TrimSpace(s.Title)
		if s.Title == "" {
			continue
		}
		if s.Illustrate && strings.TrimSpace(s.ImagePrompt) == "" {
			s.ImagePrompt = s.Title
		}
		sections = append(sections, s)
	}
	outline.Sections = sections
	return outline, nil
}

// cleanMarkdownOutput strips a surrounding code fence from model output. The
// closing fence is the one that pairs with the opening line, so text the model
// adds after it is kept and no stray fence is left behind.
func cleanMarkdownOutput(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	if len(lines) == 1 {
		text = strings.TrimSuffix(strings.TrimPrefix(text, "```"), "```")
		return strings.TrimSpace(strings.TrimPrefix(text, "json"))
	}
	lines = lines[1:]
	inner := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "```") {
			continue
		}
		switch {
		case inner:
			inner = false
		case trimmed != "```":
			// A fence with an info string opens a nested block.
			inner = true
		default:
			lines = append(lines[:i], lines[i+1:]...)
			return strings.TrimSpace(strings.Join(lines, "\n"))
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func cleanJSONOutput(text string) string {
	return cleanMarkdownOutput(text)
}

func planSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"clusters": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"cluster": {
							Type:        genai.TypeString,
							Description: "Cluster name",
						},
						"keywords": {
							Type:  genai.TypeArray,
							Items: &genai.Schema{Type: genai.TypeString},
						},
					},
					Required: []string{"cluster", "keywords"},
				},
			},
		},
		Required: []string{"clusters"},
	}
}

func metadataSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":       {Type: genai.TypeString},
			"description": {Type: genai.TypeString},
			"related_terms": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString},
			},
		},
		Required: []string{"title", "description"},
	}
}

func outlineSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"sections": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"title": {Type: genai.TypeString},
						"points": {
							Type:  genai.TypeArray,
							Items: &genai.Schema{Type: genai.TypeString},
						},
						"illustrate":   {Type: genai.TypeBoolean},
						"image_prompt": {Type: genai.TypeString},
						"alt_text":     {Type: genai.TypeString},
					},
					Required: []string{"title", "points"},
				},
			},
		},
		Required: []string{"sections"},
	}
}
