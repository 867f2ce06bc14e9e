package llm

import (
	"context"
	"os"
	"strings"
	"testing"
	"unicode/utf8"

	"postforge/internal/backend"
	"postforge/internal/config"
	"postforge/internal/core"
)

func TestNewClient_NoAPIKey(t *testing.T) {
	_, err := NewClient(context.Background(), config.GeminiConfig{})
	if err == nil {
		t.Fatal("Expected error when no API key is available")
	}
	if !strings.Contains(err.Error(), "gemini API key is required") {
		t.Errorf("Expected API key error, got: %v", err)
	}
}

func TestNewClient_Success(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("GEMINI_API_KEY not set, skipping integration test")
	}

	client, err := NewClient(context.Background(), config.GeminiConfig{APIKey: apiKey})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	if client.modelName != DefaultModel {
		t.Errorf("Expected default model %s, got %s", DefaultModel, client.modelName)
	}
	if client.maxTokens != DefaultMaxTokens {
		t.Errorf("Expected default max tokens, got %d", client.maxTokens)
	}

	var _ backend.Generator = client
}

func TestParsePlanResponse(t *testing.T) {
	text := "```json\n{\"clusters\":[{\"cluster\":\"Gear\",\"keywords\":[\"trail shoes\",\"running vest\"]},{\"cluster\":\"Training\",\"keywords\":[\"tempo runs\"]}]}\n```"
	plan, err := parsePlanResponse(text)
	if err != nil {
		t.Fatalf("parsePlanResponse failed: %v", err)
	}
	if len(plan) != 2 || plan[0].Name != "Gear" || plan.KeywordCount() != 3 {
		t.Errorf("Unexpected plan: %+v", plan)
	}

	if _, err := parsePlanResponse(`{"clusters":[]}`); err == nil {
		t.Error("Expected error for an empty plan")
	}
	if _, err := parsePlanResponse("not json"); err == nil {
		t.Error("Expected error for malformed JSON")
	}
}

func TestParseMetadataResponse(t *testing.T) {
	long := strings.Repeat("word ", 60)
	meta, err := parseMetadataResponse(`{"title":"  Trail Shoes Guide ","description":"` + long + `","related_terms":["grip","Grip","drop"]}`)
	if err != nil {
		t.Fatalf("parseMetadataResponse failed: %v", err)
	}
	if meta.Title != "Trail Shoes Guide" {
		t.Errorf("Title not trimmed: %q", meta.Title)
	}
	if utf8.RuneCountInString(meta.Description) > backend.MaxDescriptionLength {
		t.Errorf("Description too long: %d runes", utf8.RuneCountInString(meta.Description))
	}
	if len(meta.RelatedTerms) != 2 {
		t.Errorf("Expected duplicate terms to be merged, got %v", meta.RelatedTerms)
	}

	if _, err := parseMetadataResponse(`{"title":""}`); err == nil {
		t.Error("Expected error for missing title")
	}
}

func TestParseOutlineResponse(t *testing.T) {
	outline, err := parseOutlineResponse(`{"sections":[{"title":"Intro","points":["a"]},{"title":" ","points":[]},{"title":"Fit","points":["b"],"illustrate":true}]}`)
	if err != nil {
		t.Fatalf("parseOutlineResponse failed: %v", err)
	}
	if len(outline.Sections) != 2 {
		t.Fatalf("Expected blank section to be dropped, got %d sections", len(outline.Sections))
	}
	if outline.Sections[1].ImagePrompt != "Fit" {
		t.Errorf("Illustrated section without prompt should use its title, got %q", outline.Sections[1].ImagePrompt)
	}
}

func TestBuildContentPartPrompt(t *testing.T) {
	req := backend.PartRequest{
		Niche:   "running",
		Keyword: "trail shoes",
		Outline: core.Outline{Sections: []core.Section{{Title: "Fit", Points: []string{"toe box"}}}},
		Index:   2,
		Total:   3,
	}

	prompt := buildContentPartPrompt(req)
	if !strings.Contains(prompt, "part 2 of 3") || !strings.Contains(prompt, "1. Fit") || !strings.Contains(prompt, "- toe box") {
		t.Errorf("Prompt missing expected content:\n%s", prompt)
	}
	if strings.Contains(prompt, "The post so far") {
		t.Error("Prompt should not mention previous content when none is given")
	}

	req.Previous = "earlier paragraphs"
	if prompt := buildContentPartPrompt(req); !strings.Contains(prompt, "earlier paragraphs") {
		t.Error("Prompt should include previous content")
	}
}

func TestCleanMarkdownOutput(t *testing.T) {
	tests := map[string]string{
		"```markdown\nHello\n```": "Hello",
		"```\nHello\n```":         "Hello",
		"  Hello  ":               "Hello",
		"```markdown\nSome body\n```\n\nA closing line.":    "Some body\n\nA closing line.",
		"```markdown\nIntro\n```go\nx := 1\n```\nMore\n```": "Intro\n```go\nx := 1\n```\nMore",
		"```json\n{\"a\": 1}\n```":                          "{\"a\": 1}",
		"```{\"a\": 1}```":                                  "{\"a\": 1}",
	}
	for in, want := range tests {
		if got := cleanMarkdownOutput(in); got != want {
			t.Errorf("cleanMarkdownOutput(%q) = %q, want %q", in, got, want)
		}
		if got := cleanMarkdownOutput(in); strings.Count(got, "```")%2 != 0 {
			t.Errorf("cleanMarkdownOutput(%q) left an unbalanced fence: %q", in, got)
		}
	}
}
