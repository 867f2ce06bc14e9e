package cost

import (
	"math"
	"strings"
	"testing"

	"postforge/internal/core"
)

func TestEstimateTokenCount(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{
			name:     "empty string",
			input:    "",
			expected: 0,
		},
		{
			name:     "simple text",
			input:    "Hello world",
			expected: 4, // 11 chars / 3.5 ≈ 3.14, ceil = 4
		},
		{
			name:     "text with newlines",
			input:    "Line 1\nLine 2\nLine 3",
			expected: 6, // 20 chars / 3.5 ≈ 5.71, ceil = 6
		},
		{
			name:     "text with surrounding whitespace",
			input:    "  Text with   extra    spaces  ",
			expected: 8, // 27 chars after trimming / 3.5 ≈ 7.71, ceil = 8
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := EstimateTokenCount(tt.input)
			if result != tt.expected {
				t.Errorf("EstimateTokenCount(%q) = %d, expected %d", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPostTokens(t *testing.T) {
	in, out := PostTokens(RunShape{Parts: 3, ContextWindow: 6000})

	// Part 3 sees only the context window, not both earlier parts in full.
	if in != 5665 {
		t.Errorf("Expected 5665 input tokens, got %d", in)
	}
	if out != 4220 {
		t.Errorf("Expected 4220 output tokens, got %d", out)
	}

	wider, _ := PostTokens(RunShape{Parts: 3, ContextWindow: 60000})
	if wider <= in {
		t.Errorf("A wider context window should cost more input tokens: %d <= %d", wider, in)
	}
}

func tasks(n int) []core.Task {
	out := make([]core.Task, n)
	for i := range out {
		out[i] = core.Task{Index: i, Cluster: "c", Keyword: "k", Slug: "k"}
	}
	return out
}

func TestEstimateRun(t *testing.T) {
	est := EstimateRun(tasks(4), RunShape{
		Model:         "unknown-model",
		ImageModel:    "gpt-image-1",
		Parts:         3,
		ContextWindow: 6000,
		ImagesPerPost: 3,
		Concurrency:   2,
	})

	if est.Model != "gemini-1.5-flash" {
		t.Errorf("Unknown models should fall back to flash pricing, got %s", est.Model)
	}
	if est.TextRequests != 21 {
		t.Errorf("Expected 21 text requests (plan + 4 x 5), got %d", est.TextRequests)
	}
	if est.ImageRequests != 12 {
		t.Errorf("Expected 12 image requests, got %d", est.ImageRequests)
	}
	if math.Abs(est.ImageCost-0.756) > 1e-9 {
		t.Errorf("Expected image cost 0.756, got %f", est.ImageCost)
	}
	if math.Abs(est.TotalCost-(est.TextCost+est.ImageCost)) > 1e-12 {
		t.Error("Total cost should be text plus image cost")
	}
	if est.TextCost <= 0 {
		t.Error("Text cost should be positive")
	}
}

func TestEstimateRun_PlaceholderImagesAreFree(t *testing.T) {
	est := EstimateRun(tasks(2), RunShape{Model: "gemini-1.5-pro", Parts: 2, ImagesPerPost: 4})
	if est.ImageCost != 0 {
		t.Errorf("Expected free images, got %f", est.ImageCost)
	}
	if est.ImageRequests != 8 {
		t.Errorf("Expected 8 image requests, got %d", est.ImageRequests)
	}
}

func TestFormatEstimate(t *testing.T) {
	est := EstimateRun(tasks(1000), RunShape{Model: "gemini-1.5-flash", Parts: 3, Concurrency: 1000})
	out := est.FormatEstimate()

	for _, want := range []string{"gemini-1.5-flash", "Posts: 1000", "Text requests: 5001", "Total estimated cost"} {
		if !strings.Contains(out, want) {
			t.Errorf("Formatted estimate missing %q:\n%s", want, out)
		}
	}
	if est.RateLimitWarning == "" {
		t.Error("Expected a rate limit warning at high concurrency")
	}
}
