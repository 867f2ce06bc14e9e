package cost

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"postforge/internal/core"
)

// GeminiPricing represents the pricing of one Gemini model
type GeminiPricing struct {
	Model                 string
	InputCostPer1MTokens  float64 // Cost per 1M input tokens in USD
	OutputCostPer1MTokens float64 // Cost per 1M output tokens in USD
	MaxRequestsPerMinute  int     // Rate limiting
}

// PricingTable contains Gemini pricing as of 2025
var PricingTable = map[string]GeminiPricing{
	"gemini-1.5-flash": {
		Model:                 "gemini-1.5-flash",
		InputCostPer1MTokens:  0.075,
		OutputCostPer1MTokens: 0.30,
		MaxRequestsPerMinute:  1000,
	},
	"gemini-1.5-pro": {
		Model:                 "gemini-1.5-pro",
		InputCostPer1MTokens:  1.25,
		OutputCostPer1MTokens: 5.00,
		MaxRequestsPerMinute:  360,
	},
	"gemini-2.0-flash": {
		Model:                 "gemini-2.0-flash",
		InputCostPer1MTokens:  0.10,
		OutputCostPer1MTokens: 0.40,
		MaxRequestsPerMinute:  2000,
	},
}

// ImagePricing is the cost per generated image in USD
var ImagePricing = map[string]float64{
	"gpt-image-1": 0.063, // medium quality, 1536x1024
	"dall-e-3":    0.080,
}

const (
	defaultModel      = "gemini-1.5-flash"
	promptOverhead    = 250 // tokens of instructions per prompt
	metadataOutput    = 120
	outlineOutput     = 500
	partOutput        = 1200
	planOutputPerKW   = 12
	secondsPerRequest = 4
)

// EstimateTokenCount provides a rough estimation of token count for text
// This is a simplified approximation: typically 1 token ≈ 0.75 words ≈ 4 characters
func EstimateTokenCount(text string) int {
	// Remove excessive whitespace and normalize
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "\n", " ")

	// Count characters (more accurate than word count for mixed content)
	charCount := utf8.RuneCountInString(text)

	// Rough estimation: 1 token ≈ 4 characters for English text
	// Add some buffer for special tokens, formatting, etc.
	tokenCount := int(math.Ceil(float64(charCount) / 3.5))

	return tokenCount
}

// RunShape describes how each post is generated
type RunShape struct {
	Model         string // Text model, priced from PricingTable
	ImageModel    string // Empty when images are free placeholders
	Parts         int
	ContextWindow int // Runes of previous parts passed to later parts
	ImagesPerPost int // Cover plus illustrations
	Concurrency   int
}

// RunEstimate is the cost estimation for a generation run
type RunEstimate struct {
	Model             string
	Posts             int
	TextRequests      int
	ImageRequests     int
	TotalInputTokens  int
	TotalOutputTokens int
	TextCost          float64
	ImageCost         float64
	TotalCost         float64
	DurationMinutes   float64
	RateLimitWarning  string
}

// PostTokens estimates input and output tokens for the text calls of one post
func PostTokens(shape RunShape) (input, output int) {
	parts := max(shape.Parts, 1)
	windowTokens := EstimateTokenCount(strings.Repeat("x", max(shape.ContextWindow, 0)))

	// Metadata and outline
	input += 2 * promptOverhead
	output += metadataOutput + outlineOutput

	for k := 1; k <= parts; k++ {
		previous := min((k-1)*partOutput, windowTokens)
		input += promptOverhead + outlineOutput + previous
		output += partOutput
	}
	return input, output
}

// EstimateRun estimates the cost of generating tasks with the given shape
func EstimateRun(tasks []core.Task, shape RunShape) *RunEstimate {
	pricing, exists := PricingTable[shape.Model]
	if !exists {
		// Default to Flash pricing if model not found
		pricing = PricingTable[defaultModel]
	}

	posts := len(tasks)
	perIn, perOut := PostTokens(shape)
	est := &RunEstimate{
		Model:         pricing.Model,
		Posts:         posts,
		TextRequests:  1 + posts*(2+max(shape.Parts, 1)),
		ImageRequests: posts * max(shape.ImagesPerPost, 0),
	}

	// Plan call
	est.TotalInputTokens = promptOverhead + posts*perIn
	est.TotalOutputTokens = posts*planOutputPerKW + posts*perOut

	est.TextCost = float64(est.TotalInputTokens)*pricing.InputCostPer1MTokens/1000000 +
		float64(est.TotalOutputTokens)*pricing.OutputCostPer1MTokens/1000000
	if shape.ImageModel != "" {
		est.ImageCost = float64(est.ImageRequests) * ImagePricing[shape.ImageModel]
	}
	est.TotalCost = est.TextCost + est.ImageCost

	concurrency := max(shape.Concurrency, 1)
	requests := est.TextRequests + est.ImageRequests
	est.DurationMinutes = float64(requests) * secondsPerRequest / float64(concurrency) / 60

	requestsPerMinute := float64(est.TextRequests) / math.Max(est.DurationMinutes, 1)
	if requestsPerMinute > float64(pricing.MaxRequestsPerMinute) {
		est.RateLimitWarning = fmt.Sprintf(
			"Estimated %.0f requests/min may exceed the rate limit of %d/min for %s",
			requestsPerMinute, pricing.MaxRequestsPerMinute, pricing.Model,
		)
	}
	return est
}

// FormatEstimate formats the cost estimate for display
func (e *RunEstimate) FormatEstimate() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("💰 Cost Estimation for %s\n", e.Model))
	sb.WriteString(fmt.Sprintf("   Posts: %d\n", e.Posts))
	sb.WriteString(fmt.Sprintf("   Text requests: %d (%d input / %d output tokens, ~$%.4f)\n",
		e.TextRequests, e.TotalInputTokens, e.TotalOutputTokens, e.TextCost))
	sb.WriteString(fmt.Sprintf("   Image requests: %d (~$%.4f)\n", e.ImageRequests, e.ImageCost))
	sb.WriteString(fmt.Sprintf("   Total estimated cost: $%.4f\n", e.TotalCost))
	sb.WriteString(fmt.Sprintf("   Estimated duration: %.1f minutes\n", e.DurationMinutes))
	if e.RateLimitWarning != "" {
		sb.WriteString(fmt.Sprintf("   ⚠️  %s\n", e.RateLimitWarning))
	}
	return sb.String()
}
