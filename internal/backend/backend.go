// Package backend defines the operation contracts shared by every text and
// image generation backend, real or placeholder.
package backend

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"postforge/internal/core"
)

// MaxDescriptionLength bounds generated descriptions, in runes.
const MaxDescriptionLength = 160

// ErrUnknownBackend is returned when a backend identifier is not recognised.
var ErrUnknownBackend = errors.New("unknown backend")

// ErrEmptyResponse is returned when a backend answers with no usable content.
var ErrEmptyResponse = errors.New("empty response from backend")

// PartRequest describes one sequential content part of a post.
type PartRequest struct {
	Niche    string
	Keyword  string
	Outline  core.Outline
	Index    int    // 1-based part number
	Total    int    // Total number of parts
	Previous string // Truncated continuity context; empty for the first part
}

// Generator produces plans, metadata, outlines and content for a niche.
type Generator interface {
	Name() string
	ProducePlan(ctx context.Context, niche string, opts core.PlanOptions) (core.Plan, error)
	ProduceMetadata(ctx context.Context, niche, keyword string) (core.Metadata, error)
	ProduceOutline(ctx context.Context, niche, keyword string) (core.Outline, error)
	ProduceContentPart(ctx context.Context, req PartRequest) (string, error)
	ProduceShortDescription(ctx context.Context, title, niche, keyword string) (string, error)
}

// ImageGenerator writes an image for a prompt at outputPath.
type ImageGenerator interface {
	Name() string
	ProduceImage(ctx context.Context, prompt, outputPath string) error
}

// TruncateDescription trims whitespace and cuts s to MaxDescriptionLength runes,
// preferring a word boundary.
func TruncateDescription(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= MaxDescriptionLength {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:MaxDescriptionLength])
	if i := strings.LastIndexByte(cut, ' '); i > MaxDescriptionLength/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:-")
}
