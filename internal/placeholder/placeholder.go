// Package placeholder implements the generation contracts without any
// network dependency. Output is deterministic for the same input.
package placeholder

import (
	"context"
	"fmt"
	"strings"

	"postforge/internal/backend"
	"postforge/internal/core"
	"postforge/internal/planner"
)

var sectionAngles = []string{
	"What is %s",
	"Why %s matters",
	"Getting started with %s",
	"Common mistakes with %s",
	"Advanced %s tips",
}

// Generator is the placeholder text backend.
type Generator struct {
	sections int
}

// NewGenerator returns a placeholder generator producing four outline sections.
func NewGenerator() *Generator {
	return &Generator{sections: 4}
}

// Name implements backend.Generator.
func (g *Generator) Name() string { return "placeholder" }

// ProducePlan returns the fixed-size fallback plan.
func (g *Generator) ProducePlan(ctx context.Context, niche string, opts core.PlanOptions) (core.Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return planner.FallbackPlan(niche, opts), nil
}

// ProduceMetadata returns templated SEO metadata.
func (g *Generator) ProduceMetadata(ctx context.Context, niche, keyword string) (core.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return core.Metadata{}, err
	}
	title := fmt.Sprintf("%s: A Practical Guide", core.TitleCase(keyword))
	return core.Metadata{
		Title:        title,
		Description:  backend.TruncateDescription(fmt.Sprintf("Everything you need to know about %s, from the basics to advanced tips for %s enthusiasts.", keyword, niche)),
		RelatedTerms: []string{keyword + " guide", keyword + " tips", niche},
	}, nil
}

// ProduceOutline returns a fixed outline; the second section asks for an illustration.
func (g *Generator) ProduceOutline(ctx context.Context, niche, keyword string) (core.Outline, error) {
	if err := ctx.Err(); err != nil {
		return core.Outline{}, err
	}
	var outline core.Outline
	for i := 0; i < g.sections; i++ {
		title := fmt.Sprintf(sectionAngles[i%len(sectionAngles)], keyword)
		section := core.Section{
			Title: title,
			Points: []string{
				fmt.Sprintf("Key idea %d about %s", i+1, keyword),
				fmt.Sprintf("How it relates to %s", niche),
			},
		}
		if i == 1 {
			section.Illustrate = true
			section.ImagePrompt = fmt.Sprintf("Illustration of %s", title)
			section.AltText = title
		}
		outline.Sections = append(outline.Sections, section)
	}
	return outline, nil
}

// ProduceContentPart returns templated paragraphs for one part.
func (g *Generator) ProduceContentPart(ctx context.Context, req backend.PartRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Part %d of %d on %s.", req.Index, req.Total, req.Keyword)
	if req.Previous != "" {
		fmt.Fprintf(&b, " Continuing from %d characters of earlier material.", len([]rune(req.Previous)))
	}
	b.WriteString("\n\n")
	for i, s := range req.Outline.Sections {
		if i%req.Total != (req.Index-1)%req.Total {
			continue
		}
		fmt.Fprintf(&b, "%s is an important part of %s. ", s.Title, req.Niche)
	}
	fmt.Fprintf(&b, "This placeholder paragraph stands in for generated content about %s.", req.Keyword)
	return b.String(), nil
}

// ProduceShortDescription returns a templated description.
func (g *Generator) ProduceShortDescription(ctx context.Context, title, niche, keyword string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return backend.TruncateDescription(fmt.Sprintf("%s. A %s guide covering %s.", title, niche, keyword)), nil
}
