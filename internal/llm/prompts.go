package llm

import (
	"fmt"
	"strings"

	"postforge/internal/backend"
	"postforge/internal/core"
)

const (
	// PlanPromptTemplate asks for keyword clusters for a niche.
	PlanPromptTemplate = `You are an SEO strategist planning a content site about "%s".

Produce exactly %d topic clusters. Each cluster needs a short descriptive name and %d distinct long-tail search keywords that a reader in this niche would type into a search engine.

Rules:
- Keywords are lowercase phrases of 2 to 6 words
- No keyword may appear in more than one cluster
- Do not number the keywords`

	// MetadataPromptTemplate asks for the SEO header of one post.
	MetadataPromptTemplate = `Write SEO metadata for a blog post in the "%s" niche targeting the keyword "%s".

- title: a compelling title under 70 characters that contains the keyword
- description: a meta description of at most %d characters
- related_terms: 3 to 6 closely related search terms`

	// OutlinePromptTemplate asks for the section structure of one post.
	OutlinePromptTemplate = `Create an outline for a blog post in the "%s" niche targeting the keyword "%s".

Return 4 to 7 sections. Each section has a title and 2 to 5 short talking points.
Mark at most two sections with illustrate=true where a picture would help the reader, and give those an image_prompt describing the picture and a short alt_text.`

	// ContentPartPromptTemplate asks for one sequential part of the body.
	ContentPartPromptTemplate = `You are writing part %d of %d of a long-form blog post in the "%s" niche targeting the keyword "%s".

Outline of the whole post:
%s
%s
Write part %d now in markdown paragraphs. Do not repeat earlier material, do not add a title, and do not use "## " headings.`

	// ShortDescriptionPromptTemplate asks for a fallback meta description.
	ShortDescriptionPromptTemplate = `Write a single-sentence meta description of at most %d characters for a post titled "%s" in the "%s" niche about "%s". Return only the sentence.`
)

func buildPlanPrompt(niche string, opts core.PlanOptions) string {
	return fmt.Sprintf(PlanPromptTemplate, niche, opts.Clusters, opts.KeywordsPerCluster)
}

func buildMetadataPrompt(niche, keyword string) string {
	return fmt.Sprintf(MetadataPromptTemplate, niche, keyword, backend.MaxDescriptionLength)
}

func buildOutlinePrompt(niche, keyword string) string {
	return fmt.Sprintf(OutlinePromptTemplate, niche, keyword)
}

func buildContentPartPrompt(req backend.PartRequest) string {
	var outline strings.Builder
	for i, s := range req.Outline.Sections {
		fmt.Fprintf(&outline, "%d. %s\n", i+1, s.Title)
		for _, p := range s.Points {
			fmt.Fprintf(&outline, "   - %s\n", p)
		}
	}

	previous := ""
	if req.Previous != "" {
		previous = fmt.Sprintf("\nThe post so far ends with:\n---\n%s\n---\n", req.Previous)
	}

	return fmt.Sprintf(ContentPartPromptTemplate,
		req.Index, req.Total, req.Niche, req.Keyword,
		outline.String(), previous, req.Index)
}

func buildShortDescriptionPrompt(title, niche, keyword string) string {
	return fmt.Sprintf(ShortDescriptionPromptTemplate, backend.MaxDescriptionLength, title, niche, keyword)
}
