package assembler

import (
	"context"
	"fmt"
	"strings"

	"postforge/internal/core"
	"postforge/internal/document"
)

// compose produces the cover, then renders the outline and the parts with one
// image between each adjacent pair. Images run only after every text stage, and
// the numbered ones share one counter across the whole pass. It returns the
// body and the cover reference, empty when the cover was dropped.
func (a *Assembler) compose(ctx context.Context, task core.Task, title string, outline core.Outline, parts []string, out *Outcome) (string, string, error) {
	cover := ""
	ok, err := a.image(ctx, title, CoverFile(a.opts.Root, task.Slug), out)
	if err != nil {
		return "", "", err
	}
	if ok {
		cover = CoverRef(task.Slug)
	}

	var blocks []string
	n := 0

	addImage := func(prompt, alt string) error {
		n++
		ok, err := a.image(ctx, prompt, ImageFile(a.opts.Root, task.Slug, n), out)
		if err != nil {
			return err
		}
		if ok {
			blocks = append(blocks, fmt.Sprintf("![%s](%s)", imageAlt(alt, n), ImageRef(task.Slug, n)))
		}
		return nil
	}

	for _, s := range outline.Sections {
		blocks = append(blocks, renderSection(s))
		if !s.Illustrate {
			continue
		}
		prompt := s.ImagePrompt
		if strings.TrimSpace(prompt) == "" {
			prompt = s.Title
		}
		alt := s.AltText
		if strings.TrimSpace(alt) == "" {
			alt = s.Title
		}
		if err := addImage(prompt, alt); err != nil {
			return "", "", err
		}
	}

	for k, part := range parts {
		blocks = append(blocks, CloseFences(part))
		if k == len(parts)-1 {
			break
		}
		prompt := InterPartPrompt(outline, k+1, task.Keyword)
		if err := addImage(prompt, prompt); err != nil {
			return "", "", err
		}
	}

	return strings.Join(blocks, "\n\n"), cover, nil
}

// CloseFences appends a closing code fence when text leaves one open, so a
// part can never swallow the content composed after it.
func CloseFences(text string) string {
	open := false
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			open = !open
		}
	}
	if !open {
		return text
	}
	return strings.TrimRight(text, "\n") + "\n```"
}

// InterPartPrompt returns the prompt of the image following part k (1-based):
// the title of section min(k-1, last), or a keyword prompt without sections.
func InterPartPrompt(outline core.Outline, k int, keyword string) string {
	if len(outline.Sections) == 0 {
		return fmt.Sprintf("Illustration about %s", keyword)
	}
	idx := k - 1
	if idx > len(outline.Sections)-1 {
		idx = len(outline.Sections) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return outline.Sections[idx].Title
}

func renderSection(s core.Section) string {
	var b strings.Builder
	b.WriteString(document.HeadingPrefix)
	b.WriteString(strings.TrimSpace(s.Title))
	for i, p := range s.Points {
		if i == 0 {
			b.WriteString("\n")
		}
		b.WriteString("\n- ")
		b.WriteString(strings.TrimSpace(p))
	}
	return b.String()
}

func imageAlt(alt string, n int) string {
	alt = strings.NewReplacer("[", "", "]", "", "\n", " ").Replace(strings.TrimSpace(alt))
	return fmt.Sprintf("%s (image %d)", alt, n)
}
