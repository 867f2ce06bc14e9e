// Package linkgraph weaves the posts of one niche into an internal link graph:
// related-reading blocks ranked within each cluster and a prev/next chain in
// slug order. Blocks are inserted only when absent, so rebuilding an already
// linked tree changes nothing.
package linkgraph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"postforge/internal/document"
	"postforge/internal/logger"
)

const (
	earlyLinks = 2
	endLinks   = 3

	earlyTitle   = "You might also like"
	endTitle     = "More in %s"
	navSeparator = " | "
)

// Options configures a Builder.
type Options struct {
	Policy         Policy
	Seed           int64
	AlwaysEndBlock bool // Append the end block even when the early block is present
}

// Result summarizes one build.
type Result struct {
	Documents int // Documents loaded
	Linked    int // Documents rewritten
	Unchanged int // Documents already up to date
	Skipped   int // Documents that could not be read or written
}

// Links is the computed neighbourhood of one document.
type Links struct {
	Early []*document.Document
	End   []*document.Document
	Prev  *document.Document
	Next  *document.Document
}

// Builder links the posts of a niche directory.
type Builder struct {
	opts Options
}

// New creates a Builder. An empty policy means similarity ranking.
func New(opts Options) *Builder {
	if opts.Policy == "" {
		opts.Policy = PolicySimilarity
	}
	return &Builder{opts: opts}
}

// PostsDir is the directory holding the posts of a niche root.
func PostsDir(root string) string {
	return filepath.Join(root, "content", "posts")
}

// Build loads every post under root, inserts missing link blocks and rewrites
// the documents that changed.
func (b *Builder) Build(ctx context.Context, root string) (Result, error) {
	docs, skipped, err := Load(PostsDir(root))
	if err != nil {
		return Result{}, err
	}
	result := Result{Documents: len(docs), Skipped: skipped}

	graph := b.Graph(docs)
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		before := doc.Bytes()
		b.Apply(doc, graph[doc.Front.Slug])
		if string(doc.Bytes()) == string(before) {
			result.Unchanged++
			continue
		}
		if err := doc.Save(); err != nil {
			logger.Warn("Failed to write linked document", "slug", doc.Front.Slug, "error", err.Error())
			result.Skipped++
			continue
		}
		result.Linked++
	}

	logger.Info("Link graph built", "root", root, "documents", result.Documents,
		"linked", result.Linked, "unchanged", result.Unchanged, "skipped", result.Skipped)
	return result, nil
}

// Load parses every *.md file in dir in slug order. Unreadable documents are
// logged and counted rather than failing the load.
func Load(dir string) ([]*document.Document, int, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, 0, fmt.Errorf("posts directory %s: %w", dir, err)
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list posts: %w", err)
	}

	var docs []*document.Document
	skipped := 0
	seen := make(map[string]bool)
	for _, path := range paths {
		doc, err := document.ReadFile(path)
		if err != nil {
			logger.Warn("Skipping unreadable post", "path", path, "error", err.Error())
			skipped++
			continue
		}
		if seen[doc.Front.Slug] {
			logger.Warn("Skipping post with duplicate slug", "path", path, "slug", doc.Front.Slug)
			skipped++
			continue
		}
		seen[doc.Front.Slug] = true
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Front.Slug < docs[j].Front.Slug })
	return docs, skipped, nil
}

// Graph computes the links of every document, keyed by slug. Peers are always
// in the same cluster.
func (b *Builder) Graph(docs []*document.Document) map[string]Links {
	clusters := make(map[string][]*document.Document)
	for _, doc := range docs {
		clusters[doc.Front.Cluster] = append(clusters[doc.Front.Cluster], doc)
	}

	graph := make(map[string]Links, len(docs))
	for _, members := range clusters {
		sort.Slice(members, func(i, j int) bool { return members[i].Front.Slug < members[j].Front.Slug })

		for i, doc := range members {
			var links Links
			if i > 0 {
				links.Prev = members[i-1]
			}
			if i < len(members)-1 {
				links.Next = members[i+1]
			}

			peers := make([]*document.Document, 0, len(members)-1)
			peers = append(peers, members[:i]...)
			peers = append(peers, members[i+1:]...)
			ranked := rank(doc, peers, b.opts.Policy, b.opts.Seed)

			links.Early = head(ranked, 0, earlyLinks)
			links.End = head(ranked, earlyLinks, earlyLinks+endLinks)
			if len(links.End) == 0 {
				links.End = head(ranked, 0, endLinks)
			}
			graph[doc.Front.Slug] = links
		}
	}
	return graph
}

// Apply inserts the blocks doc is missing. Existing blocks are never touched.
func (b *Builder) Apply(doc *document.Document, links Links) {
	body := doc.Body

	if len(links.Early) > 0 && body.Headings() >= 2 {
		body.InsertAfter(body.HeadingIndex(2), document.RelatedEarly, linkList(earlyTitle, links.Early))
	}

	if len(links.End) > 0 && (!body.Has(document.RelatedEarly) || b.opts.AlwaysEndBlock) {
		body.Append(document.RelatedEnd, linkList(fmt.Sprintf(endTitle, doc.Front.Cluster), links.End))
	}

	if links.Prev != nil || links.Next != nil {
		body.Append(document.Nav, navLine(links.Prev, links.Next))
	}
}

// PostURL is the site URL of the post with slug.
func PostURL(slug string) string {
	return "/posts/" + slug + "/"
}

func linkList(title string, docs []*document.Document) []string {
	lines := []string{"**" + title + "**", ""}
	for _, d := range docs {
		lines = append(lines, fmt.Sprintf("- [%s](%s)", linkText(d), PostURL(d.Front.Slug)))
	}
	return lines
}

func navLine(prev, next *document.Document) []string {
	var parts []string
	if prev != nil {
		parts = append(parts, fmt.Sprintf("← [%s](%s)", linkText(prev), PostURL(prev.Front.Slug)))
	}
	if next != nil {
		parts = append(parts, fmt.Sprintf("[%s](%s) →", linkText(next), PostURL(next.Front.Slug)))
	}
	return []string{strings.Join(parts, navSeparator)}
}

func linkText(d *document.Document) string {
	title := strings.TrimSpace(d.Front.Title)
	if title == "" {
		title = d.Front.Slug
	}
	return strings.NewReplacer("[", "(", "]", ")").Replace(title)
}

func head(docs []*document.Document, from, to int) []*document.Document {
	if from >= len(docs) {
		return nil
	}
	if to > len(docs) {
		to = len(docs)
	}
	return docs[from:to]
}
