// Package audit checks a linked niche tree for broken or misplaced links.
package audit

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"postforge/internal/document"
	"postforge/internal/linkgraph"
)

// IssueKind classifies an audit finding.
type IssueKind string

const (
	DanglingLink   IssueKind = "dangling-link"
	CrossCluster   IssueKind = "cross-cluster"
	SelfLink       IssueKind = "self-link"
	DuplicateBlock IssueKind = "duplicate-block"
	MissingImage   IssueKind = "missing-image"
)

// Issue is one finding in one post.
type Issue struct {
	Slug   string
	Kind   IssueKind
	Detail string
}

// Report is the result of auditing a niche directory.
type Report struct {
	Documents int
	Skipped   int
	Links     int
	Images    int
	Blocks    map[document.BlockKind]int
	Issues    []Issue
}

// OK reports whether the audit found no issues.
func (r Report) OK() bool {
	return len(r.Issues) == 0
}

// Count returns the number of issues of kind.
func (r Report) Count(kind IssueKind) int {
	n := 0
	for _, i := range r.Issues {
		if i.Kind == kind {
			n++
		}
	}
	return n
}

// Run audits every post under root.
func Run(root string) (Report, error) {
	docs, skipped, err := linkgraph.Load(linkgraph.PostsDir(root))
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Documents: len(docs),
		Skipped:   skipped,
		Blocks:    make(map[document.BlockKind]int),
	}

	clusters := make(map[string]string, len(docs))
	for _, d := range docs {
		clusters[d.Front.Slug] = d.Front.Cluster
	}

	for _, d := range docs {
		slug := d.Front.Slug
		for _, kind := range document.BlockKinds {
			n := d.Body.Count(kind)
			report.Blocks[kind] += n
			if n > 1 {
				report.add(slug, DuplicateBlock, fmt.Sprintf("%d %s blocks", n, kind))
			}
		}

		for _, r := range d.Body.Regions {
			if r.Kind != document.LinkBlock {
				continue
			}
			hrefs, err := anchors(r.Lines[1 : len(r.Lines)-1])
			if err != nil {
				return report, fmt.Errorf("%s: %w", slug, err)
			}
			for _, href := range hrefs {
				report.Links++
				target, ok := postSlug(href)
				switch {
				case !ok:
					report.add(slug, DanglingLink, fmt.Sprintf("%s block links outside posts: %s", r.Block, href))
				case target == slug:
					report.add(slug, SelfLink, fmt.Sprintf("%s block links to itself", r.Block))
				case !contains(clusters, target):
					report.add(slug, DanglingLink, fmt.Sprintf("%s block links to missing post %s", r.Block, target))
				case clusters[target] != d.Front.Cluster:
					report.add(slug, CrossCluster, fmt.Sprintf("%s block links to %s in cluster %q", r.Block, target, clusters[target]))
				}
			}
		}

		images, err := imageSources(d.Body.String())
		if err != nil {
			return report, fmt.Errorf("%s: %w", slug, err)
		}
		if d.Front.CoverImage != "" {
			images = append(images, d.Front.CoverImage)
		}
		for _, src := range images {
			report.Images++
			if !strings.HasPrefix(src, "/") {
				continue
			}
			if _, err := os.Stat(filepath.Join(root, "static", filepath.FromSlash(src))); err != nil {
				report.add(slug, MissingImage, src)
			}
		}
	}

	sort.SliceStable(report.Issues, func(i, j int) bool { return report.Issues[i].Slug < report.Issues[j].Slug })
	return report, nil
}

func (r *Report) add(slug string, kind IssueKind, detail string) {
	r.Issues = append(r.Issues, Issue{Slug: slug, Kind: kind, Detail: detail})
}

func contains(m map[string]string, key string) bool {
	_, ok := m[key]
	return ok
}

// postSlug extracts the slug from a /posts/<slug>/ URL.
func postSlug(href string) (string, bool) {
	if !strings.HasPrefix(href, "/posts/") {
		return "", false
	}
	slug := strings.Trim(strings.TrimPrefix(href, "/posts/"), "/")
	if slug == "" || strings.Contains(slug, "/") {
		return "", false
	}
	return slug, true
}

func renderHTML(md string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	return markdown.ToHTML([]byte(md), p, renderer)
}

func anchors(lines []string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(renderHTML(strings.Join(lines, "\n"))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse link block: %w", err)
	}
	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		hrefs = append(hrefs, href)
	})
	return hrefs, nil
}

func imageSources(body string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(renderHTML(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse body: %w", err)
	}
	var srcs []string
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		srcs = append(srcs, src)
	})
	return srcs, nil
}
