package core

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Cluster is a named thematic grouping of keywords within a niche.
type Cluster struct {
	Name     string   `json:"cluster"`  // Human-readable cluster name
	Keywords []string `json:"keywords"` // Keywords in planner order
}

// Plan is the ordered list of clusters generated for a niche.
type Plan []Cluster

// Valid reports whether the plan has at least one cluster with a usable keyword.
func (p Plan) Valid() bool {
	for _, c := range p {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		for _, kw := range c.Keywords {
			if strings.TrimSpace(kw) != "" {
				return true
			}
		}
	}
	return false
}

// KeywordCount returns the total number of keywords across all clusters.
func (p Plan) KeywordCount() int {
	n := 0
	for _, c := range p {
		n += len(c.Keywords)
	}
	return n
}

// PlanOptions controls plan generation.
type PlanOptions struct {
	Clusters           int // Number of clusters to request
	KeywordsPerCluster int // Number of keywords per cluster
}

// Task is one (cluster, keyword) pair scheduled for document generation.
type Task struct {
	Index   int    `json:"index"`   // Position in the flattened plan
	Cluster string `json:"cluster"` // Owning cluster name
	Keyword string `json:"keyword"` // Target keyword
	Slug    string `json:"slug"`    // Unique slug within the niche
}

// Metadata is the SEO metadata generated for a keyword.
type Metadata struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	RelatedTerms []string `json:"related_terms"`
}

// Section is one outline entry of a post.
type Section struct {
	Title       string   `json:"title"`
	Points      []string `json:"points"`
	Illustrate  bool     `json:"illustrate,omitempty"`   // Whether an image follows the section
	ImagePrompt string   `json:"image_prompt,omitempty"` // Prompt for the section image
	AltText     string   `json:"alt_text,omitempty"`     // Alt text for the section image
}

// Outline is the ordered section structure of a post.
type Outline struct {
	Sections []Section `json:"sections"`
}

// Frontmatter is the metadata header written at the top of each post.
type Frontmatter struct {
	Title       string   `yaml:"title"`
	Slug        string   `yaml:"slug"`
	Date        string   `yaml:"date"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
	CoverImage  string   `yaml:"cover_image"`
	Cluster     string   `yaml:"cluster"`
}

// Slugify converts text into a lowercase, hyphen-separated, URL-safe slug.
func Slugify(s string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	if b.Len() == 0 {
		return "post"
	}
	return b.String()
}

// MergeKeywords joins keyword lists, dropping blanks and case-insensitive duplicates
// while keeping first-seen order.
func MergeKeywords(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, kw := range list {
			kw = strings.TrimSpace(kw)
			key := strings.ToLower(kw)
			if kw == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, kw)
		}
	}
	return out
}

// TitleCase upper-cases the first letter of every word.
func TitleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
