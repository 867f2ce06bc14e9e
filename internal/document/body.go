package document

import (
	"fmt"
	"strings"
)

// RegionKind classifies a run of body lines.
type RegionKind int

const (
	Text RegionKind = iota
	Heading
	Image
	LinkBlock
)

func (k RegionKind) String() string {
	switch k {
	case Heading:
		return "heading"
	case Image:
		return "image"
	case LinkBlock:
		return "link-block"
	default:
		return "text"
	}
}

// BlockKind identifies one of the generated link blocks.
type BlockKind string

const (
	RelatedEarly BlockKind = "related-early"
	RelatedEnd   BlockKind = "related-end"
	Nav          BlockKind = "nav"
)

// BlockKinds lists every link block kind in insertion order.
var BlockKinds = []BlockKind{RelatedEarly, RelatedEnd, Nav}

// HeadingPrefix marks a top-level section heading inside a post body.
const HeadingPrefix = "## "

const markerPrefix = "<!-- postforge:"

// StartMarker returns the serialized start marker of kind.
func StartMarker(kind BlockKind) string {
	return fmt.Sprintf("%s%s:start -->", markerPrefix, kind)
}

// EndMarker returns the serialized end marker of kind.
func EndMarker(kind BlockKind) string {
	return fmt.Sprintf("%s%s:end -->", markerPrefix, kind)
}

// Region is a typed, contiguous run of body lines. Lines keep their exact
// text so that serializing a parsed body reproduces it.
type Region struct {
	Kind  RegionKind
	Block BlockKind // set for LinkBlock regions
	Lines []string
}

// Body is a post body as an ordered sequence of regions.
type Body struct {
	Regions []Region
}

// ParseBody splits text into regions. Link blocks are recognised by their
// marker pair, even after an unbalanced code fence; a start marker without its
// end marker is an error. Headings and image lines inside fenced code are
// treated as plain text.
func ParseBody(text string) (*Body, error) {
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	b := &Body{}
	inFence := false

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if kind, ok := startMarkerKind(trimmed); ok {
			end := -1
			for j := i + 1; j < len(lines); j++ {
				if strings.TrimSpace(lines[j]) == EndMarker(kind) {
					end = j
					break
				}
			}
			if end < 0 {
				return nil, fmt.Errorf("unterminated %s block at line %d", kind, i+1)
			}
			b.Regions = append(b.Regions, Region{Kind: LinkBlock, Block: kind, Lines: copyLines(lines[i : end+1])})
			i = end
			continue
		}

		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			b.appendText(line)
			continue
		}
		if inFence {
			b.appendText(line)
			continue
		}

		switch {
		case strings.HasPrefix(line, HeadingPrefix):
			b.Regions = append(b.Regions, Region{Kind: Heading, Lines: []string{line}})
		case strings.HasPrefix(trimmed, "![") && strings.HasSuffix(trimmed, ")"):
			b.Regions = append(b.Regions, Region{Kind: Image, Lines: []string{line}})
		default:
			b.appendText(line)
		}
	}
	return b, nil
}

func startMarkerKind(line string) (BlockKind, bool) {
	for _, kind := range BlockKinds {
		if line == StartMarker(kind) {
			return kind, true
		}
	}
	return "", false
}

func copyLines(lines []string) []string {
	out := make([]string, len(lines))
	copy(out, lines)
	return out
}

func (b *Body) appendText(line string) {
	if n := len(b.Regions); n > 0 && b.Regions[n-1].Kind == Text {
		b.Regions[n-1].Lines = append(b.Regions[n-1].Lines, line)
		return
	}
	b.Regions = append(b.Regions, Region{Kind: Text, Lines: []string{line}})
}

// String serializes the body. Output always ends with a single newline
// appended after the last line.
func (b *Body) String() string {
	var lines []string
	for _, r := range b.Regions {
		lines = append(lines, r.Lines...)
	}
	return strings.Join(lines, "\n") + "\n"
}

// Has reports whether a link block of kind is present.
func (b *Body) Has(kind BlockKind) bool {
	return b.Count(kind) > 0
}

// Count returns the number of link blocks of kind.
func (b *Body) Count(kind BlockKind) int {
	n := 0
	for _, r := range b.Regions {
		if r.Kind == LinkBlock && r.Block == kind {
			n++
		}
	}
	return n
}

// Block returns the region of the first link block of kind.
func (b *Body) Block(kind BlockKind) (Region, bool) {
	for _, r := range b.Regions {
		if r.Kind == LinkBlock && r.Block == kind {
			return r, true
		}
	}
	return Region{}, false
}

// Headings returns the number of section headings.
func (b *Body) Headings() int {
	n := 0
	for _, r := range b.Regions {
		if r.Kind == Heading {
			n++
		}
	}
	return n
}

// HeadingIndex returns the region index of the nth (1-based) heading, or -1.
func (b *Body) HeadingIndex(n int) int {
	seen := 0
	for i, r := range b.Regions {
		if r.Kind == Heading {
			seen++
			if seen == n {
				return i
			}
		}
	}
	return -1
}

// InsertAfter inserts a link block right after region idx unless a block of
// the same kind already exists. It reports whether the body changed.
func (b *Body) InsertAfter(idx int, kind BlockKind, content []string) bool {
	if b.Has(kind) || idx < 0 || idx >= len(b.Regions) {
		return false
	}

	insert := []Region{
		{Kind: Text, Lines: []string{""}},
		newBlock(kind, content),
	}
	if idx+1 >= len(b.Regions) || !startsBlank(b.Regions[idx+1]) {
		insert = append(insert, Region{Kind: Text, Lines: []string{""}})
	}

	regions := make([]Region, 0, len(b.Regions)+len(insert))
	regions = append(regions, b.Regions[:idx+1]...)
	regions = append(regions, insert...)
	regions = append(regions, b.Regions[idx+1:]...)
	b.Regions = regions
	return true
}

// Append adds a link block at the end of the body unless a block of the same
// kind already exists. It reports whether the body changed.
func (b *Body) Append(kind BlockKind, content []string) bool {
	if b.Has(kind) {
		return false
	}
	if !b.endsBlank() {
		b.Regions = append(b.Regions, Region{Kind: Text, Lines: []string{""}})
	}
	b.Regions = append(b.Regions, newBlock(kind, content))
	return true
}

func newBlock(kind BlockKind, content []string) Region {
	lines := make([]string, 0, len(content)+2)
	lines = append(lines, StartMarker(kind))
	lines = append(lines, content...)
	lines = append(lines, EndMarker(kind))
	return Region{Kind: LinkBlock, Block: kind, Lines: lines}
}

func startsBlank(r Region) bool {
	return len(r.Lines) > 0 && strings.TrimSpace(r.Lines[0]) == ""
}

func (b *Body) endsBlank() bool {
	if len(b.Regions) == 0 {
		return true
	}
	last := b.Regions[len(b.Regions)-1]
	return len(last.Lines) > 0 && strings.TrimSpace(last.Lines[len(last.Lines)-1]) == ""
}
