package linkgraph

import (
	"hash/fnv"
	"math/rand/v2"
	"sort"
	"strings"
	"unicode"

	"postforge/internal/document"
)

// Policy selects how related peers are ranked.
type Policy string

const (
	PolicySimilarity Policy = "similarity"
	PolicyRandom     Policy = "random"
)

// Tokens returns the lower-cased word set of a document's keywords and title.
func Tokens(doc *document.Document) map[string]bool {
	set := make(map[string]bool)
	add := func(s string) {
		for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			set[w] = true
		}
	}
	for _, kw := range doc.Front.Keywords {
		add(kw)
	}
	add(doc.Front.Title)
	return set
}

// Jaccard returns |A∩B| / max(1, |A∪B|).
func Jaccard(a, b map[string]bool) float64 {
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union < 1 {
		union = 1
	}
	return float64(inter) / float64(union)
}

// Similarity is the Jaccard similarity of two documents' token sets.
func Similarity(a, b *document.Document) float64 {
	return Jaccard(Tokens(a), Tokens(b))
}

type scored struct {
	doc   *document.Document
	score float64
}

// rank orders peers of doc. peers must already be sorted by slug so that ties
// and shuffles are reproducible.
func rank(doc *document.Document, peers []*document.Document, policy Policy, seed int64) []*document.Document {
	out := make([]*document.Document, len(peers))
	copy(out, peers)

	if policy == PolicyRandom {
		r := rand.New(rand.NewPCG(uint64(seed), slugHash(doc.Front.Slug)))
		r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		return out
	}

	tokens := Tokens(doc)
	list := make([]scored, len(out))
	for i, p := range out {
		list[i] = scored{doc: p, score: Jaccard(tokens, Tokens(p))}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].score > list[j].score })
	for i, s := range list {
		out[i] = s.doc
	}
	return out
}

func slugHash(slug string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(slug))
	return h.Sum64()
}
