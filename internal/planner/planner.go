package planner

import (
	"context"
	"fmt"
	"strings"

	"postforge/internal/backend"
	"postforge/internal/core"
	"postforge/internal/logger"
)

// Default fallback plan size when options leave it unspecified.
const (
	DefaultFallbackClusters = 5
	DefaultFallbackKeywords = 5
)

var fallbackAngles = []string{
	"guide", "tips", "mistakes", "tools", "checklist",
	"for beginners", "advanced techniques", "faq", "trends", "case study",
}

// Flatten turns a plan into an ordered task list, cluster-major then
// keyword-minor, stopping at max tasks. max <= 0 means no limit.
// Blank keywords are skipped. Slugs are unique within the result: the first
// occurrence keeps the plain slug and later collisions get -2, -3, ...
func Flatten(plan core.Plan, max int) []core.Task {
	var tasks []core.Task
	slugs := NewSlugSet()

	for _, cluster := range plan {
		for _, kw := range cluster.Keywords {
			if max > 0 && len(tasks) >= max {
				return tasks
			}
			kw = strings.TrimSpace(kw)
			if kw == "" {
				continue
			}
			tasks = append(tasks, core.Task{
				Index:   len(tasks),
				Cluster: cluster.Name,
				Keyword: kw,
				Slug:    slugs.Claim(core.Slugify(kw)),
			})
		}
	}
	return tasks
}

// Batches splits tasks into consecutive batches of at most size tasks.
// size <= 0 returns a single batch.
func Batches(tasks []core.Task, size int) [][]core.Task {
	if len(tasks) == 0 {
		return nil
	}
	if size <= 0 || size >= len(tasks) {
		return [][]core.Task{tasks}
	}
	var out [][]core.Task
	for start := 0; start < len(tasks); start += size {
		end := start + size
		if end > len(tasks) {
			end = len(tasks)
		}
		out = append(out, tasks[start:end])
	}
	return out
}

// EnsurePlan asks gen for a plan and substitutes FallbackPlan when the call
// fails or the plan has no usable cluster. The returned plan is never empty.
func EnsurePlan(ctx context.Context, gen backend.Generator, niche string, opts core.PlanOptions) (core.Plan, bool) {
	plan, err := gen.ProducePlan(ctx, niche, opts)
	if err != nil {
		logger.Warn("Plan generation failed, using fallback plan", "niche", niche, "backend", gen.Name(), "error", err.Error())
		return FallbackPlan(niche, opts), true
	}

	plan = Normalize(plan)
	if !plan.Valid() {
		logger.Warn("Plan generation returned no usable clusters, using fallback plan", "niche", niche, "backend", gen.Name())
		return FallbackPlan(niche, opts), true
	}
	return plan, false
}

// Normalize trims names and keywords and drops clusters without a name or keywords.
func Normalize(plan core.Plan) core.Plan {
	var out core.Plan
	for _, c := range plan {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		var kws []string
		for _, kw := range c.Keywords {
			if kw = strings.TrimSpace(kw); kw != "" {
				kws = append(kws, kw)
			}
		}
		if len(kws) == 0 {
			continue
		}
		out = append(out, core.Cluster{Name: name, Keywords: kws})
	}
	return out
}

// FallbackPlan builds a deterministic plan of placeholder clusters for niche.
func FallbackPlan(niche string, opts core.PlanOptions) core.Plan {
	clusters := opts.Clusters
	if clusters <= 0 {
		clusters = DefaultFallbackClusters
	}
	perCluster := opts.KeywordsPerCluster
	if perCluster <= 0 {
		perCluster = DefaultFallbackKeywords
	}
	niche = strings.TrimSpace(niche)
	if niche == "" {
		niche = "general"
	}

	plan := make(core.Plan, 0, clusters)
	for c := 1; c <= clusters; c++ {
		cluster := core.Cluster{Name: fmt.Sprintf("%s Topic %d", core.TitleCase(niche), c)}
		for k := 0; k < perCluster; k++ {
			angle := fallbackAngles[k%len(fallbackAngles)]
			kw := fmt.Sprintf("%s topic %d %s", niche, c, angle)
			if round := k / len(fallbackAngles); round > 0 {
				kw = fmt.Sprintf("%s %d", kw, round+1)
			}
			cluster.Keywords = append(cluster.Keywords, kw)
		}
		plan = append(plan, cluster)
	}
	return plan
}

// SlugSet hands out unique slugs within one niche.
type SlugSet struct {
	seen map[string]bool
}

// NewSlugSet returns an empty SlugSet.
func NewSlugSet() *SlugSet {
	return &SlugSet{seen: make(map[string]bool)}
}

// Claim returns slug if unused, otherwise the first free slug-N with N >= 2.
func (s *SlugSet) Claim(slug string) string {
	candidate := slug
	for n := 2; s.seen[candidate]; n++ {
		candidate = fmt.Sprintf("%s-%d", slug, n)
	}
	s.seen[candidate] = true
	return candidate
}
