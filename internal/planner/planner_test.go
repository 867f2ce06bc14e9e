package planner

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"postforge/internal/backend"
	"postforge/internal/core"
)

type stubGenerator struct {
	plan core.Plan
	err  error
}

func (s *stubGenerator) Name() string { return "stub" }
func (s *stubGenerator) ProducePlan(ctx context.Context, niche string, opts core.PlanOptions) (core.Plan, error) {
	return s.plan, s.err
}
func (s *stubGenerator) ProduceMetadata(ctx context.Context, niche, keyword string) (core.Metadata, error) {
	return core.Metadata{}, nil
}
func (s *stubGenerator) ProduceOutline(ctx context.Context, niche, keyword string) (core.Outline, error) {
	return core.Outline{}, nil
}
func (s *stubGenerator) ProduceContentPart(ctx context.Context, req backend.PartRequest) (string, error) {
	return "", nil
}
func (s *stubGenerator) ProduceShortDescription(ctx context.Context, title, niche, keyword string) (string, error) {
	return "", nil
}

func samplePlan() core.Plan {
	return core.Plan{
		{Name: "Shoes", Keywords: []string{"trail shoes", "road shoes", "racing flats"}},
		{Name: "Training", Keywords: []string{"tempo runs", "long runs"}},
		{Name: "Nutrition", Keywords: []string{"gels"}},
	}
}

func TestFlatten_OrderAndLimit(t *testing.T) {
	plan := samplePlan()

	for max := 0; max <= 8; max++ {
		tasks := Flatten(plan, max)
		limit := max
		if max == 0 || max > plan.KeywordCount() {
			limit = plan.KeywordCount()
		}
		if len(tasks) != limit {
			t.Fatalf("Flatten(max=%d) returned %d tasks, want %d", max, len(tasks), limit)
		}

		want := []string{"trail shoes", "road shoes", "racing flats", "tempo runs", "long runs", "gels"}
		for i, task := range tasks {
			if task.Keyword != want[i] {
				t.Errorf("max=%d task %d keyword = %q, want %q", max, i, task.Keyword, want[i])
			}
			if task.Index != i {
				t.Errorf("max=%d task %d index = %d", max, i, task.Index)
			}
		}
	}

	tasks := Flatten(plan, 4)
	if tasks[3].Cluster != "Training" || tasks[2].Cluster != "Shoes" {
		t.Errorf("tasks should keep their owning cluster: %+v", tasks)
	}
}

func TestFlatten_DisambiguatesSlugs(t *testing.T) {
	plan := core.Plan{
		{Name: "A", Keywords: []string{"Trail Shoes", "trail-shoes", "  ", "trail shoes!"}},
		{Name: "B", Keywords: []string{"trail shoes 2", "TRAIL SHOES"}},
	}

	tasks := Flatten(plan, 0)
	got := make([]string, len(tasks))
	for i, task := range tasks {
		got[i] = task.Slug
	}
	want := []string{"trail-shoes", "trail-shoes-2", "trail-shoes-3", "trail-shoes-2-2", "trail-shoes-4"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("slugs = %v, want %v", got, want)
	}

	// Same plan, same slugs.
	again := Flatten(plan, 0)
	for i := range again {
		if again[i].Slug != tasks[i].Slug {
			t.Errorf("slug assignment is not deterministic at %d", i)
		}
	}
}

func TestBatches(t *testing.T) {
	tasks := Flatten(samplePlan(), 0)

	batches := Batches(tasks, 4)
	if len(batches) != 2 || len(batches[0]) != 4 || len(batches[1]) != 2 {
		t.Fatalf("unexpected batch shape: %d batches", len(batches))
	}
	if batches[1][0].Keyword != "long runs" {
		t.Errorf("second batch should start at task 4, got %q", batches[1][0].Keyword)
	}

	if got := Batches(tasks, 0); len(got) != 1 || len(got[0]) != len(tasks) {
		t.Errorf("size 0 should produce one batch")
	}
	if got := Batches(nil, 3); got != nil {
		t.Errorf("no tasks should produce no batches")
	}
}

func TestEnsurePlan_UsesGeneratedPlan(t *testing.T) {
	gen := &stubGenerator{plan: core.Plan{
		{Name: " Shoes ", Keywords: []string{" trail shoes ", ""}},
		{Name: "", Keywords: []string{"orphan"}},
	}}

	plan, fallback := EnsurePlan(context.Background(), gen, "running", core.PlanOptions{})
	if fallback {
		t.Fatal("valid plan should not trigger the fallback")
	}
	if len(plan) != 1 || plan[0].Name != "Shoes" || len(plan[0].Keywords) != 1 || plan[0].Keywords[0] != "trail shoes" {
		t.Errorf("plan was not normalized: %+v", plan)
	}
}

func TestEnsurePlan_FallsBack(t *testing.T) {
	opts := core.PlanOptions{Clusters: 3, KeywordsPerCluster: 4}

	cases := map[string]*stubGenerator{
		"error":     {err: errors.New("quota exceeded")},
		"empty":     {plan: core.Plan{}},
		"malformed": {plan: core.Plan{{Name: "x"}}},
	}
	for name, gen := range cases {
		plan, fallback := EnsurePlan(context.Background(), gen, "home espresso", opts)
		if !fallback {
			t.Errorf("%s: expected fallback", name)
		}
		if len(plan) != 3 || plan.KeywordCount() != 12 {
			t.Errorf("%s: fallback plan has %d clusters / %d keywords", name, len(plan), plan.KeywordCount())
		}
		if len(Flatten(plan, 0)) == 0 {
			t.Errorf("%s: fallback plan must yield tasks", name)
		}
	}
}

func TestFallbackPlan_Deterministic(t *testing.T) {
	a := FallbackPlan("home espresso", core.PlanOptions{Clusters: 2, KeywordsPerCluster: 12})
	b := FallbackPlan("home espresso", core.PlanOptions{Clusters: 2, KeywordsPerCluster: 12})
	if fmt.Sprint(a) != fmt.Sprint(b) {
		t.Error("fallback plan should be deterministic")
	}
	if a[0].Name != "Home Espresso Topic 1" {
		t.Errorf("cluster name = %q", a[0].Name)
	}

	tasks := Flatten(a, 0)
	seen := map[string]bool{}
	for _, task := range tasks {
		if seen[task.Slug] {
			t.Errorf("fallback plan produced a slug collision: %s", task.Slug)
		}
		seen[task.Slug] = true
	}
}
