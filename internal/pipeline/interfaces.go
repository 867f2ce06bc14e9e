package pipeline

import (
	"context"

	"postforge/internal/core"
	"postforge/internal/linkgraph"
	"postforge/internal/store"
)

// Ledger records run progress so an interrupted run can resume
type Ledger interface {
	// StartRun records a new run and returns it with its id
	StartRun(niche, backend, imageBackend string) (*store.Run, error)

	// FinishRun stores the final state of a run
	FinishRun(id, status string, posts, skipped int, runErr error) error

	// SavePlan stores the plan used for a niche
	SavePlan(niche string, plan core.Plan, fallback bool) error

	// GetPlan returns the stored plan of a niche, nil when absent
	GetPlan(niche string) (core.Plan, bool, error)

	// RecordTask stores the latest state of one task
	RecordTask(rec store.TaskRecord) error

	// CompletedSlugs returns the slugs already written for a niche
	CompletedSlugs(niche string) (map[string]bool, error)
}

// LinkBuilder weaves the generated posts of a niche into a link graph
type LinkBuilder interface {
	// Build links every post under root and reports what changed
	Build(ctx context.Context, root string) (linkgraph.Result, error)
}
