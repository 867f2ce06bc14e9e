package assembler

import (
	"fmt"

	"postforge/internal/config"
)

// Policy decides what a failed capability does to its task.
type Policy string

const (
	PolicyAbort    Policy = "abort"    // Fail the run
	PolicySkip     Policy = "skip"     // Drop the task (or image) and continue
	PolicyFallback Policy = "fallback" // Substitute a placeholder image
)

// Stage names a step of post assembly.
type Stage string

const (
	StageMetadata Stage = "metadata"
	StageOutline  Stage = "outline"
	StageContent  Stage = "content"
	StageImage    Stage = "image"
)

// FailurePolicy holds one policy per capability.
type FailurePolicy struct {
	Metadata Policy
	Outline  Policy
	Content  Policy
	Image    Policy
}

// DefaultFailurePolicy aborts on text failures and substitutes placeholder images.
func DefaultFailurePolicy() FailurePolicy {
	return FailurePolicy{
		Metadata: PolicyAbort,
		Outline:  PolicyAbort,
		Content:  PolicyAbort,
		Image:    PolicyFallback,
	}
}

// PolicyFromConfig converts the validated failure section.
func PolicyFromConfig(cfg config.Failure) FailurePolicy {
	p := DefaultFailurePolicy()
	if cfg.Metadata != "" {
		p.Metadata = Policy(cfg.Metadata)
	}
	if cfg.Outline != "" {
		p.Outline = Policy(cfg.Outline)
	}
	if cfg.Content != "" {
		p.Content = Policy(cfg.Content)
	}
	if cfg.Image != "" {
		p.Image = Policy(cfg.Image)
	}
	return p
}

// StageError is returned when a failure aborts the run.
type StageError struct {
	Slug  string
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed for %s: %v", e.Stage, e.Slug, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
