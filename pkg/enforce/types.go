package enforce

import (
	"context"

	"github.com/aicmo/benchcheck/pkg/history"
	"github.com/aicmo/benchcheck/pkg/verify"
)

// State is a step of the enforcement state machine.
type State string

const (
	StateValidating     State = "VALIDATING"
	StateRegenerating   State = "REGENERATING"
	StatePassed         State = "PASSED"
	StateFailedTerminal State = "FAILED_TERMINAL"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StatePassed || s == StateFailedTerminal
}

// Request asks a Regenerator for new text for the sections that failed.
type Request struct {
	RunID   string `json:"run_id"`
	PackKey string `json:"pack_key"`

	// Attempt is the number of validation passes completed so far.
	Attempt int `json:"attempt"`

	// SectionIDs lists the failing sections, sorted.
	SectionIDs []string `json:"section_ids"`

	// Issues holds the itemized issues of every failing section.
	Issues map[string][]verify.Issue `json:"issues"`

	// Sections holds the current text of the failing sections.
	Sections map[string]string `json:"sections"`

	// Feedback is Issues rendered as markdown for a generation prompt.
	Feedback string `json:"feedback"`
}

// Regenerator produces replacement text for failing sections. It is a
// black box to the orchestrator: it is called synchronously and never
// retried. Returned ids that were not requested are ignored.
type Regenerator interface {
	Regenerate(ctx context.Context, req Request) (map[string]string, error)
}

// RegeneratorFunc adapts a function to the Regenerator interface.
type RegeneratorFunc func(ctx context.Context, req Request) (map[string]string, error)

func (f RegeneratorFunc) Regenerate(ctx context.Context, req Request) (map[string]string, error) {
	return f(ctx, req)
}

// PackChecker validates a report's sections against a pack.
// *verify.PackValidator satisfies it.
type PackChecker interface {
	Validate(packKey string, sections map[string]string) (*verify.PackResult, error)
}

// Recorder persists a summary of every enforcement run.
// *history.BoltStore satisfies it.
type Recorder interface {
	Record(ctx context.Context, rec history.RunRecord) error
}

// Enforcer guards report delivery behind benchmark validation.
type Enforcer interface {
	Enforce(ctx context.Context, packKey string, sections map[string]string, regen Regenerator) (*Outcome, error)
}

// Outcome is the result of an enforcement run that passed.
type Outcome struct {
	RunID string `json:"run_id"`

	// FinalSections is the validated report: the input sections with
	// regenerated text merged in. It never aliases the caller's map.
	FinalSections map[string]string `json:"final_sections"`

	// AttemptsUsed counts validation passes, including the first.
	AttemptsUsed int `json:"attempts_used"`

	LastValidation *verify.PackResult `json:"last_validation"`

	// Regenerated lists the sections whose text was replaced, sorted.
	Regenerated []string `json:"regenerated,omitempty"`
}
