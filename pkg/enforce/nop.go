package enforce

import (
	"context"
	"maps"

	"github.com/aicmo/benchcheck/pkg/verify"
)

// Nop is an Enforcer that validates nothing. It returns the sections
// unchanged with a synthetic passing result and never calls the
// regenerator. Inject it where enforcement is deliberately disabled, such
// as fast test runs.
type Nop struct{}

func (Nop) Enforce(_ context.Context, packKey string, sections map[string]string, _ Regenerator) (*Outcome, error) {
	final := maps.Clone(sections)
	if final == nil {
		final = make(map[string]string)
	}
	res := &verify.PackResult{
		PackKey:  packKey,
		Overall:  verify.StatusPass,
		Sections: make(map[string]verify.SectionResult, len(final)),
	}
	for id := range final {
		res.Sections[id] = verify.SectionResult{
			SectionID: id,
			Status:    verify.StatusPass,
			Issues:    []verify.Issue{},
			Score:     100,
		}
	}
	return &Outcome{
		FinalSections:  final,
		AttemptsUsed:   0,
		LastValidation: res,
	}, nil
}
