package verify

import (
	"github.com/aicmo/benchcheck/pkg/benchmark"
)

// Option configures a Validator.
type Option func(*Validator)

// WithFailFast stops validation of a section after the first check that
// reports an ERROR issue.
func WithFailFast(ff bool) Option {
	return func(v *Validator) {
		v.failFast = ff
	}
}

// Validator checks a single section's text against its benchmark rule.
// It performs no I/O and keeps no state between calls, so the same input
// always produces the same result. A Validator is safe for concurrent use.
type Validator struct {
	failFast bool
}

// NewValidator creates a section validator with the given options.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs every check against text and aggregates the issues.
func (v *Validator) Validate(sectionID, text string, rule benchmark.Rule) SectionResult {
	d := parseDocument(text)
	issues := make([]Issue, 0)

	for _, c := range checkers {
		found := c.check(d, rule)
		failed := false
		for _, is := range found {
			is.SectionID = sectionID
			issues = append(issues, is)
			if is.Severity == SeverityError {
				failed = true
			}
		}
		if failed && v.failFast {
			break
		}
	}

	return SectionResult{
		SectionID: sectionID,
		Status:    sectionStatus(issues),
		Issues:    issues,
		Score:     sectionScore(issues),
		Stats:     d.stats(),
	}
}

// ValidateSection is a convenience function that creates a default
// validator and validates one section.
func ValidateSection(sectionID, text string, rule benchmark.Rule) SectionResult {
	return NewValidator().Validate(sectionID, text, rule)
}
