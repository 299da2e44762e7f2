package verify

import (
	"fmt"
	"sort"

	"github.com/aicmo/benchcheck/pkg/benchmark"
)

// RuleSource resolves a pack key to its benchmark pack.
// *benchmark.Store satisfies it.
type RuleSource interface {
	Pack(packKey string) (benchmark.Pack, error)
}

// PackValidator validates every section of a generated report against the
// pack it was generated for.
type PackValidator struct {
	source    RuleSource
	validator *Validator
}

// NewPackValidator creates a pack validator. A nil validator uses the
// default section validator.
func NewPackValidator(source RuleSource, v *Validator) *PackValidator {
	if v == nil {
		v = NewValidator()
	}
	return &PackValidator{source: source, validator: v}
}

// Validate checks sections against the pack. Expected sections with a rule
// are validated, a missing text counting as empty; expected sections
// without a rule are skipped. Any section not on the pack's whitelist
// fails with NO_SECTION_CONFIG. The only error is a pack that fails to
// load, which is a *benchmark.ConfigError.
func (pv *PackValidator) Validate(packKey string, sections map[string]string) (*PackResult, error) {
	pack, err := pv.source.Pack(packKey)
	if err != nil {
		return nil, err
	}
	return pv.Evaluate(pack, sections), nil
}

// Evaluate checks sections against an already loaded pack.
func (pv *PackValidator) Evaluate(pack benchmark.Pack, sections map[string]string) *PackResult {
	result := &PackResult{
		PackKey:  pack.Key,
		Overall:  StatusPass,
		Sections: make(map[string]SectionResult, len(sections)),
	}

	for _, id := range pack.ExpectedSections {
		rule, ok := pack.Rule(id)
		if !ok {
			result.Skipped = append(result.Skipped, id)
			continue
		}
		result.Sections[id] = pv.validator.Validate(id, sections[id], rule)
	}

	var unexpected []string
	for id := range sections {
		if !pack.Expects(id) {
			unexpected = append(unexpected, id)
		}
	}
	sort.Strings(unexpected)
	for _, id := range unexpected {
		issues := []Issue{{
			Code:      CodeNoSectionConfig,
			Severity:  SeverityError,
			Message:   fmt.Sprintf("section %q is not part of pack %q", id, pack.Key),
			SectionID: id,
		}}
		result.Sections[id] = SectionResult{
			SectionID: id,
			Status:    StatusFail,
			Issues:    issues,
			Score:     0,
			Stats:     parseDocument(sections[id]).stats(),
		}
	}

	for _, sr := range result.Sections {
		if sr.Status == StatusFail {
			result.Overall = StatusFail
			break
		}
	}
	return result
}
