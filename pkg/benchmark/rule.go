package benchmark

import (
	"slices"
	"sort"
)

// Format names the structural shape a section's text must take.
type Format string

const (
	FormatMarkdownTable Format = "markdown_table"
	FormatBullets       Format = "bullets"
	FormatFreeform      Format = "freeform"
)

// Valid reports whether f is one of the recognized formats.
func (f Format) Valid() bool {
	switch f {
	case FormatMarkdownTable, FormatBullets, FormatFreeform:
		return true
	}
	return false
}

// Rule is the quality contract for one report section.
// A zero MaxWords, MaxBullets or MaxAvgSentenceLength means that upper
// bound is not checked.
type Rule struct {
	SectionID            string   `json:"section_id" yaml:"section_id"`
	MinWords             int      `json:"min_words" yaml:"min_words"`
	MaxWords             int      `json:"max_words" yaml:"max_words"`
	RequiredHeadings     []string `json:"required_headings,omitempty" yaml:"required_headings,omitempty"`
	RequiredPhrases      []string `json:"required_phrases,omitempty" yaml:"required_phrases,omitempty"`
	ForbiddenPhrases     []string `json:"forbidden_phrases,omitempty" yaml:"forbidden_phrases,omitempty"`
	Format               Format   `json:"format" yaml:"format"`
	MinBullets           int      `json:"min_bullets,omitempty" yaml:"min_bullets,omitempty"`
	MaxBullets           int      `json:"max_bullets,omitempty" yaml:"max_bullets,omitempty"`
	MaxAvgSentenceLength float64  `json:"max_avg_sentence_length,omitempty" yaml:"max_avg_sentence_length,omitempty"`
}

func (r Rule) clone() Rule {
	r.RequiredHeadings = slices.Clone(r.RequiredHeadings)
	r.RequiredPhrases = slices.Clone(r.RequiredPhrases)
	r.ForbiddenPhrases = slices.Clone(r.ForbiddenPhrases)
	return r
}

// Pack is a named bundle of report sections together with the benchmark
// rules that govern them.
type Pack struct {
	Key string `json:"key"`

	// ExpectedSections is the whitelist of section ids a generated report
	// for this pack may contain, in report order.
	ExpectedSections []string `json:"expected_sections"`

	// Rules holds the benchmark for each section that has one. Expected
	// sections without an entry are not validated.
	Rules map[string]Rule `json:"rules"`

	// Source is the path of the file the pack was loaded from.
	Source string `json:"source"`
}

// Expects reports whether sectionID is on the pack's whitelist.
func (p Pack) Expects(sectionID string) bool {
	return slices.Contains(p.ExpectedSections, sectionID)
}

// Rule returns the rule for sectionID, if the pack defines one.
func (p Pack) Rule(sectionID string) (Rule, bool) {
	r, ok := p.Rules[sectionID]
	if !ok {
		return Rule{}, false
	}
	return r.clone(), true
}

// RuleIDs returns the ids of all sections that carry a rule, sorted.
func (p Pack) RuleIDs() []string {
	ids := make([]string, 0, len(p.Rules))
	for id := range p.Rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p Pack) clone() Pack {
	out := Pack{
		Key:              p.Key,
		ExpectedSections: slices.Clone(p.ExpectedSections),
		Rules:            make(map[string]Rule, len(p.Rules)),
		Source:           p.Source,
	}
	for id, r := range p.Rules {
		out.Rules[id] = r.clone()
	}
	return out
}
