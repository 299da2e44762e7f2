package benchmark

import (
	"fmt"
	"sort"
	"strings"
)

// rawPack mirrors the on-disk pack document. Pointer fields distinguish an
// absent key from an explicit zero.
type rawPack struct {
	ExpectedSections *[]string         `json:"expected_sections" yaml:"expected_sections"`
	Sections         map[string]rawRule `json:"sections" yaml:"sections"`
}

type rawRule struct {
	MinWords             *int     `json:"min_words" yaml:"min_words"`
	MaxWords             *int     `json:"max_words" yaml:"max_words"`
	RequiredHeadings     []string `json:"required_headings" yaml:"required_headings"`
	RequiredPhrases      []string `json:"required_phrases" yaml:"required_phrases"`
	ForbiddenPhrases     []string `json:"forbidden_phrases" yaml:"forbidden_phrases"`
	Format               *string  `json:"format" yaml:"format"`
	MinBullets           *int     `json:"min_bullets" yaml:"min_bullets"`
	MaxBullets           *int     `json:"max_bullets" yaml:"max_bullets"`
	MaxAvgSentenceLength *float64 `json:"max_avg_sentence_length" yaml:"max_avg_sentence_length"`
}

// buildPack checks raw against the pack schema and converts it. All
// violations are collected rather than stopping at the first.
func buildPack(key, source string, raw rawPack) (Pack, SchemaErrors) {
	var errs SchemaErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if len(raw.Sections) == 0 {
		add("sections", "required and must not be empty")
	}

	pack := Pack{
		Key:    key,
		Rules:  make(map[string]Rule, len(raw.Sections)),
		Source: source,
	}

	ids := make([]string, 0, len(raw.Sections))
	for id := range raw.Sections {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		field := "sections." + id
		if strings.TrimSpace(id) == "" {
			add("sections", "section id must not be blank")
			continue
		}
		rule, ruleErrs := buildRule(id, field, raw.Sections[id])
		errs = append(errs, ruleErrs...)
		pack.Rules[id] = rule
	}

	if raw.ExpectedSections == nil {
		pack.ExpectedSections = ids
	} else {
		seen := make(map[string]bool, len(*raw.ExpectedSections))
		for i, id := range *raw.ExpectedSections {
			field := fmt.Sprintf("expected_sections[%d]", i)
			switch {
			case strings.TrimSpace(id) == "":
				add(field, "must not be blank")
			case seen[id]:
				add(field, "duplicate section %q", id)
			}
			seen[id] = true
		}
		if len(*raw.ExpectedSections) == 0 {
			add("expected_sections", "must not be empty when present")
		}
		for _, id := range ids {
			if !seen[id] {
				add("sections."+id, "not listed in expected_sections")
			}
		}
		pack.ExpectedSections = append([]string(nil), *raw.ExpectedSections...)
	}

	return pack, errs
}

func buildRule(id, field string, raw rawRule) (Rule, SchemaErrors) {
	var errs SchemaErrors
	add := func(sub, format string, args ...any) {
		errs = append(errs, FieldError{Field: field + "." + sub, Message: fmt.Sprintf(format, args...)})
	}

	rule := Rule{
		SectionID:        id,
		RequiredHeadings: raw.RequiredHeadings,
		RequiredPhrases:  raw.RequiredPhrases,
		ForbiddenPhrases: raw.ForbiddenPhrases,
	}

	if raw.MinWords == nil {
		add("min_words", "required")
	} else {
		rule.MinWords = *raw.MinWords
	}
	if raw.MaxWords == nil {
		add("max_words", "required")
	} else {
		rule.MaxWords = *raw.MaxWords
	}
	if rule.MinWords < 0 {
		add("min_words", "must not be negative")
	}
	if rule.MaxWords < 0 {
		add("max_words", "must not be negative")
	}
	if raw.MinWords != nil && raw.MaxWords != nil && rule.MinWords > rule.MaxWords {
		add("min_words", "must not exceed max_words (%d > %d)", rule.MinWords, rule.MaxWords)
	}

	if raw.Format == nil {
		add("format", "required")
	} else {
		rule.Format = Format(*raw.Format)
		if !rule.Format.Valid() {
			add("format", "unknown format %q (expected %s, %s or %s)",
				*raw.Format, FormatMarkdownTable, FormatBullets, FormatFreeform)
		}
	}

	if raw.MinBullets != nil {
		rule.MinBullets = *raw.MinBullets
		if rule.MinBullets < 0 {
			add("min_bullets", "must not be negative")
		}
	}
	if raw.MaxBullets != nil {
		rule.MaxBullets = *raw.MaxBullets
		if rule.MaxBullets < 0 {
			add("max_bullets", "must not be negative")
		}
	}
	if rule.Format == FormatBullets {
		if raw.MinBullets == nil {
			add("min_bullets", "required when format is %s", FormatBullets)
		}
		if raw.MinBullets != nil && raw.MaxBullets != nil && rule.MaxBullets > 0 && rule.MinBullets > rule.MaxBullets {
			add("min_bullets", "must not exceed max_bullets (%d > %d)", rule.MinBullets, rule.MaxBullets)
		}
	} else if rule.Format.Valid() {
		if raw.MinBullets != nil {
			add("min_bullets", "only applies to format %s", FormatBullets)
		}
		if raw.MaxBullets != nil {
			add("max_bullets", "only applies to format %s", FormatBullets)
		}
	}

	if raw.MaxAvgSentenceLength != nil {
		rule.MaxAvgSentenceLength = *raw.MaxAvgSentenceLength
		if rule.MaxAvgSentenceLength < 0 {
			add("max_avg_sentence_length", "must not be negative")
		}
	}

	checkPhrases := func(sub string, list []string) {
		for i, p := range list {
			if strings.TrimSpace(p) == "" {
				add(fmt.Sprintf("%s[%d]", sub, i), "must not be blank")
			}
		}
	}
	checkPhrases("required_headings", raw.RequiredHeadings)
	checkPhrases("required_phrases", raw.RequiredPhrases)
	checkPhrases("forbidden_phrases", raw.ForbiddenPhrases)

	return rule, errs
}
