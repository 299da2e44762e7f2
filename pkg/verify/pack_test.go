package verify

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aicmo/benchcheck/pkg/benchmark"
)

const socialPack = `{
	"expected_sections": ["overview", "metrics", "appendix"],
	"sections": {
		"overview": {
			"min_words": 3,
			"max_words": 100,
			"required_headings": ["Overview"],
			"forbidden_phrases": ["lorem ipsum"],
			"format": "freeform"
		},
		"metrics": {
			"min_words": 2,
			"max_words": 100,
			"format": "markdown_table"
		}
	}
}`

func newTestPackValidator(t *testing.T) *PackValidator {
	t.Helper()
	store := benchmark.NewStore(fstest.MapFS{
		"quick_social_basic.json": {Data: []byte(socialPack)},
	})
	return NewPackValidator(store, nil)
}

func goodSections() map[string]string {
	return map[string]string{
		"overview": "## Overview\nStrong growth this quarter.",
		"metrics":  "| kpi | value |\n| reach | 10k |",
	}
}

func TestPackValidatorPass(t *testing.T) {
	pv := newTestPackValidator(t)

	res, err := pv.Validate("quick_social_basic", goodSections())
	require.NoError(t, err)

	assert.Equal(t, "quick_social_basic", res.PackKey)
	assert.Equal(t, StatusPass, res.Overall)
	assert.True(t, res.Passed())
	assert.Equal(t, []string{"appendix"}, res.Skipped)
	assert.Equal(t, []string{"metrics", "overview"}, res.SectionIDs())
	assert.Empty(t, res.Failing())
	assert.Equal(t, 100, res.Score())
}

func TestPackValidatorSkippedSectionTextIsIgnored(t *testing.T) {
	pv := newTestPackValidator(t)

	sections := goodSections()
	sections["appendix"] = "lorem ipsum"

	res, err := pv.Validate("quick_social_basic", sections)
	require.NoError(t, err)
	assert.Equal(t, StatusPass, res.Overall)
	assert.NotContains(t, res.Sections, "appendix")
}

func TestPackValidatorUnexpectedSection(t *testing.T) {
	pv := newTestPackValidator(t)

	sections := goodSections()
	sections["email_and_crm_flows"] = "## Overview\n" + strings.Repeat("Excellent, compliant copy. ", 10)
	sections["a_pricing_table"] = "| plan | price |"

	res, err := pv.Validate("quick_social_basic", sections)
	require.NoError(t, err)

	assert.Equal(t, StatusFail, res.Overall)
	assert.Equal(t, []string{"a_pricing_table", "email_and_crm_flows"}, res.Failing())

	sr := res.Sections["email_and_crm_flows"]
	assert.Equal(t, StatusFail, sr.Status)
	assert.Equal(t, []IssueCode{CodeNoSectionConfig}, sr.Codes())
	assert.Equal(t, SeverityError, sr.Issues[0].Severity)
	assert.Equal(t, "email_and_crm_flows", sr.Issues[0].SectionID)
	assert.Equal(t, `section "email_and_crm_flows" is not part of pack "quick_social_basic"`, sr.Issues[0].Message)
	assert.Equal(t, 0, sr.Score)
	assert.Equal(t, 32, sr.Stats.Words)

	assert.Equal(t, 50, res.Score())
}

func TestPackValidatorMissingExpectedSection(t *testing.T) {
	pv := newTestPackValidator(t)

	res, err := pv.Validate("quick_social_basic", map[string]string{
		"overview": "## Overview\nStrong growth this quarter.",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusFail, res.Overall)
	assert.Equal(t, []string{"metrics"}, res.Failing())
	assert.Equal(t, []IssueCode{CodeTooShort, CodeWrongFormat}, res.Sections["metrics"].Codes())
}

func TestPackValidatorWarningsDoNotFail(t *testing.T) {
	pack := benchmark.Pack{
		Key:              "p",
		ExpectedSections: []string{"s"},
		Rules: map[string]benchmark.Rule{
			"s": {SectionID: "s", MaxAvgSentenceLength: 2},
		},
	}
	res := NewPackValidator(nil, nil).Evaluate(pack, map[string]string{"s": "one two three four"})

	assert.Equal(t, StatusPass, res.Overall)
	assert.Equal(t, StatusPassWithWarnings, res.Sections["s"].Status)
}

func TestPackValidatorConfigError(t *testing.T) {
	pv := newTestPackValidator(t)

	res, err := pv.Validate("no_such_pack", goodSections())
	assert.Nil(t, res)
	require.Error(t, err)
	assert.ErrorIs(t, err, benchmark.ErrConfig)
}

func TestPackValidatorDoesNotMutateInput(t *testing.T) {
	pv := newTestPackValidator(t)
	sections := goodSections()
	sections["extra"] = "text"

	_, err := pv.Validate("quick_social_basic", sections)
	require.NoError(t, err)
	assert.Len(t, sections, 3)
	assert.Equal(t, "text", sections["extra"])
}

func TestPackResultFeedback(t *testing.T) {
	pv := newTestPackValidator(t)

	res, err := pv.Validate("quick_social_basic", goodSections())
	require.NoError(t, err)
	assert.Empty(t, res.FormatFeedback())

	sections := goodSections()
	sections["overview"] = "Lorem ipsum"
	sections["extra"] = "text"
	res, err = pv.Validate("quick_social_basic", sections)
	require.NoError(t, err)

	fb := res.FormatFeedback()
	assert.True(t, strings.HasPrefix(fb, "## Benchmark Validation Failed\n"))
	assert.Contains(t, fb, "Pack `quick_social_basic`: 2 section(s) do not meet the benchmark.")
	assert.Contains(t, fb, "### extra\n\n- [ERROR] NO_SECTION_CONFIG:")
	assert.Contains(t, fb, "- [ERROR] TOO_SHORT: word count 2 is below the minimum of 3")
	assert.Contains(t, fb, `- [ERROR] FORBIDDEN_PHRASE: forbidden phrase "lorem ipsum" is present`)
	assert.Less(t, strings.Index(fb, "### extra"), strings.Index(fb, "### overview"))

	issues := res.IssuesFor("overview", "metrics", "unknown")
	assert.Len(t, issues, 1)
	assert.Len(t, issues["overview"], 3)

	all := res.IssuesFor()
	assert.Len(t, all, 2)
	assert.Contains(t, all, "extra")
}

func TestRenderFeedbackSubset(t *testing.T) {
	issues := map[string][]Issue{
		"overview": {{Code: CodeTooShort, Severity: SeverityError, Message: "too short", SectionID: "overview"}},
		"metrics":  {{Code: CodeWrongFormat, Severity: SeverityError, Message: "no table", SectionID: "metrics"}},
	}

	fb := RenderFeedback("quick_social_basic", []string{"metrics"}, issues)
	assert.Contains(t, fb, "Pack `quick_social_basic`: 1 section(s) do not meet the benchmark.")
	assert.Contains(t, fb, "### metrics\n\n- [ERROR] WRONG_FORMAT: no table\n")
	assert.NotContains(t, fb, "overview")

	assert.Empty(t, RenderFeedback("quick_social_basic", nil, issues))
}
