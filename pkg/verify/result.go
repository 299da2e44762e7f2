package verify

import "sort"

// IssueCode identifies the check that produced an Issue.
type IssueCode string

const (
	CodeTooShort         IssueCode = "TOO_SHORT"
	CodeTooLong          IssueCode = "TOO_LONG"
	CodeTooFewHeadings   IssueCode = "TOO_FEW_HEADINGS"
	CodeMissingPhrase    IssueCode = "MISSING_PHRASE"
	CodeForbiddenPhrase  IssueCode = "FORBIDDEN_PHRASE"
	CodeWrongFormat      IssueCode = "WRONG_FORMAT"
	CodeSentencesTooLong IssueCode = "SENTENCES_TOO_LONG"
	CodeNoSectionConfig  IssueCode = "NO_SECTION_CONFIG"
)

// Severity grades an Issue. Only ERROR issues fail a section.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// Issue is one failed or warned check. Issues are data, never errors.
type Issue struct {
	Code      IssueCode `json:"code"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	SectionID string    `json:"section_id"`
}

// Status is the outcome of validating a section or a whole pack.
type Status string

const (
	StatusPass             Status = "PASS"
	StatusPassWithWarnings Status = "PASS_WITH_WARNINGS"
	StatusFail             Status = "FAIL"
)

// Stats describes the measured shape of a section's text.
type Stats struct {
	Words             int     `json:"words"`
	Headings          int     `json:"headings"`
	Bullets           int     `json:"bullets"`
	TableRows         int     `json:"table_rows"`
	Sentences         int     `json:"sentences"`
	AvgSentenceLength float64 `json:"avg_sentence_length"`
}

// SectionResult is the outcome of validating one section against its rule.
type SectionResult struct {
	SectionID string  `json:"section_id"`
	Status    Status  `json:"status"`
	Issues    []Issue `json:"issues"`
	Score     int     `json:"score"`
	Stats     Stats   `json:"stats"`
}

// Passed reports whether the section has no ERROR issues.
func (r SectionResult) Passed() bool {
	return r.Status != StatusFail
}

// Errors returns the ERROR issues in check order.
func (r SectionResult) Errors() []Issue {
	return filterSeverity(r.Issues, SeverityError)
}

// Warnings returns the WARNING issues in check order.
func (r SectionResult) Warnings() []Issue {
	return filterSeverity(r.Issues, SeverityWarning)
}

// Codes returns the code of every issue in check order.
func (r SectionResult) Codes() []IssueCode {
	codes := make([]IssueCode, len(r.Issues))
	for i, is := range r.Issues {
		codes[i] = is.Code
	}
	return codes
}

func filterSeverity(issues []Issue, sev Severity) []Issue {
	var out []Issue
	for _, is := range issues {
		if is.Severity == sev {
			out = append(out, is)
		}
	}
	return out
}

// PackResult aggregates the section results of one pack validation. It is
// built once per validation call and not modified afterwards.
type PackResult struct {
	PackKey  string                   `json:"pack_key"`
	Overall  Status                   `json:"overall_status"`
	Sections map[string]SectionResult `json:"sections"`

	// Skipped lists expected sections that have no rule and were not
	// validated.
	Skipped []string `json:"skipped,omitempty"`
}

// Passed reports whether no section failed.
func (r *PackResult) Passed() bool {
	return r.Overall != StatusFail
}

// SectionIDs returns the ids of all validated sections, sorted.
func (r *PackResult) SectionIDs() []string {
	ids := make([]string, 0, len(r.Sections))
	for id := range r.Sections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Score is the mean score of the validated sections, or 100 when nothing
// was validated.
func (r *PackResult) Score() int {
	if len(r.Sections) == 0 {
		return maxScore
	}
	total := 0
	for _, sr := range r.Sections {
		total += sr.Score
	}
	return total / len(r.Sections)
}

func sectionStatus(issues []Issue) Status {
	status := StatusPass
	for _, is := range issues {
		switch is.Severity {
		case SeverityError:
			return StatusFail
		case SeverityWarning:
			status = StatusPassWithWarnings
		}
	}
	return status
}

const (
	maxScore       = 100
	errorPenalty   = 25
	warningPenalty = 5
)

func sectionScore(issues []Issue) int {
	score := maxScore
	for _, is := range issues {
		switch is.Severity {
		case SeverityError:
			score -= errorPenalty
		case SeverityWarning:
			score -= warningPenalty
		}
	}
	return max(score, 0)
}
