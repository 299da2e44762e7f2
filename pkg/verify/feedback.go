package verify

import (
	"fmt"
	"sort"
	"strings"
)

// Failing returns the ids of all failed sections, sorted.
func (r *PackResult) Failing() []string {
	var ids []string
	for id, sr := range r.Sections {
		if sr.Status == StatusFail {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// IssuesFor returns the issues of the given sections. With no ids it
// returns the issues of every section that has any.
func (r *PackResult) IssuesFor(ids ...string) map[string][]Issue {
	if len(ids) == 0 {
		ids = r.SectionIDs()
	}
	out := make(map[string][]Issue, len(ids))
	for _, id := range ids {
		sr, ok := r.Sections[id]
		if !ok || len(sr.Issues) == 0 {
			continue
		}
		out[id] = append([]Issue(nil), sr.Issues...)
	}
	return out
}

// FormatFeedback renders the failing sections and their issues as markdown
// suitable for a regeneration prompt. It returns "" when the pack passed.
func (r *PackResult) FormatFeedback() string {
	return RenderFeedback(r.PackKey, r.Failing(), r.IssuesFor(r.Failing()...))
}

// RenderFeedback renders the issues of the given failing sections, in the
// order given, as markdown for a regeneration prompt. It returns "" when
// ids is empty.
func RenderFeedback(packKey string, ids []string, issues map[string][]Issue) string {
	if len(ids) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Benchmark Validation Failed\n\n")
	fmt.Fprintf(&sb, "Pack `%s`: %d section(s) do not meet the benchmark.\n\n", packKey, len(ids))

	for _, id := range ids {
		fmt.Fprintf(&sb, "### %s\n\n", id)
		for _, is := range issues[id] {
			fmt.Fprintf(&sb, "- [%s] %s: %s\n", is.Severity, is.Code, is.Message)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Please regenerate these sections addressing every issue above.\n")
	return sb.String()
}
