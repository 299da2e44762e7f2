// Package escalate opens GitHub issues for reports that failed benchmark
// enforcement, so a human can take over before anything reaches a client.
package escalate

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	gh "github.com/google/go-github/v60/github"
	"go.uber.org/zap"

	"github.com/aicmo/benchcheck/pkg/enforce"
)

// maxExcerpt bounds how much section text is quoted in an issue body.
const maxExcerpt = 1500

// Issue identifies the GitHub issue an escalation was filed on.
type Issue struct {
	Number int    `json:"number"`
	URL    string `json:"html_url"`

	// Commented is true when an open issue with the same title already
	// existed and the failure was added to it as a comment.
	Commented bool `json:"commented"`
}

// Option configures an Escalator.
type Option func(*Escalator)

// WithLabels sets the labels applied to new issues. Existing issues are
// only matched among issues carrying these labels.
func WithLabels(labels ...string) Option {
	return func(e *Escalator) {
		e.labels = labels
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Escalator) {
		if l != nil {
			e.logger = l
		}
	}
}

// Escalator files terminal enforcement failures as GitHub issues.
type Escalator struct {
	client *Client
	owner  string
	name   string
	labels []string
	logger *zap.Logger
}

// New creates an Escalator filing issues in repo ("owner/name").
func New(client *Client, repo string, opts ...Option) (*Escalator, error) {
	if client == nil {
		return nil, errors.New("escalate: github client is required")
	}
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	e := &Escalator{
		client: client,
		owner:  owner,
		name:   name,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Escalate files failure on GitHub. Repeated failures of the same pack and
// sections are added as comments to the open issue instead of opening a
// new one.
func (e *Escalator) Escalate(ctx context.Context, failure *enforce.BenchmarkEnforcementError) (*Issue, error) {
	if failure == nil {
		return nil, errors.New("escalate: nil enforcement error")
	}
	title, body := RenderIssue(failure)

	existing, err := e.findOpen(ctx, title)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		_, _, err := e.client.inner.Issues.CreateComment(ctx, e.owner, e.name, existing.GetNumber(),
			&gh.IssueComment{Body: &body})
		if err != nil {
			return nil, errors.Wrapf(err, "comment on issue #%d", existing.GetNumber())
		}
		e.logger.Info("escalation added to open issue",
			zap.String("pack", failure.PackKey),
			zap.Int("issue", existing.GetNumber()),
		)
		return &Issue{Number: existing.GetNumber(), URL: existing.GetHTMLURL(), Commented: true}, nil
	}

	req := &gh.IssueRequest{
		Title: &title,
		Body:  &body,
	}
	if len(e.labels) > 0 {
		labels := append([]string(nil), e.labels...)
		req.Labels = &labels
	}
	issue, _, err := e.client.inner.Issues.Create(ctx, e.owner, e.name, req)
	if err != nil {
		return nil, errors.Wrapf(err, "create issue in %s/%s", e.owner, e.name)
	}
	e.logger.Info("escalation issue opened",
		zap.String("pack", failure.PackKey),
		zap.Int("issue", issue.GetNumber()),
	)
	return &Issue{Number: issue.GetNumber(), URL: issue.GetHTMLURL()}, nil
}

func (e *Escalator) findOpen(ctx context.Context, title string) (*gh.Issue, error) {
	opts := &gh.IssueListByRepoOptions{
		State:       "open",
		Labels:      e.labels,
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	issues, _, err := e.client.inner.Issues.ListByRepo(ctx, e.owner, e.name, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "list open issues in %s/%s", e.owner, e.name)
	}
	for _, is := range issues {
		if is.IsPullRequest() {
			continue
		}
		if is.GetTitle() == title {
			return is, nil
		}
	}
	return nil, nil
}

// RenderIssue renders failure as a GitHub issue title and markdown body.
func RenderIssue(failure *enforce.BenchmarkEnforcementError) (string, string) {
	failing := failure.FailingSections()
	title := fmt.Sprintf("Benchmark enforcement failed: %s (%s)", failure.PackKey, strings.Join(failing, ", "))

	var b strings.Builder
	b.WriteString("## Benchmark enforcement failure\n\n")
	fmt.Fprintf(&b, "- Pack: `%s`\n", failure.PackKey)
	if failure.RunID != "" {
		fmt.Fprintf(&b, "- Run: `%s`\n", failure.RunID)
	}
	fmt.Fprintf(&b, "- Attempts: %d\n", failure.AttemptsUsed)
	if failure.Result != nil {
		fmt.Fprintf(&b, "- Score: %d/100\n", failure.Result.Score())
	}

	issues := failure.Issues()
	for _, id := range failing {
		fmt.Fprintf(&b, "\n### %s\n\n", id)
		b.WriteString("| Severity | Code | Message |\n|---|---|---|\n")
		for _, is := range issues[id] {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", is.Severity, is.Code, escapeCell(is.Message))
		}
		if text, ok := failure.Sections[id]; ok && strings.TrimSpace(text) != "" {
			b.WriteString("\n<details><summary>Last text</summary>\n\n```markdown\n")
			b.WriteString(excerpt(text))
			b.WriteString("\n```\n\n</details>\n")
		}
	}
	return title, b.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func excerpt(s string) string {
	s = strings.TrimRight(s, "\n")
	if len(s) <= maxExcerpt {
		return s
	}
	return strings.ToValidUTF8(s[:maxExcerpt], "") + "\n..."
}
