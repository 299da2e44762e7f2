package enforce

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/aicmo/benchcheck/pkg/verify"
)

var (
	// ErrEnforcementFailed matches every *BenchmarkEnforcementError.
	ErrEnforcementFailed = errors.New("benchmark enforcement failed")

	// ErrRegeneration matches every *RegenerationError.
	ErrRegeneration = errors.New("section regeneration failed")
)

// BenchmarkEnforcementError is returned when a report still fails its
// benchmarks after the last allowed attempt. Such a report must not reach
// a client.
type BenchmarkEnforcementError struct {
	RunID        string
	PackKey      string
	AttemptsUsed int

	// Result is the validation of the final attempt.
	Result *verify.PackResult

	// Sections is the report text that was validated last.
	Sections map[string]string
}

func (e *BenchmarkEnforcementError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "benchmark enforcement failed for pack %q after %d attempt(s)", e.PackKey, e.AttemptsUsed)
	issues := e.Issues()
	for i, id := range e.FailingSections() {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		codes := make([]string, len(issues[id]))
		for j, is := range issues[id] {
			codes[j] = string(is.Code)
		}
		fmt.Fprintf(&b, "%s [%s]", id, strings.Join(codes, ", "))
	}
	return b.String()
}

// Is makes errors.Is(err, ErrEnforcementFailed) true.
func (e *BenchmarkEnforcementError) Is(target error) bool {
	return target == ErrEnforcementFailed
}

// FailingSections returns the ids of the sections that still fail, sorted.
func (e *BenchmarkEnforcementError) FailingSections() []string {
	if e.Result == nil {
		return nil
	}
	return e.Result.Failing()
}

// Issues returns the issues of every failing section.
func (e *BenchmarkEnforcementError) Issues() map[string][]verify.Issue {
	if e.Result == nil {
		return map[string][]verify.Issue{}
	}
	return e.Result.IssuesFor(e.Result.Failing()...)
}

// Report renders an itemized, human readable account of every failing
// section and each of its issues.
func (e *BenchmarkEnforcementError) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pack %q failed benchmark enforcement after %d attempt(s).\n", e.PackKey, e.AttemptsUsed)
	issues := e.Issues()
	for _, id := range e.FailingSections() {
		fmt.Fprintf(&b, "\n%s:\n", id)
		for _, is := range issues[id] {
			fmt.Fprintf(&b, "  - %s %s: %s\n", is.Severity, is.Code, is.Message)
		}
	}
	return b.String()
}

// RegenerationError wraps an error returned by a Regenerator. The cause is
// preserved for errors.Is and errors.As.
type RegenerationError struct {
	RunID      string
	PackKey    string
	Attempt    int
	SectionIDs []string
	Err        error
}

func (e *RegenerationError) Error() string {
	return fmt.Sprintf("regenerate sections %v of pack %q after attempt %d: %v",
		e.SectionIDs, e.PackKey, e.Attempt, e.Err)
}

func (e *RegenerationError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrRegeneration) true.
func (e *RegenerationError) Is(target error) bool {
	return target == ErrRegeneration
}
