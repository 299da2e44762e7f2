package benchmark

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrConfig matches every *ConfigError via errors.Is.
var ErrConfig = errors.New("benchmark configuration error")

// ConfigError reports a benchmark pack that could not be loaded: the file is
// missing, unreadable, malformed, or violates the pack schema. It is fatal
// at load time and never cached.
type ConfigError struct {
	PackKey string
	Path    string
	Reason  string
	Err     error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "benchmark pack %q", e.PackKey)
	if e.Path != "" {
		fmt.Fprintf(&b, " (%s)", e.Path)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrConfig) true for any ConfigError.
func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// FieldError is a single schema violation inside a pack document.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// SchemaErrors collects every violation found in one pack document.
type SchemaErrors []FieldError

func (s SchemaErrors) Error() string {
	msgs := make([]string, len(s))
	for i, e := range s {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}
