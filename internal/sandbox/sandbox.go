// Package sandbox guards the files the CLI reads reports from and writes
// validated reports to.
package sandbox

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrDenied matches every rejection by a Guard.
var ErrDenied = errors.New("sandbox: access denied")

// DeniedError is returned when a Guard refuses a read or a write.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return "sandbox: " + e.Reason
}

// Is makes errors.Is(err, ErrDenied) true for every DeniedError.
func (e *DeniedError) Is(target error) bool {
	return target == ErrDenied
}

// Config holds the sandbox configuration.
type Config struct {
	// OutputPaths are the directories validated reports may be written
	// under. Empty permits every path.
	OutputPaths []string

	// MaxInputSize bounds report input, e.g. "5MB" or "500KB". Empty
	// means unlimited.
	MaxInputSize string
}

// Guard checks report input sizes and output paths.
type Guard struct {
	outputPaths  []string
	maxInputSize int64 // bytes, 0 means unlimited
}

// New creates a Guard. Output paths are resolved to absolute paths.
func New(cfg Config) (*Guard, error) {
	g := &Guard{}

	for _, p := range cfg.OutputPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, errors.Wrapf(err, "sandbox: resolve output path %q", p)
		}
		g.outputPaths = append(g.outputPaths, abs)
	}

	if cfg.MaxInputSize != "" {
		size, err := ParseSize(cfg.MaxInputSize)
		if err != nil {
			return nil, errors.Wrapf(err, "sandbox: parse max_input_size %q", cfg.MaxInputSize)
		}
		g.maxInputSize = size
	}
	return g, nil
}

// CheckWrite validates that a report may be written to path.
func (g *Guard) CheckWrite(path string) error {
	if len(g.outputPaths) == 0 {
		return nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrapf(err, "sandbox: resolve path %q", path)
	}
	for _, allowed := range g.outputPaths {
		if abs == allowed || strings.HasPrefix(abs, allowed+string(filepath.Separator)) {
			return nil
		}
	}
	return &DeniedError{
		Reason: fmt.Sprintf("output path %q is not under any allowed path %v", abs, g.outputPaths),
	}
}

// ReadFile reads path, refusing files larger than the input limit.
func (g *Guard) ReadFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if g.maxInputSize > 0 {
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		if err := g.checkSize(info.Size()); err != nil {
			return nil, errors.Wrapf(err, "%s", path)
		}
	}
	return g.read(f)
}

// Read reads r fully, refusing input larger than the limit.
func (g *Guard) Read(r io.Reader) ([]byte, error) {
	return g.read(r)
}

func (g *Guard) read(r io.Reader) ([]byte, error) {
	if g.maxInputSize <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, g.maxInputSize+1))
	if err != nil {
		return nil, err
	}
	if err := g.checkSize(int64(len(data))); err != nil {
		return nil, err
	}
	return data, nil
}

func (g *Guard) checkSize(size int64) error {
	if g.maxInputSize > 0 && size > g.maxInputSize {
		return &DeniedError{Reason: "input exceeds maximum of " + FormatSize(g.maxInputSize)}
	}
	return nil
}

// MaxInputSize returns the input limit in bytes, or 0 when unlimited.
func (g *Guard) MaxInputSize() int64 {
	return g.maxInputSize
}

// ParseSize parses a human-readable size string into bytes.
// Supported suffixes: B, KB, MB, GB (case-insensitive).
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	suffixes := []struct {
		suffix     string
		multiplier int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}
	for _, sf := range suffixes {
		if num, ok := strings.CutSuffix(s, sf.suffix); ok {
			n, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
			if err != nil || n < 0 {
				return 0, errors.Newf("invalid size %q", s)
			}
			return int64(n * float64(sf.multiplier)), nil
		}
	}

	// No suffix, assume bytes.
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, errors.Newf("invalid size %q", s)
	}
	return n, nil
}

// FormatSize formats bytes into a human-readable string.
func FormatSize(bytes int64) string {
	const (
		kb = 1 << 10
		mb = 1 << 20
		gb = 1 << 30
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1fGB", float64(bytes)/gb)
	case bytes >= mb:
		return fmt.Sprintf("%.1fMB", float64(bytes)/mb)
	case bytes >= kb:
		return fmt.Sprintf("%.1fKB", float64(bytes)/kb)
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}
