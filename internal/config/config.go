package config

import (
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for its config file.
const DefaultPath = ".benchcheck/config.yaml"

// Config represents the runtime configuration from .benchcheck/config.yaml.
type Config struct {
	LogLevel   string           `yaml:"log_level"`
	LogJSON    bool             `yaml:"log_json"`
	Benchmarks BenchmarksConfig `yaml:"benchmarks"`
	Enforce    EnforceConfig    `yaml:"enforce"`
	History    HistoryConfig    `yaml:"history"`
	Regen      RegenConfig      `yaml:"regen"`
	GitHub     GitHubConfig     `yaml:"github"`
	Sandbox    SandboxConfig    `yaml:"sandbox"`
}

// BenchmarksConfig locates the benchmark pack files.
type BenchmarksConfig struct {
	Dir         string `yaml:"dir"`
	Concurrency int    `yaml:"concurrency"` // packs loaded in parallel by LoadAll
}

// EnforceConfig defines enforcement defaults.
type EnforceConfig struct {
	MaxAttempts int  `yaml:"max_attempts"`
	FailFast    bool `yaml:"fail_fast"`
}

// HistoryConfig defines enforcement run history settings.
type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"` // 0 keeps everything
}

// RegenConfig configures the regeneration endpoint and fallback templates.
type RegenConfig struct {
	Endpoint       string            `yaml:"endpoint"`
	AllowedDomains []string          `yaml:"allowed_domains"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	Headers        map[string]string `yaml:"headers"`
	FallbackFile   string            `yaml:"fallback_file"`
}

// GitHubConfig holds escalation settings.
type GitHubConfig struct {
	Escalate bool     `yaml:"escalate"`
	Token    string   `yaml:"token"`
	Repo     string   `yaml:"repo"` // owner/name
	Labels   []string `yaml:"labels"`
	BaseURL  string   `yaml:"base_url"`
}

// SandboxConfig restricts report input and output files.
type SandboxConfig struct {
	OutputPaths  []string `yaml:"output_paths"`
	MaxInputSize string   `yaml:"max_input_size"` // e.g. "5MB"
}

// Timeout returns the regeneration timeout.
func (c RegenConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Retention returns how long run records are kept, or 0 for forever.
func (c HistoryConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Benchmarks: BenchmarksConfig{
			Dir:         "benchmarks",
			Concurrency: 4,
		},
		Enforce: EnforceConfig{
			MaxAttempts: 2,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    ".benchcheck/history.db",
		},
		Regen: RegenConfig{
			TimeoutSeconds: 120,
		},
		GitHub: GitHubConfig{
			Labels: []string{"benchmark-failure"},
		},
		Sandbox: SandboxConfig{
			MaxInputSize: "5MB",
		},
	}
}

// LoadConfig reads and parses a runtime config YAML file, interpolating
// ${VAR} references from the environment first.
// Returns default config if the file doesn't exist.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrapf(err, "read config %s", path)
	}

	interpolated := interpolateEnvVars(string(data))

	dec := yaml.NewDecoder(strings.NewReader(interpolated))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, errors.Newf("log_level: unknown level %q", c.LogLevel))
	}
	if strings.TrimSpace(c.Benchmarks.Dir) == "" {
		errs = append(errs, errors.New("benchmarks.dir: must not be empty"))
	}
	if c.Benchmarks.Concurrency < 1 {
		errs = append(errs, errors.Newf("benchmarks.concurrency: must be at least 1, got %d", c.Benchmarks.Concurrency))
	}
	if c.Enforce.MaxAttempts < 1 {
		errs = append(errs, errors.Newf("enforce.max_attempts: must be at least 1, got %d", c.Enforce.MaxAttempts))
	}
	if c.History.Enabled && strings.TrimSpace(c.History.Path) == "" {
		errs = append(errs, errors.New("history.path: required when history is enabled"))
	}
	if c.History.RetentionDays < 0 {
		errs = append(errs, errors.Newf("history.retention_days: must not be negative, got %d", c.History.RetentionDays))
	}
	if c.Regen.TimeoutSeconds < 0 {
		errs = append(errs, errors.Newf("regen.timeout_seconds: must not be negative, got %d", c.Regen.TimeoutSeconds))
	}
	if c.GitHub.Escalate {
		if c.GitHub.Token == "" {
			errs = append(errs, errors.WithHint(
				errors.New("github.token: required when escalation is enabled"),
				`use token: "${GITHUB_TOKEN}" to read it from the environment`))
		}
		if owner, name, ok := strings.Cut(c.GitHub.Repo, "/"); !ok || owner == "" || name == "" {
			errs = append(errs, errors.Newf("github.repo: expected 'owner/name', got %q", c.GitHub.Repo))
		}
	}
	return errors.Join(errs...)
}

// envVarPattern matches ${VAR_NAME} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// interpolateEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func interpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match // Leave unresolved if not set.
	})
}
