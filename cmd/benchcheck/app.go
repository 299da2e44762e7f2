package main

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/aicmo/benchcheck/internal/config"
	"github.com/aicmo/benchcheck/internal/logging"
	"github.com/aicmo/benchcheck/internal/sandbox"
	"github.com/aicmo/benchcheck/pkg/benchmark"
	"github.com/aicmo/benchcheck/pkg/verify"
)

// app holds what every subcommand needs. It is filled in by the root
// command's PersistentPreRunE.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath    string
	benchmarksDir string
	logLevel      string

	cfg    config.Config
	logger *zap.Logger
	store  *benchmark.Store
	guard  *sandbox.Guard
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		logger: zap.NewNop(),
		guard:  &sandbox.Guard{},
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "benchcheck",
		Short:         "Validate generated report sections against benchmark packs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.logger.Sync()
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", config.DefaultPath, "config file")
	root.PersistentFlags().StringVarP(&a.benchmarksDir, "benchmarks", "b", "", "benchmark pack directory (overrides config)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (overrides config)")

	root.AddCommand(
		newPacksCmd(a),
		newRulesCmd(a),
		newValidateCmd(a),
		newEnforceCmd(a),
		newHistoryCmd(a),
		newServeMCPCmd(a),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.benchmarksDir != "" {
		cfg.Benchmarks.Dir = a.benchmarksDir
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	a.cfg = cfg

	logger, err := logging.NewWithWriter(cfg.LogLevel, cfg.LogJSON, a.stderr)
	if err != nil {
		return err
	}
	a.logger = logger

	guard, err := sandbox.New(sandbox.Config{
		OutputPaths:  cfg.Sandbox.OutputPaths,
		MaxInputSize: cfg.Sandbox.MaxInputSize,
	})
	if err != nil {
		return err
	}
	a.guard = guard

	a.store = benchmark.NewDirStore(cfg.Benchmarks.Dir,
		benchmark.WithLogger(logger.Named("benchmark")),
		benchmark.WithConcurrency(cfg.Benchmarks.Concurrency),
	)
	return nil
}

func (a *app) validator() *verify.Validator {
	return verify.NewValidator(verify.WithFailFast(a.cfg.Enforce.FailFast))
}

// readSections reads a report as a section id to text map from a JSON or
// YAML file, or JSON from stdin when path is "-".
func (a *app) readSections(path string) (map[string]string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = a.guard.Read(a.stdin)
	} else {
		data, err = a.guard.ReadFile(path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read sections %s", path)
	}

	var sections map[string]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &sections)
	default:
		err = json.Unmarshal(data, &sections)
	}
	if err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(err, "parse sections %s", path),
			`expected an object mapping section ids to markdown text, e.g. {"overview": "## Overview\n..."}`)
	}
	if sections == nil {
		sections = map[string]string{}
	}
	return sections, nil
}

// writeJSON writes v as indented JSON to path, or to stdout when path is
// empty or "-".
func (a *app) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode output")
	}
	data = append(data, '\n')
	if path == "" || path == "-" {
		_, err = a.stdout.Write(data)
		return err
	}
	if err := a.guard.CheckWrite(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}
