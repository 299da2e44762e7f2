package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aicmo/benchcheck/pkg/benchmark"
	"github.com/aicmo/benchcheck/pkg/enforce"
	"github.com/aicmo/benchcheck/pkg/regen"
)

func TestMain(m *testing.M) {
	pterm.DisableStyling()
	os.Exit(m.Run())
}

const socialPack = `{
	"expected_sections": ["overview", "metrics"],
	"sections": {
		"overview": {
			"min_words": 5,
			"max_words": 200,
			"required_headings": ["Overview"],
			"forbidden_phrases": ["lorem ipsum"],
			"format": "freeform"
		},
		"metrics": {
			"min_words": 3,
			"max_words": 200,
			"format": "markdown_table"
		}
	}
}`

const (
	goodOverview = "## Overview\nOur launch plan targets three channels this quarter."
	goodMetrics  = "| Metric | Target |\n|---|---|\n| CTR | 2% |"
)

type env struct {
	dir    string
	config string
}

func newEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	bench := filepath.Join(dir, "benchmarks")
	require.NoError(t, os.MkdirAll(bench, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bench, "quick_social_basic.json"), []byte(socialPack), 0o644))

	cfg := "benchmarks:\n  dir: " + bench + "\nhistory:\n  path: " + filepath.Join(dir, "state", "history.db") + "\nlog_level: error\n"
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return env{dir: dir, config: cfgPath}
}

func (e env) writeSections(t *testing.T, name string, sections map[string]string) string {
	t.Helper()
	data, err := json.Marshal(sections)
	require.NoError(t, err)
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func (e env) run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append([]string{"--config", e.config}, args...), strings.NewReader(""), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"config", &benchmark.ConfigError{PackKey: "x", Reason: "pack file not found"}, exitConfig},
		{"wrapped config", errors.Wrap(&benchmark.ConfigError{PackKey: "x"}, "validate pack x"), exitConfig},
		{"enforcement", &enforce.BenchmarkEnforcementError{PackKey: "x"}, exitBenchmark},
		{"not met", errBenchmarkNotMet, exitBenchmark},
		{"other", errors.New("boom"), exitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestPacksAndRules(t *testing.T) {
	e := newEnv(t)

	code, out, stderr := e.run(t, "packs")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, out, "quick_social_basic")
	assert.Contains(t, out, "overview, metrics")

	code, out, _ = e.run(t, "rules", "quick_social_basic")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "markdown_table")
	assert.Contains(t, out, "5-200")

	code, _, stderr = e.run(t, "rules", "missing_pack")
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, stderr, "pack file not found")
}

func TestPacksFailsOnBrokenPack(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, "benchmarks", "broken.json"), []byte(`{"sections": {`), 0o644))

	code, out, stderr := e.run(t, "packs")
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, out, "quick_social_basic", "good packs are still listed")
	assert.Contains(t, stderr, "broken")
}

func TestValidate(t *testing.T) {
	e := newEnv(t)
	good := e.writeSections(t, "good.json", map[string]string{"overview": goodOverview, "metrics": goodMetrics})
	bad := e.writeSections(t, "bad.json", map[string]string{"overview": goodOverview + " lorem ipsum", "metrics": goodMetrics})

	code, out, _ := e.run(t, "validate", "quick_social_basic", good)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "pack quick_social_basic: PASS (score 100/100)")

	code, out, _ = e.run(t, "validate", "quick_social_basic", bad)
	assert.Equal(t, exitBenchmark, code)
	assert.Contains(t, out, "overview FORBIDDEN_PHRASE")

	code, out, _ = e.run(t, "validate", "--feedback", "quick_social_basic", bad)
	assert.Equal(t, exitBenchmark, code)
	assert.True(t, strings.HasPrefix(out, "## Benchmark Validation Failed"))

	code, out, _ = e.run(t, "validate", "--json", "--section", "metrics", "quick_social_basic", good)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, `"status": "PASS"`)

	code, _, _ = e.run(t, "validate", "no_such_pack", good)
	assert.Equal(t, exitConfig, code)
}

func TestEnforceWithFallbackTemplates(t *testing.T) {
	e := newEnv(t)
	input := e.writeSections(t, "in.json", map[string]string{"overview": "too short", "metrics": goodMetrics})
	fallback := filepath.Join(e.dir, "fallback.yaml")
	require.NoError(t, os.WriteFile(fallback, []byte("overview: \""+strings.ReplaceAll(goodOverview, "\n", `\n`)+"\"\n"), 0o644))
	outPath := filepath.Join(e.dir, "out.json")

	code, _, stderr := e.run(t, "enforce", "--fallback", fallback, "-o", outPath, "quick_social_basic", input)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stderr, "passed after 2 attempt(s)")

	var final map[string]string
	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &final))
	assert.Equal(t, map[string]string{"overview": goodOverview, "metrics": goodMetrics}, final)

	code, out, _ := e.run(t, "history", "list", "--json")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, `"outcome": "PASSED"`)
	assert.Contains(t, out, `"attempts": 2`)
}

func TestEnforceWithEndpoint(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req enforce.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"metrics"}, req.SectionIDs)
		json.NewEncoder(w).Encode(regen.Response{Sections: map[string]string{"metrics": goodMetrics}})
	}))
	defer srv.Close()

	e := newEnv(t)
	input := e.writeSections(t, "in.json", map[string]string{"overview": goodOverview, "metrics": "no table at all"})

	code, out, stderr := e.run(t, "enforce", "--endpoint", srv.URL, "--no-history", "quick_social_basic", input)
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, 1, calls)
	assert.Contains(t, out, `"metrics": "| Metric | Target |`)
	assert.NoFileExists(t, filepath.Join(e.dir, "state", "history.db"))
}

func TestEnforceFailsWithoutRegenerator(t *testing.T) {
	e := newEnv(t)
	input := e.writeSections(t, "in.json", map[string]string{"overview": "lorem ipsum", "metrics": goodMetrics})

	code, out, stderr := e.run(t, "enforce", "quick_social_basic", input)
	assert.Equal(t, exitBenchmark, code)
	assert.Empty(t, out, "a failing report is never written")
	assert.Contains(t, stderr, `Pack "quick_social_basic" failed benchmark enforcement after 1 attempt(s).`)
	assert.Contains(t, stderr, "ERROR FORBIDDEN_PHRASE")

	code, out, _ = e.run(t, "history", "list")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "FAILED_TERMINAL")
}

func TestEnforceRefusesOutputOutsideSandbox(t *testing.T) {
	e := newEnv(t)
	cfg, err := os.ReadFile(e.config)
	require.NoError(t, err)
	cfg = append(cfg, []byte("sandbox:\n  output_paths: ["+filepath.Join(e.dir, "reports")+"]\n")...)
	require.NoError(t, os.WriteFile(e.config, cfg, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(e.dir, "reports"), 0o755))
	input := e.writeSections(t, "in.json", map[string]string{"overview": goodOverview, "metrics": goodMetrics})

	code, _, stderr := e.run(t, "enforce", "-o", filepath.Join(e.dir, "final.json"), "quick_social_basic", input)
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "is not under any allowed path")

	code, _, stderr = e.run(t, "enforce", "-o", filepath.Join(e.dir, "reports", "final.json"), "--no-history", "quick_social_basic", input)
	assert.Equal(t, exitOK, code, stderr)
	assert.FileExists(t, filepath.Join(e.dir, "reports", "final.json"))
}

func TestEnforceStubPassesThrough(t *testing.T) {
	e := newEnv(t)
	input := e.writeSections(t, "in.json", map[string]string{"overview": "lorem ipsum"})

	code, out, _ := e.run(t, "enforce", "--stub", "--no-history", "quick_social_basic", input)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, `"overview": "lorem ipsum"`)
}

func TestHistoryPruneNeedsRetention(t *testing.T) {
	e := newEnv(t)

	code, _, stderr := e.run(t, "history", "prune")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "hint: pass --older-than")

	code, out, _ := e.run(t, "history", "prune", "--older-than", "24h")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "pruned 0 run(s)")
}

func TestReadSectionsFromStdin(t *testing.T) {
	a := newApp(strings.NewReader(`{"overview": "text"}`), &bytes.Buffer{}, &bytes.Buffer{})
	sections, err := a.readSections("-")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"overview": "text"}, sections)

	a = newApp(strings.NewReader(`["not", "a", "map"]`), &bytes.Buffer{}, &bytes.Buffer{})
	_, err = a.readSections("-")
	assert.ErrorContains(t, err, "parse sections -")
}
