// Command benchcheck validates generated report sections against benchmark
// packs and enforces them with bounded regeneration.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"

	"github.com/aicmo/benchcheck/pkg/benchmark"
	"github.com/aicmo/benchcheck/pkg/enforce"
)

// Exit codes.
const (
	exitOK        = 0
	exitError     = 1
	exitConfig    = 2
	exitBenchmark = 3
)

// errBenchmarkNotMet is returned by validate when a section fails.
var errBenchmarkNotMet = errors.New("benchmark not met")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd(newApp(stdin, stdout, stderr))
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	var enfErr *enforce.BenchmarkEnforcementError
	if !errors.As(err, &enfErr) && !errors.Is(err, errBenchmarkNotMet) {
		fmt.Fprintf(stderr, "error: %v\n", err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintf(stderr, "hint: %s\n", hint)
		}
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, benchmark.ErrConfig):
		return exitConfig
	case errors.Is(err, enforce.ErrEnforcementFailed), errors.Is(err, errBenchmarkNotMet):
		return exitBenchmark
	default:
		return exitError
	}
}
