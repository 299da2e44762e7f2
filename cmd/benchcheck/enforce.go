package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aicmo/benchcheck/pkg/enforce"
	"github.com/aicmo/benchcheck/pkg/escalate"
	"github.com/aicmo/benchcheck/pkg/events"
	"github.com/aicmo/benchcheck/pkg/history"
	"github.com/aicmo/benchcheck/pkg/regen"
	"github.com/aicmo/benchcheck/pkg/verify"
)

type enforceFlags struct {
	endpoint    string
	fallback    string
	maxAttempts int
	out         string
	asJSON      bool
	noHistory   bool
	escalate    bool
	stub        bool
}

func newEnforceCmd(a *app) *cobra.Command {
	var f enforceFlags

	cmd := &cobra.Command{
		Use:   "enforce <pack> <sections.json|->",
		Short: "Validate sections and regenerate failing ones until they pass",
		Long: `Validate report sections and regenerate failing ones until the pack
passes or the attempt budget is spent.

Failing sections are sent to the regeneration endpoint, then to the
fallback templates for anything the endpoint did not return. The final
sections are written as JSON. A report that still fails is never written;
the command prints the itemized failures and exits with status 3.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.enforce(cmd.Context(), args[0], args[1], f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.endpoint, "endpoint", "", "regeneration endpoint URL (overrides config)")
	flags.StringVar(&f.fallback, "fallback", "", "fallback section templates file (overrides config)")
	flags.IntVar(&f.maxAttempts, "max-attempts", 0, "validation passes per run (overrides config)")
	flags.StringVarP(&f.out, "out", "o", "", "write the final sections to this file instead of stdout")
	flags.BoolVar(&f.asJSON, "json", false, "write the whole outcome instead of only the final sections")
	flags.BoolVar(&f.noHistory, "no-history", false, "do not record this run")
	flags.BoolVar(&f.escalate, "escalate", false, "open a GitHub issue when enforcement fails (overrides config)")
	flags.BoolVar(&f.stub, "stub", false, "skip validation and pass the sections through unchanged")
	return cmd
}

func (a *app) enforce(ctx context.Context, packKey, input string, f enforceFlags) error {
	if f.out != "" && f.out != "-" {
		if err := a.guard.CheckWrite(f.out); err != nil {
			return err
		}
	}
	sections, err := a.readSections(input)
	if err != nil {
		return err
	}

	regenerator, err := a.regenerator(f)
	if err != nil {
		return err
	}

	bus := events.NewMemoryBus()
	done := a.reportProgress(bus.Subscribe())
	defer func() {
		bus.Close()
		<-done
	}()

	maxAttempts := a.cfg.Enforce.MaxAttempts
	if f.maxAttempts > 0 {
		maxAttempts = f.maxAttempts
	}
	opts := []enforce.Option{
		enforce.WithMaxAttempts(maxAttempts),
		enforce.WithLogger(a.logger.Named("enforce")),
		enforce.WithEvents(bus),
	}
	if a.cfg.History.Enabled && !f.noHistory {
		runs, err := a.openHistory()
		if err != nil {
			return err
		}
		defer runs.Close()
		opts = append(opts, enforce.WithRecorder(runs))
	}

	var enforcer enforce.Enforcer = enforce.New(verify.NewPackValidator(a.store, a.validator()), opts...)
	if f.stub {
		a.logger.Warn("stub mode: sections are not validated")
		enforcer = enforce.Nop{}
	}

	outcome, err := enforcer.Enforce(ctx, packKey, sections, regenerator)
	if err != nil {
		var failure *enforce.BenchmarkEnforcementError
		if errors.As(err, &failure) {
			fmt.Fprint(a.stderr, failure.Report())
			if a.cfg.GitHub.Escalate || f.escalate {
				a.escalate(ctx, failure)
			}
		}
		return err
	}

	fmt.Fprint(a.stderr, pterm.Success.Sprintfln("pack %s passed after %d attempt(s), score %d/100",
		packKey, outcome.AttemptsUsed, outcome.LastValidation.Score()))
	if f.asJSON {
		return a.writeJSON(f.out, outcome)
	}
	return a.writeJSON(f.out, outcome.FinalSections)
}

// regenerator builds the chain of configured regenerators, or nil when
// none is configured.
func (a *app) regenerator(f enforceFlags) (enforce.Regenerator, error) {
	endpoint := a.cfg.Regen.Endpoint
	if f.endpoint != "" {
		endpoint = f.endpoint
	}
	fallback := a.cfg.Regen.FallbackFile
	if f.fallback != "" {
		fallback = f.fallback
	}

	var chain []enforce.Regenerator
	if endpoint != "" {
		h, err := regen.NewHTTP(endpoint,
			regen.WithAllowedDomains(a.cfg.Regen.AllowedDomains...),
			regen.WithHeaders(a.cfg.Regen.Headers),
			regen.WithTimeout(a.cfg.Regen.Timeout()),
			regen.WithLogger(a.logger.Named("regen")),
		)
		if err != nil {
			return nil, err
		}
		chain = append(chain, h)
	}
	if fallback != "" {
		s, err := regen.LoadStatic(fallback)
		if err != nil {
			return nil, err
		}
		chain = append(chain, s)
	}

	switch len(chain) {
	case 0:
		a.logger.Info("no regenerator configured; failing sections cannot be repaired")
		return nil, nil
	case 1:
		return chain[0], nil
	default:
		return regen.NewChain(a.logger.Named("regen"), chain...), nil
	}
}

func (a *app) openHistory() (*history.BoltStore, error) {
	path := a.cfg.History.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create history directory for %s", path)
	}
	return history.NewBoltStore(path)
}

// reportProgress prints lifecycle events to stderr until ch is closed.
func (a *app) reportProgress(ch <-chan events.Event) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			a.logger.Debug("enforcement event",
				zap.String("type", string(ev.Type)),
				zap.String("run_id", ev.RunID),
				zap.Int("attempt", ev.Attempt),
			)
			if line := progressLine(ev); line != "" {
				fmt.Fprint(a.stderr, pterm.Info.Sprintln(line))
			}
		}
	}()
	return done
}

func progressLine(ev events.Event) string {
	data, _ := ev.Data.(map[string]any)
	switch ev.Type {
	case events.EventEnforceValidated:
		failing, _ := data["failing"].([]string)
		if len(failing) == 0 {
			return fmt.Sprintf("attempt %d: %v", ev.Attempt, data["overall"])
		}
		return fmt.Sprintf("attempt %d: %v, failing %s", ev.Attempt, data["overall"], strings.Join(failing, ", "))
	case events.EventEnforceRegenerate:
		return fmt.Sprintf("attempt %d: regenerating failing sections", ev.Attempt)
	}
	return ""
}

func (a *app) escalate(ctx context.Context, failure *enforce.BenchmarkEnforcementError) {
	gh := a.cfg.GitHub
	var clientOpts []escalate.ClientOption
	if gh.BaseURL != "" {
		clientOpts = append(clientOpts, escalate.WithBaseURL(gh.BaseURL))
	}
	client, err := escalate.NewClient(gh.Token, clientOpts...)
	if err != nil {
		a.logger.Error("escalation skipped", zap.Error(err))
		return
	}
	esc, err := escalate.New(client, gh.Repo,
		escalate.WithLabels(gh.Labels...),
		escalate.WithLogger(a.logger.Named("escalate")),
	)
	if err != nil {
		a.logger.Error("escalation skipped", zap.Error(err))
		return
	}

	issue, err := esc.Escalate(context.WithoutCancel(ctx), failure)
	if err != nil {
		a.logger.Error("escalation failed", zap.Error(err))
		return
	}
	fmt.Fprint(a.stderr, pterm.Warning.Sprintfln("escalated to %s", issue.URL))
}
