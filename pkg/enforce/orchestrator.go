package enforce

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aicmo/benchcheck/pkg/events"
	"github.com/aicmo/benchcheck/pkg/history"
	"github.com/aicmo/benchcheck/pkg/verify"
)

// DefaultMaxAttempts is the number of validation passes allowed per run:
// the initial validation plus one regeneration.
const DefaultMaxAttempts = 2

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxAttempts sets the number of validation passes per run. Values
// below one are ignored.
func WithMaxAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n >= 1 {
			o.maxAttempts = n
		}
	}
}

// WithLogger sets the logger for state transitions.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEvents publishes lifecycle events of every run to p.
func WithEvents(p events.Publisher) Option {
	return func(o *Orchestrator) {
		o.events = p
	}
}

// WithRecorder records a summary of every run. Recording failures are
// logged and never fail the run.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// Orchestrator bounds the validate, regenerate, revalidate loop for one
// report at a time. It holds no per-run state and is safe for concurrent
// use when its collaborators are.
type Orchestrator struct {
	checker     PackChecker
	maxAttempts int
	logger      *zap.Logger
	events      events.Publisher
	recorder    Recorder

	now   func() time.Time
	newID func() string
}

var (
	_ Enforcer = (*Orchestrator)(nil)
	_ Enforcer = Nop{}
)

// New creates an orchestrator that validates with checker.
func New(checker PackChecker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		checker:     checker,
		maxAttempts: DefaultMaxAttempts,
		logger:      zap.NewNop(),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// MaxAttempts returns the configured number of validation passes.
func (o *Orchestrator) MaxAttempts() int { return o.maxAttempts }

// run carries the state of a single Enforce call.
type run struct {
	id          string
	packKey     string
	started     time.Time
	attempt     int
	sections    map[string]string
	result      *verify.PackResult
	regenerated map[string]bool
	logger      *zap.Logger
}

// Enforce validates sections against the pack and, while sections fail
// and attempts remain, asks regen for replacement text of the failing
// sections only. It returns an Outcome when the report passes and a
// *BenchmarkEnforcementError when it still fails after the last attempt.
// A nil regen allows no regeneration. Errors from regen are returned
// immediately as a *RegenerationError and never retried. The sections
// map is not modified.
func (o *Orchestrator) Enforce(ctx context.Context, packKey string, sections map[string]string, regen Regenerator) (*Outcome, error) {
	r := &run{
		id:          o.newID(),
		packKey:     packKey,
		started:     o.now(),
		sections:    maps.Clone(sections),
		regenerated: make(map[string]bool),
	}
	if r.sections == nil {
		r.sections = make(map[string]string)
	}
	r.logger = o.logger.With(zap.String("run_id", r.id), zap.String("pack", packKey))

	o.publish(r, events.EventEnforceStart, map[string]any{
		"sections":     len(r.sections),
		"max_attempts": o.maxAttempts,
	})

	state := StateValidating
	for {
		r.logger.Debug("enforcement state", zap.String("state", string(state)), zap.Int("attempt", r.attempt))

		switch state {
		case StateValidating:
			r.attempt++
			res, err := o.checker.Validate(packKey, r.sections)
			if err != nil {
				err = errors.Wrapf(err, "validate pack %s", packKey)
				o.fail(ctx, r, err)
				return nil, err
			}
			r.result = res
			o.publish(r, events.EventEnforceValidated, map[string]any{
				"overall": res.Overall,
				"failing": res.Failing(),
				"score":   res.Score(),
			})

			switch {
			case res.Passed():
				state = StatePassed
			case r.attempt < o.maxAttempts && regen != nil:
				state = StateRegenerating
			default:
				state = StateFailedTerminal
			}

		case StateRegenerating:
			if err := ctx.Err(); err != nil {
				o.fail(ctx, r, err)
				return nil, err
			}
			if err := o.regenerate(ctx, r, regen); err != nil {
				o.fail(ctx, r, err)
				return nil, err
			}
			state = StateValidating

		case StatePassed:
			out := &Outcome{
				RunID:          r.id,
				FinalSections:  r.sections,
				AttemptsUsed:   r.attempt,
				LastValidation: r.result,
				Regenerated:    slices.Sorted(maps.Keys(r.regenerated)),
			}
			r.logger.Info("benchmark enforcement passed",
				zap.Int("attempts", r.attempt),
				zap.Strings("regenerated", out.Regenerated),
			)
			o.publish(r, events.EventEnforcePassed, map[string]any{"regenerated": out.Regenerated})
			o.record(ctx, r, history.OutcomePassed, nil)
			return out, nil

		case StateFailedTerminal:
			err := &BenchmarkEnforcementError{
				RunID:        r.id,
				PackKey:      packKey,
				AttemptsUsed: r.attempt,
				Result:       r.result,
				Sections:     r.sections,
			}
			r.logger.Warn("benchmark enforcement failed",
				zap.Int("attempts", r.attempt),
				zap.Strings("failing", err.FailingSections()),
			)
			o.publish(r, events.EventEnforceFailed, map[string]any{"failing": err.FailingSections()})
			o.record(ctx, r, history.OutcomeFailed, err)
			return nil, err
		}
	}
}

func (o *Orchestrator) regenerate(ctx context.Context, r *run, regen Regenerator) error {
	failing := r.result.Failing()
	current := make(map[string]string, len(failing))
	for _, id := range failing {
		current[id] = r.sections[id]
	}
	req := Request{
		RunID:      r.id,
		PackKey:    r.packKey,
		Attempt:    r.attempt,
		SectionIDs: failing,
		Issues:     r.result.IssuesFor(failing...),
		Sections:   current,
		Feedback:   r.result.FormatFeedback(),
	}

	r.logger.Info("regenerating failing sections",
		zap.Int("attempt", r.attempt),
		zap.Strings("sections", failing),
	)
	o.publish(r, events.EventEnforceRegenerate, map[string]any{"sections": failing})

	start := o.now()
	texts, err := regen.Regenerate(ctx, req)
	if err != nil {
		return &RegenerationError{
			RunID:      r.id,
			PackKey:    r.packKey,
			Attempt:    r.attempt,
			SectionIDs: failing,
			Err:        err,
		}
	}
	r.logger.Debug("regeneration returned",
		zap.Int("sections", len(texts)),
		zap.Duration("took", o.now().Sub(start)),
	)

	for _, id := range slices.Sorted(maps.Keys(texts)) {
		if _, requested := current[id]; !requested {
			r.logger.Warn("ignoring regenerated text for unrequested section", zap.String("section", id))
			continue
		}
		r.sections[id] = texts[id]
		r.regenerated[id] = true
	}
	for _, id := range failing {
		if _, ok := texts[id]; !ok {
			r.logger.Debug("regenerator returned no text for section", zap.String("section", id))
		}
	}
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, r *run, err error) {
	r.logger.Error("benchmark enforcement aborted", zap.Int("attempt", r.attempt), zap.Error(err))
	o.publish(r, events.EventEnforceError, map[string]any{"error": err.Error()})
	o.record(ctx, r, history.OutcomeError, err)
}

func (o *Orchestrator) publish(r *run, typ events.EventType, data any) {
	if o.events == nil {
		return
	}
	ev := events.NewEvent(typ, r.id, r.packKey, data)
	ev.Attempt = r.attempt
	ev.Duration = o.now().Sub(r.started)
	o.events.Publish(ev)
}

func (o *Orchestrator) record(ctx context.Context, r *run, outcome history.Outcome, err error) {
	if o.recorder == nil {
		return
	}
	rec := history.RunRecord{
		ID:        r.id,
		PackKey:   r.packKey,
		Outcome:   outcome,
		Attempts:  r.attempt,
		StartedAt: r.started,
		Duration:  o.now().Sub(r.started),
	}
	if r.result != nil {
		rec.Failing = r.result.Failing()
		rec.Score = r.result.Score()
	}
	if err != nil {
		rec.Error = err.Error()
	}
	// Records are written even when the run's context is cancelled.
	if rerr := o.recorder.Record(context.WithoutCancel(ctx), rec); rerr != nil {
		r.logger.Warn("failed to record enforcement run", zap.Error(rerr))
	}
}
