package regen

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/aicmo/benchcheck/pkg/enforce"
	"github.com/aicmo/benchcheck/pkg/verify"
)

// Chain is a Regenerator that asks each member in turn for the sections
// earlier members did not return. A member that errors is logged and
// skipped. The chain fails only when sections remain unfilled and some
// member erred.
type Chain struct {
	members []enforce.Regenerator
	logger  *zap.Logger
}

var _ enforce.Regenerator = (*Chain)(nil)

// NewChain creates a chain over members, tried in order. A nil logger
// discards the warnings about skipped members.
func NewChain(logger *zap.Logger, members ...enforce.Regenerator) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{members: members, logger: logger}
}

func (c *Chain) Regenerate(ctx context.Context, req enforce.Request) (map[string]string, error) {
	out := make(map[string]string, len(req.SectionIDs))
	remaining := req.SectionIDs
	var errs []error

	for i, r := range c.members {
		if len(remaining) == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		texts, err := r.Regenerate(ctx, narrow(req, remaining))
		if err != nil {
			c.logger.Warn("regenerator failed, trying next",
				zap.Int("member", i),
				zap.String("run_id", req.RunID),
				zap.Strings("sections", remaining),
				zap.Error(err),
			)
			errs = append(errs, errors.Wrapf(err, "regenerator %d", i))
			continue
		}

		var next []string
		for _, id := range remaining {
			if t, ok := texts[id]; ok {
				out[id] = t
			} else {
				next = append(next, id)
			}
		}
		remaining = next
	}

	if len(remaining) > 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// narrow restricts req to the given section ids. Feedback is re-rendered
// so it only covers those sections.
func narrow(req enforce.Request, ids []string) enforce.Request {
	sub := req
	sub.SectionIDs = ids
	sub.Issues = make(map[string][]verify.Issue, len(ids))
	sub.Sections = make(map[string]string, len(ids))
	for _, id := range ids {
		if is, ok := req.Issues[id]; ok {
			sub.Issues[id] = is
		}
		if t, ok := req.Sections[id]; ok {
			sub.Sections[id] = t
		}
	}
	if len(ids) < len(req.SectionIDs) {
		sub.Feedback = verify.RenderFeedback(req.PackKey, ids, sub.Issues)
	}
	return sub
}
