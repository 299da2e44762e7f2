package mcpserver

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/aicmo/benchcheck/pkg/benchmark"
	"github.com/aicmo/benchcheck/pkg/history"
	"github.com/aicmo/benchcheck/pkg/verify"
)

// ListPacksInput is the input of the list_packs tool.
type ListPacksInput struct{}

// PackSummary describes one pack found in the benchmark directory.
type PackSummary struct {
	Key              string   `json:"key"`
	ExpectedSections []string `json:"expectedSections"`
	RuleCount        int      `json:"ruleCount"`
}

// ListPacksOutput is the output of the list_packs tool.
type ListPacksOutput struct {
	Packs  []PackSummary `json:"packs"`
	Broken []string      `json:"broken,omitempty"`
}

// GetRulesInput is the input of the get_rules tool.
type GetRulesInput struct {
	Pack string `json:"pack" jsonschema:"the benchmark pack key, e.g. quick_social_basic"`
}

// GetRulesOutput is the output of the get_rules tool.
type GetRulesOutput struct {
	Pack             string                    `json:"pack"`
	ExpectedSections []string                  `json:"expectedSections"`
	Rules            map[string]benchmark.Rule `json:"rules"`
}

// ValidateSectionInput is the input of the validate_section tool.
type ValidateSectionInput struct {
	Pack      string `json:"pack" jsonschema:"the benchmark pack key"`
	SectionID string `json:"sectionId" jsonschema:"the id of the section to validate"`
	Text      string `json:"text" jsonschema:"the markdown text of the section"`
}

// ValidateSectionOutput is the output of the validate_section tool.
type ValidateSectionOutput struct {
	Result verify.SectionResult `json:"result"`
}

// ValidatePackInput is the input of the validate_pack tool.
type ValidatePackInput struct {
	Pack     string            `json:"pack" jsonschema:"the benchmark pack key"`
	Sections map[string]string `json:"sections" jsonschema:"section id to markdown text for every generated section"`
}

// ValidatePackOutput is the output of the validate_pack tool.
type ValidatePackOutput struct {
	Result   *verify.PackResult `json:"result"`
	Score    int                `json:"score"`
	Feedback string             `json:"feedback,omitempty"`
}

// ListRunsInput is the input of the list_runs tool.
type ListRunsInput struct {
	Pack  string `json:"pack,omitempty" jsonschema:"only return runs of this pack"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of runs (default: 20)"`
}

// RunSummary is a history record in tool output form.
type RunSummary struct {
	ID         string   `json:"id"`
	Pack       string   `json:"pack"`
	Outcome    string   `json:"outcome"`
	Attempts   int      `json:"attempts"`
	Failing    []string `json:"failing,omitempty"`
	Score      int      `json:"score"`
	Error      string   `json:"error,omitempty"`
	StartedAt  string   `json:"startedAt"`
	DurationMS int64    `json:"durationMs"`
}

// ListRunsOutput is the output of the list_runs tool.
type ListRunsOutput struct {
	Runs []RunSummary `json:"runs"`
}

// RunLister reads enforcement history. *history.BoltStore satisfies it.
type RunLister interface {
	List(opts history.ListOptions) ([]history.RunRecord, error)
}

const defaultRunLimit = 20

// Service holds the benchmark store and validators used by the tool
// handlers.
type Service struct {
	store     *benchmark.Store
	validator *verify.Validator
	packs     *verify.PackValidator
	runs      RunLister
	logger    *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithRunLister enables the list_runs tool.
func WithRunLister(r RunLister) Option {
	return func(s *Service) {
		s.runs = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a Service. A nil validator uses the default one.
func NewService(store *benchmark.Store, v *verify.Validator, opts ...Option) *Service {
	if v == nil {
		v = verify.NewValidator()
	}
	s := &Service{
		store:     store,
		validator: v,
		packs:     verify.NewPackValidator(store, v),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListPacks loads every pack in the benchmark directory.
func (s *Service) ListPacks(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ListPacksInput,
) (*mcp.CallToolResult, ListPacksOutput, error) {
	packs, loadErr := s.store.LoadAll(ctx)
	if loadErr != nil && packs == nil {
		return nil, ListPacksOutput{}, loadErr
	}

	out := ListPacksOutput{Packs: make([]PackSummary, 0, len(packs))}
	for _, key := range slices.Sorted(maps.Keys(packs)) {
		p := packs[key]
		out.Packs = append(out.Packs, PackSummary{
			Key:              p.Key,
			ExpectedSections: p.ExpectedSections,
			RuleCount:        len(p.Rules),
		})
	}
	if loadErr != nil {
		var ce *benchmark.ConfigError
		for _, err := range unjoin(loadErr) {
			if errors.As(err, &ce) {
				out.Broken = append(out.Broken, ce.PackKey)
			}
		}
		s.logger.Warn("some benchmark packs failed to load", zap.Error(loadErr))
	}
	return nil, out, nil
}

// GetRules returns the whitelist and rules of one pack.
func (s *Service) GetRules(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input GetRulesInput,
) (*mcp.CallToolResult, GetRulesOutput, error) {
	pack, err := s.store.Pack(input.Pack)
	if err != nil {
		return nil, GetRulesOutput{}, err
	}
	return nil, GetRulesOutput{
		Pack:             pack.Key,
		ExpectedSections: pack.ExpectedSections,
		Rules:            pack.Rules,
	}, nil
}

// ValidateSection checks one section against its rule.
func (s *Service) ValidateSection(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ValidateSectionInput,
) (*mcp.CallToolResult, ValidateSectionOutput, error) {
	if input.SectionID == "" {
		return nil, ValidateSectionOutput{}, errors.New("sectionId is required")
	}
	rule, ok, err := s.store.GetRule(input.Pack, input.SectionID)
	if err != nil {
		return nil, ValidateSectionOutput{}, err
	}
	if !ok {
		return nil, ValidateSectionOutput{}, errors.Newf("pack %q has no rule for section %q", input.Pack, input.SectionID)
	}
	return nil, ValidateSectionOutput{Result: s.validator.Validate(input.SectionID, input.Text, rule)}, nil
}

// ValidatePack checks every section of a report against its pack.
func (s *Service) ValidatePack(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ValidatePackInput,
) (*mcp.CallToolResult, ValidatePackOutput, error) {
	result, err := s.packs.Validate(input.Pack, input.Sections)
	if err != nil {
		return nil, ValidatePackOutput{}, err
	}
	return nil, ValidatePackOutput{
		Result:   result,
		Score:    result.Score(),
		Feedback: result.FormatFeedback(),
	}, nil
}

// ListRuns returns recent enforcement runs, newest first.
func (s *Service) ListRuns(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ListRunsInput,
) (*mcp.CallToolResult, ListRunsOutput, error) {
	if s.runs == nil {
		return nil, ListRunsOutput{}, errors.New("run history is not enabled")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultRunLimit
	}
	recs, err := s.runs.List(history.ListOptions{PackKey: input.Pack, Limit: limit})
	if err != nil {
		return nil, ListRunsOutput{}, err
	}
	out := ListRunsOutput{Runs: make([]RunSummary, len(recs))}
	for i, r := range recs {
		out.Runs[i] = RunSummary{
			ID:         r.ID,
			Pack:       r.PackKey,
			Outcome:    string(r.Outcome),
			Attempts:   r.Attempts,
			Failing:    r.Failing,
			Score:      r.Score,
			Error:      r.Error,
			StartedAt:  r.StartedAt.UTC().Format(time.RFC3339),
			DurationMS: r.Duration.Milliseconds(),
		}
	}
	return nil, out, nil
}

// unjoin flattens an errors.Join result.
func unjoin(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
