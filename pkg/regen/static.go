package regen

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/aicmo/benchcheck/pkg/enforce"
)

// Static is a Regenerator that answers with fixed fallback text per
// section, such as vetted template copy. Sections without a template are
// left out of the answer.
type Static struct {
	texts map[string]string
}

var _ enforce.Regenerator = (*Static)(nil)

// NewStatic creates a static regenerator from section templates.
func NewStatic(texts map[string]string) *Static {
	s := &Static{texts: make(map[string]string, len(texts))}
	for id, t := range texts {
		s.texts[id] = t
	}
	return s
}

// LoadStatic reads section templates from a YAML (or JSON) file mapping
// section ids to text.
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read fallback templates %s", path)
	}
	var texts map[string]string
	if err := yaml.Unmarshal(data, &texts); err != nil {
		return nil, errors.Wrapf(err, "parse fallback templates %s", filepath.Base(path))
	}
	return NewStatic(texts), nil
}

func (s *Static) Regenerate(ctx context.Context, req enforce.Request) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(req.SectionIDs))
	for _, id := range req.SectionIDs {
		if t, ok := s.texts[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}
