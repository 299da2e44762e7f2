package benchmark

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// packExtensions lists the recognized pack file extensions in lookup order.
var packExtensions = []string{".json", ".yaml", ".yml"}

var packKeyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*(/[A-Za-z0-9][A-Za-z0-9_-]*)*$`)

const defaultLoadConcurrency = 4

// Store loads benchmark packs from a filesystem and caches every pack that
// loads successfully. The cache is populated once per key and never
// invalidated. A Store is safe for concurrent use.
type Store struct {
	fsys        fs.FS
	logger      *zap.Logger
	concurrency int

	mu    sync.RWMutex
	packs map[string]Pack
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger used for load diagnostics.
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithConcurrency bounds the number of packs LoadAll reads at once.
func WithConcurrency(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewStore creates a store that reads packs from fsys.
func NewStore(fsys fs.FS, opts ...StoreOption) *Store {
	s := &Store{
		fsys:        fsys,
		logger:      zap.NewNop(),
		concurrency: defaultLoadConcurrency,
		packs:       make(map[string]Pack),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewDirStore creates a store rooted at a directory on disk.
func NewDirStore(dir string, opts ...StoreOption) *Store {
	return NewStore(os.DirFS(dir), opts...)
}

// Load returns the section rules of a pack keyed by section id.
func (s *Store) Load(packKey string) (map[string]Rule, error) {
	p, err := s.Pack(packKey)
	if err != nil {
		return nil, err
	}
	return p.Rules, nil
}

// GetRule returns the rule for one section. ok is false when the pack loads
// but has no rule for sectionID; err is set only when the pack fails to load.
func (s *Store) GetRule(packKey, sectionID string) (Rule, bool, error) {
	s.mu.RLock()
	p, cached := s.packs[packKey]
	s.mu.RUnlock()
	if !cached {
		var err error
		if p, err = s.Pack(packKey); err != nil {
			return Rule{}, false, err
		}
	}
	r, ok := p.Rule(sectionID)
	return r, ok, nil
}

// Pack returns a copy of the named pack, loading it on first use.
func (s *Store) Pack(packKey string) (Pack, error) {
	s.mu.RLock()
	p, ok := s.packs[packKey]
	s.mu.RUnlock()
	if ok {
		return p.clone(), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.packs[packKey]; ok {
		return p.clone(), nil
	}

	p, err := s.read(packKey)
	if err != nil {
		s.logger.Debug("benchmark pack load failed", zap.String("pack", packKey), zap.Error(err))
		return Pack{}, err
	}
	s.packs[packKey] = p
	s.logger.Debug("benchmark pack loaded",
		zap.String("pack", packKey),
		zap.String("source", p.Source),
		zap.Int("sections", len(p.ExpectedSections)),
		zap.Int("rules", len(p.Rules)),
	)
	return p.clone(), nil
}

// Discover lists the keys of every pack file in the store's filesystem,
// sorted. Files whose names do not form a valid pack key are skipped.
func (s *Store) Discover(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matches, err := doublestar.Glob(s.fsys, "**/*.{json,yaml,yml}")
	if err != nil {
		return nil, errors.Wrap(err, "discover benchmark packs")
	}

	seen := make(map[string]bool, len(matches))
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		key := strings.TrimSuffix(m, path.Ext(m))
		if !packKeyPattern.MatchString(key) {
			s.logger.Debug("skipping pack file with invalid key", zap.String("path", m))
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// LoadAll loads every discovered pack concurrently. Packs that load are
// returned even when others fail; the error joins one ConfigError per
// broken pack, in key order.
func (s *Store) LoadAll(ctx context.Context) (map[string]Pack, error) {
	keys, err := s.Discover(ctx)
	if err != nil {
		return nil, err
	}

	packs := make([]Pack, len(keys))
	loadErrs := make([]error, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, key := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			packs[i], loadErrs[i] = s.Pack(key)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]Pack, len(keys))
	var failed []error
	for i, key := range keys {
		if loadErrs[i] != nil {
			failed = append(failed, loadErrs[i])
			continue
		}
		out[key] = packs[i]
	}
	if len(failed) > 0 {
		return out, errors.Join(failed...)
	}
	return out, nil
}

func (s *Store) read(packKey string) (Pack, error) {
	if !packKeyPattern.MatchString(packKey) {
		return Pack{}, &ConfigError{PackKey: packKey, Reason: "invalid pack key"}
	}

	var found []string
	for _, ext := range packExtensions {
		name := packKey + ext
		if _, err := fs.Stat(s.fsys, name); err == nil {
			found = append(found, name)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return Pack{}, &ConfigError{PackKey: packKey, Path: name, Reason: "stat pack file", Err: err}
		}
	}
	switch len(found) {
	case 0:
		return Pack{}, errors.WithHintf(
			&ConfigError{PackKey: packKey, Path: packKey + ".json", Reason: "pack file not found", Err: fs.ErrNotExist},
			"create %s.json (or .yaml) in the benchmarks directory", packKey)
	case 1:
	default:
		return Pack{}, &ConfigError{
			PackKey: packKey,
			Path:    found[0],
			Reason:  "ambiguous pack: found " + strings.Join(found, " and "),
		}
	}

	name := found[0]
	data, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		return Pack{}, &ConfigError{PackKey: packKey, Path: name, Reason: "read pack file", Err: err}
	}

	raw, err := decodePack(name, data)
	if err != nil {
		return Pack{}, &ConfigError{PackKey: packKey, Path: name, Reason: "malformed pack document", Err: err}
	}

	pack, violations := buildPack(packKey, name, raw)
	if len(violations) > 0 {
		return Pack{}, &ConfigError{PackKey: packKey, Path: name, Reason: "schema violation", Err: violations}
	}
	return pack, nil
}

func decodePack(name string, data []byte) (rawPack, error) {
	var raw rawPack
	if path.Ext(name) == ".json" {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&raw); err != nil {
			return rawPack{}, err
		}
		if _, err := dec.Token(); !errors.Is(err, io.EOF) {
			return rawPack{}, errors.New("unexpected data after top-level object")
		}
		return raw, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return rawPack{}, errors.New("empty document")
		}
		return rawPack{}, err
	}
	return raw, nil
}
