package regen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/aicmo/benchcheck/pkg/enforce"
)

// maxResponseBytes bounds how much of a regeneration response is read.
const maxResponseBytes = 10 * 1024 * 1024

const defaultTimeout = 120 * time.Second

// Response is the body a regeneration endpoint must return.
type Response struct {
	Sections map[string]string `json:"sections"`
}

// StatusError reports a non-2xx response from the regeneration endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("regeneration endpoint returned %d: %s", e.StatusCode, e.Body)
}

// HTTPOption configures an HTTP regenerator.
type HTTPOption func(*HTTP)

// WithAllowedDomains restricts the endpoint host. An empty list permits
// every host.
func WithAllowedDomains(domains ...string) HTTPOption {
	return func(h *HTTP) {
		h.allowedDomains = domains
	}
}

// WithHeaders sets extra request headers, such as an API key.
func WithHeaders(headers map[string]string) HTTPOption {
	return func(h *HTTP) {
		for k, v := range headers {
			h.headers[k] = v
		}
	}
}

// WithTimeout bounds each regeneration call.
func WithTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		if d > 0 {
			h.client.Timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client. Its timeout is kept as is.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) {
		if c != nil {
			h.client = c
		}
	}
}

// WithLogger sets the logger for request diagnostics.
func WithLogger(l *zap.Logger) HTTPOption {
	return func(h *HTTP) {
		if l != nil {
			h.logger = l
		}
	}
}

// HTTP is a Regenerator that POSTs the enforce.Request as JSON to an
// endpoint and reads replacement sections from the JSON response.
type HTTP struct {
	endpoint       string
	allowedDomains []string
	headers        map[string]string
	client         *http.Client
	logger         *zap.Logger
}

var _ enforce.Regenerator = (*HTTP)(nil)

// NewHTTP creates an HTTP regenerator for endpoint. The endpoint must be an
// absolute http(s) URL on an allowed domain.
func NewHTTP(endpoint string, opts ...HTTPOption) (*HTTP, error) {
	h := &HTTP{
		endpoint: endpoint,
		headers:  make(map[string]string),
		client:   &http.Client{Timeout: defaultTimeout},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid regeneration endpoint %q", endpoint)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Newf("regeneration endpoint %q must be an absolute http(s) URL", endpoint)
	}
	if err := checkAllowedDomain(endpoint, h.allowedDomains); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *HTTP) Regenerate(ctx context.Context, req enforce.Request) (map[string]string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshal regeneration request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range h.headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "regeneration request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read regeneration response")
	}
	h.logger.Debug("regeneration response",
		zap.String("endpoint", h.endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)),
		zap.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
	}

	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(err, "decode regeneration response")
	}
	if out.Sections == nil {
		return nil, errors.New(`regeneration response has no "sections" object`)
	}
	return out.Sections, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// checkAllowedDomain verifies the URL's host is in the allowlist.
func checkAllowedDomain(rawURL string, allowedDomains []string) error {
	if len(allowedDomains) == 0 {
		return nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrapf(err, "invalid URL %q", rawURL)
	}

	host := parsed.Hostname()
	for _, d := range allowedDomains {
		if host == d {
			return nil
		}
	}
	return errors.Newf("domain %q is not in the allowed list", host)
}
