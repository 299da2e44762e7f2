package escalate

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	gh "github.com/google/go-github/v60/github"
)

// Client wraps the GitHub API client with token authentication.
type Client struct {
	inner *gh.Client
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	baseURL   string
	transport http.RoundTripper
}

// WithBaseURL points the client at a GitHub Enterprise or test API root.
func WithBaseURL(u string) ClientOption {
	return func(c *clientConfig) {
		c.baseURL = u
	}
}

// WithTransport sets the transport the token transport delegates to.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *clientConfig) {
		c.transport = rt
	}
}

// NewClient creates a GitHub API client with the given token.
func NewClient(token string, opts ...ClientOption) (*Client, error) {
	if token == "" {
		return nil, errors.WithHint(
			errors.New("github token is required"),
			"set github.token in the config file or export GITHUB_TOKEN")
	}
	cfg := clientConfig{transport: http.DefaultTransport}
	for _, opt := range opts {
		opt(&cfg)
	}

	httpClient := &http.Client{
		Transport: &tokenTransport{token: token, base: cfg.transport},
	}
	inner := gh.NewClient(httpClient)
	if cfg.baseURL != "" {
		base := cfg.baseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid github base URL %q", cfg.baseURL)
		}
		inner.BaseURL = u
	}
	return &Client{inner: inner}, nil
}

// tokenTransport adds Bearer token auth to HTTP requests.
type tokenTransport struct {
	token string
	base  http.RoundTripper
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(req)
}

// splitRepo parses an "owner/name" repository reference.
func splitRepo(repo string) (string, string, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(repo), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", errors.Newf("invalid repo %q (expected 'owner/name' format)", repo)
	}
	return owner, name, nil
}
