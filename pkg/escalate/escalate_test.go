package escalate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aicmo/benchcheck/pkg/enforce"
	"github.com/aicmo/benchcheck/pkg/verify"
)

func testFailure() *enforce.BenchmarkEnforcementError {
	return &enforce.BenchmarkEnforcementError{
		RunID:        "run-42",
		PackKey:      "quick_social_basic",
		AttemptsUsed: 2,
		Result: &verify.PackResult{
			PackKey: "quick_social_basic",
			Overall: verify.StatusFail,
			Sections: map[string]verify.SectionResult{
				"overview": {
					SectionID: "overview",
					Status:    verify.StatusFail,
					Score:     75,
					Issues: []verify.Issue{{
						Code: verify.CodeTooShort, Severity: verify.SeverityError,
						Message: "word count 3 is below the minimum of 50", SectionID: "overview",
					}},
				},
				"metrics": {
					SectionID: "metrics",
					Status:    verify.StatusFail,
					Score:     75,
					Issues: []verify.Issue{{
						Code: verify.CodeWrongFormat, Severity: verify.SeverityError,
						Message: "expected a markdown table but no line contains two or more '|' characters", SectionID: "metrics",
					}},
				},
				"next_steps": {SectionID: "next_steps", Status: verify.StatusPass, Score: 100, Issues: []verify.Issue{}},
			},
		},
		Sections: map[string]string{
			"overview": "Too short here.",
			"metrics":  "",
		},
	}
}

func TestSplitRepo(t *testing.T) {
	tests := []struct {
		repo      string
		wantOwner string
		wantName  string
		wantErr   bool
	}{
		{repo: "acme/reports", wantOwner: "acme", wantName: "reports"},
		{repo: " acme/reports ", wantOwner: "acme", wantName: "reports"},
		{repo: "", wantErr: true},
		{repo: "just-a-name", wantErr: true},
		{repo: "/reports", wantErr: true},
		{repo: "acme/", wantErr: true},
		{repo: "a/b/c", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.repo, func(t *testing.T) {
			owner, name, err := splitRepo(tt.repo)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOwner, owner)
			assert.Equal(t, tt.wantName, name)
		})
	}
}

func TestNewClientRequiresToken(t *testing.T) {
	_, err := NewClient("")
	assert.ErrorContains(t, err, "github token is required")
}

func TestRenderIssue(t *testing.T) {
	title, body := RenderIssue(testFailure())

	assert.Equal(t, "Benchmark enforcement failed: quick_social_basic (metrics, overview)", title)
	assert.Contains(t, body, "- Pack: `quick_social_basic`")
	assert.Contains(t, body, "- Run: `run-42`")
	assert.Contains(t, body, "- Attempts: 2")
	assert.Contains(t, body, "- Score: 83/100")
	assert.Contains(t, body, "### metrics")
	assert.Contains(t, body, "| ERROR | TOO_SHORT | word count 3 is below the minimum of 50 |")
	assert.Contains(t, body, `two or more '\|' characters`)
	assert.Contains(t, body, "Too short here.")
	assert.NotContains(t, body, "### next_steps")
	assert.Less(t, strings.Index(body, "### metrics"), strings.Index(body, "### overview"))
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", excerpt("short\n\n"))

	long := strings.Repeat("é", maxExcerpt)
	got := excerpt(long)
	assert.True(t, strings.HasSuffix(got, "\n..."))
	assert.LessOrEqual(t, len(got), maxExcerpt+len("\n..."))
}

type fakeGitHub struct {
	open     []map[string]any
	created  map[string]any
	comments []string
	auth     []string
}

func (f *fakeGitHub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/reports/issues", func(w http.ResponseWriter, r *http.Request) {
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "open", r.URL.Query().Get("state"))
			assert.Equal(t, "benchmark,qc", r.URL.Query().Get("labels"))
			json.NewEncoder(w).Encode(f.open)
		case http.MethodPost:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&f.created))
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{
				"number":   12,
				"title":    f.created["title"],
				"html_url": "https://github.com/acme/reports/issues/12",
			})
		}
	})
	mux.HandleFunc("/repos/acme/reports/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		var c map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&c))
		f.comments = append(f.comments, c["body"].(string))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"id": 1})
	})
	return mux
}

func newTestEscalator(t *testing.T, f *fakeGitHub) *Escalator {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	client, err := NewClient("s3cret", WithBaseURL(srv.URL))
	require.NoError(t, err)
	e, err := New(client, "acme/reports", WithLabels("benchmark", "qc"))
	require.NoError(t, err)
	return e
}

func TestEscalateOpensIssue(t *testing.T) {
	f := &fakeGitHub{open: []map[string]any{
		{"number": 3, "title": "unrelated"},
	}}
	e := newTestEscalator(t, f)

	issue, err := e.Escalate(context.Background(), testFailure())
	require.NoError(t, err)
	assert.Equal(t, &Issue{Number: 12, URL: "https://github.com/acme/reports/issues/12"}, issue)

	wantTitle, wantBody := RenderIssue(testFailure())
	assert.Equal(t, wantTitle, f.created["title"])
	assert.Equal(t, wantBody, f.created["body"])
	assert.Equal(t, []any{"benchmark", "qc"}, f.created["labels"])
	assert.Empty(t, f.comments)
	for _, a := range f.auth {
		assert.Equal(t, "Bearer s3cret", a)
	}
}

func TestEscalateCommentsOnOpenIssue(t *testing.T) {
	title, body := RenderIssue(testFailure())
	f := &fakeGitHub{open: []map[string]any{
		{"number": 5, "title": title, "pull_request": map[string]any{"url": "x"}},
		{"number": 7, "title": title, "html_url": "https://github.com/acme/reports/issues/7"},
	}}
	e := newTestEscalator(t, f)

	issue, err := e.Escalate(context.Background(), testFailure())
	require.NoError(t, err)
	assert.Equal(t, &Issue{Number: 7, URL: "https://github.com/acme/reports/issues/7", Commented: true}, issue)
	assert.Equal(t, []string{body}, f.comments)
	assert.Nil(t, f.created)
}

func TestEscalateAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message": "Bad credentials"}`))
	}))
	defer srv.Close()

	client, err := NewClient("bad", WithBaseURL(srv.URL+"/"))
	require.NoError(t, err)
	e, err := New(client, "acme/reports")
	require.NoError(t, err)

	_, err = e.Escalate(context.Background(), testFailure())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list open issues in acme/reports")
	assert.Contains(t, err.Error(), "Bad credentials")
}

func TestNewValidatesArguments(t *testing.T) {
	_, err := New(nil, "acme/reports")
	assert.Error(t, err)

	client, err := NewClient("token")
	require.NoError(t, err)
	_, err = New(client, "not-a-repo")
	assert.Error(t, err)

	_, err = (&Escalator{}).Escalate(context.Background(), nil)
	assert.Error(t, err)
}
