package sandbox

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	g, err := New(Config{})
	require.NoError(t, err)
	assert.Empty(t, g.outputPaths)
	assert.Zero(t, g.MaxInputSize())

	g, err = New(Config{MaxInputSize: "10MB"})
	require.NoError(t, err)
	assert.Equal(t, int64(10*1024*1024), g.MaxInputSize())

	_, err = New(Config{MaxInputSize: "notasize"})
	assert.Error(t, err)
}

func TestCheckWrite(t *testing.T) {
	tmpDir := t.TempDir()
	reports := filepath.Join(tmpDir, "reports")

	g, err := New(Config{OutputPaths: []string{reports}})
	require.NoError(t, err)

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"dir itself", reports, false},
		{"file under dir", filepath.Join(reports, "q1", "final.json"), false},
		{"sibling with shared prefix", reports + "-old/final.json", true},
		{"outside", filepath.Join(tmpDir, "final.json"), true},
		{"escape via dotdot", filepath.Join(reports, "..", "final.json"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.CheckWrite(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrDenied)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	open, err := New(Config{})
	require.NoError(t, err)
	assert.NoError(t, open.CheckWrite("/anywhere/at/all.json"))
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	small := filepath.Join(dir, "small.json")
	big := filepath.Join(dir, "big.json")
	require.NoError(t, os.WriteFile(small, []byte(`{"a": "b"}`), 0o644))
	require.NoError(t, os.WriteFile(big, []byte(strings.Repeat("x", 2048)), 0o644))

	g, err := New(Config{MaxInputSize: "1KB"})
	require.NoError(t, err)

	data, err := g.ReadFile(small)
	require.NoError(t, err)
	assert.Equal(t, `{"a": "b"}`, string(data))

	_, err = g.ReadFile(big)
	assert.ErrorIs(t, err, ErrDenied)
	assert.ErrorContains(t, err, "input exceeds maximum of 1.0KB")

	_, err = g.ReadFile(filepath.Join(dir, "missing.json"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRead(t *testing.T) {
	g, err := New(Config{MaxInputSize: "4B"})
	require.NoError(t, err)

	data, err := g.Read(strings.NewReader("1234"))
	require.NoError(t, err)
	assert.Equal(t, "1234", string(data))

	_, err = g.Read(strings.NewReader("12345"))
	assert.ErrorIs(t, err, ErrDenied)
}

func TestDeniedErrorMatchesThroughWrapping(t *testing.T) {
	g, err := New(Config{OutputPaths: []string{t.TempDir()}, MaxInputSize: "4B"})
	require.NoError(t, err)

	writeErr := g.CheckWrite("/elsewhere/final.json")
	_, readErr := g.Read(strings.NewReader("12345"))

	for _, err := range []error{writeErr, readErr} {
		wrapped := errors.Wrap(err, "enforce")
		assert.True(t, stderrors.Is(wrapped, ErrDenied), "stdlib errors.Is: %v", wrapped)
		assert.True(t, errors.Is(wrapped, ErrDenied), "cockroachdb errors.Is: %v", wrapped)

		var de *DeniedError
		require.True(t, stderrors.As(wrapped, &de))
		assert.NotEmpty(t, de.Reason)
	}
	assert.EqualError(t, readErr, "sandbox: input exceeds maximum of 4B")
	assert.ErrorContains(t, writeErr, "is not under any allowed path")
	assert.False(t, stderrors.Is(errors.New("sandbox: access denied"), ErrDenied))
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"100", 100, false},
		{"100B", 100, false},
		{"1KB", 1024, false},
		{"10MB", 10 * 1024 * 1024, false},
		{"1GB", 1024 * 1024 * 1024, false},
		{"1.5MB", int64(1.5 * 1024 * 1024), false},
		{"10mb", 10 * 1024 * 1024, false},
		{" 5 KB ", 5 * 1024, false},
		{"-1MB", 0, true},
		{"abc", 0, true},
		{"MB", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512B", FormatSize(512))
	assert.Equal(t, "1.0KB", FormatSize(1024))
	assert.Equal(t, "1.5MB", FormatSize(1536*1024))
	assert.Equal(t, "2.0GB", FormatSize(2<<30))
}
