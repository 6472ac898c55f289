package collector

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exposuregraph "github.com/exposure-graph/exposuregraph"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubBinary writes an executable shell script and returns its path.
func stubBinary(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stub")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestParseSubfinderOutput(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   []string
	}{
		{
			name: "deduplicates and lowercases",
			output: `{"host":"API.example.com","source":"crtsh"}
{"host":"www.example.com","source":"dnsdumpster"}
{"host":"api.example.com","source":"virustotal"}`,
			want: []string{"api.example.com", "www.example.com"},
		},
		{
			name: "skips malformed lines",
			output: `{"host":"api.example.com"}
not json at all
{"host":"www.example.com"}`,
			want: []string{"api.example.com", "www.example.com"},
		},
		{
			name:   "skips empty hosts and blank lines",
			output: "{\"host\":\"\"}\n\n{\"host\":\"cdn.example.com\"}\n",
			want:   []string{"cdn.example.com"},
		},
		{
			name:   "empty output",
			output: "",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseSubfinderOutput([]byte(tt.output), discardLogger())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSubfinderDiscover(t *testing.T) {
	t.Run("parses stub output", func(t *testing.T) {
		stub := stubBinary(t, `cat <<'EOF'
{"host":"api.example.com","source":"crtsh"}
{"host":"staging.example.com","source":"crtsh"}
EOF`)

		sf, err := NewSubfinder(stub, time.Second, discardLogger())
		require.NoError(t, err)

		subs, err := sf.Discover(context.Background(), "example.com")
		require.NoError(t, err)
		assert.Equal(t, []string{"api.example.com", "staging.example.com"}, subs)
	})

	t.Run("non-zero exit fails with stderr", func(t *testing.T) {
		stub := stubBinary(t, `echo "no sources configured" >&2; exit 1`)

		sf, err := NewSubfinder(stub, time.Second, discardLogger())
		require.NoError(t, err)

		_, err = sf.Discover(context.Background(), "example.com")
		require.Error(t, err)
		assert.Equal(t, exposuregraph.KindExecution, exposuregraph.KindOf(err))
		assert.Contains(t, err.Error(), "no sources configured")
	})

	t.Run("empty domain", func(t *testing.T) {
		stub := stubBinary(t, "exit 0")
		sf, err := NewSubfinder(stub, time.Second, discardLogger())
		require.NoError(t, err)

		_, err = sf.Discover(context.Background(), "")
		require.Error(t, err)
		assert.Equal(t, exposuregraph.KindValidation, exposuregraph.KindOf(err))
	})
}

func TestNewSubfinderMissingBinary(t *testing.T) {
	_, err := NewSubfinder("definitely-not-installed-anywhere", 0, discardLogger())
	require.Error(t, err)
	assert.Equal(t, exposuregraph.KindConfiguration, exposuregraph.KindOf(err))
	assert.Contains(t, err.Error(), "go install")
}
