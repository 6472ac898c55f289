package scan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exposuregraph "github.com/exposure-graph/exposuregraph"
)

func TestScopeAuthorize(t *testing.T) {
	scope := NewScope([]string{"Example.com", " scanme.sh ", "*.lab.example.org"})

	tests := []struct {
		name    string
		target  string
		allowed bool
	}{
		{"exact match", "example.com", true},
		{"case insensitive", "EXAMPLE.COM", true},
		{"trimmed entry", "scanme.sh", true},
		{"wildcard single label", "web.lab.example.org", true},
		{"wildcard does not match base", "lab.example.org", false},
		{"wildcard does not match two labels", "a.b.lab.example.org", false},
		{"subdomain of exact entry", "api.example.com", false},
		{"unlisted domain", "evil.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := scope.Authorize(tt.target)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, exposuregraph.ErrUnauthorizedTarget))
			assert.Equal(t, exposuregraph.KindConfiguration, exposuregraph.KindOf(err))
		})
	}
}

func TestScopeDefaultDeny(t *testing.T) {
	scope := NewScope(nil)

	err := scope.Authorize("example.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, exposuregraph.ErrUnauthorizedTarget))
}

func TestScopeEmptyTarget(t *testing.T) {
	scope := NewScope([]string{"example.com"})

	err := scope.Authorize("   ")
	require.Error(t, err)
	assert.Equal(t, exposuregraph.KindValidation, exposuregraph.KindOf(err))
}

func TestScopeAllowedNormalizes(t *testing.T) {
	scope := NewScope([]string{" Example.COM ", "", "scanme.sh"})
	assert.Equal(t, []string{"example.com", "scanme.sh"}, scope.Allowed())
}
