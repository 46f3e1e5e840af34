package cache

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenKey(t *testing.T) {
	tests := []struct {
		name       string
		credential string
		resource   string
		expected   string
	}{
		{
			name:       "simple key",
			credential: "azure",
			resource:   "https://vault.example.net",
			expected:   "token:azure:https://vault.example.net",
		},
		{
			name:       "resource with spaces",
			credential: "azure",
			resource:   "https://vault.example.net/.default scope",
			expected:   "token:azure:https://vault.example.net/.default_scope",
		},
		{
			name:       "credential with control characters",
			credential: "az\nure\t",
			resource:   "res",
			expected:   "token:azure:res",
		},
		{
			name:       "empty resource",
			credential: "azure",
			resource:   "",
			expected:   "token:azure:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TokenKey(tt.credential, tt.resource))
		})
	}
}

func TestTokenKey_StableAcrossCalls(t *testing.T) {
	key1 := TokenKey("azure", "https://vault.example.net")
	key2 := TokenKey("azure", "https://vault.example.net")
	assert.Equal(t, key1, key2)
}

func TestTokenKey_DistinctPerScope(t *testing.T) {
	key1 := TokenKey("azure", "https://vault.example.net")
	key2 := TokenKey("azure", "https://storage.example.net")
	key3 := TokenKey("other", "https://vault.example.net")

	assert.NotEqual(t, key1, key2)
	assert.NotEqual(t, key1, key3)
}

func TestHashKey(t *testing.T) {
	hash := HashKey("token:azure:https://vault.example.net")

	assert.Len(t, hash, 64)
	_, err := hex.DecodeString(hash)
	require.NoError(t, err)

	// Deterministic
	assert.Equal(t, hash, HashKey("token:azure:https://vault.example.net"))

	// Distinct inputs produce distinct hashes
	assert.NotEqual(t, hash, HashKey("token:azure:https://storage.example.net"))
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no changes needed",
			input:    "simple-key",
			expected: "simple-key",
		},
		{
			name:     "spaces replaced with underscores",
			input:    "key with spaces",
			expected: "key_with_spaces",
		},
		{
			name:     "newlines removed",
			input:    "key\nwith\nnewlines",
			expected: "keywithnewlines",
		},
		{
			name:     "carriage returns removed",
			input:    "key\rwith\rcr",
			expected: "keywithcr",
		},
		{
			name:     "tabs removed",
			input:    "key\twith\ttabs",
			expected: "keywithtabs",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeKey(tt.input))
		})
	}
}
