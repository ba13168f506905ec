package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAdminKey_ValidKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"16 characters", "0123456789abcdef"},
		{"long key", "this-is-a-very-long-admin-key-123!@#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashAdminKey(tt.key)
			require.NoError(t, err)
			assert.NotEqual(t, tt.key, hash)

			// Verify the hash is valid bcrypt format
			assert.True(t, len(hash) >= 60, "bcrypt hash should be at least 60 chars")
			assert.True(t, CheckAdminKey(tt.key, hash))
		})
	}
}

func TestHashAdminKey_ShortKey(t *testing.T) {
	hash, err := HashAdminKey("too-short")

	assert.ErrorIs(t, err, ErrKeyTooShort)
	assert.Empty(t, hash)
}

func TestCheckAdminKey(t *testing.T) {
	hash, err := HashAdminKey("correct-horse-battery")
	require.NoError(t, err)

	tests := []struct {
		name string
		key  string
		hash string
		want bool
	}{
		{"match", "correct-horse-battery", hash, true},
		{"wrong key", "correct-horse-battery!", hash, false},
		{"empty key", "", hash, false},
		{"empty hash", "correct-horse-battery", "", false},
		{"malformed hash", "correct-horse-battery", "not-a-bcrypt-hash", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckAdminKey(tt.key, tt.hash))
		})
	}
}
