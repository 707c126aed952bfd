package utils

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLinkIDFormat(t *testing.T) {
	id := NewLinkID()
	assert.Len(t, id, 32) // 16 字节的 hex 编码

	raw, err := hex.DecodeString(id)
	require.NoError(t, err)
	assert.Len(t, raw, 16)
}

func TestNewLinkIDUniqueness(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewLinkID()
		_, dup := seen[id]
		require.False(t, dup, "duplicate link id generated: %s", id)
		seen[id] = struct{}{}
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	assert.True(t, CheckPasswordHash("s3cret", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))
}
