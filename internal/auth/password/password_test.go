package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	dErrors "tasktrail/pkg/domain-errors"
)

func TestHasher(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("secret123")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", hash)

	require.NoError(t, h.Verify("secret123", hash))
	assert.ErrorIs(t, h.Verify("wrong", hash), ErrMismatch)

	_, err = h.Hash("")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = h.Hash(strings.Repeat("x", 100))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	err = h.Verify("secret123", "not-a-hash")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMismatch)
}
