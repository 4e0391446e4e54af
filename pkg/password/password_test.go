package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerify(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hashed, err := h.Hash("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hashed)

	assert.True(t, h.Verify("s3cret", hashed))
	assert.False(t, h.Verify("S3cret", hashed))
}

func TestVerifyMalformedHashIsMismatch(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	assert.False(t, h.Verify("x", ""))
	assert.False(t, h.Verify("x", "not-a-bcrypt-hash"))
	assert.False(t, h.Verify("x", "$2a$04$short"))
}

func TestNewHasherClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewHasher(99).cost)
	assert.Equal(t, 12, NewHasher(12).cost)
}

func TestBurnDoesNotPanic(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	h.Burn("anything")
	h.Burn("again")
	assert.NotEmpty(t, h.dummy)
}
