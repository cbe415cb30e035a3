package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	now := time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC)
	tm := NewTokenManager("secret", "expense-backend", 15*time.Minute).WithClock(func() time.Time { return now })

	token, err := tm.Issue(42)
	require.NoError(t, err)

	claims, err := tm.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.Subject)
	assert.Equal(t, now.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, now.Add(15*time.Minute).Unix(), claims.ExpiresAt.Unix())
}

func TestTokensAreUnique(t *testing.T) {
	tm := NewTokenManager("secret", "iss", time.Hour)
	a, err := tm.Issue(1)
	require.NoError(t, err)
	b, err := tm.Issue(1)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyDistinguishesExpiredFromInvalid(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	tm := NewTokenManager("secret", "iss", time.Minute).WithClock(clock)
	token, err := tm.Issue(7)
	require.NoError(t, err)

	later := NewTokenManager("secret", "iss", time.Minute).WithClock(func() time.Time { return now.Add(time.Hour) })
	_, err = later.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)

	other := NewTokenManager("other-secret", "iss", time.Minute).WithClock(clock)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = tm.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	wrongIssuer := NewTokenManager("secret", "someone-else", time.Minute).WithClock(clock)
	_, err = wrongIssuer.Verify(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyIgnoringExpiryStillChecksSignature(t *testing.T) {
	now := time.Now()
	tm := NewTokenManager("secret", "iss", time.Minute).WithClock(func() time.Time { return now })
	token, err := tm.Issue(9)
	require.NoError(t, err)

	later := NewTokenManager("secret", "iss", time.Minute).WithClock(func() time.Time { return now.Add(24 * time.Hour) })
	claims, err := later.VerifyIgnoringExpiry(token)
	require.NoError(t, err)
	assert.Equal(t, int64(9), claims.Subject)

	forged := NewTokenManager("forged", "iss", time.Minute)
	_, err = forged.VerifyIgnoringExpiry(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestHasher(t *testing.T) {
	h := NewHasher(4)
	hash, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.True(t, h.Verify("correct horse", hash))
	assert.False(t, h.Verify("wrong", hash))
	assert.False(t, h.Verify("correct horse", "not-a-hash"))
	assert.False(t, h.Verify("correct horse", ""))
}

func TestNewHasherFallsBackToDefaultCost(t *testing.T) {
	assert.Equal(t, DefaultCost, NewHasher(0).cost)
	assert.Equal(t, DefaultCost, NewHasher(99).cost)
	assert.Equal(t, 10, NewHasher(10).cost)
}

func TestResetTokenHashing(t *testing.T) {
	raw, hash, err := NewResetToken()
	require.NoError(t, err)
	assert.Len(t, raw, 64)
	assert.Equal(t, hash, HashResetToken(raw))
	assert.NotEqual(t, raw, hash)

	raw2, _, err := NewResetToken()
	require.NoError(t, err)
	assert.NotEqual(t, raw, raw2)

	pw, err := RandomPassword()
	require.NoError(t, err)
	assert.Len(t, pw, 16)
}
