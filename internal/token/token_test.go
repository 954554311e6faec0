package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec() *Codec {
	return New(Options{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		Issuer:        "ems-api",
		AccessTTL:     time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
	})
}

func TestCodec_AccessRoundTrip(t *testing.T) {
	c := newTestCodec()
	emp := int64(42)

	signed, err := c.SignAccess(AccessClaims{
		UserID:         7,
		Role:           "manager",
		EmployeeID:     &emp,
		ProviderUserID: "graph-user-1",
		Email:          "jdoe@example.com",
	})
	require.NoError(t, err)

	claims, err := c.VerifyAccess(signed)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "manager", claims.Role)
	require.NotNil(t, claims.EmployeeID)
	assert.Equal(t, int64(42), *claims.EmployeeID)
	assert.Equal(t, "graph-user-1", claims.ProviderUserID)
	assert.Equal(t, "jdoe@example.com", claims.Email)
	assert.Equal(t, "ems-api", claims.Issuer)
	assert.Empty(t, claims.RefreshToken)
}

func TestCodec_RefreshRoundTrip(t *testing.T) {
	c := newTestCodec()

	signed, err := c.SignRefresh(99)
	require.NoError(t, err)

	claims, err := c.VerifyRefresh(signed)
	require.NoError(t, err)
	assert.Equal(t, int64(99), claims.UserID)
}

func TestCodec_WrongSecretIsMalformed(t *testing.T) {
	c := newTestCodec()
	signed, err := c.SignAccess(AccessClaims{UserID: 1, Role: "employee"})
	require.NoError(t, err)

	other := New(Options{AccessSecret: "different-secret", AccessTTL: time.Hour})
	_, err = other.VerifyAccess(signed)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCodec_GarbageIsMalformed(t *testing.T) {
	c := newTestCodec()
	_, err := c.VerifyAccess("not-a-jwt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCodec_ExpiredToken(t *testing.T) {
	c := New(Options{
		AccessSecret: "access-secret",
		AccessTTL:    -time.Hour,
	})
	signed, err := c.SignAccess(AccessClaims{UserID: 1, Role: "employee"})
	require.NoError(t, err)

	verifier := New(Options{AccessSecret: "access-secret", AccessTTL: time.Hour})
	_, err = verifier.VerifyAccess(signed)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExpired)
	assert.NotErrorIs(t, err, ErrMalformed)
}

func TestCodec_RefreshSecretDoesNotVerifyAccessTokens(t *testing.T) {
	c := newTestCodec()
	refresh, err := c.SignRefresh(5)
	require.NoError(t, err)

	_, err = c.VerifyAccess(refresh)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCodec_MissingSecrets(t *testing.T) {
	c := New(Options{})

	_, err := c.SignAccess(AccessClaims{UserID: 1})
	assert.ErrorIs(t, err, ErrNoSecret)

	_, err = c.SignRefresh(1)
	assert.ErrorIs(t, err, ErrNoSecret)

	_, err = c.VerifyAccess("whatever")
	assert.ErrorIs(t, err, ErrNoSecret)

	_, err = c.VerifyRefresh("whatever")
	assert.ErrorIs(t, err, ErrNoSecret)

	assert.False(t, c.HasAccessSecret())
	assert.False(t, c.HasRefreshSecret())
}

// Verifying twice with the same invalid token must fail the same way both
// times; there is no hidden retry state in the codec.
func TestCodec_IdempotentRejection(t *testing.T) {
	c := newTestCodec()

	_, err1 := c.VerifyAccess("bogus")
	_, err2 := c.VerifyAccess("bogus")
	require.Error(t, err1)
	require.Error(t, err2)
	assert.ErrorIs(t, err1, ErrMalformed)
	assert.ErrorIs(t, err2, ErrMalformed)
}
