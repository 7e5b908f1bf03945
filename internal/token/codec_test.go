package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key"

func TestCreateTokensRoundTrip(t *testing.T) {
	codec := NewCodec(testSecret, 15*time.Minute, 24*time.Hour)

	pair, err := codec.CreateTokens("alice@example.com", []string{"guest", "editor"})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	login, err := codec.LoginFromAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", login)

	roles, err := codec.RolesFromToken(pair.AccessToken)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"guest", "editor"}, roles)

	roles, err = codec.RolesFromToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"guest", "editor"}, roles)
}

func TestValidateAccessTokenFailsClosed(t *testing.T) {
	codec := NewCodec(testSecret, 15*time.Minute, 24*time.Hour)

	pair, err := codec.CreateTokens("alice@example.com", []string{"guest"})
	require.NoError(t, err)

	assert.True(t, codec.ValidateAccessToken(pair.AccessToken))

	// A refresh token is not an access token.
	assert.False(t, codec.ValidateAccessToken(pair.RefreshToken))

	assert.False(t, codec.ValidateAccessToken(""))
	assert.False(t, codec.ValidateAccessToken("garbage"))
	assert.False(t, codec.ValidateAccessToken("a.b.c"))

	other := NewCodec("different-secret", 15*time.Minute, 24*time.Hour)
	assert.False(t, other.ValidateAccessToken(pair.AccessToken))
}

func TestValidateAccessTokenExpired(t *testing.T) {
	codec := NewCodec(testSecret, 15*time.Minute, 24*time.Hour)
	codec.now = func() time.Time { return time.Now().UTC().Add(-time.Hour) }

	access, err := codec.CreateAccessToken("alice@example.com", nil)
	require.NoError(t, err)

	codec.now = func() time.Time { return time.Now().UTC() }
	assert.False(t, codec.ValidateAccessToken(access))

	_, err = codec.LoginFromAccessToken(access)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLoginFromAccessTokenRejectsRefresh(t *testing.T) {
	codec := NewCodec(testSecret, 15*time.Minute, 24*time.Hour)

	refresh, err := codec.CreateRefreshToken("alice@example.com", []string{"guest"})
	require.NoError(t, err)

	_, err = codec.LoginFromAccessToken(refresh)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestRefreshTokens(t *testing.T) {
	codec := NewCodec(testSecret, 15*time.Minute, 24*time.Hour)

	refresh, err := codec.CreateRefreshToken("alice@example.com", []string{"guest"})
	require.NoError(t, err)

	// The new pair carries the current role set, not the one baked into
	// the old refresh token.
	pair, err := codec.RefreshTokens(refresh, []string{"guest", "admin"})
	require.NoError(t, err)

	login, err := codec.LoginFromAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", login)

	roles, err := codec.RolesFromToken(pair.AccessToken)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"guest", "admin"}, roles)
}

func TestRefreshTokensRejectsAccessToken(t *testing.T) {
	codec := NewCodec(testSecret, 15*time.Minute, 24*time.Hour)

	access, err := codec.CreateAccessToken("alice@example.com", []string{"guest"})
	require.NoError(t, err)

	_, err = codec.RefreshTokens(access, []string{"guest"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestRefreshTokensIgnoresExpiry(t *testing.T) {
	codec := NewCodec(testSecret, 15*time.Minute, time.Hour)
	codec.now = func() time.Time { return time.Now().UTC().Add(-2 * time.Hour) }

	refresh, err := codec.CreateRefreshToken("alice@example.com", []string{"guest"})
	require.NoError(t, err)

	// Codec-level refresh does not check expiry: whether the token is
	// still redeemable is the session store's call.
	codec.now = func() time.Time { return time.Now().UTC() }
	_, err = codec.RefreshTokens(refresh, []string{"guest"})
	require.NoError(t, err)
}

func TestRemainingTTL(t *testing.T) {
	codec := NewCodec(testSecret, 15*time.Minute, 24*time.Hour)

	access, err := codec.CreateAccessToken("alice@example.com", nil)
	require.NoError(t, err)

	ttl := codec.RemainingTTL(access)
	assert.Greater(t, ttl, 14*time.Minute)
	assert.LessOrEqual(t, ttl, 15*time.Minute)

	// Undecodable input gets the full access TTL so a revocation entry
	// cannot expire before the token it blacklists.
	assert.Equal(t, 15*time.Minute, codec.RemainingTTL("garbage"))
}
