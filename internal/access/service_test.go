package access

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auth-service/internal/token"
)

func newCodec() *token.Codec {
	return token.NewCodec("access-test-secret", 15*time.Minute, 24*time.Hour)
}

func TestVerifyAdminAccess(t *testing.T) {
	codec := newCodec()
	service := NewService(codec)

	adminToken, err := codec.CreateAccessToken("root@example.com", []string{"guest", "admin"})
	require.NoError(t, err)
	assert.NoError(t, service.VerifyAdminAccess(adminToken))

	guestToken, err := codec.CreateAccessToken("alice@example.com", []string{"guest"})
	require.NoError(t, err)
	assert.ErrorIs(t, service.VerifyAdminAccess(guestToken), ErrAccessDenied)
}

func TestVerifyAdminAccessInvalidToken(t *testing.T) {
	service := NewService(newCodec())

	err := service.VerifyAdminAccess("not-a-token")
	require.Error(t, err)
	assert.ErrorIs(t, err, token.ErrInvalidToken)
	assert.NotErrorIs(t, err, ErrAccessDenied)
}

func TestVerifyAdminAccessRejectsRefreshToken(t *testing.T) {
	codec := newCodec()
	service := NewService(codec)

	refresh, err := codec.CreateRefreshToken("root@example.com", []string{"admin"})
	require.NoError(t, err)

	// Admin checks only accept access tokens.
	assert.ErrorIs(t, service.VerifyAdminAccess(refresh), token.ErrInvalidToken)
}
