package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheSetGetDelete(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()

	_, err := cache.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, cache.Set(ctx, "key", "value", time.Minute))
	value, err := cache.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "value", value)

	require.NoError(t, cache.Delete(ctx, "key"))
	_, err = cache.Get(ctx, "key")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()

	now := time.Now().UTC()
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Set(ctx, "key", "value", time.Minute))

	cache.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err := cache.Get(ctx, "key")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRevoker(t *testing.T) {
	ctx := context.Background()
	revoker := NewRevoker(NewMemoryCache())

	revoked, err := revoker.IsRevoked(ctx, "some-token")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, revoker.Revoke(ctx, "some-token", time.Minute))

	revoked, err = revoker.IsRevoked(ctx, "some-token")
	require.NoError(t, err)
	assert.True(t, revoked)

	// Another token is unaffected.
	revoked, err = revoker.IsRevoked(ctx, "other-token")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestMemoryRateTracker(t *testing.T) {
	ctx := context.Background()
	tracker := NewMemoryRateTracker()

	for want := int64(1); want <= 3; want++ {
		count, err := tracker.Track(ctx, "login:10.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, want, count)
	}

	count, err := tracker.Track(ctx, "login:10.0.0.2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
