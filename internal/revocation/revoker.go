package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// revokedSentinel marks a blacklisted access token. The raw token string is
// the key; nothing structured is stored.
const revokedSentinel = "invalid"

// Revoker is the explicit-invalidation path stateless signed tokens cannot
// provide on their own. Entries live at least as long as the token's
// remaining natural lifetime.
type Revoker struct {
	cache Cache
}

func NewRevoker(cache Cache) *Revoker {
	return &Revoker{cache: cache}
}

func (r *Revoker) IsRevoked(ctx context.Context, accessToken string) (bool, error) {
	value, err := r.cache.Get(ctx, accessToken)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return false, nil
		}
		return false, fmt.Errorf("revocation lookup: %w", err)
	}
	return value == revokedSentinel, nil
}

func (r *Revoker) Revoke(ctx context.Context, accessToken string, ttl time.Duration) error {
	if err := r.cache.Set(ctx, accessToken, revokedSentinel, ttl); err != nil {
		return fmt.Errorf("revocation store: %w", err)
	}
	return nil
}
