package revocation

import (
	"context"
	"errors"
	"time"
)

// Cache is the narrow key-value contract the revocation path needs. Values
// are plain string sentinels, never structured payloads.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

var ErrCacheMiss = errors.New("cache miss")
