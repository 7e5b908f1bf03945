package socials

import (
	"context"
	"errors"
	"fmt"
)

const (
	ProviderGoogle = "google"
	ProviderYandex = "yandex"
)

// Identity is what an upstream provider asserts about a user after the
// OAuth code exchange. Login is an email-shaped string matching the local
// User.login namespace.
type Identity struct {
	IDSocial string
	Login    string
	Provider string
}

// Provider exchanges an authorization code for a verified user identity.
type Provider interface {
	Name() string
	AuthorizationURL(state string) string
	Identity(ctx context.Context, code string) (Identity, error)
}

// Registry holds the providers configured at startup, keyed by name.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	registry := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		registry.providers[p.Name()] = p
	}
	return registry
}

func (r *Registry) Get(name string) (Provider, error) {
	provider, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return provider, nil
}

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrProviderDenied  = errors.New("provider rejected the authorization")
)
