package credential

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no secret is known for an identity.
var ErrNotFound = errors.New("credential not found")

// Resolver returns the secret for an account identity.
type Resolver interface {
	Resolve(ctx context.Context, identity string) (string, error)
}

// Static resolves secrets from a fixed map, typically the passwords written
// in the config file.
type Static map[string]string

var _ Resolver = Static(nil)

func (s Static) Resolve(ctx context.Context, identity string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	secret, ok := s[identity]
	if !ok || secret == "" {
		return "", fmt.Errorf("static secret for %q: %w", identity, ErrNotFound)
	}
	return secret, nil
}

// Chain tries primary first and falls back to fallback on any error other
// than context cancellation.
type Chain struct {
	primary  Resolver
	fallback Resolver
}

var _ Resolver = (*Chain)(nil)

// NewChain builds a Chain. Either resolver may be nil, in which case the
// other is used alone.
func NewChain(primary, fallback Resolver) *Chain {
	return &Chain{primary: primary, fallback: fallback}
}

func (c *Chain) Resolve(ctx context.Context, identity string) (string, error) {
	if c.primary == nil && c.fallback == nil {
		return "", fmt.Errorf("no credential backend for %q: %w", identity, ErrNotFound)
	}
	if c.primary == nil {
		return c.fallback.Resolve(ctx, identity)
	}

	secret, err := c.primary.Resolve(ctx, identity)
	if err == nil {
		return secret, nil
	}
	if shouldSkipFallback(err) || c.fallback == nil {
		return "", err
	}

	secret, fallbackErr := c.fallback.Resolve(ctx, identity)
	if fallbackErr == nil {
		return secret, nil
	}

	return "", fmt.Errorf("primary backend: %w; fallback backend: %w", err, fallbackErr)
}

func shouldSkipFallback(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
