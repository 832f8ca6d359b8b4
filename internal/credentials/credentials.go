// Package credentials resolves authentication tokens for repositories.
//
// A Resolver returns ("", nil) when it has nothing to offer for a
// repository. Required turns that into ErrCredentialUnavailable for private
// repositories; everything else composes resolvers.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"reposync/internal/descriptor"
)

var ErrCredentialUnavailable = errors.New("credential unavailable")

type Resolver interface {
	Resolve(ctx context.Context, d descriptor.Descriptor) (string, error)
}

type ResolverFunc func(ctx context.Context, d descriptor.Descriptor) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context, d descriptor.Descriptor) (string, error) {
	return f(ctx, d)
}

// Chain tries resolvers in order and returns the first non-empty token. An
// error from any resolver stops the chain.
type Chain []Resolver

func (c Chain) Resolve(ctx context.Context, d descriptor.Descriptor) (string, error) {
	for _, r := range c {
		if r == nil {
			continue
		}
		tok, err := r.Resolve(ctx, d)
		if err != nil {
			return "", err
		}
		if tok = strings.TrimSpace(tok); tok != "" {
			return tok, nil
		}
	}
	return "", nil
}

// Static hands out fixed tokens, per repository id or a shared default.
type Static struct {
	ByID    map[string]string
	Default string
}

func (s Static) Resolve(_ context.Context, d descriptor.Descriptor) (string, error) {
	if tok, ok := s.ByID[d.ID]; ok {
		return tok, nil
	}
	return s.Default, nil
}

// Required wraps r so that private repositories without a token fail with
// ErrCredentialUnavailable. Errors from r are wrapped the same way.
func Required(r Resolver) Resolver {
	return ResolverFunc(func(ctx context.Context, d descriptor.Descriptor) (string, error) {
		tok, err := r.Resolve(ctx, d)
		if err != nil {
			if errors.Is(err, ErrCredentialUnavailable) {
				return "", err
			}
			return "", fmt.Errorf("%w: %s: %w", ErrCredentialUnavailable, d.ID, err)
		}
		if tok == "" && d.Private {
			return "", fmt.Errorf("%w: no token for private repository %s", ErrCredentialUnavailable, d.ID)
		}
		return tok, nil
	})
}
