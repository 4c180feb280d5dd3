// Package rbac guards privileged screens. Every check forces a token refresh so
// a grant or revocation since the last token is always seen.
package rbac

import (
	"context"
	"errors"
	"fmt"

	identitydomain "pawsit/agent/internal/identity/domain"
)

var (
	ErrUnauthenticated = errors.New("rbac: not signed in")
	ErrTokenRefresh    = errors.New("rbac: token refresh failed")
	ErrNotAdmin        = errors.New("rbac: elevated claim required")
)

// TokenSource is the auth client as seen by guarded screens. client.Client implements it.
type TokenSource interface {
	CurrentPrincipal() *identitydomain.Principal
	IDTokenResult(ctx context.Context, forceRefresh bool) (identitydomain.Claims, error)
}

// RequireAdmin ensures someone is signed in and a freshly refreshed token
// carries the elevated claim. It returns those claims on success.
func RequireAdmin(ctx context.Context, src TokenSource) (identitydomain.Claims, error) {
	if src.CurrentPrincipal() == nil {
		return identitydomain.Claims{}, ErrUnauthenticated
	}
	claims, err := src.IDTokenResult(ctx, true)
	if err != nil {
		return identitydomain.Claims{}, fmt.Errorf("%w: %w", ErrTokenRefresh, err)
	}
	if !claims.Elevated {
		return identitydomain.Claims{}, ErrNotAdmin
	}
	return claims, nil
}
