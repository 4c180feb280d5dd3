// Package client is the process-wide auth client the session agent talks to:
// it holds the current sign-in, publishes auth-state transitions in order and
// hands out ID token claims, refreshing them on demand.
package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"pawsit/agent/internal/identity/domain"
)

// ErrNotSignedIn is returned by IDTokenResult when no principal is signed in.
var ErrNotSignedIn = errors.New("not signed in")

// Backend issues and refreshes token sets. service.AuthService and oidc.Provider implement it.
type Backend interface {
	SignIn(ctx context.Context, email, password string) (*domain.TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenSet, error)
	SignOut(ctx context.Context, refreshToken string) error
}

// Verifier turns a raw ID token into validated claims.
type Verifier interface {
	Verify(ctx context.Context, idToken string) (domain.Claims, error)
}

// Client holds at most one signed-in principal.
type Client struct {
	backend  Backend
	verifier Verifier
	log      *slog.Logger
	now      func() time.Time

	// mu guards the session fields; refreshMu serializes backend refreshes so a
	// rotated refresh token is never presented twice.
	mu         sync.Mutex
	refreshMu  sync.Mutex
	principal  *domain.Principal
	tokens     *domain.TokenSet
	claims     *domain.Claims
	generation uint64

	listeners *broadcaster
}

// New returns a signed-out Client.
func New(backend Backend, verifier Verifier, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		backend:   backend,
		verifier:  verifier,
		log:       log,
		now:       time.Now,
		listeners: newBroadcaster(),
	}
}

// CurrentPrincipal returns the signed-in principal, or nil.
func (c *Client) CurrentPrincipal() *domain.Principal {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.principal == nil {
		return nil
	}
	p := *c.principal
	return &p
}

// OnAuthStateChanged registers fn for auth-state transitions. fn is called once
// with the current state, then after every sign-in and sign-out, strictly in
// order and never concurrently with itself. The returned func unsubscribes.
func (c *Client) OnAuthStateChanged(fn func(*domain.Principal)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listeners.add(fn, c.copyPrincipal())
}

// SignIn authenticates through the backend and publishes the new principal.
func (c *Client) SignIn(ctx context.Context, email, password string) (*domain.Principal, error) {
	ts, err := c.backend.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return c.Adopt(ctx, ts)
}

// Adopt installs a token set obtained elsewhere (e.g. from sign-up) as the
// current session and publishes the principal.
func (c *Client) Adopt(ctx context.Context, ts *domain.TokenSet) (*domain.Principal, error) {
	claims, err := c.verifier.Verify(ctx, ts.IDToken)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.tokens = ts
	c.claims = &claims
	c.principal = &domain.Principal{UID: claims.Subject, Email: claims.Email}
	c.listeners.publish(c.copyPrincipal())
	return c.copyPrincipal(), nil
}

// SignOut clears the session and publishes the signed-out state. Backend
// revocation failures are logged; the local session is cleared regardless.
func (c *Client) SignOut(ctx context.Context) {
	c.mu.Lock()
	ts := c.tokens
	wasSignedIn := c.principal != nil
	c.generation++
	c.tokens, c.claims, c.principal = nil, nil, nil
	if wasSignedIn {
		c.listeners.publish(nil)
	}
	c.mu.Unlock()

	if ts != nil && ts.RefreshToken != "" {
		if err := c.backend.SignOut(ctx, ts.RefreshToken); err != nil {
			c.log.WarnContext(ctx, "sign out: backend revoke failed", "user_id", ts.UID, "error", err)
		}
	}
}

// IDTokenResult returns the current claims. With forceRefresh, or when the cached
// token has expired, it exchanges the refresh token first so the claims reflect
// the latest grants. A refresh that fails leaves the session in place.
func (c *Client) IDTokenResult(ctx context.Context, forceRefresh bool) (domain.Claims, error) {
	c.mu.Lock()
	if c.principal == nil {
		c.mu.Unlock()
		return domain.Claims{}, ErrNotSignedIn
	}
	if !forceRefresh && c.claims != nil && !c.claims.Expired(c.now()) {
		claims := *c.claims
		c.mu.Unlock()
		return claims, nil
	}
	c.mu.Unlock()

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	c.mu.Lock()
	if c.principal == nil {
		c.mu.Unlock()
		return domain.Claims{}, ErrNotSignedIn
	}
	gen := c.generation
	refreshToken := c.tokens.RefreshToken
	c.mu.Unlock()

	ts, err := c.backend.Refresh(ctx, refreshToken)
	if err != nil {
		return domain.Claims{}, err
	}
	claims, err := c.verifier.Verify(ctx, ts.IDToken)
	if err != nil {
		return domain.Claims{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// A sign-in or sign-out while the refresh was in flight wins.
	if c.generation != gen {
		if c.principal == nil {
			return domain.Claims{}, ErrNotSignedIn
		}
		return *c.claims, nil
	}
	c.tokens = ts
	c.claims = &claims
	return claims, nil
}

func (c *Client) copyPrincipal() *domain.Principal {
	if c.principal == nil {
		return nil
	}
	p := *c.principal
	return &p
}
