// Package oidc is the hosted identity backend: password and refresh-token grants
// against an OpenID Connect provider, with ID tokens verified through discovery keys.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"pawsit/agent/internal/identity/domain"
	"pawsit/agent/internal/identity/service"
)

// ProviderConfig holds configuration for the hosted provider.
type ProviderConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	Scopes       []string
	// AdminClaim names the ID token claim that carries the elevated flag.
	AdminClaim string
	HTTPClient *http.Client
}

// Provider signs accounts in against a hosted OIDC provider.
type Provider struct {
	config     *oauth2.Config
	verifier   *gooidc.IDTokenVerifier
	adminClaim string
	httpClient *http.Client
}

// NewProvider runs discovery against cfg.IssuerURL and returns a Provider.
func NewProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	if cfg.IssuerURL == "" {
		return nil, errors.New("issuer URL is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	issuer := strings.TrimSuffix(cfg.IssuerURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")

	op, err := gooidc.NewProvider(gooidc.ClientContext(ctx, httpClient), issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
		Endpoint:     op.Endpoint(),
	}
	return newProvider(oauthCfg, op.Verifier(&gooidc.Config{ClientID: cfg.ClientID}), cfg.AdminClaim, httpClient), nil
}

func newProvider(cfg *oauth2.Config, verifier *gooidc.IDTokenVerifier, adminClaim string, httpClient *http.Client) *Provider {
	if adminClaim == "" {
		adminClaim = "admin"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Provider{config: cfg, verifier: verifier, adminClaim: adminClaim, httpClient: httpClient}
}

// SignIn exchanges email and password for tokens (resource owner password grant).
func (p *Provider) SignIn(ctx context.Context, email, password string) (*domain.TokenSet, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, service.ErrInvalidCredentials
	}
	tok, err := p.config.PasswordCredentialsToken(p.clientContext(ctx), email, password)
	if err != nil {
		if isInvalidGrant(err) {
			return nil, service.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("password grant: %w", err)
	}
	return p.tokenSet(ctx, tok, "")
}

// Refresh exchanges a refresh token for a fresh ID token. The provider may or may
// not rotate the refresh token; the previous one is kept when it does not.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*domain.TokenSet, error) {
	if refreshToken == "" {
		return nil, service.ErrInvalidRefreshToken
	}
	src := p.config.TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		if isInvalidGrant(err) {
			return nil, service.ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("refresh grant: %w", err)
	}
	return p.tokenSet(ctx, tok, refreshToken)
}

// SignOut is local only: the hosted provider keeps no per-device session we can revoke.
func (p *Provider) SignOut(ctx context.Context, refreshToken string) error {
	return nil
}

// Verify checks the ID token signature, issuer, audience and expiry and returns its claims.
func (p *Provider) Verify(ctx context.Context, rawIDToken string) (domain.Claims, error) {
	idTok, err := p.verifier.Verify(p.clientContext(ctx), rawIDToken)
	if err != nil {
		return domain.Claims{}, fmt.Errorf("%w: %v", service.ErrInvalidIDToken, err)
	}
	var std struct {
		Email     string `json:"email"`
		SessionID string `json:"sid"`
	}
	if err := idTok.Claims(&std); err != nil {
		return domain.Claims{}, fmt.Errorf("%w: %v", service.ErrInvalidIDToken, err)
	}
	var all map[string]any
	if err := idTok.Claims(&all); err != nil {
		return domain.Claims{}, fmt.Errorf("%w: %v", service.ErrInvalidIDToken, err)
	}
	return domain.Claims{
		Subject:   idTok.Subject,
		Email:     std.Email,
		Elevated:  claimTrue(all[p.adminClaim]),
		SessionID: std.SessionID,
		IssuedAt:  idTok.IssuedAt,
		ExpiresAt: idTok.Expiry,
	}, nil
}

func (p *Provider) tokenSet(ctx context.Context, tok *oauth2.Token, previousRefresh string) (*domain.TokenSet, error) {
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return nil, errors.New("missing id_token in token response")
	}
	claims, err := p.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = previousRefresh
	}
	return &domain.TokenSet{
		UID:          claims.Subject,
		Email:        claims.Email,
		IDToken:      raw,
		RefreshToken: refresh,
		ExpiresAt:    claims.ExpiresAt,
	}, nil
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// claimTrue accepts the shapes providers use for a boolean custom claim.
func claimTrue(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return strings.EqualFold(x, "true")
	case float64:
		return x == 1
	}
	return false
}

func isInvalidGrant(err error) bool {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return re.ErrorCode == "invalid_grant" || (re.Response != nil && re.Response.StatusCode == http.StatusUnauthorized)
	}
	return false
}
