// Package admin is the admin console screen model. Opening it mounts a fresh
// rbac.Gate; every mutation re-checks the elevated claim.
package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	identitydomain "pawsit/agent/internal/identity/domain"
	"pawsit/agent/internal/platform/rbac"
	profiledomain "pawsit/agent/internal/profile/domain"
	"pawsit/agent/internal/telemetry"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

var (
	// ErrAccessDenied is returned by Open when the gate denies access.
	ErrAccessDenied = errors.New("admin console: access denied")
	// ErrInvalidRole is returned by SetRole for anything but owner or sitter.
	ErrInvalidRole = errors.New("admin console: role must be owner or sitter")
	// ErrNoProfile is returned by SetRole when the account has no profile.
	ErrNoProfile = errors.New("admin console: account has no profile")
)

// AccountLister lists local accounts.
type AccountLister interface {
	List(ctx context.Context, limit, offset int32) ([]*identitydomain.Account, error)
}

// ProfileStore reads profiles, (nil, nil) when absent, and changes roles.
// profile/repository.PostgresRepository implements it.
type ProfileStore interface {
	GetByUserID(ctx context.Context, userID string) (*profiledomain.Profile, error)
	UpdateRole(ctx context.Context, userID string, role profiledomain.Role) error
}

// ElevationSetter grants or revokes the admin claim.
type ElevationSetter interface {
	SetElevated(ctx context.Context, actorID, accountID string, admin bool) error
}

// Entry is one row of the console's account list.
type Entry struct {
	AccountID   string
	Email       string
	DisplayName string
	Role        profiledomain.Role
	HasProfile  bool
	Admin       bool
	Disabled    bool
}

// Console opens admin views.
type Console struct {
	src          rbac.TokenSource
	accounts     AccountLister
	profiles     ProfileStore
	elevation    ElevationSetter
	redirectHome func()
	log          *slog.Logger
	emitter      telemetry.EventEmitter
}

// NewConsole returns a Console. redirectHome runs when an open is denied.
func NewConsole(src rbac.TokenSource, accounts AccountLister, profiles ProfileStore, elevation ElevationSetter, redirectHome func(), log *slog.Logger, emitter telemetry.EventEmitter) *Console {
	if log == nil {
		log = slog.Default()
	}
	return &Console{
		src:          src,
		accounts:     accounts,
		profiles:     profiles,
		elevation:    elevation,
		redirectHome: redirectHome,
		log:          log,
		emitter:      emitter,
	}
}

// View is one open instance of the console.
type View struct {
	c    *Console
	gate *rbac.Gate
}

// Open mounts a new gate and waits for its verdict. On denial the gate has
// already redirected home and ErrAccessDenied is returned.
func (c *Console) Open(ctx context.Context) (*View, error) {
	gate := rbac.NewGate(c.src, c.redirectHome,
		rbac.WithGateLogger(c.log),
		rbac.WithGateEmitter(c.emitter),
		rbac.WithScreen("admin-dashboard"))
	gate.Mount(ctx)
	ok, err := gate.Wait(ctx)
	if err != nil {
		gate.Unmount()
		return nil, err
	}
	if !ok {
		return nil, ErrAccessDenied
	}
	return &View{c: c, gate: gate}, nil
}

// Close unmounts the view's gate.
func (v *View) Close() {
	v.gate.Unmount()
}

// Accounts lists accounts joined with their profiles. Profile read failures
// leave the row without a role rather than failing the page.
func (v *View) Accounts(ctx context.Context, limit, offset int32) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	accts, err := v.c.accounts.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	out := make([]Entry, 0, len(accts))
	for _, a := range accts {
		e := Entry{
			AccountID: a.ID,
			Email:     a.Email,
			Admin:     a.Admin,
			Disabled:  a.Status == identitydomain.AccountStatusDisabled,
		}
		p, err := v.c.profiles.GetByUserID(ctx, a.ID)
		if err != nil {
			v.c.log.WarnContext(ctx, "admin: profile read failed", "user_id", a.ID, "error", err)
		} else if p != nil {
			e.HasProfile = true
			e.Role = p.Role
			e.DisplayName = p.DisplayName
		}
		out = append(out, e)
	}
	return out, nil
}

// SetAdmin grants or revokes the admin claim on accountID after re-checking
// that the caller is still elevated.
func (v *View) SetAdmin(ctx context.Context, accountID string, admin bool) error {
	claims, err := rbac.RequireAdmin(ctx, v.c.src)
	if err != nil {
		return err
	}
	return v.c.elevation.SetElevated(ctx, claims.Subject, accountID, admin)
}

// SetRole moves accountID between owner and sitter. Like SetAdmin it re-checks
// the caller first; the account's next sign-in resolves to the new home.
func (v *View) SetRole(ctx context.Context, accountID string, role profiledomain.Role) error {
	if !role.Known() {
		return ErrInvalidRole
	}
	claims, err := rbac.RequireAdmin(ctx, v.c.src)
	if err != nil {
		return err
	}
	err = v.c.profiles.UpdateRole(ctx, accountID, role)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoProfile
	}
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	v.c.log.InfoContext(ctx, "admin: role changed", "actor_id", claims.Subject, "user_id", accountID, "role", string(role))
	return nil
}
