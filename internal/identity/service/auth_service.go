package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"pawsit/agent/internal/audit"
	"pawsit/agent/internal/identity/domain"
	"pawsit/agent/internal/security"
)

// Sentinel errors for the auth service; the shell handler maps them to gRPC codes.
var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrInvalidRefreshToken    = errors.New("invalid or expired refresh token")
	ErrRefreshTokenReuse      = errors.New("refresh token reuse detected; all sessions revoked")
	ErrInvalidIDToken         = errors.New("invalid or expired id token")
	ErrInvalidActionCode      = errors.New("invalid or expired action code")
	ErrAccountNotFound        = errors.New("account not found")
	ErrResetRateLimited       = errors.New("too many password reset requests")
	ErrPasswordResetDisabled  = errors.New("password reset is not configured")
)

// AccountRepo is the minimal account repository needed by the auth service.
type AccountRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	Create(ctx context.Context, a *domain.Account) error
	SetAdmin(ctx context.Context, id string, admin bool) error
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}

// SessionRepo is the minimal refresh session repository needed by the auth service.
type SessionRepo interface {
	GetByID(ctx context.Context, id string) (*domain.RefreshSession, error)
	Create(ctx context.Context, s *domain.RefreshSession) error
	Revoke(ctx context.Context, id string) error
	RevokeAllByAccount(ctx context.Context, accountID string) error
	UpdateRefreshToken(ctx context.Context, id, jti, refreshTokenHash string) error
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
}

// ActionCodeRepo is the minimal action code repository needed for password recovery.
type ActionCodeRepo interface {
	GetByHash(ctx context.Context, purpose domain.ActionPurpose, codeHash string) (*domain.ActionCode, error)
	Create(ctx context.Context, c *domain.ActionCode) error
	MarkUsed(ctx context.Context, id string, at time.Time) (bool, error)
}

// ResetLinkSender delivers a password-reset code to the account holder, typically
// as a link of the form <prefix>reset-password?oobCode=<code>.
type ResetLinkSender interface {
	SendPasswordReset(ctx context.Context, email, code string) error
}

// PasswordResetConfig enables password recovery on the service.
type PasswordResetConfig struct {
	Codes     ActionCodeRepo
	Sender    ResetLinkSender
	TTL       time.Duration
	PerMinute int
}

// AuthService is the local identity backend: password accounts, ID tokens carrying
// the admin claim, rotating refresh tokens and password recovery.
type AuthService struct {
	accounts   AccountRepo
	sessions   SessionRepo
	hasher     *security.Hasher
	tokens     *security.TokenProvider
	refreshTTL time.Duration

	codes    ActionCodeRepo
	sender   ResetLinkSender
	resetTTL time.Duration
	limiter  *rate.Limiter

	audit audit.AuditLogger
	log   *slog.Logger
	now   func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies.
// auditLogger and log may be nil.
func NewAuthService(
	accounts AccountRepo,
	sessions SessionRepo,
	hasher *security.Hasher,
	tokens *security.TokenProvider,
	refreshTTL time.Duration,
	auditLogger audit.AuditLogger,
	log *slog.Logger,
) *AuthService {
	if log == nil {
		log = slog.Default()
	}
	return &AuthService{
		accounts:   accounts,
		sessions:   sessions,
		hasher:     hasher,
		tokens:     tokens,
		refreshTTL: refreshTTL,
		audit:      auditLogger,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// EnablePasswordReset turns on SendPasswordReset and the code confirmation flow.
// Sends are limited to cfg.PerMinute across all callers (burst of the same size).
func (s *AuthService) EnablePasswordReset(cfg PasswordResetConfig) {
	s.codes = cfg.Codes
	s.sender = cfg.Sender
	s.resetTTL = cfg.TTL
	if s.resetTTL <= 0 {
		s.resetTTL = time.Hour
	}
	if cfg.PerMinute > 0 {
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.PerMinute)), cfg.PerMinute)
	}
}

// SignUp creates an active, non-admin account and signs it in.
func (s *AuthService) SignUp(ctx context.Context, email, password string) (*domain.TokenSet, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	existing, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	now := s.now()
	acct := &domain.Account{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hashed,
		Status:       domain.AccountStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := acct.Validate(); err != nil {
		return nil, err
	}
	if err := s.accounts.Create(ctx, acct); err != nil {
		if isDuplicate(err) {
			return nil, ErrEmailAlreadyRegistered
		}
		return nil, err
	}
	s.logAudit(ctx, acct.ID, audit.ActionSignUp, audit.ResourceAccount, "")
	return s.openSession(ctx, acct)
}

// SignIn authenticates with email and password and opens a refresh session.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*domain.TokenSet, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	acct, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if acct == nil || acct.Status != domain.AccountStatusActive || !s.hasher.Verify(acct.PasswordHash, password) {
		s.logAudit(ctx, "", audit.ActionSignInFailure, audit.ResourceSession, email)
		return nil, ErrInvalidCredentials
	}
	tokens, err := s.openSession(ctx, acct)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, acct.ID, audit.ActionSignIn, audit.ResourceSession, "")
	return tokens, nil
}

// Refresh validates the refresh token, rotates it, and returns a new ID token.
// The admin claim is re-read from the account so grants and revocations show up
// on the next forced refresh. Presenting an already-rotated token revokes every
// session of the account.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenSet, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	sess, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if sess == nil || sess.AccountID != claims.Subject || !sess.Active(now) {
		return nil, ErrInvalidRefreshToken
	}
	if sess.RefreshJTI != claims.ID {
		if err := s.sessions.RevokeAllByAccount(ctx, sess.AccountID); err != nil {
			s.log.WarnContext(ctx, "revoke sessions after refresh reuse failed", "user_id", sess.AccountID, "error", err)
		}
		s.logAudit(ctx, sess.AccountID, audit.ActionRefreshReuse, audit.ResourceSession, sess.ID)
		return nil, ErrRefreshTokenReuse
	}
	if sess.RefreshTokenHash != "" && !security.SecretHashEqual(refreshToken, sess.RefreshTokenHash) {
		return nil, ErrInvalidRefreshToken
	}
	acct, err := s.accounts.GetByID(ctx, sess.AccountID)
	if err != nil {
		return nil, err
	}
	if acct == nil || acct.Status != domain.AccountStatusActive {
		_ = s.sessions.Revoke(ctx, sess.ID)
		return nil, ErrInvalidRefreshToken
	}
	if err := s.sessions.UpdateLastSeen(ctx, sess.ID, now); err != nil {
		s.log.WarnContext(ctx, "update session last seen failed", "session_id", sess.ID, "error", err)
	}
	newRefresh, err := s.tokens.IssueRefresh(sess.ID, acct.ID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.UpdateRefreshToken(ctx, sess.ID, newRefresh.JTI, security.HashSecret(newRefresh.Token)); err != nil {
		return nil, err
	}
	id, err := s.tokens.IssueID(sess.ID, acct.ID, acct.Email, acct.Admin)
	if err != nil {
		return nil, err
	}
	return &domain.TokenSet{
		UID:          acct.ID,
		Email:        acct.Email,
		IDToken:      id.Token,
		RefreshToken: newRefresh.Token,
		ExpiresAt:    id.ExpiresAt,
	}, nil
}

// SignOut revokes the session behind the refresh token. Invalid tokens are ignored.
func (s *AuthService) SignOut(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil
	}
	if err := s.sessions.Revoke(ctx, claims.SessionID); err != nil {
		return err
	}
	s.logAudit(ctx, claims.Subject, audit.ActionSignOut, audit.ResourceSession, claims.SessionID)
	return nil
}

// Verify validates an ID token issued by this service and returns its claims.
func (s *AuthService) Verify(ctx context.Context, idToken string) (domain.Claims, error) {
	c, err := s.tokens.ValidateID(idToken)
	if err != nil {
		return domain.Claims{}, ErrInvalidIDToken
	}
	out := domain.Claims{
		Subject:   c.Subject,
		Email:     c.Email,
		Elevated:  c.Admin,
		SessionID: c.SessionID,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out, nil
}

// SetElevated grants or revokes the admin claim. It takes effect on the account's
// next token refresh.
func (s *AuthService) SetElevated(ctx context.Context, actorID, accountID string, admin bool) error {
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if acct == nil {
		return ErrAccountNotFound
	}
	if err := s.accounts.SetAdmin(ctx, accountID, admin); err != nil {
		return err
	}
	action := audit.ActionAdminRevoked
	if admin {
		action = audit.ActionAdminGranted
	}
	s.logAudit(ctx, actorID, action, audit.ResourceAccount, accountID)
	return nil
}

// SendPasswordReset issues a one-time reset code and hands it to the ResetLinkSender.
// Unknown emails succeed silently so the call cannot be used to probe for accounts.
func (s *AuthService) SendPasswordReset(ctx context.Context, email string) error {
	if s.codes == nil || s.sender == nil {
		return ErrPasswordResetDisabled
	}
	if s.limiter != nil && !s.limiter.Allow() {
		return ErrResetRateLimited
	}
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	acct, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if acct == nil || acct.Status != domain.AccountStatusActive {
		s.log.InfoContext(ctx, "password reset requested for unknown account")
		return nil
	}
	code, err := security.NewOneTimeCode()
	if err != nil {
		return err
	}
	now := s.now()
	ac := &domain.ActionCode{
		ID:        uuid.New().String(),
		AccountID: acct.ID,
		Purpose:   domain.ActionPurposePasswordReset,
		CodeHash:  security.HashSecret(code),
		ExpiresAt: now.Add(s.resetTTL),
		CreatedAt: now,
	}
	if err := s.codes.Create(ctx, ac); err != nil {
		return err
	}
	if err := s.sender.SendPasswordReset(ctx, acct.Email, code); err != nil {
		return fmt.Errorf("send password reset: %w", err)
	}
	s.logAudit(ctx, acct.ID, audit.ActionPasswordResetRequested, audit.ResourceAccount, "")
	return nil
}

// VerifyPasswordResetCode returns the email the code was issued for without consuming it.
func (s *AuthService) VerifyPasswordResetCode(ctx context.Context, code string) (string, error) {
	_, acct, err := s.lookupResetCode(ctx, code)
	if err != nil {
		return "", err
	}
	return acct.Email, nil
}

// ConfirmPasswordReset consumes the code, sets the new password and revokes every
// session of the account.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, code, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	ac, acct, err := s.lookupResetCode(ctx, code)
	if err != nil {
		return err
	}
	ok, err := s.codes.MarkUsed(ctx, ac.ID, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidActionCode
	}
	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePasswordHash(ctx, acct.ID, hashed); err != nil {
		return err
	}
	if err := s.sessions.RevokeAllByAccount(ctx, acct.ID); err != nil {
		s.log.WarnContext(ctx, "revoke sessions after password reset failed", "user_id", acct.ID, "error", err)
	}
	s.logAudit(ctx, acct.ID, audit.ActionPasswordReset, audit.ResourceAccount, "")
	return nil
}

func (s *AuthService) lookupResetCode(ctx context.Context, code string) (*domain.ActionCode, *domain.Account, error) {
	if s.codes == nil {
		return nil, nil, ErrPasswordResetDisabled
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil, ErrInvalidActionCode
	}
	ac, err := s.codes.GetByHash(ctx, domain.ActionPurposePasswordReset, security.HashSecret(code))
	if err != nil {
		return nil, nil, err
	}
	if ac == nil || !ac.Usable(s.now()) {
		return nil, nil, ErrInvalidActionCode
	}
	acct, err := s.accounts.GetByID(ctx, ac.AccountID)
	if err != nil {
		return nil, nil, err
	}
	if acct == nil || acct.Status != domain.AccountStatusActive {
		return nil, nil, ErrInvalidActionCode
	}
	return ac, acct, nil
}

func (s *AuthService) openSession(ctx context.Context, acct *domain.Account) (*domain.TokenSet, error) {
	sessionID := uuid.New().String()
	refresh, err := s.tokens.IssueRefresh(sessionID, acct.ID)
	if err != nil {
		return nil, err
	}
	id, err := s.tokens.IssueID(sessionID, acct.ID, acct.Email, acct.Admin)
	if err != nil {
		return nil, err
	}
	now := s.now()
	sess := &domain.RefreshSession{
		ID:               sessionID,
		AccountID:        acct.ID,
		RefreshJTI:       refresh.JTI,
		RefreshTokenHash: security.HashSecret(refresh.Token),
		ExpiresAt:        now.Add(s.refreshTTL),
		CreatedAt:        now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	return &domain.TokenSet{
		UID:          acct.ID,
		Email:        acct.Email,
		IDToken:      id.Token,
		RefreshToken: refresh.Token,
		ExpiresAt:    id.ExpiresAt,
	}, nil
}

func (s *AuthService) logAudit(ctx context.Context, userID, action, resource, metadata string) {
	if s.audit != nil {
		s.audit.LogEvent(ctx, userID, action, resource, metadata)
	}
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return invalid("email is required")
	}
	if !emailPattern.MatchString(email) {
		return invalid("invalid email format")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 12 {
		return invalid("password must be at least 12 characters")
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		default:
			hasSymbol = true
		}
	}
	if !hasUpper {
		return invalid("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return invalid("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return invalid("password must contain at least one number")
	}
	if !hasSymbol {
		return invalid("password must contain at least one symbol")
	}
	return nil
}
