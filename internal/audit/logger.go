package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pawsit/agent/internal/audit/domain"
	auditrepo "pawsit/agent/internal/audit/repository"
)

// Identity actions recorded by the local identity backend and the admin console.
const (
	ActionSignUp                 = "sign_up"
	ActionSignIn                 = "sign_in"
	ActionSignInFailure          = "sign_in_failure"
	ActionSignOut                = "sign_out"
	ActionRefreshReuse           = "refresh_reuse"
	ActionPasswordResetRequested = "password_reset_requested"
	ActionPasswordReset          = "password_reset"
	ActionAdminGranted           = "admin_granted"
	ActionAdminRevoked           = "admin_revoked"

	ResourceAccount = "account"
	ResourceSession = "session"
)

// IPExtractor returns the client IP from the request context (e.g. gRPC peer).
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	log         *slog.Logger
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, log *slog.Logger) *Logger {
	if log == nil {
		log = slog.Default()
	}
	return &Logger{repo: repo, ipExtractor: ipExtractor, log: log}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, userID, action, resource, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.log.WarnContext(ctx, "audit: failed to log event", "action", action, "resource", resource, "error", err)
	}
}
