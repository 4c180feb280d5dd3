package deeplink

import (
	"context"
	"log/slog"
	"time"
)

// LinkOutbox keeps delivered links for development retrieval. devlinks.MemoryStore implements it.
type LinkOutbox interface {
	Put(ctx context.Context, email, link string, expiresAt time.Time)
}

// ResetLinkSender builds reset links on the primary prefix and hands them to
// the outbox. It implements service.ResetLinkSender.
type ResetLinkSender struct {
	prefix string
	ttl    time.Duration
	outbox LinkOutbox
	log    *slog.Logger
}

// NewResetLinkSender returns a sender for links under prefix. outbox may be nil,
// in which case links are only acknowledged in the log without the code.
func NewResetLinkSender(prefix string, ttl time.Duration, outbox LinkOutbox, log *slog.Logger) *ResetLinkSender {
	if log == nil {
		log = slog.Default()
	}
	return &ResetLinkSender{prefix: prefix, ttl: ttl, outbox: outbox, log: log}
}

// SendPasswordReset delivers the link for code to email.
func (s *ResetLinkSender) SendPasswordReset(ctx context.Context, email, code string) error {
	link := ResetPasswordURL(s.prefix, code)
	if s.outbox != nil {
		s.outbox.Put(ctx, email, link, time.Now().UTC().Add(s.ttl))
	}
	s.log.InfoContext(ctx, "deeplink: password reset link issued", "email", email, "url", redact(link))
	return nil
}
