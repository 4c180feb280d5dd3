package deeplink

import (
	"context"
	"errors"
	"log/slog"

	"pawsit/agent/internal/telemetry"
	telemetrydomain "pawsit/agent/internal/telemetry/domain"
)

const eventSource = "deeplink"

// Navigator pushes a screen. navigation.Stack implements it.
type Navigator interface {
	NavigateTo(screen string, params map[string]string)
}

// URLSource supplies the launch URL and runtime URLs.
type URLSource interface {
	InitialURL(ctx context.Context) (string, error)
	Subscribe(fn func(raw string)) (unsubscribe func())
}

// Interpreter issues one navigation per recognized URL. Everything else is
// logged and dropped; it never fails.
type Interpreter struct {
	prefixes []string
	nav      Navigator
	log      *slog.Logger
	emitter  telemetry.EventEmitter
}

// NewInterpreter returns an Interpreter. log and emitter may be nil.
func NewInterpreter(prefixes []string, nav Navigator, log *slog.Logger, emitter telemetry.EventEmitter) *Interpreter {
	if log == nil {
		log = slog.Default()
	}
	return &Interpreter{prefixes: prefixes, nav: nav, log: log, emitter: emitter}
}

// Handle navigates for raw if it is a mapped link and reports whether it did.
func (i *Interpreter) Handle(ctx context.Context, raw string) bool {
	intent, err := Parse(i.prefixes, raw)
	if err != nil {
		if !errors.Is(err, ErrNoLink) {
			i.log.WarnContext(ctx, "deeplink: ignoring url", "url", redact(raw), "error", err)
			ev := telemetry.NewEvent(telemetrydomain.EventDeepLinkIgnored, eventSource)
			ev.Attributes = map[string]string{"reason": reason(err)}
			telemetry.EmitAsync(i.emitter, ctx, ev)
		}
		return false
	}
	i.nav.NavigateTo(intent.Screen, intent.Params)
	ev := telemetry.NewEvent(telemetrydomain.EventDeepLinkOpened, eventSource)
	ev.Destination = intent.Screen
	telemetry.EmitAsync(i.emitter, ctx, ev)
	return true
}

// Start checks the launch URL once, then handles every runtime URL from src
// until stop is called.
func (i *Interpreter) Start(ctx context.Context, src URLSource) (stop func()) {
	raw, err := src.InitialURL(ctx)
	if err != nil {
		i.log.WarnContext(ctx, "deeplink: launch url unavailable", "error", err)
	} else if raw != "" {
		i.Handle(ctx, raw)
	}
	return src.Subscribe(func(raw string) {
		i.Handle(ctx, raw)
	})
}

func reason(err error) string {
	switch {
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrUnmapped):
		return "unmapped"
	}
	return "unknown"
}

// redact drops the query so one-time codes never reach the logs.
func redact(raw string) string {
	for i := 0; i < len(raw); i++ {
		if raw[i] == '?' || raw[i] == '#' {
			return raw[:i]
		}
	}
	return raw
}
