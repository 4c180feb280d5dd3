package rbac

import (
	"context"
	"log/slog"
	"sync"

	"pawsit/agent/internal/telemetry"
	telemetrydomain "pawsit/agent/internal/telemetry/domain"
)

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithGateLogger sets the logger. Defaults to slog.Default().
func WithGateLogger(l *slog.Logger) GateOption {
	return func(g *Gate) {
		if l != nil {
			g.log = l
		}
	}
}

// WithGateEmitter sets the telemetry emitter for denials.
func WithGateEmitter(e telemetry.EventEmitter) GateOption {
	return func(g *Gate) { g.emitter = e }
}

// WithScreen names the guarded screen in logs and telemetry.
func WithScreen(name string) GateOption {
	return func(g *Gate) { g.screen = name }
}

// Gate is the access check for one mounted instance of a privileged screen.
// It never shares its verdict: a new screen instance needs a new Gate.
type Gate struct {
	src          TokenSource
	redirectHome func()
	log          *slog.Logger
	emitter      telemetry.EventEmitter
	screen       string

	mu       sync.Mutex
	mounted  bool
	active   bool
	checking bool
	isAdmin  bool
	done     chan struct{}
}

// NewGate returns an unmounted gate. redirectHome is called at most once, when
// the check denies access while the gate is still mounted. It must not call
// back into the Gate.
func NewGate(src TokenSource, redirectHome func(), opts ...GateOption) *Gate {
	g := &Gate{
		src:          src,
		redirectHome: redirectHome,
		log:          slog.Default(),
		screen:       "admin-dashboard",
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Mount starts the check in the background and sets Checking. Only the first
// Mount has an effect.
func (g *Gate) Mount(ctx context.Context) {
	g.mu.Lock()
	if g.mounted {
		g.mu.Unlock()
		return
	}
	g.mounted = true
	g.active = true
	g.checking = true
	g.mu.Unlock()

	// The refresh runs to completion even after Unmount; only its result is dropped.
	go g.check(context.WithoutCancel(ctx))
}

func (g *Gate) check(ctx context.Context) {
	defer close(g.done)
	_, err := RequireAdmin(ctx, g.src)

	g.mu.Lock()
	if !g.active {
		g.mu.Unlock()
		g.log.DebugContext(ctx, "rbac: screen unmounted before check finished", "screen", g.screen)
		return
	}
	g.checking = false
	g.isAdmin = err == nil
	if err == nil {
		g.mu.Unlock()
		return
	}
	// Redirect under mu so an Unmount is ordered strictly before or after it.
	if g.redirectHome != nil {
		g.redirectHome()
	}
	g.mu.Unlock()

	g.log.InfoContext(ctx, "rbac: access denied, redirected home", "screen", g.screen, "error", err)
	ev := telemetry.NewEvent(telemetrydomain.EventGuardDenied, "rbac")
	ev.Destination = g.screen
	if p := g.src.CurrentPrincipal(); p != nil {
		ev.UserID = p.UID
	}
	telemetry.EmitAsync(g.emitter, ctx, ev)
}

// Unmount marks the gate inactive. A check still in flight is discarded and
// never redirects; a redirect already under way finishes before Unmount returns.
func (g *Gate) Unmount() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = false
}

// Checking reports whether the refresh is still in flight.
func (g *Gate) Checking() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.checking
}

// IsAdmin is the verdict. It is only meaningful once Checking is false.
func (g *Gate) IsAdmin() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isAdmin
}

// Done is closed when the check has finished or been discarded.
func (g *Gate) Done() <-chan struct{} {
	return g.done
}

// Wait blocks until the check finishes and returns the verdict. It returns
// ctx.Err() if ctx ends first. Wait on a gate that was never mounted blocks until ctx ends.
func (g *Gate) Wait(ctx context.Context) (bool, error) {
	select {
	case <-g.done:
		return g.IsAdmin(), nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
