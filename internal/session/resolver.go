package session

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	identitydomain "pawsit/agent/internal/identity/domain"
	profiledomain "pawsit/agent/internal/profile/domain"
	"pawsit/agent/internal/telemetry"
	telemetrydomain "pawsit/agent/internal/telemetry/domain"
)

const eventSource = "session"

// IdentitySource is the auth client as seen by the resolver. client.Client implements it.
type IdentitySource interface {
	OnAuthStateChanged(fn func(*identitydomain.Principal)) (unsubscribe func())
	IDTokenResult(ctx context.Context, forceRefresh bool) (identitydomain.Claims, error)
}

// ProfileReader reads a profile by user id, returning (nil, nil) when none exists.
type ProfileReader interface {
	GetByUserID(ctx context.Context, userID string) (*profiledomain.Profile, error)
}

// Resetter replaces the whole navigation stack with one screen.
type Resetter interface {
	ResetTo(screen string)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPolicy replaces StaticPolicy for authenticated, non-elevated sessions. A
// policy that errors or returns an invalid destination falls back to
// StaticPolicy for that event.
func WithPolicy(p DestinationPolicy) Option {
	return func(r *Resolver) {
		if p != nil {
			r.policy = p
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// WithEmitter sets the telemetry emitter. Events are sent asynchronously.
func WithEmitter(e telemetry.EventEmitter) Option {
	return func(r *Resolver) { r.emitter = e }
}

// WithClock overrides time.Now for State.ChangedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// Resolver owns the session state machine. Events are handled one at a time
// in arrival order; each ends in exactly one ResetTo while the resolver is active.
type Resolver struct {
	identity IdentitySource
	profiles ProfileReader
	nav      Resetter
	policy   DestinationPolicy
	log      *slog.Logger
	emitter  telemetry.EventEmitter
	now      func() time.Time

	state  *store
	active atomic.Bool

	startOnce sync.Once
}

// NewResolver returns an active resolver in PhaseInitializing. Nothing is
// navigated until the first identity event.
func NewResolver(identity IdentitySource, profiles ProfileReader, nav Resetter, opts ...Option) *Resolver {
	r := &Resolver{
		identity: identity,
		profiles: profiles,
		nav:      nav,
		policy:   StaticPolicy{},
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.state = newStore(State{Phase: PhaseInitializing, ChangedAt: r.now()})
	r.active.Store(true)
	return r
}

// Start subscribes to identity events and processes them serially on one
// goroutine. The returned stop unsubscribes, marks the resolver inactive so
// pending results are discarded, and waits for the loop to exit. Start may be
// called once; later calls return a no-op stop. stop waits for an event that
// is mid-resolution to finish.
func (r *Resolver) Start(ctx context.Context) (stop func()) {
	stop = func() {}
	r.startOnce.Do(func() {
		loopCtx, cancel := context.WithCancel(ctx)
		// In-flight resolutions are not cancelled by stop; their results are
		// dropped by the active check instead.
		workCtx := context.WithoutCancel(ctx)
		q := newEventQueue()
		unsubscribe := r.identity.OnAuthStateChanged(q.push)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				p, ok := q.pop(loopCtx)
				if !ok {
					return
				}
				r.HandleEvent(workCtx, p)
			}
		}()
		var once sync.Once
		stop = func() {
			once.Do(func() {
				unsubscribe()
				r.active.Store(false)
				cancel()
				<-done
			})
		}
	})
	return stop
}

// HandleEvent runs the full transition for one identity event and returns the
// destination it reset to. It returns "" without navigating if the resolver was
// stopped before the event finished.
func (r *Resolver) HandleEvent(ctx context.Context, principal *identitydomain.Principal) Destination {
	if !r.active.Load() {
		return ""
	}
	if principal == nil {
		return r.signedOut(ctx)
	}

	r.state.set(State{Phase: PhaseResolvingRole, UserID: principal.UID, ChangedAt: r.now()})
	facts := r.gatherFacts(ctx, principal.UID)
	dest := r.decide(ctx, facts)

	if !r.active.Load() {
		r.log.DebugContext(ctx, "session: resolver stopped, dropping result", "user_id", principal.UID)
		return ""
	}
	r.nav.ResetTo(string(dest))
	r.state.set(State{
		Phase:       PhaseResolved,
		Destination: dest,
		UserID:      principal.UID,
		Elevated:    facts.Elevated,
		Role:        facts.Role,
		ChangedAt:   r.now(),
	})

	ev := telemetry.NewEvent(telemetrydomain.EventSessionResolved, eventSource)
	ev.UserID = principal.UID
	ev.Destination = string(dest)
	ev.Attributes = map[string]string{
		"elevated":      strconv.FormatBool(facts.Elevated),
		"profile_found": strconv.FormatBool(facts.ProfileFound),
		"role":          string(facts.Role),
	}
	telemetry.EmitAsync(r.emitter, ctx, ev)
	return dest
}

func (r *Resolver) signedOut(ctx context.Context) Destination {
	dest := r.decide(ctx, Facts{})
	if !r.active.Load() {
		return ""
	}
	r.nav.ResetTo(string(dest))
	r.state.set(State{Phase: PhaseUnauthenticated, Destination: dest, ChangedAt: r.now()})

	ev := telemetry.NewEvent(telemetrydomain.EventSessionSignedOut, eventSource)
	ev.Destination = string(dest)
	telemetry.EmitAsync(r.emitter, ctx, ev)
	return dest
}

// gatherFacts performs the forced refresh and, unless elevated, the single
// profile read. Failures become facts, never errors.
func (r *Resolver) gatherFacts(ctx context.Context, userID string) Facts {
	facts := Facts{Authenticated: true}

	claims, err := r.identity.IDTokenResult(ctx, true)
	if err != nil {
		r.log.WarnContext(ctx, "session: token refresh failed, treating as not elevated", "user_id", userID, "error", err)
	} else {
		facts.Elevated = claims.Elevated
	}
	if facts.Elevated {
		return facts
	}

	p, err := r.profiles.GetByUserID(ctx, userID)
	if err != nil {
		r.log.WarnContext(ctx, "session: profile read failed", "user_id", userID, "error", err)
		return facts
	}
	if p == nil {
		r.log.WarnContext(ctx, "session: no profile for user", "user_id", userID)
		return facts
	}
	facts.ProfileFound = true
	facts.Role = p.Role
	return facts
}

// decide consults the policy only for non-elevated sessions: signed out always
// lands on unauthenticated-home and elevated always on admin-dashboard.
func (r *Resolver) decide(ctx context.Context, facts Facts) Destination {
	if !facts.Authenticated || facts.Elevated {
		return decideStatic(facts)
	}
	dest, err := r.policy.Decide(ctx, facts)
	if err == nil && dest.Valid() {
		return dest
	}
	r.log.WarnContext(ctx, "session: routing policy failed, using static table", "destination", string(dest), "error", err)
	return decideStatic(facts)
}

// Snapshot returns the current state.
func (r *Resolver) Snapshot() State {
	return r.state.snapshot()
}

// Subscribe calls fn with the current state and then with every change, in
// order. fn must not call Subscribe. The returned func unsubscribes.
func (r *Resolver) Subscribe(fn func(State)) (unsubscribe func()) {
	return r.state.subscribe(fn)
}

// eventQueue is an unbounded FIFO so the identity source never blocks on a
// slow resolution.
type eventQueue struct {
	mu     sync.Mutex
	items  []*identitydomain.Principal
	notify chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{notify: make(chan struct{}, 1)}
}

func (q *eventQueue) push(p *identitydomain.Principal) {
	q.mu.Lock()
	q.items = append(q.items, p)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *eventQueue) pop(ctx context.Context) (*identitydomain.Principal, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			p := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return p, true
		}
		q.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, false
		case <-q.notify:
		}
	}
}
