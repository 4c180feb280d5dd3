package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	identitydomain "pawsit/agent/internal/identity/domain"
	profiledomain "pawsit/agent/internal/profile/domain"
	telemetrydomain "pawsit/agent/internal/telemetry/domain"
)

// fakeIdentity implements IdentitySource. When block is non-nil, IDTokenResult
// waits on it (or ctx) before answering.
type fakeIdentity struct {
	mu        sync.Mutex
	claims    identitydomain.Claims
	err       error
	refreshes []bool
	listener  func(*identitydomain.Principal)
	unsubbed  bool
	block     chan struct{}
	entered   chan struct{}
}

func (f *fakeIdentity) OnAuthStateChanged(fn func(*identitydomain.Principal)) func() {
	f.mu.Lock()
	f.listener = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.unsubbed = true
		f.listener = nil
		f.mu.Unlock()
	}
}

func (f *fakeIdentity) IDTokenResult(ctx context.Context, force bool) (identitydomain.Claims, error) {
	f.mu.Lock()
	f.refreshes = append(f.refreshes, force)
	block, entered := f.block, f.entered
	claims, err := f.claims, f.err
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return identitydomain.Claims{}, ctx.Err()
		}
	}
	return claims, err
}

func (f *fakeIdentity) emit(p *identitydomain.Principal) {
	f.mu.Lock()
	fn := f.listener
	f.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

func (f *fakeIdentity) set(claims identitydomain.Claims, err error) {
	f.mu.Lock()
	f.claims, f.err = claims, err
	f.mu.Unlock()
}

type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]*profiledomain.Profile
	err      error
	reads    int
}

func (f *fakeProfiles) GetByUserID(ctx context.Context, userID string) (*profiledomain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	return f.profiles[userID], nil
}

type recordingNav struct {
	mu     sync.Mutex
	resets []string
	ch     chan string
}

func newRecordingNav() *recordingNav { return &recordingNav{ch: make(chan string, 16)} }

func (n *recordingNav) ResetTo(screen string) {
	n.mu.Lock()
	n.resets = append(n.resets, screen)
	n.mu.Unlock()
	n.ch <- screen
}

func (n *recordingNav) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.resets...)
}

func (n *recordingNav) next(t *testing.T) string {
	t.Helper()
	select {
	case s := <-n.ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a reset")
		return ""
	}
}

type errPolicy struct{ dest Destination }

func (p errPolicy) Decide(context.Context, Facts) (Destination, error) {
	if p.dest != "" {
		return p.dest, nil
	}
	return "", errors.New("policy unavailable")
}

type recordingEmitter struct {
	ch chan *telemetrydomain.Event
}

func (e *recordingEmitter) Emit(ctx context.Context, ev *telemetrydomain.Event) error {
	e.ch <- ev
	return nil
}

var alice = &identitydomain.Principal{UID: "user-1", Email: "alice@example.com"}

func profileWithRole(role profiledomain.Role) *fakeProfiles {
	return &fakeProfiles{profiles: map[string]*profiledomain.Profile{
		"user-1": {UserID: "user-1", Role: role},
	}}
}

func TestNewResolver_Initializing(t *testing.T) {
	nav := newRecordingNav()
	r := NewResolver(&fakeIdentity{}, &fakeProfiles{}, nav)
	st := r.Snapshot()
	if st.Phase != PhaseInitializing || st.Destination != "" {
		t.Errorf("initial state = %+v, want Initializing with no destination", st)
	}
	if len(nav.all()) != 0 {
		t.Error("no navigation should happen before the first event")
	}
}

func TestHandleEvent_SignedOut(t *testing.T) {
	id := &fakeIdentity{}
	profiles := &fakeProfiles{}
	nav := newRecordingNav()
	r := NewResolver(id, profiles, nav)

	if got := r.HandleEvent(context.Background(), nil); got != DestinationUnauthenticatedHome {
		t.Errorf("destination = %q, want %q", got, DestinationUnauthenticatedHome)
	}
	st := r.Snapshot()
	if st.Phase != PhaseUnauthenticated || st.UserID != "" || st.Elevated {
		t.Errorf("state = %+v", st)
	}
	if len(id.refreshes) != 0 || profiles.reads != 0 {
		t.Error("signed-out event must not refresh or read profiles")
	}
	if resets := nav.all(); len(resets) != 1 || resets[0] != "unauthenticated-home" {
		t.Errorf("resets = %v", resets)
	}
}

func TestHandleEvent_Destinations(t *testing.T) {
	testCases := []struct {
		name       string
		claims     identitydomain.Claims
		refreshErr error
		profiles   *fakeProfiles
		want       Destination
		wantReads  int
	}{
		{"elevated", identitydomain.Claims{Elevated: true}, nil, profileWithRole(profiledomain.RoleOwner), DestinationAdminDashboard, 0},
		{"elevated with corrupt role", identitydomain.Claims{Elevated: true}, nil, profileWithRole(profiledomain.ParseRole("0wner")), DestinationAdminDashboard, 0},
		{"elevated without profile", identitydomain.Claims{Elevated: true}, nil, &fakeProfiles{}, DestinationAdminDashboard, 0},
		{"owner", identitydomain.Claims{}, nil, profileWithRole(profiledomain.RoleOwner), DestinationOwnerDashboard, 1},
		{"sitter", identitydomain.Claims{}, nil, profileWithRole(profiledomain.RoleSitter), DestinationSitterDashboard, 1},
		{"unknown role", identitydomain.Claims{}, nil, profileWithRole(profiledomain.RoleUnknown), DestinationSitterDashboard, 1},
		{"no profile", identitydomain.Claims{}, nil, &fakeProfiles{}, DestinationLogin, 1},
		{"profile read error", identitydomain.Claims{}, nil, &fakeProfiles{err: errors.New("permission denied")}, DestinationLogin, 1},
		{"refresh error falls back to role", identitydomain.Claims{Elevated: true}, errors.New("network"), profileWithRole(profiledomain.RoleOwner), DestinationOwnerDashboard, 1},
		{"refresh error and no profile", identitydomain.Claims{}, errors.New("revoked"), &fakeProfiles{}, DestinationLogin, 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			id := &fakeIdentity{claims: tc.claims, err: tc.refreshErr}
			nav := newRecordingNav()
			r := NewResolver(id, tc.profiles, nav)

			got := r.HandleEvent(context.Background(), alice)
			if got != tc.want {
				t.Errorf("destination = %q, want %q", got, tc.want)
			}
			if len(id.refreshes) != 1 || !id.refreshes[0] {
				t.Errorf("refreshes = %v, want exactly one forced refresh", id.refreshes)
			}
			if tc.profiles.reads != tc.wantReads {
				t.Errorf("profile reads = %d, want %d", tc.profiles.reads, tc.wantReads)
			}
			if resets := nav.all(); len(resets) != 1 || resets[0] != string(tc.want) {
				t.Errorf("resets = %v, want [%s]", resets, tc.want)
			}
			st := r.Snapshot()
			if st.Phase != PhaseResolved || st.Destination != tc.want || st.UserID != "user-1" {
				t.Errorf("state = %+v", st)
			}
		})
	}
}

func TestHandleEvent_LastEventWins(t *testing.T) {
	id := &fakeIdentity{claims: identitydomain.Claims{Elevated: true}}
	nav := newRecordingNav()
	r := NewResolver(id, profileWithRole(profiledomain.RoleOwner), nav)
	ctx := context.Background()

	r.HandleEvent(ctx, alice)
	id.set(identitydomain.Claims{}, nil)
	r.HandleEvent(ctx, alice)
	r.HandleEvent(ctx, nil)

	want := []string{"admin-dashboard", "owner-dashboard", "unauthenticated-home"}
	got := nav.all()
	if len(got) != len(want) {
		t.Fatalf("resets = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("reset[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if st := r.Snapshot(); st.Destination != DestinationUnauthenticatedHome || st.Role != profiledomain.RoleUnknown {
		t.Errorf("final state = %+v, want cleared unauthenticated state", st)
	}
}

func TestHandleEvent_PolicyFallback(t *testing.T) {
	testCases := []struct {
		name   string
		policy DestinationPolicy
		want   Destination
	}{
		{"policy error", errPolicy{}, DestinationOwnerDashboard},
		{"invalid destination", errPolicy{dest: "settings"}, DestinationOwnerDashboard},
		{"custom decision", errPolicy{dest: DestinationLogin}, DestinationLogin},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			nav := newRecordingNav()
			r := NewResolver(&fakeIdentity{}, profileWithRole(profiledomain.RoleOwner), nav, WithPolicy(tc.policy))
			if got := r.HandleEvent(context.Background(), alice); got != tc.want {
				t.Errorf("destination = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestHandleEvent_PolicyCannotOverrideFixedDestinations(t *testing.T) {
	policy := errPolicy{dest: DestinationOwnerDashboard}
	nav := newRecordingNav()
	id := &fakeIdentity{claims: identitydomain.Claims{Elevated: true}}
	r := NewResolver(id, profileWithRole(profiledomain.RoleSitter), nav, WithPolicy(policy))

	if got := r.HandleEvent(context.Background(), alice); got != DestinationAdminDashboard {
		t.Errorf("elevated destination = %q, want %q", got, DestinationAdminDashboard)
	}

	r = NewResolver(id, profileWithRole(profiledomain.RoleSitter), nav, WithPolicy(errPolicy{dest: DestinationLogin}))
	if got := r.HandleEvent(context.Background(), nil); got != DestinationUnauthenticatedHome {
		t.Errorf("signed-out destination = %q, want %q", got, DestinationUnauthenticatedHome)
	}
}

func TestStart_ProcessesEventsInOrder(t *testing.T) {
	id := &fakeIdentity{}
	nav := newRecordingNav()
	r := NewResolver(id, profileWithRole(profiledomain.RoleSitter), nav)
	stop := r.Start(context.Background())
	defer stop()

	id.emit(nil)
	id.emit(alice)
	id.emit(nil)

	for _, want := range []string{"unauthenticated-home", "sitter-dashboard", "unauthenticated-home"} {
		if got := nav.next(t); got != want {
			t.Errorf("reset = %q, want %q", got, want)
		}
	}
}

func TestStart_StopDiscardsPendingResult(t *testing.T) {
	id := &fakeIdentity{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	profiles := profileWithRole(profiledomain.RoleOwner)
	nav := newRecordingNav()
	r := NewResolver(id, profiles, nav)
	stop := r.Start(context.Background())

	id.emit(alice)
	select {
	case <-id.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh never started")
	}
	stopped := make(chan struct{})
	go func() {
		stop()
		close(stopped)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for r.active.Load() {
		if time.Now().After(deadline) {
			t.Fatal("stop never deactivated the resolver")
		}
		time.Sleep(time.Millisecond)
	}
	close(id.block)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return after the pending refresh finished")
	}

	if len(nav.all()) != 0 {
		t.Errorf("resets after stop = %v, want none", nav.all())
	}
	if !id.unsubbed {
		t.Error("stop should unsubscribe from identity events")
	}
	if got := r.HandleEvent(context.Background(), nil); got != "" {
		t.Errorf("HandleEvent after stop = %q, want empty", got)
	}
	if len(nav.all()) != 0 {
		t.Error("a stopped resolver must not navigate")
	}
	stop()
}

func TestStart_Twice(t *testing.T) {
	r := NewResolver(&fakeIdentity{}, &fakeProfiles{}, newRecordingNav())
	stop := r.Start(context.Background())
	defer stop()
	second := r.Start(context.Background())
	second()
	if st := r.Snapshot(); st.Phase != PhaseInitializing {
		t.Errorf("second stop should be a no-op, state = %+v", st)
	}
}

func TestSubscribe_ObservesTransitions(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := NewResolver(&fakeIdentity{}, profileWithRole(profiledomain.RoleOwner), newRecordingNav(),
		WithClock(func() time.Time { return fixed }))

	var mu sync.Mutex
	var phases []Phase
	unsubscribe := r.Subscribe(func(st State) {
		mu.Lock()
		phases = append(phases, st.Phase)
		mu.Unlock()
		if !st.ChangedAt.Equal(fixed) {
			t.Errorf("ChangedAt = %v, want %v", st.ChangedAt, fixed)
		}
	})
	r.HandleEvent(context.Background(), alice)
	unsubscribe()
	r.HandleEvent(context.Background(), nil)

	want := []Phase{PhaseInitializing, PhaseResolvingRole, PhaseResolved}
	mu.Lock()
	defer mu.Unlock()
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("phase[%d] = %v, want %v", i, phases[i], want[i])
		}
	}
}

func TestHandleEvent_EmitsTelemetry(t *testing.T) {
	em := &recordingEmitter{ch: make(chan *telemetrydomain.Event, 2)}
	r := NewResolver(&fakeIdentity{claims: identitydomain.Claims{Elevated: true}}, &fakeProfiles{}, newRecordingNav(), WithEmitter(em))
	r.HandleEvent(context.Background(), alice)

	select {
	case ev := <-em.ch:
		if ev.EventType != telemetrydomain.EventSessionResolved || ev.UserID != "user-1" || ev.Destination != "admin-dashboard" {
			t.Errorf("event = %+v", ev)
		}
		if ev.Attributes["elevated"] != "true" {
			t.Errorf("elevated attribute = %q", ev.Attributes["elevated"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no telemetry event emitted")
	}
}

func TestDestination_Valid(t *testing.T) {
	for _, d := range []Destination{DestinationUnauthenticatedHome, DestinationOwnerDashboard, DestinationSitterDashboard, DestinationAdminDashboard, DestinationLogin} {
		if !d.Valid() {
			t.Errorf("%q should be valid", d)
		}
	}
	if Destination("reset-password").Valid() || Destination("").Valid() {
		t.Error("non-destinations should be invalid")
	}
}

func TestStaticPolicy(t *testing.T) {
	testCases := []struct {
		facts Facts
		want  Destination
	}{
		{Facts{}, DestinationUnauthenticatedHome},
		{Facts{Elevated: true}, DestinationUnauthenticatedHome},
		{Facts{Authenticated: true, Elevated: true, ProfileFound: true, Role: profiledomain.RoleSitter}, DestinationAdminDashboard},
		{Facts{Authenticated: true}, DestinationLogin},
		{Facts{Authenticated: true, ProfileFound: true, Role: profiledomain.RoleOwner}, DestinationOwnerDashboard},
		{Facts{Authenticated: true, ProfileFound: true, Role: profiledomain.RoleSitter}, DestinationSitterDashboard},
		{Facts{Authenticated: true, ProfileFound: true}, DestinationSitterDashboard},
	}
	for _, tc := range testCases {
		got, err := StaticPolicy{}.Decide(context.Background(), tc.facts)
		if err != nil || got != tc.want {
			t.Errorf("Decide(%+v) = %q, %v; want %q", tc.facts, got, err, tc.want)
		}
	}
}
