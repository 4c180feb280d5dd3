package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"pawsit/agent/internal/identity/domain"
)

// fakeBackend issues opaque tokens of the form "<uid>|<elevated>|<n>".
type fakeBackend struct {
	mu         sync.Mutex
	elevated   bool
	refreshErr error
	refreshes  int
	signOuts   []string
}

func (b *fakeBackend) token(uid string) *domain.TokenSet {
	flag := "0"
	if b.elevated {
		flag = "1"
	}
	return &domain.TokenSet{UID: uid, Email: uid + "@example.com", IDToken: uid + "|" + flag, RefreshToken: "rt-" + uid, ExpiresAt: time.Now().Add(time.Hour)}
}

func (b *fakeBackend) SignIn(ctx context.Context, email, password string) (*domain.TokenSet, error) {
	if password != "ok" {
		return nil, errors.New("invalid credentials")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token(strings.TrimSuffix(email, "@example.com")), nil
}

func (b *fakeBackend) Refresh(ctx context.Context, refreshToken string) (*domain.TokenSet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshes++
	if b.refreshErr != nil {
		return nil, b.refreshErr
	}
	return b.token(strings.TrimPrefix(refreshToken, "rt-")), nil
}

func (b *fakeBackend) SignOut(ctx context.Context, refreshToken string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signOuts = append(b.signOuts, refreshToken)
	return nil
}

type fakeVerifier struct{}

func (fakeVerifier) Verify(ctx context.Context, idToken string) (domain.Claims, error) {
	uid, flag, ok := strings.Cut(idToken, "|")
	if !ok {
		return domain.Claims{}, errors.New("bad token")
	}
	return domain.Claims{Subject: uid, Email: uid + "@example.com", Elevated: flag == "1", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type recorder struct {
	mu  sync.Mutex
	got []string
	ch  chan struct{}
}

func newRecorder() *recorder { return &recorder{ch: make(chan struct{}, 64)} }

func (r *recorder) fn(p *domain.Principal) {
	r.mu.Lock()
	if p == nil {
		r.got = append(r.got, "<nil>")
	} else {
		r.got = append(r.got, p.UID)
	}
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *recorder) wait(t *testing.T, n int) []string {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i+1)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func TestOnAuthStateChanged_InitialAndOrdered(t *testing.T) {
	ctx := context.Background()
	c := New(&fakeBackend{}, fakeVerifier{}, nil)
	rec := newRecorder()
	unsub := c.OnAuthStateChanged(rec.fn)
	defer unsub()

	if _, err := c.SignIn(ctx, "alice@example.com", "ok"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	c.SignOut(ctx)
	if _, err := c.SignIn(ctx, "bob@example.com", "ok"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	got := rec.wait(t, 4)
	want := []string{"<nil>", "alice", "<nil>", "bob"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestOnAuthStateChanged_Unsubscribe(t *testing.T) {
	c := New(&fakeBackend{}, fakeVerifier{}, nil)
	rec := newRecorder()
	unsub := c.OnAuthStateChanged(rec.fn)
	rec.wait(t, 1)
	unsub()
	unsub()
	if _, err := c.SignIn(context.Background(), "alice@example.com", "ok"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	select {
	case <-rec.ch:
		t.Error("listener called after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSignIn_Failure(t *testing.T) {
	c := New(&fakeBackend{}, fakeVerifier{}, nil)
	if _, err := c.SignIn(context.Background(), "alice@example.com", "bad"); err == nil {
		t.Fatal("SignIn should fail")
	}
	if c.CurrentPrincipal() != nil {
		t.Error("principal set after failed sign-in")
	}
}

func TestIDTokenResult_ForceRefreshSeesNewClaims(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{}
	c := New(b, fakeVerifier{}, nil)
	if _, err := c.SignIn(ctx, "alice@example.com", "ok"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	b.elevated = true

	cached, err := c.IDTokenResult(ctx, false)
	if err != nil {
		t.Fatalf("IDTokenResult(cached): %v", err)
	}
	if cached.Elevated {
		t.Error("cached claims should be stale")
	}
	if b.refreshes != 0 {
		t.Errorf("refreshes = %d, want 0 for cached read", b.refreshes)
	}

	fresh, err := c.IDTokenResult(ctx, true)
	if err != nil {
		t.Fatalf("IDTokenResult(force): %v", err)
	}
	if !fresh.Elevated {
		t.Error("forced refresh should see the grant")
	}
	if b.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", b.refreshes)
	}
}

func TestIDTokenResult_Errors(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{}
	c := New(b, fakeVerifier{}, nil)
	if _, err := c.IDTokenResult(ctx, true); !errors.Is(err, ErrNotSignedIn) {
		t.Errorf("signed out: want ErrNotSignedIn, got %v", err)
	}
	if _, err := c.SignIn(ctx, "alice@example.com", "ok"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	b.refreshErr = errors.New("network down")
	if _, err := c.IDTokenResult(ctx, true); err == nil {
		t.Error("refresh failure should be returned")
	}
	if c.CurrentPrincipal() == nil {
		t.Error("refresh failure should not sign the principal out")
	}
}

func TestIDTokenResult_ExpiredCacheRefreshes(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{}
	c := New(b, fakeVerifier{}, nil)
	if _, err := c.SignIn(ctx, "alice@example.com", "ok"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := c.IDTokenResult(ctx, false); err != nil {
		t.Fatalf("IDTokenResult: %v", err)
	}
	if b.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1 for expired cache", b.refreshes)
	}
}

func TestSignOut_RevokesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{}
	c := New(b, fakeVerifier{}, nil)
	if _, err := c.SignIn(ctx, "alice@example.com", "ok"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	c.SignOut(ctx)
	c.SignOut(ctx)
	if len(b.signOuts) != 1 || b.signOuts[0] != "rt-alice" {
		t.Errorf("backend sign outs = %v, want [rt-alice]", b.signOuts)
	}
	if c.CurrentPrincipal() != nil {
		t.Error("principal should be cleared")
	}
}
