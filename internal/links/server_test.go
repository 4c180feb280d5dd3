package links

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"pawsit/agent/internal/devlinks"
)

type recordingPusher struct {
	mu   sync.Mutex
	urls []string
}

func (p *recordingPusher) Push(raw string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.urls = append(p.urls, raw)
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestResetPassword_ForwardsAndPushes(t *testing.T) {
	feed := &recordingPusher{}
	s := NewServer(Config{AppPrefix: "pawsit://"}, feed, nil)

	rec := get(t, s.Handler(), "/reset-password?oobCode=abc123&mode=resetPassword")
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	want := "pawsit://reset-password?oobCode=abc123"
	if loc := rec.Header().Get("Location"); loc != want {
		t.Errorf("Location = %q, want %q", loc, want)
	}
	if len(feed.urls) != 1 || feed.urls[0] != want {
		t.Errorf("pushed = %v, want [%s]", feed.urls, want)
	}
}

func TestResetPassword_MissingCode(t *testing.T) {
	feed := &recordingPusher{}
	s := NewServer(Config{AppPrefix: "pawsit://"}, feed, nil)

	if rec := get(t, s.Handler(), "/reset-password"); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if len(feed.urls) != 0 {
		t.Errorf("pushed = %v, want none", feed.urls)
	}
}

func TestResetPassword_NilFeed(t *testing.T) {
	s := NewServer(Config{AppPrefix: "pawsit://"}, nil, nil)
	if rec := get(t, s.Handler(), "/reset-password?oobCode=x"); rec.Code != http.StatusFound {
		t.Errorf("status = %d, want 302", rec.Code)
	}
}

func TestAppleAssociation(t *testing.T) {
	if rec := get(t, NewServer(Config{}, nil, nil).Handler(), "/.well-known/apple-app-site-association"); rec.Code != http.StatusNotFound {
		t.Errorf("unconfigured: status = %d, want 404", rec.Code)
	}

	rec := get(t, NewServer(Config{AppleAppID: "TEAM.app.pawsit"}, nil, nil).Handler(), "/.well-known/apple-app-site-association")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body struct {
		Applinks struct {
			Details []struct {
				AppIDs     []string            `json:"appIDs"`
				Components []map[string]string `json:"components"`
			} `json:"details"`
		} `json:"applinks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	d := body.Applinks.Details
	if len(d) != 1 || len(d[0].AppIDs) != 1 || d[0].AppIDs[0] != "TEAM.app.pawsit" {
		t.Fatalf("details = %+v", d)
	}
	if len(d[0].Components) != 1 || d[0].Components[0]["/"] != "/reset-password*" {
		t.Errorf("components = %+v", d[0].Components)
	}
}

func TestAssetLinks(t *testing.T) {
	if rec := get(t, NewServer(Config{}, nil, nil).Handler(), "/.well-known/assetlinks.json"); rec.Code != http.StatusNotFound {
		t.Errorf("unconfigured: status = %d, want 404", rec.Code)
	}

	s := NewServer(Config{AndroidPackage: "app.pawsit", AndroidCertSHA256: []string{"AA:BB"}}, nil, nil)
	rec := get(t, s.Handler(), "/.well-known/assetlinks.json")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body []struct {
		Relation []string `json:"relation"`
		Target   struct {
			Namespace    string   `json:"namespace"`
			PackageName  string   `json:"package_name"`
			Fingerprints []string `json:"sha256_cert_fingerprints"`
		} `json:"target"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body) != 1 || body[0].Target.PackageName != "app.pawsit" || body[0].Target.Namespace != "android_app" {
		t.Fatalf("body = %+v", body)
	}
	if len(body[0].Target.Fingerprints) != 1 || body[0].Target.Fingerprints[0] != "AA:BB" {
		t.Errorf("fingerprints = %v", body[0].Target.Fingerprints)
	}
}

func TestDevResetLink(t *testing.T) {
	if rec := get(t, NewServer(Config{}, nil, nil).Handler(), "/dev/reset-link?email=a@b.c"); rec.Code != http.StatusNotFound {
		t.Errorf("without store: status = %d, want 404", rec.Code)
	}

	store := devlinks.NewMemoryStore()
	store.Put(context.Background(), "Owner@Example.com", "pawsit://reset-password?oobCode=zz", time.Now().Add(time.Hour))
	h := NewServer(Config{DevLinks: store}, nil, nil).Handler()

	rec := get(t, h, "/dev/reset-link?email=owner@example.com")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["link"] != "pawsit://reset-password?oobCode=zz" {
		t.Errorf("link = %q", body["link"])
	}
	if rec := get(t, h, "/dev/reset-link?email=nobody@example.com"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown email: status = %d, want 404", rec.Code)
	}
	if rec := get(t, h, "/dev/reset-link"); rec.Code != http.StatusBadRequest {
		t.Errorf("missing email: status = %d, want 400", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	if rec := get(t, NewServer(Config{}, nil, nil).Handler(), "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
