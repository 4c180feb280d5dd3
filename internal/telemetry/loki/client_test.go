package loki

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func captureServer(t *testing.T, status int) (*httptest.Server, *PushRequest) {
	t.Helper()
	var got PushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/push" {
			t.Errorf("path = %q", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(b, &got); err != nil {
			t.Errorf("Unmarshal: %v", err)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestNewClient_EmptyURL(t *testing.T) {
	if _, err := NewClient("  ", "", nil); err == nil {
		t.Error("empty URL should fail")
	}
}

func TestPushEventJSON_Labels(t *testing.T) {
	srv, got := captureServer(t, http.StatusNoContent)
	c, err := NewClient(srv.URL+"/", "", srv.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	at := time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)
	raw := []byte(`{"id":"e1","eventType":"session.resolved","source":"session","userId":"u1","destination":"admin-dashboard","createdAt":"` + at.Format(time.RFC3339Nano) + `"}`)
	if err := c.PushEventJSON(context.Background(), raw); err != nil {
		t.Fatalf("PushEventJSON: %v", err)
	}
	if len(got.Streams) != 1 {
		t.Fatalf("streams = %d, want 1", len(got.Streams))
	}
	s := got.Streams[0]
	want := map[string]string{"job": "pawsit", "event_type": "session.resolved", "source": "session", "destination": "admin-dashboard"}
	for k, v := range want {
		if s.Stream[k] != v {
			t.Errorf("label %s = %q, want %q", k, s.Stream[k], v)
		}
	}
	if _, ok := s.Stream["user_id"]; ok {
		t.Error("user id must not become a label")
	}
	if s.Values[0][0] != strconv.FormatInt(at.UnixNano(), 10) {
		t.Errorf("timestamp = %s", s.Values[0][0])
	}
	if s.Values[0][1] != string(raw) {
		t.Error("line should be the raw event JSON")
	}
}

func TestPushEventJSON_Unparseable(t *testing.T) {
	srv, got := captureServer(t, http.StatusNoContent)
	c, _ := NewClient(srv.URL, "jobx", srv.Client())
	if err := c.PushEventJSON(context.Background(), []byte("not json")); err != nil {
		t.Fatalf("PushEventJSON: %v", err)
	}
	if len(got.Streams[0].Stream) != 1 || got.Streams[0].Stream["job"] != "jobx" {
		t.Errorf("labels = %v, want only job", got.Streams[0].Stream)
	}
}

func TestPushEvent_SanitizesAndFailsOnNon2xx(t *testing.T) {
	srv, got := captureServer(t, http.StatusBadRequest)
	c, _ := NewClient(srv.URL, "", srv.Client())
	err := c.PushEvent(context.Background(), time.Now(), "line", map[string]string{"source": "a b/c", "empty": "   "})
	if err == nil {
		t.Error("non-2xx should return an error")
	}
	if got.Streams[0].Stream["source"] != "a_b_c" {
		t.Errorf("source = %q, want a_b_c", got.Streams[0].Stream["source"])
	}
	if _, ok := got.Streams[0].Stream["empty"]; ok {
		t.Error("empty label should be dropped")
	}
}
