package otel

import (
	"context"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"

	"pawsit/agent/internal/telemetry/domain"
)

func TestNewEventEmitter_NilProvider_ReturnsNoop(t *testing.T) {
	e := NewEventEmitter(nil)
	if _, ok := e.(noopEmitter); !ok {
		t.Fatalf("NewEventEmitter(nil) = %T, want noopEmitter", e)
	}
	if err := e.Emit(context.Background(), &domain.Event{}); err != nil {
		t.Errorf("noop Emit: %v", err)
	}
}

func TestEmit_NilEvent(t *testing.T) {
	e := &otelEmitter{}
	if err := e.Emit(context.Background(), nil); err != nil {
		t.Errorf("Emit(nil) = %v, want nil", err)
	}
}

func attrs(rec otellog.Record) map[string]string {
	out := map[string]string{}
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		out[kv.Key] = kv.Value.AsString()
		return true
	})
	return out
}

func TestToRecord_Mapping(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rec := toRecord(&domain.Event{
		ID:          "ev-1",
		EventType:   domain.EventSessionResolved,
		Source:      "session",
		UserID:      "user-1",
		Destination: "owner-dashboard",
		Attributes:  map[string]string{"role": "owner"},
		CreatedAt:   at,
	})
	if !rec.Timestamp().Equal(at) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp(), at)
	}
	got := attrs(rec)
	want := map[string]string{
		"event_id":    "ev-1",
		"event_type":  domain.EventSessionResolved,
		"source":      "session",
		"user_id":     "user-1",
		"destination": "owner-dashboard",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("attr %s = %q, want %q", k, got[k], v)
		}
	}
	if string(rec.Body().AsBytes()) != `{"role":"owner"}` {
		t.Errorf("body = %q", rec.Body().AsBytes())
	}
}

func TestToRecord_EmptyFieldsOmitted(t *testing.T) {
	rec := toRecord(&domain.Event{EventType: domain.EventSessionSignedOut})
	got := attrs(rec)
	if _, ok := got["user_id"]; ok {
		t.Error("empty user_id should not be added")
	}
	if got["event_type"] != domain.EventSessionSignedOut {
		t.Errorf("event_type = %q", got["event_type"])
	}
	if rec.Timestamp().IsZero() {
		t.Error("zero CreatedAt should default to now")
	}
	if rec.Body().Kind() != otellog.KindEmpty {
		t.Error("no attributes should leave the body empty")
	}
}
