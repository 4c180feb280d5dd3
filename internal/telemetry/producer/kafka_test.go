package producer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	"pawsit/agent/internal/telemetry/domain"
)

type mockWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

func TestNewKafkaProducer_Disabled(t *testing.T) {
	if p := NewKafkaProducer(nil, "topic"); p != nil {
		t.Error("no brokers should disable the producer")
	}
	if p := NewKafkaProducer([]string{"localhost:9092"}, ""); p != nil {
		t.Error("no topic should disable the producer")
	}
	var p *KafkaProducer
	if err := p.Emit(context.Background(), &domain.Event{}); err != nil {
		t.Errorf("nil producer Emit: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("nil producer Close: %v", err)
	}
}

func TestKafkaProducer_Emit(t *testing.T) {
	w := &mockWriter{}
	p := &KafkaProducer{writer: w, topic: "t"}
	ev := &domain.Event{ID: "e1", EventType: domain.EventSessionResolved, UserID: "user-1", Destination: "owner-dashboard"}
	if err := p.Emit(context.Background(), ev); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "user-1" {
		t.Errorf("key = %q, want user-1", msg.Key)
	}
	var decoded domain.Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Destination != "owner-dashboard" || decoded.EventType != domain.EventSessionResolved {
		t.Errorf("decoded = %+v", decoded)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != domain.EventSessionResolved {
		t.Errorf("headers = %+v", msg.Headers)
	}
}

func TestKafkaProducer_EmitError(t *testing.T) {
	w := &mockWriter{err: errors.New("broker down")}
	p := &KafkaProducer{writer: w}
	if err := p.Emit(context.Background(), &domain.Event{EventType: "x"}); err == nil {
		t.Error("Emit should surface the writer error")
	}
	if err := p.Close(); err != nil || !w.closed {
		t.Errorf("Close: err=%v closed=%v", err, w.closed)
	}
}
