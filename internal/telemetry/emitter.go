package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"pawsit/agent/internal/telemetry/domain"
)

// EventEmitter emits telemetry events (e.g. to OTel Logs or Kafka). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.Event) error
}

// NewEvent returns an event of the given type stamped with a fresh id and the current time.
func NewEvent(eventType, source string) *domain.Event {
	return &domain.Event{
		ID:        uuid.New().String(),
		EventType: eventType,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
}

// Multi fans each event out to every non-nil emitter and joins their errors.
func Multi(emitters ...EventEmitter) EventEmitter {
	var out multi
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

type multi []EventEmitter

func (m multi) Emit(ctx context.Context, event *domain.Event) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
