package otel

import (
	"context"
	"encoding/json"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"pawsit/agent/internal/telemetry"
	"pawsit/agent/internal/telemetry/domain"
)

// NewEventEmitter returns an EventEmitter that sends events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger("pawsit.session")}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.Event) error { return nil }

type otelEmitter struct {
	logger otellog.Logger
}

// Emit converts the event to an OTel log record and emits it.
func (e *otelEmitter) Emit(ctx context.Context, event *domain.Event) error {
	if event == nil {
		return nil
	}
	e.logger.Emit(ctx, toRecord(event))
	return nil
}

func toRecord(event *domain.Event) otellog.Record {
	rec := otellog.Record{}
	if !event.CreatedAt.IsZero() {
		rec.SetTimestamp(event.CreatedAt)
	} else {
		rec.SetTimestamp(time.Now().UTC())
	}
	rec.SetSeverity(otellog.SeverityInfo)
	if len(event.Attributes) > 0 {
		if b, err := json.Marshal(event.Attributes); err == nil {
			rec.SetBody(otellog.BytesValue(b))
		}
	}
	add := func(k, v string) {
		if v != "" {
			rec.AddAttributes(otellog.String(k, v))
		}
	}
	add("event_id", event.ID)
	add("event_type", event.EventType)
	add("source", event.Source)
	add("user_id", event.UserID)
	add("destination", event.Destination)
	return rec
}
