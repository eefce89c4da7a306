// Package events fans measurement and alert events out to live consumers.
// Publishing is fire-and-forget: a failed or slow sink never blocks ingestion
// or alert creation.
package events

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"agrismart-monitor/internal/models"
)

// Publisher delivers one event to a sink.
type Publisher interface {
	Publish(ctx context.Context, ev models.Event) error
}

// Multi publishes to every sink and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev models.Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, models.Event) error { return nil }

// Emit publishes ev and logs a failure instead of returning it.
func Emit(ctx context.Context, p Publisher, ev models.Event, logger *zap.Logger) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		logger.Warn("Failed to publish event",
			zap.String("event_type", string(ev.Type)),
			zap.String("parcel_id", ev.ParcelID),
			zap.Error(err),
		)
	}
}
