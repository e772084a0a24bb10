package events

import (
	"context"
	"errors"
	"log/slog"

	"github.com/empowa-tech/marketplace/internal/domain"
)

// Named pairs a publisher with the name used in logs.
type Named struct {
	Name      string
	Publisher domain.EventPublisher
}

// Fanout delivers every event to all publishers. A failing publisher is
// logged and does not stop the others.
type Fanout struct {
	targets []Named
	logger  *slog.Logger
}

// NewFanout creates a Fanout over targets.
func NewFanout(logger *slog.Logger, targets ...Named) *Fanout {
	return &Fanout{
		targets: targets,
		logger:  logger.With(slog.String("component", "events")),
	}
}

// Publish implements domain.EventPublisher.
func (f *Fanout) Publish(ctx context.Context, events ...domain.SaleEvent) error {
	if len(events) == 0 {
		return nil
	}
	var errs []error
	for _, t := range f.targets {
		if err := t.Publisher.Publish(ctx, events...); err != nil {
			f.logger.WarnContext(ctx, "publish failed",
				slog.String("target", t.Name),
				slog.Int("events", len(events)),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ domain.EventPublisher = (*Fanout)(nil)
