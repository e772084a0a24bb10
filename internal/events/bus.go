// Package events publishes sale lifecycle events to downstream consumers:
// the redis channel feeding websocket clients, a Kafka topic, and operator
// notifications.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/empowa-tech/marketplace/internal/domain"
)

// BusPublisher publishes each event as JSON on domain.SalesChannel.
type BusPublisher struct {
	bus domain.SignalBus
}

// NewBusPublisher creates a BusPublisher over bus.
func NewBusPublisher(bus domain.SignalBus) *BusPublisher {
	return &BusPublisher{bus: bus}
}

// Publish implements domain.EventPublisher.
func (p *BusPublisher) Publish(ctx context.Context, events ...domain.SaleEvent) error {
	var errs []error
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			errs = append(errs, fmt.Errorf("events: marshal %s: %w", ev.ActivityID.Hex(), err))
			continue
		}
		if err := p.bus.Publish(ctx, domain.SalesChannel, payload); err != nil {
			errs = append(errs, fmt.Errorf("events: publish %s: %w", ev.ActivityID.Hex(), err))
		}
	}
	return errors.Join(errs...)
}

var _ domain.EventPublisher = (*BusPublisher)(nil)
