// Package notify delivers operator alerts about sale lifecycle events to chat
// channels (Telegram, Discord). Events are filtered by type so operators only
// receive the alerts they asked for.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/empowa-tech/marketplace/internal/domain"
)

// EventReconcileFailed is raised when a reconciliation run returns an error.
const EventReconcileFailed = "reconcile_failed"

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans alerts out to every Sender whose event type is allowed. An
// empty allow-list lets every event through.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier for the given senders and event allow-list.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Notify sends title/message when event passes the allow-list.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.allowed(event) {
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// Publish implements domain.EventPublisher, sending one alert per allowed
// sale event.
func (n *Notifier) Publish(ctx context.Context, events ...domain.SaleEvent) error {
	var errs []error
	for _, ev := range events {
		if !n.allowed(string(ev.Type)) {
			continue
		}
		if err := n.dispatch(ctx, saleTitle(ev), saleMessage(ev)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) allowed(event string) bool {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.Debug("event filtered out", slog.String("event", event))
		return false
	}
	return true
}

// dispatch delivers to every sender; one failing sender does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

func saleTitle(ev domain.SaleEvent) string {
	switch ev.Type {
	case domain.EventSaleCompleted:
		return "Sale completed"
	case domain.EventSaleExpired:
		return "Sale expired"
	case domain.EventSaleInvalid:
		return "Sale invalid"
	case domain.EventSalePending:
		return "Sale pending"
	default:
		return "New activity"
	}
}

func saleMessage(ev domain.SaleEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s ADA\n", ev.SaleType, ev.Price.String())
	fmt.Fprintf(&b, "asset: %s\n", ev.PolicyAsset.Hex())
	if ev.From != "" {
		fmt.Fprintf(&b, "status: %s -> %s\n", ev.From, ev.To)
	} else {
		fmt.Fprintf(&b, "status: %s\n", ev.To)
	}
	fmt.Fprintf(&b, "tx: %s\n", ev.TxHash)
	b.WriteString(ev.At.Format(time.RFC3339))
	return b.String()
}

var _ domain.EventPublisher = (*Notifier)(nil)
