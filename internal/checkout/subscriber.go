package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"liqgate/internal/common/database"
	"liqgate/internal/common/natsbus"
	"liqgate/internal/providers/liqpay"
)

// SubjectOrderPlaced is the bus subject announcing a completed order.
const SubjectOrderPlaced = "order.placed"

// ProviderIDLiqPay identifies orders paid through LiqPay.
const ProviderIDLiqPay = "liqpay"

// OrderPlacedEvent announces a completed order to downstream consumers.
type OrderPlacedEvent struct {
	OrderID    string `json:"order_id"`
	CartID     string `json:"cart_id"`
	ProviderID string `json:"provider_id"`
}

// EventPublisher publishes events on the internal bus.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// WebhookSubscriber consumes verified charge notifications and drives the
// exactly-once order completion for each. Handler errors propagate to the
// bus layer, which NAKs the message for redelivery.
type WebhookSubscriber struct {
	coordinator *Coordinator
	completer   CartCompleter
	events      EventPublisher
	delay       time.Duration
	logger      *slog.Logger
}

// NewWebhookSubscriber creates the completion subscriber. Events younger
// than delay are postponed via delayed redelivery so a concurrent
// synchronous checkout can win the completion race; the event itself is
// already durable in the stream.
func NewWebhookSubscriber(coordinator *Coordinator, completer CartCompleter, events EventPublisher, delay time.Duration, logger *slog.Logger) *WebhookSubscriber {
	return &WebhookSubscriber{
		coordinator: coordinator,
		completer:   completer,
		events:      events,
		delay:       delay,
		logger:      logger,
	}
}

// Handle processes one webhook event. Non-success statuses never reach
// this point; the endpoint filters them before publishing.
func (s *WebhookSubscriber) Handle(ctx context.Context, subject string, data []byte) error {
	var event liqpay.WebhookEvent
	if err := json.Unmarshal(data, &event); err != nil {
		// Undecodable events can never succeed; drop instead of redeliver.
		s.logger.Error("dropping undecodable webhook event", "error", err)
		return nil
	}
	if event.Data == nil || event.Data.OrderID == "" {
		s.logger.Error("dropping webhook event without order id", "event_id", event.ID)
		return nil
	}

	if s.delay > 0 && !event.ReceivedAt.IsZero() {
		if age := time.Since(event.ReceivedAt); age < s.delay {
			return &natsbus.Backoff{After: s.delay - age}
		}
	}

	cartID := event.Data.OrderID

	result, err := s.coordinator.CompleteOnce(ctx, cartID, func(ctx context.Context, q database.Querier) ([]byte, error) {
		return s.completer.Complete(ctx, q, cartID)
	})
	if err != nil {
		return fmt.Errorf("completing cart %s: %w", cartID, err)
	}

	switch result.Status {
	case CompletionExecuted:
		s.logger.Info("order completed from webhook", "cart_id", cartID, "event_id", event.ID)
		s.announceOrder(ctx, cartID, result.Response)
	case CompletionReplayed:
		s.logger.Info("completion replayed", "cart_id", cartID, "event_id", event.ID)
	case CompletionSkipped:
		s.logger.Info("completion skipped, order exists", "cart_id", cartID, "event_id", event.ID)
	case CompletionFailed:
		s.logger.Warn("completion recorded as failed", "cart_id", cartID, "event_id", event.ID)
	}
	return nil
}

// announceOrder emits order.placed for a freshly completed order. The order
// is already committed; a failed publish is logged, not retried, since
// NAKing here would re-run a completion that already happened.
func (s *WebhookSubscriber) announceOrder(ctx context.Context, cartID string, response []byte) {
	var completed completedOrder
	if err := json.Unmarshal(response, &completed); err != nil {
		s.logger.Error("undecodable completion response", "cart_id", cartID, "error", err)
		return
	}

	event := OrderPlacedEvent{
		OrderID:    completed.OrderID,
		CartID:     completed.CartID,
		ProviderID: ProviderIDLiqPay,
	}
	if err := s.events.Publish(ctx, SubjectOrderPlaced, event); err != nil {
		s.logger.Error("failed to publish order placed event",
			"order_id", completed.OrderID,
			"error", err,
		)
	}
}

// CaptureSubscriber listens for placed orders and captures the payment on
// those paid through LiqPay.
type CaptureSubscriber struct {
	orders OrderService
	pool   database.Querier
	logger *slog.Logger
}

// NewCaptureSubscriber creates the payment capture subscriber.
func NewCaptureSubscriber(orders OrderService, pool database.Querier, logger *slog.Logger) *CaptureSubscriber {
	return &CaptureSubscriber{orders: orders, pool: pool, logger: logger}
}

// Handle captures payment for a newly placed LiqPay order. Orders paid
// through other providers are acknowledged untouched.
func (s *CaptureSubscriber) Handle(ctx context.Context, subject string, data []byte) error {
	var event OrderPlacedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		s.logger.Error("dropping undecodable order event", "error", err)
		return nil
	}

	order, err := s.orders.GetByID(ctx, s.pool, event.OrderID)
	if err != nil {
		if database.IsNotFound(err) {
			s.logger.Warn("placed order not found", "order_id", event.OrderID)
			return nil
		}
		return fmt.Errorf("loading order %s: %w", event.OrderID, err)
	}

	if order.ProviderID != ProviderIDLiqPay {
		return nil
	}
	if order.PaymentCaptured {
		return nil
	}

	if err := s.orders.CapturePayment(ctx, s.pool, order.ID); err != nil {
		return fmt.Errorf("capturing payment for order %s: %w", order.ID, err)
	}

	s.logger.Info("payment captured", "order_id", order.ID, "cart_id", order.CartID)
	return nil
}
