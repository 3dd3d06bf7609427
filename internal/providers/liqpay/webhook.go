package liqpay

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"liqgate/internal/common/api"
)

// SubjectWebhookEvent is the bus subject for verified charge notifications.
const SubjectWebhookEvent = "liqpay.webhook_event"

// WebhookConfig holds webhook event configuration.
type WebhookConfig struct {
	// EventDelay is the window the completion subscriber waits before
	// acting on an event, so a concurrent synchronous checkout can win the
	// completion race without contention. The event is published durably
	// before the notification is acknowledged; only its consumption is
	// postponed. Correctness does not depend on the delay; the idempotency
	// record does that.
	EventDelay time.Duration `envconfig:"LIQPAY_WEBHOOK_EVENT_DELAY" default:"5s"`
}

// WebhookEvent is the internal event emitted for success-class
// notifications.
type WebhookEvent struct {
	ID         string             `json:"id"`
	Event      Status             `json:"event"`
	Data       *TransactionStatus `json:"data"`
	ReceivedAt time.Time          `json:"received_at"`
}

// EventPublisher publishes events on the internal bus.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// webhookRequest is the notification body LiqPay posts.
type webhookRequest struct {
	Data      string `json:"data" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

// WebhookHandler receives asynchronous payment notifications. Responses are
// exactly 200 (accepted, including ignored non-success statuses), 400 (bad
// signature or malformed payload), or 500 (internal failure).
type WebhookHandler struct {
	privateKey string
	publisher  EventPublisher
	logger     *slog.Logger
}

// NewWebhookHandler creates the notification endpoint handler.
func NewWebhookHandler(cfg Config, publisher EventPublisher, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		privateKey: cfg.PrivateKey,
		publisher:  publisher,
		logger:     logger,
	}
}

// ServeHTTP handles an inbound notification.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req webhookRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.BadRequest(w, "invalid request body")
		return
	}

	// Signature first. A mismatch is rejected before the payload is parsed
	// so the response never reveals whether the payload decodes.
	if !VerifySignature(h.privateKey, req.Data, req.Signature) {
		h.logger.Warn("webhook signature mismatch")
		api.BadRequest(w, "invalid signature")
		return
	}

	ts, err := DecodeNotification(req.Data)
	if err != nil {
		h.logger.Warn("webhook payload malformed", "error", err)
		api.BadRequest(w, "malformed payload")
		return
	}

	h.logger.Info("received liqpay webhook",
		"order_id", ts.OrderID,
		"status", ts.Status,
	)

	if !ts.Status.IsSuccess() {
		// Acknowledge and discard; only charge confirmations drive the
		// completion flow.
		api.WriteData(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	event := WebhookEvent{
		ID:         ulid.Make().String(),
		Event:      ts.Status,
		Data:       ts,
		ReceivedAt: time.Now().UTC(),
	}

	// The event must be in the stream before the provider gets its 200; a
	// failed publish means the notification is not yet durable and the
	// provider has to retry.
	if err := h.publisher.Publish(ctx, SubjectWebhookEvent, event); err != nil {
		h.logger.Error("failed to publish webhook event",
			"order_id", ts.OrderID,
			"error", err,
		)
		api.InternalError(w, "failed to process notification")
		return
	}

	api.WriteData(w, http.StatusOK, map[string]string{"status": "accepted"})
}
