package checkout

import (
	"context"
	"fmt"
	"log/slog"

	"liqgate/internal/providers/liqpay"
)

// SessionStatus is the lifecycle state of a payment session.
type SessionStatus string

const (
	SessionInitiated  SessionStatus = "initiated"
	SessionAuthorized SessionStatus = "authorized"
	SessionPending    SessionStatus = "pending"
	SessionError      SessionStatus = "error"
	SessionCaptured   SessionStatus = "captured"
	SessionCanceled   SessionStatus = "canceled"
	SessionRefunded   SessionStatus = "refunded"
)

// Session is the provider-facing payment session for one cart.
type Session struct {
	CartID       string                    `json:"cart_id"`
	OrderID      string                    `json:"order_id,omitempty"`
	Status       SessionStatus             `json:"status"`
	Reason       string                    `json:"reason,omitempty"`
	ProviderData *liqpay.TransactionStatus `json:"provider_data,omitempty"`
}

// ProviderClient is the slice of the LiqPay API the session machine needs.
type ProviderClient interface {
	GetTransaction(ctx context.Context, orderID string) (*liqpay.TransactionStatus, error)
	CreateRefund(ctx context.Context, orderID string, amount float64) (*liqpay.TransactionStatus, error)
}

// Processor drives the payment session lifecycle:
//
//	initiated -> {authorized, pending, error} -> {captured, canceled, refunded}
//
// Pending may move to any terminal state on re-poll; authorized and error
// hold until an explicit capture, cancel, or refund. Provider failures come
// back as *liqpay.ProviderError values, never panics.
type Processor struct {
	client ProviderClient
	carts  CartReader
	logger *slog.Logger
}

// NewProcessor creates a payment session processor.
func NewProcessor(client ProviderClient, carts CartReader, logger *slog.Logger) *Processor {
	return &Processor{client: client, carts: carts, logger: logger}
}

// InitiatePayment opens a session for a cart. LiqPay sessions carry no
// provider state until the first status poll.
func (p *Processor) InitiatePayment(ctx context.Context, cartID string) (*Session, error) {
	if cartID == "" {
		return nil, fmt.Errorf("cart id is required")
	}
	return &Session{CartID: cartID, Status: SessionInitiated}, nil
}

// UpdatePayment re-initiates the session; amounts are never updated in
// place.
func (p *Processor) UpdatePayment(ctx context.Context, cartID string) (*Session, error) {
	return p.InitiatePayment(ctx, cartID)
}

// AuthorizePayment polls the provider for the cart's transaction, fetches a
// fresh cart snapshot, and folds the reconciliation verdict into the
// session. A mismatched charge is refunded for the reported amount and the
// session ends in error; refund-then-reject is one decision.
func (p *Processor) AuthorizePayment(ctx context.Context, session *Session) (*Session, error) {
	ts, err := p.client.GetTransaction(ctx, session.CartID)
	if err != nil {
		return nil, err
	}

	cart, err := p.carts.RetrieveWithTotals(ctx, session.CartID)
	if err != nil {
		return nil, fmt.Errorf("retrieving cart %s: %w", session.CartID, err)
	}

	verdict := Reconcile(ts, cart)

	next := &Session{
		CartID:       session.CartID,
		OrderID:      session.OrderID,
		Reason:       verdict.Reason,
		ProviderData: ts,
	}

	switch verdict.Outcome {
	case OutcomeAuthorized:
		next.Status = SessionAuthorized
	case OutcomePending:
		next.Status = SessionPending
	case OutcomeRejected:
		next.Status = SessionError
	case OutcomeRefundRequired:
		if _, refundErr := p.RefundPayment(ctx, session.CartID, verdict.RefundAmount); refundErr != nil {
			p.logger.Error("refund after mismatch failed",
				"cart_id", session.CartID,
				"amount", verdict.RefundAmount,
				"error", refundErr,
			)
		} else {
			p.logger.Warn("mismatched charge refunded",
				"cart_id", session.CartID,
				"amount", verdict.RefundAmount,
				"reason", verdict.Reason,
			)
		}
		next.Status = SessionError
	}

	return next, nil
}

// GetPaymentStatus polls the provider and maps the transaction status onto
// the session lifecycle. Provider failures surface as the error state.
func (p *Processor) GetPaymentStatus(ctx context.Context, cartID string) SessionStatus {
	if cartID == "" {
		return SessionPending
	}

	ts, err := p.client.GetTransaction(ctx, cartID)
	if err != nil {
		p.logger.Error("status poll failed", "cart_id", cartID, "error", err)
		return SessionError
	}

	switch ts.Status.Class() {
	case liqpay.ClassSuccess:
		return SessionAuthorized
	case liqpay.ClassCanceled:
		return SessionCanceled
	case liqpay.ClassFailure:
		return SessionError
	default:
		return SessionPending
	}
}

// RefundPayment requests a refund of a major-unit amount. The provider
// reports status "reversed" on success; anything else is a provider error.
func (p *Processor) RefundPayment(ctx context.Context, cartID string, amount float64) (*liqpay.TransactionStatus, error) {
	ts, err := p.client.CreateRefund(ctx, cartID, amount)
	if err != nil {
		return nil, err
	}

	if ts.Status != liqpay.StatusReversed {
		return nil, &liqpay.ProviderError{
			Message: fmt.Sprintf("refund not confirmed, status %q", ts.Status),
			Code:    ts.ErrCode,
			Detail:  ts.ErrDescription,
		}
	}

	p.logger.Info("payment refunded", "cart_id", cartID, "amount", amount)
	return ts, nil
}

// CapturePayment marks an authorized session captured.
func (p *Processor) CapturePayment(ctx context.Context, session *Session) (*Session, error) {
	if session.Status != SessionAuthorized {
		return nil, fmt.Errorf("cannot capture session in status %q", session.Status)
	}
	next := *session
	next.Status = SessionCaptured
	return &next, nil
}

// CancelPayment cancels a session that has not reached a terminal state.
func (p *Processor) CancelPayment(ctx context.Context, session *Session) (*Session, error) {
	switch session.Status {
	case SessionCaptured, SessionRefunded, SessionCanceled:
		return nil, fmt.Errorf("cannot cancel session in status %q", session.Status)
	}
	next := *session
	next.Status = SessionCanceled
	return &next, nil
}

// RetrievePayment returns the provider's current view of the transaction.
func (p *Processor) RetrievePayment(ctx context.Context, cartID string) (*liqpay.TransactionStatus, error) {
	ts, err := p.client.GetTransaction(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if ts.Status == liqpay.StatusError {
		return nil, &liqpay.ProviderError{
			Message: "failed to retrieve payment",
			Code:    ts.ErrCode,
			Detail:  ts.ErrDescription,
		}
	}
	return ts, nil
}
