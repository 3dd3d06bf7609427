package checkout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"liqgate/internal/providers/liqpay"
)

type fakeProvider struct {
	transaction *liqpay.TransactionStatus
	txErr       error

	refund      *liqpay.TransactionStatus
	refundErr   error
	refunds     []float64
	refundCarts []string
}

func (f *fakeProvider) GetTransaction(ctx context.Context, orderID string) (*liqpay.TransactionStatus, error) {
	return f.transaction, f.txErr
}

func (f *fakeProvider) CreateRefund(ctx context.Context, orderID string, amount float64) (*liqpay.TransactionStatus, error) {
	f.refunds = append(f.refunds, amount)
	f.refundCarts = append(f.refundCarts, orderID)
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	if f.refund != nil {
		return f.refund, nil
	}
	return &liqpay.TransactionStatus{Status: liqpay.StatusReversed, OrderID: orderID}, nil
}

type fakeCarts struct {
	cart *CartSnapshot
	err  error
}

func (f *fakeCarts) RetrieveWithTotals(ctx context.Context, cartID string) (*CartSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cart, nil
}

func testProcessor(provider ProviderClient, carts CartReader) *Processor {
	return NewProcessor(provider, carts, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestInitiatePayment(t *testing.T) {
	p := testProcessor(&fakeProvider{}, &fakeCarts{})

	session, err := p.InitiatePayment(context.Background(), "cart_1")
	if err != nil {
		t.Fatalf("InitiatePayment() error = %v", err)
	}
	if session.Status != SessionInitiated {
		t.Errorf("status = %q, want %q", session.Status, SessionInitiated)
	}

	if _, err := p.InitiatePayment(context.Background(), ""); err == nil {
		t.Error("expected error for empty cart id")
	}
}

func TestAuthorizePayment(t *testing.T) {
	cart := uahCart(1999)

	tests := []struct {
		name       string
		ts         *liqpay.TransactionStatus
		wantStatus SessionStatus
		wantRefund bool
	}{
		{
			name:       "matching charge authorizes",
			ts:         &liqpay.TransactionStatus{Status: liqpay.StatusSuccess, Amount: f64(19.99), Currency: "UAH", OrderID: "cart_1"},
			wantStatus: SessionAuthorized,
		},
		{
			name:       "terminal failure errors",
			ts:         &liqpay.TransactionStatus{Status: liqpay.StatusFailure, OrderID: "cart_1"},
			wantStatus: SessionError,
		},
		{
			name:       "verification status pends",
			ts:         &liqpay.TransactionStatus{Status: liqpay.StatusOTPVerify, OrderID: "cart_1"},
			wantStatus: SessionPending,
		},
		{
			name:       "mismatched charge refunds and errors",
			ts:         &liqpay.TransactionStatus{Status: liqpay.StatusSuccess, Amount: f64(15.00), Currency: "UAH", OrderID: "cart_1"},
			wantStatus: SessionError,
			wantRefund: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{transaction: tt.ts}
			p := testProcessor(provider, &fakeCarts{cart: cart})

			session, err := p.AuthorizePayment(context.Background(), &Session{CartID: "cart_1", Status: SessionInitiated})
			if err != nil {
				t.Fatalf("AuthorizePayment() error = %v", err)
			}
			if session.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q (reason %q)", session.Status, tt.wantStatus, session.Reason)
			}
			if tt.wantRefund {
				if len(provider.refunds) != 1 || provider.refunds[0] != 15.00 {
					t.Errorf("refunds = %v, want [15]", provider.refunds)
				}
			} else if len(provider.refunds) != 0 {
				t.Errorf("unexpected refunds %v", provider.refunds)
			}
		})
	}
}

func TestAuthorizePaymentRefundFailureStillErrors(t *testing.T) {
	provider := &fakeProvider{
		transaction: &liqpay.TransactionStatus{Status: liqpay.StatusSuccess, Amount: f64(15.00), Currency: "UAH", OrderID: "cart_1"},
		refundErr:   &liqpay.ProviderError{Message: "refund failed", StatusCode: 502},
	}
	p := testProcessor(provider, &fakeCarts{cart: uahCart(1999)})

	session, err := p.AuthorizePayment(context.Background(), &Session{CartID: "cart_1"})
	if err != nil {
		t.Fatalf("AuthorizePayment() error = %v", err)
	}
	// A failed refund never lets the mismatched charge authorize.
	if session.Status != SessionError {
		t.Errorf("status = %q, want %q", session.Status, SessionError)
	}
}

func TestAuthorizePaymentProviderError(t *testing.T) {
	provider := &fakeProvider{txErr: &liqpay.ProviderError{Message: "down", StatusCode: 503}}
	p := testProcessor(provider, &fakeCarts{cart: uahCart(1999)})

	_, err := p.AuthorizePayment(context.Background(), &Session{CartID: "cart_1"})
	var pe *liqpay.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *liqpay.ProviderError", err)
	}
}

func TestGetPaymentStatus(t *testing.T) {
	tests := []struct {
		status liqpay.Status
		want   SessionStatus
	}{
		{liqpay.StatusSuccess, SessionAuthorized},
		{liqpay.StatusSubscribed, SessionAuthorized},
		{liqpay.StatusReversed, SessionCanceled},
		{liqpay.StatusUnsubscribed, SessionCanceled},
		{liqpay.StatusError, SessionError},
		{liqpay.StatusFailure, SessionError},
		{liqpay.StatusTryAgain, SessionError},
		{liqpay.StatusProcessing, SessionPending},
		{liqpay.Status("mystery"), SessionPending},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			provider := &fakeProvider{transaction: &liqpay.TransactionStatus{Status: tt.status}}
			p := testProcessor(provider, &fakeCarts{})
			if got := p.GetPaymentStatus(context.Background(), "cart_1"); got != tt.want {
				t.Errorf("GetPaymentStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRefundPayment(t *testing.T) {
	t.Run("reversed confirms", func(t *testing.T) {
		provider := &fakeProvider{refund: &liqpay.TransactionStatus{Status: liqpay.StatusReversed}}
		p := testProcessor(provider, &fakeCarts{})

		ts, err := p.RefundPayment(context.Background(), "cart_1", 19.99)
		if err != nil {
			t.Fatalf("RefundPayment() error = %v", err)
		}
		if ts.Status != liqpay.StatusReversed {
			t.Errorf("status = %q, want reversed", ts.Status)
		}
	})

	t.Run("anything else is a provider error", func(t *testing.T) {
		provider := &fakeProvider{refund: &liqpay.TransactionStatus{Status: liqpay.StatusWaitReserve}}
		p := testProcessor(provider, &fakeCarts{})

		_, err := p.RefundPayment(context.Background(), "cart_1", 19.99)
		var pe *liqpay.ProviderError
		if !errors.As(err, &pe) {
			t.Fatalf("error = %v, want *liqpay.ProviderError", err)
		}
	})
}

func TestCapturePayment(t *testing.T) {
	p := testProcessor(&fakeProvider{}, &fakeCarts{})

	session, err := p.CapturePayment(context.Background(), &Session{CartID: "cart_1", Status: SessionAuthorized})
	if err != nil {
		t.Fatalf("CapturePayment() error = %v", err)
	}
	if session.Status != SessionCaptured {
		t.Errorf("status = %q, want %q", session.Status, SessionCaptured)
	}

	if _, err := p.CapturePayment(context.Background(), &Session{Status: SessionPending}); err == nil {
		t.Error("expected error capturing a pending session")
	}
}

func TestCancelPayment(t *testing.T) {
	p := testProcessor(&fakeProvider{}, &fakeCarts{})

	session, err := p.CancelPayment(context.Background(), &Session{CartID: "cart_1", Status: SessionPending})
	if err != nil {
		t.Fatalf("CancelPayment() error = %v", err)
	}
	if session.Status != SessionCanceled {
		t.Errorf("status = %q, want %q", session.Status, SessionCanceled)
	}

	for _, status := range []SessionStatus{SessionCaptured, SessionRefunded, SessionCanceled} {
		if _, err := p.CancelPayment(context.Background(), &Session{Status: status}); err == nil {
			t.Errorf("expected error canceling a %q session", status)
		}
	}
}

func TestRetrievePayment(t *testing.T) {
	provider := &fakeProvider{transaction: &liqpay.TransactionStatus{
		Status:  liqpay.StatusError,
		ErrCode: "payment_not_found",
	}}
	p := testProcessor(provider, &fakeCarts{})

	_, err := p.RetrievePayment(context.Background(), "cart_1")
	var pe *liqpay.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *liqpay.ProviderError", err)
	}
	if pe.Code != "payment_not_found" {
		t.Errorf("Code = %q, want payment_not_found", pe.Code)
	}
}
