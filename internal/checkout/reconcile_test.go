package checkout

import (
	"testing"

	"liqgate/internal/providers/liqpay"
)

func f64(v float64) *float64 { return &v }

func uahCart(totalMinor int64) *CartSnapshot {
	return &CartSnapshot{
		CartID:       "cart_1",
		TotalMinor:   totalMinor,
		CurrencyCode: "UAH",
	}
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name string
		ts   *liqpay.TransactionStatus
		cart *CartSnapshot
		want Outcome
	}{
		{
			name: "exact match authorizes",
			ts:   &liqpay.TransactionStatus{Status: liqpay.StatusSuccess, Amount: f64(19.99), Currency: "UAH"},
			cart: uahCart(1999),
			want: OutcomeAuthorized,
		},
		{
			name: "subscribed counts as success",
			ts:   &liqpay.TransactionStatus{Status: liqpay.StatusSubscribed, Amount: f64(19.99), Currency: "UAH"},
			cart: uahCart(1999),
			want: OutcomeAuthorized,
		},
		{
			name: "currency comparison is case-insensitive",
			ts:   &liqpay.TransactionStatus{Status: liqpay.StatusSuccess, Amount: f64(19.99), Currency: "uah"},
			cart: uahCart(1999),
			want: OutcomeAuthorized,
		},
		{
			name: "zero-subunit currency matches whole units",
			ts:   &liqpay.TransactionStatus{Status: liqpay.StatusSuccess, Amount: f64(1999), Currency: "JPY"},
			cart: &CartSnapshot{CartID: "cart_1", TotalMinor: 1999, CurrencyCode: "JPY"},
			want: OutcomeAuthorized,
		},
		{
			name: "amount mismatch requires refund",
			ts:   &liqpay.TransactionStatus{Status: liqpay.StatusSuccess, Amount: f64(15.00), Currency: "UAH"},
			cart: uahCart(1999),
			want: OutcomeRefundRequired,
		},
		{
			name: "currency mismatch requires refund",
			ts:   &liqpay.TransactionStatus{Status: liqpay.StatusSuccess, Amount: f64(19.99), Currency: "USD"},
			cart: uahCart(1999),
			want: OutcomeRefundRequired,
		},
		{
			name: "terminal failure rejects",
			ts:   &liqpay.TransactionStatus{Status: liqpay.StatusTryAgain},
			cart: uahCart(1999),
			want: OutcomeRejected,
		},
		{
			name: "error code rejects regardless of status",
			ts:   &liqpay.TransactionStatus{Status: liqpay.StatusSuccess, Amount: f64(19.99), Currency: "UAH", ErrCode: "limit"},
			cart: uahCart(1999),
			want: OutcomeRejected,
		},
		{
			name: "success without amount rejects",
			ts:   &liqpay.TransactionStatus{Status: liqpay.StatusSuccess, Currency: "UAH"},
			cart: uahCart(1999),
			want: OutcomeRejected,
		},
		{
			name: "success without currency rejects",
			ts:   &liqpay.TransactionStatus{Status: liqpay.StatusSuccess, Amount: f64(19.99)},
			cart: uahCart(1999),
			want: OutcomeRejected,
		},
		{
			name: "verification status pends",
			ts:   &liqpay.TransactionStatus{Status: liqpay.StatusCVVVerify},
			cart: uahCart(1999),
			want: OutcomePending,
		},
		{
			name: "unknown status pends, never authorizes",
			ts:   &liqpay.TransactionStatus{Status: liqpay.Status("mystery"), Amount: f64(19.99), Currency: "UAH"},
			cart: uahCart(1999),
			want: OutcomePending,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(tt.ts, tt.cart)
			if got.Outcome != tt.want {
				t.Errorf("Reconcile() outcome = %v, want %v (reason %q)", got.Outcome, tt.want, got.Reason)
			}
		})
	}
}

func TestReconcileRefundsReportedAmount(t *testing.T) {
	ts := &liqpay.TransactionStatus{Status: liqpay.StatusSuccess, Amount: f64(15.00), Currency: "UAH"}
	got := Reconcile(ts, uahCart(1999))

	if got.Outcome != OutcomeRefundRequired {
		t.Fatalf("outcome = %v, want OutcomeRefundRequired", got.Outcome)
	}
	// The refund targets what the provider charged, not the cart total.
	if got.RefundAmount != 15.00 {
		t.Errorf("RefundAmount = %v, want 15.00", got.RefundAmount)
	}
}

func TestReconcileIsPure(t *testing.T) {
	ts := &liqpay.TransactionStatus{Status: liqpay.StatusSuccess, Amount: f64(19.99), Currency: "UAH"}
	cart := uahCart(1999)

	first := Reconcile(ts, cart)
	second := Reconcile(ts, cart)
	if first != second {
		t.Errorf("verdicts differ: %+v vs %+v", first, second)
	}
	if ts.Status != liqpay.StatusSuccess || cart.TotalMinor != 1999 {
		t.Error("inputs were mutated")
	}
}
