package checkout

import (
	"fmt"

	"liqgate/internal/common/money"
	"liqgate/internal/providers/liqpay"
)

// Outcome classifies the result of reconciling a provider transaction
// against a cart.
type Outcome int

const (
	// OutcomePending means the transaction has not reached a decision yet.
	// Unknown statuses land here, never on authorized.
	OutcomePending Outcome = iota
	// OutcomeAuthorized means the charge matches the cart exactly.
	OutcomeAuthorized
	// OutcomeRejected means the transaction failed or the payload was
	// defective.
	OutcomeRejected
	// OutcomeRefundRequired means the charge succeeded but does not match
	// the cart; the reported amount must be refunded and the session
	// rejected as one policy decision.
	OutcomeRefundRequired
)

// Verdict is the reconciliation decision. It is never persisted; callers
// fold it into session state.
type Verdict struct {
	Outcome Outcome
	Reason  string
	// RefundAmount is the provider-reported major-unit amount to refund
	// when Outcome is OutcomeRefundRequired. The refund targets what was
	// actually charged, not what the cart expected.
	RefundAmount float64
}

// Reconcile compares a provider-reported transaction with the cart's
// expected totals and decides the outcome. It is a pure function: same
// inputs, same verdict, no side effects.
func Reconcile(ts *liqpay.TransactionStatus, cart *CartSnapshot) Verdict {
	if ts.Status.Class() == liqpay.ClassFailure || ts.ErrCode != "" {
		reason := fmt.Sprintf("transaction failed with status %q", ts.Status)
		if ts.ErrCode != "" {
			reason = fmt.Sprintf("provider error %s: %s", ts.ErrCode, ts.ErrDescription)
		}
		return Verdict{Outcome: OutcomeRejected, Reason: reason}
	}

	if ts.Status.Class() != liqpay.ClassSuccess {
		return Verdict{Outcome: OutcomePending, Reason: ts.Status.Describe()}
	}

	// A success record without amount or currency is a defective payload,
	// not a crash and never an authorization.
	if ts.Amount == nil || ts.Currency == "" {
		return Verdict{Outcome: OutcomeRejected, Reason: "success notification missing amount or currency"}
	}

	expected := money.NormalizeMinor(cart.TotalMinor, cart.CurrencyCode)
	amountValid := expected == *ts.Amount
	currencyValid := money.SameCurrency(cart.CurrencyCode, ts.Currency)

	if amountValid && currencyValid {
		return Verdict{Outcome: OutcomeAuthorized}
	}

	return Verdict{
		Outcome: OutcomeRefundRequired,
		Reason: fmt.Sprintf("expected %.2f %s, provider reported %.2f %s",
			expected, cart.CurrencyCode, *ts.Amount, ts.Currency),
		RefundAmount: *ts.Amount,
	}
}
