// Package checkout owns the reconciliation of provider-reported
// transactions against cart totals and the exactly-once completion of
// orders triggered by asynchronous notifications.
package checkout

import (
	"context"
	"time"

	"liqgate/internal/common/database"
)

// CartSnapshot is a read-only view of a cart's expected totals, fetched
// fresh for every reconciliation. It is never cached across calls: the
// comparison must reflect the latest cart state.
type CartSnapshot struct {
	CartID       string
	TotalMinor   int64
	CurrencyCode string
	RegionTax    RegionTax
}

// RegionTax carries the tax context of the cart's region.
type RegionTax struct {
	CountryCode string
	TaxRate     float64
}

// Order is the completed order tied to a cart.
type Order struct {
	ID              string
	CartID          string
	ProviderID      string
	PaymentCaptured bool
	CreatedAt       time.Time
}

// CartReader retrieves cart snapshots from the order system.
type CartReader interface {
	RetrieveWithTotals(ctx context.Context, cartID string) (*CartSnapshot, error)
}

// OrderReader looks up orders. Every call rides the supplied Querier so
// reads inside a completion transaction observe and hold that
// transaction's locks.
type OrderReader interface {
	GetByCartID(ctx context.Context, q database.Querier, cartID string) (*Order, error)
}

// OrderService extends OrderReader with the operations the capture
// subscriber needs.
type OrderService interface {
	OrderReader
	GetByID(ctx context.Context, q database.Querier, orderID string) (*Order, error)
	CapturePayment(ctx context.Context, q database.Querier, orderID string) error
}

// CartCompleter runs the order-completion workflow for a cart inside the
// caller's transaction.
type CartCompleter interface {
	Complete(ctx context.Context, q database.Querier, cartID string) ([]byte, error)
}
