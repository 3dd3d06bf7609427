package checkout

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"

	"liqgate/internal/common/database"
)

// OrderCompleter converts a paid cart into an order. Complete runs inside
// the coordinator's transaction so the order row and the idempotency
// record commit together.
type OrderCompleter struct {
	carts CartReader
}

// NewOrderCompleter creates the order completion workflow.
func NewOrderCompleter(carts CartReader) *OrderCompleter {
	return &OrderCompleter{carts: carts}
}

// completedOrder is the response recorded on the idempotency record.
type completedOrder struct {
	OrderID string `json:"order_id"`
	CartID  string `json:"cart_id"`
}

// Complete creates the order for the cart. A missing cart is a business
// rule rejection: redelivering the event cannot make the cart appear.
func (c *OrderCompleter) Complete(ctx context.Context, q database.Querier, cartID string) ([]byte, error) {
	cart, err := c.carts.RetrieveWithTotals(ctx, cartID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, &CompletionRejectedError{
				Code:    "cart_not_found",
				Message: fmt.Sprintf("cart %s does not exist", cartID),
			}
		}
		return nil, fmt.Errorf("retrieving cart %s: %w", cartID, err)
	}

	orderID := ulid.Make().String()
	_, err = q.Exec(ctx, `
		INSERT INTO orders (id, cart_id, provider_id, payment_captured)
		VALUES ($1, $2, $3, false)`,
		orderID, cart.CartID, ProviderIDLiqPay,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, &CompletionRejectedError{
				Code:    "order_exists",
				Message: fmt.Sprintf("cart %s already has an order", cartID),
			}
		}
		return nil, fmt.Errorf("inserting order: %w", err)
	}

	return json.Marshal(completedOrder{OrderID: orderID, CartID: cart.CartID})
}
