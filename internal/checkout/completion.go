package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"liqgate/internal/common/database"
)

// RequestPathWebhook scopes idempotency records created by the webhook
// completion flow.
const RequestPathWebhook = "liqpay/webhook"

// RecordStatus is the state of an idempotency record.
type RecordStatus string

const (
	RecordPending   RecordStatus = "pending"
	RecordCompleted RecordStatus = "completed"
	RecordFailed    RecordStatus = "failed"
)

// Record is one idempotency record, keyed by (request path, cart id).
type Record struct {
	RequestPath string
	CartID      string
	Status      RecordStatus
	Response    []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RecordStore persists idempotency records. Claim must leave the claimed
// row locked for the remainder of the transaction so concurrent claimants
// serialize on it.
type RecordStore interface {
	WithTx(ctx context.Context, fn func(q database.Querier) error) error
	Claim(ctx context.Context, q database.Querier, requestPath, cartID string) (*Record, error)
	MarkCompleted(ctx context.Context, q database.Querier, requestPath, cartID string, response []byte) error
	MarkFailed(ctx context.Context, q database.Querier, requestPath, cartID string, response []byte) error
}

// CompletionFunc runs the order-completion side effect on the supplied
// transaction. Its result is recorded and replayed on later deliveries.
type CompletionFunc func(ctx context.Context, q database.Querier) ([]byte, error)

// CompletionStatus tells the caller what CompleteOnce did.
type CompletionStatus int

const (
	// CompletionExecuted means the side effect ran in this call.
	CompletionExecuted CompletionStatus = iota
	// CompletionReplayed means a finished record already existed and its
	// response was returned without re-running the side effect.
	CompletionReplayed
	// CompletionSkipped means the order already exists, so no record was
	// created and no side effect ran.
	CompletionSkipped
	// CompletionFailed means the side effect was rejected by a business
	// rule; the failure is recorded permanently and will replay.
	CompletionFailed
)

// CompletionResult is the outcome of one CompleteOnce call.
type CompletionResult struct {
	Status   CompletionStatus
	Response []byte
}

// CompletionRejectedError marks a business-rule rejection of the
// completion. It records a permanent failure; transient errors must not be
// wrapped in it.
type CompletionRejectedError struct {
	Code    string
	Message string
}

func (e *CompletionRejectedError) Error() string {
	return fmt.Sprintf("completion rejected (%s): %s", e.Code, e.Message)
}

// Coordinator executes a completion side effect exactly once per
// (request path, cart id), surviving redeliveries, retries, and concurrent
// claimants. The record row and the side effect commit atomically: either
// both land or neither does.
type Coordinator struct {
	records RecordStore
	orders  OrderReader
	pool    database.Querier
	path    string
	logger  *slog.Logger
}

// NewCoordinator creates a completion coordinator scoped to one request
// path.
func NewCoordinator(records RecordStore, orders OrderReader, pool database.Querier, path string, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		records: records,
		orders:  orders,
		pool:    pool,
		path:    path,
		logger:  logger,
	}
}

// CompleteOnce claims the idempotency record for the cart and runs fn at
// most once. A redelivery after a committed run replays the stored
// response. If the order already exists before any record does, nothing
// runs and nothing is written. Transient errors roll the whole attempt
// back so the next delivery starts a fresh cycle; a CompletionRejectedError
// from fn is persisted as a permanent failure instead.
func (c *Coordinator) CompleteOnce(ctx context.Context, cartID string, fn CompletionFunc) (*CompletionResult, error) {
	// Fast path: if the order is already there, the work is done. No
	// record is created for it.
	if _, err := c.orders.GetByCartID(ctx, c.pool, cartID); err == nil {
		c.logger.Info("order already exists, skipping completion", "cart_id", cartID)
		return &CompletionResult{Status: CompletionSkipped}, nil
	} else if !database.IsNotFound(err) {
		return nil, fmt.Errorf("checking order for cart %s: %w", cartID, err)
	}

	var (
		result   *CompletionResult
		rejected *CompletionRejectedError
	)

	err := c.records.WithTx(ctx, func(q database.Querier) error {
		rec, err := c.records.Claim(ctx, q, c.path, cartID)
		if err != nil {
			return fmt.Errorf("claiming record: %w", err)
		}

		switch rec.Status {
		case RecordCompleted, RecordFailed:
			result = &CompletionResult{Status: CompletionReplayed, Response: rec.Response}
			return nil
		}

		// Re-check under the row lock: a concurrent synchronous checkout
		// may have created the order after the fast path ran.
		if _, err := c.orders.GetByCartID(ctx, q, cartID); err == nil {
			if err := c.records.MarkCompleted(ctx, q, c.path, cartID, nil); err != nil {
				return fmt.Errorf("marking record completed: %w", err)
			}
			result = &CompletionResult{Status: CompletionSkipped}
			return nil
		} else if !database.IsNotFound(err) {
			return fmt.Errorf("rechecking order for cart %s: %w", cartID, err)
		}

		response, err := fn(ctx, q)
		if err != nil {
			var cre *CompletionRejectedError
			if errors.As(err, &cre) {
				// Roll the side effects back; the permanent failure is
				// recorded in a separate transaction below.
				rejected = cre
				return err
			}
			return fmt.Errorf("running completion: %w", err)
		}

		if err := c.records.MarkCompleted(ctx, q, c.path, cartID, response); err != nil {
			return fmt.Errorf("marking record completed: %w", err)
		}
		result = &CompletionResult{Status: CompletionExecuted, Response: response}
		return nil
	})

	if rejected != nil {
		return c.recordRejection(ctx, cartID, rejected)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// recordRejection persists a permanent failure after the completion
// transaction rolled back. Later deliveries replay it instead of retrying.
// If a concurrent delivery finished the record between the rollback and
// this transaction, its committed outcome wins and is replayed as-is.
func (c *Coordinator) recordRejection(ctx context.Context, cartID string, cre *CompletionRejectedError) (*CompletionResult, error) {
	response := []byte(fmt.Sprintf(`{"code":%q,"message":%q}`, cre.Code, cre.Message))

	var settled *CompletionResult
	err := c.records.WithTx(ctx, func(q database.Querier) error {
		rec, err := c.records.Claim(ctx, q, c.path, cartID)
		if err != nil {
			return fmt.Errorf("claiming record: %w", err)
		}
		if rec.Status != RecordPending {
			settled = &CompletionResult{Status: CompletionReplayed, Response: rec.Response}
			return nil
		}
		return c.records.MarkFailed(ctx, q, c.path, cartID, response)
	})
	if err != nil {
		return nil, fmt.Errorf("recording rejection for cart %s: %w", cartID, err)
	}
	if settled != nil {
		return settled, nil
	}

	c.logger.Warn("completion rejected",
		"cart_id", cartID,
		"code", cre.Code,
		"message", cre.Message,
	)
	return &CompletionResult{Status: CompletionFailed, Response: response}, nil
}
