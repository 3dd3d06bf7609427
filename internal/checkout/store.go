package checkout

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"liqgate/internal/common/database"
)

// PostgresRecordStore persists idempotency records in Postgres. Claim
// relies on the primary key over (request_path, cart_id) plus a FOR UPDATE
// read to serialize concurrent claimants on one row.
type PostgresRecordStore struct {
	db *database.DB
}

// NewPostgresRecordStore creates a Postgres-backed record store.
func NewPostgresRecordStore(db *database.DB) *PostgresRecordStore {
	return &PostgresRecordStore{db: db}
}

// WithTx runs fn in a read-committed transaction.
func (s *PostgresRecordStore) WithTx(ctx context.Context, fn func(q database.Querier) error) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(tx)
	})
}

// Claim inserts the record if absent and locks it either way. The second
// claimant for the same key blocks on the row lock until the first
// transaction finishes, then sees its committed status.
func (s *PostgresRecordStore) Claim(ctx context.Context, q database.Querier, requestPath, cartID string) (*Record, error) {
	_, err := q.Exec(ctx, `
		INSERT INTO idempotency_records (request_path, cart_id, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (request_path, cart_id) DO NOTHING`,
		requestPath, cartID, RecordPending,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting idempotency record: %w", err)
	}

	var rec Record
	err = q.QueryRow(ctx, `
		SELECT request_path, cart_id, status, response, created_at, updated_at
		FROM idempotency_records
		WHERE request_path = $1 AND cart_id = $2
		FOR UPDATE`,
		requestPath, cartID,
	).Scan(&rec.RequestPath, &rec.CartID, &rec.Status, &rec.Response, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("locking idempotency record: %w", err)
	}
	return &rec, nil
}

// MarkCompleted finalizes the record with the stored response.
func (s *PostgresRecordStore) MarkCompleted(ctx context.Context, q database.Querier, requestPath, cartID string, response []byte) error {
	return s.mark(ctx, q, requestPath, cartID, RecordCompleted, response)
}

// MarkFailed finalizes the record as a permanent failure.
func (s *PostgresRecordStore) MarkFailed(ctx context.Context, q database.Querier, requestPath, cartID string, response []byte) error {
	return s.mark(ctx, q, requestPath, cartID, RecordFailed, response)
}

func (s *PostgresRecordStore) mark(ctx context.Context, q database.Querier, requestPath, cartID string, status RecordStatus, response []byte) error {
	tag, err := q.Exec(ctx, `
		UPDATE idempotency_records
		SET status = $3, response = $4, updated_at = now()
		WHERE request_path = $1 AND cart_id = $2`,
		requestPath, cartID, status, response,
	)
	if err != nil {
		return fmt.Errorf("updating idempotency record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

// PostgresOrderStore reads and updates orders. Methods take a Querier so
// callers inside a completion transaction stay on that transaction.
type PostgresOrderStore struct{}

// NewPostgresOrderStore creates a Postgres-backed order store.
func NewPostgresOrderStore() *PostgresOrderStore {
	return &PostgresOrderStore{}
}

// GetByCartID returns the order completed for the cart, or ErrNotFound.
func (s *PostgresOrderStore) GetByCartID(ctx context.Context, q database.Querier, cartID string) (*Order, error) {
	return s.get(ctx, q, "cart_id", cartID)
}

// GetByID returns the order by its identifier, or ErrNotFound.
func (s *PostgresOrderStore) GetByID(ctx context.Context, q database.Querier, orderID string) (*Order, error) {
	return s.get(ctx, q, "id", orderID)
}

func (s *PostgresOrderStore) get(ctx context.Context, q database.Querier, column, value string) (*Order, error) {
	var o Order
	err := q.QueryRow(ctx, fmt.Sprintf(`
		SELECT id, cart_id, provider_id, payment_captured, created_at
		FROM orders
		WHERE %s = $1`, column),
		value,
	).Scan(&o.ID, &o.CartID, &o.ProviderID, &o.PaymentCaptured, &o.CreatedAt)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("querying order: %w", err)
	}
	return &o, nil
}

// CapturePayment marks the order's payment captured.
func (s *PostgresOrderStore) CapturePayment(ctx context.Context, q database.Querier, orderID string) error {
	tag, err := q.Exec(ctx, `
		UPDATE orders
		SET payment_captured = true
		WHERE id = $1`,
		orderID,
	)
	if err != nil {
		return fmt.Errorf("capturing order payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

// PostgresCartReader fetches cart snapshots with their region tax context.
type PostgresCartReader struct {
	db *database.DB
}

// NewPostgresCartReader creates a Postgres-backed cart reader.
func NewPostgresCartReader(db *database.DB) *PostgresCartReader {
	return &PostgresCartReader{db: db}
}

// RetrieveWithTotals loads the cart's current totals. It always hits the
// database so reconciliation sees the latest state.
func (r *PostgresCartReader) RetrieveWithTotals(ctx context.Context, cartID string) (*CartSnapshot, error) {
	var cart CartSnapshot
	err := r.db.QueryRow(ctx, `
		SELECT id, total_minor, currency_code, region_country, region_tax_rate
		FROM carts
		WHERE id = $1`,
		cartID,
	).Scan(&cart.CartID, &cart.TotalMinor, &cart.CurrencyCode, &cart.RegionTax.CountryCode, &cart.RegionTax.TaxRate)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("querying cart: %w", err)
	}
	return &cart, nil
}
