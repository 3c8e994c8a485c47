// Package pgstore implements the pos store ports on PostgreSQL via pgx.
package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/danisworo/pos-engine/internal/pos"
)

type Store struct {
	DB  *pgxpool.Pool
	Log zerolog.Logger
}

func New(db *pgxpool.Pool, log zerolog.Logger) *Store {
	return &Store{DB: db, Log: log}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- catalog ---

const productCols = `id, sku, name, price_cents, stock, track_inventory,
	low_stock_threshold, available, created_at, updated_at`

func scanProduct(row pgx.Row) (pos.Product, error) {
	var p pos.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.PriceCents, &p.Stock,
		&p.TrackInventory, &p.LowStockThreshold, &p.Available,
		&p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) GetProducts(ctx context.Context, ids []string) (map[string]pos.Product, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT `+productCols+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]pos.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (s *Store) ListProducts(ctx context.Context) ([]pos.Product, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT `+productCols+` FROM products ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pos.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- orders ---

const orderCols = `id, order_number, order_type, status, payment_method,
	payment_status, customer_name, customer_phone, table_number,
	subtotal_cents, discount_cents, tax_cents, service_charge_cents,
	delivery_fee_cents, total_cents, payment_retries, deleted, created_by,
	paid_at, preparing_at, ready_at, completed_at, cancelled_at,
	created_at, updated_at`

func scanOrder(row pgx.Row) (*pos.Order, error) {
	var o pos.Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.OrderType, &o.Status,
		&o.PaymentMethod, &o.PaymentStatus, &o.CustomerName, &o.CustomerPhone,
		&o.TableNumber, &o.SubtotalCents, &o.DiscountCents, &o.TaxCents,
		&o.ServiceChargeCents, &o.DeliveryFeeCents, &o.TotalCents,
		&o.PaymentRetries, &o.Deleted, &o.CreatedBy,
		&o.PaidAt, &o.PreparingAt, &o.ReadyAt, &o.CompletedAt, &o.CancelledAt,
		&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pos.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateOrder persists the order, its items and the initial payment
// placeholder atomically. The order number is generated here: a date-scoped
// sequence candidate, verified by the unique constraint at insert, retried on
// collision a bounded number of times, then a timestamp+random fallback.
func (s *Store) CreateOrder(ctx context.Context, o *pos.Order, deductStock bool) ([]pos.StockAlert, error) {
	now := time.Now().UTC()

	var existing int
	if err := s.DB.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE order_number LIKE $1 || '%'`,
		pos.OrderNumberDatePrefix(now)).Scan(&existing); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < pos.OrderNumberAttempts; attempt++ {
		number := pos.FormatOrderNumber(now, existing+1+attempt)
		alerts, err := s.insertOrder(ctx, o, number, deductStock)
		if err == nil {
			return alerts, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
	}

	number := pos.FallbackOrderNumber(time.Now())
	alerts, err := s.insertOrder(ctx, o, number, deductStock)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, pos.ErrOrderNumberConflict
		}
		return nil, err
	}
	return alerts, nil
}

func (s *Store) insertOrder(ctx context.Context, o *pos.Order, number string, deductStock bool) ([]pos.StockAlert, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO orders
			(id, order_number, order_type, status, payment_method, payment_status,
			 customer_name, customer_phone, table_number,
			 subtotal_cents, discount_cents, tax_cents, service_charge_cents,
			 delivery_fee_cents, total_cents, created_by, paid_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		o.ID, number, o.OrderType, o.Status, o.PaymentMethod, o.PaymentStatus,
		o.CustomerName, o.CustomerPhone, o.TableNumber,
		o.SubtotalCents, o.DiscountCents, o.TaxCents, o.ServiceChargeCents,
		o.DeliveryFeeCents, o.TotalCents, o.CreatedBy, o.PaidAt); err != nil {
		return nil, err
	}

	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items
				(id, order_id, product_id, product_name, product_sku,
				 unit_price_cents, quantity, subtotal_cents, tax_cents, total_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			it.ID, o.ID, it.ProductID, it.ProductName, it.ProductSKU,
			it.UnitPriceCents, it.Quantity, it.SubtotalCents, it.TaxCents,
			it.TotalCents); err != nil {
			return nil, err
		}
	}

	// Initial payment placeholder; the gateway transaction id stays NULL
	// until a webhook claims it.
	if _, err := tx.Exec(ctx, `
		INSERT INTO payments (id, order_id, method, amount_cents, status, kind, paid_at)
		VALUES ($1,$2,$3,$4,$5,'PAYMENT',$6)`,
		uuid.NewString(), o.ID, o.PaymentMethod, o.TotalCents,
		o.PaymentStatus, o.PaidAt); err != nil {
		return nil, err
	}

	var alerts []pos.StockAlert
	if deductStock {
		alerts, err = s.deductOrderItems(ctx, tx, o.ID, "cash sale")
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	o.OrderNumber = number
	return alerts, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*pos.Order, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx,
		`SELECT `+orderCols+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return nil, err
	}
	return s.loadChildren(ctx, o)
}

func (s *Store) GetOrderByNumber(ctx context.Context, number string) (*pos.Order, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx,
		`SELECT `+orderCols+` FROM orders WHERE order_number=$1 AND NOT deleted`, number))
	if err != nil {
		return nil, err
	}
	return s.loadChildren(ctx, o)
}

func (s *Store) loadChildren(ctx context.Context, o *pos.Order) (*pos.Order, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, order_id, product_id, product_name, product_sku,
		       unit_price_cents, quantity, subtotal_cents, tax_cents, total_cents
		FROM order_items WHERE order_id=$1`, o.ID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var it pos.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName,
			&it.ProductSKU, &it.UnitPriceCents, &it.Quantity, &it.SubtotalCents,
			&it.TaxCents, &it.TotalCents); err != nil {
			rows.Close()
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := s.DB.Query(ctx, `
		SELECT id, order_id, method, amount_cents, status, kind, gateway,
		       gateway_transaction_id, gateway_status,
		       paid_at, failed_at, expired_at, created_at, updated_at
		FROM payments WHERE order_id=$1 ORDER BY created_at`, o.ID)
	if err != nil {
		return nil, err
	}
	defer prows.Close()
	for prows.Next() {
		var (
			p    pos.Payment
			txID *string
		)
		if err := prows.Scan(&p.ID, &p.OrderID, &p.Method, &p.AmountCents,
			&p.Status, &p.Kind, &p.Gateway, &txID, &p.GatewayStatus,
			&p.PaidAt, &p.FailedAt, &p.ExpiredAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if txID != nil {
			p.GatewayTransactionID = *txID
		}
		o.Payments = append(o.Payments, p)
	}
	return o, prows.Err()
}

// CompensateTokenFailure soft-deletes a still-pending order after token
// issuance failed; the one-step saga compensation.
func (s *Store) CompensateTokenFailure(ctx context.Context, orderID string) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `
		UPDATE orders
		SET status='CANCELLED', payment_status='FAILED', deleted=TRUE,
		    cancelled_at=now(), updated_at=now()
		WHERE id=$1 AND status='PENDING_PAYMENT'`, orderID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		// A webhook got there first; leave its result alone.
		return tx.Commit(ctx)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE payments SET status='FAILED', failed_at=now(), updated_at=now()
		WHERE order_id=$1 AND status='PENDING'`, orderID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// MarkPaymentRetried claims one retry attempt: it bumps the counter and
// restores the pending state for the reissued token, with a fresh payment
// placeholder for the webhook to claim. The retry bound is enforced inside
// the UPDATE so concurrent claims cannot push the counter past maxRetries.
func (s *Store) MarkPaymentRetried(ctx context.Context, orderID string, maxRetries int) (int, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var (
		retries    int
		totalCents int64
		method     pos.PaymentMethod
	)
	err = tx.QueryRow(ctx, `
		UPDATE orders
		SET payment_retries = payment_retries + 1,
		    status='PENDING_PAYMENT', payment_status='PENDING',
		    deleted=FALSE, cancelled_at=NULL, updated_at=now()
		WHERE id=$1 AND payment_status <> 'COMPLETED' AND payment_retries < $2
		RETURNING payment_retries, total_cents, payment_method`, orderID, maxRetries).
		Scan(&retries, &totalCents, &method)
	if errors.Is(err, pgx.ErrNoRows) {
		var status pos.PaymentStatus
		err = tx.QueryRow(ctx,
			`SELECT payment_status FROM orders WHERE id=$1`, orderID).Scan(&status)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return 0, pos.ErrOrderNotFound
		case err != nil:
			return 0, err
		case status == pos.PaymentCompleted:
			return 0, pos.ErrAlreadyPaid
		default:
			return 0, pos.ErrRetryExhausted
		}
	}
	if err != nil {
		return 0, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO payments (id, order_id, method, amount_cents, status, kind)
		VALUES ($1,$2,$3,$4,'PENDING','PAYMENT')`,
		uuid.NewString(), orderID, method, totalCents); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return retries, nil
}

// MarkCancelled re-checks state under a row lock before cancelling.
func (s *Store) MarkCancelled(ctx context.Context, orderID string) (*pos.Order, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	o, err := scanOrder(tx.QueryRow(ctx,
		`SELECT `+orderCols+` FROM orders WHERE id=$1 FOR UPDATE`, orderID))
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus == pos.PaymentCompleted {
		return nil, pos.ErrAlreadyPaid
	}
	if o.Status.Terminal() {
		return nil, pos.ErrOrderClosed
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `
		UPDATE orders
		SET status='CANCELLED', payment_status='FAILED',
		    cancelled_at=$2, updated_at=$2
		WHERE id=$1`, orderID, now); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE payments SET status='FAILED', failed_at=$2, updated_at=$2
		WHERE order_id=$1 AND status IN ('PENDING','PROCESSING')`, orderID, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	o.Status = pos.OrderCancelled
	o.PaymentStatus = pos.PaymentFailed
	o.CancelledAt = &now
	o.UpdatedAt = now
	return o, nil
}

// SweepStalePendingTokens compensates pending-payment orders older than the
// cutoff; mirrors CompensateTokenFailure for orders orphaned by a crash.
// Orders the gateway has already reported on are excluded: expiry for those
// is a gateway decision, and a locally swept one is resurrected by the
// reconciler only if a completing webhook arrives later.
func (s *Store) SweepStalePendingTokens(ctx context.Context, olderThan time.Duration) ([]string, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		UPDATE orders
		SET status='CANCELLED', payment_status='FAILED', deleted=TRUE,
		    cancelled_at=now(), updated_at=now()
		WHERE status='PENDING_PAYMENT' AND created_at < $1
		  AND NOT EXISTS (
			SELECT 1 FROM payments p
			WHERE p.order_id = orders.id AND p.gateway_transaction_id IS NOT NULL
		  )
		RETURNING id`, cutoff)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) > 0 {
		if _, err := tx.Exec(ctx, `
			UPDATE payments SET status='FAILED', failed_at=now(), updated_at=now()
			WHERE order_id = ANY($1) AND status='PENDING'`, ids); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}
