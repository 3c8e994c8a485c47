package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/danisworo/pos-engine/internal/pos"
)

// mutateTx applies one ledger movement inside the caller's transaction. The
// product row is locked, the stock cache updated and the log entry appended
// together; never one without the other. Deductions clamp at zero unless the
// mutation explicitly allows negative stock.
func (s *Store) mutateTx(ctx context.Context, tx pgx.Tx, m pos.Mutation) (*pos.MutationResult, error) {
	var (
		stock     int
		threshold int
		name      string
	)
	err := tx.QueryRow(ctx,
		`SELECT stock, low_stock_threshold, name FROM products WHERE id=$1 FOR UPDATE`,
		m.ProductID).Scan(&stock, &threshold, &name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", pos.ErrProductNotFound, m.ProductID)
	}
	if err != nil {
		return nil, err
	}

	delta := m.Delta
	newStock := stock + delta
	var alerts []pos.StockAlert
	if newStock < 0 && !m.AllowNegative {
		// Payment already moved money; rejecting is not an option here.
		alerts = append(alerts, pos.StockAlert{
			ProductID:   m.ProductID,
			ProductName: name,
			Kind:        pos.AlertOversell,
			Stock:       0,
			Threshold:   threshold,
			ReferenceID: m.ReferenceID,
		})
		delta = -stock
		newStock = 0
	}

	if _, err := tx.Exec(ctx,
		`UPDATE products SET stock=$2, updated_at=now() WHERE id=$1`,
		m.ProductID, newStock); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO inventory_log
			(id, product_id, movement, quantity_delta, previous_stock, new_stock,
			 reason, reference_type, reference_id, actor_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		uuid.NewString(), m.ProductID, m.Movement, delta, stock, newStock,
		m.Reason, m.ReferenceType, m.ReferenceID, m.ActorID); err != nil {
		return nil, err
	}

	if len(alerts) == 0 && delta < 0 {
		switch {
		case newStock == 0 && stock > 0:
			alerts = append(alerts, pos.StockAlert{
				ProductID: m.ProductID, ProductName: name,
				Kind: pos.AlertOutOfStock, Stock: newStock, Threshold: threshold,
				ReferenceID: m.ReferenceID,
			})
		case newStock <= threshold && stock > threshold:
			alerts = append(alerts, pos.StockAlert{
				ProductID: m.ProductID, ProductName: name,
				Kind: pos.AlertLowStock, Stock: newStock, Threshold: threshold,
				ReferenceID: m.ReferenceID,
			})
		}
	}

	return &pos.MutationResult{PreviousStock: stock, NewStock: newStock, Alerts: alerts}, nil
}

// Mutate runs one ledger movement in its own transaction.
func (s *Store) Mutate(ctx context.Context, m pos.Mutation) (*pos.MutationResult, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	res, err := s.mutateTx(ctx, tx, m)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return res, nil
}

// CheckAvailability is a pure read, not a reservation: a later Mutate
// re-validates.
func (s *Store) CheckAvailability(ctx context.Context, productID string, qty int) (bool, int, error) {
	var (
		stock   int
		tracked bool
	)
	err := s.DB.QueryRow(ctx,
		`SELECT stock, track_inventory FROM products WHERE id=$1`, productID).
		Scan(&stock, &tracked)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, 0, fmt.Errorf("%w: %s", pos.ErrProductNotFound, productID)
	}
	if err != nil {
		return false, 0, err
	}
	if !tracked {
		return true, stock, nil
	}
	return stock >= qty, stock, nil
}

func (s *Store) CheckBulkAvailability(ctx context.Context, items []pos.ItemQuantity) ([]pos.StockShortage, error) {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	rows, err := s.DB.Query(ctx,
		`SELECT id, stock, track_inventory FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type stockRow struct {
		stock   int
		tracked bool
	}
	byID := make(map[string]stockRow, len(items))
	for rows.Next() {
		var (
			id string
			r  stockRow
		)
		if err := rows.Scan(&id, &r.stock, &r.tracked); err != nil {
			return nil, err
		}
		byID[id] = r
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var shortages []pos.StockShortage
	for _, it := range items {
		r, ok := byID[it.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", pos.ErrProductNotFound, it.ProductID)
		}
		if r.tracked && r.stock < it.Quantity {
			shortages = append(shortages, pos.StockShortage{
				ProductID: it.ProductID,
				Requested: it.Quantity,
				Available: r.stock,
			})
		}
	}
	return shortages, nil
}

// deductOrderItems moves stock out for every tracked item of an order.
func (s *Store) deductOrderItems(ctx context.Context, tx pgx.Tx, orderID, reason string) ([]pos.StockAlert, error) {
	rows, err := tx.Query(ctx, `
		SELECT oi.product_id, oi.quantity
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1 AND p.track_inventory`, orderID)
	if err != nil {
		return nil, err
	}
	type line struct {
		productID string
		qty       int
	}
	var lines []line
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.productID, &l.qty); err != nil {
			rows.Close()
			return nil, err
		}
		lines = append(lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var alerts []pos.StockAlert
	for _, l := range lines {
		res, err := s.mutateTx(ctx, tx, pos.Mutation{
			ProductID:     l.productID,
			Delta:         -l.qty,
			Movement:      pos.MovementOut,
			Reason:        reason,
			ReferenceType: "ORDER",
			ReferenceID:   orderID,
			ActorID:       "system",
		})
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, res.Alerts...)
	}
	return alerts, nil
}

// hasDeduction reports whether an OUT movement was already recorded against
// the order. This is the per-order at-most-once guard for deductions.
func (s *Store) hasDeduction(ctx context.Context, tx pgx.Tx, orderID string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM inventory_log
			WHERE reference_type = 'ORDER' AND reference_id = $1 AND movement = 'OUT'
		)`, orderID).Scan(&exists)
	return exists, err
}
