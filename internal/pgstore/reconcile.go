package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/danisworo/pos-engine/internal/pos"
)

func kindFor(status pos.PaymentStatus) pos.TransactionKind {
	switch status {
	case pos.PaymentRefunded:
		return pos.KindRefund
	case pos.PaymentPartiallyRefunded:
		return pos.KindPartialRefund
	default:
		return pos.KindPayment
	}
}

// ApplyGatewayUpdate is the single atomic unit of webhook reconciliation.
// The order row lock serializes concurrent deliveries; the unique index on
// (order_id, gateway_transaction_id) backs the idempotency lookup; the
// deferred inventory deduction commits with the same transaction.
func (s *Store) ApplyGatewayUpdate(ctx context.Context, upd pos.GatewayUpdate) (*pos.ReconcileOutcome, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Soft-deleted orders stay visible here. Soft delete marks a local
	// compensation (token failure or the stale-pending sweep), never a
	// gateway decision, and a late completing webhook must still resolve.
	o, err := scanOrder(tx.QueryRow(ctx,
		`SELECT `+orderCols+` FROM orders WHERE order_number=$1 FOR UPDATE`,
		upd.OrderNumber))
	if err != nil {
		return nil, err
	}

	tr := upd.Transition
	now := time.Now().UTC()
	var paidAt, failedAt, expiredAt *time.Time
	switch tr.Payment {
	case pos.PaymentCompleted:
		t := upd.EventAt
		paidAt = &t
	case pos.PaymentFailed:
		failedAt = &now
	case pos.PaymentExpired:
		expiredAt = &now
	}

	repeat, err := s.upsertPayment(ctx, tx, o, upd, paidAt, failedAt, expiredAt)
	if err != nil {
		return nil, err
	}

	// Order state moves forward only; a stale notification may update the
	// payment snapshot above but never the order row. The one exception is a
	// locally compensated order whose payment completes upstream after all:
	// the cancellation was synthesized here, not reported by the gateway, so
	// the completing update resurrects the order.
	wasCompleted := o.PaymentStatus == pos.PaymentCompleted
	resurrect := o.Deleted && tr.Payment == pos.PaymentCompleted
	newStatus := o.Status
	switch {
	case resurrect:
		newStatus = tr.Order
	case tr.KeepOrder || tr.Order == o.Status:
	case pos.PaymentRegresses(o.PaymentStatus, tr.Payment):
		// A failure-class notification behind the recorded payment state is
		// stale; it must not cancel an order whose payment already settled.
		s.Log.Debug().
			Str("order_number", o.OrderNumber).
			Str("payment_status", string(o.PaymentStatus)).
			Str("incoming", string(tr.Payment)).
			Msg("stale notification, order status kept")
	case pos.CanTransition(o.Status, tr.Order):
		newStatus = tr.Order
	default:
		s.Log.Debug().
			Str("order_number", o.OrderNumber).
			Str("from", string(o.Status)).
			Str("to", string(tr.Order)).
			Msg("out-of-order notification, order status kept")
	}
	newPayment := o.PaymentStatus
	if pos.PaymentAdvances(o.PaymentStatus, tr.Payment) {
		newPayment = tr.Payment
	}
	completedNow := !wasCompleted && newPayment == pos.PaymentCompleted

	if newStatus != o.Status || newPayment != o.PaymentStatus || resurrect {
		var orderPaidAt *time.Time
		if o.PaidAt != nil {
			orderPaidAt = o.PaidAt
		} else if tr.MarkPaid && completedNow {
			orderPaidAt = paidAt
		}
		var cancelledAt *time.Time
		if resurrect {
			cancelledAt = nil
		} else if o.CancelledAt != nil {
			cancelledAt = o.CancelledAt
		} else if newStatus == pos.OrderCancelled {
			cancelledAt = &now
		}
		deleted := o.Deleted && !resurrect
		if _, err := tx.Exec(ctx, `
			UPDATE orders
			SET status=$2, payment_status=$3, paid_at=$4, cancelled_at=$5,
			    deleted=$6, updated_at=$7
			WHERE id=$1`,
			o.ID, newStatus, newPayment, orderPaidAt, cancelledAt, deleted, now); err != nil {
			return nil, err
		}
		o.Status = newStatus
		o.PaymentStatus = newPayment
		o.PaidAt = orderPaidAt
		o.CancelledAt = cancelledAt
		o.Deleted = deleted
		o.UpdatedAt = now
	}

	out := &pos.ReconcileOutcome{Order: o, Repeat: repeat, CompletedNow: completedNow}

	// Deferred deduction: first delivery of a completing notification only,
	// and never twice per order no matter which transaction id completes.
	if completedNow && !repeat {
		deducted, err := s.hasDeduction(ctx, tx, o.ID)
		if err != nil {
			return nil, err
		}
		if !deducted {
			alerts, err := s.deductOrderItems(ctx, tx, o.ID, "payment confirmed")
			if err != nil {
				return nil, err
			}
			out.Deducted = true
			out.Alerts = alerts
			for _, a := range alerts {
				if a.Kind == pos.AlertOversell {
					s.Log.Warn().
						Str("order_number", o.OrderNumber).
						Str("product_id", a.ProductID).
						Msg("oversell on confirmed payment, stock clamped at zero")
				}
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// upsertPayment records the gateway transaction attempt. A known transaction
// id is a repeat delivery: its snapshot is refreshed. A new id first claims
// the open placeholder row, else inserts a fresh attempt row.
func (s *Store) upsertPayment(ctx context.Context, tx pgx.Tx, o *pos.Order, upd pos.GatewayUpdate, paidAt, failedAt, expiredAt *time.Time) (bool, error) {
	var txID *string
	if upd.TransactionID != "" {
		txID = &upd.TransactionID
	}

	if txID != nil {
		var paymentID string
		err := tx.QueryRow(ctx,
			`SELECT id FROM payments WHERE order_id=$1 AND gateway_transaction_id=$2`,
			o.ID, *txID).Scan(&paymentID)
		switch {
		case err == nil:
			_, err = tx.Exec(ctx, `
				UPDATE payments
				SET status=$2, gateway_status=$3,
				    paid_at=COALESCE(paid_at, $4),
				    failed_at=COALESCE(failed_at, $5),
				    expired_at=COALESCE(expired_at, $6),
				    updated_at=now()
				WHERE id=$1`,
				paymentID, upd.Transition.Payment, upd.RawStatus,
				paidAt, failedAt, expiredAt)
			return true, err
		case !errors.Is(err, pgx.ErrNoRows):
			return false, err
		}
	}

	tr := upd.Transition
	var claimed string
	err := tx.QueryRow(ctx, `
		UPDATE payments
		SET gateway_transaction_id=$2, status=$3, kind=$4, gateway=$5,
		    gateway_status=$6, amount_cents=$7,
		    paid_at=$8, failed_at=$9, expired_at=$10, updated_at=now()
		WHERE id = (
			SELECT id FROM payments
			WHERE order_id=$1 AND gateway_transaction_id IS NULL
			ORDER BY created_at DESC LIMIT 1
		)
		RETURNING id`,
		o.ID, txID, tr.Payment, kindFor(tr.Payment), upd.GatewayName,
		upd.RawStatus, amountOr(upd.AmountCents, o.TotalCents),
		paidAt, failedAt, expiredAt).Scan(&claimed)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO payments
			(id, order_id, method, amount_cents, status, kind, gateway,
			 gateway_transaction_id, gateway_status, paid_at, failed_at, expired_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		uuid.NewString(), o.ID, o.PaymentMethod,
		amountOr(upd.AmountCents, o.TotalCents), tr.Payment, kindFor(tr.Payment),
		upd.GatewayName, txID, upd.RawStatus, paidAt, failedAt, expiredAt)
	return false, err
}

func amountOr(v, def int64) int64 {
	if v > 0 {
		return v
	}
	return def
}
