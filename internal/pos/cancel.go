package pos

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/danisworo/pos-engine/internal/gateway"
)

// CancellationService cancels not-yet-paid orders, tolerating transactions
// the gateway no longer knows about.
type CancellationService struct {
	Orders  OrderStore
	Gateway gateway.Client
	Sink    EventSink
	Log     zerolog.Logger
}

func (s *CancellationService) Cancel(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus == PaymentCompleted {
		return nil, ErrAlreadyPaid
	}
	if o.Status.Terminal() {
		return nil, ErrOrderClosed
	}

	if o.PaymentMethod == MethodOnline {
		err := s.Gateway.CancelTransaction(ctx, o.OrderNumber)
		switch {
		case err == nil:
		case errors.Is(err, gateway.ErrTransactionNotFound):
			// Nothing to cancel upstream; equivalent to already-cancelled.
			s.Log.Info().Str("order_number", o.OrderNumber).
				Msg("gateway has no transaction to cancel")
		default:
			return nil, fmt.Errorf("cancel transaction for %s: %w", o.OrderNumber, err)
		}
	}

	// MarkCancelled takes a row lock and re-checks state, so a webhook that
	// completed the payment in the meantime wins.
	cancelled, err := s.Orders.MarkCancelled(ctx, orderID)
	if err != nil {
		return nil, err
	}

	s.Sink.Emit(ctx, EventOrderUpdated, cancelled.ID, OrderUpdatedPayload{
		OrderID:       cancelled.ID,
		OrderNumber:   cancelled.OrderNumber,
		Status:        cancelled.Status,
		PaymentStatus: cancelled.PaymentStatus,
	})
	return cancelled, nil
}
