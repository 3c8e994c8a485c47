package pos

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/danisworo/pos-engine/internal/gateway"
)

// RetryManager reissues gateway payment tokens for failed or expired
// attempts, bounded by a configured maximum per order.
type RetryManager struct {
	Orders  OrderStore
	Gateway gateway.Client
	Sink    EventSink
	Log     zerolog.Logger

	FinishURL   string
	TokenExpiry time.Duration
	MaxRetries  int
}

type RetryResult struct {
	OrderID      string `json:"order_id"`
	PaymentToken string `json:"payment_token"`
	RedirectURL  string `json:"redirect_url"`
	Attempt      int    `json:"attempt"`
	Remaining    int    `json:"remaining"`
}

func (m *RetryManager) Retry(ctx context.Context, orderID string) (*RetryResult, error) {
	// Re-check current state first; a concurrent webhook may have already
	// resolved the order.
	o, err := m.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	switch {
	case o.PaymentStatus == PaymentCompleted:
		return nil, ErrAlreadyPaid
	case o.Status == OrderCompleted || o.Status == OrderRefunded:
		return nil, ErrOrderClosed
	case o.PaymentRetries >= m.MaxRetries:
		return nil, ErrRetryExhausted
	}

	// Claim the attempt before talking to the gateway. The store enforces
	// the bound inside its UPDATE, so two concurrent retries cannot both
	// pass the check above and overshoot the budget, and a claim that loses
	// to a completing webhook never issues a token.
	attempt, err := m.Orders.MarkPaymentRetried(ctx, orderID, m.MaxRetries)
	if err != nil {
		return nil, err
	}

	tok, err := m.Gateway.CreateToken(ctx, gateway.TokenRequest{
		OrderNumber:   o.OrderNumber,
		GrossCents:    o.TotalCents,
		CustomerName:  o.CustomerName,
		CustomerPhone: o.CustomerPhone,
		FinishURL:     m.FinishURL,
		Expiry:        m.TokenExpiry,
	})
	if err != nil {
		// The claimed attempt stays consumed; compensate the restored
		// pending state so the order is not stranded without a token.
		if cerr := m.Orders.CompensateTokenFailure(ctx, orderID); cerr != nil {
			m.Log.Error().Err(cerr).
				Str("order_id", orderID).
				Msg("compensation after failed token reissue")
		}
		return nil, fmt.Errorf("reissue payment token for %s: %w", o.OrderNumber, err)
	}

	m.Log.Info().
		Str("order_id", orderID).
		Int("attempt", attempt).
		Int("max", m.MaxRetries).
		Msg("payment token reissued")
	m.Sink.Emit(ctx, EventOrderUpdated, o.ID, OrderUpdatedPayload{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		Status:        OrderPendingPayment,
		PaymentStatus: PaymentPending,
	})

	return &RetryResult{
		OrderID:      o.ID,
		PaymentToken: tok.Token,
		RedirectURL:  tok.RedirectURL,
		Attempt:      attempt,
		Remaining:    m.MaxRetries - attempt,
	}, nil
}
