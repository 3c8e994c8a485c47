package pos

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/danisworo/pos-engine/internal/gateway"
)

// Notification is the raw inbound webhook body. Everything in it is hostile
// until the signature checks out and the status is re-verified upstream.
type Notification struct {
	OrderNumber     string `json:"order_id"`
	StatusCode      string `json:"status_code"`
	GrossAmount     string `json:"gross_amount"`
	Status          string `json:"transaction_status"`
	FraudFlag       string `json:"fraud_status"`
	TransactionID   string `json:"transaction_id"`
	PaymentType     string `json:"payment_type"`
	SignatureKey    string `json:"signature_key"`
	TransactionTime string `json:"transaction_time"`
	SettlementTime  string `json:"settlement_time"`
}

// Reconciler authenticates, re-verifies and applies gateway notifications
// idempotently. Handle is safe to re-run for the same notification; the
// webhook endpoint returns 5xx on transient faults precisely so the gateway
// redelivers.
type Reconciler struct {
	Store   ReconcileStore
	Gateway gateway.Client
	Sink    EventSink
	Log     zerolog.Logger

	GatewayName string
	ServerKey   string
	// SkipVerify bypasses signature verification. Only honored outside
	// production; the constructor in cmd/api refuses it otherwise.
	SkipVerify bool
}

func (r *Reconciler) Handle(ctx context.Context, n Notification) (*ReconcileOutcome, error) {
	if n.OrderNumber == "" || n.Status == "" {
		return nil, ErrMalformedNotification
	}

	if !r.SkipVerify {
		expected := gateway.Signature(n.OrderNumber, n.StatusCode, n.GrossAmount, r.ServerKey)
		if n.SignatureKey != expected {
			return nil, ErrBadSignature
		}
	}

	upd := r.verifiedUpdate(ctx, n)

	tr, known := ResolveTransition(upd.RawStatus, upd.FraudFlag)
	if !known {
		r.Log.Warn().
			Str("order_number", upd.OrderNumber).
			Str("gateway_status", upd.RawStatus).
			Msg("unrecognized gateway status, recording as processing")
		tr = Transition{Payment: PaymentProcessing, KeepOrder: true}
	}
	upd.Transition = tr

	out, err := r.Store.ApplyGatewayUpdate(ctx, upd)
	if err != nil {
		return nil, err
	}

	if out.CompletedNow {
		paidAt := time.Now().UTC()
		if out.Order.PaidAt != nil {
			paidAt = *out.Order.PaidAt
		}
		r.Sink.Emit(ctx, EventPaymentCompleted, out.Order.ID, PaymentCompletedPayload{
			OrderID:              out.Order.ID,
			OrderNumber:          out.Order.OrderNumber,
			GatewayTransactionID: upd.TransactionID,
			AmountCents:          out.Order.TotalCents,
			PaidAt:               paidAt,
		})
	}
	r.Sink.Emit(ctx, EventOrderUpdated, out.Order.ID, OrderUpdatedPayload{
		OrderID:       out.Order.ID,
		OrderNumber:   out.Order.OrderNumber,
		Status:        out.Order.Status,
		PaymentStatus: out.Order.PaymentStatus,
	})
	for _, a := range out.Alerts {
		r.Sink.Emit(ctx, EventStockAlert, a.ProductID, StockAlertPayload{
			ProductID:   a.ProductID,
			ProductName: a.ProductName,
			Kind:        a.Kind,
			Stock:       a.Stock,
			Threshold:   a.Threshold,
			ReferenceID: out.Order.ID,
		})
	}
	return out, nil
}

// verifiedUpdate re-queries the authoritative status from the gateway as a
// defense against stale or forged payloads. When the re-query itself fails,
// the notification's own fields are used rather than blocking processing.
func (r *Reconciler) verifiedUpdate(ctx context.Context, n Notification) GatewayUpdate {
	upd := GatewayUpdate{
		OrderNumber:   n.OrderNumber,
		TransactionID: n.TransactionID,
		GatewayName:   r.GatewayName,
		RawStatus:     n.Status,
		FraudFlag:     n.FraudFlag,
		AmountCents:   gateway.ParseGrossCents(n.GrossAmount),
		EventAt:       time.Now().UTC(),
	}

	st, err := r.Gateway.QueryStatus(ctx, n.OrderNumber)
	if err != nil {
		r.Log.Warn().Err(err).
			Str("order_number", n.OrderNumber).
			Msg("gateway status re-query failed, falling back to notification payload")
		return upd
	}

	upd.RawStatus = st.Status
	upd.FraudFlag = st.FraudFlag
	if st.TransactionID != "" {
		upd.TransactionID = st.TransactionID
	}
	if st.GrossCents > 0 {
		upd.AmountCents = st.GrossCents
	}
	if !st.TransactionAt.IsZero() {
		upd.EventAt = st.TransactionAt
	}
	return upd
}

// WebhookAck is the 200 response body for a processed notification.
type WebhookAck struct {
	Success bool `json:"success"`
	Order   struct {
		ID            string        `json:"id"`
		OrderNumber   string        `json:"orderNumber"`
		Status        OrderStatus   `json:"status"`
		PaymentStatus PaymentStatus `json:"paymentStatus"`
	} `json:"order"`
}

func (o *ReconcileOutcome) Ack() WebhookAck {
	var ack WebhookAck
	ack.Success = true
	ack.Order.ID = o.Order.ID
	ack.Order.OrderNumber = o.Order.OrderNumber
	ack.Order.Status = o.Order.Status
	ack.Order.PaymentStatus = o.Order.PaymentStatus
	return ack
}
