package pos

import (
	"context"
	"encoding/json"
	"time"
)

const (
	EventOrderCreated     = "order:created"
	EventOrderUpdated     = "order:updated"
	EventPaymentCompleted = "payment:completed"
	EventStockAlert       = "stock:alert"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID         string        `json:"order_id"`
	OrderNumber     string        `json:"order_number"`
	OrderType       OrderType     `json:"order_type"`
	Status          OrderStatus   `json:"status"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	TotalCents      int64         `json:"total_cents"`
	RequiresPayment bool          `json:"requires_payment"`
}

type OrderUpdatedPayload struct {
	OrderID       string        `json:"order_id"`
	OrderNumber   string        `json:"order_number"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
}

type PaymentCompletedPayload struct {
	OrderID              string    `json:"order_id"`
	OrderNumber          string    `json:"order_number"`
	GatewayTransactionID string    `json:"gateway_transaction_id"`
	AmountCents          int64     `json:"amount_cents"`
	PaidAt               time.Time `json:"paid_at"`
}

type StockAlertPayload struct {
	ProductID   string         `json:"product_id"`
	ProductName string         `json:"product_name"`
	Kind        StockAlertKind `json:"kind"`
	Stock       int            `json:"stock"`
	Threshold   int            `json:"threshold"`
	ReferenceID string         `json:"reference_id,omitempty"`
}

// EventSink receives fire-and-forget notifications for the external realtime
// broadcaster. Implementations must never block or fail the caller.
type EventSink interface {
	Emit(ctx context.Context, event, key string, payload any)
}

type traceIDKey struct{}

// WithTraceID tags the context so emitted envelopes carry the request id.
func WithTraceID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, traceIDKey{}, id)
}

// TraceIDFromContext returns the tagged request id, if any.
func TraceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey{}).(string)
	return id
}

// NoopSink discards every event.
type NoopSink struct{}

func (NoopSink) Emit(context.Context, string, string, any) {}
