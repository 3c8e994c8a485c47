package pos

import (
	"context"
	"time"
)

// CatalogStore is the read side of the product catalog.
type CatalogStore interface {
	GetProducts(ctx context.Context, ids []string) (map[string]Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
}

// OrderStore persists orders. CreateOrder writes the order, its items and the
// initial payment placeholder as one atomic unit; with deductStock it also
// moves inventory in the same transaction (cash path).
type OrderStore interface {
	CreateOrder(ctx context.Context, o *Order, deductStock bool) ([]StockAlert, error)
	GetOrder(ctx context.Context, id string) (*Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*Order, error)

	// CompensateTokenFailure marks a freshly created, still-pending order as
	// cancelled and soft-deleted after token issuance failed.
	CompensateTokenFailure(ctx context.Context, orderID string) error

	// MarkPaymentRetried atomically claims one retry attempt, returns the new
	// count and restores the order to the pending-payment state for the
	// reissued token. ErrRetryExhausted once the counter reaches maxRetries,
	// ErrAlreadyPaid if a webhook completed the payment first.
	MarkPaymentRetried(ctx context.Context, orderID string, maxRetries int) (int, error)

	// MarkCancelled re-checks state under a row lock; ErrAlreadyPaid if a
	// concurrent webhook completed the payment, ErrOrderClosed if terminal.
	MarkCancelled(ctx context.Context, orderID string) (*Order, error)

	// SweepStalePendingTokens compensates pending-payment orders older than
	// the cutoff that never got past token issuance (crash between commit and
	// compensation). Orders with any recorded gateway transaction are left to
	// the gateway's own expiry. Returns the ids of compensated orders.
	SweepStalePendingTokens(ctx context.Context, olderThan time.Duration) ([]string, error)
}

// GatewayUpdate is one authoritative gateway state to apply to an order.
type GatewayUpdate struct {
	OrderNumber   string
	TransactionID string
	GatewayName   string
	RawStatus     string
	FraudFlag     string
	AmountCents   int64
	Transition    Transition
	EventAt       time.Time
}

// ReconcileOutcome reports what a gateway update actually changed.
type ReconcileOutcome struct {
	Order        *Order
	Repeat       bool // transaction id was already recorded
	Deducted     bool // inventory moved in this call
	CompletedNow bool // payment status reached COMPLETED in this call
	Alerts       []StockAlert
}

// ReconcileStore applies a gateway update atomically: order row lock, payment
// upsert keyed by gateway transaction id, order state change and the deferred
// inventory deduction all commit or roll back together.
type ReconcileStore interface {
	ApplyGatewayUpdate(ctx context.Context, upd GatewayUpdate) (*ReconcileOutcome, error)
}

// ItemQuantity is a product/quantity pair for availability checks.
type ItemQuantity struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// StockShortage describes one product that cannot cover a requested quantity.
type StockShortage struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// Mutation is one ledger movement request.
type Mutation struct {
	ProductID     string
	Delta         int // signed; negative deducts
	Movement      MovementType
	Reason        string
	ReferenceType string
	ReferenceID   string
	ActorID       string
	// AllowNegative permits the stock cache to go below zero instead of
	// clamping. Reserved for explicit adjustments; the confirmed-payment
	// oversell path clamps at zero and raises an OVERSELL alert instead.
	AllowNegative bool
}

// MutationResult is the outcome of one ledger movement.
type MutationResult struct {
	PreviousStock int
	NewStock      int
	Alerts        []StockAlert
}

// InventoryStore is the append-only stock ledger. Mutate writes the new stock
// value and the log entry in one atomic unit, never one without the other.
// The checks are pure reads and explicitly not reservations; Mutate
// re-validates.
type InventoryStore interface {
	Mutate(ctx context.Context, m Mutation) (*MutationResult, error)
	CheckAvailability(ctx context.Context, productID string, qty int) (available bool, stock int, err error)
	CheckBulkAvailability(ctx context.Context, items []ItemQuantity) ([]StockShortage, error)
}
