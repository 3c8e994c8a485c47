package pos

import "time"

type OrderType string

const (
	OrderTypeDineIn   OrderType = "DINE_IN"
	OrderTypeTakeaway OrderType = "TAKEAWAY"
	OrderTypeDelivery OrderType = "DELIVERY"
)

func ValidOrderType(t OrderType) bool {
	switch t {
	case OrderTypeDineIn, OrderTypeTakeaway, OrderTypeDelivery:
		return true
	}
	return false
}

type PaymentMethod string

const (
	MethodCash   PaymentMethod = "CASH"
	MethodOnline PaymentMethod = "ONLINE"
)

func ValidPaymentMethod(m PaymentMethod) bool {
	return m == MethodCash || m == MethodOnline
}

type TransactionKind string

const (
	KindPayment       TransactionKind = "PAYMENT"
	KindRefund        TransactionKind = "REFUND"
	KindPartialRefund TransactionKind = "PARTIAL_REFUND"
)

type MovementType string

const (
	MovementIn         MovementType = "IN"
	MovementOut        MovementType = "OUT"
	MovementAdjustment MovementType = "ADJUSTMENT"
	MovementDamage     MovementType = "DAMAGE"
	MovementReturn     MovementType = "RETURN"
	MovementTransfer   MovementType = "TRANSFER"
	MovementStockTake  MovementType = "STOCK_TAKE"
)

type Product struct {
	ID                string    `json:"id"`
	SKU               string    `json:"sku"`
	Name              string    `json:"name"`
	PriceCents        int64     `json:"price_cents"`
	Stock             int       `json:"stock"`
	TrackInventory    bool      `json:"track_inventory"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	Available         bool      `json:"available"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type Order struct {
	ID            string        `json:"id"`
	OrderNumber   string        `json:"order_number"`
	OrderType     OrderType     `json:"order_type"`
	Status        OrderStatus   `json:"status"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	PaymentStatus PaymentStatus `json:"payment_status"`

	CustomerName  string `json:"customer_name,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`
	TableNumber   string `json:"table_number,omitempty"`

	SubtotalCents      int64 `json:"subtotal_cents"`
	DiscountCents      int64 `json:"discount_cents"`
	TaxCents           int64 `json:"tax_cents"`
	ServiceChargeCents int64 `json:"service_charge_cents"`
	DeliveryFeeCents   int64 `json:"delivery_fee_cents"`
	TotalCents         int64 `json:"total_cents"`

	PaymentRetries int    `json:"payment_retries"`
	Deleted        bool   `json:"-"`
	CreatedBy      string `json:"created_by,omitempty"`

	PaidAt      *time.Time `json:"paid_at,omitempty"`
	PreparingAt *time.Time `json:"preparing_at,omitempty"`
	ReadyAt     *time.Time `json:"ready_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Items    []OrderItem `json:"items,omitempty"`
	Payments []Payment   `json:"payments,omitempty"`
}

// OrderItem snapshots the product at order time so historical orders are
// immune to later product edits.
type OrderItem struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	ProductSKU     string `json:"product_sku"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Quantity       int    `json:"quantity"`
	SubtotalCents  int64  `json:"subtotal_cents"`
	TaxCents       int64  `json:"tax_cents"`
	TotalCents     int64  `json:"total_cents"`
}

// Payment is one row per gateway transaction attempt. GatewayTransactionID is
// empty until the gateway reports one and is the idempotency key once set.
type Payment struct {
	ID                   string          `json:"id"`
	OrderID              string          `json:"order_id"`
	Method               PaymentMethod   `json:"method"`
	AmountCents          int64           `json:"amount_cents"`
	Status               PaymentStatus   `json:"status"`
	Kind                 TransactionKind `json:"kind"`
	Gateway              string          `json:"gateway,omitempty"`
	GatewayTransactionID string          `json:"gateway_transaction_id,omitempty"`
	GatewayStatus        string          `json:"gateway_status,omitempty"`
	PaidAt               *time.Time      `json:"paid_at,omitempty"`
	FailedAt             *time.Time      `json:"failed_at,omitempty"`
	ExpiredAt            *time.Time      `json:"expired_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// InventoryLogEntry is an immutable, append-only record of one stock movement.
// The products.stock column is a materialized cache of the sum of these rows.
type InventoryLogEntry struct {
	ID            string       `json:"id"`
	ProductID     string       `json:"product_id"`
	Movement      MovementType `json:"movement"`
	QuantityDelta int          `json:"quantity_delta"`
	PreviousStock int          `json:"previous_stock"`
	NewStock      int          `json:"new_stock"`
	Reason        string       `json:"reason,omitempty"`
	ReferenceType string       `json:"reference_type,omitempty"`
	ReferenceID   string       `json:"reference_id,omitempty"`
	ActorID       string       `json:"actor_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

type StockAlertKind string

const (
	AlertLowStock   StockAlertKind = "LOW_STOCK"
	AlertOutOfStock StockAlertKind = "OUT_OF_STOCK"
	AlertOversell   StockAlertKind = "OVERSELL"
)

// StockAlert is a derived signal from a ledger mutation so callers can raise
// alerts without re-querying.
type StockAlert struct {
	ProductID   string         `json:"product_id"`
	ProductName string         `json:"product_name"`
	Kind        StockAlertKind `json:"kind"`
	Stock       int            `json:"stock"`
	Threshold   int            `json:"threshold"`
	ReferenceID string         `json:"reference_id,omitempty"`
}
