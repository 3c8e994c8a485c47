package pos

type OrderStatus string

const (
	OrderDraft                OrderStatus = "DRAFT"
	OrderPendingPayment       OrderStatus = "PENDING_PAYMENT"
	OrderAwaitingConfirmation OrderStatus = "AWAITING_CONFIRMATION"
	OrderPaid                 OrderStatus = "PAID"
	OrderPreparing            OrderStatus = "PREPARING"
	OrderReady                OrderStatus = "READY"
	OrderCompleted            OrderStatus = "COMPLETED"
	OrderCancelled            OrderStatus = "CANCELLED"
	OrderRefunded             OrderStatus = "REFUNDED"
)

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "PENDING"
	PaymentProcessing        PaymentStatus = "PROCESSING"
	PaymentCompleted         PaymentStatus = "COMPLETED"
	PaymentFailed            PaymentStatus = "FAILED"
	PaymentExpired           PaymentStatus = "EXPIRED"
	PaymentRefunded          PaymentStatus = "REFUNDED"
	PaymentPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

// validNext is the forward-only transition graph. COMPLETED, CANCELLED and
// REFUNDED are terminal except for the refund sub-path out of COMPLETED.
var validNext = map[OrderStatus]map[OrderStatus]bool{
	OrderDraft:                {OrderPendingPayment: true, OrderPaid: true, OrderCancelled: true},
	OrderPendingPayment:       {OrderAwaitingConfirmation: true, OrderPaid: true, OrderCancelled: true},
	OrderAwaitingConfirmation: {OrderPaid: true, OrderCancelled: true},
	OrderPaid:                 {OrderPreparing: true, OrderRefunded: true, OrderCancelled: true},
	OrderPreparing:            {OrderReady: true, OrderRefunded: true},
	OrderReady:                {OrderCompleted: true, OrderRefunded: true},
	OrderCompleted:            {OrderRefunded: true},
	OrderCancelled:            {},
	OrderRefunded:             {},
}

func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled || s == OrderRefunded
}

// paymentRank orders payment statuses so that a stale notification can never
// move an order's payment state backwards. Equal-or-higher rank applies.
var paymentRank = map[PaymentStatus]int{
	PaymentPending:           0,
	PaymentProcessing:        1,
	PaymentFailed:            2,
	PaymentExpired:           2,
	PaymentCompleted:         3,
	PaymentPartiallyRefunded: 4,
	PaymentRefunded:          5,
}

func PaymentAdvances(from, to PaymentStatus) bool {
	return paymentRank[to] > paymentRank[from]
}

// PaymentRegresses reports whether to carries a strictly weaker payment state
// than from. A regressing notification is stale and must not move the order.
func PaymentRegresses(from, to PaymentStatus) bool {
	return paymentRank[to] < paymentRank[from]
}
