package pos

// Gateway transaction statuses as reported by the payment provider.
const (
	GatewayCapture       = "capture"
	GatewaySettlement    = "settlement"
	GatewayPending       = "pending"
	GatewayDeny          = "deny"
	GatewayExpire        = "expire"
	GatewayCancel        = "cancel"
	GatewayRefund        = "refund"
	GatewayPartialRefund = "partial_refund"
)

// Fraud flags attached to capture notifications.
const (
	FraudAccept    = "accept"
	FraudChallenge = "challenge"
	FraudDeny      = "deny"
)

// Transition is the resolved effect of one gateway notification.
type Transition struct {
	Order     OrderStatus
	Payment   PaymentStatus
	MarkPaid  bool // stamp paid_at and treat as the completed payment
	KeepOrder bool // payment-only change, order status untouched
}

type statusKey struct {
	Gateway string
	Fraud   string
}

// transitions maps (gatewayStatus, fraudFlag) to its effect. Adding a gateway
// status is a row here, not a new branch.
var transitions = map[statusKey]Transition{
	{GatewayCapture, FraudAccept}:    {Order: OrderPaid, Payment: PaymentCompleted, MarkPaid: true},
	{GatewayCapture, FraudChallenge}: {Order: OrderAwaitingConfirmation, Payment: PaymentProcessing},
	{GatewayCapture, FraudDeny}:      {Order: OrderCancelled, Payment: PaymentFailed},
	{GatewaySettlement, ""}:          {Order: OrderPaid, Payment: PaymentCompleted, MarkPaid: true},
	{GatewayPending, ""}:             {Order: OrderPendingPayment, Payment: PaymentPending},
	{GatewayDeny, ""}:                {Order: OrderCancelled, Payment: PaymentFailed},
	{GatewayExpire, ""}:              {Order: OrderCancelled, Payment: PaymentExpired},
	{GatewayCancel, ""}:              {Order: OrderCancelled, Payment: PaymentFailed},
	{GatewayRefund, ""}:              {Order: OrderRefunded, Payment: PaymentRefunded},
	{GatewayPartialRefund, ""}:       {Payment: PaymentPartiallyRefunded, KeepOrder: true},
}

// ResolveTransition looks up the effect of a gateway status. The fraud flag
// is consulted first; statuses that ignore it fall through to the bare row.
// ok is false for unrecognized statuses.
func ResolveTransition(gatewayStatus, fraudFlag string) (Transition, bool) {
	if t, ok := transitions[statusKey{gatewayStatus, fraudFlag}]; ok {
		return t, true
	}
	if t, ok := transitions[statusKey{gatewayStatus, ""}]; ok {
		return t, true
	}
	return Transition{}, false
}
