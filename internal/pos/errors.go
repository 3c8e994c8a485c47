package pos

import "errors"

// Validation failures, rejected before any mutation.
var (
	ErrEmptyItems            = errors.New("order has no items")
	ErrInvalidQuantity       = errors.New("item quantity must be positive")
	ErrInvalidOrderType      = errors.New("invalid order type")
	ErrInvalidPaymentMethod  = errors.New("invalid payment method")
	ErrInvalidDiscount       = errors.New("discount exceeds subtotal")
	ErrMalformedNotification = errors.New("notification missing order reference or status")
)

// Not-found classes.
var (
	ErrProductNotFound = errors.New("product not found")
	ErrOrderNotFound   = errors.New("order not found")
)

// Conflicts.
var (
	ErrProductUnavailable  = errors.New("product not available")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrAlreadyPaid         = errors.New("order already paid")
	ErrOrderClosed         = errors.New("order is in a terminal state")
	ErrRetryExhausted      = errors.New("payment retry budget exhausted")
	ErrOrderNumberConflict = errors.New("order number generation exhausted retries")
)

// Authenticity.
var ErrBadSignature = errors.New("notification signature mismatch")
