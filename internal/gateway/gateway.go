// Package gateway is the boundary to the external payment provider. Only the
// consumed contract lives here: token creation, authoritative status queries
// and transaction cancellation.
package gateway

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUpstream wraps transport or provider-side failures.
	ErrUpstream = errors.New("payment gateway unavailable")
	// ErrTransactionNotFound: the provider has no transaction for the
	// correlation id. Callers treat this as already-cancelled.
	ErrTransactionNotFound = errors.New("transaction not found upstream")
)

type TokenItem struct {
	ID         string
	Name       string
	PriceCents int64
	Quantity   int
}

type TokenRequest struct {
	OrderNumber   string // the provider's external reference
	GrossCents    int64
	Items         []TokenItem
	CustomerName  string
	CustomerPhone string
	FinishURL     string
	Expiry        time.Duration
}

type Token struct {
	Token       string
	RedirectURL string
}

// TransactionStatus is the provider's authoritative view of one attempt.
type TransactionStatus struct {
	OrderNumber   string
	TransactionID string
	Status        string // capture, settlement, pending, deny, expire, cancel, refund, partial_refund
	FraudFlag     string
	StatusCode    string
	GrossCents    int64
	TransactionAt time.Time
	SettledAt     *time.Time
}

type Client interface {
	CreateToken(ctx context.Context, req TokenRequest) (*Token, error)
	QueryStatus(ctx context.Context, orderNumber string) (*TransactionStatus, error)
	CancelTransaction(ctx context.Context, orderNumber string) error
}
