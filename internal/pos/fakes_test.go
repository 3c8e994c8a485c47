package pos

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/danisworo/pos-engine/internal/gateway"
)

// fakeStore is an in-memory stand-in for the Postgres store. It mirrors the
// store's observable behavior closely enough for service-level tests: the
// append-only ledger, the clamp-at-zero oversell rule and the idempotent
// gateway-update application.
type fakeStore struct {
	mu       sync.Mutex
	products map[string]*Product
	orders   map[string]*Order
	byNumber map[string]string
	ledger   []InventoryLogEntry
	seq      int

	compensated []string
}

func newFakeStore(products ...Product) *fakeStore {
	s := &fakeStore{
		products: make(map[string]*Product),
		orders:   make(map[string]*Order),
		byNumber: make(map[string]string),
	}
	for i := range products {
		p := products[i]
		s.products[p.ID] = &p
	}
	return s
}

func (s *fakeStore) GetProducts(_ context.Context, ids []string) (map[string]Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = *p
		}
	}
	return out, nil
}

func (s *fakeStore) ListProducts(context.Context) ([]Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, *p)
	}
	return out, nil
}

func (s *fakeStore) CheckAvailability(_ context.Context, productID string, qty int) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return false, 0, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if !p.TrackInventory {
		return true, p.Stock, nil
	}
	return p.Stock >= qty, p.Stock, nil
}

func (s *fakeStore) CheckBulkAvailability(_ context.Context, items []ItemQuantity) ([]StockShortage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var shortages []StockShortage
	for _, it := range items {
		p, ok := s.products[it.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, it.ProductID)
		}
		if p.TrackInventory && p.Stock < it.Quantity {
			shortages = append(shortages, StockShortage{
				ProductID: it.ProductID,
				Requested: it.Quantity,
				Available: p.Stock,
			})
		}
	}
	return shortages, nil
}

func (s *fakeStore) Mutate(_ context.Context, m Mutation) (*MutationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateLocked(m)
}

func (s *fakeStore) mutateLocked(m Mutation) (*MutationResult, error) {
	p, ok := s.products[m.ProductID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, m.ProductID)
	}

	prev := p.Stock
	delta := m.Delta
	newStock := prev + delta
	var alerts []StockAlert
	if newStock < 0 && !m.AllowNegative {
		alerts = append(alerts, StockAlert{
			ProductID: p.ID, ProductName: p.Name, Kind: AlertOversell,
			Stock: 0, Threshold: p.LowStockThreshold, ReferenceID: m.ReferenceID,
		})
		delta = -prev
		newStock = 0
	}
	p.Stock = newStock
	s.ledger = append(s.ledger, InventoryLogEntry{
		ID:            uuid.NewString(),
		ProductID:     p.ID,
		Movement:      m.Movement,
		QuantityDelta: delta,
		PreviousStock: prev,
		NewStock:      newStock,
		Reason:        m.Reason,
		ReferenceType: m.ReferenceType,
		ReferenceID:   m.ReferenceID,
		ActorID:       m.ActorID,
		CreatedAt:     time.Now().UTC(),
	})

	if len(alerts) == 0 && delta < 0 {
		switch {
		case newStock == 0 && prev > 0:
			alerts = append(alerts, StockAlert{
				ProductID: p.ID, ProductName: p.Name, Kind: AlertOutOfStock,
				Stock: newStock, Threshold: p.LowStockThreshold, ReferenceID: m.ReferenceID,
			})
		case newStock <= p.LowStockThreshold && prev > p.LowStockThreshold:
			alerts = append(alerts, StockAlert{
				ProductID: p.ID, ProductName: p.Name, Kind: AlertLowStock,
				Stock: newStock, Threshold: p.LowStockThreshold, ReferenceID: m.ReferenceID,
			})
		}
	}
	return &MutationResult{PreviousStock: prev, NewStock: newStock, Alerts: alerts}, nil
}

func (s *fakeStore) deductOrderLocked(o *Order, reason string) ([]StockAlert, error) {
	var alerts []StockAlert
	for _, it := range o.Items {
		p, ok := s.products[it.ProductID]
		if !ok || !p.TrackInventory {
			continue
		}
		res, err := s.mutateLocked(Mutation{
			ProductID:     it.ProductID,
			Delta:         -it.Quantity,
			Movement:      MovementOut,
			Reason:        reason,
			ReferenceType: "ORDER",
			ReferenceID:   o.ID,
			ActorID:       "system",
		})
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, res.Alerts...)
	}
	return alerts, nil
}

func (s *fakeStore) hasDeductionLocked(orderID string) bool {
	for _, e := range s.ledger {
		if e.ReferenceType == "ORDER" && e.ReferenceID == orderID && e.Movement == MovementOut {
			return true
		}
	}
	return false
}

func (s *fakeStore) CreateOrder(_ context.Context, o *Order, deductStock bool) ([]StockAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	o.OrderNumber = FormatOrderNumber(time.Now(), s.seq)
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	o.Payments = append(o.Payments, Payment{
		ID:          uuid.NewString(),
		OrderID:     o.ID,
		Method:      o.PaymentMethod,
		AmountCents: o.TotalCents,
		Status:      o.PaymentStatus,
		Kind:        KindPayment,
		CreatedAt:   now,
	})

	var alerts []StockAlert
	if deductStock {
		var err error
		alerts, err = s.deductOrderLocked(o, "cash sale")
		if err != nil {
			return nil, err
		}
	}

	s.orders[o.ID] = o
	s.byNumber[o.OrderNumber] = o.ID
	return alerts, nil
}

func (s *fakeStore) getLocked(id string) (*Order, error) {
	o, ok := s.orders[id]
	if !ok || o.Deleted {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (s *fakeStore) GetOrder(_ context.Context, id string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Lookup by id sees soft-deleted orders, same as the store; retries of a
	// compensated order depend on it.
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *fakeStore) GetOrderByNumber(_ context.Context, number string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byNumber[number]
	if !ok {
		return nil, ErrOrderNotFound
	}
	o, err := s.getLocked(id)
	if err != nil {
		return nil, err
	}
	cp := *o
	return &cp, nil
}

func (s *fakeStore) CompensateTokenFailure(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if o.Status != OrderPendingPayment {
		return nil // webhook won the race, leave it alone
	}
	o.Status = OrderCancelled
	o.PaymentStatus = PaymentFailed
	o.Deleted = true
	s.compensated = append(s.compensated, orderID)
	return nil
}

func (s *fakeStore) MarkPaymentRetried(_ context.Context, orderID string, maxRetries int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return 0, ErrOrderNotFound
	}
	if o.PaymentStatus == PaymentCompleted {
		return 0, ErrAlreadyPaid
	}
	if o.PaymentRetries >= maxRetries {
		return 0, ErrRetryExhausted
	}
	o.PaymentRetries++
	o.Status = OrderPendingPayment
	o.PaymentStatus = PaymentPending
	o.Deleted = false
	o.Payments = append(o.Payments, Payment{
		ID:          uuid.NewString(),
		OrderID:     o.ID,
		Method:      o.PaymentMethod,
		AmountCents: o.TotalCents,
		Status:      PaymentPending,
		Kind:        KindPayment,
		CreatedAt:   time.Now().UTC(),
	})
	return o.PaymentRetries, nil
}

func (s *fakeStore) MarkCancelled(_ context.Context, orderID string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.getLocked(orderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus == PaymentCompleted {
		return nil, ErrAlreadyPaid
	}
	if o.Status.Terminal() {
		return nil, ErrOrderClosed
	}
	now := time.Now().UTC()
	o.Status = OrderCancelled
	o.PaymentStatus = PaymentFailed
	o.CancelledAt = &now
	cp := *o
	return &cp, nil
}

func (s *fakeStore) SweepStalePendingTokens(_ context.Context, olderThan time.Duration) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var ids []string
	for _, o := range s.orders {
		if o.Status != OrderPendingPayment || o.Deleted || !o.CreatedAt.Before(cutoff) {
			continue
		}
		reported := false
		for _, p := range o.Payments {
			if p.GatewayTransactionID != "" {
				reported = true
				break
			}
		}
		if reported {
			continue
		}
		now := time.Now().UTC()
		o.Status = OrderCancelled
		o.PaymentStatus = PaymentFailed
		o.Deleted = true
		o.CancelledAt = &now
		ids = append(ids, o.ID)
	}
	return ids, nil
}

// ApplyGatewayUpdate mirrors the store's reconcile transaction: idempotency
// by transaction id, forward-only order moves, payment-rank guard and the
// at-most-once deferred deduction.
func (s *fakeStore) ApplyGatewayUpdate(_ context.Context, upd GatewayUpdate) (*ReconcileOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byNumber[upd.OrderNumber]
	if !ok {
		return nil, ErrOrderNotFound
	}
	// Soft-deleted orders are still resolvable; a late completing webhook
	// resurrects a locally compensated order.
	o := s.orders[id]

	tr := upd.Transition
	repeat := false
	claimed := false
	for i := range o.Payments {
		p := &o.Payments[i]
		if upd.TransactionID != "" && p.GatewayTransactionID == upd.TransactionID {
			repeat = true
			p.Status = tr.Payment
			p.GatewayStatus = upd.RawStatus
			break
		}
		if !claimed && p.GatewayTransactionID == "" {
			p.GatewayTransactionID = upd.TransactionID
			p.Status = tr.Payment
			p.Kind = kindForTest(tr.Payment)
			p.Gateway = upd.GatewayName
			p.GatewayStatus = upd.RawStatus
			claimed = true
		}
	}
	if !repeat && !claimed {
		o.Payments = append(o.Payments, Payment{
			ID:                   uuid.NewString(),
			OrderID:              o.ID,
			Method:               o.PaymentMethod,
			AmountCents:          o.TotalCents,
			Status:               tr.Payment,
			Kind:                 kindForTest(tr.Payment),
			Gateway:              upd.GatewayName,
			GatewayTransactionID: upd.TransactionID,
			GatewayStatus:        upd.RawStatus,
		})
	}

	wasCompleted := o.PaymentStatus == PaymentCompleted
	resurrect := o.Deleted && tr.Payment == PaymentCompleted
	switch {
	case resurrect:
		o.Status = tr.Order
		o.Deleted = false
		o.CancelledAt = nil
	case tr.KeepOrder || tr.Order == o.Status:
	case PaymentRegresses(o.PaymentStatus, tr.Payment):
		// stale failure-class notification, order stays put
	case CanTransition(o.Status, tr.Order):
		o.Status = tr.Order
		if o.Status == OrderCancelled && o.CancelledAt == nil {
			now := time.Now().UTC()
			o.CancelledAt = &now
		}
	}
	if PaymentAdvances(o.PaymentStatus, tr.Payment) {
		o.PaymentStatus = tr.Payment
	}
	completedNow := !wasCompleted && o.PaymentStatus == PaymentCompleted
	if completedNow && tr.MarkPaid && o.PaidAt == nil {
		t := upd.EventAt
		o.PaidAt = &t
	}

	out := &ReconcileOutcome{Repeat: repeat, CompletedNow: completedNow}
	if completedNow && !repeat && !s.hasDeductionLocked(o.ID) {
		alerts, err := s.deductOrderLocked(o, "payment confirmed")
		if err != nil {
			return nil, err
		}
		out.Deducted = true
		out.Alerts = alerts
	}
	cp := *o
	out.Order = &cp
	return out, nil
}

func kindForTest(status PaymentStatus) TransactionKind {
	switch status {
	case PaymentRefunded:
		return KindRefund
	case PaymentPartiallyRefunded:
		return KindPartialRefund
	default:
		return KindPayment
	}
}

func (s *fakeStore) stock(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[productID].Stock
}

func (s *fakeStore) outEntries(orderID string) []InventoryLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []InventoryLogEntry
	for _, e := range s.ledger {
		if e.ReferenceType == "ORDER" && e.ReferenceID == orderID && e.Movement == MovementOut {
			out = append(out, e)
		}
	}
	return out
}

// fakeGateway scripts provider responses and counts calls.
type fakeGateway struct {
	mu sync.Mutex

	token     *gateway.Token
	tokenErr  error
	status    *gateway.TransactionStatus
	statusErr error
	cancelErr error

	createCalls int
	queryCalls  int
	cancelCalls int
}

func (g *fakeGateway) CreateToken(_ context.Context, _ gateway.TokenRequest) (*gateway.Token, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	if g.tokenErr != nil {
		return nil, g.tokenErr
	}
	if g.token != nil {
		return g.token, nil
	}
	return &gateway.Token{Token: "tok-test", RedirectURL: "https://pay.example/tok-test"}, nil
}

func (g *fakeGateway) QueryStatus(_ context.Context, orderNumber string) (*gateway.TransactionStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queryCalls++
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	if g.status != nil {
		return g.status, nil
	}
	return nil, fmt.Errorf("%w: no scripted status", gateway.ErrUpstream)
}

func (g *fakeGateway) CancelTransaction(_ context.Context, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelCalls++
	return g.cancelErr
}

// recordingSink captures emitted events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

type sinkEvent struct {
	Event   string
	Key     string
	Payload any
}

func (r *recordingSink) Emit(_ context.Context, event, key string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sinkEvent{Event: event, Key: key, Payload: payload})
}

func (r *recordingSink) byEvent(event string) []sinkEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sinkEvent
	for _, e := range r.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func testProduct(id string, priceCents int64, stock int) Product {
	return Product{
		ID:                id,
		SKU:               "SKU-" + id,
		Name:              "product " + id,
		PriceCents:        priceCents,
		Stock:             stock,
		TrackInventory:    true,
		LowStockThreshold: 2,
		Available:         true,
	}
}

func newTestService(store *fakeStore, gw *fakeGateway, sink *recordingSink) *OrderService {
	return &OrderService{
		Catalog:          store,
		Orders:           store,
		Inventory:        store,
		Gateway:          gw,
		Sink:             sink,
		Log:              zerolog.Nop(),
		GatewayName:      "paygate",
		FinishURL:        "https://shop.example/finish",
		TokenExpiry:      30 * time.Minute,
		TaxRateBps:       1000,
		ServiceChargeBps: 500,
	}
}
