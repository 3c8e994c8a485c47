package pos

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCreateCashOrderDeductsImmediately(t *testing.T) {
	store := newFakeStore(testProduct("p1", 250000, 10))
	gw := &fakeGateway{}
	sink := &recordingSink{}
	svc := newTestService(store, gw, sink)

	res, err := svc.Create(context.Background(), CreateOrderInput{
		OrderType:     OrderTypeTakeaway,
		PaymentMethod: MethodCash,
		Items:         []CreateOrderItemInput{{ProductID: "p1", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	o := res.Order
	if o.Status != OrderPaid {
		t.Errorf("status = %s, want %s", o.Status, OrderPaid)
	}
	if o.PaymentStatus != PaymentCompleted {
		t.Errorf("payment status = %s, want %s", o.PaymentStatus, PaymentCompleted)
	}
	if o.PaidAt == nil {
		t.Error("paid_at not set on cash order")
	}
	if res.RequiresPayment {
		t.Error("cash order should not require payment")
	}
	if gw.createCalls != 0 {
		t.Errorf("gateway called %d times for a cash order", gw.createCalls)
	}

	if got := store.stock("p1"); got != 8 {
		t.Errorf("stock = %d, want 8", got)
	}
	entries := store.outEntries(o.ID)
	if len(entries) != 1 {
		t.Fatalf("ledger OUT entries = %d, want 1", len(entries))
	}
	if entries[0].QuantityDelta != -2 || entries[0].PreviousStock != 10 || entries[0].NewStock != 8 {
		t.Errorf("ledger entry = %+v", entries[0])
	}

	if got := len(sink.byEvent(EventOrderCreated)); got != 1 {
		t.Errorf("order:created events = %d, want 1", got)
	}
}

func TestCreateCashOrderTotals(t *testing.T) {
	store := newFakeStore(testProduct("p1", 10000, 50))
	svc := newTestService(store, &fakeGateway{}, &recordingSink{})

	res, err := svc.Create(context.Background(), CreateOrderInput{
		OrderType:     OrderTypeDineIn,
		PaymentMethod: MethodCash,
		Items:         []CreateOrderItemInput{{ProductID: "p1", Quantity: 3}},
		DiscountCents: 5000,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	o := res.Order
	if o.SubtotalCents != 30000 {
		t.Errorf("subtotal = %d, want 30000", o.SubtotalCents)
	}
	// tax 10% of (30000-5000), service charge 5% of subtotal
	if o.TaxCents != 2500 {
		t.Errorf("tax = %d, want 2500", o.TaxCents)
	}
	if o.ServiceChargeCents != 1500 {
		t.Errorf("service charge = %d, want 1500", o.ServiceChargeCents)
	}
	want := int64(30000 - 5000 + 2500 + 1500)
	if o.TotalCents != want {
		t.Errorf("total = %d, want %d", o.TotalCents, want)
	}
}

func TestCreateGatewayOrderDefersDeduction(t *testing.T) {
	store := newFakeStore(testProduct("p1", 250000, 10))
	gw := &fakeGateway{}
	sink := &recordingSink{}
	svc := newTestService(store, gw, sink)

	res, err := svc.Create(context.Background(), CreateOrderInput{
		OrderType:     OrderTypeTakeaway,
		PaymentMethod: MethodOnline,
		Items:         []CreateOrderItemInput{{ProductID: "p1", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if res.Order.Status != OrderPendingPayment {
		t.Errorf("status = %s, want %s", res.Order.Status, OrderPendingPayment)
	}
	if res.PaymentToken == "" || res.RedirectURL == "" {
		t.Error("token not returned on gateway order")
	}
	if !res.RequiresPayment {
		t.Error("gateway order should require payment")
	}

	// Stock is untouched until the webhook confirms the payment.
	if got := store.stock("p1"); got != 10 {
		t.Errorf("stock = %d, want 10", got)
	}
	if entries := store.outEntries(res.Order.ID); len(entries) != 0 {
		t.Errorf("ledger OUT entries = %d, want 0", len(entries))
	}
}

func TestCreateGatewayTokenFailureCompensates(t *testing.T) {
	store := newFakeStore(testProduct("p1", 250000, 10))
	gw := &fakeGateway{tokenErr: errors.New("snap: 500")}
	sink := &recordingSink{}
	svc := newTestService(store, gw, sink)

	_, err := svc.Create(context.Background(), CreateOrderInput{
		OrderType:     OrderTypeTakeaway,
		PaymentMethod: MethodOnline,
		Items:         []CreateOrderItemInput{{ProductID: "p1", Quantity: 1}},
	})
	if err == nil {
		t.Fatal("Create() should fail when token issuance fails")
	}

	if len(store.compensated) != 1 {
		t.Fatalf("compensated orders = %d, want 1", len(store.compensated))
	}
	o := store.orders[store.compensated[0]]
	if o.Status != OrderCancelled || !o.Deleted {
		t.Errorf("compensated order state = %s deleted=%v", o.Status, o.Deleted)
	}
	if got := store.stock("p1"); got != 10 {
		t.Errorf("stock = %d, want 10", got)
	}
	if got := len(sink.byEvent(EventOrderCreated)); got != 0 {
		t.Errorf("order:created events after failed create = %d, want 0", got)
	}
}

func TestCreateValidation(t *testing.T) {
	store := newFakeStore(testProduct("p1", 10000, 5))
	svc := newTestService(store, &fakeGateway{}, &recordingSink{})

	tests := []struct {
		name    string
		in      CreateOrderInput
		wantErr error
	}{
		{
			name: "emptyItems",
			in: CreateOrderInput{
				OrderType: OrderTypeTakeaway, PaymentMethod: MethodCash,
			},
			wantErr: ErrEmptyItems,
		},
		{
			name: "zeroQuantity",
			in: CreateOrderInput{
				OrderType: OrderTypeTakeaway, PaymentMethod: MethodCash,
				Items: []CreateOrderItemInput{{ProductID: "p1", Quantity: 0}},
			},
			wantErr: ErrInvalidQuantity,
		},
		{
			name: "badOrderType",
			in: CreateOrderInput{
				OrderType: "DRIVE_THRU", PaymentMethod: MethodCash,
				Items: []CreateOrderItemInput{{ProductID: "p1", Quantity: 1}},
			},
			wantErr: ErrInvalidOrderType,
		},
		{
			name: "badPaymentMethod",
			in: CreateOrderInput{
				OrderType: OrderTypeTakeaway, PaymentMethod: "CHEQUE",
				Items: []CreateOrderItemInput{{ProductID: "p1", Quantity: 1}},
			},
			wantErr: ErrInvalidPaymentMethod,
		},
		{
			name: "negativeDiscount",
			in: CreateOrderInput{
				OrderType: OrderTypeTakeaway, PaymentMethod: MethodCash,
				Items:         []CreateOrderItemInput{{ProductID: "p1", Quantity: 1}},
				DiscountCents: -1,
			},
			wantErr: ErrInvalidDiscount,
		},
		{
			name: "discountExceedsSubtotal",
			in: CreateOrderInput{
				OrderType: OrderTypeTakeaway, PaymentMethod: MethodCash,
				Items:         []CreateOrderItemInput{{ProductID: "p1", Quantity: 1}},
				DiscountCents: 99999,
			},
			wantErr: ErrInvalidDiscount,
		},
		{
			name: "unknownProduct",
			in: CreateOrderInput{
				OrderType: OrderTypeTakeaway, PaymentMethod: MethodCash,
				Items: []CreateOrderItemInput{{ProductID: "ghost", Quantity: 1}},
			},
			wantErr: ErrProductNotFound,
		},
		{
			name: "insufficientStock",
			in: CreateOrderInput{
				OrderType: OrderTypeTakeaway, PaymentMethod: MethodCash,
				Items: []CreateOrderItemInput{{ProductID: "p1", Quantity: 6}},
			},
			wantErr: ErrInsufficientStock,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Create() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateRejectsUnavailableProduct(t *testing.T) {
	p := testProduct("p1", 10000, 5)
	p.Available = false
	store := newFakeStore(p)
	svc := newTestService(store, &fakeGateway{}, &recordingSink{})

	_, err := svc.Create(context.Background(), CreateOrderInput{
		OrderType: OrderTypeTakeaway, PaymentMethod: MethodCash,
		Items: []CreateOrderItemInput{{ProductID: "p1", Quantity: 1}},
	})
	if !errors.Is(err, ErrProductUnavailable) {
		t.Errorf("Create() error = %v, want %v", err, ErrProductUnavailable)
	}
}

func TestCreateUntrackedProductSkipsStockCheck(t *testing.T) {
	p := testProduct("svc1", 5000, 0)
	p.TrackInventory = false
	store := newFakeStore(p)
	svc := newTestService(store, &fakeGateway{}, &recordingSink{})

	res, err := svc.Create(context.Background(), CreateOrderInput{
		OrderType: OrderTypeTakeaway, PaymentMethod: MethodCash,
		Items: []CreateOrderItemInput{{ProductID: "svc1", Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if entries := store.outEntries(res.Order.ID); len(entries) != 0 {
		t.Errorf("untracked product produced %d ledger entries", len(entries))
	}
}

func TestCashOrderLowStockAlert(t *testing.T) {
	store := newFakeStore(testProduct("p1", 10000, 3)) // threshold 2
	sink := &recordingSink{}
	svc := newTestService(store, &fakeGateway{}, sink)

	_, err := svc.Create(context.Background(), CreateOrderInput{
		OrderType: OrderTypeTakeaway, PaymentMethod: MethodCash,
		Items: []CreateOrderItemInput{{ProductID: "p1", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got := sink.byEvent(EventStockAlert)
	if len(got) != 1 {
		t.Fatalf("stock alert events = %d, want 1", len(got))
	}
	p := got[0].Payload.(StockAlertPayload)
	if p.Kind != AlertLowStock || p.Stock != 1 {
		t.Errorf("alert = %+v, want LOW_STOCK at stock 1", p)
	}
}

func TestSweepCompensatesStaleOrders(t *testing.T) {
	store := newFakeStore(testProduct("p1", 10000, 5))
	sink := &recordingSink{}
	svc := newTestService(store, &fakeGateway{}, sink)

	res, err := svc.Create(context.Background(), CreateOrderInput{
		OrderType: OrderTypeTakeaway, PaymentMethod: MethodOnline,
		Items: []CreateOrderItemInput{{ProductID: "p1", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	// Backdate so the sweep cutoff catches it.
	store.orders[res.Order.ID].CreatedAt = time.Now().Add(-2 * time.Hour)

	svc.Sweep(context.Background(), time.Hour)

	o := store.orders[res.Order.ID]
	if o.Status != OrderCancelled || !o.Deleted {
		t.Errorf("swept order state = %s deleted=%v", o.Status, o.Deleted)
	}
	if got := len(sink.byEvent(EventOrderUpdated)); got != 1 {
		t.Errorf("order:updated events = %d, want 1", got)
	}
}

func TestSweepSkipsGatewayReportedOrders(t *testing.T) {
	store := newFakeStore(testProduct("p1", 10000, 5))
	sink := &recordingSink{}
	svc := newTestService(store, &fakeGateway{}, sink)

	res, err := svc.Create(context.Background(), CreateOrderInput{
		OrderType: OrderTypeTakeaway, PaymentMethod: MethodOnline,
		Items: []CreateOrderItemInput{{ProductID: "p1", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	// A pending order the gateway has reported on belongs to the gateway's
	// own expiry, however old it is locally.
	o := store.orders[res.Order.ID]
	o.CreatedAt = time.Now().Add(-2 * time.Hour)
	o.Payments[0].GatewayTransactionID = "tx-1"

	svc.Sweep(context.Background(), time.Hour)

	if got := store.orders[res.Order.ID]; got.Status != OrderPendingPayment || got.Deleted {
		t.Errorf("order state = %s deleted=%v, want untouched PENDING_PAYMENT", got.Status, got.Deleted)
	}
	if got := len(sink.byEvent(EventOrderUpdated)); got != 0 {
		t.Errorf("order:updated events = %d, want 0", got)
	}
}
