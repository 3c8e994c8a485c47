package pos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/danisworo/pos-engine/internal/gateway"
)

// OrderService validates and creates orders and decides the cash-vs-gateway
// path. Cash orders deduct inventory and settle in the create transaction;
// gateway orders stay pending until the reconciler confirms payment.
type OrderService struct {
	Catalog   CatalogStore
	Orders    OrderStore
	Inventory InventoryStore
	Gateway   gateway.Client
	Sink      EventSink
	Log       zerolog.Logger

	GatewayName      string
	FinishURL        string
	TokenExpiry      time.Duration
	TaxRateBps       int64
	ServiceChargeBps int64
}

type CreateOrderItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CreateOrderInput struct {
	CustomerName     string                 `json:"customer_name"`
	CustomerPhone    string                 `json:"customer_phone"`
	TableNumber      string                 `json:"table_number"`
	OrderType        OrderType              `json:"order_type"`
	PaymentMethod    PaymentMethod          `json:"payment_method"`
	Items            []CreateOrderItemInput `json:"items"`
	DiscountCents    int64                  `json:"discount_cents"`
	DeliveryFeeCents int64                  `json:"delivery_fee_cents"`
	CreatedBy        string                 `json:"-"`
}

type CreateOrderResult struct {
	Order           *Order `json:"order"`
	PaymentToken    string `json:"payment_token,omitempty"`
	RedirectURL     string `json:"redirect_url,omitempty"`
	RequiresPayment bool   `json:"requires_payment"`
}

func (in CreateOrderInput) validate() error {
	if !ValidOrderType(in.OrderType) {
		return ErrInvalidOrderType
	}
	if !ValidPaymentMethod(in.PaymentMethod) {
		return ErrInvalidPaymentMethod
	}
	if len(in.Items) == 0 {
		return ErrEmptyItems
	}
	for _, it := range in.Items {
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: product %s", ErrInvalidQuantity, it.ProductID)
		}
	}
	if in.DiscountCents < 0 || in.DeliveryFeeCents < 0 {
		return ErrInvalidDiscount
	}
	return nil
}

func (s *OrderService) Create(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(in.Items))
	for _, it := range in.Items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.Catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	tracked := make([]ItemQuantity, 0, len(in.Items))
	for _, it := range in.Items {
		p, ok := products[it.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, it.ProductID)
		}
		if !p.Available {
			return nil, fmt.Errorf("%w: %s", ErrProductUnavailable, p.Name)
		}
		if p.TrackInventory {
			tracked = append(tracked, ItemQuantity{ProductID: it.ProductID, Quantity: it.Quantity})
		}
	}
	if len(tracked) > 0 {
		shortages, err := s.Inventory.CheckBulkAvailability(ctx, tracked)
		if err != nil {
			return nil, err
		}
		if len(shortages) > 0 {
			return nil, fmt.Errorf("%w: %d product(s) short", ErrInsufficientStock, len(shortages))
		}
	}

	order, err := s.buildOrder(in, products)
	if err != nil {
		return nil, err
	}

	cash := in.PaymentMethod == MethodCash
	now := time.Now().UTC()
	if cash {
		order.Status = OrderPaid
		order.PaymentStatus = PaymentCompleted
		order.PaidAt = &now
	} else {
		order.Status = OrderPendingPayment
		order.PaymentStatus = PaymentPending
	}

	alerts, err := s.Orders.CreateOrder(ctx, order, cash)
	if err != nil {
		return nil, err
	}

	res := &CreateOrderResult{Order: order, RequiresPayment: !cash}
	if !cash {
		// Network call to an uncontrolled external system, deliberately
		// outside the database transaction.
		tok, err := s.Gateway.CreateToken(ctx, s.tokenRequest(order))
		if err != nil {
			// Best-effort saga compensation. A crash before this line leaves
			// the order uncompensated; SweepStalePendingTokens picks it up.
			if cerr := s.Orders.CompensateTokenFailure(ctx, order.ID); cerr != nil {
				s.Log.Error().Err(cerr).Str("order_id", order.ID).
					Msg("compensation after token failure did not apply")
			}
			return nil, fmt.Errorf("create payment token for %s: %w", order.OrderNumber, err)
		}
		res.PaymentToken = tok.Token
		res.RedirectURL = tok.RedirectURL
	}

	s.emitAlerts(ctx, order.ID, alerts)
	s.Sink.Emit(ctx, EventOrderCreated, order.ID, OrderCreatedPayload{
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		OrderType:       order.OrderType,
		Status:          order.Status,
		PaymentStatus:   order.PaymentStatus,
		TotalCents:      order.TotalCents,
		RequiresPayment: !cash,
	})
	return res, nil
}

func (s *OrderService) buildOrder(in CreateOrderInput, products map[string]Product) (*Order, error) {
	order := &Order{
		ID:            uuid.NewString(),
		OrderType:     in.OrderType,
		PaymentMethod: in.PaymentMethod,
		CustomerName:  in.CustomerName,
		CustomerPhone: in.CustomerPhone,
		TableNumber:   in.TableNumber,
		DiscountCents: in.DiscountCents,
		CreatedBy:     in.CreatedBy,
	}

	var subtotal int64
	for _, it := range in.Items {
		p := products[it.ProductID]
		itemSubtotal := p.PriceCents * int64(it.Quantity)
		itemTax := itemSubtotal * s.TaxRateBps / 10000
		order.Items = append(order.Items, OrderItem{
			ID:             uuid.NewString(),
			OrderID:        order.ID,
			ProductID:      p.ID,
			ProductName:    p.Name,
			ProductSKU:     p.SKU,
			UnitPriceCents: p.PriceCents,
			Quantity:       it.Quantity,
			SubtotalCents:  itemSubtotal,
			TaxCents:       itemTax,
			TotalCents:     itemSubtotal + itemTax,
		})
		subtotal += itemSubtotal
	}
	if in.DiscountCents > subtotal {
		return nil, ErrInvalidDiscount
	}

	order.SubtotalCents = subtotal
	order.TaxCents = (subtotal - in.DiscountCents) * s.TaxRateBps / 10000
	if in.OrderType == OrderTypeDineIn {
		order.ServiceChargeCents = subtotal * s.ServiceChargeBps / 10000
	}
	if in.OrderType == OrderTypeDelivery {
		order.DeliveryFeeCents = in.DeliveryFeeCents
	}
	order.TotalCents = subtotal - in.DiscountCents + order.TaxCents +
		order.ServiceChargeCents + order.DeliveryFeeCents
	return order, nil
}

func (s *OrderService) tokenRequest(o *Order) gateway.TokenRequest {
	req := gateway.TokenRequest{
		OrderNumber:   o.OrderNumber,
		GrossCents:    o.TotalCents,
		CustomerName:  o.CustomerName,
		CustomerPhone: o.CustomerPhone,
		FinishURL:     s.FinishURL,
		Expiry:        s.TokenExpiry,
	}
	for _, it := range o.Items {
		req.Items = append(req.Items, gateway.TokenItem{
			ID:         it.ProductID,
			Name:       it.ProductName,
			PriceCents: it.UnitPriceCents,
			Quantity:   it.Quantity,
		})
	}
	return req
}

func (s *OrderService) emitAlerts(ctx context.Context, orderID string, alerts []StockAlert) {
	for _, a := range alerts {
		s.Sink.Emit(ctx, EventStockAlert, a.ProductID, StockAlertPayload{
			ProductID:   a.ProductID,
			ProductName: a.ProductName,
			Kind:        a.Kind,
			Stock:       a.Stock,
			Threshold:   a.Threshold,
			ReferenceID: orderID,
		})
	}
}

// Sweep compensates orders stuck mid-saga after a crash between the create
// commit and the token-failure compensation.
func (s *OrderService) Sweep(ctx context.Context, olderThan time.Duration) {
	ids, err := s.Orders.SweepStalePendingTokens(ctx, olderThan)
	if err != nil {
		s.Log.Error().Err(err).Msg("stale pending sweep failed")
		return
	}
	for _, id := range ids {
		s.Log.Warn().Str("order_id", id).Msg("compensated order stuck mid-saga")
		s.Sink.Emit(ctx, EventOrderUpdated, id, OrderUpdatedPayload{
			OrderID:       id,
			Status:        OrderCancelled,
			PaymentStatus: PaymentFailed,
		})
	}
}

// IsValidationError reports whether err belongs to the 400 class.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptyItems) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidOrderType) ||
		errors.Is(err, ErrInvalidPaymentMethod) ||
		errors.Is(err, ErrInvalidDiscount) ||
		errors.Is(err, ErrMalformedNotification)
}
