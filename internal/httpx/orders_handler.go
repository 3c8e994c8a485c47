package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/danisworo/pos-engine/internal/pos"
	"github.com/danisworo/pos-engine/internal/redisx"
)

// The handler depends on the narrow slices of the services it calls so tests
// can substitute fakes without a database.
type orderAPI interface {
	Create(ctx context.Context, in pos.CreateOrderInput) (*pos.CreateOrderResult, error)
}

type orderReader interface {
	GetOrder(ctx context.Context, id string) (*pos.Order, error)
	ListProducts(ctx context.Context) ([]pos.Product, error)
}

type paymentRetrier interface {
	Retry(ctx context.Context, orderID string) (*pos.RetryResult, error)
}

type orderCanceller interface {
	Cancel(ctx context.Context, orderID string) (*pos.Order, error)
}

type OrdersHandler struct {
	Service orderAPI
	Reader  orderReader
	Retry   paymentRetrier
	Cancel  orderCanceller
	Redis   *redis.Client
	Log     zerolog.Logger
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Get("/products", h.listProducts)
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/retry-payment", h.retryPayment)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req pos.CreateOrderInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	req.CreatedBy = r.Header.Get("X-User-Id")

	ctx, cancel := context.WithTimeout(requestCtx(r), 10*time.Second)
	defer cancel()

	res, err := h.Service.Create(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cacheStatus(ctx, res.Order)
	writeJSON(w, http.StatusCreated, res)
}

type orderStatusView struct {
	ID            string            `json:"id"`
	OrderNumber   string            `json:"order_number"`
	Status        pos.OrderStatus   `json:"status"`
	PaymentStatus pos.PaymentStatus `json:"payment_status"`
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, o *pos.Order) {
	if h.Redis == nil {
		return
	}
	b, _ := json.Marshal(orderStatusView{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
	})
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	if err := h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err(); err != nil {
		h.Log.Debug().Err(err).Str("order_id", o.ID).Msg("status cache write failed")
	}
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Cheap status probe first; only the "full" query string bypasses it.
	if h.Redis != nil && r.URL.Query().Get("view") == "status" {
		key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	o, err := h.Reader.GetOrder(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Reader.ListProducts(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *OrdersHandler) retryPayment(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(requestCtx(r), 10*time.Second)
	defer cancel()

	res, err := h.Retry.Retry(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(requestCtx(r), 10*time.Second)
	defer cancel()

	o, err := h.Cancel.Cancel(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, o)
}
