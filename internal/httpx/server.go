package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/danisworo/pos-engine/internal/gateway"
	"github.com/danisworo/pos-engine/internal/pos"
)

func NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// requestCtx tags the request context so emitted events carry the request id.
func requestCtx(r *http.Request) context.Context {
	return pos.WithTraceID(r.Context(), middleware.GetReqID(r.Context()))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errStatus(err), map[string]string{"error": err.Error()})
}

// errStatus maps domain sentinels onto HTTP codes. Anything unmapped is a
// 500 so the gateway and clients treat it as retriable.
func errStatus(err error) int {
	switch {
	case pos.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, pos.ErrBadSignature):
		return http.StatusUnauthorized
	case errors.Is(err, pos.ErrOrderNotFound),
		errors.Is(err, pos.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, pos.ErrInsufficientStock),
		errors.Is(err, pos.ErrProductUnavailable),
		errors.Is(err, pos.ErrAlreadyPaid),
		errors.Is(err, pos.ErrOrderClosed),
		errors.Is(err, pos.ErrRetryExhausted),
		errors.Is(err, pos.ErrOrderNumberConflict):
		return http.StatusConflict
	case errors.Is(err, gateway.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
