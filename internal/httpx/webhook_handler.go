package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/danisworo/pos-engine/internal/pos"
)

type notificationProcessor interface {
	Handle(ctx context.Context, n pos.Notification) (*pos.ReconcileOutcome, error)
}

type WebhookHandler struct {
	Reconciler notificationProcessor
	Log        zerolog.Logger
}

// ServeHTTP answers 200 only when the notification was durably applied.
// Transient failures return 5xx so the gateway redelivers; the reconciler
// is idempotent, so redelivery is harmless.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var n pos.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(requestCtx(r), 15*time.Second)
	defer cancel()

	out, err := h.Reconciler.Handle(ctx, n)
	if err != nil {
		code := errStatus(err)
		if code == http.StatusUnauthorized {
			h.Log.Warn().
				Str("order_number", n.OrderNumber).
				Str("transaction_id", n.TransactionID).
				Msg("webhook signature mismatch")
		}
		writeError(w, err)
		return
	}

	h.Log.Info().
		Str("order_number", n.OrderNumber).
		Str("transaction_id", n.TransactionID).
		Str("status", string(out.Order.Status)).
		Bool("repeat", out.Repeat).
		Bool("deducted", out.Deducted).
		Msg("webhook applied")
	writeJSON(w, http.StatusOK, out.Ack())
}
