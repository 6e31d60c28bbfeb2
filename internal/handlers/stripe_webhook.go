package handlers

import (
	"io"
	"net/http"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/lojf/vbs/internal/payments"
)

const maxWebhookBody = 64 << 10

// POST /stripe/webhook
//
// Not-found and already-claimed outcomes answer 200 so the provider stops
// retrying; storage failures answer 500 so it retries later.
func (h *Handlers) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
		return
	}

	ev, err := h.Checkout.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Cause(err) == payments.ErrBadSignature {
			h.log.Warn("webhook signature rejected", zap.Error(err))
			http.Error(w, "bad signature", http.StatusBadRequest)
			return
		}
		h.log.Warn("webhook payload rejected", zap.Error(err))
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	if !ev.Completed() {
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "type": ev.Type})
		return
	}

	rep, err := h.Payments.FinalizeAndNotify(r.Context(), ev.RegistrationID, ev.SessionID)
	if err != nil {
		h.log.Error("finalize from webhook",
			zap.Uint("registration_id", ev.RegistrationID),
			zap.String("session_id", ev.SessionID),
			zap.Error(err),
		)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"received": true,
		"outcome":  rep.Outcome.String(),
		"notified": rep.Notified,
	})
}
