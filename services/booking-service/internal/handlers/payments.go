package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/tutorbook/libs/httpx"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/payments"
)

// PaymentWebhookHandler applies Stripe payment intent outcomes to bookings.
// The signature is the authentication; no JWT is involved.
type PaymentWebhookHandler struct {
	svc       *booking.Service
	secret    string
	tolerance time.Duration
	logger    *slog.Logger
}

func NewPaymentWebhookHandler(svc *booking.Service, secret string, tolerance time.Duration, logger *slog.Logger) *PaymentWebhookHandler {
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &PaymentWebhookHandler{svc: svc, secret: secret, tolerance: tolerance, logger: logger}
}

func (h *PaymentWebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(h.secret) == "" {
		httpx.WriteError(w, http.StatusServiceUnavailable, "stripe webhook not configured")
		return
	}
	sig := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sig) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing Stripe-Signature header")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	evt, err := payments.ParseEvent(body, sig, h.secret, h.tolerance)
	if errors.Is(err, payments.ErrInvalidSignature) {
		httpx.WriteError(w, http.StatusBadRequest, "invalid signature")
		return
	}
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Info("payment provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evt.Type,
		"booking_id", evt.BookingID,
	)
	if evt.Outcome == payments.OutcomeIgnored {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if evt.BookingID == "" {
		h.logger.Warn("stripe: payment intent without booking_id metadata", "intent_id", evt.IntentID)
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	status := "ok"
	switch evt.Outcome {
	case payments.OutcomeSucceeded:
		_, err = h.svc.Confirm(r.Context(), evt.BookingID)
	case payments.OutcomeAttemptFailed:
		// The payer can retry on the same intent, so the slot stays held.
		h.logger.Info("stripe: payment attempt failed", "booking_id", evt.BookingID, "reason", evt.Reason)
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "pending"})
		return
	case payments.OutcomeCanceled:
		_, err = h.svc.PaymentCanceled(r.Context(), evt.BookingID, evt.Reason)
	}
	switch {
	case err == nil:
	case errors.Is(err, booking.ErrCancelledBeforePayment):
		h.logger.Error("stripe: refund required, payment captured for cancelled booking",
			"booking_id", evt.BookingID,
			"intent_id", evt.IntentID,
			"provider_event_id", evt.ID,
		)
		status = "refund_required"
	case errors.Is(err, booking.ErrNotFound):
		h.logger.Warn("stripe: booking not found", "booking_id", evt.BookingID)
	case errors.Is(err, booking.ErrInvalidTransition):
		// Late or replayed event for a booking that already moved on.
		h.logger.Warn("stripe: event does not apply to booking state", "booking_id", evt.BookingID, "err", err)
	default:
		h.logger.Error("stripe: failed to apply payment event", "booking_id", evt.BookingID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to apply payment event")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": status})
}
