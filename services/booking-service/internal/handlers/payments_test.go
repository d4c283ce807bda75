package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/payments"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const webhookSecret = "whsec_handler_test"

func stripeRequest(t *testing.T, eventType, bookingID string) *http.Request {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_" + bookingID,
		"object":      "event",
		"created":     time.Now().Unix(),
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data": map[string]any{"object": map[string]any{
			"id":       "pi_" + bookingID,
			"object":   "payment_intent",
			"metadata": map[string]any{payments.MetadataBookingID: bookingID},
		}},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    webhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func TestStripeWebhookConfirmsBooking(t *testing.T) {
	f := newFixture(t, booking.GuardLock, payments.DisabledProvider{})
	f.store.PutBooking(activeBooking("b1", sessionStart, model.StatusPending))
	h := NewPaymentWebhookHandler(f.svc, webhookSecret, 0, discard)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.Stripe(rec, stripeRequest(t, "payment_intent.succeeded", "b1"))
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d: %s", i, rec.Code, rec.Body.String())
		}
	}
	if b, _ := f.store.Booking("b1"); b.Status != model.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", b.Status)
	}
}

func TestStripeWebhookFailedAttemptKeepsBookingPending(t *testing.T) {
	f := newFixture(t, booking.GuardLock, payments.DisabledProvider{})
	f.store.PutBooking(activeBooking("b2", sessionStart, model.StatusPending))
	h := NewPaymentWebhookHandler(f.svc, webhookSecret, 0, discard)

	rec := httptest.NewRecorder()
	h.Stripe(rec, stripeRequest(t, "payment_intent.payment_failed", "b2"))
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`"pending"`)) {
		t.Fatalf("expected pending 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if b, _ := f.store.Booking("b2"); b.Status != model.StatusPending {
		t.Fatalf("declined attempt must keep the booking pending, got %s", b.Status)
	}

	// The payer retries on the same intent and succeeds.
	rec = httptest.NewRecorder()
	h.Stripe(rec, stripeRequest(t, "payment_intent.succeeded", "b2"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if b, _ := f.store.Booking("b2"); b.Status != model.StatusConfirmed {
		t.Fatalf("expected confirmed after retry, got %s", b.Status)
	}
}

func TestStripeWebhookCanceledIntentCancelsBooking(t *testing.T) {
	provider := &recordingProvider{}
	f := newFixture(t, booking.GuardLock, provider)
	b := activeBooking("b3", sessionStart, model.StatusPending)
	b.PaymentIntentID = "pi_b3"
	f.store.PutBooking(b)
	h := NewPaymentWebhookHandler(f.svc, webhookSecret, 0, discard)

	rec := httptest.NewRecorder()
	h.Stripe(rec, stripeRequest(t, "payment_intent.canceled", "b3"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	stored, _ := f.store.Booking("b3")
	if stored.Status != model.StatusCancelled || stored.CancelReason != "payment canceled" {
		t.Fatalf("expected cancelled booking, got %+v", stored)
	}
	if got := provider.cancelledIntents(); len(got) != 0 {
		t.Fatalf("an intent Stripe already cancelled must not be cancelled again, got %v", got)
	}
}

func TestStripeWebhookSuccessAfterCancelNeedsRefund(t *testing.T) {
	f := newFixture(t, booking.GuardLock, payments.DisabledProvider{})
	f.store.PutBooking(activeBooking("b4", sessionStart, model.StatusPending))
	if _, err := f.svc.Cancel(context.Background(), "b4", booking.SystemActor, "payment not received"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	h := NewPaymentWebhookHandler(f.svc, webhookSecret, 0, discard)

	rec := httptest.NewRecorder()
	h.Stripe(rec, stripeRequest(t, "payment_intent.succeeded", "b4"))
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("refund_required")) {
		t.Fatalf("expected refund_required 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if b, _ := f.store.Booking("b4"); b.Status != model.StatusCancelled {
		t.Fatalf("late payment must not revive booking, got %s", b.Status)
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t, booking.GuardLock, payments.DisabledProvider{})
	h := NewPaymentWebhookHandler(f.svc, "whsec_other", 0, discard)

	rec := httptest.NewRecorder()
	h.Stripe(rec, stripeRequest(t, "payment_intent.succeeded", "b1"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	unconfigured := NewPaymentWebhookHandler(f.svc, "", 0, discard)
	rec = httptest.NewRecorder()
	unconfigured.Stripe(rec, stripeRequest(t, "payment_intent.succeeded", "b1"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestStripeWebhookIgnoresOtherEvents(t *testing.T) {
	f := newFixture(t, booking.GuardLock, payments.DisabledProvider{})
	h := NewPaymentWebhookHandler(f.svc, webhookSecret, 0, discard)

	rec := httptest.NewRecorder()
	h.Stripe(rec, stripeRequest(t, "customer.created", "b1"))
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("ignored")) {
		t.Fatalf("expected ignored 200, got %d: %s", rec.Code, rec.Body.String())
	}
}
