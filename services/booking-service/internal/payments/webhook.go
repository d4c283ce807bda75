package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const MetadataBookingID = "booking_id"

var ErrInvalidSignature = errors.New("invalid webhook signature")

type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeSucceeded
	// OutcomeAttemptFailed is a declined attempt. The intent returns to
	// requires_payment_method and the payer may retry with it.
	OutcomeAttemptFailed
	// OutcomeCanceled is terminal: the intent can no longer be paid.
	OutcomeCanceled
)

// PaymentEvent is the part of a Stripe event the booking flow acts on.
type PaymentEvent struct {
	ID         string
	Type       string
	IntentID   string
	BookingID  string
	Outcome    Outcome
	Reason     string
	OccurredAt time.Time
}

// ParseEvent verifies the Stripe-Signature header of payload and extracts
// the payment intent outcome. Events for other objects come back with
// OutcomeIgnored.
func ParseEvent(payload []byte, signature, secret string, tolerance time.Duration) (PaymentEvent, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return PaymentEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := PaymentEvent{
		ID:         evt.ID,
		Type:       string(evt.Type),
		OccurredAt: time.Unix(evt.Created, 0).UTC(),
	}
	switch evt.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		out.Outcome = OutcomeSucceeded
	case stripe.EventTypePaymentIntentPaymentFailed:
		out.Outcome = OutcomeAttemptFailed
		out.Reason = "payment failed"
	case stripe.EventTypePaymentIntentCanceled:
		out.Outcome = OutcomeCanceled
		out.Reason = "payment canceled"
	default:
		return out, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
		return PaymentEvent{}, fmt.Errorf("decode payment intent: %w", err)
	}
	out.IntentID = pi.ID
	out.BookingID = strings.TrimSpace(pi.Metadata[MetadataBookingID])
	if out.Outcome == OutcomeAttemptFailed && pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		out.Reason = "payment failed: " + pi.LastPaymentError.Msg
	}
	if out.Outcome == OutcomeCanceled && pi.CancellationReason != "" {
		out.Reason = "payment canceled: " + string(pi.CancellationReason)
	}
	return out, nil
}
