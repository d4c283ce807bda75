package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/tutorbook/libs/config"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const webhookPath = "/api/v1/payments/webhooks/stripe"

func main() {
	var (
		baseURL = flag.String("base-url", config.String("BASE_URL", "http://localhost:8083"), "booking service base url")
		evtType = flag.String("type", config.String("STRIPE_EVENT_TYPE", string(stripe.EventTypePaymentIntentSucceeded)), "stripe event type")
		booking = flag.String("booking-id", config.String("BOOKING_ID", ""), "booking_id metadata")
		reason  = flag.String("decline-message", "card declined", "last_payment_error message for failed intents")
		secret  = flag.String("secret", config.String("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(*booking) == "" {
		fatal("BOOKING_ID is required")
	}

	now := time.Now().UTC()
	payload, err := buildEventJSON(fmt.Sprintf("evt_test_%d", now.UnixNano()), stripe.EventType(*evtType), now, *booking, *reason)
	if err != nil {
		fatal(err.Error())
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    *secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+webhookPath, bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("status=%d body=%s\n", resp.StatusCode, strings.TrimSpace(string(body)))
}

// buildEventJSON renders the minimal payment_intent event the webhook reads.
func buildEventJSON(eventID string, eventType stripe.EventType, t time.Time, bookingID, declineMessage string) ([]byte, error) {
	intent := map[string]any{
		"id":       "pi_test_" + bookingID,
		"object":   "payment_intent",
		"metadata": map[string]any{"booking_id": bookingID},
	}
	switch eventType {
	case stripe.EventTypePaymentIntentSucceeded:
		intent["status"] = string(stripe.PaymentIntentStatusSucceeded)
	case stripe.EventTypePaymentIntentPaymentFailed:
		intent["status"] = string(stripe.PaymentIntentStatusRequiresPaymentMethod)
		intent["last_payment_error"] = map[string]any{"message": declineMessage}
	case stripe.EventTypePaymentIntentCanceled:
		intent["status"] = string(stripe.PaymentIntentStatusCanceled)
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}
	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"created":     t.Unix(),
		"type":        string(eventType),
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": intent},
	})
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
