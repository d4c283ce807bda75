package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/model"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// Intent is what the client needs to complete payment for a booking. A
// provider that does not collect payments returns Required == false.
type Intent struct {
	ID           string `json:"id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	Status       string `json:"status"`
	AmountCents  int64  `json:"amount_cents"`
	Currency     string `json:"currency"`
	Required     bool   `json:"required"`
}

type Provider interface {
	CreateSessionPayment(ctx context.Context, b model.Booking) (Intent, error)
	// CancelSessionPayment voids an intent that has not been paid.
	CancelSessionPayment(ctx context.Context, intentID string) error
}

// NewProvider returns a Stripe provider, or a provider that waives payment
// when secretKey is empty.
func NewProvider(secretKey string) Provider {
	if strings.TrimSpace(secretKey) == "" {
		return DisabledProvider{}
	}
	return &StripeProvider{api: client.New(secretKey, nil)}
}

type DisabledProvider struct{}

func (DisabledProvider) CreateSessionPayment(_ context.Context, b model.Booking) (Intent, error) {
	return Intent{Status: "not_required", AmountCents: b.TotalCostCents, Currency: b.Currency}, nil
}

func (DisabledProvider) CancelSessionPayment(context.Context, string) error { return nil }

type StripeProvider struct {
	api *client.API
}

func (p *StripeProvider) CreateSessionPayment(ctx context.Context, b model.Booking) (Intent, error) {
	if b.TotalCostCents <= 0 {
		return Intent{Status: "not_required", Currency: b.Currency}, nil
	}
	currency := strings.ToLower(b.Currency)
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(b.TotalCostCents),
		Currency:    stripe.String(currency),
		Description: stripe.String(fmt.Sprintf("%s session %s", b.Subject, b.Interval)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String("booking:" + b.ID)
	params.AddMetadata(MetadataBookingID, b.ID)
	params.AddMetadata("tutor_id", b.TutorID)
	params.AddMetadata("student_id", b.StudentID)

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("create payment intent: %w", err)
	}
	return Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
		Required:     true,
	}, nil
}

func (p *StripeProvider) CancelSessionPayment(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx
	if _, err := p.api.PaymentIntents.Cancel(intentID, params); err != nil {
		return fmt.Errorf("cancel payment intent %s: %w", intentID, err)
	}
	return nil
}
