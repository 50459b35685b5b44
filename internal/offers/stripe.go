package offers

import (
	"context"
	"errors"
	"fmt"

	"github.com/richxcame/driver-ledger/pkg/common"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/paymentintent"
)

// StripeChargeClient charges riders through Stripe payment intents
type StripeChargeClient struct {
	apiKey string
}

// NewStripeChargeClient creates a new Stripe charge client
func NewStripeChargeClient(apiKey string) *StripeChargeClient {
	stripe.Key = apiKey
	return &StripeChargeClient{apiKey: apiKey}
}

// CreateCharge creates a payment intent for the fare and returns its ID
func (s *StripeChargeClient) CreateCharge(ctx context.Context, amount int64, currency, description string, metadata map[string]string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(amount),
		Currency:    stripe.String(currency),
		Description: stripe.String(description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if offerID, ok := metadata["offer_id"]; ok {
		params.SetIdempotencyKey("charge-" + offerID)
	}
	for key, value := range metadata {
		params.AddMetadata(key, value)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode < 500 && stripeErr.HTTPStatusCode != 429 {
			return "", common.NewProcessorRejectedError(fmt.Sprintf("charge was rejected: %s", stripeErr.Msg), err)
		}
		return "", common.NewProcessorUnavailableError("failed to create charge", err)
	}

	return pi.ID, nil
}
