package payouts

import (
	"context"
	"errors"
	"fmt"

	"github.com/richxcame/driver-ledger/pkg/common"
	"github.com/richxcame/driver-ledger/pkg/models"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/transfer"
)

// StripeClient submits payouts as Stripe transfers to connected accounts
type StripeClient struct {
	apiKey string
}

// NewStripeClient creates a new Stripe client
func NewStripeClient(apiKey string) *StripeClient {
	stripe.Key = apiKey
	return &StripeClient{apiKey: apiKey}
}

// SubmitPayout creates a transfer to the driver's connected account. The
// payout ID doubles as the Stripe idempotency key so a retried submission
// can never pay twice.
func (s *StripeClient) SubmitPayout(ctx context.Context, payout *models.Payout, destination string) (string, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(payout.Amount),
		Currency:    stripe.String(payout.Currency),
		Destination: stripe.String(destination),
		Description: stripe.String(fmt.Sprintf("Driver payout %s", payout.ID)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(payout.ID.String())
	params.AddMetadata("payout_id", payout.ID.String())
	params.AddMetadata("driver_id", payout.DriverID.String())

	t, err := transfer.New(params)
	if err != nil {
		return "", classifyStripeError(err)
	}

	return t.ID, nil
}

// classifyStripeError separates definite refusals from unknown outcomes.
// A 4xx from Stripe means the transfer was evaluated and refused; anything
// else (5xx, rate limiting, network failure) leaves the outcome unknown.
func classifyStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode >= 500 || stripeErr.HTTPStatusCode == 429 {
			return common.NewProcessorUnavailableError("payment processor is unavailable", err)
		}
		msg := stripeErr.Msg
		if msg == "" {
			msg = "payout was rejected by the payment processor"
		}
		return common.NewProcessorRejectedError(msg, err)
	}
	return common.NewProcessorUnavailableError("payment processor is unreachable", err)
}

// stripeFailureCode extracts the processor failure code, if present
func stripeFailureCode(err error) *string {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Code != "" {
		code := string(stripeErr.Code)
		return &code
	}
	return nil
}
