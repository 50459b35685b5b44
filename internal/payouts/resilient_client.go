package payouts

import (
	"context"
	"errors"
	"time"

	"github.com/richxcame/driver-ledger/pkg/common"
	"github.com/richxcame/driver-ledger/pkg/models"
	"github.com/richxcame/driver-ledger/pkg/resilience"
)

// ResilientProcessorClient wraps a ProcessorClient with a circuit breaker,
// bounded retries, and a per-submission deadline. Retrying is safe because
// submissions carry an idempotency key derived from the payout ID.
type ResilientProcessorClient struct {
	client  ProcessorClient
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	timeout time.Duration
}

// NewResilientProcessorClient creates a resilient wrapper around a processor client
func NewResilientProcessorClient(client ProcessorClient, timeout time.Duration) *ResilientProcessorClient {
	breaker := resilience.NewCircuitBreaker(resilience.Settings{
		Name:             "payout-processor",
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
	}, nil)

	retryConfig := resilience.DefaultRetryConfig()
	retryConfig.MaxAttempts = 3
	retryConfig.InitialBackoff = 500 * time.Millisecond
	retryConfig.MaxBackoff = 5 * time.Second
	retryConfig.RetryableChecker = func(err error) bool {
		// A definite rejection never becomes a success on retry
		return common.HasCode(err, common.CodeProcessorUnavailable)
	}

	return &ResilientProcessorClient{
		client:  client,
		breaker: breaker,
		retry:   retryConfig,
		timeout: timeout,
	}
}

// SubmitPayout submits a payout, converting breaker and deadline failures
// into unknown-outcome errors
func (r *ResilientProcessorClient) SubmitPayout(ctx context.Context, payout *models.Payout, destination string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := resilience.RetryWithBreaker(ctx, r.retry, r.breaker, func(ctx context.Context) (interface{}, error) {
		return r.client.SubmitPayout(ctx, payout, destination)
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return "", common.NewProcessorUnavailableError("payment processor circuit is open", err)
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", common.NewProcessorUnavailableError("payment processor timed out", err)
		}
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			return "", err
		}
		return "", common.NewProcessorUnavailableError("payout submission failed", err)
	}

	return result.(string), nil
}
