package payouts_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/richxcame/driver-ledger/internal/payouts"
	"github.com/richxcame/driver-ledger/pkg/common"
	"github.com/richxcame/driver-ledger/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProcessor counts calls and delegates to fn.
type scriptedProcessor struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context) (string, error)
}

func (p *scriptedProcessor) SubmitPayout(ctx context.Context, payout *models.Payout, destination string) (string, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.fn(ctx)
}

func (p *scriptedProcessor) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func submitOnce(t *testing.T, client *payouts.ResilientProcessorClient) error {
	t.Helper()
	payout := &models.Payout{Amount: 1000, Currency: "usd"}
	_, err := client.SubmitPayout(context.Background(), payout, "acct_test")
	return err
}

func TestResilientClient_RejectionIsNotRetried(t *testing.T) {
	stub := &scriptedProcessor{fn: func(ctx context.Context) (string, error) {
		return "", common.NewProcessorRejectedError("card_declined", nil)
	}}
	client := payouts.NewResilientProcessorClient(stub, 5*time.Second)

	err := submitOnce(t, client)
	require.Error(t, err)
	assert.True(t, common.HasCode(err, common.CodeProcessorRejected))
	assert.Equal(t, 1, stub.callCount())
}

func TestResilientClient_UnavailableIsRetried(t *testing.T) {
	stub := &scriptedProcessor{fn: func(ctx context.Context) (string, error) {
		return "", common.NewProcessorUnavailableError("connection reset", nil)
	}}
	client := payouts.NewResilientProcessorClient(stub, 30*time.Second)

	err := submitOnce(t, client)
	require.Error(t, err)
	assert.True(t, common.HasCode(err, common.CodeProcessorUnavailable))
	assert.Equal(t, 3, stub.callCount())
}

func TestResilientClient_TimeoutBecomesUnavailable(t *testing.T) {
	stub := &scriptedProcessor{fn: func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	client := payouts.NewResilientProcessorClient(stub, 50*time.Millisecond)

	err := submitOnce(t, client)
	require.Error(t, err)
	assert.True(t, common.HasCode(err, common.CodeProcessorUnavailable))
	assert.Equal(t, 1, stub.callCount())
}

func TestResilientClient_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	stub := &scriptedProcessor{fn: func(ctx context.Context) (string, error) {
		return "", common.NewProcessorUnavailableError("connection reset", nil)
	}}
	client := payouts.NewResilientProcessorClient(stub, 30*time.Second)

	// Two submissions burn through the breaker's failure budget
	require.Error(t, submitOnce(t, client))
	require.Error(t, submitOnce(t, client))
	before := stub.callCount()

	err := submitOnce(t, client)
	require.Error(t, err)
	assert.True(t, common.HasCode(err, common.CodeProcessorUnavailable))
	assert.Equal(t, before, stub.callCount(), "open breaker must not reach the processor")
}

func TestResilientClient_SuccessPassesThrough(t *testing.T) {
	stub := &scriptedProcessor{fn: func(ctx context.Context) (string, error) {
		return "tr_123", nil
	}}
	client := payouts.NewResilientProcessorClient(stub, 5*time.Second)

	payout := &models.Payout{Amount: 1000, Currency: "usd"}
	ref, err := client.SubmitPayout(context.Background(), payout, "acct_test")
	require.NoError(t, err)
	assert.Equal(t, "tr_123", ref)
	assert.Equal(t, 1, stub.callCount())
}
