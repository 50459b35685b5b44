package payouts_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/driver-ledger/internal/ledger"
	"github.com/richxcame/driver-ledger/internal/payouts"
	"github.com/richxcame/driver-ledger/pkg/common"
	"github.com/richxcame/driver-ledger/pkg/config"
	"github.com/richxcame/driver-ledger/pkg/eventbus"
	"github.com/richxcame/driver-ledger/pkg/models"
	"github.com/richxcame/driver-ledger/test/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	service    *payouts.Service
	ledger     *ledger.Service
	ledgerRepo *mocks.MemoryLedgerRepository
	payoutRepo *mocks.MemoryPayoutRepository
	processor  *mocks.FakeProcessor
	publisher  *mocks.MemoryPublisher
	driverID   uuid.UUID
}

func newFixture(t *testing.T, balance int64) *fixture {
	t.Helper()

	cfg := &config.LedgerConfig{
		Currency:        "usd",
		CommissionBps:   2000,
		MinPayoutAmount: 500,
	}

	ledgerRepo := mocks.NewMemoryLedgerRepository()
	payoutRepo := mocks.NewMemoryPayoutRepository(ledgerRepo)
	processor := &mocks.FakeProcessor{}
	publisher := mocks.NewMemoryPublisher()

	ledgerService := ledger.NewService(ledgerRepo, publisher, cfg)
	service := payouts.NewService(payoutRepo, ledgerService, processor, publisher, cfg)

	f := &fixture{
		service:    service,
		ledger:     ledgerService,
		ledgerRepo: ledgerRepo,
		payoutRepo: payoutRepo,
		processor:  processor,
		publisher:  publisher,
		driverID:   uuid.New(),
	}

	if balance > 0 {
		wallet, err := ledgerService.GetOrCreateWallet(context.Background(), f.driverID)
		require.NoError(t, err)
		_, err = ledgerService.Credit(context.Background(), wallet.ID, balance, models.KindAdjustment, nil, "seed balance")
		require.NoError(t, err)
	}

	// Most tests need a verified destination on file
	_, err := service.UpsertAccount(context.Background(), f.driverID, "acct_test")
	require.NoError(t, err)

	return f
}

func (f *fixture) balance(t *testing.T) int64 {
	t.Helper()
	wallet, err := f.ledger.GetWallet(context.Background(), f.driverID)
	require.NoError(t, err)
	return wallet.Balance
}

func (f *fixture) settledEvents() int {
	n := 0
	for _, e := range f.publisher.Events() {
		if e.Subject == eventbus.SubjectPayoutSettled {
			n++
		}
	}
	return n
}

func TestService_Create_DebitsWalletUpFront(t *testing.T) {
	f := newFixture(t, 2000)

	payout, err := f.service.Create(context.Background(), f.driverID, 1500)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPending, payout.Status)
	assert.Equal(t, int64(1500), payout.Amount)
	assert.Equal(t, int64(500), f.balance(t))

	debit, err := f.ledgerRepo.GetTransactionByID(context.Background(), payout.DebitTransactionID)
	require.NoError(t, err)
	assert.Equal(t, int64(-1500), debit.Amount)
	assert.Equal(t, models.TransactionPending, debit.Status)
	assert.Equal(t, models.KindPayoutDebit, debit.Kind)
}

func TestService_Create_BelowMinimum(t *testing.T) {
	f := newFixture(t, 2000)

	_, err := f.service.Create(context.Background(), f.driverID, 100)
	assert.True(t, common.HasCode(err, common.CodeInvalidAmount))
	assert.Equal(t, int64(2000), f.balance(t))
}

func TestService_Create_InsufficientFunds(t *testing.T) {
	f := newFixture(t, 1000)

	_, err := f.service.Create(context.Background(), f.driverID, 1500)
	assert.True(t, common.HasCode(err, common.CodeInsufficientFunds))
	assert.Equal(t, int64(1000), f.balance(t))
}

func TestService_Create_FailureLeavesWalletIntact(t *testing.T) {
	f := newFixture(t, 5000)

	f.payoutRepo.FailNextCreate(common.NewInternalError("connection reset", nil))
	_, err := f.service.Create(context.Background(), f.driverID, 1500)
	require.Error(t, err)

	// The debit and the payout row land together or not at all
	assert.Equal(t, int64(5000), f.balance(t))
	_, total, err := f.service.ListPayouts(context.Background(), f.driverID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	txns, _, err := f.ledger.ListTransactions(context.Background(), f.driverID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, txns, 1) // only the seed credit

	payout, err := f.service.Create(context.Background(), f.driverID, 1500)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPending, payout.Status)
	assert.Equal(t, int64(3500), f.balance(t))
}

func TestService_Submit_Success(t *testing.T) {
	f := newFixture(t, 2000)

	payout, err := f.service.Create(context.Background(), f.driverID, 1500)
	require.NoError(t, err)

	settled, err := f.service.Submit(context.Background(), payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutSucceeded, settled.Status)
	require.NotNil(t, settled.ProcessorReference)
	assert.Equal(t, "tr_"+payout.ID.String(), *settled.ProcessorReference)

	// Funds are gone for good and the debit has settled
	assert.Equal(t, int64(500), f.balance(t))
	debit, err := f.ledgerRepo.GetTransactionByID(context.Background(), payout.DebitTransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionSucceeded, debit.Status)

	assert.Equal(t, 1, f.settledEvents())
}

func TestService_Submit_ProcessorRejection_RefundsWallet(t *testing.T) {
	f := newFixture(t, 2000)
	f.processor.SubmitFunc = func(ctx context.Context, payout *models.Payout, destination string) (string, error) {
		return "", common.NewProcessorRejectedError("account cannot receive transfers", nil)
	}

	payout, err := f.service.Create(context.Background(), f.driverID, 1500)
	require.NoError(t, err)

	settled, err := f.service.Submit(context.Background(), payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutFailed, settled.Status)
	require.NotNil(t, settled.FailureReason)

	// Refunded in full via a compensating entry
	assert.Equal(t, int64(2000), f.balance(t))
	debit, err := f.ledgerRepo.GetTransactionByID(context.Background(), payout.DebitTransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionFailed, debit.Status)

	refund, err := f.ledgerRepo.FindReversal(context.Background(), payout.DebitTransactionID)
	require.NoError(t, err)
	require.NotNil(t, refund)
	assert.Equal(t, models.KindPayoutRefund, refund.Kind)
	assert.Equal(t, int64(1500), refund.Amount)
}

func TestService_Submit_ProcessorUnavailable_StaysProcessing(t *testing.T) {
	f := newFixture(t, 2000)
	f.processor.SubmitFunc = func(ctx context.Context, payout *models.Payout, destination string) (string, error) {
		return "", common.NewProcessorUnavailableError("gateway timeout", nil)
	}

	payout, err := f.service.Create(context.Background(), f.driverID, 1500)
	require.NoError(t, err)

	_, err = f.service.Submit(context.Background(), payout.ID)
	assert.True(t, common.HasCode(err, common.CodeProcessorUnavailable))

	// Outcome unknown: no refund, payout parked in processing
	current, err := f.service.GetPayout(context.Background(), payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutProcessing, current.Status)
	assert.Equal(t, int64(500), f.balance(t))
	assert.Equal(t, 0, f.settledEvents())
}

func TestService_Submit_ProcessingRejectsResubmit(t *testing.T) {
	f := newFixture(t, 2000)
	f.processor.SubmitFunc = func(ctx context.Context, payout *models.Payout, destination string) (string, error) {
		return "", common.NewProcessorUnavailableError("gateway timeout", nil)
	}

	payout, err := f.service.Create(context.Background(), f.driverID, 1500)
	require.NoError(t, err)

	_, err = f.service.Submit(context.Background(), payout.ID)
	require.Error(t, err)

	_, err = f.service.Submit(context.Background(), payout.ID)
	assert.True(t, common.HasCode(err, common.CodeStateConflict))
	assert.Equal(t, 1, f.processor.Calls())
}

func TestService_Submit_TerminalPayout(t *testing.T) {
	f := newFixture(t, 2000)

	payout, err := f.service.Create(context.Background(), f.driverID, 1500)
	require.NoError(t, err)

	_, err = f.service.Submit(context.Background(), payout.ID)
	require.NoError(t, err)

	_, err = f.service.Submit(context.Background(), payout.ID)
	assert.True(t, common.HasCode(err, common.CodeAlreadyTerminal))
	assert.Equal(t, 1, f.processor.Calls())
}

func TestService_Submit_NoPayoutAccount_FailsAndRefunds(t *testing.T) {
	f := newFixture(t, 2000)

	otherDriver := uuid.New()
	wallet, err := f.ledger.GetOrCreateWallet(context.Background(), otherDriver)
	require.NoError(t, err)
	_, err = f.ledger.Credit(context.Background(), wallet.ID, 2000, models.KindAdjustment, nil, "seed")
	require.NoError(t, err)

	payout, err := f.service.Create(context.Background(), otherDriver, 1500)
	require.NoError(t, err)

	settled, err := f.service.Submit(context.Background(), payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutFailed, settled.Status)
	require.NotNil(t, settled.FailureCode)
	assert.Equal(t, "no_payout_account", *settled.FailureCode)
	assert.Equal(t, 0, f.processor.Calls())

	updated, err := f.ledger.GetWallet(context.Background(), otherDriver)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), updated.Balance)
}

func TestService_Settle_FailedIsIdempotent(t *testing.T) {
	f := newFixture(t, 2000)
	f.processor.SubmitFunc = func(ctx context.Context, payout *models.Payout, destination string) (string, error) {
		return "", common.NewProcessorUnavailableError("gateway timeout", nil)
	}

	payout, err := f.service.Create(context.Background(), f.driverID, 1500)
	require.NoError(t, err)
	_, err = f.service.Submit(context.Background(), payout.ID)
	require.Error(t, err)

	code := "stale"
	reason := "stuck payout cleared by reconciliation"
	first, err := f.service.Settle(context.Background(), payout.ID, models.PayoutFailed, &code, &reason)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutFailed, first.Status)
	assert.Equal(t, int64(2000), f.balance(t))

	second, err := f.service.Settle(context.Background(), payout.ID, models.PayoutFailed, &code, &reason)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutFailed, second.Status)

	// Exactly one refund despite two settlements
	assert.Equal(t, int64(2000), f.balance(t))
	assert.Equal(t, 1, f.settledEvents())
}

// A refund that fails after the failed status lands must not be lost: the
// payout is already failed, so later settlements see a no-op transition and
// still have to perform the refund.
func TestService_Settle_RetryRecoversMissedRefund(t *testing.T) {
	f := newFixture(t, 2000)
	f.processor.SubmitFunc = func(ctx context.Context, payout *models.Payout, destination string) (string, error) {
		return "", common.NewProcessorUnavailableError("gateway timeout", nil)
	}

	payout, err := f.service.Create(context.Background(), f.driverID, 1500)
	require.NoError(t, err)
	_, err = f.service.Submit(context.Background(), payout.ID)
	require.Error(t, err)

	code := "stale"
	reason := "stuck payout cleared by reconciliation"
	f.ledgerRepo.FailNextApply(common.NewInternalError("connection reset", nil))
	_, err = f.service.Settle(context.Background(), payout.ID, models.PayoutFailed, &code, &reason)
	require.Error(t, err)

	// The status flipped but the wallet was not refunded
	current, err := f.service.GetPayout(context.Background(), payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutFailed, current.Status)
	assert.Equal(t, int64(500), f.balance(t))
	refund, err := f.ledgerRepo.FindReversal(context.Background(), payout.DebitTransactionID)
	require.NoError(t, err)
	require.Nil(t, refund)

	// Retrying the settlement performs the missed refund
	settled, err := f.service.Settle(context.Background(), payout.ID, models.PayoutFailed, &code, &reason)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutFailed, settled.Status)
	assert.Equal(t, int64(2000), f.balance(t))

	refund, err = f.ledgerRepo.FindReversal(context.Background(), payout.DebitTransactionID)
	require.NoError(t, err)
	require.NotNil(t, refund)
	assert.Equal(t, int64(1500), refund.Amount)
	assert.Equal(t, 1, f.settledEvents())
}

// Same shape for the success side: marking the debit succeeded may fail
// after the payout settles, and a webhook replay has to finish the job.
func TestService_Settle_RetryRecoversPendingDebit(t *testing.T) {
	f := newFixture(t, 2000)

	payout, err := f.service.Create(context.Background(), f.driverID, 1500)
	require.NoError(t, err)

	f.ledgerRepo.FailNextStatusUpdate(common.NewInternalError("connection reset", nil))
	_, err = f.service.Submit(context.Background(), payout.ID)
	require.Error(t, err)

	current, err := f.service.GetPayout(context.Background(), payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutSucceeded, current.Status)
	debit, err := f.ledgerRepo.GetTransactionByID(context.Background(), payout.DebitTransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionPending, debit.Status)

	settled, err := f.service.Settle(context.Background(), payout.ID, models.PayoutSucceeded, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutSucceeded, settled.Status)

	debit, err = f.ledgerRepo.GetTransactionByID(context.Background(), payout.DebitTransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionSucceeded, debit.Status)
	assert.Equal(t, int64(500), f.balance(t))
}

func TestService_Settle_ConflictingTerminalStates(t *testing.T) {
	f := newFixture(t, 2000)

	payout, err := f.service.Create(context.Background(), f.driverID, 1500)
	require.NoError(t, err)
	_, err = f.service.Submit(context.Background(), payout.ID)
	require.NoError(t, err)

	_, err = f.service.Settle(context.Background(), payout.ID, models.PayoutFailed, nil, nil)
	assert.True(t, common.HasCode(err, common.CodeAlreadyTerminal))
	assert.Equal(t, int64(500), f.balance(t))
}

func TestService_Settle_RejectsNonTerminalStatus(t *testing.T) {
	f := newFixture(t, 2000)

	payout, err := f.service.Create(context.Background(), f.driverID, 1500)
	require.NoError(t, err)

	_, err = f.service.Settle(context.Background(), payout.ID, models.PayoutProcessing, nil, nil)
	require.Error(t, err)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 400, appErr.Code)
}

func TestService_ResolveByProcessorRef(t *testing.T) {
	f := newFixture(t, 2000)
	f.processor.SubmitFunc = nil

	payout, err := f.service.Create(context.Background(), f.driverID, 1500)
	require.NoError(t, err)
	settled, err := f.service.Submit(context.Background(), payout.ID)
	require.NoError(t, err)
	require.NotNil(t, settled.ProcessorReference)

	// Webhook re-reporting the same outcome is a no-op
	again, err := f.service.ResolveByProcessorRef(context.Background(), *settled.ProcessorReference, models.PayoutSucceeded, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutSucceeded, again.Status)
	assert.Equal(t, 1, f.settledEvents())

	_, err = f.service.ResolveByProcessorRef(context.Background(), "tr_unknown", models.PayoutFailed, nil, nil)
	assert.True(t, common.HasCode(err, common.CodeNotFound))
}

// Two settlers racing to fail the same payout must produce exactly one
// refund, whichever wins the conditional transition.
func TestService_ConcurrentSettle_SingleRefund(t *testing.T) {
	f := newFixture(t, 2000)
	f.processor.SubmitFunc = func(ctx context.Context, payout *models.Payout, destination string) (string, error) {
		return "", common.NewProcessorUnavailableError("gateway timeout", nil)
	}

	payout, err := f.service.Create(context.Background(), f.driverID, 1500)
	require.NoError(t, err)
	_, err = f.service.Submit(context.Background(), payout.ID)
	require.Error(t, err)

	reason := "stuck payout cleared by reconciliation"
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Settle(context.Background(), payout.ID, models.PayoutFailed, nil, &reason)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(2000), f.balance(t))

	current, err := f.service.GetPayout(context.Background(), payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutFailed, current.Status)
}

// A success report and a failure report racing for the same processing
// payout must agree on one outcome: either the debit settles and the wallet
// stays debited, or the payout fails and the wallet is refunded exactly
// once. The loser of the transition gets already_terminal.
func TestService_ConcurrentSettle_OppositeOutcomes(t *testing.T) {
	f := newFixture(t, 2000)
	f.processor.SubmitFunc = func(ctx context.Context, payout *models.Payout, destination string) (string, error) {
		return "", common.NewProcessorUnavailableError("gateway timeout", nil)
	}

	payout, err := f.service.Create(context.Background(), f.driverID, 1500)
	require.NoError(t, err)
	_, err = f.service.Submit(context.Background(), payout.ID)
	require.Error(t, err)

	code := "stale"
	reason := "stuck payout cleared by reconciliation"
	results := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, results[0] = f.service.Settle(context.Background(), payout.ID, models.PayoutSucceeded, nil, nil)
	}()
	go func() {
		defer wg.Done()
		_, results[1] = f.service.Settle(context.Background(), payout.ID, models.PayoutFailed, &code, &reason)
	}()
	wg.Wait()

	current, err := f.service.GetPayout(context.Background(), payout.ID)
	require.NoError(t, err)
	require.True(t, current.Status.IsTerminal())

	refund, err := f.ledgerRepo.FindReversal(context.Background(), payout.DebitTransactionID)
	require.NoError(t, err)
	debit, err := f.ledgerRepo.GetTransactionByID(context.Background(), payout.DebitTransactionID)
	require.NoError(t, err)

	switch current.Status {
	case models.PayoutSucceeded:
		assert.Nil(t, refund)
		assert.Equal(t, models.TransactionSucceeded, debit.Status)
		assert.Equal(t, int64(500), f.balance(t))
		assert.True(t, common.HasCode(results[1], common.CodeAlreadyTerminal))
	default:
		require.NotNil(t, refund)
		assert.Equal(t, int64(1500), refund.Amount)
		assert.Equal(t, int64(2000), f.balance(t))
		assert.True(t, common.HasCode(results[0], common.CodeAlreadyTerminal))
	}
}

func TestService_FindStale_OnlyNonTerminal(t *testing.T) {
	f := newFixture(t, 5000)

	stuck, err := f.service.Create(context.Background(), f.driverID, 1000)
	require.NoError(t, err)
	settledOK, err := f.service.Create(context.Background(), f.driverID, 1000)
	require.NoError(t, err)
	_, err = f.service.Submit(context.Background(), settledOK.ID)
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	f.payoutRepo.SetUpdatedAt(stuck.ID, past)
	f.payoutRepo.SetUpdatedAt(settledOK.ID, past)

	stale, err := f.payoutRepo.FindStale(context.Background(), time.Now().Add(-30*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, stuck.ID, stale[0].ID)
}

func TestService_ConcurrentCreate_CannotOverdraw(t *testing.T) {
	f := newFixture(t, 5000)

	// Two 3000 payouts race for a 5000 balance; at most one can win
	results := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.service.Create(context.Background(), f.driverID, 3000)
			results[i] = err
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		ok := common.HasCode(err, common.CodeInsufficientFunds) ||
			common.HasCode(err, common.CodeStateConflict)
		assert.True(t, ok, "unexpected error: %v", err)
	}

	require.LessOrEqual(t, succeeded, 1)
	assert.Equal(t, 5000-int64(succeeded)*3000, f.balance(t))

	page, total, err := f.service.ListPayouts(context.Background(), f.driverID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(succeeded), total)
	assert.Len(t, page, succeeded)
}
