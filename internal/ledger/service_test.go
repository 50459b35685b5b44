package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/richxcame/driver-ledger/pkg/common"
	"github.com/richxcame/driver-ledger/pkg/config"
	"github.com/richxcame/driver-ledger/pkg/eventbus"
	"github.com/richxcame/driver-ledger/pkg/models"
	"github.com/richxcame/driver-ledger/test/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLedgerConfig() *config.LedgerConfig {
	return &config.LedgerConfig{
		Currency:      "usd",
		CommissionBps: 2000,
	}
}

func newTestService() (*Service, *mocks.MemoryLedgerRepository, *mocks.MemoryPublisher) {
	repo := mocks.NewMemoryLedgerRepository()
	publisher := mocks.NewMemoryPublisher()
	return NewService(repo, publisher, testLedgerConfig()), repo, publisher
}

func mustWallet(t *testing.T, s *Service, driverID uuid.UUID) *models.Wallet {
	t.Helper()
	wallet, err := s.GetOrCreateWallet(context.Background(), driverID)
	require.NoError(t, err)
	return wallet
}

func TestService_GetOrCreateWallet(t *testing.T) {
	s, _, _ := newTestService()
	driverID := uuid.New()

	wallet, err := s.GetOrCreateWallet(context.Background(), driverID)
	require.NoError(t, err)
	assert.Equal(t, driverID, wallet.DriverID)
	assert.Equal(t, int64(0), wallet.Balance)
	assert.Equal(t, "usd", wallet.Currency)
	assert.True(t, wallet.IsActive)

	again, err := s.GetOrCreateWallet(context.Background(), driverID)
	require.NoError(t, err)
	assert.Equal(t, wallet.ID, again.ID)
}

func TestService_Credit_Success(t *testing.T) {
	s, _, _ := newTestService()
	wallet := mustWallet(t, s, uuid.New())

	txn, err := s.Credit(context.Background(), wallet.ID, 1500, models.KindAdjustment, nil, "promo bonus")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), txn.Amount)
	assert.Equal(t, models.TransactionSucceeded, txn.Status)
	assert.True(t, txn.IsCredit())

	updated, err := s.GetWallet(context.Background(), wallet.DriverID)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), updated.Balance)
}

func TestService_Credit_InvalidAmount(t *testing.T) {
	s, _, _ := newTestService()
	wallet := mustWallet(t, s, uuid.New())

	_, err := s.Credit(context.Background(), wallet.ID, 0, models.KindAdjustment, nil, "nothing")
	assert.True(t, common.HasCode(err, common.CodeInvalidAmount))

	_, err = s.Credit(context.Background(), wallet.ID, -100, models.KindAdjustment, nil, "negative")
	assert.True(t, common.HasCode(err, common.CodeInvalidAmount))
}

func TestService_Debit_InsufficientFunds(t *testing.T) {
	s, _, _ := newTestService()
	wallet := mustWallet(t, s, uuid.New())

	_, err := s.Credit(context.Background(), wallet.ID, 500, models.KindAdjustment, nil, "seed")
	require.NoError(t, err)

	_, err = s.Debit(context.Background(), wallet.ID, 600, models.KindPayoutDebit, nil, "payout")
	assert.True(t, common.HasCode(err, common.CodeInsufficientFunds))

	// Balance untouched after rejection
	updated, err := s.GetWallet(context.Background(), wallet.DriverID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), updated.Balance)
}

func TestService_Debit_PayoutDebitStartsPending(t *testing.T) {
	s, _, _ := newTestService()
	wallet := mustWallet(t, s, uuid.New())

	_, err := s.Credit(context.Background(), wallet.ID, 1000, models.KindAdjustment, nil, "seed")
	require.NoError(t, err)

	payoutID := uuid.New()
	txn, err := s.Debit(context.Background(), wallet.ID, 400, models.KindPayoutDebit, &payoutID, "payout")
	require.NoError(t, err)
	assert.Equal(t, int64(-400), txn.Amount)
	assert.Equal(t, models.TransactionPending, txn.Status)

	updated, err := s.GetWallet(context.Background(), wallet.DriverID)
	require.NoError(t, err)
	assert.Equal(t, int64(600), updated.Balance)
}

func TestService_Reverse_RestoresBalance(t *testing.T) {
	s, repo, _ := newTestService()
	wallet := mustWallet(t, s, uuid.New())

	_, err := s.Credit(context.Background(), wallet.ID, 1000, models.KindAdjustment, nil, "seed")
	require.NoError(t, err)

	debit, err := s.Debit(context.Background(), wallet.ID, 400, models.KindPayoutDebit, nil, "payout")
	require.NoError(t, err)

	reversal, err := s.Reverse(context.Background(), debit.ID, "payout rejected by processor")
	require.NoError(t, err)
	assert.Equal(t, int64(400), reversal.Amount)
	assert.Equal(t, models.KindPayoutRefund, reversal.Kind)
	require.NotNil(t, reversal.ReversalOf)
	assert.Equal(t, debit.ID, *reversal.ReversalOf)

	updated, err := s.GetWallet(context.Background(), wallet.DriverID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), updated.Balance)

	original, err := repo.GetTransactionByID(context.Background(), debit.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionFailed, original.Status)
}

func TestService_Reverse_OnlyOnce(t *testing.T) {
	s, _, _ := newTestService()
	wallet := mustWallet(t, s, uuid.New())

	_, err := s.Credit(context.Background(), wallet.ID, 1000, models.KindAdjustment, nil, "seed")
	require.NoError(t, err)

	debit, err := s.Debit(context.Background(), wallet.ID, 400, models.KindPayoutDebit, nil, "payout")
	require.NoError(t, err)

	_, err = s.Reverse(context.Background(), debit.ID, "first")
	require.NoError(t, err)

	_, err = s.Reverse(context.Background(), debit.ID, "second")
	assert.True(t, common.HasCode(err, common.CodeAlreadyReversed))
}

func TestService_Reverse_ReversalIsNotReversible(t *testing.T) {
	s, _, _ := newTestService()
	wallet := mustWallet(t, s, uuid.New())

	_, err := s.Credit(context.Background(), wallet.ID, 1000, models.KindAdjustment, nil, "seed")
	require.NoError(t, err)

	debit, err := s.Debit(context.Background(), wallet.ID, 400, models.KindPayoutDebit, nil, "payout")
	require.NoError(t, err)

	reversal, err := s.Reverse(context.Background(), debit.ID, "refund")
	require.NoError(t, err)

	_, err = s.Reverse(context.Background(), reversal.ID, "undo refund")
	require.Error(t, err)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 400, appErr.Code)
}

func TestService_RecordRideEarning_CommissionSplit(t *testing.T) {
	s, _, publisher := newTestService()
	driverID := uuid.New()
	rideID := uuid.New()

	txn, breakdown, err := s.RecordRideEarning(context.Background(), driverID, rideID, 1000, "usd")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), breakdown.GrossAmount)
	assert.Equal(t, int64(200), breakdown.Commission)
	assert.Equal(t, int64(800), breakdown.NetAmount)
	assert.Equal(t, int64(800), txn.Amount)
	assert.Equal(t, models.KindRideEarning, txn.Kind)

	wallet, err := s.GetWallet(context.Background(), driverID)
	require.NoError(t, err)
	assert.Equal(t, int64(800), wallet.Balance)

	events := publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, eventbus.SubjectEarningRecorded, events[0].Subject)
}

func TestService_RecordRideEarning_IdempotentPerRide(t *testing.T) {
	s, _, _ := newTestService()
	driverID := uuid.New()
	rideID := uuid.New()

	first, _, err := s.RecordRideEarning(context.Background(), driverID, rideID, 1000, "usd")
	require.NoError(t, err)

	second, _, err := s.RecordRideEarning(context.Background(), driverID, rideID, 1000, "usd")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	wallet, err := s.GetWallet(context.Background(), driverID)
	require.NoError(t, err)
	assert.Equal(t, int64(800), wallet.Balance)
}

func TestService_RecordRideEarning_RejectsUnsupportedCurrency(t *testing.T) {
	s, _, _ := newTestService()

	_, _, err := s.RecordRideEarning(context.Background(), uuid.New(), uuid.New(), 1000, "eur")
	require.Error(t, err)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 400, appErr.Code)
}

// Concurrent writers must never lose an update: the final balance equals the
// sum of the credits that reported success, whatever the interleaving.
func TestService_ConcurrentCredits_NoLostUpdates(t *testing.T) {
	s, _, _ := newTestService()
	wallet := mustWallet(t, s, uuid.New())

	const writers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var succeeded int64

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Credit(context.Background(), wallet.ID, 100, models.KindAdjustment, nil, "concurrent credit")
			if err == nil {
				mu.Lock()
				succeeded += 100
				mu.Unlock()
			} else {
				// Retry exhaustion is the only acceptable failure here
				assert.True(t, common.HasCode(err, common.CodeStateConflict))
			}
		}()
	}
	wg.Wait()

	updated, err := s.GetWallet(context.Background(), wallet.DriverID)
	require.NoError(t, err)
	assert.Equal(t, succeeded, updated.Balance)
}

func TestService_ListTransactions_NewestFirst(t *testing.T) {
	s, _, _ := newTestService()
	driverID := uuid.New()
	wallet := mustWallet(t, s, driverID)

	_, err := s.Credit(context.Background(), wallet.ID, 100, models.KindAdjustment, nil, "first")
	require.NoError(t, err)
	_, err = s.Credit(context.Background(), wallet.ID, 200, models.KindAdjustment, nil, "second")
	require.NoError(t, err)

	transactions, total, err := s.ListTransactions(context.Background(), driverID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, transactions, 2)
	assert.Equal(t, "second", transactions[0].Description)
	assert.Equal(t, "first", transactions[1].Description)
}
