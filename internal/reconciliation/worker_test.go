package reconciliation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/driver-ledger/internal/ledger"
	"github.com/richxcame/driver-ledger/internal/payouts"
	"github.com/richxcame/driver-ledger/pkg/common"
	"github.com/richxcame/driver-ledger/pkg/config"
	"github.com/richxcame/driver-ledger/pkg/models"
	"github.com/richxcame/driver-ledger/test/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupSweepTest(t *testing.T) (*Worker, *payouts.Service, *ledger.Service, *mocks.MemoryPayoutRepository, *mocks.FakeProcessor) {
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
	payoutService := payouts.NewService(payoutRepo, ledgerService, processor, publisher, cfg)

	worker := NewWorker(payoutRepo, payoutService, zap.NewNop(), time.Minute, 30*time.Minute)
	return worker, payoutService, ledgerService, payoutRepo, processor
}

func TestWorker_Sweep_FailsStuckPayouts(t *testing.T) {
	worker, payoutService, ledgerService, payoutRepo, processor := setupSweepTest(t)
	ctx := context.Background()

	wallet, err := ledgerService.GetOrCreateWallet(ctx, newDriverWithAccount(t, payoutService))
	require.NoError(t, err)
	_, err = ledgerService.Credit(ctx, wallet.ID, 2000, models.KindAdjustment, nil, "seed")
	require.NoError(t, err)

	processor.SubmitFunc = func(ctx context.Context, payout *models.Payout, destination string) (string, error) {
		return "", common.NewProcessorUnavailableError("gateway timeout", nil)
	}

	payout, err := payoutService.Create(ctx, wallet.DriverID, 1500)
	require.NoError(t, err)
	_, err = payoutService.Submit(ctx, payout.ID)
	require.Error(t, err)

	// Stuck in processing for an hour
	payoutRepo.SetUpdatedAt(payout.ID, time.Now().Add(-time.Hour))

	worker.Sweep(ctx)

	settled, err := payoutService.GetPayout(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutFailed, settled.Status)
	require.NotNil(t, settled.FailureCode)
	assert.Equal(t, "stale", *settled.FailureCode)

	// Wallet made whole
	updated, err := ledgerService.GetWallet(ctx, wallet.DriverID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), updated.Balance)
}

func TestWorker_Sweep_LeavesFreshPayoutsAlone(t *testing.T) {
	worker, payoutService, ledgerService, _, _ := setupSweepTest(t)
	ctx := context.Background()

	wallet, err := ledgerService.GetOrCreateWallet(ctx, newDriverWithAccount(t, payoutService))
	require.NoError(t, err)
	_, err = ledgerService.Credit(ctx, wallet.ID, 2000, models.KindAdjustment, nil, "seed")
	require.NoError(t, err)

	payout, err := payoutService.Create(ctx, wallet.DriverID, 1500)
	require.NoError(t, err)

	worker.Sweep(ctx)

	current, err := payoutService.GetPayout(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPending, current.Status)
}

func TestWorker_Sweep_IsIdempotent(t *testing.T) {
	worker, payoutService, ledgerService, payoutRepo, _ := setupSweepTest(t)
	ctx := context.Background()

	wallet, err := ledgerService.GetOrCreateWallet(ctx, newDriverWithAccount(t, payoutService))
	require.NoError(t, err)
	_, err = ledgerService.Credit(ctx, wallet.ID, 2000, models.KindAdjustment, nil, "seed")
	require.NoError(t, err)

	payout, err := payoutService.Create(ctx, wallet.DriverID, 1500)
	require.NoError(t, err)
	payoutRepo.SetUpdatedAt(payout.ID, time.Now().Add(-time.Hour))

	worker.Sweep(ctx)
	worker.Sweep(ctx)

	updated, err := ledgerService.GetWallet(ctx, wallet.DriverID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), updated.Balance)
}

func newDriverWithAccount(t *testing.T, service *payouts.Service) uuid.UUID {
	t.Helper()
	driverID := uuid.New()
	_, err := service.UpsertAccount(context.Background(), driverID, "acct_test")
	require.NoError(t, err)
	return driverID
}
