package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/driver-ledger/pkg/common"
	"github.com/richxcame/driver-ledger/pkg/config"
	"github.com/richxcame/driver-ledger/pkg/eventbus"
	"github.com/richxcame/driver-ledger/pkg/logger"
	"github.com/richxcame/driver-ledger/pkg/models"
	"go.uber.org/zap"
)

// maxApplyAttempts bounds optimistic-concurrency retries on a wallet
const maxApplyAttempts = 3

type Service struct {
	repo      RepositoryInterface
	publisher Publisher
	cfg       *config.LedgerConfig
}

func NewService(repo RepositoryInterface, publisher Publisher, cfg *config.LedgerConfig) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
	}
}

// GetWallet retrieves a driver's wallet
func (s *Service) GetWallet(ctx context.Context, driverID uuid.UUID) (*models.Wallet, error) {
	return s.repo.GetWalletByDriverID(ctx, driverID)
}

// GetOrCreateWallet retrieves a driver's wallet, creating an empty one on
// first touch
func (s *Service) GetOrCreateWallet(ctx context.Context, driverID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.repo.GetWalletByDriverID(ctx, driverID)
	if err == nil {
		return wallet, nil
	}
	if !common.HasCode(err, common.CodeNotFound) {
		return nil, err
	}

	wallet = &models.Wallet{
		ID:       uuid.New(),
		DriverID: driverID,
		Balance:  0,
		Currency: s.cfg.Currency,
		Version:  1,
		IsActive: true,
	}
	if err := s.repo.CreateWallet(ctx, wallet); err != nil {
		// Lost a creation race: the other writer's wallet wins
		if existing, getErr := s.repo.GetWalletByDriverID(ctx, driverID); getErr == nil {
			return existing, nil
		}
		return nil, err
	}

	return wallet, nil
}

// ListTransactions retrieves a driver's ledger entries, newest first
func (s *Service) ListTransactions(ctx context.Context, driverID uuid.UUID, limit, offset int) ([]*models.Transaction, int64, error) {
	wallet, err := s.repo.GetWalletByDriverID(ctx, driverID)
	if err != nil {
		return nil, 0, err
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	return s.repo.ListTransactions(ctx, wallet.ID, limit, offset)
}

// Credit adds funds to a wallet. Amount is the credit magnitude in minor units.
func (s *Service) Credit(ctx context.Context, walletID uuid.UUID, amount int64, kind models.TransactionKind, referenceID *uuid.UUID, description string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, common.NewInvalidAmountError("credit amount must be positive")
	}

	txn := &models.Transaction{
		ID:          uuid.New(),
		Amount:      amount,
		Kind:        kind,
		Status:      models.TransactionSucceeded,
		ReferenceID: referenceID,
		Description: description,
	}

	if err := s.apply(ctx, walletID, txn, false); err != nil {
		return nil, err
	}
	return txn, nil
}

// Debit removes funds from a wallet. Amount is the debit magnitude in minor
// units; the resulting ledger entry is negative. Payout debits start pending
// and settle once the payout does.
func (s *Service) Debit(ctx context.Context, walletID uuid.UUID, amount int64, kind models.TransactionKind, referenceID *uuid.UUID, description string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, common.NewInvalidAmountError("debit amount must be positive")
	}

	status := models.TransactionSucceeded
	if kind == models.KindPayoutDebit {
		status = models.TransactionPending
	}

	txn := &models.Transaction{
		ID:          uuid.New(),
		Amount:      -amount,
		Kind:        kind,
		Status:      status,
		ReferenceID: referenceID,
		Description: description,
	}

	if err := s.apply(ctx, walletID, txn, true); err != nil {
		return nil, err
	}
	return txn, nil
}

// Reverse creates a compensating entry for a transaction and marks the
// original failed. A transaction can be reversed at most once, and a
// reversal itself can never be reversed.
func (s *Service) Reverse(ctx context.Context, originalID uuid.UUID, description string) (*models.Transaction, error) {
	original, err := s.repo.GetTransactionByID(ctx, originalID)
	if err != nil {
		return nil, err
	}

	if original.ReversalOf != nil {
		return nil, common.NewBadRequestError("cannot reverse a reversal entry", nil)
	}

	if existing, err := s.repo.FindReversal(ctx, originalID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, common.NewAlreadyReversedError("transaction has already been reversed")
	}

	kind := models.KindAdjustment
	if original.Kind == models.KindPayoutDebit {
		kind = models.KindPayoutRefund
	}

	reversal := &models.Transaction{
		ID:          uuid.New(),
		Amount:      -original.Amount,
		Kind:        kind,
		Status:      models.TransactionSucceeded,
		ReferenceID: original.ReferenceID,
		ReversalOf:  &original.ID,
		Description: description,
	}

	// Reversing a credit debits the wallet, so enforce sufficiency
	if err := s.apply(ctx, original.WalletID, reversal, reversal.Amount < 0); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateTransactionStatus(ctx, original.ID, models.TransactionFailed); err != nil {
		logger.ErrorContext(ctx, "failed to mark reversed transaction failed",
			zap.String("transaction_id", original.ID.String()),
			zap.Error(err),
		)
	}

	return reversal, nil
}

// MarkTransactionSucceeded settles a pending ledger entry
func (s *Service) MarkTransactionSucceeded(ctx context.Context, id uuid.UUID) error {
	return s.repo.UpdateTransactionStatus(ctx, id, models.TransactionSucceeded)
}

// RecordRideEarning credits a driver's wallet with the net fare for a
// completed ride. Recording is idempotent per ride: a second call for the
// same ride returns the original entry without touching the balance.
func (s *Service) RecordRideEarning(ctx context.Context, driverID, rideID uuid.UUID, grossAmount int64, currency string) (*models.Transaction, *models.RideEarningBreakdown, error) {
	if grossAmount <= 0 {
		return nil, nil, common.NewInvalidAmountError("fare amount must be positive")
	}
	if currency != "" && currency != s.cfg.Currency {
		return nil, nil, common.NewBadRequestError("unsupported currency", nil)
	}

	wallet, err := s.GetOrCreateWallet(ctx, driverID)
	if err != nil {
		return nil, nil, err
	}

	breakdown := s.splitFare(grossAmount)

	if existing, err := s.repo.FindEarningByRideID(ctx, wallet.ID, rideID); err != nil {
		return nil, nil, err
	} else if existing != nil {
		return existing, breakdown, nil
	}

	txn, err := s.Credit(ctx, wallet.ID, breakdown.NetAmount, models.KindRideEarning, &rideID, "ride earnings")
	if err != nil {
		return nil, nil, err
	}

	s.publishEarningRecorded(ctx, wallet, driverID, rideID, txn, breakdown)

	return txn, breakdown, nil
}

// splitFare applies the platform commission, in basis points, to a gross fare
func (s *Service) splitFare(grossAmount int64) *models.RideEarningBreakdown {
	commission := grossAmount * int64(s.cfg.CommissionBps) / 10000
	return &models.RideEarningBreakdown{
		GrossAmount: grossAmount,
		Commission:  commission,
		NetAmount:   grossAmount - commission,
	}
}

// apply runs the optimistic-concurrency loop: read the wallet, validate
// funds when debiting, and attempt the versioned write. Concurrent writers
// force a re-read rather than an error, up to maxApplyAttempts.
func (s *Service) apply(ctx context.Context, walletID uuid.UUID, txn *models.Transaction, checkFunds bool) error {
	var lastErr error

	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		wallet, err := s.repo.GetWalletByID(ctx, walletID)
		if err != nil {
			return err
		}
		if !wallet.IsActive {
			return common.NewBadRequestError("wallet is not active", nil)
		}

		if checkFunds && wallet.Balance+txn.Amount < 0 {
			return common.NewInsufficientFundsError("wallet balance is insufficient")
		}

		txn.WalletID = wallet.ID
		err = s.repo.ApplyTransaction(ctx, wallet, txn)
		if err == nil {
			return nil
		}
		if !common.HasCode(err, common.CodeStateConflict) {
			return err
		}

		lastErr = err
	}

	logger.WarnContext(ctx, "wallet update exhausted retries",
		zap.String("wallet_id", walletID.String()),
		zap.Int("attempts", maxApplyAttempts),
	)
	return lastErr
}

func (s *Service) publishEarningRecorded(ctx context.Context, wallet *models.Wallet, driverID, rideID uuid.UUID, txn *models.Transaction, breakdown *models.RideEarningBreakdown) {
	if s.publisher == nil {
		return
	}

	event, err := eventbus.NewEvent(eventbus.SubjectEarningRecorded, "ledger", eventbus.EarningRecordedData{
		TransactionID: txn.ID,
		WalletID:      wallet.ID,
		DriverID:      driverID,
		RideID:        rideID,
		GrossAmount:   breakdown.GrossAmount,
		Commission:    breakdown.Commission,
		NetAmount:     breakdown.NetAmount,
		Currency:      wallet.Currency,
		RecordedAt:    time.Now().UTC(),
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to build earning event", zap.Error(err))
		return
	}

	if err := s.publisher.Publish(ctx, eventbus.SubjectEarningRecorded, event); err != nil {
		logger.WarnContext(ctx, "failed to publish earning event",
			zap.String("ride_id", rideID.String()),
			zap.Error(err),
		)
	}
}
