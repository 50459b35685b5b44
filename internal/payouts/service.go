package payouts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/driver-ledger/pkg/common"
	"github.com/richxcame/driver-ledger/pkg/config"
	"github.com/richxcame/driver-ledger/pkg/eventbus"
	"github.com/richxcame/driver-ledger/pkg/logger"
	"github.com/richxcame/driver-ledger/pkg/models"
	"go.uber.org/zap"
)

// maxTransitionAttempts bounds re-reads when settlement races another writer
const maxTransitionAttempts = 3

// maxCreateAttempts bounds re-reads when a payout creation loses the wallet
// version race
const maxCreateAttempts = 3

type Service struct {
	repo      RepositoryInterface
	ledger    LedgerService
	processor ProcessorClient
	publisher Publisher
	cfg       *config.LedgerConfig
}

func NewService(repo RepositoryInterface, ledger LedgerService, processor ProcessorClient, publisher Publisher, cfg *config.LedgerConfig) *Service {
	return &Service{
		repo:      repo,
		ledger:    ledger,
		processor: processor,
		publisher: publisher,
		cfg:       cfg,
	}
}

// Create requests a payout: the wallet is debited up front so requested
// funds can never be spent twice, and the payout starts pending. The debit
// and the payout row are written in one database transaction.
func (s *Service) Create(ctx context.Context, driverID uuid.UUID, amount int64) (*models.Payout, error) {
	if amount <= 0 {
		return nil, common.NewInvalidAmountError("payout amount must be positive")
	}
	if amount < s.cfg.MinPayoutAmount {
		return nil, common.NewInvalidAmountError(fmt.Sprintf("payout amount is below the minimum of %d", s.cfg.MinPayoutAmount))
	}

	wallet, err := s.ledger.GetOrCreateWallet(ctx, driverID)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		if wallet.Balance < amount {
			return nil, common.NewInsufficientFundsError("wallet balance is insufficient")
		}

		payoutID := uuid.New()
		debit := &models.Transaction{
			ID:          uuid.New(),
			WalletID:    wallet.ID,
			Amount:      -amount,
			Kind:        models.KindPayoutDebit,
			Status:      models.TransactionPending,
			ReferenceID: &payoutID,
			Description: "payout request",
		}
		payout := &models.Payout{
			ID:                 payoutID,
			WalletID:           wallet.ID,
			DriverID:           driverID,
			Amount:             amount,
			Currency:           wallet.Currency,
			Status:             models.PayoutPending,
			DebitTransactionID: debit.ID,
		}

		err := s.repo.CreatePayoutWithDebit(ctx, payout, wallet, debit)
		if err == nil {
			logger.Info("payout created",
				zap.String("payout_id", payout.ID.String()),
				zap.String("driver_id", driverID.String()),
				zap.Int64("amount", amount),
			)
			return payout, nil
		}
		if !common.HasCode(err, common.CodeStateConflict) {
			return nil, err
		}

		// Another writer moved the wallet; re-read and try again
		wallet, err = s.ledger.GetOrCreateWallet(ctx, driverID)
		if err != nil {
			return nil, err
		}
	}

	return nil, common.NewStateConflictError("wallet was modified concurrently")
}

// Submit sends a pending payout to the processor. A definite rejection
// settles the payout failed and refunds the wallet; an unknown outcome
// leaves it processing for reconciliation to resolve.
func (s *Service) Submit(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	payout, err := s.repo.GetPayoutByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if payout.Status.IsTerminal() {
		return nil, common.NewAlreadyTerminalError("payout has already been settled")
	}
	if payout.Status == models.PayoutProcessing {
		return nil, common.NewStateConflictError("payout is already being processed")
	}

	ok, err := s.repo.TransitionStatus(ctx, payout.ID, models.PayoutPending, models.PayoutProcessing, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Another submitter or the reconciler got there first
		current, err := s.repo.GetPayoutByID(ctx, payout.ID)
		if err != nil {
			return nil, err
		}
		if current.Status.IsTerminal() {
			return nil, common.NewAlreadyTerminalError("payout has already been settled")
		}
		return nil, common.NewStateConflictError("payout is already being processed")
	}
	payout.Status = models.PayoutProcessing

	account, err := s.repo.GetPayoutAccount(ctx, payout.DriverID)
	if err != nil {
		if common.HasCode(err, common.CodeNotFound) {
			code := "no_payout_account"
			reason := "driver has no payout account configured"
			return s.settleFailed(ctx, payout, &code, &reason)
		}
		return nil, err
	}
	if !account.IsVerified {
		code := "unverified_payout_account"
		reason := "driver payout account is not verified"
		return s.settleFailed(ctx, payout, &code, &reason)
	}

	ref, err := s.processor.SubmitPayout(ctx, payout, account.Destination)
	switch {
	case err == nil:
		return s.settleSucceeded(ctx, payout, &ref)

	case common.HasCode(err, common.CodeProcessorRejected):
		code := stripeFailureCode(err)
		if code == nil {
			c := "processor_rejected"
			code = &c
		}
		reason := err.Error()
		return s.settleFailed(ctx, payout, code, &reason)

	default:
		// Outcome unknown: the payout stays processing and only the
		// reconciler may later fail it
		logger.WarnContext(ctx, "payout submission outcome unknown",
			zap.String("payout_id", payout.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}
}

// Settle records a terminal outcome for a payout. Settling to the state the
// payout is already in is a no-op, so webhook retries and reconciliation
// sweeps are harmless.
func (s *Service) Settle(ctx context.Context, id uuid.UUID, status models.PayoutStatus, failureCode, failureReason *string) (*models.Payout, error) {
	if !status.IsTerminal() {
		return nil, common.NewBadRequestError("settlement status must be terminal", nil)
	}

	payout, err := s.repo.GetPayoutByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if status == models.PayoutSucceeded {
		return s.settleSucceeded(ctx, payout, nil)
	}
	return s.settleFailed(ctx, payout, failureCode, failureReason)
}

// ResolveByProcessorRef settles the payout matching a processor reference.
// Used by the webhook path where only the processor's ID is known.
func (s *Service) ResolveByProcessorRef(ctx context.Context, ref string, status models.PayoutStatus, failureCode, failureReason *string) (*models.Payout, error) {
	payout, err := s.repo.GetPayoutByProcessorRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.Settle(ctx, payout.ID, status, failureCode, failureReason)
}

// GetPayout retrieves a payout by ID
func (s *Service) GetPayout(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	return s.repo.GetPayoutByID(ctx, id)
}

// ListPayouts retrieves a driver's payouts, newest first
func (s *Service) ListPayouts(ctx context.Context, driverID uuid.UUID, limit, offset int) ([]*models.Payout, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListPayoutsByDriver(ctx, driverID, limit, offset)
}

// GetAccount retrieves a driver's payout destination
func (s *Service) GetAccount(ctx context.Context, driverID uuid.UUID) (*models.PayoutAccount, error) {
	return s.repo.GetPayoutAccount(ctx, driverID)
}

// UpsertAccount sets a driver's payout destination
func (s *Service) UpsertAccount(ctx context.Context, driverID uuid.UUID, destination string) (*models.PayoutAccount, error) {
	if destination == "" {
		return nil, common.NewBadRequestError("destination is required", nil)
	}

	account := &models.PayoutAccount{
		DriverID:    driverID,
		Destination: destination,
		Currency:    s.cfg.Currency,
		IsVerified:  true,
	}
	if err := s.repo.UpsertPayoutAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *Service) settleSucceeded(ctx context.Context, payout *models.Payout, processorRef *string) (*models.Payout, error) {
	update := &StatusUpdate{ProcessorReference: processorRef}

	settled, changed, err := s.transitionTerminal(ctx, payout, models.PayoutSucceeded, update)
	if err != nil {
		// The processor paid but the payout was already failed locally:
		// surface it loudly, the refund must be clawed back by hand
		if common.HasCode(err, common.CodeAlreadyTerminal) && processorRef != nil {
			logger.ErrorContext(ctx, "processor succeeded for a payout already settled failed",
				zap.String("payout_id", payout.ID.String()),
				zap.String("processor_reference", *processorRef),
			)
		}
		return nil, err
	}

	// Runs on retries too so a mark that failed on a previous attempt
	// still gets applied
	if err := s.ledger.MarkTransactionSucceeded(ctx, settled.DebitTransactionID); err != nil {
		logger.ErrorContext(ctx, "failed to settle payout debit transaction",
			zap.String("payout_id", settled.ID.String()),
			zap.String("transaction_id", settled.DebitTransactionID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	if changed {
		s.publishSettled(ctx, settled)
	}
	return settled, nil
}

func (s *Service) settleFailed(ctx context.Context, payout *models.Payout, failureCode, failureReason *string) (*models.Payout, error) {
	update := &StatusUpdate{FailureCode: failureCode, FailureReason: failureReason}

	settled, changed, err := s.transitionTerminal(ctx, payout, models.PayoutFailed, update)
	if err != nil {
		return nil, err
	}

	reason := "payout failed"
	if failureReason != nil {
		reason = "payout failed: " + *failureReason
	}
	// Runs on retries too: a refund that failed after the status flipped
	// would otherwise be lost, since later calls see the payout already
	// failed
	refunded := false
	if _, err := s.ledger.Reverse(ctx, settled.DebitTransactionID, reason); err != nil {
		// A concurrent settler may have refunded already
		if !common.HasCode(err, common.CodeAlreadyReversed) {
			logger.ErrorContext(ctx, "failed to refund wallet for failed payout",
				zap.String("payout_id", settled.ID.String()),
				zap.String("transaction_id", settled.DebitTransactionID.String()),
				zap.Error(err),
			)
			return nil, err
		}
	} else {
		refunded = true
	}

	if changed || refunded {
		s.publishSettled(ctx, settled)
	}
	return settled, nil
}

// transitionTerminal drives a payout to a terminal status, re-reading on
// contention. Returns changed=false when the payout was already in the
// target status.
func (s *Service) transitionTerminal(ctx context.Context, payout *models.Payout, to models.PayoutStatus, update *StatusUpdate) (*models.Payout, bool, error) {
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		if payout.Status == to {
			return payout, false, nil
		}
		if payout.Status.IsTerminal() {
			return nil, false, common.NewAlreadyTerminalError("payout has already been settled")
		}

		ok, err := s.repo.TransitionStatus(ctx, payout.ID, payout.Status, to, update)
		if err != nil {
			return nil, false, err
		}
		if ok {
			payout.Status = to
			if update != nil {
				if update.ProcessorReference != nil {
					payout.ProcessorReference = update.ProcessorReference
				}
				if update.FailureCode != nil {
					payout.FailureCode = update.FailureCode
				}
				if update.FailureReason != nil {
					payout.FailureReason = update.FailureReason
				}
			}
			return payout, true, nil
		}

		payout, err = s.repo.GetPayoutByID(ctx, payout.ID)
		if err != nil {
			return nil, false, err
		}
	}

	return nil, false, common.NewStateConflictError("payout status changed concurrently")
}

func (s *Service) publishSettled(ctx context.Context, payout *models.Payout) {
	if s.publisher == nil {
		return
	}

	data := eventbus.PayoutSettledData{
		PayoutID:  payout.ID,
		WalletID:  payout.WalletID,
		DriverID:  payout.DriverID,
		Amount:    payout.Amount,
		Currency:  payout.Currency,
		Status:    string(payout.Status),
		SettledAt: time.Now().UTC(),
	}
	if payout.ProcessorReference != nil {
		data.ProcessorReference = *payout.ProcessorReference
	}
	if payout.FailureReason != nil {
		data.FailureReason = *payout.FailureReason
	}

	event, err := eventbus.NewEvent(eventbus.SubjectPayoutSettled, "payouts", data)
	if err != nil {
		logger.ErrorContext(ctx, "failed to build payout settled event", zap.Error(err))
		return
	}

	if err := s.publisher.Publish(ctx, eventbus.SubjectPayoutSettled, event); err != nil {
		logger.WarnContext(ctx, "failed to publish payout settled event",
			zap.String("payout_id", payout.ID.String()),
			zap.Error(err),
		)
	}
}
