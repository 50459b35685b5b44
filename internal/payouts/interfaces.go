package payouts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/driver-ledger/pkg/eventbus"
	"github.com/richxcame/driver-ledger/pkg/models"
)

// StatusUpdate carries the settlement details written alongside a status
// transition
type StatusUpdate struct {
	ProcessorReference *string
	FailureCode        *string
	FailureReason      *string
}

// RepositoryInterface defines the interface for payout repository operations
type RepositoryInterface interface {
	// CreatePayoutWithDebit inserts the payout together with its wallet
	// debit in one database transaction; a failure on any step leaves the
	// wallet untouched
	CreatePayoutWithDebit(ctx context.Context, payout *models.Payout, wallet *models.Wallet, debit *models.Transaction) error
	GetPayoutByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	GetPayoutByProcessorRef(ctx context.Context, ref string) (*models.Payout, error)
	ListPayoutsByDriver(ctx context.Context, driverID uuid.UUID, limit, offset int) ([]*models.Payout, int64, error)
	// TransitionStatus moves a payout from one status to another only if it
	// is still in the expected status. Returns false when the guard fails.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.PayoutStatus, update *StatusUpdate) (bool, error)
	// FindStale returns non-terminal payouts not updated since the cutoff
	FindStale(ctx context.Context, cutoff time.Time, limit int) ([]*models.Payout, error)
	GetPayoutAccount(ctx context.Context, driverID uuid.UUID) (*models.PayoutAccount, error)
	UpsertPayoutAccount(ctx context.Context, account *models.PayoutAccount) error
}

// ProcessorClient submits payouts to the external payment processor. Errors
// are classified: processor_rejected means the processor took the request and
// refused it, processor_unavailable means the outcome is unknown.
type ProcessorClient interface {
	SubmitPayout(ctx context.Context, payout *models.Payout, destination string) (string, error)
}

// LedgerService is the wallet surface the payout service needs
type LedgerService interface {
	GetOrCreateWallet(ctx context.Context, driverID uuid.UUID) (*models.Wallet, error)
	Reverse(ctx context.Context, originalID uuid.UUID, description string) (*models.Transaction, error)
	MarkTransactionSucceeded(ctx context.Context, id uuid.UUID) error
}

// Publisher is the event bus surface the payout service needs
type Publisher interface {
	Publish(ctx context.Context, subject string, event *eventbus.Event) error
}
