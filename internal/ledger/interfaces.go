package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/richxcame/driver-ledger/pkg/eventbus"
	"github.com/richxcame/driver-ledger/pkg/models"
)

// RepositoryInterface defines the interface for ledger repository operations
type RepositoryInterface interface {
	CreateWallet(ctx context.Context, wallet *models.Wallet) error
	GetWalletByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	GetWalletByDriverID(ctx context.Context, driverID uuid.UUID) (*models.Wallet, error)
	// ApplyTransaction atomically inserts the entry and moves the wallet
	// balance by the entry amount, guarded by the wallet version. A stale
	// version yields a state_conflict error.
	ApplyTransaction(ctx context.Context, wallet *models.Wallet, txn *models.Transaction) error
	GetTransactionByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	FindReversal(ctx context.Context, originalID uuid.UUID) (*models.Transaction, error)
	FindEarningByRideID(ctx context.Context, walletID, rideID uuid.UUID) (*models.Transaction, error)
	ListTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*models.Transaction, int64, error)
	UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status models.TransactionStatus) error
}

// Publisher is the event bus surface the ledger service needs
type Publisher interface {
	Publish(ctx context.Context, subject string, event *eventbus.Event) error
}
