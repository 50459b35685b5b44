package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/driver-ledger/pkg/common"
	"github.com/richxcame/driver-ledger/pkg/eventbus"
	"github.com/richxcame/driver-ledger/pkg/models"
)

// MemoryLedgerRepository is an in-memory ledger repository with the same
// optimistic-concurrency semantics as the Postgres implementation. Safe for
// concurrent use, so service-level race tests exercise real CAS behavior.
type MemoryLedgerRepository struct {
	mu           sync.Mutex
	wallets      map[uuid.UUID]*models.Wallet
	transactions map[uuid.UUID]*models.Transaction
	order        []uuid.UUID

	failNextApply        error
	failNextStatusUpdate error
}

func NewMemoryLedgerRepository() *MemoryLedgerRepository {
	return &MemoryLedgerRepository{
		wallets:      make(map[uuid.UUID]*models.Wallet),
		transactions: make(map[uuid.UUID]*models.Transaction),
	}
}

func (r *MemoryLedgerRepository) CreateWallet(ctx context.Context, wallet *models.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range r.wallets {
		if w.DriverID == wallet.DriverID {
			return common.NewConflictError("wallet already exists for driver")
		}
	}

	now := time.Now().UTC()
	wallet.CreatedAt = now
	wallet.UpdatedAt = now
	r.wallets[wallet.ID] = copyWallet(wallet)
	return nil
}

func (r *MemoryLedgerRepository) GetWalletByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wallet, ok := r.wallets[id]
	if !ok {
		return nil, common.NewNotFoundError("wallet not found", nil)
	}
	return copyWallet(wallet), nil
}

func (r *MemoryLedgerRepository) GetWalletByDriverID(ctx context.Context, driverID uuid.UUID) (*models.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, wallet := range r.wallets {
		if wallet.DriverID == driverID {
			return copyWallet(wallet), nil
		}
	}
	return nil, common.NewNotFoundError("wallet not found", nil)
}

// FailNextApply makes the next ApplyTransaction call fail with err before
// touching any state, simulating a rolled-back database transaction.
func (r *MemoryLedgerRepository) FailNextApply(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNextApply = err
}

// FailNextStatusUpdate makes the next UpdateTransactionStatus call fail
// with err without changing the transaction.
func (r *MemoryLedgerRepository) FailNextStatusUpdate(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNextStatusUpdate = err
}

func (r *MemoryLedgerRepository) ApplyTransaction(ctx context.Context, wallet *models.Wallet, txn *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.failNextApply; err != nil {
		r.failNextApply = nil
		return err
	}

	stored, ok := r.wallets[wallet.ID]
	if !ok {
		return common.NewNotFoundError("wallet not found", nil)
	}
	if stored.Version != wallet.Version || !stored.IsActive {
		return common.NewStateConflictError("wallet was modified concurrently")
	}
	if stored.Balance+txn.Amount < 0 {
		return common.NewInsufficientFundsError("wallet balance cannot go negative")
	}
	if txn.ReversalOf != nil {
		for _, existing := range r.transactions {
			if existing.ReversalOf != nil && *existing.ReversalOf == *txn.ReversalOf {
				return common.NewAlreadyReversedError("transaction has already been reversed")
			}
		}
	}

	stored.Balance += txn.Amount
	stored.Version++
	stored.UpdatedAt = time.Now().UTC()

	now := time.Now().UTC()
	txn.CreatedAt = now
	txn.UpdatedAt = now
	r.transactions[txn.ID] = copyTransaction(txn)
	r.order = append(r.order, txn.ID)

	wallet.Balance = stored.Balance
	wallet.Version = stored.Version
	return nil
}

func (r *MemoryLedgerRepository) GetTransactionByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	txn, ok := r.transactions[id]
	if !ok {
		return nil, common.NewNotFoundError("transaction not found", nil)
	}
	return copyTransaction(txn), nil
}

func (r *MemoryLedgerRepository) FindReversal(ctx context.Context, originalID uuid.UUID) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, txn := range r.transactions {
		if txn.ReversalOf != nil && *txn.ReversalOf == originalID {
			return copyTransaction(txn), nil
		}
	}
	return nil, nil
}

func (r *MemoryLedgerRepository) FindEarningByRideID(ctx context.Context, walletID, rideID uuid.UUID) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, txn := range r.transactions {
		if txn.WalletID == walletID && txn.Kind == models.KindRideEarning &&
			txn.ReferenceID != nil && *txn.ReferenceID == rideID {
			return copyTransaction(txn), nil
		}
	}
	return nil, nil
}

func (r *MemoryLedgerRepository) ListTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*models.Transaction, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]*models.Transaction, 0)
	// Insertion order, newest first
	for i := len(r.order) - 1; i >= 0; i-- {
		txn := r.transactions[r.order[i]]
		if txn.WalletID == walletID {
			matched = append(matched, copyTransaction(txn))
		}
	}

	total := int64(len(matched))
	if offset >= len(matched) {
		return []*models.Transaction{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (r *MemoryLedgerRepository) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status models.TransactionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.failNextStatusUpdate; err != nil {
		r.failNextStatusUpdate = nil
		return err
	}

	txn, ok := r.transactions[id]
	if !ok {
		return common.NewNotFoundError("transaction not found", nil)
	}
	txn.Status = status
	txn.UpdatedAt = time.Now().UTC()
	return nil
}

func copyWallet(w *models.Wallet) *models.Wallet {
	dup := *w
	return &dup
}

func copyTransaction(t *models.Transaction) *models.Transaction {
	dup := *t
	return &dup
}

// MemoryPublisher records published events for assertions
type MemoryPublisher struct {
	mu     sync.Mutex
	events []PublishedEvent
}

type PublishedEvent struct {
	Subject string
	Event   *eventbus.Event
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(ctx context.Context, subject string, event *eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, PublishedEvent{Subject: subject, Event: event})
	return nil
}

func (p *MemoryPublisher) Events() []PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PublishedEvent, len(p.events))
	copy(out, p.events)
	return out
}
