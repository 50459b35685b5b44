package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/driver-ledger/internal/payouts"
	"github.com/richxcame/driver-ledger/pkg/common"
	"github.com/richxcame/driver-ledger/pkg/models"
)

// MemoryPayoutRepository is an in-memory payout repository with the same
// conditional-transition semantics as the Postgres implementation. It shares
// a MemoryLedgerRepository so payout creation can apply the wallet debit the
// way the single-transaction Postgres path does.
type MemoryPayoutRepository struct {
	mu       sync.Mutex
	ledger   *MemoryLedgerRepository
	payouts  map[uuid.UUID]*models.Payout
	accounts map[uuid.UUID]*models.PayoutAccount
	order    []uuid.UUID

	failNextCreate error
}

func NewMemoryPayoutRepository(ledger *MemoryLedgerRepository) *MemoryPayoutRepository {
	return &MemoryPayoutRepository{
		ledger:   ledger,
		payouts:  make(map[uuid.UUID]*models.Payout),
		accounts: make(map[uuid.UUID]*models.PayoutAccount),
	}
}

// FailNextCreate makes the next CreatePayoutWithDebit call fail with err
// before touching any state, simulating a rolled-back database transaction.
func (r *MemoryPayoutRepository) FailNextCreate(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNextCreate = err
}

func (r *MemoryPayoutRepository) CreatePayoutWithDebit(ctx context.Context, payout *models.Payout, wallet *models.Wallet, debit *models.Transaction) error {
	r.mu.Lock()
	if err := r.failNextCreate; err != nil {
		r.failNextCreate = nil
		r.mu.Unlock()
		return err
	}
	r.mu.Unlock()

	// If the debit does not land, nothing else may either
	if err := r.ledger.ApplyTransaction(ctx, wallet, debit); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	payout.CreatedAt = now
	payout.UpdatedAt = now
	r.payouts[payout.ID] = copyPayout(payout)
	r.order = append(r.order, payout.ID)
	return nil
}

func (r *MemoryPayoutRepository) GetPayoutByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payout, ok := r.payouts[id]
	if !ok {
		return nil, common.NewNotFoundError("payout not found", nil)
	}
	return copyPayout(payout), nil
}

func (r *MemoryPayoutRepository) GetPayoutByProcessorRef(ctx context.Context, ref string) (*models.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, payout := range r.payouts {
		if payout.ProcessorReference != nil && *payout.ProcessorReference == ref {
			return copyPayout(payout), nil
		}
	}
	return nil, common.NewNotFoundError("payout not found", nil)
}

func (r *MemoryPayoutRepository) ListPayoutsByDriver(ctx context.Context, driverID uuid.UUID, limit, offset int) ([]*models.Payout, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]*models.Payout, 0)
	for i := len(r.order) - 1; i >= 0; i-- {
		payout := r.payouts[r.order[i]]
		if payout.DriverID == driverID {
			matched = append(matched, copyPayout(payout))
		}
	}

	total := int64(len(matched))
	if offset >= len(matched) {
		return []*models.Payout{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (r *MemoryPayoutRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.PayoutStatus, update *payouts.StatusUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payout, ok := r.payouts[id]
	if !ok || payout.Status != from {
		return false, nil
	}

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
	payout.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *MemoryPayoutRepository) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]*models.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stale := make([]*models.Payout, 0)
	for _, id := range r.order {
		payout := r.payouts[id]
		if payout.Status.IsTerminal() || !payout.UpdatedAt.Before(cutoff) {
			continue
		}
		stale = append(stale, copyPayout(payout))
		if len(stale) >= limit {
			break
		}
	}
	return stale, nil
}

func (r *MemoryPayoutRepository) GetPayoutAccount(ctx context.Context, driverID uuid.UUID) (*models.PayoutAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[driverID]
	if !ok {
		return nil, common.NewNotFoundError("payout account not found", nil)
	}
	dup := *account
	return &dup, nil
}

func (r *MemoryPayoutRepository) UpsertPayoutAccount(ctx context.Context, account *models.PayoutAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	account.UpdatedAt = now
	if existing, ok := r.accounts[account.DriverID]; ok {
		account.CreatedAt = existing.CreatedAt
	} else {
		account.CreatedAt = now
	}
	dup := *account
	r.accounts[account.DriverID] = &dup
	return nil
}

// SetUpdatedAt backdates a payout so staleness paths can be tested
func (r *MemoryPayoutRepository) SetUpdatedAt(id uuid.UUID, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if payout, ok := r.payouts[id]; ok {
		payout.UpdatedAt = at
	}
}

func copyPayout(p *models.Payout) *models.Payout {
	dup := *p
	return &dup
}

// FakeProcessor is a scriptable processor client
type FakeProcessor struct {
	mu sync.Mutex
	// SubmitFunc, when set, decides each submission's outcome
	SubmitFunc func(ctx context.Context, payout *models.Payout, destination string) (string, error)
	calls      int
}

func (p *FakeProcessor) SubmitPayout(ctx context.Context, payout *models.Payout, destination string) (string, error) {
	p.mu.Lock()
	p.calls++
	fn := p.SubmitFunc
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, payout, destination)
	}
	return "tr_" + payout.ID.String(), nil
}

func (p *FakeProcessor) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
