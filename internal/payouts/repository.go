package payouts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/richxcame/driver-ledger/pkg/common"
	"github.com/richxcame/driver-ledger/pkg/database"
	"github.com/richxcame/driver-ledger/pkg/models"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const payoutColumns = `id, wallet_id, driver_id, amount, currency, status, debit_transaction_id,
	processor_reference, failure_code, failure_reason, metadata, created_at, updated_at`

// CreatePayoutWithDebit debits the wallet, records the ledger entry and
// inserts the payout row in a single database transaction, so a failure on
// any step leaves the wallet untouched. The wallet update is guarded by the
// version the caller read; a state_conflict means another writer got there
// first and the caller should re-read and retry.
func (r *Repository) CreatePayoutWithDebit(ctx context.Context, payout *models.Payout, wallet *models.Wallet, debit *models.Transaction) error {
	err := database.RetryableTransaction(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE wallets
			SET balance = balance + $1, version = version + 1, updated_at = NOW()
			WHERE id = $2 AND version = $3 AND is_active`,
			debit.Amount, wallet.ID, wallet.Version,
		)
		if err != nil {
			if isCheckViolation(err) {
				return common.NewInsufficientFundsError("wallet balance cannot go negative")
			}
			return common.NewInternalError("failed to update wallet balance", err)
		}
		if tag.RowsAffected() == 0 {
			return common.NewStateConflictError("wallet was modified concurrently")
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO ledger_transactions (id, wallet_id, amount, kind, status, reference_id, description)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at, updated_at`,
			debit.ID,
			debit.WalletID,
			debit.Amount,
			debit.Kind,
			debit.Status,
			debit.ReferenceID,
			debit.Description,
		).Scan(&debit.CreatedAt, &debit.UpdatedAt)
		if err != nil {
			return common.NewInternalError("failed to insert payout debit", err)
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO payouts (id, wallet_id, driver_id, amount, currency, status, debit_transaction_id, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING created_at, updated_at`,
			payout.ID,
			payout.WalletID,
			payout.DriverID,
			payout.Amount,
			payout.Currency,
			payout.Status,
			payout.DebitTransactionID,
			payout.Metadata,
		).Scan(&payout.CreatedAt, &payout.UpdatedAt)
		if err != nil {
			return common.NewInternalError("failed to create payout", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	wallet.Balance += debit.Amount
	wallet.Version++
	return nil
}

// GetPayoutByID retrieves a payout by ID
func (r *Repository) GetPayoutByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	payout, err := r.scanPayout(r.db.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("payout not found", err)
		}
		return nil, common.NewInternalError("failed to get payout", err)
	}
	return payout, nil
}

// GetPayoutByProcessorRef retrieves a payout by its processor reference
func (r *Repository) GetPayoutByProcessorRef(ctx context.Context, ref string) (*models.Payout, error) {
	payout, err := r.scanPayout(r.db.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE processor_reference = $1`, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("payout not found", err)
		}
		return nil, common.NewInternalError("failed to get payout", err)
	}
	return payout, nil
}

// ListPayoutsByDriver retrieves a driver's payouts, newest first
func (r *Repository) ListPayoutsByDriver(ctx context.Context, driverID uuid.UUID, limit, offset int) ([]*models.Payout, int64, error) {
	var total int64
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM payouts WHERE driver_id = $1", driverID).Scan(&total)
	if err != nil {
		return nil, 0, common.NewInternalError("failed to count payouts", err)
	}

	query := `SELECT ` + payoutColumns + `
		FROM payouts
		WHERE driver_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, driverID, limit, offset)
	if err != nil {
		return nil, 0, common.NewInternalError("failed to list payouts", err)
	}
	defer rows.Close()

	payouts := make([]*models.Payout, 0)
	for rows.Next() {
		payout, err := r.scanPayout(rows)
		if err != nil {
			return nil, 0, common.NewInternalError("failed to scan payout", err)
		}
		payouts = append(payouts, payout)
	}

	return payouts, total, nil
}

// TransitionStatus conditionally moves a payout between statuses. The WHERE
// guard makes concurrent settlement race-free: exactly one caller observes
// true for a given transition.
func (r *Repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.PayoutStatus, update *StatusUpdate) (bool, error) {
	if update == nil {
		update = &StatusUpdate{}
	}

	query := `
		UPDATE payouts
		SET status = $1,
			processor_reference = COALESCE($2, processor_reference),
			failure_code = COALESCE($3, failure_code),
			failure_reason = COALESCE($4, failure_reason),
			updated_at = NOW()
		WHERE id = $5 AND status = $6`

	tag, err := database.RetryableExec(ctx, r.db, query,
		to,
		update.ProcessorReference,
		update.FailureCode,
		update.FailureReason,
		id,
		from,
	)
	if err != nil {
		return false, common.NewInternalError("failed to transition payout status", err)
	}

	return tag.RowsAffected() > 0, nil
}

// FindStale returns non-terminal payouts whose last update predates the cutoff
func (r *Repository) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]*models.Payout, error) {
	query := `SELECT ` + payoutColumns + `
		FROM payouts
		WHERE status IN ($1, $2) AND updated_at < $3
		ORDER BY updated_at ASC
		LIMIT $4`

	rows, err := r.db.Query(ctx, query, models.PayoutPending, models.PayoutProcessing, cutoff, limit)
	if err != nil {
		return nil, common.NewInternalError("failed to find stale payouts", err)
	}
	defer rows.Close()

	payouts := make([]*models.Payout, 0)
	for rows.Next() {
		payout, err := r.scanPayout(rows)
		if err != nil {
			return nil, common.NewInternalError("failed to scan payout", err)
		}
		payouts = append(payouts, payout)
	}

	return payouts, nil
}

// GetPayoutAccount retrieves a driver's payout destination
func (r *Repository) GetPayoutAccount(ctx context.Context, driverID uuid.UUID) (*models.PayoutAccount, error) {
	account := &models.PayoutAccount{}
	query := `
		SELECT driver_id, destination, currency, is_verified, created_at, updated_at
		FROM payout_accounts
		WHERE driver_id = $1`

	err := r.db.QueryRow(ctx, query, driverID).Scan(
		&account.DriverID,
		&account.Destination,
		&account.Currency,
		&account.IsVerified,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("payout account not found", err)
		}
		return nil, common.NewInternalError("failed to get payout account", err)
	}

	return account, nil
}

// UpsertPayoutAccount creates or replaces a driver's payout destination.
// Changing the destination resets verification.
func (r *Repository) UpsertPayoutAccount(ctx context.Context, account *models.PayoutAccount) error {
	query := `
		INSERT INTO payout_accounts (driver_id, destination, currency, is_verified)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (driver_id) DO UPDATE
		SET destination = EXCLUDED.destination,
			currency = EXCLUDED.currency,
			is_verified = EXCLUDED.is_verified,
			updated_at = NOW()
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		account.DriverID,
		account.Destination,
		account.Currency,
		account.IsVerified,
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return common.NewInternalError("failed to upsert payout account", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *Repository) scanPayout(row rowScanner) (*models.Payout, error) {
	payout := &models.Payout{}
	err := row.Scan(
		&payout.ID,
		&payout.WalletID,
		&payout.DriverID,
		&payout.Amount,
		&payout.Currency,
		&payout.Status,
		&payout.DebitTransactionID,
		&payout.ProcessorReference,
		&payout.FailureCode,
		&payout.FailureReason,
		&payout.Metadata,
		&payout.CreatedAt,
		&payout.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return payout, nil
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23514"
}
