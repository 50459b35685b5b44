package ledger

import (
	"context"
	"errors"

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

// CreateWallet creates a new wallet for a driver
func (r *Repository) CreateWallet(ctx context.Context, wallet *models.Wallet) error {
	query := `
		INSERT INTO wallets (id, driver_id, balance, currency, version, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		wallet.ID,
		wallet.DriverID,
		wallet.Balance,
		wallet.Currency,
		wallet.Version,
		wallet.IsActive,
	).Scan(&wallet.CreatedAt, &wallet.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return common.NewConflictError("wallet already exists for driver")
		}
		return common.NewInternalError("failed to create wallet", err)
	}

	return nil
}

// GetWalletByID retrieves a wallet by ID
func (r *Repository) GetWalletByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return r.getWallet(ctx, "id", id)
}

// GetWalletByDriverID retrieves a driver's wallet
func (r *Repository) GetWalletByDriverID(ctx context.Context, driverID uuid.UUID) (*models.Wallet, error) {
	return r.getWallet(ctx, "driver_id", driverID)
}

func (r *Repository) getWallet(ctx context.Context, column string, id uuid.UUID) (*models.Wallet, error) {
	wallet := &models.Wallet{}
	query := `
		SELECT id, driver_id, balance, currency, version, is_active, created_at, updated_at
		FROM wallets
		WHERE ` + column + ` = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&wallet.ID,
		&wallet.DriverID,
		&wallet.Balance,
		&wallet.Currency,
		&wallet.Version,
		&wallet.IsActive,
		&wallet.CreatedAt,
		&wallet.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("wallet not found", err)
		}
		return nil, common.NewInternalError("failed to get wallet", err)
	}

	return wallet, nil
}

// ApplyTransaction inserts a ledger entry and moves the wallet balance in a
// single database transaction. The wallet update is guarded by the version
// the caller read; if another writer got there first no rows match and a
// state_conflict is returned so the caller can re-read and retry.
func (r *Repository) ApplyTransaction(ctx context.Context, wallet *models.Wallet, txn *models.Transaction) error {
	err := database.RetryableTransaction(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE wallets
			SET balance = balance + $1, version = version + 1, updated_at = NOW()
			WHERE id = $2 AND version = $3 AND is_active`,
			txn.Amount, wallet.ID, wallet.Version,
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
			INSERT INTO ledger_transactions (id, wallet_id, amount, kind, status, reference_id, reversal_of, description)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING created_at, updated_at`,
			txn.ID,
			txn.WalletID,
			txn.Amount,
			txn.Kind,
			txn.Status,
			txn.ReferenceID,
			txn.ReversalOf,
			txn.Description,
		).Scan(&txn.CreatedAt, &txn.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return common.NewAlreadyReversedError("transaction has already been reversed")
			}
			return common.NewInternalError("failed to insert ledger transaction", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	wallet.Balance += txn.Amount
	wallet.Version++
	return nil
}

// GetTransactionByID retrieves a ledger entry by ID
func (r *Repository) GetTransactionByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	query := `
		SELECT id, wallet_id, amount, kind, status, reference_id, reversal_of, description, created_at, updated_at
		FROM ledger_transactions
		WHERE id = $1`

	txn, err := r.scanTransaction(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("transaction not found", err)
		}
		return nil, common.NewInternalError("failed to get transaction", err)
	}
	return txn, nil
}

// FindReversal finds the compensating entry for a transaction, if any
func (r *Repository) FindReversal(ctx context.Context, originalID uuid.UUID) (*models.Transaction, error) {
	query := `
		SELECT id, wallet_id, amount, kind, status, reference_id, reversal_of, description, created_at, updated_at
		FROM ledger_transactions
		WHERE reversal_of = $1`

	txn, err := r.scanTransaction(r.db.QueryRow(ctx, query, originalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, common.NewInternalError("failed to find reversal", err)
	}
	return txn, nil
}

// FindEarningByRideID finds an existing earning entry for a ride, if any
func (r *Repository) FindEarningByRideID(ctx context.Context, walletID, rideID uuid.UUID) (*models.Transaction, error) {
	query := `
		SELECT id, wallet_id, amount, kind, status, reference_id, reversal_of, description, created_at, updated_at
		FROM ledger_transactions
		WHERE wallet_id = $1 AND reference_id = $2 AND kind = $3`

	txn, err := r.scanTransaction(r.db.QueryRow(ctx, query, walletID, rideID, models.KindRideEarning))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, common.NewInternalError("failed to find ride earning", err)
	}
	return txn, nil
}

// ListTransactions retrieves a wallet's ledger entries, newest first
func (r *Repository) ListTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*models.Transaction, int64, error) {
	var total int64
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM ledger_transactions WHERE wallet_id = $1", walletID).Scan(&total)
	if err != nil {
		return nil, 0, common.NewInternalError("failed to count transactions", err)
	}

	query := `
		SELECT id, wallet_id, amount, kind, status, reference_id, reversal_of, description, created_at, updated_at
		FROM ledger_transactions
		WHERE wallet_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, walletID, limit, offset)
	if err != nil {
		return nil, 0, common.NewInternalError("failed to list transactions", err)
	}
	defer rows.Close()

	transactions := make([]*models.Transaction, 0)
	for rows.Next() {
		txn, err := r.scanTransaction(rows)
		if err != nil {
			return nil, 0, common.NewInternalError("failed to scan transaction", err)
		}
		transactions = append(transactions, txn)
	}

	return transactions, total, nil
}

// UpdateTransactionStatus moves a ledger entry to a new lifecycle state
func (r *Repository) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status models.TransactionStatus) error {
	tag, err := database.RetryableExec(ctx, r.db, `
		UPDATE ledger_transactions
		SET status = $1, updated_at = NOW()
		WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return common.NewInternalError("failed to update transaction status", err)
	}
	if tag.RowsAffected() == 0 {
		return common.NewNotFoundError("transaction not found", pgx.ErrNoRows)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *Repository) scanTransaction(row rowScanner) (*models.Transaction, error) {
	txn := &models.Transaction{}
	err := row.Scan(
		&txn.ID,
		&txn.WalletID,
		&txn.Amount,
		&txn.Kind,
		&txn.Status,
		&txn.ReferenceID,
		&txn.ReversalOf,
		&txn.Description,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23514"
}
