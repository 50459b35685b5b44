package offers

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

const offerColumns = `id, ride_request_id, driver_id, amount, currency, status, payment_reference, created_at, updated_at`

// CreateOffer creates a new ride offer
func (r *Repository) CreateOffer(ctx context.Context, offer *models.RideOffer) error {
	query := `
		INSERT INTO ride_offers (id, ride_request_id, driver_id, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		offer.ID,
		offer.RideRequestID,
		offer.DriverID,
		offer.Amount,
		offer.Currency,
		offer.Status,
	).Scan(&offer.CreatedAt, &offer.UpdatedAt)

	if err != nil {
		return common.NewInternalError("failed to create offer", err)
	}

	return nil
}

// GetOfferByID retrieves an offer by ID
func (r *Repository) GetOfferByID(ctx context.Context, id uuid.UUID) (*models.RideOffer, error) {
	offer, err := r.scanOffer(r.db.QueryRow(ctx, `SELECT `+offerColumns+` FROM ride_offers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("offer not found", err)
		}
		return nil, common.NewInternalError("failed to get offer", err)
	}
	return offer, nil
}

// GetAcceptedOfferByRideRequest retrieves the accepted offer for a ride request
func (r *Repository) GetAcceptedOfferByRideRequest(ctx context.Context, rideRequestID uuid.UUID) (*models.RideOffer, error) {
	query := `SELECT ` + offerColumns + ` FROM ride_offers WHERE ride_request_id = $1 AND status = $2`

	offer, err := r.scanOffer(r.db.QueryRow(ctx, query, rideRequestID, models.OfferAccepted))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("no accepted offer for ride request", err)
		}
		return nil, common.NewInternalError("failed to get accepted offer", err)
	}
	return offer, nil
}

// AcceptOffer moves a pending offer to accepted. The unique partial index on
// (ride_request_id) WHERE status = 'accepted' makes a second acceptance for
// the same ride request fail.
func (r *Repository) AcceptOffer(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE ride_offers
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`

	tag, err := database.RetryableExec(ctx, r.db, query, models.OfferAccepted, id, models.OfferPending)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, common.NewConflictError("ride request already has an accepted offer")
		}
		return false, common.NewInternalError("failed to accept offer", err)
	}

	return tag.RowsAffected() > 0, nil
}

// LinkPayment attaches a payment reference to an accepted offer. The guard
// only matches when the reference is unset or already equal, so replays of
// the same link are no-ops and conflicting links fail.
func (r *Repository) LinkPayment(ctx context.Context, id uuid.UUID, paymentReference string) (bool, error) {
	query := `
		UPDATE ride_offers
		SET payment_reference = $2, updated_at = NOW()
		WHERE id = $1
			AND status = $3
			AND (payment_reference IS NULL OR payment_reference = $2)`

	tag, err := database.RetryableExec(ctx, r.db, query, id, paymentReference, models.OfferAccepted)
	if err != nil {
		return false, common.NewInternalError("failed to link payment", err)
	}

	return tag.RowsAffected() > 0, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *Repository) scanOffer(row rowScanner) (*models.RideOffer, error) {
	offer := &models.RideOffer{}
	err := row.Scan(
		&offer.ID,
		&offer.RideRequestID,
		&offer.DriverID,
		&offer.Amount,
		&offer.Currency,
		&offer.Status,
		&offer.PaymentReference,
		&offer.CreatedAt,
		&offer.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return offer, nil
}
