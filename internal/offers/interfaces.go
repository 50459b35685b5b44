package offers

import (
	"context"

	"github.com/google/uuid"
	"github.com/richxcame/driver-ledger/pkg/models"
)

// RepositoryInterface defines the interface for ride offer repository operations
type RepositoryInterface interface {
	CreateOffer(ctx context.Context, offer *models.RideOffer) error
	GetOfferByID(ctx context.Context, id uuid.UUID) (*models.RideOffer, error)
	GetAcceptedOfferByRideRequest(ctx context.Context, rideRequestID uuid.UUID) (*models.RideOffer, error)
	// AcceptOffer moves a pending offer to accepted. The database enforces
	// at most one accepted offer per ride request.
	AcceptOffer(ctx context.Context, id uuid.UUID) (bool, error)
	// LinkPayment attaches a payment reference to an accepted offer.
	// Re-linking the same reference is a no-op; the guard fails for a
	// different reference or a non-accepted offer.
	LinkPayment(ctx context.Context, id uuid.UUID, paymentReference string) (bool, error)
}

// ChargeClient creates rider charges with the payment processor
type ChargeClient interface {
	CreateCharge(ctx context.Context, amount int64, currency, description string, metadata map[string]string) (string, error)
}
