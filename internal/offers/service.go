package offers

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/richxcame/driver-ledger/pkg/common"
	"github.com/richxcame/driver-ledger/pkg/config"
	"github.com/richxcame/driver-ledger/pkg/logger"
	"github.com/richxcame/driver-ledger/pkg/models"
	"go.uber.org/zap"
)

type Service struct {
	repo    RepositoryInterface
	charger ChargeClient
	cfg     *config.LedgerConfig
}

func NewService(repo RepositoryInterface, charger ChargeClient, cfg *config.LedgerConfig) *Service {
	return &Service{
		repo:    repo,
		charger: charger,
		cfg:     cfg,
	}
}

// CreateOffer records a driver's offer for a ride request
func (s *Service) CreateOffer(ctx context.Context, rideRequestID, driverID uuid.UUID, amount int64) (*models.RideOffer, error) {
	if amount <= 0 {
		return nil, common.NewInvalidAmountError("offer amount must be positive")
	}

	offer := &models.RideOffer{
		ID:            uuid.New(),
		RideRequestID: rideRequestID,
		DriverID:      driverID,
		Amount:        amount,
		Currency:      s.cfg.Currency,
		Status:        models.OfferPending,
	}

	if err := s.repo.CreateOffer(ctx, offer); err != nil {
		return nil, err
	}

	return offer, nil
}

// AcceptOffer accepts a pending offer. At most one offer per ride request
// can ever be accepted.
func (s *Service) AcceptOffer(ctx context.Context, id uuid.UUID) (*models.RideOffer, error) {
	offer, err := s.repo.GetOfferByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if offer.Status == models.OfferAccepted {
		return offer, nil
	}
	if offer.Status != models.OfferPending {
		return nil, common.NewConflictError("offer is not pending")
	}

	ok, err := s.repo.AcceptOffer(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.NewStateConflictError("offer changed state concurrently")
	}

	offer.Status = models.OfferAccepted
	return offer, nil
}

// GetAcceptedOffer returns the accepted offer for a ride request
func (s *Service) GetAcceptedOffer(ctx context.Context, rideRequestID uuid.UUID) (*models.RideOffer, error) {
	return s.repo.GetAcceptedOfferByRideRequest(ctx, rideRequestID)
}

// LinkPayment attaches a payment reference to an accepted offer. Linking the
// same reference again is a no-op; linking a different one fails.
func (s *Service) LinkPayment(ctx context.Context, id uuid.UUID, paymentReference string) (*models.RideOffer, error) {
	if paymentReference == "" {
		return nil, common.NewBadRequestError("payment reference is required", nil)
	}

	ok, err := s.repo.LinkPayment(ctx, id, paymentReference)
	if err != nil {
		return nil, err
	}
	if !ok {
		offer, err := s.repo.GetOfferByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if offer.Status != models.OfferAccepted {
			return nil, common.NewConflictError("only accepted offers can be linked to a payment")
		}
		return nil, common.NewAlreadyLinkedError("offer is already linked to a different payment")
	}

	return s.repo.GetOfferByID(ctx, id)
}

// ChargeRider creates a processor charge for an accepted offer and links it.
// Charging an already-linked offer returns the offer untouched, so retried
// requests never double-charge.
func (s *Service) ChargeRider(ctx context.Context, id uuid.UUID) (*models.RideOffer, error) {
	offer, err := s.repo.GetOfferByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if offer.Status != models.OfferAccepted {
		return nil, common.NewConflictError("only accepted offers can be charged")
	}
	if offer.PaymentReference != nil {
		return offer, nil
	}

	ref, err := s.charger.CreateCharge(ctx, offer.Amount, offer.Currency,
		fmt.Sprintf("Ride fare for request %s", offer.RideRequestID),
		map[string]string{
			"offer_id":        offer.ID.String(),
			"ride_request_id": offer.RideRequestID.String(),
			"driver_id":       offer.DriverID.String(),
		},
	)
	if err != nil {
		return nil, err
	}

	linked, err := s.LinkPayment(ctx, id, ref)
	if err != nil {
		// The charge exists but the link lost a race; operators resolve
		// from the processor reference in the log
		logger.ErrorContext(ctx, "charge created but payment link failed",
			zap.String("offer_id", id.String()),
			zap.String("payment_reference", ref),
			zap.Error(err),
		)
		return nil, err
	}

	return linked, nil
}
