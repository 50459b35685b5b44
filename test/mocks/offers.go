package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/driver-ledger/pkg/common"
	"github.com/richxcame/driver-ledger/pkg/models"
)

// MemoryOfferRepository is an in-memory ride offer repository mirroring the
// conditional-update and accepted-offer-uniqueness guarantees of Postgres.
type MemoryOfferRepository struct {
	mu     sync.Mutex
	offers map[uuid.UUID]*models.RideOffer
}

func NewMemoryOfferRepository() *MemoryOfferRepository {
	return &MemoryOfferRepository{offers: make(map[uuid.UUID]*models.RideOffer)}
}

func (r *MemoryOfferRepository) CreateOffer(ctx context.Context, offer *models.RideOffer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	offer.CreatedAt = now
	offer.UpdatedAt = now
	dup := *offer
	r.offers[offer.ID] = &dup
	return nil
}

func (r *MemoryOfferRepository) GetOfferByID(ctx context.Context, id uuid.UUID) (*models.RideOffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	offer, ok := r.offers[id]
	if !ok {
		return nil, common.NewNotFoundError("offer not found", nil)
	}
	dup := *offer
	return &dup, nil
}

func (r *MemoryOfferRepository) GetAcceptedOfferByRideRequest(ctx context.Context, rideRequestID uuid.UUID) (*models.RideOffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, offer := range r.offers {
		if offer.RideRequestID == rideRequestID && offer.Status == models.OfferAccepted {
			dup := *offer
			return &dup, nil
		}
	}
	return nil, common.NewNotFoundError("no accepted offer for ride request", nil)
}

func (r *MemoryOfferRepository) AcceptOffer(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	offer, ok := r.offers[id]
	if !ok || offer.Status != models.OfferPending {
		return false, nil
	}

	for _, other := range r.offers {
		if other.RideRequestID == offer.RideRequestID && other.Status == models.OfferAccepted {
			return false, common.NewConflictError("ride request already has an accepted offer")
		}
	}

	offer.Status = models.OfferAccepted
	offer.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *MemoryOfferRepository) LinkPayment(ctx context.Context, id uuid.UUID, paymentReference string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	offer, ok := r.offers[id]
	if !ok || offer.Status != models.OfferAccepted {
		return false, nil
	}
	if offer.PaymentReference != nil && *offer.PaymentReference != paymentReference {
		return false, nil
	}

	offer.PaymentReference = &paymentReference
	offer.UpdatedAt = time.Now().UTC()
	return true, nil
}

// FakeChargeClient is a scriptable charge client
type FakeChargeClient struct {
	mu sync.Mutex
	// ChargeFunc, when set, decides each charge's outcome
	ChargeFunc func(ctx context.Context, amount int64, currency, description string, metadata map[string]string) (string, error)
	calls      int
}

func (c *FakeChargeClient) CreateCharge(ctx context.Context, amount int64, currency, description string, metadata map[string]string) (string, error) {
	c.mu.Lock()
	c.calls++
	fn := c.ChargeFunc
	c.mu.Unlock()

	if fn != nil {
		return fn(ctx, amount, currency, description, metadata)
	}
	return "pi_" + metadata["offer_id"], nil
}

func (c *FakeChargeClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
