package models

import (
	"time"

	"github.com/google/uuid"
)

// OfferStatus represents ride offer state
type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferAccepted OfferStatus = "accepted"
	OfferRejected OfferStatus = "rejected"
)

// RideOffer represents a driver's offer for a ride request. At most one
// offer per ride request is ever accepted; PaymentReference links the
// accepted offer to the rider's payment.
type RideOffer struct {
	ID               uuid.UUID   `json:"id" db:"id"`
	RideRequestID    uuid.UUID   `json:"ride_request_id" db:"ride_request_id"`
	DriverID         uuid.UUID   `json:"driver_id" db:"driver_id"`
	Amount           int64       `json:"amount" db:"amount"`
	Currency         string      `json:"currency" db:"currency"`
	Status           OfferStatus `json:"status" db:"status"`
	PaymentReference *string     `json:"payment_reference,omitempty" db:"payment_reference"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at" db:"updated_at"`
}

// LinkPaymentRequest is the request body for attaching a payment to an offer
type LinkPaymentRequest struct {
	PaymentReference string `json:"payment_reference" binding:"required"`
}
