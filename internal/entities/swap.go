package entities

import "time"

type SwapOfferStatus string

const (
	SwapOpen      SwapOfferStatus = "open"
	SwapAccepted  SwapOfferStatus = "accepted"
	SwapWithdrawn SwapOfferStatus = "withdrawn"
	SwapExpired   SwapOfferStatus = "expired"
)

// SwapOffer puts an existing booking up for ownership transfer. Accepting it
// retargets the booking's owner; the spot and window are untouched.
type SwapOffer struct {
	ID         string          `json:"id"`
	BookingID  string          `json:"booking_id"`
	ProposedBy string          `json:"proposed_by"`
	PriceCents int64           `json:"price_cents"`
	Status     SwapOfferStatus `json:"status"`
	ExpiresAt  time.Time       `json:"expires_at"`
	CreatedAt  time.Time       `json:"created_at"`
}
