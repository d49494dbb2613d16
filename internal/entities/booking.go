package entities

import "time"

type BookingStatus string

const (
	StatusPending    BookingStatus = "pending"
	StatusConfirmed  BookingStatus = "confirmed"
	StatusWaitlisted BookingStatus = "waitlisted"
	StatusActive     BookingStatus = "active"
	StatusCompleted  BookingStatus = "completed"
	StatusCancelled  BookingStatus = "cancelled"
	StatusExpired    BookingStatus = "expired"
)

// transitions is the closed transition table for the booking state machine.
// Anything not listed here is rejected as an invalid transition.
var transitions = map[BookingStatus][]BookingStatus{
	StatusPending:    {StatusConfirmed, StatusWaitlisted, StatusCancelled},
	StatusConfirmed:  {StatusActive, StatusCancelled, StatusExpired},
	StatusActive:     {StatusCompleted, StatusExpired},
	StatusWaitlisted: {StatusConfirmed, StatusCancelled},
}

// CanTransition reports whether from → to is a legal transition.
func (s BookingStatus) CanTransition(to BookingStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s BookingStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

type Tier string

const (
	TierWalkIn      Tier = "walk_in"
	TierStandard    Tier = "standard"
	TierMember      Tier = "member"
	TierHandicapped Tier = "handicapped"
)

// Booking is the single record behind a reservation. Ownership of the record
// moves atomically during a swap; the spot and window never move with it.
type Booking struct {
	ID            string        `json:"id"`
	Code          string        `json:"code"`
	CheckoutCode  string        `json:"checkout_code"`
	UserID        string        `json:"user_id"`
	UserName      string        `json:"user_name"`
	UserEmail     string        `json:"user_email"`
	UserPhone     string        `json:"user_phone"`
	Tier          Tier          `json:"tier"`
	Window        TimeWindow    `json:"window"`
	SpotID        string        `json:"spot_id,omitempty"`
	Zone          string        `json:"zone"`
	Status        BookingStatus `json:"status"`
	Score         int           `json:"score"`
	GraceDeadline time.Time     `json:"grace_deadline"`
	Constraints   Constraints   `json:"constraints"`

	PriceCents          int64  `json:"price_cents"`
	AuctionPremiumCents int64  `json:"auction_premium_cents"`
	PaymentRef          string `json:"payment_ref,omitempty"`
	PaymentStatus       string `json:"payment_status,omitempty"`

	ReminderSent bool      `json:"reminder_sent"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
