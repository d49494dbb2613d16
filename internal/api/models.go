package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"parkcore/internal/entities"
	apperrors "parkcore/internal/errors"
)

var validate = validator.New()

// Booking
type CreateBookingRequest struct {
	UserID     string    `json:"user_id" validate:"required"`
	FullName   string    `json:"full_name" validate:"required"`
	Email      string    `json:"email" validate:"required,email"`
	Phone      string    `json:"phone" validate:"omitempty,e164"`
	Tier       string    `json:"tier" validate:"required,oneof=walk_in standard member handicapped"`
	StartTime  time.Time `json:"start_time" validate:"required"`
	EndTime    time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
	Zone       string    `json:"zone"`
	NeedEV     bool      `json:"need_ev"`
	NeedAccess bool      `json:"need_accessible"`
	SpotIDs    []string  `json:"spot_ids"`
	PriceCents int64     `json:"price_cents" validate:"gte=0"`
}

type BookingResponse struct {
	ID            string    `json:"id"`
	Code          string    `json:"code"`
	CheckoutCode  string    `json:"checkout_code,omitempty"`
	Status        string    `json:"status"`
	SpotID        string    `json:"spot_id,omitempty"`
	Zone          string    `json:"zone,omitempty"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	GraceDeadline time.Time `json:"grace_deadline,omitempty"`
	Score         int       `json:"score"`
	PriceCents    int64     `json:"price_cents"`
	PremiumCents  int64     `json:"premium_cents,omitempty"`
	Message       string    `json:"message,omitempty"`
}

func toBookingResponse(b entities.Booking, msg string) BookingResponse {
	return BookingResponse{
		ID:            b.ID,
		Code:          b.Code,
		CheckoutCode:  b.CheckoutCode,
		Status:        string(b.Status),
		SpotID:        b.SpotID,
		Zone:          b.Zone,
		StartTime:     b.Window.Start,
		EndTime:       b.Window.End,
		GraceDeadline: b.GraceDeadline,
		Score:         b.Score,
		PriceCents:    b.PriceCents,
		PremiumCents:  b.AuctionPremiumCents,
		Message:       msg,
	}
}

type CheckOutRequest struct {
	CheckoutCode string `json:"checkout_code"`
}

// Transfers
type ProposeSwapRequest struct {
	BookingID  string `json:"booking_id" validate:"required"`
	UserID     string `json:"user_id" validate:"required"`
	PriceCents int64  `json:"price_cents" validate:"gte=0"`
}

type AcceptSwapRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	FullName string `json:"full_name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"omitempty,e164"`
}

type RaiseBidRequest struct {
	PremiumCents int64 `json:"premium_cents" validate:"required,gt=0"`
}

type ExtendHoldRequest struct {
	UserID       string `json:"user_id" validate:"required"`
	ExtraMinutes int    `json:"extra_minutes" validate:"required,gt=0"`
	PremiumCents int64  `json:"premium_cents" validate:"gte=0"`
}

// Spots
type SpotRequest struct {
	ID            string `json:"id" validate:"required"`
	Zone          string `json:"zone" validate:"required"`
	EVCapable     bool   `json:"ev_capable"`
	Accessible    bool   `json:"accessible"`
	ProximityRank int    `json:"proximity_rank" validate:"gte=0"`
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, err error) {
	respondJSON(w, apperrors.StatusFor(err), map[string]string{"error": err.Error()})
}
