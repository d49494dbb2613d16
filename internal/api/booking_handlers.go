package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"parkcore/internal/clock"
	"parkcore/internal/entities"
	apperrors "parkcore/internal/errors"
	"parkcore/internal/service"
)

type BookingHandler struct {
	engine *service.ReservationEngine
	clock  clock.Clock
}

func NewBookingHandler(engine *service.ReservationEngine, clk clock.Clock) *BookingHandler {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &BookingHandler{engine: engine, clock: clk}
}

func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	window, err := entities.NewTimeWindow(req.StartTime, req.EndTime)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b, err := h.engine.RequestBooking(service.RequestBookingInput{
		UserID:    req.UserID,
		UserName:  req.FullName,
		UserEmail: req.Email,
		UserPhone: req.Phone,
		Tier:      entities.Tier(req.Tier),
		Window:    window,
		Constraints: entities.Constraints{
			Zone:           req.Zone,
			NeedEV:         req.NeedEV,
			NeedAccessible: req.NeedAccess,
			SpotIDs:        req.SpotIDs,
		},
		PriceCents: req.PriceCents,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	msg := "Booking confirmed."
	status := http.StatusCreated
	if b.Status == entities.StatusWaitlisted {
		msg = "No spot free for the window; booking waitlisted."
		status = http.StatusAccepted
	}
	respondJSON(w, status, toBookingResponse(b, msg))
}

func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	b, err := h.engine.GetBooking(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toBookingResponse(b, ""))
}

func (h *BookingHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	b, err := h.engine.CheckIn(id, h.clock.Now())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toBookingResponse(b, "Checked in."))
}

func (h *BookingHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	// The checkout code is optional; when present it must match.
	var req CheckOutRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}
	if req.CheckoutCode != "" {
		b, err := h.engine.GetBooking(id)
		if err != nil {
			respondError(w, err)
			return
		}
		if b.CheckoutCode != req.CheckoutCode {
			respondError(w, apperrors.ErrOwnershipMismatch)
			return
		}
	}

	b, err := h.engine.CheckOut(id, h.clock.Now())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toBookingResponse(b, "Checked out."))
}

func (h *BookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	b, err := h.engine.Cancel(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toBookingResponse(b, "Booking cancelled."))
}

func (h *BookingHandler) ClaimOffer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	b, err := h.engine.ClaimOffer(id, h.clock.Now())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toBookingResponse(b, "Offer claimed, booking confirmed."))
}

func (h *BookingHandler) RaiseBid(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req RaiseBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b, err := h.engine.RaiseBid(id, req.PremiumCents)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toBookingResponse(b, "Bid recorded."))
}
