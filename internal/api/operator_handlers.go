package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"parkcore/internal/entities"
	"parkcore/internal/service"
)

type OperatorHandler struct {
	service    *service.OperatorService
	supervisor *service.GraceSupervisor
}

func NewOperatorHandler(svc *service.OperatorService, supervisor *service.GraceSupervisor) *OperatorHandler {
	return &OperatorHandler{service: svc, supervisor: supervisor}
}

func (h *OperatorHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	status := r.URL.Query().Get("status")
	bookings, err := h.service.ListBookings(date, status)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	out := make([]BookingResponse, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toBookingResponse(b, ""))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *OperatorHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.CancelBooking(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toBookingResponse(b, "Booking cancelled by operator."))
}

func (h *OperatorHandler) ListSpots(w http.ResponseWriter, r *http.Request) {
	spots, err := h.service.ListSpots()
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, spots)
}

func (h *OperatorHandler) CreateSpot(w http.ResponseWriter, r *http.Request) {
	var req SpotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	spot := entities.Spot{
		ID:            req.ID,
		Zone:          req.Zone,
		EVCapable:     req.EVCapable,
		Accessible:    req.Accessible,
		ProximityRank: req.ProximityRank,
	}
	if err := h.service.CreateSpot(&spot); err != nil {
		http.Error(w, "Could not create spot", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusCreated, spot)
}

func (h *OperatorHandler) UpdateSpot(w http.ResponseWriter, r *http.Request) {
	var req SpotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.ID = mux.Vars(r)["id"]
	if err := validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	spot := entities.Spot{
		ID:            req.ID,
		Zone:          req.Zone,
		EVCapable:     req.EVCapable,
		Accessible:    req.Accessible,
		ProximityRank: req.ProximityRank,
	}
	if err := h.service.UpdateSpot(&spot); err != nil {
		http.Error(w, "Could not update spot", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, spot)
}

func (h *OperatorHandler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	h.supervisor.Sweep()
	respondJSON(w, http.StatusOK, map[string]string{"message": "Sweep executed"})
}

func (h *OperatorHandler) WaitlistDepth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]int{"depth": h.service.WaitlistDepth()})
}
