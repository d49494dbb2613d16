package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"parkcore/internal/service"
)

type TransferHandler struct {
	broker *service.TransferBroker
}

func NewTransferHandler(broker *service.TransferBroker) *TransferHandler {
	return &TransferHandler{broker: broker}
}

func (h *TransferHandler) ProposeSwap(w http.ResponseWriter, r *http.Request) {
	var req ProposeSwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	offer, err := h.broker.ProposeSwap(req.BookingID, req.UserID, req.PriceCents)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, offer)
}

func (h *TransferHandler) ListOffers(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.broker.ListOpenOffers())
}

func (h *TransferHandler) GetOffer(w http.ResponseWriter, r *http.Request) {
	offer, err := h.broker.GetOffer(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, offer)
}

func (h *TransferHandler) AcceptSwap(w http.ResponseWriter, r *http.Request) {
	var req AcceptSwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b, err := h.broker.AcceptSwap(service.AcceptSwapInput{
		OfferID:   mux.Vars(r)["id"],
		UserID:    req.UserID,
		UserName:  req.FullName,
		UserEmail: req.Email,
		UserPhone: req.Phone,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toBookingResponse(b, "Swap accepted, booking transferred."))
}

func (h *TransferHandler) WithdrawSwap(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}
	if err := h.broker.WithdrawSwap(mux.Vars(r)["id"], userID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Offer withdrawn"})
}

func (h *TransferHandler) ExtendHold(w http.ResponseWriter, r *http.Request) {
	var req ExtendHoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b, err := h.broker.ExtendHold(
		mux.Vars(r)["id"],
		req.UserID,
		time.Duration(req.ExtraMinutes)*time.Minute,
		req.PremiumCents,
	)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toBookingResponse(b, "Hold extended."))
}
