package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"parkcore/internal/repository"
)

// StripeWebhookHandler mirrors asynchronous gateway state into the booking
// record. Payment state is bookkeeping only; the booking lifecycle is driven
// entirely by the engine.
type StripeWebhookHandler struct {
	StripeSecret string
	bookingRepo  *repository.BookingRepository
}

func NewStripeWebhookHandler(stripeSecret string, bookingRepo *repository.BookingRepository) *StripeWebhookHandler {
	return &StripeWebhookHandler{
		StripeSecret: stripeSecret,
		bookingRepo:  bookingRepo,
	}
}

func (h *StripeWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	const maxBodyBytes = int64(65536)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("Error reading webhook body: %v", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, sigHeader, h.StripeSecret)
	if err != nil {
		log.Printf("Webhook signature verification failed: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	switch event.Type {
	case "payment_intent.amount_capturable_updated":
		h.recordIntentStatus(w, event.Data.Raw, "authorized")
	case "payment_intent.succeeded":
		h.recordIntentStatus(w, event.Data.Raw, "captured")
	case "payment_intent.canceled":
		h.recordIntentStatus(w, event.Data.Raw, "released")
	case "payment_intent.payment_failed":
		h.recordIntentStatus(w, event.Data.Raw, "failed")
	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if charge.PaymentIntent != nil && charge.PaymentIntent.ID != "" {
			if err := h.bookingRepo.UpdatePaymentStatus(charge.PaymentIntent.ID, "refunded"); err != nil {
				log.Printf("DB error recording refund: %v", err)
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
		}
	default:
		log.Printf("Unhandled event type: %s", event.Type)
	}

	w.WriteHeader(http.StatusOK)
}

func (h *StripeWebhookHandler) recordIntentStatus(w http.ResponseWriter, raw json.RawMessage, status string) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(raw, &pi); err != nil {
		log.Printf("Error parsing payment_intent: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if pi.ID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := h.bookingRepo.UpdatePaymentStatus(pi.ID, status); err != nil {
		log.Printf("DB error recording payment status: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}
