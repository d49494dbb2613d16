package service

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"parkcore/internal/entities"
	apperrors "parkcore/internal/errors"
)

const defaultSwapOfferTTL = 30 * time.Minute

// TransferBroker mediates owner-initiated spot transfers: swap offers that
// another user can accept, and paid extensions of a held interval. Offers
// live in memory only; an accepted swap mutates the durable booking.
type TransferBroker struct {
	engine   *ReservationEngine
	payments PaymentGateway
	offerTTL time.Duration

	mu     sync.Mutex
	offers map[string]*entities.SwapOffer
}

func NewTransferBroker(engine *ReservationEngine, payments PaymentGateway, offerTTL time.Duration) *TransferBroker {
	if offerTTL <= 0 {
		offerTTL = defaultSwapOfferTTL
	}
	return &TransferBroker{
		engine:   engine,
		payments: payments,
		offerTTL: offerTTL,
		offers:   make(map[string]*entities.SwapOffer),
	}
}

// ProposeSwap puts a Confirmed or Active booking up for transfer at the
// given asking price. Only the booking owner may propose.
func (t *TransferBroker) ProposeSwap(bookingID, userID string, priceCents int64) (entities.SwapOffer, error) {
	b, err := t.engine.GetBooking(bookingID)
	if err != nil {
		return entities.SwapOffer{}, err
	}
	if b.UserID != userID {
		return entities.SwapOffer{}, apperrors.ErrOwnershipMismatch
	}
	if b.Status != entities.StatusConfirmed && b.Status != entities.StatusActive {
		return entities.SwapOffer{}, apperrors.NewInvalidTransition(string(b.Status), "swap_offered")
	}

	now := t.engine.clock.Now()
	offer := &entities.SwapOffer{
		ID:         uuid.NewString(),
		BookingID:  bookingID,
		ProposedBy: userID,
		PriceCents: priceCents,
		Status:     entities.SwapOpen,
		ExpiresAt:  now.Add(t.offerTTL),
		CreatedAt:  now,
	}

	t.mu.Lock()
	t.offers[offer.ID] = offer
	t.mu.Unlock()
	return *offer, nil
}

type AcceptSwapInput struct {
	OfferID   string
	UserID    string
	UserName  string
	UserEmail string
	UserPhone string
}

// AcceptSwap transfers the booking to the accepting user. The underlying
// interval commitment never lapses during the handover: only the owner
// fields change, and the swap re-validates that the booking still holds its
// interval before money moves.
func (t *TransferBroker) AcceptSwap(in AcceptSwapInput) (entities.Booking, error) {
	now := t.engine.clock.Now()

	t.mu.Lock()
	offer, ok := t.offers[in.OfferID]
	if !ok {
		t.mu.Unlock()
		return entities.Booking{}, apperrors.ErrOfferNotFound
	}
	if offer.Status != entities.SwapOpen {
		t.mu.Unlock()
		return entities.Booking{}, apperrors.ErrOfferNotFound
	}
	if now.After(offer.ExpiresAt) {
		offer.Status = entities.SwapExpired
		t.mu.Unlock()
		return entities.Booking{}, apperrors.ErrOfferNotFound
	}
	if offer.ProposedBy == in.UserID {
		t.mu.Unlock()
		return entities.Booking{}, apperrors.ErrOwnershipMismatch
	}
	// Reserve the offer while the transfer is in flight.
	offer.Status = entities.SwapAccepted
	t.mu.Unlock()

	b, err := t.engine.swapOwner(offer, in, now)
	if err != nil {
		t.mu.Lock()
		offer.Status = entities.SwapOpen
		t.mu.Unlock()
		return entities.Booking{}, err
	}
	return b, nil
}

// WithdrawSwap closes an open offer. Only the proposer may withdraw.
func (t *TransferBroker) WithdrawSwap(offerID, userID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	offer, ok := t.offers[offerID]
	if !ok || offer.Status != entities.SwapOpen {
		return apperrors.ErrOfferNotFound
	}
	if offer.ProposedBy != userID {
		return apperrors.ErrOwnershipMismatch
	}
	offer.Status = entities.SwapWithdrawn
	return nil
}

// GetOffer returns a copy of the swap offer.
func (t *TransferBroker) GetOffer(offerID string) (entities.SwapOffer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	offer, ok := t.offers[offerID]
	if !ok {
		return entities.SwapOffer{}, apperrors.ErrOfferNotFound
	}
	return *offer, nil
}

// ListOpenOffers returns the offers still up for acceptance.
func (t *TransferBroker) ListOpenOffers() []entities.SwapOffer {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]entities.SwapOffer, 0, len(t.offers))
	for _, offer := range t.offers {
		if offer.Status == entities.SwapOpen {
			out = append(out, *offer)
		}
	}
	return out
}

// ExpireOffers marks open offers past their TTL. Called from the sweep.
func (t *TransferBroker) ExpireOffers(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	expired := 0
	for _, offer := range t.offers {
		if offer.Status == entities.SwapOpen && now.After(offer.ExpiresAt) {
			offer.Status = entities.SwapExpired
			expired++
		}
	}
	return expired
}

// ExtendHold lengthens the booking's window in place and, atomically with
// it, the grace deadline. The extension is gap-filling only; a neighbor in
// the way yields ErrExtensionConflict and the caller may try the waitlist.
func (t *TransferBroker) ExtendHold(bookingID, userID string, extra time.Duration, premiumCents int64) (entities.Booking, error) {
	return t.engine.extendHold(bookingID, userID, extra, premiumCents, t.payments)
}

// swapOwner moves the booking to the new owner. The accepting user pays the
// asking price into a fresh hold placed before the engine lock is taken, so
// a slow gateway never stalls unrelated bookings; the booking is then
// re-validated under the lock, and the hold is released if validation or the
// write-through fails. The proposer's original hold is released on success.
func (e *ReservationEngine) swapOwner(offer *entities.SwapOffer, in AcceptSwapInput, now time.Time) (entities.Booking, error) {
	e.mu.Lock()
	b, ok := e.bookings[offer.BookingID]
	if !ok {
		e.mu.Unlock()
		return entities.Booking{}, apperrors.ErrBookingNotFound
	}
	if err := e.swapEligibleLocked(b); err != nil {
		e.mu.Unlock()
		return entities.Booking{}, err
	}
	code := b.Code
	e.mu.Unlock()

	var newRef string
	if offer.PriceCents > 0 {
		ref, payErr := e.payments.AuthorizeHold(in.UserEmail, offer.PriceCents, "swap "+code)
		if payErr != nil {
			log.Printf("payment hold declined accepting swap %s: %v", offer.ID, payErr)
			return entities.Booking{}, apperrors.ErrPaymentDeclined
		}
		newRef = ref
	}
	releaseNew := func() {
		if newRef == "" {
			return
		}
		if err := e.payments.ReleaseHold(newRef); err != nil {
			log.Printf("failed to release swap hold %s: %v", newRef, err)
		}
	}

	e.mu.Lock()
	b, ok = e.bookings[offer.BookingID]
	if !ok {
		e.mu.Unlock()
		releaseNew()
		return entities.Booking{}, apperrors.ErrBookingNotFound
	}
	if err := e.swapEligibleLocked(b); err != nil {
		e.mu.Unlock()
		releaseNew()
		return entities.Booking{}, err
	}

	prev := *b
	b.UserID = in.UserID
	b.UserName = in.UserName
	b.UserEmail = in.UserEmail
	b.UserPhone = in.UserPhone
	if newRef != "" {
		b.PaymentRef = newRef
		b.PaymentStatus = "authorized"
	}
	b.UpdatedAt = now

	if err := e.repo.SaveBooking(b); err != nil {
		*b = prev
		e.mu.Unlock()
		releaseNew()
		log.Printf("store unavailable during swap of booking %s: %v", b.ID, err)
		return entities.Booking{}, apperrors.ErrStoreUnavailable
	}
	done := *b
	e.mu.Unlock()

	if prev.PaymentRef != "" && prev.PaymentRef != done.PaymentRef {
		e.releaseHold(&prev)
	}
	e.notify(done, "transferred to you")
	return done, nil
}

// swapEligibleLocked checks that the booking can still change hands: it must
// be Confirmed or Active and still hold its committed interval (a concurrent
// cancel or expiry releases it). Caller holds e.mu.
func (e *ReservationEngine) swapEligibleLocked(b *entities.Booking) error {
	if b.Status != entities.StatusConfirmed && b.Status != entities.StatusActive {
		return apperrors.ErrOwnershipMismatch
	}
	if !e.arena.Holds(b.SpotID, b.ID) {
		return apperrors.ErrOwnershipMismatch
	}
	return nil
}

// extendHold grows the committed interval, the booking window and the grace
// deadline as one step. The premium is held before the engine lock is taken
// (the gateway call must not stall unrelated bookings) and released again if
// re-validation or the extension cannot land.
func (e *ReservationEngine) extendHold(bookingID, userID string, extra time.Duration, premiumCents int64, payments PaymentGateway) (entities.Booking, error) {
	if extra <= 0 {
		return entities.Booking{}, apperrors.ErrExtensionConflict
	}

	e.mu.Lock()
	b, ok := e.bookings[bookingID]
	if !ok {
		e.mu.Unlock()
		return entities.Booking{}, apperrors.ErrBookingNotFound
	}
	if err := extendEligible(b, userID); err != nil {
		e.mu.Unlock()
		return entities.Booking{}, err
	}
	email, code := b.UserEmail, b.Code
	e.mu.Unlock()

	var premiumRef string
	if premiumCents > 0 {
		ref, payErr := payments.AuthorizeHold(email, premiumCents, "extension "+code)
		if payErr != nil {
			log.Printf("premium hold declined extending booking %s: %v", bookingID, payErr)
			return entities.Booking{}, apperrors.ErrPaymentDeclined
		}
		premiumRef = ref
	}
	releasePremium := func() {
		if premiumRef == "" {
			return
		}
		if err := payments.ReleaseHold(premiumRef); err != nil {
			log.Printf("failed to release premium hold %s: %v", premiumRef, err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok = e.bookings[bookingID]
	if !ok {
		releasePremium()
		return entities.Booking{}, apperrors.ErrBookingNotFound
	}
	if err := extendEligible(b, userID); err != nil {
		releasePremium()
		return entities.Booking{}, err
	}

	prevEnd := b.Window.End
	newEnd := prevEnd.Add(extra)
	if err := e.arena.Resize(b.SpotID, b.ID, newEnd); err != nil {
		releasePremium()
		return entities.Booking{}, err
	}

	prev := *b
	b.Window.End = newEnd
	b.GraceDeadline = b.GraceDeadline.Add(extra)
	b.AuctionPremiumCents += premiumCents
	b.Score = e.score(b.Tier, b.AuctionPremiumCents, b.Zone)
	b.UpdatedAt = e.clock.Now()

	if err := e.repo.SaveBooking(b); err != nil {
		*b = prev
		if rbErr := e.arena.Resize(b.SpotID, b.ID, prevEnd); rbErr != nil {
			log.Printf("failed to roll back extension for booking %s: %v", b.ID, rbErr)
		}
		releasePremium()
		log.Printf("store unavailable extending booking %s: %v", b.ID, err)
		return entities.Booking{}, apperrors.ErrStoreUnavailable
	}
	return *b, nil
}

func extendEligible(b *entities.Booking, userID string) error {
	if b.UserID != userID {
		return apperrors.ErrOwnershipMismatch
	}
	if b.Status != entities.StatusConfirmed && b.Status != entities.StatusActive {
		return apperrors.NewInvalidTransition(string(b.Status), "extended")
	}
	return nil
}
