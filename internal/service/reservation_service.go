package service

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"parkcore/internal/allocator"
	"parkcore/internal/clock"
	"parkcore/internal/entities"
	apperrors "parkcore/internal/errors"
	"parkcore/internal/events"
	"parkcore/internal/priority"
	"parkcore/internal/timeline"
	"parkcore/internal/waitlist"
)

// BookingStore is the durable record behind the engine. Every transition is
// written through before it is acknowledged; restart recovery reads it back.
type BookingStore interface {
	SaveBooking(b *entities.Booking) error
	SaveWaitlistEntry(e *entities.WaitlistEntry) error
	DeleteWaitlistEntry(bookingID string) error
	ListOpenBookings() ([]entities.Booking, error)
	ListWaitlistEntries() ([]entities.WaitlistEntry, error)
}

// SpotCatalog is the locator plus the spot inventory used to match waitlist
// entries against freed spots.
type SpotCatalog interface {
	allocator.Locator
	ListSpots() ([]entities.Spot, error)
}

// PaymentGateway is the external hold contract: authorize before Confirmed,
// capture on Completed, release on Cancelled/Expired.
type PaymentGateway interface {
	AuthorizeHold(email string, amountCents int64, memo string) (string, error)
	CaptureHold(ref string) error
	ReleaseHold(ref string) error
}

// Notifier delivers user-facing booking messages (email/SMS). Optional.
type Notifier interface {
	NotifyBookingStatus(b entities.Booking, status string)
}

// DemandHintFunc is the optional priority feed: an additive per-zone score
// adjustment. A nil func is neutral.
type DemandHintFunc func(zone string) int

const (
	defaultGracePeriod  = 15 * time.Minute
	defaultOfferTimeout = 5 * time.Minute
)

// waitlistOffer is a provisionally committed interval awaiting the user's
// claim. The booking stays Waitlisted until the claim lands; an unclaimed
// offer lapses on the next sweep and the next entry is tried.
type waitlistOffer struct {
	entry    entities.WaitlistEntry
	spotID   string
	deadline time.Time
}

type EngineDeps struct {
	Repo         BookingStore
	Arena        *timeline.Arena
	Catalog      SpotCatalog
	Queue        *waitlist.Queue
	Payments     PaymentGateway
	Sink         events.Sink
	Notifier     Notifier
	Clock        clock.Clock
	DemandHint   DemandHintFunc
	GracePeriod  time.Duration
	OfferTimeout time.Duration
}

// ReservationEngine owns the booking lifecycle. The in-memory booking map is
// the concurrency arbiter; per-spot serialization lives in the timeline arena.
type ReservationEngine struct {
	repo         BookingStore
	arena        *timeline.Arena
	alloc        *allocator.Allocator
	catalog      SpotCatalog
	queue        *waitlist.Queue
	payments     PaymentGateway
	sink         events.Sink
	notifier     Notifier
	clock        clock.Clock
	demandHint   DemandHintFunc
	gracePeriod  time.Duration
	offerTimeout time.Duration

	mu       sync.Mutex
	bookings map[string]*entities.Booking
	spots    map[string]entities.Spot
	offers   map[string]waitlistOffer
}

func NewReservationEngine(d EngineDeps) *ReservationEngine {
	e := &ReservationEngine{
		repo:         d.Repo,
		arena:        d.Arena,
		alloc:        allocator.New(d.Arena),
		catalog:      d.Catalog,
		queue:        d.Queue,
		payments:     d.Payments,
		sink:         d.Sink,
		notifier:     d.Notifier,
		clock:        d.Clock,
		demandHint:   d.DemandHint,
		gracePeriod:  d.GracePeriod,
		offerTimeout: d.OfferTimeout,
		bookings:     make(map[string]*entities.Booking),
		spots:        make(map[string]entities.Spot),
		offers:       make(map[string]waitlistOffer),
	}
	if e.queue == nil {
		e.queue = waitlist.New()
	}
	if e.sink == nil {
		e.sink = events.LogSink{}
	}
	if e.clock == nil {
		e.clock = clock.NewSystem()
	}
	if e.gracePeriod <= 0 {
		e.gracePeriod = defaultGracePeriod
	}
	if e.offerTimeout <= 0 {
		e.offerTimeout = defaultOfferTimeout
	}
	return e
}

// Restore rebuilds the hot state from the store: the spot cache, every
// non-terminal booking, the committed intervals of spot-assigned bookings,
// and the waitlist queue. Pending offers are not durable; their bookings
// come back as plain waitlist entries.
func (e *ReservationEngine) Restore() error {
	spots, err := e.catalog.ListSpots()
	if err != nil {
		return fmt.Errorf("restoring spot catalog: %w", err)
	}
	bookings, err := e.repo.ListOpenBookings()
	if err != nil {
		return fmt.Errorf("restoring open bookings: %w", err)
	}
	entries, err := e.repo.ListWaitlistEntries()
	if err != nil {
		return fmt.Errorf("restoring waitlist: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, s := range spots {
		e.spots[s.ID] = s
	}
	for i := range bookings {
		b := bookings[i]
		if b.SpotID != "" && (b.Status == entities.StatusConfirmed || b.Status == entities.StatusActive) {
			if err := e.arena.TryCommit(b.SpotID, b.Window, b.ID); err != nil {
				return fmt.Errorf("restoring interval for booking %s on %s: %w", b.ID, b.SpotID, err)
			}
		}
		e.bookings[b.ID] = &b
	}
	for _, entry := range entries {
		e.queue.Push(entry)
	}
	log.Printf("restored %d open bookings, %d waitlist entries, %d spots", len(bookings), len(entries), len(spots))
	return nil
}

// RefreshSpots reloads the spot cache after an operator edit.
func (e *ReservationEngine) RefreshSpots() error {
	spots, err := e.catalog.ListSpots()
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spots = make(map[string]entities.Spot, len(spots))
	for _, s := range spots {
		e.spots[s.ID] = s
	}
	return nil
}

type RequestBookingInput struct {
	UserID      string
	UserName    string
	UserEmail   string
	UserPhone   string
	Tier        entities.Tier
	Window      entities.TimeWindow
	Constraints entities.Constraints
	PriceCents  int64
}

// RequestBooking allocates a spot for the window or queues the booking on
// the waitlist when no candidate is free.
func (e *ReservationEngine) RequestBooking(in RequestBookingInput) (entities.Booking, error) {
	now := e.clock.Now()
	b := &entities.Booking{
		ID:           uuid.NewString(),
		Code:         newShortCode(),
		CheckoutCode: newShortCode(),
		UserID:       in.UserID,
		UserName:     in.UserName,
		UserEmail:    in.UserEmail,
		UserPhone:    in.UserPhone,
		Tier:         in.Tier,
		Window:       in.Window,
		Zone:         in.Constraints.Zone,
		Status:       entities.StatusPending,
		Score:        e.score(in.Tier, 0, in.Constraints.Zone),
		Constraints:  in.Constraints,
		PriceCents:   in.PriceCents,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	candidates, err := e.catalog.RankCandidates(in.Constraints)
	if err != nil {
		return entities.Booking{}, fmt.Errorf("ranking candidates: %w", err)
	}

	spotID, err := e.alloc.Allocate(b.ID, b.Window, candidates)
	if errors.Is(err, apperrors.ErrNoCapacity) {
		return e.enqueueWaitlisted(b, now)
	}
	if err != nil {
		return entities.Booking{}, err
	}

	if b.PriceCents > 0 {
		ref, payErr := e.payments.AuthorizeHold(b.UserEmail, b.PriceCents, "booking "+b.Code)
		if payErr != nil {
			e.arena.Release(spotID, b.ID)
			log.Printf("payment hold declined for booking %s: %v", b.ID, payErr)
			return entities.Booking{}, apperrors.ErrPaymentDeclined
		}
		b.PaymentRef = ref
		b.PaymentStatus = "authorized"
	}

	b.SpotID = spotID
	b.Status = entities.StatusConfirmed
	b.GraceDeadline = b.Window.Start.Add(e.gracePeriod)
	b.UpdatedAt = now

	if err := e.repo.SaveBooking(b); err != nil {
		// Fail closed: undo the commit and the hold rather than risk an
		// unobserved double-booking.
		e.arena.Release(spotID, b.ID)
		e.releaseHold(b)
		log.Printf("store unavailable while confirming booking %s: %v", b.ID, err)
		return entities.Booking{}, apperrors.ErrStoreUnavailable
	}

	e.mu.Lock()
	e.bookings[b.ID] = b
	e.mu.Unlock()

	e.emit(entities.EventBookingConfirmed, b)
	e.notify(*b, "confirmed")
	return *b, nil
}

func (e *ReservationEngine) enqueueWaitlisted(b *entities.Booking, now time.Time) (entities.Booking, error) {
	b.Status = entities.StatusWaitlisted
	b.UpdatedAt = now
	entry := entities.WaitlistEntry{
		BookingID:   b.ID,
		Constraints: b.Constraints,
		Window:      b.Window,
		Score:       b.Score,
		EnqueuedAt:  now,
	}
	if err := e.repo.SaveBooking(b); err != nil {
		log.Printf("store unavailable while waitlisting booking %s: %v", b.ID, err)
		return entities.Booking{}, apperrors.ErrStoreUnavailable
	}
	if err := e.repo.SaveWaitlistEntry(&entry); err != nil {
		log.Printf("store unavailable while saving waitlist entry %s: %v", b.ID, err)
		return entities.Booking{}, apperrors.ErrStoreUnavailable
	}

	e.mu.Lock()
	e.bookings[b.ID] = b
	e.mu.Unlock()
	e.queue.Push(entry)

	e.notify(*b, "waitlisted")
	return *b, nil
}

// CheckIn is legal only on a Confirmed booking whose window has started,
// at or before the grace deadline.
func (e *ReservationEngine) CheckIn(bookingID string, at time.Time) (entities.Booking, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.bookings[bookingID]
	if !ok {
		return entities.Booking{}, apperrors.ErrBookingNotFound
	}
	if b.Status != entities.StatusConfirmed {
		return entities.Booking{}, apperrors.NewInvalidTransition(string(b.Status), string(entities.StatusActive))
	}
	if at.Before(b.Window.Start) {
		return entities.Booking{}, apperrors.ErrWindowNotStarted
	}
	if at.After(b.GraceDeadline) {
		return entities.Booking{}, apperrors.ErrGraceExpired
	}

	if err := e.transitionLocked(b, entities.StatusActive, at); err != nil {
		return entities.Booking{}, err
	}
	e.emit(entities.EventBookingActive, b)
	return *b, nil
}

// CheckOut completes an Active booking, releases its interval, captures the
// payment hold, and promotes the waitlist for the freed spot.
func (e *ReservationEngine) CheckOut(bookingID string, at time.Time) (entities.Booking, error) {
	e.mu.Lock()
	b, ok := e.bookings[bookingID]
	if !ok {
		e.mu.Unlock()
		return entities.Booking{}, apperrors.ErrBookingNotFound
	}
	if b.Status != entities.StatusActive {
		from := string(b.Status)
		e.mu.Unlock()
		return entities.Booking{}, apperrors.NewInvalidTransition(from, string(entities.StatusCompleted))
	}
	if err := e.transitionLocked(b, entities.StatusCompleted, at); err != nil {
		e.mu.Unlock()
		return entities.Booking{}, err
	}
	done := *b
	e.mu.Unlock()

	e.arena.Release(done.SpotID, done.ID)
	if done.PaymentRef != "" {
		if err := e.payments.CaptureHold(done.PaymentRef); err != nil {
			log.Printf("failed to capture hold %s for booking %s: %v", done.PaymentRef, done.ID, err)
		}
	}
	e.emit(entities.EventBookingCompleted, &done)
	e.emitSpotFreed(done.SpotID, done.Window)
	e.notify(done, "completed")
	e.promote(done.SpotID, done.Window)
	return done, nil
}

// Cancel is legal from Pending, Confirmed and Waitlisted. It removes only
// state the caller is entitled to remove, so once accepted it always lands.
func (e *ReservationEngine) Cancel(bookingID string) (entities.Booking, error) {
	e.mu.Lock()
	b, ok := e.bookings[bookingID]
	if !ok {
		e.mu.Unlock()
		return entities.Booking{}, apperrors.ErrBookingNotFound
	}
	if !b.Status.CanTransition(entities.StatusCancelled) {
		from := string(b.Status)
		e.mu.Unlock()
		return entities.Booking{}, apperrors.NewInvalidTransition(from, string(entities.StatusCancelled))
	}

	now := e.clock.Now()
	wasWaitlisted := b.Status == entities.StatusWaitlisted
	offer, hadOffer := e.offers[bookingID]
	delete(e.offers, bookingID)

	if err := e.transitionLocked(b, entities.StatusCancelled, now); err != nil {
		e.mu.Unlock()
		return entities.Booking{}, err
	}
	done := *b
	e.mu.Unlock()

	freedSpot, freedWindow := "", entities.TimeWindow{}
	if done.SpotID != "" {
		freedSpot, freedWindow = done.SpotID, done.Window
		e.arena.Release(done.SpotID, done.ID)
	}
	if hadOffer {
		freedSpot, freedWindow = offer.spotID, offer.entry.Window
		e.arena.Release(offer.spotID, done.ID)
	}
	if wasWaitlisted {
		e.queue.Remove(done.ID)
		if err := e.repo.DeleteWaitlistEntry(done.ID); err != nil {
			log.Printf("failed to delete waitlist entry for %s: %v", done.ID, err)
		}
	}
	e.releaseHold(&done)

	if freedSpot != "" {
		e.emitSpotFreed(freedSpot, freedWindow)
		e.promote(freedSpot, freedWindow)
	}
	e.notify(done, "cancelled")
	return done, nil
}

// ClaimOffer confirms a waitlist offer before its accept deadline. The hold
// for the price (plus any bid premium) is authorized before the engine lock
// is re-taken, then the offer is re-validated; a lapse or cancel racing the
// claim releases the fresh hold.
func (e *ReservationEngine) ClaimOffer(bookingID string, at time.Time) (entities.Booking, error) {
	e.mu.Lock()
	b, ok := e.bookings[bookingID]
	if !ok {
		e.mu.Unlock()
		return entities.Booking{}, apperrors.ErrBookingNotFound
	}
	offer, ok := e.offers[bookingID]
	if !ok {
		e.mu.Unlock()
		return entities.Booking{}, apperrors.ErrOfferNotFound
	}
	if at.After(offer.deadline) {
		// The sweep will lapse it; an in-between claim is already too late.
		e.mu.Unlock()
		return entities.Booking{}, apperrors.ErrGraceExpired
	}
	amount := b.PriceCents + b.AuctionPremiumCents
	needHold := amount > 0 && b.PaymentRef == ""
	email, code := b.UserEmail, b.Code
	e.mu.Unlock()

	var newRef string
	if needHold {
		ref, payErr := e.payments.AuthorizeHold(email, amount, "booking "+code)
		if payErr != nil {
			log.Printf("payment hold declined claiming offer for %s: %v", bookingID, payErr)
			return entities.Booking{}, apperrors.ErrPaymentDeclined
		}
		newRef = ref
	}
	releaseNew := func() {
		if newRef == "" {
			return
		}
		if err := e.payments.ReleaseHold(newRef); err != nil {
			log.Printf("failed to release claim hold %s: %v", newRef, err)
		}
	}

	e.mu.Lock()
	b, ok = e.bookings[bookingID]
	if !ok {
		e.mu.Unlock()
		releaseNew()
		return entities.Booking{}, apperrors.ErrBookingNotFound
	}
	offer, ok = e.offers[bookingID]
	if !ok {
		e.mu.Unlock()
		releaseNew()
		return entities.Booking{}, apperrors.ErrOfferNotFound
	}
	if at.After(offer.deadline) {
		e.mu.Unlock()
		releaseNew()
		return entities.Booking{}, apperrors.ErrGraceExpired
	}

	prev := *b
	if newRef != "" {
		b.PaymentRef = newRef
		b.PaymentStatus = "authorized"
	}

	b.SpotID = offer.spotID
	b.GraceDeadline = b.Window.Start.Add(e.gracePeriod)
	if at.After(b.GraceDeadline) {
		// Offered after the window start: the grace clock runs from the claim.
		b.GraceDeadline = at.Add(e.gracePeriod)
	}
	if err := e.transitionLocked(b, entities.StatusConfirmed, at); err != nil {
		*b = prev
		e.mu.Unlock()
		releaseNew()
		return entities.Booking{}, err
	}
	delete(e.offers, bookingID)
	done := *b
	e.mu.Unlock()

	e.queue.Remove(done.ID)
	if err := e.repo.DeleteWaitlistEntry(done.ID); err != nil {
		log.Printf("failed to delete waitlist entry for %s: %v", done.ID, err)
	}
	e.emit(entities.EventBookingConfirmed, &done)
	e.notify(done, "confirmed")
	return done, nil
}

// RaiseBid attaches an emergency-auction premium to a Waitlisted booking and
// reorders the queue in place. The premium is charged through the hold
// authorized when the resulting offer is claimed. A bid at or below the
// current premium is a no-op.
func (e *ReservationEngine) RaiseBid(bookingID string, premiumCents int64) (entities.Booking, error) {
	e.mu.Lock()
	b, ok := e.bookings[bookingID]
	if !ok {
		e.mu.Unlock()
		return entities.Booking{}, apperrors.ErrBookingNotFound
	}
	if b.Status != entities.StatusWaitlisted {
		from := string(b.Status)
		e.mu.Unlock()
		return entities.Booking{}, apperrors.NewInvalidTransition(from, string(entities.StatusWaitlisted))
	}
	if _, pending := e.offers[bookingID]; pending {
		// An offer is already on the table; the queue position no longer matters.
		done := *b
		e.mu.Unlock()
		return done, nil
	}
	if premiumCents <= b.AuctionPremiumCents {
		done := *b
		e.mu.Unlock()
		return done, nil
	}

	prevPremium, prevScore := b.AuctionPremiumCents, b.Score
	b.AuctionPremiumCents = premiumCents
	b.Score = e.score(b.Tier, premiumCents, b.Constraints.Zone)
	b.UpdatedAt = e.clock.Now()
	if err := e.repo.SaveBooking(b); err != nil {
		b.AuctionPremiumCents, b.Score = prevPremium, prevScore
		e.mu.Unlock()
		log.Printf("store unavailable while raising bid on booking %s: %v", bookingID, err)
		return entities.Booking{}, apperrors.ErrStoreUnavailable
	}
	done := *b
	e.mu.Unlock()

	if entry, ok := e.queue.Rescore(done.ID, done.Score); ok {
		if err := e.repo.SaveWaitlistEntry(&entry); err != nil {
			log.Printf("failed to persist rescored waitlist entry %s: %v", done.ID, err)
		}
	}
	return done, nil
}

// GetBooking returns a copy of the booking.
func (e *ReservationEngine) GetBooking(bookingID string) (entities.Booking, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.bookings[bookingID]
	if !ok {
		return entities.Booking{}, apperrors.ErrBookingNotFound
	}
	return *b, nil
}

// promote re-offers a freed interval to the best compatible waitlist entry.
// Promotions run the ordinary allocation path, so they compete with fresh
// requests through the same TryCommit primitive.
func (e *ReservationEngine) promote(spotID string, freed entities.TimeWindow) {
	e.mu.Lock()
	spot, ok := e.spots[spotID]
	e.mu.Unlock()
	if !ok {
		spot = entities.Spot{ID: spotID}
	}

	entry, ok := e.queue.NextFor(spot, freed)
	if !ok {
		return
	}

	candidates, err := e.catalog.RankCandidates(entry.Constraints)
	if err != nil {
		log.Printf("promotion for %s aborted, locator error: %v", entry.BookingID, err)
		e.queue.Push(entry)
		return
	}
	wonSpot, err := e.alloc.Allocate(entry.BookingID, entry.Window, candidates)
	if err != nil {
		// Lost the race against a direct request: requeued, not dropped.
		e.queue.Push(entry)
		return
	}

	now := e.clock.Now()
	e.mu.Lock()
	b, exists := e.bookings[entry.BookingID]
	if !exists || b.Status != entities.StatusWaitlisted {
		e.mu.Unlock()
		e.arena.Release(wonSpot, entry.BookingID)
		return
	}
	e.offers[entry.BookingID] = waitlistOffer{
		entry:    entry,
		spotID:   wonSpot,
		deadline: now.Add(e.offerTimeout),
	}
	offered := *b
	e.mu.Unlock()

	offered.SpotID = wonSpot
	e.sink.Publish(entities.Event{
		Type:      entities.EventWaitlistOffered,
		BookingID: offered.ID,
		UserID:    offered.UserID,
		SpotID:    wonSpot,
		Window:    &entry.Window,
		At:        now,
	})
	e.notify(offered, "offered a freed spot")
}

// transitionLocked applies a state change and writes it through. The caller
// holds e.mu. On a persist failure the in-memory state reverts and the
// transition never happened.
func (e *ReservationEngine) transitionLocked(b *entities.Booking, to entities.BookingStatus, at time.Time) error {
	if !b.Status.CanTransition(to) {
		return apperrors.NewInvalidTransition(string(b.Status), string(to))
	}
	prevStatus, prevUpdated := b.Status, b.UpdatedAt
	b.Status = to
	b.UpdatedAt = at
	if err := e.repo.SaveBooking(b); err != nil {
		b.Status = prevStatus
		b.UpdatedAt = prevUpdated
		log.Printf("store unavailable during %s -> %s for booking %s: %v", prevStatus, to, b.ID, err)
		return apperrors.ErrStoreUnavailable
	}
	return nil
}

func (e *ReservationEngine) score(tier entities.Tier, premiumCents int64, zone string) int {
	hint := 0
	if e.demandHint != nil {
		hint = e.demandHint(zone)
	}
	return priority.Score(priority.Input{
		Tier:                tier,
		AuctionPremiumCents: premiumCents,
		DemandHint:          hint,
	})
}

func (e *ReservationEngine) releaseHold(b *entities.Booking) {
	if b.PaymentRef == "" {
		return
	}
	if err := e.payments.ReleaseHold(b.PaymentRef); err != nil {
		log.Printf("failed to release hold %s for booking %s: %v", b.PaymentRef, b.ID, err)
	}
}

func (e *ReservationEngine) emit(t entities.EventType, b *entities.Booking) {
	e.sink.Publish(entities.Event{
		Type:      t,
		BookingID: b.ID,
		UserID:    b.UserID,
		SpotID:    b.SpotID,
		Window:    &b.Window,
		At:        e.clock.Now(),
	})
}

func (e *ReservationEngine) emitSpotFreed(spotID string, w entities.TimeWindow) {
	e.sink.Publish(entities.Event{
		Type:   entities.EventSpotFreed,
		SpotID: spotID,
		Window: &w,
		At:     e.clock.Now(),
	})
}

func (e *ReservationEngine) notify(b entities.Booking, status string) {
	if e.notifier == nil {
		return
	}
	e.notifier.NotifyBookingStatus(b, status)
}

func newShortCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
