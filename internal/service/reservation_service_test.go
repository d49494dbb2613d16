package service

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"parkcore/internal/clock"
	"parkcore/internal/entities"
	apperrors "parkcore/internal/errors"
	"parkcore/internal/timeline"
	"parkcore/internal/waitlist"
)

// --- fakes shared by the service tests ---

type fakeStore struct {
	mu        sync.Mutex
	bookings  map[string]entities.Booking
	waitlist  map[string]entities.WaitlistEntry
	failSaves bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		bookings: make(map[string]entities.Booking),
		waitlist: make(map[string]entities.WaitlistEntry),
	}
}

func (s *fakeStore) SaveBooking(b *entities.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSaves {
		return errors.New("connection refused")
	}
	s.bookings[b.ID] = *b
	return nil
}

func (s *fakeStore) SaveWaitlistEntry(e *entities.WaitlistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSaves {
		return errors.New("connection refused")
	}
	s.waitlist[e.BookingID] = *e
	return nil
}

func (s *fakeStore) DeleteWaitlistEntry(bookingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.waitlist, bookingID)
	return nil
}

func (s *fakeStore) ListOpenBookings() ([]entities.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entities.Booking
	for _, b := range s.bookings {
		if !b.Status.Terminal() {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeStore) ListWaitlistEntries() ([]entities.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entities.WaitlistEntry
	for _, e := range s.waitlist {
		out = append(out, e)
	}
	return out, nil
}

func (s *fakeStore) savedStatus(t *testing.T, id string) entities.BookingStatus {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		t.Fatalf("booking %s was never persisted", id)
	}
	return b.Status
}

type fakeCatalog struct {
	spots []entities.Spot
}

func (c *fakeCatalog) RankCandidates(cons entities.Constraints) ([]string, error) {
	var ids []string
	for _, s := range c.spots {
		if cons.Matches(s) {
			ids = append(ids, s.ID)
		}
	}
	return ids, nil
}

func (c *fakeCatalog) ListSpots() ([]entities.Spot, error) {
	return c.spots, nil
}

type fakePayments struct {
	mu         sync.Mutex
	decline    bool
	seq        int
	authorized []string
	amounts    []int64
	captured   []string
	released   []string

	// When set, AuthorizeHold signals authEntered and parks until
	// authProceed is closed, to observe what a slow gateway blocks.
	authEntered chan struct{}
	authProceed chan struct{}
}

func (p *fakePayments) AuthorizeHold(email string, amountCents int64, memo string) (string, error) {
	if p.authEntered != nil {
		p.authEntered <- struct{}{}
		<-p.authProceed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.decline {
		return "", errors.New("card declined")
	}
	p.seq++
	ref := fmt.Sprintf("hold-%d", p.seq)
	p.authorized = append(p.authorized, ref)
	p.amounts = append(p.amounts, amountCents)
	return ref, nil
}

func (p *fakePayments) CaptureHold(ref string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.captured = append(p.captured, ref)
	return nil
}

func (p *fakePayments) ReleaseHold(ref string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = append(p.released, ref)
	return nil
}

type fakeSink struct {
	mu     sync.Mutex
	events []entities.Event
}

func (s *fakeSink) Publish(evt entities.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

func (s *fakeSink) typesSeen() []entities.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entities.EventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

// stepClock advances only when the test says so.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- harness ---

type engineFixture struct {
	engine   *ReservationEngine
	store    *fakeStore
	payments *fakePayments
	sink     *fakeSink
	clock    *stepClock
	arena    *timeline.Arena
}

func newFixture(t *testing.T, spots ...entities.Spot) *engineFixture {
	t.Helper()
	if len(spots) == 0 {
		spots = []entities.Spot{
			{ID: "A-1", Zone: "A", ProximityRank: 1},
			{ID: "A-2", Zone: "A", ProximityRank: 2},
		}
	}
	store := newFakeStore()
	payments := &fakePayments{}
	sink := &fakeSink{}
	clk := &stepClock{now: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
	arena := timeline.NewArena()

	engine := NewReservationEngine(EngineDeps{
		Repo:         store,
		Arena:        arena,
		Catalog:      &fakeCatalog{spots: spots},
		Queue:        waitlist.New(),
		Payments:     payments,
		Sink:         sink,
		Clock:        clk,
		GracePeriod:  15 * time.Minute,
		OfferTimeout: 5 * time.Minute,
	})
	if err := engine.Restore(); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	return &engineFixture{engine: engine, store: store, payments: payments, sink: sink, clock: clk, arena: arena}
}

func win(t *testing.T, day time.Time, fromHour, fromMin, toHour, toMin int) entities.TimeWindow {
	t.Helper()
	w, err := entities.NewTimeWindow(
		time.Date(day.Year(), day.Month(), day.Day(), fromHour, fromMin, 0, 0, time.UTC),
		time.Date(day.Year(), day.Month(), day.Day(), toHour, toMin, 0, 0, time.UTC),
	)
	if err != nil {
		t.Fatalf("bad window: %v", err)
	}
	return w
}

func request(tier entities.Tier, w entities.TimeWindow, price int64) RequestBookingInput {
	return RequestBookingInput{
		UserID:      "u-" + string(tier),
		UserName:    "Test User",
		UserEmail:   "user@example.com",
		UserPhone:   "+3900000000",
		Tier:        tier,
		Window:      w,
		Constraints: entities.Constraints{Zone: "A"},
		PriceCents:  price,
	}
}

var day = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

// --- tests ---

func TestRequestBookingConfirms(t *testing.T) {
	f := newFixture(t)

	b, err := f.engine.RequestBooking(request(entities.TierStandard, win(t, day, 10, 0, 12, 0), 1500))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if b.Status != entities.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", b.Status)
	}
	if b.SpotID != "A-1" {
		t.Fatalf("expected first-ranked spot A-1, got %s", b.SpotID)
	}
	if want := b.Window.Start.Add(15 * time.Minute); !b.GraceDeadline.Equal(want) {
		t.Fatalf("expected grace deadline %v, got %v", want, b.GraceDeadline)
	}
	if len(f.payments.authorized) != 1 {
		t.Fatalf("expected one payment hold, got %d", len(f.payments.authorized))
	}
	if got := f.store.savedStatus(t, b.ID); got != entities.StatusConfirmed {
		t.Fatalf("persisted status = %s", got)
	}
}

func TestRequestBookingOverlapFallsThrough(t *testing.T) {
	f := newFixture(t)

	first, err := f.engine.RequestBooking(request(entities.TierStandard, win(t, day, 10, 0, 12, 0), 0))
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	second, err := f.engine.RequestBooking(request(entities.TierMember, win(t, day, 11, 0, 13, 0), 0))
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	if first.SpotID == second.SpotID {
		t.Fatalf("overlapping bookings share spot %s", first.SpotID)
	}
}

func TestRequestBookingWaitlistsWhenFull(t *testing.T) {
	f := newFixture(t, entities.Spot{ID: "A-1", Zone: "A", ProximityRank: 1})

	if _, err := f.engine.RequestBooking(request(entities.TierStandard, win(t, day, 10, 0, 12, 0), 0)); err != nil {
		t.Fatalf("seed request failed: %v", err)
	}
	b, err := f.engine.RequestBooking(request(entities.TierWalkIn, win(t, day, 10, 30, 11, 30), 0))
	if err != nil {
		t.Fatalf("expected waitlisting, got error %v", err)
	}
	if b.Status != entities.StatusWaitlisted {
		t.Fatalf("expected waitlisted, got %s", b.Status)
	}
	if len(f.store.waitlist) != 1 {
		t.Fatalf("expected one persisted waitlist entry, got %d", len(f.store.waitlist))
	}
}

func TestRequestBookingPaymentDeclined(t *testing.T) {
	f := newFixture(t)
	f.payments.decline = true

	w := win(t, day, 10, 0, 12, 0)
	_, err := f.engine.RequestBooking(request(entities.TierStandard, w, 1500))
	if !errors.Is(err, apperrors.ErrPaymentDeclined) {
		t.Fatalf("expected ErrPaymentDeclined, got %v", err)
	}
	if !f.arena.IsFree("A-1", w) {
		t.Fatalf("declined booking left its interval committed")
	}
}

func TestRequestBookingFailsClosedOnStoreError(t *testing.T) {
	f := newFixture(t)
	f.store.failSaves = true

	w := win(t, day, 10, 0, 12, 0)
	_, err := f.engine.RequestBooking(request(entities.TierStandard, w, 1500))
	if !errors.Is(err, apperrors.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if !f.arena.IsFree("A-1", w) {
		t.Fatalf("failed persist left the interval committed")
	}
	if len(f.payments.released) != 1 {
		t.Fatalf("expected the hold to be released, got %v", f.payments.released)
	}
}

func TestCheckInWithinGrace(t *testing.T) {
	f := newFixture(t)
	b, err := f.engine.RequestBooking(request(entities.TierStandard, win(t, day, 10, 0, 12, 0), 0))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	t.Run("before window start", func(t *testing.T) {
		_, err := f.engine.CheckIn(b.ID, win(t, day, 9, 50, 10, 0).Start)
		if !errors.Is(err, apperrors.ErrWindowNotStarted) {
			t.Fatalf("expected ErrWindowNotStarted, got %v", err)
		}
	})

	t.Run("inside grace", func(t *testing.T) {
		got, err := f.engine.CheckIn(b.ID, b.Window.Start.Add(10*time.Minute))
		if err != nil {
			t.Fatalf("check-in failed: %v", err)
		}
		if got.Status != entities.StatusActive {
			t.Fatalf("expected active, got %s", got.Status)
		}
	})

	t.Run("double check-in rejected", func(t *testing.T) {
		_, err := f.engine.CheckIn(b.ID, b.Window.Start.Add(11*time.Minute))
		var invalid *apperrors.InvalidTransitionError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected invalid transition, got %v", err)
		}
	})
}

func TestCheckInAfterGraceRejected(t *testing.T) {
	f := newFixture(t)
	b, err := f.engine.RequestBooking(request(entities.TierStandard, win(t, day, 10, 0, 12, 0), 0))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_, err = f.engine.CheckIn(b.ID, b.GraceDeadline.Add(time.Minute))
	if !errors.Is(err, apperrors.ErrGraceExpired) {
		t.Fatalf("expected ErrGraceExpired, got %v", err)
	}
}

func TestCheckOutCapturesAndPromotes(t *testing.T) {
	f := newFixture(t, entities.Spot{ID: "A-1", Zone: "A", ProximityRank: 1})

	w := win(t, day, 10, 0, 12, 0)
	b, err := f.engine.RequestBooking(request(entities.TierStandard, w, 2000))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	queued, err := f.engine.RequestBooking(request(entities.TierMember, win(t, day, 10, 30, 11, 30), 0))
	if err != nil {
		t.Fatalf("waitlist request failed: %v", err)
	}
	if queued.Status != entities.StatusWaitlisted {
		t.Fatalf("expected waitlisted, got %s", queued.Status)
	}

	if _, err := f.engine.CheckIn(b.ID, w.Start); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}
	f.clock.Advance(90 * time.Minute)
	done, err := f.engine.CheckOut(b.ID, f.clock.Now())
	if err != nil {
		t.Fatalf("check-out failed: %v", err)
	}
	if done.Status != entities.StatusCompleted {
		t.Fatalf("expected completed, got %s", done.Status)
	}
	if len(f.payments.captured) != 1 {
		t.Fatalf("expected one capture, got %d", len(f.payments.captured))
	}

	// The freed spot goes to the queued booking as an offer.
	offered := false
	for _, typ := range f.sink.typesSeen() {
		if typ == entities.EventWaitlistOffered {
			offered = true
		}
	}
	if !offered {
		t.Fatalf("expected a waitlist offer after the spot freed, events: %v", f.sink.typesSeen())
	}

	claimed, err := f.engine.ClaimOffer(queued.ID, f.clock.Now())
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if claimed.Status != entities.StatusConfirmed || claimed.SpotID != "A-1" {
		t.Fatalf("expected confirmed on A-1, got %s on %q", claimed.Status, claimed.SpotID)
	}
}

func TestCancelReleasesEverything(t *testing.T) {
	f := newFixture(t)

	w := win(t, day, 10, 0, 12, 0)
	b, err := f.engine.RequestBooking(request(entities.TierStandard, w, 1000))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	done, err := f.engine.Cancel(b.ID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if done.Status != entities.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", done.Status)
	}
	if !f.arena.IsFree("A-1", w) {
		t.Fatalf("cancelled booking kept its interval")
	}
	if len(f.payments.released) != 1 {
		t.Fatalf("expected the hold released, got %v", f.payments.released)
	}

	t.Run("cancel after completion rejected", func(t *testing.T) {
		_, err := f.engine.Cancel(b.ID)
		var invalid *apperrors.InvalidTransitionError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected invalid transition, got %v", err)
		}
	})
}

func TestCancelWaitlistedRemovesEntry(t *testing.T) {
	f := newFixture(t, entities.Spot{ID: "A-1", Zone: "A", ProximityRank: 1})

	if _, err := f.engine.RequestBooking(request(entities.TierStandard, win(t, day, 10, 0, 12, 0), 0)); err != nil {
		t.Fatalf("seed request failed: %v", err)
	}
	queued, err := f.engine.RequestBooking(request(entities.TierMember, win(t, day, 10, 0, 11, 0), 0))
	if err != nil {
		t.Fatalf("waitlist request failed: %v", err)
	}
	if _, err := f.engine.Cancel(queued.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if len(f.store.waitlist) != 0 {
		t.Fatalf("expected waitlist entry deleted, %d remain", len(f.store.waitlist))
	}
	if f.engine.queue.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", f.engine.queue.Len())
	}
}

func TestRestoreRebuildsTimelines(t *testing.T) {
	f := newFixture(t)

	w := win(t, day, 10, 0, 12, 0)
	b, err := f.engine.RequestBooking(request(entities.TierStandard, w, 0))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	// A second engine over the same store sees the commitment.
	rebuilt := NewReservationEngine(EngineDeps{
		Repo:    f.store,
		Arena:   timeline.NewArena(),
		Catalog: &fakeCatalog{spots: []entities.Spot{{ID: "A-1", Zone: "A", ProximityRank: 1}, {ID: "A-2", Zone: "A", ProximityRank: 2}}},
		Clock:   clock.NewFixed(f.clock.Now()),
	})
	if err := rebuilt.Restore(); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	got, err := rebuilt.GetBooking(b.ID)
	if err != nil {
		t.Fatalf("restored booking missing: %v", err)
	}
	if got.Status != entities.StatusConfirmed || got.SpotID != b.SpotID {
		t.Fatalf("restored booking mismatch: %+v", got)
	}

	// The same window on the same spot must conflict after restore.
	second, err := rebuilt.RequestBooking(request(entities.TierMember, w, 0))
	if err != nil {
		t.Fatalf("post-restore request failed: %v", err)
	}
	if second.SpotID == b.SpotID {
		t.Fatalf("restore lost the committed interval, double-booked %s", b.SpotID)
	}
}

func TestConcurrentRequestsSingleSpot(t *testing.T) {
	f := newFixture(t, entities.Spot{ID: "A-1", Zone: "A", ProximityRank: 1})

	w := win(t, day, 10, 0, 12, 0)
	const goroutines = 16
	var wg sync.WaitGroup
	results := make([]entities.Booking, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := f.engine.RequestBooking(request(entities.TierStandard, w, 0))
			if err != nil {
				t.Errorf("request %d failed: %v", i, err)
				return
			}
			results[i] = b
		}(i)
	}
	wg.Wait()

	confirmed := 0
	for _, b := range results {
		if b.Status == entities.StatusConfirmed {
			confirmed++
		}
	}
	if confirmed != 1 {
		t.Fatalf("expected exactly one confirmed booking, got %d", confirmed)
	}
}

func TestRaiseBidJumpsQueue(t *testing.T) {
	f := newFixture(t, entities.Spot{ID: "A-1", Zone: "A", ProximityRank: 1})

	w := win(t, day, 10, 0, 12, 0)
	holder, err := f.engine.RequestBooking(request(entities.TierStandard, w, 0))
	if err != nil {
		t.Fatalf("seed request failed: %v", err)
	}
	steady, err := f.engine.RequestBooking(request(entities.TierStandard, w, 1000))
	if err != nil {
		t.Fatalf("first waitlist request failed: %v", err)
	}
	f.clock.Advance(time.Minute)
	bidder, err := f.engine.RequestBooking(request(entities.TierStandard, w, 1000))
	if err != nil {
		t.Fatalf("second waitlist request failed: %v", err)
	}

	var invalid *apperrors.InvalidTransitionError
	if _, err := f.engine.RaiseBid(holder.ID, 500); !errors.As(err, &invalid) {
		t.Fatalf("expected bid on a confirmed booking to fail, got %v", err)
	}

	bid, err := f.engine.RaiseBid(bidder.ID, 500)
	if err != nil {
		t.Fatalf("raise bid failed: %v", err)
	}
	if bid.AuctionPremiumCents != 500 || bid.Score <= steady.Score {
		t.Fatalf("expected premium 500 and a higher score, got premium=%d score=%d vs %d",
			bid.AuctionPremiumCents, bid.Score, steady.Score)
	}
	if lower, err := f.engine.RaiseBid(bidder.ID, 100); err != nil || lower.AuctionPremiumCents != 500 {
		t.Fatalf("expected lower rebid to be a no-op, got premium=%d err=%v", lower.AuctionPremiumCents, err)
	}

	if _, err := f.engine.Cancel(holder.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	if _, err := f.engine.ClaimOffer(steady.ID, f.clock.Now()); !errors.Is(err, apperrors.ErrOfferNotFound) {
		t.Fatalf("expected no offer for the outbid entry, got %v", err)
	}
	got, err := f.engine.ClaimOffer(bidder.ID, f.clock.Now())
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if got.SpotID != "A-1" || got.Status != entities.StatusConfirmed {
		t.Fatalf("expected bidder confirmed on A-1, got spot=%q status=%s", got.SpotID, got.Status)
	}
	last := f.payments.amounts[len(f.payments.amounts)-1]
	if last != 1500 {
		t.Fatalf("expected claim hold of 1500 (price + premium), got %d", last)
	}
}

func TestClaimOfferStoreFailureLeavesBookingIntact(t *testing.T) {
	f := newFixture(t, entities.Spot{ID: "A-1", Zone: "A", ProximityRank: 1})

	holder, err := f.engine.RequestBooking(request(entities.TierStandard, win(t, day, 10, 0, 12, 0), 0))
	if err != nil {
		t.Fatalf("seed request failed: %v", err)
	}
	waitingReq := request(entities.TierStandard, win(t, day, 10, 0, 12, 0), 1000)
	waitingReq.UserID = "u-waiting"
	waiting, err := f.engine.RequestBooking(waitingReq)
	if err != nil {
		t.Fatalf("waitlist request failed: %v", err)
	}
	if _, err := f.engine.Cancel(holder.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	f.store.failSaves = true
	if _, err := f.engine.ClaimOffer(waiting.ID, f.clock.Now()); !errors.Is(err, apperrors.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	got, err := f.engine.GetBooking(waiting.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != entities.StatusWaitlisted || got.SpotID != "" ||
		got.PaymentRef != "" || !got.GraceDeadline.IsZero() {
		t.Fatalf("failed claim left partial state: status=%s spot=%q ref=%q grace=%v",
			got.Status, got.SpotID, got.PaymentRef, got.GraceDeadline)
	}
	if len(f.payments.released) != 1 {
		t.Fatalf("expected the claim hold released, got %d releases", len(f.payments.released))
	}

	f.store.failSaves = false
	got, err = f.engine.ClaimOffer(waiting.ID, f.clock.Now())
	if err != nil {
		t.Fatalf("retried claim failed: %v", err)
	}
	if got.Status != entities.StatusConfirmed || got.SpotID != "A-1" {
		t.Fatalf("expected confirmed on A-1 after retry, got status=%s spot=%q", got.Status, got.SpotID)
	}
}
