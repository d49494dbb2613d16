package service

import (
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"parkcore/internal/entities"
)

// GraceSupervisor drives time-based transitions on a fixed cadence: no-show
// expiry, overstay expiry, lapsed waitlist offers, stale swap offers and
// end-of-window reminders. Liveness does not depend on traffic.
type GraceSupervisor struct {
	engine       *ReservationEngine
	broker       *TransferBroker
	interval     time.Duration
	reminderLead time.Duration
	cron         *cron.Cron
}

func NewGraceSupervisor(engine *ReservationEngine, broker *TransferBroker, interval, reminderLead time.Duration) *GraceSupervisor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &GraceSupervisor{
		engine:       engine,
		broker:       broker,
		interval:     interval,
		reminderLead: reminderLead,
	}
}

func (s *GraceSupervisor) Start() error {
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), s.Sweep); err != nil {
		return fmt.Errorf("scheduling sweep: %w", err)
	}
	s.cron.Start()
	return nil
}

func (s *GraceSupervisor) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// Sweep runs one supervision pass. Exported so operators can trigger it
// out of schedule.
func (s *GraceSupervisor) Sweep() {
	now := s.engine.clock.Now()
	expired := s.engine.ExpireOverdue(now)
	lapsed := s.engine.LapseOffers(now)
	var stale int
	if s.broker != nil {
		stale = s.broker.ExpireOffers(now)
	}
	if s.reminderLead > 0 {
		s.engine.SendReminders(now, s.reminderLead)
	}
	if expired+lapsed+stale > 0 {
		log.Printf("sweep at %s: %d bookings expired, %d offers lapsed, %d swap offers expired",
			now.Format(time.RFC3339), expired, lapsed, stale)
	}
}

// ExpireOverdue expires Confirmed bookings whose grace deadline has passed
// without a check-in, and Active bookings overstaying past window end plus
// grace. Each booking expires exactly once: the transition persists before
// any side effect, and a persist failure leaves it eligible for the next
// pass.
func (e *ReservationEngine) ExpireOverdue(now time.Time) int {
	e.mu.Lock()
	var victims []entities.Booking
	for _, b := range e.bookings {
		overdue := (b.Status == entities.StatusConfirmed && now.After(b.GraceDeadline)) ||
			(b.Status == entities.StatusActive && now.After(b.Window.End.Add(e.gracePeriod)))
		if !overdue {
			continue
		}
		if err := e.transitionLocked(b, entities.StatusExpired, now); err != nil {
			continue
		}
		victims = append(victims, *b)
	}
	e.mu.Unlock()

	for i := range victims {
		v := victims[i]
		e.arena.Release(v.SpotID, v.ID)
		e.releaseHold(&v)
		e.emit(entities.EventBookingExpired, &v)
		e.emitSpotFreed(v.SpotID, v.Window)
		e.notify(v, "expired")
		e.promote(v.SpotID, v.Window)
	}
	return len(victims)
}

// LapseOffers drops waitlist offers whose accept deadline has passed. The
// provisional interval is released, the entry rejoins the queue with a fresh
// enqueue time, and the freed interval is offered onward.
func (e *ReservationEngine) LapseOffers(now time.Time) int {
	e.mu.Lock()
	var lapsed []waitlistOffer
	for id, offer := range e.offers {
		if now.After(offer.deadline) {
			lapsed = append(lapsed, offer)
			delete(e.offers, id)
		}
	}
	e.mu.Unlock()

	for _, offer := range lapsed {
		e.arena.Release(offer.spotID, offer.entry.BookingID)

		entry := offer.entry
		entry.EnqueuedAt = now
		e.queue.Push(entry)
		if err := e.repo.SaveWaitlistEntry(&entry); err != nil {
			log.Printf("failed to persist requeued waitlist entry %s: %v", entry.BookingID, err)
		}
		e.emitSpotFreed(offer.spotID, entry.Window)
		e.promote(offer.spotID, entry.Window)
	}
	return len(lapsed)
}

// SendReminders notifies Active bookings approaching their window end, once
// per booking.
func (e *ReservationEngine) SendReminders(now time.Time, lead time.Duration) {
	e.mu.Lock()
	var due []entities.Booking
	for _, b := range e.bookings {
		if b.Status != entities.StatusActive || b.ReminderSent {
			continue
		}
		if now.Before(b.Window.End) && !now.Before(b.Window.End.Add(-lead)) {
			b.ReminderSent = true
			if err := e.repo.SaveBooking(b); err != nil {
				// Flag stays set in memory so the user is not spammed.
				log.Printf("failed to persist reminder flag for booking %s: %v", b.ID, err)
			}
			due = append(due, *b)
		}
	}
	e.mu.Unlock()

	for _, b := range due {
		e.notify(b, "ending soon")
	}
}
