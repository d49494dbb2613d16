package timeline

import (
	"sort"
	"sync"
	"time"

	"parkcore/internal/entities"
	apperrors "parkcore/internal/errors"
)

type interval struct {
	bookingID string
	window    entities.TimeWindow
}

// ledger is the per-spot record of committed, non-overlapping intervals,
// kept sorted by window start. All mutation happens under the ledger mutex,
// so commits and releases on one spot serialize while distinct spots proceed
// in parallel.
type ledger struct {
	mu        sync.Mutex
	intervals []interval
}

// Arena keys per-spot ledgers by spot ID. Ledgers are created on demand the
// first time a spot is touched.
type Arena struct {
	mu      sync.RWMutex
	ledgers map[string]*ledger
}

func NewArena() *Arena {
	return &Arena{ledgers: make(map[string]*ledger)}
}

func (a *Arena) ledger(spotID string) *ledger {
	a.mu.RLock()
	l, ok := a.ledgers[spotID]
	a.mu.RUnlock()
	if ok {
		return l
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if l, ok = a.ledgers[spotID]; ok {
		return l
	}
	l = &ledger{}
	a.ledgers[spotID] = l
	return l
}

// TryCommit atomically claims the window on the spot for the booking.
// It returns ErrConflict if the window overlaps any committed interval;
// no partial state is left behind on failure.
func (a *Arena) TryCommit(spotID string, w entities.TimeWindow, bookingID string) error {
	l := a.ledger(spotID)
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := sort.Search(len(l.intervals), func(i int) bool {
		return l.intervals[i].window.Start.After(w.Start) || l.intervals[i].window.Start.Equal(w.Start)
	})
	// Only the predecessor and successors can overlap a candidate window.
	if idx > 0 && l.intervals[idx-1].window.Overlaps(w) {
		return apperrors.ErrConflict
	}
	for i := idx; i < len(l.intervals); i++ {
		if !l.intervals[i].window.Start.Before(w.End) {
			break
		}
		if l.intervals[i].window.Overlaps(w) {
			return apperrors.ErrConflict
		}
	}

	l.intervals = append(l.intervals, interval{})
	copy(l.intervals[idx+1:], l.intervals[idx:])
	l.intervals[idx] = interval{bookingID: bookingID, window: w}
	return nil
}

// Release removes the booking's interval from the spot. Releasing a booking
// that holds nothing on the spot is a no-op, so retries are safe.
func (a *Arena) Release(spotID, bookingID string) {
	l := a.ledger(spotID)
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, iv := range l.intervals {
		if iv.bookingID == bookingID {
			l.intervals = append(l.intervals[:i], l.intervals[i+1:]...)
			return
		}
	}
}

// IsFree reports whether the window overlaps no committed interval on the spot.
func (a *Arena) IsFree(spotID string, w entities.TimeWindow) bool {
	l := a.ledger(spotID)
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, iv := range l.intervals {
		if iv.window.Overlaps(w) {
			return false
		}
	}
	return true
}

// Holds reports whether the booking still owns a committed interval on the
// spot. Swap acceptance uses this to detect a concurrent cancel or expiry.
func (a *Arena) Holds(spotID, bookingID string) bool {
	l := a.ledger(spotID)
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, iv := range l.intervals {
		if iv.bookingID == bookingID {
			return true
		}
	}
	return false
}

// Resize moves the end of the booking's committed interval to newEnd,
// atomically with respect to other commits on the spot. Growing is
// gap-filling only: if [currentEnd, newEnd) overlaps any other interval the
// call fails with ErrExtensionConflict and nothing changes. Shrinking always
// succeeds since it only gives time back.
func (a *Arena) Resize(spotID, bookingID string, newEnd time.Time) error {
	newEnd = newEnd.UTC().Truncate(time.Minute)
	l := a.ledger(spotID)
	l.mu.Lock()
	defer l.mu.Unlock()

	own := -1
	for i, iv := range l.intervals {
		if iv.bookingID == bookingID {
			own = i
			break
		}
	}
	if own < 0 {
		return apperrors.ErrOwnershipMismatch
	}
	if !newEnd.After(l.intervals[own].window.Start) {
		return apperrors.ErrExtensionConflict
	}
	if newEnd.After(l.intervals[own].window.End) {
		extended := entities.TimeWindow{Start: l.intervals[own].window.Start, End: newEnd}
		for i, iv := range l.intervals {
			if i == own {
				continue
			}
			if iv.window.Overlaps(extended) {
				return apperrors.ErrExtensionConflict
			}
		}
	}

	l.intervals[own].window.End = newEnd
	return nil
}

// Window returns the committed window for the booking on the spot, if any.
func (a *Arena) Window(spotID, bookingID string) (entities.TimeWindow, bool) {
	l := a.ledger(spotID)
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, iv := range l.intervals {
		if iv.bookingID == bookingID {
			return iv.window, true
		}
	}
	return entities.TimeWindow{}, false
}
