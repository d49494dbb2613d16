package allocator

import (
	"errors"

	"parkcore/internal/entities"
	apperrors "parkcore/internal/errors"
	"parkcore/internal/timeline"
)

// Locator ranks candidate spots for a request, closest and most
// feature-matching first. The core consumes the ranking as-is and iterates
// it once per allocation attempt.
type Locator interface {
	RankCandidates(c entities.Constraints) ([]string, error)
}

// Allocator picks the first candidate whose timeline accepts the window.
// The locator's ordering encodes spot preference, so the first fit wins.
type Allocator struct {
	arena *timeline.Arena
}

func New(arena *timeline.Arena) *Allocator {
	return &Allocator{arena: arena}
}

// Allocate tries TryCommit on each candidate in order and returns the spot
// that accepted. A failed attempt on one candidate leaves no partial state,
// so the whole call is safely re-triable. ErrNoCapacity means no candidate
// committed and the caller should enqueue to the waitlist.
func (a *Allocator) Allocate(bookingID string, w entities.TimeWindow, candidates []string) (string, error) {
	for _, spotID := range candidates {
		err := a.arena.TryCommit(spotID, w, bookingID)
		if err == nil {
			return spotID, nil
		}
		if !errors.Is(err, apperrors.ErrConflict) {
			return "", err
		}
	}
	return "", apperrors.ErrNoCapacity
}
