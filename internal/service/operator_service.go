package service

import (
	"parkcore/internal/entities"
	"parkcore/internal/repository"
)

// OperatorService backs the operator console: booking oversight, spot
// inventory edits and forced cancellation of misbehaving bookings.
type OperatorService struct {
	bookingRepo *repository.BookingRepository
	spotRepo    *repository.SpotRepository
	engine      *ReservationEngine
}

func NewOperatorService(bookingRepo *repository.BookingRepository, spotRepo *repository.SpotRepository, engine *ReservationEngine) *OperatorService {
	return &OperatorService{
		bookingRepo: bookingRepo,
		spotRepo:    spotRepo,
		engine:      engine,
	}
}

func (s *OperatorService) ListBookings(date, status string) ([]entities.Booking, error) {
	return s.bookingRepo.ListBookings(date, status)
}

// CancelBooking runs through the same engine path as a user cancellation,
// so intervals are released and the waitlist is promoted.
func (s *OperatorService) CancelBooking(bookingID string) (entities.Booking, error) {
	return s.engine.Cancel(bookingID)
}

func (s *OperatorService) ListSpots() ([]entities.Spot, error) {
	return s.spotRepo.ListSpots()
}

func (s *OperatorService) CreateSpot(spot *entities.Spot) error {
	if err := s.spotRepo.CreateSpot(spot); err != nil {
		return err
	}
	return s.engine.RefreshSpots()
}

func (s *OperatorService) UpdateSpot(spot *entities.Spot) error {
	if err := s.spotRepo.UpdateSpotAttributes(spot); err != nil {
		return err
	}
	return s.engine.RefreshSpots()
}

// WaitlistDepth reports the queued entry count for dashboards.
func (s *OperatorService) WaitlistDepth() int {
	return s.engine.queue.Len()
}
