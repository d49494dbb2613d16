package entities

import "time"

type EventType string

const (
	EventBookingConfirmed EventType = "BookingConfirmed"
	EventBookingActive    EventType = "BookingActive"
	EventBookingExpired   EventType = "BookingExpired"
	EventBookingCompleted EventType = "BookingCompleted"
	EventSpotFreed        EventType = "SpotFreed"
	EventWaitlistOffered  EventType = "WaitlistOffered"
)

// Event is the opaque state-change record handed to the notification sink.
type Event struct {
	Type      EventType   `json:"type"`
	BookingID string      `json:"booking_id,omitempty"`
	UserID    string      `json:"user_id,omitempty"`
	SpotID    string      `json:"spot_id,omitempty"`
	Window    *TimeWindow `json:"window,omitempty"`
	At        time.Time   `json:"at"`
}
