package entities

import "time"

// WaitlistEntry queues a booking awaiting a freed slot. Ordering is
// (score desc, enqueue time asc) so equal-priority entries leave in
// request order.
type WaitlistEntry struct {
	BookingID   string      `json:"booking_id"`
	Constraints Constraints `json:"constraints"`
	Window      TimeWindow  `json:"window"`
	Score       int         `json:"score"`
	EnqueuedAt  time.Time   `json:"enqueued_at"`
}
