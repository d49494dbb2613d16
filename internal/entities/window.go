package entities

import (
	"fmt"
	"time"
)

// TimeWindow is a half-open interval [Start, End) at minute granularity.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewTimeWindow truncates both bounds to the minute and validates ordering.
func NewTimeWindow(start, end time.Time) (TimeWindow, error) {
	w := TimeWindow{
		Start: start.UTC().Truncate(time.Minute),
		End:   end.UTC().Truncate(time.Minute),
	}
	if !w.End.After(w.Start) {
		return TimeWindow{}, fmt.Errorf("end time %s must be after start time %s", w.End, w.Start)
	}
	return w, nil
}

// Overlaps reports whether two half-open windows share any instant.
func (w TimeWindow) Overlaps(o TimeWindow) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// Contains reports whether t falls inside [Start, End).
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}
