package db

import (
	"time"

	"parkcore/internal/entities"
)

// BookingRow mirrors the bookings table. Terminal rows stay archived in the
// table; only non-terminal rows are loaded back into the engine on restart.
type BookingRow struct {
	ID             string
	Code           string
	CheckoutCode   string
	UserID         string
	UserName       string
	UserEmail      string
	UserPhone      string
	Tier           string
	StartTime      time.Time
	EndTime        time.Time
	SpotID         string
	Zone           string
	Status         string
	Score          int
	GraceDeadline  time.Time
	NeedEV         bool
	NeedAccessible bool
	SpotIDs        []string
	PriceCents     int64
	PremiumCents   int64
	PaymentRef     string
	PaymentStatus  string
	ReminderSent   bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WaitlistRow mirrors the waitlist_entries table.
type WaitlistRow struct {
	BookingID      string
	Zone           string
	NeedEV         bool
	NeedAccessible bool
	SpotIDs        []string
	StartTime      time.Time
	EndTime        time.Time
	Score          int
	EnqueuedAt     time.Time
}

func RowFromBooking(b *entities.Booking) BookingRow {
	return BookingRow{
		ID:             b.ID,
		Code:           b.Code,
		CheckoutCode:   b.CheckoutCode,
		UserID:         b.UserID,
		UserName:       b.UserName,
		UserEmail:      b.UserEmail,
		UserPhone:      b.UserPhone,
		Tier:           string(b.Tier),
		StartTime:      b.Window.Start,
		EndTime:        b.Window.End,
		SpotID:         b.SpotID,
		Zone:           b.Zone,
		Status:         string(b.Status),
		Score:          b.Score,
		GraceDeadline:  b.GraceDeadline,
		NeedEV:         b.Constraints.NeedEV,
		NeedAccessible: b.Constraints.NeedAccessible,
		SpotIDs:        b.Constraints.SpotIDs,
		PriceCents:     b.PriceCents,
		PremiumCents:   b.AuctionPremiumCents,
		PaymentRef:     b.PaymentRef,
		PaymentStatus:  b.PaymentStatus,
		ReminderSent:   b.ReminderSent,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}
}

func (r BookingRow) ToBooking() entities.Booking {
	return entities.Booking{
		ID:            r.ID,
		Code:          r.Code,
		CheckoutCode:  r.CheckoutCode,
		UserID:        r.UserID,
		UserName:      r.UserName,
		UserEmail:     r.UserEmail,
		UserPhone:     r.UserPhone,
		Tier:          entities.Tier(r.Tier),
		Window:        entities.TimeWindow{Start: r.StartTime.UTC(), End: r.EndTime.UTC()},
		SpotID:        r.SpotID,
		Zone:          r.Zone,
		Status:        entities.BookingStatus(r.Status),
		Score:         r.Score,
		GraceDeadline: r.GraceDeadline.UTC(),
		Constraints: entities.Constraints{
			Zone:           r.Zone,
			NeedEV:         r.NeedEV,
			NeedAccessible: r.NeedAccessible,
			SpotIDs:        r.SpotIDs,
		},
		PriceCents:          r.PriceCents,
		AuctionPremiumCents: r.PremiumCents,
		PaymentRef:          r.PaymentRef,
		PaymentStatus:       r.PaymentStatus,
		ReminderSent:        r.ReminderSent,
		CreatedAt:           r.CreatedAt.UTC(),
		UpdatedAt:           r.UpdatedAt.UTC(),
	}
}

func RowFromWaitlistEntry(e *entities.WaitlistEntry) WaitlistRow {
	return WaitlistRow{
		BookingID:      e.BookingID,
		Zone:           e.Constraints.Zone,
		NeedEV:         e.Constraints.NeedEV,
		NeedAccessible: e.Constraints.NeedAccessible,
		SpotIDs:        e.Constraints.SpotIDs,
		StartTime:      e.Window.Start,
		EndTime:        e.Window.End,
		Score:          e.Score,
		EnqueuedAt:     e.EnqueuedAt,
	}
}

func (r WaitlistRow) ToEntry() entities.WaitlistEntry {
	return entities.WaitlistEntry{
		BookingID: r.BookingID,
		Constraints: entities.Constraints{
			Zone:           r.Zone,
			NeedEV:         r.NeedEV,
			NeedAccessible: r.NeedAccessible,
			SpotIDs:        r.SpotIDs,
		},
		Window:     entities.TimeWindow{Start: r.StartTime.UTC(), End: r.EndTime.UTC()},
		Score:      r.Score,
		EnqueuedAt: r.EnqueuedAt.UTC(),
	}
}
