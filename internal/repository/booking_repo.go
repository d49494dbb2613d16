package repository

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"parkcore/internal/db"
	"parkcore/internal/entities"
)

// BookingRepository is the durable record behind the in-memory engine.
// Every state transition is written through here before it is acknowledged;
// on restart ListOpenBookings and ListWaitlistEntries rebuild the hot state.
type BookingRepository struct {
	DB *sql.DB
}

func NewBookingRepository(database *sql.DB) *BookingRepository {
	return &BookingRepository{DB: database}
}

func (r *BookingRepository) SaveBooking(b *entities.Booking) error {
	row := db.RowFromBooking(b)
	query := `
	INSERT INTO bookings (
		id, code, checkout_code, user_id, user_name, user_email, user_phone, tier,
		start_time, end_time, spot_id, zone, status, score, grace_deadline,
		need_ev, need_accessible, spot_ids, price_cents, premium_cents,
		payment_ref, payment_status, reminder_sent, created_at, updated_at
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25
	)
	ON CONFLICT (id) DO UPDATE SET
		start_time = EXCLUDED.start_time,
		end_time = EXCLUDED.end_time,
		spot_id = EXCLUDED.spot_id,
		user_id = EXCLUDED.user_id,
		user_name = EXCLUDED.user_name,
		user_email = EXCLUDED.user_email,
		user_phone = EXCLUDED.user_phone,
		status = EXCLUDED.status,
		score = EXCLUDED.score,
		grace_deadline = EXCLUDED.grace_deadline,
		premium_cents = EXCLUDED.premium_cents,
		payment_ref = EXCLUDED.payment_ref,
		payment_status = EXCLUDED.payment_status,
		reminder_sent = EXCLUDED.reminder_sent,
		updated_at = EXCLUDED.updated_at`

	_, err := r.DB.Exec(query,
		row.ID, row.Code, row.CheckoutCode, row.UserID, row.UserName, row.UserEmail, row.UserPhone, row.Tier,
		row.StartTime, row.EndTime, row.SpotID, row.Zone, row.Status, row.Score, row.GraceDeadline,
		row.NeedEV, row.NeedAccessible, pq.Array(row.SpotIDs), row.PriceCents, row.PremiumCents,
		row.PaymentRef, row.PaymentStatus, row.ReminderSent, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("error saving booking %s: %w", row.ID, err)
	}
	return nil
}

// ListOpenBookings returns every non-terminal booking so the engine can
// reconstruct timelines and grace deadlines after a restart.
func (r *BookingRepository) ListOpenBookings() ([]entities.Booking, error) {
	query := `
	SELECT id, code, checkout_code, user_id, user_name, user_email, user_phone, tier,
		start_time, end_time, spot_id, zone, status, score, grace_deadline,
		need_ev, need_accessible, spot_ids, price_cents, premium_cents,
		payment_ref, payment_status, reminder_sent, created_at, updated_at
	FROM bookings
	WHERE status IN ('pending', 'confirmed', 'waitlisted', 'active')
	ORDER BY created_at`

	rows, err := r.DB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("error querying open bookings: %w", err)
	}
	defer rows.Close()

	var bookings []entities.Booking
	for rows.Next() {
		var row db.BookingRow
		err := rows.Scan(
			&row.ID, &row.Code, &row.CheckoutCode, &row.UserID, &row.UserName, &row.UserEmail, &row.UserPhone, &row.Tier,
			&row.StartTime, &row.EndTime, &row.SpotID, &row.Zone, &row.Status, &row.Score, &row.GraceDeadline,
			&row.NeedEV, &row.NeedAccessible, pq.Array(&row.SpotIDs), &row.PriceCents, &row.PremiumCents,
			&row.PaymentRef, &row.PaymentStatus, &row.ReminderSent, &row.CreatedAt, &row.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning booking row: %w", err)
		}
		bookings = append(bookings, row.ToBooking())
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error after iterating booking rows: %w", err)
	}
	return bookings, nil
}

// ListBookings is the operator view, optionally filtered by date and status.
func (r *BookingRepository) ListBookings(date, status string) ([]entities.Booking, error) {
	query := `
	SELECT id, code, checkout_code, user_id, user_name, user_email, user_phone, tier,
		start_time, end_time, spot_id, zone, status, score, grace_deadline,
		need_ev, need_accessible, spot_ids, price_cents, premium_cents,
		payment_ref, payment_status, reminder_sent, created_at, updated_at
	FROM bookings
	WHERE 1=1`
	args := []interface{}{}
	idx := 1

	if date != "" {
		query += fmt.Sprintf(" AND DATE(start_time) = $%d", idx)
		args = append(args, date)
		idx++
	}
	if status != "" {
		query += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, status)
		idx++
	}
	query += " ORDER BY start_time DESC"

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []entities.Booking
	for rows.Next() {
		var row db.BookingRow
		err := rows.Scan(
			&row.ID, &row.Code, &row.CheckoutCode, &row.UserID, &row.UserName, &row.UserEmail, &row.UserPhone, &row.Tier,
			&row.StartTime, &row.EndTime, &row.SpotID, &row.Zone, &row.Status, &row.Score, &row.GraceDeadline,
			&row.NeedEV, &row.NeedAccessible, pq.Array(&row.SpotIDs), &row.PriceCents, &row.PremiumCents,
			&row.PaymentRef, &row.PaymentStatus, &row.ReminderSent, &row.CreatedAt, &row.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning booking row: %w", err)
		}
		bookings = append(bookings, row.ToBooking())
	}
	return bookings, rows.Err()
}

func (r *BookingRepository) SaveWaitlistEntry(e *entities.WaitlistEntry) error {
	row := db.RowFromWaitlistEntry(e)
	query := `
	INSERT INTO waitlist_entries (
		booking_id, zone, need_ev, need_accessible, spot_ids,
		start_time, end_time, score, enqueued_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	ON CONFLICT (booking_id) DO UPDATE SET
		score = EXCLUDED.score,
		enqueued_at = EXCLUDED.enqueued_at`

	_, err := r.DB.Exec(query,
		row.BookingID, row.Zone, row.NeedEV, row.NeedAccessible, pq.Array(row.SpotIDs),
		row.StartTime, row.EndTime, row.Score, row.EnqueuedAt,
	)
	if err != nil {
		return fmt.Errorf("error saving waitlist entry for %s: %w", row.BookingID, err)
	}
	return nil
}

func (r *BookingRepository) DeleteWaitlistEntry(bookingID string) error {
	_, err := r.DB.Exec(`DELETE FROM waitlist_entries WHERE booking_id = $1`, bookingID)
	if err != nil {
		return fmt.Errorf("error deleting waitlist entry for %s: %w", bookingID, err)
	}
	return nil
}

func (r *BookingRepository) ListWaitlistEntries() ([]entities.WaitlistEntry, error) {
	query := `
	SELECT booking_id, zone, need_ev, need_accessible, spot_ids,
		start_time, end_time, score, enqueued_at
	FROM waitlist_entries
	ORDER BY enqueued_at`

	rows, err := r.DB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("error querying waitlist entries: %w", err)
	}
	defer rows.Close()

	var entries []entities.WaitlistEntry
	for rows.Next() {
		var row db.WaitlistRow
		err := rows.Scan(
			&row.BookingID, &row.Zone, &row.NeedEV, &row.NeedAccessible, pq.Array(&row.SpotIDs),
			&row.StartTime, &row.EndTime, &row.Score, &row.EnqueuedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning waitlist row: %w", err)
		}
		entries = append(entries, row.ToEntry())
	}
	return entries, rows.Err()
}

// UpdatePaymentStatus records asynchronous payment-state changes reported by
// the gateway webhook. It never touches the booking lifecycle state.
func (r *BookingRepository) UpdatePaymentStatus(paymentRef, paymentStatus string) error {
	_, err := r.DB.Exec(
		`UPDATE bookings SET payment_status = $1, updated_at = NOW() WHERE payment_ref = $2`,
		paymentStatus, paymentRef,
	)
	if err != nil {
		return fmt.Errorf("error updating payment status for %s: %w", paymentRef, err)
	}
	return nil
}
