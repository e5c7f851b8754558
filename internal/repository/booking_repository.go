package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/showbook/internal/model"
)

// BookingRepo reads bookings and aggregates.  Inserts that consume
// capacity go through ShowLockerRepo.InShowTx; the only direct write here
// is SetRating, which does not touch capacity.  All timestamp fields are
// assumed to be stored in UTC.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, user_id, venue_id, show_id, venue_name, venue_place, venue_location,
	show_name, show_time, show_tag, show_rating, tickets, price, total_price, rating, created_at`

// GetByID returns a booking or ErrBookingNotFound.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE id = ?", id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	return b, err
}

// ListByUser returns the user's bookings, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE user_id = ? ORDER BY created_at DESC, id DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SetRating stores the user's rating of a booking.
func (r *BookingRepo) SetRating(ctx context.Context, id uint64, rating int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE bookings SET rating = ? WHERE id = ?`, rating, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return nil
}

// Availability returns remaining capacity per show in one aggregate query.
func (r *BookingRepo) Availability(ctx context.Context) (map[uint64]int, error) {
	const q = `SELECT s.id, s.tickets - COALESCE(SUM(b.tickets), 0)
	           FROM shows s
	           LEFT JOIN bookings b ON b.show_id = s.id
	           GROUP BY s.id, s.tickets`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uint64]int)
	for rows.Next() {
		var (
			id        uint64
			remaining int
		)
		if err := rows.Scan(&id, &remaining); err != nil {
			return nil, err
		}
		out[id] = remaining
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// OccupancyByShow reports booked tickets against capacity for each show.
func (r *BookingRepo) OccupancyByShow(ctx context.Context) ([]model.Occupancy, error) {
	const q = `SELECT s.id, s.name, s.tickets, COALESCE(SUM(b.tickets), 0), COUNT(b.id)
	           FROM shows s
	           LEFT JOIN bookings b ON b.show_id = s.id
	           GROUP BY s.id, s.name, s.tickets
	           ORDER BY s.id`
	return r.occupancy(ctx, q)
}

// OccupancyByVenue reports booked tickets against the summed show
// capacity for each venue.
func (r *BookingRepo) OccupancyByVenue(ctx context.Context) ([]model.Occupancy, error) {
	const q = `SELECT v.id, v.name,
	                  COALESCE((SELECT SUM(s.tickets) FROM shows s WHERE s.venue_id = v.id), 0),
	                  COALESCE(SUM(b.tickets), 0), COUNT(b.id)
	           FROM venues v
	           LEFT JOIN shows s2 ON s2.venue_id = v.id
	           LEFT JOIN bookings b ON b.show_id = s2.id
	           GROUP BY v.id, v.name
	           ORDER BY v.id`
	return r.occupancy(ctx, q)
}

func (r *BookingRepo) occupancy(ctx context.Context, q string) ([]model.Occupancy, error) {
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Occupancy, 0)
	for rows.Next() {
		var o model.Occupancy
		if err := rows.Scan(&o.ID, &o.Name, &o.Capacity, &o.Booked, &o.Bookings); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanBooking(row rowScanner) (*model.Booking, error) {
	var (
		b      model.Booking
		rating sql.NullInt64
	)
	err := row.Scan(&b.ID, &b.UserID, &b.VenueID, &b.ShowID, &b.VenueName, &b.VenuePlace, &b.VenueLocation,
		&b.ShowName, &b.ShowTime, &b.ShowTag, &b.ShowRating, &b.Tickets, &b.Price, &b.TotalPrice, &rating, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	if rating.Valid {
		v := int(rating.Int64)
		b.Rating = &v
	}
	return &b, nil
}
