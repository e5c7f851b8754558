package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/showbook/internal/model"
)

// ShowLockerRepo implements ShowLocker on MySQL.  The scope is a
// transaction that starts with SELECT ... FOR UPDATE on the show row, so
// concurrent scopes on the same show queue on the InnoDB row lock while
// scopes on other shows proceed in parallel.
type ShowLockerRepo struct {
	db *sql.DB
}

func NewShowLockerRepo(db *sql.DB) *ShowLockerRepo { return &ShowLockerRepo{db: db} }

// InShowTx locks the show row, runs fn and commits when fn succeeds.
func (r *ShowLockerRepo) InShowTx(ctx context.Context, showID uint64, fn func(tx ShowTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	show, err := getShow(ctx, tx, "SELECT "+showColumns+" FROM shows WHERE id = ? FOR UPDATE", showID)
	if err != nil {
		return err
	}
	if err := fn(&mysqlShowTx{tx: tx, show: *show}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

type mysqlShowTx struct {
	tx   *sql.Tx
	show model.Show
}

func (t *mysqlShowTx) Show() model.Show { return t.show }

func (t *mysqlShowTx) Venue(ctx context.Context) (*model.Venue, error) {
	var v model.Venue
	err := t.tx.QueryRowContext(ctx, "SELECT "+venueColumns+" FROM venues WHERE id = ?", t.show.VenueID).
		Scan(&v.ID, &v.Name, &v.Place, &v.Location, &v.Capacity)
	if err == sql.ErrNoRows {
		return nil, ErrVenueNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (t *mysqlShowTx) BookedTickets(ctx context.Context) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(tickets), 0) FROM bookings WHERE show_id = ?`, t.show.ID).Scan(&n)
	return n, err
}

func (t *mysqlShowTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	const q = `INSERT INTO bookings (user_id, venue_id, show_id, venue_name, venue_place, venue_location,
	               show_name, show_time, show_tag, show_rating, tickets, price, total_price, created_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := t.tx.ExecContext(ctx, q,
		b.UserID, b.VenueID, b.ShowID, b.VenueName, b.VenuePlace, b.VenueLocation,
		b.ShowName, b.ShowTime, b.ShowTag, b.ShowRating, b.Tickets, b.Price, b.TotalPrice, b.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	return nil
}

func (t *mysqlShowTx) TouchLastBooked(ctx context.Context, userID uint64, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE users SET last_booked = ? WHERE id = ?`, at, userID)
	return err
}

// NewMySQLStore wires the MySQL repositories into a Store.
func NewMySQLStore(db *sql.DB) *Store {
	return &Store{
		Users:    NewUserRepo(db),
		Venues:   NewVenueRepo(db),
		Shows:    NewShowRepo(db),
		Bookings: NewBookingRepo(db),
		Locker:   NewShowLockerRepo(db),
	}
}
