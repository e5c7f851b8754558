// Package repository contains data access logic separated from HTTP handlers.
// This file defines repository methods for CRUD and lookup operations on
// venues. A Venue hosts zero or more shows; deleting it cascades to them.
package repository

import (
	"context"      // context allows passing deadlines and cancellation signals to DB operations
	"database/sql" // sql provides generic database operations and drivers
	"errors"

	"github.com/iliyamo/showbook/internal/model"
)

// VenueRepo encapsulates all database queries related to venues.
type VenueRepo struct {
	db *sql.DB // db is the underlying database connection pool
}

// NewVenueRepo constructs a VenueRepo with the provided DB handle.
func NewVenueRepo(db *sql.DB) *VenueRepo {
	return &VenueRepo{db: db}
}

const venueColumns = "id, name, place, location, capacity"

// Create inserts a new venue.  On success the venue's ID field is
// populated with the auto-generated value.
func (r *VenueRepo) Create(ctx context.Context, v *model.Venue) error {
	const q = "INSERT INTO venues (name, place, location, capacity) VALUES (?, ?, ?, ?)"
	res, err := r.db.ExecContext(ctx, q, v.Name, v.Place, v.Location, v.Capacity)
	if err != nil {
		return err // propagate DB errors to the caller
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	v.ID = uint64(id)
	return nil
}

// GetByID fetches a venue by its ID.  It returns ErrVenueNotFound if no
// row is found.
func (r *VenueRepo) GetByID(ctx context.Context, id uint64) (*model.Venue, error) {
	const q = "SELECT " + venueColumns + " FROM venues WHERE id = ?"
	var v model.Venue
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&v.ID, &v.Name, &v.Place, &v.Location, &v.Capacity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVenueNotFound
		}
		return nil, err
	}
	return &v, nil
}

// List returns all venues ordered by id.
func (r *VenueRepo) List(ctx context.Context) ([]model.Venue, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+venueColumns+" FROM venues ORDER BY id")
	if err != nil {
		return nil, err
	}
	return scanVenues(rows)
}

// Update overwrites the venue's editable fields.  It returns
// ErrVenueNotFound when the venue does not exist.
func (r *VenueRepo) Update(ctx context.Context, v *model.Venue) error {
	const q = `UPDATE venues SET name = ?, place = ?, location = ?, capacity = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, v.Name, v.Place, v.Location, v.Capacity, v.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	// MySQL reports 0 affected rows when the values are unchanged, so
	// distinguish "missing" from "identical".
	if _, err := r.GetByID(ctx, v.ID); err != nil {
		return err
	}
	return nil
}

// Delete removes a venue together with its shows.  The cascade only
// proceeds when none of the venue's shows has bookings; otherwise
// ErrConflict is returned and nothing is deleted.  Show rows are locked
// for the duration so that no booking can commit against them while the
// check runs.
func (r *VenueRepo) Delete(ctx context.Context, id uint64) (showIDs []uint64, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	var one int
	if err = tx.QueryRowContext(ctx, `SELECT 1 FROM venues WHERE id = ? FOR UPDATE`, id).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVenueNotFound
		}
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `SELECT id FROM shows WHERE venue_id = ? ORDER BY id FOR UPDATE`, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var sid uint64
		if err = rows.Scan(&sid); err != nil {
			rows.Close()
			return nil, err
		}
		showIDs = append(showIDs, sid)
	}
	if err = rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	var booked int
	if err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings b JOIN shows s ON s.id = b.show_id WHERE s.venue_id = ?`, id,
	).Scan(&booked); err != nil {
		return nil, err
	}
	if booked > 0 {
		err = ErrConflict
		return nil, err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM shows WHERE venue_id = ?`, id); err != nil {
		return nil, err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM venues WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return showIDs, nil
}

// Search returns venues whose name, place or location contains q
// (case-insensitive).
func (r *VenueRepo) Search(ctx context.Context, q string) ([]model.Venue, error) {
	like := containsPattern(q)
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+venueColumns+` FROM venues
		 WHERE LOWER(name) LIKE ? OR LOWER(place) LIKE ? OR LOWER(location) LIKE ?
		 ORDER BY id`, like, like, like)
	if err != nil {
		return nil, err
	}
	return scanVenues(rows)
}

func scanVenues(rows *sql.Rows) ([]model.Venue, error) {
	defer rows.Close()
	out := make([]model.Venue, 0)
	for rows.Next() {
		var v model.Venue
		if err := rows.Scan(&v.ID, &v.Name, &v.Place, &v.Location, &v.Capacity); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
