// Package repository contains data access logic for Show domain operations.
// A Show is a scheduled event at a venue with a fixed ticket capacity.
// Mutations that can interact with bookings (capacity edits and deletes)
// lock the show row so they serialize with booking commits.
package repository

import (
	"context"      // context for controlling query lifetime
	"database/sql" // sql provides DB abstraction
	"errors"       // errors for sentinel comparisons
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/showbook/internal/model"
)

// ShowRepo manages persistence for shows.
type ShowRepo struct {
	db *sql.DB
}

// NewShowRepo constructs a ShowRepo with the given DB handle.
func NewShowRepo(db *sql.DB) *ShowRepo {
	return &ShowRepo{db: db}
}

const showColumns = "id, venue_id, name, show_time, tag, rating, tickets, price"

// Create inserts a new show and assigns the generated ID back to the
// struct.  ErrVenueNotFound is returned when the owning venue does not
// exist (foreign key violation 1452).
func (r *ShowRepo) Create(ctx context.Context, s *model.Show) error {
	const q = `INSERT INTO shows (venue_id, name, show_time, tag, rating, tickets, price) VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, s.VenueID, s.Name, s.Time, s.Tag, s.Rating, s.Tickets, s.Price)
	if err != nil {
		if isMissingParent(err) {
			return ErrVenueNotFound
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

// GetByID retrieves a show by its ID.  It returns ErrShowNotFound if
// there is no matching row.
func (r *ShowRepo) GetByID(ctx context.Context, id uint64) (*model.Show, error) {
	return getShow(ctx, r.db, "SELECT "+showColumns+" FROM shows WHERE id = ?", id)
}

// List returns every show ordered by id.
func (r *ShowRepo) List(ctx context.Context) ([]model.Show, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+showColumns+" FROM shows ORDER BY id")
	if err != nil {
		return nil, err
	}
	return scanShows(rows)
}

// ListByVenue returns all shows for a given venue ordered by id.  When no
// shows exist it returns an empty slice and nil error.
func (r *ShowRepo) ListByVenue(ctx context.Context, venueID uint64) ([]model.Show, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+showColumns+" FROM shows WHERE venue_id = ? ORDER BY id", venueID)
	if err != nil {
		return nil, err
	}
	return scanShows(rows)
}

// Update replaces the show's fields inside a transaction that holds the
// show row lock.  Lowering the capacity below the tickets already booked
// returns ErrConflict.
func (r *ShowRepo) Update(ctx context.Context, s *model.Show) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	if _, err = getShow(ctx, tx, "SELECT "+showColumns+" FROM shows WHERE id = ? FOR UPDATE", s.ID); err != nil {
		return err
	}
	var booked int
	if err = tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(tickets), 0) FROM bookings WHERE show_id = ?`, s.ID).Scan(&booked); err != nil {
		return err
	}
	if s.Tickets < booked {
		err = ErrConflict
		return err
	}
	const q = `UPDATE shows SET venue_id = ?, name = ?, show_time = ?, tag = ?, rating = ?, tickets = ?, price = ? WHERE id = ?`
	if _, err = tx.ExecContext(ctx, q, s.VenueID, s.Name, s.Time, s.Tag, s.Rating, s.Tickets, s.Price, s.ID); err != nil {
		if isMissingParent(err) {
			err = ErrVenueNotFound
		}
		return err
	}
	return nil
}

// Delete removes a show.  If any bookings exist for the show, the
// deletion is aborted and ErrConflict is returned.
func (r *ShowRepo) Delete(ctx context.Context, id uint64) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()
	if _, err = getShow(ctx, tx, "SELECT "+showColumns+" FROM shows WHERE id = ? FOR UPDATE", id); err != nil {
		return err
	}
	var count int
	if err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE show_id = ?`, id).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		err = ErrConflict
		return err
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM shows WHERE id = ?`, id)
	return err
}

// Search returns shows whose name or tag contains q (case-insensitive).
func (r *ShowRepo) Search(ctx context.Context, q string) ([]model.Show, error) {
	like := containsPattern(q)
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+showColumns+" FROM shows WHERE LOWER(name) LIKE ? OR LOWER(tag) LIKE ? ORDER BY id",
		like, like)
	if err != nil {
		return nil, err
	}
	return scanShows(rows)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getShow(ctx context.Context, db queryRower, q string, id uint64) (*model.Show, error) {
	var s model.Show
	err := db.QueryRowContext(ctx, q, id).Scan(&s.ID, &s.VenueID, &s.Name, &s.Time, &s.Tag, &s.Rating, &s.Tickets, &s.Price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrShowNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanShows(rows *sql.Rows) ([]model.Show, error) {
	defer rows.Close()
	out := make([]model.Show, 0)
	for rows.Next() {
		var s model.Show
		if err := rows.Scan(&s.ID, &s.VenueID, &s.Name, &s.Time, &s.Tag, &s.Rating, &s.Tickets, &s.Price); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// containsPattern turns a search term into a case-insensitive LIKE
// pattern that matches the term literally.
func containsPattern(q string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(q))) + "%"
}

// isMissingParent reports a foreign key violation on insert/update (1452).
func isMissingParent(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1452
}
