package repository

import (
	"context"
	"time"

	"github.com/iliyamo/showbook/internal/model"
)

// UserRepository persists users.
type UserRepository interface {
	Create(ctx context.Context, u *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uint64) (*model.User, error)
	TouchLastLogin(ctx context.Context, id uint64, at time.Time) error
	// ListIdle returns users of the given role that have never booked or
	// whose last booking is older than before.
	ListIdle(ctx context.Context, role string, before time.Time) ([]model.User, error)
	ListByRole(ctx context.Context, role string) ([]model.User, error)
}

// VenueRepository persists venues.
type VenueRepository interface {
	Create(ctx context.Context, v *model.Venue) error
	GetByID(ctx context.Context, id uint64) (*model.Venue, error)
	List(ctx context.Context) ([]model.Venue, error)
	Update(ctx context.Context, v *model.Venue) error
	// Delete removes the venue and cascades to its shows. It returns the
	// ids of the deleted shows, or ErrConflict when any of them has
	// bookings.
	Delete(ctx context.Context, id uint64) ([]uint64, error)
	Search(ctx context.Context, q string) ([]model.Venue, error)
}

// ShowRepository persists shows.
type ShowRepository interface {
	Create(ctx context.Context, s *model.Show) error
	GetByID(ctx context.Context, id uint64) (*model.Show, error)
	List(ctx context.Context) ([]model.Show, error)
	ListByVenue(ctx context.Context, venueID uint64) ([]model.Show, error)
	// Update replaces a show's fields. It is serialized with booking
	// commits on the same show and returns ErrConflict when the new
	// capacity is below the tickets already booked.
	Update(ctx context.Context, s *model.Show) error
	// Delete removes a show, or returns ErrConflict if it has bookings.
	Delete(ctx context.Context, id uint64) error
	Search(ctx context.Context, q string) ([]model.Show, error)
}

// BookingRepository reads bookings. Bookings that consume capacity are
// only written through ShowLocker.InShowTx.
type BookingRepository interface {
	GetByID(ctx context.Context, id uint64) (*model.Booking, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error)
	SetRating(ctx context.Context, id uint64, rating int) error
	// Availability returns remaining capacity for every show without
	// taking any show lock.
	Availability(ctx context.Context) (map[uint64]int, error)
	OccupancyByShow(ctx context.Context) ([]model.Occupancy, error)
	OccupancyByVenue(ctx context.Context) ([]model.Occupancy, error)
}

// ShowTx is the per-show exclusive scope in which a booking is checked and
// written. The show row is locked for the lifetime of the scope.
type ShowTx interface {
	Show() model.Show
	Venue(ctx context.Context) (*model.Venue, error)
	BookedTickets(ctx context.Context) (int, error)
	InsertBooking(ctx context.Context, b *model.Booking) error
	TouchLastBooked(ctx context.Context, userID uint64, at time.Time) error
}

// ShowLocker runs fn inside an exclusive scope on a single show. All
// writes made through tx commit atomically when fn returns nil and are
// discarded otherwise. Scopes on different shows do not contend.
// ErrShowNotFound is returned when the show does not exist.
type ShowLocker interface {
	InShowTx(ctx context.Context, showID uint64, fn func(tx ShowTx) error) error
}

// Store bundles the record repositories handed to handlers and services.
type Store struct {
	Users    UserRepository
	Venues   VenueRepository
	Shows    ShowRepository
	Bookings BookingRepository
	Locker   ShowLocker
}
