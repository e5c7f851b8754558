// Package booking commits ticket bookings against show capacity.
//
// A booking moves Requested -> Checked -> Committed, or ends Rejected with
// nothing written. The check and the insert run inside one exclusive
// per-show scope, so concurrent bookings on the same show are serialized
// and the sum of committed tickets never exceeds the show's capacity.
package booking

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/showbook/internal/auth"
	"github.com/iliyamo/showbook/internal/inventory"
	"github.com/iliyamo/showbook/internal/model"
	"github.com/iliyamo/showbook/internal/queue"
	"github.com/iliyamo/showbook/internal/repository"
	"github.com/iliyamo/showbook/internal/utils"
)

// DefaultMaxTickets caps a single booking when no limit is configured.
const DefaultMaxTickets = 20

// Request is a user's ask for tickets. VenueID is optional; when set it
// must own the show.
type Request struct {
	UserID  uint64
	VenueID uint64
	ShowID  uint64 `validate:"required"`
	Tickets int
}

// Result is a committed booking and the capacity left after it.
type Result struct {
	Booking   model.Booking
	Remaining int
}

// Manager runs the booking protocol.
type Manager struct {
	store      *repository.Store
	ledger     *inventory.Ledger
	sink       queue.Sink
	log        *zap.Logger
	maxTickets int
	now        func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxTickets sets the per-booking ticket cap.
func WithMaxTickets(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxTickets = n
		}
	}
}

// WithClock replaces the clock used for booking timestamps.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func NewManager(store *repository.Store, ledger *inventory.Ledger, sink queue.Sink, log *zap.Logger, opts ...Option) *Manager {
	if sink == nil {
		sink = queue.NopSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		store:      store,
		ledger:     ledger,
		sink:       sink,
		log:        log.With(zap.String("component", "booking")),
		maxTickets: DefaultMaxTickets,
		now:        time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Book checks availability and commits the booking atomically. Rejections
// (forbidden, invalid, unknown show, insufficient availability) write
// nothing.
func (m *Manager) Book(ctx context.Context, claims *auth.Claims, req Request) (*Result, error) {
	if err := auth.Authorize(claims, model.RoleUser); err != nil {
		return nil, err
	}
	if err := m.validate(req); err != nil {
		return nil, err
	}

	var (
		b         model.Booking
		remaining int
	)
	err := m.store.Locker.InShowTx(ctx, req.ShowID, func(tx repository.ShowTx) error {
		show := tx.Show()
		if req.VenueID != 0 && req.VenueID != show.VenueID {
			return utils.Invalid("venue_id", "does not host this show")
		}
		left, err := m.ledger.RemainingIn(ctx, tx)
		if err != nil {
			return err
		}
		if req.Tickets > left {
			return &InsufficientError{Requested: req.Tickets, Remaining: max(left, 0)}
		}
		venue, err := tx.Venue(ctx)
		if err != nil {
			return err
		}

		now := m.now().UTC()
		b = model.Booking{
			UserID:        req.UserID,
			VenueID:       venue.ID,
			ShowID:        show.ID,
			VenueName:     venue.Name,
			VenuePlace:    venue.Place,
			VenueLocation: venue.Location,
			ShowName:      show.Name,
			ShowTime:      show.Time,
			ShowTag:       show.Tag,
			ShowRating:    show.Rating,
			Tickets:       req.Tickets,
			Price:         show.Price,
			TotalPrice:    show.Price * req.Tickets,
			CreatedAt:     now,
		}
		if err := tx.InsertBooking(ctx, &b); err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		if err := tx.TouchLastBooked(ctx, req.UserID, now); err != nil {
			return fmt.Errorf("touch last booked: %w", err)
		}
		remaining = left - req.Tickets
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.ledger.Invalidate(ctx, req.ShowID)
	m.log.Info("booking committed",
		zap.Uint64("booking_id", b.ID),
		zap.Uint64("user_id", b.UserID),
		zap.Uint64("show_id", b.ShowID),
		zap.Int("tickets", b.Tickets),
		zap.Int("remaining", remaining),
	)
	m.notify(ctx, claims, b, remaining)
	return &Result{Booking: b, Remaining: remaining}, nil
}

// Rate records the caller's rating on one of their own bookings. A booking
// owned by someone else is reported as not found.
func (m *Manager) Rate(ctx context.Context, claims *auth.Claims, userID, bookingID uint64, rating int) (*model.Booking, error) {
	if err := auth.Authorize(claims, model.RoleUser); err != nil {
		return nil, err
	}
	if err := utils.VarInt("rating", rating, "gte=1,lte=5"); err != nil {
		return nil, err
	}
	b, err := m.store.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, repository.ErrBookingNotFound
	}
	if err := m.store.Bookings.SetRating(ctx, bookingID, rating); err != nil {
		return nil, err
	}
	b.Rating = &rating
	return b, nil
}

func (m *Manager) validate(req Request) error {
	if err := utils.Validate(req); err != nil {
		return err
	}
	return utils.VarInt("tickets", req.Tickets, fmt.Sprintf("gte=1,lte=%d", m.maxTickets))
}

func (m *Manager) notify(ctx context.Context, claims *auth.Claims, b model.Booking, remaining int) {
	ev := queue.BookingConfirmed{
		BookingID:   b.ID,
		UserID:      b.UserID,
		UserEmail:   claims.Identity,
		ShowID:      b.ShowID,
		VenueID:     b.VenueID,
		VenueName:   b.VenueName,
		ShowName:    b.ShowName,
		ShowTime:    b.ShowTime,
		Tickets:     b.Tickets,
		TotalPrice:  b.TotalPrice,
		Remaining:   remaining,
		ConfirmedAt: b.CreatedAt,
	}
	if err := m.sink.Publish(ctx, queue.KindBookingConfirmed, ev); err != nil {
		m.log.Warn("publish booking.confirmed failed", zap.Uint64("booking_id", b.ID), zap.Error(err))
	}
}
