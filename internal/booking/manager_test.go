package booking

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/showbook/internal/auth"
	"github.com/iliyamo/showbook/internal/cache"
	"github.com/iliyamo/showbook/internal/inventory"
	"github.com/iliyamo/showbook/internal/model"
	"github.com/iliyamo/showbook/internal/queue"
	"github.com/iliyamo/showbook/internal/repository"
	"github.com/iliyamo/showbook/internal/utils"
)

type fixture struct {
	store  *repository.Store
	ledger *inventory.Ledger
	mgr    *Manager
	sink   *countingSink
	venue  model.Venue
	show   model.Show
}

type countingSink struct{ n atomic.Int64 }

func (c *countingSink) Publish(context.Context, string, interface{}) error {
	c.n.Add(1)
	return nil
}

func newFixture(t *testing.T, capacity, price int) *fixture {
	t.Helper()
	ctx := context.Background()
	st := repository.NewMemoryStore().Store()
	v := model.Venue{Name: "Globe", Place: "Bankside", Location: "London", Capacity: 3000}
	require.NoError(t, st.Venues.Create(ctx, &v))
	s := model.Show{VenueID: v.ID, Name: "Hamlet", Time: "19:30", Tag: "tragedy", Rating: 5, Tickets: capacity, Price: price}
	require.NoError(t, st.Shows.Create(ctx, &s))

	l := inventory.New(st, cache.NewMemory(), time.Second, nil)
	sink := &countingSink{}
	return &fixture{store: st, ledger: l, mgr: NewManager(st, l, sink, nil), sink: sink, venue: v, show: s}
}

func (f *fixture) user(t *testing.T, name string) (uint64, *auth.Claims) {
	t.Helper()
	u := model.User{Email: name + "@example.com", Name: name, Role: model.RoleUser}
	require.NoError(t, f.store.Users.Create(context.Background(), &u))
	return u.ID, &auth.Claims{Identity: u.Email, Name: name, Role: model.RoleUser}
}

func TestNoOversellUnderConcurrency(t *testing.T) {
	const capacity, attempts = 10, 50
	f := newFixture(t, capacity, 5)

	var ok, rejected atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		uid, claims := f.user(t, fmt.Sprintf("u%d", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.mgr.Book(context.Background(), claims, Request{UserID: uid, ShowID: f.show.ID, Tickets: 1})
			switch {
			case err == nil:
				ok.Add(1)
			case assert.ErrorIs(t, err, ErrInsufficientAvailability):
				rejected.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, capacity, ok.Load())
	assert.EqualValues(t, attempts-capacity, rejected.Load())
	remaining, err := f.ledger.Remaining(context.Background(), f.show.ID)
	require.NoError(t, err)
	assert.Zero(t, remaining)
	assert.EqualValues(t, capacity, f.sink.n.Load())
}

func TestGlobeHamletScenario(t *testing.T) {
	f := newFixture(t, 2, 10)
	ctx := context.Background()
	a, ca := f.user(t, "a")
	b, cb := f.user(t, "b")
	c, cc := f.user(t, "c")

	res, err := f.mgr.Book(ctx, ca, Request{UserID: a, ShowID: f.show.ID, Tickets: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Remaining)
	assert.Equal(t, 10, res.Booking.TotalPrice)

	_, err = f.mgr.Book(ctx, cb, Request{UserID: b, ShowID: f.show.ID, Tickets: 2})
	require.ErrorIs(t, err, ErrInsufficientAvailability)
	var ie *InsufficientError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 2, ie.Requested)
	assert.Equal(t, 1, ie.Remaining)

	res, err = f.mgr.Book(ctx, cc, Request{UserID: c, ShowID: f.show.ID, Tickets: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Remaining)

	n, err := f.ledger.Remaining(ctx, f.show.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	list, _ := f.store.Bookings.ListByUser(ctx, b)
	assert.Empty(t, list)
	u, _ := f.store.Users.GetByID(ctx, b)
	assert.Nil(t, u.LastBooked)
}

func TestBookingSnapshotsSurviveShowEdits(t *testing.T) {
	f := newFixture(t, 10, 10)
	ctx := context.Background()
	uid, claims := f.user(t, "a")

	res, err := f.mgr.Book(ctx, claims, Request{UserID: uid, ShowID: f.show.ID, Tickets: 3})
	require.NoError(t, err)

	edited := f.show
	edited.Price = 99
	edited.Name = "Hamlet (revival)"
	require.NoError(t, f.store.Shows.Update(ctx, &edited))

	got, err := f.store.Bookings.GetByID(ctx, res.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Price)
	assert.Equal(t, 30, got.TotalPrice)
	assert.Equal(t, "Hamlet", got.ShowName)
	assert.Equal(t, "Globe", got.VenueName)
}

func TestBookSetsLastBooked(t *testing.T) {
	f := newFixture(t, 10, 1)
	at := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)
	f.mgr = NewManager(f.store, f.ledger, nil, nil, WithClock(func() time.Time { return at }))
	uid, claims := f.user(t, "a")

	_, err := f.mgr.Book(context.Background(), claims, Request{UserID: uid, ShowID: f.show.ID, Tickets: 1})
	require.NoError(t, err)
	u, _ := f.store.Users.GetByID(context.Background(), uid)
	require.NotNil(t, u.LastBooked)
	assert.Equal(t, at, *u.LastBooked)
}

func TestBookRejections(t *testing.T) {
	f := newFixture(t, 10, 1)
	f.mgr = NewManager(f.store, f.ledger, nil, nil, WithMaxTickets(4))
	uid, claims := f.user(t, "a")
	admin := &auth.Claims{Identity: "root@example.com", Role: model.RoleAdmin}
	ctx := context.Background()

	_, err := f.mgr.Book(ctx, admin, Request{UserID: 1, ShowID: f.show.ID, Tickets: 1})
	assert.ErrorIs(t, err, auth.ErrForbidden)

	var ve *utils.ValidationError
	for _, n := range []int{0, -1, 5} {
		_, err = f.mgr.Book(ctx, claims, Request{UserID: uid, ShowID: f.show.ID, Tickets: n})
		require.ErrorAs(t, err, &ve, "tickets=%d", n)
		assert.Contains(t, ve.Fields, "tickets")
	}

	_, err = f.mgr.Book(ctx, claims, Request{UserID: uid, Tickets: 1})
	require.ErrorAs(t, err, &ve)

	_, err = f.mgr.Book(ctx, claims, Request{UserID: uid, ShowID: 999, Tickets: 1})
	assert.ErrorIs(t, err, repository.ErrShowNotFound)

	_, err = f.mgr.Book(ctx, claims, Request{UserID: uid, VenueID: f.venue.ID + 100, ShowID: f.show.ID, Tickets: 1})
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "venue_id")

	remaining, _ := f.ledger.Remaining(ctx, f.show.ID)
	assert.Equal(t, f.show.Tickets, remaining)
}

func TestRate(t *testing.T) {
	f := newFixture(t, 10, 1)
	ctx := context.Background()
	a, ca := f.user(t, "a")
	b, cb := f.user(t, "b")

	res, err := f.mgr.Book(ctx, ca, Request{UserID: a, ShowID: f.show.ID, Tickets: 1})
	require.NoError(t, err)

	got, err := f.mgr.Rate(ctx, ca, a, res.Booking.ID, 4)
	require.NoError(t, err)
	require.NotNil(t, got.Rating)
	assert.Equal(t, 4, *got.Rating)

	_, err = f.mgr.Rate(ctx, cb, b, res.Booking.ID, 1)
	assert.ErrorIs(t, err, repository.ErrBookingNotFound)

	_, err = f.mgr.Rate(ctx, ca, a, 12345, 3)
	assert.ErrorIs(t, err, repository.ErrBookingNotFound)

	var ve *utils.ValidationError
	_, err = f.mgr.Rate(ctx, ca, a, res.Booking.ID, 6)
	assert.ErrorAs(t, err, &ve)

	stored, _ := f.store.Bookings.GetByID(ctx, res.Booking.ID)
	assert.Equal(t, 4, *stored.Rating)
}

func TestCapacityEditCannotDropBelowBooked(t *testing.T) {
	f := newFixture(t, 5, 1)
	ctx := context.Background()
	uid, claims := f.user(t, "a")
	_, err := f.mgr.Book(ctx, claims, Request{UserID: uid, ShowID: f.show.ID, Tickets: 4})
	require.NoError(t, err)

	edited := f.show
	edited.Tickets = 3
	assert.ErrorIs(t, f.store.Shows.Update(ctx, &edited), repository.ErrConflict)
	edited.Tickets = 4
	assert.NoError(t, f.store.Shows.Update(ctx, &edited))
	assert.ErrorIs(t, f.store.Shows.Delete(ctx, f.show.ID), repository.ErrConflict)
	_, err = f.store.Venues.Delete(ctx, f.venue.ID)
	assert.ErrorIs(t, err, repository.ErrConflict)
}

var _ queue.Sink = (*countingSink)(nil)
