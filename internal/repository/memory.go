package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iliyamo/showbook/internal/model"
)

// MemoryStore is an in-process implementation of every repository
// interface. It backs STORE_DRIVER=memory and the tests. Per-show scopes
// are keyed mutexes; the committed state is guarded by a single RWMutex.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[uint64]model.User
	emails   map[string]uint64
	venues   map[uint64]model.Venue
	shows    map[uint64]model.Show
	bookings map[uint64]model.Booking

	nextID atomic.Uint64
	locks  *keyedMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[uint64]model.User),
		emails:   make(map[string]uint64),
		venues:   make(map[uint64]model.Venue),
		shows:    make(map[uint64]model.Show),
		bookings: make(map[uint64]model.Booking),
		locks:    newKeyedMutex(),
	}
}

// Store exposes the memory store through the Store bundle.
func (m *MemoryStore) Store() *Store {
	return &Store{
		Users:    memUsers{m},
		Venues:   memVenues{m},
		Shows:    memShows{m},
		Bookings: memBookings{m},
		Locker:   m,
	}
}

func (m *MemoryStore) id() uint64 { return m.nextID.Add(1) }

// ---- users ----

type memUsers struct{ m *MemoryStore }

func (r memUsers) Create(_ context.Context, u *model.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if _, ok := r.m.emails[u.Email]; ok {
		return ErrEmailExists
	}
	u.ID = r.m.id()
	r.m.users[u.ID] = *u
	r.m.emails[u.Email] = u.ID
	return nil
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	id, ok := r.m.emails[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := r.m.users[id]
	return &u, nil
}

func (r memUsers) GetByID(_ context.Context, id uint64) (*model.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	u, ok := r.m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (r memUsers) TouchLastLogin(_ context.Context, id uint64, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.LastLogin = at
	r.m.users[id] = u
	return nil
}

func (r memUsers) ListByRole(_ context.Context, role string) ([]model.User, error) {
	return r.filter(func(u model.User) bool { return u.Role == role }), nil
}

func (r memUsers) ListIdle(_ context.Context, role string, before time.Time) ([]model.User, error) {
	return r.filter(func(u model.User) bool {
		return u.Role == role && (u.LastBooked == nil || u.LastBooked.Before(before))
	}), nil
}

func (r memUsers) filter(keep func(model.User) bool) []model.User {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := make([]model.User, 0)
	for _, u := range r.m.users {
		if keep(u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ---- venues ----

type memVenues struct{ m *MemoryStore }

func (r memVenues) Create(_ context.Context, v *model.Venue) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	v.ID = r.m.id()
	r.m.venues[v.ID] = *v
	return nil
}

func (r memVenues) GetByID(_ context.Context, id uint64) (*model.Venue, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	v, ok := r.m.venues[id]
	if !ok {
		return nil, ErrVenueNotFound
	}
	return &v, nil
}

func (r memVenues) List(_ context.Context) ([]model.Venue, error) {
	return r.filter(func(model.Venue) bool { return true }), nil
}

func (r memVenues) Update(_ context.Context, v *model.Venue) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.venues[v.ID]; !ok {
		return ErrVenueNotFound
	}
	r.m.venues[v.ID] = *v
	return nil
}

func (r memVenues) Delete(_ context.Context, id uint64) ([]uint64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.venues[id]; !ok {
		return nil, ErrVenueNotFound
	}
	var showIDs []uint64
	for sid, s := range r.m.shows {
		if s.VenueID == id {
			showIDs = append(showIDs, sid)
		}
	}
	sort.Slice(showIDs, func(i, j int) bool { return showIDs[i] < showIDs[j] })
	for _, b := range r.m.bookings {
		for _, sid := range showIDs {
			if b.ShowID == sid {
				return nil, ErrConflict
			}
		}
	}
	for _, sid := range showIDs {
		delete(r.m.shows, sid)
	}
	delete(r.m.venues, id)
	return showIDs, nil
}

func (r memVenues) Search(_ context.Context, q string) ([]model.Venue, error) {
	q = strings.ToLower(strings.TrimSpace(q))
	return r.filter(func(v model.Venue) bool {
		return contains(v.Name, q) || contains(v.Place, q) || contains(v.Location, q)
	}), nil
}

func (r memVenues) filter(keep func(model.Venue) bool) []model.Venue {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := make([]model.Venue, 0)
	for _, v := range r.m.venues {
		if keep(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ---- shows ----

type memShows struct{ m *MemoryStore }

func (r memShows) Create(_ context.Context, s *model.Show) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.venues[s.VenueID]; !ok {
		return ErrVenueNotFound
	}
	s.ID = r.m.id()
	r.m.shows[s.ID] = *s
	return nil
}

func (r memShows) GetByID(_ context.Context, id uint64) (*model.Show, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	s, ok := r.m.shows[id]
	if !ok {
		return nil, ErrShowNotFound
	}
	return &s, nil
}

func (r memShows) List(_ context.Context) ([]model.Show, error) {
	return r.filter(func(model.Show) bool { return true }), nil
}

func (r memShows) ListByVenue(_ context.Context, venueID uint64) ([]model.Show, error) {
	return r.filter(func(s model.Show) bool { return s.VenueID == venueID }), nil
}

// Update holds the show's scope so a capacity change cannot interleave
// with a booking commit.
func (r memShows) Update(_ context.Context, s *model.Show) error {
	unlock := r.m.locks.Lock(s.ID)
	defer unlock()
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.shows[s.ID]; !ok {
		return ErrShowNotFound
	}
	if _, ok := r.m.venues[s.VenueID]; !ok {
		return ErrVenueNotFound
	}
	if s.Tickets < r.m.bookedLocked(s.ID) {
		return ErrConflict
	}
	r.m.shows[s.ID] = *s
	return nil
}

func (r memShows) Delete(_ context.Context, id uint64) error {
	unlock := r.m.locks.Lock(id)
	defer unlock()
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.shows[id]; !ok {
		return ErrShowNotFound
	}
	for _, b := range r.m.bookings {
		if b.ShowID == id {
			return ErrConflict
		}
	}
	delete(r.m.shows, id)
	return nil
}

func (r memShows) Search(_ context.Context, q string) ([]model.Show, error) {
	q = strings.ToLower(strings.TrimSpace(q))
	return r.filter(func(s model.Show) bool { return contains(s.Name, q) || contains(s.Tag, q) }), nil
}

func (r memShows) filter(keep func(model.Show) bool) []model.Show {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := make([]model.Show, 0)
	for _, s := range r.m.shows {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ---- bookings ----

type memBookings struct{ m *MemoryStore }

func (r memBookings) GetByID(_ context.Context, id uint64) (*model.Booking, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	b, ok := r.m.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return copyBooking(b), nil
}

func (r memBookings) ListByUser(_ context.Context, userID uint64) ([]model.Booking, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := make([]model.Booking, 0)
	for _, b := range r.m.bookings {
		if b.UserID == userID {
			out = append(out, *copyBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r memBookings) SetRating(_ context.Context, id uint64, rating int) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	b, ok := r.m.bookings[id]
	if !ok {
		return ErrBookingNotFound
	}
	b.Rating = &rating
	r.m.bookings[id] = b
	return nil
}

func (r memBookings) Availability(_ context.Context) (map[uint64]int, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := make(map[uint64]int, len(r.m.shows))
	for id, s := range r.m.shows {
		out[id] = s.Tickets
	}
	for _, b := range r.m.bookings {
		if _, ok := out[b.ShowID]; ok {
			out[b.ShowID] -= b.Tickets
		}
	}
	return out, nil
}

func (r memBookings) OccupancyByShow(_ context.Context) ([]model.Occupancy, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	idx := make(map[uint64]*model.Occupancy, len(r.m.shows))
	for id, s := range r.m.shows {
		idx[id] = &model.Occupancy{ID: id, Name: s.Name, Capacity: s.Tickets}
	}
	for _, b := range r.m.bookings {
		if o, ok := idx[b.ShowID]; ok {
			o.Booked += b.Tickets
			o.Bookings++
		}
	}
	return sortedOccupancy(idx), nil
}

func (r memBookings) OccupancyByVenue(_ context.Context) ([]model.Occupancy, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	idx := make(map[uint64]*model.Occupancy, len(r.m.venues))
	for id, v := range r.m.venues {
		idx[id] = &model.Occupancy{ID: id, Name: v.Name}
	}
	for _, s := range r.m.shows {
		if o, ok := idx[s.VenueID]; ok {
			o.Capacity += s.Tickets
		}
	}
	for _, b := range r.m.bookings {
		s, ok := r.m.shows[b.ShowID]
		if !ok {
			continue
		}
		if o, ok := idx[s.VenueID]; ok {
			o.Booked += b.Tickets
			o.Bookings++
		}
	}
	return sortedOccupancy(idx), nil
}

// ---- per-show scope ----

// InShowTx serializes fn with every other scope on the same show. Writes
// are buffered and applied under the state lock only when fn succeeds;
// the show is re-checked at that point so a concurrent cascade delete
// cannot leave an orphaned booking.
func (m *MemoryStore) InShowTx(ctx context.Context, showID uint64, fn func(tx ShowTx) error) error {
	unlock := m.locks.Lock(showID)
	defer unlock()

	m.mu.RLock()
	show, ok := m.shows[showID]
	m.mu.RUnlock()
	if !ok {
		return ErrShowNotFound
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memShowTx{m: m, show: show, touched: make(map[uint64]time.Time)}
	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.shows[showID]; !ok {
		return ErrShowNotFound
	}
	for _, b := range tx.pending {
		m.bookings[b.ID] = b
	}
	for uid, at := range tx.touched {
		if u, ok := m.users[uid]; ok {
			t := at
			u.LastBooked = &t
			m.users[uid] = u
		}
	}
	return nil
}

type memShowTx struct {
	m       *MemoryStore
	show    model.Show
	pending []model.Booking
	touched map[uint64]time.Time
}

func (t *memShowTx) Show() model.Show { return t.show }

func (t *memShowTx) Venue(_ context.Context) (*model.Venue, error) {
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	v, ok := t.m.venues[t.show.VenueID]
	if !ok {
		return nil, ErrVenueNotFound
	}
	return &v, nil
}

func (t *memShowTx) BookedTickets(_ context.Context) (int, error) {
	t.m.mu.RLock()
	n := t.m.bookedLocked(t.show.ID)
	t.m.mu.RUnlock()
	for _, b := range t.pending {
		n += b.Tickets
	}
	return n, nil
}

func (t *memShowTx) InsertBooking(_ context.Context, b *model.Booking) error {
	b.ID = t.m.id()
	t.pending = append(t.pending, *b)
	return nil
}

func (t *memShowTx) TouchLastBooked(_ context.Context, userID uint64, at time.Time) error {
	t.m.mu.RLock()
	_, ok := t.m.users[userID]
	t.m.mu.RUnlock()
	if !ok {
		return ErrUserNotFound
	}
	t.touched[userID] = at
	return nil
}

// bookedLocked sums committed tickets; the caller holds m.mu.
func (m *MemoryStore) bookedLocked(showID uint64) int {
	n := 0
	for _, b := range m.bookings {
		if b.ShowID == showID {
			n += b.Tickets
		}
	}
	return n
}

// keyedMutex hands out one mutex per show id and forgets it once no
// goroutine holds or waits on it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uint64]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uint64]*keyedEntry)}
}

// Lock blocks until the key is held and returns the matching unlock.
func (k *keyedMutex) Lock(key uint64) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func contains(s, lowerQ string) bool {
	return strings.Contains(strings.ToLower(s), lowerQ)
}

func copyBooking(b model.Booking) *model.Booking {
	if b.Rating != nil {
		r := *b.Rating
		b.Rating = &r
	}
	return &b
}

func sortedOccupancy(idx map[uint64]*model.Occupancy) []model.Occupancy {
	out := make([]model.Occupancy, 0, len(idx))
	for _, o := range idx {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
