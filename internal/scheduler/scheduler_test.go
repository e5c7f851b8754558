package scheduler

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/showbook/internal/model"
	"github.com/iliyamo/showbook/internal/queue"
	"github.com/iliyamo/showbook/internal/repository"
)

type sinkRecorder struct {
	mu   sync.Mutex
	jobs []interface{}
}

func (s *sinkRecorder) Publish(_ context.Context, _ string, p interface{}) error {
	s.mu.Lock()
	s.jobs = append(s.jobs, p)
	s.mu.Unlock()
	return nil
}

func (s *sinkRecorder) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

var now = time.Date(2024, 6, 30, 8, 0, 0, 0, time.UTC)

func seed(t *testing.T) *repository.Store {
	t.Helper()
	ctx := context.Background()
	st := repository.NewMemoryStore().Store()
	require.NoError(t, st.Users.Create(ctx, &model.User{Email: "root@example.com", Role: model.RoleAdmin}))
	active := &model.User{Email: "active@example.com", Name: "active", Role: model.RoleUser}
	require.NoError(t, st.Users.Create(ctx, active))
	require.NoError(t, st.Users.Create(ctx, &model.User{Email: "never@example.com", Name: "never", Role: model.RoleUser}))
	stale := &model.User{Email: "stale@example.com", Name: "stale", Role: model.RoleUser}
	require.NoError(t, st.Users.Create(ctx, stale))

	v := &model.Venue{Name: "Globe", Place: "Bankside", Location: "London", Capacity: 10}
	require.NoError(t, st.Venues.Create(ctx, v))
	s := &model.Show{VenueID: v.ID, Name: "Hamlet", Tickets: 10, Price: 5}
	require.NoError(t, st.Shows.Create(ctx, s))

	for _, b := range []struct {
		user *model.User
		at   time.Time
	}{{active, now.Add(-24 * time.Hour)}, {stale, now.Add(-60 * 24 * time.Hour)}} {
		b := b
		require.NoError(t, st.Locker.InShowTx(ctx, s.ID, func(tx repository.ShowTx) error {
			if err := tx.InsertBooking(ctx, &model.Booking{UserID: b.user.ID, ShowID: s.ID, VenueID: v.ID, ShowName: "Hamlet", Tickets: 1, CreatedAt: b.at}); err != nil {
				return err
			}
			return tx.TouchLastBooked(ctx, b.user.ID, b.at)
		}))
	}
	return st
}

func TestSendReminders(t *testing.T) {
	rec := &sinkRecorder{}
	s := New(seed(t), rec, Config{ReminderAfter: 30 * 24 * time.Hour}, nil)
	s.now = func() time.Time { return now }

	n, err := s.SendReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	var emails []string
	for _, j := range rec.jobs {
		emails = append(emails, j.(queue.Reminder).Email)
	}
	assert.ElementsMatch(t, []string{"never@example.com", "stale@example.com"}, emails)
}

func TestSendReports(t *testing.T) {
	rec := &sinkRecorder{}
	s := New(seed(t), rec, Config{}, nil)

	n, err := s.SendReports(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	r := rec.jobs[0].(queue.Report)
	assert.Equal(t, 1, r.Bookings)
	assert.True(t, strings.HasPrefix(r.CSV, "booking_id,"))
}

func TestRunStopsOnCancel(t *testing.T) {
	rec := &sinkRecorder{}
	s := New(seed(t), rec, Config{ReminderAfter: time.Hour, ReminderEvery: 5 * time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return rec.len() > 0 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
