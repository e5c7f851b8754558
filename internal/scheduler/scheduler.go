// Package scheduler publishes periodic notification jobs: reminders for
// users who have not booked recently and booking activity reports.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/showbook/internal/model"
	"github.com/iliyamo/showbook/internal/queue"
	"github.com/iliyamo/showbook/internal/report"
	"github.com/iliyamo/showbook/internal/repository"
)

// Config sets the job cadence. A zero interval disables that job.
type Config struct {
	ReminderAfter time.Duration
	ReminderEvery time.Duration
	ReportEvery   time.Duration
}

type Scheduler struct {
	users    repository.UserRepository
	bookings repository.BookingRepository
	sink     queue.Sink
	cfg      Config
	log      *zap.Logger
	now      func() time.Time
}

func New(store *repository.Store, sink queue.Sink, cfg Config, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		users:    store.Users,
		bookings: store.Bookings,
		sink:     sink,
		cfg:      cfg,
		log:      log.With(zap.String("component", "scheduler")),
		now:      time.Now,
	}
}

// Run fires each job on its own ticker until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	remind := tick(s.cfg.ReminderEvery)
	reports := tick(s.cfg.ReportEvery)
	defer stop(remind)
	defer stop(reports)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-channel(remind):
			if n, err := s.SendReminders(ctx); err != nil {
				s.log.Error("reminder run failed", zap.Error(err))
			} else {
				s.log.Info("reminders queued", zap.Int("count", n))
			}
		case <-channel(reports):
			if n, err := s.SendReports(ctx); err != nil {
				s.log.Error("report run failed", zap.Error(err))
			} else {
				s.log.Info("reports queued", zap.Int("count", n))
			}
		}
	}
}

// SendReminders queues a reminder for every user whose last booking is
// older than ReminderAfter, or who never booked.
func (s *Scheduler) SendReminders(ctx context.Context) (int, error) {
	idle, err := s.users.ListIdle(ctx, model.RoleUser, s.now().Add(-s.cfg.ReminderAfter))
	if err != nil {
		return 0, fmt.Errorf("list idle users: %w", err)
	}
	n := 0
	for _, u := range idle {
		ev := queue.Reminder{UserID: u.ID, Email: u.Email, Name: u.Name, LastBooked: u.LastBooked}
		if err := s.sink.Publish(ctx, queue.KindReminder, ev); err != nil {
			s.log.Warn("reminder publish failed", zap.Uint64("user_id", u.ID), zap.Error(err))
			continue
		}
		n++
	}
	return n, nil
}

// SendReports queues a CSV of each user's bookings. Users without
// bookings are skipped.
func (s *Scheduler) SendReports(ctx context.Context) (int, error) {
	users, err := s.users.ListByRole(ctx, model.RoleUser)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}
	n := 0
	for _, u := range users {
		list, err := s.bookings.ListByUser(ctx, u.ID)
		if err != nil {
			return n, fmt.Errorf("list bookings of user %d: %w", u.ID, err)
		}
		if len(list) == 0 {
			continue
		}
		csv, err := report.BookingsCSV(list)
		if err != nil {
			return n, err
		}
		ev := queue.Report{UserID: u.ID, Email: u.Email, Name: u.Name, Bookings: len(list), CSV: csv}
		if err := s.sink.Publish(ctx, queue.KindReport, ev); err != nil {
			s.log.Warn("report publish failed", zap.Uint64("user_id", u.ID), zap.Error(err))
			continue
		}
		n++
	}
	return n, nil
}

func tick(d time.Duration) *time.Ticker {
	if d <= 0 {
		return nil
	}
	return time.NewTicker(d)
}

// channel returns nil for a disabled ticker; receiving from it blocks forever.
func channel(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func stop(t *time.Ticker) {
	if t != nil {
		t.Stop()
	}
}
