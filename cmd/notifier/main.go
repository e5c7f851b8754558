// Command notifier consumes booking and notification jobs from RabbitMQ
// and runs the reminder and report schedules.
package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/showbook/internal/config"
	"github.com/iliyamo/showbook/internal/database"
	"github.com/iliyamo/showbook/internal/logger"
	"github.com/iliyamo/showbook/internal/queue"
	"github.com/iliyamo/showbook/internal/repository"
	"github.com/iliyamo/showbook/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.RabbitURL == "" {
		log.Fatal("RABBITMQ_URL is required")
	}
	zl, err := logger.New(cfg.LogPath, "notifier.log", cfg.LogDebug)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	out, err := logger.Rotating(cfg.LogPath, "notifications.log")
	if err != nil {
		zl.Fatal("notification log", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	notifier := queue.NewNotifier(queue.NewLogMailer(out), zl)
	g.Go(func() error {
		return queue.NewConsumer(cfg.RabbitURL, notifier, zl).Run(ctx)
	})

	if cfg.SchedulerEnabled {
		if cfg.StoreDriver == "memory" {
			zl.Warn("scheduler disabled: the memory store is not shared with the API")
		} else {
			db, err := database.Open(ctx, database.DSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName))
			if err != nil {
				zl.Fatal("database", zap.Error(err))
			}
			defer db.Close()
			pub := queue.NewPublisher(cfg.RabbitURL, zl)
			defer pub.Close()
			s := scheduler.New(repository.NewMySQLStore(db), pub, scheduler.Config{
				ReminderAfter: cfg.ReminderAfter,
				ReminderEvery: cfg.ReminderEvery,
				ReportEvery:   cfg.ReportEvery,
			}, zl)
			g.Go(func() error { return s.Run(ctx) })
		}
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		zl.Error("notifier stopped", zap.Error(err))
	}
}
