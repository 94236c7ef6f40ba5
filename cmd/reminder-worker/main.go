package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/hackgods/doctor-appointment-booking/internal/app"
	"github.com/hackgods/doctor-appointment-booking/internal/booking"
	"github.com/hackgods/doctor-appointment-booking/internal/config"
	"github.com/hackgods/doctor-appointment-booking/internal/logger"
	"github.com/hackgods/doctor-appointment-booking/internal/reminder"
)

func main() {
	once := flag.Bool("once", false, "send reminders for tomorrow and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Env).Named("reminder-worker")
	defer func() { _ = log.Sync() }()

	log.Info("reminder-worker starting up", zap.String("schedule", cfg.ReminderCron), zap.String("store", cfg.StoreDriver))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := app.OpenStore(rootCtx, cfg, log)
	if err != nil {
		log.Fatal("store connection error", zap.Error(err))
	}
	defer store.Close()

	notifier := app.OpenNotifier(cfg, log)
	defer func() {
		if err := notifier.Close(); err != nil {
			log.Warn("error closing notifier", zap.Error(err))
		}
	}()

	// reminders never create bookings, so no slot locker is needed
	svc := booking.NewService(store.Repo, nil, notifier, log.Named("booking"), cfg)

	scheduler, err := reminder.NewScheduler(svc, cfg.ReminderCron, log)
	if err != nil {
		log.Fatal("invalid reminder schedule", zap.Error(err))
	}

	if *once {
		scheduler.RunOnce()
		return
	}

	scheduler.Start()
	<-rootCtx.Done()

	log.Info("shutdown signal received, stopping reminder worker")
	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	scheduler.Stop(stopCtx)
}
