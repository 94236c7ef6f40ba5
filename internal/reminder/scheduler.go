package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Sender interface {
	SendDayReminders(ctx context.Context, day time.Time) (int, error)
}

// Scheduler sends reminders for the next UTC day on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	sender  Sender
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

func NewScheduler(sender Sender, spec string, logger *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		sender:  sender,
		logger:  logger,
		timeout: 5 * time.Minute,
		now:     time.Now,
	}
	if _, err := s.cron.AddFunc(spec, s.RunOnce); err != nil {
		return nil, fmt.Errorf("schedule reminder job %q: %w", spec, err)
	}
	return s, nil
}

// RunOnce sends reminders for tomorrow's active bookings.
func (s *Scheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	day := s.now().UTC().AddDate(0, 0, 1)
	start := time.Now()

	sent, err := s.sender.SendDayReminders(ctx, day)
	if err != nil {
		s.logger.Error("reminder run failed", zap.String("day", day.Format("2006-01-02")), zap.Error(err))
		return
	}
	s.logger.Info("reminder run complete",
		zap.String("day", day.Format("2006-01-02")),
		zap.Int("sent", sent),
		zap.Duration("took", time.Since(start)),
	)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for a running job, or until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
