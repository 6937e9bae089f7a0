package scheduler

import (
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/i474232898/weather-dashboard/internal/weather"
)

// Triggerer starts a collection cycle in the background.
type Triggerer interface {
	Trigger(trigger weather.Trigger) string
}

// Scheduler periodically starts collection cycles.
type Scheduler struct {
	scheduler *gocron.Scheduler
	target    Triggerer
	interval  time.Duration
	logger    *zap.Logger
}

// New creates a new Scheduler. A zero interval disables it.
func New(interval time.Duration, target Triggerer, logger *zap.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		target:    target,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the refresh job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.logger.Info("scheduler: refresh interval not set; auto-refresh disabled")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).WaitForSchedule().Do(func() {
		id := s.target.Trigger(weather.TriggerSchedule)
		s.logger.Info("scheduler: started refresh cycle", zap.String("cycle", id))
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// Running reports whether jobs are being scheduled.
func (s *Scheduler) Running() bool {
	return s.scheduler.IsRunning()
}
