package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DepartedSweeper closes reservations whose departure has passed
type DepartedSweeper interface {
	CompleteDepartedReservations(ctx context.Context) (int, error)
}

// CronService manages scheduled background jobs
type CronService struct {
	cron     *cron.Cron
	sweeper  DepartedSweeper
	schedule string
	logger   *logrus.Logger
}

// NewCronService creates a new CronService.
// schedule uses the six-field format: second minute hour day month weekday.
func NewCronService(sweeper DepartedSweeper, schedule string, logger *logrus.Logger) *CronService {
	return &CronService{
		cron:     cron.New(cron.WithSeconds()),
		sweeper:  sweeper,
		schedule: schedule,
		logger:   logger,
	}
}

// Start starts all cron jobs
func (s *CronService) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.completeDepartedJob); err != nil {
		return fmt.Errorf("failed to schedule departed reservations job: %w", err)
	}
	s.logger.WithField("schedule", s.schedule).Info("Scheduled: complete departed reservations")

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop stops the scheduler and waits for a running job to finish
func (s *CronService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

// RunNow runs the sweep immediately and returns the number of reservations closed
func (s *CronService) RunNow(ctx context.Context) (int, error) {
	return s.sweeper.CompleteDepartedReservations(ctx)
}

func (s *CronService) completeDepartedJob() {
	start := time.Now()

	closed, err := s.sweeper.CompleteDepartedReservations(context.Background())
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Failed to complete departed reservations")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"closed":   closed,
		"duration": time.Since(start).String(),
	}).Info("[CRON] Completed departed reservations")
}
