package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/stellar-oracle/love-oracle/internal/config"
	"github.com/stellar-oracle/love-oracle/internal/metrics"
)

// AllowListRefresher reloads the purchaser allow-list
type AllowListRefresher interface {
	Refresh(ctx context.Context) error
	Size() int
}

// SessionSweeper drops idle sessions
type SessionSweeper interface {
	Sweep(maxAge time.Duration) int
}

// Service handles scheduling of background maintenance
type Service struct {
	config    *config.Config
	allowList AllowListRefresher
	sessions  SessionSweeper
	cron      *cron.Cron
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, allowList AllowListRefresher, sessions SessionSweeper) *Service {
	return &Service{
		config:    cfg,
		allowList: allowList,
		sessions:  sessions,
		cron:      cron.New(cron.WithSeconds()),
	}
}

// Start registers the jobs and starts the cron runner
func (s *Service) Start() error {
	if s.config.AllowListURL != "" {
		if _, err := s.cron.AddFunc(s.config.AllowListSchedule, s.RefreshAllowList); err != nil {
			return err
		}
	}

	if _, err := s.cron.AddFunc(s.config.SessionSweepSchedule, s.SweepSessions); err != nil {
		return err
	}

	s.cron.Start()
	logrus.Infof("Scheduler started (allow-list: %q, session sweep: %q)", s.config.AllowListSchedule, s.config.SessionSweepSchedule)
	return nil
}

// RefreshAllowList reloads the remote allow-list and updates the size gauge
func (s *Service) RefreshAllowList() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := s.allowList.Refresh(ctx); err != nil {
		logrus.Errorf("Scheduled allow-list refresh failed: %v", err)
	}
	metrics.AllowListSize.Set(float64(s.allowList.Size()))
}

// SweepSessions removes sessions idle longer than the configured max age
func (s *Service) SweepSessions() {
	removed := s.sessions.Sweep(s.config.SessionMaxAge)
	if removed > 0 {
		logrus.Infof("Swept %d idle sessions", removed)
	}
}

// Stop stops the scheduler
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		logrus.Info("Scheduler stopped")
	}
}
