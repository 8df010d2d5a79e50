// Package jobs runs periodic maintenance: it purges expired idempotency
// records and closes interview sessions nobody has touched for a while.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-interview-backend/internal/repo"
)

// DefaultSchedule runs the sweep every minute.
const DefaultSchedule = "@every 1m"

var sweepRuns = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "maintenance_sweeps_total",
		Help: "Maintenance sweep runs by result.",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(sweepRuns)
}

// IdleSweeper closes idle live sessions and reports how many it closed.
type IdleSweeper interface {
	SweepIdle(now time.Time) int
}

// Result reports one sweep.
type Result struct {
	IdempotencyPurged int64
	SessionsClosed    int
}

// Sweeper schedules the maintenance sweep.
type Sweeper struct {
	DB       *gorm.DB
	Sessions IdleSweeper
	Logger   zerolog.Logger
	Schedule string
	Timeout  time.Duration
	Now      func() time.Time

	cron *cron.Cron
}

// NewSweeper returns a Sweeper on schedule (DefaultSchedule when empty).
// sessions may be nil.
func NewSweeper(db *gorm.DB, sessions IdleSweeper, schedule string, log zerolog.Logger) *Sweeper {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Sweeper{
		DB:       db,
		Sessions: sessions,
		Logger:   log,
		Schedule: schedule,
		Timeout:  30 * time.Second,
		Now:      time.Now,
		cron:     cron.New(),
	}
}

// Start registers the sweep and starts the scheduler.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			s.Logger.Error().Err(err).Msg("sweep_failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweep %q: %w", s.Schedule, err)
	}
	s.cron.Start()
	s.Logger.Info().Str("schedule", s.Schedule).Msg("sweeper_started")
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.Logger.Info().Msg("sweeper_stopped")
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	now := s.Now().UTC()
	var res Result
	if s.Sessions != nil {
		res.SessionsClosed = s.Sessions.SweepIdle(now)
	}
	n, err := repo.DeleteExpiredIdempotency(ctx, s.DB, now)
	if err != nil {
		sweepRuns.WithLabelValues("error").Inc()
		return res, fmt.Errorf("purge idempotency: %w", err)
	}
	res.IdempotencyPurged = n
	sweepRuns.WithLabelValues("ok").Inc()
	if n > 0 || res.SessionsClosed > 0 {
		s.Logger.Info().
			Int64("idempotency_purged", n).
			Int("sessions_closed", res.SessionsClosed).
			Msg("sweep")
	}
	return res, nil
}
