// Package sweeper closes expired sessions created by the configured wallet so
// their account rent returns to the creator.
package sweeper

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/voting_client/internal/chain"
	domain "github.com/R3E-Network/voting_client/internal/domain/voting"
	"github.com/R3E-Network/voting_client/internal/metrics"
	"github.com/R3E-Network/voting_client/internal/voting"
	"github.com/R3E-Network/voting_client/pkg/logger"
)

// DefaultSchedule runs a sweep every ten minutes.
const DefaultSchedule = "@every 10m"

// Config configures a Sweeper.
type Config struct {
	Controller *voting.Controller
	Wallet     chain.Wallet
	// Schedule is a standard five-field cron expression or a descriptor such
	// as "@every 5m".
	Schedule string
	Logger   *logger.Logger
}

// Report summarizes one sweep.
type Report struct {
	Expired int
	Closed  []string
	Failed  map[string]error
}

// Sweeper periodically closes the wallet's expired sessions.
type Sweeper struct {
	ctrl     *voting.Controller
	wallet   chain.Wallet
	schedule string
	log      *logger.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// New creates a Sweeper. The wallet must be able to sign, since only the
// creator may close a session.
func New(cfg Config) (*Sweeper, error) {
	if cfg.Controller == nil {
		return nil, fmt.Errorf("sweeper: controller is required")
	}
	if !cfg.Wallet.CanSign() {
		return nil, fmt.Errorf("sweeper: wallet cannot sign")
	}
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("sweeper: invalid schedule %q: %w", schedule, err)
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("sweeper")
	}
	return &Sweeper{
		ctrl:     cfg.Controller,
		wallet:   cfg.Wallet,
		schedule: schedule,
		log:      log,
	}, nil
}

// RunOnce closes every expired session whose creator is the wallet. A failed
// close is logged and recorded in the report; the sweep continues.
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	report := Report{Failed: make(map[string]error)}

	sessions, err := s.ctrl.Repository().FetchAll(ctx)
	if err != nil {
		return report, err
	}

	now := s.ctrl.Now()
	owner := s.wallet.PublicKey.String()
	for _, sess := range sessions {
		if sess.IsOpenAt(now) || sess.Creator != owner {
			continue
		}
		report.Expired++

		out := s.ctrl.Execute(ctx, domain.OperationClose, voting.CloseInput{SessionAddress: sess.Address}, s.wallet)
		if err := out.Err(); err != nil {
			metrics.RecordSweep(false)
			report.Failed[sess.Address] = err
			s.log.WithContext(ctx).WithError(err).WithField("session", sess.Address).Warn("sweep close failed")
			continue
		}
		metrics.RecordSweep(true)
		report.Closed = append(report.Closed, sess.Address)
	}

	s.log.WithContext(ctx).WithFields(map[string]interface{}{
		"expired": report.Expired,
		"closed":  len(report.Closed),
		"failed":  len(report.Failed),
	}).Info("sweep finished")
	return report, nil
}

// Start schedules sweeps until Stop is called. Overlapping runs are skipped.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("sweeper: already started")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.WithError(err).Warn("sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("sweeper: schedule: %w", err)
	}
	c.Start()
	s.cron = c
	s.log.WithField("schedule", s.schedule).Info("sweeper started")
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
}
