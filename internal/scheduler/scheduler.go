// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// KycSweeper closes expired verification sessions.
type KycSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

type Scheduler struct {
	cron *cron.Cron
	kyc  KycSweeper
	spec string
	log  *slog.Logger
}

// New returns a scheduler that sweeps KYC sessions on spec, a cron
// expression or descriptor such as "@every 15m".
func New(kyc KycSweeper, spec string, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		kyc:  kyc,
		spec: spec,
		log:  log,
	}
}

// Start registers the jobs and starts the cron loop. Jobs run with ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.sweepKyc(ctx) }); err != nil {
		return fmt.Errorf("schedule kyc sweep %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.log.Info("scheduler started", "kyc_sweep", s.spec)
	return nil
}

func (s *Scheduler) sweepKyc(ctx context.Context) {
	n, err := s.kyc.SweepExpired(ctx)
	if err != nil {
		s.log.Error("kyc sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.log.Info("expired kyc sessions closed", "count", n)
	}
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}
