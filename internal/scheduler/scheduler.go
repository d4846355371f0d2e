package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"mailminer/core/domain"
	"mailminer/pkg/apperr"
)

// Runner starts one pipeline run.
type Runner interface {
	Run(ctx context.Context) (*domain.ExecutionReport, error)
}

// Scheduler triggers pipeline runs on a fixed interval.
type Scheduler struct {
	runner     Runner
	interval   time.Duration
	runTimeout time.Duration
	log        zerolog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

func New(runner Runner, interval time.Duration, log zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		runner:     runner,
		interval:   interval,
		runTimeout: 10 * time.Minute,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Start launches the scheduling loop. The first run fires immediately.
func (s *Scheduler) Start() {
	s.log.Info().
		Dur("interval", s.interval).
		Msg("starting scheduler")
	go s.run()
}

// Stop cancels the loop and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	s.log.Info().Msg("stopping scheduler")
	s.cancel()
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)

	s.runOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.runOnce()
		}
	}
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(s.ctx, s.runTimeout)
	defer cancel()

	report, err := s.runner.Run(ctx)
	if err != nil {
		if apperr.IsRunInProgress(err) {
			s.log.Info().Msg("run skipped, another run holds the lock")
			return
		}
		s.log.Error().Err(err).Msg("scheduled run failed")
		if report == nil {
			return
		}
	}

	s.log.Info().
		Str("status", string(report.Status)).
		Int("retrieved", report.RetrievedEmails).
		Int("action_items", report.GeneratedActionItems).
		Int("failed", report.FailedEmails).
		Msg("scheduled run finished")
}
