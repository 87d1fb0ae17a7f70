package escalation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ruteri/heirloom/interfaces"
	"github.com/ruteri/heirloom/metrics"
	"go.uber.org/atomic"
)

const (
	DefaultSchedulerInterval = time.Hour
	DefaultEntityTimeout     = 30 * time.Second
)

type SchedulerConfig struct {
	// Interval between runs. Defaults to one hour.
	Interval time.Duration
	// EntityTimeout bounds the store and messaging calls made for one entity.
	EntityTimeout time.Duration
}

// RunStats summarizes one scheduler run.
type RunStats struct {
	Activated  int
	Evaluated  int
	Dispatched int
	Failed     int
	Skipped    bool
}

// Scheduler periodically drives every live entity through the Machine.
//
// Entity state, not the schedule, decides what happens: running twice at the
// same instant sends nothing the second time. Several processes may therefore
// share a store. Within a process, a run that starts while another is still in
// flight is skipped.
type Scheduler struct {
	machine *Machine
	repo    Repository
	clock   clock.Clock
	cfg     SchedulerConfig
	log     *slog.Logger
	metrics *metrics.Recorder

	running atomic.Bool
}

func NewScheduler(machine *Machine, repo Repository, clk clock.Clock, cfg SchedulerConfig, log *slog.Logger, rec *metrics.Recorder) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSchedulerInterval
	}
	if cfg.EntityTimeout <= 0 {
		cfg.EntityTimeout = DefaultEntityTimeout
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		machine: machine,
		repo:    repo,
		clock:   clk,
		cfg:     cfg,
		log:     log,
		metrics: rec,
	}
}

// Run executes a run immediately and then on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := s.clock.Ticker(s.cfg.Interval)
	defer ticker.Stop()

	s.log.Info("Scheduler started", slog.Duration("interval", s.cfg.Interval))
	s.runLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

func (s *Scheduler) runLogged(ctx context.Context) {
	stats, err := s.RunOnce(ctx)
	if err != nil {
		s.log.Warn("Scheduler run interrupted", "err", err)
		return
	}
	if stats.Skipped {
		s.log.Info("Scheduler run skipped, previous run still in flight")
		return
	}
	s.log.Info("Scheduler run completed",
		slog.Int("activated", stats.Activated),
		slog.Int("evaluated", stats.Evaluated),
		slog.Int("dispatched", stats.Dispatched),
		slog.Int("failed", stats.Failed))
}

// RunOnce activates overdue heartbeats, then evaluates the entities of every
// active stage in stage order. Entities are listed up front but each is
// reloaded by Tick before it is evaluated. Per-entity failures are logged and counted;
// only cancellation of ctx ends the run early, between entities.
func (s *Scheduler) RunOnce(ctx context.Context) (RunStats, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.SchedulerRun("skipped", 0)
		return RunStats{Skipped: true}, nil
	}
	defer s.running.Store(false)

	start := s.clock.Now()
	var stats RunStats

	err := s.activateOverdue(ctx, &stats)
	if err == nil {
		// stages past the policy are scanned too, for entities left there by a
		// longer policy
		for stage := 1; stage <= MaxStages; stage++ {
			if err = s.processStatus(ctx, ActiveStatus(stage), &stats); err != nil {
				break
			}
		}
	}

	if err != nil {
		s.metrics.SchedulerRun("cancelled", s.clock.Since(start))
		return stats, err
	}
	s.metrics.SchedulerRun("completed", s.clock.Since(start))
	return stats, nil
}

func (s *Scheduler) activateOverdue(ctx context.Context, stats *RunStats) error {
	armed, err := s.repo.ListByStatus(ctx, StatusArmed)
	if err != nil {
		s.log.Error("Failed to list armed entities", "err", err)
		s.metrics.EntityError()
		stats.Failed++
		return ctx.Err()
	}
	s.metrics.SetEntityCount(string(StatusArmed), len(armed))

	now := s.clock.Now()
	for _, e := range armed {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.Overdue(now) {
			continue
		}

		ectx, cancel := context.WithTimeout(ctx, s.cfg.EntityTimeout)
		_, err := s.machine.Activate(ectx, e)
		cancel()
		if err != nil {
			s.entityFailed(e, err, stats)
			continue
		}
		stats.Activated++
		s.log.Info("Heartbeat missed, escalation activated",
			slog.String("entity_id", e.ID),
			slog.Time("deadline", e.CheckInDeadline()))
	}
	return nil
}

func (s *Scheduler) processStatus(ctx context.Context, status Status, stats *RunStats) error {
	entities, err := s.repo.ListByStatus(ctx, status)
	if err != nil {
		s.log.Error("Failed to list entities", slog.String("status", string(status)), "err", err)
		s.metrics.EntityError()
		stats.Failed++
		return ctx.Err()
	}
	s.metrics.SetEntityCount(string(status), len(entities))

	for _, e := range entities {
		if err := ctx.Err(); err != nil {
			return err
		}

		ectx, cancel := context.WithTimeout(ctx, s.cfg.EntityTimeout)
		updated, err := s.machine.Tick(ectx, e)
		cancel()

		stats.Evaluated++
		if sentMessage(e, updated) {
			stats.Dispatched++
		}
		if err != nil {
			s.entityFailed(e, err, stats)
		}
	}
	return nil
}

func (s *Scheduler) entityFailed(e *Entity, err error, stats *RunStats) {
	stats.Failed++
	s.metrics.EntityError()

	level := slog.LevelError
	if errors.Is(err, interfaces.ErrMessagingFailure) ||
		errors.Is(err, interfaces.ErrStoreUnavailable) ||
		errors.Is(err, interfaces.ErrConcurrentUpdate) {
		level = slog.LevelWarn
	}
	s.log.Log(context.Background(), level, "Escalation step failed, will retry next run",
		slog.String("entity_id", e.ID),
		slog.String("status", string(e.Status())),
		"err", err)
}

func sentMessage(before, after *Entity) bool {
	a, ok := after.State.(Active)
	if !ok || a.NeverSent() {
		return false
	}
	b, ok := before.State.(Active)
	return !ok || b.Stage != a.Stage || !b.LastSentAt.Equal(a.LastSentAt)
}
