// Package maintenance schedules the queue's background housekeeping:
// periodic lease reclaim and, optionally, purges of completed and dead
// items. One scheduler per deployment is enough, but running several is
// safe — every underlying operation only touches documents that still
// match its predicate at execution time.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/belsrc/squeue/queue"
)

// Scheduler drives reclaim and purge runs on cron schedules.
type Scheduler struct {
	queue *queue.Queue
	cron  *cron.Cron

	lease         time.Duration
	reclaimSpec   string
	purgeSpec     string
	purgeComplete bool
	purgeDead     bool
	logger        *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLease sets the lease window used for reclaim runs.
func WithLease(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.lease = d
		}
	}
}

// WithReclaimSpec sets the cron spec for lease reclaim runs.
func WithReclaimSpec(spec string) Option {
	return func(s *Scheduler) { s.reclaimSpec = spec }
}

// WithPurgeSpec sets the cron spec for purge runs.
func WithPurgeSpec(spec string) Option {
	return func(s *Scheduler) { s.purgeSpec = spec }
}

// PurgeCompleted enables deletion of completed items on the purge
// schedule. Usually unnecessary — the store's TTL expiry is the
// primary cleanup path — but useful when the retention window must be
// shortcut.
func PurgeCompleted() Option {
	return func(s *Scheduler) { s.purgeComplete = true }
}

// PurgeDead enables deletion of dead items on the purge schedule. Dead
// items have no automatic expiry; without this (or a manual purge)
// they are retained indefinitely for inspection.
func PurgeDead() Option {
	return func(s *Scheduler) { s.purgeDead = true }
}

// WithLogger sets the logger for the scheduler.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// New creates a Scheduler over the given queue.
func New(q *queue.Queue, opts ...Option) *Scheduler {
	s := &Scheduler{
		queue:       q,
		cron:        cron.New(),
		lease:       30 * time.Second,
		reclaimSpec: "@every 30s",
		purgeSpec:   "@daily",
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the cron entries and launches the scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.reclaimSpec, s.runReclaim); err != nil {
		return err
	}

	if s.purgeComplete || s.purgeDead {
		if _, err := s.cron.AddFunc(s.purgeSpec, s.runPurge); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("maintenance scheduler started",
		slog.String("reclaim_spec", s.reclaimSpec),
		slog.Duration("lease", s.lease),
		slog.Bool("purge_completed", s.purgeComplete),
		slog.Bool("purge_dead", s.purgeDead),
	)
	return nil
}

// Stop halts the scheduler and waits for in-flight runs to finish or
// the context to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runReclaim() {
	n, err := s.queue.ReclaimExpired(context.Background(), s.lease)
	if err != nil {
		s.logger.Error("reclaim run failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		s.logger.Info("reclaim run finished", slog.Int64("reclaimed", n))
	}
}

// runPurge deletes terminal items. The two purges are independent
// predicates, so they run concurrently.
func (s *Scheduler) runPurge() {
	var g errgroup.Group

	if s.purgeComplete {
		g.Go(func() error {
			n, err := s.queue.PurgeCompleted(context.Background())
			if err != nil {
				return err
			}
			if n > 0 {
				s.logger.Info("purged completed items", slog.Int64("count", n))
			}
			return nil
		})
	}

	if s.purgeDead {
		g.Go(func() error {
			n, err := s.queue.PurgeDead(context.Background())
			if err != nil {
				return err
			}
			if n > 0 {
				s.logger.Info("purged dead items", slog.Int64("count", n))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Error("purge run failed", slog.String("error", err.Error()))
	}
}

// RunOnce executes a reclaim and any enabled purges immediately,
// outside the cron schedule. Handy for tests and operational scripts.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if _, err := s.queue.ReclaimExpired(ctx, s.lease); err != nil {
		return err
	}

	var g errgroup.Group
	if s.purgeComplete {
		g.Go(func() error {
			_, err := s.queue.PurgeCompleted(ctx)
			return err
		})
	}
	if s.purgeDead {
		g.Go(func() error {
			_, err := s.queue.PurgeDead(ctx)
			return err
		})
	}
	return g.Wait()
}
