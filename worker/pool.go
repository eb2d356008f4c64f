// Package worker provides a consumer pool over the squeue engine: a
// set of goroutines that claim items, run them through a handler, and
// acknowledge the outcome, plus a background loop reclaiming expired
// leases left behind by crashed workers.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/belsrc/squeue"
	"github.com/belsrc/squeue/backoff"
	"github.com/belsrc/squeue/queue"
)

// Handler processes one claimed item. A nil return acknowledges the
// item as complete; an error records a failure, which unlocks the item
// for another attempt or dead-letters it once the retry budget is
// spent. The context is cancelled when the pool shuts down hard.
type Handler func(ctx context.Context, id string, message []byte) error

// Pool runs a fixed number of claim loops against one queue. All
// coordination between pools — including pools in other processes —
// happens through the store, so running several pools over the same
// collection is the normal scale-out path.
type Pool struct {
	queue   *queue.Queue
	handler Handler

	concurrency     int
	idle            backoff.Strategy
	lease           time.Duration
	reclaimInterval time.Duration
	limiter         *rate.Limiter
	metrics         *Metrics
	logger          *slog.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// Option configures a Pool.
type Option func(*Pool)

// WithConcurrency sets the number of concurrent claim loops.
func WithConcurrency(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithIdleBackoff sets the delay strategy between empty polls.
func WithIdleBackoff(s backoff.Strategy) Option {
	return func(p *Pool) { p.idle = s }
}

// WithLease sets the lease window. Items locked longer than this are
// considered abandoned and reclaimed by the pool's reclaim loop.
func WithLease(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.lease = d
		}
	}
}

// WithReclaimInterval sets how often the reclaim loop runs. A zero
// value disables the loop (run the maintenance scheduler instead).
func WithReclaimInterval(d time.Duration) Option {
	return func(p *Pool) { p.reclaimInterval = d }
}

// WithRateLimit caps sustained claims per second across the pool with
// a token bucket. Zero perSec disables limiting.
func WithRateLimit(perSec float64, burst int) Option {
	return func(p *Pool) {
		if perSec <= 0 {
			p.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

// WithMetrics attaches lifecycle counters.
func WithMetrics(m *Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// WithLogger sets the logger for the pool.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) { p.logger = logger }
}

// NewPool creates a worker pool over the given queue and handler.
func NewPool(q *queue.Queue, handler Handler, opts ...Option) *Pool {
	p := &Pool{
		queue:           q,
		handler:         handler,
		concurrency:     10,
		idle:            backoff.DefaultStrategy(),
		lease:           30 * time.Second,
		reclaimInterval: 30 * time.Second,
		logger:          slog.Default(),
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the claim loops and the reclaim loop. It returns
// immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	select {
	case <-p.stopCh:
		// Restart after a Stop: the old channel is closed.
		p.stopCh = make(chan struct{})
	default:
	}

	p.logger.Info("worker pool starting",
		slog.Int("concurrency", p.concurrency),
		slog.Duration("lease", p.lease),
	)

	stopCh := p.stopCh
	for range p.concurrency {
		p.wg.Add(1)
		go p.claimLoop(stopCh)
	}

	if p.reclaimInterval > 0 {
		p.wg.Add(1)
		go p.reclaimLoop(stopCh)
	}

	return nil
}

// Stop signals all loops to stop and waits for them to finish or for
// the context to expire.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out")
		return ctx.Err()
	}
}

// claimLoop is run by each worker goroutine. It claims one item at a
// time and acknowledges it before claiming the next, so a worker never
// holds more than one lease.
func (p *Pool) claimLoop(stopCh <-chan struct{}) {
	defer p.wg.Done()

	idleAttempts := 0
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		if p.limiter != nil {
			// The reservation is the permission for the next claim.
			// Cancelling it on shutdown returns the token, so a
			// restarted pool does not inherit a drained bucket.
			r := p.limiter.Reserve()
			if d := r.Delay(); d > 0 {
				p.sleep(d, stopCh)
			}
			select {
			case <-stopCh:
				r.Cancel()
				return
			default:
			}
		}

		claimed, err := p.queue.Claim(context.Background())
		if err != nil {
			if errors.Is(err, squeue.ErrNoItem) {
				idleAttempts++
				p.sleep(p.idle.Delay(idleAttempts), stopCh)
				continue
			}
			p.logger.Error("claim error", slog.String("error", err.Error()))
			idleAttempts++
			p.sleep(p.idle.Delay(idleAttempts), stopCh)
			continue
		}

		idleAttempts = 0
		p.metrics.claimed()
		p.process(claimed, stopCh)
	}
}

// process runs the handler and acknowledges the outcome. Handler
// panics are not recovered: a worker that cannot run its handler
// should crash and let the lease reclaim return the item.
func (p *Pool) process(claimed *queue.Claimed, stopCh <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	start := time.Now()
	handlerErr := p.handler(ctx, claimed.ID, claimed.Message)
	p.metrics.observeHandler(time.Since(start))

	if handlerErr != nil {
		p.logger.Debug("handler failed",
			slog.String("item_id", claimed.ID),
			slog.String("error", handlerErr.Error()),
		)
		p.metrics.failed()
		if err := p.queue.Fail(context.Background(), claimed.ID); err != nil {
			p.logger.Error("failed to record failure",
				slog.String("item_id", claimed.ID),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	if err := p.queue.Complete(context.Background(), claimed.ID); err != nil {
		p.logger.Error("failed to record completion",
			slog.String("item_id", claimed.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	p.metrics.completed()
}

// reclaimLoop periodically returns expired leases to the pending pool.
func (p *Pool) reclaimLoop(stopCh <-chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.reclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			n, err := p.queue.ReclaimExpired(context.Background(), p.lease)
			if err != nil {
				p.logger.Error("lease reclaim error", slog.String("error", err.Error()))
				continue
			}
			p.metrics.reclaimed(n)
		}
	}
}

func (p *Pool) sleep(d time.Duration, stopCh <-chan struct{}) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-stopCh:
	}
}
