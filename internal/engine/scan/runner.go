package scan

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/queue"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/session"
)

// defaultMaxAttempts bounds retries per job, the first attempt included.
const defaultMaxAttempts = 3

// Handler routes one popped job.
type Handler interface {
	HandleSearch(ctx context.Context, sess *session.Session, j queue.Job) error
	HandleDetail(ctx context.Context, sess *session.Session, j queue.Job) error
}

// Runner drives the frontier with a bounded worker pool. It tracks the
// number of jobs accepted but not yet finished; when that count drains
// to zero the queue is closed and the run ends.
type Runner struct {
	queue       *queue.Queue
	pool        *session.Pool
	stats       *Stats
	log         *zap.Logger
	workers     int
	maxAttempts int

	pending atomic.Int64

	// Backoff returns the pause before retry attempt n. Tests shorten
	// it; production code leaves the constructor default.
	Backoff func(attempt int) time.Duration
}

// NewRunner returns a runner with the given pool width.
func NewRunner(q *queue.Queue, pool *session.Pool, stats *Stats, workers int, log *zap.Logger) *Runner {
	if workers <= 0 {
		workers = 1
	}
	return &Runner{
		queue:       q,
		pool:        pool,
		stats:       stats,
		log:         log,
		workers:     workers,
		maxAttempts: defaultMaxAttempts,
		Backoff:     session.Backoff,
	}
}

// Push submits follow-up work, tracking accepted jobs in the pending
// count. Controllers and orchestrators enqueue through the runner so
// the run knows when the frontier has drained.
func (r *Runner) Push(j queue.Job) bool {
	if !r.queue.Push(j) {
		return false
	}
	r.pending.Add(1)
	return true
}

// Pending returns the number of jobs accepted but not yet finished.
func (r *Runner) Pending() int {
	return int(r.pending.Load())
}

// Run seeds the frontier and works it until it drains or ctx ends. The
// first job runs alone before the pool widens, so harvested credentials
// and session state are in place before fan-out.
func (r *Runner) Run(ctx context.Context, h Handler, seeds []queue.Job) error {
	accepted := 0
	for _, j := range seeds {
		if r.Push(j) {
			accepted++
		}
	}
	if accepted == 0 {
		return errors.New("scan: no work to seed")
	}
	r.log.Info("run started",
		zap.Int("seeds", accepted),
		zap.Int("workers", r.workers),
	)

	done := make(chan struct{})
	go r.progressLoop(done)
	defer close(done)

	// Bootstrap pass.
	if j, ok := r.queue.Pop(ctx); ok {
		r.handle(ctx, h, j)
	}

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				j, ok := r.queue.Pop(ctx)
				if !ok {
					return
				}
				r.handle(ctx, h, j)
			}
		}()
	}
	wg.Wait()

	r.log.Info("run finished",
		zap.Int64("pages", r.stats.Pages.Load()),
		zap.Int64("details", r.stats.Details.Load()),
		zap.Int64("extracted", r.stats.Extracted.Load()),
		zap.Int64("errors", r.stats.Errors.Load()),
		zap.Duration("elapsed", r.stats.Elapsed()),
	)
	return ctx.Err()
}

func (r *Runner) handle(ctx context.Context, h Handler, j queue.Job) {
	sess := r.pool.Acquire()

	var err error
	switch j.Kind {
	case queue.KindSearch:
		r.stats.Pages.Add(1)
		err = h.HandleSearch(ctx, sess, j)
	case queue.KindDetail:
		r.stats.Details.Add(1)
		err = h.HandleDetail(ctx, sess, j)
	}

	switch {
	case err == nil:
		sess.MarkGood()
		r.finish(j)

	case ctx.Err() != nil:
		// Shutdown: leave the job pending in the journal for resume.
		r.queue.Requeue(j)

	case errors.Is(err, ErrSessionUnusable):
		// The attempt never ran; retry on a fresh session without
		// consuming an attempt.
		r.queue.Requeue(j)

	case IsRetryable(err) && j.Attempts+1 < r.maxAttempts:
		r.stats.Retries.Add(1)
		j.Attempts++
		r.log.Debug("job retry",
			zap.String("kind", j.Kind.String()),
			zap.Int("attempt", j.Attempts),
			zap.Error(err),
		)
		r.sleep(ctx, r.Backoff(j.Attempts))
		r.queue.Requeue(j)

	default:
		r.stats.Errors.Add(1)
		r.log.Warn("job abandoned",
			zap.String("kind", j.Kind.String()),
			zap.Int("attempts", j.Attempts+1),
			zap.Error(err),
		)
		// Abandoned jobs stay pending in the journal so a later run can
		// redo them; only the in-memory count drains.
		r.drop(j)
	}
}

// finish marks the job done in the journal and drains the pending count.
func (r *Runner) finish(j queue.Job) {
	r.queue.Done(j)
	r.drop(j)
}

func (r *Runner) drop(_ queue.Job) {
	if r.pending.Add(-1) == 0 {
		r.queue.Close()
	}
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (r *Runner) progressLoop(done chan struct{}) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.log.Info("progress",
				zap.Int64("pages", r.stats.Pages.Load()),
				zap.Int64("found", r.stats.Found.Load()),
				zap.Int64("extracted", r.stats.Extracted.Load()),
				zap.Int64("errors", r.stats.Errors.Load()),
				zap.Int("queued", r.queue.Len()),
				zap.Int64("pending", r.pending.Load()),
				zap.Int("sessions", r.pool.Live()),
				zap.Duration("elapsed", r.stats.Elapsed()),
			)
		case <-done:
			return
		}
	}
}
