package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Journal persists queue mutations so an interrupted run can resume.
// Implementations must tolerate repeated JobAdded calls for the same
// identity (retries re-journal their attempt count).
type Journal interface {
	JobAdded(identity string, j Job) error
	JobDone(identity string) error
}

// Queue is a concurrency-safe deque of jobs with identity-based
// submission dedup. Priority jobs go to the front, everything else to
// the back. Journaling is best-effort: a journal failure is logged and
// the in-memory run proceeds.
type Queue struct {
	mu     sync.Mutex
	jobs   []Job
	seen   map[string]struct{}
	closed bool

	wake chan struct{}
	done chan struct{}

	journal Journal
	log     *zap.Logger
}

// New returns an empty queue. journal may be nil.
func New(journal Journal, log *zap.Logger) *Queue {
	return &Queue{
		seen:    make(map[string]struct{}),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		journal: journal,
		log:     log,
	}
}

// Push submits a job, reporting whether it was accepted. A job whose
// identity has been seen before is dropped: enqueueing is idempotent.
func (q *Queue) Push(j Job) bool {
	id := j.Identity()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if _, dup := q.seen[id]; dup {
		q.mu.Unlock()
		return false
	}
	q.seen[id] = struct{}{}
	q.insert(j)
	q.mu.Unlock()

	q.journalAdd(id, j)
	q.signal()
	return true
}

// Requeue puts a previously accepted job back on the front of the
// queue, bypassing the identity check. Used for retries.
func (q *Queue) Requeue(j Job) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.jobs = append([]Job{j}, q.jobs...)
	q.mu.Unlock()

	q.journalAdd(j.Identity(), j)
	q.signal()
	return true
}

// Pop blocks until a job is available, the context ends, or the queue
// is closed. A dead context wins over queued work, so shutdown never
// spins on jobs nobody will finish.
func (q *Queue) Pop(ctx context.Context) (Job, bool) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Job{}, false
		default:
		}

		q.mu.Lock()
		if len(q.jobs) > 0 {
			j := q.jobs[0]
			q.jobs = q.jobs[1:]
			q.mu.Unlock()
			return j, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return Job{}, false
		}

		select {
		case <-ctx.Done():
			return Job{}, false
		case <-q.done:
		case <-q.wake:
		case <-ticker.C:
			// Liveness guard against a missed wake signal.
		}
	}
}

// Done marks a job's identity as completed in the journal.
func (q *Queue) Done(j Job) {
	if q.journal == nil {
		return
	}
	if err := q.journal.JobDone(j.Identity()); err != nil {
		q.log.Warn("queue journal done failed", zap.Error(err))
	}
}

// Close wakes all blocked Pops. Jobs already queued are abandoned;
// callers close only once the frontier is exhausted or the run is
// shutting down.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.done)
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func (q *Queue) insert(j Job) {
	if j.Priority {
		q.jobs = append([]Job{j}, q.jobs...)
		return
	}
	q.jobs = append(q.jobs, j)
}

func (q *Queue) journalAdd(id string, j Job) {
	if q.journal == nil {
		return
	}
	if err := q.journal.JobAdded(id, j); err != nil {
		q.log.Warn("queue journal add failed", zap.Error(err))
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
