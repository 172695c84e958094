package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/dedup"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/portal"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/queue"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/model"
)

// extractPace is the fixed inter-attempt delay each worker applies
// after any attempt that reached the network decision point.
const extractPace = 100 * time.Millisecond

// progressEvery is how often a long batch reports the dedup size.
const progressEvery = 10 * time.Second

// QueryFunc executes the per-entity extraction query.
type QueryFunc func(ctx context.Context, zpid string) (map[string]any, error)

// OutputSink receives one fully extracted entity. Implementations must
// be safe for concurrent use.
type OutputSink interface {
	Emit(zpid string, payload map[string]any) error
}

// ProgressSink receives dedup-size updates during extraction batches.
type ProgressSink interface {
	Progress(count int)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(int)

func (f ProgressFunc) Progress(n int) { f(n) }

// Enqueuer submits follow-up work. Push reports whether the job was
// accepted; duplicates by identity are dropped.
type Enqueuer interface {
	Push(j queue.Job) bool
}

// Channel is the health surface of the upstream identity a batch rides
// on.
type Channel interface {
	Usable() bool
	MarkDegraded()
}

// Orchestrator runs per-entity extraction through the dedup gate. The
// gate is the only path to the output sink, so an entity is emitted at
// most once no matter how many pages or workers rediscover it.
type Orchestrator struct {
	store    *dedup.Store
	hw       *dedup.Highwater
	queue    Enqueuer
	sink     OutputSink
	progress ProgressSink
	stats    *Stats
	log      *zap.Logger

	// Pace overrides the fixed inter-attempt delay. Tests lower it;
	// production code leaves the constructor default.
	Pace time.Duration
}

// NewOrchestrator wires the extraction gate. progress may be nil.
func NewOrchestrator(store *dedup.Store, hw *dedup.Highwater, q Enqueuer, sink OutputSink, progress ProgressSink, stats *Stats, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:    store,
		hw:       hw,
		queue:    q,
		sink:     sink,
		progress: progress,
		stats:    stats,
		log:      log,
		Pace:     extractPace,
	}
}

// Extract processes one entity. Missing, non-numeric and already
// collected ids skip out with no delay and no penalty. A failed query
// enqueues a priority detail fallback and degrades the channel; the
// error returned is soft and does not abort the caller's batch. Only
// ErrSessionUnusable and context errors abort the attempt.
func (o *Orchestrator) Extract(ctx context.Context, ch Channel, zpid, fallbackURL string, queryFn QueryFunc) error {
	if zpid == "" {
		return nil
	}
	if !numericID(zpid) {
		return nil
	}
	if o.store.Has(zpid) {
		return nil
	}
	if o.store.AtCap() {
		o.pause(ctx)
		return nil
	}
	if !ch.Usable() {
		o.pause(ctx)
		return ErrSessionUnusable
	}

	payload, err := queryFn(ctx, zpid)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, portal.ErrBlocked) {
			o.stats.Blocked.Add(1)
		}
		o.stats.Errors.Add(1)
		o.fallback(zpid, fallbackURL)
		ch.MarkDegraded()
		o.pause(ctx)
		return fmt.Errorf("entity %s: %w", zpid, err)
	}

	switch o.store.CheckAndInsert(zpid) {
	case dedup.Seen, dedup.Full:
		// Lost the claim race, or the cap filled while the query ran.
		o.pause(ctx)
		return nil
	}

	if err := o.sink.Emit(zpid, payload); err != nil {
		// The id is already claimed; a fallback would fast-skip.
		o.stats.Errors.Add(1)
		o.log.Warn("output sink failed", zap.String("zpid", zpid), zap.Error(err))
		o.pause(ctx)
		return fmt.Errorf("entity %s: sink: %w", zpid, err)
	}

	o.stats.Extracted.Add(1)
	o.pause(ctx)
	return nil
}

// ExtractBatch runs Extract over a page's records sequentially,
// stopping early at the item cap or once the run's high-water mark is
// reached. errored reports whether any entity in the batch soft-failed;
// err is non-nil only when the whole attempt must be retried.
func (o *Orchestrator) ExtractBatch(ctx context.Context, ch Channel, records []model.ResultRecord, queryFn QueryFunc) (errored bool, err error) {
	ticker := time.NewTicker(progressEvery)
	defer ticker.Stop()
	lastReported := -1

	for _, r := range records {
		if ctx.Err() != nil {
			return errored, ctx.Err()
		}
		if o.store.AtCap() {
			break
		}
		if o.hw.Reached(o.store.Size()) {
			break
		}

		select {
		case <-ticker.C:
			if n := o.store.Size(); n != lastReported {
				o.report(n)
				lastReported = n
			}
		default:
		}

		if err := o.Extract(ctx, ch, r.ZPID, r.DetailURL, queryFn); err != nil {
			if errors.Is(err, ErrSessionUnusable) || ctx.Err() != nil {
				return errored, err
			}
			errored = true
		}
	}

	if !errored {
		o.report(o.store.Size())
	}
	return errored, nil
}

func (o *Orchestrator) fallback(zpid, detailURL string) {
	o.queue.Push(queue.Job{
		Kind:      queue.KindDetail,
		ZPID:      zpid,
		DetailURL: detailURL,
		Priority:  true,
	})
}

func (o *Orchestrator) report(n int) {
	if o.progress == nil {
		return
	}
	o.progress.Progress(n)
}

func (o *Orchestrator) pause(ctx context.Context) {
	if o.Pace <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(o.Pace):
	}
}

// numericID reports whether the id is purely decimal digits.
func numericID(id string) bool {
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
