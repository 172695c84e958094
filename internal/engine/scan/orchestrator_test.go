package scan_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/dedup"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/queue"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/scan"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/model"
)

type captureQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
}

func (c *captureQueue) Push(j queue.Job) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = append(c.jobs, j)
	return true
}

func (c *captureQueue) all() []queue.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]queue.Job(nil), c.jobs...)
}

type captureSink struct {
	mu    sync.Mutex
	emits []string
	fail  error
}

func (c *captureSink) Emit(zpid string, _ map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.emits = append(c.emits, zpid)
	return nil
}

func (c *captureSink) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.emits...)
}

type fakeChannel struct {
	usable   atomic.Bool
	degraded atomic.Int64
}

func newFakeChannel() *fakeChannel {
	ch := &fakeChannel{}
	ch.usable.Store(true)
	return ch
}

func (c *fakeChannel) Usable() bool  { return c.usable.Load() }
func (c *fakeChannel) MarkDegraded() { c.degraded.Add(1) }

func okQuery(payload map[string]any) (scan.QueryFunc, *atomic.Int64) {
	var calls atomic.Int64
	return func(ctx context.Context, zpid string) (map[string]any, error) {
		calls.Add(1)
		return payload, nil
	}, &calls
}

func newOrch(store *dedup.Store, hw *dedup.Highwater, q scan.Enqueuer, sink scan.OutputSink) *scan.Orchestrator {
	o := scan.NewOrchestrator(store, hw, q, sink, nil, scan.NewStats(), zap.NewNop())
	o.Pace = 0
	return o
}

func TestExtractEmitsOnce(t *testing.T) {
	t.Parallel()

	store := dedup.New(0)
	var hw dedup.Highwater
	q := &captureQueue{}
	sink := &captureSink{}
	o := newOrch(store, &hw, q, sink)

	ch := newFakeChannel()
	queryFn, _ := okQuery(map[string]any{"zpid": "12345"})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := o.Extract(context.Background(), ch, "12345", "", queryFn); err != nil {
				t.Errorf("Extract: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := sink.all(); len(got) != 1 {
		t.Fatalf("sink received %d emits for one id, want exactly 1", len(got))
	}
}

func TestExtractFastSkips(t *testing.T) {
	t.Parallel()

	store := dedup.New(0)
	store.CheckAndInsert("99")
	var hw dedup.Highwater
	q := &captureQueue{}
	sink := &captureSink{}
	o := newOrch(store, &hw, q, sink)
	o.Pace = 300 * time.Millisecond

	ch := newFakeChannel()
	queryFn, calls := okQuery(nil)

	start := time.Now()
	for _, id := range []string{"", "abc12", "99"} {
		if err := o.Extract(context.Background(), ch, id, "", queryFn); err != nil {
			t.Fatalf("Extract(%q): %v", id, err)
		}
	}
	elapsed := time.Since(start)

	if elapsed > 150*time.Millisecond {
		t.Errorf("fast-skips paced anyway: took %v", elapsed)
	}
	if calls.Load() != 0 {
		t.Errorf("query issued for a skippable id")
	}
	if len(q.all()) != 0 {
		t.Errorf("fallback enqueued for a skippable id")
	}
	if len(sink.all()) != 0 {
		t.Errorf("sink received a skippable id")
	}
}

func TestExtractCapStopsQueries(t *testing.T) {
	t.Parallel()

	store := dedup.New(1)
	var hw dedup.Highwater
	q := &captureQueue{}
	sink := &captureSink{}
	o := newOrch(store, &hw, q, sink)

	ch := newFakeChannel()
	queryFn, calls := okQuery(map[string]any{})

	if err := o.Extract(context.Background(), ch, "1", "", queryFn); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if err := o.Extract(context.Background(), ch, "2", "", queryFn); err != nil {
		t.Fatalf("Extract at cap: %v", err)
	}

	if calls.Load() != 1 {
		t.Errorf("queries after cap: %d calls, want 1", calls.Load())
	}
	if got := sink.all(); len(got) != 1 || got[0] != "1" {
		t.Errorf("emits = %v, want [1]", got)
	}
}

func TestExtractFailureEnqueuesFallback(t *testing.T) {
	t.Parallel()

	store := dedup.New(0)
	var hw dedup.Highwater
	q := &captureQueue{}
	sink := &captureSink{}
	o := newOrch(store, &hw, q, sink)

	ch := newFakeChannel()
	boom := errors.New("upstream went away")
	queryFn := func(ctx context.Context, zpid string) (map[string]any, error) {
		return nil, boom
	}

	err := o.Extract(context.Background(), ch, "777", "/homedetails/777_zpid/", queryFn)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped query error", err)
	}

	jobs := q.all()
	if len(jobs) != 1 {
		t.Fatalf("fallback jobs = %d, want 1", len(jobs))
	}
	fb := jobs[0]
	if fb.Kind != queue.KindDetail || fb.ZPID != "777" || fb.DetailURL != "/homedetails/777_zpid/" || !fb.Priority {
		t.Errorf("fallback = %+v", fb)
	}
	if ch.degraded.Load() != 1 {
		t.Errorf("channel degraded %d times, want 1", ch.degraded.Load())
	}
	if store.Has("777") {
		t.Error("failed extraction claimed the id; the fallback would fast-skip")
	}
	if len(sink.all()) != 0 {
		t.Error("sink received a failed extraction")
	}
}

func TestExtractSessionUnusable(t *testing.T) {
	t.Parallel()

	store := dedup.New(0)
	var hw dedup.Highwater
	q := &captureQueue{}
	sink := &captureSink{}
	o := newOrch(store, &hw, q, sink)

	ch := newFakeChannel()
	ch.usable.Store(false)
	queryFn, calls := okQuery(nil)

	err := o.Extract(context.Background(), ch, "555", "", queryFn)
	if !errors.Is(err, scan.ErrSessionUnusable) {
		t.Fatalf("err = %v, want ErrSessionUnusable", err)
	}
	if calls.Load() != 0 {
		t.Error("query issued on an unusable session")
	}
	if len(q.all()) != 0 {
		t.Error("fallback enqueued for an attempt that never ran")
	}
}

func TestExtractSinkFailureKeepsClaim(t *testing.T) {
	t.Parallel()

	store := dedup.New(0)
	var hw dedup.Highwater
	q := &captureQueue{}
	sink := &captureSink{fail: errors.New("disk full")}
	o := newOrch(store, &hw, q, sink)

	ch := newFakeChannel()
	queryFn, _ := okQuery(map[string]any{})

	if err := o.Extract(context.Background(), ch, "42", "", queryFn); err == nil {
		t.Fatal("expected sink failure to surface")
	}
	if !store.Has("42") {
		t.Error("claim rolled back; the store is monotone")
	}
	if len(q.all()) != 0 {
		t.Error("fallback enqueued for a claimed id")
	}
}

func TestExtractBatch(t *testing.T) {
	t.Parallel()

	store := dedup.New(0)
	var hw dedup.Highwater
	q := &captureQueue{}
	sink := &captureSink{}
	o := newOrch(store, &hw, q, sink)

	ch := newFakeChannel()
	queryFn := func(ctx context.Context, zpid string) (map[string]any, error) {
		if zpid == "2" {
			return nil, errors.New("flaky")
		}
		return map[string]any{}, nil
	}

	records := []model.ResultRecord{{ZPID: "1"}, {ZPID: "2"}, {ZPID: "3"}}
	errored, err := o.ExtractBatch(context.Background(), ch, records, queryFn)
	if err != nil {
		t.Fatalf("ExtractBatch: %v", err)
	}
	if !errored {
		t.Error("batch with a failed entity not flagged")
	}
	if got := sink.all(); len(got) != 2 || got[0] != "1" || got[1] != "3" {
		t.Errorf("emits = %v, want [1 3]", got)
	}
}

func TestExtractBatchHighwaterShortCircuit(t *testing.T) {
	t.Parallel()

	store := dedup.New(0)
	store.CheckAndInsert("a")
	store.CheckAndInsert("b")
	var hw dedup.Highwater
	hw.Observe(2)

	q := &captureQueue{}
	sink := &captureSink{}
	o := newOrch(store, &hw, q, sink)

	ch := newFakeChannel()
	queryFn, calls := okQuery(map[string]any{})

	records := []model.ResultRecord{{ZPID: "10"}, {ZPID: "11"}}
	if _, err := o.ExtractBatch(context.Background(), ch, records, queryFn); err != nil {
		t.Fatalf("ExtractBatch: %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("batch kept querying past the high-water mark: %d calls", calls.Load())
	}

	// A zero mark never suppresses.
	fresh := newOrch(dedup.New(0), &dedup.Highwater{}, q, sink)
	if _, err := fresh.ExtractBatch(context.Background(), ch, records, queryFn); err != nil {
		t.Fatalf("ExtractBatch: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("zero mark suppressed work: %d calls, want 2", calls.Load())
	}
}

func TestExtractBatchProgress(t *testing.T) {
	t.Parallel()

	store := dedup.New(0)
	var hw dedup.Highwater
	q := &captureQueue{}
	sink := &captureSink{}

	// Progress is reported synchronously from the batch loop.
	var reports []int
	progress := scan.ProgressFunc(func(n int) {
		reports = append(reports, n)
	})

	o := scan.NewOrchestrator(store, &hw, q, sink, progress, scan.NewStats(), zap.NewNop())
	o.Pace = 0
	ch := newFakeChannel()

	queryFn, _ := okQuery(map[string]any{})
	if _, err := o.ExtractBatch(context.Background(), ch, []model.ResultRecord{{ZPID: "1"}, {ZPID: "2"}}, queryFn); err != nil {
		t.Fatalf("ExtractBatch: %v", err)
	}
	if len(reports) == 0 || reports[len(reports)-1] != 2 {
		t.Errorf("final forced progress = %v, want trailing 2", reports)
	}

	// An errored batch suppresses the forced final report.
	reports = nil
	failFn := func(ctx context.Context, zpid string) (map[string]any, error) {
		return nil, errors.New("nope")
	}
	if _, err := o.ExtractBatch(context.Background(), ch, []model.ResultRecord{{ZPID: "3"}}, failFn); err != nil {
		t.Fatalf("ExtractBatch: %v", err)
	}
	if len(reports) != 0 {
		t.Errorf("errored batch still forced %d progress reports", len(reports))
	}
}
