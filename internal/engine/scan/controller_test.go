package scan_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/dedup"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/extract"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/match"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/plan"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/portal"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/queue"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/scan"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/session"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/model"
)

type fakePortal struct {
	search func(st model.QueryState) (map[string]any, error)
	entity func(zpid string) (map[string]any, error)
	detail func(zpid, detailURL string) (map[string]any, error)
}

func (f *fakePortal) FetchSearchPage(_ context.Context, _ *session.Session, st model.QueryState) (map[string]any, error) {
	return f.search(st)
}

func (f *fakePortal) QueryEntity(_ context.Context, _ *session.Session, zpid string) (map[string]any, error) {
	if f.entity == nil {
		return map[string]any{"zpid": zpid}, nil
	}
	return f.entity(zpid)
}

func (f *fakePortal) FetchDetail(_ context.Context, _ *session.Session, zpid, detailURL string) (map[string]any, error) {
	if f.detail == nil {
		return map[string]any{"zpid": zpid}, nil
	}
	return f.detail(zpid, detailURL)
}

func pin(zpid, address string, lat, lng float64) map[string]any {
	return map[string]any{
		"zpid":      zpid,
		"address":   address,
		"detailUrl": "/homedetails/" + zpid + "_zpid/",
		"latLong":   map[string]any{"latitude": lat, "longitude": lng},
	}
}

func searchDoc(total float64, pins ...map[string]any) map[string]any {
	items := make([]any, 0, len(pins))
	for _, p := range pins {
		items = append(items, p)
	}
	return map[string]any{
		"cat1": map[string]any{
			"searchResults": map[string]any{"mapResults": items},
			"searchList":    map[string]any{"totalResultCount": total},
		},
	}
}

type ctrlHarness struct {
	ctrl  *scan.Controller
	store *dedup.Store
	hw    *dedup.Highwater
	queue *captureQueue
	sink  *captureSink
	stats *scan.Stats
	sess  *session.Session
}

func newHarness(t *testing.T, p scan.Portal, targets []string, area orb.MultiPolygon) *ctrlHarness {
	t.Helper()
	log := zap.NewNop()
	store := dedup.New(0)
	hw := &dedup.Highwater{}
	q := &captureQueue{}
	sink := &captureSink{}
	stats := scan.NewStats()

	orch := scan.NewOrchestrator(store, hw, q, sink, nil, stats, log)
	orch.Pace = 0

	ctrl := scan.NewController(scan.ControllerConfig{
		Portal:    p,
		Extractor: extract.New(log, hw),
		Matcher:   match.NewDispatcher(nil, log),
		Splitter:  plan.NewSplitter(0, 0),
		Pager:     plan.NewPager(0, 0),
		Orch:      orch,
		Store:     store,
		Highwater: hw,
		Queue:     q,
		Targets:   targets,
		Area:      area,
		Stats:     stats,
		Log:       log,
	})

	return &ctrlHarness{
		ctrl:  ctrl,
		store: store,
		hw:    hw,
		queue: q,
		sink:  sink,
		stats: stats,
		sess:  session.NewPool(1, "", log).Acquire(),
	}
}

func rootState() model.QueryState {
	return model.QueryState{
		Viewport: model.Viewport{North: 40, South: 30, East: -70, West: -80, Zoom: 9},
	}
}

func TestHandleSearchPlansAndExtracts(t *testing.T) {
	t.Parallel()

	p := &fakePortal{
		search: func(st model.QueryState) (map[string]any, error) {
			return searchDoc(600, pin("1", "100 Main St", 35, -75), pin("2", "200 Oak Ave", 36, -74)), nil
		},
	}
	h := newHarness(t, p, []string{"100 main st"}, nil)

	job := queue.Job{Kind: queue.KindSearch, State: rootState()}
	if err := h.ctrl.HandleSearch(context.Background(), h.sess, job); err != nil {
		t.Fatalf("HandleSearch: %v", err)
	}

	jobs := h.queue.all()

	// 600 over threshold 500 quarters the viewport; 600/40+1 = 16 pages
	// fan out as pages 2..16.
	var splits, pages []queue.Job
	for _, j := range jobs {
		if j.Priority {
			splits = append(splits, j)
		} else {
			pages = append(pages, j)
		}
	}
	if len(splits) != 4 {
		t.Fatalf("split jobs = %d, want 4", len(splits))
	}
	for _, s := range splits {
		if s.Level != 1 || s.Kind != queue.KindSearch {
			t.Errorf("split job = %+v", s)
		}
		if s.State.Viewport.Zoom != 10 {
			t.Errorf("split zoom = %d, want 10", s.State.Viewport.Zoom)
		}
	}
	if len(pages) != 15 {
		t.Fatalf("pagination jobs = %d, want 15", len(pages))
	}
	for i, pg := range pages {
		if pg.State.Page != i+2 {
			t.Errorf("pagination job %d targets page %d, want %d", i, pg.State.Page, i+2)
		}
		if pg.Level != 0 {
			t.Errorf("pagination job carries level %d, want 0", pg.Level)
		}
	}

	if got := h.sink.all(); len(got) != 2 {
		t.Errorf("extracted %v, want both records", got)
	}
	if h.stats.Found.Load() != 2 {
		t.Errorf("found = %d, want 2", h.stats.Found.Load())
	}
}

func TestHandleSearchNoTargetsStopsBranch(t *testing.T) {
	t.Parallel()

	p := &fakePortal{
		search: func(st model.QueryState) (map[string]any, error) {
			return searchDoc(600, pin("1", "100 Main St", 35, -75)), nil
		},
	}
	h := newHarness(t, p, nil, nil)

	job := queue.Job{Kind: queue.KindSearch, State: rootState()}
	if err := h.ctrl.HandleSearch(context.Background(), h.sess, job); err != nil {
		t.Fatalf("HandleSearch: %v", err)
	}
	if len(h.queue.all()) != 0 {
		t.Error("branch without candidates planned follow-ups")
	}
	if len(h.sink.all()) != 0 {
		t.Error("branch without candidates extracted entities")
	}
}

func TestHandleSearchGenuineZero(t *testing.T) {
	t.Parallel()

	p := &fakePortal{
		search: func(st model.QueryState) (map[string]any, error) {
			return searchDoc(0), nil
		},
	}
	h := newHarness(t, p, []string{"100 main st"}, nil)

	job := queue.Job{Kind: queue.KindSearch, State: rootState()}
	if err := h.ctrl.HandleSearch(context.Background(), h.sess, job); err != nil {
		t.Fatalf("a genuinely empty region is not an error, got %v", err)
	}
	if len(h.queue.all()) != 0 {
		t.Error("empty region planned follow-ups")
	}
	if h.sess.Retired() {
		t.Error("empty region retired the session")
	}
}

func TestHandleSearchAnomalousZero(t *testing.T) {
	t.Parallel()

	p := &fakePortal{
		search: func(st model.QueryState) (map[string]any, error) {
			return searchDoc(50), nil
		},
	}
	h := newHarness(t, p, []string{"100 main st"}, nil)

	job := queue.Job{Kind: queue.KindSearch, State: rootState()}
	err := h.ctrl.HandleSearch(context.Background(), h.sess, job)
	if !errors.Is(err, scan.ErrAnomalousCount) {
		t.Fatalf("err = %v, want ErrAnomalousCount", err)
	}
	if !scan.IsRetryable(err) {
		t.Error("anomalous page not retryable")
	}
	if !h.sess.Retired() {
		t.Error("anomalous page left the session in service")
	}
}

func TestHandleSearchLaterPagesDoNotPlan(t *testing.T) {
	t.Parallel()

	p := &fakePortal{
		search: func(st model.QueryState) (map[string]any, error) {
			return searchDoc(600, pin("9", "900 Pine Rd", 35, -75)), nil
		},
	}
	h := newHarness(t, p, []string{"100 main st"}, nil)

	st := rootState().WithPage(3)
	job := queue.Job{Kind: queue.KindSearch, State: st}
	if err := h.ctrl.HandleSearch(context.Background(), h.sess, job); err != nil {
		t.Fatalf("HandleSearch: %v", err)
	}
	if len(h.queue.all()) != 0 {
		t.Error("pagination result planned follow-ups")
	}
	if got := h.sink.all(); len(got) != 1 || got[0] != "9" {
		t.Errorf("emits = %v, want [9]: later pages still extract", got)
	}
}

func TestHandleSearchBlockedFetch(t *testing.T) {
	t.Parallel()

	p := &fakePortal{
		search: func(st model.QueryState) (map[string]any, error) {
			return nil, fmt.Errorf("%w (status 403)", portal.ErrBlocked)
		},
	}
	h := newHarness(t, p, []string{"100 main st"}, nil)

	job := queue.Job{Kind: queue.KindSearch, State: rootState()}
	err := h.ctrl.HandleSearch(context.Background(), h.sess, job)
	if !scan.IsRetryable(err) {
		t.Fatalf("blocked fetch not retryable: %v", err)
	}
	if h.stats.Blocked.Load() != 1 {
		t.Errorf("blocked = %d, want 1", h.stats.Blocked.Load())
	}
}

func TestHandleSearchErroredBatchRetiresSession(t *testing.T) {
	t.Parallel()

	p := &fakePortal{
		search: func(st model.QueryState) (map[string]any, error) {
			return searchDoc(1, pin("5", "500 Elm St", 35, -75)), nil
		},
		entity: func(zpid string) (map[string]any, error) {
			return nil, errors.New("query rejected")
		},
	}
	h := newHarness(t, p, []string{"100 main st"}, nil)

	job := queue.Job{Kind: queue.KindSearch, State: rootState()}
	if err := h.ctrl.HandleSearch(context.Background(), h.sess, job); err != nil {
		t.Fatalf("soft extraction failures must not fail the page: %v", err)
	}
	if !h.sess.Retired() {
		t.Error("session survived an errored batch")
	}

	var fallbacks int
	for _, j := range h.queue.all() {
		if j.Kind == queue.KindDetail && j.ZPID == "5" && j.Priority {
			fallbacks++
		}
	}
	if fallbacks != 1 {
		t.Errorf("fallback jobs = %d, want 1", fallbacks)
	}
}

func TestHandleSearchAreaFilter(t *testing.T) {
	t.Parallel()

	// Square lng -100..-90, lat 30..40.
	area := orb.MultiPolygon{{{{-100, 30}, {-90, 30}, {-90, 40}, {-100, 40}, {-100, 30}}}}

	p := &fakePortal{
		search: func(st model.QueryState) (map[string]any, error) {
			return searchDoc(2,
				pin("1", "100 Main St", 35, -95),
				pin("2", "200 Oak Ave", 35, -85),
			), nil
		},
	}
	h := newHarness(t, p, []string{"100 main st"}, area)

	job := queue.Job{Kind: queue.KindSearch, State: rootState()}
	if err := h.ctrl.HandleSearch(context.Background(), h.sess, job); err != nil {
		t.Fatalf("HandleSearch: %v", err)
	}
	if got := h.sink.all(); len(got) != 1 || got[0] != "1" {
		t.Errorf("emits = %v, want only the in-area record", got)
	}
}

func TestHandleDetail(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, &fakePortal{}, []string{"100 main st"}, nil)

		job := queue.Job{Kind: queue.KindDetail, ZPID: "31337", DetailURL: "/homedetails/31337_zpid/"}
		if err := h.ctrl.HandleDetail(context.Background(), h.sess, job); err != nil {
			t.Fatalf("HandleDetail: %v", err)
		}
		if got := h.sink.all(); len(got) != 1 || got[0] != "31337" {
			t.Errorf("emits = %v", got)
		}
	})

	t.Run("failure is retryable and retires the session", func(t *testing.T) {
		t.Parallel()
		p := &fakePortal{
			detail: func(zpid, detailURL string) (map[string]any, error) {
				return nil, errors.New("rendered page withheld")
			},
		}
		h := newHarness(t, p, []string{"100 main st"}, nil)

		job := queue.Job{Kind: queue.KindDetail, ZPID: "31337"}
		err := h.ctrl.HandleDetail(context.Background(), h.sess, job)
		if err == nil || !scan.IsRetryable(err) {
			t.Fatalf("err = %v, want retryable failure", err)
		}
		if !h.sess.Retired() {
			t.Error("session survived a failed detail fetch")
		}
	})

	t.Run("already collected is a no-op", func(t *testing.T) {
		t.Parallel()
		p := &fakePortal{
			detail: func(zpid, detailURL string) (map[string]any, error) {
				t.Error("detail fetched for an already collected id")
				return nil, nil
			},
		}
		h := newHarness(t, p, []string{"100 main st"}, nil)
		h.store.CheckAndInsert("31337")

		job := queue.Job{Kind: queue.KindDetail, ZPID: "31337"}
		if err := h.ctrl.HandleDetail(context.Background(), h.sess, job); err != nil {
			t.Fatalf("HandleDetail: %v", err)
		}
		if len(h.sink.all()) != 0 {
			t.Error("sink received an already collected id")
		}
	})
}
