package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/dedup"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/extract"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/geo"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/match"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/plan"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/portal"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/queue"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/session"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/model"
)

// Portal is the upstream surface a page-handling pass drives.
type Portal interface {
	FetchSearchPage(ctx context.Context, sess *session.Session, st model.QueryState) (map[string]any, error)
	QueryEntity(ctx context.Context, sess *session.Session, zpid string) (map[string]any, error)
	FetchDetail(ctx context.Context, sess *session.Session, zpid, detailURL string) (map[string]any, error)
}

// ControllerConfig wires the collaborators one page-handling pass needs.
type ControllerConfig struct {
	Portal    Portal
	Extractor *extract.Extractor
	Matcher   *match.Dispatcher
	Splitter  plan.Splitter
	Pager     plan.Pager
	Orch      *Orchestrator
	Store     *dedup.Store
	Highwater *dedup.Highwater
	Queue     Enqueuer
	Targets   []string
	Area      orb.MultiPolygon
	Stats     *Stats
	Log       *zap.Logger
}

// Controller handles one frontier job end to end: fetch, extract,
// match, plan follow-ups, extract entities.
type Controller struct {
	portal    Portal
	extractor *extract.Extractor
	matcher   *match.Dispatcher
	splitter  plan.Splitter
	pager     plan.Pager
	orch      *Orchestrator
	store     *dedup.Store
	hw        *dedup.Highwater
	queue     Enqueuer
	targets   []string
	area      orb.MultiPolygon
	stats     *Stats
	log       *zap.Logger
}

// NewController assembles a controller from cfg.
func NewController(cfg ControllerConfig) *Controller {
	return &Controller{
		portal:    cfg.Portal,
		extractor: cfg.Extractor,
		matcher:   cfg.Matcher,
		splitter:  cfg.Splitter,
		pager:     cfg.Pager,
		orch:      cfg.Orch,
		store:     cfg.Store,
		hw:        cfg.Highwater,
		queue:     cfg.Queue,
		targets:   cfg.Targets,
		area:      cfg.Area,
		stats:     cfg.Stats,
		log:       cfg.Log,
	}
}

// HandleSearch processes one results page: extract and merge records,
// run the address match, plan splits and pagination from first pages,
// then push every record through the extraction gate. A page claiming
// a positive total while rendering nothing retires the session and
// fails the attempt; a genuinely empty page ends the branch cleanly.
func (c *Controller) HandleSearch(ctx context.Context, sess *session.Session, job queue.Job) error {
	payload, err := c.portal.FetchSearchPage(ctx, sess, job.State)
	if err != nil {
		if errors.Is(err, portal.ErrBlocked) {
			c.stats.Blocked.Add(1)
			sess.MarkDegraded()
		}
		return err
	}

	pe, err := c.extractor.Extract(payload, job.State, job.Level)
	if err != nil {
		return err
	}

	records := pe.Records
	if len(c.area) > 0 {
		records = geo.FilterRecords(records, c.area)
	}
	c.stats.Found.Add(int64(len(records)))

	c.matcher.Dispatch(records, c.targets)

	if len(c.targets) == 0 {
		return nil
	}
	// The anomaly check looks at what the page rendered, not at what
	// survived the area filter.
	if len(pe.Records) == 0 {
		if pe.TotalCount > 0 {
			sess.Retire()
			return Retryable(fmt.Errorf("%w (reported total %d)", ErrAnomalousCount, pe.TotalCount))
		}
		return nil
	}

	if job.State.FirstPage() && !c.store.AtCap() {
		for _, sp := range c.splitter.Plan(job.State, job.Level, pe.TotalCount) {
			c.queue.Push(queue.Job{Kind: queue.KindSearch, State: sp.State, Level: sp.Level, Priority: true})
		}
		for _, st := range c.pager.Plan(job.State, pe.TotalCount, c.store.Size(), c.hw.Load()) {
			c.queue.Push(queue.Job{Kind: queue.KindSearch, State: st, Level: job.Level})
		}
	}

	errored, err := c.orch.ExtractBatch(ctx, sess, records, func(ctx context.Context, zpid string) (map[string]any, error) {
		return c.portal.QueryEntity(ctx, sess, zpid)
	})
	if err != nil {
		return err
	}
	if errored {
		// A batch that needed fallbacks rode a session not worth keeping.
		sess.Retire()
		c.log.Debug("session retired after errored batch",
			zap.String("session", sess.ID()),
			zap.Int("page", job.State.Page),
			zap.Int("level", job.Level),
		)
	}
	return nil
}

// HandleDetail processes one fallback job: the entity's own page
// instead of the direct query. It runs through the same gate, so a
// concurrent success elsewhere makes this a cheap no-op.
func (c *Controller) HandleDetail(ctx context.Context, sess *session.Session, job queue.Job) error {
	rec := []model.ResultRecord{{ZPID: job.ZPID, DetailURL: job.DetailURL}}
	errored, err := c.orch.ExtractBatch(ctx, sess, rec, func(ctx context.Context, zpid string) (map[string]any, error) {
		return c.portal.FetchDetail(ctx, sess, zpid, job.DetailURL)
	})
	if err != nil {
		return err
	}
	if errored {
		sess.Retire()
		return Retryable(fmt.Errorf("detail fetch for entity %s failed", job.ZPID))
	}
	return nil
}
