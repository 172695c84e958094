package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/reinetwork/actor-zillow-api-scraper/internal/config"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/dedup"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/extract"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/geo"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/match"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/plan"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/portal"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/queue"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/scan"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/session"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/storage"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/model"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/tui"
)

// Store keys for facts that survive across runs.
const (
	metaParams        = "params"
	credQueryID       = "query_id"
	credClientVersion = "client_version"
)

// runScan wires the engine for params and drives it until the frontier
// drains, the collection cap is reached, or the context ends.
func runScan(ctx context.Context, params model.Params, logPath string, resuming bool) error {
	if params.Concurrency <= 0 {
		params.Concurrency = 10
	}

	logPaths := []string{logPath}
	if params.NoTUI {
		logPaths = append(logPaths, "stderr")
	}
	log, err := config.NewLogger(params.Debug, logPaths...)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer log.Sync()

	runID := uuid.NewString()
	log = log.With(zap.String("run", runID[:8]))
	log.Info("run starting",
		zap.String("db", params.DBPath),
		zap.Bool("resume", resuming),
		zap.Int("concurrency", params.Concurrency),
		zap.Int("targets", len(params.Addresses)),
	)

	store, err := storage.NewStore(params.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	if raw, err := json.Marshal(params); err == nil {
		if err := store.SaveMeta(metaParams, string(raw)); err != nil {
			log.Warn("persisting run parameters", zap.Error(err))
		}
	}

	seen := dedup.New(params.MaxItems)
	hw := &dedup.Highwater{}
	if resuming {
		ids, err := store.LoadSeen()
		if err != nil {
			return fmt.Errorf("restoring dedup state: %w", err)
		}
		seen.Restore(ids)
		log.Info("dedup state restored", zap.Int("collected", len(ids)))
	}

	creds := portal.NewCredStore(loadCredentials(store), func(c portal.Credentials) {
		if err := store.SaveCredential(credQueryID, c.QueryID); err != nil {
			log.Warn("persisting credentials", zap.Error(err))
			return
		}
		if err := store.SaveCredential(credClientVersion, c.ClientVersion); err != nil {
			log.Warn("persisting credentials", zap.Error(err))
		}
	})

	client, err := portal.NewClient(params.BaseURL, creds, log)
	if err != nil {
		return err
	}

	var area orb.MultiPolygon
	if params.AreaPath != "" {
		if area, err = geo.LoadArea(params.AreaPath); err != nil {
			return err
		}
		log.Info("area filter loaded", zap.String("path", params.AreaPath), zap.Int("polygons", len(area)))
	}

	var mirror *storage.Postgres
	if params.PostgresDSN != "" {
		if mirror, err = storage.NewPostgres(ctx, params.PostgresDSN, params.Concurrency); err != nil {
			return fmt.Errorf("connecting mirror: %w", err)
		}
		defer mirror.Close()
	}

	q := queue.New(store, log)
	pool := session.NewPool(params.Concurrency, params.ProxyURL, log)
	stats := scan.NewStats()
	runner := scan.NewRunner(q, pool, stats, params.Concurrency, log)

	matcher := match.NewDispatcher(&reportSink{store: store, log: log}, log)
	defer matcher.Wait()

	sink := &listingSink{store: store, mirror: mirror, log: log}
	progress := scan.ProgressFunc(func(n int) {
		log.Info("progress", zap.Int("collected", n))
	})
	orch := scan.NewOrchestrator(seen, hw, runner, sink, progress, stats, log)

	ctrl := scan.NewController(scan.ControllerConfig{
		Portal:    client,
		Extractor: extract.New(log, hw),
		Matcher:   matcher,
		Splitter:  plan.NewSplitter(params.SplitThreshold, params.MaxSplitLevel),
		Pager:     plan.NewPager(0, params.PagesLimit),
		Orch:      orch,
		Store:     seen,
		Highwater: hw,
		Queue:     runner,
		Targets:   params.Addresses,
		Area:      area,
		Stats:     stats,
		Log:       log,
	})

	seeds, err := buildSeeds(ctx, params, area, resuming, store, log)
	if err != nil {
		return err
	}

	start := func(runCtx context.Context) error {
		return runner.Run(runCtx, ctrl, seeds)
	}

	var runErr error
	if params.NoTUI {
		runErr = start(ctx)
	} else {
		snap := func() tui.Snapshot {
			return tui.Snapshot{
				Pages:     stats.Pages.Load(),
				Details:   stats.Details.Load(),
				Found:     stats.Found.Load(),
				Collected: seen.Size(),
				Cap:       params.MaxItems,
				Highwater: hw.Load(),
				Errors:    stats.Errors.Load(),
				Blocked:   stats.Blocked.Load(),
				Queued:    q.Len(),
				Pending:   runner.Pending(),
				Sessions:  pool.Live(),
				Elapsed:   stats.Elapsed(),
			}
		}
		runErr = tui.Run(ctx, runTitle(params), params.DBPath, snap, start)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	matcher.Wait()
	config.SaveRecent(params.DBPath)

	total, _ := store.CountListings()
	log.Info("run finished",
		zap.Int64("pages", stats.Pages.Load()),
		zap.Int64("found", stats.Found.Load()),
		zap.Int("stored", total),
		zap.Int64("errors", stats.Errors.Load()),
		zap.Duration("elapsed", stats.Elapsed()),
	)
	if params.NoTUI {
		printSummary(os.Stderr, params, stats, total, logPath)
	}
	return nil
}

func loadCredentials(store *storage.Store) portal.Credentials {
	var c portal.Credentials
	if v, err := store.LoadCredential(credQueryID); err == nil {
		c.QueryID = v
	}
	if v, err := store.LoadCredential(credClientVersion); err == nil {
		c.ClientVersion = v
	}
	return c
}

// buildSeeds assembles the initial frontier: journaled pending jobs on
// resume, otherwise the root viewport plus any seed URLs.
func buildSeeds(ctx context.Context, params model.Params, area orb.MultiPolygon, resuming bool, store *storage.Store, log *zap.Logger) ([]queue.Job, error) {
	if resuming {
		jobs, err := store.LoadPendingJobs()
		if err != nil {
			return nil, fmt.Errorf("restoring frontier: %w", err)
		}
		if len(jobs) > 0 {
			log.Info("frontier restored", zap.Int("jobs", len(jobs)))
			return jobs, nil
		}
		log.Info("journal holds no pending jobs, reseeding from parameters")
	}

	var filters map[string]any
	if params.FiltersJSON != "" {
		if err := json.Unmarshal([]byte(params.FiltersJSON), &filters); err != nil {
			return nil, fmt.Errorf("parsing filters: %w", err)
		}
	}

	var seeds []queue.Job
	vp, ok, err := rootViewport(ctx, params, area)
	if err != nil {
		return nil, err
	}
	if ok {
		seeds = append(seeds, queue.Job{
			Kind:  queue.KindSearch,
			State: model.QueryState{Viewport: vp, Filters: filters},
		})
	}

	for _, raw := range params.StartURLs {
		if zpid, isDetail := portal.ParseDetailURL(raw); isDetail {
			seeds = append(seeds, queue.Job{Kind: queue.KindDetail, ZPID: zpid, DetailURL: raw, Priority: true})
			continue
		}
		st, err := portal.ParseStartURL(raw)
		if err != nil {
			return nil, fmt.Errorf("seed url %s: %w", raw, err)
		}
		seeds = append(seeds, queue.Job{Kind: queue.KindSearch, State: st})
	}
	return seeds, nil
}

// rootViewport resolves the run's root region: explicit bounds win,
// then a geocoded place, then the area polygon's own bound. The region
// is clipped to the area's bound when both are present.
func rootViewport(ctx context.Context, params model.Params, area orb.MultiPolygon) (model.Viewport, bool, error) {
	var vp model.Viewport
	switch {
	case params.HasBounds():
		vp = params.RootViewport()
		if !vp.Valid() {
			return model.Viewport{}, false, errors.New("bounds describe an empty region: need north > south and east > west")
		}
	case params.Place != "":
		got, err := geo.NewGeocoder().Geocode(ctx, params.Place)
		if err != nil {
			return model.Viewport{}, false, fmt.Errorf("resolving place %q: %w", params.Place, err)
		}
		got.Zoom = params.Zoom
		vp = got
	case len(area) > 0:
		vp = geo.AreaViewport(area, params.Zoom)
	default:
		return model.Viewport{}, false, nil
	}

	if len(area) > 0 {
		clipped, ok := geo.Clip(vp, area.Bound())
		if !ok {
			return model.Viewport{}, false, errors.New("search region and area polygon do not overlap")
		}
		vp = clipped
	}
	return geo.WithFittedZoom(vp), true, nil
}

func runTitle(params model.Params) string {
	switch {
	case params.Place != "":
		return params.Place
	case params.HasBounds():
		return fmt.Sprintf("[%.2f, %.2f] - [%.2f, %.2f]", params.South, params.West, params.North, params.East)
	case params.AreaPath != "":
		return filepath.Base(params.AreaPath)
	}
	return fmt.Sprintf("%d seed URLs", len(params.StartURLs))
}

// listingSink lands extracted entities in the run store and mirrors
// them to Postgres when configured. Mirror failures are logged, not
// fatal: the run store is the source of truth.
type listingSink struct {
	store  *storage.Store
	mirror *storage.Postgres
	log    *zap.Logger
}

func (s *listingSink) Emit(zpid string, payload map[string]any) error {
	l := portal.ProjectListing(payload)
	if l.ZPID == "" {
		l.ZPID = zpid
	}
	if err := s.store.InsertListing(l); err != nil {
		return fmt.Errorf("storing listing %s: %w", zpid, err)
	}
	if err := s.store.MarkSeen(zpid); err != nil {
		return fmt.Errorf("marking %s seen: %w", zpid, err)
	}
	if s.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := s.mirror.InsertListings(ctx, []model.Listing{l}); err != nil {
			s.log.Warn("mirror insert failed", zap.String("zpid", zpid), zap.Error(err))
		}
	}
	return nil
}

// reportSink persists matcher outcomes.
type reportSink struct {
	store *storage.Store
	log   *zap.Logger
}

func (s *reportSink) Report(r model.MatchReport) {
	if err := s.store.InsertReport(r); err != nil {
		s.log.Warn("storing match report", zap.Error(err))
	}
	s.log.Info("match report",
		zap.String("kind", r.Kind),
		zap.String("target", r.Target),
		zap.String("zpid", r.ZPID),
		zap.Float64("score", r.Score),
	)
}

func printSummary(w io.Writer, params model.Params, stats *scan.Stats, stored int, logPath string) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "══════════════════════════════\n")
	fmt.Fprintf(w, "  Scan Complete\n")
	fmt.Fprintf(w, "══════════════════════════════\n")
	switch {
	case params.Place != "":
		fmt.Fprintf(w, "  Place:      %s\n", params.Place)
	case params.HasBounds():
		fmt.Fprintf(w, "  Bounds:     [%.2f, %.2f] - [%.2f, %.2f]\n", params.South, params.West, params.North, params.East)
	}
	fmt.Fprintf(w, "  Pages:      %d\n", stats.Pages.Load())
	fmt.Fprintf(w, "  Details:    %d\n", stats.Details.Load())
	fmt.Fprintf(w, "  Found:      %d\n", stats.Found.Load())
	fmt.Fprintf(w, "  Stored:     %d (unique)\n", stored)
	fmt.Fprintf(w, "  Errors:     %d\n", stats.Errors.Load())
	fmt.Fprintf(w, "  Duration:   %s\n", stats.Elapsed().Truncate(time.Second))
	fmt.Fprintf(w, "  Database:   %s\n", params.DBPath)
	fmt.Fprintf(w, "  Log:        %s\n", logPath)
	fmt.Fprintf(w, "══════════════════════════════\n")
}
