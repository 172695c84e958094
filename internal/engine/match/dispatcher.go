package match

import (
	"sync"

	"go.uber.org/zap"

	"github.com/reinetwork/actor-zillow-api-scraper/internal/model"
)

// Sink receives match outcome records. Implementations must be safe for
// concurrent use; a slow or failing sink must not be able to stall the
// scan.
type Sink interface {
	Report(model.MatchReport)
}

// Dispatcher runs the page-level match and ships outcomes to the sink
// asynchronously. Reporting never blocks or fails the caller.
type Dispatcher struct {
	sink Sink
	log  *zap.Logger
	wg   sync.WaitGroup
}

// NewDispatcher returns a dispatcher over sink. A nil sink disables
// reporting while keeping Dispatch callable.
func NewDispatcher(sink Sink, log *zap.Logger) *Dispatcher {
	return &Dispatcher{sink: sink, log: log}
}

// Dispatch matches records against targets and reports the best match
// plus a "no detail match" record for every target it does not cover.
// The records slice must not be mutated after the call.
func (d *Dispatcher) Dispatch(records []model.ResultRecord, targets []string) {
	if len(targets) == 0 || d.sink == nil {
		return
	}

	best, found := Best(records, targets)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.log.Warn("match report sink panicked", zap.Any("panic", r))
			}
		}()

		if found {
			d.sink.Report(model.MatchReport{
				Kind:    model.ReportMatch,
				Target:  best.Target,
				ZPID:    best.Record.ZPID,
				Address: best.Record.Address,
				Score:   best.Score,
			})
		}
		for _, target := range targets {
			if found && target == best.Target {
				continue
			}
			d.sink.Report(model.MatchReport{Kind: model.ReportNoDetailMatch, Target: target})
		}
	}()
}

// Wait blocks until in-flight reports have been delivered. Called once
// at shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
