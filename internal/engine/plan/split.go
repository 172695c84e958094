// Package plan decides the follow-up work a results page generates:
// geographic subdivision to escape the upstream result cap, and
// pagination to recover results the map view under-reports.
package plan

import "github.com/reinetwork/actor-zillow-api-scraper/internal/model"

// Defaults mirror the upstream service's observed limits.
const (
	DefaultSplitThreshold = 500
	DefaultMaxSplitLevel  = 5
	DefaultPageSize       = 40
	DefaultPagesLimit     = 20
)

// Split is one sub-region follow-up produced by the splitter. Splits
// are enqueued with priority so deep recursion finishes before breadth
// at the same level grows.
type Split struct {
	State model.QueryState
	Level int
}

// Splitter quarters over-threshold viewports until the depth bound.
type Splitter struct {
	Threshold int
	MaxLevel  int
}

// NewSplitter returns a splitter, substituting defaults for
// non-positive values.
func NewSplitter(threshold, maxLevel int) Splitter {
	if threshold <= 0 {
		threshold = DefaultSplitThreshold
	}
	if maxLevel <= 0 {
		maxLevel = DefaultMaxSplitLevel
	}
	return Splitter{Threshold: threshold, MaxLevel: maxLevel}
}

// Plan returns the sub-viewport jobs for a page. It returns nil when
// the reported total is under the threshold, or the lineage is already
// at max depth; in the latter case the over-threshold result set is
// accepted as-is.
func (s Splitter) Plan(st model.QueryState, level, totalCount int) []Split {
	if totalCount < s.Threshold || level >= s.MaxLevel {
		return nil
	}
	quads := Quarter(st.Viewport)
	out := make([]Split, 0, len(quads))
	for _, q := range quads {
		out = append(out, Split{State: st.WithViewport(q), Level: level + 1})
	}
	return out
}

// Quarter splits a viewport into four equal quadrants one zoom level
// deeper, in NW, NE, SW, SE order. The quadrants tile the original
// area exactly.
func Quarter(v model.Viewport) [4]model.Viewport {
	midLat := (v.North + v.South) / 2
	midLng := (v.East + v.West) / 2
	z := v.Zoom + 1
	return [4]model.Viewport{
		{North: v.North, South: midLat, East: midLng, West: v.West, Zoom: z},
		{North: v.North, South: midLat, East: v.East, West: midLng, Zoom: z},
		{North: midLat, South: v.South, East: midLng, West: v.West, Zoom: z},
		{North: midLat, South: v.South, East: v.East, West: midLng, Zoom: z},
	}
}
