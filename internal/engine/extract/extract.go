// Package extract normalizes the structured search document embedded in
// a results page into result records plus per-category totals.
package extract

import (
	"errors"

	"go.uber.org/zap"

	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/dedup"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/model"
)

// ErrMissingPageData marks a page whose embedded search document is
// absent or carries no result set in any category. Callers treat it as
// a failed page load, not an empty region.
var ErrMissingPageData = errors.New("extract: embedded search data missing")

// Category keys as the upstream names them.
const (
	CatPrimary   = "cat1"
	CatSecondary = "cat2"
)

var categoryOrder = []string{CatPrimary, CatSecondary}

// PageExtract is one results page fully normalized: per-category
// extracts plus the merged records in canonical order (primary map,
// primary list, secondary map, secondary list).
type PageExtract struct {
	Categories map[string]model.CategoryExtract
	Records    []model.ResultRecord
	TotalCount int
}

// Extractor pulls records out of decoded search payloads and keeps the
// run's high-water mark current.
type Extractor struct {
	log *zap.Logger
	hw  *dedup.Highwater
}

// New returns an extractor bound to the run's high-water mark.
func New(log *zap.Logger, hw *dedup.Highwater) *Extractor {
	return &Extractor{log: log, hw: hw}
}

// Extract normalizes the payload of the page requested by st at the
// given split level. Categories without an extractable result set are
// dropped; if none remain the page counts as missing data. The
// high-water mark rises only on un-split first pages, the only pages
// whose total is trusted as a region-wide figure.
func (e *Extractor) Extract(payload any, st model.QueryState, level int) (PageExtract, error) {
	doc := SafeMap(payload)
	if doc == nil {
		return PageExtract{}, ErrMissingPageData
	}

	pe := PageExtract{Categories: make(map[string]model.CategoryExtract, len(categoryOrder))}
	for _, key := range categoryOrder {
		cat := SafeMap(doc[key])
		if cat == nil {
			continue
		}
		results := SafeMap(cat["searchResults"])
		if results == nil {
			continue
		}

		mapRecs := records(SafeSlice(results["mapResults"]))
		listRecs := records(SafeSlice(results["listResults"]))
		pe.Records = append(pe.Records, mapRecs...)
		pe.Records = append(pe.Records, listRecs...)

		total := categoryTotal(doc, cat, key)
		pe.Categories[key] = model.CategoryExtract{State: st, TotalCount: total}
		pe.TotalCount += total
	}
	if len(pe.Categories) == 0 {
		return PageExtract{}, ErrMissingPageData
	}

	if level == 0 && st.FirstPage() {
		e.hw.Observe(pe.TotalCount)
	}

	e.log.Debug("page extracted",
		zap.Int("records", len(pe.Records)),
		zap.Int("total", pe.TotalCount),
		zap.Int("page", st.Page),
		zap.Int("level", level),
	)
	return pe, nil
}

// categoryTotal reads the category's own list total, falling back to the
// document-wide category totals block.
func categoryTotal(doc, cat map[string]any, key string) int {
	if n := SafePath(cat, "searchList", "totalResultCount"); n != nil {
		return SafeInt(n)
	}
	return SafeInt(SafePath(doc, "categoryTotals", key, "totalResultCount"))
}

// records converts raw result entries. Entries without an id still pass
// through: the matcher can use their address, and the extraction step
// skips them cheaply.
func records(items []any) []model.ResultRecord {
	var out []model.ResultRecord
	for _, it := range items {
		m := SafeMap(it)
		if m == nil {
			continue
		}
		r := model.ResultRecord{
			ZPID:      SafeString(m["zpid"]),
			Address:   SafeString(m["address"]),
			DetailURL: SafeString(m["detailUrl"]),
			Lat:       SafeFloat(SafePath(m, "latLong", "latitude")),
			Lng:       SafeFloat(SafePath(m, "latLong", "longitude")),
			Raw:       m,
		}
		if r.Address == "" {
			r.Address = SafeString(m["addressStreet"])
		}
		if r.Lat == 0 && r.Lng == 0 {
			r.Lat = SafeFloat(SafePath(m, "hdpData", "homeInfo", "latitude"))
			r.Lng = SafeFloat(SafePath(m, "hdpData", "homeInfo", "longitude"))
		}
		out = append(out, r)
	}
	return out
}
