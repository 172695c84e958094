package plan

import "github.com/reinetwork/actor-zillow-api-scraper/internal/model"

// Pager fans out list-pagination follow-ups for regions where the map
// view reports fewer pins than its own total claims.
type Pager struct {
	PageSize   int
	PagesLimit int
}

// NewPager returns a pager, substituting defaults for non-positive
// values.
func NewPager(pageSize, pagesLimit int) Pager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pagesLimit <= 0 {
		pagesLimit = DefaultPagesLimit
	}
	return Pager{PageSize: pageSize, PagesLimit: pagesLimit}
}

// Plan returns query states for pages 2..N of the region st covers.
// Pagination is only issued from a first page, never recursively from a
// pagination result. collected and highwater are the run's current
// dedup size and high-water mark: once a positive mark has been
// reached, further fan-out is suppressed.
func (p Pager) Plan(st model.QueryState, totalCount, collected, highwater int) []model.QueryState {
	if !st.FirstPage() || totalCount <= 0 {
		return nil
	}
	if highwater > 0 && collected >= highwater {
		return nil
	}

	pages := (totalCount+p.PageSize-1)/p.PageSize + 1
	if pages > p.PagesLimit {
		pages = p.PagesLimit
	}
	if pages < 2 {
		return nil
	}

	out := make([]model.QueryState, 0, pages-1)
	for page := 2; page <= pages; page++ {
		out = append(out, st.WithPage(page))
	}
	return out
}
