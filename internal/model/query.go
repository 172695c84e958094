package model

// QueryState is the complete search state one results page is requested
// with. Page 0 and 1 both mean the first page; pagination follow-ups
// carry Page >= 2. Filters is the upstream filter document passed
// through opaquely and must be treated as read-only once set.
type QueryState struct {
	Viewport Viewport       `json:"viewport"`
	Filters  map[string]any `json:"filters,omitempty"`
	Page     int            `json:"page,omitempty"`
}

// WithPage returns a copy of the state pointing at the given page.
// The copy shares the Filters map.
func (s QueryState) WithPage(page int) QueryState {
	s.Page = page
	return s
}

// WithViewport returns a copy of the state over a different region,
// reset to the first page.
func (s QueryState) WithViewport(v Viewport) QueryState {
	s.Viewport = v
	s.Page = 0
	return s
}

// FirstPage reports whether the state addresses the first results page.
func (s QueryState) FirstPage() bool {
	return s.Page <= 1
}

// CategoryExtract is the per-category slice of a results page: the query
// state the upstream echoed back and the total result count it claims
// for the region.
type CategoryExtract struct {
	State      QueryState
	TotalCount int
}
