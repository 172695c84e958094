package portal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"

	"github.com/reinetwork/actor-zillow-api-scraper/internal/model"
)

type wireBounds struct {
	West  float64 `json:"west"`
	East  float64 `json:"east"`
	South float64 `json:"south"`
	North float64 `json:"north"`
}

type wirePagination struct {
	CurrentPage int `json:"currentPage"`
}

// wireQueryState is the upstream's searchQueryState document.
type wireQueryState struct {
	Pagination    *wirePagination `json:"pagination,omitempty"`
	MapBounds     wireBounds      `json:"mapBounds"`
	MapZoom       int             `json:"mapZoom,omitempty"`
	FilterState   map[string]any  `json:"filterState,omitempty"`
	IsListVisible bool            `json:"isListVisible"`
}

// EncodeQueryState renders st as the searchQueryState parameter value.
// Page 1 is implicit: the pagination block only appears from page 2 on.
func EncodeQueryState(st model.QueryState) (string, error) {
	w := wireQueryState{
		MapBounds: wireBounds{
			West:  st.Viewport.West,
			East:  st.Viewport.East,
			South: st.Viewport.South,
			North: st.Viewport.North,
		},
		MapZoom:       st.Viewport.Zoom,
		FilterState:   st.Filters,
		IsListVisible: true,
	}
	if st.Page >= 2 {
		w.Pagination = &wirePagination{CurrentPage: st.Page}
	}
	b, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("encoding query state: %w", err)
	}
	return string(b), nil
}

// DecodeQueryState parses an upstream searchQueryState document back
// into a query state.
func DecodeQueryState(raw string) (model.QueryState, error) {
	var w wireQueryState
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return model.QueryState{}, fmt.Errorf("decoding query state: %w", err)
	}
	st := model.QueryState{
		Viewport: model.Viewport{
			North: w.MapBounds.North,
			South: w.MapBounds.South,
			East:  w.MapBounds.East,
			West:  w.MapBounds.West,
			Zoom:  w.MapZoom,
		},
		Filters: w.FilterState,
	}
	if w.Pagination != nil {
		st.Page = w.Pagination.CurrentPage
	}
	return st, nil
}

var zpidSegmentRe = regexp.MustCompile(`/(\d+)_zpid`)

// ParseDetailURL pulls the entity id out of a home-detail URL. Detail
// URLs end in a "{zpid}_zpid" path segment regardless of the address
// slug in front of it.
func ParseDetailURL(rawURL string) (string, bool) {
	m := zpidSegmentRe.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParseStartURL extracts the query state a seed search URL embeds in
// its searchQueryState parameter.
func ParseStartURL(rawURL string) (model.QueryState, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return model.QueryState{}, fmt.Errorf("parsing start url: %w", err)
	}
	raw := u.Query().Get("searchQueryState")
	if raw == "" {
		return model.QueryState{}, errors.New("start url has no searchQueryState parameter")
	}
	st, err := DecodeQueryState(raw)
	if err != nil {
		return model.QueryState{}, err
	}
	if !st.Viewport.Valid() {
		return model.QueryState{}, errors.New("start url carries an empty viewport")
	}
	return st, nil
}
