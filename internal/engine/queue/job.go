// Package queue holds the run's frontier: search pages and detail
// fetches not yet processed, deduplicated by content identity.
package queue

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/reinetwork/actor-zillow-api-scraper/internal/model"
)

// Kind selects the handler a job is routed to.
type Kind int

const (
	// KindSearch fetches one results page for a query state.
	KindSearch Kind = iota
	// KindDetail fetches one entity's own page, the fallback when the
	// direct entity query fails.
	KindDetail
)

func (k Kind) String() string {
	switch k {
	case KindSearch:
		return "search"
	case KindDetail:
		return "detail"
	}
	return "unknown"
}

// Job is one unit of frontier work. Search jobs carry a query state and
// the split level of their viewport lineage; detail jobs carry the
// entity id and the URL to fall back to.
type Job struct {
	Kind      Kind             `json:"kind"`
	State     model.QueryState `json:"state,omitempty"`
	Level     int              `json:"level,omitempty"`
	ZPID      string           `json:"zpid,omitempty"`
	DetailURL string           `json:"detail_url,omitempty"`
	Priority  bool             `json:"priority,omitempty"`
	Attempts  int              `json:"attempts,omitempty"`
}

// Identity returns the job's content hash, used to drop duplicate
// submissions at the queue layer. The page number is part of the hash:
// pagination follow-ups for one viewport are distinct jobs, not
// duplicates of each other. Split level, priority and attempt count are
// deliberately excluded; two routes to the same upstream query are the
// same work.
func (j Job) Identity() string {
	key := struct {
		Kind  Kind             `json:"kind"`
		State model.QueryState `json:"state"`
		ZPID  string           `json:"zpid,omitempty"`
	}{j.Kind, j.State, j.ZPID}

	b, err := json.Marshal(key)
	if err != nil {
		// Query states are plain JSON-decoded values; this cannot fail
		// for real jobs.
		return "unhashable"
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
