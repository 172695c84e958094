// Package dedup tracks which entity ids a run has already collected, so
// the same entity is never emitted twice no matter how many overlapping
// search pages or workers rediscover it.
package dedup

import "sync"

// Outcome reports what a CheckAndInsert call did.
type Outcome int

const (
	// Added means the id was absent and has been recorded.
	Added Outcome = iota
	// Seen means the id was already present.
	Seen
	// Full means the cap was reached before the id could be added.
	Full
)

// Store is a concurrency-safe, monotonically growing set of entity ids
// with an optional size cap. The zero value is not usable; call New.
type Store struct {
	mu  sync.Mutex
	ids map[string]struct{}
	max int
}

// New returns an empty store. max <= 0 means unbounded.
func New(max int) *Store {
	return &Store{ids: make(map[string]struct{}), max: max}
}

// CheckAndInsert atomically records id. Presence is checked before the
// cap, so re-submitting an already collected id reports Seen, never
// Full. This is the only operation allowed to gate side effects that
// must happen at most once per id.
func (s *Store) CheckAndInsert(id string) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return Seen
	}
	if s.max > 0 && len(s.ids) >= s.max {
		return Full
	}
	s.ids[id] = struct{}{}
	return Added
}

// Has reports whether id is already recorded. It is a fast-path hint
// only; callers needing check-then-act atomicity use CheckAndInsert.
func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Size returns the number of recorded ids.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// AtCap reports whether the cap is reached. Unbounded stores never are.
func (s *Store) AtCap() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.max > 0 && len(s.ids) >= s.max
}

// Snapshot returns the recorded ids in unspecified order.
func (s *Store) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	return out
}

// Restore seeds the store with ids from a previous run. The cap is not
// enforced here: a resumed run must see everything the interrupted run
// already collected.
func (s *Store) Restore(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
}
