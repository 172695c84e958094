package portal

import (
	"regexp"
	"sync"
)

// Credentials are the opaque tokens the entity query endpoint requires.
// They are discovered from served pages, not documented upstream.
type Credentials struct {
	QueryID       string
	ClientVersion string
}

// Valid reports whether the credentials can back an entity query.
func (c Credentials) Valid() bool {
	return c.QueryID != ""
}

// CredStore holds the run's current credentials. Harvested values
// overwrite older ones; an optional persist hook mirrors updates to
// durable storage.
type CredStore struct {
	mu      sync.RWMutex
	c       Credentials
	persist func(Credentials)
}

// NewCredStore seeds the store, optionally wiring a persistence hook.
func NewCredStore(seed Credentials, persist func(Credentials)) *CredStore {
	return &CredStore{c: seed, persist: persist}
}

// Get returns the current credentials.
func (s *CredStore) Get() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.c
}

// Set replaces the credentials when the new value is usable.
func (s *CredStore) Set(c Credentials) {
	if !c.Valid() {
		return
	}
	s.mu.Lock()
	changed := c != s.c
	s.c = c
	persist := s.persist
	s.mu.Unlock()

	if changed && persist != nil {
		persist(c)
	}
}

var (
	queryIDRe       = regexp.MustCompile(`"queryId"\s*:\s*"([0-9a-fA-F]{16,64})"`)
	clientVersionRe = regexp.MustCompile(`"clientVersion"\s*:\s*"([^"]+)"`)
)

// HarvestCredentials scans served page markup for inlined query
// credentials. Either field may come back empty.
func HarvestCredentials(html string) Credentials {
	var c Credentials
	if m := queryIDRe.FindStringSubmatch(html); m != nil {
		c.QueryID = m[1]
	}
	if m := clientVersionRe.FindStringSubmatch(html); m != nil {
		c.ClientVersion = m[1]
	}
	return c
}
