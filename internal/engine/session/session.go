// Package session manages the pool of upstream identities a run speaks
// through: one TLS fingerprint, cookie jar and user agent per session,
// with an error score deciding when an identity is burned.
package session

import (
	"math/rand/v2"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// maxErrorScore retires a session after this many un-recovered
	// degradations.
	maxErrorScore = 3
	// maxUsage bounds how many requests one identity serves.
	maxUsage = 1000

	baseBackoff  = 2 * time.Second
	maxBackoff   = 30 * time.Second
	jitterFactor = 0.5
)

// Session is one upstream identity. All methods are safe for concurrent
// use, though a session is normally driven by one worker at a time.
type Session struct {
	id     string
	client *http.Client
	ua     string

	score   atomic.Int64
	usage   atomic.Int64
	retired atomic.Bool
}

func newSession(proxyURL string) *Session {
	return &Session{
		id:     uuid.NewString(),
		client: newHTTPClient(proxyURL),
		ua:     userAgents[rand.IntN(len(userAgents))],
	}
}

// ID returns the session's run-unique identifier.
func (s *Session) ID() string { return s.id }

// UserAgent returns the identity's pinned user agent.
func (s *Session) UserAgent() string { return s.ua }

// Do executes req with the session's client and identity headers.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", s.ua)
	}
	s.usage.Add(1)
	return s.client.Do(req)
}

// Usable reports whether the session may serve more work.
func (s *Session) Usable() bool {
	return !s.retired.Load() && s.score.Load() < maxErrorScore && s.usage.Load() < maxUsage
}

// MarkDegraded raises the error score; at maxErrorScore the session
// stops being usable.
func (s *Session) MarkDegraded() {
	s.score.Add(1)
}

// MarkGood lowers the error score after a clean exchange, never below
// zero.
func (s *Session) MarkGood() {
	for {
		cur := s.score.Load()
		if cur <= 0 {
			return
		}
		if s.score.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// Retire permanently removes the session from service.
func (s *Session) Retire() {
	s.retired.Store(true)
}

// Retired reports whether Retire was called.
func (s *Session) Retired() bool {
	return s.retired.Load()
}

// Backoff returns the pause before retry attempt n (0-based):
// exponential with jitter, capped.
func Backoff(attempt int) time.Duration {
	backoff := baseBackoff * time.Duration(1<<uint(attempt))
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	jitter := time.Duration(float64(backoff) * jitterFactor * rand.Float64())
	return backoff + jitter
}
