package session

import (
	"sync"

	"go.uber.org/zap"
)

// Pool hands out usable sessions round-robin, minting fresh identities
// as burned ones are swept out. Acquire never blocks: a new identity is
// always cheaper than a stalled worker.
type Pool struct {
	mu       sync.Mutex
	sessions []*Session
	next     int

	maxLive  int
	proxyURL string
	minted   int
	log      *zap.Logger
}

// NewPool returns a pool that keeps at most maxLive concurrent
// identities alive.
func NewPool(maxLive int, proxyURL string, log *zap.Logger) *Pool {
	if maxLive <= 0 {
		maxLive = 10
	}
	return &Pool{maxLive: maxLive, proxyURL: proxyURL, log: log}
}

// Acquire returns a usable session, sweeping retired ones and minting a
// replacement when the rotation comes up empty.
func (p *Pool) Acquire() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sweepLocked()

	if len(p.sessions) >= p.maxLive {
		// Full rotation: next usable in ring order.
		for range p.sessions {
			s := p.sessions[p.next%len(p.sessions)]
			p.next++
			if s.Usable() {
				return s
			}
		}
		// Everything is exhausted but not yet retired-swept; mint anyway
		// and let the sweep catch up next acquire.
	}

	s := newSession(p.proxyURL)
	p.sessions = append(p.sessions, s)
	p.minted++
	p.log.Debug("session minted",
		zap.String("session", s.ID()),
		zap.Int("live", len(p.sessions)),
		zap.Int("minted_total", p.minted),
	)
	return s
}

// Live returns the number of non-retired sessions.
func (p *Pool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.sessions {
		if s.Usable() {
			n++
		}
	}
	return n
}

// Minted returns how many identities the run has created in total.
func (p *Pool) Minted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.minted
}

func (p *Pool) sweepLocked() {
	kept := p.sessions[:0]
	for _, s := range p.sessions {
		if s.Usable() {
			kept = append(kept, s)
		}
	}
	if len(kept) != len(p.sessions) {
		p.log.Debug("sessions swept", zap.Int("removed", len(p.sessions)-len(kept)))
	}
	p.sessions = kept
	if len(p.sessions) == 0 {
		p.next = 0
	}
}
