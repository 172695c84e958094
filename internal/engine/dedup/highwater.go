package dedup

import "sync/atomic"

// Highwater tracks the largest total result count any root-level first
// page has reported for the run. The mark only ever rises; a zero mark
// means the upstream never reported a positive total.
type Highwater struct {
	v atomic.Int64
}

// Observe raises the mark to n when n is larger.
func (h *Highwater) Observe(n int) {
	for {
		cur := h.v.Load()
		if int64(n) <= cur {
			return
		}
		if h.v.CompareAndSwap(cur, int64(n)) {
			return
		}
	}
}

// Load returns the current mark.
func (h *Highwater) Load() int {
	return int(h.v.Load())
}

// Reached reports whether have meets a positive mark. While the mark is
// zero nothing is considered reached, so work is never suppressed before
// the upstream has told us how much there is.
func (h *Highwater) Reached(have int) bool {
	m := h.v.Load()
	return m > 0 && int64(have) >= m
}
