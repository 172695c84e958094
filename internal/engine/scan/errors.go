// Package scan composes the run: page handling, per-entity extraction
// through the dedup gate, follow-up planning, and the worker pool that
// drives the frontier.
package scan

import (
	"errors"

	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/extract"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/portal"
)

// ErrAnomalousCount flags a page that reports a positive total while
// rendering zero results. The attempt fails so the retry lands on a
// fresh session instead of trusting an empty answer.
var ErrAnomalousCount = errors.New("zero results against a positive reported total")

// ErrSessionUnusable aborts an attempt that was handed a burned
// identity. The job is requeued without consuming an attempt.
var ErrSessionUnusable = errors.New("session unusable")

type retryableError struct{ err error }

func (r *retryableError) Error() string { return r.err.Error() }
func (r *retryableError) Unwrap() error { return r.err }

// Retryable marks err as worth a fresh attempt.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether the failure should go back to the queue
// for another attempt. Blocked responses, missing page data and
// upstream 5xx statuses all qualify; everything else is terminal for
// the job.
func IsRetryable(err error) bool {
	var re *retryableError
	if errors.As(err, &re) {
		return true
	}
	if errors.Is(err, ErrSessionUnusable) ||
		errors.Is(err, portal.ErrBlocked) ||
		errors.Is(err, extract.ErrMissingPageData) {
		return true
	}
	var se *portal.StatusError
	return errors.As(err, &se) && se.StatusCode >= 500
}
