package portal

import (
	"errors"
	"fmt"
)

// ErrBlocked means the upstream answered with a challenge instead of
// data: the session's identity is burned for this host.
var ErrBlocked = errors.New("portal: request blocked")

// BlockedError is ErrBlocked with the status that triggered it, so
// callers can tell a redirect apart from a hard challenge.
type BlockedError struct {
	StatusCode int
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("portal: request blocked (status %d)", e.StatusCode)
}

func (e *BlockedError) Is(target error) bool { return target == ErrBlocked }

// Redirected reports whether the block was a redirect rather than an
// explicit challenge status.
func (e *BlockedError) Redirected() bool {
	return e.StatusCode == 301 || e.StatusCode == 302 || e.StatusCode == 307
}

// ErrNoCredentials means the entity query cannot be issued because no
// query credentials have been discovered yet.
var ErrNoCredentials = errors.New("portal: query credentials not discovered")

// StatusError reports a non-OK, non-challenge upstream status.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}
