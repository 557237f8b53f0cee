package auction

import "errors"

// Stable error kinds surfaced by the core API. Validation errors are
// returned to the caller directly; upstream errors on the write path mean
// the bid was not recorded and the caller must retry.
var (
	// ErrAuthFailed is returned for an invalid or expired token.
	ErrAuthFailed = errors.New("auth failed")

	// ErrSessionNotFound is returned when a session id resolves to
	// nothing after a read-through to the durable store.
	ErrSessionNotFound = errors.New("session not found")

	// ErrUserNotFound is returned when a user id has no row in the
	// system of record.
	ErrUserNotFound = errors.New("user not found")

	// ErrSessionNotStarted is returned for bids placed before the
	// session's start time.
	ErrSessionNotStarted = errors.New("session has not started yet")

	// ErrSessionEnded is returned for bids placed at or after the
	// session's end time.
	ErrSessionEnded = errors.New("session has ended")

	// ErrSessionInactive is returned when a session is administratively
	// paused.
	ErrSessionInactive = errors.New("session is not active")

	// ErrPriceBelowReserve is returned when a bid price is below the
	// session's reserve price.
	ErrPriceBelowReserve = errors.New("bid price below reserve")

	// ErrUpstreamTimeout is returned when an external call exceeds its
	// deadline.
	ErrUpstreamTimeout = errors.New("upstream timeout")

	// ErrHotStoreUnavailable is returned when the hot store cannot be
	// reached.
	ErrHotStoreUnavailable = errors.New("hot store unavailable")

	// ErrDurableUnavailable is returned when the system of record cannot
	// be reached.
	ErrDurableUnavailable = errors.New("durable store unavailable")
)
