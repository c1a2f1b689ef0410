package domain

import "errors"

var (
	// ErrStaleData marks inputs older than the staleness bound. Signals are
	// suppressed, never escalated.
	ErrStaleData = errors.New("stale market data")
	// ErrInsufficientCapital is a ledger rejection; no order is attempted.
	ErrInsufficientCapital = errors.New("insufficient capital")
	// ErrExecutionRejected is a venue-side rejection or timeout.
	ErrExecutionRejected = errors.New("execution rejected")
	// ErrPartialFill marks a two-legged entry where only one leg filled.
	ErrPartialFill = errors.New("partial fill on paired legs")
	// ErrDegradedPool rejects entries from a pool suspended after repeated
	// execution failures.
	ErrDegradedPool = errors.New("pool degraded")
	// ErrPoolDraining rejects entries from a pool scheduled for removal.
	ErrPoolDraining = errors.New("pool draining")
	// ErrPoolCooldown rejects entries from a pool still inside its post-exit
	// cooldown window.
	ErrPoolCooldown = errors.New("pool in cooldown")
	// ErrNotActionable rejects sizing of a suppressed or zero-confidence
	// signal.
	ErrNotActionable = errors.New("signal not actionable")
	// ErrBelowMinimum rejects orders smaller than the minimum tradable unit.
	ErrBelowMinimum = errors.New("size below minimum tradable unit")

	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnavailable   = errors.New("data unavailable")
	ErrLockHeld      = errors.New("lock already held")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrRateLimited   = errors.New("rate limited")
)
