package health

import "errors"

var (
	// ErrCheckTimeout indicates a health check did not finish in time.
	ErrCheckTimeout = errors.New("health: check timeout")

	// ErrCheckerNotFound indicates no checker is registered under a name.
	ErrCheckerNotFound = errors.New("health: checker not found")

	// ErrPoolClosed is reported once the session pool has shut down.
	ErrPoolClosed = errors.New("health: session pool closed")
)
