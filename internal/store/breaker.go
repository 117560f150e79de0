package store

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/threatgate/threatgate/internal/logger"
)

// newStorageBreaker builds the circuit breaker guarding all storage I/O.
//
// The breaker is a small explicit state machine (Closed → Open → HalfOpen):
// after maxFailures consecutive failures it opens for cooldown, then admits
// a single probe request. Domain conditions (no rows, constraint
// violations) never count as failures, only genuine I/O errors do.
func newStorageBreaker(maxFailures uint32, cooldown time.Duration, log *logger.Logger) *gobreaker.CircuitBreaker {
	if maxFailures == 0 {
		maxFailures = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "policy-store",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return !isIOFailure(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("storage circuit breaker state change")
		},
	}

	return gobreaker.NewCircuitBreaker(settings)
}

// isIOFailure reports whether err is a real storage failure as opposed to a
// domain condition surfaced through the same call path.
func isIOFailure(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrAlreadyExists),
		errors.Is(err, ErrAlreadyQuarantined),
		errors.Is(err, ErrValidation):
		return false
	}
	return true
}
