package nn

import "errors"

// The engine's error taxonomy. Every failure wraps one of these sentinels
// so callers can classify with errors.Is. There are no retries anywhere:
// errors propagate synchronously and terminate the in-progress operation.
var (
	// ErrConfiguration reports a missing mandatory builder field or
	// incompatible consecutive layer shapes at construction time.
	ErrConfiguration = errors.New("nn: invalid network configuration")

	// ErrDimensionMismatch reports an input, output, or batch shape
	// violation at a call boundary. It aborts that call only.
	ErrDimensionMismatch = errors.New("nn: dimension mismatch")

	// ErrNotFinite reports a NaN or infinity detected at a forward,
	// backward, or apply boundary. A non-finite value is an invariant
	// breach, not a recoverable state; it surfaces immediately so silent
	// corruption cannot propagate through later computation.
	ErrNotFinite = errors.New("nn: non-finite value")
)
