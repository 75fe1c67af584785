package uniswap_v4_hedger

import "errors"

// Error taxonomy surfaced to callers. Every failure aborts the enclosing
// unit of work; there is no retry inside the core.
var (
	// ErrInvalidConfig: the owner supplied a degenerate strategy config
	// (all-zero position range, inverted bounds, offsets off the tick grid).
	ErrInvalidConfig = errors.New("invalid strategy config")

	// ErrInvalidPool: operation on a pool that is unconfigured, uninitialized,
	// or unknown to the registry.
	ErrInvalidPool = errors.New("invalid pool")

	// ErrNativeValueMismatch: the native value attached to a deposit does not
	// match the computed requirement.
	ErrNativeValueMismatch = errors.New("native value mismatch")

	// ErrInsufficientLiquidity: a trade could not be filled at the exact
	// specified size.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrUnknownAction: malformed dispatch tag. Not reachable through the
	// public surface.
	ErrUnknownAction = errors.New("unknown action")
)
