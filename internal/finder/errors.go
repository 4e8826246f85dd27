package finder

import "errors"

var (
	// ErrInvalidInput is returned when the target is not an element, or lies
	// outside the configured root.
	ErrInvalidInput = errors.New("finder: invalid input")

	// ErrNotFound is returned when no richness level produced a unique path.
	ErrNotFound = errors.New("finder: selector not found")

	// ErrInvariant signals that a path derived from the target's own
	// ancestors matched nothing. It indicates a bug, not bad input.
	ErrInvariant = errors.New("finder: internal invariant violated")
)

// errThreshold aborts a walk whose combination count outgrew the threshold.
var errThreshold = errors.New("combination threshold exceeded")

// errExhausted ends a walk that reached the root without a unique path.
var errExhausted = errors.New("ancestor walk exhausted")
