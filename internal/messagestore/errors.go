package messagestore

import "errors"

// Sentinel errors for message store operations.
var (
	// ErrStorageUnavailable is returned when the persisted table cannot be
	// opened or created. Fatal to the operation, propagated.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrDimensionMismatch is returned when a generated embedding's length
	// does not equal the topic's configured dimension. The message is not
	// persisted.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrQueryFailure indicates a user-filter tier raised. Internal: it
	// triggers the next tier and is only surfaced when all tiers fail.
	ErrQueryFailure = errors.New("query failure")

	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)
