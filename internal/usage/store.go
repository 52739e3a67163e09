package usage

import "context"

// Store reads and adjusts per-user usage counters. Adjust must be strictly
// serializable per user so concurrent uploads and deletes never lose an
// update; deltas may be negative but counters never go below zero.
type Store interface {
	// Get returns the user's usage, zero-valued when the user has no record.
	Get(ctx context.Context, userID string) (Usage, error)
	// Adjust applies the deltas atomically and returns the updated record.
	Adjust(ctx context.Context, userID string, fileDelta, bytesDelta int64) (Usage, error)
}
