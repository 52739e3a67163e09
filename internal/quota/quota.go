package quota

import (
	"context"
	"fmt"

	"docstore-backend/internal/resilience"
	"docstore-backend/internal/usage"
)

// ExceededError reports an upload that would overflow the user's quota. It
// carries the figures clients need to render the rejection.
type ExceededError struct {
	CurrentBytes  int64
	IncomingBytes int64
	LimitBytes    int64
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("storage quota exceeded: %d/%d bytes", e.CurrentBytes+e.IncomingBytes, e.LimitBytes)
}

// Manager decides whether an upload may be admitted. The check reads usage
// at call time and is advisory; the transactional counter update is the
// true serialization point.
type Manager struct {
	store usage.Store
	guard *resilience.Guard
	limit int64
}

// NewManager constructs a Manager with the configured per-user limit.
func NewManager(store usage.Store, guard *resilience.Guard, limit int64) *Manager {
	return &Manager{store: store, guard: guard, limit: limit}
}

// Limit returns the configured per-user byte limit.
func (m *Manager) Limit() int64 {
	return m.limit
}

// CheckAndReserve admits or rejects incomingBytes for the user. It returns
// *ExceededError on rejection and a guard error when usage cannot be read.
func (m *Manager) CheckAndReserve(ctx context.Context, userID string, incomingBytes int64) error {
	var current usage.Usage
	err := m.guard.Do(ctx, "usage.get", func(ctx context.Context) error {
		var inner error
		current, inner = m.store.Get(ctx, userID)
		return inner
	})
	if err != nil {
		return fmt.Errorf("read usage for quota check: %w", err)
	}

	if current.TotalBytes+incomingBytes > m.limit {
		return &ExceededError{
			CurrentBytes:  current.TotalBytes,
			IncomingBytes: incomingBytes,
			LimitBytes:    m.limit,
		}
	}
	return nil
}
