package usage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]Usage
}

// NewMemoryStore constructs an empty in-memory usage store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Usage)}
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data[userID]
	if !ok {
		return Usage{UserID: userID, UpdatedAt: time.Now().UTC()}, nil
	}
	return u, nil
}

func (s *MemoryStore) Adjust(ctx context.Context, userID string, fileDelta, bytesDelta int64) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.data[userID]
	u.UserID = userID
	u.FileCount += fileDelta
	if u.FileCount < 0 {
		u.FileCount = 0
	}
	u.TotalBytes += bytesDelta
	if u.TotalBytes < 0 {
		u.TotalBytes = 0
	}
	u.UpdatedAt = time.Now().UTC()
	s.data[userID] = u
	return u, nil
}

var _ Store = (*MemoryStore)(nil)
