package usage

import (
	"context"
	"fmt"

	"docstore-backend/internal/resilience"
)

// Service serves usage statistics through the database guard.
type Service struct {
	Store      Store
	Guard      *resilience.Guard
	QuotaLimit int64
}

// NewService constructs the usage service.
func NewService(store Store, guard *resilience.Guard, quotaLimit int64) *Service {
	return &Service{Store: store, Guard: guard, QuotaLimit: quotaLimit}
}

// Stats returns the user's usage together with quota headroom.
func (s *Service) Stats(ctx context.Context, userID string) (Stats, error) {
	var u Usage
	err := s.Guard.Do(ctx, "usage.get", func(ctx context.Context) error {
		var inner error
		u, inner = s.Store.Get(ctx, userID)
		return inner
	})
	if err != nil {
		return Stats{}, fmt.Errorf("load usage: %w", err)
	}

	percent := 0.0
	if s.QuotaLimit > 0 {
		percent = float64(u.TotalBytes) / float64(s.QuotaLimit) * 100
	}
	return Stats{
		UserID:      userID,
		FileCount:   u.FileCount,
		TotalBytes:  u.TotalBytes,
		QuotaLimit:  s.QuotaLimit,
		PercentUsed: percent,
		LastUpdated: u.UpdatedAt,
	}, nil
}
