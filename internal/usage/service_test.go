package usage

import (
	"context"
	"testing"
	"time"

	"docstore-backend/internal/resilience"
)

func TestStatsComputesHeadroom(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Adjust(context.Background(), "u1", 3, 512<<20); err != nil {
		t.Fatalf("seed: %v", err)
	}
	guard := resilience.NewGuard("database", resilience.Policy{
		MaxAttempts: 1, FailureThreshold: 100, Cooldown: time.Minute,
	})
	svc := NewService(store, guard, 1<<30)

	stats, err := svc.Stats(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.FileCount != 3 || stats.TotalBytes != 512<<20 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.PercentUsed < 49.9 || stats.PercentUsed > 50.1 {
		t.Fatalf("percent used = %f, want ~50", stats.PercentUsed)
	}
	if stats.QuotaLimit != 1<<30 {
		t.Fatalf("quota limit = %d", stats.QuotaLimit)
	}
}

func TestStatsForNewUserIsZero(t *testing.T) {
	guard := resilience.NewGuard("database", resilience.Policy{
		MaxAttempts: 1, FailureThreshold: 100, Cooldown: time.Minute,
	})
	svc := NewService(NewMemoryStore(), guard, 1<<30)

	stats, err := svc.Stats(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.FileCount != 0 || stats.TotalBytes != 0 || stats.PercentUsed != 0 {
		t.Fatalf("stats = %+v, want zero", stats)
	}
}
