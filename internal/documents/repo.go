package documents

import (
	"context"
	"time"

	"docstore-backend/internal/usage"
)

// Repo persists document metadata. Complete and DeleteCompleted pair the
// status change with the usage counter update in one transaction; the two
// must never be observable apart.
type Repo interface {
	CreatePending(ctx context.Context, doc Document) error
	GetByID(ctx context.Context, userID, documentID string) (Document, error)

	// Complete marks a pending document completed and increments the owner's
	// usage atomically. Completing an already completed document is a no-op
	// that returns current usage, so a retried commit never double-counts.
	Complete(ctx context.Context, userID, documentID string, sizeBytes int64) (usage.Usage, error)

	// DeleteCompleted removes a completed document and decrements the owner's
	// usage atomically.
	DeleteCompleted(ctx context.Context, userID, documentID string, sizeBytes int64) (usage.Usage, error)

	MarkFailed(ctx context.Context, documentID string) error
	FlagReconcile(ctx context.Context, documentID string) error
	ClearReconcile(ctx context.Context, documentID string) error

	List(ctx context.Context, q ListQuery) ([]Document, error)

	// ListPendingBefore and ListFlagged feed the reconciler.
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]Document, error)
	ListFlagged(ctx context.Context, limit int) ([]Document, error)
}
