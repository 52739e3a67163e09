package documents

import (
	"context"
	"sort"
	"sync"
	"time"

	"docstore-backend/internal/usage"
)

// MemoryRepo is an in-memory Repo for tests and local development. It shares
// a MemoryStore for usage so counter updates stay visible to the usage
// endpoints, mirroring the transactional coupling of the Postgres repo.
type MemoryRepo struct {
	mu    sync.Mutex
	docs  map[string]Document
	paths map[string]string // storage path -> document id, failed rows excluded
	usage *usage.MemoryStore
}

// NewMemoryRepo constructs an empty repository backed by the given usage
// store.
func NewMemoryRepo(us *usage.MemoryStore) *MemoryRepo {
	return &MemoryRepo{
		docs:  make(map[string]Document),
		paths: make(map[string]string),
		usage: us,
	}
}

func (r *MemoryRepo) CreatePending(ctx context.Context, doc Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.paths[doc.StoragePath]; taken {
		return ErrDuplicatePath
	}
	doc.Status = StatusPending
	doc.ReconcileNeeded = false
	r.docs[doc.ID] = doc
	r.paths[doc.StoragePath] = doc.ID
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, userID, documentID string) (Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[documentID]
	if !ok || doc.UserID != userID {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (r *MemoryRepo) Complete(ctx context.Context, userID, documentID string, sizeBytes int64) (usage.Usage, error) {
	r.mu.Lock()
	doc, ok := r.docs[documentID]
	if !ok || doc.UserID != userID {
		r.mu.Unlock()
		return usage.Usage{}, ErrNotFound
	}
	if doc.Status == StatusCompleted {
		r.mu.Unlock()
		return r.usage.Adjust(ctx, userID, 0, 0)
	}
	if doc.Status != StatusPending {
		r.mu.Unlock()
		return usage.Usage{}, ErrNotFound
	}
	doc.Status = StatusCompleted
	doc.ReconcileNeeded = false
	doc.UpdatedAt = time.Now().UTC()
	r.docs[documentID] = doc
	r.mu.Unlock()

	return r.usage.Adjust(ctx, userID, 1, sizeBytes)
}

func (r *MemoryRepo) DeleteCompleted(ctx context.Context, userID, documentID string, sizeBytes int64) (usage.Usage, error) {
	r.mu.Lock()
	doc, ok := r.docs[documentID]
	if !ok || doc.UserID != userID || doc.Status != StatusCompleted {
		r.mu.Unlock()
		return usage.Usage{}, ErrNotFound
	}
	delete(r.docs, documentID)
	delete(r.paths, doc.StoragePath)
	r.mu.Unlock()

	return r.usage.Adjust(ctx, userID, -1, -sizeBytes)
}

func (r *MemoryRepo) MarkFailed(ctx context.Context, documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[documentID]
	if !ok {
		return nil
	}
	doc.Status = StatusFailed
	doc.ReconcileNeeded = false
	doc.UpdatedAt = time.Now().UTC()
	r.docs[documentID] = doc
	delete(r.paths, doc.StoragePath)
	return nil
}

func (r *MemoryRepo) FlagReconcile(ctx context.Context, documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[documentID]
	if !ok {
		return nil
	}
	doc.ReconcileNeeded = true
	doc.UpdatedAt = time.Now().UTC()
	r.docs[documentID] = doc
	return nil
}

func (r *MemoryRepo) ClearReconcile(ctx context.Context, documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[documentID]
	if !ok {
		return nil
	}
	doc.ReconcileNeeded = false
	doc.UpdatedAt = time.Now().UTC()
	r.docs[documentID] = doc
	return nil
}

func (r *MemoryRepo) List(ctx context.Context, q ListQuery) ([]Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var docs []Document
	for _, doc := range r.docs {
		if doc.UserID != q.UserID || doc.Status != StatusCompleted {
			continue
		}
		if q.Category != "" && doc.Category != q.Category {
			continue
		}
		if q.Date != nil {
			day := q.Date.UTC().Truncate(24 * time.Hour)
			if doc.CreatedAt.Before(day) || !doc.CreatedAt.Before(day.Add(24*time.Hour)) {
				continue
			}
		}
		docs = append(docs, doc)
	}

	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID > docs[j].ID
	})

	if q.Offset > 0 {
		if q.Offset >= len(docs) {
			return nil, nil
		}
		docs = docs[q.Offset:]
	}
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs, nil
}

func (r *MemoryRepo) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var docs []Document
	for _, doc := range r.docs {
		if doc.Status == StatusPending && !doc.ReconcileNeeded && doc.CreatedAt.Before(cutoff) {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.Before(docs[j].CreatedAt) })
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (r *MemoryRepo) ListFlagged(ctx context.Context, limit int) ([]Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var docs []Document
	for _, doc := range r.docs {
		if doc.ReconcileNeeded {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].UpdatedAt.Before(docs[j].UpdatedAt) })
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

var _ Repo = (*MemoryRepo)(nil)
