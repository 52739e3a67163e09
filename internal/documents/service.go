package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"

	"docstore-backend/internal/metrics"
	"docstore-backend/internal/quota"
	"docstore-backend/internal/resilience"
	"docstore-backend/internal/shared/storage/object"
	"docstore-backend/internal/shared/telemetry"
	"docstore-backend/internal/usage"
)

// Limits bounds what uploads the service accepts.
type Limits struct {
	MaxFileSizeBytes  int64
	AllowedMimeTypes  []string
	URLExpiryDefault  time.Duration
	URLExpiryMax      time.Duration
	DownloadChunkSize int
}

// UploadInput is the metadata declared ahead of the file stream. SizeBytes
// is the exact byte count the stream must carry.
type UploadInput struct {
	Category  string
	FileName  string
	MimeType  string
	SizeBytes int64
}

// URLGrant is a time-limited presigned download link.
type URLGrant struct {
	Document  Document
	URL       string
	ExpiresAt time.Time
}

// Service coordinates the object store and the metadata store. Every backend
// call goes through a guard; the write and delete orders below are what keep
// the two systems from drifting apart.
type Service struct {
	repo       Repo
	objects    object.Store
	storeGuard *resilience.Guard
	dbGuard    *resilience.Guard
	quota      *quota.Manager
	collector  *metrics.Collector
	limits     Limits
	allowed    map[string]struct{}

	now func() time.Time
}

// NewService constructs the document service.
func NewService(repo Repo, objects object.Store, storeGuard, dbGuard *resilience.Guard, qm *quota.Manager, collector *metrics.Collector, limits Limits) *Service {
	allowed := make(map[string]struct{}, len(limits.AllowedMimeTypes))
	for _, mt := range limits.AllowedMimeTypes {
		allowed[strings.ToLower(strings.TrimSpace(mt))] = struct{}{}
	}
	return &Service{
		repo:       repo,
		objects:    objects,
		storeGuard: storeGuard,
		dbGuard:    dbGuard,
		quota:      qm,
		collector:  collector,
		limits:     limits,
		allowed:    allowed,
		now:        time.Now,
	}
}

// ChunkSize returns the configured download chunk size.
func (s *Service) ChunkSize() int {
	return s.limits.DownloadChunkSize
}

// Upload runs the two-system write protocol: validate, check quota, create
// the pending record, stream the object, then commit metadata and usage in
// one transaction. The pending record exists before the first object byte so
// an orphaned object is always discoverable.
func (s *Service) Upload(ctx context.Context, userID string, in UploadInput, body io.Reader) (Document, error) {
	doc, err := s.validateUpload(userID, in)
	if err != nil {
		s.collector.RecordOperationFailure()
		return Document{}, err
	}

	if err := s.quota.CheckAndReserve(ctx, userID, doc.SizeBytes); err != nil {
		var exceeded *quota.ExceededError
		if errors.As(err, &exceeded) {
			s.collector.RecordQuotaExceeded()
			return Document{}, err
		}
		s.collector.RecordDBUnavailable()
		return Document{}, fmt.Errorf("%w: %v", ErrDBUnavailable, err)
	}

	err = s.dbGuard.Do(ctx, "documents.create_pending", func(ctx context.Context) error {
		inner := s.repo.CreatePending(ctx, doc)
		if errors.Is(inner, ErrDuplicatePath) {
			return resilience.Permanent(inner)
		}
		return inner
	})
	if err != nil {
		if errors.Is(err, ErrDuplicatePath) {
			s.collector.RecordOperationFailure()
			return Document{}, ErrDuplicatePath
		}
		s.collector.RecordDBUnavailable()
		return Document{}, fmt.Errorf("%w: %v", ErrDBUnavailable, err)
	}

	// The body cannot be replayed, so the object write gets one breaker
	// protected attempt. LimitReader lets a stream that overruns its
	// declared size be caught as a count mismatch.
	var written int64
	err = s.storeGuard.DoOnce(ctx, "objects.put", func(ctx context.Context) error {
		var inner error
		written, inner = s.objects.Put(ctx, doc.StoragePath, doc.MimeType, io.LimitReader(body, doc.SizeBytes+1))
		return inner
	})
	if err != nil {
		s.abandonUpload(ctx, doc)
		if ctx.Err() != nil {
			s.collector.RecordOperationFailure()
			return Document{}, fmt.Errorf("upload stream aborted: %w", ctx.Err())
		}
		s.collector.RecordStoreUnavailable()
		return Document{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if written != doc.SizeBytes {
		s.abandonUpload(ctx, doc)
		s.collector.RecordOperationFailure()
		return Document{}, &ValidationError{
			Field:  "sizeBytes",
			Reason: fmt.Sprintf("stream carried %d bytes, declared %d", written, doc.SizeBytes),
		}
	}

	var u usage.Usage
	err = s.dbGuard.Do(ctx, "documents.complete", func(ctx context.Context) error {
		var inner error
		u, inner = s.repo.Complete(ctx, userID, doc.ID, doc.SizeBytes)
		return inner
	})
	if err != nil {
		// The object exists but metadata is stuck in pending. Flag the row
		// so the reconciler finishes or undoes the write, and report the
		// failure honestly.
		s.flagForReconcile(ctx, doc.ID)
		s.collector.RecordOperationFailure()
		return Document{}, fmt.Errorf("commit upload: %w: %v", ErrDBUnavailable, err)
	}

	doc.Status = StatusCompleted
	doc.UpdatedAt = s.now().UTC()
	s.collector.RecordUpload(userID, doc.SizeBytes)
	s.collector.SetUserStorage(userID, u.TotalBytes)
	return doc, nil
}

// Download returns the document and a reader over its content. The caller
// owns the reader and must close it.
func (s *Service) Download(ctx context.Context, userID, documentID string) (Document, io.ReadCloser, error) {
	doc, err := s.getCompleted(ctx, userID, documentID)
	if err != nil {
		return Document{}, nil, err
	}

	var rc io.ReadCloser
	err = s.storeGuard.DoOnce(ctx, "objects.get", func(ctx context.Context) error {
		var inner error
		rc, _, inner = s.objects.Get(ctx, doc.StoragePath)
		if errors.Is(inner, object.ErrNotFound) {
			return resilience.Permanent(inner)
		}
		return inner
	})
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			// Completed metadata without an object means the stores disagree.
			s.flagForReconcile(ctx, doc.ID)
			s.collector.RecordOperationFailure()
			return Document{}, nil, fmt.Errorf("%w: object missing for document %s", ErrStoreUnavailable, doc.ID)
		}
		s.collector.RecordStoreUnavailable()
		return Document{}, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.collector.RecordDownload()
	return doc, rc, nil
}

// PresignURL returns a time-limited direct download link. Expiry is clamped
// to the configured maximum; zero means the default.
func (s *Service) PresignURL(ctx context.Context, userID, documentID string, expiry time.Duration) (URLGrant, error) {
	if expiry <= 0 {
		expiry = s.limits.URLExpiryDefault
	}
	if expiry > s.limits.URLExpiryMax {
		expiry = s.limits.URLExpiryMax
	}

	doc, err := s.getCompleted(ctx, userID, documentID)
	if err != nil {
		return URLGrant{}, err
	}

	var url string
	var expiresAt time.Time
	err = s.storeGuard.Do(ctx, "objects.presign", func(ctx context.Context) error {
		var inner error
		url, expiresAt, inner = s.objects.PresignGet(ctx, doc.StoragePath, expiry)
		if errors.Is(inner, object.ErrPresignUnsupported) {
			return resilience.Permanent(inner)
		}
		return inner
	})
	if err != nil {
		if errors.Is(err, object.ErrPresignUnsupported) {
			return URLGrant{}, &ValidationError{Field: "url", Reason: "presigned urls are not supported by this store"}
		}
		s.collector.RecordStoreUnavailable()
		return URLGrant{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return URLGrant{Document: doc, URL: url, ExpiresAt: expiresAt}, nil
}

// Delete removes the object first, then the metadata row and the usage
// decrement in one transaction. A failure between the two flags the row for
// reconciliation instead of leaving a silent phantom.
func (s *Service) Delete(ctx context.Context, userID, documentID string) (usage.Usage, error) {
	doc, err := s.getCompleted(ctx, userID, documentID)
	if err != nil {
		return usage.Usage{}, err
	}

	err = s.storeGuard.Do(ctx, "objects.delete", func(ctx context.Context) error {
		inner := s.objects.Delete(ctx, doc.StoragePath)
		if errors.Is(inner, object.ErrNotFound) {
			// Already gone; the metadata removal below restores agreement.
			return nil
		}
		return inner
	})
	if err != nil {
		// Nothing was touched yet; the document stays fully intact.
		s.collector.RecordStoreUnavailable()
		return usage.Usage{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var u usage.Usage
	err = s.dbGuard.Do(ctx, "documents.delete", func(ctx context.Context) error {
		var inner error
		u, inner = s.repo.DeleteCompleted(ctx, userID, doc.ID, doc.SizeBytes)
		if errors.Is(inner, ErrNotFound) {
			return resilience.Permanent(inner)
		}
		return inner
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Concurrent delete won the race after our object removal.
			return usage.Usage{}, ErrNotFound
		}
		// The object is gone but the row remains. Flag it so the reconciler
		// finishes the delete.
		s.flagForReconcile(ctx, doc.ID)
		s.collector.RecordOperationFailure()
		return usage.Usage{}, fmt.Errorf("commit delete: %w: %v", ErrDBUnavailable, err)
	}

	s.collector.RecordDelete(userID, doc.SizeBytes)
	s.collector.SetUserStorage(userID, u.TotalBytes)
	return u, nil
}

// List pages through the user's completed documents.
func (s *Service) List(ctx context.Context, q ListQuery) ([]Document, error) {
	var docs []Document
	err := s.dbGuard.Do(ctx, "documents.list", func(ctx context.Context) error {
		var inner error
		docs, inner = s.repo.List(ctx, q)
		return inner
	})
	if err != nil {
		s.collector.RecordDBUnavailable()
		return nil, fmt.Errorf("%w: %v", ErrDBUnavailable, err)
	}
	return docs, nil
}

func (s *Service) validateUpload(userID string, in UploadInput) (Document, error) {
	fileName, err := NormalizeFileName(in.FileName)
	if err != nil {
		return Document{}, err
	}
	category, err := NormalizeCategory(in.Category)
	if err != nil {
		return Document{}, err
	}

	mediaType, _, err := mime.ParseMediaType(in.MimeType)
	if err != nil {
		return Document{}, &ValidationError{Field: "mimeType", Reason: "unparseable media type"}
	}
	if _, ok := s.allowed[mediaType]; !ok {
		return Document{}, &ValidationError{Field: "mimeType", Reason: fmt.Sprintf("type %q is not allowed", mediaType)}
	}

	if in.SizeBytes <= 0 {
		return Document{}, &ValidationError{Field: "sizeBytes", Reason: "must be positive"}
	}
	if in.SizeBytes > s.limits.MaxFileSizeBytes {
		return Document{}, &ValidationError{
			Field:  "sizeBytes",
			Reason: fmt.Sprintf("exceeds maximum of %d bytes", s.limits.MaxFileSizeBytes),
		}
	}

	now := s.now().UTC()
	return Document{
		ID:          uuid.NewString(),
		UserID:      userID,
		Category:    category,
		FileName:    fileName,
		StoragePath: StoragePath(userID, category, fileName, now),
		SizeBytes:   in.SizeBytes,
		MimeType:    mediaType,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (s *Service) getCompleted(ctx context.Context, userID, documentID string) (Document, error) {
	var doc Document
	err := s.dbGuard.Do(ctx, "documents.get", func(ctx context.Context) error {
		var inner error
		doc, inner = s.repo.GetByID(ctx, userID, documentID)
		if errors.Is(inner, ErrNotFound) {
			return resilience.Permanent(inner)
		}
		return inner
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Document{}, ErrNotFound
		}
		s.collector.RecordDBUnavailable()
		return Document{}, fmt.Errorf("%w: %v", ErrDBUnavailable, err)
	}
	if doc.Status != StatusCompleted {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

// abandonUpload undoes a failed upload best effort: remove whatever part of
// the object landed, then retire the pending row. Runs detached from the
// request context so a client abort cannot cancel its own cleanup.
func (s *Service) abandonUpload(ctx context.Context, doc Document) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	err := s.storeGuard.Do(cleanupCtx, "objects.delete", func(ctx context.Context) error {
		inner := s.objects.Delete(ctx, doc.StoragePath)
		if errors.Is(inner, object.ErrNotFound) {
			return nil
		}
		return inner
	})
	if err != nil {
		// The stale pending row keeps the orphan discoverable.
		telemetry.Warn("upload.cleanup_object_failed", map[string]any{
			"document_id": doc.ID,
			"path":        doc.StoragePath,
			"err":         err.Error(),
		})
		return
	}

	err = s.dbGuard.Do(cleanupCtx, "documents.mark_failed", func(ctx context.Context) error {
		return s.repo.MarkFailed(ctx, doc.ID)
	})
	if err != nil {
		telemetry.Warn("upload.cleanup_metadata_failed", map[string]any{
			"document_id": doc.ID,
			"err":         err.Error(),
		})
	}
}

func (s *Service) flagForReconcile(ctx context.Context, documentID string) {
	flagCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	err := s.dbGuard.DoOnce(flagCtx, "documents.flag_reconcile", func(ctx context.Context) error {
		return s.repo.FlagReconcile(ctx, documentID)
	})
	if err != nil {
		telemetry.Error("reconcile.flag_failed", map[string]any{
			"document_id": documentID,
			"err":         err.Error(),
		})
	}
}
