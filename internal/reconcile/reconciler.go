// Package reconcile repairs the narrow windows where the object store and
// the metadata store can disagree: uploads abandoned mid-stream, commits
// that failed after the object landed, and deletes that removed the object
// but not the row.
package reconcile

import (
	"context"
	"errors"
	"time"

	"docstore-backend/internal/documents"
	"docstore-backend/internal/metrics"
	"docstore-backend/internal/resilience"
	"docstore-backend/internal/shared/storage/object"
	"docstore-backend/internal/shared/telemetry"
)

const defaultBatchSize = 100

// Report summarizes one reconciliation sweep.
type Report struct {
	Completed int
	Failed    int
	Deleted   int
	Cleared   int
	Errors    int
}

// Reconciler periodically sweeps flagged and stale-pending documents and
// drives each back to a state both stores agree on.
type Reconciler struct {
	Repo       documents.Repo
	Objects    object.Store
	StoreGuard *resilience.Guard
	DBGuard    *resilience.Guard
	Collector  *metrics.Collector
	Interval   time.Duration
	Staleness  time.Duration
	BatchSize  int

	now func() time.Time
}

// New constructs a Reconciler.
func New(repo documents.Repo, objects object.Store, storeGuard, dbGuard *resilience.Guard, collector *metrics.Collector, interval, staleness time.Duration) *Reconciler {
	return &Reconciler{
		Repo:       repo,
		Objects:    objects,
		StoreGuard: storeGuard,
		DBGuard:    dbGuard,
		Collector:  collector,
		Interval:   interval,
		Staleness:  staleness,
		BatchSize:  defaultBatchSize,
		now:        time.Now,
	}
}

// Start runs sweeps on the configured interval until ctx is canceled.
func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	telemetry.Info("reconcile.started", map[string]any{
		"interval":  r.Interval.String(),
		"staleness": r.Staleness.String(),
	})

	for {
		select {
		case <-ctx.Done():
			telemetry.Info("reconcile.stopped", nil)
			return
		case <-ticker.C:
			report := r.RunOnce(ctx)
			if report != (Report{}) {
				telemetry.Info("reconcile.sweep", map[string]any{
					"completed": report.Completed,
					"failed":    report.Failed,
					"deleted":   report.Deleted,
					"cleared":   report.Cleared,
					"errors":    report.Errors,
				})
			}
		}
	}
}

// RunOnce performs a single sweep. Errors on individual documents are
// counted and logged, never fatal; the next sweep picks them up again.
func (r *Reconciler) RunOnce(ctx context.Context) Report {
	var report Report

	cutoff := r.now().UTC().Add(-r.Staleness)
	var stale []documents.Document
	err := r.DBGuard.Do(ctx, "reconcile.list_pending", func(ctx context.Context) error {
		var inner error
		stale, inner = r.Repo.ListPendingBefore(ctx, cutoff, r.BatchSize)
		return inner
	})
	if err != nil {
		telemetry.Warn("reconcile.list_pending_failed", map[string]any{"err": err.Error()})
		report.Errors++
	}
	for _, doc := range stale {
		r.resolvePending(ctx, doc, &report)
	}

	var flagged []documents.Document
	err = r.DBGuard.Do(ctx, "reconcile.list_flagged", func(ctx context.Context) error {
		var inner error
		flagged, inner = r.Repo.ListFlagged(ctx, r.BatchSize)
		return inner
	})
	if err != nil {
		telemetry.Warn("reconcile.list_flagged_failed", map[string]any{"err": err.Error()})
		report.Errors++
	}
	for _, doc := range flagged {
		switch doc.Status {
		case documents.StatusPending:
			r.resolvePending(ctx, doc, &report)
		case documents.StatusCompleted:
			r.resolveCompleted(ctx, doc, &report)
		default:
			// A failed row carries no object; just drop the flag.
			r.clearFlag(ctx, doc, &report)
		}
	}

	return report
}

// resolvePending finishes or retires a pending row. When the object landed,
// the upload only missed its commit, so commit it now; otherwise the upload
// never finished and the row is retired.
func (r *Reconciler) resolvePending(ctx context.Context, doc documents.Document, report *Report) {
	exists, err := r.objectExists(ctx, doc.StoragePath)
	if err != nil {
		report.Errors++
		return
	}

	if exists {
		var u int64
		err := r.DBGuard.Do(ctx, "reconcile.complete", func(ctx context.Context) error {
			usage, inner := r.Repo.Complete(ctx, doc.UserID, doc.ID, doc.SizeBytes)
			u = usage.TotalBytes
			return inner
		})
		if err != nil {
			telemetry.Warn("reconcile.complete_failed", map[string]any{"document_id": doc.ID, "err": err.Error()})
			report.Errors++
			return
		}
		r.Collector.SetUserStorage(doc.UserID, u)
		telemetry.Info("reconcile.completed_upload", map[string]any{"document_id": doc.ID, "user_id": doc.UserID})
		report.Completed++
		return
	}

	err = r.DBGuard.Do(ctx, "reconcile.mark_failed", func(ctx context.Context) error {
		return r.Repo.MarkFailed(ctx, doc.ID)
	})
	if err != nil {
		telemetry.Warn("reconcile.mark_failed_failed", map[string]any{"document_id": doc.ID, "err": err.Error()})
		report.Errors++
		return
	}
	telemetry.Info("reconcile.retired_upload", map[string]any{"document_id": doc.ID, "user_id": doc.UserID})
	report.Failed++
}

// resolveCompleted handles a completed row whose object may be gone. An
// absent object means a delete lost its commit or a write was lost; either
// way the phantom row comes out with its usage decrement.
func (r *Reconciler) resolveCompleted(ctx context.Context, doc documents.Document, report *Report) {
	exists, err := r.objectExists(ctx, doc.StoragePath)
	if err != nil {
		report.Errors++
		return
	}

	if exists {
		r.clearFlag(ctx, doc, report)
		return
	}

	var u int64
	err = r.DBGuard.Do(ctx, "reconcile.delete", func(ctx context.Context) error {
		usage, inner := r.Repo.DeleteCompleted(ctx, doc.UserID, doc.ID, doc.SizeBytes)
		if errors.Is(inner, documents.ErrNotFound) {
			return resilience.Permanent(inner)
		}
		u = usage.TotalBytes
		return inner
	})
	if err != nil && !errors.Is(err, documents.ErrNotFound) {
		telemetry.Warn("reconcile.delete_failed", map[string]any{"document_id": doc.ID, "err": err.Error()})
		report.Errors++
		return
	}
	if err == nil {
		r.Collector.SetUserStorage(doc.UserID, u)
	}
	telemetry.Info("reconcile.removed_phantom", map[string]any{"document_id": doc.ID, "user_id": doc.UserID})
	report.Deleted++
}

func (r *Reconciler) clearFlag(ctx context.Context, doc documents.Document, report *Report) {
	err := r.DBGuard.Do(ctx, "reconcile.clear_flag", func(ctx context.Context) error {
		return r.Repo.ClearReconcile(ctx, doc.ID)
	})
	if err != nil {
		telemetry.Warn("reconcile.clear_flag_failed", map[string]any{"document_id": doc.ID, "err": err.Error()})
		report.Errors++
		return
	}
	report.Cleared++
}

func (r *Reconciler) objectExists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.StoreGuard.Do(ctx, "reconcile.stat", func(ctx context.Context) error {
		_, inner := r.Objects.Stat(ctx, key)
		if errors.Is(inner, object.ErrNotFound) {
			exists = false
			return nil
		}
		if inner != nil {
			return inner
		}
		exists = true
		return nil
	})
	if err != nil {
		telemetry.Warn("reconcile.stat_failed", map[string]any{"path": key, "err": err.Error()})
		return false, err
	}
	return exists, nil
}
