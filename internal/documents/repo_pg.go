package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"docstore-backend/internal/usage"
)

const docColumns = `id, user_id, category, file_name, storage_path, size_bytes, mime_type, status, reconcile_needed, created_at, updated_at`

// PGRepo implements Repo on Postgres. The live-path uniqueness rule is a
// partial unique index on storage_path that excludes failed rows, so a
// retried upload of a failed document reuses its path.
type PGRepo struct {
	DB *sql.DB
}

// NewPGRepo constructs a Postgres-backed document repository.
func NewPGRepo(db *sql.DB) *PGRepo {
	return &PGRepo{DB: db}
}

// CreatePending inserts the metadata record before any object is written.
func (r *PGRepo) CreatePending(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (id, user_id, category, file_name, storage_path, size_bytes, mime_type, status, reconcile_needed, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9, $9)`

	_, err := r.DB.ExecContext(ctx, query,
		doc.ID, doc.UserID, doc.Category, doc.FileName, doc.StoragePath,
		doc.SizeBytes, doc.MimeType, string(StatusPending), doc.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePath
		}
		return fmt.Errorf("insert pending document: %w", err)
	}
	return nil
}

// GetByID returns the document only when owned by userID.
func (r *PGRepo) GetByID(ctx context.Context, userID, documentID string) (Document, error) {
	query := `SELECT ` + docColumns + ` FROM documents WHERE id = $1 AND user_id = $2`

	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, documentID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// Complete flips the row to completed and increments usage in one
// transaction.
func (r *PGRepo) Complete(ctx context.Context, userID, documentID string, sizeBytes int64) (usage.Usage, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return usage.Usage{}, fmt.Errorf("begin complete tx: %w", err)
	}
	defer tx.Rollback()

	const update = `
UPDATE documents
SET status = $1, reconcile_needed = FALSE, updated_at = $2
WHERE id = $3 AND user_id = $4 AND status = $5`

	res, err := tx.ExecContext(ctx, update, string(StatusCompleted), time.Now().UTC(), documentID, userID, string(StatusPending))
	if err != nil {
		return usage.Usage{}, fmt.Errorf("mark completed: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return usage.Usage{}, fmt.Errorf("mark completed: %w", err)
	}
	if rows == 0 {
		// Either the row is gone or a previous attempt already committed.
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM documents WHERE id = $1 AND user_id = $2`, documentID, userID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return usage.Usage{}, ErrNotFound
		}
		if err != nil {
			return usage.Usage{}, fmt.Errorf("check document status: %w", err)
		}
		if Status(status) != StatusCompleted {
			return usage.Usage{}, ErrNotFound
		}
		u, err := usage.ApplyDelta(ctx, tx, userID, 0, 0)
		if err != nil {
			return usage.Usage{}, fmt.Errorf("read usage: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return usage.Usage{}, fmt.Errorf("commit complete tx: %w", err)
		}
		return u, nil
	}

	u, err := usage.ApplyDelta(ctx, tx, userID, 1, sizeBytes)
	if err != nil {
		return usage.Usage{}, fmt.Errorf("increment usage: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return usage.Usage{}, fmt.Errorf("commit complete tx: %w", err)
	}
	return u, nil
}

// DeleteCompleted removes the row and decrements usage in one transaction.
func (r *PGRepo) DeleteCompleted(ctx context.Context, userID, documentID string, sizeBytes int64) (usage.Usage, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return usage.Usage{}, fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback()

	const del = `DELETE FROM documents WHERE id = $1 AND user_id = $2 AND status = $3`

	res, err := tx.ExecContext(ctx, del, documentID, userID, string(StatusCompleted))
	if err != nil {
		return usage.Usage{}, fmt.Errorf("delete document: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return usage.Usage{}, fmt.Errorf("delete document: %w", err)
	}
	if rows == 0 {
		return usage.Usage{}, ErrNotFound
	}

	u, err := usage.ApplyDelta(ctx, tx, userID, -1, -sizeBytes)
	if err != nil {
		return usage.Usage{}, fmt.Errorf("decrement usage: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return usage.Usage{}, fmt.Errorf("commit delete tx: %w", err)
	}
	return u, nil
}

// MarkFailed retires an abandoned upload; the row stays for audit but no
// longer blocks its storage path.
func (r *PGRepo) MarkFailed(ctx context.Context, documentID string) error {
	const query = `UPDATE documents SET status = $1, reconcile_needed = FALSE, updated_at = $2 WHERE id = $3`
	if _, err := r.DB.ExecContext(ctx, query, string(StatusFailed), time.Now().UTC(), documentID); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// FlagReconcile marks a document whose backends may disagree.
func (r *PGRepo) FlagReconcile(ctx context.Context, documentID string) error {
	const query = `UPDATE documents SET reconcile_needed = TRUE, updated_at = $1 WHERE id = $2`
	if _, err := r.DB.ExecContext(ctx, query, time.Now().UTC(), documentID); err != nil {
		return fmt.Errorf("flag reconcile: %w", err)
	}
	return nil
}

// ClearReconcile drops the flag from a document found to be consistent.
func (r *PGRepo) ClearReconcile(ctx context.Context, documentID string) error {
	const query = `UPDATE documents SET reconcile_needed = FALSE, updated_at = $1 WHERE id = $2`
	if _, err := r.DB.ExecContext(ctx, query, time.Now().UTC(), documentID); err != nil {
		return fmt.Errorf("clear reconcile: %w", err)
	}
	return nil
}

// List returns the user's completed documents, newest first.
func (r *PGRepo) List(ctx context.Context, q ListQuery) ([]Document, error) {
	query := `SELECT ` + docColumns + ` FROM documents WHERE user_id = $1 AND status = $2`
	args := []any{q.UserID, string(StatusCompleted)}

	if q.Category != "" {
		args = append(args, q.Category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if q.Date != nil {
		day := q.Date.UTC().Truncate(24 * time.Hour)
		args = append(args, day)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
		args = append(args, day.Add(24*time.Hour))
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}

	query += " ORDER BY created_at DESC, id DESC"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	return r.queryDocuments(ctx, query, args...)
}

// ListPendingBefore returns unflagged pending documents older than cutoff.
func (r *PGRepo) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]Document, error) {
	query := `SELECT ` + docColumns + ` FROM documents
WHERE status = $1 AND reconcile_needed = FALSE AND created_at < $2
ORDER BY created_at ASC LIMIT $3`
	return r.queryDocuments(ctx, query, string(StatusPending), cutoff, limit)
}

// ListFlagged returns documents awaiting reconciliation.
func (r *PGRepo) ListFlagged(ctx context.Context, limit int) ([]Document, error) {
	query := `SELECT ` + docColumns + ` FROM documents
WHERE reconcile_needed = TRUE
ORDER BY updated_at ASC LIMIT $1`
	return r.queryDocuments(ctx, query, limit)
}

func (r *PGRepo) queryDocuments(ctx context.Context, query string, args ...any) ([]Document, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var status string
	err := row.Scan(&doc.ID, &doc.UserID, &doc.Category, &doc.FileName, &doc.StoragePath,
		&doc.SizeBytes, &doc.MimeType, &status, &doc.ReconcileNeeded, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return Document{}, err
	}
	doc.Status = Status(status)
	return doc, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Repo = (*PGRepo)(nil)
