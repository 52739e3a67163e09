package documents

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db}, mock
}

func usageRows(fileCount, totalBytes int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"user_id", "file_count", "total_bytes", "updated_at"}).
		AddRow("user-1", fileCount, totalBytes, time.Now().UTC())
}

func TestCreatePendingInsertsRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO documents").
		WithArgs("doc-1", "user-1", "invoices", "a.pdf", "documents/user-1/invoices/2026-08-24/a.pdf",
			int64(1000), "application/pdf", "pending", now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.CreatePending(context.Background(), Document{
		ID:          "doc-1",
		UserID:      "user-1",
		Category:    "invoices",
		FileName:    "a.pdf",
		StoragePath: "documents/user-1/invoices/2026-08-24/a.pdf",
		SizeBytes:   1000,
		MimeType:    "application/pdf",
		CreatedAt:   now,
	})
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestCreatePendingMapsUniqueViolation(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO documents").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "documents_storage_path_live_key"})

	err := repo.CreatePending(context.Background(), Document{ID: "doc-1", UserID: "user-1"})
	if !errors.Is(err, ErrDuplicatePath) {
		t.Fatalf("CreatePending = %v, want ErrDuplicatePath", err)
	}
}

func TestGetByIDMapsNoRows(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM documents WHERE id").
		WithArgs("doc-1", "user-1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "user-1", "doc-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetByID = %v, want ErrNotFound", err)
	}
}

func TestCompleteCommitsStatusAndUsageTogether(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE documents").
		WithArgs("completed", sqlmock.AnyArg(), "doc-1", "user-1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO user_usage").
		WithArgs("user-1", int64(1), int64(1000), sqlmock.AnyArg()).
		WillReturnRows(usageRows(3, 5000))
	mock.ExpectCommit()

	u, err := repo.Complete(context.Background(), "user-1", "doc-1", 1000)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if u.FileCount != 3 || u.TotalBytes != 5000 {
		t.Fatalf("usage = %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestCompleteAlreadyCompletedDoesNotDoubleCount(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE documents").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM documents").
		WithArgs("doc-1", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("completed"))
	mock.ExpectQuery("INSERT INTO user_usage").
		WithArgs("user-1", int64(0), int64(0), sqlmock.AnyArg()).
		WillReturnRows(usageRows(3, 5000))
	mock.ExpectCommit()

	u, err := repo.Complete(context.Background(), "user-1", "doc-1", 1000)
	if err != nil {
		t.Fatalf("Complete retry: %v", err)
	}
	if u.TotalBytes != 5000 {
		t.Fatalf("usage = %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestCompleteMissingRowIsNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE documents").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM documents").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Complete(context.Background(), "user-1", "doc-1", 1000)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Complete = %v, want ErrNotFound", err)
	}
}

func TestDeleteCompletedDecrementsUsage(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM documents").
		WithArgs("doc-1", "user-1", "completed").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO user_usage").
		WithArgs("user-1", int64(-1), int64(-1000), sqlmock.AnyArg()).
		WillReturnRows(usageRows(2, 4000))
	mock.ExpectCommit()

	u, err := repo.DeleteCompleted(context.Background(), "user-1", "doc-1", 1000)
	if err != nil {
		t.Fatalf("DeleteCompleted: %v", err)
	}
	if u.FileCount != 2 || u.TotalBytes != 4000 {
		t.Fatalf("usage = %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestDeleteCompletedMissingRowRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM documents").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.DeleteCompleted(context.Background(), "user-1", "doc-1", 1000)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("DeleteCompleted = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestListAppliesCategoryAndDateFilters(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "category", "file_name", "storage_path",
		"size_bytes", "mime_type", "status", "reconcile_needed", "created_at", "updated_at",
	}).AddRow("doc-1", "user-1", "invoices", "a.pdf", "documents/user-1/invoices/2026-08-24/a.pdf",
		int64(1000), "application/pdf", "completed", false, now, now)

	mock.ExpectQuery("SELECT (.+) FROM documents WHERE user_id").
		WithArgs("user-1", "completed", "invoices", sqlmock.AnyArg(), sqlmock.AnyArg(), 10, 20).
		WillReturnRows(rows)

	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	docs, err := repo.List(context.Background(), ListQuery{
		UserID:   "user-1",
		Category: "invoices",
		Date:     &day,
		Limit:    10,
		Offset:   20,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 1 || docs[0].Status != StatusCompleted || docs[0].Category != "invoices" {
		t.Fatalf("docs = %+v", docs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
