package usage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestAdjustRunsSingleUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := NewPGStore(db)

	mock.ExpectQuery("INSERT INTO user_usage").
		WithArgs("user-1", int64(1), int64(2048), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "file_count", "total_bytes", "updated_at"}).
			AddRow("user-1", int64(4), int64(8192), time.Now().UTC()))

	u, err := store.Adjust(context.Background(), "user-1", 1, 2048)
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if u.FileCount != 4 || u.TotalBytes != 8192 {
		t.Fatalf("usage = %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestGetAbsentUserIsZeroValued(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := NewPGStore(db)

	mock.ExpectQuery("SELECT user_id, file_count, total_bytes, updated_at").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "file_count", "total_bytes", "updated_at"}))

	u, err := store.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if u.UserID != "user-1" || u.FileCount != 0 || u.TotalBytes != 0 {
		t.Fatalf("usage = %+v, want zero-valued", u)
	}
}
