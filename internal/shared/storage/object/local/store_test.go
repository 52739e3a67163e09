package local

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"docstore-backend/internal/shared/storage/object"
)

func TestPutGetDeleteRoundTrip(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()

	body := []byte("hello stored world")
	n, err := store.Put(ctx, "documents/u1/reports/2026-08-24/a.txt", "text/plain", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if n != int64(len(body)) {
		t.Fatalf("Put size = %d, want %d", n, len(body))
	}

	rc, size, err := store.Get(ctx, "documents/u1/reports/2026-08-24/a.txt")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer rc.Close()
	if size != int64(len(body)) {
		t.Fatalf("Get size = %d, want %d", size, len(body))
	}
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("round trip mismatch: %q", got)
	}

	if err := store.Delete(ctx, "documents/u1/reports/2026-08-24/a.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := store.Get(ctx, "documents/u1/reports/2026-08-24/a.txt"); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestStatReportsSizeWithoutOpening(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()

	body := []byte("sized contents")
	if _, err := store.Put(ctx, "documents/u1/general/2026-08-24/b.txt", "text/plain", bytes.NewReader(body)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	size, err := store.Stat(ctx, "documents/u1/general/2026-08-24/b.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if size != int64(len(body)) {
		t.Fatalf("Stat size = %d, want %d", size, len(body))
	}

	if _, err := store.Stat(ctx, "documents/u1/general/2026-08-24/missing.txt"); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("Stat absent = %v, want ErrNotFound", err)
	}
}

func TestDeleteAbsentKeyIsNoop(t *testing.T) {
	store := New(t.TempDir())
	if err := store.Delete(context.Background(), "documents/u1/missing.txt"); err != nil {
		t.Fatalf("Delete absent: %v", err)
	}
}

func TestRejectsTraversalKeys(t *testing.T) {
	store := New(t.TempDir())
	if _, err := store.Put(context.Background(), "../outside.txt", "text/plain", bytes.NewReader([]byte("x"))); err == nil {
		t.Fatal("expected traversal key rejection")
	}
}

func TestPresignUnsupported(t *testing.T) {
	store := New(t.TempDir())
	if _, _, err := store.PresignGet(context.Background(), "k", 0); !errors.Is(err, object.ErrPresignUnsupported) {
		t.Fatalf("PresignGet = %v, want ErrPresignUnsupported", err)
	}
}
