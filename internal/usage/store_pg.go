package usage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Queryer matches both *sql.DB and *sql.Tx so the usage upsert can run
// standalone or inside a document transaction.
type Queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PGStore implements Store using Postgres.
type PGStore struct {
	DB *sql.DB
}

// NewPGStore constructs a Postgres-backed usage store.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{DB: db}
}

// Get returns the user's usage, zero-valued when absent.
func (s *PGStore) Get(ctx context.Context, userID string) (Usage, error) {
	const query = `
SELECT user_id, file_count, total_bytes, updated_at
FROM user_usage
WHERE user_id = $1`
	var u Usage
	err := s.DB.QueryRowContext(ctx, query, userID).Scan(&u.UserID, &u.FileCount, &u.TotalBytes, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Usage{UserID: userID, UpdatedAt: time.Now().UTC()}, nil
		}
		return Usage{}, err
	}
	return u, nil
}

// Adjust applies the deltas in a single upsert statement.
func (s *PGStore) Adjust(ctx context.Context, userID string, fileDelta, bytesDelta int64) (Usage, error) {
	return ApplyDelta(ctx, s.DB, userID, fileDelta, bytesDelta)
}

// ApplyDelta runs the atomic usage upsert on the given queryer. The single
// statement is the serialization point for concurrent counter updates.
func ApplyDelta(ctx context.Context, q Queryer, userID string, fileDelta, bytesDelta int64) (Usage, error) {
	const query = `
INSERT INTO user_usage (user_id, file_count, total_bytes, updated_at)
VALUES ($1, GREATEST(0, $2), GREATEST(0, $3), $4)
ON CONFLICT (user_id) DO UPDATE SET
    file_count = GREATEST(0, user_usage.file_count + $2),
    total_bytes = GREATEST(0, user_usage.total_bytes + $3),
    updated_at = $4
RETURNING user_id, file_count, total_bytes, updated_at`

	now := time.Now().UTC()
	var u Usage
	err := q.QueryRowContext(ctx, query, userID, fileDelta, bytesDelta, now).
		Scan(&u.UserID, &u.FileCount, &u.TotalBytes, &u.UpdatedAt)
	if err != nil {
		return Usage{}, err
	}
	return u, nil
}

var _ Store = (*PGStore)(nil)
