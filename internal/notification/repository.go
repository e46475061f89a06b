package notification

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sos-villages/signalement/internal/audit"
	"github.com/sos-villages/signalement/internal/shared/errors"
	"github.com/sos-villages/signalement/internal/shared/types"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL inbox store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const notificationColumns = `id, user_id, case_id, type, message, read_at, created_at`

// ListForUser returns the user's latest notifications, newest first
func (s *PostgresStore) ListForUser(ctx context.Context, userID types.ID, limit int) ([]*Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query notifications")
	}
	defer rows.Close()

	list := []*Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

// MarkRead marks a notification read. A notification already read keeps its first read time.
func (s *PostgresStore) MarkRead(ctx context.Context, id, userID types.ID, at time.Time, entry *audit.Entry) (*Notification, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE notifications SET read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND user_id = $2
		RETURNING `+notificationColumns, id, userID, at)
	n, err := scanNotification(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("notification", id.String())
		}
		return nil, err
	}

	if err := audit.Append(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to commit transaction")
	}
	return n, nil
}

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.UserID, &n.CaseID, &n.Type, &n.Message, &n.ReadAt, &n.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan notification")
	}
	return &n, nil
}
