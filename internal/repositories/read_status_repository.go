package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"roomchat/internal/models"
)

// unreadFilter selects messages m that are unread for the user whose read
// status is joined as rs. Its single placeholder is that user's id.
const unreadFilter = `m.user_id <> ? AND (rs.last_read_message_id IS NULL OR m.id > rs.last_read_message_id)`

// ReadStatusRepository tracks per-user read high-water marks. Unread
// counts are served with the room listing.
type ReadStatusRepository interface {
	UpsertReadStatus(ctx context.Context, userID, roomID int64, lastReadMessageID *int64) error
}

// ReadStatusRepo is a sqlx-backed repository.
type ReadStatusRepo struct {
	db *sqlx.DB
}

// NewReadStatusRepo constructs ReadStatusRepo.
func NewReadStatusRepo(db *sqlx.DB) *ReadStatusRepo {
	return &ReadStatusRepo{db: db}
}

// UpsertReadStatus creates the read status or advances it. The stored mark
// never moves backwards and a nil mark never clears an existing one.
func (r *ReadStatusRepo) UpsertReadStatus(ctx context.Context, userID, roomID int64, lastReadMessageID *int64) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO read_statuses (user_id, room_id, last_read_message_id, updated_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT (user_id, room_id) DO UPDATE SET
            last_read_message_id = CASE
                WHEN excluded.last_read_message_id IS NOT NULL
                 AND (read_statuses.last_read_message_id IS NULL
                      OR excluded.last_read_message_id > read_statuses.last_read_message_id)
                THEN excluded.last_read_message_id
                ELSE read_statuses.last_read_message_id
            END,
            updated_at = excluded.updated_at`),
		userID, roomID, lastReadMessageID, time.Now().UTC())
	return err
}

// GetReadStatus returns the read status, nil when none exists.
func (r *ReadStatusRepo) GetReadStatus(ctx context.Context, userID, roomID int64) (*models.ReadStatus, error) {
	var status models.ReadStatus
	err := r.db.GetContext(ctx, &status, r.db.Rebind(`SELECT user_id, room_id, last_read_message_id, updated_at FROM read_statuses WHERE user_id = ? AND room_id = ?`), userID, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// UnreadCount counts messages by other users above the user's mark, or all
// of them when the user has not read anything. It applies the same filter
// as the room listing.
func (r *ReadStatusRepo) UnreadCount(ctx context.Context, userID, roomID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, r.db.Rebind(`SELECT COUNT(*) FROM messages m
        LEFT JOIN read_statuses rs ON rs.room_id = m.room_id AND rs.user_id = ?
        WHERE m.room_id = ? AND `+unreadFilter), userID, roomID, userID)
	return count, err
}
