package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"roomchat/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for room messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, in models.NewMessage) (models.Message, error)
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	GetMessageRow(ctx context.Context, messageID int64) (models.MessageRow, error)
	LatestMessage(ctx context.Context, roomID int64) (*models.Message, error)
	UpdateMessageText(ctx context.Context, messageID, authorID int64, text string) (models.Message, error)
	DeleteMessage(ctx context.Context, messageID, authorID int64) error
	ListRoomMessages(ctx context.Context, roomID int64) ([]models.MessageRow, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, room_id, user_id, message, file, reply_to_id, edited, status, created_at, updated_at`

const messageRowSelect = `SELECT m.id, m.room_id, m.user_id, m.message, m.file, m.reply_to_id, m.edited, m.status, m.created_at, m.updated_at,
        COALESCE(u.username, '') AS username,
        r.message AS reply_message, r.user_id AS reply_user_id, ru.username AS reply_username
    FROM messages m
    LEFT JOIN users u ON u.id = m.user_id
    LEFT JOIN messages r ON r.id = m.reply_to_id
    LEFT JOIN users ru ON ru.id = r.user_id`

// CreateMessage stores a message. Ids are assigned by the database in
// strictly increasing order.
func (r *MessageRepo) CreateMessage(ctx context.Context, in models.NewMessage) (models.Message, error) {
	now := time.Now().UTC()
	msg := models.Message{
		RoomID:    in.RoomID,
		UserID:    in.UserID,
		Text:      in.Text,
		File:      in.File,
		ReplyToID: in.ReplyToID,
		Status:    models.MessageSent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`INSERT INTO messages (room_id, user_id, message, file, reply_to_id, edited, status, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, FALSE, ?, ?, ?) RETURNING id`),
		msg.RoomID, msg.UserID, msg.Text, msg.File, msg.ReplyToID, string(msg.Status), msg.CreatedAt, msg.UpdatedAt).
		Scan(&msg.ID)
	if err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// GetMessage returns a message by id.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, r.db.Rebind(`SELECT `+messageColumns+` FROM messages WHERE id = ?`), messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// GetMessageRow returns a message joined with its author.
func (r *MessageRepo) GetMessageRow(ctx context.Context, messageID int64) (models.MessageRow, error) {
	var row models.MessageRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(messageRowSelect+` WHERE m.id = ?`), messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.MessageRow{}, ErrMessageNotFound
	}
	return row, err
}

// LatestMessage returns the newest message of a room, nil for an empty room.
func (r *MessageRepo) LatestMessage(ctx context.Context, roomID int64) (*models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, r.db.Rebind(`SELECT `+messageColumns+` FROM messages WHERE room_id = ? ORDER BY id DESC LIMIT 1`), roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// UpdateMessageText replaces the text of a message owned by authorID and
// marks it edited.
func (r *MessageRepo) UpdateMessageText(ctx context.Context, messageID, authorID int64, text string) (models.Message, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE messages SET message = ?, edited = TRUE, updated_at = ? WHERE id = ? AND user_id = ?`),
		text, time.Now().UTC(), messageID, authorID)
	if err != nil {
		return models.Message{}, err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return models.Message{}, err
	} else if affected == 0 {
		return models.Message{}, ErrMessageNotFound
	}
	return r.GetMessage(ctx, messageID)
}

// DeleteMessage removes a message owned by authorID. Replies keep their
// dangling reference.
func (r *MessageRepo) DeleteMessage(ctx context.Context, messageID, authorID int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM messages WHERE id = ? AND user_id = ?`), messageID, authorID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// ListRoomMessages returns a room's history in id order.
func (r *MessageRepo) ListRoomMessages(ctx context.Context, roomID int64) ([]models.MessageRow, error) {
	rows := []models.MessageRow{}
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(messageRowSelect+` WHERE m.room_id = ? ORDER BY m.id ASC`), roomID)
	return rows, err
}
