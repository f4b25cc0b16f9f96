package models

import "time"

type MessageStatus string

const (
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
)

// Message represents a chat message. File holds a storage path or is empty.
type Message struct {
	ID        int64         `db:"id" json:"id"`
	RoomID    int64         `db:"room_id" json:"room_id"`
	UserID    int64         `db:"user_id" json:"user_id"`
	Text      string        `db:"message" json:"message"`
	File      string        `db:"file" json:"file"`
	ReplyToID *int64        `db:"reply_to_id" json:"reply_to_id"`
	Edited    bool          `db:"edited" json:"edited"`
	Status    MessageStatus `db:"status" json:"status"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// NewMessage carries the fields supplied when a message is created.
type NewMessage struct {
	RoomID    int64
	UserID    int64
	Text      string
	File      string
	ReplyToID *int64
}

// MessageRow is a message joined with its author's name and, when the
// reply target still exists, the target's text and author.
type MessageRow struct {
	Message
	Username      string  `db:"username"`
	ReplyMessage  *string `db:"reply_message"`
	ReplyUserID   *int64  `db:"reply_user_id"`
	ReplyUsername *string `db:"reply_username"`
}

// Author returns the row's author reference.
func (r MessageRow) Author() UserRef {
	return UserRef{ID: r.UserID, Username: r.Username}
}

// Reply resolves the quoted target with its current text. A reply whose
// target was deleted comes back marked unavailable.
func (r MessageRow) Reply() *ReplySnapshot {
	if r.ReplyToID == nil {
		return nil
	}
	if r.ReplyUserID == nil {
		return &ReplySnapshot{ID: *r.ReplyToID, Unavailable: true}
	}
	snap := &ReplySnapshot{ID: *r.ReplyToID, User: &UserRef{ID: *r.ReplyUserID}}
	if r.ReplyMessage != nil {
		snap.Message = *r.ReplyMessage
	}
	if r.ReplyUsername != nil {
		snap.User.Username = *r.ReplyUsername
	}
	return snap
}

// ReplySnapshot is the quoted view of the message being replied to.
type ReplySnapshot struct {
	ID          int64    `json:"id"`
	Message     string   `json:"message,omitempty"`
	User        *UserRef `json:"user,omitempty"`
	Unavailable bool     `json:"unavailable,omitempty"`
}
