package models

import "time"

// Room is a conversation space, either a named group room or a private
// room between exactly two users.
type Room struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	IsPrivate bool      `db:"is_private" json:"is_private"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// RoomSummary is the per-user listing view of a room.
type RoomSummary struct {
	ID          int64        `db:"id" json:"id"`
	Name        string       `db:"name" json:"name"`
	IsPrivate   bool         `db:"is_private" json:"is_private"`
	UnreadCount int          `db:"unread_count" json:"unread_count"`
	Members     []UserRef    `db:"-" json:"members"`
	LastMessage *LastMessage `db:"-" json:"last_message"`
}

// LastMessage previews the newest message of a room.
type LastMessage struct {
	ID        int64     `json:"id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	User      string    `json:"user"`
}

// ReadStatus is a user's high-water mark in a room. A nil
// LastReadMessageID means nothing has been read yet.
type ReadStatus struct {
	UserID            int64     `db:"user_id" json:"user_id"`
	RoomID            int64     `db:"room_id" json:"room_id"`
	LastReadMessageID *int64    `db:"last_read_message_id" json:"last_read_message_id"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}
