package models

import (
	"encoding/json"
	"time"
)

// Outbound event types.
const (
	EventMessage      = "message"
	EventTyping       = "typing"
	EventStatus       = "status"
	EventEdit         = "edit"
	EventDelete       = "delete"
	EventUnreadUpdate = "unread_update"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// OutboundEvent is implemented by every event published to sessions.
type OutboundEvent interface {
	EventType() string
}

// MessagePayload is the full rendering of a message, shared by the
// message event and the room history.
type MessagePayload struct {
	RoomID    int64           `json:"room_id"`
	ID        int64           `json:"id"`
	ClientID  json.RawMessage `json:"client_id"`
	User      UserRef         `json:"user"`
	UserID    int64           `json:"user_id"`
	Message   string          `json:"message"`
	File      *string         `json:"file"`
	ReplyTo   *ReplySnapshot  `json:"reply_to"`
	Edited    bool            `json:"edited"`
	CreatedAt time.Time       `json:"created_at"`
}

type MessageEvent struct {
	Type string `json:"type"`
	MessagePayload
}

func NewMessageEvent(p MessagePayload) MessageEvent {
	return MessageEvent{Type: EventMessage, MessagePayload: p}
}

func (MessageEvent) EventType() string { return EventMessage }

type TypingEvent struct {
	Type   string  `json:"type"`
	RoomID int64   `json:"room_id"`
	User   UserRef `json:"user"`
}

func NewTypingEvent(roomID int64, user UserRef) TypingEvent {
	return TypingEvent{Type: EventTyping, RoomID: roomID, User: user}
}

func (TypingEvent) EventType() string { return EventTyping }

type StatusEvent struct {
	Type   string  `json:"type"`
	Status string  `json:"status"`
	User   UserRef `json:"user"`
}

func NewStatusEvent(status string, user UserRef) StatusEvent {
	return StatusEvent{Type: EventStatus, Status: status, User: user}
}

func (StatusEvent) EventType() string { return EventStatus }

type EditEvent struct {
	Type    string `json:"type"`
	ID      int64  `json:"id"`
	Message string `json:"message"`
	Edited  bool   `json:"edited"`
}

func NewEditEvent(id int64, text string) EditEvent {
	return EditEvent{Type: EventEdit, ID: id, Message: text, Edited: true}
}

func (EditEvent) EventType() string { return EventEdit }

type DeleteEvent struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

func NewDeleteEvent(id int64) DeleteEvent {
	return DeleteEvent{Type: EventDelete, ID: id}
}

func (DeleteEvent) EventType() string { return EventDelete }

// UnreadUpdateEvent is the unread delta as rendered to room sessions.
type UnreadUpdateEvent struct {
	Type    string `json:"type"`
	RoomID  int64  `json:"room_id"`
	Message string `json:"message"`
	File    bool   `json:"file"`
}

func NewUnreadUpdateEvent(roomID int64, text string, hasFile bool) UnreadUpdateEvent {
	return UnreadUpdateEvent{Type: EventUnreadUpdate, RoomID: roomID, Message: text, File: hasFile}
}

func (UnreadUpdateEvent) EventType() string { return EventUnreadUpdate }

// ForUserSession renders the delta in the account-wide session shape.
func (e UnreadUpdateEvent) ForUserSession() UserUnreadUpdateEvent {
	return UserUnreadUpdateEvent{Type: EventUnreadUpdate, RoomID: e.RoomID, LastMessage: e.Message, HasFile: e.File}
}

// UserUnreadUpdateEvent is the unread delta as rendered to user sessions.
type UserUnreadUpdateEvent struct {
	Type        string `json:"type"`
	RoomID      int64  `json:"room_id"`
	LastMessage string `json:"last_message"`
	HasFile     bool   `json:"has_file"`
}

func (UserUnreadUpdateEvent) EventType() string { return EventUnreadUpdate }
