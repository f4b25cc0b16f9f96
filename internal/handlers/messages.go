package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"roomchat/internal/chat"
	"roomchat/internal/storage"
	"roomchat/internal/telemetry"
)

// MessageHandler serves message mutations and uploads outside a websocket.
type MessageHandler struct {
	svc      ChatService
	files    FileStore
	maxBytes int64
	audit    *telemetry.AuditEmitter
}

func NewMessageHandler(svc ChatService, files FileStore, maxBytes int64, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{svc: svc, files: files, maxBytes: maxBytes, audit: audit}
}

type sendRequest struct {
	Content  string          `json:"content"`
	Message  string          `json:"message"`
	File     string          `json:"file"`
	ReplyTo  *int64          `json:"reply_to"`
	ClientID json.RawMessage `json:"client_id"`
}

// SendMessage persists a message and broadcasts it to the room.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	roomID, ok := paramID(c, "room_id")
	if !ok {
		return
	}
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	text := req.Content
	if text == "" {
		text = req.Message
	}

	payload, err := h.svc.PostMessage(c.Request.Context(), currentUser(c), roomID, chat.MessageInput{
		Text:     text,
		File:     req.File,
		ReplyTo:  req.ReplyTo,
		ClientID: req.ClientID,
	})
	if err != nil {
		writeError(c, err, "failed to send message")
		return
	}
	emitAudit(c, h.audit, telemetry.Record{Action: telemetry.ActionMessageSent, RoomID: roomID, MessageID: payload.ID})
	c.JSON(http.StatusOK, payload)
}

// EditMessage replaces the text of the caller's message.
func (h *MessageHandler) EditMessage(c *gin.Context) {
	messageID, ok := paramID(c, "message_id")
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	text := req.Content
	if text == "" {
		text = req.Message
	}

	msg, err := h.svc.EditMessage(c.Request.Context(), currentUser(c), messageID, text)
	if err != nil {
		writeError(c, err, "failed to edit message")
		return
	}
	emitAudit(c, h.audit, telemetry.Record{Action: telemetry.ActionMessageEdited, RoomID: msg.RoomID, MessageID: msg.ID})
	c.JSON(http.StatusOK, msg)
}

// DeleteMessage removes the caller's message.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	messageID, ok := paramID(c, "message_id")
	if !ok {
		return
	}

	msg, err := h.svc.DeleteMessage(c.Request.Context(), currentUser(c), messageID)
	if err != nil {
		writeError(c, err, "failed to delete message")
		return
	}
	emitAudit(c, h.audit, telemetry.Record{Level: "WARN", Action: telemetry.ActionMessageDeleted, RoomID: msg.RoomID, MessageID: msg.ID})
	c.JSON(http.StatusOK, gin.H{"success": true, "id": msg.ID})
}

// Upload stores a file for a room the caller belongs to and returns its
// path for use in a later message.
func (h *MessageHandler) Upload(c *gin.Context) {
	roomID, ok := paramID(c, "room_id")
	if !ok {
		return
	}
	if err := h.svc.EnsureMember(c.Request.Context(), roomID, currentUser(c).ID); err != nil {
		writeError(c, err, "failed to verify membership")
		return
	}

	if h.maxBytes > 0 {
		// multipart framing needs headroom beyond the file itself
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+1<<20)
	}
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file"})
		return
	}
	if h.maxBytes > 0 && header.Size > h.maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": storage.ErrTooLarge.Error()})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer file.Close()

	saved, err := h.files.Save(c.Request.Context(), header.Filename, file)
	switch {
	case errors.Is(err, storage.ErrTypeNotAllowed):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
		return
	case errors.Is(err, storage.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return
	case err != nil:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
		return
	}
	emitAudit(c, h.audit, telemetry.Record{Action: telemetry.ActionFileUploaded, RoomID: roomID, Detail: saved.Path})
	c.JSON(http.StatusOK, saved)
}
