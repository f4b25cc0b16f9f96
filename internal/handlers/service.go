package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"roomchat/internal/chat"
	"roomchat/internal/middleware"
	"roomchat/internal/models"
	"roomchat/internal/storage"
	"roomchat/internal/telemetry"
)

// ChatService is the conversation logic behind the REST API.
type ChatService interface {
	EnsureMember(ctx context.Context, roomID, userID int64) error
	ListRooms(ctx context.Context, userID int64) ([]models.RoomSummary, error)
	CreateRoom(ctx context.Context, creator models.UserRef, name string, memberIDs []int64) (chat.RoomInfo, error)
	RoomDetail(ctx context.Context, user models.UserRef, roomID int64) (chat.RoomDetail, error)
	StartPrivateRoom(ctx context.Context, user models.UserRef, peerID int64) (chat.RoomInfo, error)
	ListUsers(ctx context.Context, userID int64) ([]models.UserRef, error)
	PostMessage(ctx context.Context, author models.UserRef, roomID int64, in chat.MessageInput) (models.MessagePayload, error)
	EditMessage(ctx context.Context, editor models.UserRef, messageID int64, text string) (models.Message, error)
	DeleteMessage(ctx context.Context, deleter models.UserRef, messageID int64) (models.Message, error)
}

// FileStore persists uploaded files.
type FileStore interface {
	Save(ctx context.Context, name string, r io.Reader) (storage.Saved, error)
}

func currentUser(c *gin.Context) models.UserRef {
	return models.UserRef{ID: c.GetInt64(middleware.UserIDKey), Username: c.GetString(middleware.UsernameKey)}
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// writeError maps chat errors to status codes.
func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrInvalidFile),
		errors.Is(err, chat.ErrInvalidPeer),
		errors.Is(err, chat.ErrInvalidRoomName):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrNotMember), errors.Is(err, chat.ErrNotAuthor):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrRoomNotFound),
		errors.Is(err, chat.ErrMessageNotFound),
		errors.Is(err, chat.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

func emitAudit(c *gin.Context, audit *telemetry.AuditEmitter, rec telemetry.Record) {
	if audit == nil {
		return
	}
	audit.Emit(c.Request.Context(), rec, requestIDFromContext(c), userIDFromContext(c))
}
