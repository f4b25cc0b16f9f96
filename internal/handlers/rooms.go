package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"roomchat/internal/telemetry"
)

// RoomHandler serves room listing, creation and history.
type RoomHandler struct {
	svc   ChatService
	audit *telemetry.AuditEmitter
}

func NewRoomHandler(svc ChatService, audit *telemetry.AuditEmitter) *RoomHandler {
	return &RoomHandler{svc: svc, audit: audit}
}

// ListRooms returns the caller's rooms with unread counts.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms, err := h.svc.ListRooms(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		writeError(c, err, "failed to load rooms")
		return
	}
	c.JSON(http.StatusOK, rooms)
}

// CreateRoom creates a group room with the caller as a member.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req struct {
		Name      string  `json:"name" binding:"required"`
		MemberIDs []int64 `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.svc.CreateRoom(c.Request.Context(), currentUser(c), req.Name, req.MemberIDs)
	if err != nil {
		writeError(c, err, "could not create room")
		return
	}
	emitAudit(c, h.audit, telemetry.Record{Action: telemetry.ActionRoomCreated, RoomID: room.ID, Detail: room.Name})
	c.JSON(http.StatusCreated, room)
}

// RoomDetail returns a room with its history and marks it read.
func (h *RoomHandler) RoomDetail(c *gin.Context) {
	roomID, ok := paramID(c, "room_id")
	if !ok {
		return
	}

	detail, err := h.svc.RoomDetail(c.Request.Context(), currentUser(c), roomID)
	if err != nil {
		writeError(c, err, "failed to load room")
		return
	}
	c.JSON(http.StatusOK, detail)
}

// StartPrivateRoom returns the private room shared with another user.
func (h *RoomHandler) StartPrivateRoom(c *gin.Context) {
	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}

	room, err := h.svc.StartPrivateRoom(c.Request.Context(), currentUser(c), req.UserID)
	if err != nil {
		writeError(c, err, "could not open private room")
		return
	}
	c.JSON(http.StatusOK, room)
}

// ListUsers returns everyone except the caller.
func (h *RoomHandler) ListUsers(c *gin.Context) {
	users, err := h.svc.ListUsers(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		writeError(c, err, "failed to load users")
		return
	}
	c.JSON(http.StatusOK, users)
}
