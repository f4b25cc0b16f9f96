package ws

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"roomchat/internal/auth"
	"roomchat/internal/chat"
	"roomchat/internal/observability"
)

var tracer = otel.Tracer("roomchat/ws")

// RoomWebSocketHandler serves room sessions.
type RoomWebSocketHandler struct {
	hub   *Hub
	svc   RoomService
	authn Authenticator
	log   zerolog.Logger
}

func NewRoomWebSocketHandler(hub *Hub, svc RoomService, authn Authenticator, log zerolog.Logger) *RoomWebSocketHandler {
	return &RoomWebSocketHandler{hub: hub, svc: svc, authn: authn, log: log}
}

// Handle authenticates and authorizes before upgrading, then runs the
// session until the connection ends.
func (h *RoomWebSocketHandler) Handle(c *gin.Context) {
	roomID, err := strconv.ParseInt(c.Param("room_id"), 10, 64)
	if err != nil || roomID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	ctx, span := tracer.Start(c.Request.Context(), "ws.handshake",
		trace.WithAttributes(attribute.String("ws.kind", kindRoom), attribute.Int64("room_id", roomID)))
	defer span.End()

	session := NewRoomSession(h.hub, h.svc, roomID, h.log)
	if err := session.Authenticate(ctx, h.authn, auth.CredentialFromRequest(c.Request)); err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingCredential), errors.Is(err, auth.ErrInvalidCredential):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		case errors.Is(err, chat.ErrRoomNotFound), errors.Is(err, chat.ErrNotMember):
			c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for room"})
		default:
			h.log.Error().Err(err).Int64("room_id", roomID).Msg("room session handshake failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		session.fail()
		return
	}
	defer conn.Close()

	user := session.User()
	info := newConnInfo(c.Request, user.ID, roomID, span.SpanContext().TraceID().String())
	session.attach(conn, info)
	session.log = session.log.With().Str("conn_id", info.ConnID).Int64("user_id", user.ID).Logger()

	// the session outlives the handshake span and request context
	sessCtx := trace.ContextWithSpanContext(context.WithoutCancel(ctx), span.SpanContext())
	if err := session.Join(sessCtx); err != nil {
		session.log.Error().Err(err).Msg("join failed")
		publishLifecycle(sessCtx, kindRoom, "ws_error", info, err.Error())
		return
	}

	observability.IncWSActive(kindRoom)
	publishLifecycle(sessCtx, kindRoom, "ws_connect", info, "")
	go session.writePump()

	readErr := session.readPump(func(raw []byte) error {
		return session.Handle(sessCtx, raw)
	})

	reason, unexpected := closeReason(readErr)
	if unexpected && !session.Evicted() {
		session.log.Warn().Err(readErr).Msg("room session ended")
		publishLifecycle(sessCtx, kindRoom, "ws_error", info, reason)
	}
	if err := session.Leave(sessCtx); err != nil {
		session.log.Warn().Err(err).Msg("announce offline")
	}
	observability.DecWSActive(kindRoom)
	publishLifecycle(sessCtx, kindRoom, "ws_disconnect", info, reason)
}
