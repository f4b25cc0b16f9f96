package ws

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"roomchat/internal/auth"
	"roomchat/internal/observability"
)

// UserWebSocketHandler serves account-wide unread notification sessions.
type UserWebSocketHandler struct {
	hub   *Hub
	authn Authenticator
	log   zerolog.Logger
}

func NewUserWebSocketHandler(hub *Hub, authn Authenticator, log zerolog.Logger) *UserWebSocketHandler {
	return &UserWebSocketHandler{hub: hub, authn: authn, log: log}
}

func (h *UserWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "ws.handshake",
		trace.WithAttributes(attribute.String("ws.kind", kindUser)))
	defer span.End()

	session := NewUserSession(h.hub, h.log)
	if err := session.Authenticate(ctx, h.authn, auth.CredentialFromRequest(c.Request)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		session.Close()
		return
	}
	defer conn.Close()

	user := session.User()
	info := newConnInfo(c.Request, user.ID, 0, span.SpanContext().TraceID().String())
	session.attach(conn, info)
	session.log = session.log.With().Str("conn_id", info.ConnID).Int64("user_id", user.ID).Logger()
	sessCtx := trace.ContextWithSpanContext(context.WithoutCancel(ctx), span.SpanContext())

	session.Open()
	observability.IncWSActive(kindUser)
	publishLifecycle(sessCtx, kindUser, "ws_connect", info, "")
	go session.writePump()

	// inbound frames carry nothing for this session
	readErr := session.readPump(nil)

	reason, unexpected := closeReason(readErr)
	if unexpected && !session.Evicted() {
		publishLifecycle(sessCtx, kindUser, "ws_error", info, reason)
	}
	session.Leave()
	observability.DecWSActive(kindUser)
	publishLifecycle(sessCtx, kindUser, "ws_disconnect", info, reason)
}
