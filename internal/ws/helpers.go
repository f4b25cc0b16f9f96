package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"roomchat/internal/observability"
)

const (
	kindRoom = "room"
	kindUser = "user"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func newConnID() string {
	return uuid.NewString()
}

func newConnInfo(r *http.Request, userID, roomID int64, traceID string) ConnInfo {
	return ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		RoomID:      roomID,
		DeviceID:    observability.DeviceIDFromRequest(r),
		IP:          observability.IPFromRequest(r),
		RequestID:   observability.RequestIDFromRequest(r),
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
}

// publishLifecycle counts a session lifecycle event and sends it to analytics.
func publishLifecycle(ctx context.Context, kind, event string, info ConnInfo, reason string) {
	observability.IncWSEvent(kind, event)

	var duration int64
	if event != "ws_connect" {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	_ = observability.PublishEvent(ctx, wsRoutingKey(kind), observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":        kind,
				"resource_id": info.RoomID,
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": duration,
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}

func wsRoutingKey(kind string) string {
	if kind == kindUser {
		return "ws_events.users"
	}
	return "ws_events.rooms"
}

func closeReason(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	unexpected := !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
	return err.Error(), unexpected
}
