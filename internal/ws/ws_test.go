package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"roomchat/internal/bus"
)

func newTestServer(t *testing.T, e *testEnv) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws/chat/:room_id", NewRoomWebSocketHandler(e.hub, e.svc, tokens, zerolog.Nop()).Handle)
	router.GET("/ws/user", NewUserWebSocketHandler(e.hub, tokens, zerolog.Nop()).Handle)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func readUntil(t *testing.T, conn *websocket.Conn, eventType string) frame {
	t.Helper()
	for {
		if f := readFrame(t, conn); f["type"] == eventType {
			return f
		}
	}
}

func TestRoomHandshakeRejections(t *testing.T) {
	e := newTestEnv(t)
	roomID := e.room(t, alice.ID, bob.ID)
	base := newTestServer(t, e)

	cases := map[string]struct {
		path   string
		status int
	}{
		"missing token": {"/ws/chat/" + itoa(roomID), http.StatusUnauthorized},
		"invalid token": {"/ws/chat/" + itoa(roomID) + "?token=forged", http.StatusUnauthorized},
		"not a member":  {"/ws/chat/" + itoa(roomID) + "?token=carol-token", http.StatusForbidden},
		"unknown room":  {"/ws/chat/9999?token=alice-token", http.StatusForbidden},
		"bad room id":   {"/ws/chat/abc?token=alice-token", http.StatusBadRequest},
		"user no token": {"/ws/user", http.StatusUnauthorized},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(base+tc.path, nil)
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
	require.Zero(t, e.hub.Registry().Channels())
}

func TestRoomAndUserSessionsOverWebSocket(t *testing.T) {
	e := newTestEnv(t)
	roomID := e.room(t, alice.ID, bob.ID)
	base := newTestServer(t, e)
	registry := e.hub.Registry()

	a := dial(t, base+"/ws/chat/"+itoa(roomID)+"?token=alice-token", nil)
	require.Equal(t, "online", readFrame(t, a)["status"])

	header := http.Header{}
	header.Set("Authorization", "Bearer bob-token")
	bUser := dial(t, base+"/ws/user", header)
	require.Eventually(t, func() bool { return registry.Count(bus.UserChannel(bob.ID)) == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, a.WriteJSON(map[string]any{"type": "message", "message": "hello bob", "client_id": 17}))
	msg := readUntil(t, a, "message")
	require.Equal(t, "hello bob", msg["message"])
	require.Equal(t, float64(17), msg["client_id"])
	require.Equal(t, map[string]any{"id": float64(alice.ID), "username": "alice"}, msg["user"])

	update := readFrame(t, bUser)
	require.Equal(t, frame{
		"type":         "unread_update",
		"room_id":      float64(roomID),
		"last_message": "hello bob",
		"has_file":     false,
	}, update)

	unread, err := e.reads.UnreadCount(context.Background(), bob.ID, roomID)
	require.NoError(t, err)
	require.Equal(t, 1, unread)

	require.NoError(t, a.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return registry.Count(bus.RoomChannel(roomID)) == 0 }, 5*time.Second, 10*time.Millisecond)
	require.Zero(t, registry.Count(bus.UserChannel(alice.ID)))

	require.NoError(t, bUser.Close())
	require.Eventually(t, func() bool { return registry.Channels() == 0 }, 5*time.Second, 10*time.Millisecond)
}
