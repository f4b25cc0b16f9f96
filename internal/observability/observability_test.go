package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"roomchat/internal/mocks"
)

func TestHealthEvaluate(t *testing.T) {
	failing := false
	h := NewHealth(map[string]Check{
		"database": func(context.Context) error { return nil },
		"bus": func(context.Context) error {
			if failing {
				return assert.AnError
			}
			return nil
		},
	}, zerolog.Nop())

	results, ok := h.Evaluate(t.Context())
	require.True(t, ok)
	require.Equal(t, map[string]string{"database": "ok", "bus": "ok"}, results)

	failing = true
	results, ok = h.Evaluate(t.Context())
	require.False(t, ok)
	require.Equal(t, assert.AnError.Error(), results["bus"])
	require.Equal(t, results, h.Snapshot())
}

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	down := NewHealth(map[string]Check{"bus": func(context.Context) error { return assert.AnError }}, zerolog.Nop())
	up := NewHealth(map[string]Check{"bus": func(context.Context) error { return nil }}, zerolog.Nop())

	router := gin.New()
	router.GET("/down", down.Handler())
	router.GET("/up", up.Handler())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/down", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "degraded", body["status"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/up", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPublishEvent(t *testing.T) {
	t.Cleanup(func() { SetPublisher(nil) })
	require.NoError(t, PublishEvent(t.Context(), "ws_events.rooms", EventEnvelope{}, nil))

	publisher := new(mocks.PublisherMock)
	SetPublisher(publisher)
	envelope := EventEnvelope{EventType: "ws_events", EventName: "ws_connect"}
	headers := BuildHeaders("req-1", "trace-1")
	publisher.On("Publish", mock.Anything, "ws_events.rooms", envelope, headers).Return(nil).Once()
	publisher.On("Publish", mock.Anything, "ws_events.users", envelope, headers).Return(assert.AnError).Once()

	require.NoError(t, PublishEvent(t.Context(), "ws_events.rooms", envelope, headers))
	require.ErrorIs(t, PublishEvent(t.Context(), "ws_events.users", envelope, headers), assert.AnError)
	publisher.AssertExpectations(t)
}

func TestBuildHeaders(t *testing.T) {
	require.Empty(t, BuildHeaders("", ""))
	require.Equal(t, map[string]string{"x-request-id": "r", "trace_id": "t"}, BuildHeaders("r", "t"))
}

func TestIPFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	require.Equal(t, "10.0.0.1", IPFromRequest(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	require.Equal(t, "203.0.113.9", IPFromRequest(req))
}

func TestSplitFullMethod(t *testing.T) {
	service, method := splitFullMethod("/grpc.health.v1.Health/Check")
	require.Equal(t, "grpc.health.v1.Health", service)
	require.Equal(t, "Check", method)

	service, method = splitFullMethod("bogus")
	require.Equal(t, "unknown", service)
	require.Equal(t, "unknown", method)
}
