package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"roomchat/internal/auth"
	"roomchat/internal/chat"
	"roomchat/internal/mocks"
	"roomchat/internal/models"
	"roomchat/internal/storage"
	"roomchat/internal/telemetry"
)

type ChatServiceMock struct {
	mock.Mock
}

func (m *ChatServiceMock) EnsureMember(ctx context.Context, roomID, userID int64) error {
	return m.Called(ctx, roomID, userID).Error(0)
}

func (m *ChatServiceMock) ListRooms(ctx context.Context, userID int64) ([]models.RoomSummary, error) {
	args := m.Called(ctx, userID)
	var rooms []models.RoomSummary
	if val := args.Get(0); val != nil {
		rooms = val.([]models.RoomSummary)
	}
	return rooms, args.Error(1)
}

func (m *ChatServiceMock) CreateRoom(ctx context.Context, creator models.UserRef, name string, memberIDs []int64) (chat.RoomInfo, error) {
	args := m.Called(ctx, creator, name, memberIDs)
	var info chat.RoomInfo
	if val := args.Get(0); val != nil {
		info = val.(chat.RoomInfo)
	}
	return info, args.Error(1)
}

func (m *ChatServiceMock) RoomDetail(ctx context.Context, user models.UserRef, roomID int64) (chat.RoomDetail, error) {
	args := m.Called(ctx, user, roomID)
	var detail chat.RoomDetail
	if val := args.Get(0); val != nil {
		detail = val.(chat.RoomDetail)
	}
	return detail, args.Error(1)
}

func (m *ChatServiceMock) StartPrivateRoom(ctx context.Context, user models.UserRef, peerID int64) (chat.RoomInfo, error) {
	args := m.Called(ctx, user, peerID)
	var info chat.RoomInfo
	if val := args.Get(0); val != nil {
		info = val.(chat.RoomInfo)
	}
	return info, args.Error(1)
}

func (m *ChatServiceMock) ListUsers(ctx context.Context, userID int64) ([]models.UserRef, error) {
	args := m.Called(ctx, userID)
	var users []models.UserRef
	if val := args.Get(0); val != nil {
		users = val.([]models.UserRef)
	}
	return users, args.Error(1)
}

func (m *ChatServiceMock) PostMessage(ctx context.Context, author models.UserRef, roomID int64, in chat.MessageInput) (models.MessagePayload, error) {
	args := m.Called(ctx, author, roomID, in)
	var payload models.MessagePayload
	if val := args.Get(0); val != nil {
		payload = val.(models.MessagePayload)
	}
	return payload, args.Error(1)
}

func (m *ChatServiceMock) EditMessage(ctx context.Context, editor models.UserRef, messageID int64, text string) (models.Message, error) {
	args := m.Called(ctx, editor, messageID, text)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *ChatServiceMock) DeleteMessage(ctx context.Context, deleter models.UserRef, messageID int64) (models.Message, error) {
	args := m.Called(ctx, deleter, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

var _ ChatService = (*ChatServiceMock)(nil)

var me = models.UserRef{ID: 1, Username: "alice"}

func setupRouter(svc ChatService, files FileStore, audit *telemetry.AuditEmitter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", me.ID)
		c.Set("username", me.Username)
		c.Next()
	})
	rooms := NewRoomHandler(svc, audit)
	messages := NewMessageHandler(svc, files, 1024, audit)
	r.GET("/chat/rooms", rooms.ListRooms)
	r.POST("/chat/rooms", rooms.CreateRoom)
	r.GET("/chat/rooms/:room_id", rooms.RoomDetail)
	r.POST("/chat/rooms/:room_id/send", messages.SendMessage)
	r.POST("/chat/rooms/:room_id/upload", messages.Upload)
	r.PATCH("/chat/messages/:message_id/edit", messages.EditMessage)
	r.DELETE("/chat/messages/:message_id/delete", messages.DeleteMessage)
	r.POST("/chat/private", rooms.StartPrivateRoom)
	r.GET("/chat/users", rooms.ListUsers)
	return r
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestListRooms(t *testing.T) {
	svc := new(ChatServiceMock)
	router := setupRouter(svc, nil, nil)

	svc.On("ListRooms", mock.Anything, int64(1)).Return([]models.RoomSummary{{ID: 3, Name: "general", UnreadCount: 2}}, nil).Once()

	rec := do(router, http.MethodGet, "/chat/rooms", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp []map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp, 1)
	require.Equal(t, float64(2), resp[0]["unread_count"])
	svc.AssertExpectations(t)
}

func TestListRoomsError(t *testing.T) {
	svc := new(ChatServiceMock)
	router := setupRouter(svc, nil, nil)

	svc.On("ListRooms", mock.Anything, int64(1)).Return(nil, assert.AnError).Once()

	rec := do(router, http.MethodGet, "/chat/rooms", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), assert.AnError.Error())
	svc.AssertExpectations(t)
}

func TestCreateRoomEmitsAudit(t *testing.T) {
	svc := new(ChatServiceMock)
	publisher := new(mocks.PublisherMock)
	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", "roomchat", "test", zerolog.Nop())
	router := setupRouter(svc, nil, audit)

	svc.On("CreateRoom", mock.Anything, me, "team", []int64{2, 3}).Return(chat.RoomInfo{ID: 8, Name: "team"}, nil).Once()
	publisher.On("Publish", mock.Anything, "audit.chat", mock.MatchedBy(func(env telemetry.AuditEnvelope) bool {
		return env.UserID != nil && *env.UserID == 1 && env.Payload.Action == telemetry.ActionRoomCreated && env.Payload.RoomID == 8
	}), mock.Anything).Return(nil).Once()

	rec := do(router, http.MethodPost, "/chat/rooms", `{"name":"team","member_ids":[2,3]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	svc.AssertExpectations(t)
	publisher.AssertExpectations(t)

	rec = do(router, http.MethodPost, "/chat/rooms", `{"member_ids":[2]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoomDetailStatusMapping(t *testing.T) {
	svc := new(ChatServiceMock)
	router := setupRouter(svc, nil, nil)

	svc.On("RoomDetail", mock.Anything, me, int64(3)).Return(chat.RoomDetail{RoomInfo: chat.RoomInfo{ID: 3}}, nil).Once()
	svc.On("RoomDetail", mock.Anything, me, int64(4)).Return(nil, chat.ErrNotMember).Once()
	svc.On("RoomDetail", mock.Anything, me, int64(5)).Return(nil, chat.ErrRoomNotFound).Once()

	require.Equal(t, http.StatusOK, do(router, http.MethodGet, "/chat/rooms/3", "").Code)
	require.Equal(t, http.StatusForbidden, do(router, http.MethodGet, "/chat/rooms/4", "").Code)
	require.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/chat/rooms/5", "").Code)
	require.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/chat/rooms/abc", "").Code)
	svc.AssertExpectations(t)
}

func TestStartPrivateRoom(t *testing.T) {
	svc := new(ChatServiceMock)
	router := setupRouter(svc, nil, nil)

	svc.On("StartPrivateRoom", mock.Anything, me, int64(2)).Return(chat.RoomInfo{ID: 9, IsPrivate: true}, nil).Once()
	svc.On("StartPrivateRoom", mock.Anything, me, int64(1)).Return(nil, chat.ErrInvalidPeer).Once()
	svc.On("StartPrivateRoom", mock.Anything, me, int64(77)).Return(nil, chat.ErrUserNotFound).Once()

	rec := do(router, http.MethodPost, "/chat/private", `{"user_id":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"is_private":true`)

	require.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/chat/private", `{"user_id":1}`).Code)
	require.Equal(t, http.StatusNotFound, do(router, http.MethodPost, "/chat/private", `{"user_id":77}`).Code)
	require.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/chat/private", `{}`).Code)
	svc.AssertExpectations(t)
}

func TestListUsers(t *testing.T) {
	svc := new(ChatServiceMock)
	router := setupRouter(svc, nil, nil)

	svc.On("ListUsers", mock.Anything, int64(1)).Return([]models.UserRef{{ID: 2, Username: "bob"}}, nil).Once()

	rec := do(router, http.MethodGet, "/chat/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[{"id":2,"username":"bob"}]`, rec.Body.String())
	svc.AssertExpectations(t)
}

func TestSendMessage(t *testing.T) {
	svc := new(ChatServiceMock)
	router := setupRouter(svc, nil, nil)

	svc.On("PostMessage", mock.Anything, me, int64(3), chat.MessageInput{Text: "hello"}).
		Return(models.MessagePayload{ID: 10, RoomID: 3, Message: "hello"}, nil).Once()
	svc.On("PostMessage", mock.Anything, me, int64(3), chat.MessageInput{Text: " "}).Return(nil, chat.ErrEmptyMessage).Once()
	svc.On("PostMessage", mock.Anything, me, int64(4), mock.Anything).Return(nil, chat.ErrNotMember).Once()

	rec := do(router, http.MethodPost, "/chat/rooms/3/send", `{"content":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"message":"hello"`)

	require.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/chat/rooms/3/send", `{"content":" "}`).Code)
	require.Equal(t, http.StatusForbidden, do(router, http.MethodPost, "/chat/rooms/4/send", `{"message":"x"}`).Code)
	require.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/chat/rooms/3/send", `not json`).Code)
	svc.AssertExpectations(t)
}

func TestEditMessage(t *testing.T) {
	svc := new(ChatServiceMock)
	router := setupRouter(svc, nil, nil)

	svc.On("EditMessage", mock.Anything, me, int64(5), "fixed").Return(models.Message{ID: 5, Text: "fixed", Edited: true}, nil).Once()
	svc.On("EditMessage", mock.Anything, me, int64(6), "mine").Return(nil, chat.ErrNotAuthor).Once()
	svc.On("EditMessage", mock.Anything, me, int64(7), "").Return(nil, chat.ErrEmptyMessage).Once()

	rec := do(router, http.MethodPatch, "/chat/messages/5/edit", `{"content":"fixed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"edited":true`)

	require.Equal(t, http.StatusForbidden, do(router, http.MethodPatch, "/chat/messages/6/edit", `{"message":"mine"}`).Code)
	require.Equal(t, http.StatusBadRequest, do(router, http.MethodPatch, "/chat/messages/7/edit", `{}`).Code)
	svc.AssertExpectations(t)
}

func TestDeleteMessage(t *testing.T) {
	svc := new(ChatServiceMock)
	router := setupRouter(svc, nil, nil)

	svc.On("DeleteMessage", mock.Anything, me, int64(5)).Return(models.Message{ID: 5, RoomID: 3}, nil).Once()
	svc.On("DeleteMessage", mock.Anything, me, int64(6)).Return(nil, chat.ErrMessageNotFound).Once()

	rec := do(router, http.MethodDelete, "/chat/messages/5/delete", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"success":true,"id":5}`, rec.Body.String())

	require.Equal(t, http.StatusNotFound, do(router, http.MethodDelete, "/chat/messages/6/delete", "").Code)
	svc.AssertExpectations(t)
}

func multipartBody(t *testing.T, field, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func upload(router *gin.Engine, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestUpload(t *testing.T) {
	svc := new(ChatServiceMock)
	store, err := storage.NewDiskStore(t.TempDir(), "/media/", 1024)
	require.NoError(t, err)
	router := setupRouter(svc, store, nil)

	svc.On("EnsureMember", mock.Anything, int64(3), int64(1)).Return(nil).Times(3)
	svc.On("EnsureMember", mock.Anything, int64(4), int64(1)).Return(chat.ErrNotMember).Once()

	body, ct := multipartBody(t, "file", "notes.txt", []byte("plain old text"))
	rec := upload(router, "/chat/rooms/3/upload", body, ct)
	require.Equal(t, http.StatusOK, rec.Code)
	var saved storage.Saved
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&saved))
	require.True(t, strings.HasPrefix(saved.Path, "chat_files/"))
	require.NoError(t, store.Validate(saved.Path))

	body, ct = multipartBody(t, "file", "page.html", []byte("<html><body>x</body></html>"))
	require.Equal(t, http.StatusUnsupportedMediaType, upload(router, "/chat/rooms/3/upload", body, ct).Code)

	body, ct = multipartBody(t, "other", "notes.txt", []byte("text"))
	require.Equal(t, http.StatusBadRequest, upload(router, "/chat/rooms/3/upload", body, ct).Code)

	body, ct = multipartBody(t, "file", "notes.txt", []byte("text"))
	require.Equal(t, http.StatusForbidden, upload(router, "/chat/rooms/4/upload", body, ct).Code)
	svc.AssertExpectations(t)
}

func TestDebugRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	verifier := auth.NewJWTVerifier("test-secret")

	disabled := gin.New()
	RegisterDebugRoutes(disabled, nil, verifier, false)
	require.Equal(t, http.StatusNotFound, do(disabled, http.MethodPost, "/debug/token", `{"user_id":4,"username":"dora"}`).Code)

	router := gin.New()
	RegisterDebugRoutes(router, nil, verifier, true)
	require.Equal(t, http.StatusServiceUnavailable, do(router, http.MethodGet, "/debug/audit-test", "").Code)
	require.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/debug/token", `{"username":"dora"}`).Code)

	rec := do(router, http.MethodPost, "/debug/token", `{"user_id":4,"username":"dora"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	user, err := verifier.Verify(context.Background(), resp.Token)
	require.NoError(t, err)
	require.Equal(t, models.UserRef{ID: 4, Username: "dora"}, user)
}
