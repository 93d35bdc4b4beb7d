package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"socialchat-backend/internal/domain"
	"socialchat-backend/internal/middleware"
	"socialchat-backend/internal/service/chat"
	apperrors "socialchat-backend/pkg/errors"
	"socialchat-backend/pkg/jwt"
)

const testSecret = "test-secret-key-for-testing-purposes"

type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) StartChat(ctx context.Context, selfID, receiverID uuid.UUID) ([]*domain.Message, error) {
	args := m.Called(ctx, selfID, receiverID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockChatService) SendMessage(ctx context.Context, senderID, receiverID uuid.UUID, content string) (*domain.Message, error) {
	args := m.Called(ctx, senderID, receiverID, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

type testServer struct {
	server   *httptest.Server
	registry *Registry
	jwt      *jwt.JWTManager
	service  *MockChatService
}

func newTestServer(t *testing.T, handshakeTimeout time.Duration) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwtManager := jwt.NewJWTManager(testSecret, 15*time.Minute)
	registry := NewRegistry(nil)
	service := new(MockChatService)
	handler := NewHandler(registry, service, middleware.NewAuthenticator(jwtManager, nil), handshakeTimeout, []string{"http://localhost:3000"})

	router := gin.New()
	router.GET("/v1/ws/chat", handler.ServeWS)
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		registry.Close()
		server.Close()
	})
	return &testServer{server: server, registry: registry, jwt: jwtManager, service: service}
}

func (s *testServer) url(query string) string {
	u := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/v1/ws/chat"
	if query != "" {
		u += "?" + query
	}
	return u
}

func (s *testServer) token(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := s.jwt.GenerateAccessToken(userID, "user")
	require.NoError(t, err)
	return token
}

// connect dials as userID and waits until the connection is registered
func (s *testServer) connect(t *testing.T, userID uuid.UUID) *websocket.Conn {
	t.Helper()
	before := s.registry.ConnectionCount(userID)

	header := http.Header{"Authorization": {"Bearer " + s.token(t, userID)}}
	conn, _, err := websocket.DefaultDialer.Dial(s.url(""), header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool {
		return s.registry.ConnectionCount(userID) == before+1
	}, 2*time.Second, 10*time.Millisecond)
	return conn
}

func writeEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(domain.Envelope{Event: event, Data: raw}))
}

func readEvent(t *testing.T, conn *websocket.Conn) domain.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var envelope domain.Envelope
	require.NoError(t, conn.ReadJSON(&envelope))
	return envelope
}

func readError(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	envelope := readEvent(t, conn)
	require.Equal(t, domain.EventError, envelope.Event)
	var payload domain.ErrorPayload
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	return payload.Message
}

func assertClosedWithPolicyViolation(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestServeWS_InvalidTokenRejected(t *testing.T) {
	s := newTestServer(t, time.Second)

	conn, _, err := websocket.DefaultDialer.Dial(s.url("token=not-a-jwt"), nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "Authentication error", readError(t, conn))
	assertClosedWithPolicyViolation(t, conn)
}

func TestServeWS_TokenFromQuery(t *testing.T) {
	s := newTestServer(t, time.Second)
	alice := uuid.New()

	conn, _, err := websocket.DefaultDialer.Dial(s.url("token="+s.token(t, alice)), nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Eventually(t, func() bool {
		return s.registry.ConnectionCount(alice) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServeWS_HandshakeFrame(t *testing.T) {
	s := newTestServer(t, time.Second)
	alice, bob := uuid.New(), uuid.New()
	history := []*domain.Message{{ID: uuid.New(), SenderID: bob, ReceiverID: alice, Content: "ct"}}
	s.service.On("StartChat", mock.Anything, alice, bob).Return(history, nil)

	conn, _, err := websocket.DefaultDialer.Dial(s.url(""), nil)
	require.NoError(t, err)
	defer conn.Close()

	writeEvent(t, conn, domain.EventHandshake, domain.HandshakePayload{Token: s.token(t, alice)})
	writeEvent(t, conn, domain.EventStartChat, bob.String())

	envelope := readEvent(t, conn)
	require.Equal(t, domain.EventChatHistory, envelope.Event)
	var got []*domain.Message
	require.NoError(t, json.Unmarshal(envelope.Data, &got))
	require.Len(t, got, 1)
	assert.Equal(t, history[0].ID, got[0].ID)
}

func TestServeWS_HandshakeWithBadToken(t *testing.T) {
	s := newTestServer(t, time.Second)

	conn, _, err := websocket.DefaultDialer.Dial(s.url(""), nil)
	require.NoError(t, err)
	defer conn.Close()

	writeEvent(t, conn, domain.EventHandshake, domain.HandshakePayload{Token: "forged"})

	assert.Equal(t, "Authentication error", readError(t, conn))
	assertClosedWithPolicyViolation(t, conn)
}

func TestServeWS_EventBeforeHandshakeRejected(t *testing.T) {
	s := newTestServer(t, time.Second)

	conn, _, err := websocket.DefaultDialer.Dial(s.url(""), nil)
	require.NoError(t, err)
	defer conn.Close()

	writeEvent(t, conn, domain.EventStartChat, uuid.NewString())

	assert.Equal(t, "Authentication error", readError(t, conn))
	s.service.AssertNotCalled(t, "StartChat", mock.Anything, mock.Anything, mock.Anything)
}

func TestServeWS_HandshakeTimeout(t *testing.T) {
	s := newTestServer(t, 100*time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial(s.url(""), nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "Authentication error", readError(t, conn))
}

func TestServeWS_DisallowedOrigin(t *testing.T) {
	s := newTestServer(t, time.Second)

	header := http.Header{"Origin": {"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(s.url("token="+s.token(t, uuid.New())), header)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServeWS_StartChatNotMutualKeepsConnection(t *testing.T) {
	s := newTestServer(t, time.Second)
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	s.service.On("StartChat", mock.Anything, alice, bob).Return(nil, apperrors.ForbiddenError(chat.MsgNotMutualFollow))
	s.service.On("StartChat", mock.Anything, alice, carol).Return([]*domain.Message{}, nil)

	conn := s.connect(t, alice)

	writeEvent(t, conn, domain.EventStartChat, bob.String())
	assert.Equal(t, "Users must follow each other to chat", readError(t, conn))

	writeEvent(t, conn, domain.EventStartChat, carol.String())
	assert.Equal(t, domain.EventChatHistory, readEvent(t, conn).Event)
	assert.Equal(t, 1, s.registry.ConnectionCount(alice))
}

func TestServeWS_StartChatObjectPayload(t *testing.T) {
	s := newTestServer(t, time.Second)
	alice, bob := uuid.New(), uuid.New()
	s.service.On("StartChat", mock.Anything, alice, bob).Return([]*domain.Message{}, nil)

	conn := s.connect(t, alice)
	writeEvent(t, conn, domain.EventStartChat, map[string]string{"receiverId": bob.String()})

	envelope := readEvent(t, conn)
	assert.Equal(t, domain.EventChatHistory, envelope.Event)
	assert.JSONEq(t, `[]`, string(envelope.Data))
}

func TestServeWS_ServerErrorUsesFallbackMessage(t *testing.T) {
	s := newTestServer(t, time.Second)
	alice, bob := uuid.New(), uuid.New()
	s.service.On("StartChat", mock.Anything, alice, bob).Return(nil, apperrors.DatabaseError(assert.AnError))
	s.service.On("SendMessage", mock.Anything, alice, bob, "hi").Return(nil, apperrors.DatabaseError(assert.AnError))

	conn := s.connect(t, alice)

	writeEvent(t, conn, domain.EventStartChat, bob.String())
	assert.Equal(t, "Failed to start chat", readError(t, conn))

	writeEvent(t, conn, domain.EventSendMessage, domain.SendMessagePayload{ReceiverID: bob.String(), Content: "hi"})
	assert.Equal(t, "Failed to send message", readError(t, conn))
}

func TestServeWS_SendMessageErrors(t *testing.T) {
	s := newTestServer(t, time.Second)
	alice, bob := uuid.New(), uuid.New()
	s.service.On("SendMessage", mock.Anything, alice, bob, "no key").
		Return(nil, apperrors.NewWithStatus(apperrors.ErrCodeNotFound, chat.MsgNoReceiverKey, http.StatusNotFound))
	s.service.On("SendMessage", mock.Anything, alice, bob, "long").
		Return(nil, apperrors.PayloadTooLargeError(assert.AnError))

	conn := s.connect(t, alice)

	writeEvent(t, conn, domain.EventSendMessage, domain.SendMessagePayload{ReceiverID: bob.String(), Content: "no key"})
	assert.Equal(t, "Receiver has no public key", readError(t, conn))

	writeEvent(t, conn, domain.EventSendMessage, domain.SendMessagePayload{ReceiverID: bob.String(), Content: "long"})
	assert.Equal(t, "Message too large", readError(t, conn))
}

func TestServeWS_SendMessageFansOutToAllDevices(t *testing.T) {
	s := newTestServer(t, time.Second)
	alice, bob := uuid.New(), uuid.New()
	stored := &domain.Message{ID: uuid.New(), SenderID: alice, ReceiverID: bob, Content: "ct", CreatedAt: time.Now().UTC()}

	s.service.On("SendMessage", mock.Anything, alice, bob, "hello").
		Run(func(args mock.Arguments) {
			s.registry.Broadcast(args.Get(0).(context.Context), []uuid.UUID{alice, bob}, domain.EventNewMessage, stored)
		}).
		Return(stored, nil).Once()

	alicePhone := s.connect(t, alice)
	aliceLaptop := s.connect(t, alice)
	bobPhone := s.connect(t, bob)

	writeEvent(t, alicePhone, domain.EventSendMessage, domain.SendMessagePayload{ReceiverID: bob.String(), Content: "hello"})

	for _, conn := range []*websocket.Conn{alicePhone, aliceLaptop, bobPhone} {
		envelope := readEvent(t, conn)
		require.Equal(t, domain.EventNewMessage, envelope.Event)
		var got domain.Message
		require.NoError(t, json.Unmarshal(envelope.Data, &got))
		assert.Equal(t, stored.ID, got.ID)
		assert.Equal(t, "ct", got.Content)
	}
	s.service.AssertExpectations(t)
}

func TestServeWS_InvalidFrames(t *testing.T) {
	s := newTestServer(t, time.Second)
	conn := s.connect(t, uuid.New())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, "Invalid event", readError(t, conn))

	writeEvent(t, conn, "delete_everything", nil)
	assert.Equal(t, "Invalid event", readError(t, conn))

	writeEvent(t, conn, domain.EventSendMessage, domain.SendMessagePayload{ReceiverID: "not-a-uuid", Content: "x"})
	assert.Equal(t, "Invalid event", readError(t, conn))

	writeEvent(t, conn, domain.EventStartChat, 42)
	assert.Equal(t, "Invalid event", readError(t, conn))
}

func TestServeWS_PanicBecomesErrorEvent(t *testing.T) {
	s := newTestServer(t, time.Second)
	alice, bob := uuid.New(), uuid.New()
	s.service.On("SendMessage", mock.Anything, alice, bob, "boom").
		Run(func(mock.Arguments) { panic("boom") }).
		Return(nil, nil)
	s.service.On("StartChat", mock.Anything, alice, bob).Return([]*domain.Message{}, nil)

	conn := s.connect(t, alice)

	writeEvent(t, conn, domain.EventSendMessage, domain.SendMessagePayload{ReceiverID: bob.String(), Content: "boom"})
	assert.Equal(t, "Failed to send message", readError(t, conn))

	writeEvent(t, conn, domain.EventStartChat, bob.String())
	assert.Equal(t, domain.EventChatHistory, readEvent(t, conn).Event)
}

func TestServeWS_DisconnectUnregisters(t *testing.T) {
	s := newTestServer(t, time.Second)
	alice := uuid.New()
	conn := s.connect(t, alice)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return s.registry.ConnectionCount(alice) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServeWS_RegistryCloseDisconnects(t *testing.T) {
	s := newTestServer(t, time.Second)
	conn := s.connect(t, uuid.New())

	s.registry.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
