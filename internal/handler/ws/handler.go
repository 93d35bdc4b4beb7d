package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"socialchat-backend/internal/domain"
	"socialchat-backend/internal/middleware"
	"socialchat-backend/internal/service/chat"
	apperrors "socialchat-backend/pkg/errors"
	"socialchat-backend/pkg/jwt"
	"socialchat-backend/pkg/logger"
	"socialchat-backend/pkg/metrics"
)

const (
	msgAuthenticationError = "Authentication error"
	msgInvalidEvent        = "Invalid event"
)

var errNoCredential = errors.New("no credential")

// Authenticator verifies the bearer credential of a connection
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*jwt.Claims, error)
}

// ChatService is what the channel needs from the chat service
type ChatService interface {
	StartChat(ctx context.Context, selfID, receiverID uuid.UUID) ([]*domain.Message, error)
	SendMessage(ctx context.Context, senderID, receiverID uuid.UUID, content string) (*domain.Message, error)
}

// Handler upgrades chat connections and dispatches their events
type Handler struct {
	registry         *Registry
	service          ChatService
	auth             Authenticator
	handshakeTimeout time.Duration
	upgrader         websocket.Upgrader
}

// NewHandler creates the chat channel handler. Connections from origins
// outside allowedOrigins are refused; requests without an Origin header are allowed.
func NewHandler(registry *Registry, service ChatService, auth Authenticator, handshakeTimeout time.Duration, allowedOrigins []string) *Handler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origins[origin] = true
	}

	return &Handler{
		registry:         registry,
		service:          service,
		auth:             auth,
		handshakeTimeout: handshakeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins["*"] || origins[origin]
			},
		},
	}
}

// ServeWS handles GET /v1/ws/chat
func (h *Handler) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.FromContext(c.Request.Context()).Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxFrameSize)

	claims, err := h.authenticate(c.Request, conn)
	if err != nil {
		metrics.ChatWebSocketConnectionUnauthorizedTotal.Inc()
		logger.FromContext(c.Request.Context()).Info("Chat connection rejected", zap.Error(err))
		rejectConnection(conn)
		return
	}

	client := newClient(conn, claims.UserID)
	if !h.registry.Register(client) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	// Connections outlive the upgrade request
	ctx := logger.WithUserID(context.Background(), claims.UserID)
	if requestID, ok := c.Get("request_id"); ok {
		if id, ok := requestID.(string); ok {
			ctx = logger.WithRequestID(ctx, id)
		}
	}

	go client.writePump()
	go h.readPump(ctx, client)
}

// authenticate takes the credential from the upgrade request, or from a
// handshake frame when the request carries none
func (h *Handler) authenticate(r *http.Request, conn *websocket.Conn) (*jwt.Claims, error) {
	token, ok := middleware.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		var err error
		token, err = h.readHandshake(conn)
		if err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.handshakeTimeout)
	defer cancel()
	return h.auth.Authenticate(ctx, token)
}

func (h *Handler) readHandshake(conn *websocket.Conn) (string, error) {
	conn.SetReadDeadline(time.Now().Add(h.handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("read handshake: %w", err)
	}

	var envelope domain.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Event != domain.EventHandshake {
		return "", errNoCredential
	}
	var payload domain.HandshakePayload
	if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.Token == "" {
		return "", errNoCredential
	}
	return payload.Token, nil
}

// rejectConnection sends the authentication error and closes with policy violation
func rejectConnection(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if frame, err := encodeFrame(domain.EventError, domain.ErrorPayload{Message: msgAuthenticationError}); err == nil {
		conn.WriteMessage(websocket.TextMessage, frame)
	}
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, msgAuthenticationError))
}

// readPump dispatches the frames of one connection in arrival order
func (h *Handler) readPump(ctx context.Context, c *Client) {
	defer h.registry.Unregister(c)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		h.registry.refreshPresence(c.userID)
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.FromContext(ctx).Debug("Chat connection closed", zap.Error(err))
			}
			if errors.Is(err, websocket.ErrReadLimit) {
				metrics.ChatClientMessageDroppedTotal.WithLabelValues("too_large").Inc()
			}
			return
		}
		h.dispatch(ctx, c, raw)
	}
}

// dispatch runs one event to completion. Failures and panics become an
// error event on this connection.
func (h *Handler) dispatch(ctx context.Context, c *Client, raw []byte) {
	event := "unknown"
	defer func() {
		if r := recover(); r != nil {
			metrics.ChatHandlerPanicTotal.Inc()
			metrics.ChatEventsTotal.WithLabelValues(event, "panic").Inc()
			logger.FromContext(ctx).Error("Chat event handler panicked",
				zap.String("event", event),
				zap.Any("panic", r))
			c.sendError(ctx, panicMessage(event))
		}
	}()

	var envelope domain.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		metrics.ChatEventsTotal.WithLabelValues(event, "invalid").Inc()
		c.sendError(ctx, msgInvalidEvent)
		return
	}

	var err error
	switch envelope.Event {
	case domain.EventStartChat:
		event = envelope.Event
		err = h.handleStartChat(ctx, c, envelope.Data)
	case domain.EventSendMessage:
		event = envelope.Event
		err = h.handleSendMessage(ctx, c, envelope.Data)
	case domain.EventHandshake:
		// Already authenticated
		return
	default:
		metrics.ChatEventsTotal.WithLabelValues(event, "invalid").Inc()
		c.sendError(ctx, msgInvalidEvent)
		return
	}

	if err != nil {
		metrics.ChatEventsTotal.WithLabelValues(event, "error").Inc()
		return
	}
	metrics.ChatEventsTotal.WithLabelValues(event, "success").Inc()
}

func (h *Handler) handleStartChat(ctx context.Context, c *Client, data json.RawMessage) error {
	receiverID, err := parseReceiver(data)
	if err != nil {
		c.sendError(ctx, msgInvalidEvent)
		return err
	}

	history, err := h.service.StartChat(ctx, c.userID, receiverID)
	if err != nil {
		c.sendError(ctx, errorMessage(ctx, err, chat.MsgFailedStartChat))
		return err
	}

	c.sendEvent(ctx, domain.EventChatHistory, history)
	return nil
}

func (h *Handler) handleSendMessage(ctx context.Context, c *Client, data json.RawMessage) error {
	var payload domain.SendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError(ctx, msgInvalidEvent)
		return err
	}
	receiverID, err := uuid.Parse(payload.ReceiverID)
	if err != nil {
		c.sendError(ctx, msgInvalidEvent)
		return err
	}

	// The stored message reaches this connection through the broadcast
	if _, err := h.service.SendMessage(ctx, c.userID, receiverID, payload.Content); err != nil {
		c.sendError(ctx, errorMessage(ctx, err, chat.MsgFailedSendMessage))
		return err
	}
	return nil
}

func panicMessage(event string) string {
	switch event {
	case domain.EventStartChat:
		return chat.MsgFailedStartChat
	case domain.EventSendMessage:
		return chat.MsgFailedSendMessage
	}
	return msgInvalidEvent
}

// parseReceiver accepts start_chat data as a bare id string or as {"receiverId": "..."}
func parseReceiver(data json.RawMessage) (uuid.UUID, error) {
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		var payload struct {
			ReceiverID string `json:"receiverId"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return uuid.Nil, err
		}
		id = payload.ReceiverID
	}
	return uuid.Parse(id)
}

// errorMessage is the client-facing text for err. Server-side failures are
// logged and reported with the fallback.
func errorMessage(ctx context.Context, err error, fallback string) string {
	appErr := apperrors.GetAppError(err)
	switch appErr.Code {
	case apperrors.ErrCodeInternal, apperrors.ErrCodeDatabase:
		logger.FromContext(ctx).Error(fallback, zap.Error(err))
		return fallback
	}
	return appErr.Message
}
