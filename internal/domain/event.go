package domain

import "encoding/json"

// Chat channel event names
const (
	EventHandshake   = "handshake"
	EventStartChat   = "start_chat"
	EventSendMessage = "send_message"
	EventChatHistory = "chat_history"
	EventNewMessage  = "new_message"
	EventError       = "error"
)

// Envelope is a single frame on the chat channel
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// HandshakePayload carries the bearer credential when it is not on the upgrade request
type HandshakePayload struct {
	Token string `json:"token"`
}

// SendMessagePayload is the data of a send_message event
type SendMessagePayload struct {
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
}

// ErrorPayload is the data of an error event
type ErrorPayload struct {
	Message string `json:"message"`
}
