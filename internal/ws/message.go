package ws

import (
	"encoding/json"
	"time"

	"github.com/liliang-cn/chatgalaxy/internal/domain"
)

// Kind tags every frame crossing the socket.
type Kind string

const (
	// Client -> Server frame kinds
	KindHeartbeat     Kind = "heartbeat"
	KindPing          Kind = "ping"
	KindChatMessage   Kind = "chat_message"
	KindSubscribe     Kind = "subscribe"
	KindUnsubscribe   Kind = "unsubscribe"
	KindSessionCreate Kind = "session_create"
	KindSessionUpdate Kind = "session_update"
	KindSessionDelete Kind = "session_delete"

	// Server -> Client frame kinds
	KindConnectionEstablished Kind = "connection_established"
	KindHeartbeatAck          Kind = "heartbeat_ack"
	KindHeartbeatRequest      Kind = "heartbeat_request"
	KindPong                  Kind = "pong"
	KindChatResponse          Kind = "chat_response"
	KindChatStream            Kind = "chat_stream"
	KindChatError             Kind = "chat_error"
	KindSubscribed            Kind = "subscribed"
	KindUnsubscribed          Kind = "unsubscribed"
	KindSystemMessage         Kind = "system_message"
	KindError                 Kind = "error"
)

// Envelope is the shape every inbound frame is decoded into. Data holds the
// kind-specific payload; subscribe and unsubscribe put the session id at the
// top level instead.
type Envelope struct {
	Type      Kind            `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
}

// ConnectionEstablished greets a socket right after registration.
type ConnectionEstablished struct {
	Type           Kind      `json:"type"`
	ConnectionID   string    `json:"connection_id"`
	ConnectionType string    `json:"connection_type"`
	SessionID      string    `json:"session_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Signal is an event that carries nothing but its kind and time. It serves
// heartbeat_ack, heartbeat_request and pong.
type Signal struct {
	Type      Kind      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorEvent reports a failure to one connection. It serves both the error
// and chat_error kinds.
type ErrorEvent struct {
	Type      Kind      `json:"type"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// SubscriptionAck confirms a subscribe or unsubscribe. Success carries the
// index-mutation outcome; an unsubscribe for a session the connection never
// joined acks with false.
type SubscriptionAck struct {
	Type      Kind      `json:"type"`
	SessionID string    `json:"session_id"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// SystemMessage is an operator notice pushed from the admin surface.
type SystemMessage struct {
	Type      Kind      `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatResponseEvent delivers a completed chat turn.
type ChatResponseEvent struct {
	Type Kind             `json:"type"`
	Data ChatResponseData `json:"data"`
}

// ChatResponseData is the payload of a completed chat turn.
type ChatResponseData struct {
	SessionID     string         `json:"session_id"`
	UserMessageID string         `json:"user_message_id"`
	AIMessageID   string         `json:"ai_message_id"`
	AIRoleName    string         `json:"ai_role_name"`
	Content       string         `json:"content"`
	TokensUsed    int            `json:"tokens_used"`
	ResponseTime  float64        `json:"response_time"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// ChatStreamEvent delivers one increment of a streamed chat turn.
type ChatStreamEvent struct {
	Type Kind           `json:"type"`
	Data ChatStreamData `json:"data"`
}

// ChatStreamData is the payload of one stream increment. TokensUsed is only
// set on the final chunk, where IsComplete is true.
type ChatStreamData struct {
	SessionID  string    `json:"session_id"`
	MessageID  string    `json:"message_id"`
	Content    string    `json:"content"`
	IsComplete bool      `json:"is_complete"`
	TokensUsed int       `json:"tokens_used,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// SessionEvent wraps the session lifecycle notifications. Data is one of
// SessionCreatedData, SessionUpdatedData or SessionDeletedData.
type SessionEvent struct {
	Type      Kind      `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionRole is the role summary embedded in session_create.
type SessionRole struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// SessionCreatedData is the session_create payload. SessionToken is only
// present for guest-owned sessions.
type SessionCreatedData struct {
	SessionID    string      `json:"session_id"`
	SessionToken string      `json:"session_token,omitempty"`
	Title        string      `json:"title"`
	AIRole       SessionRole `json:"ai_role"`
	CreatedAt    time.Time   `json:"created_at"`
}

// SessionUpdatedData is the session_update payload.
type SessionUpdatedData struct {
	SessionID     string    `json:"session_id"`
	Title         string    `json:"title"`
	IsActive      bool      `json:"is_active"`
	SessionStatus string    `json:"session_status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SessionDeletedData is the session_delete payload.
type SessionDeletedData struct {
	SessionID string `json:"session_id"`
}

// sessionUpdatePayload is the inbound session_update data block.
type sessionUpdatePayload struct {
	SessionID string                `json:"session_id"`
	Title     *string               `json:"title,omitempty"`
	IsActive  *bool                 `json:"is_active,omitempty"`
	Status    *domain.SessionStatus `json:"session_status,omitempty"`
}

// sessionDeletePayload is the inbound session_delete data block.
type sessionDeletePayload struct {
	SessionID string `json:"session_id"`
}

func signal(kind Kind) Signal {
	return Signal{Type: kind, Timestamp: time.Now()}
}

func errorEvent(kind Kind, msg string) ErrorEvent {
	return ErrorEvent{Type: kind, Error: msg, Timestamp: time.Now()}
}
