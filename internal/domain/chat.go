package domain

import (
	"fmt"
	"strings"
	"time"
)

// ChatMode selects how the assistant reply is produced
type ChatMode string

const (
	// ModeNormal returns one complete reply
	ModeNormal ChatMode = "normal"
	// ModeStream returns the reply as incremental chunks
	ModeStream ChatMode = "stream"
	// ModeContext is ModeNormal with caller-supplied context messages
	ModeContext ChatMode = "context"
)

// SessionStatus is the lifecycle state of a chat session
type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionArchived SessionStatus = "archived"
	SessionDeleted  SessionStatus = "deleted"
)

// Request bounds enforced on every chat turn.
const (
	MaxMessageChars    = 10000
	MaxContextMessages = 20
	MaxTitleChars      = 200
	MinReplyTokens     = 1
	MaxReplyTokens     = 4000
)

// Session represents a chat session
type Session struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id,omitempty"`
	GuestToken    string        `json:"-"`
	RoleID        string        `json:"role_id"`
	Title         string        `json:"title"`
	IsActive      bool          `json:"is_active"`
	Status        SessionStatus `json:"status"`
	MessageCount  int           `json:"message_count"`
	TotalTokens   int           `json:"total_tokens"`
	LastMessageAt *time.Time    `json:"last_message_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Message represents a chat message
type Message struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"session_id"`
	Role       string         `json:"role"` // user, assistant, system
	Content    string         `json:"content"`
	TokensUsed int            `json:"tokens_used"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ContextMessage is one caller-supplied context turn
type ContextMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the request to send a chat message
type ChatRequest struct {
	SessionID       string           `json:"session_id,omitempty"`
	RoleID          string           `json:"role_id" binding:"required"`
	Message         string           `json:"message" binding:"required"`
	Mode            ChatMode         `json:"mode,omitempty"`
	ContextMessages []ContextMessage `json:"context_messages,omitempty"`
	Temperature     *float32         `json:"temperature,omitempty"`
	MaxTokens       *int             `json:"max_tokens,omitempty"`
	GuestToken      string           `json:"guest_token,omitempty"`
}

// Validate checks the request against the documented bounds.
func (r *ChatRequest) Validate() error {
	msg := strings.TrimSpace(r.Message)
	if msg == "" {
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	if len(r.Message) > MaxMessageChars {
		return fmt.Errorf("%w: message exceeds %d characters", ErrValidation, MaxMessageChars)
	}
	if r.RoleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrValidation)
	}
	switch r.Mode {
	case "", ModeNormal, ModeStream, ModeContext:
	default:
		return fmt.Errorf("%w: unknown chat mode %q", ErrValidation, r.Mode)
	}
	if len(r.ContextMessages) > MaxContextMessages {
		return fmt.Errorf("%w: at most %d context messages", ErrValidation, MaxContextMessages)
	}
	for _, m := range r.ContextMessages {
		switch m.Role {
		case "user", "assistant", "system":
		default:
			return fmt.Errorf("%w: context message role %q", ErrValidation, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return fmt.Errorf("%w: context message content is required", ErrValidation)
		}
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return fmt.Errorf("%w: temperature must be between 0 and 2", ErrValidation)
	}
	if r.MaxTokens != nil && (*r.MaxTokens < MinReplyTokens || *r.MaxTokens > MaxReplyTokens) {
		return fmt.Errorf("%w: max_tokens must be between %d and %d", ErrValidation, MinReplyTokens, MaxReplyTokens)
	}
	return nil
}

// ChatResponse is the complete reply for one chat turn
type ChatResponse struct {
	SessionID     string         `json:"session_id"`
	MessageID     string         `json:"message_id"`
	UserMessageID string         `json:"user_message_id"`
	Content       string         `json:"content"`
	RoleID        string         `json:"role_id"`
	RoleName      string         `json:"role_name"`
	TokensUsed    int            `json:"tokens_used"`
	ResponseTime  float64        `json:"response_time"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// StreamChunk is one fragment of a streamed reply
type StreamChunk struct {
	MessageID  string `json:"message_id,omitempty"`
	Content    string `json:"content"`
	IsComplete bool   `json:"is_complete"`
	TokensUsed int    `json:"tokens_used"`
	Err        error  `json:"-"`
}

// CreateSessionRequest is the request to create a chat session
type CreateSessionRequest struct {
	RoleID     string `json:"role_id" binding:"required"`
	Title      string `json:"title,omitempty"`
	GuestToken string `json:"guest_token,omitempty"`
}

// UpdateSessionRequest is the request to update a chat session
type UpdateSessionRequest struct {
	Title    *string        `json:"title,omitempty"`
	IsActive *bool          `json:"is_active,omitempty"`
	Status   *SessionStatus `json:"status,omitempty"`
}

// ChatHistory is a session's message log with its summary counters
type ChatHistory struct {
	SessionID     string    `json:"session_id"`
	Messages      []Message `json:"messages"`
	TotalMessages int       `json:"total_messages"`
	TotalTokens   int       `json:"total_tokens"`
	SessionTitle  string    `json:"session_title"`
	RoleName      string    `json:"role_name"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
