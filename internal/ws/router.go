package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/liliang-cn/chatgalaxy/internal/domain"
)

// ChatCollaborator is what the router needs from the chat service.
type ChatCollaborator interface {
	SendMessage(ctx context.Context, req *domain.ChatRequest, userID string) (*domain.ChatResponse, error)
	StreamMessage(ctx context.Context, req *domain.ChatRequest, userID string) (<-chan domain.StreamChunk, error)
	CreateSession(ctx context.Context, req *domain.CreateSessionRequest, userID string) (*domain.Session, error)
	GetSession(ctx context.Context, id, userID, guestToken string) (*domain.Session, error)
	UpdateSession(ctx context.Context, id string, req *domain.UpdateSessionRequest, userID, guestToken string) (*domain.Session, error)
	DeleteSession(ctx context.Context, id, userID, guestToken string) error
}

// RoleCollaborator resolves role summaries for session notifications.
type RoleCollaborator interface {
	GetRole(ctx context.Context, id string) (*domain.AIRole, error)
}

// Router dispatches inbound frames. Turns on the same session are
// serialized through a per-session lock; turns on different sessions run
// concurrently.
type Router struct {
	// Collaborator calls run on the router's base context rather than a
	// per-connection one, so a turn in flight is still persisted when its
	// socket drops.
	base     context.Context
	registry *Registry
	chat     ChatCollaborator
	roles    RoleCollaborator
	logger   *zap.Logger

	mu    sync.Mutex
	turns map[string]*turnLock
}

// NewRouter creates the inbound frame router
func NewRouter(base context.Context, registry *Registry, chat ChatCollaborator, roles RoleCollaborator, logger *zap.Logger) *Router {
	return &Router{
		base:     base,
		registry: registry,
		chat:     chat,
		roles:    roles,
		logger:   logger,
		turns:    make(map[string]*turnLock),
	}
}

type turnLock struct {
	mu   sync.Mutex
	refs int
}

// lockTurn acquires the session's turn lock, creating it on first use. The
// returned release function drops the lock entry once no turn holds or
// waits on it.
func (r *Router) lockTurn(sessionID string) func() {
	r.mu.Lock()
	tl := r.turns[sessionID]
	if tl == nil {
		tl = &turnLock{}
		r.turns[sessionID] = tl
	}
	tl.refs++
	r.mu.Unlock()

	tl.mu.Lock()
	return func() {
		tl.mu.Unlock()
		r.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(r.turns, sessionID)
		}
		r.mu.Unlock()
	}
}

// HandleInbound processes one frame from a connection. Malformed or unknown
// frames produce an error event on the same connection; they never close it.
func (r *Router) HandleInbound(conn *Connection, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		r.registry.Send(conn.ID, errorEvent(KindError, "invalid message format"))
		return
	}

	switch env.Type {
	case KindHeartbeat:
		r.registry.Touch(conn.ID)
		r.registry.Send(conn.ID, signal(KindHeartbeatAck))
	case KindPing:
		r.registry.Touch(conn.ID)
		r.registry.Send(conn.ID, signal(KindPong))
	case KindChatMessage:
		r.handleChat(conn, env.Data)
	case KindSubscribe:
		r.handleSubscribe(conn, env.SessionID)
	case KindUnsubscribe:
		r.handleUnsubscribe(conn, env.SessionID)
	case KindSessionCreate:
		r.handleSessionCreate(conn, env.Data)
	case KindSessionUpdate:
		r.handleSessionUpdate(conn, env.Data)
	case KindSessionDelete:
		r.handleSessionDelete(conn, env.Data)
	default:
		r.logger.Debug("unknown frame kind",
			zap.String("connection_id", conn.ID),
			zap.String("kind", string(env.Type)),
		)
		r.registry.Send(conn.ID, errorEvent(KindError, fmt.Sprintf("unknown message type: %s", env.Type)))
	}
}

func (r *Router) handleChat(conn *Connection, data json.RawMessage) {
	var req domain.ChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		r.registry.Send(conn.ID, errorEvent(KindError, "invalid chat payload"))
		return
	}
	if req.SessionID == "" {
		req.SessionID = conn.SessionID
	}
	if req.GuestToken == "" {
		req.GuestToken = conn.GuestToken
	}

	// A first message without a session has nothing to serialize against;
	// the session it creates gets locked from its second turn on.
	if req.SessionID != "" {
		unlock := r.lockTurn(req.SessionID)
		defer unlock()
	}

	if req.Mode == domain.ModeStream {
		r.streamTurn(conn, &req)
		return
	}
	r.syncTurn(conn, &req)
}

func (r *Router) syncTurn(conn *Connection, req *domain.ChatRequest) {
	resp, err := r.chat.SendMessage(r.base, req, conn.UserID)
	if err != nil {
		r.logger.Warn("chat turn failed",
			zap.String("connection_id", conn.ID),
			zap.Error(err),
		)
		r.registry.Send(conn.ID, errorEvent(KindChatError, err.Error()))
		return
	}

	// The sender receives the reply through its own subscription, so a
	// session created by this turn subscribes it first.
	r.registry.Subscribe(conn.ID, resp.SessionID)

	event := ChatResponseEvent{
		Type: KindChatResponse,
		Data: ChatResponseData{
			SessionID:     resp.SessionID,
			UserMessageID: resp.UserMessageID,
			AIMessageID:   resp.MessageID,
			AIRoleName:    resp.RoleName,
			Content:       resp.Content,
			TokensUsed:    resp.TokensUsed,
			ResponseTime:  resp.ResponseTime,
			Metadata:      resp.Metadata,
			Timestamp:     time.Now(),
		},
	}
	r.registry.BroadcastToSession(resp.SessionID, event, "")
}

func (r *Router) streamTurn(conn *Connection, req *domain.ChatRequest) {
	ch, err := r.chat.StreamMessage(r.base, req, conn.UserID)
	if err != nil {
		r.logger.Warn("chat stream failed",
			zap.String("connection_id", conn.ID),
			zap.Error(err),
		)
		r.registry.Send(conn.ID, errorEvent(KindChatError, err.Error()))
		return
	}

	// StreamMessage fills in the session id when the turn created one;
	// subscribing here puts the sender on the delivery path with everyone
	// else.
	r.registry.Subscribe(conn.ID, req.SessionID)

	for chunk := range ch {
		if chunk.Err != nil {
			r.registry.Send(conn.ID, errorEvent(KindChatError, chunk.Err.Error()))
			return
		}
		event := ChatStreamEvent{
			Type: KindChatStream,
			Data: ChatStreamData{
				SessionID:  req.SessionID,
				MessageID:  chunk.MessageID,
				Content:    chunk.Content,
				IsComplete: chunk.IsComplete,
				TokensUsed: chunk.TokensUsed,
				Timestamp:  time.Now(),
			},
		}
		r.registry.BroadcastToSession(req.SessionID, event, "")
	}
}

func (r *Router) handleSubscribe(conn *Connection, sessionID string) {
	if sessionID == "" {
		r.registry.Send(conn.ID, errorEvent(KindError, "session_id is required"))
		return
	}
	if _, err := r.chat.GetSession(r.base, sessionID, conn.UserID, conn.GuestToken); err != nil {
		r.registry.Send(conn.ID, errorEvent(KindError, "session not found"))
		return
	}
	ok := r.registry.Subscribe(conn.ID, sessionID)
	r.registry.Send(conn.ID, SubscriptionAck{Type: KindSubscribed, SessionID: sessionID, Success: ok, Timestamp: time.Now()})
}

func (r *Router) handleUnsubscribe(conn *Connection, sessionID string) {
	if sessionID == "" {
		r.registry.Send(conn.ID, errorEvent(KindError, "session_id is required"))
		return
	}
	ok := r.registry.Unsubscribe(conn.ID, sessionID)
	r.registry.Send(conn.ID, SubscriptionAck{Type: KindUnsubscribed, SessionID: sessionID, Success: ok, Timestamp: time.Now()})
}

func (r *Router) handleSessionCreate(conn *Connection, data json.RawMessage) {
	var req domain.CreateSessionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		r.registry.Send(conn.ID, errorEvent(KindError, "invalid session payload"))
		return
	}
	if req.GuestToken == "" {
		req.GuestToken = conn.GuestToken
	}

	session, err := r.chat.CreateSession(r.base, &req, conn.UserID)
	if err != nil {
		r.registry.Send(conn.ID, errorEvent(KindError, err.Error()))
		return
	}

	role := SessionRole{ID: session.RoleID}
	if aiRole, err := r.roles.GetRole(r.base, session.RoleID); err == nil {
		role.Name = aiRole.Name
		role.AvatarURL = aiRole.AvatarURL
	}

	// The creator is subscribed before the notification so follow-up
	// broadcasts on the new session reach it.
	r.registry.Subscribe(conn.ID, session.ID)
	r.registry.Send(conn.ID, SessionEvent{
		Type: KindSessionCreate,
		Data: SessionCreatedData{
			SessionID:    session.ID,
			SessionToken: session.GuestToken,
			Title:        session.Title,
			AIRole:       role,
			CreatedAt:    session.CreatedAt,
		},
		Timestamp: time.Now(),
	})
}

func (r *Router) handleSessionUpdate(conn *Connection, data json.RawMessage) {
	var payload sessionUpdatePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.SessionID == "" {
		r.registry.Send(conn.ID, errorEvent(KindError, "session_id is required"))
		return
	}

	session, err := r.chat.UpdateSession(r.base, payload.SessionID, &domain.UpdateSessionRequest{
		Title:    payload.Title,
		IsActive: payload.IsActive,
		Status:   payload.Status,
	}, conn.UserID, conn.GuestToken)
	if err != nil {
		r.registry.Send(conn.ID, errorEvent(KindError, err.Error()))
		return
	}

	r.registry.BroadcastToSession(session.ID, SessionEvent{
		Type: KindSessionUpdate,
		Data: SessionUpdatedData{
			SessionID:     session.ID,
			Title:         session.Title,
			IsActive:      session.IsActive,
			SessionStatus: string(session.Status),
			UpdatedAt:     session.UpdatedAt,
		},
		Timestamp: time.Now(),
	}, "")
}

func (r *Router) handleSessionDelete(conn *Connection, data json.RawMessage) {
	var payload sessionDeletePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.SessionID == "" {
		r.registry.Send(conn.ID, errorEvent(KindError, "session_id is required"))
		return
	}

	if err := r.chat.DeleteSession(r.base, payload.SessionID, conn.UserID, conn.GuestToken); err != nil {
		r.registry.Send(conn.ID, errorEvent(KindError, err.Error()))
		return
	}

	// Subscribers learn about the deletion before the subscriber set is
	// discarded.
	r.registry.BroadcastToSession(payload.SessionID, SessionEvent{
		Type:      KindSessionDelete,
		Data:      SessionDeletedData{SessionID: payload.SessionID},
		Timestamp: time.Now(),
	}, "")
	r.registry.DropSession(payload.SessionID)
}
