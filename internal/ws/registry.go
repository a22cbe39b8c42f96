package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/liliang-cn/chatgalaxy/internal/config"
)

// ErrHandshake reports that the greeting could not be delivered to a new connection
var ErrHandshake = errors.New("connection greeting failed")

// Registry tracks every live connection together with a session subscription
// index and a user index. All three structures stay consistent under one
// lock: a connection appears in an index set only while it is in conns, and
// empty sets are removed immediately.
type Registry struct {
	cfg    config.WebSocketConfig
	logger *zap.Logger

	mu       sync.RWMutex
	conns    map[string]*Connection
	sessions map[string]map[string]struct{}
	users    map[string]map[string]struct{}
}

// NewRegistry creates an empty connection registry
func NewRegistry(cfg config.WebSocketConfig, logger *zap.Logger) *Registry {
	return &Registry{
		cfg:      cfg,
		logger:   logger,
		conns:    make(map[string]*Connection),
		sessions: make(map[string]map[string]struct{}),
		users:    make(map[string]map[string]struct{}),
	}
}

// Register tracks a new socket and greets it. The connection is subscribed
// to its initial session when one is given. If the greeting cannot be
// written the registration is rolled back and ErrHandshake returned; the
// caller still owns the socket in that case.
func (r *Registry) Register(sock Socket, userID, sessionID, guestToken string) (*Connection, error) {
	conn := &Connection{
		ID:            uuid.New().String(),
		UserID:        userID,
		SessionID:     sessionID,
		GuestToken:    guestToken,
		sock:          sock,
		writeWait:     r.cfg.WriteDeadline(),
		connectedAt:   time.Now(),
		lastHeartbeat: time.Now(),
	}

	r.mu.Lock()
	r.conns[conn.ID] = conn
	if sessionID != "" {
		r.subscribeLocked(conn.ID, sessionID)
	}
	if userID != "" {
		set := r.users[userID]
		if set == nil {
			set = make(map[string]struct{})
			r.users[userID] = set
		}
		set[conn.ID] = struct{}{}
	}
	r.mu.Unlock()

	greeting := ConnectionEstablished{
		Type:           KindConnectionEstablished,
		ConnectionID:   conn.ID,
		ConnectionType: conn.Type(),
		SessionID:      sessionID,
		Timestamp:      time.Now(),
	}
	data, err := json.Marshal(greeting)
	if err == nil {
		err = conn.write(data)
	}
	if err != nil {
		r.remove(conn.ID)
		return nil, ErrHandshake
	}

	r.logger.Info("websocket connected",
		zap.String("connection_id", conn.ID),
		zap.String("connection_type", conn.Type()),
		zap.String("session_id", sessionID),
	)
	return conn, nil
}

// Unregister removes a connection from every index and closes its socket.
// It reports whether the connection was known; repeat calls are no-ops.
func (r *Registry) Unregister(connID string) bool {
	conn := r.remove(connID)
	if conn == nil {
		return false
	}
	conn.close(websocket.CloseNormalClosure, "")
	r.logger.Info("websocket disconnected", zap.String("connection_id", connID))
	return true
}

// remove detaches the connection from all three maps without touching the
// socket. Returns nil when the id is unknown.
func (r *Registry) remove(connID string) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return nil
	}
	delete(r.conns, connID)

	for sessionID, set := range r.sessions {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.sessions, sessionID)
		}
	}
	if conn.UserID != "" {
		if set := r.users[conn.UserID]; set != nil {
			delete(set, connID)
			if len(set) == 0 {
				delete(r.users, conn.UserID)
			}
		}
	}
	return conn
}

// Subscribe adds a connection to a session's subscriber set. It reports
// false for unknown connections.
func (r *Registry) Subscribe(connID, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[connID]; !ok {
		return false
	}
	r.subscribeLocked(connID, sessionID)
	return true
}

func (r *Registry) subscribeLocked(connID, sessionID string) {
	set := r.sessions[sessionID]
	if set == nil {
		set = make(map[string]struct{})
		r.sessions[sessionID] = set
	}
	set[connID] = struct{}{}
}

// Unsubscribe removes a connection from a session's subscriber set. It
// reports false when the connection was not subscribed.
func (r *Registry) Unsubscribe(connID, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	if _, ok := set[connID]; !ok {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.sessions, sessionID)
	}
	return true
}

// DropSession discards a session's entire subscriber set. Connections stay
// registered; they just stop receiving that session's broadcasts.
func (r *Registry) DropSession(sessionID string) {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
}

// Send marshals v and writes it to one connection. A write failure evicts
// the connection. Returns false for unknown connections and failed writes.
// A delivered frame counts as a liveness signal, same as an inbound ping.
func (r *Registry) Send(connID string, v any) bool {
	return r.send(connID, v, true)
}

// probe writes v without refreshing liveness. The monitor uses it so that a
// silent peer still times out even though its socket accepts writes.
func (r *Registry) probe(connID string, v any) bool {
	return r.send(connID, v, false)
}

func (r *Registry) send(connID string, v any, touch bool) bool {
	r.mu.RLock()
	conn, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Error("marshal outbound frame", zap.Error(err))
		return false
	}

	if err := conn.write(data); err != nil {
		r.logger.Warn("websocket write failed, evicting",
			zap.String("connection_id", connID),
			zap.Error(err),
		)
		r.Unregister(connID)
		return false
	}
	if touch {
		conn.touch()
	}
	return true
}

// Touch records a liveness signal for a connection.
func (r *Registry) Touch(connID string) bool {
	r.mu.RLock()
	conn, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	conn.touch()
	return true
}

// ConnectionsForSession returns a copy of a session's subscriber ids.
func (r *Registry) ConnectionsForSession(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyIDs(r.sessions[sessionID])
}

// ConnectionsForUser returns a copy of a user's connection ids.
func (r *Registry) ConnectionsForUser(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyIDs(r.users[userID])
}

func copyIDs(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// BroadcastToSession sends v to every subscriber of a session except
// excludeConnID. Returns the number of successful deliveries.
func (r *Registry) BroadcastToSession(sessionID string, v any, excludeConnID string) int {
	return r.deliver(r.ConnectionsForSession(sessionID), v, excludeConnID)
}

// BroadcastToUser sends v to every connection of a user.
func (r *Registry) BroadcastToUser(userID string, v any) int {
	return r.deliver(r.ConnectionsForUser(userID), v, "")
}

// BroadcastAll sends v to every registered connection except excludeConnID.
func (r *Registry) BroadcastAll(v any, excludeConnID string) int {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	return r.deliver(ids, v, excludeConnID)
}

func (r *Registry) deliver(ids []string, v any, excludeConnID string) int {
	sent := 0
	for _, id := range ids {
		if id == excludeConnID {
			continue
		}
		if r.Send(id, v) {
			sent++
		}
	}
	return sent
}

// Info returns a snapshot of one connection.
func (r *Registry) Info(connID string) (*ConnectionInfo, bool) {
	r.mu.RLock()
	conn, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return &ConnectionInfo{
		ID:            conn.ID,
		UserID:        conn.UserID,
		Type:          conn.Type(),
		SessionID:     conn.SessionID,
		ConnectedAt:   conn.connectedAt,
		LastHeartbeat: conn.lastSeen(),
	}, true
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// snapshot returns every registered connection for the monitor sweep.
func (r *Registry) snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	return conns
}

// Stats is the live connection census served on the admin surface.
type Stats struct {
	TotalConnections         int `json:"total_connections"`
	AuthenticatedConnections int `json:"authenticated_connections"`
	GuestConnections         int `json:"guest_connections"`
	ActiveSessions           int `json:"active_sessions"`
	UniqueUsers              int `json:"unique_users"`
	HeartbeatInterval        int `json:"heartbeat_interval"`
	HeartbeatTimeout         int `json:"heartbeat_timeout"`
}

// Stats counts the current connections by type.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	authenticated := 0
	for _, conn := range r.conns {
		if !conn.Guest() {
			authenticated++
		}
	}
	return Stats{
		TotalConnections:         len(r.conns),
		AuthenticatedConnections: authenticated,
		GuestConnections:         len(r.conns) - authenticated,
		ActiveSessions:           len(r.sessions),
		UniqueUsers:              len(r.users),
		HeartbeatInterval:        r.cfg.HeartbeatInterval,
		HeartbeatTimeout:         r.cfg.HeartbeatTimeout,
	}
}

// CloseAll closes every connection with the given code and clears the
// registry. Used on shutdown.
func (r *Registry) CloseAll(code int, reason string) {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	r.conns = make(map[string]*Connection)
	r.sessions = make(map[string]map[string]struct{})
	r.users = make(map[string]map[string]struct{})
	r.mu.Unlock()

	for _, conn := range conns {
		conn.close(code, reason)
	}
	if len(conns) > 0 {
		r.logger.Info("closed all websocket connections", zap.Int("count", len(conns)))
	}
}
