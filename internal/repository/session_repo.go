package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/chatgalaxy/internal/domain"
)

// SessionRepository handles chat session and message persistence
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create creates a new chat session
func (r *SessionRepository) Create(session *domain.Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.Status == "" {
		session.Status = domain.SessionActive
	}
	now := time.Now()
	session.CreatedAt = now
	session.UpdatedAt = now

	_, err := r.db.Exec(`
		INSERT INTO chat_sessions (id, user_id, guest_token, role_id, title, is_active,
			status, message_count, total_tokens, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, session.ID, nullable(session.UserID), nullable(session.GuestToken),
		session.RoleID, session.Title, session.IsActive, string(session.Status),
		session.MessageCount, session.TotalTokens, session.CreatedAt, session.UpdatedAt)

	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

const sessionColumns = `id, user_id, guest_token, role_id, title, is_active,
	status, message_count, total_tokens, last_message_at, created_at, updated_at`

// Get retrieves a session by ID
func (r *SessionRepository) Get(id string) (*domain.Session, error) {
	row := r.db.QueryRow(`SELECT `+sessionColumns+` FROM chat_sessions WHERE id = ?`, id)
	session, err := scanSession(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func scanSession(scan func(dest ...any) error) (*domain.Session, error) {
	session := &domain.Session{}
	var userID, guestToken sql.NullString
	var status string
	var lastMessageAt sql.NullTime

	err := scan(&session.ID, &userID, &guestToken, &session.RoleID, &session.Title,
		&session.IsActive, &status, &session.MessageCount, &session.TotalTokens,
		&lastMessageAt, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return nil, err
	}

	session.UserID = userID.String
	session.GuestToken = guestToken.String
	session.Status = domain.SessionStatus(status)
	if lastMessageAt.Valid {
		session.LastMessageAt = &lastMessageAt.Time
	}

	return session, nil
}

// ListByUser retrieves a user's sessions, newest activity first
func (r *SessionRepository) ListByUser(userID string) ([]*domain.Session, error) {
	return r.list(`SELECT `+sessionColumns+` FROM chat_sessions
		WHERE user_id = ? AND status != 'deleted'
		ORDER BY updated_at DESC`, userID)
}

// ListByGuest retrieves a guest's sessions by guest token
func (r *SessionRepository) ListByGuest(guestToken string) ([]*domain.Session, error) {
	return r.list(`SELECT `+sessionColumns+` FROM chat_sessions
		WHERE guest_token = ? AND status != 'deleted'
		ORDER BY updated_at DESC`, guestToken)
}

func (r *SessionRepository) list(query string, args ...any) ([]*domain.Session, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		session, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

// Update persists session changes
func (r *SessionRepository) Update(session *domain.Session) error {
	session.UpdatedAt = time.Now()

	_, err := r.db.Exec(`
		UPDATE chat_sessions SET title = ?, is_active = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, session.Title, session.IsActive, string(session.Status), session.UpdatedAt, session.ID)

	return err
}

// AppendMessage inserts a message and updates the session counters atomically
func (r *SessionRepository) AppendMessage(message *domain.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	message.CreatedAt = time.Now()

	var metadataJSON []byte
	if message.Metadata != nil {
		metadataJSON, _ = json.Marshal(message.Metadata)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO chat_messages (id, session_id, role, content, tokens_used, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, message.ID, message.SessionID, message.Role, message.Content,
		message.TokensUsed, string(metadataJSON), message.CreatedAt); err != nil {
		return err
	}

	if _, err := tx.Exec(`
		UPDATE chat_sessions
		SET message_count = message_count + 1,
			total_tokens = total_tokens + ?,
			last_message_at = ?,
			updated_at = ?
		WHERE id = ?
	`, message.TokensUsed, message.CreatedAt, message.CreatedAt, message.SessionID); err != nil {
		return err
	}

	return tx.Commit()
}

// GetMessages retrieves all messages for a session in chronological order
func (r *SessionRepository) GetMessages(sessionID string) ([]*domain.Message, error) {
	return r.listMessages(`
		SELECT id, session_id, role, content, tokens_used, metadata, created_at
		FROM chat_messages WHERE session_id = ?
		ORDER BY created_at ASC
	`, sessionID)
}

// RecentMessages retrieves the last n messages in chronological order
func (r *SessionRepository) RecentMessages(sessionID string, n int) ([]*domain.Message, error) {
	messages, err := r.listMessages(`
		SELECT id, session_id, role, content, tokens_used, metadata, created_at
		FROM chat_messages WHERE session_id = ?
		ORDER BY created_at DESC LIMIT ?
	`, sessionID, n)
	if err != nil {
		return nil, err
	}

	// Reverse back to chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *SessionRepository) listMessages(query string, args ...any) ([]*domain.Message, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		message := &domain.Message{}
		var metadataJSON sql.NullString

		if err := rows.Scan(&message.ID, &message.SessionID, &message.Role,
			&message.Content, &message.TokensUsed, &metadataJSON, &message.CreatedAt); err != nil {
			return nil, err
		}

		if metadataJSON.Valid && metadataJSON.String != "" {
			json.Unmarshal([]byte(metadataJSON.String), &message.Metadata)
		}
		messages = append(messages, message)
	}

	return messages, rows.Err()
}

// CountSessions returns the total number of non-deleted sessions
func (r *SessionRepository) CountSessions() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM chat_sessions WHERE status != 'deleted'`).Scan(&count)
	return count, err
}

// CountMessages returns the total number of messages
func (r *SessionRepository) CountMessages() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM chat_messages`).Scan(&count)
	return count, err
}

// CountByRole returns the number of sessions referencing a role
func (r *SessionRepository) CountByRole(roleID string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM chat_sessions WHERE role_id = ?`, roleID).Scan(&count)
	return count, err
}

// SumTokens returns the total tokens consumed across all sessions
func (r *SessionRepository) SumTokens() (int64, error) {
	var total sql.NullInt64
	err := r.db.QueryRow(`SELECT SUM(total_tokens) FROM chat_sessions`).Scan(&total)
	return total.Int64, err
}
