package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/chatgalaxy/internal/domain"
)

// UserRepository handles user and refresh token persistence
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user
func (r *UserRepository) Create(user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.Exec(`
		INSERT INTO users (id, username, email, password_hash, is_active, is_verified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, user.ID, user.Username, user.Email, user.PasswordHash,
		user.IsActive, user.IsVerified, user.CreatedAt, user.UpdatedAt)

	return err
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(id string) (*domain.User, error) {
	return r.getOne(`SELECT id, username, email, password_hash, is_active, is_verified, last_login_at, created_at, updated_at
		FROM users WHERE id = ?`, id)
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(email string) (*domain.User, error) {
	return r.getOne(`SELECT id, username, email, password_hash, is_active, is_verified, last_login_at, created_at, updated_at
		FROM users WHERE email = ?`, email)
}

// GetByUsername retrieves a user by username
func (r *UserRepository) GetByUsername(username string) (*domain.User, error) {
	return r.getOne(`SELECT id, username, email, password_hash, is_active, is_verified, last_login_at, created_at, updated_at
		FROM users WHERE username = ?`, username)
}

func (r *UserRepository) getOne(query string, arg any) (*domain.User, error) {
	user := &domain.User{}
	var lastLogin sql.NullTime

	err := r.db.QueryRow(query, arg).Scan(&user.ID, &user.Username, &user.Email,
		&user.PasswordHash, &user.IsActive, &user.IsVerified, &lastLogin,
		&user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if lastLogin.Valid {
		user.LastLoginAt = &lastLogin.Time
	}

	return user, nil
}

// UpdateLastLogin stamps the user's last successful login
func (r *UserRepository) UpdateLastLogin(id string) error {
	now := time.Now()
	_, err := r.db.Exec(`UPDATE users SET last_login_at = ?, updated_at = ? WHERE id = ?`, now, now, id)
	return err
}

// Deactivate marks a user inactive
func (r *UserRepository) Deactivate(id string) error {
	_, err := r.db.Exec(`UPDATE users SET is_active = 0, updated_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

// Count returns the total number of users
func (r *UserRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// StoreRefreshToken persists a refresh token until its expiry
func (r *UserRepository) StoreRefreshToken(userID, token string, expiresAt time.Time) error {
	_, err := r.db.Exec(`
		INSERT INTO refresh_tokens (id, user_id, token, expires_at)
		VALUES (?, ?, ?, ?)
	`, uuid.New().String(), userID, token, expiresAt)
	return err
}

// VerifyRefreshToken reports whether the token is stored for the user and unexpired
func (r *UserRepository) VerifyRefreshToken(userID, token string) (bool, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM refresh_tokens
		WHERE user_id = ? AND token = ? AND expires_at > ?
	`, userID, token, time.Now()).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// DeleteRefreshToken revokes a single refresh token
func (r *UserRepository) DeleteRefreshToken(userID, token string) error {
	_, err := r.db.Exec(`DELETE FROM refresh_tokens WHERE user_id = ? AND token = ?`, userID, token)
	return err
}

// DeleteExpiredRefreshTokens clears out tokens past their expiry
func (r *UserRepository) DeleteExpiredRefreshTokens() error {
	_, err := r.db.Exec(`DELETE FROM refresh_tokens WHERE expires_at <= ?`, time.Now())
	return err
}
