package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/chatgalaxy/internal/domain"
)

// RoleRepository handles AI role persistence
type RoleRepository struct {
	db *DB
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// Create creates a new AI role
func (r *RoleRepository) Create(role *domain.AIRole) error {
	if role.ID == "" {
		role.ID = uuid.New().String()
	}
	now := time.Now()
	role.CreatedAt = now
	role.UpdatedAt = now

	_, err := r.db.Exec(`
		INSERT INTO ai_roles (id, name, description, role_type, avatar_url, personality,
			system_prompt, greeting_message, is_active, is_default, usage_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, role.ID, role.Name, role.Description, string(role.RoleType), role.AvatarURL,
		role.Personality, role.SystemPrompt, role.GreetingMessage,
		role.IsActive, role.IsDefault, role.UsageCount, role.CreatedAt, role.UpdatedAt)

	return err
}

const roleColumns = `id, name, description, role_type, avatar_url, personality,
	system_prompt, greeting_message, is_active, is_default, usage_count, created_at, updated_at`

// Get retrieves a role by ID
func (r *RoleRepository) Get(id string) (*domain.AIRole, error) {
	return r.getOne(`SELECT `+roleColumns+` FROM ai_roles WHERE id = ?`, id)
}

// GetByName retrieves a role by name
func (r *RoleRepository) GetByName(name string) (*domain.AIRole, error) {
	return r.getOne(`SELECT `+roleColumns+` FROM ai_roles WHERE name = ?`, name)
}

func (r *RoleRepository) getOne(query string, arg any) (*domain.AIRole, error) {
	role := &domain.AIRole{}
	var roleType string

	err := r.db.QueryRow(query, arg).Scan(&role.ID, &role.Name, &role.Description,
		&roleType, &role.AvatarURL, &role.Personality, &role.SystemPrompt,
		&role.GreetingMessage, &role.IsActive, &role.IsDefault, &role.UsageCount,
		&role.CreatedAt, &role.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	role.RoleType = domain.RoleType(roleType)
	return role, nil
}

// List retrieves roles, optionally including inactive ones
func (r *RoleRepository) List(includeInactive bool) ([]*domain.AIRole, error) {
	query := `SELECT ` + roleColumns + ` FROM ai_roles`
	if !includeInactive {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY is_default DESC, usage_count DESC, created_at ASC`
	return r.list(query)
}

// ListDefaults retrieves the active default roles
func (r *RoleRepository) ListDefaults() ([]*domain.AIRole, error) {
	return r.list(`SELECT ` + roleColumns + ` FROM ai_roles
		WHERE is_default = 1 AND is_active = 1 ORDER BY created_at ASC`)
}

func (r *RoleRepository) list(query string, args ...any) ([]*domain.AIRole, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*domain.AIRole
	for rows.Next() {
		role := &domain.AIRole{}
		var roleType string

		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &roleType,
			&role.AvatarURL, &role.Personality, &role.SystemPrompt,
			&role.GreetingMessage, &role.IsActive, &role.IsDefault,
			&role.UsageCount, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}

		role.RoleType = domain.RoleType(roleType)
		roles = append(roles, role)
	}

	return roles, rows.Err()
}

// Update persists role changes
func (r *RoleRepository) Update(role *domain.AIRole) error {
	role.UpdatedAt = time.Now()

	_, err := r.db.Exec(`
		UPDATE ai_roles SET name = ?, description = ?, avatar_url = ?, personality = ?,
			system_prompt = ?, greeting_message = ?, is_active = ?, is_default = ?, updated_at = ?
		WHERE id = ?
	`, role.Name, role.Description, role.AvatarURL, role.Personality,
		role.SystemPrompt, role.GreetingMessage, role.IsActive, role.IsDefault,
		role.UpdatedAt, role.ID)

	return err
}

// Delete removes a role
func (r *RoleRepository) Delete(id string) error {
	_, err := r.db.Exec(`DELETE FROM ai_roles WHERE id = ?`, id)
	return err
}

// IncrementUsage bumps a role's usage counter
func (r *RoleRepository) IncrementUsage(id string) error {
	_, err := r.db.Exec(`UPDATE ai_roles SET usage_count = usage_count + 1 WHERE id = ?`, id)
	return err
}

// Count returns the total number of roles
func (r *RoleRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM ai_roles`).Scan(&count)
	return count, err
}
