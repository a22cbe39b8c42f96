package service

import (
	"context"
	"fmt"

	"github.com/liliang-cn/chatgalaxy/internal/domain"
	"github.com/liliang-cn/chatgalaxy/internal/repository"
)

// RoleService handles AI role management
type RoleService struct {
	roleRepo    *repository.RoleRepository
	sessionRepo *repository.SessionRepository
}

// NewRoleService creates a new role service
func NewRoleService(roleRepo *repository.RoleRepository, sessionRepo *repository.SessionRepository) *RoleService {
	return &RoleService{roleRepo: roleRepo, sessionRepo: sessionRepo}
}

// CreateRole creates a new AI role
func (s *RoleService) CreateRole(ctx context.Context, req *domain.CreateRoleRequest) (*domain.AIRole, error) {
	if !domain.ValidRoleType(req.RoleType) {
		return nil, fmt.Errorf("%w: unknown role type %q", domain.ErrValidation, req.RoleType)
	}

	existing, err := s.roleRepo.GetByName(req.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: role name %q already exists", domain.ErrValidation, req.Name)
	}

	role := &domain.AIRole{
		Name:            req.Name,
		Description:     req.Description,
		RoleType:        req.RoleType,
		AvatarURL:       req.AvatarURL,
		Personality:     req.Personality,
		SystemPrompt:    req.SystemPrompt,
		GreetingMessage: req.GreetingMessage,
		IsActive:        true,
		IsDefault:       req.IsDefault,
	}
	if err := s.roleRepo.Create(role); err != nil {
		return nil, err
	}

	return role, nil
}

// GetRole retrieves a role by ID
func (s *RoleService) GetRole(ctx context.Context, id string) (*domain.AIRole, error) {
	role, err := s.roleRepo.Get(id)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, domain.ErrRoleNotFound
	}
	return role, nil
}

// ListRoles retrieves roles, optionally including inactive ones
func (s *RoleService) ListRoles(ctx context.Context, includeInactive bool) ([]*domain.AIRole, error) {
	return s.roleRepo.List(includeInactive)
}

// ListDefaultRoles retrieves the active default roles
func (s *RoleService) ListDefaultRoles(ctx context.Context) ([]*domain.AIRole, error) {
	return s.roleRepo.ListDefaults()
}

// UpdateRole applies a partial update to a role
func (s *RoleService) UpdateRole(ctx context.Context, id string, req *domain.UpdateRoleRequest) (*domain.AIRole, error) {
	role, err := s.roleRepo.Get(id)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, domain.ErrRoleNotFound
	}

	if req.Name != nil {
		role.Name = *req.Name
	}
	if req.Description != nil {
		role.Description = *req.Description
	}
	if req.AvatarURL != nil {
		role.AvatarURL = *req.AvatarURL
	}
	if req.Personality != nil {
		role.Personality = *req.Personality
	}
	if req.SystemPrompt != nil {
		role.SystemPrompt = *req.SystemPrompt
	}
	if req.GreetingMessage != nil {
		role.GreetingMessage = *req.GreetingMessage
	}
	if req.IsActive != nil {
		role.IsActive = *req.IsActive
	}
	if req.IsDefault != nil {
		role.IsDefault = *req.IsDefault
	}

	if err := s.roleRepo.Update(role); err != nil {
		return nil, err
	}

	return role, nil
}

// DeleteRole removes a role. Roles referenced by chat sessions cannot be
// deleted; deactivate them instead.
func (s *RoleService) DeleteRole(ctx context.Context, id string) error {
	role, err := s.roleRepo.Get(id)
	if err != nil {
		return err
	}
	if role == nil {
		return domain.ErrRoleNotFound
	}

	inUse, err := s.sessionRepo.CountByRole(id)
	if err != nil {
		return err
	}
	if inUse > 0 {
		return fmt.Errorf("%w: role is in use by %d sessions", domain.ErrValidation, inUse)
	}

	return s.roleRepo.Delete(id)
}

// EnsureDefaults seeds the default roles when none exist yet
func (s *RoleService) EnsureDefaults(ctx context.Context) error {
	existing, err := s.roleRepo.ListDefaults()
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	for _, role := range domain.DefaultRoles() {
		r := role
		if err := s.roleRepo.Create(&r); err != nil {
			return fmt.Errorf("failed to seed role %q: %w", r.Name, err)
		}
	}

	return nil
}
