package service

import (
	"context"
	"time"

	"github.com/liliang-cn/chatgalaxy/internal/domain"
	"github.com/liliang-cn/chatgalaxy/internal/repository"
)

// Version is the served build version.
const Version = "1.0.0"

// SystemService aggregates operational counters for the admin surface
type SystemService struct {
	userRepo    *repository.UserRepository
	roleRepo    *repository.RoleRepository
	sessionRepo *repository.SessionRepository
	startedAt   time.Time
}

// NewSystemService creates a new system service
func NewSystemService(
	userRepo *repository.UserRepository,
	roleRepo *repository.RoleRepository,
	sessionRepo *repository.SessionRepository,
) *SystemService {
	return &SystemService{
		userRepo:    userRepo,
		roleRepo:    roleRepo,
		sessionRepo: sessionRepo,
		startedAt:   time.Now(),
	}
}

// Health reports service liveness
func (s *SystemService) Health(ctx context.Context) *domain.HealthStatus {
	return &domain.HealthStatus{
		Status:  "healthy",
		Version: Version,
		Uptime:  int64(time.Since(s.startedAt).Seconds()),
	}
}

// Stats collects the aggregate usage counters
func (s *SystemService) Stats(ctx context.Context) (*domain.SystemStats, error) {
	users, err := s.userRepo.Count()
	if err != nil {
		return nil, err
	}
	roles, err := s.roleRepo.Count()
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessionRepo.CountSessions()
	if err != nil {
		return nil, err
	}
	messages, err := s.sessionRepo.CountMessages()
	if err != nil {
		return nil, err
	}
	tokens, err := s.sessionRepo.SumTokens()
	if err != nil {
		return nil, err
	}

	return &domain.SystemStats{
		TotalUsers:    users,
		TotalRoles:    roles,
		TotalSessions: sessions,
		TotalMessages: messages,
		TotalTokens:   int(tokens),
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}, nil
}

// CleanupExpiredTokens purges refresh tokens past their expiry
func (s *SystemService) CleanupExpiredTokens(ctx context.Context) error {
	return s.userRepo.DeleteExpiredRefreshTokens()
}
