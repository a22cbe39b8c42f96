package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/chatgalaxy/internal/domain"
	"github.com/liliang-cn/chatgalaxy/internal/repository"
)

func newRoleTestService(t *testing.T) *RoleService {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewRoleService(repository.NewRoleRepository(db), repository.NewSessionRepository(db))
}

func TestEnsureDefaultsSeedsOnce(t *testing.T) {
	svc := newRoleTestService(t)

	require.NoError(t, svc.EnsureDefaults(context.Background()))
	roles, err := svc.ListDefaultRoles(context.Background())
	require.NoError(t, err)
	require.Len(t, roles, 4)

	// A second run must not duplicate the seed.
	require.NoError(t, svc.EnsureDefaults(context.Background()))
	roles, err = svc.ListDefaultRoles(context.Background())
	require.NoError(t, err)
	require.Len(t, roles, 4)
}

func TestCreateRoleGuards(t *testing.T) {
	svc := newRoleTestService(t)

	role, err := svc.CreateRole(context.Background(), &domain.CreateRoleRequest{
		Name:         "Historian",
		RoleType:     domain.RoleTypeAssistant,
		SystemPrompt: "You know the past.",
	})
	require.NoError(t, err)
	require.NotEmpty(t, role.ID)
	require.True(t, role.IsActive)

	_, err = svc.CreateRole(context.Background(), &domain.CreateRoleRequest{
		Name:         "Historian",
		RoleType:     domain.RoleTypeCasual,
		SystemPrompt: "x",
	})
	require.ErrorIs(t, err, domain.ErrValidation)
	require.ErrorContains(t, err, "already exists")

	_, err = svc.CreateRole(context.Background(), &domain.CreateRoleRequest{
		Name:         "Oracle",
		RoleType:     domain.RoleType("prophet"),
		SystemPrompt: "x",
	})
	require.ErrorIs(t, err, domain.ErrValidation)
	require.ErrorContains(t, err, "role type")
}

func TestUpdateRolePartial(t *testing.T) {
	svc := newRoleTestService(t)

	role, err := svc.CreateRole(context.Background(), &domain.CreateRoleRequest{
		Name:         "Historian",
		RoleType:     domain.RoleTypeAssistant,
		SystemPrompt: "You know the past.",
	})
	require.NoError(t, err)

	name := "Archivist"
	inactive := false
	updated, err := svc.UpdateRole(context.Background(), role.ID, &domain.UpdateRoleRequest{
		Name:     &name,
		IsActive: &inactive,
	})
	require.NoError(t, err)
	require.Equal(t, "Archivist", updated.Name)
	require.False(t, updated.IsActive)
	// Untouched fields carry over.
	require.Equal(t, "You know the past.", updated.SystemPrompt)

	_, err = svc.UpdateRole(context.Background(), "missing", &domain.UpdateRoleRequest{Name: &name})
	require.ErrorIs(t, err, domain.ErrRoleNotFound)
}

func TestDeleteRole(t *testing.T) {
	svc := newRoleTestService(t)

	role, err := svc.CreateRole(context.Background(), &domain.CreateRoleRequest{
		Name:         "Historian",
		RoleType:     domain.RoleTypeAssistant,
		SystemPrompt: "x",
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteRole(context.Background(), role.ID))
	_, err = svc.GetRole(context.Background(), role.ID)
	require.ErrorIs(t, err, domain.ErrRoleNotFound)

	require.ErrorIs(t, svc.DeleteRole(context.Background(), role.ID), domain.ErrRoleNotFound)
}

func TestDeleteRoleInUseRefused(t *testing.T) {
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sessions := repository.NewSessionRepository(db)
	svc := NewRoleService(repository.NewRoleRepository(db), sessions)

	role, err := svc.CreateRole(context.Background(), &domain.CreateRoleRequest{
		Name:         "Historian",
		RoleType:     domain.RoleTypeAssistant,
		SystemPrompt: "x",
	})
	require.NoError(t, err)

	require.NoError(t, sessions.Create(&domain.Session{
		RoleID:     role.ID,
		GuestToken: "guest-tok",
		Title:      "Chat",
		IsActive:   true,
		Status:     domain.SessionActive,
	}))

	err = svc.DeleteRole(context.Background(), role.ID)
	require.ErrorIs(t, err, domain.ErrValidation)
	require.ErrorContains(t, err, "in use")

	// Still present and deactivatable instead.
	got, err := svc.GetRole(context.Background(), role.ID)
	require.NoError(t, err)
	require.Equal(t, "Historian", got.Name)
}
