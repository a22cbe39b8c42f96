package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultRolesAreComplete(t *testing.T) {
	roles := DefaultRoles()
	require.Len(t, roles, 4)

	types := make(map[RoleType]bool, len(roles))
	for _, role := range roles {
		require.NotEmpty(t, role.Name)
		require.NotEmpty(t, role.SystemPrompt)
		require.NotEmpty(t, role.GreetingMessage)
		require.True(t, role.IsActive)
		require.True(t, role.IsDefault)
		require.True(t, ValidRoleType(role.RoleType))
		types[role.RoleType] = true
	}
	require.Len(t, types, 4)
}

func TestValidRoleType(t *testing.T) {
	require.True(t, ValidRoleType(RoleTypeAssistant))
	require.True(t, ValidRoleType(RoleTypeCasual))
	require.False(t, ValidRoleType(RoleType("overlord")))
	require.False(t, ValidRoleType(RoleType("")))
}
