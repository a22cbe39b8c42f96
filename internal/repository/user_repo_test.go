package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUserLookup(t *testing.T) {
	db := newRepoTestDB(t)
	repo := NewUserRepository(db)
	user := seedUser(t, db)

	byEmail, err := repo.GetByEmail("ann@example.com")
	require.NoError(t, err)
	require.Equal(t, user.ID, byEmail.ID)

	byName, err := repo.GetByUsername("ann")
	require.NoError(t, err)
	require.Equal(t, user.ID, byName.ID)

	missing, err := repo.GetByEmail("ghost@example.com")
	require.NoError(t, err)
	require.Nil(t, missing)

	count, err := repo.Count()
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRefreshTokenLifecycle(t *testing.T) {
	db := newRepoTestDB(t)
	repo := NewUserRepository(db)
	user := seedUser(t, db)

	require.NoError(t, repo.StoreRefreshToken(user.ID, "tok-live", time.Now().Add(time.Hour)))
	require.NoError(t, repo.StoreRefreshToken(user.ID, "tok-stale", time.Now().Add(-time.Hour)))

	ok, err := repo.VerifyRefreshToken(user.ID, "tok-live")
	require.NoError(t, err)
	require.True(t, ok)

	// Stored but expired tokens no longer verify.
	ok, err = repo.VerifyRefreshToken(user.ID, "tok-stale")
	require.NoError(t, err)
	require.False(t, ok)

	// Cleanup purges the stale row without touching the live one.
	require.NoError(t, repo.DeleteExpiredRefreshTokens())
	ok, err = repo.VerifyRefreshToken(user.ID, "tok-live")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, repo.DeleteRefreshToken(user.ID, "tok-live"))
	ok, err = repo.VerifyRefreshToken(user.ID, "tok-live")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeactivate(t *testing.T) {
	db := newRepoTestDB(t)
	repo := NewUserRepository(db)
	user := seedUser(t, db)

	require.NoError(t, repo.Deactivate(user.ID))

	got, err := repo.GetByID(user.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)
}
