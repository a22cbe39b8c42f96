package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/liliang-cn/chatgalaxy/internal/config"
	"github.com/liliang-cn/chatgalaxy/internal/domain"
	"github.com/liliang-cn/chatgalaxy/internal/repository"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:          "unit-test-secret",
		AccessTokenMinutes: 30,
		RefreshTokenDays:   7,
		BcryptCost:         bcrypt.MinCost,
	}
}

func newAuthTestService(t *testing.T) (*AuthService, *repository.UserRepository) {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users := repository.NewUserRepository(db)
	return NewAuthService(testAuthConfig(), users), users
}

func registerAnn(t *testing.T, svc *AuthService) *domain.User {
	t.Helper()
	user, err := svc.Register(context.Background(), &domain.RegisterRequest{
		Username: "ann",
		Email:    "ann@example.com",
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)
	return user
}

func loginAnn(t *testing.T, svc *AuthService) (*domain.User, *domain.TokenPair) {
	t.Helper()
	user, pair, err := svc.Login(context.Background(), &domain.LoginRequest{
		Email:    "ann@example.com",
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)
	return user, pair
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	svc, _ := newAuthTestService(t)
	user := registerAnn(t, svc)
	require.NotEmpty(t, user.ID)
	require.Equal(t, "ann@example.com", user.Email)
	require.True(t, user.IsActive)

	// Same email with shifted case is still taken.
	_, err := svc.Register(context.Background(), &domain.RegisterRequest{
		Username: "ann2",
		Email:    "Ann@Example.com",
		Password: "hunter2hunter2",
	})
	require.ErrorIs(t, err, domain.ErrEmailTaken)

	_, err = svc.Register(context.Background(), &domain.RegisterRequest{
		Username: "ann",
		Email:    "other@example.com",
		Password: "hunter2hunter2",
	})
	require.ErrorIs(t, err, domain.ErrUsernameTaken)
}

func TestLoginVerifiesCredentials(t *testing.T) {
	svc, users := newAuthTestService(t)
	registerAnn(t, svc)

	user, pair := loginAnn(t, svc)
	require.Equal(t, "bearer", pair.TokenType)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, int64(30*60), pair.ExpiresIn)

	stored, err := users.GetByID(user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)

	_, _, err = svc.Login(context.Background(), &domain.LoginRequest{
		Email: "ann@example.com", Password: "wrong-password",
	})
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, _, err = svc.Login(context.Background(), &domain.LoginRequest{
		Email: "nobody@example.com", Password: "hunter2hunter2",
	})
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestVerifyAccessToken(t *testing.T) {
	svc, _ := newAuthTestService(t)
	registerAnn(t, svc)
	user, pair := loginAnn(t, svc)

	got, err := svc.VerifyAccessToken(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
	require.Equal(t, "ann", got.Username)

	// A refresh token never passes as an access token.
	_, err = svc.VerifyAccessToken(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, domain.ErrInvalidToken)

	_, err = svc.VerifyAccessToken(context.Background(), "not-a-jwt")
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestRefreshRotatesTokens(t *testing.T) {
	svc, _ := newAuthTestService(t)
	registerAnn(t, svc)
	user, pair := loginAnn(t, svc)

	fresh, err := svc.Refresh(context.Background(), &domain.RefreshRequest{RefreshToken: pair.RefreshToken})
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, fresh.RefreshToken)

	// The old token is spent.
	_, err = svc.Refresh(context.Background(), &domain.RefreshRequest{RefreshToken: pair.RefreshToken})
	require.ErrorIs(t, err, domain.ErrInvalidToken)

	got, err := svc.VerifyAccessToken(context.Background(), fresh.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	svc, _ := newAuthTestService(t)
	registerAnn(t, svc)
	user, pair := loginAnn(t, svc)

	require.NoError(t, svc.Logout(context.Background(), user.ID, pair.RefreshToken))

	_, err := svc.Refresh(context.Background(), &domain.RefreshRequest{RefreshToken: pair.RefreshToken})
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestExpiredAccessTokenReported(t *testing.T) {
	svc, users := newAuthTestService(t)
	registerAnn(t, svc)

	cfg := testAuthConfig()
	cfg.AccessTokenMinutes = -1
	backdated := NewAuthService(cfg, users)

	_, pair, err := backdated.Login(context.Background(), &domain.LoginRequest{
		Email: "ann@example.com", Password: "hunter2hunter2",
	})
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(context.Background(), pair.AccessToken)
	require.ErrorIs(t, err, domain.ErrTokenExpired)
}

func TestDeactivatedUserLockedOut(t *testing.T) {
	svc, users := newAuthTestService(t)
	registerAnn(t, svc)
	user, pair := loginAnn(t, svc)

	require.NoError(t, users.Deactivate(user.ID))

	_, _, err := svc.Login(context.Background(), &domain.LoginRequest{
		Email: "ann@example.com", Password: "hunter2hunter2",
	})
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = svc.VerifyAccessToken(context.Background(), pair.AccessToken)
	require.ErrorIs(t, err, domain.ErrInvalidToken)

	_, err = svc.Refresh(context.Background(), &domain.RefreshRequest{RefreshToken: pair.RefreshToken})
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}
