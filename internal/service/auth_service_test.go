package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/teranga-edu/gesco-api/internal/models"
	appErrors "github.com/teranga-edu/gesco-api/pkg/errors"
)

type mockAuthUserRepo struct {
	users      map[string]*models.User
	lastLogins []string
}

func (m *mockAuthUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthUserRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLogins = append(m.lastLogins, id)
	return nil
}

func authServiceFixture(t *testing.T) (*AuthService, *mockAuthUserRepo) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("passer123"), bcrypt.MinCost)
	require.NoError(t, err)
	users := &mockAuthUserRepo{users: map[string]*models.User{
		"user-1": {
			ID:           "user-1",
			Email:        "directeur@ecole.sn",
			PasswordHash: string(hash),
			FullName:     "Abdoulaye Wade",
			Role:         models.RoleDirector,
			Active:       true,
		},
		"user-2": {
			ID:           "user-2",
			Email:        "ancien@ecole.sn",
			PasswordHash: string(hash),
			Role:         models.RoleTeacher,
			Active:       false,
		},
	}}
	svc := NewAuthService(users, AuthConfig{Secret: "test-secret", Expiration: time.Hour, Issuer: "gesco-api"}, nil, zap.NewNop())
	return svc, users
}

func TestAuthLogin(t *testing.T) {
	svc, users := authServiceFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "directeur@ecole.sn", Password: "passer123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "user-1", resp.User.ID)
	assert.True(t, resp.ExpiresAt.After(time.Now()))
	assert.Equal(t, []string{"user-1"}, users.lastLogins)
}

func TestAuthLoginWrongPassword(t *testing.T) {
	svc, _ := authServiceFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "directeur@ecole.sn", Password: "wrong"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
}

func TestAuthLoginUnknownEmail(t *testing.T) {
	svc, _ := authServiceFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ghost@ecole.sn", Password: "passer123"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	// unknown email and wrong password are indistinguishable to the caller
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
}

func TestAuthLoginInactiveAccount(t *testing.T) {
	svc, _ := authServiceFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ancien@ecole.sn", Password: "passer123"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestAuthTokenRoundTrip(t *testing.T) {
	svc, _ := authServiceFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "directeur@ecole.sn", Password: "passer123"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleDirector, claims.Role)
	assert.Equal(t, "directeur@ecole.sn", claims.Email)
	assert.Equal(t, "gesco-api", claims.Issuer)
}

func TestAuthValidateTokenRejectsGarbage(t *testing.T) {
	svc, _ := authServiceFixture(t)

	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)
}

func TestAuthValidateTokenRejectsOtherSecret(t *testing.T) {
	svc, users := authServiceFixture(t)

	other := NewAuthService(users, AuthConfig{Secret: "other-secret", Expiration: time.Hour}, nil, zap.NewNop())
	resp, err := other.Login(context.Background(), models.LoginRequest{Email: "directeur@ecole.sn", Password: "passer123"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(resp.AccessToken)
	require.Error(t, err)
}

func TestAuthProfile(t *testing.T) {
	svc, _ := authServiceFixture(t)

	user, err := svc.Profile(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "directeur@ecole.sn", user.Email)

	_, err = svc.Profile(context.Background(), "ghost")
	require.Error(t, err)
}
