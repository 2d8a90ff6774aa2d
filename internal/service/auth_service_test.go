package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/gliding-club-api/internal/models"
	appErrors "github.com/noah-isme/gliding-club-api/pkg/errors"
)

type mockAuthRepo struct {
	users             map[string]*models.User
	findByUsernameErr error
	usernameLookups   []string
	refreshTokens     map[string]*models.RefreshToken
	lastLoginUpdated  bool
	passwordUpdated   bool
}

func newMockAuthRepo(users ...*models.User) *mockAuthRepo {
	repo := &mockAuthRepo{users: map[string]*models.User{}, refreshTokens: map[string]*models.RefreshToken{}}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (m *mockAuthRepo) FindByUsername(_ context.Context, username string) (*models.User, error) {
	m.usernameLookups = append(m.usernameLookups, username)
	if m.findByUsernameErr != nil {
		return nil, m.findByUsernameErr
	}
	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) UpdateLastLogin(context.Context, string, time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) UpdatePassword(_ context.Context, id, passwordHash string, _ time.Time) error {
	m.passwordUpdated = true
	if u, ok := m.users[id]; ok {
		u.PasswordHash = passwordHash
		u.PasswordChangeRequired = false
	}
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(context.Context, string) error { return nil }

func (m *mockAuthRepo) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	rt, ok := m.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(_ context.Context, id string, revokedAt time.Time) error {
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func testAuthConfig() AuthConfig {
	return AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, RefreshTokenExpiry: 24 * time.Hour}
}

func hashed(t *testing.T, password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuthServiceLoginCaseInsensitive(t *testing.T) {
	repo := newMockAuthRepo(&models.User{ID: "u1", Username: "ada", PasswordHash: hashed(t, "password1"), Active: true, UserType: models.UserTypeInstructor})
	svc := NewAuthService(repo, nil, nil, nil, zap.NewNop(), testAuthConfig())

	res, err := svc.Login(context.Background(), models.LoginRequest{Username: "ADA", Password: "password1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, models.UserTypeInstructor, res.User.UserType)
	assert.True(t, repo.lastLoginUpdated)

	_, storedRaw := repo.refreshTokens[res.RefreshToken]
	assert.False(t, storedRaw, "refresh tokens are stored hashed")
	_, storedHash := repo.refreshTokens[hashRefreshToken(res.RefreshToken)]
	assert.True(t, storedHash)
}

func TestAuthServiceLoginUnknownUserStillHashes(t *testing.T) {
	repo := newMockAuthRepo()
	svc := NewAuthService(repo, nil, nil, nil, zap.NewNop(), testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "ghost", Password: "whatever"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
	assert.Equal(t, []string{"ghost"}, repo.usernameLookups)
}

func TestNewAuthServicePreparesDummyHash(t *testing.T) {
	svc := NewAuthService(newMockAuthRepo(), nil, nil, nil, zap.NewNop(), testAuthConfig())

	require.NotEmpty(t, svc.dummyHash)
	cost, err := bcrypt.Cost(svc.dummyHash)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
	assert.NoError(t, bcrypt.CompareHashAndPassword(svc.dummyHash, []byte(dummyPassword)))
}

func TestAuthServiceLoginInactive(t *testing.T) {
	repo := newMockAuthRepo(&models.User{ID: "u1", Username: "ada", PasswordHash: hashed(t, "password1"), Active: false})
	svc := NewAuthService(repo, nil, nil, nil, zap.NewNop(), testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "ada", Password: "password1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLockout(t *testing.T) {
	repo := newMockAuthRepo(&models.User{ID: "u1", Username: "ada", PasswordHash: hashed(t, "password1"), Active: true})
	lockout := NewLockoutService(newMemoryLockoutStore(), 2, time.Minute, nil)
	svc := NewAuthService(repo, lockout, nil, nil, zap.NewNop(), testAuthConfig())
	ctx := context.Background()

	_, err := svc.Login(ctx, models.LoginRequest{Username: "ada", Password: "wrong", IP: "1.2.3.4"})
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)

	_, err = svc.Login(ctx, models.LoginRequest{Username: "ada", Password: "wrong", IP: "1.2.3.4"})
	assert.Equal(t, appErrors.ErrAccountLocked.Code, appErrors.FromError(err).Code)

	lookups := len(repo.usernameLookups)
	_, err = svc.Login(ctx, models.LoginRequest{Username: "ada", Password: "password1", IP: "1.2.3.4"})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrAccountLocked.Code, appErr.Code)
	assert.Equal(t, 429, appErr.Status)
	assert.Equal(t, lookups, len(repo.usernameLookups), "locked attempts skip the password check")

	_, err = svc.Login(ctx, models.LoginRequest{Username: "ada", Password: "password1", IP: "5.6.7.8"})
	assert.NoError(t, err)
}

func TestAuthServiceRefreshToken(t *testing.T) {
	user := &models.User{ID: "u1", Username: "ada", Active: true, UserType: models.UserTypeStudent}
	repo := newMockAuthRepo(user)
	repo.refreshTokens[hashRefreshToken("token")] = &models.RefreshToken{ID: "rt1", UserID: user.ID, Token: hashRefreshToken("token"), ExpiresAt: time.Now().Add(time.Hour)}
	svc := NewAuthService(repo, nil, nil, nil, zap.NewNop(), testAuthConfig())

	res, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEqual(t, "token", res.RefreshToken)
	assert.True(t, repo.refreshTokens[hashRefreshToken("token")].Revoked)

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"})
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceChangePasswordClearsFlag(t *testing.T) {
	user := &models.User{ID: "u1", Username: "ada", PasswordHash: hashed(t, "oldpassword"), Active: true, PasswordChangeRequired: true}
	repo := newMockAuthRepo(user)
	svc := NewAuthService(repo, nil, nil, nil, zap.NewNop(), testAuthConfig())

	collector := NewAuditCollector()
	ctx := WithAuditCollector(context.Background(), collector)
	err := svc.ChangePassword(ctx, "u1", models.ChangePasswordRequest{OldPassword: "oldpassword", NewPassword: "newpassword"})
	require.NoError(t, err)
	assert.True(t, repo.passwordUpdated)
	assert.False(t, user.PasswordChangeRequired)

	entries := collector.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, models.TableUsers, entries[0].TableName)
	assert.Equal(t, false, entries[0].NewValues["password_change_required"])
}

func TestAuthServiceChangePasswordWrongOld(t *testing.T) {
	repo := newMockAuthRepo(&models.User{ID: "u1", PasswordHash: hashed(t, "oldpassword"), Active: true})
	svc := NewAuthService(repo, nil, nil, nil, zap.NewNop(), testAuthConfig())

	err := svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{OldPassword: "nope-nope", NewPassword: "newpassword"})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.False(t, repo.passwordUpdated)
}

func TestValidateToken(t *testing.T) {
	svc := NewAuthService(newMockAuthRepo(), nil, nil, nil, zap.NewNop(), testAuthConfig())
	user := &models.User{ID: "u1", Username: "ada", UserType: models.UserTypeAdmin, PasswordChangeRequired: true}
	token, _, err := svc.generateAccessToken(user)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.UserTypeAdmin, claims.UserType)
	assert.True(t, claims.PasswordChangeRequired)

	_, err = svc.ValidateToken(token + "x")
	assert.Error(t, err)
}

func TestAuthServicePasswordChangeRequired(t *testing.T) {
	repo := newMockAuthRepo(
		&models.User{ID: "u1", Active: true, PasswordChangeRequired: true},
		&models.User{ID: "u2", Active: false},
	)
	svc := NewAuthService(repo, nil, nil, nil, zap.NewNop(), testAuthConfig())

	required, err := svc.PasswordChangeRequired(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, required)

	_, err = svc.PasswordChangeRequired(context.Background(), "u2")
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)

	_, err = svc.PasswordChangeRequired(context.Background(), "missing")
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
