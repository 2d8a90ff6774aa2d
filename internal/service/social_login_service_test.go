package service

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gliding-club-api/internal/models"
	"github.com/noah-isme/gliding-club-api/pkg/config"
	appErrors "github.com/noah-isme/gliding-club-api/pkg/errors"
	"github.com/noah-isme/gliding-club-api/pkg/storage"
)

type stubProvider struct {
	identity *models.SocialIdentity
	err      error
}

func (p *stubProvider) Name() string        { return "google" }
func (p *stubProvider) DisplayName() string { return "Google" }
func (p *stubProvider) AuthCodeURL(state string) string {
	return "https://accounts.example/auth?state=" + url.QueryEscape(state)
}
func (p *stubProvider) FetchIdentity(context.Context, string) (*models.SocialIdentity, error) {
	return p.identity, p.err
}

type stubSocialUsers struct {
	users    []models.User
	accounts []*models.SocialAccount
	linked   map[string]string
	created  int
}

func (s *stubSocialUsers) FindBySocialAccount(_ context.Context, provider, subject string) (*models.User, error) {
	id, ok := s.linked[provider+"|"+subject]
	if !ok {
		return nil, sql.ErrNoRows
	}
	for i := range s.users {
		if s.users[i].ID == id {
			return &s.users[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubSocialUsers) FindAllByEmail(_ context.Context, email string) ([]models.User, error) {
	var out []models.User
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *stubSocialUsers) UpsertSocialAccount(_ context.Context, account *models.SocialAccount) error {
	s.accounts = append(s.accounts, account)
	return nil
}

type stubSessions struct{ issuedFor string }

func (s *stubSessions) IssueSession(_ context.Context, user *models.User, _, _ string) (*models.LoginResponse, error) {
	s.issuedFor = user.ID
	return &models.LoginResponse{AccessToken: "access"}, nil
}

func newSocialFixture(identity *models.SocialIdentity, users ...models.User) (*SocialLoginService, *stubSocialUsers, *stubSessions, string) {
	repo := &stubSocialUsers{users: users}
	sessions := &stubSessions{}
	signer := storage.NewSignedURLSigner("state-secret", time.Minute)
	svc := NewSocialLoginService(repo, sessions, signer, nil, nil, &stubProvider{identity: identity})
	authURL, _ := svc.Begin("google")
	parsed, _ := url.Parse(authURL)
	return svc, repo, sessions, parsed.Query().Get("state")
}

func TestSocialLoginLinksSingleMatch(t *testing.T) {
	identity := &models.SocialIdentity{Provider: "google", Subject: "sub-1", Email: "Ada@Club.test", ExtraData: map[string]interface{}{"sub": "sub-1"}}
	svc, repo, sessions, state := newSocialFixture(identity, models.User{ID: "u1", Email: "ada@club.test", Active: true})

	res, err := svc.Complete(context.Background(), "google", "code", state, "ip", "ua")
	require.NoError(t, err)
	assert.Equal(t, "access", res.AccessToken)
	assert.Equal(t, "u1", sessions.issuedFor)
	require.Len(t, repo.accounts, 1)
	assert.Equal(t, "sub-1", repo.accounts[0].Subject)
}

func TestSocialLoginUsesLinkedAccountBeforeEmail(t *testing.T) {
	identity := &models.SocialIdentity{Provider: "google", Subject: "sub-1", Email: "old@club.test"}
	svc, repo, sessions, state := newSocialFixture(identity, models.User{ID: "u1", Email: "new@club.test", Active: true})
	repo.linked = map[string]string{"google|sub-1": "u1"}

	_, err := svc.Complete(context.Background(), "google", "code", state, "ip", "ua")
	require.NoError(t, err)
	assert.Equal(t, "u1", sessions.issuedFor)
	require.Len(t, repo.accounts, 1)
	assert.Equal(t, "u1", repo.accounts[0].UserID)
}

func TestSocialLoginNeverCreatesUsers(t *testing.T) {
	identity := &models.SocialIdentity{Provider: "google", Subject: "sub-1", Email: "new@club.test"}
	svc, repo, _, state := newSocialFixture(identity)

	_, err := svc.Complete(context.Background(), "google", "code", state, "ip", "ua")
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrSocialLoginRejected.Code, appErr.Code)
	assert.Equal(t, "No account found for email new@club.test. Please contact an administrator to create your account.", appErr.Message)
	assert.Empty(t, repo.accounts)
	assert.Zero(t, repo.created)
}

func TestSocialLoginRejectsAmbiguousEmail(t *testing.T) {
	identity := &models.SocialIdentity{Provider: "google", Subject: "sub-1", Email: "dup@club.test"}
	svc, _, _, state := newSocialFixture(identity,
		models.User{ID: "u1", Email: "dup@club.test", Active: true},
		models.User{ID: "u2", Email: "DUP@club.test", Active: true})

	_, err := svc.Complete(context.Background(), "google", "code", state, "ip", "ua")
	assert.Equal(t, "Multiple accounts found for email dup@club.test. Please contact an administrator.", appErrors.FromError(err).Message)
}

func TestSocialLoginRequiresEmail(t *testing.T) {
	identity := &models.SocialIdentity{Provider: "google", Subject: "sub-1"}
	svc, _, _, state := newSocialFixture(identity)

	_, err := svc.Complete(context.Background(), "google", "code", state, "ip", "ua")
	assert.Equal(t, "No email address received from Google. Please ensure your account has a verified email address.", appErrors.FromError(err).Message)
}

func TestSocialLoginRejectsBadState(t *testing.T) {
	svc, _, _, _ := newSocialFixture(&models.SocialIdentity{})
	_, err := svc.Complete(context.Background(), "google", "code", "forged", "ip", "ua")
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestSocialLoginProviderFailure(t *testing.T) {
	repo := &stubSocialUsers{}
	signer := storage.NewSignedURLSigner("state-secret", time.Minute)
	svc := NewSocialLoginService(repo, &stubSessions{}, signer, nil, nil, &stubProvider{err: errors.New("timeout")})
	state, _, _ := signer.Generate("oauth-state:google", "nonce")

	_, err := svc.Complete(context.Background(), "google", "code", state, "ip", "ua")
	assert.Equal(t, appErrors.ErrServiceUnavailable.Code, appErrors.FromError(err).Code)
}

func TestExtractEmailOrder(t *testing.T) {
	assert.Equal(t, "a@x.test", extractEmail(map[string]interface{}{"email": "a@x.test", "mail": "b@x.test"}))
	assert.Equal(t, "upn@x.test", extractEmail(map[string]interface{}{"email": "not-an-address", "userPrincipalName": "upn@x.test"}))
	assert.Equal(t, "p@x.test", extractEmail(map[string]interface{}{"preferred_username": "p@x.test"}))
	assert.Equal(t, "list@x.test", extractEmail(map[string]interface{}{"email_addresses": []interface{}{"nope", map[string]interface{}{"email": "list@x.test"}}}))
	assert.Empty(t, extractEmail(map[string]interface{}{"name": "Ada"}))
}

func TestProvidersBuildConsentURLs(t *testing.T) {
	google := NewGoogleProvider(config.OAuthProviderConfig{ClientID: "id", ClientSecret: "secret", RedirectURL: "https://club.test/cb"})
	assert.Contains(t, google.AuthCodeURL("s"), "accounts.google.com")
	ms := NewMicrosoftProvider(config.OAuthProviderConfig{ClientID: "id", ClientSecret: "secret", Tenant: "club"})
	assert.Contains(t, ms.AuthCodeURL("s"), "login.microsoftonline.com/club")
	assert.Equal(t, "Microsoft", ms.DisplayName())
}
