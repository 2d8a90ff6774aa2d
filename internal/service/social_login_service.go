package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gliding-club-api/internal/models"
	appErrors "github.com/noah-isme/gliding-club-api/pkg/errors"
)

// SocialProvider is one identity provider usable for social login.
type SocialProvider interface {
	Name() string
	DisplayName() string
	AuthCodeURL(state string) string
	FetchIdentity(ctx context.Context, code string) (*models.SocialIdentity, error)
}

type socialUserRepository interface {
	FindBySocialAccount(ctx context.Context, provider, subject string) (*models.User, error)
	FindAllByEmail(ctx context.Context, email string) ([]models.User, error)
	UpsertSocialAccount(ctx context.Context, account *models.SocialAccount) error
}

type sessionIssuer interface {
	IssueSession(ctx context.Context, user *models.User, ip, userAgent string) (*models.LoginResponse, error)
}

type stateSigner interface {
	Generate(subject, value string) (string, time.Time, error)
	Parse(token string) (subject, value string, err error)
}

// emailClaims are checked in order for a usable address.
var emailClaims = []string{"email", "mail", "userPrincipalName", "preferred_username"}

// SocialLoginService links identity-provider accounts to existing members.
// It never creates users.
type SocialLoginService struct {
	providers map[string]SocialProvider
	users     socialUserRepository
	sessions  sessionIssuer
	state     stateSigner
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewSocialLoginService constructs the service with the enabled providers.
func NewSocialLoginService(users socialUserRepository, sessions sessionIssuer, state stateSigner, metrics *MetricsService, logger *zap.Logger, providers ...SocialProvider) *SocialLoginService {
	if logger == nil {
		logger = zap.NewNop()
	}
	byName := make(map[string]SocialProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &SocialLoginService{providers: byName, users: users, sessions: sessions, state: state, metrics: metrics, logger: logger}
}

// Providers lists the enabled provider keys.
func (s *SocialLoginService) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	return names
}

// Begin returns the provider consent URL with a signed state.
func (s *SocialLoginService) Begin(provider string) (string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", appErrors.Clone(appErrors.ErrNotFound, "unknown login provider")
	}
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create login state")
	}
	state, _, err := s.state.Generate(stateSubject(provider), hex.EncodeToString(nonce))
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign login state")
	}
	return p.AuthCodeURL(state), nil
}

// Complete handles the provider callback and logs the matching member in.
func (s *SocialLoginService) Complete(ctx context.Context, provider, code, state, ip, userAgent string) (*models.LoginResponse, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown login provider")
	}
	subject, _, err := s.state.Parse(state)
	if err != nil || subject != stateSubject(provider) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid login state")
	}
	if strings.TrimSpace(code) == "" {
		return nil, fieldError("code", "authorization code is required")
	}

	identity, err := p.FetchIdentity(ctx, code)
	if err != nil {
		s.metrics.IncLogin(provider, "error")
		return nil, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, fmt.Sprintf("%s login failed", p.DisplayName()))
	}

	user, err := s.matchUser(ctx, p.DisplayName(), identity)
	if err != nil {
		s.metrics.IncLogin(provider, "rejected")
		return nil, err
	}
	if !user.Active {
		s.metrics.IncLogin(provider, "inactive")
		return nil, appErrors.ErrInactiveAccount
	}

	extra, err := models.MarshalJSONB(identity.ExtraData)
	if err != nil {
		s.logger.Warn("failed to encode social profile", zap.Error(err))
	}
	account := &models.SocialAccount{
		UserID:    user.ID,
		Provider:  identity.Provider,
		Subject:   identity.Subject,
		Email:     identity.Email,
		ExtraData: extra,
	}
	if err := s.users.UpsertSocialAccount(ctx, account); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link social account")
	}

	s.metrics.IncLogin(provider, "success")
	s.logger.Info("social login", zap.String("provider", provider), zap.String("user_id", user.ID))
	return s.sessions.IssueSession(ctx, user, ip, userAgent)
}

// matchUser prefers an identity that is already linked, so a member whose
// local email changed can still sign in. Otherwise it matches by email.
func (s *SocialLoginService) matchUser(ctx context.Context, providerName string, identity *models.SocialIdentity) (*models.User, error) {
	if identity.Subject != "" {
		linked, err := s.users.FindBySocialAccount(ctx, identity.Provider, identity.Subject)
		switch {
		case err == nil:
			return linked, nil
		case !errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up linked account")
		}
	}
	if identity.Email == "" {
		return nil, appErrors.Clone(appErrors.ErrSocialLoginRejected,
			fmt.Sprintf("No email address received from %s. Please ensure your account has a verified email address.", providerName))
	}
	matches, err := s.users.FindAllByEmail(ctx, identity.Email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up account")
	}
	switch len(matches) {
	case 0:
		return nil, appErrors.Clone(appErrors.ErrSocialLoginRejected,
			fmt.Sprintf("No account found for email %s. Please contact an administrator to create your account.", identity.Email))
	case 1:
		return &matches[0], nil
	default:
		return nil, appErrors.Clone(appErrors.ErrSocialLoginRejected,
			fmt.Sprintf("Multiple accounts found for email %s. Please contact an administrator.", identity.Email))
	}
}

func stateSubject(provider string) string {
	return "oauth-state:" + provider
}

// extractEmail picks the first claim that looks like an address, falling back
// to the first entry of email_addresses.
func extractEmail(claims map[string]interface{}) string {
	for _, key := range emailClaims {
		if value, ok := claims[key].(string); ok && strings.Contains(value, "@") {
			return strings.TrimSpace(value)
		}
	}
	if list, ok := claims["email_addresses"].([]interface{}); ok {
		for _, item := range list {
			switch v := item.(type) {
			case string:
				if strings.Contains(v, "@") {
					return strings.TrimSpace(v)
				}
			case map[string]interface{}:
				if value, ok := v["email"].(string); ok && strings.Contains(value, "@") {
					return strings.TrimSpace(value)
				}
			}
		}
	}
	return ""
}
