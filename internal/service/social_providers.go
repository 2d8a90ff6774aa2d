package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"github.com/noah-isme/gliding-club-api/internal/models"
	"github.com/noah-isme/gliding-club-api/pkg/config"
)

// OAuthProvider performs the authorization-code flow against one identity
// provider and fetches the user's profile claims.
type OAuthProvider struct {
	name         string
	displayName  string
	config       *oauth2.Config
	userInfoURL  string
	subjectClaim string
}

// NewGoogleProvider returns the Google OpenID Connect provider.
func NewGoogleProvider(cfg config.OAuthProviderConfig) *OAuthProvider {
	return &OAuthProvider{
		name:        "google",
		displayName: "Google",
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL:  "https://openidconnect.googleapis.com/v1/userinfo",
		subjectClaim: "sub",
	}
}

// NewMicrosoftProvider returns the Microsoft identity platform provider.
func NewMicrosoftProvider(cfg config.OAuthProviderConfig) *OAuthProvider {
	tenant := cfg.Tenant
	if tenant == "" {
		tenant = "common"
	}
	return &OAuthProvider{
		name:        "microsoft",
		displayName: "Microsoft",
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile", "User.Read"},
			Endpoint:     microsoft.AzureADEndpoint(tenant),
		},
		userInfoURL:  "https://graph.microsoft.com/v1.0/me",
		subjectClaim: "id",
	}
}

// ConfiguredProviders returns the providers that have client credentials.
func ConfiguredProviders(cfg config.OAuthConfig) []SocialProvider {
	var providers []SocialProvider
	if cfg.Google.Enabled() {
		providers = append(providers, NewGoogleProvider(cfg.Google))
	}
	if cfg.Microsoft.Enabled() {
		providers = append(providers, NewMicrosoftProvider(cfg.Microsoft))
	}
	return providers
}

// Name is the provider key used in routes.
func (p *OAuthProvider) Name() string { return p.name }

// DisplayName is the provider name shown in messages.
func (p *OAuthProvider) DisplayName() string { return p.displayName }

// AuthCodeURL returns the consent page URL carrying state.
func (p *OAuthProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// FetchIdentity exchanges the code and loads the profile claims.
func (p *OAuthProvider) FetchIdentity(ctx context.Context, code string) (*models.SocialIdentity, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange %s code: %w", p.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s userinfo request: %w", p.name, err)
	}
	resp, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s userinfo: %w", p.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("fetch %s userinfo: status %d", p.name, resp.StatusCode)
	}

	var claims map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("decode %s userinfo: %w", p.name, err)
	}
	subject, _ := claims[p.subjectClaim].(string)
	if subject == "" {
		return nil, fmt.Errorf("%s userinfo missing %s", p.name, p.subjectClaim)
	}
	return &models.SocialIdentity{
		Provider:  p.name,
		Subject:   subject,
		ExtraData: claims,
		Email:     extractEmail(claims),
	}, nil
}
