package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gliding-club-api/internal/middleware"
	"github.com/noah-isme/gliding-club-api/internal/models"
	"github.com/noah-isme/gliding-club-api/pkg/response"
)

type authService interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
	RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error)
	Logout(ctx context.Context, refreshToken, userID string) error
	Me(ctx context.Context, userID string) (*models.UserInfo, error)
	ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error
}

// SocialLogin is the social sign-in flow used by AuthHandler.
type SocialLogin interface {
	Providers() []string
	Begin(provider string) (string, error)
	Complete(ctx context.Context, provider, code, state, ip, userAgent string) (*models.LoginResponse, error)
}

// AuthHandler wires HTTP endpoints to the auth services.
type AuthHandler struct {
	service authService
	social  SocialLogin
}

// NewAuthHandler creates a new handler. social may be nil when no provider is configured.
func NewAuthHandler(svc authService, social SocialLogin) *AuthHandler {
	return &AuthHandler{service: svc, social: social}
}

// Login godoc
// @Summary Authenticate user
// @Description Authenticate by username (case-insensitive) and password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if !bindJSON(c, &req, "invalid login payload") {
		return
	}
	req.IP = middleware.ClientIP(c.Request)
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Refresh godoc
// @Summary Refresh access token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RefreshTokenRequest true "Refresh payload"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshTokenRequest
	if !bindJSON(c, &req, "invalid refresh payload") {
		return
	}
	req.IP = middleware.ClientIP(c.Request)
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.RefreshToken(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Logout godoc
// @Summary Logout current session
// @Tags Authentication
// @Accept json
// @Param payload body map[string]string true "Refresh token"
// @Success 204
// @Failure 401 {object} response.Envelope
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var payload struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if !bindJSON(c, &payload, "refresh token required") {
		return
	}
	if err := h.service.Logout(c.Request.Context(), payload.RefreshToken, actor.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Me godoc
// @Summary Current user
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	info, err := h.service.Me(c.Request.Context(), actor.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, info, nil)
}

// ChangePassword godoc
// @Summary Change password
// @Description Clears the forced password change flag
// @Tags Authentication
// @Accept json
// @Param payload body models.ChangePasswordRequest true "Change password"
// @Success 204
// @Failure 400 {object} response.Envelope
// @Router /auth/password [post]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req models.ChangePasswordRequest
	if !bindJSON(c, &req, "invalid payload") {
		return
	}
	if err := h.service.ChangePassword(c.Request.Context(), actor.ID, req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SocialProviders godoc
// @Summary Configured social login providers
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /auth/social [get]
func (h *AuthHandler) SocialProviders(c *gin.Context) {
	providers := []string{}
	if h.social != nil {
		providers = h.social.Providers()
	}
	response.JSON(c, http.StatusOK, gin.H{"providers": providers}, nil)
}

// SocialBegin godoc
// @Summary Start social login
// @Description Redirects to the provider's consent page
// @Tags Authentication
// @Param provider path string true "google or microsoft"
// @Success 302
// @Failure 404 {object} response.Envelope
// @Router /auth/social/{provider} [get]
func (h *AuthHandler) SocialBegin(c *gin.Context) {
	if h.social == nil {
		response.Error(c, errSocialDisabled)
		return
	}
	url, err := h.social.Begin(c.Param("provider"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Redirect(http.StatusFound, url)
}

// SocialCallback godoc
// @Summary Complete social login
// @Description Never creates accounts; the email must match exactly one member
// @Tags Authentication
// @Produce json
// @Param provider path string true "google or microsoft"
// @Param code query string true "Authorization code"
// @Param state query string true "Signed state"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /auth/social/{provider}/callback [get]
func (h *AuthHandler) SocialCallback(c *gin.Context) {
	if h.social == nil {
		response.Error(c, errSocialDisabled)
		return
	}
	res, err := h.social.Complete(c.Request.Context(), c.Param("provider"), c.Query("code"), c.Query("state"),
		middleware.ClientIP(c.Request), c.GetHeader("User-Agent"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
