package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gliding-club-api/internal/middleware"
	"github.com/noah-isme/gliding-club-api/internal/models"
	"github.com/noah-isme/gliding-club-api/internal/service"
	"github.com/noah-isme/gliding-club-api/pkg/response"
)

type dashboardService interface {
	Student(ctx context.Context, actor service.Actor) (*models.StudentDashboard, bool, error)
	Instructor(ctx context.Context, actor service.Actor) (*models.InstructorDashboard, bool, error)
}

// DashboardHandler wires dashboard service to HTTP endpoints.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Show godoc
// @Summary Dashboard for the signed-in user
// @Description Students get flight totals, instructors and admins get their instruction summary
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard [get]
func (h *DashboardHandler) Show(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if actor.UserType == models.UserTypeStudent {
		h.Student(c)
		return
	}
	h.Instructor(c)
}

// Student godoc
// @Summary Student dashboard
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/student [get]
func (h *DashboardHandler) Student(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	summary, cacheHit, err := h.service.Student(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ResponseMeta(c))
}

// Instructor godoc
// @Summary Instructor dashboard
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /dashboard/instructor [get]
func (h *DashboardHandler) Instructor(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	summary, cacheHit, err := h.service.Instructor(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ResponseMeta(c))
}
