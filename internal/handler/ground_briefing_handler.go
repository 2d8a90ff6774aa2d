package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gliding-club-api/internal/dto"
	"github.com/noah-isme/gliding-club-api/internal/models"
	"github.com/noah-isme/gliding-club-api/internal/service"
	"github.com/noah-isme/gliding-club-api/pkg/response"
)

type groundBriefingService interface {
	Request(ctx context.Context, actor service.Actor, req dto.RequestBriefingsRequest) (*models.BriefingOverview, error)
	SignOff(ctx context.Context, actor service.Actor, id string, req dto.SignOffBriefingRequest) (*models.GroundBriefingView, error)
	Overview(ctx context.Context, actor service.Actor, studentID string) (*models.BriefingOverview, error)
	Pending(ctx context.Context, limit int) ([]models.GroundBriefingView, error)
}

// GroundBriefingHandler exposes ground school progress.
type GroundBriefingHandler struct {
	service groundBriefingService
}

// NewGroundBriefingHandler constructs the handler.
func NewGroundBriefingHandler(svc groundBriefingService) *GroundBriefingHandler {
	return &GroundBriefingHandler{service: svc}
}

// Mine godoc
// @Summary Own ground briefing status
// @Tags Ground Briefings
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /ground-briefings [get]
func (h *GroundBriefingHandler) Mine(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	h.overview(c, actor, actor.ID)
}

// Student godoc
// @Summary Ground briefing status of a student
// @Tags Ground Briefings
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /students/{id}/ground-briefings [get]
func (h *GroundBriefingHandler) Student(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	h.overview(c, actor, c.Param("id"))
}

func (h *GroundBriefingHandler) overview(c *gin.Context, actor service.Actor, studentID string) {
	overview, err := h.service.Overview(c.Request.Context(), actor, studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overview, nil)
}

// Request godoc
// @Summary Request ground briefings
// @Tags Ground Briefings
// @Accept json
// @Produce json
// @Param payload body dto.RequestBriefingsRequest true "Topics"
// @Success 200 {object} response.Envelope
// @Router /ground-briefings [post]
func (h *GroundBriefingHandler) Request(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.RequestBriefingsRequest
	if !bindJSON(c, &req, "invalid briefing request") {
		return
	}
	overview, err := h.service.Request(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overview, nil)
}

// SignOff godoc
// @Summary Sign off a ground briefing
// @Tags Ground Briefings
// @Accept json
// @Produce json
// @Param id path string true "Briefing ID"
// @Param payload body dto.SignOffBriefingRequest false "Notes"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /ground-briefings/{id}/sign-off [post]
func (h *GroundBriefingHandler) SignOff(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.SignOffBriefingRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req, "invalid sign-off payload") {
		return
	}
	briefing, err := h.service.SignOff(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, briefing, nil)
}

// Pending godoc
// @Summary Briefings awaiting sign-off
// @Tags Ground Briefings
// @Produce json
// @Param limit query int false "Maximum rows"
// @Success 200 {object} response.Envelope
// @Router /ground-briefings/pending [get]
func (h *GroundBriefingHandler) Pending(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	briefings, err := h.service.Pending(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, briefings, nil)
}
