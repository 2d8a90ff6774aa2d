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

type catalogService interface {
	Gliders(ctx context.Context, includeInactive bool) ([]models.Glider, error)
	Topics(ctx context.Context) ([]models.TrainingTopic, error)
	Exercises(ctx context.Context) ([]models.Exercise, error)
	BriefingTopics(ctx context.Context) ([]models.GroundBriefingTopic, error)
	SaveGlider(ctx context.Context, req dto.GliderRequest) (*models.Glider, error)
	SaveTopic(ctx context.Context, req dto.TrainingTopicRequest) (*models.TrainingTopic, error)
	SaveExercise(ctx context.Context, req dto.ExerciseRequest) (*models.Exercise, error)
	ImportInitialData(ctx context.Context, data dto.CatalogImport) (map[string]service.ImportResult, error)
	ImportBriefingTopics(ctx context.Context, data dto.BriefingTopicImport) (service.ImportResult, error)
}

// CatalogHandler exposes gliders, topics, exercises and the briefing syllabus.
type CatalogHandler struct {
	service catalogService
}

// NewCatalogHandler constructs the handler.
func NewCatalogHandler(svc catalogService) *CatalogHandler {
	return &CatalogHandler{service: svc}
}

// Gliders godoc
// @Summary List gliders
// @Tags Catalog
// @Produce json
// @Param include_inactive query bool false "Include retired gliders"
// @Success 200 {object} response.Envelope
// @Router /gliders [get]
func (h *CatalogHandler) Gliders(c *gin.Context) {
	includeInactive, _ := strconv.ParseBool(c.Query("include_inactive"))
	gliders, err := h.service.Gliders(c.Request.Context(), includeInactive)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gliders, nil)
}

// Topics godoc
// @Summary List training topics
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /training-topics [get]
func (h *CatalogHandler) Topics(c *gin.Context) {
	topics, err := h.service.Topics(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, topics, nil)
}

// Exercises godoc
// @Summary List exercises in syllabus order
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /exercises [get]
func (h *CatalogHandler) Exercises(c *gin.Context) {
	exercises, err := h.service.Exercises(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exercises, nil)
}

// BriefingTopics godoc
// @Summary List ground briefing topics
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /ground-briefing-topics [get]
func (h *CatalogHandler) BriefingTopics(c *gin.Context) {
	topics, err := h.service.BriefingTopics(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, topics, nil)
}

// SaveGlider godoc
// @Summary Create or update a glider
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body dto.GliderRequest true "Glider"
// @Success 200 {object} response.Envelope
// @Router /gliders [put]
func (h *CatalogHandler) SaveGlider(c *gin.Context) {
	var req dto.GliderRequest
	if !bindJSON(c, &req, "invalid glider payload") {
		return
	}
	glider, err := h.service.SaveGlider(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, glider, nil)
}

// SaveTopic godoc
// @Summary Create or update a training topic
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body dto.TrainingTopicRequest true "Topic"
// @Success 200 {object} response.Envelope
// @Router /training-topics [put]
func (h *CatalogHandler) SaveTopic(c *gin.Context) {
	var req dto.TrainingTopicRequest
	if !bindJSON(c, &req, "invalid topic payload") {
		return
	}
	topic, err := h.service.SaveTopic(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, topic, nil)
}

// SaveExercise godoc
// @Summary Create or update an exercise
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body dto.ExerciseRequest true "Exercise"
// @Success 200 {object} response.Envelope
// @Router /exercises [put]
func (h *CatalogHandler) SaveExercise(c *gin.Context) {
	var req dto.ExerciseRequest
	if !bindJSON(c, &req, "invalid exercise payload") {
		return
	}
	exercise, err := h.service.SaveExercise(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exercise, nil)
}

// Import godoc
// @Summary Import gliders, topics and exercises
// @Description Existing entries are matched by their natural key and updated
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body dto.CatalogImport true "Catalog data"
// @Success 200 {object} response.Envelope
// @Router /catalog/import [post]
func (h *CatalogHandler) Import(c *gin.Context) {
	var req dto.CatalogImport
	if !bindJSON(c, &req, "invalid import payload") {
		return
	}
	result, err := h.service.ImportInitialData(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ImportBriefingTopics godoc
// @Summary Import the ground briefing syllabus
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body dto.BriefingTopicImport true "Briefing topics"
// @Success 200 {object} response.Envelope
// @Router /ground-briefing-topics/import [post]
func (h *CatalogHandler) ImportBriefingTopics(c *gin.Context) {
	var req dto.BriefingTopicImport
	if !bindJSON(c, &req, "invalid import payload") {
		return
	}
	result, err := h.service.ImportBriefingTopics(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
