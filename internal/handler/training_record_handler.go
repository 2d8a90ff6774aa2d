package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gliding-club-api/internal/dto"
	"github.com/noah-isme/gliding-club-api/internal/models"
	"github.com/noah-isme/gliding-club-api/internal/service"
	"github.com/noah-isme/gliding-club-api/pkg/response"
)

type trainingRecordService interface {
	List(ctx context.Context, actor service.Actor, query dto.TrainingRecordQuery) ([]models.TrainingRecordView, *models.Pagination, error)
	Get(ctx context.Context, actor service.Actor, id string) (*models.TrainingRecordDetail, error)
	Create(ctx context.Context, actor service.Actor, req dto.CreateTrainingRecordRequest) (*models.TrainingRecordDetail, error)
	Update(ctx context.Context, actor service.Actor, id string, req dto.UpdateTrainingRecordRequest) (*models.TrainingRecordDetail, error)
	SignOff(ctx context.Context, actor service.Actor, id string) (*models.TrainingRecordDetail, error)
	ReviewAndSignOff(ctx context.Context, actor service.Actor, id string, req dto.SignOffFormRequest) (*models.TrainingRecordDetail, error)
}

// TrainingRecordHandler exposes the record workflow.
type TrainingRecordHandler struct {
	service trainingRecordService
}

// NewTrainingRecordHandler constructs the handler.
func NewTrainingRecordHandler(svc trainingRecordService) *TrainingRecordHandler {
	return &TrainingRecordHandler{service: svc}
}

// List godoc
// @Summary List training records
// @Description Students only see their own records
// @Tags Training Records
// @Produce json
// @Param q query string false "Search student, instructor, topic or glider"
// @Param student_id query string false "Student ID"
// @Param signed_off query bool false "Signed off"
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /training-records [get]
func (h *TrainingRecordHandler) List(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var query dto.TrainingRecordQuery
	if !bindQuery(c, &query, "invalid query parameters") {
		return
	}
	records, pagination, err := h.service.List(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Get godoc
// @Summary Training record detail
// @Tags Training Records
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /training-records/{id} [get]
func (h *TrainingRecordHandler) Get(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	detail, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Create godoc
// @Summary Create training record
// @Description Exercises left out of the payload are stored as not_performed
// @Tags Training Records
// @Accept json
// @Produce json
// @Param payload body dto.CreateTrainingRecordRequest true "Record payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /training-records [post]
func (h *TrainingRecordHandler) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.CreateTrainingRecordRequest
	if !bindJSON(c, &req, "invalid training record payload") {
		return
	}
	detail, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

// Update godoc
// @Summary Update training record
// @Tags Training Records
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body dto.UpdateTrainingRecordRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /training-records/{id} [put]
func (h *TrainingRecordHandler) Update(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.UpdateTrainingRecordRequest
	if !bindJSON(c, &req, "invalid training record payload") {
		return
	}
	detail, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// SignOff godoc
// @Summary Sign off training record
// @Description Only the assigned instructor, and only once
// @Tags Training Records
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /training-records/{id}/sign-off [post]
func (h *TrainingRecordHandler) SignOff(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	detail, err := h.service.SignOff(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Review godoc
// @Summary Review and sign off
// @Description Edit the flight details and confirm sign-off in one request
// @Tags Training Records
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body dto.SignOffFormRequest true "Reviewed record"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /training-records/{id}/review [put]
func (h *TrainingRecordHandler) Review(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.SignOffFormRequest
	if !bindJSON(c, &req, "invalid sign-off payload") {
		return
	}
	detail, err := h.service.ReviewAndSignOff(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}
