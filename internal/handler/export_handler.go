package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gliding-club-api/internal/dto"
	"github.com/noah-isme/gliding-club-api/internal/service"
	"github.com/noah-isme/gliding-club-api/pkg/response"
)

type exportService interface {
	ExportStudent(ctx context.Context, actor service.Actor, studentID, format string) (*service.ExportFile, error)
	FlightHistory(ctx context.Context, actor service.Actor, query dto.FlightHistoryQuery) (*service.FlightHistory, error)
	ExportFlightHistory(ctx context.Context, actor service.Actor, query dto.FlightHistoryQuery) (*service.ExportFile, error)
}

// ExportHandler serves logbook downloads and the instructor flight history.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(svc exportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Student godoc
// @Summary Export a student logbook
// @Description csv lists every flight, pdf is the summary report, matrix is the exercise grid
// @Tags Export
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Student ID"
// @Param format path string true "csv, pdf or matrix"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /export/{id}/{format} [get]
func (h *ExportHandler) Student(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	file, err := h.service.ExportStudent(c.Request.Context(), actor, c.Param("id"), c.Param("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

// FlightHistory godoc
// @Summary Instructor flight history
// @Description Defaults to the configured range ending today
// @Tags Export
// @Produce json
// @Param student_id query string false "Student ID"
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Param page query int false "Page"
// @Success 200 {object} response.Envelope
// @Router /instructor/flight-history [get]
func (h *ExportHandler) FlightHistory(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var query dto.FlightHistoryQuery
	if !bindQuery(c, &query, "invalid query parameters") {
		return
	}
	history, err := h.service.FlightHistory(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, history.Pagination)
}

// ExportFlightHistory godoc
// @Summary Download flight history as CSV
// @Tags Export
// @Produce text/csv
// @Param student_id query string false "Student ID"
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Success 200 {file} file
// @Router /instructor/flight-history/export [get]
func (h *ExportHandler) ExportFlightHistory(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var query dto.FlightHistoryQuery
	if !bindQuery(c, &query, "invalid query parameters") {
		return
	}
	file, err := h.service.ExportFlightHistory(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}
