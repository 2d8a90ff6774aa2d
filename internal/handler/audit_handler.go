package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gliding-club-api/internal/models"
	"github.com/noah-isme/gliding-club-api/pkg/response"
)

type auditLister interface {
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, *models.Pagination, error)
}

// AuditHandler lets admins browse the change history.
type AuditHandler struct {
	service auditLister
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(svc auditLister) *AuditHandler {
	return &AuditHandler{service: svc}
}

// List godoc
// @Summary Audit log
// @Tags Admin
// @Produce json
// @Param table_name query string false "Table"
// @Param record_id query string false "Record ID"
// @Param user_id query string false "Acting user"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/audit-logs [get]
func (h *AuditHandler) List(c *gin.Context) {
	var filter models.AuditFilter
	if !bindQuery(c, &filter, "invalid query parameters") {
		return
	}
	logs, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, pagination)
}
