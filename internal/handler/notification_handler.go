package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gliding-club-api/internal/models"
	"github.com/noah-isme/gliding-club-api/pkg/response"
)

type digestSender interface {
	SendWeeklyDigest(ctx context.Context) (*models.DigestResult, error)
}

// NotificationHandler triggers instructor notifications on demand.
type NotificationHandler struct {
	service digestSender
}

// NewNotificationHandler constructs the handler.
func NewNotificationHandler(svc digestSender) *NotificationHandler {
	return &NotificationHandler{service: svc}
}

// WeeklyDigest godoc
// @Summary Send the weekly digest now
// @Description Emails every instructor with unsigned records or pending briefings
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/notifications/weekly-digest [post]
func (h *NotificationHandler) WeeklyDigest(c *gin.Context) {
	result, err := h.service.SendWeeklyDigest(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
