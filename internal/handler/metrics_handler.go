package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gliding-club-api/internal/service"
)

type healthChecker interface {
	Check(ctx context.Context) *service.HealthReport
	Ready(ctx context.Context) error
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics http.Handler
	health  healthChecker
}

// NewMetricsHandler constructs a metrics handler.
func NewMetricsHandler(metrics http.Handler, health healthChecker) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, health: health}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.ServeHTTP(c.Writer, c.Request)
}

// Health godoc
// @Summary Health check
// @Description Database, cache, email, authentication and security checks
// @Tags Health
// @Produce json
// @Success 200 {object} service.HealthReport
// @Failure 503 {object} service.HealthReport
// @Router /health [get]
func (h *MetricsHandler) Health(c *gin.Context) {
	report := h.health.Check(c.Request.Context())
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(status, report)
}

// Ready answers readiness probes.
func (h *MetricsHandler) Ready(c *gin.Context) {
	if err := h.health.Ready(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
