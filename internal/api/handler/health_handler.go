package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health handles GET /health
// Reports the service status along with database and broker reachability
func (h *VerificationHandler) Health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":  "healthy",
		"service": "verification-api-service",
	}

	if h.db != nil {
		if err := h.db.HealthCheck(c.Request.Context()); err != nil {
			h.logger.Error("Database health check failed", slog.String("error", err.Error()))
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["database"] = "unreachable"
		} else {
			body["database"] = "ok"
		}
	}

	if h.broker != nil {
		if h.broker.IsConnected() {
			body["rabbitmq"] = "ok"
		} else {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["rabbitmq"] = "disconnected"
		}
	}

	c.JSON(status, body)
}
