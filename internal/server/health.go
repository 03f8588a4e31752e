package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
	serviceConnected      = "connected"
	serviceUnreachable    = "unreachable"
	serviceSimulated      = "simulated"
	healthCheckTimeout    = 3 * time.Second
)

type healthPayload struct {
	Status    string                `json:"status"`
	Timestamp time.Time             `json:"timestamp"`
	Services  healthServicesPayload `json:"services"`
	Error     string                `json:"error,omitempty"`
}

type healthServicesPayload struct {
	Database      string `json:"database"`
	Configuration string `json:"configuration"`
	Secrets       string `json:"secrets"`
	BlobStorage   string `json:"blobStorage"`
	Queue         string `json:"queue"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	services := healthServicesPayload{
		Database:      serviceConnected,
		Configuration: serviceSimulated,
		Secrets:       serviceSimulated,
		BlobStorage:   serviceSimulated,
		Queue:         h.queueModeOrDefault(),
	}

	if err := h.health.Ping(ctx); err != nil {
		h.logger.Error("health check failed", zap.Error(err))
		services.Database = serviceUnreachable
		c.JSON(http.StatusServiceUnavailable, healthPayload{
			Status:    healthStatusUnhealthy,
			Timestamp: h.clock().UTC(),
			Services:  services,
			Error:     "database_unreachable",
		})
		return
	}

	c.JSON(http.StatusOK, healthPayload{
		Status:    healthStatusHealthy,
		Timestamp: h.clock().UTC(),
		Services:  services,
	})
}

func (h *httpHandler) queueModeOrDefault() string {
	if h.queueMode == "" {
		return serviceSimulated
	}
	return h.queueMode
}
