package worker

import (
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/character-library/backend/internal/notify"
	"github.com/gin-gonic/gin"
)

// NewHTTPHandler exposes the push endpoint through which bindings deliver messages directly.
func NewHTTPHandler(w *Worker, metricsHandler http.Handler) http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}
	router.POST("/background", func(c *gin.Context) {
		var message notify.Message
		if err := c.ShouldBindJSON(&message); err != nil || strings.TrimSpace(message.Data) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_message"})
			return
		}
		if err := w.Process(c.Request.Context(), message); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "request_canceled"})
			return
		}
		c.Status(http.StatusOK)
	})

	return router
}
