package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Only these keys are served; paths and connection strings stay private.
var publicSettingKeys = map[string]bool{
	"log.level":                  true,
	"images.account":             true,
	"images.container":           true,
	"images.cleanup_timeout_ms":  true,
	"queue.channel":              true,
	"worker.poll_timeout_ms":     true,
	"worker.processing_delay_ms": true,
}

type settingPayload struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (h *httpHandler) handleGetSetting(c *gin.Context) {
	key := strings.ToLower(strings.TrimSpace(c.Param("key")))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_key"})
		return
	}
	if !publicSettingKeys[key] {
		c.JSON(http.StatusNotFound, gin.H{"error": "setting_not_found"})
		return
	}
	value, ok := h.settings.Lookup(key)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "setting_not_found"})
		return
	}
	c.JSON(http.StatusOK, settingPayload{Key: key, Value: value})
}
