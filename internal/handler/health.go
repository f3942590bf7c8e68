package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthInfo describes which backends the process is running with.
type HealthInfo struct {
	Storage string `json:"storage"`
	Cache   bool   `json:"cache"`
}

// Health godoc
// @Summary      Health check
// @Description  Reports liveness and the active storage backend
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "storage": h.info.Storage, "cache": h.info.Cache})
}
