package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"attendguard/logger"
	"attendguard/utils"
)

// HealthHandler reports process and store health.
type HealthHandler struct {
	Store     interface{ Degraded() bool }
	Backend   string
	PingMongo func(ctx context.Context) error
	StartedAt time.Time
}

// Health handles GET /api/health
func (h *HealthHandler) Health(c *gin.Context) {
	status := "ok"
	mongoStatus := "unconfigured"
	if h.PingMongo != nil {
		mongoStatus = "ok"
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.PingMongo(ctx); err != nil {
			logger.Warn(ctx).Err(err).Msg("health check: mongo unreachable")
			mongoStatus = "unreachable"
			status = "degraded"
		}
	}

	storeStatus := "ok"
	if h.Store != nil && h.Store.Degraded() {
		storeStatus = "degraded"
		status = "degraded"
	}

	utils.Success(c, gin.H{
		"status":        status,
		"mongo":         mongoStatus,
		"store":         storeStatus,
		"store_backend": h.Backend,
		"uptime":        time.Since(h.StartedAt).Round(time.Second).String(),
		"system":        utils.GetSystemSnapshot(),
	})
}
