package main

import (
	"database/sql"
	"time"

	"trunkctl/internal/httpapi"
	"trunkctl/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h *httpapi.Handlers, authMW gin.HandlerFunc, db *sql.DB, rdb *redis.Client) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		ctx := c.Request.Context()
		if err := utils.HealthCheck(ctx, db, 2*time.Second); err != nil {
			c.JSON(503, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			c.JSON(503, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		// Direct gateway provisioning, for callers that keep their own
		// trunk records.
		v1.POST("/gateways", h.CreateGateway)
		v1.DELETE("/gateways/:name", h.DeleteGateway)

		// Trunk lifecycle. Writes reconcile switch-side resources.
		v1.POST("/sip_trunks", h.CreateTrunk)
		v1.GET("/sip_trunks", h.ListTrunks)
		v1.GET("/sip_trunks/:id", h.GetTrunk)
		v1.PATCH("/sip_trunks/:id", h.UpdateTrunk)
		v1.DELETE("/sip_trunks/:id", h.DeleteTrunk)

		// Live-call control: pushes an update toward whatever executor is
		// bridging the call right now.
		v1.POST("/calls/:id/redirect", h.RedirectCall)
	}
}
