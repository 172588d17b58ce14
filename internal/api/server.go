// Package api exposes the query, analytics, selection and maintenance
// operations over HTTP for UI and CLI clients.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"highlight_courier/internal/service"
)

// CycleTrigger lets the API fire a delivery cycle on demand.
type CycleTrigger interface {
	RunCycle(ctx context.Context)
}

type Server struct {
	query     *service.QueryService
	selection *service.SelectionService
	analytics *service.AnalyticsService
	maint     *service.MaintenanceService
	trigger   CycleTrigger
	logger    *slog.Logger
}

func NewServer(
	query *service.QueryService,
	sel *service.SelectionService,
	analytics *service.AnalyticsService,
	maint *service.MaintenanceService,
	trigger CycleTrigger,
	logger *slog.Logger,
) *Server {
	return &Server{
		query:     query,
		selection: sel,
		analytics: analytics,
		maint:     maint,
		trigger:   trigger,
		logger:    logger,
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/highlights", s.searchHighlights)
		api.GET("/stats", s.getStats)
		api.GET("/stats/advanced", s.getAdvancedStats)
		api.POST("/selection/preview", s.previewSelection)
		api.POST("/selection/commit", s.commitSelection)
		api.DELETE("/sources/:id", s.deleteSource)
		api.GET("/cycles/latest", s.latestCycle)
		api.POST("/delivery/trigger", s.triggerDelivery)
		api.POST("/maintenance/bulk-update", s.bulkUpdate)
		api.POST("/maintenance/bulk-delete", s.bulkDelete)
		api.POST("/maintenance/cleanup", s.cleanup)
		api.GET("/export", s.exportAll)
		api.POST("/import", s.importAll)
	}
	return r
}
