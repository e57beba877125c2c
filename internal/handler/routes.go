package handler

import "github.com/gin-gonic/gin"

// RegisterSelectionRoutes mounts the selection endpoints on api.
func RegisterSelectionRoutes(api gin.IRouter, h *SelectionHandler) {
	api.GET("/state", h.State)
	api.GET("/state/stream", h.Stream)
	api.GET("/groups", h.Groups)

	selection := api.Group("/selection")
	selection.POST("/initial", h.LoadInitial)
	selection.POST("/faculty", h.SelectFaculty)
	selection.POST("/group", h.SelectGroup)
	selection.POST("/date", h.SelectDate)
	selection.POST("/week/next", h.NextWeek)
	selection.POST("/week/previous", h.PreviousWeek)
	selection.POST("/week/current", h.CurrentWeek)
	selection.POST("/refresh", h.Refresh)
}

// RegisterExportRoutes mounts the export endpoints on api.
func RegisterExportRoutes(api gin.IRouter, h *ExportHandler) {
	api.POST("/schedule/exports", h.Create)
	api.GET("/exports/:token", h.Download)
}

// RegisterSystemRoutes mounts health, readiness and metrics endpoints on r.
func RegisterSystemRoutes(r gin.IRouter, h *MetricsHandler) {
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/metrics", h.Prometheus)
	r.GET("/stats", h.Stats)
}
