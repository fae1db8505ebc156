package api

import "github.com/gin-gonic/gin"

func SetupRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/worlds", h.UpsertWorld)
		apiV1.POST("/inhabitants", h.UpsertInhabitant)
		apiV1.POST("/content", h.CreateContent)

		apiV1.GET("/worlds/:id/graph", h.GetGraph)
		apiV1.GET("/worlds/:id/arcs", h.ListArcs)
		apiV1.GET("/stories/:id/arc", h.GetArc)

		apiV1.GET("/feed", h.GetFeed)
		apiV1.GET("/feed/stream", h.StreamFeed)

		apiV1.POST("/reconcile", h.TriggerReconcile)
		apiV1.POST("/backfill", h.TriggerBackfill)
	}

	return r
}
