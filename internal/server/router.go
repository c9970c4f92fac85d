package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/eventscout-backend/internal/handlers"
)

type RouterConfig struct {
	JobsHandler    *handlers.JobsHandler
	SourcesHandler *handlers.SourcesHandler
	StreamHandler  *handlers.StreamHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		// Jobs
		api.POST("/scrape/jobs", cfg.JobsHandler.CreateJob)
		api.GET("/scrape/jobs", cfg.JobsHandler.ListJobs)
		api.GET("/scrape/jobs/:id", cfg.JobsHandler.GetJobByID)
		// SSE
		api.GET("/scrape/stream", cfg.StreamHandler.JobStream)
		// Import sources
		api.GET("/sources", cfg.SourcesHandler.ListSources)
		api.POST("/sources", cfg.SourcesHandler.CreateSource)
		api.POST("/sources/run", cfg.SourcesHandler.RunAll)
	}

	return router
}
