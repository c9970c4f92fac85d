package main

import (
	"context"
	"fmt"
	"os"

	"github.com/yungbote/eventscout-backend/internal/clients/gcp"
	redisclient "github.com/yungbote/eventscout-backend/internal/clients/redis"
	"github.com/yungbote/eventscout-backend/internal/db"
	"github.com/yungbote/eventscout-backend/internal/handlers"
	"github.com/yungbote/eventscout-backend/internal/logger"
	"github.com/yungbote/eventscout-backend/internal/repos"
	"github.com/yungbote/eventscout-backend/internal/server"
	"github.com/yungbote/eventscout-backend/internal/services"
	"github.com/yungbote/eventscout-backend/internal/sse"
	"github.com/yungbote/eventscout-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	organizerRepo := repos.NewOrganizerRepo(thePG, log)
	communityRepo := repos.NewCommunityRepo(thePG, log)
	eventRepo := repos.NewEventRepo(thePG, log)
	eventCommunityRepo := repos.NewEventCommunityRepo(thePG, log)
	jobRepo := repos.NewJobRepo(thePG, log)
	taskRepo := repos.NewTaskRepo(thePG, log)
	importSourceRepo := repos.NewImportSourceRepo(thePG, log)
	aiCallLogRepo := repos.NewAICallLogRepo(thePG, log)

	// SSE
	log.Info("Setting up stream hub now...")
	streamHub := sse.NewStreamHub(log)

	// Redis is optional; without it the job stream stays single-instance
	// and page renders are uncached.
	var jobStreamBus redisclient.JobStreamBus
	var renderCache redisclient.RenderCache
	if os.Getenv("REDIS_ADDR") != "" {
		jobStreamBus, err = redisclient.NewJobStreamBus(log)
		if err != nil {
			log.Warn("Could not init JobStreamBus", "error", err)
		} else {
			if err := jobStreamBus.StartForwarder(context.Background(), streamHub.Broadcast); err != nil {
				log.Warn("Could not start job stream forwarder", "error", err)
			}
		}
		renderCache, err = redisclient.NewRenderCache(log)
		if err != nil {
			log.Warn("Could not init RenderCache", "error", err)
		}
	}

	// Services
	log.Info("Setting up Services from main...")
	bucketService, err := gcp.NewBucketService(log)
	if err != nil {
		log.Error("Could not init BucketService", "error", err)
		os.Exit(1)
	}
	aiClient, err := services.NewAIClient(log)
	if err != nil {
		log.Error("Could not init AIClient", "error", err)
		os.Exit(1)
	}
	renderer := services.NewPageRenderer(log, renderCache)
	imageRehostService := services.NewImageRehostService(log, bucketService)
	discoveryService := services.NewDiscoveryService(log, aiClient, renderer, aiCallLogRepo)
	scrapeService := services.NewScrapeService(log, discoveryService)
	upsertService := services.NewUpsertService(log, organizerRepo, communityRepo, eventRepo, eventCommunityRepo, imageRehostService)
	classificationService := services.NewClassificationService(log, aiClient, eventRepo, aiCallLogRepo)
	schedulerService := services.NewSchedulerService(
		log,
		jobRepo,
		taskRepo,
		scrapeService,
		upsertService,
		classificationService,
		streamHub,
		jobStreamBus,
	)
	defer schedulerService.Close()
	sourceRegistry := services.NewSourceRegistryService(log, importSourceRepo, schedulerService)

	// Handlers
	log.Info("Setting up handlers from main...")
	jobsHandler := handlers.NewJobsHandler(schedulerService)
	sourcesHandler := handlers.NewSourcesHandler(importSourceRepo, sourceRegistry)
	streamHandler := handlers.NewStreamHandler(streamHub)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		JobsHandler:    jobsHandler,
		SourcesHandler: sourcesHandler,
		StreamHandler:  streamHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Warn("Server failed", "error", err)
	}
}
