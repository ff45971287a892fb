package server

import (
	"reelforge/internal/core/credential"
	"reelforge/internal/core/pipeline"
	"reelforge/internal/health"
	"reelforge/internal/platform/redis"

	"github.com/gofiber/fiber/v2"
)

type Dependencies struct {
	Pipeline  *pipeline.Service
	Pool      *credential.Pool
	Redis     *redis.Service
	YtDlpPath string
}

func RegisterRoutes(app *fiber.App, d Dependencies) *health.HealthHandler {
	// Health endpoints
	healthHandler := health.NewHealthHandler(d.Redis, d.YtDlpPath)
	app.Get("/v1/health", health.HealthLimiter(), healthHandler.HandleHealth)

	api := app.Group("/v1")

	videoHandler := pipeline.NewHandler(d.Pipeline)
	api.Post("/videos", videoHandler.HandleCreate)
	api.Get("/videos/queue/status", videoHandler.HandleQueueStatus)
	api.Get("/videos/:jobId", videoHandler.HandleStatus)
	api.Get("/videos/:jobId/download", videoHandler.HandleDownload)
	api.Get("/videos/:jobId/progress", videoHandler.HandleProgressSocket())
	api.Delete("/videos/:jobId", videoHandler.HandleDelete)

	poolHandler := credential.NewHandler(d.Pool)
	api.Get("/pool/stats", poolHandler.HandleStats)
	api.Post("/pool/credentials", poolHandler.HandleAdd)
	api.Delete("/pool/credentials/:name", poolHandler.HandleRemove)

	return healthHandler
}
