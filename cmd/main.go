package main

import (
	"bytes"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"

	"reelforge/internal/config"
	"reelforge/internal/core/credential"
	"reelforge/internal/core/export"
	"reelforge/internal/core/fetch"
	"reelforge/internal/core/images"
	"reelforge/internal/core/media"
	"reelforge/internal/core/pipeline"
	"reelforge/internal/core/progress"
	"reelforge/internal/core/search"
	"reelforge/internal/logger"
	"reelforge/internal/metrics"
	"reelforge/internal/platform/llm"
	rds "reelforge/internal/platform/redis"
	"reelforge/internal/platform/supastore"
	"reelforge/internal/platform/tasks"
	"reelforge/internal/server"
	"reelforge/internal/worker"
)

func main() {
	cfg := config.Load()
	log.Printf("[reelforge] starting at %s (env=%s)\n", cfg.HTTPAddr, cfg.AppEnv)

	logr := logger.New("main")

	// Redis client
	redisSvc, err := rds.New(rds.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer redisSvc.Close()

	// Asynq client and server
	taskClient := tasks.New(redisSvc)
	asynqServer := asynq.NewServer(redisSvc.AsynqRedisOpt(), asynq.Config{
		Concurrency: 10,
		Queues:      map[string]int{"default": 1},
	})

	// Credential pool with metrics observer
	pool, err := credential.LoadDir(cfg.CredentialsDir, credential.Config{
		MinDelayBetweenUses: cfg.PoolMinDelay(),
		MaxFailsBeforeBlock: cfg.PoolMaxFails,
		BlockDuration:       cfg.PoolBlock(),
	})
	if err != nil {
		log.Fatal(err)
	}
	collector := metrics.NewCollector()
	pool.SetObserver(collector)
	collector.Serve(cfg.MetricsAddr)

	fetcher := fetch.New(pool, fetch.Config{
		MaxRetries: cfg.FetchMaxRetries,
		BaseDelay:  cfg.FetchBaseDelay(),
	})

	// Durable store is optional outside production
	store, err := supastore.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	var durable progress.DurableStore
	var uploader pipeline.Uploader
	if store != nil {
		durable = store
		uploader = store
	} else {
		logr.LogWarn("Supabase not configured; durable progress and remote artifacts disabled")
	}
	sink := progress.NewSink(redisSvc, durable)

	// LLM platform (planning, image prompts, image rendering)
	llmSvc, err := llm.NewService(llm.Config{
		Provider:   cfg.LLMProvider,
		APIKey:     cfg.GeminiAPIKey,
		Model:      cfg.DefaultLLMModel,
		ImageModel: cfg.ImageModel,
	})
	if err != nil {
		log.Fatalf("failed to initialize LLM service: %v", err)
	}

	// Stage services
	searchSvc := search.New(search.Config{
		BaseURL:        cfg.SearchBaseURL,
		RenderFallback: cfg.SearchRenderFallback,
	}, redisSvc)
	extractor := media.NewExtractor(fetcher, cfg.YtDlpPath)
	imagesSvc := images.New(llmSvc)
	exportSvc := export.New()

	pipelineSvc := pipeline.New(pipeline.Config{
		TaskMaxRetries: cfg.TaskMaxRetries,
		Concurrency:    cfg.FetchConcurrency,
		DataDir:        cfg.DataDir,
		ArtifactTTL:    cfg.ArtifactTTL(),
	}, sink, taskClient, pipeline.Collaborators{
		Planner:   llmSvc,
		Searcher:  searchSvc,
		Extractor: extractor,
		Images:    imagesSvc,
		Exporter:  exportSvc,
		Uploader:  uploader,
		Metrics:   collector,
	})

	// Worker mux
	mux := worker.NewMux()
	mux.HandleFunc(pipeline.TaskTypeGenerate, pipelineSvc.HandleGenerateTask)
	mux.HandleFunc(pipeline.TaskTypeCleanup, pipelineSvc.HandleCleanupTask)

	// Start worker
	go func() {
		if err := asynqServer.Start(mux.Mux()); err != nil {
			log.Printf("[worker] stopped: %v\n", err)
		}
	}()

	// HTTP server
	app := fiber.New(fiber.Config{
		AppName: "Reelforge Engine",
		JSONEncoder: func(v interface{}) ([]byte, error) {
			var buf bytes.Buffer
			encoder := json.NewEncoder(&buf)
			encoder.SetEscapeHTML(false)
			if err := encoder.Encode(v); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
	})
	// Serve local artifacts under /files when remote storage is absent
	app.Static("/files", cfg.DataDir)

	deps := server.Dependencies{
		Pipeline:  pipelineSvc,
		Pool:      pool,
		Redis:     redisSvc,
		YtDlpPath: cfg.YtDlpPath,
	}
	healthHandler := server.RegisterRoutes(app, deps)

	// Mark application as ready after all services are initialized
	go func() {
		time.Sleep(5 * time.Second) // Allow services to fully initialize
		healthHandler.SetReady()
	}()

	// Graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		logr.LogInfo("Shutting down...")
		asynqServer.Shutdown()
		_ = taskClient.Close()
		_ = app.ShutdownWithTimeout(5 * time.Second)
	}()

	if err := app.Listen(cfg.HTTPAddr); err != nil {
		log.Fatalf("server listen: %v", err)
	}
}
