package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"modelibr/internal/config"
	"modelibr/internal/database"
	"modelibr/internal/domain/batch"
	"modelibr/internal/domain/file"
	"modelibr/internal/domain/model"
	"modelibr/internal/domain/notify"
	"modelibr/internal/domain/thumbnail"
	"modelibr/internal/middleware"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	store, err := file.NewStore(cfg.StorageRoot)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}
	fileService := file.NewService(file.NewRepository(db), store, cfg.MaxUploadSize)

	queue := thumbnail.NewQueue(db, cfg.StuckJobAfter, cfg.QueuePollInterval)
	requester := thumbnail.NewRequester(queue, cfg.ThumbnailFrames, cfg.ThumbnailAngle)
	thumbRepo := thumbnail.NewRepository(db)
	previews, err := thumbnail.NewPreviewWriter(cfg.StorageRoot, cfg.PreviewSize)
	if err != nil {
		log.Fatalf("preview storage init failed: %v", err)
	}
	renderer := thumbnail.NewHTTPRenderer(cfg.RenderURL, cfg.RenderTimeout)

	manager := model.NewManager(db, fileService, requester)
	ledger := batch.NewLedger(db)
	hub := notify.NewHub()

	pool := thumbnail.NewPool(queue, thumbRepo, renderer, previews, fileService, manager, hub, cfg.WorkerCount)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	waitForWorkers := pool.Start(ctx)

	if cfg.AppEnv == "production" || cfg.AppEnv == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorLogger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	thumbHandler := thumbnail.NewHandler(thumbRepo, previews, queue)

	v1 := r.Group("/api/v1")
	{
		file.RegisterRoutes(v1, file.NewHandler(fileService))
		model.RegisterRoutes(v1, model.NewHandler(fileService, manager, ledger))
		thumbnail.RegisterRoutes(v1, thumbHandler)
		batch.RegisterRoutes(v1, batch.NewHandler(ledger))
		notify.RegisterRoutes(v1, notify.NewWSHandler(hub))

		internal := v1.Group("/internal")
		internal.Use(middleware.WorkerSecretAuth(cfg.WorkerSecret))
		{
			thumbnail.RegisterInternalRoutes(internal, thumbHandler)
		}
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		log.Printf("listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	waitForWorkers()
	log.Printf("stopped")
}
