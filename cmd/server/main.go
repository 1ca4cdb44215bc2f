// Package main runs the totem events HTTP server with the websocket change feed and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/totem-events/backend/config"
	"github.com/totem-events/backend/internal/auth"
	"github.com/totem-events/backend/internal/clock"
	"github.com/totem-events/backend/internal/events"
	"github.com/totem-events/backend/internal/media"
	"github.com/totem-events/backend/internal/middleware"
	"github.com/totem-events/backend/internal/realtime"
	"github.com/totem-events/backend/internal/users"
	"github.com/totem-events/backend/pkg/database"
	"github.com/totem-events/backend/pkg/metrics"
	"github.com/totem-events/backend/pkg/queue"
	"github.com/totem-events/backend/pkg/redis"
	"github.com/totem-events/backend/pkg/response"
	"github.com/totem-events/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	loc, err := cfg.Totem.Location()
	if err != nil {
		logger.Fatal("totem time zone", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	blobs, uploadDir, err := storage.Open(ctx, storageOptions(cfg), logger)
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}

	clk := clock.NewSystem()
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	// Users
	userRepo := users.NewRepository(pool)
	userHandler := users.NewHandler(userRepo)

	// Events
	eventRepo := events.NewRepository(pool)
	eventService := events.NewService(eventRepo, userRepo, clk, loc, logger)
	jobs := queue.NewQueue(rdb.Client, cfg.Mail.QueueKey, logger)
	eventService.SetNotifier(jobs)
	eventService.SetFeedCache(events.NewRedisFeedCache(rdb.Client, cfg.Totem.CacheTTL, logger))
	eventService.SetBroadcaster(hub)
	eventHandler := events.NewHandler(eventService)

	// Media
	pipeline := media.NewPipeline(eventRepo, blobs, media.NewValidator(nil), clk, eventService, logger)
	pipeline.SetCleanupQueue(jobs)
	eventService.SetMediaRemover(pipeline)
	mediaHandler := media.NewHandler(pipeline, logger)

	totemLimiter := middleware.NewRateLimiter(cfg.Totem.RateLimitPerMinute)

	router := gin.New()
	router.MaxMultipartMemory = 32 << 20
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health and metrics
	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		status := gin.H{"status": "ok", "database": "ok", "redis": "ok"}
		healthy := true
		if err := pool.Ping(ctx); err != nil {
			status["database"], healthy = "down", false
		}
		if !rdb.Healthy(ctx) {
			status["redis"], healthy = "down", false
		}
		if !healthy {
			status["status"] = "degraded"
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		response.OK(c, status)
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	if uploadDir != "" {
		router.Static("/"+storage.FolderUploads, uploadDir)
	}

	// Public reads (actor optional)
	public := router.Group("")
	public.Use(middleware.OptionalJWT(jwtService))
	{
		public.GET("/events", eventHandler.List)
		public.GET("/events/:id", eventHandler.GetByID)
	}

	// Totems
	totem := router.Group("/totem")
	{
		totem.GET("/events", totemLimiter.Middleware(), eventHandler.Totem)
		totem.GET("/ws", realtime.ServeWs(hub, logger))
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/users", middleware.RequireAdmin(), userHandler.List)

		api.POST("/events", eventHandler.Create)
		api.PATCH("/events/:id", eventHandler.Update)
		api.PATCH("/events/:id/status", eventHandler.SetStatus)
		api.DELETE("/events/:id", eventHandler.Delete)
		api.PATCH("/events/:id/organizer", middleware.RequireAdmin(), eventHandler.TransferOrganizer)

		api.GET("/events/:id/permissions", eventHandler.ListPermissions)
		api.POST("/events/:id/permissions", eventHandler.Share)
		api.DELETE("/events/:id/permissions/:userId", eventHandler.Revoke)

		api.POST("/events/:id/media/:variant", mediaHandler.Upload)
		api.POST("/events/:id/media/:variant/batch", mediaHandler.UploadBatch)
		api.DELETE("/events/:id/media/:variant/:mediaId", mediaHandler.Delete)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("storage", cfg.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func storageOptions(cfg *config.Config) storage.Options {
	return storage.Options{
		Driver:       cfg.Storage.Driver,
		LocalRoot:    cfg.Storage.UploadDir,
		LocalBaseURL: cfg.Storage.BaseURL,
		S3: storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Bucket:          cfg.AWS.MediaBucket,
			PublicBaseURL:   cfg.AWS.PublicBaseURL,
		},
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
