// Package main runs the background worker that retries failed media blob deletions.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/totem-events/backend/config"
	"github.com/totem-events/backend/internal/worker"
	"github.com/totem-events/backend/pkg/queue"
	"github.com/totem-events/backend/pkg/redis"
	"github.com/totem-events/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	blobs, _, err := storage.Open(ctx, storage.Options{
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
	}, logger)
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}

	jobs := queue.NewQueue(rdb.Client, cfg.Mail.QueueKey, logger)
	processor := worker.NewBlobCleanupProcessor(blobs, jobs, logger)

	logger.Info("blob cleanup worker started", zap.String("queue", queue.QueueBlobCleanup), zap.String("storage", cfg.Storage.Driver))
	processor.Run(ctx)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
