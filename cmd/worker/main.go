package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"signCast/internal/config"
	"signCast/internal/fleet"
	"signCast/internal/metrics"
	"signCast/internal/reconcile"
	"signCast/internal/tasks"
	"signCast/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	redisAddr := cfg.Redis.Addr()
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	fleetClient := fleet.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.InternalSecret)
	reconciler := reconcile.NewReconciler(fleetClient, logger)
	snapshots := reconcile.NewSnapshotStore(redisClient)

	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 10,
	})

	refreshHandler := worker.NewFleetRefreshHandler(reconciler, snapshots, logger)
	progressHandler := worker.NewProgressRefreshHandler(fleetClient, snapshots, logger)
	resyncHandler := worker.NewLayoutResyncHandler(fleetClient, snapshots, logger)

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeFleetRefresh, refreshHandler)
	mux.Handle(tasks.TypeProgressRefresh, progressHandler)
	mux.Handle(tasks.TypeLayoutResync, resyncHandler)

	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	// 两个独立节奏的轮询循环：慢循环全量重建设备行，快循环只合并
	// 在线状态与下载进度。节奏不同步，不可合并成一个循环。
	fleetPoller := reconcile.NewPoller(cfg.Poll.FleetInterval, func(ctx context.Context) {
		task, err := tasks.NewFleetRefreshTask("poll", "")
		if err != nil {
			logger.Error("create fleet refresh task failed", slog.Any("error", err))
			return
		}
		if _, err := asynqClient.Enqueue(task); err != nil {
			logger.Error("enqueue fleet refresh failed", slog.Any("error", err))
		}
	})
	progressPoller := reconcile.NewPoller(cfg.Poll.ProgressInterval, func(ctx context.Context) {
		task, err := tasks.NewProgressRefreshTask("")
		if err != nil {
			logger.Error("create progress refresh task failed", slog.Any("error", err))
			return
		}
		if _, err := asynqClient.Enqueue(task); err != nil {
			logger.Error("enqueue progress refresh failed", slog.Any("error", err))
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fleetPoller.Start(ctx)
	progressPoller.Start(ctx)
	defer func() {
		progressPoller.Stop()
		fleetPoller.Stop()
	}()

	logger.Info("worker service started",
		slog.String("redis_addr", redisAddr),
		slog.Duration("fleet_interval", cfg.Poll.FleetInterval),
		slog.Duration("progress_interval", cfg.Poll.ProgressInterval),
	)
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
