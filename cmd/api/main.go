package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"signCast/internal/api"
	"signCast/internal/auth"
	"signCast/internal/config"
	"signCast/internal/database"
	"signCast/internal/fleet"
	"signCast/internal/storage"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	log.Printf("api bootstrapped with db host=%s port=%d db=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	log.Printf("database connection ready")

	if err := db.AutoMigrate(&database.Device{}, &database.LinkRecord{}, &database.DeviceLayout{}); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}
	log.Printf("database migrated")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
	defer asynqClient.Close()

	catalog, err := storage.NewCatalog(cfg.MinIO)
	if err != nil {
		log.Fatalf("init content catalog: %v", err)
	}
	log.Printf("content catalog ready, bucket=%s", cfg.MinIO.Bucket)

	publicKeyPEM, err := os.ReadFile(cfg.Auth.PublicKeyFile)
	if err != nil {
		log.Fatalf("read auth public key: %v", err)
	}
	verifier, err := auth.NewVerifier(publicKeyPEM)
	if err != nil {
		log.Fatalf("init token verifier: %v", err)
	}

	fleetClient := fleet.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.InternalSecret)

	router := api.NewRouter(logger)
	api.RegisterRoutes(router, cfg, db, redisClient, asynqClient, fleetClient, catalog, verifier, logger)

	address := fmt.Sprintf(":%d", cfg.API.Port)
	log.Printf("api listening on %s", address)
	if err := router.Run(address); err != nil {
		log.Fatalf("failed to start api server: %v", err)
	}
}
