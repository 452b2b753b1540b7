package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"signCast/internal/api/middleware"
	"signCast/internal/auth"
	"signCast/internal/config"
	"signCast/internal/fleet"
	"signCast/internal/reconcile"
	"signCast/internal/storage"
)

// RegisterRoutes 注册全部 API 路由。
// 同一进程同时暴露三类面：操作员控制台（JWT）、存储端（内部密钥）、
// 设备代理心跳（设备密钥，处理器内部校验）。
func RegisterRoutes(
	router *gin.Engine,
	cfg *config.Config,
	db *gorm.DB,
	redisClient *redis.Client,
	asynqClient *asynq.Client,
	fleetClient *fleet.Client,
	catalog *storage.Catalog,
	verifier *auth.Verifier,
	logger *slog.Logger,
) {
	layoutHandler := NewLayoutHandler(db, cfg.Gateway.BatchSyncEnabled)
	linkHandler := NewLinkHandler(db)
	telemetryHandler := NewTelemetryHandler(db, redisClient)
	catalogHandler := NewCatalogHandler(catalog)
	editorHandler := NewEditorHandler(fleetClient, asynqClient)
	devicesHandler := NewDevicesHandler(
		reconcile.NewSnapshotStore(redisClient),
		reconcile.NewReconciler(fleetClient, logger),
		redisClient,
		asynqClient,
	)
	wsHandler := NewWsHandler(redisClient, verifier, logger, cfg.API.AllowedOrigins)

	authMiddleware := middleware.AuthMiddleware(verifier)
	internalSecret := middleware.InternalSecretMiddleware(cfg.Gateway.InternalSecret)

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		// 存储端：布局描述符、链接记录、遥测读侧与内容目录。
		// 引擎通过 fleet.Client 走这些端点，单机部署时指回本进程。
		store := v1.Group("")
		store.Use(internalSecret)
		{
			store.GET("/device/:id/layout", layoutHandler.GetDeviceLayout)
			store.POST("/device/:id/layout", layoutHandler.SaveDeviceLayout)
			store.POST("/group/:name/sync-to-devices", layoutHandler.SyncToGroup)

			store.GET("/links", linkHandler.ListLinks)
			store.GET("/device/:id/links", linkHandler.DeviceLinks)
			store.POST("/link", linkHandler.CreateLink)
			store.PUT("/link/:id/settings", linkHandler.UpdateSettings)
			store.DELETE("/link/:id", linkHandler.DeleteLink)

			store.GET("/device/:id/online", telemetryHandler.Online)
			store.GET("/device/:id/download_progress", telemetryHandler.DownloadProgress)
			store.GET("/device/:id/videos/downloads", telemetryHandler.ListDownloads)
			store.POST("/device/:id/videos/downloads", telemetryHandler.RequestDownload)

			store.GET("/videos", catalogHandler.ListVideos)
			store.GET("/group/:name/advertisements", catalogHandler.ListGroupAdvertisements)
			store.GET("/content/url", catalogHandler.ContentURL)
		}

		// 设备代理：心跳自带设备密钥，不走操作员/内部鉴权。
		agent := v1.Group("/agent")
		{
			agent.POST("/device/:id/heartbeat", telemetryHandler.Heartbeat)
		}

		// 操作员控制台：编辑会话与设备行列表。
		console := v1.Group("")
		console.Use(authMiddleware)
		{
			console.GET("/editor/:id", editorHandler.OpenEditor)
			console.POST("/editor/:id/save", editorHandler.SaveLayout)
			console.POST("/editor/:id/sync-group", editorHandler.SyncGroup)

			console.GET("/devices", devicesHandler.ListDevices)
			console.POST("/devices/refresh", devicesHandler.Refresh)
		}
	}
}
