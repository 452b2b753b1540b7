package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"signCast/internal/api/middleware"
	"signCast/internal/reconcile"
	"signCast/internal/tasks"
)

const (
	refreshRateKey   = "ratelimit:fleet:refresh"
	refreshRateTTL   = 10 * time.Second
	refreshRateLimit = 3
)

// DevicesHandler 提供设备行列表与手动刷新入口。
// 列表默认读缓存快照，没有快照时现场重建一次兜底。
type DevicesHandler struct {
	snapshots   *reconcile.SnapshotStore
	reconciler  *reconcile.Reconciler
	redisClient *redis.Client
	asynqClient *asynq.Client
}

// NewDevicesHandler 构造 DevicesHandler。
func NewDevicesHandler(snapshots *reconcile.SnapshotStore, reconciler *reconcile.Reconciler, redisClient *redis.Client, asynqClient *asynq.Client) *DevicesHandler {
	return &DevicesHandler{
		snapshots:   snapshots,
		reconciler:  reconciler,
		redisClient: redisClient,
		asynqClient: asynqClient,
	}
}

type devicesResponse struct {
	Devices       []reconcile.DeviceRow `json:"devices"`
	InactiveCount int                   `json:"inactive_count"`
	GeneratedAt   time.Time             `json:"generated_at"`
}

// ListDevices 返回过滤后的设备行。
// 查询参数：device / gname / shop / video（子串、不区分大小写）、include_inactive。
func (h *DevicesHandler) ListDevices(c *gin.Context) {
	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c)

	snap, found, err := h.snapshots.Load(ctx)
	if err != nil {
		log.Error("load fleet snapshot failed", slog.Any("error", err))
		Internal(c, "failed to load device snapshot")
		return
	}
	if !found {
		// 冷启动或快照过期：同步重建一次，不让首个请求空手而归。
		snap, err = h.reconciler.BuildSnapshot(ctx)
		if err != nil {
			log.Error("on-demand snapshot rebuild failed", slog.Any("error", err))
			Internal(c, "failed to build device snapshot")
			return
		}
		if err := h.snapshots.Save(ctx, snap); err != nil {
			log.Warn("store rebuilt snapshot failed", slog.Any("error", err))
		}
	}

	filter := reconcile.Filter{
		Device:          strings.TrimSpace(c.Query("device")),
		Gname:           strings.TrimSpace(c.Query("gname")),
		Shop:            strings.TrimSpace(c.Query("shop")),
		Video:           strings.TrimSpace(c.Query("video")),
		IncludeInactive: c.Query("include_inactive") == "true",
	}

	c.JSON(http.StatusOK, devicesResponse{
		Devices:       filter.Apply(snap.Rows),
		InactiveCount: snap.InactiveCount,
		GeneratedAt:   snap.GeneratedAt,
	})
}

// Refresh 请求一次后台快照重建（节流，避免操作员连点把采集打爆）。
func (h *DevicesHandler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c)

	count, err := incrWithTTL(ctx, h.redisClient, refreshRateKey, refreshRateTTL)
	if err != nil {
		log.Warn("refresh rate counter unavailable", slog.Any("error", err))
	} else if count > refreshRateLimit {
		Error(c, http.StatusTooManyRequests, "refresh requested too frequently")
		return
	}

	correlationID := middleware.GetCorrelationID(c)
	task, err := tasks.NewFleetRefreshTask("manual", correlationID)
	if err != nil {
		Internal(c, "failed to create refresh task")
		return
	}
	if _, err := h.asynqClient.Enqueue(task); err != nil {
		log.Error("enqueue fleet refresh failed", slog.Any("error", err))
		Internal(c, "failed to enqueue refresh")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}
