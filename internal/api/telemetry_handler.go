package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"signCast/internal/auth"
	"signCast/internal/database"
)

// TelemetryHandler 承接设备代理的心跳上报，并向控制台侧提供
// 在线状态、下载进度与下载队列的只读视图。
type TelemetryHandler struct {
	db          *gorm.DB
	redisClient *redis.Client
}

// NewTelemetryHandler 构造 TelemetryHandler。
func NewTelemetryHandler(db *gorm.DB, redisClient *redis.Client) *TelemetryHandler {
	return &TelemetryHandler{db: db, redisClient: redisClient}
}

type heartbeatRequest struct {
	Temperature  float64        `json:"temperature"`
	DailyPlays   int            `json:"daily_plays"`
	MonthlyPlays int            `json:"monthly_plays"`
	Progress     map[string]int `json:"progress"`
	Downloads    []string       `json:"downloads"`
}

// Heartbeat 接收设备代理上报：校验设备密钥，刷新在线键与遥测数据。
// 在线状态没有显式下线动作，靠心跳键 TTL 衰减。
func (h *TelemetryHandler) Heartbeat(c *gin.Context) {
	mobileID := strings.TrimSpace(c.Param("id"))
	if mobileID == "" {
		BadRequest(c, "device id is required")
		return
	}

	ctx := c.Request.Context()
	var device database.Device
	if err := h.db.WithContext(ctx).Where("mobile_id = ?", mobileID).First(&device).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "device not registered")
			return
		}
		Internal(c, "failed to query device")
		return
	}

	key := strings.TrimSpace(c.GetHeader("X-Device-Key"))
	if key == "" || !auth.CheckDeviceKey(key, device.KeyHash) {
		AbortUnauthorized(c)
		return
	}

	var req heartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	if err := h.db.WithContext(ctx).Model(&device).Updates(map[string]any{
		"temperature":   req.Temperature,
		"daily_plays":   req.DailyPlays,
		"monthly_plays": req.MonthlyPlays,
	}).Error; err != nil {
		Internal(c, "failed to store device telemetry")
		return
	}

	if err := h.redisClient.Set(ctx, deviceOnlineKey(mobileID), time.Now().Unix(), onlineTTL).Err(); err != nil {
		Internal(c, "failed to refresh online state")
		return
	}

	if len(req.Progress) > 0 {
		fields := make(map[string]any, len(req.Progress))
		for video, pct := range req.Progress {
			fields[video] = pct
		}
		pipe := h.redisClient.Pipeline()
		pipe.Del(ctx, deviceProgressKey(mobileID))
		pipe.HSet(ctx, deviceProgressKey(mobileID), fields)
		pipe.Expire(ctx, deviceProgressKey(mobileID), progressTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			Internal(c, "failed to store download progress")
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Online 返回设备是否在线（心跳键是否仍存活）。
func (h *TelemetryHandler) Online(c *gin.Context) {
	mobileID := strings.TrimSpace(c.Param("id"))
	if mobileID == "" {
		BadRequest(c, "device id is required")
		return
	}

	exists, err := h.redisClient.Exists(c.Request.Context(), deviceOnlineKey(mobileID)).Result()
	if err != nil {
		Internal(c, "failed to query online state")
		return
	}
	c.JSON(http.StatusOK, gin.H{"online": exists > 0})
}

// DownloadProgress 返回设备的分视频下载进度。
func (h *TelemetryHandler) DownloadProgress(c *gin.Context) {
	mobileID := strings.TrimSpace(c.Param("id"))
	if mobileID == "" {
		BadRequest(c, "device id is required")
		return
	}

	raw, err := h.redisClient.HGetAll(c.Request.Context(), deviceProgressKey(mobileID)).Result()
	if err != nil {
		Internal(c, "failed to query download progress")
		return
	}

	progress := make(map[string]int, len(raw))
	for video, value := range raw {
		pct, err := strconv.Atoi(value)
		if err != nil || pct < 0 || pct > 100 {
			continue
		}
		progress[video] = pct
	}
	c.JSON(http.StatusOK, gin.H{"progress": progress})
}

// ListDownloads 返回设备排队中的下载任务。
func (h *TelemetryHandler) ListDownloads(c *gin.Context) {
	mobileID := strings.TrimSpace(c.Param("id"))
	if mobileID == "" {
		BadRequest(c, "device id is required")
		return
	}

	downloads, err := h.redisClient.LRange(c.Request.Context(), deviceDownloadsKey(mobileID), 0, -1).Result()
	if err != nil {
		Internal(c, "failed to query downloads")
		return
	}
	c.JSON(http.StatusOK, gin.H{"downloads": downloads})
}

type requestDownloadRequest struct {
	VideoName string `json:"video_name" binding:"required"`
}

// RequestDownload 把一个下载任务排入设备队列，设备代理在下次心跳后拉取。
func (h *TelemetryHandler) RequestDownload(c *gin.Context) {
	mobileID := strings.TrimSpace(c.Param("id"))
	if mobileID == "" {
		BadRequest(c, "device id is required")
		return
	}

	var req requestDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	key := deviceDownloadsKey(mobileID)
	if err := h.redisClient.RPush(ctx, key, req.VideoName).Err(); err != nil {
		Internal(c, "failed to enqueue download")
		return
	}
	_ = h.redisClient.Expire(ctx, key, 24*time.Hour).Err()

	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}
