package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"signCast/internal/api/middleware"
	"signCast/internal/database"
)

// LayoutHandler 实现布局描述符存储端：整体读、整体写、批量组同步。
type LayoutHandler struct {
	db               *gorm.DB
	batchSyncEnabled bool
}

// NewLayoutHandler 构造 LayoutHandler。
func NewLayoutHandler(db *gorm.DB, batchSyncEnabled bool) *LayoutHandler {
	return &LayoutHandler{db: db, batchSyncEnabled: batchSyncEnabled}
}

type layoutPayload struct {
	LayoutMode   string `json:"layout_mode"`
	LayoutConfig string `json:"layout_config"`
}

// GetDeviceLayout 读取设备的布局描述符；从未保存过的设备返回 404。
func (h *LayoutHandler) GetDeviceLayout(c *gin.Context) {
	mobileID := strings.TrimSpace(c.Param("id"))
	if mobileID == "" {
		BadRequest(c, "device id is required")
		return
	}

	var stored database.DeviceLayout
	err := h.db.WithContext(c.Request.Context()).
		Where("mobile_id = ?", mobileID).
		First(&stored).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "no layout stored for device")
			return
		}
		Internal(c, "failed to query device layout")
		return
	}

	c.JSON(http.StatusOK, layoutPayload{
		LayoutMode:   stored.LayoutMode,
		LayoutConfig: string(stored.LayoutConfig),
	})
}

// SaveDeviceLayout 整体覆盖设备的布局描述符。
// layout_config 由调用方预先序列化，这里按不透明字符串存储。
func (h *LayoutHandler) SaveDeviceLayout(c *gin.Context) {
	mobileID := strings.TrimSpace(c.Param("id"))
	if mobileID == "" {
		BadRequest(c, "device id is required")
		return
	}

	var req layoutPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if strings.TrimSpace(req.LayoutMode) == "" {
		BadRequest(c, "layout_mode is required")
		return
	}

	if err := h.upsertLayout(c, mobileID, req); err != nil {
		Internal(c, "failed to save device layout")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type syncToDevicesRequest struct {
	SourceMobileID string `json:"source_mobile_id" binding:"required"`
	LayoutMode     string `json:"layout_mode" binding:"required"`
	LayoutConfig   string `json:"layout_config"`
}

// SyncToGroup 把同一份描述符写给组内每台设备（批量路径）。
// 部署可关闭该端点（返回 404），调用方须退回逐台保存。
func (h *LayoutHandler) SyncToGroup(c *gin.Context) {
	if !h.batchSyncEnabled {
		NotFound(c, "batched group sync is not enabled")
		return
	}

	gname := strings.TrimSpace(c.Param("name"))
	if gname == "" {
		BadRequest(c, "group name is required")
		return
	}

	var req syncToDevicesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	var devices []database.Device
	if err := h.db.WithContext(c.Request.Context()).
		Where("gname = ?", gname).
		Find(&devices).Error; err != nil {
		Internal(c, "failed to list group devices")
		return
	}

	log := middleware.LoggerFromContext(c)
	payload := layoutPayload{LayoutMode: req.LayoutMode, LayoutConfig: req.LayoutConfig}
	updated := 0
	for _, device := range devices {
		if err := h.upsertLayout(c, device.MobileID, payload); err != nil {
			// 批量路径内部的单台失败让整个调用失败，
			// 促使调用方走逐台回退并拿到精确的成败统计。
			log.Warn("batched sync write failed",
				slog.String("mobile_id", device.MobileID),
				slog.Any("error", err),
			)
			Internal(c, "failed to sync layout to group")
			return
		}
		updated++
	}

	c.JSON(http.StatusOK, gin.H{"devices_updated": updated})
}

func (h *LayoutHandler) upsertLayout(c *gin.Context, mobileID string, payload layoutPayload) error {
	ctx := c.Request.Context()
	raw := strings.TrimSpace(payload.LayoutConfig)
	if raw == "" {
		// jsonb 列不接受空串；空配置按空清单落库，读侧会按"无描述符"回退。
		raw = "[]"
	}
	config := datatypes.JSON([]byte(raw))

	var stored database.DeviceLayout
	err := h.db.WithContext(ctx).Where("mobile_id = ?", mobileID).First(&stored).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		stored = database.DeviceLayout{
			MobileID:     mobileID,
			LayoutMode:   payload.LayoutMode,
			LayoutConfig: config,
		}
		return h.db.WithContext(ctx).Create(&stored).Error
	case err != nil:
		return err
	default:
		return h.db.WithContext(ctx).Model(&stored).Updates(map[string]any{
			"layout_mode":   payload.LayoutMode,
			"layout_config": config,
		}).Error
	}
}
