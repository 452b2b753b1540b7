package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"signCast/internal/database"
)

// LinkHandler 实现链接存储端：行级查询、设置更新与布局路径之外的增删。
type LinkHandler struct {
	db *gorm.DB
}

// NewLinkHandler 构造 LinkHandler。
func NewLinkHandler(db *gorm.DB) *LinkHandler {
	return &LinkHandler{db: db}
}

var errInvalidLinkID = errors.New("invalid link id")

// linkRow 是下发给引擎与列表视图的行：链接字段加冗余的设备级字段。
type linkRow struct {
	ID             uint    `json:"id"`
	MobileID       string  `json:"mobile_id"`
	Gname          string  `json:"gname"`
	ShopName       string  `json:"shop_name"`
	VideoName      string  `json:"video_name"`
	Rotation       *int    `json:"rotation"`
	DeviceRotation *int    `json:"device_rotation"`
	GridPosition   int     `json:"grid_position"`
	DeviceName     string  `json:"device_name"`
	Temperature    float64 `json:"temperature"`
	DailyPlays     int     `json:"daily_plays"`
	MonthlyPlays   int     `json:"monthly_plays"`
	Inactive       bool    `json:"inactive"`
}

// ListLinks 返回链接记录，可按 gname/shop 过滤。
func (h *LinkHandler) ListLinks(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).Model(&database.LinkRecord{})
	if gname := strings.TrimSpace(c.Query("gname")); gname != "" {
		query = query.Where("gname = ?", gname)
	}
	if shop := strings.TrimSpace(c.Query("shop")); shop != "" {
		query = query.Where("shop_name = ?", shop)
	}

	var records []database.LinkRecord
	if err := query.Order("mobile_id, grid_position").Find(&records).Error; err != nil {
		Internal(c, "failed to list links")
		return
	}

	rows, err := h.decorate(c, records)
	if err != nil {
		Internal(c, "failed to join device fields")
		return
	}
	c.JSON(http.StatusOK, gin.H{"links": rows})
}

// DeviceLinks 返回单台设备的链接记录。
func (h *LinkHandler) DeviceLinks(c *gin.Context) {
	mobileID := strings.TrimSpace(c.Param("id"))
	if mobileID == "" {
		BadRequest(c, "device id is required")
		return
	}

	var records []database.LinkRecord
	if err := h.db.WithContext(c.Request.Context()).
		Where("mobile_id = ?", mobileID).
		Order("grid_position").
		Find(&records).Error; err != nil {
		Internal(c, "failed to list device links")
		return
	}

	rows, err := h.decorate(c, records)
	if err != nil {
		Internal(c, "failed to join device fields")
		return
	}
	c.JSON(http.StatusOK, gin.H{"links": rows})
}

type linkSettingsRequest struct {
	GridPosition   int  `json:"grid_position"`
	DeviceRotation *int `json:"device_rotation"`
}

// UpdateSettings 更新单条链接的网格位置与设备侧旋转。
func (h *LinkHandler) UpdateSettings(c *gin.Context) {
	linkID, err := parseLinkID(c.Param("id"))
	if err != nil {
		BadRequest(c, "invalid link id")
		return
	}

	var req linkSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if req.GridPosition < 1 {
		BadRequest(c, "grid_position must be positive")
		return
	}
	if req.DeviceRotation != nil {
		switch *req.DeviceRotation {
		case 0, 90, 180, 270:
		default:
			BadRequest(c, "device_rotation must be one of 0, 90, 180, 270")
			return
		}
	}

	ctx := c.Request.Context()
	var record database.LinkRecord
	if err := h.db.WithContext(ctx).First(&record, linkID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "link not found")
			return
		}
		Internal(c, "failed to query link")
		return
	}

	if err := h.db.WithContext(ctx).Model(&record).Updates(map[string]any{
		"grid_position":   req.GridPosition,
		"device_rotation": req.DeviceRotation,
	}).Error; err != nil {
		Internal(c, "failed to update link settings")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type createLinkRequest struct {
	MobileID  string `json:"mobile_id" binding:"required"`
	VideoName string `json:"video_name" binding:"required"`
}

// CreateLink 为设备新增一条视频指派；网格位置排到该设备现有记录之后。
func (h *LinkHandler) CreateLink(c *gin.Context) {
	var req createLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	var device database.Device
	if err := h.db.WithContext(ctx).Where("mobile_id = ?", req.MobileID).First(&device).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "device not found")
			return
		}
		Internal(c, "failed to query device")
		return
	}

	var existing int64
	if err := h.db.WithContext(ctx).Model(&database.LinkRecord{}).
		Where("mobile_id = ? AND video_name = ?", req.MobileID, req.VideoName).
		Count(&existing).Error; err != nil {
		Internal(c, "failed to check existing link")
		return
	}
	if existing > 0 {
		Conflict(c, "video already linked to device")
		return
	}

	var maxPosition int
	row := h.db.WithContext(ctx).Model(&database.LinkRecord{}).
		Where("mobile_id = ?", req.MobileID).
		Select("COALESCE(MAX(grid_position), 0)").
		Row()
	if err := row.Scan(&maxPosition); err != nil {
		Internal(c, "failed to compute grid position")
		return
	}

	record := database.LinkRecord{
		MobileID:     req.MobileID,
		Gname:        device.Gname,
		ShopName:     device.ShopName,
		VideoName:    req.VideoName,
		GridPosition: maxPosition + 1,
	}
	if err := h.db.WithContext(ctx).Create(&record).Error; err != nil {
		Internal(c, "failed to create link")
		return
	}

	rows, err := h.decorate(c, []database.LinkRecord{record})
	if err != nil || len(rows) != 1 {
		Internal(c, "failed to load created link")
		return
	}
	c.JSON(http.StatusCreated, rows[0])
}

// DeleteLink 删除一条视频指派。布局描述符不在此路径联动清理。
func (h *LinkHandler) DeleteLink(c *gin.Context) {
	linkID, err := parseLinkID(c.Param("id"))
	if err != nil {
		BadRequest(c, "invalid link id")
		return
	}

	result := h.db.WithContext(c.Request.Context()).Delete(&database.LinkRecord{}, linkID)
	if result.Error != nil {
		Internal(c, "failed to delete link")
		return
	}
	if result.RowsAffected == 0 {
		NotFound(c, "link not found")
		return
	}

	c.Status(http.StatusNoContent)
}

// decorate 为链接行补上设备级冗余字段。
func (h *LinkHandler) decorate(c *gin.Context, records []database.LinkRecord) ([]linkRow, error) {
	rows := make([]linkRow, 0, len(records))
	if len(records) == 0 {
		return rows, nil
	}

	ids := make([]string, 0, len(records))
	seen := map[string]bool{}
	for _, r := range records {
		if !seen[r.MobileID] {
			seen[r.MobileID] = true
			ids = append(ids, r.MobileID)
		}
	}

	var devices []database.Device
	if err := h.db.WithContext(c.Request.Context()).
		Where("mobile_id IN ?", ids).
		Find(&devices).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]database.Device, len(devices))
	for _, d := range devices {
		byID[d.MobileID] = d
	}

	for _, r := range records {
		device := byID[r.MobileID]
		rows = append(rows, linkRow{
			ID:             r.ID,
			MobileID:       r.MobileID,
			Gname:          r.Gname,
			ShopName:       r.ShopName,
			VideoName:      r.VideoName,
			Rotation:       r.Rotation,
			DeviceRotation: r.DeviceRotation,
			GridPosition:   r.GridPosition,
			DeviceName:     device.DeviceName,
			Temperature:    device.Temperature,
			DailyPlays:     device.DailyPlays,
			MonthlyPlays:   device.MonthlyPlays,
			Inactive:       device.Inactive,
		})
	}
	return rows, nil
}

func parseLinkID(param string) (uint, error) {
	id, err := strconv.ParseUint(param, 10, 64)
	if err != nil || id == 0 {
		return 0, errInvalidLinkID
	}
	return uint(id), nil
}
