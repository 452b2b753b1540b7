package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"signCast/internal/api/middleware"
	"signCast/internal/storage"
)

// ContentCatalog 是目录端点依赖的内容清单来源，由 storage.Catalog 实现。
type ContentCatalog interface {
	ListVideos(ctx context.Context) ([]string, error)
	ListGroupAdvertisements(ctx context.Context, gname string) ([]string, error)
	PresignedContentURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
}

// CatalogHandler 提供视频与按组限定的广告图目录。
type CatalogHandler struct {
	catalog ContentCatalog
}

// NewCatalogHandler 构造 CatalogHandler。
func NewCatalogHandler(catalog ContentCatalog) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ListVideos 返回全量视频名称。
func (h *CatalogHandler) ListVideos(c *gin.Context) {
	videos, err := h.catalog.ListVideos(c.Request.Context())
	if err != nil {
		middleware.LoggerFromContext(c).Error("list videos failed", slog.Any("error", err))
		Internal(c, "failed to list videos")
		return
	}
	c.JSON(http.StatusOK, gin.H{"videos": videos})
}

// ListGroupAdvertisements 返回指定组可用的广告图名称。
func (h *CatalogHandler) ListGroupAdvertisements(c *gin.Context) {
	gname := strings.TrimSpace(c.Param("name"))
	if gname == "" {
		BadRequest(c, "group name is required")
		return
	}

	ads, err := h.catalog.ListGroupAdvertisements(c.Request.Context(), gname)
	if err != nil {
		middleware.LoggerFromContext(c).Error("list group advertisements failed", slog.Any("error", err))
		Internal(c, "failed to list advertisements")
		return
	}
	c.JSON(http.StatusOK, gin.H{"advertisements": ads})
}

const contentURLTTL = 15 * time.Minute

// ContentURL 生成内容对象的限时预览链接（编辑器缩略图用）。
func (h *CatalogHandler) ContentURL(c *gin.Context) {
	key := strings.TrimSpace(c.Query("key"))
	if key == "" {
		BadRequest(c, "object key is required")
		return
	}

	url, err := h.catalog.PresignedContentURL(c.Request.Context(), key, contentURLTTL)
	if err != nil {
		if storage.IsNoSuchKey(err) {
			NotFound(c, "content object not found")
			return
		}
		middleware.LoggerFromContext(c).Error("presign content url failed",
			slog.String("key", key),
			slog.Any("error", err),
		)
		Internal(c, "failed to generate content url")
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}
