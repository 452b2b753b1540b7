package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"signCast/internal/config"
)

// Catalog 封装内容目录的对象存储访问：视频与广告图的名称清单来自
// Bucket 前缀列举，按组限定的广告放在 ads/<gname>/ 之下。
type Catalog struct {
	client      *minio.Client
	bucketName  string
	videoPrefix string
	adPrefix    string
}

// NewCatalog 根据配置初始化 MinIO 客户端并确认 Bucket 可达。
func NewCatalog(cfg config.MinIOConfig) (*Catalog, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %q does not exist", cfg.Bucket)
	}

	return &Catalog{
		client:      client,
		bucketName:  cfg.Bucket,
		videoPrefix: normalizePrefix(cfg.VideoPrefix),
		adPrefix:    normalizePrefix(cfg.AdPrefix),
	}, nil
}

// ListVideos 返回全量视频名称（对象名去掉前缀与路径）。
func (c *Catalog) ListVideos(ctx context.Context) ([]string, error) {
	return c.listNames(ctx, c.videoPrefix)
}

// ListGroupAdvertisements 返回指定组可用的广告图名称。
func (c *Catalog) ListGroupAdvertisements(ctx context.Context, gname string) ([]string, error) {
	gname = strings.TrimSpace(gname)
	if gname == "" {
		return nil, fmt.Errorf("group name is required")
	}
	return c.listNames(ctx, c.adPrefix+gname+"/")
}

// PresignedContentURL 生成内容对象的限时下载链接（编辑器里的缩略预览用）。
// 先确认对象存在，避免把指向空对象的链接发给前端。
func (c *Catalog) PresignedContentURL(ctx context.Context, objectKey string, duration time.Duration) (string, error) {
	if _, err := c.client.StatObject(ctx, c.bucketName, objectKey, minio.StatObjectOptions{}); err != nil {
		return "", fmt.Errorf("stat object %q: %w", objectKey, err)
	}
	presignedURL, err := c.client.PresignedGetObject(ctx, c.bucketName, objectKey, duration, nil)
	if err != nil {
		return "", fmt.Errorf("generate presigned url for %q: %w", objectKey, err)
	}
	return presignedURL.String(), nil
}

func (c *Catalog) listNames(ctx context.Context, prefix string) ([]string, error) {
	objCh := c.client.ListObjects(ctx, c.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	names := make([]string, 0, 50)
	for object := range objCh {
		if object.Err != nil {
			return nil, fmt.Errorf("list objects under %q: %w", prefix, object.Err)
		}
		name := path.Base(object.Key)
		if name == "" || name == "." || name == "/" {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return ""
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}
