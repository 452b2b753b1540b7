package fleet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DeviceLayout 是设备布局端点的载荷：预设 ID 加预序列化的槽位清单。
type DeviceLayout struct {
	LayoutMode   string `json:"layout_mode"`
	LayoutConfig string `json:"layout_config"`
}

// LinkRecord 是链接列表端点返回的行。设备级字段（温度、计数、名称、停用标记）
// 随行冗余下发，同一设备的多行之间以首行为准。
type LinkRecord struct {
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

// Client 封装对设备网关（布局存储、链接存储、遥测）的 HTTP 访问。
// 引擎的全部 I/O 都经由这里，失败原样上抛，不做自动重试。
type Client struct {
	baseURL        string
	internalSecret string
	httpClient     *http.Client
}

// NewClient 构造网关客户端。
func NewClient(baseURL, internalSecret string) *Client {
	return &Client{
		baseURL:        strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		internalSecret: strings.TrimSpace(internalSecret),
		httpClient:     &http.Client{Timeout: 15 * time.Second},
	}
}

// NotFoundError 表示网关返回 404。批量同步与描述符读取都需要区分这种情况。
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("gateway resource not found: %s", e.Path)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.internalSecret != "" {
		req.Header.Set("X-Internal-Secret", c.internalSecret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request gateway %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 8*1024))
		return &NotFoundError{Path: path}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return fmt.Errorf("gateway %s status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out == nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 8*1024))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response from %s: %w", path, err)
	}
	return nil
}

// GetDeviceLayout 读取设备的布局描述符；found=false 表示尚未保存过（404）。
func (c *Client) GetDeviceLayout(ctx context.Context, mobileID string) (DeviceLayout, bool, error) {
	var out DeviceLayout
	err := c.do(ctx, http.MethodGet, "/v1/device/"+url.PathEscape(mobileID)+"/layout", nil, &out)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return DeviceLayout{}, false, nil
		}
		return DeviceLayout{}, false, err
	}
	return out, true, nil
}

// SaveDeviceLayout 整体覆盖设备的布局描述符。
func (c *Client) SaveDeviceLayout(ctx context.Context, mobileID string, l DeviceLayout) error {
	return c.do(ctx, http.MethodPost, "/v1/device/"+url.PathEscape(mobileID)+"/layout", l, nil)
}

type linkSettingsRequest struct {
	GridPosition   int  `json:"grid_position"`
	DeviceRotation *int `json:"device_rotation"`
}

// UpdateLinkSettings 更新单条链接的网格位置与设备侧旋转。
func (c *Client) UpdateLinkSettings(ctx context.Context, linkID uint, gridPosition int, deviceRotation *int) error {
	body := linkSettingsRequest{GridPosition: gridPosition, DeviceRotation: deviceRotation}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/v1/link/%d/settings", linkID), body, nil)
}

type createLinkRequest struct {
	MobileID  string `json:"mobile_id"`
	VideoName string `json:"video_name"`
}

// CreateLink 为设备新增一条视频指派（布局路径之外的显式操作）。
func (c *Client) CreateLink(ctx context.Context, mobileID, videoName string) (LinkRecord, error) {
	var out LinkRecord
	err := c.do(ctx, http.MethodPost, "/v1/link", createLinkRequest{MobileID: mobileID, VideoName: videoName}, &out)
	return out, err
}

// DeleteLink 删除一条视频指派。
func (c *Client) DeleteLink(ctx context.Context, linkID uint) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/v1/link/%d", linkID), nil, nil)
}

type linkListResponse struct {
	Links []LinkRecord `json:"links"`
}

// ListLinks 拉取链接记录；gname/shop 为空表示不过滤。
func (c *Client) ListLinks(ctx context.Context, gname, shop string) ([]LinkRecord, error) {
	q := url.Values{}
	if gname != "" {
		q.Set("gname", gname)
	}
	if shop != "" {
		q.Set("shop", shop)
	}
	path := "/v1/links"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out linkListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Links, nil
}

// DeviceLinks 拉取单台设备的链接记录。
func (c *Client) DeviceLinks(ctx context.Context, mobileID string) ([]LinkRecord, error) {
	var out linkListResponse
	path := "/v1/device/" + url.PathEscape(mobileID) + "/links"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Links, nil
}

type syncGroupRequest struct {
	SourceMobileID string `json:"source_mobile_id"`
	LayoutMode     string `json:"layout_mode"`
	LayoutConfig   string `json:"layout_config"`
}

type syncGroupResponse struct {
	DevicesUpdated int `json:"devices_updated"`
}

// SyncGroup 调用批量组同步端点。部署可能不支持该端点（404），
// 调用方必须准备好退回逐台保存。
func (c *Client) SyncGroup(ctx context.Context, gname, sourceMobileID string, l DeviceLayout) (int, error) {
	body := syncGroupRequest{SourceMobileID: sourceMobileID, LayoutMode: l.LayoutMode, LayoutConfig: l.LayoutConfig}
	var out syncGroupResponse
	path := "/v1/group/" + url.PathEscape(gname) + "/sync-to-devices"
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return 0, err
	}
	return out.DevicesUpdated, nil
}

type advertisementsResponse struct {
	Advertisements []string `json:"advertisements"`
}

// ListGroupAdvertisements 返回按组限定的广告图目录。
func (c *Client) ListGroupAdvertisements(ctx context.Context, gname string) ([]string, error) {
	var out advertisementsResponse
	path := "/v1/group/" + url.PathEscape(gname) + "/advertisements"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Advertisements, nil
}

type videosResponse struct {
	Videos []string `json:"videos"`
}

// ListVideos 返回全量视频目录。
func (c *Client) ListVideos(ctx context.Context) ([]string, error) {
	var out videosResponse
	if err := c.do(ctx, http.MethodGet, "/v1/videos", nil, &out); err != nil {
		return nil, err
	}
	return out.Videos, nil
}

type onlineResponse struct {
	Online bool `json:"online"`
}

// DeviceOnline 查询设备在线状态。
func (c *Client) DeviceOnline(ctx context.Context, mobileID string) (bool, error) {
	var out onlineResponse
	path := "/v1/device/" + url.PathEscape(mobileID) + "/online"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return false, err
	}
	return out.Online, nil
}

type progressResponse struct {
	Progress map[string]int `json:"progress"`
}

// DownloadProgress 查询设备的分视频下载进度（0-100）。
func (c *Client) DownloadProgress(ctx context.Context, mobileID string) (map[string]int, error) {
	var out progressResponse
	path := "/v1/device/" + url.PathEscape(mobileID) + "/download_progress"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Progress, nil
}

type downloadsResponse struct {
	Downloads []string `json:"downloads"`
}

// ListDeviceDownloads 返回设备当前排队的下载任务。
func (c *Client) ListDeviceDownloads(ctx context.Context, mobileID string) ([]string, error) {
	var out downloadsResponse
	path := "/v1/device/" + url.PathEscape(mobileID) + "/videos/downloads"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Downloads, nil
}

type requestDownloadBody struct {
	VideoName string `json:"video_name"`
}

// RequestDownload 请求设备下载指定视频。
func (c *Client) RequestDownload(ctx context.Context, mobileID, videoName string) error {
	path := "/v1/device/" + url.PathEscape(mobileID) + "/videos/downloads"
	return c.do(ctx, http.MethodPost, path, requestDownloadBody{VideoName: videoName}, nil)
}
