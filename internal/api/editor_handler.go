package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"signCast/internal/api/middleware"
	"signCast/internal/composer"
	"signCast/internal/errcode"
	"signCast/internal/groupsync"
	"signCast/internal/layout"
	"signCast/internal/tasks"
)

// EditorStore 是编辑器侧需要的全部协作方端点，由 fleet.Client 实现。
type EditorStore interface {
	groupsync.Store
	ListVideos(ctx context.Context) ([]string, error)
	ListGroupAdvertisements(ctx context.Context, gname string) ([]string, error)
}

// EditorHandler 承载布局编辑会话：打开、保存、同步到组。
type EditorHandler struct {
	store       EditorStore
	asynqClient *asynq.Client
}

// NewEditorHandler 构造 EditorHandler。
func NewEditorHandler(store EditorStore, asynqClient *asynq.Client) *EditorHandler {
	return &EditorHandler{store: store, asynqClient: asynqClient}
}

type slotPayload struct {
	Position int    `json:"position"`
	Kind     string `json:"kind"`
	Name     string `json:"name,omitempty"`
	Rotation *int   `json:"rotation"`
}

type editorStateResponse struct {
	MobileID       string          `json:"mobile_id"`
	LayoutMode     string          `json:"layout_mode"`
	Slots          []slotPayload   `json:"slots"`
	Presets        []layout.Preset `json:"presets"`
	Videos         []string        `json:"videos"`
	Advertisements []string        `json:"advertisements"`
}

// OpenEditor 打开设备的编辑会话：合并描述符与链接记录，附上内容目录。
func (h *EditorHandler) OpenEditor(c *gin.Context) {
	mobileID := strings.TrimSpace(c.Param("id"))
	if mobileID == "" {
		BadRequest(c, "device id is required")
		return
	}

	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c)

	session, err := composer.Open(ctx, h.store, mobileID, log)
	if err != nil {
		Internal(c, "failed to open editor session")
		return
	}

	resp := editorStateResponse{
		MobileID:   mobileID,
		LayoutMode: session.Model().Preset().ID,
		Slots:      slotPayloads(session.Model()),
		Presets:    layout.Presets(),
	}

	// 目录加载失败不阻塞编辑器打开，给空清单并记录告警。
	if videos, err := h.store.ListVideos(ctx); err != nil {
		log.Warn("video catalog unavailable", slog.Any("error", err))
	} else {
		resp.Videos = videos
	}
	if gname := session.Gname(); gname != "" {
		if ads, err := h.store.ListGroupAdvertisements(ctx, gname); err != nil {
			log.Warn("advertisement catalog unavailable",
				slog.String("gname", gname),
				slog.Any("error", err),
			)
		} else {
			resp.Advertisements = ads
		}
	}

	c.JSON(http.StatusOK, resp)
}

type saveLayoutRequest struct {
	LayoutMode string        `json:"layout_mode" binding:"required"`
	Slots      []slotPayload `json:"slots"`
}

type saveLayoutResponse struct {
	LayoutMode   string                 `json:"layout_mode"`
	LinkFailures []composer.LinkFailure `json:"link_failures,omitempty"`
	ErrorCode    int                    `json:"error_code"`
}

// SaveLayout 把前端提交的完整槽位状态落库。
// 描述符写入失败整体失败；链接更新失败只随响应回报，不中断。
func (h *EditorHandler) SaveLayout(c *gin.Context) {
	mobileID := strings.TrimSpace(c.Param("id"))
	if mobileID == "" {
		BadRequest(c, "device id is required")
		return
	}

	var req saveLayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c)

	session, err := h.composeSession(ctx, mobileID, req, log, c)
	if err != nil {
		return
	}

	result, err := session.Save(ctx)
	if err != nil {
		Internal(c, "failed to save layout")
		return
	}

	code := errcode.OK
	if len(result.LinkFailures) > 0 {
		code = errcode.PartialFailure
	}
	c.JSON(http.StatusOK, saveLayoutResponse{
		LayoutMode:   result.LayoutMode,
		LinkFailures: result.LinkFailures,
		ErrorCode:    code,
	})
}

type syncGroupRequest struct {
	Gname      string        `json:"gname" binding:"required"`
	LayoutMode string        `json:"layout_mode" binding:"required"`
	Slots      []slotPayload `json:"slots"`
}

type syncGroupResponse struct {
	Report       groupsync.Report       `json:"report"`
	LinkFailures []composer.LinkFailure `json:"link_failures,omitempty"`
	ErrorCode    int                    `json:"error_code"`
}

// SyncGroup 把合成好的布局推送到组内每台设备。
// 部分失败作为警告返回（HTTP 200 + error_code），失败设备转入补推队列。
func (h *EditorHandler) SyncGroup(c *gin.Context) {
	mobileID := strings.TrimSpace(c.Param("id"))
	if mobileID == "" {
		BadRequest(c, "device id is required")
		return
	}

	var req syncGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c)

	session, err := h.composeSession(ctx, mobileID, saveLayoutRequest{LayoutMode: req.LayoutMode, Slots: req.Slots}, log, c)
	if err != nil {
		return
	}

	engine := groupsync.NewEngine(h.store, log)
	report, linkFailures, err := engine.Sync(ctx, session, req.Gname)
	if err != nil {
		Internal(c, "failed to sync layout to group")
		return
	}

	code := errcode.OK
	if report.Failed > 0 || len(linkFailures) > 0 {
		code = errcode.PartialFailure
	}
	h.enqueueResyncs(c, report, session, log)

	c.JSON(http.StatusOK, syncGroupResponse{
		Report:       report,
		LinkFailures: linkFailures,
		ErrorCode:    code,
	})
}

// composeSession 根据请求体重放出完整的槽位模型。
// 本地校验失败（预设未知、槽位越界、旋转非法）在任何网络写之前拒绝。
func (h *EditorHandler) composeSession(ctx context.Context, mobileID string, req saveLayoutRequest, log *slog.Logger, c *gin.Context) (*composer.Session, error) {
	session, err := composer.Open(ctx, h.store, mobileID, log)
	if err != nil {
		Internal(c, "failed to load device state")
		return nil, err
	}

	if err := session.ChangePreset(req.LayoutMode); err != nil {
		BadRequest(c, err.Error())
		return nil, err
	}
	for position := 1; position <= session.Model().SlotCount(); position++ {
		session.Clear(position)
	}

	for _, entry := range req.Slots {
		switch layout.Kind(entry.Kind) {
		case layout.KindEmpty:
			continue
		case layout.KindVideo, layout.KindImage:
			ref := layout.ContentRef{Kind: layout.Kind(entry.Kind), Name: entry.Name}
			if ref.Name == "" {
				BadRequest(c, "slot content name is required")
				return nil, errors.New("slot content name is required")
			}
			if err := session.Assign(entry.Position, ref, layout.RotationFromPtr(entry.Rotation)); err != nil {
				BadRequest(c, err.Error())
				return nil, err
			}
		default:
			BadRequest(c, "unknown slot content kind")
			return nil, errors.New("unknown slot content kind")
		}
	}
	return session, nil
}

// enqueueResyncs 为同步失败的设备排队补推任务（带重试）。
func (h *EditorHandler) enqueueResyncs(c *gin.Context, report groupsync.Report, session *composer.Session, log *slog.Logger) {
	if h.asynqClient == nil || len(report.Failures) == 0 {
		return
	}

	config, err := layout.EncodeConfig(session.Model())
	if err != nil {
		log.Error("encode layout for resync failed", slog.Any("error", err))
		return
	}
	correlationID := middleware.GetCorrelationID(c)

	for _, failure := range report.Failures {
		task, err := tasks.NewLayoutResyncTask(failure.MobileID, session.Model().Preset().ID, config, correlationID)
		if err != nil {
			log.Error("create resync task failed", slog.Any("error", err))
			continue
		}
		if _, err := h.asynqClient.Enqueue(task, asynq.MaxRetry(5)); err != nil {
			log.Error("enqueue resync task failed",
				slog.String("mobile_id", failure.MobileID),
				slog.Any("error", err),
			)
		}
	}
}

func slotPayloads(model *layout.Model) []slotPayload {
	out := make([]slotPayload, 0, model.SlotCount())
	for _, slot := range model.Slots() {
		payload := slotPayload{
			Position: slot.Position,
			Kind:     string(layout.KindEmpty),
			Rotation: slot.Rotation.Ptr(),
		}
		if slot.Content != nil {
			payload.Kind = string(slot.Content.Kind)
			payload.Name = slot.Content.Name
		}
		out = append(out, payload)
	}
	return out
}
