package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"signCast/internal/composer"
	"signCast/internal/errcode"
	"signCast/internal/reconcile"
	"signCast/internal/tasks"
)

// 统一的 WebSocket 消息协议（通过 Redis Pub/Sub 转发给前端）。
// 注意：这里的字段名与前端解析保持一致。
type LayoutResyncNotifyMessage struct {
	Status        string `json:"status"`
	MobileID      string `json:"mobile_id"`
	CorrelationID string `json:"correlation_id"`
	ErrorCode     int    `json:"error_code"`
	ErrorMessage  string `json:"error_message"`
}

// LayoutResyncHandler 消费单设备布局补推任务：组同步逐台回退仍失败的
// 设备经由这里按 asynq 的退避节奏重试，直至成功或重试耗尽。
type LayoutResyncHandler struct {
	store     composer.Store
	snapshots *reconcile.SnapshotStore
	logger    *slog.Logger
}

// NewLayoutResyncHandler 创建任务处理器。
func NewLayoutResyncHandler(store composer.Store, snapshots *reconcile.SnapshotStore, logger *slog.Logger) *LayoutResyncHandler {
	return &LayoutResyncHandler{store: store, snapshots: snapshots, logger: logger}
}

// ProcessTask 实现 asynq.Handler。
func (h *LayoutResyncHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	var payload tasks.LayoutResyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.String("mobile_id", payload.MobileID),
	)

	defer func() {
		if retErr == nil {
			return
		}
		if !isFinalAsynqAttempt(ctx) {
			return
		}

		notify := LayoutResyncNotifyMessage{
			Status:        "error",
			MobileID:      payload.MobileID,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     errcode.SystemError,
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		}
		if err := h.publishNotify(ctx, notify); err != nil {
			log.Error("publish resync error notification failed", slog.Any("error", err))
		}
	}()

	result, err := composer.ApplyToDevice(ctx, h.store, payload.MobileID, payload.LayoutMode, payload.LayoutConfig, log)
	if err != nil {
		log.Error("apply layout to device failed", slog.Any("error", err))
		return err
	}

	notify := LayoutResyncNotifyMessage{
		Status:        "completed",
		MobileID:      payload.MobileID,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
	}
	if len(result.LinkFailures) > 0 {
		notify.ErrorCode = errcode.PartialFailure
		notify.ErrorMessage = "布局已保存，部分链接设置未更新"
		log.Warn("layout resynced with link failures", slog.Int("link_failures", len(result.LinkFailures)))
	}
	if err := h.publishNotify(ctx, notify); err != nil {
		log.Error("publish resync notification failed", slog.Any("error", err))
		return err
	}

	log.Info("layout resync completed")
	return nil
}

func (h *LayoutResyncHandler) publishNotify(ctx context.Context, notify LayoutResyncNotifyMessage) error {
	data, err := json.Marshal(notify)
	if err != nil {
		return err
	}
	return h.snapshots.PublishRaw(ctx, data)
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
