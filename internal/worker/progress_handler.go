package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/hibiken/asynq"

	"signCast/internal/reconcile"
	"signCast/internal/tasks"
)

// ProgressSource 是进度合并需要的遥测端点子集，由 fleet.Client 实现。
type ProgressSource interface {
	DeviceOnline(ctx context.Context, mobileID string) (bool, error)
	DownloadProgress(ctx context.Context, mobileID string) (map[string]int, error)
}

// ProgressRefreshHandler 消费快循环的进度合并任务：
// 只刷新已有快照里各行的在线状态与下载进度，不碰链接与槽位。
// 快照缺失时直接跳过，等慢循环先建出基线。
type ProgressRefreshHandler struct {
	source    ProgressSource
	snapshots *reconcile.SnapshotStore
	logger    *slog.Logger
}

// NewProgressRefreshHandler 创建任务处理器。
func NewProgressRefreshHandler(source ProgressSource, snapshots *reconcile.SnapshotStore, logger *slog.Logger) *ProgressRefreshHandler {
	return &ProgressRefreshHandler{source: source, snapshots: snapshots, logger: logger}
}

// ProcessTask 实现 asynq.Handler。
func (h *ProgressRefreshHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.ProgressRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log := h.logger.With(slog.String("correlation_id", payload.CorrelationID))

	snap, found, err := h.snapshots.Load(ctx)
	if err != nil {
		log.Error("load fleet snapshot failed", slog.Any("error", err))
		return err
	}
	if !found {
		log.Info("no fleet snapshot yet, skipping progress merge")
		return nil
	}

	var wg sync.WaitGroup
	for i := range snap.Rows {
		wg.Add(1)
		go func(row *reconcile.DeviceRow) {
			defer wg.Done()

			if online, err := h.source.DeviceOnline(ctx, row.MobileID); err != nil {
				log.Warn("online status fetch failed",
					slog.String("mobile_id", row.MobileID),
					slog.Any("error", err),
				)
			} else {
				row.Online = online
			}

			progress, err := h.source.DownloadProgress(ctx, row.MobileID)
			if err != nil {
				log.Warn("download progress fetch failed",
					slog.String("mobile_id", row.MobileID),
					slog.Any("error", err),
				)
				return
			}
			if len(progress) > 0 {
				row.Progress = progress
			} else {
				row.Progress = nil
			}
		}(&snap.Rows[i])
	}
	wg.Wait()

	if err := h.snapshots.Save(ctx, snap); err != nil {
		log.Error("store fleet snapshot failed", slog.Any("error", err))
		return err
	}

	msg := reconcile.UpdateMessage{
		Event:         "progress_update",
		GeneratedAt:   snap.GeneratedAt,
		DeviceCount:   len(snap.Rows),
		CorrelationID: payload.CorrelationID,
	}
	if err := h.snapshots.Publish(ctx, msg); err != nil {
		log.Error("publish progress update failed", slog.Any("error", err))
		return err
	}
	return nil
}
