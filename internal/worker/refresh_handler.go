package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"signCast/internal/reconcile"
	"signCast/internal/tasks"
)

// FleetRefreshHandler 消费全量快照重建任务：
// 重建设备行、覆盖缓存、向前端广播更新事件。
type FleetRefreshHandler struct {
	reconciler *reconcile.Reconciler
	snapshots  *reconcile.SnapshotStore
	logger     *slog.Logger
}

// NewFleetRefreshHandler 创建任务处理器。
func NewFleetRefreshHandler(reconciler *reconcile.Reconciler, snapshots *reconcile.SnapshotStore, logger *slog.Logger) *FleetRefreshHandler {
	return &FleetRefreshHandler{reconciler: reconciler, snapshots: snapshots, logger: logger}
}

// ProcessTask 实现 asynq.Handler。
func (h *FleetRefreshHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.FleetRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.String("reason", payload.Reason),
	)

	snap, err := h.reconciler.BuildSnapshot(ctx)
	if err != nil {
		log.Error("build fleet snapshot failed", slog.Any("error", err))
		return err
	}
	if err := h.snapshots.Save(ctx, snap); err != nil {
		log.Error("store fleet snapshot failed", slog.Any("error", err))
		return err
	}

	msg := reconcile.UpdateMessage{
		Event:         "fleet_snapshot",
		GeneratedAt:   snap.GeneratedAt,
		DeviceCount:   len(snap.Rows),
		CorrelationID: payload.CorrelationID,
	}
	if err := h.snapshots.Publish(ctx, msg); err != nil {
		log.Error("publish fleet update failed", slog.Any("error", err))
		return err
	}

	log.Info("fleet snapshot rebuilt",
		slog.Int("device_count", len(snap.Rows)),
		slog.Int("inactive_count", snap.InactiveCount),
	)
	return nil
}
