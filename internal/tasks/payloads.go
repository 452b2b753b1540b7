package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeFleetRefresh    = "fleet:refresh"
	TypeProgressRefresh = "fleet:progress"
	TypeLayoutResync    = "layout:resync"
)

// FleetRefreshPayload 触发一次设备行快照全量重建。
type FleetRefreshPayload struct {
	Reason        string `json:"reason"`
	CorrelationID string `json:"correlation_id"`
}

// NewFleetRefreshTask 构造快照重建任务。
func NewFleetRefreshTask(reason, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(FleetRefreshPayload{
		Reason:        reason,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeFleetRefresh, payload), nil
}

// ProgressRefreshPayload 触发一次仅下载进度的快速合并。
type ProgressRefreshPayload struct {
	CorrelationID string `json:"correlation_id"`
}

// NewProgressRefreshTask 构造进度合并任务。
func NewProgressRefreshTask(correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ProgressRefreshPayload{CorrelationID: correlationID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeProgressRefresh, payload), nil
}

// LayoutResyncPayload 描述对单台设备的布局补推（组同步失败后的重试通道）。
type LayoutResyncPayload struct {
	MobileID      string `json:"mobile_id"`
	LayoutMode    string `json:"layout_mode"`
	LayoutConfig  string `json:"layout_config"`
	CorrelationID string `json:"correlation_id"`
}

// NewLayoutResyncTask 构造单设备布局补推任务。
func NewLayoutResyncTask(mobileID, layoutMode, layoutConfig, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(LayoutResyncPayload{
		MobileID:      mobileID,
		LayoutMode:    layoutMode,
		LayoutConfig:  layoutConfig,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeLayoutResync, payload), nil
}
